package templates

import (
	"bytes"
	"html/template"
)

type WelcomeEmailData struct {
	RecipientName string
}

const welcomeHTML = `
<!DOCTYPE html>
<html>
<head>
  <meta charset="UTF-8"/>
  <title>Welcome to MedScan</title>
  <style>
    body {
      margin: 0;
      padding: 0;
      font-family: Arial, sans-serif;
      background-color: #f4f7f9;
      color: #2b2f33;
    }
    .email-container {
      width: 100%;
      max-width: 600px;
      margin: 0 auto;
      background-color: #ffffff;
    }
    .header {
      background-color: #1f6f8b;
      color: #ffffff;
      padding: 24px;
      text-align: center;
    }
    .content {
      padding: 24px;
      line-height: 1.5;
    }
    .highlight {
      font-weight: bold;
      color: #1f6f8b;
    }
    .disclaimer {
      font-size: 12px;
      color: #6b7378;
    }
    .footer {
      padding: 16px;
      text-align: center;
      font-size: 12px;
      color: #9aa1a6;
    }
  </style>
</head>
<body>
  <table class="email-container" role="presentation" cellspacing="0" cellpadding="0">
    <tr>
      <td>
        <div class="header">
          <h1>Welcome to MedScan</h1>
        </div>
        <div class="content">
          {{if .RecipientName}}
            <p>Hi <span class="highlight">{{.RecipientName}}</span>,</p>
          {{else}}
            <p>Hello,</p>
          {{end}}
          <p>Your diagnostic workspace is ready. Start a chat and upload a CT scan
             to receive a structured, assisted analysis with annotated findings.</p>
          <p class="disclaimer">MedScan output is for educational purposes and does not
             replace review by a qualified clinician.</p>
        </div>
        <div class="footer">
          <p>&copy; MedScan. All rights reserved.</p>
        </div>
      </td>
    </tr>
  </table>
</body>
</html>
`

func RenderWelcomeHTML(recipientName string) (string, error) {
	tmpl, err := template.New("welcome").Parse(welcomeHTML)
	if err != nil {
		return "", err
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, WelcomeEmailData{RecipientName: recipientName}); err != nil {
		return "", err
	}
	return buf.String(), nil
}
