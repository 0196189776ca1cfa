package services

import (
	"context"
	"fmt"

	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"

	"github.com/PabloG6/medscan-intellibus/internal/logger"
	"github.com/PabloG6/medscan-intellibus/internal/templates"
	"github.com/PabloG6/medscan-intellibus/internal/types"
)

type EmailService interface {
	SendEmail(ctx context.Context, toEmail string, subject string, plainText string, htmlContent string) error
	SendWelcomeEmail(ctx context.Context, user *types.User) error
}

type emailService struct {
	log       *logger.Logger
	client    *sendgrid.Client
	fromEmail string
}

func NewEmailService(log *logger.Logger, apiKey, fromEmail string) (EmailService, error) {
	serviceLog := log.With("service", "EmailService")
	if apiKey == "" {
		return nil, fmt.Errorf("missing SENDGRID_API_KEY")
	}
	if fromEmail == "" {
		serviceLog.Warn("SENDGRID_FROM_EMAIL not set; using fallback no-reply@medscan.ai")
		fromEmail = "no-reply@medscan.ai"
	}
	return &emailService{
		log:       serviceLog,
		client:    sendgrid.NewSendClient(apiKey),
		fromEmail: fromEmail,
	}, nil
}

func (es *emailService) SendEmail(ctx context.Context, toEmail string, subject string, plainText string, htmlContent string) error {
	from := mail.NewEmail("MedScan", es.fromEmail)
	to := mail.NewEmail("", toEmail)
	message := mail.NewSingleEmail(from, subject, to, plainText, htmlContent)
	response, err := es.client.SendWithContext(ctx, message)
	if err != nil {
		es.log.Warn("Sendgrid email send failed", "error", err)
		return err
	}
	if response.StatusCode >= 300 {
		es.log.Warn("Sendgrid rejected email", "statusCode", response.StatusCode, "body", response.Body)
		return fmt.Errorf("sendgrid HTTP %d", response.StatusCode)
	}
	es.log.Info("Email sent", "statusCode", response.StatusCode)
	return nil
}

func (es *emailService) SendWelcomeEmail(ctx context.Context, user *types.User) error {
	html, err := templates.RenderWelcomeHTML(user.FirstName)
	if err != nil {
		return err
	}
	plain := fmt.Sprintf("Hi %s,\n\nYour MedScan workspace is ready. Upload a CT scan to start an assisted analysis.\n\nMedScan is for educational use and does not replace clinical judgement.", user.FirstName)
	return es.SendEmail(ctx, user.Email, "Welcome to MedScan", plain, html)
}
