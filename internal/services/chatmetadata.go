package services

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/PabloG6/medscan-intellibus/internal/logger"
)

const (
	DefaultChatTitle       = "New Diagnostic Session"
	DefaultChatDescription = "AI-assisted assessment workspace for upcoming medical imaging analysis."

	chatMetadataSystemPrompt = "You generate concise, professional titles and descriptions for medical imaging diagnostic sessions."
	chatMetadataUserPrompt   = "Create a short, readable title and a single-sentence description for a new diagnostic chat session. " +
		"Keep the tone clinical yet approachable. The description should emphasise rapid triage and assisted analysis. " +
		`Respond with only a JSON object of the form {"title": string, "description": string}.`
)

type ChatMetadata struct {
	Title       string `json:"title"`
	Description string `json:"description"`
}

func DefaultChatMetadata() ChatMetadata {
	return ChatMetadata{Title: DefaultChatTitle, Description: DefaultChatDescription}
}

func (m ChatMetadata) valid() bool {
	tl := utf8.RuneCountInString(m.Title)
	dl := utf8.RuneCountInString(m.Description)
	return tl >= 3 && tl <= 80 && dl >= 10 && dl <= 240
}

// ChatMetadataGenerator never fails; callers always get a usable title.
type ChatMetadataGenerator interface {
	Generate(ctx context.Context) ChatMetadata
}

type anthropicMetadataGenerator struct {
	log    *logger.Logger
	client anthropic.Client
	model  string
}

// NewChatMetadataGenerator returns the static defaults when apiKey is empty.
func NewChatMetadataGenerator(log *logger.Logger, apiKey, model string) ChatMetadataGenerator {
	serviceLog := log.With("service", "ChatMetadataGenerator")
	if strings.TrimSpace(apiKey) == "" {
		serviceLog.Info("ANTHROPIC_API_KEY not set; chats use default titles")
		return staticMetadataGenerator{}
	}
	return &anthropicMetadataGenerator{
		log:    serviceLog,
		client: anthropic.NewClient(option.WithAPIKey(strings.TrimSpace(apiKey))),
		model:  model,
	}
}

func (g *anthropicMetadataGenerator) Generate(ctx context.Context) ChatMetadata {
	msg, err := g.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(g.model),
		MaxTokens: 256,
		System:    []anthropic.TextBlockParam{{Text: chatMetadataSystemPrompt}},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(chatMetadataUserPrompt)),
		},
	})
	if err != nil {
		g.log.Warn("Chat metadata generation failed, using defaults", "error", err)
		return DefaultChatMetadata()
	}
	var text string
	for _, block := range msg.Content {
		if tb, ok := block.AsAny().(anthropic.TextBlock); ok && strings.TrimSpace(tb.Text) != "" {
			text = tb.Text
			break
		}
	}
	md, err := parseChatMetadata(text)
	if err != nil {
		g.log.Warn("Chat metadata response rejected, using defaults", "error", err)
		return DefaultChatMetadata()
	}
	return md
}

func parseChatMetadata(text string) (ChatMetadata, error) {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return ChatMetadata{}, fmt.Errorf("no json object in response")
	}
	var md ChatMetadata
	if err := json.Unmarshal([]byte(text[start:end+1]), &md); err != nil {
		return ChatMetadata{}, err
	}
	md.Title = strings.TrimSpace(md.Title)
	md.Description = strings.TrimSpace(md.Description)
	if !md.valid() {
		return ChatMetadata{}, fmt.Errorf("title or description length out of range")
	}
	return md, nil
}

type staticMetadataGenerator struct{}

func (staticMetadataGenerator) Generate(context.Context) ChatMetadata {
	return DefaultChatMetadata()
}
