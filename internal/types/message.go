package types

import (
	"encoding/json"
)

const (
	PartText           = "text"
	PartFile           = "file"
	PartReasoning      = "reasoning"
	PartSourceURL      = "source-url"
	PartSourceDocument = "source-document"
)

// MessagePart is one ordered content segment of a message. Text and file parts
// are decoded into fields; every part keeps its original JSON so kinds this
// server does not interpret round-trip untouched.
type MessagePart struct {
	Type      string
	Text      string
	URL       string
	MediaType string
	Filename  string
	ID        string

	raw json.RawMessage
}

type messagePartFields struct {
	Type      string `json:"type"`
	Text      string `json:"text,omitempty"`
	URL       string `json:"url,omitempty"`
	MediaType string `json:"mediaType,omitempty"`
	Filename  string `json:"filename,omitempty"`
	ID        string `json:"id,omitempty"`
}

func TextPart(text string) MessagePart {
	return MessagePart{Type: PartText, Text: text}
}

func FilePart(url, mediaType, filename string) MessagePart {
	return MessagePart{Type: PartFile, URL: url, MediaType: mediaType, Filename: filename}
}

func (p *MessagePart) UnmarshalJSON(data []byte) error {
	var f messagePartFields
	if err := json.Unmarshal(data, &f); err != nil {
		return err
	}
	p.Type = f.Type
	p.Text = f.Text
	p.URL = f.URL
	p.MediaType = f.MediaType
	p.Filename = f.Filename
	p.ID = f.ID
	p.raw = append(json.RawMessage(nil), data...)
	return nil
}

func (p MessagePart) MarshalJSON() ([]byte, error) {
	if len(p.raw) > 0 {
		return p.raw, nil
	}
	if p.Type == PartText {
		return json.Marshal(struct {
			Type string `json:"type"`
			Text string `json:"text"`
		}{p.Type, p.Text})
	}
	return json.Marshal(messagePartFields{
		Type:      p.Type,
		Text:      p.Text,
		URL:       p.URL,
		MediaType: p.MediaType,
		Filename:  p.Filename,
		ID:        p.ID,
	})
}

// ImageLabel is a point annotation in percentage coordinates (0-100).
type ImageLabel struct {
	ID   string  `json:"id"`
	X    float64 `json:"x"`
	Y    float64 `json:"y"`
	Text string  `json:"text"`
}

type Attachment struct {
	ID        string       `json:"id"`
	MediaType string       `json:"mediaType"`
	DataURL   string       `json:"dataUrl"`
	Filename  string       `json:"filename,omitempty"`
	Alt       string       `json:"alt,omitempty"`
	Labels    []ImageLabel `json:"labels,omitempty"`
}

type ImageOverlay struct {
	Alt      string       `json:"alt,omitempty"`
	Labels   []ImageLabel `json:"labels"`
	Editable bool         `json:"editable"`
}

// MessageMetadata holds the known optional metadata fields of a message.
type MessageMetadata struct {
	Timestamp   string        `json:"timestamp,omitempty"`
	Image       *ImageOverlay `json:"image,omitempty"`
	TotalTokens *int          `json:"totalTokens,omitempty"`
	Attachments []Attachment  `json:"attachments,omitempty"`
}

func (m *MessageMetadata) IsEmpty() bool {
	return m == nil || (m.Timestamp == "" && m.Image == nil && m.TotalTokens == nil && len(m.Attachments) == 0)
}

// UIMessage is the wire representation exchanged with clients.
type UIMessage struct {
	ID       string           `json:"id"`
	Role     string           `json:"role"`
	Parts    []MessagePart    `json:"parts"`
	Metadata *MessageMetadata `json:"metadata,omitempty"`
}

// Attachments returns the attachments a wire message advertises in its metadata.
func (m UIMessage) Attachments() []Attachment {
	if m.Metadata == nil {
		return nil
	}
	return m.Metadata.Attachments
}
