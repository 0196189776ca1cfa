// Package transform maps chat messages between their stored rows and the wire
// format clients send and receive.
package transform

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"github.com/PabloG6/medscan-intellibus/internal/types"
)

const (
	defaultMediaType = "application/octet-stream"
	defaultAlt       = "Attachment"
)

// ToWire converts a stored row into its wire form. Stored attachments and a
// timestamp are folded into metadata. An explicit stored timestamp wins over
// the row's creation time.
func ToWire(msg *types.ChatMessage) types.UIMessage {
	parts := msg.Parts.Data()
	if parts == nil {
		parts = []types.MessagePart{}
	}
	out := types.UIMessage{
		ID:    msg.ID,
		Role:  msg.Role,
		Parts: parts,
	}

	var merged types.MessageMetadata
	if stored := msg.Metadata.Data(); stored != nil {
		merged = *stored
	}
	if atts := msg.Attachments.Data(); len(atts) > 0 {
		merged.Attachments = cloneAttachments(atts)
	} else {
		merged.Attachments = nil
	}
	if merged.Timestamp == "" && !msg.CreatedAt.IsZero() {
		merged.Timestamp = msg.CreatedAt.UTC().Format(time.RFC3339Nano)
	}
	if !merged.IsEmpty() {
		out.Metadata = &merged
	}
	return out
}

// ToWireAll converts a transcript in order.
func ToWireAll(msgs []*types.ChatMessage) []types.UIMessage {
	out := make([]types.UIMessage, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, ToWire(m))
	}
	return out
}

// ToStoreInsertParams builds the row to insert for a wire message in chat.
func ToStoreInsertParams(msg types.UIMessage, chat *types.Chat, now time.Time) *types.ChatMessage {
	parts := msg.Parts
	if parts == nil {
		parts = []types.MessagePart{}
	}
	var metadata *types.MessageMetadata
	if msg.Metadata != nil {
		copied := *msg.Metadata
		metadata = &copied
	}
	return &types.ChatMessage{
		ChatID:      chat.ID,
		ID:          msg.ID,
		Role:        msg.Role,
		Parts:       datatypes.NewJSONType(parts),
		Attachments: datatypes.NewJSONType(ExtractAttachments(msg)),
		Metadata:    datatypes.NewJSONType(metadata),
		CreatedAt:   createdAt(msg.Metadata, now),
	}
}

// ExtractAttachments collects attachments from file parts first, then appends
// metadata-listed attachments whose id was not already seen. The first
// occurrence of an id wins.
func ExtractAttachments(msg types.UIMessage) []types.Attachment {
	attachments := []types.Attachment{}
	seen := map[string]bool{}

	var image *types.ImageOverlay
	knownByURL := map[string]string{}
	knownByID := map[string]types.Attachment{}
	if msg.Metadata != nil {
		image = msg.Metadata.Image
		for _, meta := range msg.Metadata.Attachments {
			if _, ok := knownByURL[meta.DataURL]; !ok && meta.DataURL != "" {
				knownByURL[meta.DataURL] = meta.ID
			}
			if _, ok := knownByID[meta.ID]; !ok && meta.ID != "" {
				knownByID[meta.ID] = meta
			}
		}
	}

	for _, part := range msg.Parts {
		if part.Type != types.PartFile || part.URL == "" {
			continue
		}
		att := types.Attachment{
			ID:        part.ID,
			MediaType: part.MediaType,
			DataURL:   part.URL,
			Filename:  part.Filename,
		}
		// A file part without an id adopts the id of the metadata attachment
		// with the same content, so repeated conversions keep stable ids.
		if att.ID == "" {
			att.ID = knownByURL[part.URL]
		}
		if att.ID == "" {
			att.ID = uuid.NewString()
		}
		if att.MediaType == "" {
			att.MediaType = defaultMediaType
		}
		// A matching metadata attachment describes this image specifically.
		// metadata.image only applies to parts without one.
		meta, described := knownByID[att.ID]
		switch {
		case described && meta.Alt != "":
			att.Alt = meta.Alt
		case image != nil && image.Alt != "":
			att.Alt = image.Alt
		case part.Filename != "":
			att.Alt = part.Filename
		default:
			att.Alt = defaultAlt
		}
		switch {
		case described:
			att.Labels = cloneLabels(meta.Labels)
		case image != nil:
			att.Labels = cloneLabels(image.Labels)
		}
		if seen[att.ID] {
			continue
		}
		seen[att.ID] = true
		attachments = append(attachments, att)
	}

	if msg.Metadata != nil {
		for _, meta := range msg.Metadata.Attachments {
			if seen[meta.ID] {
				continue
			}
			seen[meta.ID] = true
			meta.Labels = cloneLabels(meta.Labels)
			attachments = append(attachments, meta)
		}
	}
	return attachments
}

func createdAt(md *types.MessageMetadata, now time.Time) time.Time {
	if md != nil && md.Timestamp != "" {
		if ts, err := time.Parse(time.RFC3339Nano, md.Timestamp); err == nil {
			return ts.UTC()
		}
	}
	return now.UTC()
}

func cloneAttachments(in []types.Attachment) []types.Attachment {
	out := make([]types.Attachment, len(in))
	for i, a := range in {
		a.Labels = cloneLabels(a.Labels)
		out[i] = a
	}
	return out
}

func cloneLabels(in []types.ImageLabel) []types.ImageLabel {
	if in == nil {
		return nil
	}
	return append([]types.ImageLabel(nil), in...)
}
