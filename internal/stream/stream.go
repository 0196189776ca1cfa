// Package stream turns a finished assistant message into the UI message stream
// protocol: start, text-start/text-delta/text-end per text part, file per file
// part, then a single finish.
package stream

import (
	"encoding/json"
	"fmt"
	"iter"

	"github.com/PabloG6/medscan-intellibus/internal/types"
)

const (
	EventStart     = "start"
	EventTextStart = "text-start"
	EventTextDelta = "text-delta"
	EventTextEnd   = "text-end"
	EventFile      = "file"
	EventFinish    = "finish"
)

type Event struct {
	Type            string
	ID              string
	Delta           string
	MessageID       string
	MessageMetadata *types.MessageMetadata
	URL             string
	MediaType       string
}

func (e Event) MarshalJSON() ([]byte, error) {
	switch e.Type {
	case EventStart:
		return json.Marshal(struct {
			Type            string                 `json:"type"`
			MessageID       string                 `json:"messageId"`
			MessageMetadata *types.MessageMetadata `json:"messageMetadata,omitempty"`
		}{e.Type, e.MessageID, e.MessageMetadata})
	case EventTextStart, EventTextEnd:
		return json.Marshal(struct {
			Type string `json:"type"`
			ID   string `json:"id"`
		}{e.Type, e.ID})
	case EventTextDelta:
		return json.Marshal(struct {
			Type  string `json:"type"`
			ID    string `json:"id"`
			Delta string `json:"delta"`
		}{e.Type, e.ID, e.Delta})
	case EventFile:
		return json.Marshal(struct {
			Type      string `json:"type"`
			URL       string `json:"url"`
			MediaType string `json:"mediaType"`
		}{e.Type, e.URL, e.MediaType})
	case EventFinish:
		return json.Marshal(struct {
			Type            string                 `json:"type"`
			MessageMetadata *types.MessageMetadata `json:"messageMetadata,omitempty"`
		}{e.Type, e.MessageMetadata})
	default:
		return nil, fmt.Errorf("unknown stream event type %q", e.Type)
	}
}

// Assemble yields the event sequence for msg lazily. Text part ids are
// text-{messageId}-{n} where n counts text parts from zero, skipping file and
// other parts, so text, file, text yields ids 0 and 1. Part kinds other
// than text and file produce no events. finish is always the last event and
// is emitted exactly once, unless the consumer stops early.
func Assemble(msg types.UIMessage) iter.Seq[Event] {
	return func(yield func(Event) bool) {
		if !yield(Event{Type: EventStart, MessageID: msg.ID, MessageMetadata: msg.Metadata}) {
			return
		}
		textIndex := 0
		for _, part := range msg.Parts {
			switch part.Type {
			case types.PartText:
				id := fmt.Sprintf("text-%s-%d", msg.ID, textIndex)
				textIndex++
				if !yield(Event{Type: EventTextStart, ID: id}) {
					return
				}
				if !yield(Event{Type: EventTextDelta, ID: id, Delta: part.Text}) {
					return
				}
				if !yield(Event{Type: EventTextEnd, ID: id}) {
					return
				}
			case types.PartFile:
				if !yield(Event{Type: EventFile, URL: part.URL, MediaType: part.MediaType}) {
					return
				}
			}
		}
		yield(Event{Type: EventFinish, MessageMetadata: msg.Metadata})
	}
}
