package stream

import (
	"context"
	"encoding/json"
	"fmt"
	"iter"
	"net/http"
)

// ProtocolHeader marks a response body as a UI message stream.
const ProtocolHeader = "x-vercel-ai-ui-message-stream"

// SetHeaders prepares w for an event stream. It must run before the first write.
func SetHeaders(w http.ResponseWriter) {
	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	h.Set(ProtocolHeader, "v1")
}

// WriteSSE writes each event as a `data:` frame, flushing after every frame,
// then the [DONE] terminator. It stops early when ctx is cancelled.
func WriteSSE(ctx context.Context, w http.ResponseWriter, events iter.Seq[Event]) error {
	flusher, _ := w.(http.Flusher)
	for ev := range events {
		if err := ctx.Err(); err != nil {
			return err
		}
		data, err := json.Marshal(ev)
		if err != nil {
			return fmt.Errorf("encode %s event: %w", ev.Type, err)
		}
		if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
			return err
		}
		if flusher != nil {
			flusher.Flush()
		}
	}
	if _, err := fmt.Fprint(w, "data: [DONE]\n\n"); err != nil {
		return err
	}
	if flusher != nil {
		flusher.Flush()
	}
	return nil
}
