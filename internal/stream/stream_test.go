package stream

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/PabloG6/medscan-intellibus/internal/types"
)

func collect(msg types.UIMessage) []Event {
	var out []Event
	for ev := range Assemble(msg) {
		out = append(out, ev)
	}
	return out
}

func TestAssembleOrder(t *testing.T) {
	meta := &types.MessageMetadata{Timestamp: "2024-01-01T00:00:00Z"}
	msg := types.UIMessage{
		ID:   "msg1",
		Role: types.RoleAssistant,
		Parts: []types.MessagePart{
			types.TextPart("first"),
			types.TextPart("second"),
			types.FilePart("data:image/png;base64,AA", "image/png", "scan.png"),
		},
		Metadata: meta,
	}

	events := collect(msg)
	want := []struct{ typ, id string }{
		{EventStart, ""},
		{EventTextStart, "text-msg1-0"},
		{EventTextDelta, "text-msg1-0"},
		{EventTextEnd, "text-msg1-0"},
		{EventTextStart, "text-msg1-1"},
		{EventTextDelta, "text-msg1-1"},
		{EventTextEnd, "text-msg1-1"},
		{EventFile, ""},
		{EventFinish, ""},
	}
	if len(events) != len(want) {
		t.Fatalf("got %d events, want %d", len(events), len(want))
	}
	for i, w := range want {
		if events[i].Type != w.typ || events[i].ID != w.id {
			t.Fatalf("event %d = %s/%s, want %s/%s", i, events[i].Type, events[i].ID, w.typ, w.id)
		}
	}
	if events[0].MessageID != "msg1" || events[0].MessageMetadata != meta {
		t.Fatalf("start event = %+v", events[0])
	}
	if events[2].Delta != "first" || events[5].Delta != "second" {
		t.Fatalf("deltas = %q, %q", events[2].Delta, events[5].Delta)
	}
	if events[7].URL != "data:image/png;base64,AA" || events[7].MediaType != "image/png" {
		t.Fatalf("file event = %+v", events[7])
	}
	if events[8].MessageMetadata != meta {
		t.Fatalf("finish metadata differs from start")
	}
}

func TestAssembleTextIDsCountTextPartsOnly(t *testing.T) {
	msg := types.UIMessage{
		ID:   "msg2",
		Role: types.RoleAssistant,
		Parts: []types.MessagePart{
			types.TextPart("summary"),
			types.FilePart("data:image/png;base64,AA", "image/png", "scan.png"),
			types.TextPart("follow-up"),
		},
	}
	var ids []string
	for _, ev := range collect(msg) {
		if ev.Type == EventTextStart {
			ids = append(ids, ev.ID)
		}
	}
	if strings.Join(ids, ",") != "text-msg2-0,text-msg2-1" {
		t.Fatalf("text ids = %v", ids)
	}
}

func TestAssembleEmptyPartsStillFinishes(t *testing.T) {
	events := collect(types.UIMessage{ID: "m", Role: types.RoleAssistant})
	if len(events) != 2 || events[0].Type != EventStart || events[1].Type != EventFinish {
		t.Fatalf("events = %+v", events)
	}
}

func TestAssembleSkipsOtherParts(t *testing.T) {
	msg := types.UIMessage{
		ID:    "m",
		Parts: []types.MessagePart{{Type: types.PartReasoning, Text: "hidden"}, types.TextPart("shown")},
	}
	events := collect(msg)
	if len(events) != 5 {
		t.Fatalf("got %d events, want 5", len(events))
	}
	if events[1].ID != "text-m-0" {
		t.Fatalf("text id = %q", events[1].ID)
	}
	finishes := 0
	for _, ev := range events {
		if ev.Type == EventFinish {
			finishes++
		}
	}
	if finishes != 1 {
		t.Fatalf("finish emitted %d times", finishes)
	}
}

func TestAssembleStopsWhenConsumerStops(t *testing.T) {
	msg := types.UIMessage{ID: "m", Parts: []types.MessagePart{types.TextPart("a")}}
	n := 0
	for range Assemble(msg) {
		n++
		if n == 2 {
			break
		}
	}
	if n != 2 {
		t.Fatalf("consumed %d events", n)
	}
}

func TestWriteSSE(t *testing.T) {
	rec := httptest.NewRecorder()
	SetHeaders(rec)
	msg := types.UIMessage{ID: "m", Parts: []types.MessagePart{types.TextPart("")}}
	if err := WriteSSE(context.Background(), rec, Assemble(msg)); err != nil {
		t.Fatalf("WriteSSE: %v", err)
	}
	if rec.Header().Get("Content-Type") != "text/event-stream" || rec.Header().Get(ProtocolHeader) != "v1" {
		t.Fatalf("headers = %v", rec.Header())
	}
	body := rec.Body.String()
	wantFrames := []string{
		`data: {"type":"start","messageId":"m"}`,
		`data: {"type":"text-start","id":"text-m-0"}`,
		`data: {"type":"text-delta","id":"text-m-0","delta":""}`,
		`data: {"type":"text-end","id":"text-m-0"}`,
		`data: {"type":"finish"}`,
		`data: [DONE]`,
	}
	frames := strings.Split(strings.TrimSpace(body), "\n\n")
	if len(frames) != len(wantFrames) {
		t.Fatalf("got %d frames:\n%s", len(frames), body)
	}
	for i, f := range wantFrames {
		if frames[i] != f {
			t.Fatalf("frame %d = %q, want %q", i, frames[i], f)
		}
	}
}

func TestWriteSSEStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	rec := httptest.NewRecorder()
	if err := WriteSSE(ctx, rec, Assemble(types.UIMessage{ID: "m"})); err == nil {
		t.Fatalf("expected context error")
	}
	if rec.Body.Len() != 0 {
		t.Fatalf("wrote %q after cancel", rec.Body.String())
	}
}
