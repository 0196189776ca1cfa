package types

import (
	"encoding/json"
	"testing"
)

func TestMessagePartKeepsUnknownKinds(t *testing.T) {
	in := `[{"type":"reasoning","text":"thinking","providerMetadata":{"a":1}},{"type":"source-url","sourceId":"s1","url":"https://example.com"}]`
	var parts []MessagePart
	if err := json.Unmarshal([]byte(in), &parts); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if parts[0].Type != PartReasoning || parts[1].URL != "https://example.com" {
		t.Fatalf("unexpected decode: %+v", parts)
	}
	out, err := json.Marshal(parts)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(out) != in {
		t.Fatalf("round trip changed parts:\n got %s\nwant %s", out, in)
	}
}

func TestTextPartAlwaysCarriesText(t *testing.T) {
	out, err := json.Marshal(TextPart(""))
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(out) != `{"type":"text","text":""}` {
		t.Fatalf("got %s", out)
	}
}

func TestFilePartEncoding(t *testing.T) {
	out, err := json.Marshal(FilePart("data:image/png;base64,AAAA", "image/png", "scan.png"))
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	want := `{"type":"file","url":"data:image/png;base64,AAAA","mediaType":"image/png","filename":"scan.png"}`
	if string(out) != want {
		t.Fatalf("got %s, want %s", out, want)
	}
}

func TestMetadataIsEmpty(t *testing.T) {
	var nilMeta *MessageMetadata
	if !nilMeta.IsEmpty() {
		t.Fatalf("nil metadata should be empty")
	}
	if !(&MessageMetadata{}).IsEmpty() {
		t.Fatalf("zero metadata should be empty")
	}
	if (&MessageMetadata{Timestamp: "2024-01-01T00:00:00Z"}).IsEmpty() {
		t.Fatalf("metadata with timestamp should not be empty")
	}
}
