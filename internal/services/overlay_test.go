package services

import (
	"bytes"
	"errors"
	"testing"

	"github.com/disintegration/imaging"

	"github.com/PabloG6/medscan-intellibus/internal/logger"
	"github.com/PabloG6/medscan-intellibus/internal/types"
)

func TestRenderOverlay(t *testing.T) {
	f := newChatFixture(t)
	ctx := asUser(f.owner)
	dataURL := EncodeDataURL("image/png", testPNG(t, 200, 100))
	msg := types.UIMessage{
		ID:    "m1",
		Role:  types.RoleUser,
		Parts: []types.MessagePart{types.FilePart(dataURL, "image/png", "scan.png")},
	}
	res, err := f.svc.SubmitTurn(ctx, "", []types.UIMessage{msg}, "")
	if err != nil {
		t.Fatalf("SubmitTurn: %v", err)
	}

	overlay, err := NewOverlayService(logger.Nop(), f.svc, NewImageLoader(logger.Nop(), nil))
	if err != nil {
		t.Fatalf("NewOverlayService: %v", err)
	}
	out, err := overlay.RenderOverlay(ctx, res.Chat.ID, res.Reply.ID, 0)
	if err != nil {
		t.Fatalf("RenderOverlay: %v", err)
	}
	img, err := imaging.Decode(bytes.NewReader(out))
	if err != nil {
		t.Fatalf("overlay is not a png: %v", err)
	}
	if img.Bounds().Dx() != 200 || img.Bounds().Dy() != 100 {
		t.Fatalf("overlay size = %v, want 200x100", img.Bounds().Size())
	}
	// The label centre sits at (20%, 30%) of the image and must be painted.
	r, g, b, _ := img.At(40, 30).RGBA()
	if r>>8 < 0xf0 || g>>8 > 0x60 || b>>8 > 0x60 {
		t.Fatalf("expected marker colour at label centre, got %d,%d,%d", r>>8, g>>8, b>>8)
	}

	if _, err := overlay.RenderOverlay(ctx, res.Chat.ID, res.Reply.ID, 3); !errors.Is(err, ErrValidation) {
		t.Fatalf("out of range index error = %v, want ErrValidation", err)
	}
	if _, err := overlay.RenderOverlay(asUser(f.other), res.Chat.ID, res.Reply.ID, 0); !errors.Is(err, ErrChatNotFound) {
		t.Fatalf("foreign overlay error = %v, want ErrChatNotFound", err)
	}
}
