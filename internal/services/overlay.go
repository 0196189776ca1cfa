package services

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"math"

	"github.com/disintegration/imaging"
	"github.com/fogleman/gg"
	"github.com/golang/freetype/truetype"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/goregular"

	"github.com/PabloG6/medscan-intellibus/internal/logger"
	"github.com/PabloG6/medscan-intellibus/internal/types"
)

var (
	markerColor  = color.NRGBA{R: 0xff, G: 0x4d, B: 0x4f, A: 0xff}
	captionColor = color.NRGBA{R: 0x00, G: 0x00, B: 0x00, A: 0xb0}
)

// OverlayService renders an attachment's point labels onto the image.
type OverlayService interface {
	RenderOverlay(ctx context.Context, chatID, messageID string, attachmentIndex int) ([]byte, error)
}

type overlayService struct {
	log         *logger.Logger
	chatService ChatService
	imageLoader ImageLoader
	font        *truetype.Font
}

func NewOverlayService(log *logger.Logger, chatService ChatService, imageLoader ImageLoader) (OverlayService, error) {
	parsed, err := truetype.Parse(goregular.TTF)
	if err != nil {
		return nil, fmt.Errorf("failed to parse overlay font: %w", err)
	}
	return &overlayService{
		log:         log.With("service", "OverlayService"),
		chatService: chatService,
		imageLoader: imageLoader,
		font:        parsed,
	}, nil
}

func (ovs *overlayService) RenderOverlay(ctx context.Context, chatID, messageID string, attachmentIndex int) ([]byte, error) {
	msg, err := ovs.chatService.GetMessage(ctx, chatID, messageID)
	if err != nil {
		return nil, err
	}
	attachments := msg.Attachments()
	if attachmentIndex < 0 || attachmentIndex >= len(attachments) {
		return nil, fmt.Errorf("%w: attachment index %d out of range", ErrValidation, attachmentIndex)
	}
	att := attachments[attachmentIndex]
	labels := att.Labels
	if len(labels) == 0 && attachmentIndex == 0 && msg.Metadata.Image != nil {
		labels = msg.Metadata.Image.Labels
	}

	in, err := ovs.imageLoader.Load(ctx, att)
	if err != nil {
		return nil, err
	}
	img, err := imaging.Decode(bytes.NewReader(in.Data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("%w: attachment is not a decodable image", ErrValidation)
	}
	return ovs.draw(img, labels)
}

func (ovs *overlayService) draw(img image.Image, labels []types.ImageLabel) ([]byte, error) {
	w := img.Bounds().Dx()
	h := img.Bounds().Dy()
	dc := gg.NewContextForImage(img)

	short := math.Min(float64(w), float64(h))
	radius := math.Max(4, short*0.012)
	fontSize := math.Max(10, short*0.028)
	face := truetype.NewFace(ovs.font, &truetype.Options{Size: fontSize, DPI: 72, Hinting: font.HintingNone})
	defer face.Close()
	dc.SetFontFace(face)

	for _, l := range labels {
		x := clampPercentage(l.X) / 100 * float64(w)
		y := clampPercentage(l.Y) / 100 * float64(h)

		dc.SetColor(markerColor)
		dc.DrawCircle(x, y, radius)
		dc.Fill()
		dc.SetColor(color.White)
		dc.SetLineWidth(math.Max(1, radius/3))
		dc.DrawCircle(x, y, radius)
		dc.Stroke()

		if l.Text == "" {
			continue
		}
		tw, th := dc.MeasureString(l.Text)
		pad := fontSize * 0.3
		tx := math.Min(x+radius+pad, float64(w)-tw-2*pad)
		tx = math.Max(0, tx)
		ty := math.Max(th+2*pad, y)
		dc.SetColor(captionColor)
		dc.DrawRectangle(tx, ty-th-2*pad, tw+2*pad, th+2*pad)
		dc.Fill()
		dc.SetColor(color.White)
		dc.DrawString(l.Text, tx+pad, ty-pad)
	}

	var buf bytes.Buffer
	if err := dc.EncodePNG(&buf); err != nil {
		return nil, fmt.Errorf("failed to encode PNG: %w", err)
	}
	return buf.Bytes(), nil
}
