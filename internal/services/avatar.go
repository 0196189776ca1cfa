package services

import (
	"bytes"
	"context"
	"fmt"
	"image/color"
	"math/rand"

	"github.com/fogleman/gg"
	"github.com/golang/freetype/truetype"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/gobold"

	"github.com/PabloG6/medscan-intellibus/internal/logger"
	"github.com/PabloG6/medscan-intellibus/internal/types"
	"github.com/PabloG6/medscan-intellibus/internal/utils"
)

const avatarSize = 512

var avatarColors = []color.NRGBA{
	{R: 0x1f, G: 0x6f, B: 0x8b, A: 0xff},
	{R: 0x2e, G: 0x86, B: 0x6b, A: 0xff},
	{R: 0x5b, G: 0x4b, B: 0x8a, A: 0xff},
	{R: 0xb0, G: 0x4a, B: 0x3c, A: 0xff},
	{R: 0x3d, G: 0x5a, B: 0x80, A: 0xff},
	{R: 0x8c, G: 0x6d, B: 0x2f, A: 0xff},
}

type AvatarService interface {
	CreateAndUploadUserAvatar(ctx context.Context, user *types.User) error
	GenerateUserAvatar(ctx context.Context, user *types.User) (bytes.Buffer, error)
}

type avatarService struct {
	log           *logger.Logger
	bucketService BucketService
	fontFace      font.Face
}

// NewAvatarService renders initials avatars with the embedded Go Bold face.
// bucketService may be nil, in which case avatars are generated but not stored.
func NewAvatarService(log *logger.Logger, bucketService BucketService) (AvatarService, error) {
	serviceLog := log.With("service", "AvatarService")
	face, err := loadFontFace(gobold.TTF, 206)
	if err != nil {
		return nil, fmt.Errorf("could not load avatar font: %w", err)
	}
	return &avatarService{
		log:           serviceLog,
		bucketService: bucketService,
		fontFace:      face,
	}, nil
}

func (as *avatarService) CreateAndUploadUserAvatar(ctx context.Context, user *types.User) error {
	if as.bucketService == nil {
		return ErrStorageUnavailable
	}
	buf, err := as.GenerateUserAvatar(ctx, user)
	if err != nil {
		return err
	}
	bucketKey := fmt.Sprintf("user_avatars/%s.png", user.ID.String())
	if err := as.bucketService.UploadFile(ctx, bucketKey, "image/png", bytes.NewReader(buf.Bytes())); err != nil {
		return fmt.Errorf("failed to upload user avatar: %w", err)
	}
	user.AvatarBucketKey = bucketKey
	user.AvatarURL = as.bucketService.GetPublicURL(bucketKey)
	return nil
}

func (as *avatarService) GenerateUserAvatar(ctx context.Context, user *types.User) (bytes.Buffer, error) {
	// 1) Drawing context with a circular mask
	dc := gg.NewContext(avatarSize, avatarSize)
	dc.DrawCircle(float64(avatarSize)/2, float64(avatarSize)/2, float64(avatarSize)/2)
	dc.Clip()

	// 2) Solid background
	dc.SetColor(avatarColors[rand.Intn(len(avatarColors))])
	dc.DrawRectangle(0, 0, float64(avatarSize), float64(avatarSize))
	dc.Fill()

	// 3) Centered initials
	initials := utils.Initials(user.FirstName, user.LastName)
	dc.SetFontFace(as.fontFace)
	dc.SetColor(color.White)
	dc.DrawStringAnchored(initials, float64(avatarSize)/2, float64(avatarSize)/2, 0.5, 0.35)

	var buf bytes.Buffer
	if err := dc.EncodePNG(&buf); err != nil {
		return buf, fmt.Errorf("failed to encode PNG: %w", err)
	}
	return buf, nil
}

func loadFontFace(ttf []byte, size float64) (font.Face, error) {
	parsedFont, err := truetype.Parse(ttf)
	if err != nil {
		return nil, fmt.Errorf("failed to parse TTF: %w", err)
	}
	return truetype.NewFace(parsedFont, &truetype.Options{
		Size:    size,
		DPI:     72,
		Hinting: font.HintingNone,
	}), nil
}
