package services

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/google/uuid"

	"github.com/PabloG6/medscan-intellibus/internal/logger"
	"github.com/PabloG6/medscan-intellibus/internal/requestdata"
	"github.com/PabloG6/medscan-intellibus/internal/types"
)

type UploadService interface {
	UploadAttachment(ctx context.Context, filename string, r io.Reader) (*types.Attachment, error)
}

type uploadService struct {
	log           *logger.Logger
	bucketService BucketService
	maxBytes      int64
}

// NewUploadService stores uploads in bucketService, or returns them inline as
// data URLs when bucketService is nil.
func NewUploadService(log *logger.Logger, bucketService BucketService, maxBytes int64) UploadService {
	return &uploadService{
		log:           log.With("service", "UploadService"),
		bucketService: bucketService,
		maxBytes:      maxBytes,
	}
}

func (us *uploadService) UploadAttachment(ctx context.Context, filename string, r io.Reader) (*types.Attachment, error) {
	userID := requestdata.UserID(ctx)
	if userID == uuid.Nil {
		return nil, ErrUnauthorized
	}
	raw, err := io.ReadAll(io.LimitReader(r, us.maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read upload: %w", err)
	}
	if int64(len(raw)) > us.maxBytes {
		return nil, fmt.Errorf("%w: upload exceeds %d bytes", ErrValidation, us.maxBytes)
	}
	if len(raw) == 0 {
		return nil, fmt.Errorf("%w: empty upload", ErrValidation)
	}

	img, err := imaging.Decode(bytes.NewReader(raw), imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("%w: upload is not a supported image", ErrValidation)
	}
	img = imaging.Fit(img, maxImageEdge, maxImageEdge, imaging.Lanczos)
	data, mediaType, err := encodeImage(img, mediaTypeFromFilename(filename))
	if err != nil {
		return nil, fmt.Errorf("failed to encode upload: %w", err)
	}

	att := &types.Attachment{
		ID:        uuid.NewString(),
		MediaType: mediaType,
		Filename:  path.Base(filename),
		Alt:       path.Base(filename),
	}
	if us.bucketService == nil {
		att.DataURL = EncodeDataURL(mediaType, data)
		return att, nil
	}
	key := fmt.Sprintf("attachments/%s/%s.%s", userID, att.ID, extensionFor(mediaType))
	if err := us.bucketService.UploadFile(ctx, key, mediaType, bytes.NewReader(data)); err != nil {
		return nil, fmt.Errorf("failed to store upload: %w", err)
	}
	att.DataURL = us.bucketService.GetPublicURL(key)
	us.log.Info("Stored attachment", "key", key, "bytes", len(data))
	return att, nil
}

func mediaTypeFromFilename(filename string) string {
	switch strings.ToLower(path.Ext(filename)) {
	case ".jpg", ".jpeg":
		return "image/jpeg"
	default:
		return "image/png"
	}
}

func extensionFor(mediaType string) string {
	if mediaType == "image/jpeg" {
		return "jpg"
	}
	return "png"
}
