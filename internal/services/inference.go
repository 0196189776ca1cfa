package services

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"image"
	"regexp"
	"strings"

	"github.com/disintegration/imaging"

	"github.com/PabloG6/medscan-intellibus/internal/logger"
	"github.com/PabloG6/medscan-intellibus/internal/types"
)

// maxImageEdge bounds the long edge of any image sent for inference or stored on upload.
const maxImageEdge = 2048

var dataURLPattern = regexp.MustCompile(`^data:(.+?);base64,(.+)$`)

type ImageInput struct {
	MediaType string
	Data      []byte
}

type Classification struct {
	Label       string  `json:"label"`
	Confidence  float64 `json:"confidence"`
	Description string  `json:"description"`
}

type BoundingBox struct {
	Label       string    `json:"label"`
	Coordinates []float64 `json:"coordinates"`
	Confidence  float64   `json:"confidence"`
}

type Analysis struct {
	Classification      Classification `json:"classification"`
	BoundingBoxes       []BoundingBox  `json:"bounding_boxes"`
	GeneralObservations string         `json:"general_observations"`
}

// Validate rejects analyses that cannot be rendered into labels.
func (a *Analysis) Validate() error {
	if a == nil {
		return fmt.Errorf("%w: empty analysis", ErrUpstreamInference)
	}
	if strings.TrimSpace(a.Classification.Label) == "" {
		return fmt.Errorf("%w: missing classification label", ErrUpstreamInference)
	}
	for i, box := range a.BoundingBoxes {
		if len(box.Coordinates) != 4 {
			return fmt.Errorf("%w: bounding box %d has %d coordinates", ErrUpstreamInference, i, len(box.Coordinates))
		}
	}
	return nil
}

type InferenceProvider interface {
	Analyze(ctx context.Context, img ImageInput) (*Analysis, error)
}

// ImageLoader turns attachment content into raw image bytes.
type ImageLoader interface {
	Load(ctx context.Context, att types.Attachment) (ImageInput, error)
}

type imageLoader struct {
	log    *logger.Logger
	bucket BucketService
}

// NewImageLoader resolves data URLs, raw base64 and, when bucket is non-nil,
// public URLs of objects in that bucket.
func NewImageLoader(log *logger.Logger, bucket BucketService) ImageLoader {
	return &imageLoader{log: log.With("service", "ImageLoader"), bucket: bucket}
}

func (il *imageLoader) Load(ctx context.Context, att types.Attachment) (ImageInput, error) {
	content := strings.TrimSpace(att.DataURL)
	if content == "" {
		return ImageInput{}, fmt.Errorf("%w: attachment %q has no content", ErrValidation, att.ID)
	}

	var in ImageInput
	switch {
	case strings.HasPrefix(content, "data:"):
		mediaType, data, err := DecodeDataURL(content)
		if err != nil {
			return ImageInput{}, err
		}
		in = ImageInput{MediaType: mediaType, Data: data}
	case strings.HasPrefix(content, "http://") || strings.HasPrefix(content, "https://"):
		if il.bucket == nil {
			return ImageInput{}, ErrStorageUnavailable
		}
		prefix := il.bucket.GetPublicURL("")
		if !strings.HasPrefix(content, prefix) {
			return ImageInput{}, fmt.Errorf("%w: attachment url is not in the configured bucket", ErrValidation)
		}
		data, err := il.bucket.DownloadFile(ctx, strings.TrimPrefix(content, prefix))
		if err != nil {
			return ImageInput{}, err
		}
		in = ImageInput{MediaType: att.MediaType, Data: data}
	default:
		data, err := base64.StdEncoding.DecodeString(content)
		if err != nil {
			return ImageInput{}, fmt.Errorf("%w: attachment content is not base64", ErrValidation)
		}
		in = ImageInput{MediaType: "image/png", Data: data}
	}
	if in.MediaType == "" || in.MediaType == "application/octet-stream" {
		in.MediaType = "image/png"
	}
	return il.normalize(in), nil
}

// normalize downsizes oversized images. Payloads that do not decode are sent as-is.
func (il *imageLoader) normalize(in ImageInput) ImageInput {
	img, err := imaging.Decode(bytes.NewReader(in.Data), imaging.AutoOrientation(true))
	if err != nil {
		il.log.Debug("Image did not decode, forwarding original bytes", "mediaType", in.MediaType, "error", err)
		return in
	}
	b := img.Bounds()
	if b.Dx() <= maxImageEdge && b.Dy() <= maxImageEdge {
		return in
	}
	resized := imaging.Fit(img, maxImageEdge, maxImageEdge, imaging.Lanczos)
	data, mediaType, err := encodeImage(resized, in.MediaType)
	if err != nil {
		il.log.Warn("Failed to re-encode resized image", "error", err)
		return in
	}
	return ImageInput{MediaType: mediaType, Data: data}
}

// DecodeDataURL splits a base64 data URL into media type and bytes.
func DecodeDataURL(s string) (string, []byte, error) {
	m := dataURLPattern.FindStringSubmatch(s)
	if m == nil {
		return "", nil, fmt.Errorf("%w: malformed data url", ErrValidation)
	}
	data, err := base64.StdEncoding.DecodeString(m[2])
	if err != nil {
		return "", nil, fmt.Errorf("%w: data url payload is not base64", ErrValidation)
	}
	return m[1], data, nil
}

func EncodeDataURL(mediaType string, data []byte) string {
	return "data:" + mediaType + ";base64," + base64.StdEncoding.EncodeToString(data)
}

func encodeImage(img image.Image, mediaType string) ([]byte, string, error) {
	var buf bytes.Buffer
	switch mediaType {
	case "image/jpeg", "image/jpg":
		if err := imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(90)); err != nil {
			return nil, "", err
		}
		return buf.Bytes(), "image/jpeg", nil
	default:
		if err := imaging.Encode(&buf, img, imaging.PNG); err != nil {
			return nil, "", err
		}
		return buf.Bytes(), "image/png", nil
	}
}
