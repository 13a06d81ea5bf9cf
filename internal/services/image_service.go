package services

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/disintegration/imaging"
)

// previewSize bounds the longest edge of a generated preview
const previewSize = 512

// ImageService renders thumbnails for scanned image uploads
type ImageService struct{}

func NewImageService() *ImageService {
	return &ImageService{}
}

// Thumbnail decodes an image and returns a preview fitting previewSize,
// encoded in the same format as the source file name.
func (s *ImageService) Thumbnail(ctx context.Context, r io.Reader, filename string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	ext := strings.ToLower(filepath.Ext(filename))
	if ext != ".jpg" && ext != ".jpeg" && ext != ".png" {
		return nil, fmt.Errorf("unsupported image format %q (only JPG/PNG)", ext)
	}

	format, err := imaging.FormatFromFilename(filename)
	if err != nil {
		return nil, err
	}

	img, err := imaging.Decode(r, imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}

	// Fit keeps the aspect ratio; scans are rarely square
	thumb := imaging.Fit(img, previewSize, previewSize, imaging.Lanczos)

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, thumb, format, imaging.JPEGQuality(85)); err != nil {
		return nil, fmt.Errorf("failed to encode preview: %w", err)
	}
	return buf.Bytes(), nil
}
