package utils

import (
	"bytes"
	"errors"
	"image"
	"image/jpeg"
	"image/png"
	"io"
	"path/filepath"
	"strings"

	"github.com/nfnt/resize"
)

const (
	ThumbnailMaxWidth  = 320
	ThumbnailMaxHeight = 320
)

// Thumbnail decodes an uploaded image and returns a bounded JPEG/PNG
// thumbnail suitable for conversation previews.
func Thumbnail(r io.Reader, filename string) ([]byte, error) {
	img, err := decodeImage(r, filename)
	if err != nil {
		return nil, err
	}

	thumb := resize.Thumbnail(ThumbnailMaxWidth, ThumbnailMaxHeight, img, resize.Lanczos3)

	var buf bytes.Buffer
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".png":
		err = png.Encode(&buf, thumb)
	default:
		err = jpeg.Encode(&buf, thumb, &jpeg.Options{Quality: 80})
	}
	if err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}

func decodeImage(r io.Reader, filename string) (image.Image, error) {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".jpg", ".jpeg":
		return jpeg.Decode(r)
	case ".png":
		return png.Decode(r)
	default:
		img, _, err := image.Decode(r)
		if err != nil {
			return nil, errors.New("unsupported image format")
		}
		return img, nil
	}
}

func IsImageFilename(filename string) bool {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".jpg", ".jpeg", ".png", ".gif", ".webp":
		return true
	}
	return false
}
