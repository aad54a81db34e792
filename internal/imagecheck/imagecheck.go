// Package imagecheck validates uploaded image bytes before they are staged.
package imagecheck

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	_ "golang.org/x/image/webp"
)

const maxDimension = 8192

var (
	ErrEmpty       = errors.New("no image data")
	ErrTooLarge    = errors.New("image is too large")
	ErrUnsupported = errors.New("unsupported image type")
	ErrCorrupt     = errors.New("image could not be decoded")
)

var allowed = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/gif":  ".gif",
	"image/webp": ".webp",
}

type Checker struct {
	MaxBytes int64
}

func New(maxBytes int64) *Checker {
	return &Checker{MaxBytes: maxBytes}
}

// Check verifies data is a supported, decodable image and returns the file
// extension to store it under.
func (c *Checker) Check(data []byte) (string, error) {
	if len(data) == 0 {
		return "", ErrEmpty
	}
	if c.MaxBytes > 0 && int64(len(data)) > c.MaxBytes {
		return "", ErrTooLarge
	}
	mime := mimetype.Detect(data)
	ext := ""
	for candidate := mime; candidate != nil; candidate = candidate.Parent() {
		if value, ok := allowed[candidate.String()]; ok {
			ext = value
			break
		}
	}
	if ext == "" {
		return "", fmt.Errorf("%w: %s", ErrUnsupported, mime.String())
	}
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	if cfg.Width < 1 || cfg.Height < 1 || cfg.Width > maxDimension || cfg.Height > maxDimension {
		return "", fmt.Errorf("%w: %dx%d", ErrCorrupt, cfg.Width, cfg.Height)
	}
	return ext, nil
}

// DecodeDataURL accepts either a `data:image/...;base64,` URL or bare base64.
func DecodeDataURL(data string) ([]byte, error) {
	data = strings.TrimSpace(data)
	if data == "" {
		return nil, ErrEmpty
	}
	parts := strings.SplitN(data, ",", 2)
	if len(parts) == 2 {
		data = parts[1]
	}
	decoded, err := base64.StdEncoding.DecodeString(data)
	if err != nil {
		return nil, err
	}
	return decoded, nil
}

// EncodeDataURL is the inverse of DecodeDataURL for PNG bytes.
func EncodeDataURL(image []byte) string {
	if len(image) == 0 {
		return ""
	}
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(image)
}
