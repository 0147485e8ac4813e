// Package qr renders connection strings as PNG QR codes.
package qr

import (
	"github.com/cockroachdb/errors"
	qrcode "github.com/skip2/go-qrcode"
)

// DefaultSize is the image side in pixels.
const DefaultSize = 512

// Renderer encodes text as a PNG image.
type Renderer struct {
	Size  int
	Level qrcode.RecoveryLevel
}

// New returns a renderer with medium error correction.
func New() Renderer {
	return Renderer{Size: DefaultSize, Level: qrcode.Medium}
}

// PNG encodes content. Empty content is an error.
func (r Renderer) PNG(content string) ([]byte, error) {
	if content == "" {
		return nil, errors.New("qr: empty content")
	}
	size := r.Size
	if size <= 0 {
		size = DefaultSize
	}
	png, err := qrcode.Encode(content, r.Level, size)
	if err != nil {
		return nil, errors.Wrap(err, "qr: encode")
	}
	return png, nil
}
