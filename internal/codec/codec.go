// Package codec turns captured frames into JPEG buffers that fit a single
// UDP datagram budget, and turns received buffers back into images.
package codec

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	"image/jpeg"

	"golang.org/x/image/draw"
)

const (
	// MaxUDPPayload is the size an encoded frame should stay under
	MaxUDPPayload = 60000
	// MinWidth is the floor for the downscale loop
	MinWidth = 200
	// DownscaleFactor shrinks the width on every downscale iteration
	DownscaleFactor = 0.9
	// DefaultQuality is the JPEG quality used when none is configured
	DefaultQuality = 50
	// DefaultWidth is the capture width frames are resized to before encoding
	DefaultWidth = 640
)

// ErrCorrupt is returned when a buffer cannot be decoded as a JPEG,
// neither directly nor through the legacy base64 wrapping.
var ErrCorrupt = errors.New("codec: corrupt frame")

// Frame is one captured image tick together with its sender-assigned id.
type Frame struct {
	ID    uint32
	Image image.Image
}

// Encoder encodes images to JPEG and shrinks them until they fit MaxBytes.
type Encoder struct {
	// Quality is the JPEG quality, 0-100
	Quality int
	// Width is the target width frames are resized to; 0 keeps the source width
	Width int
	// MaxBytes is the payload budget; 0 means MaxUDPPayload
	MaxBytes int
}

// NewEncoder creates an encoder with the given quality and target width.
// Quality 0 is the lowest valid setting; a negative quality selects
// DefaultQuality and anything above 100 is clamped.
func NewEncoder(quality, width int) *Encoder {
	switch {
	case quality < 0:
		quality = DefaultQuality
	case quality > 100:
		quality = 100
	}
	return &Encoder{
		Quality:  quality,
		Width:    width,
		MaxBytes: MaxUDPPayload,
	}
}

// Encode resizes img to the configured width and JPEG-encodes it. If the
// result is larger than the payload budget the width is reduced by 10% per
// iteration (floor MinWidth) and re-encoded. When the floor is reached the
// last buffer is returned even if it is still over budget.
func (e *Encoder) Encode(img image.Image) ([]byte, error) {
	if img == nil || img.Bounds().Empty() {
		return nil, fmt.Errorf("codec: empty image")
	}

	if e.Width > 0 && img.Bounds().Dx() > e.Width {
		img = ResizeToWidth(img, e.Width)
	}

	data, err := encodeJPEG(img, e.Quality)
	if err != nil {
		return nil, err
	}

	if len(data) <= e.maxBytes() {
		return data, nil
	}
	return e.downscaleToFit(img, data)
}

func (e *Encoder) maxBytes() int {
	if e.MaxBytes <= 0 {
		return MaxUDPPayload
	}
	return e.MaxBytes
}

// downscaleToFit keeps shrinking src until the encoding fits or MinWidth is hit
func (e *Encoder) downscaleToFit(src image.Image, best []byte) ([]byte, error) {
	curW := src.Bounds().Dx()
	for curW > MinWidth {
		curW = int(float64(curW) * DownscaleFactor)
		if curW < MinWidth {
			curW = MinWidth
		}

		data, err := encodeJPEG(ResizeToWidth(src, curW), e.Quality)
		if err != nil {
			break
		}
		best = data
		if len(data) <= e.maxBytes() {
			break
		}
	}
	return best, nil
}

// ResizeToWidth scales src to the given width keeping the aspect ratio
func ResizeToWidth(src image.Image, width int) image.Image {
	b := src.Bounds()
	if width <= 0 || b.Dx() == width {
		return src
	}
	height := int(float64(b.Dy())*float64(width)/float64(b.Dx()) + 0.5)
	if height < 1 {
		height = 1
	}
	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.ApproxBiLinear.Scale(dst, dst.Bounds(), src, b, draw.Src, nil)
	return dst
}

func encodeJPEG(img image.Image, quality int) ([]byte, error) {
	var buf bytes.Buffer
	b := img.Bounds()
	buf.Grow(b.Dx() * b.Dy() / 4)
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
		return nil, fmt.Errorf("jpeg encode failed: %w", err)
	}
	return buf.Bytes(), nil
}

// Decode decodes a JPEG buffer. Buffers from legacy producers carry the JPEG
// base64-encoded, so a failed direct decode is retried after base64 decoding.
func Decode(data []byte) (image.Image, error) {
	if len(data) == 0 {
		return nil, ErrCorrupt
	}

	img, err := jpeg.Decode(bytes.NewReader(data))
	if err == nil {
		return img, nil
	}

	raw, b64err := base64.StdEncoding.DecodeString(string(bytes.TrimSpace(data)))
	if b64err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	img, err = jpeg.Decode(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	return img, nil
}
