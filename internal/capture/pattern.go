package capture

import (
	"image"
	"sync/atomic"
)

// PatternSource generates a moving test pattern. It stands in for a real
// display on headless hosts and in tests.
type PatternSource struct {
	width, height int
	tick          atomic.Uint64
}

// NewPatternSource creates a pattern source of the given size
func NewPatternSource(width, height int) *PatternSource {
	if width <= 0 {
		width = 800
	}
	if height <= 0 {
		height = 600
	}
	return &PatternSource{width: width, height: height}
}

// Bounds returns the pattern size anchored at the origin
func (p *PatternSource) Bounds() image.Rectangle {
	return image.Rect(0, 0, p.width, p.height)
}

// Capture renders a gradient with a grid and a dot that moves every call
func (p *PatternSource) Capture() (image.Image, error) {
	width, height := p.width, p.height
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	pix := img.Pix
	stride := img.Stride

	for y := 0; y < height; y++ {
		g := uint8(50 + (y * 100 / height))
		off := y * stride
		for x := 0; x < width; x++ {
			i := off + x*4
			pix[i+0] = uint8(50 + (x * 100 / width))
			pix[i+1] = g
			pix[i+2] = 100
			pix[i+3] = 255
		}
	}

	for x := 0; x < width; x += 50 {
		for y := 0; y < height; y++ {
			i := y*stride + x*4
			pix[i], pix[i+1], pix[i+2] = 255, 255, 255
		}
	}
	for y := 0; y < height; y += 50 {
		off := y * stride
		for x := 0; x < width; x++ {
			i := off + x*4
			pix[i], pix[i+1], pix[i+2] = 255, 255, 255
		}
	}

	t := int(p.tick.Add(1) % 120)
	cx := (t * width) / 120
	for dy := -5; dy <= 5; dy++ {
		for dx := -5; dx <= 5; dx++ {
			if dx*dx+dy*dy > 25 {
				continue
			}
			px, py := cx+dx, height/2+dy
			if px >= 0 && px < width && py >= 0 && py < height {
				i := py*stride + px*4
				pix[i], pix[i+1], pix[i+2] = 255, 100, 100
			}
		}
	}

	return img, nil
}
