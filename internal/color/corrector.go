// Package color builds the photometric correction tables for the LED
// hardware. Show controllers send values that were gamma- and
// brightness-corrected for the physical strips; the reverse tables recover
// the perceptually linear values for redisplay.
package color

import (
	"fmt"
	"math"
)

// Channels per pixel. Everything here is RGB.
const Channels = 3

// CorrectorOptions holds per-channel gamma exponents and peak brightness
// figures. Brightness is in mcd, straight from the LED datasheet.
type CorrectorOptions struct {
	Gamma      [Channels]float64
	Brightness [Channels]float64
}

// WS2812BOptions returns the datasheet figures for WS2812B strips: midpoints
// of the published mcd ranges per channel.
func WS2812BOptions() CorrectorOptions {
	return CorrectorOptions{
		Gamma: [Channels]float64{2.8, 2.8, 2.8},
		Brightness: [Channels]float64{
			(550.0 + 700.0) / 2.0,
			(1100.0 + 1400.0) / 2.0,
			(200.0 + 400.0) / 2.0,
		},
	}
}

// Corrector applies forward (show value -> drive value) and reverse
// (drive value -> show value) correction through 256-entry lookup tables
// built once at construction. Application is O(1) per channel.
type Corrector struct {
	forward [Channels][256]uint8
	reverse [Channels][256]uint8
}

// NewCorrector builds both table sets. Brightness is normalized against the
// dimmest channel so no forward table exceeds full scale.
func NewCorrector(opts CorrectorOptions) (*Corrector, error) {
	minBrightness := opts.Brightness[0]
	for i := 0; i < Channels; i++ {
		if opts.Gamma[i] <= 0 {
			return nil, fmt.Errorf("channel %d: gamma must be positive, got %v", i, opts.Gamma[i])
		}
		if opts.Brightness[i] <= 0 {
			return nil, fmt.Errorf("channel %d: brightness must be positive, got %v", i, opts.Brightness[i])
		}
		if opts.Brightness[i] < minBrightness {
			minBrightness = opts.Brightness[i]
		}
	}

	c := &Corrector{}
	for i := 0; i < Channels; i++ {
		dim := minBrightness / opts.Brightness[i]
		for j := 0; j < 256; j++ {
			v := math.Pow(float64(j)/255.0, opts.Gamma[i]) * 255.0 * dim
			c.forward[i][j] = uint8(math.Ceil(v))
		}

		// Undo the peak brightness scaling, then the gamma. The clamp
		// catches drive values past the channel's full-scale output.
		scale := opts.Brightness[i] / minBrightness
		invGamma := 1.0 / opts.Gamma[i]
		for j := 0; j < 256; j++ {
			normalized := float64(j) / 255.0 * scale
			if normalized > 1 {
				normalized = 1
			}
			c.reverse[i][j] = uint8(math.Ceil(math.Pow(normalized, invGamma) * 255.0))
		}
	}
	return c, nil
}

// Correct rewrites one RGB pixel in place with the forward tables.
func (c *Corrector) Correct(pixel []byte) {
	if len(pixel) < Channels {
		return
	}
	for i := 0; i < Channels; i++ {
		pixel[i] = c.forward[i][pixel[i]]
	}
}

// ReverseCorrect rewrites one RGB pixel in place with the reverse tables.
func (c *Corrector) ReverseCorrect(pixel []byte) {
	if len(pixel) < Channels {
		return
	}
	for i := 0; i < Channels; i++ {
		pixel[i] = c.reverse[i][pixel[i]]
	}
}

// CorrectPixels applies Correct to every 3-byte pixel in buf.
func (c *Corrector) CorrectPixels(buf []byte) {
	for i := 0; i+Channels <= len(buf); i += Channels {
		c.Correct(buf[i : i+Channels])
	}
}

// ReverseCorrectPixels applies ReverseCorrect to every 3-byte pixel in buf.
func (c *Corrector) ReverseCorrectPixels(buf []byte) {
	for i := 0; i+Channels <= len(buf); i += Channels {
		c.ReverseCorrect(buf[i : i+Channels])
	}
}
