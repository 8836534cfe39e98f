// Package patterns draws animated test content into a raster. Patterns are
// deterministic in the frame number so a run can be reproduced.
package patterns

import (
	"fmt"
	"sort"

	"lumacube.art/internal/color"
	"lumacube.art/internal/pixel"
)

// Pattern renders one animation frame into the raster.
type Pattern interface {
	Name() string
	Render(r *pixel.Raster, frame int)
}

// Solid fills the volume with one color. The classic burn-in test is full
// white, which is also the worst case for the power supplies.
type Solid struct {
	R, G, B uint8
}

func (s Solid) Name() string { return "solid" }

func (s Solid) Render(r *pixel.Raster, frame int) {
	for i := 0; i+3 <= len(r.Data); i += 3 {
		r.Data[i] = s.R
		r.Data[i+1] = s.G
		r.Data[i+2] = s.B
	}
}

// Rainbow sweeps a diagonal hue gradient through the volume.
type Rainbow struct{}

func (Rainbow) Name() string { return "rainbow" }

func (Rainbow) Render(r *pixel.Raster, frame int) {
	span := r.Width + r.Height + r.Length
	if span == 0 {
		return
	}
	for z := 0; z < r.Length; z++ {
		for y := 0; y < r.Height; y++ {
			for x := 0; x < r.Width; x++ {
				hue := uint8(((x + y + z) * 255 / span) + frame)
				red, green, blue := color.HSVToRGB(hue, 255, 255)
				r.SetPix(x, y, z, red, green, blue)
			}
		}
	}
}

// Plane sweeps a single lit Z layer back and forth, the standard check that
// universe-to-layer routing is wired in the right order.
type Plane struct {
	R, G, B uint8
}

func (Plane) Name() string { return "plane" }

func (p Plane) Render(r *pixel.Raster, frame int) {
	r.Clear()
	if r.Length == 0 {
		return
	}
	period := 2 * (r.Length - 1)
	z := 0
	if period > 0 {
		z = frame % period
		if z >= r.Length {
			z = period - z
		}
	}
	red, green, blue := p.R, p.G, p.B
	if red == 0 && green == 0 && blue == 0 {
		red, green, blue = 255, 255, 255
	}
	layer := r.Layer(z)
	for i := 0; i+3 <= len(layer); i += 3 {
		layer[i] = red
		layer[i+1] = green
		layer[i+2] = blue
	}
}

var registry = map[string]Pattern{
	"white":   Solid{R: 255, G: 255, B: 255},
	"red":     Solid{R: 255},
	"green":   Solid{G: 255},
	"blue":    Solid{B: 255},
	"rainbow": Rainbow{},
	"plane":   Plane{},
}

// ByName looks a pattern up by its registry name.
func ByName(name string) (Pattern, error) {
	p, ok := registry[name]
	if !ok {
		return nil, fmt.Errorf("unknown pattern %q (have %v)", name, Names())
	}
	return p, nil
}

// Names lists the registered pattern names, sorted.
func Names() []string {
	out := make([]string, 0, len(registry))
	for name := range registry {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}
