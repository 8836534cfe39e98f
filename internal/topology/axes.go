package topology

import (
	"fmt"
	"strings"
)

// Axis names one world axis with an optional mirror, e.g. "-Z".
type Axis struct {
	Dim  int // 0=X 1=Y 2=Z
	Sign int // +1 or -1
}

// Axes is a 3-axis permutation-with-sign description of how local (x,y,z)
// coordinates map onto another frame, e.g. {"-Z","Y","X"}.
type Axes [3]Axis

var axisNames = [3]string{"X", "Y", "Z"}

// ParseAxes parses a 3-element axis list. Every world axis must appear
// exactly once.
func ParseAxes(names []string) (Axes, error) {
	var a Axes
	if len(names) != 3 {
		return a, fmt.Errorf("orientation needs 3 axes, got %d", len(names))
	}
	seen := [3]bool{}
	for i, name := range names {
		s := strings.TrimSpace(name)
		sign := 1
		if strings.HasPrefix(s, "-") {
			sign = -1
			s = s[1:]
		} else {
			s = strings.TrimPrefix(s, "+")
		}
		dim := -1
		for d, n := range axisNames {
			if strings.EqualFold(s, n) {
				dim = d
				break
			}
		}
		if dim < 0 {
			return a, fmt.Errorf("orientation axis %q: want X, Y or Z with optional sign", name)
		}
		if seen[dim] {
			return a, fmt.Errorf("orientation axis %s appears twice", axisNames[dim])
		}
		seen[dim] = true
		a[i] = Axis{Dim: dim, Sign: sign}
	}
	return a, nil
}

// DefaultOrientation is the sampling orientation of the original hardware.
func DefaultOrientation() Axes {
	return Axes{{Dim: 2, Sign: -1}, {Dim: 1, Sign: 1}, {Dim: 0, Sign: 1}}
}

// DefaultWorldOrientation is the identity mapping.
func DefaultWorldOrientation() Axes {
	return Axes{{Dim: 0, Sign: 1}, {Dim: 1, Sign: 1}, {Dim: 2, Sign: 1}}
}

// Apply maps a local coordinate into the oriented frame. dims holds the
// extents of the source axes; a mirrored axis counts down from its extent.
func (a Axes) Apply(coord, dims [3]int) [3]int {
	var out [3]int
	for i, ax := range a {
		v := coord[ax.Dim]
		if ax.Sign < 0 {
			v = dims[ax.Dim] - 1 - v
		}
		out[i] = v
	}
	return out
}

// Strings renders the axes back into their config form.
func (a Axes) Strings() []string {
	out := make([]string, 3)
	for i, ax := range a {
		if ax.Sign < 0 {
			out[i] = "-" + axisNames[ax.Dim]
		} else {
			out[i] = axisNames[ax.Dim]
		}
	}
	return out
}
