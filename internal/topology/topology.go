// Package topology resolves Art-Net universe numbers into voxel addresses.
// All offset arithmetic for the installation lives here: cubes own contiguous
// regions of one shared pixel buffer, and per-port routing tables map a
// universe to the cube, Z slice and pixel offset its payload populates.
package topology

import (
	"fmt"
	"sort"
)

const (
	// PixelsPerUniverse is 512 DMX channels over 3 bytes per pixel, floored.
	PixelsPerUniverse = 170

	// MaxDMXLength is the channel capacity of one universe.
	MaxDMXLength = 512
)

// Cube is one rectangular voxel volume of the installation. Dimensions,
// position and orientation are fixed at construction; only the pixel
// contents (held by the store, not here) ever change.
type Cube struct {
	ID     string
	Width  int
	Height int
	Length int

	Position         [3]float64
	Orientation      Axes
	WorldOrientation Axes

	// PixelOffset is the cube's first voxel in the shared buffer,
	// assigned by New.
	PixelOffset int
}

// VoxelCount is the number of voxels the cube owns.
func (c *Cube) VoxelCount() int { return c.Width * c.Height * c.Length }

// LayerPixels is the number of voxels in one Z slice.
func (c *Cube) LayerPixels() int { return c.Width * c.Height }

// UniversesPerLayer is how many universes one Z slice consumes.
func (c *Cube) UniversesPerLayer() int {
	return (c.LayerPixels() + PixelsPerUniverse - 1) / PixelsPerUniverse
}

// Route is the resolved target of one universe: a Z slice of a cube, entered
// at a pixel offset within the layer.
type Route struct {
	Cube        *Cube
	Z           int
	PixelOffset int // first pixel within the layer
}

// Voxel returns the cube-relative flat index for the i'th RGB triplet of a
// payload routed here. Triplets past the end of the layer report ok=false
// and must be dropped.
func (r Route) Voxel(triplet int) (index int, ok bool) {
	p := r.PixelOffset + triplet
	if p < 0 || p >= r.Cube.LayerPixels() {
		return 0, false
	}
	x := p % r.Cube.Width
	y := p / r.Cube.Width
	return r.Z*r.Cube.LayerPixels() + y*r.Cube.Width + x, true
}

// Mapping is one explicit z_mapping block: a run of universes on a port
// feeding an ordered set of Z slices of a cube.
type Mapping struct {
	Port              int
	BaseUniverse      int
	UniversesPerLayer int
	ZIndices          []int
}

// Topology is the immutable address map of the whole installation.
type Topology struct {
	cubes  []*Cube
	byID   map[string]*Cube
	routes map[int]map[uint16]Route // port -> universe -> route
	voxels int
}

// New lays the cubes out in one shared buffer, assigning pixel offsets in
// declaration order.
func New(cubes []*Cube) (*Topology, error) {
	if len(cubes) == 0 {
		return nil, fmt.Errorf("topology needs at least one cube")
	}
	t := &Topology{
		cubes:  cubes,
		byID:   make(map[string]*Cube, len(cubes)),
		routes: make(map[int]map[uint16]Route),
	}
	offset := 0
	for _, c := range cubes {
		if c.Width <= 0 || c.Height <= 0 || c.Length <= 0 {
			return nil, fmt.Errorf("cube %q: dimensions must be positive (%dx%dx%d)",
				c.ID, c.Width, c.Height, c.Length)
		}
		if _, dup := t.byID[c.ID]; dup {
			return nil, fmt.Errorf("duplicate cube id %q", c.ID)
		}
		c.PixelOffset = offset
		offset += c.VoxelCount()
		t.byID[c.ID] = c
	}
	t.voxels = offset
	return t, nil
}

// VoxelCount is the total voxel count across all cubes.
func (t *Topology) VoxelCount() int { return t.voxels }

// Cubes returns the cubes in buffer order.
func (t *Topology) Cubes() []*Cube { return t.cubes }

// Cube looks a cube up by id.
func (t *Topology) Cube(id string) (*Cube, bool) {
	c, ok := t.byID[id]
	return c, ok
}

// Ports lists every port with at least one registered route.
func (t *Topology) Ports() []int {
	ports := make([]int, 0, len(t.routes))
	for p := range t.routes {
		ports = append(ports, p)
	}
	return ports
}

// AddMapping registers the routes of one explicit mapping block. Universe
// collisions within a port are allowed; the last registration wins.
func (t *Topology) AddMapping(c *Cube, m Mapping) error {
	if _, ok := t.byID[c.ID]; !ok {
		return fmt.Errorf("mapping references unknown cube %q", c.ID)
	}
	upl := m.UniversesPerLayer
	if upl <= 0 {
		upl = c.UniversesPerLayer()
	}
	for i, z := range m.ZIndices {
		if z < 0 || z >= c.Length {
			return fmt.Errorf("cube %q: z index %d outside [0,%d)", c.ID, z, c.Length)
		}
		for j := 0; j < upl; j++ {
			u := m.BaseUniverse + i*upl + j
			if u < 0 || u > 0xffff {
				return fmt.Errorf("cube %q: universe %d outside the Art-Net range", c.ID, u)
			}
			t.register(m.Port, uint16(u), Route{
				Cube:        c,
				Z:           z,
				PixelOffset: j * PixelsPerUniverse,
			})
		}
	}
	return nil
}

// AutoMap generates the implicit layout on one port: universes are assigned
// sequentially per cube, consecutive Z slices consuming consecutive blocks.
// It expands to the same table an equivalent explicit mapping would.
func (t *Topology) AutoMap(port int) error {
	base := 0
	for _, c := range t.cubes {
		zs := make([]int, c.Length)
		for z := range zs {
			zs[z] = z
		}
		if err := t.AddMapping(c, Mapping{
			Port:              port,
			BaseUniverse:      base,
			UniversesPerLayer: c.UniversesPerLayer(),
			ZIndices:          zs,
		}); err != nil {
			return err
		}
		base += c.Length * c.UniversesPerLayer()
	}
	return nil
}

func (t *Topology) register(port int, universe uint16, r Route) {
	m := t.routes[port]
	if m == nil {
		m = make(map[uint16]Route)
		t.routes[port] = m
	}
	m[universe] = r
}

// Resolve maps a (port, universe) pair to its route. A miss means the
// universe is unroutable and the packet should be dropped, not an error.
func (t *Topology) Resolve(port int, universe uint16) (Route, bool) {
	r, ok := t.routes[port][universe]
	return r, ok
}

// RouteCount reports how many universes are registered on a port.
func (t *Topology) RouteCount(port int) int { return len(t.routes[port]) }

// Universes lists the registered universes of one port in ascending order.
func (t *Topology) Universes(port int) []uint16 {
	out := make([]uint16, 0, len(t.routes[port]))
	for u := range t.routes[port] {
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
