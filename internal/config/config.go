// Package config loads the display description: cube geometry, listener
// sockets and universe mappings. The loader resolves everything down to the
// explicit routing table; auto-generated mappings are a load-time
// convenience that expands to the same table.
package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"lumacube.art/internal/color"
	"lumacube.art/internal/topology"
)

type Config struct {
	Defaults        Defaults        `yaml:"defaults"`
	ColorCorrection ColorCorrection `yaml:"color_correction"`
	Cubes           []CubeSpec      `yaml:"cubes"`
}

type Defaults struct {
	IP   string `yaml:"ip"`
	Port int    `yaml:"port"`
}

type ColorCorrection struct {
	Enabled       bool      `yaml:"enabled"`
	Gamma         []float64 `yaml:"gamma,omitempty"`
	BrightnessMcd []float64 `yaml:"brightness_mcd,omitempty"`
}

type CubeSpec struct {
	ID               string         `yaml:"id"`
	Width            int            `yaml:"width"`
	Height           int            `yaml:"height"`
	Length           int            `yaml:"length"`
	Position         []float64      `yaml:"position,omitempty"`
	Orientation      []string       `yaml:"orientation,omitempty"`
	WorldOrientation []string       `yaml:"world_orientation,omitempty"`
	Listeners        []ListenerSpec `yaml:"listeners,omitempty"`
	ZMapping         []ZMappingSpec `yaml:"z_mapping,omitempty"`
}

type ListenerSpec struct {
	IP       string `yaml:"ip"`
	Port     int    `yaml:"port"`
	ZIndices []int  `yaml:"z_indices,omitempty"`
}

type ZMappingSpec struct {
	Port              int   `yaml:"port"`
	BaseUniverse      int   `yaml:"base_universe"`
	UniversesPerLayer int   `yaml:"universes_per_layer"`
	ZIndices          []int `yaml:"z_indices"`
}

// ListenerAddr is one socket to bind, deduplicated across cubes.
type ListenerAddr struct {
	IP   string
	Port int
}

// Load reads and resolves a display config. An empty path yields the
// defaults: one 20x20x20 cube fed on the standard Art-Net port.
func Load(path string) (Config, error) {
	cfg := defaults()
	if strings.TrimSpace(path) == "" {
		cfg.Normalize()
		return cfg, cfg.Validate()
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return cfg, fmt.Errorf("display config: %w", err)
	}
	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("display config: %w", err)
	}
	return cfg, nil
}

func defaults() Config {
	return Config{
		Defaults: Defaults{IP: "0.0.0.0", Port: 6454},
		ColorCorrection: ColorCorrection{
			Enabled: true,
		},
		Cubes: []CubeSpec{{}},
	}
}

// Normalize fills the blanks: cube dimensions and orientations, generated
// ids, per-cube listeners on the default socket, and single-value gamma or
// brightness expanded to all three channels.
func (c *Config) Normalize() {
	if strings.TrimSpace(c.Defaults.IP) == "" {
		c.Defaults.IP = "0.0.0.0"
	}
	if c.Defaults.Port == 0 {
		c.Defaults.Port = 6454
	}

	ws := color.WS2812BOptions()
	if len(c.ColorCorrection.Gamma) == 0 {
		c.ColorCorrection.Gamma = ws.Gamma[:]
	}
	if len(c.ColorCorrection.Gamma) == 1 {
		g := c.ColorCorrection.Gamma[0]
		c.ColorCorrection.Gamma = []float64{g, g, g}
	}
	if len(c.ColorCorrection.BrightnessMcd) == 0 {
		c.ColorCorrection.BrightnessMcd = ws.Brightness[:]
	}
	if len(c.ColorCorrection.BrightnessMcd) == 1 {
		b := c.ColorCorrection.BrightnessMcd[0]
		c.ColorCorrection.BrightnessMcd = []float64{b, b, b}
	}

	for i := range c.Cubes {
		cube := &c.Cubes[i]
		if strings.TrimSpace(cube.ID) == "" {
			cube.ID = fmt.Sprintf("cube_%d", i)
		}
		if cube.Width == 0 {
			cube.Width = 20
		}
		if cube.Height == 0 {
			cube.Height = 20
		}
		if cube.Length == 0 {
			cube.Length = 20
		}
		if len(cube.Orientation) == 0 {
			cube.Orientation = topology.DefaultOrientation().Strings()
		}
		if len(cube.WorldOrientation) == 0 {
			cube.WorldOrientation = topology.DefaultWorldOrientation().Strings()
		}
		if len(cube.Position) == 0 {
			cube.Position = []float64{0, 0, 0}
		}
		if len(cube.Listeners) == 0 {
			cube.Listeners = []ListenerSpec{{IP: c.Defaults.IP, Port: c.Defaults.Port}}
		}
		for j := range cube.Listeners {
			l := &cube.Listeners[j]
			if strings.TrimSpace(l.IP) == "" {
				l.IP = c.Defaults.IP
			}
			if l.Port == 0 {
				l.Port = c.Defaults.Port
			}
		}
		for j := range cube.ZMapping {
			if cube.ZMapping[j].Port == 0 {
				cube.ZMapping[j].Port = c.Defaults.Port
			}
		}
	}
}

// Validate rejects configs the engine cannot run with.
func (c *Config) Validate() error {
	if len(c.Cubes) == 0 {
		return fmt.Errorf("no cubes configured")
	}
	if len(c.ColorCorrection.Gamma) != 3 {
		return fmt.Errorf("color_correction.gamma needs 1 or 3 values")
	}
	if len(c.ColorCorrection.BrightnessMcd) != 3 {
		return fmt.Errorf("color_correction.brightness_mcd needs 1 or 3 values")
	}

	ids := map[string]bool{}
	for _, cube := range c.Cubes {
		if cube.Width <= 0 || cube.Height <= 0 || cube.Length <= 0 {
			return fmt.Errorf("cube %q: dimensions must be positive", cube.ID)
		}
		if ids[cube.ID] {
			return fmt.Errorf("duplicate cube id %q", cube.ID)
		}
		ids[cube.ID] = true
		if len(cube.Position) != 3 {
			return fmt.Errorf("cube %q: position needs 3 values", cube.ID)
		}
		if _, err := topology.ParseAxes(cube.Orientation); err != nil {
			return fmt.Errorf("cube %q: %w", cube.ID, err)
		}
		if _, err := topology.ParseAxes(cube.WorldOrientation); err != nil {
			return fmt.Errorf("cube %q: world_orientation: %w", cube.ID, err)
		}
		for _, l := range cube.Listeners {
			if l.Port < 0 || l.Port > 0xffff {
				return fmt.Errorf("cube %q: listener port %d out of range", cube.ID, l.Port)
			}
			for _, z := range l.ZIndices {
				if z < 0 || z >= cube.Length {
					return fmt.Errorf("cube %q: listener z index %d outside [0,%d)", cube.ID, z, cube.Length)
				}
			}
		}
		for _, m := range cube.ZMapping {
			if len(m.ZIndices) == 0 {
				return fmt.Errorf("cube %q: z_mapping block without z_indices", cube.ID)
			}
			for _, z := range m.ZIndices {
				if z < 0 || z >= cube.Length {
					return fmt.Errorf("cube %q: z_mapping z index %d outside [0,%d)", cube.ID, z, cube.Length)
				}
			}
		}
	}
	return nil
}

// CorrectorOptions converts the color block.
func (c *Config) CorrectorOptions() color.CorrectorOptions {
	var opts color.CorrectorOptions
	copy(opts.Gamma[:], c.ColorCorrection.Gamma)
	copy(opts.Brightness[:], c.ColorCorrection.BrightnessMcd)
	return opts
}

// ListenerAddrs returns every distinct (ip, port) socket the config names,
// in first-seen order. One socket is bound once no matter how many cubes it
// feeds.
func (c *Config) ListenerAddrs() []ListenerAddr {
	seen := map[ListenerAddr]bool{}
	var out []ListenerAddr
	for _, cube := range c.Cubes {
		for _, l := range cube.Listeners {
			a := ListenerAddr{IP: l.IP, Port: l.Port}
			if !seen[a] {
				seen[a] = true
				out = append(out, a)
			}
		}
	}
	return out
}

// BuildTopology expands the config into the runtime topology. Cubes with
// explicit mappings (z_mapping blocks or listener z_indices) register
// exactly those; all remaining cubes get the auto layout, with universe
// bases derived from their position in the full cube list so the numbering
// matches an all-auto config.
func (c *Config) BuildTopology() (*topology.Topology, error) {
	cubes := make([]*topology.Cube, len(c.Cubes))
	for i, spec := range c.Cubes {
		orient, err := topology.ParseAxes(spec.Orientation)
		if err != nil {
			return nil, fmt.Errorf("cube %q: %w", spec.ID, err)
		}
		world, err := topology.ParseAxes(spec.WorldOrientation)
		if err != nil {
			return nil, fmt.Errorf("cube %q: %w", spec.ID, err)
		}
		cube := &topology.Cube{
			ID:               spec.ID,
			Width:            spec.Width,
			Height:           spec.Height,
			Length:           spec.Length,
			Orientation:      orient,
			WorldOrientation: world,
		}
		copy(cube.Position[:], spec.Position)
		cubes[i] = cube
	}

	topo, err := topology.New(cubes)
	if err != nil {
		return nil, err
	}

	autoBase := 0
	for i, spec := range c.Cubes {
		cube := cubes[i]
		explicit := len(spec.ZMapping) > 0
		for _, m := range spec.ZMapping {
			err := topo.AddMapping(cube, topology.Mapping{
				Port:              m.Port,
				BaseUniverse:      m.BaseUniverse,
				UniversesPerLayer: m.UniversesPerLayer,
				ZIndices:          m.ZIndices,
			})
			if err != nil {
				return nil, err
			}
		}
		for _, l := range spec.Listeners {
			if len(l.ZIndices) == 0 {
				continue
			}
			explicit = true
			err := topo.AddMapping(cube, topology.Mapping{
				Port:              l.Port,
				BaseUniverse:      0,
				UniversesPerLayer: cube.UniversesPerLayer(),
				ZIndices:          l.ZIndices,
			})
			if err != nil {
				return nil, err
			}
		}

		if !explicit {
			zs := make([]int, cube.Length)
			for z := range zs {
				zs[z] = z
			}
			err := topo.AddMapping(cube, topology.Mapping{
				Port:              c.Defaults.Port,
				BaseUniverse:      autoBase,
				UniversesPerLayer: cube.UniversesPerLayer(),
				ZIndices:          zs,
			})
			if err != nil {
				return nil, err
			}
		}
		autoBase += cube.Length * cube.UniversesPerLayer()
	}
	return topo, nil
}
