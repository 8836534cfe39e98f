package artnet

import (
	"fmt"
	"net"

	"lumacube.art/internal/pixel"
)

// SendOptions controls how a raster is sliced into universes.
type SendOptions struct {
	// ChannelsPerUniverse is the DMX payload size per packet. 510 keeps
	// whole RGB triplets per universe.
	ChannelsPerUniverse int

	// UniversesPerLayer is the universe stride between Z slices.
	UniversesPerLayer int

	// ChannelSpan sends every n'th slice (hardware that interleaves
	// layers). 1 sends all of them.
	ChannelSpan int

	// ZIndices overrides which slices are sent, in order. Nil sends
	// 0..length-1 stepped by ChannelSpan.
	ZIndices []int
}

func (o SendOptions) withDefaults() SendOptions {
	if o.ChannelsPerUniverse <= 0 {
		o.ChannelsPerUniverse = 510
	}
	if o.UniversesPerLayer <= 0 {
		o.UniversesPerLayer = 3
	}
	if o.ChannelSpan <= 0 {
		o.ChannelSpan = 1
	}
	return o
}

// Controller transmits ArtDmx streams to one display endpoint. It is the
// counterpart of the ingest listener, used by pattern generators and replay.
type Controller struct {
	conn *net.UDPConn
}

// NewController dials the display address ("10.0.0.5:6454"); broadcast
// addresses are allowed.
func NewController(addr string) (*Controller, error) {
	udpAddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", addr, err)
	}
	conn, err := net.DialUDP("udp", nil, udpAddr)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", addr, err)
	}
	return &Controller{conn: conn}, nil
}

func (c *Controller) Close() error { return c.conn.Close() }

// SendDmxPacket transmits one raw universe payload.
func (c *Controller) SendDmxPacket(universe uint16, data []byte) error {
	_, err := c.conn.Write(EncodeDmx(universe, data))
	return err
}

// SendSync transmits an ArtSync packet.
func (c *Controller) SendSync() error {
	_, err := c.conn.Write(EncodeSync())
	return err
}

// SendRaster slices the raster into universes and transmits every selected
// Z slice followed by a sync. Raster brightness is applied per channel with
// saturation, matching what the show controller hardware does.
func (c *Controller) SendRaster(baseUniverse uint16, r *pixel.Raster, opts SendOptions) error {
	opts = opts.withDefaults()

	zIndices := opts.ZIndices
	if zIndices == nil {
		for z := 0; z < r.Length; z += opts.ChannelSpan {
			zIndices = append(zIndices, z)
		}
	}

	scaled := make([]byte, 0, r.Width*r.Height*3)
	for outZ, z := range zIndices {
		layer := r.Layer(z)
		if layer == nil {
			return fmt.Errorf("z index %d outside raster length %d", z, r.Length)
		}
		universe := uint16(outZ)*uint16(opts.UniversesPerLayer) + baseUniverse

		scaled = scaled[:0]
		for _, b := range layer {
			scaled = append(scaled, saturateU8(float64(b)*r.Brightness))
		}

		for len(scaled) > 0 {
			n := opts.ChannelsPerUniverse
			if n > len(scaled) {
				n = len(scaled)
			}
			if err := c.SendDmxPacket(universe, scaled[:n]); err != nil {
				return err
			}
			scaled = scaled[n:]
			universe++
		}
	}
	return c.SendSync()
}

func saturateU8(v float64) uint8 {
	if v <= 0 {
		return 0
	}
	if v >= 255 {
		return 255
	}
	return uint8(v)
}
