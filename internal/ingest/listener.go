// Package ingest receives Art-Net traffic and writes it into the pixel
// store. One listener owns one bound UDP socket and runs its own receive
// goroutine; the supervisor owns the listeners and their lifecycle.
package ingest

import (
	"errors"
	"fmt"
	"log"
	"net"

	"lumacube.art/internal/artnet"
)

// ListenerConfig names one socket to bind. Port doubles as the routing key
// into the topology's per-port universe tables.
type ListenerConfig struct {
	IP   string
	Port int
}

func (c ListenerConfig) addr() (*net.UDPAddr, error) {
	ip := net.ParseIP(c.IP)
	if c.IP != "" && ip == nil {
		return nil, fmt.Errorf("invalid listener ip %q", c.IP)
	}
	return &net.UDPAddr{IP: ip, Port: c.Port}, nil
}

// FrameRecorder observes every routed ArtDmx frame, e.g. for replay logs.
// data aliases the receive buffer and is only valid during the call.
type FrameRecorder interface {
	RecordFrame(port int, universe uint16, data []byte)
}

// Listener owns one socket. It only ever writes through routes registered
// for its own port.
type Listener struct {
	cfg  ListenerConfig
	sup  *Supervisor
	conn *net.UDPConn
	log  *log.Logger
}

// Addr reports the bound address, useful when the config port was 0.
func (l *Listener) Addr() net.Addr { return l.conn.LocalAddr() }

// Port reports the configured routing port key.
func (l *Listener) Port() int { return l.cfg.Port }

func (l *Listener) bind() error {
	addr, err := l.cfg.addr()
	if err != nil {
		return err
	}
	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		return fmt.Errorf("bind %s:%d: %w", l.cfg.IP, l.cfg.Port, err)
	}
	l.conn = conn
	return nil
}

// run is the receive loop. It exits when the socket is closed; a close
// during shutdown is expected and silent, any other receive error is logged
// and terminates this listener only.
func (l *Listener) run() {
	buf := make([]byte, 1024)
	for {
		n, _, err := l.conn.ReadFromUDP(buf)
		if err != nil {
			if !l.sup.running.Load() || errors.Is(err, net.ErrClosed) {
				return
			}
			l.log.Printf("listener %s: receive: %v", l.Addr(), err)
			return
		}
		l.handle(buf[:n])
	}
}

func (l *Listener) handle(datagram []byte) {
	st := &l.sup.stats
	st.Packets.Add(1)

	p, err := artnet.Decode(datagram)
	if err != nil {
		st.Malformed.Add(1)
		return
	}

	switch p.Op {
	case artnet.OpDmx:
		st.DmxPackets.Add(1)
		route, ok := l.sup.topo.Resolve(l.cfg.Port, p.Universe)
		if !ok {
			st.Unroutable.Add(1)
			return
		}
		written := l.sup.store.WritePayload(route, p.Data)
		st.VoxelsWritten.Add(uint64(written))
		if dropped := len(p.Data)/3 - written; dropped > 0 {
			st.DroppedTriplets.Add(uint64(dropped))
		}
		if rec := l.sup.recorder; rec != nil {
			rec.RecordFrame(l.cfg.Port, p.Universe, p.Data)
		}
	case artnet.OpSync:
		st.SyncPackets.Add(1)
		l.sup.store.Signal()
	default:
		st.UnknownOps.Add(1)
		l.log.Printf("listener %s: ignoring %v", l.Addr(), p.Op)
	}
}
