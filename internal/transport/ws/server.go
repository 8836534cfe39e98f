// Package ws serves the viewer stream: a renderer connects, sends HELLO,
// receives the installation META once and then FRAME messages as the pixel
// state changes. Frames carry drive values converted back to perceptual
// color when a corrector is configured.
package ws

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"lumacube.art/internal/color"
	"lumacube.art/internal/pixel"
	"lumacube.art/internal/protocol"
	"lumacube.art/internal/topology"
)

const (
	defaultMaxFPS    = 60
	maxMaxFPS        = 240
	statsInterval    = 5 * time.Second
	frameWaitTimeout = time.Second

	defaultPongWait   = 60 * time.Second
	defaultPingPeriod = 54 * time.Second
)

type Options struct {
	// Corrector, when set, is applied in reverse to every outgoing frame so
	// the viewer sees the intended colors rather than LED drive values.
	Corrector *color.Corrector

	// Stats, when set, is polled periodically and sent as STATS messages.
	Stats func() protocol.StatsMsg

	// MaxFPS caps the frame cadence server-side. Clients may ask for less.
	MaxFPS int
}

type Server struct {
	store *pixel.Store
	opts  Options
	log   *log.Logger

	upgrader websocket.Upgrader

	// Keepalive tuning; viewers are passive after HELLO, so liveness is
	// ping/pong driven.
	pongWait   time.Duration
	pingPeriod time.Duration
}

func NewServer(store *pixel.Store, opts Options, logger *log.Logger) *Server {
	if opts.MaxFPS <= 0 {
		opts.MaxFPS = defaultMaxFPS
	}
	return &Server{
		store: store,
		opts:  opts,
		log:   logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  64 * 1024,
			WriteBufferSize: 64 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true }, // dev default
		},
		pongWait:   defaultPongWait,
		pingPeriod: defaultPingPeriod,
	}
}

func (s *Server) Handler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		conn, err := s.upgrader.Upgrade(rw, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		cubes, fps, ok := s.handshake(conn)
		if !ok {
			return
		}

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		out := make(chan []byte, 16)

		// Writer goroutine. Everything after the handshake goes through it,
		// including the keepalive pings.
		go func() {
			pings := time.NewTicker(s.pingPeriod)
			defer pings.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-pings.C:
					_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
					if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
						cancel()
						return
					}
				case b := <-out:
					_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
					if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
						cancel()
						return
					}
				}
			}
		}()

		go s.streamFrames(ctx, cubes, fps, out)
		if s.opts.Stats != nil {
			go s.streamStats(ctx, out)
		}

		// Reader loop: the viewer sends nothing after HELLO, so liveness
		// comes from the pong replies to our pings; each one extends the
		// read deadline. Reading is still how we notice close frames and
		// dead peers.
		_ = conn.SetReadDeadline(time.Now().Add(s.pongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(s.pongWait))
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				cancel()
				return
			}
		}
	}
}

// handshake reads the HELLO and answers with META. Returns the subscribed
// cubes and the negotiated frame cap.
func (s *Server) handshake(conn *websocket.Conn) (cubes []*topology.Cube, fps int, ok bool) {
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		return nil, 0, false
	}

	base, err := protocol.DecodeBase(msg)
	if err != nil || base.Type != protocol.TypeHello {
		_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "expected HELLO"), time.Now().Add(time.Second))
		return nil, 0, false
	}

	var hello protocol.HelloMsg
	if err := json.Unmarshal(msg, &hello); err != nil {
		return nil, 0, false
	}
	if hello.ProtocolVersion != protocol.Version {
		_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "bad protocol_version"), time.Now().Add(time.Second))
		return nil, 0, false
	}

	topo := s.store.Topology()
	if len(hello.Cubes) == 0 {
		cubes = topo.Cubes()
	} else {
		for _, id := range hello.Cubes {
			cube, found := topo.Cube(id)
			if !found {
				_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "unknown cube "+id), time.Now().Add(time.Second))
				return nil, 0, false
			}
			cubes = append(cubes, cube)
		}
	}

	fps = s.opts.MaxFPS
	if hello.MaxFPS > 0 && hello.MaxFPS < fps {
		fps = hello.MaxFPS
	}
	if fps > maxMaxFPS {
		fps = maxMaxFPS
	}

	meta := protocol.MetaMsg{
		Type:            protocol.TypeMeta,
		ProtocolVersion: protocol.Version,
		ColorCorrected:  s.opts.Corrector != nil,
	}
	for _, cube := range cubes {
		meta.Cubes = append(meta.Cubes, protocol.CubeMeta{
			ID:               cube.ID,
			Width:            cube.Width,
			Height:           cube.Height,
			Length:           cube.Length,
			Position:         cube.Position,
			Orientation:      cube.Orientation.Strings(),
			WorldOrientation: cube.WorldOrientation.Strings(),
			VoxelCount:       cube.VoxelCount(),
		})
	}
	if err := writeJSON(conn, meta); err != nil {
		return nil, 0, false
	}
	return cubes, fps, true
}

// streamFrames sends one FRAME per subscribed cube each time the store
// changes, capped at the negotiated rate. Snapshots and color conversion
// happen here, outside the store lock.
func (s *Server) streamFrames(ctx context.Context, cubes []*topology.Cube, fps int, out chan<- []byte) {
	minInterval := time.Second / time.Duration(fps)
	var seq uint64
	last := time.Time{}

	// First round goes out unconditionally so the viewer renders the current
	// state right after META instead of a black volume.
	for {
		if wait := minInterval - time.Since(last); wait > 0 {
			select {
			case <-ctx.Done():
				return
			case <-time.After(wait):
			}
		}
		last = time.Now()
		seq++

		for _, cube := range cubes {
			snap, ok := s.store.Snapshot(cube.ID)
			if !ok {
				continue
			}
			if s.opts.Corrector != nil {
				s.opts.Corrector.ReverseCorrectPixels(snap)
			}
			b, err := json.Marshal(protocol.FrameMsg{
				Type:   protocol.TypeFrame,
				Cube:   cube.ID,
				Seq:    seq,
				Pixels: base64.StdEncoding.EncodeToString(snap),
			})
			if err != nil {
				continue
			}
			select {
			case <-ctx.Done():
				return
			case out <- b:
			default:
				// Slow viewer: drop this cube's frame, the next round
				// carries fresh state anyway.
			}
		}

		// A timed-out wait still falls through to a refresh round, so an
		// update signalled while we were busy snapshotting is never lost
		// and idle viewers get a slow keepalive frame.
		_ = s.store.WaitForUpdate(frameWaitTimeout)
		select {
		case <-ctx.Done():
			return
		default:
		}
	}
}

func (s *Server) streamStats(ctx context.Context, out chan<- []byte) {
	tick := time.NewTicker(statsInterval)
	defer tick.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-tick.C:
			msg := s.opts.Stats()
			msg.Type = protocol.TypeStats
			b, err := json.Marshal(msg)
			if err != nil {
				continue
			}
			select {
			case out <- b:
			default:
			}
		}
	}
}

func writeJSON(conn *websocket.Conn, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	return conn.WriteMessage(websocket.TextMessage, b)
}
