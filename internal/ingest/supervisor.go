package ingest

import (
	"fmt"
	"log"
	"sync"
	"sync/atomic"

	"lumacube.art/internal/pixel"
	"lumacube.art/internal/topology"
)

// Stats are the ingest counters. Runtime packet errors are silent to the
// operator beyond these and the logs; the show must go on.
type Stats struct {
	Packets         atomic.Uint64
	DmxPackets      atomic.Uint64
	SyncPackets     atomic.Uint64
	Malformed       atomic.Uint64
	UnknownOps      atomic.Uint64
	Unroutable      atomic.Uint64
	VoxelsWritten   atomic.Uint64
	DroppedTriplets atomic.Uint64
}

// StatsSnapshot is a plain copy of the counters for reporting.
type StatsSnapshot struct {
	Packets         uint64 `json:"packets"`
	DmxPackets      uint64 `json:"dmx_packets"`
	SyncPackets     uint64 `json:"sync_packets"`
	Malformed       uint64 `json:"malformed"`
	UnknownOps      uint64 `json:"unknown_ops"`
	Unroutable      uint64 `json:"unroutable"`
	VoxelsWritten   uint64 `json:"voxels_written"`
	DroppedTriplets uint64 `json:"dropped_triplets"`
}

// Supervisor owns the listeners, the store and the topology, and runs the
// listener lifecycle: bind everything, run everything, join everything.
type Supervisor struct {
	topo     *topology.Topology
	store    *pixel.Store
	log      *log.Logger
	recorder FrameRecorder

	mu        sync.Mutex
	listeners []*Listener
	started   bool
	stopped   bool

	running atomic.Bool
	wg      sync.WaitGroup
	stats   Stats
}

// NewSupervisor wires the shared state. Listeners are added before Start.
func NewSupervisor(topo *topology.Topology, store *pixel.Store, logger *log.Logger) *Supervisor {
	return &Supervisor{topo: topo, store: store, log: logger}
}

// SetRecorder attaches a frame recorder. Call before Start.
func (s *Supervisor) SetRecorder(rec FrameRecorder) { s.recorder = rec }

// AddListener registers a socket to bind at Start.
func (s *Supervisor) AddListener(cfg ListenerConfig) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, &Listener{cfg: cfg, sup: s, log: s.log})
}

// Listeners returns the current listener set (stable after Start).
func (s *Supervisor) Listeners() []*Listener {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*Listener(nil), s.listeners...)
}

// Store returns the shared pixel store.
func (s *Supervisor) Store() *pixel.Store { return s.store }

// Topology returns the shared topology.
func (s *Supervisor) Topology() *topology.Topology { return s.topo }

// Stats copies the counters.
func (s *Supervisor) Stats() StatsSnapshot {
	return StatsSnapshot{
		Packets:         s.stats.Packets.Load(),
		DmxPackets:      s.stats.DmxPackets.Load(),
		SyncPackets:     s.stats.SyncPackets.Load(),
		Malformed:       s.stats.Malformed.Load(),
		UnknownOps:      s.stats.UnknownOps.Load(),
		Unroutable:      s.stats.Unroutable.Load(),
		VoxelsWritten:   s.stats.VoxelsWritten.Load(),
		DroppedTriplets: s.stats.DroppedTriplets.Load(),
	}
}

// Start binds every socket, then launches the receive loops. Any bind
// failure aborts the whole start and closes what was already bound: the
// engine never runs with a partial topology. Idempotent.
func (s *Supervisor) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return nil
	}
	if len(s.listeners) == 0 {
		return fmt.Errorf("no listeners configured")
	}

	for i, l := range s.listeners {
		if err := l.bind(); err != nil {
			for _, bound := range s.listeners[:i] {
				_ = bound.conn.Close()
			}
			return err
		}
	}

	s.started = true
	s.running.Store(true)
	for _, l := range s.listeners {
		s.wg.Add(1)
		go func(l *Listener) {
			defer s.wg.Done()
			l.run()
		}(l)
		s.log.Printf("listening on %s (port key %d)", l.Addr(), l.cfg.Port)
	}
	return nil
}

// Stop closes every socket first so blocked receives unblock, flips the
// running flag, then joins every listener goroutine. Safe to call from any
// goroutine, idempotent, returns only after all joins.
func (s *Supervisor) Stop() {
	s.mu.Lock()
	if !s.started || s.stopped {
		s.mu.Unlock()
		return
	}
	s.stopped = true
	s.running.Store(false)
	for _, l := range s.listeners {
		_ = l.conn.Close()
	}
	s.mu.Unlock()

	s.wg.Wait()
	s.log.Printf("all listeners stopped")
}
