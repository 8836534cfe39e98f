// Package pixel holds the authoritative voxel color state. One flat RGB
// buffer backs every cube; all mutation and full-region reads go through a
// single mutex. Write bursts are small (at most one universe, 170 pixels),
// so the coarse lock keeps both write-to-write and write-to-read latency low.
package pixel

import (
	"sync"
	"time"

	"lumacube.art/internal/topology"
)

// Store is the shared voxel color buffer. Writers are the ingest listeners,
// the reader is the display loop; both go through the same lock.
type Store struct {
	mu     sync.Mutex
	buf    []byte
	topo   *topology.Topology
	notify chan struct{}
}

// NewStore allocates the buffer sized by the topology, all voxels black.
func NewStore(topo *topology.Topology) *Store {
	return &Store{
		buf:    make([]byte, topo.VoxelCount()*3),
		topo:   topo,
		notify: make(chan struct{}),
	}
}

// Topology returns the topology the store was sized from.
func (s *Store) Topology() *topology.Topology { return s.topo }

// WritePayload writes the RGB triplets of one DMX payload through a route,
// under one lock hold. Triplets past the layer, the cube or the payload
// bound are dropped. Returns the number of voxels written; consumers are
// signalled when at least one write landed.
func (s *Store) WritePayload(r topology.Route, payload []byte) int {
	cube := r.Cube
	written := 0

	s.mu.Lock()
	for i := 0; i+3 <= len(payload); i += 3 {
		idx, ok := r.Voxel(i / 3)
		if !ok {
			break
		}
		if idx >= cube.VoxelCount() {
			continue
		}
		off := (cube.PixelOffset + idx) * 3
		s.buf[off] = payload[i]
		s.buf[off+1] = payload[i+1]
		s.buf[off+2] = payload[i+2]
		written++
	}
	if written > 0 {
		s.signalLocked()
	}
	s.mu.Unlock()
	return written
}

// Set writes one voxel of one cube. Out-of-range indices are dropped.
func (s *Store) Set(cube *topology.Cube, index int, red, green, blue byte) bool {
	if index < 0 || index >= cube.VoxelCount() {
		return false
	}
	off := (cube.PixelOffset + index) * 3
	s.mu.Lock()
	s.buf[off] = red
	s.buf[off+1] = green
	s.buf[off+2] = blue
	s.signalLocked()
	s.mu.Unlock()
	return true
}

// Snapshot copies one cube's region out as packed RGB triples, in voxel
// order (x fastest, then y, then z). Color conversion belongs to the caller,
// outside the lock.
func (s *Store) Snapshot(cubeID string) ([]byte, bool) {
	cube, ok := s.topo.Cube(cubeID)
	if !ok {
		return nil, false
	}
	out := make([]byte, cube.VoxelCount()*3)
	s.mu.Lock()
	copy(out, s.buf[cube.PixelOffset*3:])
	s.mu.Unlock()
	return out, true
}

// SnapshotAll copies the entire buffer.
func (s *Store) SnapshotAll() []byte {
	out := make([]byte, len(s.buf))
	s.mu.Lock()
	copy(out, s.buf)
	s.mu.Unlock()
	return out
}

// Signal wakes waiting consumers without writing, e.g. on an Art-Net sync.
func (s *Store) Signal() {
	s.mu.Lock()
	s.signalLocked()
	s.mu.Unlock()
}

func (s *Store) signalLocked() {
	close(s.notify)
	s.notify = make(chan struct{})
}

// WaitForUpdate blocks until the buffer changes or the timeout elapses, so a
// stalled feed cannot hang the consumer. Reports whether an update arrived.
func (s *Store) WaitForUpdate(timeout time.Duration) bool {
	s.mu.Lock()
	ch := s.notify
	s.mu.Unlock()

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-ch:
		return true
	case <-timer.C:
		return false
	}
}
