package ingest

import (
	"io"
	"log"
	"net"
	"testing"
	"time"

	"lumacube.art/internal/artnet"
	"lumacube.art/internal/pixel"
	"lumacube.art/internal/topology"
)

func testLogger() *log.Logger { return log.New(io.Discard, "", 0) }

// newTestEngine builds a supervisor with one listener on an OS-assigned
// loopback port. Routes are keyed by the configured port (0 here), which is
// the routing key, not the OS port.
func newTestEngine(t *testing.T, cubes ...*topology.Cube) (*Supervisor, *pixel.Store, *topology.Topology) {
	t.Helper()
	topo, err := topology.New(cubes)
	if err != nil {
		t.Fatalf("new topology: %v", err)
	}
	if err := topo.AutoMap(0); err != nil {
		t.Fatalf("automap: %v", err)
	}
	store := pixel.NewStore(topo)
	sup := NewSupervisor(topo, store, testLogger())
	sup.AddListener(ListenerConfig{IP: "127.0.0.1", Port: 0})
	if err := sup.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	t.Cleanup(sup.Stop)
	return sup, store, topo
}

func cube(id string, w, h, l int) *topology.Cube {
	return &topology.Cube{
		ID: id, Width: w, Height: h, Length: l,
		Orientation:      topology.DefaultOrientation(),
		WorldOrientation: topology.DefaultWorldOrientation(),
	}
}

func sendTo(t *testing.T, addr net.Addr, packet []byte) {
	t.Helper()
	conn, err := net.Dial("udp", addr.String())
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	if _, err := conn.Write(packet); err != nil {
		t.Fatalf("send: %v", err)
	}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestListener_WritesDmxIntoStore(t *testing.T) {
	sup, store, _ := newTestEngine(t, cube("c", 20, 20, 20))
	addr := sup.Listeners()[0].Addr()

	// Universe 1 starts at pixel 170 of layer 0.
	sendTo(t, addr, artnet.EncodeDmx(1, []byte{11, 22, 33}))
	waitFor(t, "dmx write", func() bool { return sup.Stats().VoxelsWritten >= 1 })

	snap, _ := store.Snapshot("c")
	if snap[170*3] != 11 || snap[170*3+1] != 22 || snap[170*3+2] != 33 {
		t.Fatalf("voxel 170: got %v", snap[170*3:170*3+3])
	}
}

func TestListener_DropsMalformedBeforeStore(t *testing.T) {
	sup, store, _ := newTestEngine(t, cube("c", 4, 4, 4))
	addr := sup.Listeners()[0].Addr()

	bad := artnet.EncodeDmx(0, []byte{9, 9, 9})
	bad[3] = 'x' // break the signature
	sendTo(t, addr, bad)
	sendTo(t, addr, []byte("short"))
	waitFor(t, "malformed count", func() bool { return sup.Stats().Malformed == 2 })

	if n := sup.Stats().VoxelsWritten; n != 0 {
		t.Fatalf("malformed packets wrote %d voxels", n)
	}
	snap, _ := store.Snapshot("c")
	for i, b := range snap {
		if b != 0 {
			t.Fatalf("buffer touched at %d", i)
		}
	}
}

func TestListener_CountsUnroutableUniverse(t *testing.T) {
	sup, _, _ := newTestEngine(t, cube("c", 4, 4, 4)) // 1 upl * 4 layers = universes 0..3
	addr := sup.Listeners()[0].Addr()

	sendTo(t, addr, artnet.EncodeDmx(4000, []byte{1, 2, 3}))
	waitFor(t, "unroutable count", func() bool { return sup.Stats().Unroutable == 1 })
	if sup.Stats().VoxelsWritten != 0 {
		t.Fatalf("unroutable universe must not write")
	}
}

func TestListener_SyncSignalsConsumers(t *testing.T) {
	sup, store, _ := newTestEngine(t, cube("c", 4, 4, 4))
	addr := sup.Listeners()[0].Addr()

	woke := make(chan bool, 1)
	go func() { woke <- store.WaitForUpdate(2 * time.Second) }()
	time.Sleep(20 * time.Millisecond)

	// Bare ArtSync is 14 bytes and falls under the header floor; pad it
	// the way controllers that interleave sync do.
	sendTo(t, addr, append(artnet.EncodeSync(), 0, 0, 0, 0))
	waitFor(t, "sync count", func() bool { return sup.Stats().SyncPackets == 1 })
	if !<-woke {
		t.Fatalf("sync should wake the consumer")
	}
}

func TestListener_IgnoresUnknownOpcode(t *testing.T) {
	sup, _, _ := newTestEngine(t, cube("c", 4, 4, 4))
	addr := sup.Listeners()[0].Addr()

	poll := artnet.EncodeDmx(0, []byte{1, 2, 3})
	poll[8], poll[9] = 0x00, 0x20
	sendTo(t, addr, poll)
	waitFor(t, "unknown op count", func() bool { return sup.Stats().UnknownOps == 1 })
	if sup.Stats().VoxelsWritten != 0 {
		t.Fatalf("unknown opcode must not write")
	}
}

func TestSupervisor_StartFailsOnBindConflict(t *testing.T) {
	topo, _ := topology.New([]*topology.Cube{cube("c", 4, 4, 4)})
	_ = topo.AutoMap(0)
	store := pixel.NewStore(topo)

	taken, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	if err != nil {
		t.Fatalf("reserve port: %v", err)
	}
	defer taken.Close()
	port := taken.LocalAddr().(*net.UDPAddr).Port

	sup := NewSupervisor(topo, store, testLogger())
	sup.AddListener(ListenerConfig{IP: "127.0.0.1", Port: 0})
	sup.AddListener(ListenerConfig{IP: "127.0.0.1", Port: port})
	if err := sup.Start(); err == nil {
		sup.Stop()
		t.Fatalf("start should fail when any bind fails")
	}
}

func TestSupervisor_StopJoinsPromptly(t *testing.T) {
	topo, _ := topology.New([]*topology.Cube{cube("c", 4, 4, 4)})
	_ = topo.AutoMap(0)
	store := pixel.NewStore(topo)
	sup := NewSupervisor(topo, store, testLogger())
	sup.AddListener(ListenerConfig{IP: "127.0.0.1", Port: 0})
	sup.AddListener(ListenerConfig{IP: "127.0.0.1", Port: 0})
	if err := sup.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}

	done := make(chan struct{})
	go func() {
		sup.Stop()
		sup.Stop() // idempotent
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("stop did not return with listeners blocked in receive")
	}
}

type captureRecorder struct {
	frames chan struct {
		port     int
		universe uint16
	}
}

func (c *captureRecorder) RecordFrame(port int, universe uint16, data []byte) {
	c.frames <- struct {
		port     int
		universe uint16
	}{port, universe}
}

func TestSupervisor_RecorderSeesRoutedFrames(t *testing.T) {
	topo, _ := topology.New([]*topology.Cube{cube("c", 4, 4, 4)})
	_ = topo.AutoMap(0)
	store := pixel.NewStore(topo)
	sup := NewSupervisor(topo, store, testLogger())
	rec := &captureRecorder{frames: make(chan struct {
		port     int
		universe uint16
	}, 4)}
	sup.SetRecorder(rec)
	sup.AddListener(ListenerConfig{IP: "127.0.0.1", Port: 0})
	if err := sup.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer sup.Stop()

	addr := sup.Listeners()[0].Addr()
	sendTo(t, addr, artnet.EncodeDmx(2, []byte{1, 2, 3}))
	sendTo(t, addr, artnet.EncodeDmx(4000, []byte{1, 2, 3})) // unroutable, not recorded

	select {
	case f := <-rec.frames:
		if f.universe != 2 || f.port != 0 {
			t.Fatalf("recorded frame: %+v", f)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("routed frame not recorded")
	}
	waitFor(t, "unroutable count", func() bool { return sup.Stats().Unroutable == 1 })
	select {
	case f := <-rec.frames:
		t.Fatalf("unroutable frame recorded: %+v", f)
	default:
	}
}
