package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"net/http/pprof"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"lumacube.art/internal/color"
	"lumacube.art/internal/config"
	"lumacube.art/internal/ingest"
	"lumacube.art/internal/persistence/framelog"
	"lumacube.art/internal/persistence/indexdb"
	"lumacube.art/internal/pixel"
	"lumacube.art/internal/protocol"
	"lumacube.art/internal/transport/ws"
)

func main() {
	var (
		addr       = flag.String("addr", ":8080", "http listen address (viewer ws, health, metrics)")
		configPath = flag.String("config", "", "display config path (empty: one 20x20x20 cube on :6454)")
		dataDir    = flag.String("data", "./data", "runtime data directory")
		record     = flag.Bool("record", false, "record routed DMX frames to the frame log")
		disableDB  = flag.Bool("disable_db", false, "disable the sqlite ingest index")
		maxFPS     = flag.Int("max_fps", 60, "viewer frame rate cap")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[server] ", log.LstdFlags|log.Lmicroseconds)

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Fatalf("load config: %v", err)
	}
	topo, err := cfg.BuildTopology()
	if err != nil {
		logger.Fatalf("build topology: %v", err)
	}
	store := pixel.NewStore(topo)

	var corrector *color.Corrector
	if cfg.ColorCorrection.Enabled {
		corrector, err = color.NewCorrector(cfg.CorrectorOptions())
		if err != nil {
			logger.Fatalf("color correction: %v", err)
		}
	}

	ctx, cancel := signalContext()
	defer cancel()

	// Optional: ingest activity index (does not affect the pixel path).
	var idx *indexdb.SQLiteIndex
	if !*disableDB {
		idx, err = indexdb.OpenSQLite(fmt.Sprintf("%s/index/ingest.db", *dataDir))
		if err != nil {
			logger.Fatalf("open ingest index: %v", err)
		}
		defer idx.Close()
	}

	var frames *framelog.Recorder
	if *record {
		frames = framelog.NewRecorder(*dataDir)
		defer func() {
			if err := frames.Close(); err != nil {
				logger.Printf("frame log close: %v", err)
			}
		}()
		logger.Printf("recording frames under %s/frames", *dataDir)
	}

	sup := ingest.NewSupervisor(topo, store, logger)
	if rec := (multiRecorder{a: frames, b: idx}); rec.a != nil || rec.b != nil {
		sup.SetRecorder(rec)
	}
	for _, a := range cfg.ListenerAddrs() {
		sup.AddListener(ingest.ListenerConfig{IP: a.IP, Port: a.Port})
	}
	if err := sup.Start(); err != nil {
		logger.Fatalf("start listeners: %v", err)
	}
	defer sup.Stop()
	for _, l := range sup.Listeners() {
		logger.Printf("listening for Art-Net on %s", l.Addr())
		if idx != nil {
			idx.RecordListener(l.Port(), l.Addr().String())
		}
	}

	// Periodic counter snapshots into the index.
	if idx != nil {
		go func() {
			tick := time.NewTicker(10 * time.Second)
			defer tick.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-tick.C:
					idx.WriteCounters(counterSnapshot(sup.Stats()))
				}
			}
		}()
	}

	wsSrv := ws.NewServer(store, ws.Options{
		Corrector: corrector,
		MaxFPS:    *maxFPS,
		Stats:     func() protocol.StatsMsg { return statsMsg(sup.Stats()) },
	}, logger)

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(rw http.ResponseWriter, r *http.Request) {
		rw.WriteHeader(200)
		_, _ = rw.Write([]byte("ok"))
	})
	mux.HandleFunc("/v1/state", func(rw http.ResponseWriter, r *http.Request) {
		rw.Header().Set("Content-Type", "application/json")
		resp := struct {
			Cubes int                  `json:"cubes"`
			Stats ingest.StatsSnapshot `json:"stats"`
		}{
			Cubes: len(topo.Cubes()),
			Stats: sup.Stats(),
		}
		_ = json.NewEncoder(rw).Encode(resp)
	})
	mux.HandleFunc("/metrics", func(rw http.ResponseWriter, r *http.Request) {
		rw.Header().Set("Content-Type", "text/plain; version=0.0.4")
		writeIngestMetrics(rw, sup.Stats())
		if frames != nil {
			fmt.Fprintf(rw, "# HELP lumacube_framelog_dropped_total Frames lost to backpressure or write errors.\n")
			fmt.Fprintf(rw, "# TYPE lumacube_framelog_dropped_total counter\n")
			fmt.Fprintf(rw, "lumacube_framelog_dropped_total %d\n", frames.Dropped())
		}
	})
	if envBool("LC_ENABLE_PPROF_HTTP", false) {
		mux.HandleFunc("/debug/pprof/", pprof.Index)
		mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
		mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
		mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
		mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
	}
	mux.HandleFunc("/v1/ws", wsSrv.Handler())

	srv := &http.Server{
		Addr:              *addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel2()
		_ = srv.Shutdown(ctx2)
	}()

	logger.Printf("viewer endpoint on %s/v1/ws", *addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatalf("ListenAndServe: %v", err)
	}
}

func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	ch := make(chan os.Signal, 2)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-ch
		cancel()
	}()
	return ctx, cancel
}

func envBool(name string, def bool) bool {
	switch strings.ToLower(strings.TrimSpace(os.Getenv(name))) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return def
	}
}

func writeIngestMetrics(rw http.ResponseWriter, s ingest.StatsSnapshot) {
	counters := []struct {
		name, help string
		value      uint64
	}{
		{"lumacube_packets_total", "Datagrams received.", s.Packets},
		{"lumacube_dmx_packets_total", "ArtDmx packets received.", s.DmxPackets},
		{"lumacube_sync_packets_total", "ArtSync packets received.", s.SyncPackets},
		{"lumacube_malformed_total", "Datagrams rejected before decode.", s.Malformed},
		{"lumacube_unknown_ops_total", "Valid packets with unhandled opcodes.", s.UnknownOps},
		{"lumacube_unroutable_total", "ArtDmx packets with no route for their universe.", s.Unroutable},
		{"lumacube_voxels_written_total", "Voxels written into the store.", s.VoxelsWritten},
		{"lumacube_dropped_triplets_total", "Payload triplets dropped at a layer or cube bound.", s.DroppedTriplets},
	}
	for _, c := range counters {
		fmt.Fprintf(rw, "# HELP %s %s\n", c.name, c.help)
		fmt.Fprintf(rw, "# TYPE %s counter\n", c.name)
		fmt.Fprintf(rw, "%s %d\n", c.name, c.value)
	}
}

func statsMsg(s ingest.StatsSnapshot) protocol.StatsMsg {
	return protocol.StatsMsg{
		Packets:         s.Packets,
		DmxPackets:      s.DmxPackets,
		SyncPackets:     s.SyncPackets,
		Malformed:       s.Malformed,
		UnknownOps:      s.UnknownOps,
		Unroutable:      s.Unroutable,
		VoxelsWritten:   s.VoxelsWritten,
		DroppedTriplets: s.DroppedTriplets,
	}
}

func counterSnapshot(s ingest.StatsSnapshot) indexdb.CounterSnapshot {
	return indexdb.CounterSnapshot{
		Packets:         s.Packets,
		DmxPackets:      s.DmxPackets,
		SyncPackets:     s.SyncPackets,
		Malformed:       s.Malformed,
		UnknownOps:      s.UnknownOps,
		Unroutable:      s.Unroutable,
		VoxelsWritten:   s.VoxelsWritten,
		DroppedTriplets: s.DroppedTriplets,
	}
}

// multiRecorder fans routed frames out to the frame log and the index.
type multiRecorder struct {
	a *framelog.Recorder
	b *indexdb.SQLiteIndex
}

func (m multiRecorder) RecordFrame(port int, universe uint16, data []byte) {
	if m.a != nil {
		m.a.RecordFrame(port, universe, data)
	}
	if m.b != nil {
		m.b.RecordFrame(port, universe, data)
	}
}
