// Package indexdb maintains a queryable SQLite index of ingest activity:
// per-universe packet counts and the engine's counter snapshots. The frame
// log remains the source of truth; this index exists for operators asking
// "which universes are live and how hard are they being driven".
package indexdb

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"database/sql"

	_ "modernc.org/sqlite"
)

type SQLiteIndex struct {
	db *sql.DB

	ch   chan req
	wg   sync.WaitGroup
	once sync.Once

	// mu orders every enqueue against Close: senders hold the read lock
	// across the check and the send, so the channel is never closed under
	// an in-flight send.
	mu     sync.RWMutex
	closed bool
}

type reqKind int

const (
	reqFrame reqKind = iota + 1
	reqCounters
	reqListener
	reqFlush
)

type req struct {
	kind reqKind

	frame    frameRow
	counters CounterSnapshot
	listener ListenerRecord
	ack      chan struct{}
}

// ListenerRecord is one bound listener socket row.
type ListenerRecord struct {
	Port    int
	Addr    string
	BoundAt string
}

type frameRow struct {
	Port     int
	Universe uint16
	Bytes    int
	TS       string
}

// CounterSnapshot is one point-in-time copy of the engine counters.
type CounterSnapshot struct {
	TS              string `json:"ts"`
	Packets         uint64 `json:"packets"`
	DmxPackets      uint64 `json:"dmx_packets"`
	SyncPackets     uint64 `json:"sync_packets"`
	Malformed       uint64 `json:"malformed"`
	UnknownOps      uint64 `json:"unknown_ops"`
	Unroutable      uint64 `json:"unroutable"`
	VoxelsWritten   uint64 `json:"voxels_written"`
	DroppedTriplets uint64 `json:"dropped_triplets"`
}

// UniverseActivity is one row of the per-universe table.
type UniverseActivity struct {
	Port     int
	Universe uint16
	Packets  uint64
	Bytes    uint64
	LastSeen string
}

func OpenSQLite(path string) (*SQLiteIndex, error) {
	if path == "" {
		return nil, fmt.Errorf("empty db path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := initPragmas(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	s := &SQLiteIndex{
		db: db,
		// High buffer: a show at full frame rate bursts hundreds of
		// universes per sync without stalling the listeners.
		ch: make(chan req, 65536),
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.loop()
	}()
	return s, nil
}

func initPragmas(db *sql.DB) error {
	// WAL is much faster for append-style workloads.
	// NORMAL is a decent durability/perf tradeoff for a secondary index.
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA foreign_keys=ON;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA temp_store=MEMORY;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return err
		}
	}
	return nil
}

func initSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS meta (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS universes (
			port INTEGER NOT NULL,
			universe INTEGER NOT NULL,
			packets INTEGER NOT NULL DEFAULT 0,
			bytes INTEGER NOT NULL DEFAULT 0,
			last_seen TEXT NOT NULL,
			PRIMARY KEY (port, universe)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_universes_last_seen ON universes(last_seen);`,
		`CREATE TABLE IF NOT EXISTS listeners (
			port INTEGER NOT NULL,
			addr TEXT NOT NULL,
			bound_at TEXT NOT NULL,
			PRIMARY KEY (port, addr)
		);`,
		`CREATE TABLE IF NOT EXISTS counters (
			ts TEXT PRIMARY KEY,
			packets INTEGER NOT NULL,
			dmx_packets INTEGER NOT NULL,
			sync_packets INTEGER NOT NULL,
			malformed INTEGER NOT NULL,
			unknown_ops INTEGER NOT NULL,
			unroutable INTEGER NOT NULL,
			voxels_written INTEGER NOT NULL,
			dropped_triplets INTEGER NOT NULL
		);`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	if _, err := db.Exec(`INSERT OR REPLACE INTO meta(key,value) VALUES('schema_version','1')`); err != nil {
		return err
	}
	return nil
}

func (s *SQLiteIndex) Close() error {
	var err error
	s.once.Do(func() {
		s.mu.Lock()
		s.closed = true
		close(s.ch)
		s.mu.Unlock()
		s.wg.Wait()
		err = s.db.Close()
	})
	return err
}

// RecordFrame notes one routed DMX frame. Drops if the indexer falls
// behind; the frame log remains the source of truth.
func (s *SQLiteIndex) RecordFrame(port int, universe uint16, data []byte) {
	if s == nil {
		return
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return
	}
	r := frameRow{
		Port:     port,
		Universe: universe,
		Bytes:    len(data),
		TS:       time.Now().UTC().Format(time.RFC3339Nano),
	}
	select {
	case s.ch <- req{kind: reqFrame, frame: r}:
	default:
	}
}

// RecordListener notes a bound listener socket for this run.
func (s *SQLiteIndex) RecordListener(port int, addr string) {
	if s == nil {
		return
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return
	}
	r := ListenerRecord{
		Port:    port,
		Addr:    addr,
		BoundAt: time.Now().UTC().Format(time.RFC3339Nano),
	}
	select {
	case s.ch <- req{kind: reqListener, listener: r}:
	default:
	}
}

// WriteCounters stores one counter snapshot row.
func (s *SQLiteIndex) WriteCounters(c CounterSnapshot) {
	if s == nil {
		return
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return
	}
	if c.TS == "" {
		c.TS = time.Now().UTC().Format(time.RFC3339Nano)
	}
	select {
	case s.ch <- req{kind: reqCounters, counters: c}:
	default:
	}
}

func (s *SQLiteIndex) loop() {
	upsertFrame, _ := s.db.Prepare(`INSERT INTO universes(port,universe,packets,bytes,last_seen) VALUES(?,?,1,?,?)
		ON CONFLICT(port,universe) DO UPDATE SET
			packets = packets + 1,
			bytes = bytes + excluded.bytes,
			last_seen = excluded.last_seen`)
	insertCounters, _ := s.db.Prepare(`INSERT OR REPLACE INTO counters(ts,packets,dmx_packets,sync_packets,malformed,unknown_ops,unroutable,voxels_written,dropped_triplets) VALUES(?,?,?,?,?,?,?,?,?)`)
	insertListener, _ := s.db.Prepare(`INSERT OR REPLACE INTO listeners(port,addr,bound_at) VALUES(?,?,?)`)
	defer func() {
		if upsertFrame != nil {
			_ = upsertFrame.Close()
		}
		if insertCounters != nil {
			_ = insertCounters.Close()
		}
		if insertListener != nil {
			_ = insertListener.Close()
		}
	}()

	for r := range s.ch {
		switch r.kind {
		case reqFrame:
			if upsertFrame != nil {
				_, _ = upsertFrame.Exec(r.frame.Port, int(r.frame.Universe), r.frame.Bytes, r.frame.TS)
			}
		case reqCounters:
			if insertCounters != nil {
				c := r.counters
				_, _ = insertCounters.Exec(c.TS, c.Packets, c.DmxPackets, c.SyncPackets,
					c.Malformed, c.UnknownOps, c.Unroutable, c.VoxelsWritten, c.DroppedTriplets)
			}
		case reqListener:
			if insertListener != nil {
				_, _ = insertListener.Exec(r.listener.Port, r.listener.Addr, r.listener.BoundAt)
			}
		case reqFlush:
			close(r.ack)
		}
	}
}

// Flush blocks until every request queued before the call has been applied.
// The queue is drained in order, so a sentinel acked by the writer means our
// earlier writes are visible.
func (s *SQLiteIndex) Flush(ctx context.Context) error {
	if s == nil {
		return nil
	}
	ack := make(chan struct{})
	s.mu.RLock()
	if s.closed {
		s.mu.RUnlock()
		return nil
	}
	// The send may block on a full queue; the writer keeps draining and
	// Close cannot close the channel while we hold the read lock.
	s.ch <- req{kind: reqFlush, ack: ack}
	s.mu.RUnlock()
	select {
	case <-ack:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// TopUniverses returns the busiest universes, most packets first.
func (s *SQLiteIndex) TopUniverses(ctx context.Context, limit int) ([]UniverseActivity, error) {
	if limit <= 0 {
		limit = 32
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT port, universe, packets, bytes, last_seen FROM universes ORDER BY packets DESC, port, universe LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []UniverseActivity
	for rows.Next() {
		var u UniverseActivity
		var universe int
		if err := rows.Scan(&u.Port, &universe, &u.Packets, &u.Bytes, &u.LastSeen); err != nil {
			return nil, err
		}
		u.Universe = uint16(universe)
		out = append(out, u)
	}
	return out, rows.Err()
}

// Listeners returns the recorded listener sockets.
func (s *SQLiteIndex) Listeners(ctx context.Context) ([]ListenerRecord, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT port, addr, bound_at FROM listeners ORDER BY port, addr`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ListenerRecord
	for rows.Next() {
		var l ListenerRecord
		if err := rows.Scan(&l.Port, &l.Addr, &l.BoundAt); err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

// LatestCounters returns the most recent counter snapshot, if any.
func (s *SQLiteIndex) LatestCounters(ctx context.Context) (CounterSnapshot, bool, error) {
	var c CounterSnapshot
	row := s.db.QueryRowContext(ctx,
		`SELECT ts,packets,dmx_packets,sync_packets,malformed,unknown_ops,unroutable,voxels_written,dropped_triplets
		 FROM counters ORDER BY ts DESC LIMIT 1`)
	err := row.Scan(&c.TS, &c.Packets, &c.DmxPackets, &c.SyncPackets,
		&c.Malformed, &c.UnknownOps, &c.Unroutable, &c.VoxelsWritten, &c.DroppedTriplets)
	if err == sql.ErrNoRows {
		return c, false, nil
	}
	if err != nil {
		return c, false, err
	}
	return c, true, nil
}
