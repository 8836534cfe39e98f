// Package framelog records routed DMX frames as compressed JSONL, one file
// per hour, so a show can be replayed later against the same topology.
package framelog

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/klauspost/compress/zstd"
)

// Entry is one routed DMX frame. Data is the raw payload, base64 in JSON.
type Entry struct {
	TS       time.Time `json:"ts"`
	Port     int       `json:"port"`
	Universe uint16    `json:"universe"`
	Data     []byte    `json:"data"`
}

// JSONLZstdWriter appends JSON lines to an hourly-rotated zstd stream.
type JSONLZstdWriter struct {
	baseDir string
	prefix  string

	mu      sync.Mutex
	curHour string
	f       *os.File
	enc     *zstd.Encoder
	w       *bufio.Writer
}

func NewJSONLZstdWriter(baseDir, prefix string) *JSONLZstdWriter {
	return &JSONLZstdWriter{
		baseDir: baseDir,
		prefix:  prefix,
	}
}

func (w *JSONLZstdWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.closeLocked()
}

func (w *JSONLZstdWriter) Write(v any) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	hour := time.Now().UTC().Format("2006-01-02-15")
	if hour != w.curHour {
		if err := w.rotateLocked(hour); err != nil {
			return err
		}
	}

	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if _, err := w.w.Write(b); err != nil {
		return err
	}
	if err := w.w.WriteByte('\n'); err != nil {
		return err
	}
	return w.w.Flush()
}

func (w *JSONLZstdWriter) rotateLocked(hour string) error {
	if err := w.closeLocked(); err != nil {
		return err
	}
	dir := filepath.Dir(w.pathForHour(hour))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(w.pathForHour(hour), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedFastest))
	if err != nil {
		_ = f.Close()
		return err
	}
	w.f = f
	w.enc = enc
	w.w = bufio.NewWriterSize(enc, 128*1024)
	w.curHour = hour
	return nil
}

func (w *JSONLZstdWriter) closeLocked() error {
	var err1 error
	if w.w != nil {
		_ = w.w.Flush()
	}
	if w.enc != nil {
		err1 = w.enc.Close()
		w.enc = nil
	}
	if w.f != nil {
		_ = w.f.Close()
		w.f = nil
	}
	w.w = nil
	return err1
}

func (w *JSONLZstdWriter) pathForHour(hour string) string {
	return filepath.Join(w.baseDir, fmt.Sprintf("%s-%s.jsonl.zst", w.prefix, hour))
}

// Recorder buffers routed frames from the listener goroutines and writes
// them off the hot path. A full buffer drops the frame rather than stalling
// ingest.
type Recorder struct {
	w    *JSONLZstdWriter
	ch   chan Entry
	done chan struct{}

	mu      sync.RWMutex
	closed  bool
	dropped atomic.Uint64
}

func NewRecorder(dir string) *Recorder {
	r := &Recorder{
		w:    NewJSONLZstdWriter(filepath.Join(dir, "frames"), "frames"),
		ch:   make(chan Entry, 4096),
		done: make(chan struct{}),
	}
	go r.run()
	return r
}

func (r *Recorder) run() {
	defer close(r.done)
	for e := range r.ch {
		if err := r.w.Write(e); err != nil {
			r.dropped.Add(1)
		}
	}
}

// RecordFrame copies the payload (the caller reuses its receive buffer) and
// queues it for the writer goroutine.
func (r *Recorder) RecordFrame(port int, universe uint16, data []byte) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		return
	}
	e := Entry{
		TS:       time.Now().UTC(),
		Port:     port,
		Universe: universe,
		Data:     append([]byte(nil), data...),
	}
	select {
	case r.ch <- e:
	default:
		r.dropped.Add(1)
	}
}

// Dropped reports frames lost to backpressure or write errors.
func (r *Recorder) Dropped() uint64 { return r.dropped.Load() }

// Close drains the queue and closes the underlying writer. Frames recorded
// after Close are discarded.
func (r *Recorder) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	close(r.ch)
	r.mu.Unlock()
	<-r.done
	return r.w.Close()
}
