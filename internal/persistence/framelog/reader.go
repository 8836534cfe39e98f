package framelog

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/klauspost/compress/zstd"
)

// Reader streams entries back out of one frame log file.
type Reader struct {
	f   *os.File
	dec *zstd.Decoder
	sc  *bufio.Scanner
}

func OpenReader(path string) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	dec, err := zstd.NewReader(f)
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	sc := bufio.NewScanner(dec)
	sc.Buffer(make([]byte, 0, 64*1024), 1<<20)
	return &Reader{f: f, dec: dec, sc: sc}, nil
}

// Next returns the next entry. ok is false once the stream ends; a clean
// end carries a nil error.
func (r *Reader) Next() (Entry, bool, error) {
	if !r.sc.Scan() {
		return Entry{}, false, r.sc.Err()
	}
	var e Entry
	if err := json.Unmarshal(r.sc.Bytes(), &e); err != nil {
		return Entry{}, false, fmt.Errorf("frame log entry: %w", err)
	}
	return e, true, nil
}

func (r *Reader) Close() error {
	r.dec.Close()
	return r.f.Close()
}

// LogFiles lists the frame log files under dir in rotation order.
func LogFiles(dir string) ([]string, error) {
	var out []string
	root := filepath.Join(dir, "frames")
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && strings.HasSuffix(path, ".jsonl.zst") {
			out = append(out, path)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(out)
	return out, nil
}

// Walk replays every entry of every log file under dir, in order.
func Walk(dir string, fn func(Entry) error) error {
	files, err := LogFiles(dir)
	if err != nil {
		return err
	}
	for _, path := range files {
		r, err := OpenReader(path)
		if err != nil {
			return err
		}
		for {
			e, ok, err := r.Next()
			if err != nil {
				_ = r.Close()
				return err
			}
			if !ok {
				break
			}
			if err := fn(e); err != nil {
				_ = r.Close()
				return err
			}
		}
		if err := r.Close(); err != nil {
			return err
		}
	}
	return nil
}
