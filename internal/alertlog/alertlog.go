// Package alertlog persists alerts to an append-only JSON Lines file.
package alertlog

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/STRATINT/alertwatch/internal/models"
)

// maxLineSize bounds a single log line when reading back.
const maxLineSize = 1 << 20

// Log is an append-only alert log. Each Append opens, writes one line,
// syncs and closes the file so an interrupted process never leaves a
// partial record behind a complete one.
type Log struct {
	path string
	mu   sync.Mutex
}

// New returns a log backed by path. The file is created on first Append.
func New(path string) *Log {
	return &Log{path: path}
}

// Path returns the file path.
func (l *Log) Path() string {
	return l.path
}

// Append writes alert as one JSON line.
func (l *Log) Append(alert models.Alert) error {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(alert); err != nil {
		return fmt.Errorf("encode alert %s: %w", alert.ID, err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	f, err := os.OpenFile(l.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open alert log: %w", err)
	}

	if _, err := f.Write(buf.Bytes()); err != nil {
		f.Close()
		return fmt.Errorf("write alert log: %w", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return fmt.Errorf("sync alert log: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close alert log: %w", err)
	}
	return nil
}

type idOnly struct {
	ID models.PostID `json:"id"`
}

// LoadIDs streams every id recorded in the log to fn in file order.
// A missing file is an empty log. Malformed lines, lines without an id and
// lines longer than maxLineSize are counted in skipped and otherwise ignored.
func (l *Log) LoadIDs(fn func(models.PostID)) (loaded, skipped int, err error) {
	oversized, err := l.scan(func(line []byte) {
		var rec idOnly
		if json.Unmarshal(line, &rec) != nil || rec.ID == "" {
			skipped++
			return
		}
		fn(rec.ID)
		loaded++
	})
	return loaded, skipped + oversized, err
}

// Recent returns up to n of the most recent well-formed alerts, newest first.
func (l *Log) Recent(n int) ([]models.Alert, error) {
	if n <= 0 {
		return []models.Alert{}, nil
	}

	ring := make([]models.Alert, n)
	count, head := 0, 0
	_, err := l.scan(func(line []byte) {
		var a models.Alert
		if json.Unmarshal(line, &a) != nil || a.ID == "" {
			return
		}
		ring[head] = a
		head = (head + 1) % n
		if count < n {
			count++
		}
	})
	if err != nil {
		return nil, err
	}

	out := make([]models.Alert, count)
	for i := range out {
		out[i] = ring[(head-1-i+n)%n]
	}
	return out, nil
}

// scan calls fn with every non-blank line. Lines longer than maxLineSize are
// discarded without buffering them and reported in oversized.
func (l *Log) scan(fn func(line []byte)) (oversized int, err error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	f, err := os.Open(l.path)
	if errors.Is(err, os.ErrNotExist) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("open alert log: %w", err)
	}
	defer f.Close()

	r := bufio.NewReaderSize(f, 64*1024)
	var (
		buf     []byte
		tooLong bool
	)
	for {
		chunk, readErr := r.ReadSlice('\n')
		if !tooLong {
			if len(buf)+len(chunk) > maxLineSize {
				tooLong = true
				buf = buf[:0]
			} else {
				buf = append(buf, chunk...)
			}
		}

		if errors.Is(readErr, bufio.ErrBufferFull) {
			continue
		}
		if readErr != nil && !errors.Is(readErr, io.EOF) {
			return oversized, fmt.Errorf("read alert log: %w", readErr)
		}

		if tooLong {
			oversized++
		} else if line := bytes.TrimSpace(buf); len(line) > 0 {
			fn(line)
		}
		buf = buf[:0]
		tooLong = false

		if readErr != nil {
			return oversized, nil
		}
	}
}
