// Package runlog persists run records as append-only JSON lines, one file
// per day, so batch history survives process restarts and is greppable.
package runlog

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Entry wraps a record with its envelope.
type Entry struct {
	Timestamp time.Time       `json:"timestamp"`
	Kind      string          `json:"kind"`
	Record    json.RawMessage `json:"record"`
}

// Writer appends entries to daily JSONL files under a base directory.
// Safe for concurrent use.
type Writer struct {
	mu  sync.Mutex
	dir string
}

// NewWriter creates the log directory if needed.
func NewWriter(dir string) (*Writer, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create run log dir: %w", err)
	}
	return &Writer{dir: dir}, nil
}

// Append writes one record of the given kind.
func (w *Writer) Append(kind string, record any) error {
	raw, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("marshal %s record: %w", kind, err)
	}
	entry := Entry{
		Timestamp: time.Now().UTC(),
		Kind:      kind,
		Record:    raw,
	}
	line, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshal log entry: %w", err)
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	path := filepath.Join(w.dir, entry.Timestamp.Format("2006-01-02")+".jsonl")
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open run log: %w", err)
	}
	defer f.Close()

	if _, err := f.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("write run log: %w", err)
	}
	return nil
}

// ReadDay returns all entries logged on the given date.
func ReadDay(dir string, day time.Time) ([]Entry, error) {
	path := filepath.Join(dir, day.UTC().Format("2006-01-02")+".jsonl")
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read run log: %w", err)
	}

	var entries []Entry
	dec := json.NewDecoder(bytes.NewReader(data))
	for dec.More() {
		var e Entry
		if err := dec.Decode(&e); err != nil {
			return entries, fmt.Errorf("decode run log entry: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, nil
}
