// Package cache persists repository relevance results between batch runs,
// so re-analyzing a ticket within the TTL skips the LLM entirely.
package cache

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/randalmurphal/ticketflow"
)

// DefaultTTL is how long cached relevance results stay valid.
const DefaultTTL = 24 * time.Hour

// entry is the on-disk cache record.
type entry struct {
	StoredAt time.Time         `json:"stored_at"`
	Repos    []ticketflow.Repo `json:"repos"`
}

// FileCache is a TTL-bound, file-per-ticket relevance cache. Safe for
// concurrent use within one process; concurrent processes get last-write-
// wins, which is acceptable for a cache.
type FileCache struct {
	mu  sync.Mutex
	dir string
	ttl time.Duration
	now func() time.Time
}

// New creates a cache under dir. A zero ttl means DefaultTTL.
func New(dir string, ttl time.Duration) (*FileCache, error) {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create cache dir: %w", err)
	}
	return &FileCache{dir: dir, ttl: ttl, now: time.Now}, nil
}

// Get implements ticketflow.RelevanceCache. Expired entries are removed
// on read.
func (c *FileCache) Get(ticketKey string) ([]ticketflow.Repo, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	path := c.path(ticketKey)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, false
	}

	var e entry
	if err := json.Unmarshal(data, &e); err != nil {
		_ = os.Remove(path)
		return nil, false
	}
	if c.now().Sub(e.StoredAt) > c.ttl {
		_ = os.Remove(path)
		return nil, false
	}
	return e.Repos, true
}

// Put implements ticketflow.RelevanceCache.
func (c *FileCache) Put(ticketKey string, repos []ticketflow.Repo) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	data, err := json.Marshal(entry{
		StoredAt: c.now().UTC(),
		Repos:    repos,
	})
	if err != nil {
		return fmt.Errorf("marshal cache entry: %w", err)
	}
	if err := os.WriteFile(c.path(ticketKey), data, 0o644); err != nil {
		return fmt.Errorf("write cache entry: %w", err)
	}
	return nil
}

// Purge removes every expired entry and returns how many were removed.
func (c *FileCache) Purge() (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entries, err := os.ReadDir(c.dir)
	if err != nil {
		return 0, fmt.Errorf("read cache dir: %w", err)
	}

	removed := 0
	for _, de := range entries {
		if de.IsDir() || !strings.HasSuffix(de.Name(), ".json") {
			continue
		}
		path := filepath.Join(c.dir, de.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		var e entry
		if json.Unmarshal(data, &e) != nil || c.now().Sub(e.StoredAt) > c.ttl {
			if os.Remove(path) == nil {
				removed++
			}
		}
	}
	return removed, nil
}

// path maps a ticket key onto a safe filename.
func (c *FileCache) path(ticketKey string) string {
	safe := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		}
		return '_'
	}, ticketKey)
	return filepath.Join(c.dir, safe+".json")
}
