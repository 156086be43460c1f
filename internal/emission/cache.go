package emission

import (
	"fmt"
	"os"
	"sync"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/mjsandells/snowschool2024/internal/snowpack"
)

// Cache memoizes forward-model results on disk so interactive re-runs and
// sensitivity sweeps do not pay for simulations they have already done.
// Entries are keyed by the full sensor and snowpack content, so a stale hit
// is impossible; a changed parameter is a different key. The file is
// msgpack-encoded and rewritten on Flush.
type Cache struct {
	path string

	mu      sync.Mutex
	entries map[string]Result
	dirty   bool
}

// OpenCache loads a cache file, creating an empty cache when the file does
// not exist yet.
func OpenCache(path string) (*Cache, error) {
	c := &Cache{path: path, entries: make(map[string]Result)}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return c, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open result cache %s: %w", path, err)
	}
	if err := msgpack.Unmarshal(data, &c.entries); err != nil {
		return nil, fmt.Errorf("decode result cache %s: %w", path, err)
	}
	return c, nil
}

// Get returns the cached result for the sensor/snowpack pair, if present.
func (c *Cache) Get(sensor Sensor, sp snowpack.Description) (Result, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	res, ok := c.entries[cacheKey(sensor, sp)]
	return res, ok
}

// Put records a result. The entry is held in memory until Flush.
func (c *Cache) Put(sensor Sensor, sp snowpack.Description, res Result) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[cacheKey(sensor, sp)] = res
	c.dirty = true
}

// Len returns the number of cached results.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Flush writes the cache back to disk if anything changed since load.
func (c *Cache) Flush() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.dirty {
		return nil
	}
	data, err := msgpack.Marshal(c.entries)
	if err != nil {
		return fmt.Errorf("encode result cache: %w", err)
	}
	if err := os.WriteFile(c.path, data, 0o644); err != nil {
		return fmt.Errorf("write result cache %s: %w", c.path, err)
	}
	c.dirty = false
	return nil
}

func cacheKey(sensor Sensor, sp snowpack.Description) string {
	sub, hasSub := sp.Substrate()
	return fmt.Sprintf("%s||%+v||%v|%+v", sensor.key(), sp.Layers(), hasSub, sub)
}
