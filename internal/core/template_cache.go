package core

import (
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/JonMunkholm/ecpack/internal/sheet"
	"golang.org/x/sync/singleflight"
)

// TemplateCache parses template workbooks once and shares them between
// jobs. A template is re-read when its file changes on disk. Concurrent
// misses for the same path share a single load.
type TemplateCache struct {
	group singleflight.Group

	mu      sync.RWMutex
	entries map[string]templateEntry
	loads   int
}

type templateEntry struct {
	tp      *sheet.Template
	modTime time.Time
	size    int64
}

// NewTemplateCache creates an empty cache.
func NewTemplateCache() *TemplateCache {
	return &TemplateCache{entries: make(map[string]templateEntry)}
}

// Get returns the parsed template at path.
func (c *TemplateCache) Get(path string) (*sheet.Template, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("template %s: %w", path, err)
	}

	c.mu.RLock()
	e, ok := c.entries[path]
	c.mu.RUnlock()
	if ok && e.modTime.Equal(info.ModTime()) && e.size == info.Size() {
		return e.tp, nil
	}

	v, err, _ := c.group.Do(path, func() (any, error) {
		tp, err := sheet.LoadTemplate(path)
		if err != nil {
			return nil, err
		}
		c.mu.Lock()
		c.entries[path] = templateEntry{tp: tp, modTime: info.ModTime(), size: info.Size()}
		c.loads++
		c.mu.Unlock()
		return tp, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*sheet.Template), nil
}

// Loads returns how many times a template was parsed from disk.
func (c *TemplateCache) Loads() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.loads
}
