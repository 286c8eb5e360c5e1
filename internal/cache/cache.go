// Package cache is the durable, resumable store of parsed lots.
package cache

import (
	"context"
	"sort"
	"sync"

	"github.com/rotisserie/eris"

	"github.com/sells-group/bankrot-cli/internal/model"
)

// Backend persists the cache map. Save receives the full in-memory snapshot
// plus the ids changed since the previous save; a backend must either apply
// the whole change or leave its prior state intact.
type Backend interface {
	Load(ctx context.Context) (map[string]model.CacheEntry, error)
	Save(ctx context.Context, snapshot map[string]model.CacheEntry, dirty []string) error
	Location() string
	Close() error
}

// Reader is the read-only view handed to components that may look at
// already-cached siblings.
type Reader interface {
	Get(id string) (model.CacheEntry, bool)
	Siblings(lot model.Lot) []model.Lot
}

// Cache holds every persisted lot in memory. Put and Flush are meant for a
// single writer; reads are safe from any goroutine.
type Cache struct {
	backend Backend

	mu      sync.RWMutex
	entries map[string]model.CacheEntry
	dirty   map[string]struct{}
	flushes int
}

// Open loads the backend's persisted state into memory.
func Open(ctx context.Context, backend Backend) (*Cache, error) {
	entries, err := backend.Load(ctx)
	if err != nil {
		return nil, &IOError{Op: "load", Location: backend.Location(), Err: err}
	}
	if entries == nil {
		entries = make(map[string]model.CacheEntry)
	}
	return &Cache{
		backend: backend,
		entries: entries,
		dirty:   make(map[string]struct{}),
	}, nil
}

// Get returns the cached entry for id.
func (c *Cache) Get(id string) (model.CacheEntry, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[id]
	return e, ok
}

// Put stages an entry for the next Flush.
func (c *Cache) Put(entry model.CacheEntry) error {
	if entry.Lot.ID == "" {
		return eris.New("cache: put: empty lot id")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[entry.Lot.ID] = entry
	c.dirty[entry.Lot.ID] = struct{}{}
	return nil
}

// Flush durably writes staged entries. It is a no-op when nothing changed.
func (c *Cache) Flush(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.dirty) == 0 {
		return nil
	}

	dirty := make([]string, 0, len(c.dirty))
	for id := range c.dirty {
		dirty = append(dirty, id)
	}
	sort.Strings(dirty)

	if err := c.backend.Save(ctx, c.entries, dirty); err != nil {
		return &IOError{Op: "flush", Location: c.backend.Location(), Err: err}
	}
	c.dirty = make(map[string]struct{})
	c.flushes++
	return nil
}

// Flushes returns how many flushes actually wrote to the backend.
func (c *Cache) Flushes() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.flushes
}

// Len returns the number of cached lots.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// All returns every entry ordered by lot id.
func (c *Cache) All() []model.CacheEntry {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]model.CacheEntry, 0, len(c.entries))
	for _, e := range c.entries {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Lot.ID < out[j].Lot.ID })
	return out
}

// CountByStatus tallies cached lots per status.
func (c *Cache) CountByStatus() map[model.LotStatus]int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	counts := make(map[model.LotStatus]int)
	for _, e := range c.entries {
		counts[e.Lot.Status]++
	}
	return counts
}

// Siblings returns other cached lots sharing the debtor INN or case number.
func (c *Cache) Siblings(lot model.Lot) []model.Lot {
	if lot.DebtorINN == "" && lot.CaseNumber == "" {
		return nil
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	var out []model.Lot
	for id, e := range c.entries {
		if id == lot.ID {
			continue
		}
		if (lot.DebtorINN != "" && e.Lot.DebtorINN == lot.DebtorINN) ||
			(lot.CaseNumber != "" && e.Lot.CaseNumber == lot.CaseNumber) {
			out = append(out, e.Lot)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Close releases the backend.
func (c *Cache) Close() error {
	return c.backend.Close()
}
