// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

package pipeline

import (
	"sync"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/chart/device"
	"github.com/gogpu/chart/internal/logging"
)

// Shared is the process-wide cache charts use by default.
var Shared = NewCache()

type cacheKey struct {
	dev    hal.Device
	format gputypes.TextureFormat
}

type cacheEntry struct {
	set  *Set
	refs int
}

// Cache shares pipeline sets between charts on the same device and target
// format. Sets are reference counted and destroyed on their last Release;
// nothing is ever evicted while referenced.
//
// Cache is safe for concurrent use.
type Cache struct {
	mu      sync.Mutex
	entries map[cacheKey]*cacheEntry
	owners  map[*Set]cacheKey
}

// NewCache creates an empty cache.
func NewCache() *Cache {
	return &Cache{
		entries: make(map[cacheKey]*cacheEntry),
		owners:  make(map[*Set]cacheKey),
	}
}

// Acquire returns the set for dev and format, creating it on first use.
// Every successful Acquire must be paired with a Release.
func (c *Cache) Acquire(dev *device.Device, format gputypes.TextureFormat) (*Set, error) {
	key := cacheKey{dev: dev.HAL(), format: format}

	// Creation happens under the lock so two charts racing on the same key
	// never build the pipelines twice.
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.entries[key]; ok {
		e.refs++
		return e.set, nil
	}
	s, err := NewSet(dev, format)
	if err != nil {
		return nil, err
	}
	c.entries[key] = &cacheEntry{set: s, refs: 1}
	c.owners[s] = key
	return s, nil
}

// Release drops one reference to s and destroys it when none remain.
// Releasing a set the cache does not own is a no-op.
func (c *Cache) Release(s *Set) {
	if s == nil {
		return
	}
	c.mu.Lock()
	key, ok := c.owners[s]
	if !ok {
		c.mu.Unlock()
		return
	}
	e := c.entries[key]
	e.refs--
	last := e.refs == 0
	if last {
		delete(c.entries, key)
		delete(c.owners, s)
	}
	c.mu.Unlock()

	if last {
		s.Destroy()
		logging.Logger().Debug("pipeline: set destroyed", "format", key.format)
	}
}

// Refs returns the reference count of s, 0 if the cache does not own it.
func (c *Cache) Refs(s *Set) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	if key, ok := c.owners[s]; ok {
		return c.entries[key].refs
	}
	return 0
}

// Len returns the number of live sets.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
