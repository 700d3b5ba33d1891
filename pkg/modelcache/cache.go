// Copyright 2025 Kadir Pekel
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package modelcache implements the Model Cache: a TTL-evicted, single-
// flighted map from (kind, model_id) to a loaded model wrapper. Grounded on
// original_source/runtimes/universal/utils/model_cache.py's refresh-on-read
// TTL semantics and pop_expired contract, re-expressed with a background
// janitor goroutine and golang.org/x/sync/singleflight in place of asyncio.
package modelcache

import (
	"container/list"
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// Wrapper is the minimal surface the cache needs to manage a loaded model:
// every concrete model wrapper kind in pkg/models satisfies this.
type Wrapper interface {
	Kind() string
	Unload(ctx context.Context) error
}

// Key identifies a cached entry as "kind:model_id".
func Key(kind, modelID string) string {
	return kind + ":" + modelID
}

type entry struct {
	key        string
	wrapper    Wrapper
	lastAccess time.Time
	lruElem    *list.Element
}

// Expired is one entry popped by PopExpired, handed back to the caller for
// an async Unload outside the cache's lock.
type Expired struct {
	Key     string
	Wrapper Wrapper
}

// Option configures a Cache.
type Option func(*Cache)

// WithTTL sets the idle-time-to-live before an entry is eligible for eviction.
func WithTTL(ttl time.Duration) Option {
	return func(c *Cache) { c.ttl = ttl }
}

// WithPollInterval sets how often the background janitor sweeps for expired entries.
func WithPollInterval(d time.Duration) Option {
	return func(c *Cache) { c.pollInterval = d }
}

// WithMaxSize bounds the number of resident entries; inserts beyond this
// synchronously evict the least-recently-used entry.
func WithMaxSize(n int) Option {
	return func(c *Cache) { c.maxSize = n }
}

// Cache is a TTL map from cache key to a loaded model wrapper, keyed by
// "kind:model_id", with single-flighted loads.
type Cache struct {
	mu      sync.Mutex
	items   map[string]*entry
	lru     *list.List // front = most recently used
	ttl     time.Duration
	pollInterval time.Duration
	maxSize int

	group singleflight.Group

	stopOnce sync.Once
	stopCh   chan struct{}
	doneCh   chan struct{}
}

// New builds a Cache with a 300s TTL and 30s poll interval by default.
func New(opts ...Option) *Cache {
	c := &Cache{
		items:        make(map[string]*entry),
		lru:          list.New(),
		ttl:          300 * time.Second,
		pollInterval: 30 * time.Second,
		stopCh:       make(chan struct{}),
		doneCh:       make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Get returns the wrapper for key and refreshes its last-access timestamp.
func (c *Cache) Get(key string) (Wrapper, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.items[key]
	if !ok {
		return nil, false
	}
	e.lastAccess = time.Now()
	c.lru.MoveToFront(e.lruElem)
	return e.wrapper, true
}

// Put inserts wrapper under key with a fresh timestamp. If inserting would
// exceed maxSize, the least-recently-used entry is evicted synchronously
// (its Unload is the caller's responsibility via the returned Expired, if any).
func (c *Cache) Put(key string, wrapper Wrapper) *Expired {
	c.mu.Lock()
	defer c.mu.Unlock()

	if existing, ok := c.items[key]; ok {
		existing.wrapper = wrapper
		existing.lastAccess = time.Now()
		c.lru.MoveToFront(existing.lruElem)
		return nil
	}

	e := &entry{key: key, wrapper: wrapper, lastAccess: time.Now()}
	e.lruElem = c.lru.PushFront(key)
	c.items[key] = e

	if c.maxSize <= 0 || len(c.items) <= c.maxSize {
		return nil
	}

	back := c.lru.Back()
	if back == nil {
		return nil
	}
	evictKey := back.Value.(string)
	if evictKey == key {
		return nil
	}
	evicted := c.items[evictKey]
	delete(c.items, evictKey)
	c.lru.Remove(back)
	return &Expired{Key: evictKey, Wrapper: evicted.wrapper}
}

// PopExpired atomically removes and returns every entry whose idle time
// exceeds ttl. Pass ttl=0 to pop everything (used for the final shutdown sweep).
func (c *Cache) PopExpired(ttl time.Duration) []Expired {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	var expired []Expired
	for key, e := range c.items {
		if now.Sub(e.lastAccess) >= ttl {
			expired = append(expired, Expired{Key: key, Wrapper: e.wrapper})
			delete(c.items, key)
			c.lru.Remove(e.lruElem)
		}
	}
	return expired
}

// IdleTime reports how long key has gone unaccessed, and whether it exists.
func (c *Cache) IdleTime(key string) (time.Duration, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.items[key]
	if !ok {
		return 0, false
	}
	return time.Since(e.lastAccess), true
}

// Delete removes key without returning it for unload (caller already unloaded it).
func (c *Cache) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.items[key]; ok {
		delete(c.items, key)
		c.lru.Remove(e.lruElem)
	}
}

// Len reports the number of resident entries.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}

// EnsureLoaded loads the wrapper for (kind, id) via loader, single-flighted
// per key so concurrent callers for the same key share one load and observe
// the same wrapper, and stores the result in the cache before returning it.
func (c *Cache) EnsureLoaded(ctx context.Context, kind, id string, loader func(ctx context.Context) (Wrapper, error)) (Wrapper, error) {
	key := Key(kind, id)
	if w, ok := c.Get(key); ok {
		return w, nil
	}

	v, err, _ := c.group.Do(key, func() (interface{}, error) {
		if w, ok := c.Get(key); ok {
			return w, nil
		}
		w, err := loader(ctx)
		if err != nil {
			return nil, err
		}
		c.Put(key, w)
		return w, nil
	})
	if err != nil {
		return nil, fmt.Errorf("modelcache: ensure loaded %s: %w", key, err)
	}
	return v.(Wrapper), nil
}

// StartJanitor runs PopExpired every poll interval, unloading each expired
// wrapper outside the cache's lock, until ctx is cancelled or Shutdown is
// called. On exit it performs one final sweep with ttl=0.
func (c *Cache) StartJanitor(ctx context.Context) {
	go func() {
		defer close(c.doneCh)
		ticker := time.NewTicker(c.pollInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				c.sweep(context.Background(), 0)
				return
			case <-c.stopCh:
				c.sweep(context.Background(), 0)
				return
			case <-ticker.C:
				c.sweep(ctx, c.ttl)
			}
		}
	}()
}

func (c *Cache) sweep(ctx context.Context, ttl time.Duration) {
	for _, exp := range c.PopExpired(ttl) {
		if err := exp.Wrapper.Unload(ctx); err != nil {
			slog.Warn("modelcache: unload failed during sweep", "key", exp.Key, "error", err)
		}
	}
}

// Shutdown stops the janitor and waits for its final sweep to complete.
func (c *Cache) Shutdown() {
	c.stopOnce.Do(func() { close(c.stopCh) })
	<-c.doneCh
}
