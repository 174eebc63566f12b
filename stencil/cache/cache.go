// Copyright 2025 go-highway Authors
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

package cache

import (
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/sinayoko/stencil-code/stencil/backend"
)

// entry is one cached build outcome: exactly one of artifact or err is
// set. A cached failure is simply an entry whose err is non-nil.
type entry struct {
	artifact backend.Artifact
	err      error
}

// BuildFunc compiles a fresh artifact for the fingerprint it was requested
// under. It is invoked at most once per fingerprint, even under concurrent
// callers, for as long as that fingerprint's entry stays cached (Forget or
// LRU eviction drops the entry, and the next lookup builds again).
type BuildFunc func() (backend.Artifact, error)

// Cache maps fingerprints to compiled artifacts. A singleflight.Group
// gives the at-most-one-concurrent-compile-per-fingerprint guarantee
// directly: concurrent misses on the same key collapse into one call to
// BuildFunc and all of them observe its result.
//
// Eviction is disabled by default; Len reports the live entry count, and
// NewLRU wraps a Cache with bounded eviction for callers who want that
// instead.
type Cache struct {
	mu      sync.RWMutex
	entries map[string]entry
	group   singleflight.Group
	store   *Store // nil unless persistence was configured
}

// New creates an empty Cache with no eviction policy and no persisted
// backing store.
func New() *Cache {
	return &Cache{entries: make(map[string]entry)}
}

// NewPersistent creates a Cache that additionally writes every successful
// build to store and consults store on a cold miss.
func NewPersistent(store *Store) *Cache {
	c := New()
	c.store = store
	return c
}

// GetOrBuild returns the artifact for fp, building it via build on a cache
// miss. A previously cached failure is re-raised without invoking build
// again.
func (c *Cache) GetOrBuild(fp Fingerprint, build BuildFunc) (backend.Artifact, error) {
	key := fp.Key()

	if e, ok := c.lookup(key); ok {
		return e.artifact, e.err
	}

	v, err, _ := c.group.Do(key, func() (any, error) {
		// Re-check under the singleflight slot: a previous Do call for this
		// key may have finished and populated entries between our lookup
		// above and acquiring the slot.
		if e, ok := c.lookup(key); ok {
			return e, nil
		}

		if c.store != nil {
			if art, ok, loadErr := c.store.Load(fp); ok && loadErr == nil {
				e := entry{artifact: art}
				c.put(key, e)
				return e, nil
			}
		}

		art, buildErr := build()
		e := entry{artifact: art, err: buildErr}
		c.put(key, e)
		if buildErr == nil && c.store != nil {
			_ = c.store.Save(fp, art)
		}
		return e, nil
	})
	if err != nil {
		// The closure above always returns a nil error: build errors are
		// carried inside the entry itself so they get cached. This branch
		// is defensive only.
		return nil, err
	}
	e := v.(entry)
	return e.artifact, e.err
}

func (c *Cache) lookup(key string) (entry, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[key]
	return e, ok
}

func (c *Cache) put(key string, e entry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = e
}

// Len reports the number of distinct fingerprints currently cached
// (successes and failures both).
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Forget drops fp's cached entry, if any. Not used by the default
// no-eviction policy; exposed for callers and tests that want to force a
// rebuild. LRU eviction drops entries through forgetByKey instead.
func (c *Cache) Forget(fp Fingerprint) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, fp.Key())
}
