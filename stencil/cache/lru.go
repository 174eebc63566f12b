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
	"container/list"
	"sync"

	"github.com/sinayoko/stencil-code/stencil/backend"
)

// LRU layers a bounded eviction policy over a Cache: it delegates every
// build to the wrapped Cache (so the at-most-one-build and
// positive/negative caching guarantees still hold) but additionally evicts
// the least-recently-used fingerprint once more than capacity distinct
// fingerprints have been requested.
type LRU struct {
	inner    *Cache
	capacity int

	mu    sync.Mutex
	order *list.List               // front = most recently used
	pos   map[string]*list.Element // key -> its element in order
}

// NewLRU wraps inner with a bounded LRU eviction policy of the given
// capacity. capacity <= 0 disables eviction (equivalent to using inner
// directly).
func NewLRU(inner *Cache, capacity int) *LRU {
	return &LRU{
		inner:    inner,
		capacity: capacity,
		order:    list.New(),
		pos:      make(map[string]*list.Element),
	}
}

// GetOrBuild behaves like Cache.GetOrBuild, additionally recording fp as
// most-recently-used and evicting the oldest entry if capacity is
// exceeded.
func (l *LRU) GetOrBuild(fp Fingerprint, build BuildFunc) (backend.Artifact, error) {
	art, err := l.inner.GetOrBuild(fp, build)
	l.touch(fp)
	return art, err
}

func (l *LRU) touch(fp Fingerprint) {
	if l.capacity <= 0 {
		return
	}
	key := fp.Key()

	l.mu.Lock()
	defer l.mu.Unlock()

	if el, ok := l.pos[key]; ok {
		l.order.MoveToFront(el)
		return
	}
	l.pos[key] = l.order.PushFront(key)

	for l.order.Len() > l.capacity {
		oldest := l.order.Back()
		if oldest == nil {
			break
		}
		evictKey := l.order.Remove(oldest).(string)
		delete(l.pos, evictKey)
		l.inner.forgetByKey(evictKey)
	}
}

// forgetByKey drops a raw cache key, used by LRU eviction which tracks
// keys rather than Fingerprint values.
func (c *Cache) forgetByKey(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
}
