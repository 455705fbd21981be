// Copyright (c) 2025 The stakemesh developers
//
// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

// Package cache holds in-memory caches of values that are expensive to
// compute and never change for a key, such as signature checks.
package cache

import lru "github.com/hashicorp/golang-lru"

// LRU is a bounded cache that loads missing entries on demand.
type LRU struct {
	cache *lru.Cache
	stats Stats
}

// NewLRU creates a cache of at most size entries. size must be positive.
func NewLRU(size int) (*LRU, error) {
	c, err := lru.New(size)
	if err != nil {
		return nil, err
	}
	return &LRU{cache: c}, nil
}

// Loader computes the value of a missing key.
type Loader func() (any, error)

// GetOrLoad returns the cached value of key, loading and caching it on a
// miss. Load errors are not cached.
func (l *LRU) GetOrLoad(key any, load Loader) (any, error) {
	if v, ok := l.cache.Get(key); ok {
		l.stats.Hit()
		return v, nil
	}
	l.stats.Miss()
	v, err := load()
	if err != nil {
		return nil, err
	}
	l.cache.Add(key, v)
	return v, nil
}

func (l *LRU) Len() int {
	return l.cache.Len()
}

// Stats returns the hit and miss counts.
func (l *LRU) Stats() *Stats {
	return &l.stats
}
