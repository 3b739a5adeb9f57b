// Copyright 2025 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package graphstore

import (
	lru "github.com/hashicorp/golang-lru/v2"
)

// defaultCacheSize bounds memory use when the caller passes a
// non-positive size to NewStore.
const defaultCacheSize = 256

// queryCache is a bounded cache of query results keyed on
// "<ontology hash>:<query text>", so a changed ontology never serves a
// stale result under a colliding key.
type queryCache struct {
	lru *lru.Cache[string, QueryResult]
}

func newQueryCache(size int) *queryCache {
	if size <= 0 {
		size = defaultCacheSize
	}
	c, err := lru.New[string, QueryResult](size)
	if err != nil {
		// Only returned for a non-positive size, which is excluded above.
		panic(err)
	}
	return &queryCache{lru: c}
}

func (c *queryCache) get(key string) (QueryResult, bool) {
	return c.lru.Get(key)
}

func (c *queryCache) put(key string, res QueryResult) {
	c.lru.Add(key, res)
}
