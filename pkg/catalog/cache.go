// SPDX-License-Identifier: Apache-2.0

package catalog

import (
	"context"
	"sync"

	"github.com/RoaringBitmap/roaring/v2"

	"github.com/kvpg/kvpg/pkg/kvstore"
)

// tableIDCache tracks one namespace's live table ids in a roaring bitmap,
// an additive, best-effort speedup over re-scanning the schema prefix
// (ListTables) just to answer "how many tables exist". It is never the
// source of truth: every CreateTable/DropTable call still does its own
// kvstore.Txn read-modify-write first, and this cache is only updated
// after that call succeeds. A process restart, or a transaction that
// later rolls back after updating the cache, can leave it briefly
// inconsistent with storage; nothing in this package relies on the cache
// being correct for a correctness-affecting decision.
type tableIDCache struct {
	mu     sync.Mutex
	bitmap *roaring.Bitmap
	primed bool
}

var (
	cachesMu sync.Mutex
	caches   = map[string]*tableIDCache{}
)

func cacheFor(namespace string) *tableIDCache {
	cachesMu.Lock()
	defer cachesMu.Unlock()
	c, ok := caches[namespace]
	if !ok {
		c = &tableIDCache{bitmap: roaring.NewBitmap()}
		caches[namespace] = c
	}
	return c
}

func (c *tableIDCache) add(id uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.bitmap.Add(uint32(id))
}

func (c *tableIDCache) remove(id uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.bitmap.Remove(uint32(id))
}

func (c *tableIDCache) cardinality() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.bitmap.GetCardinality()
}

// primeTableIDCache rebuilds namespace's cache from storage the first
// time it's asked for a count, so a freshly started process doesn't
// report zero tables just because nothing has called CreateTable yet in
// this run.
func primeTableIDCache(ctx context.Context, txn kvstore.Txn, namespace string) error {
	c := cacheFor(namespace)
	c.mu.Lock()
	primed := c.primed
	c.mu.Unlock()
	if primed {
		return nil
	}
	names, err := ListTables(ctx, txn, namespace)
	if err != nil {
		return err
	}
	for _, n := range names {
		schema, ok, err := GetSchema(ctx, txn, namespace, n)
		if err != nil {
			return err
		}
		if ok {
			c.add(schema.TableID)
		}
	}
	c.mu.Lock()
	c.primed = true
	c.mu.Unlock()
	return nil
}

// LiveTableCount returns the namespace's live table count from the
// in-process cache, priming it from storage on first use. Consulted by
// EXPLAIN (pkg/executor) for FROM-less and multi-table plans, where
// per-query ListTables scans would be wasted work just to print a
// diagnostic line.
func LiveTableCount(ctx context.Context, txn kvstore.Txn, namespace string) (uint64, error) {
	if err := primeTableIDCache(ctx, txn, namespace); err != nil {
		return 0, err
	}
	return cacheFor(namespace).cardinality(), nil
}
