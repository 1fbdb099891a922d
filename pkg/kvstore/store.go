// SPDX-License-Identifier: Apache-2.0

// Package kvstore defines the transactional key-value store seam the
// storage mapper (pkg/catalog) is built on, plus the process-wide pool of
// store handles (spec.md §5). The actual wire protocol to a distributed
// store is an external collaborator (spec.md §1); this package defines
// the interface every component above it programs against, and ships one
// concrete, in-memory implementation (pkg/kvstore/memstore) used by tests
// and by single-process dev/bootstrap runs.
package kvstore

import "context"

// Txn is a live, pessimistic transaction against the backing store.
// Every Storage Mapper (C2) operation is exactly one logical step inside
// the caller's Txn; atomicity across steps is the caller's concern
// (spec.md §4.2).
type Txn interface {
	// Get returns the value at key and true, or nil and false if absent.
	Get(ctx context.Context, key []byte) ([]byte, bool, error)

	// Put writes key unconditionally.
	Put(ctx context.Context, key, value []byte) error

	// Delete removes key if present and reports whether it existed.
	Delete(ctx context.Context, key []byte) (bool, error)

	// Scan returns an Iterator over [start, end) in key order.
	Scan(ctx context.Context, start, end []byte) (Iterator, error)

	// Lock takes a pessimistic, transaction-scoped lock on key without
	// reading or writing it; used by SELECT ... FOR UPDATE (spec.md §5).
	Lock(ctx context.Context, key []byte) error

	// Commit finalizes the transaction's writes.
	Commit(ctx context.Context) error

	// Rollback discards the transaction's writes. Rollback after Commit
	// or a second Rollback is a no-op.
	Rollback(ctx context.Context) error
}

// Iterator walks a key range returned by Txn.Scan, in ascending key
// order.
type Iterator interface {
	Next() bool
	Key() []byte
	Value() []byte
	Err() error
	Close() error
}

// Store is a handle to one backing-store keyspace. A Store may be shared
// across many Sessions; it is responsible for multiplexing (spec.md §5).
type Store interface {
	// BeginTx obtains a new pessimistic transaction.
	BeginTx(ctx context.Context) (Txn, error)

	// Close releases the handle's resources.
	Close() error
}

// ScanAll drains an Iterator into a slice of key/value pairs. It is a
// convenience used by code paths that need the full range in memory
// (e.g. DROP TABLE's scan-and-delete, spec.md §4.2); callers that can
// process a range incrementally should iterate directly instead.
func ScanAll(it Iterator) (keys, values [][]byte, err error) {
	defer it.Close()
	for it.Next() {
		k := make([]byte, len(it.Key()))
		copy(k, it.Key())
		v := make([]byte, len(it.Value()))
		copy(v, it.Value())
		keys = append(keys, k)
		values = append(values, v)
	}
	if err := it.Err(); err != nil {
		return nil, nil, err
	}
	return keys, values, nil
}
