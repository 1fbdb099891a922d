// SPDX-License-Identifier: Apache-2.0

// Package memstore is an in-memory reference implementation of
// kvstore.Store. It is used by the catalog and executor test suites, and
// by the `kvpgserver serve` and `bootstrap` commands (cmd/serve.go's
// devDialer) for single-process runs without a real distributed backing
// store (spec.md §1 draws the real
// store as an external collaborator).
//
// Grounded on pgroll's pkg/testutils db.FakeDB pattern (a test double
// standing in for the real driver) and on pgroll's pkg/db.RDB
// (transaction-retry wrapper) for the surrounding pool (see
// pkg/kvstore/pool.go). Ordering (spec.md §4.2 "scan ... returns rows in
// key order") is provided by github.com/google/btree's copy-on-write
// BTreeG, which also gives each transaction an O(1) point-in-time
// snapshot of committed state for its reads.
package memstore

import (
	"bytes"
	"context"
	"fmt"
	"sync"

	"github.com/google/btree"

	"github.com/kvpg/kvpg/pkg/kvstore"
)

type entry struct {
	key   []byte
	value []byte
}

func less(a, b entry) bool { return bytes.Compare(a.key, b.key) < 0 }

// Store is an in-memory kvstore.Store. The zero value is not usable; use
// New.
type Store struct {
	mu   sync.Mutex
	tree *btree.BTreeG[entry]

	locksMu sync.Mutex
	locks   map[string]*sync.Mutex
}

// New returns an empty Store.
func New() *Store {
	return &Store{
		tree:  btree.NewG(32, less),
		locks: make(map[string]*sync.Mutex),
	}
}

func (s *Store) lockFor(key string) *sync.Mutex {
	s.locksMu.Lock()
	defer s.locksMu.Unlock()
	m, ok := s.locks[key]
	if !ok {
		m = &sync.Mutex{}
		s.locks[key] = m
	}
	return m
}

// BeginTx returns a new transaction with a snapshot of the store's
// current committed state.
func (s *Store) BeginTx(ctx context.Context) (kvstore.Txn, error) {
	s.mu.Lock()
	snapshot := s.tree.Clone()
	s.mu.Unlock()

	return &txn{
		store:    s,
		snapshot: snapshot,
		writes:   make(map[string][]byte),
		deletes:  make(map[string]bool),
		held:     make(map[string]*sync.Mutex),
	}, nil
}

func (s *Store) Close() error { return nil }

type txn struct {
	store    *Store
	snapshot *btree.BTreeG[entry]
	writes   map[string][]byte
	deletes  map[string]bool
	held     map[string]*sync.Mutex
	done     bool
}

func (t *txn) checkOpen() error {
	if t.done {
		return fmt.Errorf("memstore: transaction already committed or rolled back")
	}
	return nil
}

func (t *txn) Get(ctx context.Context, key []byte) ([]byte, bool, error) {
	if err := t.checkOpen(); err != nil {
		return nil, false, err
	}
	k := string(key)
	if t.deletes[k] {
		return nil, false, nil
	}
	if v, ok := t.writes[k]; ok {
		return v, true, nil
	}
	if e, ok := t.snapshot.Get(entry{key: key}); ok {
		return e.value, true, nil
	}
	return nil, false, nil
}

func (t *txn) Put(ctx context.Context, key, value []byte) error {
	if err := t.checkOpen(); err != nil {
		return err
	}
	k := string(key)
	delete(t.deletes, k)
	cp := make([]byte, len(value))
	copy(cp, value)
	t.writes[k] = cp
	return nil
}

func (t *txn) Delete(ctx context.Context, key []byte) (bool, error) {
	if err := t.checkOpen(); err != nil {
		return false, err
	}
	_, existed, err := t.Get(ctx, key)
	if err != nil {
		return false, err
	}
	k := string(key)
	delete(t.writes, k)
	t.deletes[k] = true
	return existed, nil
}

func (t *txn) Lock(ctx context.Context, key []byte) error {
	if err := t.checkOpen(); err != nil {
		return err
	}
	k := string(key)
	if _, ok := t.held[k]; ok {
		return nil
	}
	m := t.store.lockFor(k)
	m.Lock()
	t.held[k] = m
	return nil
}

func (t *txn) Scan(ctx context.Context, start, end []byte) (kvstore.Iterator, error) {
	if err := t.checkOpen(); err != nil {
		return nil, err
	}

	// Merge the snapshot with this transaction's own uncommitted writes
	// so a statement observes its own prior writes within the same
	// session (spec.md §5 "Ordering guarantees").
	seen := make(map[string]bool)
	var merged []entry

	// A nil end key leaves the range unbounded above.
	t.snapshot.AscendGreaterOrEqual(entry{key: start}, func(e entry) bool {
		if end != nil && bytes.Compare(e.key, end) >= 0 {
			return false
		}
		k := string(e.key)
		if t.deletes[k] {
			seen[k] = true
			return true
		}
		if v, ok := t.writes[k]; ok {
			merged = append(merged, entry{key: e.key, value: v})
			seen[k] = true
			return true
		}
		merged = append(merged, e)
		seen[k] = true
		return true
	})

	for k, v := range t.writes {
		if seen[k] {
			continue
		}
		kb := []byte(k)
		if bytes.Compare(kb, start) >= 0 && (end == nil || bytes.Compare(kb, end) < 0) {
			merged = append(merged, entry{key: kb, value: v})
		}
	}

	// Keep results in key order (Iterator contract: ascending).
	for i := 1; i < len(merged); i++ {
		for j := i; j > 0 && bytes.Compare(merged[j-1].key, merged[j].key) > 0; j-- {
			merged[j-1], merged[j] = merged[j], merged[j-1]
		}
	}

	return &sliceIterator{entries: merged, idx: -1}, nil
}

func (t *txn) Commit(ctx context.Context) error {
	if err := t.checkOpen(); err != nil {
		return err
	}
	defer t.release()

	t.store.mu.Lock()
	for k, v := range t.writes {
		t.store.tree.ReplaceOrInsert(entry{key: []byte(k), value: v})
	}
	for k := range t.deletes {
		t.store.tree.Delete(entry{key: []byte(k)})
	}
	t.store.mu.Unlock()

	t.done = true
	return nil
}

func (t *txn) Rollback(ctx context.Context) error {
	if t.done {
		return nil
	}
	t.release()
	t.done = true
	return nil
}

func (t *txn) release() {
	for _, m := range t.held {
		m.Unlock()
	}
	t.held = nil
}

type sliceIterator struct {
	entries []entry
	idx     int
}

func (it *sliceIterator) Next() bool {
	it.idx++
	return it.idx < len(it.entries)
}

func (it *sliceIterator) Key() []byte   { return it.entries[it.idx].key }
func (it *sliceIterator) Value() []byte { return it.entries[it.idx].value }
func (it *sliceIterator) Err() error    { return nil }
func (it *sliceIterator) Close() error  { return nil }
