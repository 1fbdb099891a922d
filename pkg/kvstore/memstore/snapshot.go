// SPDX-License-Identifier: Apache-2.0

package memstore

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"

	"github.com/gofrs/flock"
)

// SaveSnapshot persists the store's current committed state to path, so a
// single-process run can reload it with LoadSnapshot after a restart
// (spec.md §1 draws the real distributed store as an external
// collaborator; memstore's own durability is this file). No command under
// cmd/ calls SaveSnapshot or LoadSnapshot; the serve and bootstrap
// commands keep memstore state in memory only. A
// gofrs/flock file lock guards the write against a concurrent dev-mode
// process saving or loading the same file.
func (s *Store) SaveSnapshot(path string) error {
	lock := flock.New(path + ".lock")
	if err := lock.Lock(); err != nil {
		return fmt.Errorf("memstore: acquire snapshot lock: %w", err)
	}
	defer lock.Unlock()

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("memstore: create snapshot file: %w", err)
	}
	defer f.Close()

	s.mu.Lock()
	defer s.mu.Unlock()

	var writeErr error
	s.tree.Ascend(func(e entry) bool {
		writeErr = writeLP(f, e.key)
		if writeErr != nil {
			return false
		}
		writeErr = writeLP(f, e.value)
		return writeErr == nil
	})
	return writeErr
}

// LoadSnapshot replaces the store's contents with the entries persisted by
// a prior SaveSnapshot. Any existing contents are discarded.
func (s *Store) LoadSnapshot(path string) error {
	lock := flock.New(path + ".lock")
	if err := lock.Lock(); err != nil {
		return fmt.Errorf("memstore: acquire snapshot lock: %w", err)
	}
	defer lock.Unlock()

	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("memstore: open snapshot file: %w", err)
	}
	defer f.Close()

	s.mu.Lock()
	defer s.mu.Unlock()

	fresh := s.tree.Clone()
	for fresh.Len() > 0 {
		max, _ := fresh.DeleteMax()
		_ = max
	}

	for {
		key, err := readLP(f)
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("memstore: read snapshot key: %w", err)
		}
		value, err := readLP(f)
		if err != nil {
			return fmt.Errorf("memstore: read snapshot value: %w", err)
		}
		fresh.ReplaceOrInsert(entry{key: key, value: value})
	}

	s.tree = fresh
	return nil
}

func writeLP(w io.Writer, b []byte) error {
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(b)))
	if _, err := w.Write(lenBuf[:]); err != nil {
		return err
	}
	_, err := w.Write(b)
	return err
}

func readLP(r io.Reader) ([]byte, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return nil, err
	}
	n := binary.BigEndian.Uint32(lenBuf[:])
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, err
	}
	return buf, nil
}
