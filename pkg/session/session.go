// SPDX-License-Identifier: Apache-2.0

// Package session implements the Session state machine (spec.md §4.3): a
// connection-owned wrapper around one kvstore.Store that tracks whether a
// transaction is currently open. Grounded on pgroll's db.RDB in spirit
// (a thin stateful wrapper the rest of the system calls through) but
// rebuilt from scratch, since RDB wraps *sql.DB connection-pool semantics
// that have no Idle/Active distinction of their own — spec.md §4.3's
// explicit two-state machine is this package's own contribution.
package session

import (
	"context"
	"sync"

	"github.com/kvpg/kvpg/pkg/kvstore"
)

// State is the Session state machine's two states.
type State int

const (
	Idle State = iota
	Active
)

// Session is owned by exactly one connection and is never shared (spec.md
// §4.3, §5). The store itself may be shared across many sessions; Session
// only holds a reference to it plus whatever transaction it opens.
type Session struct {
	mu    sync.Mutex
	store kvstore.Store
	state State
	txn   kvstore.Txn

	// Namespace and Username are immutable session metadata threaded
	// through to pkg/catalog and pkg/auth calls; set once at connection
	// setup.
	Namespace string
	Username  string

	// InFailedTransaction is set once an error occurs inside an explicit
	// transaction block (spec.md §7 policy): subsequent statements
	// short-circuit until COMMIT (treated as ROLLBACK) or ROLLBACK.
	InFailedTransaction bool

	// Explicit records whether the current Active transaction was opened
	// by an explicit BEGIN, as opposed to an implicit per-statement one;
	// it determines whether Commit/Rollback after a statement should
	// actually close the transaction (spec.md §4.7 step 3).
	Explicit bool
}

// New returns an Idle Session over store.
func New(store kvstore.Store, namespace, username string) *Session {
	return &Session{store: store, state: Idle, Namespace: namespace, Username: username}
}

// State returns the session's current state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Begin transitions Idle -> Active by obtaining a new transaction. Begin
// on an already-Active session is a no-op (nested BEGIN is silently
// absorbed, spec.md §4.3); explicit marks whether this call originates
// from an explicit SQL BEGIN (vs. the executor's implicit per-statement
// wrap).
func (s *Session) Begin(ctx context.Context, explicit bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == Active {
		return nil
	}
	txn, err := s.store.BeginTx(ctx)
	if err != nil {
		return err
	}
	s.txn = txn
	s.state = Active
	s.Explicit = explicit
	s.InFailedTransaction = false
	return nil
}

// Commit finalizes the active transaction and returns to Idle. A Commit
// while Idle is a no-op (spec.md §4.3).
func (s *Session) Commit(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == Idle {
		return nil
	}
	err := s.txn.Commit(ctx)
	s.txn = nil
	s.state = Idle
	s.Explicit = false
	s.InFailedTransaction = false
	return err
}

// Rollback discards the active transaction and returns to Idle. A
// Rollback while Idle is a no-op.
func (s *Session) Rollback(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == Idle {
		return nil
	}
	err := s.txn.Rollback(ctx)
	s.txn = nil
	s.state = Idle
	s.Explicit = false
	s.InFailedTransaction = false
	return err
}

// GetMutTxn returns the active transaction, or (nil, false) if Idle.
func (s *Session) GetMutTxn() (kvstore.Txn, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != Active {
		return nil, false
	}
	return s.txn, true
}

// Close rolls back any active transaction. It must be called when a
// connection drops (spec.md §5 "Cancellation and timeouts": "the
// transaction handle's drop must abort, not commit").
func (s *Session) Close(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != Active {
		return nil
	}
	err := s.txn.Rollback(ctx)
	s.txn = nil
	s.state = Idle
	return err
}
