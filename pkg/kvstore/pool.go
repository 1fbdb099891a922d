// SPDX-License-Identifier: Apache-2.0

package kvstore

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/cloudflare/backoff"
)

const (
	poolMaxBackoff  = 30 * time.Second
	poolBackoffStep = 250 * time.Millisecond
)

// Dialer opens a Store for the given keyspace against the placement-driver
// endpoints; it is supplied by the (out-of-scope) KV client transport.
type Dialer func(ctx context.Context, keyspace string) (Store, error)

// Provisioner provisions a missing keyspace over the backing store's HTTP
// admin endpoint (spec.md §6: "if missing, the startup path provisions it
// ... and retries"). It is also out-of-scope transport; Pool just calls it
// at the right moment.
type Provisioner func(ctx context.Context, keyspace string) error

// Pool is the process-wide map of keyspace -> Store handle, behind a
// read-write lock: reads take the read side, misses upgrade to the write
// side and re-check before creating a new handle (spec.md §5). This is
// the direct descendant of pgroll's pkg/db.RDB backoff-wrapped retry
// shape, applied here to keyspace acquisition instead of per-query
// retries.
type Pool struct {
	dial    Dialer
	provision Provisioner

	mu       sync.RWMutex
	handles  map[string]Store
}

// NewPool constructs a Pool. provision may be nil if the deployment never
// needs to auto-provision keyspaces (e.g. a fixed single-keyspace dev
// setup).
func NewPool(dial Dialer, provision Provisioner) *Pool {
	return &Pool{
		dial:      dial,
		provision: provision,
		handles:   make(map[string]Store),
	}
}

// Get returns the Store handle for keyspace, dialing (and, if needed,
// provisioning) it on first use.
func (p *Pool) Get(ctx context.Context, keyspace string) (Store, error) {
	p.mu.RLock()
	if h, ok := p.handles[keyspace]; ok {
		p.mu.RUnlock()
		return h, nil
	}
	p.mu.RUnlock()

	p.mu.Lock()
	defer p.mu.Unlock()

	// Re-check: another goroutine may have won the race while we waited
	// for the write lock.
	if h, ok := p.handles[keyspace]; ok {
		return h, nil
	}

	h, err := p.dialWithProvisionRetry(ctx, keyspace)
	if err != nil {
		return nil, err
	}
	p.handles[keyspace] = h
	return h, nil
}

func (p *Pool) dialWithProvisionRetry(ctx context.Context, keyspace string) (Store, error) {
	h, err := p.dial(ctx, keyspace)
	if err == nil {
		return h, nil
	}
	if !IsKeyspaceMissing(err) || p.provision == nil {
		return nil, fmt.Errorf("kvstore: dial keyspace %q: %w", keyspace, err)
	}

	b := backoff.New(poolMaxBackoff, poolBackoffStep)
	if err := p.provision(ctx, keyspace); err != nil {
		return nil, fmt.Errorf("kvstore: provision keyspace %q: %w", keyspace, err)
	}

	for {
		h, err := p.dial(ctx, keyspace)
		if err == nil {
			return h, nil
		}
		if !IsKeyspaceMissing(err) {
			return nil, fmt.Errorf("kvstore: dial keyspace %q after provisioning: %w", keyspace, err)
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(b.Duration()):
		}
	}
}

// Close closes every handle in the pool.
func (p *Pool) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	var firstErr error
	for ks, h := range p.handles {
		if err := h.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("kvstore: closing keyspace %q: %w", ks, err)
		}
	}
	p.handles = make(map[string]Store)
	return firstErr
}

// keyspaceMissingError is returned by a Dialer when the keyspace does not
// yet exist.
type keyspaceMissingError struct{ Keyspace string }

func (e *keyspaceMissingError) Error() string {
	return fmt.Sprintf("kvstore: keyspace %q does not exist", e.Keyspace)
}

func ErrKeyspaceMissing(keyspace string) error { return &keyspaceMissingError{Keyspace: keyspace} }

func IsKeyspaceMissing(err error) bool {
	_, ok := err.(*keyspaceMissingError)
	return ok
}
