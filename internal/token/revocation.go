// Copyright 2026 The PlantOps Authors
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

package token

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// RevocationStore persists revoked token ids so revocations survive a
// process restart. Optional: a nil store keeps the ledger memory-only.
type RevocationStore interface {
	// Add records a revoked token id with its retention deadline.
	Add(ctx context.Context, jti string, retainUntil time.Time) error

	// Load returns all retained revocations.
	Load(ctx context.Context) (map[string]time.Time, error)

	// DeleteExpired drops persisted entries past their retention deadline.
	DeleteExpired(ctx context.Context) (int64, error)
}

// Ledger is the set of invalidated token ids, consulted on every verify.
// Reads vastly outnumber writes; an RWMutex-guarded map gives every verify a
// shared lock and sequentially consistent visibility: a Revoke that returns
// before a verify begins is always observed.
type Ledger struct {
	mu        sync.RWMutex
	revoked   map[string]time.Time // jti → retain-until
	retention time.Duration
	store     RevocationStore
	now       func() time.Time
}

// NewLedger creates a revocation ledger. Entries are retained until at
// least retention past the token's natural expiry before becoming prunable.
func NewLedger(retention time.Duration, store RevocationStore) *Ledger {
	return &Ledger{
		revoked:   make(map[string]time.Time),
		retention: retention,
		store:     store,
		now:       time.Now,
	}
}

// Restore loads persisted revocations into memory. Called once at startup,
// before the ledger serves verifies.
func (l *Ledger) Restore(ctx context.Context) error {
	if l.store == nil {
		return nil
	}
	persisted, err := l.store.Load(ctx)
	if err != nil {
		return fmt.Errorf("failed to restore revocation ledger: %w", err)
	}

	l.mu.Lock()
	for jti, retainUntil := range persisted {
		l.revoked[jti] = retainUntil
	}
	l.mu.Unlock()
	return nil
}

// Revoke permanently invalidates a token id. The durable store is written
// first so a crash between the two writes can only lose an in-memory entry
// that Restore brings back.
func (l *Ledger) Revoke(ctx context.Context, jti string, expiresAt time.Time) error {
	retainUntil := expiresAt.Add(l.retention)

	if l.store != nil {
		if err := l.store.Add(ctx, jti, retainUntil); err != nil {
			return fmt.Errorf("failed to persist revocation: %w", err)
		}
	}

	l.mu.Lock()
	l.revoked[jti] = retainUntil
	l.mu.Unlock()
	return nil
}

// IsRevoked reports whether the token id is in the ledger.
func (l *Ledger) IsRevoked(jti string) bool {
	l.mu.RLock()
	_, ok := l.revoked[jti]
	l.mu.RUnlock()
	return ok
}

// Prune removes entries past their retention deadline, in memory and in the
// durable store. An entry is kept for at least one full token lifetime past
// natural expiry, so a revoked id can never be mistaken for valid while any
// copy of the token could still be unexpired.
func (l *Ledger) Prune(ctx context.Context) error {
	now := l.now()
	l.mu.Lock()
	for jti, retainUntil := range l.revoked {
		if retainUntil.Before(now) {
			delete(l.revoked, jti)
		}
	}
	l.mu.Unlock()

	if l.store == nil {
		return nil
	}
	if _, err := l.store.DeleteExpired(ctx); err != nil {
		return fmt.Errorf("failed to prune persisted revocations: %w", err)
	}
	return nil
}

// Size returns the number of retained entries.
func (l *Ledger) Size() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.revoked)
}
