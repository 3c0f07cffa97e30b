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

package postgres

import (
	"context"
	"fmt"
	"time"
)

// RevocationRepository implements token.RevocationStore on the
// revoked_tokens table.
type RevocationRepository struct {
	db *DB
}

// NewRevocationRepository creates a new revocation repository
func NewRevocationRepository(db *DB) *RevocationRepository {
	return &RevocationRepository{db: db}
}

// Add records a revoked token id. Conflicts are ignored: revocation is
// idempotent and the first retention deadline wins.
func (r *RevocationRepository) Add(ctx context.Context, jti string, retainUntil time.Time) error {
	_, err := r.db.pool.Exec(ctx, `
		INSERT INTO revoked_tokens (jti, retain_until)
		VALUES ($1, $2)
		ON CONFLICT (jti) DO NOTHING
	`, jti, retainUntil)
	if err != nil {
		return fmt.Errorf("failed to persist revocation: %w", err)
	}
	return nil
}

// Load returns all revocations still inside their retention window.
func (r *RevocationRepository) Load(ctx context.Context) (map[string]time.Time, error) {
	rows, err := r.db.pool.Query(ctx, `
		SELECT jti, retain_until
		FROM revoked_tokens
		WHERE retain_until > now()
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to load revocations: %w", err)
	}
	defer rows.Close()

	revoked := make(map[string]time.Time)
	for rows.Next() {
		var (
			jti         string
			retainUntil time.Time
		)
		if err := rows.Scan(&jti, &retainUntil); err != nil {
			return nil, fmt.Errorf("failed to scan revocation: %w", err)
		}
		revoked[jti] = retainUntil
	}

	return revoked, rows.Err()
}

// DeleteExpired drops rows past their retention deadline. Run periodically
// alongside the in-memory ledger's prune.
func (r *RevocationRepository) DeleteExpired(ctx context.Context) (int64, error) {
	tag, err := r.db.pool.Exec(ctx, `DELETE FROM revoked_tokens WHERE retain_until <= now()`)
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired revocations: %w", err)
	}
	return tag.RowsAffected(), nil
}
