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
	"encoding/json"
	"fmt"
	"time"

	"github.com/plantops/identity/internal/audit"
)

// AuditRepository implements audit.Store on the audit_entries table. The
// table is append-only; there is no update or delete path.
type AuditRepository struct {
	db *DB
}

// NewAuditRepository creates a new audit repository
func NewAuditRepository(db *DB) *AuditRepository {
	return &AuditRepository{db: db}
}

// Append persists one audit event.
func (r *AuditRepository) Append(ctx context.Context, event audit.Event) error {
	var metadata []byte
	if len(event.Metadata) > 0 {
		var err error
		metadata, err = json.Marshal(event.Metadata)
		if err != nil {
			return fmt.Errorf("failed to encode audit metadata: %w", err)
		}
	}

	_, err := r.db.pool.Exec(ctx, `
		INSERT INTO audit_entries (event_type, tenant, subject, module, ip_address, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`,
		event.Type, event.Tenant, event.Subject, event.Module, event.IPAddress, metadata, event.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("failed to append audit entry: %w", err)
	}

	return nil
}

// ListByTenant returns a tenant's audit entries, newest first.
func (r *AuditRepository) ListByTenant(ctx context.Context, tenant string, limit int) ([]audit.Event, error) {
	if limit <= 0 {
		limit = 100
	}

	rows, err := r.db.pool.Query(ctx, `
		SELECT event_type, tenant, subject, module, ip_address, metadata, created_at
		FROM audit_entries
		WHERE tenant = $1
		ORDER BY created_at DESC
		LIMIT $2
	`, tenant, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list audit entries: %w", err)
	}
	defer rows.Close()

	var events []audit.Event
	for rows.Next() {
		var (
			event     audit.Event
			metadata  []byte
			createdAt time.Time
		)
		if err := rows.Scan(&event.Type, &event.Tenant, &event.Subject, &event.Module, &event.IPAddress, &metadata, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan audit entry: %w", err)
		}
		if len(metadata) > 0 {
			if err := json.Unmarshal(metadata, &event.Metadata); err != nil {
				return nil, fmt.Errorf("failed to decode audit metadata: %w", err)
			}
		}
		event.Timestamp = createdAt
		events = append(events, event)
	}

	return events, rows.Err()
}
