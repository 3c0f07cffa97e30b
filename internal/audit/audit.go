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

package audit

import (
	"context"
	"log/slog"
	"strings"
	"time"
)

// Event types
const (
	TypeTokenIssued       = "token_issued"
	TypeTokenRefreshed    = "token_refreshed"
	TypeTokenRevoked      = "token_revoked"
	TypeIssueDenied       = "issue_denied"
	TypeRefreshDenied     = "refresh_denied"
	TypeRevokeDenied      = "revoke_denied"
	TypeUserAuthenticated = "user_authenticated"
	TypeModuleRegistered  = "module_registered"
	TypeAuthorizeDenied   = "authorize_denied"
)

// Metadata attribute keys
const (
	AttrReason      = "reason"
	AttrTokenID     = "jti"
	AttrExpiry      = "expires"
	AttrPermissions = "permissions"
	AttrRoles       = "roles"
	AttrDataAccess  = "data_access"
)

// Event represents an auditable action. Entries are append-only: nothing in
// this package mutates or deletes a recorded event.
type Event struct {
	Type      string
	Tenant    string
	Subject   string
	Module    string
	Metadata  map[string]any
	Timestamp time.Time
	IPAddress string
}

// Logger defines the interface for audit logging
type Logger interface {
	Log(ctx context.Context, event Event)
}

// SlogLogger implements Logger using slog
type SlogLogger struct{}

// NewSlogLogger creates a new audit logger
func NewSlogLogger() *SlogLogger {
	return &SlogLogger{}
}

// Log records an audit event
func (l *SlogLogger) Log(ctx context.Context, event Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	attrs := []any{
		slog.String("audit_type", event.Type),
		slog.String("tenant", event.Tenant),
		slog.String("subject", event.Subject),
		slog.String("module", event.Module),
		slog.Time("timestamp", event.Timestamp),
	}

	if event.IPAddress != "" {
		attrs = append(attrs, slog.String("ip_address", event.IPAddress))
	}

	if len(event.Metadata) > 0 {
		group := []any{}
		for k, v := range event.Metadata {
			if isSecret(k) {
				v = "[REDACTED]"
			}
			group = append(group, slog.Any(k, v))
		}
		attrs = append(attrs, slog.Group("metadata", group...))
	}

	slog.InfoContext(ctx, "AUDIT_EVENT", append(attrs, slog.String("component", "audit"))...)
}

// Store persists audit events durably. Implementations must treat the log as
// append-only.
type Store interface {
	Append(ctx context.Context, event Event) error
}

// Querier reads back persisted audit events for compliance review.
type Querier interface {
	// ListByTenant returns a tenant's events, newest first.
	ListByTenant(ctx context.Context, tenant string, limit int) ([]Event, error)
}

// PersistentLogger writes each event to a Store in addition to the wrapped
// Logger. Store failures are logged, never propagated: audit emission must
// not fail the operation being audited.
type PersistentLogger struct {
	store Store
	next  Logger
}

// NewPersistentLogger creates an audit logger with durable write-through.
func NewPersistentLogger(store Store, next Logger) *PersistentLogger {
	return &PersistentLogger{store: store, next: next}
}

// Log records the event through the wrapped logger and the store.
func (l *PersistentLogger) Log(ctx context.Context, event Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	l.next.Log(ctx, event)

	if err := l.store.Append(ctx, event); err != nil {
		slog.ErrorContext(ctx, "failed to persist audit event",
			slog.String("audit_type", event.Type),
			slog.String("error", err.Error()),
		)
	}
}

// isSecret checks if a key likely contains a secret
func isSecret(key string) bool {
	k := strings.ToLower(key)
	secrets := []string{"password", "secret", "token", "key", "hash", "credential", "authorization"}
	for _, s := range secrets {
		if strings.Contains(k, s) {
			return true
		}
	}
	return false
}
