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
	"errors"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/plantops/identity/internal/audit"
	"github.com/plantops/identity/internal/authz"
	"github.com/plantops/identity/internal/identity"
	"github.com/plantops/identity/internal/registry"
)

// captureAudit records every event for assertions.
type captureAudit struct {
	events []audit.Event
}

func (c *captureAudit) Log(_ context.Context, event audit.Event) {
	c.events = append(c.events, event)
}

func (c *captureAudit) last() *audit.Event {
	if len(c.events) == 0 {
		return nil
	}
	return &c.events[len(c.events)-1]
}

type harness struct {
	svc        *Service
	identities *identity.Service
	engine     *authz.Engine
	ledger     *Ledger
	keys       *KeySet
	audit      *captureAudit
	clock      time.Time
}

// setClock freezes the service's notion of now.
func (h *harness) setClock(t time.Time) {
	h.clock = t
	h.svc.now = func() time.Time { return h.clock }
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	reg := registry.New()
	err := reg.Register(context.Background(), &registry.ModulePolicy{
		Module: "quality",
		Roles:  []string{"USER", "INSPECTOR", "MANAGER", "ADMIN"},
		Permissions: map[string][]string{
			"USER":      {"quality.view"},
			"INSPECTOR": {"quality.view", "quality.inspect"},
			"MANAGER":   {"quality.view", "quality.manage"},
			"ADMIN":     {"quality.*"},
		},
		DataClassification: registry.ClassificationInternal,
	})
	if err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	keys, err := NewKeySet(2048)
	if err != nil {
		t.Fatalf("NewKeySet() error = %v", err)
	}

	auditLog := &captureAudit{}
	ledger := NewLedger(15*time.Minute, nil)
	identities := identity.NewService(identity.NewContextStore(), auditLog)
	engine := authz.NewEngine(reg)

	svc := NewService(
		Config{Issuer: "https://identity.plantops.example"},
		keys, ledger, identities, engine, auditLog,
	)

	h := &harness{
		svc:        svc,
		identities: identities,
		engine:     engine,
		ledger:     ledger,
		keys:       keys,
		audit:      auditLog,
	}
	h.setClock(time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC))
	return h
}

// issueInspector authenticates an inspector and issues a quality token.
func issueInspector(t *testing.T, h *harness) string {
	t.Helper()

	user, err := h.identities.Authenticate(context.Background(), "acme", "inspector-1", identity.AuthContext{
		Roles:      []string{"INSPECTOR"},
		Department: "general",
		Site:       "plant-7",
	})
	if err != nil {
		t.Fatalf("Authenticate() error = %v", err)
	}

	access, err := h.engine.Authorize(user, "quality", nil)
	if err != nil {
		t.Fatalf("Authorize() error = %v", err)
	}

	signed, err := h.svc.Issue(context.Background(), user, access)
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}
	return signed
}

// TestPurpose: Validates that an issued token carries the full authorization decision and verifies cleanly.
// Scope: Unit Test
// Security: Self-contained token claims allow downstream offline validation without callbacks.
// Expected: Verified claims match the issued grant exactly; expiry is issued-at plus the fixed lifetime.
func TestToken_Service_IssueVerify_RoundTrip(t *testing.T) {
	h := newHarness(t)
	signed := issueInspector(t, h)

	res, err := h.svc.Verify(context.Background(), signed, "quality")
	if err != nil {
		t.Fatalf("Verify() error = %v", err)
	}

	c := res.Claims
	if c.Subject != "acme:inspector-1" {
		t.Errorf("expected subject acme:inspector-1, got %s", c.Subject)
	}
	if c.Tenant != "acme" || c.Module != "quality" {
		t.Errorf("unexpected tenant/module: %s/%s", c.Tenant, c.Module)
	}
	if want := []string{"quality.inspect", "quality.view"}; !reflect.DeepEqual(c.Permissions, want) {
		t.Errorf("expected permissions %v, got %v", want, c.Permissions)
	}
	if c.DataAccess != string(authz.TierRestricted) {
		t.Errorf("expected restricted data access, got %s", c.DataAccess)
	}
	if c.ABAC.Site != "plant-7" || c.ABAC.DataClassification != "internal" {
		t.Errorf("unexpected abac snapshot: %+v", c.ABAC)
	}
	if c.ID == "" {
		t.Error("expected a jti")
	}
	if got := c.ExpiresAt.Sub(c.IssuedAt.Time); got != 15*time.Minute {
		t.Errorf("expected 15m lifetime, got %s", got)
	}
	if res.NeedsRefresh {
		t.Error("fresh token should not need refresh")
	}

	if ev := h.audit.last(); ev == nil || ev.Type != audit.TypeTokenIssued {
		t.Errorf("expected %s audit event, got %+v", audit.TypeTokenIssued, ev)
	}
}

// TestPurpose: Validates the refresh advisory window and the expiry boundary.
// Scope: Unit Test
// Security: Near-expiry advisory lets clients rotate tokens without accepting expired ones.
// Expected: needs_refresh flips when remaining lifetime drops below five minutes; past expiry verification fails.
func TestToken_Service_Verify_RefreshThreshold(t *testing.T) {
	h := newHarness(t)
	issued := h.clock
	signed := issueInspector(t, h)

	tests := []struct {
		name         string
		at           time.Time
		needsRefresh bool
		wantErr      error
	}{
		{"four minutes before expiry", issued.Add(11 * time.Minute), true, nil},
		{"six minutes before expiry", issued.Add(9 * time.Minute), false, nil},
		{"one second past expiry", issued.Add(15*time.Minute + time.Second), false, ErrExpired},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h.setClock(tt.at)
			res, err := h.svc.Verify(context.Background(), signed, "quality")
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("expected %v, got %v", tt.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Verify() error = %v", err)
			}
			if res.NeedsRefresh != tt.needsRefresh {
				t.Errorf("expected needs_refresh=%v", tt.needsRefresh)
			}
		})
	}
}

// TestPurpose: Validates that a token scoped to one module is rejected by another.
// Scope: Unit Test
// Security: Module scoping prevents lateral movement with a single token.
// Expected: Verification against a different module fails with ErrModuleMismatch.
func TestToken_Service_Verify_ModuleMismatch(t *testing.T) {
	h := newHarness(t)
	signed := issueInspector(t, h)

	_, err := h.svc.Verify(context.Background(), signed, "maintenance")
	if !errors.Is(err, ErrModuleMismatch) {
		t.Fatalf("expected ErrModuleMismatch, got %v", err)
	}
}

// TestPurpose: Validates that revocation takes effect before natural expiry and is idempotent.
// Scope: Unit Test
// Security: Compromised tokens must be invalidatable immediately, not at expiry.
// Expected: A revoked token fails verification with ErrRevoked; a second revocation succeeds quietly.
func TestToken_Service_Revoke_BeforeExpiry(t *testing.T) {
	h := newHarness(t)
	signed := issueInspector(t, h)

	if err := h.svc.Revoke(context.Background(), signed, "device reported stolen"); err != nil {
		t.Fatalf("Revoke() error = %v", err)
	}
	if _, err := h.svc.Verify(context.Background(), signed, "quality"); !errors.Is(err, ErrRevoked) {
		t.Fatalf("expected ErrRevoked, got %v", err)
	}

	// Idempotent: revoking again is not an error.
	if err := h.svc.Revoke(context.Background(), signed, "again"); err != nil {
		t.Fatalf("second Revoke() error = %v", err)
	}
	if got := h.ledger.Size(); got != 1 {
		t.Errorf("expected 1 ledger entry, got %d", got)
	}
}

// TestPurpose: Validates that an expired token can still be revoked.
// Scope: Unit Test
// Security: Revocation must outlive expiry so a revoked id is never mistaken for merely expired.
// Expected: Revoke succeeds after expiry and the id is retained in the ledger.
func TestToken_Service_Revoke_AfterExpiry(t *testing.T) {
	h := newHarness(t)
	signed := issueInspector(t, h)

	h.setClock(h.clock.Add(time.Hour))
	if err := h.svc.Revoke(context.Background(), signed, "cleanup"); err != nil {
		t.Fatalf("Revoke() after expiry error = %v", err)
	}
	if h.ledger.Size() != 1 {
		t.Error("expected revocation to be recorded")
	}
}

// TestPurpose: Validates that a tampered token is rejected.
// Scope: Unit Test
// Security: Signature integrity over the full payload.
// Expected: Any modification of the signed material fails with ErrInvalidSignature.
func TestToken_Service_Verify_Tampered(t *testing.T) {
	h := newHarness(t)
	signed := issueInspector(t, h)

	parts := strings.Split(signed, ".")
	if len(parts) != 3 {
		t.Fatalf("expected a three-part jwt, got %d parts", len(parts))
	}
	sig := []byte(parts[2])
	if sig[0] == 'A' {
		sig[0] = 'B'
	} else {
		sig[0] = 'A'
	}
	tampered := parts[0] + "." + parts[1] + "." + string(sig)

	_, err := h.svc.Verify(context.Background(), tampered, "quality")
	if !errors.Is(err, ErrInvalidSignature) {
		t.Fatalf("expected ErrInvalidSignature, got %v", err)
	}
}

// TestPurpose: Validates that tokens signed by a foreign key set are rejected.
// Scope: Unit Test
// Security: Only keys published in this deployment's JWKS may vouch for tokens.
// Expected: A structurally valid token with an unknown kid fails with ErrUnknownIssuer.
func TestToken_Service_Verify_ForeignKeySet(t *testing.T) {
	h := newHarness(t)

	foreign := newHarness(t)
	signed := issueInspector(t, foreign)

	_, err := h.svc.Verify(context.Background(), signed, "quality")
	if !errors.Is(err, ErrUnknownIssuer) {
		t.Fatalf("expected ErrUnknownIssuer, got %v", err)
	}
}

// TestPurpose: Validates that a token with a wrong issuer claim is rejected even under a known key.
// Scope: Unit Test
// Security: Issuer binding prevents cross-deployment token reuse behind a shared key.
// Expected: Verification fails with ErrUnknownIssuer.
func TestToken_Service_Verify_WrongIssuer(t *testing.T) {
	h := newHarness(t)

	other := NewService(
		Config{Issuer: "https://somewhere-else.example"},
		h.keys, h.ledger, h.identities, h.engine, h.audit,
	)
	other.now = h.svc.now

	user, err := h.identities.Authenticate(context.Background(), "acme", "u1", identity.AuthContext{})
	if err != nil {
		t.Fatalf("Authenticate() error = %v", err)
	}
	access, err := h.engine.Authorize(user, "quality", nil)
	if err != nil {
		t.Fatalf("Authorize() error = %v", err)
	}
	signed, err := other.Issue(context.Background(), user, access)
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}

	_, err = h.svc.Verify(context.Background(), signed, "quality")
	if !errors.Is(err, ErrUnknownIssuer) {
		t.Fatalf("expected ErrUnknownIssuer, got %v", err)
	}
}

// TestPurpose: Validates that refresh re-runs authorization against current claims and policy.
// Scope: Unit Test
// Security: Privilege changes since original issuance must take effect on refresh, both upgrades and downgrades.
// Expected: The replacement token reflects the user's current roles and resets expiry to now plus lifetime.
func TestToken_Service_Refresh_ReflectsCurrentClaims(t *testing.T) {
	h := newHarness(t)
	signed := issueInspector(t, h)

	// Promotion lands between issuance and refresh.
	_, err := h.identities.Authenticate(context.Background(), "acme", "inspector-1", identity.AuthContext{
		Roles: []string{"MANAGER"},
	})
	if err != nil {
		t.Fatalf("re-Authenticate() error = %v", err)
	}

	h.setClock(h.clock.Add(12 * time.Minute))
	refreshed, err := h.svc.Refresh(context.Background(), signed)
	if err != nil {
		t.Fatalf("Refresh() error = %v", err)
	}

	res, err := h.svc.Verify(context.Background(), refreshed, "quality")
	if err != nil {
		t.Fatalf("Verify() of refreshed token error = %v", err)
	}
	if want := []string{"quality.manage", "quality.view"}; !reflect.DeepEqual(res.Claims.Permissions, want) {
		t.Errorf("expected refreshed permissions %v, got %v", want, res.Claims.Permissions)
	}
	if res.Claims.DataAccess != string(authz.TierDepartment) {
		t.Errorf("expected department tier after promotion, got %s", res.Claims.DataAccess)
	}
	if !res.Claims.ExpiresAt.Equal(h.clock.Add(15 * time.Minute)) {
		t.Errorf("expected expiry reset to now+lifetime, got %s", res.Claims.ExpiresAt)
	}
	if res.Claims.ID == "" {
		t.Error("expected a fresh jti")
	}

	if ev := h.audit.last(); ev == nil || ev.Type != audit.TypeTokenRefreshed {
		t.Errorf("expected %s audit event, got %+v", audit.TypeTokenRefreshed, ev)
	}
}

// TestPurpose: Validates the refresh denial cases.
// Scope: Unit Test
// Security: Refresh must never resurrect expired, revoked, or orphaned tokens.
// Expected: Expired tokens fail with ErrExpired, revoked ones with ErrRefreshNotPermitted, cleared contexts with ErrNoUserContext.
func TestToken_Service_Refresh_Denied(t *testing.T) {
	t.Run("expired", func(t *testing.T) {
		h := newHarness(t)
		signed := issueInspector(t, h)

		h.setClock(h.clock.Add(16 * time.Minute))
		_, err := h.svc.Refresh(context.Background(), signed)
		if !errors.Is(err, ErrExpired) {
			t.Fatalf("expected ErrExpired, got %v", err)
		}
	})

	t.Run("revoked", func(t *testing.T) {
		h := newHarness(t)
		signed := issueInspector(t, h)

		if err := h.svc.Revoke(context.Background(), signed, "test"); err != nil {
			t.Fatalf("Revoke() error = %v", err)
		}
		_, err := h.svc.Refresh(context.Background(), signed)
		if !errors.Is(err, ErrRefreshNotPermitted) {
			t.Fatalf("expected ErrRefreshNotPermitted, got %v", err)
		}
		if ev := h.audit.last(); ev == nil || ev.Type != audit.TypeRefreshDenied {
			t.Errorf("expected %s audit event, got %+v", audit.TypeRefreshDenied, ev)
		}
	})

	t.Run("no user context", func(t *testing.T) {
		h := newHarness(t)
		signed := issueInspector(t, h)

		h.identities.Clear("acme", "inspector-1")
		_, err := h.svc.Refresh(context.Background(), signed)
		if !errors.Is(err, identity.ErrNoUserContext) {
			t.Fatalf("expected ErrNoUserContext, got %v", err)
		}
	})
}

// TestPurpose: Validates tenant scoping of issued tokens.
// Scope: Unit Test
// Security: A token minted for one tenant must never match another tenant's deployment of the same module.
// Expected: BelongsTo accepts only the issuing tenant.
func TestToken_Service_TenantIsolation(t *testing.T) {
	h := newHarness(t)
	signed := issueInspector(t, h)

	res, err := h.svc.Verify(context.Background(), signed, "quality")
	if err != nil {
		t.Fatalf("Verify() error = %v", err)
	}
	if !res.Claims.BelongsTo("acme") {
		t.Error("token should belong to acme")
	}
	if res.Claims.BelongsTo("globex") {
		t.Error("token must not belong to globex")
	}
	if got := res.Claims.UserID(); got != "inspector-1" {
		t.Errorf("expected user id inspector-1, got %s", got)
	}
}

// TestPurpose: Validates verification continuity across a signing key rotation.
// Scope: Unit Test
// Security: Rotation must not strand outstanding tokens; pruning must eventually retire old keys.
// Expected: Pre-rotation tokens verify until their key is pruned, after which they fail with ErrUnknownIssuer.
func TestToken_Service_KeyRotation(t *testing.T) {
	h := newHarness(t)
	oldToken := issueInspector(t, h)

	if _, err := h.keys.Rotate(); err != nil {
		t.Fatalf("Rotate() error = %v", err)
	}

	// Both the old and a freshly signed token verify.
	if _, err := h.svc.Verify(context.Background(), oldToken, "quality"); err != nil {
		t.Fatalf("pre-rotation token failed verification: %v", err)
	}
	newToken := issueInspector(t, h)
	if _, err := h.svc.Verify(context.Background(), newToken, "quality"); err != nil {
		t.Fatalf("post-rotation token failed verification: %v", err)
	}

	if got := len(h.svc.JWKS().Keys); got != 2 {
		t.Errorf("expected 2 published keys, got %d", got)
	}

	// Once the retired key has outlived the longest possible token, prune it.
	h.keys.now = func() time.Time { return time.Now().Add(16 * time.Minute) }
	h.keys.Prune(15 * time.Minute)

	if _, err := h.svc.Verify(context.Background(), oldToken, "quality"); !errors.Is(err, ErrUnknownIssuer) {
		t.Fatalf("expected ErrUnknownIssuer after prune, got %v", err)
	}
	if got := len(h.svc.JWKS().Keys); got != 1 {
		t.Errorf("expected 1 published key after prune, got %d", got)
	}
}
