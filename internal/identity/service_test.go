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

package identity

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/plantops/identity/internal/audit"
)

type noopAudit struct{}

func (noopAudit) Log(_ context.Context, _ audit.Event) {}

// TestPurpose: Validates authentication stores claims retrievable by
// (tenant, user) and applies gateway defaults for omitted attributes.
// Scope: Unit Test
// Expected: Stored claims carry defaults; Subject is tenant-qualified.
func TestIdentity_Service_Authenticate(t *testing.T) {
	s := NewService(NewContextStore(), noopAudit{})

	claims, err := s.Authenticate(context.Background(), "t1", "u1", AuthContext{
		Email: "u1@t1.example.com",
		Roles: []string{"INSPECTOR"},
	})
	if err != nil {
		t.Fatalf("Authenticate() error = %v", err)
	}

	if claims.Subject() != "t1:u1" {
		t.Errorf("Subject() = %q, want %q", claims.Subject(), "t1:u1")
	}
	if claims.Name != "u1" {
		t.Errorf("Name default = %q, want user id", claims.Name)
	}
	if claims.Department != "general" {
		t.Errorf("Department default = %q, want %q", claims.Department, "general")
	}
	if claims.SecurityLevel != SecurityStandard {
		t.Errorf("SecurityLevel default = %q, want %q", claims.SecurityLevel, SecurityStandard)
	}
	if claims.DeviceTrust != DeviceTrusted {
		t.Errorf("DeviceTrust default = %q, want %q", claims.DeviceTrust, DeviceTrusted)
	}

	stored, err := s.Lookup("t1", "u1")
	if err != nil {
		t.Fatalf("Lookup() error = %v", err)
	}
	if !stored.HasRole("INSPECTOR") {
		t.Error("stored claims missing INSPECTOR role")
	}
}

// TestPurpose: Validates identity validation and context lifecycle.
// Scope: Unit Test
// Expected: Empty tenant/user fail InvalidIdentity; re-authentication
// overwrites; Clear drops the context.
func TestIdentity_Service_ContextLifecycle(t *testing.T) {
	s := NewService(NewContextStore(), noopAudit{})
	ctx := context.Background()

	if _, err := s.Authenticate(ctx, "", "u1", AuthContext{}); !errors.Is(err, ErrInvalidIdentity) {
		t.Errorf("Authenticate(no tenant) error = %v, want ErrInvalidIdentity", err)
	}
	if _, err := s.Authenticate(ctx, "t1", "", AuthContext{}); !errors.Is(err, ErrInvalidIdentity) {
		t.Errorf("Authenticate(no user) error = %v, want ErrInvalidIdentity", err)
	}

	if _, err := s.Authenticate(ctx, "t1", "u1", AuthContext{SecurityLevel: SecurityStandard}); err != nil {
		t.Fatalf("Authenticate() error = %v", err)
	}
	if _, err := s.Authenticate(ctx, "t1", "u1", AuthContext{SecurityLevel: SecurityHigh}); err != nil {
		t.Fatalf("Authenticate() error = %v", err)
	}

	stored, err := s.Lookup("t1", "u1")
	if err != nil {
		t.Fatalf("Lookup() error = %v", err)
	}
	if stored.SecurityLevel != SecurityHigh {
		t.Errorf("SecurityLevel = %q after re-authentication, want %q", stored.SecurityLevel, SecurityHigh)
	}

	s.Clear("t1", "u1")
	if _, err := s.Lookup("t1", "u1"); !errors.Is(err, ErrNoUserContext) {
		t.Errorf("Lookup() after Clear error = %v, want ErrNoUserContext", err)
	}
}

// TestPurpose: Validates tenant separation in the context store.
// Scope: Unit Test
// Security: Tenant Isolation
// Expected: Claims stored for tenant A are invisible under tenant B.
func TestIdentity_Store_TenantIsolation(t *testing.T) {
	store := NewContextStore()
	store.Put(&UserClaims{Tenant: "t1", UserID: "u1", Roles: []string{"ADMIN"}})

	if _, err := store.Get("t2", "u1"); !errors.Is(err, ErrNoUserContext) {
		t.Errorf("Get() under wrong tenant error = %v, want ErrNoUserContext", err)
	}
}

// TestPurpose: Validates the sharded store under concurrent readers and
// writers across many subjects.
// Scope: Unit Test (race detector)
// Expected: No data races; every written context is readable.
func TestIdentity_Store_Concurrent(t *testing.T) {
	store := NewContextStore()
	var wg sync.WaitGroup

	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				user := fmt.Sprintf("u%d-%d", worker, j)
				store.Put(&UserClaims{Tenant: "t1", UserID: user})
				if _, err := store.Get("t1", user); err != nil {
					t.Errorf("Get(%s) error = %v", user, err)
					return
				}
			}
		}(i)
	}
	wg.Wait()
}

// TestPurpose: Validates Argon2id service key hashing round-trip and
// rejection of wrong keys and malformed hashes.
// Scope: Unit Test
// Security: Collaborator service authentication
// Expected: Correct key verifies, wrong key does not, garbage input errors.
func TestIdentity_ServiceKeyHasher(t *testing.T) {
	h := NewServiceKeyHasher(65536, 3, 4, 16, 32)

	key, err := GenerateServiceKey()
	if err != nil {
		t.Fatalf("GenerateServiceKey() error = %v", err)
	}

	encoded, err := h.Hash(key)
	if err != nil {
		t.Fatalf("Hash() error = %v", err)
	}

	ok, err := h.Verify(key, encoded)
	if err != nil || !ok {
		t.Errorf("Verify(correct key) = %v, %v; want true, nil", ok, err)
	}

	ok, err = h.Verify("not-the-key", encoded)
	if err != nil || ok {
		t.Errorf("Verify(wrong key) = %v, %v; want false, nil", ok, err)
	}

	if _, err := h.Verify(key, "$argon2id$bogus"); err == nil {
		t.Error("Verify(malformed hash) expected error")
	}
}
