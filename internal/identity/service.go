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

	"github.com/plantops/identity/internal/audit"
)

// AuthContext carries the identity attributes supplied by the upstream
// gateway at authentication time. Primary authentication (passwords, SSO)
// happened upstream; this service only derives grants from the result.
type AuthContext struct {
	Name          string        `json:"name"`
	Email         string        `json:"email"`
	Roles         []string      `json:"roles"`
	Department    string        `json:"department"`
	Site          string        `json:"site,omitempty"`
	Shift         string        `json:"shift,omitempty"`
	SecurityLevel SecurityLevel `json:"security_level,omitempty"`
	DeviceTrust   string        `json:"device_trust,omitempty"`
}

// Service provides identity context management
type Service struct {
	store       *ContextStore
	auditLogger audit.Logger
}

// NewService creates a new identity service
func NewService(store *ContextStore, auditLogger audit.Logger) *Service {
	return &Service{
		store:       store,
		auditLogger: auditLogger,
	}
}

// Authenticate builds a UserClaims record from the caller-supplied context
// and stores it, overwriting any existing context for the subject.
func (s *Service) Authenticate(ctx context.Context, tenant, userID string, ac AuthContext) (*UserClaims, error) {
	if tenant == "" || userID == "" {
		return nil, ErrInvalidIdentity
	}

	claims := &UserClaims{
		UserID:        userID,
		Tenant:        tenant,
		Name:          ac.Name,
		Email:         ac.Email,
		Roles:         ac.Roles,
		Department:    ac.Department,
		Site:          ac.Site,
		Shift:         ac.Shift,
		SecurityLevel: ac.SecurityLevel,
		DeviceTrust:   ac.DeviceTrust,
	}

	// Defaults mirror what the upstream gateway sends for a plain user.
	if claims.Name == "" {
		claims.Name = userID
	}
	if len(claims.Roles) == 0 {
		claims.Roles = []string{"USER"}
	}
	if claims.Department == "" {
		claims.Department = "general"
	}
	if claims.SecurityLevel == "" {
		claims.SecurityLevel = SecurityStandard
	}
	if claims.DeviceTrust == "" {
		claims.DeviceTrust = DeviceTrusted
	}

	s.store.Put(claims)

	s.auditLogger.Log(ctx, audit.Event{
		Type:    audit.TypeUserAuthenticated,
		Tenant:  tenant,
		Subject: claims.Subject(),
		Metadata: map[string]any{
			audit.AttrRoles:  claims.Roles,
			"department":     claims.Department,
			"security_level": string(claims.SecurityLevel),
		},
	})

	return claims, nil
}

// Lookup returns the stored claims for (tenant, userID).
func (s *Service) Lookup(tenant, userID string) (*UserClaims, error) {
	return s.store.Get(tenant, userID)
}

// Clear drops the stored context for (tenant, userID). Subsequent authorize
// or refresh calls for the subject fail with ErrNoUserContext until the user
// re-authenticates.
func (s *Service) Clear(tenant, userID string) {
	s.store.Clear(tenant, userID)
}
