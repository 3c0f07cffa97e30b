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
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/plantops/identity/internal/authz"
)

// ModuleClaims is the signed payload of a module access token. The subject
// is always tenant-qualified (`tenant:user_id`); the registered claims carry
// iat/exp/iss/jti. A compliant JWT library plus the published JWKS is enough
// for any downstream service to validate these offline.
type ModuleClaims struct {
	Tenant      string                 `json:"tenant"`
	Module      string                 `json:"module"`
	Roles       []string               `json:"roles"`
	Permissions []string               `json:"permissions"`
	ABAC        authz.AttributeContext `json:"abac"`
	DataAccess  string                 `json:"data_access"`
	jwt.RegisteredClaims
}

// UserID returns the user part of the tenant-qualified subject.
func (c *ModuleClaims) UserID() string {
	if parts := strings.SplitN(c.Subject, ":", 2); len(parts) == 2 {
		return parts[1]
	}
	return c.Subject
}

// BelongsTo reports whether the token was issued for the given tenant.
// Callers comparing subjects must include the tenant: a token minted for
// tenant A never matches tenant B's deployment of the same module.
func (c *ModuleClaims) BelongsTo(tenant string) bool {
	return c.Tenant == tenant && strings.HasPrefix(c.Subject, tenant+":")
}

// HasPermission reports whether the token grants a permission, honoring
// namespace wildcards embedded in the grant.
func (c *ModuleClaims) HasPermission(permission string) bool {
	access := authz.ModuleAccess{Permissions: c.Permissions}
	return access.HasPermission(permission)
}

// VerifyResult is the outcome of a successful verification. NeedsRefresh is
// advisory: the token is still valid, but its remaining lifetime is below
// the refresh threshold and the holder should refresh soon.
type VerifyResult struct {
	Claims       *ModuleClaims
	NeedsRefresh bool
}
