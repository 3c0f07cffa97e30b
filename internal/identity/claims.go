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
	"errors"
	"fmt"
)

// Domain errors
var (
	ErrInvalidIdentity = errors.New("invalid identity: tenant and user id are required")
	ErrNoUserContext   = errors.New("no stored user context")
)

// SecurityLevel classifies the assurance level of the caller's session as
// established by the upstream gateway.
type SecurityLevel string

const (
	SecurityStandard SecurityLevel = "standard"
	SecurityElevated SecurityLevel = "elevated"
	SecurityHigh     SecurityLevel = "high"
)

// Device trust tags
const (
	DeviceTrusted   = "trusted"
	DeviceUntrusted = "untrusted"
	DeviceUnknown   = "unknown"
)

// UserClaims is the base identity established at authentication time.
// Immutable within a session; a re-authentication replaces the record
// wholesale. This service trusts the upstream gateway for every field here.
type UserClaims struct {
	UserID        string        `json:"user_id"`
	Tenant        string        `json:"tenant"`
	Name          string        `json:"name"`
	Email         string        `json:"email"`
	Roles         []string      `json:"roles"`
	Department    string        `json:"department"`
	Site          string        `json:"site,omitempty"`
	Shift         string        `json:"shift,omitempty"`
	SecurityLevel SecurityLevel `json:"security_level"`
	DeviceTrust   string        `json:"device_trust"`
}

// Subject returns the canonical subject identifier. Tenant is always part of
// the subject: two users with the same id in different tenants are distinct
// principals.
func (c *UserClaims) Subject() string {
	return fmt.Sprintf("%s:%s", c.Tenant, c.UserID)
}

// HasRole reports whether the claims carry the given base role.
func (c *UserClaims) HasRole(role string) bool {
	for _, r := range c.Roles {
		if r == role {
			return true
		}
	}
	return false
}
