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

package registry

import (
	"errors"
	"fmt"
	"strings"
)

// Domain errors
var (
	ErrUnknownModule = errors.New("module not registered")
	ErrInvalidPolicy = errors.New("invalid module policy")
)

// Classification tags the sensitivity of a module's data.
type Classification string

const (
	ClassificationPublic       Classification = "public"
	ClassificationInternal     Classification = "internal"
	ClassificationConfidential Classification = "confidential"
)

// ABACRequirements names the contextual attributes a module's policy
// evaluates. Required attributes must be present in the caller's context;
// optional ones refine the grant when available.
type ABACRequirements struct {
	Required []string `json:"required"`
	Optional []string `json:"optional"`
}

// ModulePolicy is the per-module access configuration: the declared role
// set, the role→permission table, attribute requirements, and data handling
// tags. One entry per module; re-registration replaces it wholesale.
type ModulePolicy struct {
	Module             string              `json:"module"`
	Roles              []string            `json:"roles"`
	Permissions        map[string][]string `json:"permissions"`
	ABAC               ABACRequirements    `json:"abac"`
	PIIFields          []string            `json:"pii_fields"`
	DataClassification Classification      `json:"data_classification"`
	EncryptionRequired bool                `json:"encryption_required"`
}

// Validate checks the policy's internal consistency. A permission grant for
// a role absent from the declared role set is a configuration error, not
// something to accept silently.
func (p *ModulePolicy) Validate() error {
	if p.Module == "" {
		return fmt.Errorf("%w: module name is required", ErrInvalidPolicy)
	}
	if len(p.Roles) == 0 {
		return fmt.Errorf("%w: at least one role must be declared", ErrInvalidPolicy)
	}

	declared := make(map[string]bool, len(p.Roles))
	for _, role := range p.Roles {
		if role == "" {
			return fmt.Errorf("%w: empty role name", ErrInvalidPolicy)
		}
		declared[role] = true
	}

	for role := range p.Permissions {
		if !declared[role] {
			return fmt.Errorf("%w: permissions granted to undeclared role %q", ErrInvalidPolicy, role)
		}
	}

	switch p.DataClassification {
	case ClassificationPublic, ClassificationInternal, ClassificationConfidential:
	case "":
		p.DataClassification = ClassificationInternal
	default:
		return fmt.Errorf("%w: unknown data classification %q", ErrInvalidPolicy, p.DataClassification)
	}

	return nil
}

// HasRole reports whether the role is declared by this policy.
func (p *ModulePolicy) HasRole(role string) bool {
	for _, r := range p.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// PermissionsFor returns the permission set granted to a role, nil when the
// role has no grants in this module.
func (p *ModulePolicy) PermissionsFor(role string) []string {
	return p.Permissions[role]
}

// MatchPermission reports whether a granted permission covers the requested
// one. Grants may be exact ("quality.view"), namespace wildcards
// ("quality.*"), or the global wildcard ("*").
func MatchPermission(granted, requested string) bool {
	if granted == "*" || granted == requested {
		return true
	}
	if strings.HasSuffix(granted, ".*") {
		return strings.HasPrefix(requested, strings.TrimSuffix(granted, "*"))
	}
	return false
}
