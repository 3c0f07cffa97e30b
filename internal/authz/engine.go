package authz

import (
	"fmt"
	"sort"
	"strings"

	"github.com/plantops/identity/internal/identity"
	"github.com/plantops/identity/internal/registry"
)

// Tier is the data-access level derived from the effective role set.
type Tier string

const (
	TierFull       Tier = "full"
	TierDepartment Tier = "department"
	TierRestricted Tier = "restricted"
)

// Well-known role names the engine reasons about. ELEVATED and DOMAIN_EXPERT
// are synthetic: never part of the base claims, only added by elevation rules.
const (
	RoleAdmin        = "ADMIN"
	RoleManager      = "MANAGER"
	RoleElevated     = "ELEVATED"
	RoleDomainExpert = "DOMAIN_EXPERT"
)

// AttributeContext is the ABAC snapshot taken at decision time. It travels
// inside the token so downstream services can apply attribute checks without
// calling back.
type AttributeContext struct {
	Site               string `json:"site,omitempty"`
	Department         string `json:"department"`
	Shift              string `json:"shift,omitempty"`
	SecurityLevel      string `json:"security_level"`
	DeviceTrust        string `json:"device_trust"`
	DataClassification string `json:"data_classification"`
}

// ModuleAccess is the output of an authorization decision. Transient: it is
// computed per call and consumed immediately by the token issuer.
type ModuleAccess struct {
	Module         string
	Roles          []string
	Permissions    []string
	ABAC           AttributeContext
	DataAccessTier Tier
	Rationale      string
}

// HasPermission reports whether the grant covers a permission, honoring
// namespace wildcards.
func (a *ModuleAccess) HasPermission(permission string) bool {
	for _, p := range a.Permissions {
		if registry.MatchPermission(p, permission) {
			return true
		}
	}
	return false
}

// ElevationRule augments the effective role set when its condition holds.
// Rules are declarative policy composition, evaluated in order; each can only
// add a role, never remove one.
type ElevationRule struct {
	Name    string
	Role    string
	Applies func(claims *identity.UserClaims, policy *registry.ModulePolicy) bool
}

// DefaultElevationRules returns the deployment's standard rule set.
func DefaultElevationRules() []ElevationRule {
	return []ElevationRule{
		{
			Name: "high_security_level",
			Role: RoleElevated,
			Applies: func(claims *identity.UserClaims, _ *registry.ModulePolicy) bool {
				return claims.SecurityLevel == identity.SecurityHigh && !claims.HasRole(RoleAdmin)
			},
		},
		{
			Name: "department_domain_match",
			Role: RoleDomainExpert,
			Applies: func(claims *identity.UserClaims, policy *registry.ModulePolicy) bool {
				dept := strings.ToLower(claims.Department)
				return dept != "" && dept != "general" &&
					strings.Contains(strings.ToLower(policy.Module), dept)
			},
		},
	}
}

// Engine combines a user's base claims with a module's policy to produce an
// effective role set, resolved permissions, and a data-access tier.
type Engine struct {
	registry *registry.Registry
	rules    []ElevationRule
}

// NewEngine creates a decision engine. With no explicit rules it installs
// the default elevation rule set.
func NewEngine(reg *registry.Registry, rules ...ElevationRule) *Engine {
	if len(rules) == 0 {
		rules = DefaultElevationRules()
	}
	return &Engine{registry: reg, rules: rules}
}

// Authorize evaluates the module policy against the claims. The returned
// grant never exceeds the union of permissions attributable to the effective
// roles; requested permissions narrow the grant, never widen it. Either the
// full decision is returned or an error — no partial grants.
func (e *Engine) Authorize(claims *identity.UserClaims, moduleName string, requested []string) (*ModuleAccess, error) {
	policy, err := e.registry.Lookup(moduleName)
	if err != nil {
		return nil, err
	}

	effective := make([]string, 0, len(claims.Roles)+len(e.rules))
	effective = append(effective, claims.Roles...)

	var applied []string
	for _, rule := range e.rules {
		if hasRole(effective, rule.Role) {
			continue
		}
		if rule.Applies(claims, policy) {
			effective = append(effective, rule.Role)
			applied = append(applied, rule.Name)
		}
	}

	granted := resolvePermissions(policy, effective)
	if len(requested) > 0 {
		granted = narrowPermissions(granted, requested)
	}

	access := &ModuleAccess{
		Module:      moduleName,
		Roles:       effective,
		Permissions: granted,
		ABAC: AttributeContext{
			Site:               claims.Site,
			Department:         claims.Department,
			Shift:              claims.Shift,
			SecurityLevel:      string(claims.SecurityLevel),
			DeviceTrust:        claims.DeviceTrust,
			DataClassification: string(policy.DataClassification),
		},
		DataAccessTier: deriveTier(effective),
	}
	access.Rationale = buildRationale(claims, access, applied)

	return access, nil
}

// resolvePermissions returns the deduplicated, sorted union of each
// effective role's permission set in the module's role→permission table.
func resolvePermissions(policy *registry.ModulePolicy, roles []string) []string {
	seen := make(map[string]bool)
	for _, role := range roles {
		for _, p := range policy.PermissionsFor(role) {
			seen[p] = true
		}
	}

	granted := make([]string, 0, len(seen))
	for p := range seen {
		granted = append(granted, p)
	}
	sort.Strings(granted)
	return granted
}

// narrowPermissions keeps only the requested permissions the union covers.
func narrowPermissions(union, requested []string) []string {
	narrowed := make([]string, 0, len(requested))
	for _, want := range requested {
		for _, have := range union {
			if registry.MatchPermission(have, want) {
				narrowed = append(narrowed, want)
				break
			}
		}
	}
	sort.Strings(narrowed)
	return narrowed
}

func deriveTier(roles []string) Tier {
	if hasRole(roles, RoleAdmin) {
		return TierFull
	}
	if hasRole(roles, RoleManager) {
		return TierDepartment
	}
	return TierRestricted
}

func hasRole(roles []string, role string) bool {
	for _, r := range roles {
		if r == role {
			return true
		}
	}
	return false
}

func buildRationale(claims *identity.UserClaims, access *ModuleAccess, appliedRules []string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "subject %s granted %d permission(s) on %s via roles [%s]",
		claims.Subject(), len(access.Permissions), access.Module, strings.Join(access.Roles, " "))
	if len(appliedRules) > 0 {
		fmt.Fprintf(&b, "; elevation rules applied: %s", strings.Join(appliedRules, ", "))
	}
	fmt.Fprintf(&b, "; data access tier %s (%s security level, %s department)",
		access.DataAccessTier, claims.SecurityLevel, claims.Department)
	return b.String()
}
