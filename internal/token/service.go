package token

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/plantops/identity/internal/audit"
	"github.com/plantops/identity/internal/authz"
	"github.com/plantops/identity/internal/identity"
)

// Config holds token service configuration
type Config struct {
	Issuer           string
	Lifetime         time.Duration
	RefreshThreshold time.Duration
}

// Service issues, verifies, refreshes, and revokes module access tokens.
type Service struct {
	issuer           string
	lifetime         time.Duration
	refreshThreshold time.Duration

	keys        *KeySet
	ledger      *Ledger
	identities  *identity.Service
	engine      *authz.Engine
	auditLogger audit.Logger

	now func() time.Time
}

// NewService creates a new token service
func NewService(
	cfg Config,
	keys *KeySet,
	ledger *Ledger,
	identities *identity.Service,
	engine *authz.Engine,
	auditLogger audit.Logger,
) *Service {
	if cfg.Lifetime <= 0 {
		cfg.Lifetime = 15 * time.Minute
	}
	if cfg.RefreshThreshold <= 0 {
		cfg.RefreshThreshold = 5 * time.Minute
	}

	return &Service{
		issuer:           cfg.Issuer,
		lifetime:         cfg.Lifetime,
		refreshThreshold: cfg.RefreshThreshold,
		keys:             keys,
		ledger:           ledger,
		identities:       identities,
		engine:           engine,
		auditLogger:      auditLogger,
		now:              time.Now,
	}
}

// Lifetime returns the fixed token lifetime.
func (s *Service) Lifetime() time.Duration {
	return s.lifetime
}

// Issue signs a token carrying the authorization decision. Expiry is always
// issued-at plus the fixed lifetime. The only side effect is audit-log
// growth; the registry and ledger are never touched.
func (s *Service) Issue(ctx context.Context, user *identity.UserClaims, access *authz.ModuleAccess) (string, error) {
	signed, claims, err := s.sign(user, access)
	if err != nil {
		s.auditLogger.Log(ctx, audit.Event{
			Type:     audit.TypeIssueDenied,
			Tenant:   user.Tenant,
			Subject:  user.Subject(),
			Module:   access.Module,
			Metadata: map[string]any{audit.AttrReason: err.Error()},
		})
		return "", err
	}

	s.auditLogger.Log(ctx, audit.Event{
		Type:    audit.TypeTokenIssued,
		Tenant:  user.Tenant,
		Subject: user.Subject(),
		Module:  access.Module,
		Metadata: map[string]any{
			audit.AttrTokenID:     claims.ID,
			audit.AttrRoles:       access.Roles,
			audit.AttrPermissions: len(access.Permissions),
			audit.AttrDataAccess:  string(access.DataAccessTier),
			audit.AttrExpiry:      claims.ExpiresAt.Unix(),
			"rationale":           access.Rationale,
		},
	})

	return signed, nil
}

// Verify validates a token and returns its decoded claims. A valid token
// whose remaining lifetime is below the refresh threshold gets the advisory
// NeedsRefresh flag rather than a failure.
func (s *Service) Verify(ctx context.Context, tokenString, requiredModule string) (*VerifyResult, error) {
	claims, err := s.parse(tokenString, false)
	if err != nil {
		return nil, err
	}

	if requiredModule != "" && claims.Module != requiredModule {
		return nil, fmt.Errorf("%w: token is for %q", ErrModuleMismatch, claims.Module)
	}

	if s.ledger.IsRevoked(claims.ID) {
		return nil, ErrRevoked
	}

	return &VerifyResult{
		Claims:       claims,
		NeedsRefresh: claims.ExpiresAt.Sub(s.now()) < s.refreshThreshold,
	}, nil
}

// Refresh verifies the old token and issues a replacement by re-running
// authorization against the currently stored claims and module policy, so
// privilege changes since original issuance take effect. Validity is never
// extended past now + lifetime. A token failing verification for any reason
// other than expiry is not refreshable.
func (s *Service) Refresh(ctx context.Context, tokenString string) (string, error) {
	old, err := s.parse(tokenString, false)
	if err != nil {
		if errors.Is(err, ErrExpired) {
			s.auditRefreshDenied(ctx, old, err)
			return "", err
		}
		err = fmt.Errorf("%w: %s", ErrRefreshNotPermitted, err)
		s.auditRefreshDenied(ctx, old, err)
		return "", err
	}

	if s.ledger.IsRevoked(old.ID) {
		err := fmt.Errorf("%w: %s", ErrRefreshNotPermitted, ErrRevoked)
		s.auditRefreshDenied(ctx, old, err)
		return "", err
	}

	user, err := s.identities.Lookup(old.Tenant, old.UserID())
	if err != nil {
		s.auditRefreshDenied(ctx, old, err)
		return "", err
	}

	access, err := s.engine.Authorize(user, old.Module, nil)
	if err != nil {
		s.auditRefreshDenied(ctx, old, err)
		return "", err
	}

	signed, claims, err := s.sign(user, access)
	if err != nil {
		s.auditRefreshDenied(ctx, old, err)
		return "", err
	}

	s.auditLogger.Log(ctx, audit.Event{
		Type:    audit.TypeTokenRefreshed,
		Tenant:  user.Tenant,
		Subject: user.Subject(),
		Module:  access.Module,
		Metadata: map[string]any{
			"old_jti":         old.ID,
			audit.AttrTokenID: claims.ID,
			audit.AttrExpiry:  claims.ExpiresAt.Unix(),
			audit.AttrRoles:   access.Roles,
		},
	})

	return signed, nil
}

// Revoke permanently invalidates the token's id. Expiry is tolerated here:
// revoking an already-expired token still records the id for the retention
// window. Revocation of an already-revoked id is idempotent.
func (s *Service) Revoke(ctx context.Context, tokenString, reason string) error {
	claims, err := s.parse(tokenString, true)
	if err != nil {
		s.auditLogger.Log(ctx, audit.Event{
			Type:     audit.TypeRevokeDenied,
			Metadata: map[string]any{audit.AttrReason: err.Error()},
		})
		return err
	}

	if err := s.ledger.Revoke(ctx, claims.ID, claims.ExpiresAt.Time); err != nil {
		s.auditLogger.Log(ctx, audit.Event{
			Type:     audit.TypeRevokeDenied,
			Tenant:   claims.Tenant,
			Subject:  claims.Subject,
			Module:   claims.Module,
			Metadata: map[string]any{audit.AttrReason: err.Error()},
		})
		return err
	}

	s.auditLogger.Log(ctx, audit.Event{
		Type:    audit.TypeTokenRevoked,
		Tenant:  claims.Tenant,
		Subject: claims.Subject,
		Module:  claims.Module,
		Metadata: map[string]any{
			audit.AttrTokenID: claims.ID,
			audit.AttrReason:  reason,
		},
	})

	return nil
}

// JWKS returns the public verification material for all current keys.
func (s *Service) JWKS() JWKS {
	return s.keys.JWKS()
}

// sign builds and signs the token record: issued-at now, expiry now +
// lifetime, tenant-qualified subject, fresh jti, active kid in the header.
func (s *Service) sign(user *identity.UserClaims, access *authz.ModuleAccess) (string, *ModuleClaims, error) {
	now := s.now()

	claims := &ModuleClaims{
		Tenant:      user.Tenant,
		Module:      access.Module,
		Roles:       access.Roles,
		Permissions: access.Permissions,
		ABAC:        access.ABAC,
		DataAccess:  string(access.DataAccessTier),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.Subject(),
			Issuer:    s.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.lifetime)),
			ID:        uuid.NewString(),
		},
	}

	kid, key := s.keys.Signer()
	tok := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	tok.Header["kid"] = kid

	signed, err := tok.SignedString(key)
	if err != nil {
		return "", nil, fmt.Errorf("failed to sign token: %w", err)
	}

	return signed, claims, nil
}

// parse validates the signature, issuer, and (unless allowExpired) the
// expiry, mapping library errors onto the service's error taxonomy.
func (s *Service) parse(tokenString string, allowExpired bool) (*ModuleClaims, error) {
	keyfunc := func(t *jwt.Token) (any, error) {
		kid, _ := t.Header["kid"].(string)
		pub, ok := s.keys.Verifier(kid)
		if !ok {
			return nil, ErrUnknownIssuer
		}
		return pub, nil
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{"RS256"}),
		jwt.WithTimeFunc(s.now),
		jwt.WithExpirationRequired(),
	}
	if allowExpired {
		opts = append(opts, jwt.WithoutClaimsValidation())
	} else {
		opts = append(opts, jwt.WithIssuer(s.issuer))
	}

	parsed, err := jwt.ParseWithClaims(tokenString, &ModuleClaims{}, keyfunc, opts...)
	if err != nil {
		switch {
		case errors.Is(err, ErrUnknownIssuer):
			return nil, ErrUnknownIssuer
		case errors.Is(err, jwt.ErrTokenExpired):
			return nil, ErrExpired
		case errors.Is(err, jwt.ErrTokenInvalidIssuer):
			return nil, ErrUnknownIssuer
		case errors.Is(err, jwt.ErrTokenSignatureInvalid):
			return nil, ErrInvalidSignature
		default:
			return nil, fmt.Errorf("%w: %s", ErrInvalidSignature, err)
		}
	}

	claims := parsed.Claims.(*ModuleClaims)

	// WithoutClaimsValidation skips the issuer check too; expiry tolerance
	// must not also tolerate foreign issuers.
	if allowExpired {
		if claims.Issuer != s.issuer {
			return nil, ErrUnknownIssuer
		}
		if claims.ExpiresAt == nil {
			return nil, fmt.Errorf("%w: missing expiry", ErrInvalidSignature)
		}
	}

	return claims, nil
}

func (s *Service) auditRefreshDenied(ctx context.Context, old *ModuleClaims, cause error) {
	event := audit.Event{
		Type:     audit.TypeRefreshDenied,
		Metadata: map[string]any{audit.AttrReason: cause.Error()},
	}
	if old != nil {
		event.Tenant = old.Tenant
		event.Subject = old.Subject
		event.Module = old.Module
		event.Metadata[audit.AttrTokenID] = old.ID
	}
	s.auditLogger.Log(ctx, event)
}
