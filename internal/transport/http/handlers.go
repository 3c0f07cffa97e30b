// @title PlantOps Identity API
// @version 1.0.0
// @description Identity and module authorization service for industrial plant operations
// @termsOfService http://swagger.io/terms/

// @contact.name API Support
// @contact.url http://www.swagger.io/support
// @contact.email support@swagger.io

// @license.name Apache 2.0
// @license.url https://www.apache.org/licenses/LICENSE-2.0

// @host localhost:8080
// @BasePath /api/v1

// @securityDefinitions.apikey ServiceKeyAuth
// @in header
// @name X-Service-Key

package http

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/plantops/identity/internal/audit"
	"github.com/plantops/identity/internal/authz"
	"github.com/plantops/identity/internal/identity"
	"github.com/plantops/identity/internal/observability/logger"
	"github.com/plantops/identity/internal/observability/metrics"
	"github.com/plantops/identity/internal/registry"
	"github.com/plantops/identity/internal/token"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// Handler holds HTTP handlers and dependencies
type Handler struct {
	registry        *registry.Registry
	identityService *identity.Service
	engine          *authz.Engine
	tokenService    *token.Service
	auditLogger     audit.Logger
	auditQuery      audit.Querier
	metrics         *metrics.IdentityMetrics

	serviceKeys    *identity.ServiceKeyHasher
	serviceKeyHash string
}

// NewHandler creates a new HTTP handler. auditQuery is nil when no durable
// audit store is configured; the audit read endpoint then reports that.
func NewHandler(
	reg *registry.Registry,
	identityService *identity.Service,
	engine *authz.Engine,
	tokenService *token.Service,
	auditLogger audit.Logger,
	auditQuery audit.Querier,
	m *metrics.IdentityMetrics,
	serviceKeys *identity.ServiceKeyHasher,
	serviceKeyHash string,
) *Handler {
	return &Handler{
		registry:        reg,
		identityService: identityService,
		engine:          engine,
		tokenService:    tokenService,
		auditLogger:     auditLogger,
		auditQuery:      auditQuery,
		metrics:         m,
		serviceKeys:     serviceKeys,
		serviceKeyHash:  serviceKeyHash,
	}
}

// NewRouter creates a new HTTP router
func NewRouter(h *Handler, rateLimiter *RateLimiter) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(RateLimitMiddleware(rateLimiter))
	r.Use(func(handler http.Handler) http.Handler {
		return otelhttp.NewHandler(handler, "http_request",
			otelhttp.WithSpanNameFormatter(func(operation string, r *http.Request) string {
				return r.Method + " " + r.URL.Path
			}),
		)
	})
	r.Use(LoggingMiddleware(h.metrics))
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	// Health check
	r.Get("/health", h.HealthCheck)

	// Public verification material
	r.Get("/jwks.json", h.JWKS)

	r.Route("/api/v1", func(r chi.Router) {
		// Module management is restricted to collaborating services.
		r.Route("/modules", func(r chi.Router) {
			r.Use(h.ServiceKeyMiddleware)
			r.Post("/", h.RegisterModule)
			r.Get("/", h.ListModules)
		})

		// Audit trail review, same trust level as module management.
		r.Route("/audit", func(r chi.Router) {
			r.Use(h.ServiceKeyMiddleware)
			r.Get("/{tenant}", h.ListAuditEntries)
		})

		r.Route("/auth", func(r chi.Router) {
			r.Post("/authenticate", h.Authenticate)
			r.Post("/authorize", h.Authorize)
			r.Delete("/context/{tenant}/{userID}", h.ClearContext)
		})

		r.Route("/tokens", func(r chi.Router) {
			r.Post("/", h.IssueToken)
			r.Post("/verify", h.VerifyToken)
			r.Post("/refresh", h.RefreshToken)
			r.Post("/revoke", h.RevokeToken)
		})
	})

	return r
}

// HealthCheck returns service health status
// @Summary Health check
// @Description Checks if the service is up and running
// @Tags System
// @Produce json
// @Success 200 {object} map[string]string
// @Router /health [get]
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"status":  "healthy",
		"service": "plantops-identity",
	})
}

// JWKS serves the public signing keys
// @Summary JSON Web Key Set
// @Description Public verification material for issued tokens
// @Tags System
// @Produce json
// @Success 200 {object} token.JWKS
// @Router /jwks.json [get]
func (h *Handler) JWKS(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, h.tokenService.JWKS())
}

// RegisterModule registers or replaces a module policy
// @Summary Register a module
// @Description Register a module's access policy; re-registration replaces it wholesale
// @Tags Modules
// @Accept json
// @Produce json
// @Security ServiceKeyAuth
// @Param request body registry.ModulePolicy true "Module policy"
// @Success 201 {object} map[string]string
// @Failure 400 {object} map[string]string
// @Router /modules [post]
func (h *Handler) RegisterModule(w http.ResponseWriter, r *http.Request) {
	var policy registry.ModulePolicy
	if err := json.NewDecoder(r.Body).Decode(&policy); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := h.registry.Register(r.Context(), &policy); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	h.auditLogger.Log(r.Context(), audit.Event{
		Type:      audit.TypeModuleRegistered,
		Module:    policy.Module,
		IPAddress: getIPAddress(r),
		Metadata: map[string]any{
			audit.AttrRoles:  policy.Roles,
			"classification": string(policy.DataClassification),
		},
	})

	respondJSON(w, http.StatusCreated, map[string]string{
		"module": policy.Module,
		"status": "registered",
	})
}

// ListModules returns all registered module names
// @Summary List modules
// @Tags Modules
// @Produce json
// @Security ServiceKeyAuth
// @Success 200 {object} map[string][]string
// @Router /modules [get]
func (h *Handler) ListModules(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string][]string{
		"modules": h.registry.Modules(),
	})
}

// ListAuditEntries returns a tenant's persisted audit trail
// @Summary List audit entries
// @Description Read back a tenant's audit trail, newest first
// @Tags Audit
// @Produce json
// @Security ServiceKeyAuth
// @Param tenant path string true "Tenant"
// @Param limit query int false "Maximum entries to return" default(100)
// @Success 200 {object} map[string]any
// @Failure 503 {object} map[string]string
// @Router /audit/{tenant} [get]
func (h *Handler) ListAuditEntries(w http.ResponseWriter, r *http.Request) {
	if h.auditQuery == nil {
		respondError(w, http.StatusServiceUnavailable, "audit storage is not configured")
		return
	}

	tenant := chi.URLParam(r, "tenant")
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	events, err := h.auditQuery.ListByTenant(r.Context(), tenant, limit)
	if err != nil {
		slog.ErrorContext(r.Context(), "failed to list audit entries",
			logger.Error(err),
			logger.Tenant(tenant),
		)
		respondError(w, http.StatusInternalServerError, "failed to list audit entries")
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"tenant":  tenant,
		"entries": events,
	})
}

// AuthenticateRequest carries the upstream gateway's identity assertion
type AuthenticateRequest struct {
	Tenant  string               `json:"tenant" example:"acme"`
	UserID  string               `json:"user_id" example:"jdoe"`
	Context identity.AuthContext `json:"context"`
}

// Authenticate stores the caller's identity context
// @Summary Authenticate a user
// @Description Establish the user's identity context from upstream authentication
// @Tags Auth
// @Accept json
// @Produce json
// @Param request body AuthenticateRequest true "Identity assertion"
// @Success 200 {object} identity.UserClaims
// @Failure 400 {object} map[string]string
// @Router /auth/authenticate [post]
func (h *Handler) Authenticate(w http.ResponseWriter, r *http.Request) {
	var req AuthenticateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	claims, err := h.identityService.Authenticate(r.Context(), req.Tenant, req.UserID, req.Context)
	if err != nil {
		respondDomainError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, claims)
}

// ClearContext drops a user's stored identity context
// @Summary Clear user context
// @Tags Auth
// @Produce json
// @Param tenant path string true "Tenant"
// @Param userID path string true "User ID"
// @Success 204
// @Router /auth/context/{tenant}/{userID} [delete]
func (h *Handler) ClearContext(w http.ResponseWriter, r *http.Request) {
	tenant := chi.URLParam(r, "tenant")
	userID := chi.URLParam(r, "userID")
	h.identityService.Clear(tenant, userID)

	slog.InfoContext(r.Context(), "cleared identity context",
		logger.Tenant(tenant),
		logger.UserID(userID),
	)

	w.WriteHeader(http.StatusNoContent)
}

// AuthorizeRequest asks for an access decision without issuing a token
type AuthorizeRequest struct {
	Tenant               string   `json:"tenant" example:"acme"`
	UserID               string   `json:"user_id" example:"jdoe"`
	Module               string   `json:"module" example:"quality"`
	RequestedPermissions []string `json:"requested_permissions,omitempty"`
}

// AuthorizeResponse is the access decision
type AuthorizeResponse struct {
	Module         string                 `json:"module"`
	Roles          []string               `json:"roles"`
	Permissions    []string               `json:"permissions"`
	ABAC           authz.AttributeContext `json:"abac"`
	DataAccessTier string                 `json:"data_access_tier"`
	Rationale      string                 `json:"rationale"`
}

// Authorize evaluates module access for a user
// @Summary Authorize module access
// @Description Evaluate the module's policy against the user's stored claims
// @Tags Auth
// @Accept json
// @Produce json
// @Param request body AuthorizeRequest true "Authorization request"
// @Success 200 {object} AuthorizeResponse
// @Failure 401 {object} map[string]string
// @Failure 404 {object} map[string]string
// @Router /auth/authorize [post]
func (h *Handler) Authorize(w http.ResponseWriter, r *http.Request) {
	var req AuthorizeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	access, _, ok := h.authorize(w, r, req)
	if !ok {
		return
	}

	respondJSON(w, http.StatusOK, toAuthorizeResponse(access))
}

// TokenResponse carries an issued token and its validity window
type TokenResponse struct {
	Token     string            `json:"token"`
	ExpiresIn int64             `json:"expires_in"`
	Grant     AuthorizeResponse `json:"grant"`
}

// IssueToken authorizes and issues a module access token
// @Summary Issue a module access token
// @Description Run the authorization decision and sign it into a token
// @Tags Tokens
// @Accept json
// @Produce json
// @Param request body AuthorizeRequest true "Token request"
// @Success 201 {object} TokenResponse
// @Failure 401 {object} map[string]string
// @Failure 404 {object} map[string]string
// @Router /tokens [post]
func (h *Handler) IssueToken(w http.ResponseWriter, r *http.Request) {
	var req AuthorizeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	access, user, ok := h.authorize(w, r, req)
	if !ok {
		return
	}

	signed, err := h.tokenService.Issue(r.Context(), user, access)
	if err != nil {
		slog.ErrorContext(r.Context(), "failed to issue token",
			logger.Error(err),
			logger.Tenant(req.Tenant),
			logger.Subject(user.Subject()),
			logger.Module(req.Module),
		)
		respondError(w, http.StatusInternalServerError, "failed to issue token")
		return
	}

	if h.metrics != nil {
		h.metrics.TokensIssued.Add(r.Context(), 1)
	}

	respondJSON(w, http.StatusCreated, TokenResponse{
		Token:     signed,
		ExpiresIn: int64(h.tokenService.Lifetime().Seconds()),
		Grant:     toAuthorizeResponse(access),
	})
}

// VerifyRequest carries a token for validation
type VerifyRequest struct {
	Token  string `json:"token"`
	Module string `json:"module,omitempty" example:"quality"`
}

// VerifyResponse is the verification outcome for a valid token
type VerifyResponse struct {
	Valid        bool                `json:"valid"`
	NeedsRefresh bool                `json:"needs_refresh"`
	Claims       *token.ModuleClaims `json:"claims"`
}

// VerifyToken validates a module access token
// @Summary Verify a token
// @Description Validate signature, expiry, module scope, and revocation status
// @Tags Tokens
// @Accept json
// @Produce json
// @Param request body VerifyRequest true "Verification request"
// @Success 200 {object} VerifyResponse
// @Failure 401 {object} map[string]string
// @Failure 403 {object} map[string]string
// @Router /tokens/verify [post]
func (h *Handler) VerifyToken(w http.ResponseWriter, r *http.Request) {
	var req VerifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	result, err := h.tokenService.Verify(r.Context(), req.Token, req.Module)
	if err != nil {
		if h.metrics != nil {
			h.metrics.VerifyFailures.Add(r.Context(), 1)
		}
		respondDomainError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, VerifyResponse{
		Valid:        true,
		NeedsRefresh: result.NeedsRefresh,
		Claims:       result.Claims,
	})
}

// RefreshRequest carries a near-expiry token to replace
type RefreshRequest struct {
	Token string `json:"token"`
}

// RefreshToken replaces a valid token with a fresh one
// @Summary Refresh a token
// @Description Re-run authorization against current claims and issue a replacement token
// @Tags Tokens
// @Accept json
// @Produce json
// @Param request body RefreshRequest true "Refresh request"
// @Success 200 {object} TokenResponse
// @Failure 401 {object} map[string]string
// @Failure 403 {object} map[string]string
// @Router /tokens/refresh [post]
func (h *Handler) RefreshToken(w http.ResponseWriter, r *http.Request) {
	var req RefreshRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	signed, err := h.tokenService.Refresh(r.Context(), req.Token)
	if err != nil {
		respondDomainError(w, err)
		return
	}

	if h.metrics != nil {
		h.metrics.TokensRefreshed.Add(r.Context(), 1)
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"token":      signed,
		"expires_in": int64(h.tokenService.Lifetime().Seconds()),
	})
}

// RevokeRequest carries a token to invalidate
type RevokeRequest struct {
	Token  string `json:"token"`
	Reason string `json:"reason,omitempty" example:"device reported stolen"`
}

// RevokeToken permanently invalidates a token
// @Summary Revoke a token
// @Description Invalidate the token for the remainder of its lifetime
// @Tags Tokens
// @Accept json
// @Produce json
// @Param request body RevokeRequest true "Revocation request"
// @Success 200 {object} map[string]string
// @Failure 401 {object} map[string]string
// @Router /tokens/revoke [post]
func (h *Handler) RevokeToken(w http.ResponseWriter, r *http.Request) {
	var req RevokeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := h.tokenService.Revoke(r.Context(), req.Token, req.Reason); err != nil {
		respondDomainError(w, err)
		return
	}

	if h.metrics != nil {
		h.metrics.TokensRevoked.Add(r.Context(), 1)
	}

	respondJSON(w, http.StatusOK, map[string]string{"status": "revoked"})
}

// authorize resolves the user's stored claims and runs the decision engine,
// writing the error response itself on failure.
func (h *Handler) authorize(w http.ResponseWriter, r *http.Request, req AuthorizeRequest) (*authz.ModuleAccess, *identity.UserClaims, bool) {
	user, err := h.identityService.Lookup(req.Tenant, req.UserID)
	if err != nil {
		h.auditAuthorizeDenied(r, req, err)
		respondDomainError(w, err)
		return nil, nil, false
	}

	access, err := h.engine.Authorize(user, req.Module, req.RequestedPermissions)
	if err != nil {
		h.auditAuthorizeDenied(r, req, err)
		respondDomainError(w, err)
		return nil, nil, false
	}

	return access, user, true
}

func (h *Handler) auditAuthorizeDenied(r *http.Request, req AuthorizeRequest, cause error) {
	if h.metrics != nil {
		h.metrics.AuthorizeDenials.Add(r.Context(), 1)
	}
	h.auditLogger.Log(r.Context(), audit.Event{
		Type:      audit.TypeAuthorizeDenied,
		Tenant:    req.Tenant,
		Subject:   req.Tenant + ":" + req.UserID,
		Module:    req.Module,
		IPAddress: getIPAddress(r),
		Metadata:  map[string]any{audit.AttrReason: cause.Error()},
	})
}

func toAuthorizeResponse(access *authz.ModuleAccess) AuthorizeResponse {
	return AuthorizeResponse{
		Module:         access.Module,
		Roles:          access.Roles,
		Permissions:    access.Permissions,
		ABAC:           access.ABAC,
		DataAccessTier: string(access.DataAccessTier),
		Rationale:      access.Rationale,
	}
}

// respondDomainError maps domain errors onto HTTP statuses.
func respondDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, identity.ErrInvalidIdentity):
		respondError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, identity.ErrNoUserContext):
		respondError(w, http.StatusUnauthorized, "no authenticated context; authenticate first")
	case errors.Is(err, registry.ErrUnknownModule):
		respondError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, registry.ErrInvalidPolicy):
		respondError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, token.ErrModuleMismatch),
		errors.Is(err, token.ErrRefreshNotPermitted):
		respondError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, token.ErrExpired),
		errors.Is(err, token.ErrRevoked),
		errors.Is(err, token.ErrInvalidSignature),
		errors.Is(err, token.ErrUnknownIssuer):
		respondError(w, http.StatusUnauthorized, err.Error())
	default:
		respondError(w, http.StatusInternalServerError, "internal error")
	}
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{
		"error": message,
	})
}

func getIPAddress(r *http.Request) string {
	// Check X-Forwarded-For header first
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		return xff
	}
	// Check X-Real-IP header
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}
	return r.RemoteAddr
}
