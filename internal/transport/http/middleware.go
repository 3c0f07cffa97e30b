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

package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/plantops/identity/internal/observability/logger"
	"github.com/plantops/identity/internal/observability/metrics"
)

// LoggingMiddleware logs HTTP requests and records the request duration
// histogram when metrics are configured.
func LoggingMiddleware(m *metrics.IdentityMetrics) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			slog.InfoContext(r.Context(), "http_request_start",
				logger.RequestID(middleware.GetReqID(r.Context())),
				logger.Method(r.Method),
				logger.Path(r.URL.Path),
				logger.RemoteAddr(r.RemoteAddr),
			)

			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			defer func() {
				elapsed := time.Since(start)

				slog.InfoContext(r.Context(), "http_request_end",
					logger.RequestID(middleware.GetReqID(r.Context())),
					logger.Method(r.Method),
					logger.Path(r.URL.Path),
					logger.RemoteAddr(r.RemoteAddr),
					logger.UserAgent(r.UserAgent()),
					logger.StatusCode(ww.Status()),
					logger.Duration(elapsed.Milliseconds()),
				)

				if m != nil {
					m.RequestDuration.Record(r.Context(), float64(elapsed.Milliseconds()))
				}
			}()

			next.ServeHTTP(ww, r)
		})
	}
}

// ServiceKeyMiddleware authenticates collaborating services on the module
// management endpoints. The key travels in X-Service-Key and is checked
// against the configured Argon2id hash. With no hash configured the
// endpoints are open; that mode is for development only and is logged at
// startup.
func (h *Handler) ServiceKeyMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if h.serviceKeyHash == "" {
			next.ServeHTTP(w, r)
			return
		}

		key := r.Header.Get("X-Service-Key")
		if key == "" {
			respondError(w, http.StatusUnauthorized, "service key required")
			return
		}

		ok, err := h.serviceKeys.Verify(key, h.serviceKeyHash)
		if err != nil || !ok {
			slog.WarnContext(r.Context(), "service key rejected",
				logger.RemoteAddr(r.RemoteAddr),
				logger.Path(r.URL.Path),
			)
			respondError(w, http.StatusForbidden, "invalid service key")
			return
		}

		next.ServeHTTP(w, r)
	})
}
