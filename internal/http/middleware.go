package http

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/rleekg/craft-cognito/internal/domain"
	bridgeerrors "github.com/rleekg/craft-cognito/internal/errors"
	"github.com/rleekg/craft-cognito/internal/identity"
	"github.com/rleekg/craft-cognito/internal/metrics"
	"github.com/rleekg/craft-cognito/internal/verifier"
)

type contextKey string

const userContextKey contextKey = "local-user"

// UserFromContext returns the resolved local user for the request, if
// the auth middleware ran.
func UserFromContext(ctx context.Context) (*domain.LocalUser, bool) {
	user, ok := ctx.Value(userContextKey).(*domain.LocalUser)
	return user, ok
}

// AuthMiddleware verifies the bearer token on each request and resolves
// it to a local user placed on the request context.
type AuthMiddleware struct {
	verifier   *verifier.Verifier
	resolver   *identity.Resolver
	enabled    bool
	autoCreate bool
	logger     *slog.Logger
}

// NewAuthMiddleware creates the token-verification middleware. When
// enabled is false every guarded request is rejected.
func NewAuthMiddleware(v *verifier.Verifier, r *identity.Resolver, enabled, autoCreate bool, logger *slog.Logger) *AuthMiddleware {
	return &AuthMiddleware{
		verifier:   v,
		resolver:   r,
		enabled:    enabled,
		autoCreate: autoCreate,
		logger:     logger,
	}
}

// Handler wraps next with token verification and identity resolution.
func (m *AuthMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !m.enabled {
			writeError(w, bridgeerrors.Unauthorized("token authentication is disabled"))
			return
		}

		raw, ok := verifier.FromRequest(r)
		if !ok {
			metrics.RecordTokenVerification("missing")
			writeError(w, bridgeerrors.Unauthorized("missing bearer token"))
			return
		}

		// Verification outcomes are recorded by the verifier itself.
		ident, err := m.verifier.Verify(r.Context(), raw)
		if err != nil {
			m.logger.Info("token rejected", "error", err)
			writeError(w, err)
			return
		}

		user, err := m.resolver.Resolve(r.Context(), ident, m.autoCreate)
		if err != nil {
			m.logger.Warn("identity resolution failed", "sub", ident.Subject, "error", err)
			writeError(w, err)
			return
		}

		ctx := context.WithValue(r.Context(), userContextKey, user)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
