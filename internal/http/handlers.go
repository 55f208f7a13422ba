package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"

	"github.com/rleekg/craft-cognito/internal/bridge"
	bridgeerrors "github.com/rleekg/craft-cognito/internal/errors"
	"github.com/rleekg/craft-cognito/internal/metrics"
	"github.com/rleekg/craft-cognito/internal/provider"
)

// AuthHandler exposes the account lifecycle endpoints.
type AuthHandler struct {
	service *bridge.Service
	logger  *slog.Logger
}

// NewAuthHandler creates a new AuthHandler.
func NewAuthHandler(service *bridge.Service, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{
		service: service,
		logger:  logger,
	}
}

// Routes mounts the lifecycle endpoints on r. Credential endpoints get
// a per-IP rate limit; profile mutations require a verified token.
func (h *AuthHandler) Routes(r chi.Router, auth *AuthMiddleware, requestsPerMinute int) {
	r.Route("/auth", func(r chi.Router) {
		// Anonymous endpoints.
		r.Group(func(r chi.Router) {
			if requestsPerMinute > 0 {
				r.Use(httprate.Limit(
					requestsPerMinute,
					time.Minute,
					httprate.WithKeyFuncs(httprate.KeyByIP),
					httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
						metrics.RecordRateLimitExceeded(r.URL.Path)
						w.Header().Set("Content-Type", "application/json")
						w.WriteHeader(http.StatusTooManyRequests)
						w.Write([]byte(`{"status":1,"error":"rate_limited","message":"too many requests"}`))
					}),
				))
			}

			r.Post("/register", h.Register)
			r.Post("/confirm", h.Confirm)
			r.Post("/confirm-request", h.ConfirmRequest)
			r.Post("/login", h.Login)
			r.Post("/refresh", h.Refresh)
			r.Post("/forgot-password-request", h.ForgotPasswordRequest)
			r.Post("/forgot-password", h.ForgotPassword)
			r.Get("/callback", h.Callback)
		})

		// Endpoints requiring a verified caller.
		r.Group(func(r chi.Router) {
			r.Use(auth.Handler)
			r.Post("/update", h.Update)
			r.Post("/disable", h.Disable)
			r.Post("/delete", h.Delete)
		})
	})
}

// Register handles POST /auth/register.
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email     string `json:"email"`
		Password  string `json:"password"`
		Username  string `json:"username"`
		FirstName string `json:"firstName"`
		LastName  string `json:"lastName"`
		Phone     string `json:"phone"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if req.Email == "" || req.Password == "" {
		writeError(w, bridgeerrors.InvalidInput("email and password are required"))
		return
	}

	userID, err := h.service.Register(r.Context(), provider.SignupParams{
		Email:     req.Email,
		Password:  req.Password,
		Username:  req.Username,
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Phone:     req.Phone,
	})
	if err != nil {
		writeError(w, err)
		return
	}

	writeSuccess(w, map[string]any{"userId": userID})
}

// Confirm handles POST /auth/confirm.
func (h *AuthHandler) Confirm(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email string `json:"email"`
		Code  string `json:"code"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if req.Email == "" || req.Code == "" {
		writeError(w, bridgeerrors.InvalidInput("email and code are required"))
		return
	}

	if err := h.service.ConfirmSignup(r.Context(), req.Email, req.Code); err != nil {
		writeError(w, err)
		return
	}

	writeSuccess(w, nil)
}

// ConfirmRequest handles POST /auth/confirm-request.
func (h *AuthHandler) ConfirmRequest(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email string `json:"email"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if req.Email == "" {
		writeError(w, bridgeerrors.InvalidInput("email is required"))
		return
	}

	if err := h.service.ResendConfirmation(r.Context(), req.Email); err != nil {
		writeError(w, err)
		return
	}

	writeSuccess(w, nil)
}

// Login handles POST /auth/login.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if req.Email == "" || req.Password == "" {
		writeError(w, bridgeerrors.InvalidInput("email and password are required"))
		return
	}

	tokens, err := h.service.Authenticate(r.Context(), req.Email, req.Password)
	if err != nil {
		writeError(w, err)
		return
	}

	writeSuccess(w, map[string]any{
		"token":        tokens.IDToken,
		"accessToken":  tokens.AccessToken,
		"refreshToken": tokens.RefreshToken,
		"expiresIn":    tokens.ExpiresIn,
	})
}

// Refresh handles POST /auth/refresh. A new refresh token is not
// returned; the existing one stays valid until it expires.
func (h *AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email        string `json:"email"`
		RefreshToken string `json:"refreshToken"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if req.Email == "" || req.RefreshToken == "" {
		writeError(w, bridgeerrors.InvalidInput("email and refreshToken are required"))
		return
	}

	tokens, err := h.service.RefreshToken(r.Context(), req.Email, req.RefreshToken)
	if err != nil {
		writeError(w, err)
		return
	}

	writeSuccess(w, map[string]any{
		"token":       tokens.IDToken,
		"accessToken": tokens.AccessToken,
		"expiresIn":   tokens.ExpiresIn,
	})
}

// ForgotPasswordRequest handles POST /auth/forgot-password-request.
func (h *AuthHandler) ForgotPasswordRequest(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email string `json:"email"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if req.Email == "" {
		writeError(w, bridgeerrors.InvalidInput("email is required"))
		return
	}

	if err := h.service.RequestPasswordReset(r.Context(), req.Email); err != nil {
		writeError(w, err)
		return
	}

	writeSuccess(w, nil)
}

// ForgotPassword handles POST /auth/forgot-password.
func (h *AuthHandler) ForgotPassword(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Code     string `json:"code"`
		Password string `json:"password"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if req.Email == "" || req.Code == "" || req.Password == "" {
		writeError(w, bridgeerrors.InvalidInput("email, code and password are required"))
		return
	}

	if err := h.service.ResetPassword(r.Context(), req.Email, req.Code, req.Password); err != nil {
		writeError(w, err)
		return
	}

	writeSuccess(w, nil)
}

// Callback handles GET /auth/callback - completes the hosted-UI
// redirect by exchanging the authorization code for tokens.
func (h *AuthHandler) Callback(w http.ResponseWriter, r *http.Request) {
	code := r.URL.Query().Get("code")
	if code == "" {
		writeError(w, bridgeerrors.InvalidInput("code query parameter is required"))
		return
	}

	tokens, err := h.service.ExchangeAuthorizationCode(r.Context(), code)
	if err != nil {
		writeError(w, err)
		return
	}

	writeSuccess(w, map[string]any{
		"token":        tokens.IDToken,
		"accessToken":  tokens.AccessToken,
		"refreshToken": tokens.RefreshToken,
		"expiresIn":    tokens.ExpiresIn,
	})
}

// Update handles POST /auth/update.
func (h *AuthHandler) Update(w http.ResponseWriter, r *http.Request) {
	caller, ok := UserFromContext(r.Context())
	if !ok {
		writeError(w, bridgeerrors.Unauthorized("no authenticated caller"))
		return
	}

	var req struct {
		Username  string `json:"username"`
		Email     string `json:"email"`
		FirstName string `json:"firstName"`
		LastName  string `json:"lastName"`
		Phone     string `json:"phone"`
		Password  string `json:"password"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if req.Username == "" {
		req.Username = caller.Username
	}

	err := h.service.UpdateProfile(r.Context(), caller, bridge.UpdateParams{
		Username:  req.Username,
		Email:     req.Email,
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Phone:     req.Phone,
		Password:  req.Password,
	})
	if err != nil {
		writeError(w, err)
		return
	}

	writeSuccess(w, nil)
}

// Disable handles POST /auth/disable.
func (h *AuthHandler) Disable(w http.ResponseWriter, r *http.Request) {
	caller, ok := UserFromContext(r.Context())
	if !ok {
		writeError(w, bridgeerrors.Unauthorized("no authenticated caller"))
		return
	}

	var req struct {
		Email string `json:"email"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if req.Email == "" {
		req.Email = caller.Email
	}

	if err := h.service.DisableAccount(r.Context(), caller, req.Email); err != nil {
		writeError(w, err)
		return
	}

	writeSuccess(w, nil)
}

// Delete handles POST /auth/delete.
func (h *AuthHandler) Delete(w http.ResponseWriter, r *http.Request) {
	caller, ok := UserFromContext(r.Context())
	if !ok {
		writeError(w, bridgeerrors.Unauthorized("no authenticated caller"))
		return
	}

	var req struct {
		Email string `json:"email"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if req.Email == "" {
		req.Email = caller.Email
	}

	if err := h.service.DeleteAccount(r.Context(), caller, req.Email); err != nil {
		writeError(w, err)
		return
	}

	writeSuccess(w, nil)
}
