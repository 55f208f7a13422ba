package http

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/rleekg/craft-cognito/internal/domain"
	bridgeerrors "github.com/rleekg/craft-cognito/internal/errors"
	"github.com/rleekg/craft-cognito/internal/identity"
	"github.com/rleekg/craft-cognito/internal/keyset"
	"github.com/rleekg/craft-cognito/internal/store/file"
	"github.com/rleekg/craft-cognito/internal/verifier"
)

const middlewareIssuer = "https://cognito-idp.eu-west-1.amazonaws.com/eu-west-1_mw"

type staticKeySource struct {
	keys map[string]keyset.SigningKey
}

func (s *staticKeySource) GetKey(_ context.Context, kid string) (keyset.SigningKey, error) {
	if k, ok := s.keys[kid]; ok {
		return k, nil
	}
	return keyset.SigningKey{}, bridgeerrors.New(bridgeerrors.CodeUnknownSigningKey, "no such key")
}

type middlewareFixture struct {
	signKey *rsa.PrivateKey
	auth    *AuthMiddleware
	users   *file.Store
}

func newMiddlewareFixture(t *testing.T, enabled, autoCreate bool) *middlewareFixture {
	t.Helper()

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("Failed to generate RSA key: %v", err)
	}
	source := &staticKeySource{keys: map[string]keyset.SigningKey{
		"mw-key": {KeyID: "mw-key", Algorithm: "RS256", Key: &key.PublicKey},
	}}

	users, err := file.NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewStore() error = %v", err)
	}

	v := verifier.New(source, middlewareIssuer)
	resolver := identity.NewResolver(users)

	return &middlewareFixture{
		signKey: key,
		auth:    NewAuthMiddleware(v, resolver, enabled, autoCreate, discardLogger()),
		users:   users,
	}
}

func (f *middlewareFixture) sign(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["kid"] = "mw-key"
	raw, err := token.SignedString(f.signKey)
	if err != nil {
		t.Fatalf("Failed to sign token: %v", err)
	}
	return raw
}

func middlewareClaims() jwt.MapClaims {
	return jwt.MapClaims{
		"sub":              "mw-sub-1",
		"iss":              middlewareIssuer,
		"exp":              time.Now().Add(time.Hour).Unix(),
		"email":            "user@example.com",
		"cognito:username": "jdoe",
	}
}

func (f *middlewareFixture) serve(t *testing.T, token string) (*httptest.ResponseRecorder, *domain.LocalUser) {
	t.Helper()

	var captured *domain.LocalUser
	handler := f.auth.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		captured, _ = UserFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodPost, "/auth/update", nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	return w, captured
}

func TestAuthMiddlewareValidToken(t *testing.T) {
	f := newMiddlewareFixture(t, true, true)

	w, user := f.serve(t, f.sign(t, middlewareClaims()))

	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", w.Code, w.Body.String())
	}
	if user == nil {
		t.Fatal("Expected local user on request context")
	}
	if user.Email != "user@example.com" {
		t.Errorf("Expected email user@example.com, got %s", user.Email)
	}
	if user.Username != "jdoe" {
		t.Errorf("Expected username jdoe, got %s", user.Username)
	}
}

func TestAuthMiddlewareMissingToken(t *testing.T) {
	f := newMiddlewareFixture(t, true, true)

	w, _ := f.serve(t, "")

	if w.Code != http.StatusUnauthorized {
		t.Errorf("Expected status 401, got %d", w.Code)
	}
}

func TestAuthMiddlewareExpiredToken(t *testing.T) {
	f := newMiddlewareFixture(t, true, true)

	claims := middlewareClaims()
	claims["exp"] = time.Now().Add(-2 * time.Hour).Unix()
	w, _ := f.serve(t, f.sign(t, claims))

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("Expected status 401, got %d", w.Code)
	}
	body := decodeEnvelope(t, w)
	if body["error"] != bridgeerrors.CodeTokenExpired {
		t.Errorf("Expected error token_expired, got %v", body["error"])
	}
}

func TestAuthMiddlewareWrongIssuer(t *testing.T) {
	f := newMiddlewareFixture(t, true, true)

	claims := middlewareClaims()
	claims["iss"] = "https://evil.example.com"
	w, _ := f.serve(t, f.sign(t, claims))

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("Expected status 401, got %d", w.Code)
	}
	body := decodeEnvelope(t, w)
	if body["error"] != bridgeerrors.CodeUnknownIssuer {
		t.Errorf("Expected error unknown_issuer, got %v", body["error"])
	}
}

func TestAuthMiddlewareDisabled(t *testing.T) {
	f := newMiddlewareFixture(t, false, true)

	w, _ := f.serve(t, f.sign(t, middlewareClaims()))

	if w.Code != http.StatusUnauthorized {
		t.Errorf("Expected status 401 when token auth is disabled, got %d", w.Code)
	}
}

func TestAuthMiddlewareNoAutoCreate(t *testing.T) {
	f := newMiddlewareFixture(t, true, false)

	w, _ := f.serve(t, f.sign(t, middlewareClaims()))

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("Expected status 401 without auto-create, got %d", w.Code)
	}
	body := decodeEnvelope(t, w)
	if body["error"] != bridgeerrors.CodeNoMatchingUser {
		t.Errorf("Expected error no_matching_user, got %v", body["error"])
	}
}

func TestAuthMiddlewareExistingUserNoAutoCreate(t *testing.T) {
	f := newMiddlewareFixture(t, true, false)

	seedUser(t, f.users, &domain.LocalUser{
		ID:       "u1",
		Username: "jdoe",
		Email:    "user@example.com",
		Active:   true,
	})

	w, user := f.serve(t, f.sign(t, middlewareClaims()))

	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}
	if user == nil || user.ID != "u1" {
		t.Errorf("Expected existing user u1, got %+v", user)
	}
}

func TestAuthMiddlewareFallbackHeader(t *testing.T) {
	f := newMiddlewareFixture(t, true, true)

	handler := f.auth.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodPost, "/auth/update", nil)
	req.Header.Set(verifier.FallbackHeader, f.sign(t, middlewareClaims()))
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("Expected status 200 via fallback header, got %d", w.Code)
	}
}

func seedUser(t *testing.T, s *file.Store, user *domain.LocalUser) {
	t.Helper()
	if err := s.Save(context.Background(), user); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
}
