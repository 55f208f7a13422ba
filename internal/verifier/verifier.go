// Package verifier validates bearer tokens against the provider's key set.
package verifier

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/rleekg/craft-cognito/internal/domain"
	bridgeerrors "github.com/rleekg/craft-cognito/internal/errors"
	"github.com/rleekg/craft-cognito/internal/keyset"
	"github.com/rleekg/craft-cognito/internal/metrics"
)

// FallbackHeader is the custom header checked when Authorization is absent.
const FallbackHeader = "x-access-token"

const bearerPrefix = "Bearer "

// KeySource locates signing keys by key identifier.
type KeySource interface {
	GetKey(ctx context.Context, kid string) (keyset.SigningKey, error)
}

// Verifier parses and validates bearer tokens and projects their claims
// into a VerifiedIdentity.
//
// Beyond the signature and key checks, expiration and issuer are
// enforced. The system this replaces validated only the signature; that
// was a latent correctness gap, not a behavior worth preserving.
type Verifier struct {
	keys   KeySource
	issuer string
	leeway time.Duration
	logger *slog.Logger
}

// Option configures the Verifier.
type Option func(*Verifier)

// WithLeeway sets clock skew tolerance for time-based claims.
func WithLeeway(d time.Duration) Option {
	return func(v *Verifier) {
		v.leeway = d
	}
}

// WithLogger sets the logger for the verifier.
func WithLogger(logger *slog.Logger) Option {
	return func(v *Verifier) {
		v.logger = logger
	}
}

// New creates a Verifier. Tokens must carry the given issuer in their
// iss claim.
func New(keys KeySource, issuer string, opts ...Option) *Verifier {
	v := &Verifier{
		keys:   keys,
		issuer: issuer,
		leeway: 60 * time.Second,
		logger: slog.Default(),
	}

	for _, opt := range opts {
		opt(v)
	}

	return v
}

// FromRequest extracts the bearer token from the Authorization header,
// falling back to the x-access-token header. An optional "Bearer "
// prefix is stripped.
func FromRequest(r *http.Request) (string, bool) {
	raw := r.Header.Get("Authorization")
	if raw == "" {
		raw = r.Header.Get(FallbackHeader)
	}
	raw = strings.TrimPrefix(raw, bearerPrefix)
	return raw, raw != ""
}

// Verify validates a raw token and returns the identity projected from
// its claims. Rejections carry a code from the error taxonomy; a
// transient keyset_unavailable error means verification could not run
// at all and may be retried.
func (v *Verifier) Verify(ctx context.Context, raw string) (*domain.VerifiedIdentity, error) {
	if strings.Count(raw, ".") != 2 {
		metrics.RecordTokenVerification(bridgeerrors.CodeMalformedToken)
		return nil, bridgeerrors.New(bridgeerrors.CodeMalformedToken,
			"token does not have three dot-separated segments")
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{"RS256", "RS384", "RS512", "ES256", "ES384", "ES512"}),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(v.leeway),
	}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}
	parser := jwt.NewParser(opts...)

	claims := jwt.MapClaims{}
	_, err := parser.ParseWithClaims(raw, claims, func(t *jwt.Token) (any, error) {
		kid, ok := t.Header["kid"].(string)
		if !ok || kid == "" {
			return nil, bridgeerrors.New(bridgeerrors.CodeUnknownSigningKey,
				"token header has no key identifier")
		}
		key, err := v.keys.GetKey(ctx, kid)
		if err != nil {
			return nil, err
		}
		return key.Key, nil
	})
	if err != nil {
		rejection := v.mapParseError(err)
		metrics.RecordTokenVerification(rejection.Code)
		return nil, rejection
	}

	identity, err := projectClaims(claims)
	if err != nil {
		metrics.RecordTokenVerification(bridgeerrors.CodeMalformedToken)
		return nil, err
	}

	metrics.RecordTokenVerification("ok")
	return identity, nil
}

// mapParseError translates golang-jwt failures into the rejection
// taxonomy. Key lookup errors pass through unchanged so transient
// key set failures stay distinguishable from definitive rejections.
func (v *Verifier) mapParseError(err error) *bridgeerrors.Error {
	var bridgeErr *bridgeerrors.Error
	if errors.As(err, &bridgeErr) {
		return bridgeErr
	}

	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return bridgeerrors.Wrap(err, bridgeerrors.CodeTokenExpired, "token has expired")
	case errors.Is(err, jwt.ErrTokenInvalidIssuer):
		return bridgeerrors.Wrap(err, bridgeerrors.CodeUnknownIssuer, "token issued by unexpected issuer")
	case errors.Is(err, jwt.ErrTokenNotValidYet):
		return bridgeerrors.Wrap(err, bridgeerrors.CodeTokenExpired, "token is not valid yet")
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return bridgeerrors.Wrap(err, bridgeerrors.CodeInvalidSignature, "token signature does not match")
	case errors.Is(err, jwt.ErrTokenMalformed):
		return bridgeerrors.Wrap(err, bridgeerrors.CodeMalformedToken, "token could not be parsed")
	default:
		return bridgeerrors.Wrap(err, bridgeerrors.CodeInvalidSignature, "token failed verification")
	}
}

// projectClaims maps the validated claim set into a VerifiedIdentity.
// The subject claim is mandatory; the username falls back from the
// provider's namespaced claim to the plain one.
func projectClaims(claims jwt.MapClaims) (*domain.VerifiedIdentity, error) {
	sub, _ := claims["sub"].(string)
	if sub == "" {
		return nil, bridgeerrors.New(bridgeerrors.CodeMalformedToken, "token has no subject claim")
	}

	username := claimString(claims, "cognito:username")
	if username == "" {
		username = claimString(claims, "username")
	}

	return &domain.VerifiedIdentity{
		Subject:    sub,
		Email:      claimString(claims, "email"),
		Username:   username,
		GivenName:  claimString(claims, "given_name"),
		FamilyName: claimString(claims, "family_name"),
	}, nil
}

func claimString(claims jwt.MapClaims, name string) string {
	s, _ := claims[name].(string)
	return s
}
