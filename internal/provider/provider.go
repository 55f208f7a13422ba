// Package provider defines the remote credential client contract.
//
// The remote identity provider owns account storage, password policy,
// and confirmation-code delivery. Implementations translate provider
// failures into the structured error taxonomy, preserving the
// provider's message verbatim for display.
package provider

import (
	"context"

	"github.com/rleekg/craft-cognito/internal/domain"
)

// SignupParams carries the attributes submitted on registration.
type SignupParams struct {
	Email     string
	Password  string
	FirstName string
	LastName  string
	Phone     string
	Username  string
}

// SignupResult is returned on a successful registration. UserSub is
// the provider's immutable subject for the new account.
type SignupResult struct {
	UserSub   string
	Confirmed bool
}

// UpdateParams carries the attributes submitted on a profile update.
// Empty fields are left unchanged on the remote account.
type UpdateParams struct {
	Email     string
	FirstName string
	LastName  string
	Phone     string
}

// Client performs authoritative account operations against the remote
// identity provider.
type Client interface {
	Signup(ctx context.Context, params SignupParams) (*SignupResult, error)
	ConfirmSignup(ctx context.Context, email, code string) error
	ResendConfirmationCode(ctx context.Context, email string) error

	// Authenticate exchanges credentials for tokens. Invalid
	// credentials fail with authentication_failed.
	Authenticate(ctx context.Context, email, password string) (*domain.TokenSet, error)

	// RefreshAuthentication exchanges a refresh token for new tokens.
	// An invalid or expired refresh token fails with session_expired.
	RefreshAuthentication(ctx context.Context, email, refreshToken string) (*domain.TokenSet, error)

	SendPasswordResetMail(ctx context.Context, email string) error
	ResetPassword(ctx context.Context, email, code, newPassword string) error

	UpdateUserAttributes(ctx context.Context, username string, params UpdateParams) error
	DisableUser(ctx context.Context, email string) error
	DeleteUser(ctx context.Context, email string) error
}
