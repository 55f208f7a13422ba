// Package domain defines the core types for the credential bridge.
package domain

import (
	"time"
)

// LocalUser is the application's own user record, mirrored from a
// remote provider account. The remote side is authoritative; this
// record only exists so the application can attach its own state to a
// verified identity.
type LocalUser struct {
	ID        string    `json:"id"`
	Username  string    `json:"username"`
	Email     string    `json:"email"`
	FirstName string    `json:"first_name,omitempty"`
	LastName  string    `json:"last_name,omitempty"`
	Admin     bool      `json:"admin"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// VerifiedIdentity is the claim projection of a successfully verified
// bearer token. Subject is always present; Email is required for any
// path that provisions a new local user.
type VerifiedIdentity struct {
	Subject    string
	Email      string
	Username   string
	GivenName  string
	FamilyName string
}

// TokenSet carries the tokens returned by the remote provider after a
// successful authentication, refresh, or authorization-code exchange.
// ExpiresIn is in seconds. RefreshToken is empty on refresh responses.
type TokenSet struct {
	IDToken      string
	AccessToken  string
	RefreshToken string
	ExpiresIn    int32
}
