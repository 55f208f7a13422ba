// Package store defines the local user store consumed by the bridge.
package store

import (
	"context"

	"github.com/rleekg/craft-cognito/internal/domain"
)

// LocalUserStore is the application-owned user store. The bridge only
// reads and mutates local users through these operations; account
// lifecycle is authoritative on the remote provider.
type LocalUserStore interface {
	// FindByUsernameOrEmail returns the user whose username or email
	// matches key, or a not_found error.
	FindByUsernameOrEmail(ctx context.Context, key string) (*domain.LocalUser, error)

	// Save creates the user if its ID is unknown, or updates it
	// otherwise. Creation fails if another user already holds the same
	// email or username.
	Save(ctx context.Context, user *domain.LocalUser) error

	// Delete removes the user.
	Delete(ctx context.Context, user *domain.LocalUser) error

	// AssignToDefaultGroup places the user in the default, unprivileged
	// group.
	AssignToDefaultGroup(ctx context.Context, user *domain.LocalUser) error
}
