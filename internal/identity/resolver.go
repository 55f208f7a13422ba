// Package identity maps verified claims to local user records.
package identity

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"github.com/rleekg/craft-cognito/internal/domain"
	bridgeerrors "github.com/rleekg/craft-cognito/internal/errors"
	"github.com/rleekg/craft-cognito/internal/metrics"
	"github.com/rleekg/craft-cognito/internal/store"
)

// Resolver resolves a VerifiedIdentity to a LocalUser, optionally
// provisioning one.
//
// Lookup precedence is email first, then username, then subject. When
// users matched by different keys could disagree, the email match wins;
// the remote provider keys accounts by email, so the email link is the
// durable one.
type Resolver struct {
	store  store.LocalUserStore
	locks  *keyedLocks
	logger *slog.Logger
}

// Option configures the Resolver.
type Option func(*Resolver)

// WithLogger sets the logger for the resolver.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Resolver) {
		r.logger = logger
	}
}

// NewResolver creates a Resolver backed by the given user store.
func NewResolver(s store.LocalUserStore, opts ...Option) *Resolver {
	r := &Resolver{
		store:  s,
		locks:  newKeyedLocks(),
		logger: slog.Default(),
	}

	for _, opt := range opts {
		opt(r)
	}

	return r
}

// Resolve returns the local user for a verified identity. With
// autoCreate, a missing user is provisioned from the claims; email is
// mandatory for provisioning. Resolving the same identity twice returns
// the same user, and concurrent first resolutions for one identity
// create exactly one user.
func (r *Resolver) Resolve(ctx context.Context, identity *domain.VerifiedIdentity, autoCreate bool) (*domain.LocalUser, error) {
	if user, err := r.lookup(ctx, identity); err == nil {
		return user, nil
	} else if !bridgeerrors.IsCode(err, bridgeerrors.CodeNotFound) {
		return nil, err
	}

	if !autoCreate || identity.Email == "" {
		return nil, bridgeerrors.New(bridgeerrors.CodeNoMatchingUser,
			"no local user matches the verified identity")
	}

	// Serialize provisioning per identity so two concurrent first
	// logins cannot both miss the lookup and create duplicates.
	unlock := r.locks.lock(identity.Email)
	defer unlock()

	if user, err := r.lookup(ctx, identity); err == nil {
		return user, nil
	} else if !bridgeerrors.IsCode(err, bridgeerrors.CodeNotFound) {
		return nil, err
	}

	return r.provision(ctx, identity)
}

func (r *Resolver) lookup(ctx context.Context, identity *domain.VerifiedIdentity) (*domain.LocalUser, error) {
	keys := make([]string, 0, 3)
	if identity.Email != "" {
		keys = append(keys, identity.Email)
	}
	if identity.Username != "" {
		keys = append(keys, identity.Username)
	}
	if identity.Subject != "" {
		keys = append(keys, identity.Subject)
	}

	var lastErr error
	for _, key := range keys {
		user, err := r.store.FindByUsernameOrEmail(ctx, key)
		if err == nil {
			return user, nil
		}
		if !bridgeerrors.IsCode(err, bridgeerrors.CodeNotFound) {
			return nil, bridgeerrors.Wrap(err, bridgeerrors.CodeInternal, "user lookup failed")
		}
		lastErr = err
	}

	if lastErr == nil {
		lastErr = bridgeerrors.NotFound("user", identity.Subject)
	}
	return nil, lastErr
}

func (r *Resolver) provision(ctx context.Context, identity *domain.VerifiedIdentity) (*domain.LocalUser, error) {
	username := identity.Username
	if username == "" {
		username = identity.Email
	}

	user := &domain.LocalUser{
		ID:        uuid.New().String(),
		Username:  username,
		Email:     identity.Email,
		FirstName: identity.GivenName,
		LastName:  identity.FamilyName,
		Admin:     false,
		Active:    true,
	}

	if err := r.store.Save(ctx, user); err != nil {
		return nil, bridgeerrors.Wrap(err, bridgeerrors.CodeProvisioningFailed,
			"failed to create local user")
	}

	// A user outside the default group could carry unintended
	// privileges; roll back rather than leave a partial record that can
	// authenticate.
	if err := r.store.AssignToDefaultGroup(ctx, user); err != nil {
		if delErr := r.store.Delete(ctx, user); delErr != nil {
			r.logger.Error("failed to roll back partially provisioned user",
				"user_id", user.ID, "error", delErr)
		}
		return nil, bridgeerrors.Wrap(err, bridgeerrors.CodeProvisioningFailed,
			"failed to assign default group")
	}

	metrics.RecordUserProvisioned()
	r.logger.Info("provisioned local user from verified identity",
		"user_id", user.ID, "email", user.Email)

	return user, nil
}
