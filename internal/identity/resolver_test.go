package identity

import (
	"context"
	"sync"
	"testing"

	"github.com/rleekg/craft-cognito/internal/domain"
	bridgeerrors "github.com/rleekg/craft-cognito/internal/errors"
	"github.com/rleekg/craft-cognito/internal/store/file"
)

func newTestResolver(t *testing.T) (*Resolver, *file.Store) {
	t.Helper()
	s, err := file.NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewStore failed: %v", err)
	}
	return NewResolver(s), s
}

func testIdentity() *domain.VerifiedIdentity {
	return &domain.VerifiedIdentity{
		Subject:    "remote-sub-1",
		Email:      "user@example.com",
		Username:   "jdoe",
		GivenName:  "Jane",
		FamilyName: "Doe",
	}
}

func TestResolveExistingByEmail(t *testing.T) {
	r, s := newTestResolver(t)
	ctx := context.Background()

	existing := &domain.LocalUser{
		ID:       "u-1",
		Username: "someone-else",
		Email:    "user@example.com",
		Active:   true,
	}
	if err := s.Save(ctx, existing); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	user, err := r.Resolve(ctx, testIdentity(), false)
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if user.ID != "u-1" {
		t.Errorf("Expected existing user u-1, got %s", user.ID)
	}
}

func TestResolveFallsBackToUsername(t *testing.T) {
	r, s := newTestResolver(t)
	ctx := context.Background()

	existing := &domain.LocalUser{
		ID:       "u-1",
		Username: "jdoe",
		Email:    "old-address@example.com",
		Active:   true,
	}
	if err := s.Save(ctx, existing); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	user, err := r.Resolve(ctx, testIdentity(), false)
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if user.ID != "u-1" {
		t.Errorf("Expected username-matched user u-1, got %s", user.ID)
	}
}

func TestResolveNoMatchWithoutAutoCreate(t *testing.T) {
	r, _ := newTestResolver(t)

	_, err := r.Resolve(context.Background(), testIdentity(), false)
	if !bridgeerrors.IsCode(err, bridgeerrors.CodeNoMatchingUser) {
		t.Errorf("Expected no_matching_user, got %v", err)
	}
}

func TestResolveAutoCreateRequiresEmail(t *testing.T) {
	r, _ := newTestResolver(t)

	identity := testIdentity()
	identity.Email = ""

	_, err := r.Resolve(context.Background(), identity, true)
	if !bridgeerrors.IsCode(err, bridgeerrors.CodeNoMatchingUser) {
		t.Errorf("Expected no_matching_user without email, got %v", err)
	}
}

func TestResolveProvisionsUser(t *testing.T) {
	r, s := newTestResolver(t)
	ctx := context.Background()

	user, err := r.Resolve(ctx, testIdentity(), true)
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}

	if user.Username != "jdoe" {
		t.Errorf("Expected username jdoe, got %s", user.Username)
	}
	if user.Email != "user@example.com" {
		t.Errorf("Expected email user@example.com, got %s", user.Email)
	}
	if user.FirstName != "Jane" || user.LastName != "Doe" {
		t.Errorf("Unexpected names: %q %q", user.FirstName, user.LastName)
	}
	if user.Admin {
		t.Error("Provisioned user must not be an admin")
	}
	if !user.Active {
		t.Error("Provisioned user should be active")
	}

	members, err := s.GroupMembers(file.DefaultGroup)
	if err != nil {
		t.Fatalf("GroupMembers failed: %v", err)
	}
	if len(members) != 1 || members[0] != user.ID {
		t.Errorf("Expected user in default group, got %v", members)
	}
}

func TestResolveUsernameFallsBackToEmail(t *testing.T) {
	r, _ := newTestResolver(t)

	identity := testIdentity()
	identity.Username = ""

	user, err := r.Resolve(context.Background(), identity, true)
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if user.Username != "user@example.com" {
		t.Errorf("Expected email as username, got %s", user.Username)
	}
}

func TestResolveIdempotent(t *testing.T) {
	r, _ := newTestResolver(t)
	ctx := context.Background()

	first, err := r.Resolve(ctx, testIdentity(), true)
	if err != nil {
		t.Fatalf("First Resolve failed: %v", err)
	}
	second, err := r.Resolve(ctx, testIdentity(), true)
	if err != nil {
		t.Fatalf("Second Resolve failed: %v", err)
	}

	if first.ID != second.ID {
		t.Errorf("Expected same user both times, got %s and %s", first.ID, second.ID)
	}
}

func TestResolveConcurrentFirstLogins(t *testing.T) {
	r, _ := newTestResolver(t)
	ctx := context.Background()

	const callers = 16
	var wg sync.WaitGroup
	ids := make([]string, callers)
	errs := make([]error, callers)

	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			user, err := r.Resolve(ctx, testIdentity(), true)
			if err != nil {
				errs[i] = err
				return
			}
			ids[i] = user.ID
		}(i)
	}
	wg.Wait()

	for i := range errs {
		if errs[i] != nil {
			t.Fatalf("Caller %d failed: %v", i, errs[i])
		}
	}
	for i := 1; i < callers; i++ {
		if ids[i] != ids[0] {
			t.Errorf("Caller %d got user %s, caller 0 got %s", i, ids[i], ids[0])
		}
	}
}

type failingStore struct {
	saveErr   error
	assignErr error
	deleted   bool
}

func (f *failingStore) FindByUsernameOrEmail(ctx context.Context, key string) (*domain.LocalUser, error) {
	return nil, bridgeerrors.NotFound("user", key)
}

func (f *failingStore) Save(ctx context.Context, user *domain.LocalUser) error {
	return f.saveErr
}

func (f *failingStore) Delete(ctx context.Context, user *domain.LocalUser) error {
	f.deleted = true
	return nil
}

func (f *failingStore) AssignToDefaultGroup(ctx context.Context, user *domain.LocalUser) error {
	return f.assignErr
}

func TestResolveProvisioningFailure(t *testing.T) {
	s := &failingStore{saveErr: bridgeerrors.Internal("disk full", nil)}
	r := NewResolver(s)

	_, err := r.Resolve(context.Background(), testIdentity(), true)
	if !bridgeerrors.IsCode(err, bridgeerrors.CodeProvisioningFailed) {
		t.Errorf("Expected provisioning_failed, got %v", err)
	}
}

func TestResolveGroupAssignmentFailureRollsBack(t *testing.T) {
	s := &failingStore{assignErr: bridgeerrors.Internal("group store down", nil)}
	r := NewResolver(s)

	_, err := r.Resolve(context.Background(), testIdentity(), true)
	if !bridgeerrors.IsCode(err, bridgeerrors.CodeProvisioningFailed) {
		t.Errorf("Expected provisioning_failed, got %v", err)
	}
	if !s.deleted {
		t.Error("Expected partially provisioned user to be deleted")
	}
}
