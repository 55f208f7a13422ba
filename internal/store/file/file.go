// Package file implements file-based storage using JSON files.
package file

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rleekg/craft-cognito/internal/domain"
	bridgeerrors "github.com/rleekg/craft-cognito/internal/errors"
)

// DefaultGroup is the group new users are assigned to.
const DefaultGroup = "members"

// Store implements store.LocalUserStore using JSON files for persistence.
type Store struct {
	dataDir      string
	defaultGroup string
	mu           sync.Mutex
}

// Option configures the Store.
type Option func(*Store)

// WithDefaultGroup overrides the default group name.
func WithDefaultGroup(name string) Option {
	return func(s *Store) {
		s.defaultGroup = name
	}
}

// NewStore creates a new file-based store.
func NewStore(dataDir string, opts ...Option) (*Store, error) {
	if err := os.MkdirAll(dataDir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	s := &Store{
		dataDir:      dataDir,
		defaultGroup: DefaultGroup,
	}

	for _, opt := range opts {
		opt(s)
	}

	return s, nil
}

// Close is a no-op; files are written synchronously.
func (s *Store) Close() error { return nil }

type usersData struct {
	Users []*domain.LocalUser `json:"users"`
}

type groupsData struct {
	// Group name -> member user IDs.
	Groups map[string][]string `json:"groups"`
}

func (s *Store) filePath(name string) string {
	return filepath.Join(s.dataDir, name+".json")
}

func (s *Store) readFile(name string, v any) error {
	data, err := os.ReadFile(s.filePath(name))
	if os.IsNotExist(err) {
		return nil // Empty collection
	}
	if err != nil {
		return err
	}
	return json.Unmarshal(data, v)
}

func (s *Store) writeFile(name string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(s.filePath(name), data, 0600)
}

func (s *Store) loadUsers() (*usersData, error) {
	var data usersData
	if err := s.readFile("users", &data); err != nil {
		return nil, err
	}
	if data.Users == nil {
		data.Users = []*domain.LocalUser{}
	}
	return &data, nil
}

// FindByUsernameOrEmail returns the user matching key by username or email.
func (s *Store) FindByUsernameOrEmail(ctx context.Context, key string) (*domain.LocalUser, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := s.loadUsers()
	if err != nil {
		return nil, bridgeerrors.Internal("failed to load users", err)
	}

	for _, u := range data.Users {
		if u.Username == key || u.Email == key {
			copied := *u
			return &copied, nil
		}
	}
	return nil, bridgeerrors.NotFound("user", key)
}

// Save creates or updates a user. An email or username held by any
// other user is rejected on both paths, which keeps lookups by either
// key unambiguous and backs the compare-and-create guarantee the
// identity resolver relies on.
func (s *Store) Save(ctx context.Context, user *domain.LocalUser) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := s.loadUsers()
	if err != nil {
		return bridgeerrors.Internal("failed to load users", err)
	}

	for _, u := range data.Users {
		if u.ID == user.ID {
			continue
		}
		if u.Email == user.Email {
			return bridgeerrors.New(bridgeerrors.CodeInvalidInput,
				fmt.Sprintf("user with email already exists: %s", user.Email))
		}
		if u.Username == user.Username {
			return bridgeerrors.New(bridgeerrors.CodeInvalidInput,
				fmt.Sprintf("user with username already exists: %s", user.Username))
		}
	}

	now := time.Now()
	for i, u := range data.Users {
		if u.ID == user.ID {
			user.CreatedAt = u.CreatedAt
			user.UpdatedAt = now
			copied := *user
			data.Users[i] = &copied
			return s.saveUsers(data)
		}
	}

	user.CreatedAt = now
	user.UpdatedAt = now
	copied := *user
	data.Users = append(data.Users, &copied)
	return s.saveUsers(data)
}

// Delete removes a user and its group memberships.
func (s *Store) Delete(ctx context.Context, user *domain.LocalUser) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := s.loadUsers()
	if err != nil {
		return bridgeerrors.Internal("failed to load users", err)
	}

	for i, u := range data.Users {
		if u.ID == user.ID {
			data.Users = append(data.Users[:i], data.Users[i+1:]...)
			if err := s.saveUsers(data); err != nil {
				return err
			}
			return s.removeFromGroups(user.ID)
		}
	}
	return bridgeerrors.NotFound("user", user.ID)
}

// AssignToDefaultGroup records the user's membership in the default group.
func (s *Store) AssignToDefaultGroup(ctx context.Context, user *domain.LocalUser) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var data groupsData
	if err := s.readFile("groups", &data); err != nil {
		return bridgeerrors.Internal("failed to load groups", err)
	}
	if data.Groups == nil {
		data.Groups = map[string][]string{}
	}

	for _, id := range data.Groups[s.defaultGroup] {
		if id == user.ID {
			return nil
		}
	}
	data.Groups[s.defaultGroup] = append(data.Groups[s.defaultGroup], user.ID)

	if err := s.writeFile("groups", &data); err != nil {
		return bridgeerrors.Internal("failed to save groups", err)
	}
	return nil
}

// GroupMembers returns the user IDs in a group. Used by the seed tool
// and tests.
func (s *Store) GroupMembers(group string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var data groupsData
	if err := s.readFile("groups", &data); err != nil {
		return nil, bridgeerrors.Internal("failed to load groups", err)
	}
	return data.Groups[group], nil
}

func (s *Store) saveUsers(data *usersData) error {
	if err := s.writeFile("users", data); err != nil {
		return bridgeerrors.Internal("failed to save users", err)
	}
	return nil
}

func (s *Store) removeFromGroups(userID string) error {
	var data groupsData
	if err := s.readFile("groups", &data); err != nil {
		return bridgeerrors.Internal("failed to load groups", err)
	}
	if data.Groups == nil {
		return nil
	}

	for name, members := range data.Groups {
		kept := members[:0]
		for _, id := range members {
			if id != userID {
				kept = append(kept, id)
			}
		}
		data.Groups[name] = kept
	}

	if err := s.writeFile("groups", &data); err != nil {
		return bridgeerrors.Internal("failed to save groups", err)
	}
	return nil
}
