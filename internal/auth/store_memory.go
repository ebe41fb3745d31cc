package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"github.com/go-playground/validator/v10"

	"clinicaudit/pkg/platform/sentinel"
)

// InMemoryUserStore holds the staff accounts loaded at startup.
type InMemoryUserStore struct {
	mu    sync.RWMutex
	users map[string]User
}

func NewInMemoryUserStore(users ...User) *InMemoryUserStore {
	s := &InMemoryUserStore{users: make(map[string]User, len(users))}
	for _, u := range users {
		s.users[u.Username] = u
	}
	return s
}

// LoadUsersFile reads a JSON array of users.
func LoadUsersFile(path string) (*InMemoryUserStore, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read users file: %w", err)
	}
	var users []User
	if err := json.Unmarshal(data, &users); err != nil {
		return nil, fmt.Errorf("parse users file %s: %w", path, err)
	}
	v := validator.New(validator.WithRequiredStructEnabled())
	seen := make(map[string]bool, len(users))
	for i, u := range users {
		if err := v.Struct(u); err != nil {
			return nil, fmt.Errorf("users file entry %d: %w", i, err)
		}
		if seen[u.Username] {
			return nil, fmt.Errorf("users file: duplicate username %q", u.Username)
		}
		seen[u.Username] = true
	}
	return NewInMemoryUserStore(users...), nil
}

func (s *InMemoryUserStore) FindByUsername(_ context.Context, username string) (User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if user, ok := s.users[username]; ok {
		return user, nil
	}
	return User{}, fmt.Errorf("user %q: %w", username, sentinel.ErrNotFound)
}
