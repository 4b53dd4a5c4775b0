package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"chatcore/pkg/models"
	"chatcore/pkg/state/logger"
	"chatcore/pkg/store/keys"
)

// CreateUser stores u; email and username must both be unused.
func (s *Store) CreateUser(ctx context.Context, u *models.User) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	u.Email = strings.ToLower(strings.TrimSpace(u.Email))
	if u.Email == "" || u.Username == "" {
		return fmt.Errorf("user email and username are required")
	}

	s.userMu.Lock()
	defer s.userMu.Unlock()

	var existing models.User
	if err := s.getJSON(keys.GenUserKey(u.Email), &existing); err == nil {
		return fmt.Errorf("email %s: %w", u.Email, ErrConflict)
	} else if !errors.Is(err, ErrNotFound) {
		return err
	}
	if _, err := s.getString(keys.GenUsernameKey(u.Username)); err == nil {
		return fmt.Errorf("username %s: %w", u.Username, ErrConflict)
	} else if !errors.Is(err, ErrNotFound) {
		return err
	}

	b, err := s.newBatch()
	if err != nil {
		return err
	}
	defer b.Close()
	if err := setJSON(b, keys.GenUserKey(u.Email), u); err != nil {
		return err
	}
	if err := b.Set([]byte(keys.GenUsernameKey(u.Username)), []byte(u.Email), nil); err != nil {
		return err
	}
	if err := s.apply(b); err != nil {
		return err
	}
	logger.Info("user_created", "email", u.Email, "username", u.Username, "bot", u.IsBot)
	return nil
}

// UpdateUser rewrites u. When the username changed from oldUsername the
// index entry moves with it and the new name must be unused.
func (s *Store) UpdateUser(ctx context.Context, u *models.User, oldUsername string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !s.Ready() {
		return ErrClosed
	}
	s.userMu.Lock()
	defer s.userMu.Unlock()

	if _, err := s.getString(keys.GenUserKey(u.Email)); err != nil {
		return err
	}
	b, err := s.newBatch()
	if err != nil {
		return err
	}
	defer b.Close()
	if u.Username != oldUsername {
		owner, err := s.getString(keys.GenUsernameKey(u.Username))
		switch {
		case err == nil && owner != u.Email:
			return fmt.Errorf("username %s: %w", u.Username, ErrConflict)
		case err != nil && !errors.Is(err, ErrNotFound):
			return err
		}
		if err := b.Delete([]byte(keys.GenUsernameKey(oldUsername)), nil); err != nil {
			return err
		}
		if err := b.Set([]byte(keys.GenUsernameKey(u.Username)), []byte(u.Email), nil); err != nil {
			return err
		}
	}
	if err := setJSON(b, keys.GenUserKey(u.Email), u); err != nil {
		return err
	}
	if err := s.apply(b); err != nil {
		return err
	}
	logger.Info("user_updated", "email", u.Email, "username", u.Username)
	return nil
}

// GetUser loads a user by email.
func (s *Store) GetUser(ctx context.Context, email string) (*models.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var u models.User
	if err := s.getJSON(keys.GenUserKey(email), &u); err != nil {
		return nil, err
	}
	return &u, nil
}

// GetUserByUsername resolves the username index, then loads the user.
func (s *Store) GetUserByUsername(ctx context.Context, username string) (*models.User, error) {
	email, err := s.getString(keys.GenUsernameKey(username))
	if err != nil {
		return nil, err
	}
	return s.GetUser(ctx, email)
}

// ListUsers returns every user ordered by email.
func (s *Store) ListUsers(ctx context.Context) ([]models.User, error) {
	out := []models.User{}
	err := s.scanPrefix(keys.UserPrefix, false, func(_, v []byte) (bool, error) {
		if err := ctx.Err(); err != nil {
			return false, err
		}
		var u models.User
		if err := json.Unmarshal(v, &u); err != nil {
			logger.Warn("user_decode_failed", "error", err)
			return true, nil
		}
		out = append(out, u)
		return true, nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Email < out[j].Email })
	return out, nil
}

// TouchLastSeen records when the user was last connected.
func (s *Store) TouchLastSeen(ctx context.Context, email string, at time.Time) error {
	s.userMu.Lock()
	defer s.userMu.Unlock()

	u, err := s.GetUser(ctx, email)
	if err != nil {
		return err
	}
	u.LastSeen = &at
	b, err := s.newBatch()
	if err != nil {
		return err
	}
	defer b.Close()
	if err := setJSON(b, keys.GenUserKey(u.Email), u); err != nil {
		return err
	}
	return s.apply(b)
}
