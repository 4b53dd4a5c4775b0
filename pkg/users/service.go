package users

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"regexp"
	"sort"
	"strings"

	"chatcore/pkg/models"
	"chatcore/pkg/state/logger"
	"chatcore/pkg/store"
	"chatcore/pkg/timeutil"

	"golang.org/x/crypto/bcrypt"
)

var (
	ErrInvalidEmail       = errors.New("invalid email address")
	ErrInvalidUsername    = errors.New("username must be 3-50 characters of letters, digits or underscore")
	ErrInvalidPassword    = errors.New("password must be 6-72 characters")
	ErrEmailTaken         = errors.New("email already registered")
	ErrUsernameTaken      = errors.New("username already taken")
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrNotFound           = errors.New("user not found")
	ErrNoFields           = errors.New("no fields provided for update")
	ErrInvalidPaging      = errors.New("skip must be >= 0 and limit 1-100")
)

const (
	DefaultListLimit = 20
	MaxListLimit     = 100
)

var usernameRegexp = regexp.MustCompile(`^[A-Za-z0-9_]{3,50}$`)

// Store is the user persistence the service needs.
type Store interface {
	CreateUser(ctx context.Context, u *models.User) error
	GetUser(ctx context.Context, email string) (*models.User, error)
	GetUserByUsername(ctx context.Context, username string) (*models.User, error)
	ListUsers(ctx context.Context) ([]models.User, error)
	UpdateUser(ctx context.Context, u *models.User, oldUsername string) error
}

// Presence answers whether a user is online.
type Presence interface {
	IsOnline(user string) bool
}

type RegisterRequest struct {
	Email     string `json:"email"`
	Username  string `json:"username"`
	Password  string `json:"password"`
	FullName  string `json:"full_name,omitempty"`
	AvatarURL string `json:"avatar_url,omitempty"`
}

// UpdateRequest changes only the fields that are set.
type UpdateRequest struct {
	Username  *string `json:"username,omitempty"`
	FullName  *string `json:"full_name,omitempty"`
	AvatarURL *string `json:"avatar_url,omitempty"`
}

// ListOptions pages the directory. Zero Limit means DefaultListLimit.
type ListOptions struct {
	Skip       int
	Limit      int
	OnlineOnly bool
}

type Service struct {
	store    Store
	presence Presence
	now      timeutil.Clock
	cost     int
}

func NewService(st Store, presence Presence, now timeutil.Clock) *Service {
	return &Service{store: st, presence: presence, now: timeutil.OrNow(now), cost: bcrypt.DefaultCost}
}

// Register validates and stores a new account.
func (s *Service) Register(ctx context.Context, req RegisterRequest) (*models.User, error) {
	addr, err := mail.ParseAddress(strings.TrimSpace(req.Email))
	if err != nil || addr.Address != strings.TrimSpace(req.Email) {
		return nil, ErrInvalidEmail
	}
	if !usernameRegexp.MatchString(req.Username) {
		return nil, ErrInvalidUsername
	}
	if len(req.Password) < 6 || len(req.Password) > 72 {
		return nil, ErrInvalidPassword
	}
	if _, err := s.store.GetUserByUsername(ctx, req.Username); err == nil {
		return nil, ErrUsernameTaken
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), s.cost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	u := &models.User{
		Email:        strings.ToLower(addr.Address),
		Username:     req.Username,
		FullName:     strings.TrimSpace(req.FullName),
		AvatarURL:    strings.TrimSpace(req.AvatarURL),
		PasswordHash: string(hash),
		CreatedAt:    s.now(),
	}
	if err := s.store.CreateUser(ctx, u); err != nil {
		if errors.Is(err, store.ErrConflict) {
			if strings.HasPrefix(err.Error(), "username") {
				return nil, ErrUsernameTaken
			}
			return nil, ErrEmailTaken
		}
		return nil, err
	}
	logger.AuditEvent("user_registered", "email", u.Email, "username", u.Username)
	return u, nil
}

// Authenticate checks a password and returns the user.
func (s *Service) Authenticate(ctx context.Context, email, password string) (*models.User, error) {
	u, err := s.store.GetUser(ctx, strings.ToLower(strings.TrimSpace(email)))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}
	if u.IsBot || u.PasswordHash == "" {
		return nil, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)); err != nil {
		logger.AuditEvent("login_failed", "email", u.Email)
		return nil, ErrInvalidCredentials
	}
	return u, nil
}

// EnsureBot creates the bot account when it does not exist yet.
func (s *Service) EnsureBot(ctx context.Context, email, name string) error {
	email = strings.ToLower(strings.TrimSpace(email))
	if _, err := s.store.GetUser(ctx, email); err == nil {
		return nil
	} else if !errors.Is(err, store.ErrNotFound) {
		return err
	}
	err := s.store.CreateUser(ctx, &models.User{
		Email:     email,
		Username:  strings.SplitN(email, "@", 2)[0],
		FullName:  name,
		IsBot:     true,
		CreatedAt: s.now(),
	})
	if err != nil && !errors.Is(err, store.ErrConflict) {
		return err
	}
	logger.Info("bot_user_ready", "email", email)
	return nil
}

// Get returns the public profile of email.
func (s *Service) Get(ctx context.Context, email string) (models.PublicUser, error) {
	u, err := s.store.GetUser(ctx, strings.ToLower(strings.TrimSpace(email)))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return models.PublicUser{}, ErrNotFound
		}
		return models.PublicUser{}, err
	}
	return u.Public(s.presence.IsOnline(u.Email)), nil
}

// Update applies a partial profile change to email's account.
func (s *Service) Update(ctx context.Context, email string, req UpdateRequest) (models.PublicUser, error) {
	if req.Username == nil && req.FullName == nil && req.AvatarURL == nil {
		return models.PublicUser{}, ErrNoFields
	}
	u, err := s.store.GetUser(ctx, strings.ToLower(strings.TrimSpace(email)))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return models.PublicUser{}, ErrNotFound
		}
		return models.PublicUser{}, err
	}

	old := u.Username
	var fields []string
	if req.Username != nil {
		if !usernameRegexp.MatchString(*req.Username) {
			return models.PublicUser{}, ErrInvalidUsername
		}
		u.Username = *req.Username
		fields = append(fields, "username")
	}
	if req.FullName != nil {
		u.FullName = strings.TrimSpace(*req.FullName)
		fields = append(fields, "full_name")
	}
	if req.AvatarURL != nil {
		u.AvatarURL = strings.TrimSpace(*req.AvatarURL)
		fields = append(fields, "avatar_url")
	}
	now := s.now()
	u.UpdatedAt = &now

	if err := s.store.UpdateUser(ctx, u, old); err != nil {
		if errors.Is(err, store.ErrConflict) {
			return models.PublicUser{}, ErrUsernameTaken
		}
		if errors.Is(err, store.ErrNotFound) {
			return models.PublicUser{}, ErrNotFound
		}
		return models.PublicUser{}, err
	}
	logger.AuditEvent("profile_updated", "email", u.Email, "fields", strings.Join(fields, ","))
	return u.Public(s.presence.IsOnline(u.Email)), nil
}

// List returns one page of users other than viewer, online users first.
func (s *Service) List(ctx context.Context, viewer string, opts ListOptions) ([]models.PublicUser, error) {
	if opts.Limit == 0 {
		opts.Limit = DefaultListLimit
	}
	if opts.Skip < 0 || opts.Limit < 1 || opts.Limit > MaxListLimit {
		return nil, ErrInvalidPaging
	}
	all, err := s.filter(ctx, viewer, func(*models.User) bool { return true })
	if err != nil {
		return nil, err
	}
	if opts.OnlineOnly {
		online := all[:0]
		for _, u := range all {
			if u.IsOnline {
				online = append(online, u)
			}
		}
		all = online
	}
	if opts.Skip >= len(all) {
		return []models.PublicUser{}, nil
	}
	all = all[opts.Skip:]
	if len(all) > opts.Limit {
		all = all[:opts.Limit]
	}
	return all, nil
}

// Search matches q against email, username and full name, case-insensitively.
func (s *Service) Search(ctx context.Context, viewer, q string) ([]models.PublicUser, error) {
	q = strings.ToLower(strings.TrimSpace(q))
	if q == "" {
		return []models.PublicUser{}, nil
	}
	return s.filter(ctx, viewer, func(u *models.User) bool {
		return strings.Contains(u.Email, q) ||
			strings.Contains(strings.ToLower(u.Username), q) ||
			strings.Contains(strings.ToLower(u.FullName), q)
	})
}

func (s *Service) filter(ctx context.Context, viewer string, keep func(*models.User) bool) ([]models.PublicUser, error) {
	all, err := s.store.ListUsers(ctx)
	if err != nil {
		return nil, err
	}
	viewer = strings.ToLower(viewer)
	out := make([]models.PublicUser, 0, len(all))
	for i := range all {
		u := &all[i]
		if u.Email == viewer || !keep(u) {
			continue
		}
		out = append(out, u.Public(s.presence.IsOnline(u.Email)))
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].IsOnline && !out[j].IsOnline
	})
	return out, nil
}
