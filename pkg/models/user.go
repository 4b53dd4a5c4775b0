package models

import "time"

type User struct {
	Email        string     `json:"email"`
	Username     string     `json:"username"`
	FullName     string     `json:"full_name,omitempty"`
	AvatarURL    string     `json:"avatar_url,omitempty"`
	PasswordHash string     `json:"password_hash,omitempty"`
	IsBot        bool       `json:"is_bot,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    *time.Time `json:"updated_at,omitempty"`
	LastSeen     *time.Time `json:"last_seen,omitempty"`
}

// PublicUser is the user view returned to clients; online is computed, never stored.
type PublicUser struct {
	Email     string     `json:"email"`
	Username  string     `json:"username"`
	FullName  string     `json:"full_name,omitempty"`
	AvatarURL string     `json:"avatar_url,omitempty"`
	IsBot     bool       `json:"is_bot,omitempty"`
	IsOnline  bool       `json:"is_online"`
	LastSeen  *time.Time `json:"last_seen,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
}

func (u *User) Public(online bool) PublicUser {
	return PublicUser{
		Email:     u.Email,
		Username:  u.Username,
		FullName:  u.FullName,
		AvatarURL: u.AvatarURL,
		IsBot:     u.IsBot,
		IsOnline:  online,
		LastSeen:  u.LastSeen,
		CreatedAt: u.CreatedAt,
	}
}

// DisplayName prefers the full name, then the username.
func (u *User) DisplayName() string {
	if u.FullName != "" {
		return u.FullName
	}
	return u.Username
}
