package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"chatcore/pkg/timeutil"
)

var (
	ErrTokenMalformed = errors.New("malformed token")
	ErrTokenSignature = errors.New("invalid token signature")
	ErrTokenExpired   = errors.New("token expired")
)

// caller role
type Role int

const (
	RoleUnauth Role = iota
	RoleUser
	RoleAdmin
)

func (r Role) String() string {
	switch r {
	case RoleUser:
		return "user"
	case RoleAdmin:
		return "admin"
	default:
		return "unauth"
	}
}

// security config
type SecConfig struct {
	AllowedOrigins []string
	RPS            float64
	Burst          int
	IPWhitelist    []string
	AdminKeys      map[string]struct{}
}

type claims struct {
	Sub string `json:"sub"`
	Exp int64  `json:"exp"`
	Iat int64  `json:"iat"`
}

// CreateHMACSignature signs payload with key, hex encoded.
func CreateHMACSignature(payload, key string) string {
	mac := hmac.New(sha256.New, []byte(key))
	mac.Write([]byte(payload))
	return hex.EncodeToString(mac.Sum(nil))
}

// Tokens issues and verifies bearer tokens of the form
// base64url(claims) "." hex(hmac-sha256).
type Tokens struct {
	secret string
	ttl    time.Duration
	now    timeutil.Clock
}

func NewTokens(secret string, ttl time.Duration, now timeutil.Clock) *Tokens {
	return &Tokens{secret: secret, ttl: ttl, now: timeutil.OrNow(now)}
}

// Issue returns a token for subject valid for the configured ttl.
func (t *Tokens) Issue(subject string) (string, time.Time, error) {
	now := t.now()
	exp := now.Add(t.ttl)
	raw, err := json.Marshal(claims{Sub: subject, Exp: exp.Unix(), Iat: now.Unix()})
	if err != nil {
		return "", time.Time{}, err
	}
	payload := base64.RawURLEncoding.EncodeToString(raw)
	return payload + "." + CreateHMACSignature(payload, t.secret), exp, nil
}

// Verify checks signature and expiry and returns the subject.
func (t *Tokens) Verify(token string) (string, error) {
	payload, sig, ok := strings.Cut(strings.TrimSpace(token), ".")
	if !ok || payload == "" || sig == "" {
		return "", ErrTokenMalformed
	}
	expected := CreateHMACSignature(payload, t.secret)
	if !hmac.Equal([]byte(expected), []byte(sig)) {
		return "", ErrTokenSignature
	}
	raw, err := base64.RawURLEncoding.DecodeString(payload)
	if err != nil {
		return "", ErrTokenMalformed
	}
	var c claims
	if err := json.Unmarshal(raw, &c); err != nil || c.Sub == "" {
		return "", ErrTokenMalformed
	}
	if t.now().Unix() >= c.Exp {
		return "", ErrTokenExpired
	}
	return c.Sub, nil
}
