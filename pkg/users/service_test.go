package users

import (
	"context"
	"testing"

	"chatcore/pkg/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

type onlineSet map[string]bool

func (o onlineSet) IsOnline(u string) bool { return o[u] }

func newService(t *testing.T, online onlineSet) *Service {
	t.Helper()
	st, err := store.Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	s := NewService(st, online, nil)
	s.cost = bcrypt.MinCost
	return s
}

func TestRegisterValidation(t *testing.T) {
	s := newService(t, onlineSet{})
	ctx := context.Background()
	_, err := s.Register(ctx, RegisterRequest{Email: "Alice@X.io", Username: "alice", Password: "secret1"})
	require.NoError(t, err)

	cases := []struct {
		name string
		req  RegisterRequest
		want error
	}{
		{"bad email", RegisterRequest{Email: "nope", Username: "bob", Password: "secret1"}, ErrInvalidEmail},
		{"display name email", RegisterRequest{Email: "Bob <bob@x.io>", Username: "bob", Password: "secret1"}, ErrInvalidEmail},
		{"short username", RegisterRequest{Email: "bob@x.io", Username: "bo", Password: "secret1"}, ErrInvalidUsername},
		{"bad username chars", RegisterRequest{Email: "bob@x.io", Username: "bob!", Password: "secret1"}, ErrInvalidUsername},
		{"short password", RegisterRequest{Email: "bob@x.io", Username: "bob", Password: "123"}, ErrInvalidPassword},
		{"email taken", RegisterRequest{Email: "alice@x.io", Username: "alice2", Password: "secret1"}, ErrEmailTaken},
		{"username taken", RegisterRequest{Email: "bob@x.io", Username: "alice", Password: "secret1"}, ErrUsernameTaken},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := s.Register(ctx, tc.req)
			assert.ErrorIs(t, err, tc.want)
		})
	}
}

func TestAuthenticate(t *testing.T) {
	s := newService(t, onlineSet{})
	ctx := context.Background()
	u, err := s.Register(ctx, RegisterRequest{Email: "alice@x.io", Username: "alice", Password: "secret1"})
	require.NoError(t, err)
	assert.NotEqual(t, "secret1", u.PasswordHash)

	got, err := s.Authenticate(ctx, "ALICE@x.io", "secret1")
	require.NoError(t, err)
	assert.Equal(t, "alice@x.io", got.Email)

	_, err = s.Authenticate(ctx, "alice@x.io", "wrong")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	_, err = s.Authenticate(ctx, "ghost@x.io", "secret1")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestBotCannotLogIn(t *testing.T) {
	s := newService(t, onlineSet{})
	ctx := context.Background()
	require.NoError(t, s.EnsureBot(ctx, "bot@x.io", "Assistant"))
	require.NoError(t, s.EnsureBot(ctx, "bot@x.io", "Assistant"))

	p, err := s.Get(ctx, "bot@x.io")
	require.NoError(t, err)
	assert.True(t, p.IsBot)
	assert.Equal(t, "Assistant", p.FullName)

	_, err = s.Authenticate(ctx, "bot@x.io", "")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestListAndSearch(t *testing.T) {
	online := onlineSet{"carol@x.io": true}
	s := newService(t, online)
	ctx := context.Background()
	for _, r := range []RegisterRequest{
		{Email: "alice@x.io", Username: "alice", Password: "secret1", FullName: "Alice Liddell"},
		{Email: "bob@x.io", Username: "bob", Password: "secret1"},
		{Email: "carol@x.io", Username: "carol", Password: "secret1", FullName: "Carol Ann"},
	} {
		_, err := s.Register(ctx, r)
		require.NoError(t, err)
	}

	list, err := s.List(ctx, "alice@x.io", ListOptions{})
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "carol@x.io", list[0].Email)
	assert.True(t, list[0].IsOnline)

	list, err = s.List(ctx, "alice@x.io", ListOptions{OnlineOnly: true})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "carol@x.io", list[0].Email)

	list, err = s.List(ctx, "alice@x.io", ListOptions{Skip: 1, Limit: 1})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "bob@x.io", list[0].Email)

	list, err = s.List(ctx, "alice@x.io", ListOptions{Skip: 5})
	require.NoError(t, err)
	assert.Empty(t, list)

	for _, bad := range []ListOptions{{Skip: -1}, {Limit: -1}, {Limit: MaxListLimit + 1}} {
		_, err = s.List(ctx, "alice@x.io", bad)
		assert.ErrorIs(t, err, ErrInvalidPaging)
	}

	found, err := s.Search(ctx, "bob@x.io", "ann")
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, "carol", found[0].Username)

	found, err = s.Search(ctx, "bob@x.io", "  ")
	require.NoError(t, err)
	assert.Empty(t, found)

	_, err = s.Get(ctx, "ghost@x.io")
	assert.ErrorIs(t, err, ErrNotFound)
}

func strp(s string) *string { return &s }

func TestUpdateProfile(t *testing.T) {
	s := newService(t, onlineSet{})
	ctx := context.Background()
	for _, r := range []RegisterRequest{
		{Email: "alice@x.io", Username: "alice", Password: "secret1", FullName: "Alice"},
		{Email: "bob@x.io", Username: "bob", Password: "secret1"},
	} {
		_, err := s.Register(ctx, r)
		require.NoError(t, err)
	}

	_, err := s.Update(ctx, "alice@x.io", UpdateRequest{})
	assert.ErrorIs(t, err, ErrNoFields)
	_, err = s.Update(ctx, "alice@x.io", UpdateRequest{Username: strp("bob")})
	assert.ErrorIs(t, err, ErrUsernameTaken)
	_, err = s.Update(ctx, "alice@x.io", UpdateRequest{Username: strp("a!")})
	assert.ErrorIs(t, err, ErrInvalidUsername)
	_, err = s.Update(ctx, "ghost@x.io", UpdateRequest{FullName: strp("x")})
	assert.ErrorIs(t, err, ErrNotFound)

	p, err := s.Update(ctx, "alice@x.io", UpdateRequest{AvatarURL: strp(" https://img.x.io/a.png ")})
	require.NoError(t, err)
	assert.Equal(t, "alice", p.Username)
	assert.Equal(t, "Alice", p.FullName, "unset fields are kept")
	assert.Equal(t, "https://img.x.io/a.png", p.AvatarURL)

	// keeping the same username is not a conflict
	_, err = s.Update(ctx, "alice@x.io", UpdateRequest{Username: strp("alice"), FullName: strp("Alice L")})
	require.NoError(t, err)

	p, err = s.Update(ctx, "alice@x.io", UpdateRequest{Username: strp("alicia")})
	require.NoError(t, err)
	assert.Equal(t, "alicia", p.Username)

	// the old name is free again and the password still works
	_, err = s.Register(ctx, RegisterRequest{Email: "carol@x.io", Username: "alice", Password: "secret1"})
	require.NoError(t, err)
	_, err = s.Authenticate(ctx, "alice@x.io", "secret1")
	require.NoError(t, err)
}
