package session

import (
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"chatcore/pkg/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeConn struct {
	id, user string
	mu       sync.Mutex
	got      []models.Envelope
	fail     bool
	closed   atomic.Bool
}

func (f *fakeConn) ID() string   { return f.id }
func (f *fakeConn) User() string { return f.user }
func (f *fakeConn) Close()       { f.closed.Store(true) }
func (f *fakeConn) Send(env models.Envelope) error {
	if f.fail {
		return fmt.Errorf("queue full")
	}
	f.mu.Lock()
	f.got = append(f.got, env)
	f.mu.Unlock()
	return nil
}

func TestRegisterEdges(t *testing.T) {
	r := NewRegistry()
	var edges []Edge
	r.Observe(func(e Edge) { edges = append(edges, e) })

	c1 := &fakeConn{id: "c1", user: "a@x.io"}
	c2 := &fakeConn{id: "c2", user: "a@x.io"}

	online, err := r.Register("a@x.io", c1)
	require.NoError(t, err)
	assert.True(t, online)

	online, err = r.Register("A@x.io", c2)
	require.NoError(t, err)
	assert.False(t, online, "second connection is not an edge")

	online, err = r.Register("a@x.io", c1)
	require.NoError(t, err)
	assert.False(t, online, "duplicate register is a no-op")

	users, conns := r.Count()
	assert.Equal(t, 1, users)
	assert.Equal(t, 2, conns)

	assert.False(t, r.Unregister("a@x.io", c1))
	assert.True(t, r.IsOnline("a@x.io"))
	assert.True(t, r.Unregister("a@x.io", c2))
	assert.False(t, r.IsOnline("a@x.io"))
	assert.False(t, r.Unregister("a@x.io", c2), "unregister is idempotent")

	require.Len(t, edges, 2)
	assert.True(t, edges[0].Online)
	assert.False(t, edges[1].Online)
	assert.Less(t, edges[0].Seq, edges[1].Seq)
}

func TestExemptIdentityRefused(t *testing.T) {
	r := NewRegistry(WithExempt("bot@x.io"))
	_, err := r.Register("BOT@x.io", &fakeConn{id: "b"})
	assert.ErrorIs(t, err, ErrExemptIdentity)
	assert.False(t, r.IsOnline("bot@x.io"))
}

func TestPublishSkipsAndCounts(t *testing.T) {
	r := NewRegistry()
	c1 := &fakeConn{id: "c1"}
	c2 := &fakeConn{id: "c2"}
	bad := &fakeConn{id: "c3", fail: true}
	for _, c := range []*fakeConn{c1, c2, bad} {
		_, err := r.Register("a@x.io", c)
		require.NoError(t, err)
	}
	env := models.Envelope{Type: models.EventNewMessage}
	assert.Equal(t, 1, r.Publish("a@x.io", env, "c1"))
	assert.Empty(t, c1.got)
	assert.Len(t, c2.got, 1)
	assert.Equal(t, 0, r.Publish("nobody@x.io", env, ""))
}

func TestConcurrentChurnKeepsEdgesAlternating(t *testing.T) {
	r := NewRegistry()
	var mu sync.Mutex
	var edges []Edge
	r.Observe(func(e Edge) {
		mu.Lock()
		edges = append(edges, e)
		mu.Unlock()
	})

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			c := &fakeConn{id: fmt.Sprintf("c%d", i)}
			_, err := r.Register("a@x.io", c)
			assert.NoError(t, err)
			r.Unregister("a@x.io", c)
		}(i)
	}
	wg.Wait()

	assert.False(t, r.IsOnline("a@x.io"))
	require.NotEmpty(t, edges)
	require.Equal(t, 0, len(edges)%2)
	for i, e := range edges {
		assert.Equal(t, i%2 == 0, e.Online, "edge %d", i)
		if i > 0 {
			assert.Less(t, edges[i-1].Seq, e.Seq)
		}
	}
}

func TestCloseAll(t *testing.T) {
	r := NewRegistry()
	c := &fakeConn{id: "c1"}
	_, err := r.Register("a@x.io", c)
	require.NoError(t, err)
	r.CloseAll()
	assert.True(t, c.closed.Load())
}
