package push

import (
	"context"
	"errors"
	"net"
	"sync"
	"testing"
	"time"

	"chatcore/pkg/models"
	"chatcore/pkg/session"

	"github.com/fasthttp/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/valyala/fasthttp"
	"github.com/valyala/fasthttp/fasthttputil"
)

type tokenMap map[string]string

func (m tokenMap) Verify(token string) (string, error) {
	if u, ok := m[token]; ok {
		return u, nil
	}
	return "", errors.New("bad token")
}

type fakeCoord struct {
	mu    sync.Mutex
	acks  []string
	reads []string
}

func (f *fakeCoord) Ack(_ context.Context, recipient, id string) (*models.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if id == "missing" {
		return nil, errors.New("message not found")
	}
	f.acks = append(f.acks, recipient+":"+id)
	return &models.Message{ID: id}, nil
}

func (f *fakeCoord) MarkRead(_ context.Context, reader, partner, upTo string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reads = append(f.reads, reader+":"+partner+":"+upTo)
	return 1, nil
}

func (f *fakeCoord) Typing(context.Context, string, string, bool) error { return nil }

type emptySnapshot struct{}

func (emptySnapshot) SendSnapshot(_ context.Context, _ string, send func(models.Envelope) error) error {
	env, err := models.NewEnvelope(models.EventPresenceSnapshot, models.PresenceSnapshot{}, time.Now())
	if err != nil {
		return err
	}
	return send(env)
}

type fixture struct {
	srv   *Server
	reg   *session.Registry
	coord *fakeCoord
	ln    *fasthttputil.InmemoryListener
}

func testConfig() Config {
	return Config{
		SendQueueSize:  16,
		PingInterval:   time.Second,
		PongWait:       5 * time.Second,
		WriteTimeout:   time.Second,
		MaxMessageSize: 4096,
	}
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	reg := session.NewRegistry(session.WithExempt("bot@x.io"))
	coord := &fakeCoord{}
	srv := NewServer(testConfig(), reg, tokenMap{"tok-a": "alice@x.io", "tok-bot": "bot@x.io"}, coord, emptySnapshot{})
	ln := fasthttputil.NewInmemoryListener()
	go func() { _ = fasthttp.Serve(ln, srv.Handle) }()
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
		_ = ln.Close()
	})
	return &fixture{srv: srv, reg: reg, coord: coord, ln: ln}
}

func (f *fixture) dial(t *testing.T, token string) *websocket.Conn {
	t.Helper()
	d := websocket.Dialer{
		NetDial:          func(string, string) (net.Conn, error) { return f.ln.Dial() },
		HandshakeTimeout: 2 * time.Second,
	}
	ws, _, err := d.Dial("ws://chat.test/ws/chat?token="+token, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = ws.Close() })
	return ws
}

func readEnvelope(t *testing.T, ws *websocket.Conn) models.Envelope {
	t.Helper()
	require.NoError(t, ws.SetReadDeadline(time.Now().Add(2*time.Second)))
	var env models.Envelope
	require.NoError(t, ws.ReadJSON(&env))
	return env
}

func writeEnvelope(t *testing.T, ws *websocket.Conn, typ models.EventType, data any) {
	t.Helper()
	env, err := models.NewEnvelope(typ, data, time.Now())
	require.NoError(t, err)
	require.NoError(t, ws.WriteJSON(env))
}

func TestInvalidTokenClosesWith4001(t *testing.T) {
	f := newFixture(t)
	ws := f.dial(t, "nope")
	require.NoError(t, ws.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err := ws.ReadMessage()
	var ce *websocket.CloseError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, CloseInvalidToken, ce.Code)
	assert.Equal(t, "invalid token", ce.Text)
}

func TestBotIdentityRefused(t *testing.T) {
	f := newFixture(t)
	ws := f.dial(t, "tok-bot")
	require.NoError(t, ws.SetReadDeadline(time.Now().Add(2*time.Second)))
	var closeErr *websocket.CloseError
	for {
		_, _, err := ws.ReadMessage()
		if err != nil {
			require.ErrorAs(t, err, &closeErr)
			break
		}
	}
	assert.Equal(t, CloseForbidden, closeErr.Code)
	assert.False(t, f.reg.IsOnline("bot@x.io"))
}

func TestSessionLifecycle(t *testing.T) {
	f := newFixture(t)
	ws := f.dial(t, "tok-a")

	hello := readEnvelope(t, ws)
	assert.Equal(t, models.EventConnectionEstablished, hello.Type)
	var ce models.ConnectionEstablished
	require.NoError(t, hello.Decode(&ce))
	assert.Equal(t, "alice@x.io", ce.UserEmail)
	assert.NotEmpty(t, ce.ConnectionID)

	assert.Equal(t, models.EventPresenceSnapshot, readEnvelope(t, ws).Type)
	assert.True(t, f.reg.IsOnline("alice@x.io"))

	writeEnvelope(t, ws, "future_event", map[string]string{"x": "y"})
	writeEnvelope(t, ws, models.EventPing, nil)
	assert.Equal(t, models.EventPong, readEnvelope(t, ws).Type, "unknown events are ignored")

	writeEnvelope(t, ws, models.EventAck, models.AckRequest{MessageID: "m1"})
	writeEnvelope(t, ws, models.EventMarkRead, models.MarkReadRequest{Partner: "bob@x.io", UpToMessageID: "m1"})
	writeEnvelope(t, ws, models.EventAck, models.AckRequest{MessageID: "missing"})
	errEnv := readEnvelope(t, ws)
	assert.Equal(t, models.EventError, errEnv.Type)

	f.coord.mu.Lock()
	assert.Equal(t, []string{"alice@x.io:m1"}, f.coord.acks)
	assert.Equal(t, []string{"alice@x.io:bob@x.io:m1"}, f.coord.reads)
	f.coord.mu.Unlock()

	require.NoError(t, ws.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")))
	assert.Eventually(t, func() bool { return !f.reg.IsOnline("alice@x.io") }, 2*time.Second, 10*time.Millisecond)
}

func TestPublishReachesSocket(t *testing.T) {
	f := newFixture(t)
	ws := f.dial(t, "tok-a")
	readEnvelope(t, ws)
	readEnvelope(t, ws)

	env, err := models.NewEnvelope(models.EventNewMessage, models.Message{ID: "m9", Content: "hey"}, time.Now())
	require.NoError(t, err)
	assert.Equal(t, 1, f.reg.Publish("alice@x.io", env, ""))

	got := readEnvelope(t, ws)
	assert.Equal(t, models.EventNewMessage, got.Type)
	var m models.Message
	require.NoError(t, got.Decode(&m))
	assert.Equal(t, "m9", m.ID)
}

func TestSendOverflowClosesConn(t *testing.T) {
	cfg := testConfig()
	cfg.SendQueueSize = 1
	c := newConn("c1", "alice@x.io", nil, cfg, time.Now())

	require.NoError(t, c.Send(models.Envelope{Type: models.EventPong}))
	assert.ErrorIs(t, c.Send(models.Envelope{Type: models.EventPong}), ErrQueueFull)
	assert.ErrorIs(t, c.Send(models.Envelope{Type: models.EventPong}), ErrConnClosed)
	assert.Equal(t, websocket.CloseTryAgainLater, c.closeCode)
}
