package push

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"time"

	"chatcore/pkg/models"
	"chatcore/pkg/session"
	"chatcore/pkg/state/logger"
	"chatcore/pkg/telemetry"
	"chatcore/pkg/timeutil"

	"github.com/fasthttp/websocket"
	"github.com/google/uuid"
	"github.com/valyala/fasthttp"
)

// CloseInvalidToken is sent when the token query parameter fails to verify.
const (
	CloseInvalidToken = 4001
	CloseForbidden    = 4003
)

type Config struct {
	SendQueueSize  int
	PingInterval   time.Duration
	PongWait       time.Duration
	WriteTimeout   time.Duration
	MaxMessageSize int64
	AllowedOrigins []string
}

// Verifier resolves a token to a user identity.
type Verifier interface {
	Verify(token string) (string, error)
}

// Coordinator handles the client events that change message state.
type Coordinator interface {
	Ack(ctx context.Context, recipient, messageID string) (*models.Message, error)
	MarkRead(ctx context.Context, reader, partner, upToMessageID string) (int, error)
	Typing(ctx context.Context, sender, recipient string, isTyping bool) error
}

// SnapshotSender pushes the presence view of a user to one connection.
type SnapshotSender interface {
	SendSnapshot(ctx context.Context, viewer string, send func(models.Envelope) error) error
}

// Server upgrades authenticated requests to push connections.
type Server struct {
	cfg      Config
	registry *session.Registry
	verifier Verifier
	coord    Coordinator
	presence SnapshotSender
	upgrader websocket.FastHTTPUpgrader
	now      timeutil.Clock

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewServer(cfg Config, reg *session.Registry, v Verifier, coord Coordinator, presence SnapshotSender) *Server {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		cfg:      cfg,
		registry: reg,
		verifier: v,
		coord:    coord,
		presence: presence,
		now:      timeutil.Now,
		ctx:      ctx,
		cancel:   cancel,
	}
	s.upgrader = websocket.FastHTTPUpgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
	}
	if len(cfg.AllowedOrigins) > 0 {
		s.upgrader.CheckOrigin = func(ctx *fasthttp.RequestCtx) bool {
			origin := string(ctx.Request.Header.Peek("Origin"))
			if origin == "" {
				return true
			}
			for _, a := range cfg.AllowedOrigins {
				if a == "*" || strings.EqualFold(a, origin) {
					return true
				}
			}
			return false
		}
	}
	return s
}

// Handle serves GET /ws/chat?token=.
func (s *Server) Handle(ctx *fasthttp.RequestCtx) {
	token := string(ctx.QueryArgs().Peek("token"))
	user, verr := s.verifier.Verify(token)
	remote := ctx.RemoteAddr().String()

	s.wg.Add(1)
	err := s.upgrader.Upgrade(ctx, func(ws *websocket.Conn) {
		defer s.wg.Done()
		if verr != nil {
			logger.Warn("push_auth_failed", "remote", remote, "error", verr)
			reject(ws, CloseInvalidToken, "invalid token", s.cfg.WriteTimeout)
			return
		}
		s.serve(ws, user)
	})
	if err != nil {
		s.wg.Done()
		logger.Warn("push_upgrade_failed", "remote", remote, "error", err)
	}
}

func reject(ws *websocket.Conn, code int, text string, timeout time.Duration) {
	msg := websocket.FormatCloseMessage(code, text)
	_ = ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(timeout))
	_ = ws.Close()
}

func (s *Server) serve(ws *websocket.Conn, user string) {
	c := newConn(uuid.NewString(), user, ws, s.cfg, s.now())
	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		c.writePump()
	}()

	hello, _ := models.NewEnvelope(models.EventConnectionEstablished, models.ConnectionEstablished{
		UserEmail:    user,
		ConnectionID: c.id,
		Message:      "connected",
	}, s.now())
	_ = c.Send(hello)

	if _, err := s.registry.Register(user, c); err != nil {
		logger.Warn("push_register_refused", "user", user, "error", err)
		c.closeWith(CloseForbidden, "identity cannot connect")
		<-writerDone
		return
	}
	telemetry.Connections.Inc()
	s.updateOnline()
	logger.Info("connection_registered", "user", user, "conn", c.id)

	if err := s.presence.SendSnapshot(s.ctx, user, c.Send); err != nil {
		logger.Warn("presence_snapshot_failed", "user", user, "error", err)
	}

	s.readLoop(c)

	c.closeWith(websocket.CloseNormalClosure, "")
	<-writerDone
	s.registry.Unregister(user, c)
	telemetry.Connections.Dec()
	s.updateOnline()
	logger.Info("connection_unregistered", "user", user, "conn", c.id)
}

func (s *Server) updateOnline() {
	users, _ := s.registry.Count()
	telemetry.OnlineUsers.Set(float64(users))
}

func (s *Server) readLoop(c *Conn) {
	ws := c.ws
	if s.cfg.MaxMessageSize > 0 {
		ws.SetReadLimit(s.cfg.MaxMessageSize)
	}
	_ = ws.SetReadDeadline(time.Now().Add(s.cfg.PongWait))
	ws.SetPongHandler(func(string) error {
		c.touch()
		return ws.SetReadDeadline(time.Now().Add(s.cfg.PongWait))
	})

	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				logger.Debug("push_read_failed", "conn", c.id, "error", err)
			}
			return
		}
		c.touch()
		_ = ws.SetReadDeadline(time.Now().Add(s.cfg.PongWait))
		s.dispatch(c, data)
	}
}

func (s *Server) dispatch(c *Conn, data []byte) {
	var env models.Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		logger.Debug("push_frame_invalid", "conn", c.id, "error", err)
		s.sendError(c, "invalid frame", "bad_frame")
		return
	}

	ctx := s.ctx
	var err error
	switch env.Type {
	case models.EventPing:
		pong, _ := models.NewEnvelope(models.EventPong, nil, s.now())
		err = c.Send(pong)
	case models.EventAck:
		var req models.AckRequest
		if err = env.Decode(&req); err == nil {
			_, err = s.coord.Ack(ctx, c.user, req.MessageID)
		}
	case models.EventMarkRead:
		var req models.MarkReadRequest
		if err = env.Decode(&req); err == nil {
			_, err = s.coord.MarkRead(ctx, c.user, req.Partner, req.UpToMessageID)
		}
	case models.EventTyping:
		var req models.TypingRequest
		if err = env.Decode(&req); err == nil {
			err = s.coord.Typing(ctx, c.user, req.Recipient, req.IsTyping)
		}
	default:
		logger.Debug("push_event_ignored", "conn", c.id, "type", env.Type)
		return
	}
	if err != nil && !errors.Is(err, ErrConnClosed) && !errors.Is(err, ErrQueueFull) {
		logger.Debug("push_event_failed", "conn", c.id, "type", env.Type, "error", err)
		s.sendError(c, err.Error(), string(env.Type))
	}
}

func (s *Server) sendError(c *Conn, msg, code string) {
	env, err := models.NewEnvelope(models.EventError, models.ErrorEvent{Message: msg, Code: code}, s.now())
	if err == nil {
		_ = c.Send(env)
	}
}

// Shutdown closes every connection and waits for their sessions to end.
func (s *Server) Shutdown(ctx context.Context) error {
	s.cancel()
	s.registry.CloseAll()
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
