package push

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"chatcore/pkg/models"
	"chatcore/pkg/state/logger"
	"chatcore/pkg/telemetry"

	"github.com/fasthttp/websocket"
)

var (
	ErrConnClosed = errors.New("connection closed")
	ErrQueueFull  = errors.New("send queue full")
)

// Conn is one websocket session. Writes go through a bounded queue
// drained by a single writer goroutine.
type Conn struct {
	id        string
	user      string
	ws        *websocket.Conn
	cfg       Config
	createdAt time.Time

	queue      chan models.Envelope
	done       chan struct{}
	closeOnce  sync.Once
	closeCode  int
	closeText  string
	lastActive atomic.Int64
}

func newConn(id, user string, ws *websocket.Conn, cfg Config, now time.Time) *Conn {
	c := &Conn{
		id:        id,
		user:      user,
		ws:        ws,
		cfg:       cfg,
		createdAt: now,
		queue:     make(chan models.Envelope, cfg.SendQueueSize),
		done:      make(chan struct{}),
		closeCode: websocket.CloseNormalClosure,
	}
	c.lastActive.Store(now.UnixNano())
	return c
}

func (c *Conn) ID() string   { return c.id }
func (c *Conn) User() string { return c.user }

func (c *Conn) CreatedAt() time.Time { return c.createdAt }

func (c *Conn) LastActivity() time.Time { return time.Unix(0, c.lastActive.Load()).UTC() }

func (c *Conn) touch() { c.lastActive.Store(time.Now().UnixNano()) }

// Send queues env without blocking. When the queue is full the connection
// is closed and ErrQueueFull returned.
func (c *Conn) Send(env models.Envelope) error {
	select {
	case <-c.done:
		return ErrConnClosed
	default:
	}
	select {
	case c.queue <- env:
		telemetry.PushFrames.WithLabelValues(string(env.Type)).Inc()
		return nil
	default:
		telemetry.PushOverflows.Inc()
		logger.Warn("push_queue_overflow", "user", c.user, "conn", c.id, "type", env.Type, "capacity", cap(c.queue))
		c.closeWith(websocket.CloseTryAgainLater, "send queue overflow")
		return ErrQueueFull
	}
}

// Close asks the writer to send a close frame and stop.
func (c *Conn) Close() {
	c.closeWith(websocket.CloseGoingAway, "server closing")
}

func (c *Conn) closeWith(code int, text string) {
	c.closeOnce.Do(func() {
		c.closeCode = code
		c.closeText = text
		close(c.done)
	})
}

// writePump owns all writes to ws.
func (c *Conn) writePump() {
	ticker := time.NewTicker(c.cfg.PingInterval)
	defer func() {
		ticker.Stop()
		_ = c.ws.Close()
	}()

	for {
		select {
		case env := <-c.queue:
			_ = c.ws.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
			if err := c.ws.WriteJSON(env); err != nil {
				logger.Debug("push_write_failed", "conn", c.id, "error", err)
				c.closeWith(websocket.CloseAbnormalClosure, "")
				return
			}
		case <-ticker.C:
			_ = c.ws.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.closeWith(websocket.CloseAbnormalClosure, "")
				return
			}
		case <-c.done:
			if c.closeCode != websocket.CloseAbnormalClosure {
				msg := websocket.FormatCloseMessage(c.closeCode, c.closeText)
				_ = c.ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(c.cfg.WriteTimeout))
			}
			return
		}
	}
}
