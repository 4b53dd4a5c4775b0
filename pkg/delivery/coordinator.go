package delivery

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"chatcore/pkg/models"
	"chatcore/pkg/state/logger"
	"chatcore/pkg/store"
	"chatcore/pkg/store/keys"
	"chatcore/pkg/store/locks"
	"chatcore/pkg/telemetry"
	"chatcore/pkg/timeutil"

	"github.com/google/uuid"
)

const MaxContentLength = 2000

// Store is the persistence the coordinator needs.
type Store interface {
	CreateMessage(ctx context.Context, m *models.Message) error
	UpdateMessage(ctx context.Context, m *models.Message) error
	GetMessage(ctx context.Context, id string) (*models.Message, error)
	Conversation(ctx context.Context, a, b string, reverse bool, fn func(*models.Message) bool) error
	ConversationAfter(ctx context.Context, a, b string, after *models.Message, fn func(*models.Message) bool) error
	Partners(ctx context.Context, user string) ([]string, error)
	GetUser(ctx context.Context, email string) (*models.User, error)
}

// Publisher delivers envelopes to a user's live connections.
type Publisher interface {
	Publish(user string, env models.Envelope, skipConnID string) int
}

// Presence answers whether a user is online.
type Presence interface {
	IsOnline(user string) bool
}

// BotHandler receives messages addressed to the bot. It must not block.
type BotHandler func(m models.Message)

type Limits struct {
	DefaultLimit int
	MaxLimit     int
}

// Coordinator owns message state: it persists every transition and then
// notifies the affected live connections.
type Coordinator struct {
	store    Store
	pub      Publisher
	presence Presence

	msgLocks  *locks.KeyedMutex
	convLocks *locks.KeyedMutex

	now      timeutil.Clock
	newID    func() (string, error)
	limits   Limits
	botEmail string

	botMu sync.RWMutex
	bot   BotHandler
}

type Option func(*Coordinator)

func WithClock(c timeutil.Clock) Option {
	return func(co *Coordinator) { co.now = c }
}

// WithIDs replaces the message id generator.
func WithIDs(fn func() (string, error)) Option {
	return func(co *Coordinator) { co.newID = fn }
}

func WithLimits(l Limits) Option {
	return func(co *Coordinator) { co.limits = l }
}

// WithBot names the identity whose messages may carry is_bot_response.
func WithBot(email string) Option {
	return func(co *Coordinator) { co.botEmail = normalize(email) }
}

func New(st Store, pub Publisher, presence Presence, opts ...Option) *Coordinator {
	c := &Coordinator{
		store:     st,
		pub:       pub,
		presence:  presence,
		msgLocks:  locks.New(),
		convLocks: locks.New(),
		limits:    Limits{DefaultLimit: 50, MaxLimit: 100},
		newID:     newMessageID,
	}
	for _, o := range opts {
		o(c)
	}
	c.now = timeutil.OrNow(c.now)
	return c
}

func newMessageID() (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", err
	}
	return id.String(), nil
}

// SetBotHandler routes messages sent to the bot identity to fn.
func (c *Coordinator) SetBotHandler(fn BotHandler) {
	c.botMu.Lock()
	c.bot = fn
	c.botMu.Unlock()
}

func (c *Coordinator) BotEmail() string { return c.botEmail }

// Send persists a new message as sent and pushes it to both sides.
// An offline recipient is not an error.
func (c *Coordinator) Send(ctx context.Context, sender string, req models.SendRequest) (*models.Message, error) {
	tr := telemetry.Track("delivery.send")
	defer tr.Finish()

	sender = normalize(sender)
	recipient := normalize(req.Recipient)
	content, err := validContent(req.Content)
	if err != nil {
		return nil, err
	}
	if recipient == "" {
		return nil, invalid(ErrRecipientNotFound)
	}
	if recipient == sender {
		return nil, invalid(ErrSelfSend)
	}
	if _, err := c.store.GetUser(ctx, recipient); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, notFound(ErrRecipientNotFound)
		}
		return nil, err
	}
	if req.ReplyTo != "" {
		parent, err := c.store.GetMessage(ctx, req.ReplyTo)
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			return nil, err
		}
		if parent == nil || parent.Deleted || !parent.Involves(sender, recipient) {
			return nil, invalid(ErrInvalidReply)
		}
	}
	tr.Mark("validate")

	id, err := c.newID()
	if err != nil {
		return nil, err
	}
	m := &models.Message{
		ID:            id,
		Sender:        sender,
		Recipient:     recipient,
		Content:       content,
		CreatedAt:     c.now(),
		ReplyTo:       req.ReplyTo,
		Status:        models.StatusSent,
		IsBotResponse: req.IsBotResponse && c.botEmail != "" && sender == c.botEmail,
	}
	if err := c.store.CreateMessage(ctx, m); err != nil {
		logger.Error("message_persist_failed", "sender", sender, "recipient", recipient, "error", err)
		return nil, err
	}
	tr.Mark("persist")
	telemetry.MessagesSent.Inc()
	logger.Info("message_sent", "id", m.ID, "sender", sender, "recipient", recipient)

	c.emit(models.EventNewMessage, m, recipient, sender)
	tr.Mark("fanout")

	if recipient == c.botEmail && !m.IsBotResponse {
		c.botMu.RLock()
		h := c.bot
		c.botMu.RUnlock()
		if h != nil {
			h(*m)
		}
	}
	return m, nil
}

// Typing relays a typing indicator to the recipient's connections.
func (c *Coordinator) Typing(ctx context.Context, sender, recipient string, isTyping bool) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	sender, recipient = normalize(sender), normalize(recipient)
	if recipient == "" || recipient == sender {
		return invalid(ErrSelfSend)
	}
	c.emit(models.EventTyping, models.Typing{UserEmail: sender, Recipient: recipient, IsTyping: isTyping}, recipient)
	return nil
}

func (c *Coordinator) emit(t models.EventType, data any, users ...string) {
	env, err := models.NewEnvelope(t, data, c.now())
	if err != nil {
		logger.Error("envelope_encode_failed", "type", t, "error", err)
		return
	}
	for _, u := range users {
		if u == "" || u == c.botEmail {
			continue
		}
		c.pub.Publish(u, env, "")
	}
}

func validContent(raw string) (string, error) {
	content := strings.TrimSpace(raw)
	if content == "" {
		return "", invalid(ErrEmptyContent)
	}
	if utf8.RuneCountInString(content) > MaxContentLength {
		return "", invalid(ErrContentTooLong)
	}
	return content, nil
}

func convLockKey(a, b string) string {
	lo, hi := keys.Pair(a, b)
	return lo + "|" + hi
}

func normalize(id string) string {
	return strings.ToLower(strings.TrimSpace(id))
}

func ptr(t time.Time) *time.Time { return &t }
