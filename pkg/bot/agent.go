package bot

import (
	"context"
	"sync"
	"time"

	"chatcore/pkg/models"
	"chatcore/pkg/state/logger"
	"chatcore/pkg/timeutil"
)

const historyTurns = 10

// Messenger is what the agent needs from the delivery layer.
type Messenger interface {
	Send(ctx context.Context, sender string, req models.SendRequest) (*models.Message, error)
	Ack(ctx context.Context, recipient, messageID string) (*models.Message, error)
	MarkRead(ctx context.Context, reader, partner, upToMessageID string) (int, error)
	Typing(ctx context.Context, sender, recipient string, isTyping bool) error
}

// Turn is one line of a user's conversation with the bot.
type Turn struct {
	Role    string    `json:"role"`
	Content string    `json:"content"`
	At      time.Time `json:"at"`
}

// Agent answers messages addressed to the bot identity on its own goroutine.
type Agent struct {
	email     string
	messenger Messenger
	responder *Responder
	delay     time.Duration
	now       timeutil.Clock

	inbox chan models.Message
	stop  chan struct{}
	wg    sync.WaitGroup
	once  sync.Once

	mu      sync.Mutex
	history map[string][]Turn
}

func NewAgent(email string, m Messenger, r *Responder, delay time.Duration, queue int) *Agent {
	if queue <= 0 {
		queue = 64
	}
	return &Agent{
		email:     email,
		messenger: m,
		responder: r,
		delay:     delay,
		now:       timeutil.Now,
		inbox:     make(chan models.Message, queue),
		stop:      make(chan struct{}),
		history:   make(map[string][]Turn),
	}
}

// Handle queues m for a reply. It never blocks; a full queue drops m.
func (a *Agent) Handle(m models.Message) {
	select {
	case a.inbox <- m:
	default:
		logger.Warn("bot_queue_full", "from", m.Sender, "id", m.ID)
	}
}

func (a *Agent) Start(ctx context.Context) {
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		for {
			select {
			case <-ctx.Done():
				return
			case <-a.stop:
				return
			case m := <-a.inbox:
				a.reply(ctx, m)
			}
		}
	}()
	logger.Info("bot_agent_started", "email", a.email, "delay", a.delay)
}

// Stop ends the worker and waits for it. Queued messages are dropped.
func (a *Agent) Stop() {
	a.once.Do(func() { close(a.stop) })
	a.wg.Wait()
}

func (a *Agent) reply(ctx context.Context, m models.Message) {
	user := m.Sender
	if _, err := a.messenger.Ack(ctx, a.email, m.ID); err != nil {
		logger.Warn("bot_ack_failed", "id", m.ID, "error", err)
	}
	if _, err := a.messenger.MarkRead(ctx, a.email, user, m.ID); err != nil {
		logger.Warn("bot_mark_read_failed", "id", m.ID, "error", err)
	}
	a.remember(user, "user", m.Content)

	_ = a.messenger.Typing(ctx, a.email, user, true)
	if a.delay > 0 {
		t := time.NewTimer(a.delay)
		select {
		case <-t.C:
		case <-ctx.Done():
			t.Stop()
			return
		case <-a.stop:
			t.Stop()
			return
		}
	}
	_ = a.messenger.Typing(ctx, a.email, user, false)

	rule, text := a.responder.Respond(m.Content)
	out, err := a.messenger.Send(ctx, a.email, models.SendRequest{
		Recipient:     user,
		Content:       text,
		IsBotResponse: true,
	})
	if err != nil {
		logger.Error("bot_reply_failed", "to", user, "error", err)
		return
	}
	a.remember(user, "assistant", text)
	logger.Info("bot_replied", "to", user, "rule", rule, "id", out.ID)
}

func (a *Agent) remember(user, role, content string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	h := append(a.history[user], Turn{Role: role, Content: content, At: a.now()})
	if len(h) > historyTurns {
		h = h[len(h)-historyTurns:]
	}
	a.history[user] = h
}

// History returns up to the last ten turns exchanged with user.
func (a *Agent) History(user string) []Turn {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]Turn(nil), a.history[user]...)
}

// Forget clears the remembered turns of user.
func (a *Agent) Forget(user string) {
	a.mu.Lock()
	delete(a.history, user)
	a.mu.Unlock()
}
