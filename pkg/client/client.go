package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"
	"sync"
	"time"

	"chatcore/pkg/models"
	"chatcore/pkg/state/logger"

	"github.com/fasthttp/websocket"
	"github.com/valyala/fasthttp"
)

const closeInvalidToken = 4001

// catchUpPage stays within the server's default history limit.
const catchUpPage = 50

type Config struct {
	BaseURL        string
	Token          string
	Timeout        time.Duration
	ReconnectDelay time.Duration
	MaxAttempts    int
	Window         time.Duration
	// Dial overrides the network dialer for both pull and push.
	Dial func(addr string) (net.Conn, error)
	// OnEvent sees every push envelope after the timeline applied it.
	OnEvent func(models.Envelope)
	// OnState sees reconnect state transitions.
	OnState func(from, to State)
}

// APIError is a non-2xx pull response.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string { return fmt.Sprintf("http %d: %s", e.Status, e.Message) }

// Client pairs the pull API with a self-healing push stream and keeps one
// reconciled timeline per partner.
type Client struct {
	cfg    Config
	http   *fasthttp.Client
	dialer websocket.Dialer
	rc     *Reconnector

	mu        sync.Mutex
	me        string
	timelines map[string]*Timeline
	conn      *websocket.Conn
}

func New(cfg Config) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.ReconnectDelay <= 0 {
		cfg.ReconnectDelay = 3 * time.Second
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 5
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	c := &Client{
		cfg:       cfg,
		http:      &fasthttp.Client{Name: "chatcore-client", Dial: cfg.Dial},
		dialer:    websocket.Dialer{HandshakeTimeout: cfg.Timeout},
		timelines: make(map[string]*Timeline),
	}
	if cfg.Dial != nil {
		c.dialer.NetDial = func(_, addr string) (net.Conn, error) { return cfg.Dial(addr) }
	}
	opts := []ReconnectOption{WithConnectedHook(c.catchUp)}
	if cfg.OnState != nil {
		opts = append(opts, WithStateHook(cfg.OnState))
	}
	c.rc = NewReconnector(c.dialStream, cfg.ReconnectDelay, cfg.MaxAttempts, opts...)
	return c
}

func (c *Client) Me() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.me
}

func (c *Client) Reconnector() *Reconnector { return c.rc }

// Timeline returns the conversation view for partner, creating it.
func (c *Client) Timeline(partner string) *Timeline {
	partner = strings.ToLower(partner)
	c.mu.Lock()
	defer c.mu.Unlock()
	t, ok := c.timelines[partner]
	if !ok {
		t = NewTimeline(c.cfg.Window)
		c.timelines[partner] = t
	}
	return t
}

// Login exchanges credentials for a token used by later calls.
func (c *Client) Login(ctx context.Context, email, password string) error {
	var out struct {
		AccessToken string            `json:"access_token"`
		User        models.PublicUser `json:"user"`
	}
	body := map[string]string{"email": email, "password": password}
	if err := c.do(ctx, fasthttp.MethodPost, "/v1/auth/login", body, &out); err != nil {
		return err
	}
	c.mu.Lock()
	c.cfg.Token = out.AccessToken
	c.me = out.User.Email
	c.mu.Unlock()
	return nil
}

// Send shows the message optimistically, then confirms or drops it.
func (c *Client) Send(ctx context.Context, recipient, content string) (models.Message, error) {
	tl := c.Timeline(recipient)
	tempID := tl.AddPlaceholder(c.Me(), strings.ToLower(recipient), content, time.Now())
	var m models.Message
	err := c.do(ctx, fasthttp.MethodPost, "/v1/messages", models.SendRequest{Recipient: recipient, Content: content}, &m)
	if err != nil {
		return models.Message{}, tl.FailSend(tempID, err)
	}
	if err := tl.ConfirmSend(tempID, m); err != nil {
		logger.Debug("confirm_unmatched", "temp_id", tempID, "error", err)
		tl.ApplyPush(m)
	}
	return m, nil
}

// History loads a page into the partner's timeline.
func (c *Client) History(ctx context.Context, partner string, limit, offset int) (models.HistoryPage, error) {
	var page models.HistoryPage
	path := fmt.Sprintf("/v1/conversations/%s?limit=%d&offset=%d", url.PathEscape(partner), limit, offset)
	if err := c.do(ctx, fasthttp.MethodGet, path, nil, &page); err != nil {
		return page, err
	}
	c.Timeline(partner).Merge(page.Messages, true)
	return page, nil
}

// Since fetches up to limit messages newer than afterID into the partner's
// timeline. A zero limit uses the server default.
func (c *Client) Since(ctx context.Context, partner, afterID string, limit int) ([]models.Message, error) {
	var out struct {
		Messages []models.Message `json:"messages"`
	}
	path := "/v1/conversations/" + url.PathEscape(partner) + "/since/" + url.PathEscape(afterID)
	if limit > 0 {
		path += fmt.Sprintf("?limit=%d", limit)
	}
	if err := c.do(ctx, fasthttp.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	c.Timeline(partner).Merge(out.Messages, false)
	return out.Messages, nil
}

func (c *Client) Ack(ctx context.Context, id string) error {
	return c.do(ctx, fasthttp.MethodPost, "/v1/messages/"+url.PathEscape(id)+"/ack", nil, nil)
}

func (c *Client) MarkRead(ctx context.Context, partner, upTo string) (int, error) {
	var ack models.MarkReadAck
	err := c.do(ctx, fasthttp.MethodPost, "/v1/conversations/"+url.PathEscape(partner)+"/read",
		models.MarkReadRequest{UpToMessageID: upTo}, &ack)
	return ack.Updated, err
}

func (c *Client) Chats(ctx context.Context) ([]models.ChatSummary, error) {
	var out struct {
		Chats []models.ChatSummary `json:"chats"`
	}
	err := c.do(ctx, fasthttp.MethodGet, "/v1/chats", nil, &out)
	return out.Chats, err
}

// Run keeps the push stream connected until ctx ends or the client goes
// offline.
func (c *Client) Run(ctx context.Context) error {
	return c.rc.Run(ctx)
}

// Emit writes an envelope on the live push stream.
func (c *Client) Emit(t models.EventType, data any) error {
	env, err := models.NewEnvelope(t, data, time.Now())
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return errors.New("push stream not connected")
	}
	return c.conn.WriteJSON(env)
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(c.cfg.BaseURL + path)
	req.Header.SetMethod(method)
	c.mu.Lock()
	token := c.cfg.Token
	c.mu.Unlock()
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return err
		}
		req.Header.SetContentType("application/json")
		req.SetBody(raw)
	}

	timeout := c.cfg.Timeout
	if dl, ok := ctx.Deadline(); ok {
		if d := time.Until(dl); d < timeout {
			timeout = d
		}
	}
	if err := c.http.DoTimeout(req, resp, timeout); err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	if code := resp.StatusCode(); code >= 300 {
		var e struct {
			Error string `json:"error"`
		}
		_ = json.Unmarshal(resp.Body(), &e)
		return &APIError{Status: code, Message: e.Error}
	}
	if out == nil || len(resp.Body()) == 0 {
		return nil
	}
	return json.Unmarshal(resp.Body(), out)
}

func (c *Client) pushURL() (string, error) {
	u, err := url.Parse(c.cfg.BaseURL)
	if err != nil {
		return "", err
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path = "/ws/chat"
	c.mu.Lock()
	u.RawQuery = url.Values{"token": {c.cfg.Token}}.Encode()
	c.mu.Unlock()
	return u.String(), nil
}

func (c *Client) dialStream(ctx context.Context) (Stream, error) {
	target, err := c.pushURL()
	if err != nil {
		return nil, err
	}
	ws, _, err := c.dialer.DialContext(ctx, target, nil)
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	c.conn = ws
	c.mu.Unlock()
	return &wsStream{c: c, ws: ws}, nil
}

// catchUp refetches what was missed while disconnected: conversations
// started by others, new messages, and status changes, edits and deletes
// of messages already held.
func (c *Client) catchUp(ctx context.Context) error {
	partners := map[string]struct{}{}
	c.mu.Lock()
	for p := range c.timelines {
		partners[p] = struct{}{}
	}
	c.mu.Unlock()
	chats, err := c.Chats(ctx)
	if err != nil {
		return fmt.Errorf("catch up chats: %w", err)
	}
	for _, ch := range chats {
		partners[strings.ToLower(ch.Partner)] = struct{}{}
	}

	var errs []error
	for p := range partners {
		if err := c.catchUpPartner(ctx, p); err != nil {
			errs = append(errs, fmt.Errorf("catch up %s: %w", p, err))
		}
	}
	return errors.Join(errs...)
}

func (c *Client) catchUpPartner(ctx context.Context, partner string) error {
	tl := c.Timeline(partner)
	oldest, newest, held := tl.ConfirmedRange()

	if last := tl.LastConfirmedID(); last != "" {
		for {
			msgs, err := c.Since(ctx, partner, last, catchUpPage)
			if err != nil {
				return err
			}
			if len(msgs) < catchUpPage {
				break
			}
			last = msgs[len(msgs)-1].ID
		}
	}

	// walk back over the held range; history pages never move a status
	// backwards and anything absent from them was deleted
	seen := map[string]struct{}{}
	var from time.Time
	for offset := 0; ; offset += catchUpPage {
		page, err := c.History(ctx, partner, catchUpPage, offset)
		if err != nil {
			return err
		}
		n := len(page.Messages)
		for _, m := range page.Messages {
			seen[m.ID] = struct{}{}
		}
		if n < catchUpPage || !page.HasMore {
			from = time.Time{}
			break
		}
		from = page.Messages[n-1].CreatedAt
		if !held || !from.After(oldest) {
			break
		}
	}
	if held {
		tl.DropMissing(seen, from, newest)
	}
	return nil
}

// handle applies an inbound envelope to the timelines. Incoming messages
// are acked so the sender sees them delivered.
func (c *Client) handle(env models.Envelope) {
	switch env.Type {
	case models.EventConnectionEstablished:
		var ce models.ConnectionEstablished
		if env.Decode(&ce) == nil {
			c.mu.Lock()
			c.me = ce.UserEmail
			c.mu.Unlock()
		}
	case models.EventNewMessage, models.EventMessageEdited:
		var m models.Message
		if err := env.Decode(&m); err != nil {
			logger.Warn("push_decode_failed", "type", env.Type, "error", err)
			return
		}
		me := c.Me()
		c.Timeline(m.Partner(me)).ApplyPush(m)
		if env.Type == models.EventNewMessage && m.Recipient == me && m.Status == models.StatusSent {
			if err := c.Emit(models.EventAck, models.AckRequest{MessageID: m.ID}); err != nil {
				logger.Debug("push_ack_failed", "id", m.ID, "error", err)
			}
		}
	case models.EventStatusChange:
		var sc models.StatusChange
		if env.Decode(&sc) == nil {
			c.Timeline(partnerOf(c.Me(), sc.Sender, sc.Recipient)).ApplyStatus(sc)
		}
	case models.EventMessageDeleted:
		var md models.MessageDeleted
		if env.Decode(&md) == nil {
			c.Timeline(partnerOf(c.Me(), md.Sender, md.Recipient)).ApplyDeleted(md.MessageID)
		}
	}
	if c.cfg.OnEvent != nil {
		c.cfg.OnEvent(env)
	}
}

func partnerOf(me, sender, recipient string) string {
	if sender == me {
		return recipient
	}
	return sender
}

type wsStream struct {
	c  *Client
	ws *websocket.Conn
}

func (s *wsStream) Run(ctx context.Context) error {
	stop := context.AfterFunc(ctx, func() { _ = s.ws.Close() })
	defer stop()
	for {
		var env models.Envelope
		if err := s.ws.ReadJSON(&env); err != nil {
			var ce *websocket.CloseError
			if errors.As(err, &ce) && ce.Code == closeInvalidToken {
				return fmt.Errorf("%w: %s", ErrUnauthorized, ce.Text)
			}
			return err
		}
		s.c.handle(env)
	}
}

func (s *wsStream) Close() error {
	s.c.mu.Lock()
	if s.c.conn == s.ws {
		s.c.conn = nil
	}
	s.c.mu.Unlock()
	return s.ws.Close()
}
