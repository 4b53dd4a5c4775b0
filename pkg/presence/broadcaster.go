package presence

import (
	"context"
	"sort"
	"strings"
	"time"

	"chatcore/pkg/config"
	"chatcore/pkg/models"
	"chatcore/pkg/session"
	"chatcore/pkg/state/logger"
	"chatcore/pkg/timeutil"
)

// PartnerSource lists who a user has conversed with.
type PartnerSource interface {
	Partners(ctx context.Context, user string) ([]string, error)
}

// Hub is the part of the registry the broadcaster needs.
type Hub interface {
	IsOnline(user string) bool
	OnlineUsers() []string
	Publish(user string, env models.Envelope, skipConnID string) int
}

// Broadcaster turns registry edges into presence_change events.
type Broadcaster struct {
	hub      Hub
	partners PartnerSource
	scope    string
	always   map[string]struct{}
	now      timeutil.Clock
	onEmit   func(delivered int)
}

type Option func(*Broadcaster)

// WithAlwaysOnline marks identities that are online without a connection.
func WithAlwaysOnline(ids ...string) Option {
	return func(b *Broadcaster) {
		for _, id := range ids {
			b.always[strings.ToLower(id)] = struct{}{}
		}
	}
}

func WithClock(c timeutil.Clock) Option {
	return func(b *Broadcaster) { b.now = c }
}

// WithEmitHook is called after each fan-out with the number of frames queued.
func WithEmitHook(fn func(delivered int)) Option {
	return func(b *Broadcaster) { b.onEmit = fn }
}

func New(hub Hub, partners PartnerSource, scope string, opts ...Option) *Broadcaster {
	if scope == "" {
		scope = config.PresenceScopePartners
	}
	b := &Broadcaster{
		hub:      hub,
		partners: partners,
		scope:    scope,
		always:   make(map[string]struct{}),
	}
	for _, o := range opts {
		o(b)
	}
	b.now = timeutil.OrNow(b.now)
	return b
}

// Attach subscribes the broadcaster to the registry.
func (b *Broadcaster) Attach(r *session.Registry) {
	r.Observe(b.HandleEdge)
}

// HandleEdge emits one presence_change for the edge to the audience of
// the affected user.
func (b *Broadcaster) HandleEdge(e session.Edge) {
	if _, ok := b.always[e.User]; ok {
		return
	}
	env, err := models.NewEnvelope(models.EventPresenceChange, models.PresenceChange{
		UserEmail: e.User,
		IsOnline:  e.Online,
		Timestamp: e.At,
	}, e.At)
	if err != nil {
		logger.Error("presence_encode_failed", "user", e.User, "error", err)
		return
	}

	delivered := 0
	for _, target := range b.audience(e.User) {
		delivered += b.hub.Publish(target, env, "")
	}
	logger.Debug("presence_broadcast", "user", e.User, "online", e.Online, "scope", b.scope, "delivered", delivered)
	if b.onEmit != nil {
		b.onEmit(delivered)
	}
}

func (b *Broadcaster) audience(user string) []string {
	if b.scope == config.PresenceScopeAll {
		var out []string
		for _, u := range b.hub.OnlineUsers() {
			if u != user {
				out = append(out, u)
			}
		}
		return out
	}
	ps, err := b.partners.Partners(context.Background(), user)
	if err != nil {
		logger.Warn("presence_partners_failed", "user", user, "error", err)
		return nil
	}
	return ps
}

// IsOnline reports the presence of user, including always-online identities.
func (b *Broadcaster) IsOnline(user string) bool {
	if _, ok := b.always[strings.ToLower(user)]; ok {
		return true
	}
	return b.hub.IsOnline(user)
}

// Snapshot returns the presence of every identity in viewer's audience,
// sorted by email.
func (b *Broadcaster) Snapshot(ctx context.Context, viewer string) (models.PresenceSnapshot, error) {
	viewer = strings.ToLower(viewer)
	var ids []string
	if b.scope == config.PresenceScopeAll {
		seen := map[string]struct{}{}
		for _, u := range b.hub.OnlineUsers() {
			seen[u] = struct{}{}
		}
		for u := range b.always {
			seen[u] = struct{}{}
		}
		delete(seen, viewer)
		for u := range seen {
			ids = append(ids, u)
		}
	} else {
		ps, err := b.partners.Partners(ctx, viewer)
		if err != nil {
			return models.PresenceSnapshot{}, err
		}
		ids = ps
	}
	sort.Strings(ids)

	at := b.now()
	snap := models.PresenceSnapshot{Users: make([]models.PresenceChange, 0, len(ids))}
	for _, id := range ids {
		snap.Users = append(snap.Users, models.PresenceChange{UserEmail: id, IsOnline: b.IsOnline(id), Timestamp: at})
	}
	return snap, nil
}

// SendSnapshot pushes viewer's snapshot to a single connection.
func (b *Broadcaster) SendSnapshot(ctx context.Context, viewer string, send func(models.Envelope) error) error {
	snap, err := b.Snapshot(ctx, viewer)
	if err != nil {
		return err
	}
	env, err := models.NewEnvelope(models.EventPresenceSnapshot, snap, b.now())
	if err != nil {
		return err
	}
	return send(env)
}

// LastSeenRecorder persists offline edges as last_seen timestamps.
type LastSeenRecorder interface {
	TouchLastSeen(ctx context.Context, email string, at time.Time) error
}

// RecordLastSeen returns an observer that stores last_seen on offline edges.
func RecordLastSeen(store LastSeenRecorder) session.Observer {
	return func(e session.Edge) {
		if e.Online {
			return
		}
		if err := store.TouchLastSeen(context.Background(), e.User, e.At); err != nil {
			logger.Warn("last_seen_update_failed", "user", e.User, "error", err)
		}
	}
}
