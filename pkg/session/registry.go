package session

import (
	"errors"
	"strings"
	"sync"
	"time"

	"chatcore/pkg/models"
	"chatcore/pkg/state/logger"
	"chatcore/pkg/timeutil"
)

var ErrExemptIdentity = errors.New("identity does not hold live connections")

// Conn is one live push connection as seen by the registry.
type Conn interface {
	ID() string
	User() string
	Send(env models.Envelope) error
	Close()
}

// Edge is an online/offline transition of a user.
// Seq increases strictly across all edges of the registry.
type Edge struct {
	User   string
	Online bool
	At     time.Time
	Seq    uint64
}

// Observer receives edges in the order they happened.
type Observer func(Edge)

// Registry tracks which users are online and the connections they hold.
// A user is online while at least one connection is registered.
type Registry struct {
	mu     sync.RWMutex
	conns  map[string]map[string]Conn
	exempt map[string]struct{}
	seq    uint64
	now    timeutil.Clock

	// observers run outside mu, one edge at a time in Seq order
	emitMu    sync.Mutex
	emitCond  *sync.Cond
	emitted   uint64
	observers []Observer
}

type Option func(*Registry)

// WithExempt refuses connections for the given identities.
func WithExempt(ids ...string) Option {
	return func(r *Registry) {
		for _, id := range ids {
			r.exempt[normalize(id)] = struct{}{}
		}
	}
}

func WithClock(c timeutil.Clock) Option {
	return func(r *Registry) { r.now = c }
}

func NewRegistry(opts ...Option) *Registry {
	r := &Registry{
		conns:  make(map[string]map[string]Conn),
		exempt: make(map[string]struct{}),
	}
	for _, o := range opts {
		o(r)
	}
	r.now = timeutil.OrNow(r.now)
	r.emitCond = sync.NewCond(&r.emitMu)
	return r
}

// Observe adds an edge observer. Call before traffic starts.
func (r *Registry) Observe(o Observer) {
	r.emitMu.Lock()
	r.observers = append(r.observers, o)
	r.emitMu.Unlock()
}

// Register adds c for user and reports whether user just came online.
// Registering the same connection twice is a no-op.
func (r *Registry) Register(user string, c Conn) (bool, error) {
	user = normalize(user)
	if _, ok := r.exempt[user]; ok {
		return false, ErrExemptIdentity
	}

	r.mu.Lock()
	set, ok := r.conns[user]
	if !ok {
		set = make(map[string]Conn)
		r.conns[user] = set
	}
	if _, dup := set[c.ID()]; dup {
		r.mu.Unlock()
		return false, nil
	}
	set[c.ID()] = c
	if n := len(set); n > 1 {
		r.mu.Unlock()
		logger.Debug("connection_added", "user", user, "conn", c.ID(), "count", n)
		return false, nil
	}
	edge := r.nextEdge(user, true)
	r.mu.Unlock()
	r.emit(edge)
	return true, nil
}

// Unregister removes c and reports whether user just went offline.
// Unknown connections are ignored.
func (r *Registry) Unregister(user string, c Conn) bool {
	user = normalize(user)

	r.mu.Lock()
	set, ok := r.conns[user]
	if !ok {
		r.mu.Unlock()
		return false
	}
	if _, ok := set[c.ID()]; !ok {
		r.mu.Unlock()
		return false
	}
	delete(set, c.ID())
	if n := len(set); n > 0 {
		r.mu.Unlock()
		logger.Debug("connection_removed", "user", user, "conn", c.ID(), "remaining", n)
		return false
	}
	delete(r.conns, user)
	edge := r.nextEdge(user, false)
	r.mu.Unlock()
	r.emit(edge)
	return true
}

// caller holds mu
func (r *Registry) nextEdge(user string, online bool) Edge {
	r.seq++
	return Edge{User: user, Online: online, At: r.now(), Seq: r.seq}
}

// emit waits until every earlier edge has been observed, then runs the
// observers with no registry lock held. Observers may call back into the
// registry but must not Register or Unregister synchronously.
func (r *Registry) emit(e Edge) {
	r.emitMu.Lock()
	for r.emitted+1 != e.Seq {
		r.emitCond.Wait()
	}
	observers := r.observers
	r.emitMu.Unlock()

	defer func() {
		r.emitMu.Lock()
		r.emitted = e.Seq
		r.emitCond.Broadcast()
		r.emitMu.Unlock()
	}()

	logger.Info("presence_edge", "user", e.User, "online", e.Online, "seq", e.Seq)
	for _, o := range observers {
		o(e)
	}
}

func (r *Registry) IsOnline(user string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns[normalize(user)]) > 0
}

// ConnectionsFor returns a snapshot of user's connections.
func (r *Registry) ConnectionsFor(user string) []Conn {
	r.mu.RLock()
	defer r.mu.RUnlock()
	set := r.conns[normalize(user)]
	out := make([]Conn, 0, len(set))
	for _, c := range set {
		out = append(out, c)
	}
	return out
}

func (r *Registry) OnlineUsers() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.conns))
	for u := range r.conns {
		out = append(out, u)
	}
	return out
}

// Count returns the number of online users and live connections.
func (r *Registry) Count() (users, conns int) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, set := range r.conns {
		conns += len(set)
	}
	return len(r.conns), conns
}

// Publish sends env to every connection of user except skipConnID and
// returns how many sends succeeded.
func (r *Registry) Publish(user string, env models.Envelope, skipConnID string) int {
	sent := 0
	for _, c := range r.ConnectionsFor(user) {
		if skipConnID != "" && c.ID() == skipConnID {
			continue
		}
		if err := c.Send(env); err != nil {
			logger.Warn("publish_failed", "user", user, "conn", c.ID(), "type", env.Type, "error", err)
			continue
		}
		sent++
	}
	return sent
}

// CloseAll closes every registered connection.
func (r *Registry) CloseAll() {
	r.mu.RLock()
	var all []Conn
	for _, set := range r.conns {
		for _, c := range set {
			all = append(all, c)
		}
	}
	r.mu.RUnlock()
	for _, c := range all {
		c.Close()
	}
}

func normalize(id string) string {
	return strings.ToLower(strings.TrimSpace(id))
}
