package client

import (
	"context"
	"errors"
	"sync"
	"time"

	"chatcore/pkg/state/logger"
)

var (
	// ErrOffline is returned by Run once every reconnect attempt failed.
	ErrOffline = errors.New("offline: reconnect attempts exhausted")
	// ErrUnauthorized means the server refused the credentials; retrying
	// with the same token is pointless.
	ErrUnauthorized = errors.New("unauthorized")
	ErrNotOffline   = errors.New("retry is only possible while offline")
)

type State int

const (
	Disconnected State = iota
	Connecting
	Connected
	Offline
)

func (s State) String() string {
	switch s {
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	case Offline:
		return "offline"
	default:
		return "disconnected"
	}
}

// Stream is one established push connection. Run blocks until it ends.
type Stream interface {
	Run(ctx context.Context) error
	Close() error
}

type DialFunc func(ctx context.Context) (Stream, error)

type ReconnectOption func(*Reconnector)

// WithStateHook observes every state transition.
func WithStateHook(fn func(from, to State)) ReconnectOption {
	return func(r *Reconnector) { r.onState = fn }
}

// WithConnectedHook runs after each successful dial, before reading.
func WithConnectedHook(fn func(ctx context.Context) error) ReconnectOption {
	return func(r *Reconnector) { r.onConnected = fn }
}

// Reconnector keeps a push stream alive with a fixed delay between dials
// and gives up after maxAttempts consecutive failures.
type Reconnector struct {
	dial        DialFunc
	delay       time.Duration
	maxAttempts int
	onState     func(from, to State)
	onConnected func(ctx context.Context) error

	mu       sync.Mutex
	state    State
	attempts int
}

func NewReconnector(dial DialFunc, delay time.Duration, maxAttempts int, opts ...ReconnectOption) *Reconnector {
	if maxAttempts <= 0 {
		maxAttempts = 1
	}
	r := &Reconnector{dial: dial, delay: delay, maxAttempts: maxAttempts}
	for _, o := range opts {
		o(r)
	}
	return r
}

func (r *Reconnector) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

func (r *Reconnector) Attempts() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.attempts
}

// Retry leaves Offline so a new Run starts with a fresh attempt budget.
func (r *Reconnector) Retry() error {
	r.mu.Lock()
	if r.state != Offline {
		r.mu.Unlock()
		return ErrNotOffline
	}
	r.attempts = 0
	r.mu.Unlock()
	r.setState(Disconnected)
	return nil
}

// Run dials and serves streams until ctx ends, the server rejects the
// credentials, or maxAttempts consecutive dials fail.
func (r *Reconnector) Run(ctx context.Context) error {
	if r.State() == Offline {
		return ErrOffline
	}
	for {
		if err := ctx.Err(); err != nil {
			r.setState(Disconnected)
			return err
		}
		r.setState(Connecting)
		s, err := r.dial(ctx)
		if err == nil {
			err = r.serve(ctx, s)
			if ctx.Err() != nil {
				r.setState(Disconnected)
				return ctx.Err()
			}
			logger.Info("push_stream_closed", "error", err)
		} else {
			logger.Warn("push_dial_failed", "error", err, "attempt", r.Attempts()+1)
		}
		if errors.Is(err, ErrUnauthorized) {
			r.setState(Offline)
			return err
		}
		r.setState(Disconnected)

		r.mu.Lock()
		r.attempts++
		exhausted := r.attempts >= r.maxAttempts
		r.mu.Unlock()
		if exhausted {
			r.setState(Offline)
			return ErrOffline
		}

		t := time.NewTimer(r.delay)
		select {
		case <-ctx.Done():
			t.Stop()
			r.setState(Disconnected)
			return ctx.Err()
		case <-t.C:
		}
	}
}

func (r *Reconnector) serve(ctx context.Context, s Stream) error {
	defer s.Close()
	r.mu.Lock()
	r.attempts = 0
	r.mu.Unlock()
	r.setState(Connected)
	if r.onConnected != nil {
		if err := r.onConnected(ctx); err != nil {
			logger.Warn("push_catch_up_failed", "error", err)
		}
	}
	return s.Run(ctx)
}

func (r *Reconnector) setState(to State) {
	r.mu.Lock()
	from := r.state
	r.state = to
	hook := r.onState
	r.mu.Unlock()
	if hook != nil && from != to {
		hook(from, to)
	}
}
