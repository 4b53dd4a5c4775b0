package retention

import (
	"context"
	"errors"
	"sync"
	"time"

	"chatcore/pkg/config"
	"chatcore/pkg/models"
	"chatcore/pkg/state/logger"
	"chatcore/pkg/timeutil"

	"github.com/adhocore/gronx"
)

var ErrRunning = errors.New("retention run already in progress")

// Store is the message access a scrub run needs.
type Store interface {
	DeletedMessages(ctx context.Context, fn func(*models.Message) bool) error
	UpdateMessage(ctx context.Context, m *models.Message) error
}

// Manager runs scrubs on a cron schedule.
type Manager struct {
	cfg      config.RetentionConfig
	store    Store
	leaseDir string
	now      timeutil.Clock

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	done    chan struct{}
}

func NewManager(cfg config.RetentionConfig, st Store, leaseDir string, now timeutil.Clock) *Manager {
	return &Manager{cfg: cfg, store: st, leaseDir: leaseDir, now: timeutil.OrNow(now)}
}

// Start launches the schedule loop. It is a no-op when retention is off.
func (m *Manager) Start(ctx context.Context) {
	if !m.cfg.Enabled {
		logger.Info("retention_disabled")
		return
	}
	ctx, cancel := context.WithCancel(ctx)
	m.mu.Lock()
	m.cancel = cancel
	m.done = make(chan struct{})
	m.mu.Unlock()
	logger.Info("retention_enabled", "cron", m.cfg.Cron, "period", m.cfg.Period.Duration())
	go m.scheduleLoop(ctx)
}

// Stop cancels the loop and waits for an in-flight run.
func (m *Manager) Stop() {
	m.mu.Lock()
	cancel, done := m.cancel, m.done
	m.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// RunNow performs one run outside the schedule.
func (m *Manager) RunNow(ctx context.Context) (Report, error) {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return Report{}, ErrRunning
	}
	m.running = true
	m.mu.Unlock()
	defer func() {
		m.mu.Lock()
		m.running = false
		m.mu.Unlock()
	}()
	return m.runOnce(ctx)
}

func (m *Manager) scheduleLoop(ctx context.Context) {
	defer close(m.done)
	for {
		next, err := gronx.NextTickAfter(m.cfg.Cron, m.now(), false)
		wait := time.Until(next)
		if err != nil {
			logger.Error("retention_nexttick_failed", "cron", m.cfg.Cron, "error", err)
			wait = 30 * time.Second
		}
		if wait < time.Second {
			wait = time.Second
		}
		t := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			t.Stop()
			return
		case <-t.C:
		}
		if err != nil {
			continue
		}
		if _, err := m.RunNow(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("retention_run_error", "error", err)
		}
	}
}
