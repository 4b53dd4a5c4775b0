package app

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/valyala/fasthttp"

	"chatcore/internal/retention"
	"chatcore/pkg/api/auth"
	"chatcore/pkg/bot"
	"chatcore/pkg/config"
	"chatcore/pkg/delivery"
	"chatcore/pkg/presence"
	"chatcore/pkg/push"
	"chatcore/pkg/session"
	"chatcore/pkg/state"
	"chatcore/pkg/state/logger"
	"chatcore/pkg/state/sensor"
	"chatcore/pkg/store"
	"chatcore/pkg/telemetry"
	"chatcore/pkg/users"
)

const botQueueSize = 64

// App groups server state and components.
type App struct {
	eff       config.EffectiveConfigResult
	paths     state.Paths
	version   string
	commit    string
	buildDate string
	started   time.Time

	store     *store.Store
	registry  *session.Registry
	presence  *presence.Broadcaster
	delivery  *delivery.Coordinator
	users     *users.Service
	tokens    *auth.Tokens
	gateway   *auth.Gateway
	push      *push.Server
	bot       *bot.Agent
	retention *retention.Manager
	sensor    *sensor.Sensor

	// listenAddr overrides the configured address when set.
	listenAddr string

	mu      sync.Mutex
	srvFast *fasthttp.Server
	ln      net.Listener
	state   string
}

// New opens the store and wires every component. It does not listen; call
// Run for that.
func New(eff config.EffectiveConfigResult, paths state.Paths, version, commit, buildDate string) (*App, error) {
	cfg := eff.Config

	st, err := store.Open(paths.Store)
	if err != nil {
		return nil, fmt.Errorf("failed to open pebble at %s: %w", paths.Store, err)
	}

	a := &App{
		eff:       eff,
		paths:     paths,
		version:   version,
		commit:    commit,
		buildDate: buildDate,
		started:   time.Now(),
		store:     st,
		state:     "initialized",
	}

	var exempt []string
	if !cfg.Bot.Disabled {
		exempt = append(exempt, cfg.Bot.Email)
	}
	a.registry = session.NewRegistry(session.WithExempt(exempt...))
	a.presence = presence.New(a.registry, st, cfg.Presence.Scope,
		presence.WithAlwaysOnline(exempt...),
		presence.WithEmitHook(func(n int) { telemetry.PresenceEvents.Add(float64(n)) }),
	)
	a.presence.Attach(a.registry)
	a.registry.Observe(presence.RecordLastSeen(st))

	opts := []delivery.Option{delivery.WithLimits(delivery.Limits{
		DefaultLimit: cfg.History.DefaultLimit,
		MaxLimit:     cfg.History.MaxLimit,
	})}
	if !cfg.Bot.Disabled {
		opts = append(opts, delivery.WithBot(cfg.Bot.Email))
	}
	a.delivery = delivery.New(st, a.registry, a.presence, opts...)
	a.users = users.NewService(st, a.presence, nil)
	a.tokens = auth.NewTokens(cfg.Security.Token.Secret, cfg.Security.Token.TTL.Duration(), nil)
	a.gateway = auth.NewGateway(secConfig(cfg), a.tokens)
	a.push = push.NewServer(push.Config{
		SendQueueSize:  cfg.Push.SendQueueSize,
		PingInterval:   cfg.Push.PingInterval.Duration(),
		PongWait:       cfg.Push.PongWait.Duration(),
		WriteTimeout:   cfg.Push.WriteTimeout.Duration(),
		MaxMessageSize: cfg.Push.MaxMessageSize.Int64(),
		AllowedOrigins: append([]string{}, cfg.Security.CORS.AllowedOrigins...),
	}, a.registry, a.tokens, a.delivery, a.presence)

	if !cfg.Bot.Disabled {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := a.users.EnsureBot(ctx, cfg.Bot.Email, cfg.Bot.Name); err != nil {
			_ = st.Close()
			return nil, fmt.Errorf("seed bot user: %w", err)
		}
		a.bot = bot.NewAgent(cfg.Bot.Email, a.delivery, bot.NewResponder(cfg.Bot.Name, nil), cfg.Bot.ResponseDelay.Duration(), botQueueSize)
		a.delivery.SetBotHandler(a.bot.Handle)
	}

	a.retention = retention.NewManager(cfg.Retention, st, paths.Retention, nil)
	a.sensor = sensor.New(sensor.Config{
		Path:           paths.DB,
		PollInterval:   cfg.Sensor.PollInterval.Duration(),
		DiskHighPct:    cfg.Sensor.DiskHighPct,
		DiskLowPct:     cfg.Sensor.DiskLowPct,
		MemHighPct:     cfg.Sensor.MemHighPct,
		RecoveryWindow: cfg.Sensor.RecoveryWindow.Duration(),
	})
	return a, nil
}

// Run starts background workers and the http server, then blocks until ctx
// ends or the server fails.
func (a *App) Run(ctx context.Context) error {
	a.printBanner()

	if a.bot != nil {
		a.bot.Start(ctx)
	}
	a.retention.Start(ctx)
	a.sensor.Start()

	errCh, err := a.startHTTP()
	if err != nil {
		return err
	}
	a.setState("running")
	logger.Info("server_started", "addr", a.Addr(), "version", a.version)

	select {
	case <-ctx.Done():
		return nil
	case err := <-errCh:
		return err
	}
}

// Addr is the bound listen address once Run started serving.
func (a *App) Addr() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.ln == nil {
		return ""
	}
	return a.ln.Addr().String()
}

func (a *App) State() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

func (a *App) setState(s string) {
	a.mu.Lock()
	a.state = s
	a.mu.Unlock()
}

func secConfig(cfg *config.Config) auth.SecConfig {
	sec := auth.SecConfig{
		AllowedOrigins: append([]string{}, cfg.Security.CORS.AllowedOrigins...),
		RPS:            cfg.Security.RateLimit.RPS,
		Burst:          cfg.Security.RateLimit.Burst,
		IPWhitelist:    append([]string{}, cfg.Security.IPWhitelist...),
		AdminKeys:      map[string]struct{}{},
	}
	for _, k := range cfg.Security.APIKeys.Admin {
		sec.AdminKeys[k] = struct{}{}
	}
	return sec
}
