package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/adhocore/gronx"
	"github.com/goccy/go-yaml"
)

const (
	defaultPort        = 8080
	defaultMaxBodySize = 1 * 1024 * 1024
	defaultReadTimeout = 10 * time.Second
	defaultIdleTimeout = 30 * time.Second
	defaultTokenTTL    = 7 * 24 * time.Hour
	// push defaults
	defaultSendQueueSize  = 64
	defaultPingInterval   = 30 * time.Second
	defaultPongWait       = 60 * time.Second
	defaultPushWriteTO    = 10 * time.Second
	defaultMaxMessageSize = 64 * 1024
	// bot defaults
	defaultBotEmail = "bot@chatcore.local"
	defaultBotName  = "Assistant"
	defaultBotDelay = 1 * time.Second
	// history defaults
	defaultHistoryLimit = 50
	defaultHistoryMax   = 100
	// retention defaults
	defaultRetentionLockTTL = 300 * time.Second
	defaultRetentionCron    = "0 2 * * *"
	defaultRetentionPeriod  = 30 * 24 * time.Hour
	// sensor defaults
	defaultSensorPoll     = 10 * time.Second
	defaultDiskHighPct    = 90
	defaultDiskLowPct     = 80
	defaultMemHighPct     = 90
	defaultRecoveryWindow = 1 * time.Minute
	// client defaults
	defaultReconcileWindow   = 10 * time.Second
	defaultReconnectDelay    = 3 * time.Second
	defaultReconnectAttempts = 5

	PresenceScopePartners = "partners"
	PresenceScopeAll      = "all"
)

// Addr returns the HTTP server address as host:port.
func (c *Config) Addr() string {
	addr := c.Server.Address
	if addr == "" {
		addr = "0.0.0.0"
	}
	port := c.Server.Port
	if port == 0 {
		port = defaultPort
	}
	return fmt.Sprintf("%s:%d", addr, port)
}

// LoadConfigFile reads and parses a config file.
func LoadConfigFile(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cfg Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	return &cfg, nil
}

// ApplyDefaults fills in missing values and validates enumerations. It
// mutates the receiver.
func (c *Config) ApplyDefaults() error {
	if c.Server.MaxBodySize.Int64() == 0 {
		c.Server.MaxBodySize = SizeBytes(defaultMaxBodySize)
	}
	if c.Server.ReadTimeout.Duration() == 0 {
		c.Server.ReadTimeout = Duration(defaultReadTimeout)
	}
	if c.Server.WriteTimeout.Duration() == 0 {
		c.Server.WriteTimeout = Duration(defaultReadTimeout)
	}
	if c.Server.IdleTimeout.Duration() == 0 {
		c.Server.IdleTimeout = Duration(defaultIdleTimeout)
	}

	// Security defaults: rate limiting
	if c.Security.RateLimit.RPS <= 0 {
		c.Security.RateLimit.RPS = 1000
	}
	if c.Security.RateLimit.Burst <= 0 {
		c.Security.RateLimit.Burst = 1000
	}
	if c.Security.Token.TTL.Duration() == 0 {
		c.Security.Token.TTL = Duration(defaultTokenTTL)
	}

	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}

	// Push defaults
	if c.Push.SendQueueSize <= 0 {
		c.Push.SendQueueSize = defaultSendQueueSize
	}
	if c.Push.PingInterval.Duration() == 0 {
		c.Push.PingInterval = Duration(defaultPingInterval)
	}
	if c.Push.PongWait.Duration() == 0 {
		c.Push.PongWait = Duration(defaultPongWait)
	}
	if c.Push.PongWait.Duration() <= c.Push.PingInterval.Duration() {
		return fmt.Errorf("push.pong_wait (%s) must exceed push.ping_interval (%s)", c.Push.PongWait.Duration(), c.Push.PingInterval.Duration())
	}
	if c.Push.WriteTimeout.Duration() == 0 {
		c.Push.WriteTimeout = Duration(defaultPushWriteTO)
	}
	if c.Push.MaxMessageSize.Int64() == 0 {
		c.Push.MaxMessageSize = SizeBytes(defaultMaxMessageSize)
	}

	// Presence
	c.Presence.Scope = strings.ToLower(strings.TrimSpace(c.Presence.Scope))
	switch c.Presence.Scope {
	case "":
		c.Presence.Scope = PresenceScopePartners
	case PresenceScopePartners, PresenceScopeAll:
	default:
		return fmt.Errorf("invalid presence.scope %q: want %q or %q", c.Presence.Scope, PresenceScopePartners, PresenceScopeAll)
	}

	// Bot
	c.Bot.Email = strings.ToLower(strings.TrimSpace(c.Bot.Email))
	if c.Bot.Email == "" {
		c.Bot.Email = defaultBotEmail
	}
	if c.Bot.Name == "" {
		c.Bot.Name = defaultBotName
	}
	if c.Bot.ResponseDelay.Duration() == 0 {
		c.Bot.ResponseDelay = Duration(defaultBotDelay)
	}

	// History
	if c.History.MaxLimit <= 0 {
		c.History.MaxLimit = defaultHistoryMax
	}
	if c.History.DefaultLimit <= 0 {
		c.History.DefaultLimit = defaultHistoryLimit
	}
	if c.History.DefaultLimit > c.History.MaxLimit {
		c.History.DefaultLimit = c.History.MaxLimit
	}

	// Retention
	if c.Retention.LockTTL.Duration() == 0 {
		c.Retention.LockTTL = Duration(defaultRetentionLockTTL)
	}
	if c.Retention.Cron == "" {
		c.Retention.Cron = defaultRetentionCron
	}
	if c.Retention.Period.Duration() == 0 {
		c.Retention.Period = Duration(defaultRetentionPeriod)
	}
	if !gronx.IsValid(c.Retention.Cron) {
		return fmt.Errorf("invalid retention cron expression: %s", c.Retention.Cron)
	}

	// Sensor
	if c.Sensor.PollInterval.Duration() == 0 {
		c.Sensor.PollInterval = Duration(defaultSensorPoll)
	}
	if c.Sensor.DiskHighPct <= 0 {
		c.Sensor.DiskHighPct = defaultDiskHighPct
	}
	if c.Sensor.DiskLowPct <= 0 || c.Sensor.DiskLowPct > c.Sensor.DiskHighPct {
		c.Sensor.DiskLowPct = min(defaultDiskLowPct, c.Sensor.DiskHighPct)
	}
	if c.Sensor.MemHighPct <= 0 {
		c.Sensor.MemHighPct = defaultMemHighPct
	}
	if c.Sensor.RecoveryWindow.Duration() == 0 {
		c.Sensor.RecoveryWindow = Duration(defaultRecoveryWindow)
	}

	// Client
	if c.Client.ReconcileWindow.Duration() == 0 {
		c.Client.ReconcileWindow = Duration(defaultReconcileWindow)
	}
	if c.Client.ReconnectDelay.Duration() == 0 {
		c.Client.ReconnectDelay = Duration(defaultReconnectDelay)
	}
	if c.Client.ReconnectAttempts <= 0 {
		c.Client.ReconnectAttempts = defaultReconnectAttempts
	}
	return nil
}

// ResolveConfigPath returns the config file path, preferring flag, then env.
func ResolveConfigPath(flagPath string, flagSet bool) string {
	if flagSet {
		return flagPath
	}
	if p := os.Getenv("CHATCORE_CONFIG"); p != "" {
		return p
	}
	return flagPath
}
