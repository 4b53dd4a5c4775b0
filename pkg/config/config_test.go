package config

import (
	"flag"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "cfg.yaml")
	require.NoError(t, os.WriteFile(p, []byte(body), 0o600))
	return p
}

func TestLoadConfigFileParsesHumanValues(t *testing.T) {
	p := writeConfig(t, `
server:
  port: 9090
  db_path: /tmp/chat
  max_body_size: 2MB
push:
  send_queue_size: 8
  ping_interval: 5s
  pong_wait: 15
presence:
  scope: all
retention:
  enabled: true
  period: 7d
`)
	cfg, err := LoadConfigFile(p)
	require.NoError(t, err)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, int64(2_000_000), cfg.Server.MaxBodySize.Int64())
	assert.Equal(t, 8, cfg.Push.SendQueueSize)
	assert.Equal(t, 5*time.Second, cfg.Push.PingInterval.Duration())
	assert.Equal(t, 15*time.Second, cfg.Push.PongWait.Duration())
	assert.Equal(t, 7*24*time.Hour, cfg.Retention.Period.Duration())
	assert.Equal(t, "0.0.0.0:9090", cfg.Addr())
}

func TestApplyDefaults(t *testing.T) {
	cfg := &Config{}
	require.NoError(t, cfg.ApplyDefaults())
	assert.Equal(t, PresenceScopePartners, cfg.Presence.Scope)
	assert.Equal(t, defaultSendQueueSize, cfg.Push.SendQueueSize)
	assert.Equal(t, defaultBotEmail, cfg.Bot.Email)
	assert.Equal(t, defaultHistoryLimit, cfg.History.DefaultLimit)
	assert.Equal(t, defaultRetentionCron, cfg.Retention.Cron)
	assert.Equal(t, defaultReconnectAttempts, cfg.Client.ReconnectAttempts)
}

func TestApplyDefaultsRejectsBadValues(t *testing.T) {
	tests := []struct {
		name string
		mut  func(c *Config)
	}{
		{"bad scope", func(c *Config) { c.Presence.Scope = "friends" }},
		{"bad cron", func(c *Config) { c.Retention.Cron = "every tuesday" }},
		{"pong shorter than ping", func(c *Config) {
			c.Push.PingInterval = Duration(time.Minute)
			c.Push.PongWait = Duration(time.Second)
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{}
			tt.mut(cfg)
			assert.Error(t, cfg.ApplyDefaults())
		})
	}
}

func TestValidateConfigRequiresSecret(t *testing.T) {
	eff := EffectiveConfigResult{Config: &Config{}, DBPath: t.TempDir()}
	require.Error(t, ValidateConfig(eff))

	eff.Config.Security.Token.Secret = "0123456789abcdef"
	require.NoError(t, ValidateConfig(eff))
}

func TestValidateConfigReportsEveryProblem(t *testing.T) {
	cfg := &Config{}
	cfg.Server.Port = 70000
	cfg.Server.TLS.CertFile = "cert.pem"
	cfg.Security.Token.Secret = "short"
	cfg.Security.APIKeys.Admin = []string{" "}
	cfg.Bot.Email = "not an email"
	err := ValidateConfig(EffectiveConfigResult{Config: cfg})
	require.Error(t, err)
	for _, want := range []string{"database path", "server.port", "incomplete TLS", "token.secret", "empty key", "bot.email"} {
		assert.Contains(t, err.Error(), want)
	}

	cfg = &Config{}
	cfg.Security.Token.Secret = "0123456789abcdef"
	cfg.Security.APIKeys.Admin = []string{"0123456789abcdef"}
	err = ValidateConfig(EffectiveConfigResult{Config: cfg, DBPath: t.TempDir()})
	assert.ErrorContains(t, err, "must differ")

	cfg.Security.APIKeys.Admin = []string{"admin-key"}
	cfg.Bot.Disabled = true
	cfg.Bot.Email = "not an email"
	assert.NoError(t, ValidateConfig(EffectiveConfigResult{Config: cfg, DBPath: t.TempDir()}), "disabled bot is not checked")
}

func TestParseConfigEnvs(t *testing.T) {
	t.Setenv("CHATCORE_ADDR", "127.0.0.1:7000")
	t.Setenv("CHATCORE_TOKEN_SECRET", "env-secret-value-123")
	t.Setenv("CHATCORE_PRESENCE_SCOPE", "all")
	t.Setenv("CHATCORE_PUSH_QUEUE_SIZE", "16")
	t.Setenv("CHATCORE_CORS_ORIGINS", "http://a.test, http://b.test")

	cfg, used := ParseConfigEnvs()
	require.True(t, used)
	assert.Equal(t, "127.0.0.1", cfg.Server.Address)
	assert.Equal(t, 7000, cfg.Server.Port)
	assert.Equal(t, "env-secret-value-123", cfg.Security.Token.Secret)
	assert.Equal(t, "all", cfg.Presence.Scope)
	assert.Equal(t, 16, cfg.Push.SendQueueSize)
	assert.Equal(t, []string{"http://a.test", "http://b.test"}, cfg.Security.CORS.AllowedOrigins)
}

func TestLoadEffectiveConfigPrecedence(t *testing.T) {
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	flags, err := ParseConfigFlagsFrom(fs, []string{"--addr", "127.0.0.1:9999"})
	require.NoError(t, err)

	fileCfg := &Config{}
	fileCfg.Server.Port = 8081
	fileCfg.Server.DBPath = "/data/file"
	envCfg := &Config{}
	envCfg.Server.DBPath = "/data/env"

	eff, err := LoadEffectiveConfig(flags, fileCfg, true, envCfg)
	require.NoError(t, err)
	assert.Equal(t, "flags", eff.Source)
	assert.Equal(t, "127.0.0.1:9999", eff.Addr)
	assert.Equal(t, "/data/file", eff.DBPath)

	eff, err = LoadEffectiveConfig(Flags{DB: "./.database", Set: map[string]bool{}}, &Config{}, false, envCfg)
	require.NoError(t, err)
	assert.Equal(t, "env", eff.Source)
	assert.Equal(t, "/data/env", eff.DBPath)
}

func TestLoadEffectiveConfigMissingExplicitFile(t *testing.T) {
	flags := Flags{Config: "/nope.yaml", Set: map[string]bool{"config": true}}
	_, err := LoadEffectiveConfig(flags, &Config{}, false, &Config{})
	assert.Error(t, err)
}

func TestParseConfigFileMissingIsNotError(t *testing.T) {
	flags := Flags{Config: filepath.Join(t.TempDir(), "missing.yaml"), Set: map[string]bool{}}
	cfg, found, err := ParseConfigFile(flags)
	require.NoError(t, err)
	assert.False(t, found)
	assert.NotNil(t, cfg)
}
