package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
)

// Config is the main configuration struct.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Security  SecurityConfig  `yaml:"security"`
	Logging   LoggingConfig   `yaml:"logging"`
	Push      PushConfig      `yaml:"push"`
	Presence  PresenceConfig  `yaml:"presence"`
	Bot       BotConfig       `yaml:"bot"`
	History   HistoryConfig   `yaml:"history"`
	Retention RetentionConfig `yaml:"retention"`
	Sensor    SensorConfig    `yaml:"sensor"`
	Client    ClientConfig    `yaml:"client"`
}

// ServerConfig holds http and tls settings.
type ServerConfig struct {
	Address      string    `yaml:"address"`
	Port         int       `yaml:"port"`
	DBPath       string    `yaml:"db_path"`
	TLS          TLSConfig `yaml:"tls"`
	MaxBodySize  SizeBytes `yaml:"max_body_size"`
	ReadTimeout  Duration  `yaml:"read_timeout"`
	WriteTimeout Duration  `yaml:"write_timeout"`
	IdleTimeout  Duration  `yaml:"idle_timeout"`
}

// TLSConfig holds TLS certificate configuration.
type TLSConfig struct {
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
}

// SecurityConfig holds security related settings.
type SecurityConfig struct {
	CORS struct {
		AllowedOrigins []string `yaml:"allowed_origins"`
	} `yaml:"cors"`
	RateLimit struct {
		RPS   float64 `yaml:"rps"`
		Burst int     `yaml:"burst"`
	} `yaml:"rate_limit"`
	IPWhitelist []string `yaml:"ip_whitelist"`
	APIKeys     struct {
		Admin []string `yaml:"admin"`
	} `yaml:"api_keys"`
	Token TokenConfig `yaml:"token"`
}

// TokenConfig controls user access tokens.
type TokenConfig struct {
	Secret string   `yaml:"secret"`
	TTL    Duration `yaml:"ttl"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level string `yaml:"level"`
	Audit bool   `yaml:"audit"`
}

// PushConfig tunes the per-connection websocket channel.
type PushConfig struct {
	SendQueueSize  int       `yaml:"send_queue_size"`
	PingInterval   Duration  `yaml:"ping_interval"`
	PongWait       Duration  `yaml:"pong_wait"`
	WriteTimeout   Duration  `yaml:"write_timeout"`
	MaxMessageSize SizeBytes `yaml:"max_message_size"`
}

// PresenceConfig selects who receives presence changes.
type PresenceConfig struct {
	// Scope is "partners" or "all".
	Scope string `yaml:"scope"`
}

// BotConfig describes the automated correspondent.
type BotConfig struct {
	Disabled      bool     `yaml:"disabled"`
	Email         string   `yaml:"email"`
	Name          string   `yaml:"name"`
	ResponseDelay Duration `yaml:"response_delay"`
}

// HistoryConfig bounds conversation page sizes.
type HistoryConfig struct {
	DefaultLimit int `yaml:"default_limit"`
	MaxLimit     int `yaml:"max_limit"`
}

// RetentionConfig holds configuration for the deleted-message scrubber.
type RetentionConfig struct {
	Enabled bool     `yaml:"enabled"`
	Cron    string   `yaml:"cron"`
	Period  Duration `yaml:"period"`
	DryRun  bool     `yaml:"dry_run"`
	LockTTL Duration `yaml:"lock_ttl"`
}

// SensorConfig tunes the disk and heap watcher.
type SensorConfig struct {
	PollInterval   Duration `yaml:"poll_interval"`
	DiskHighPct    int      `yaml:"disk_high_pct"`
	DiskLowPct     int      `yaml:"disk_low_pct"`
	MemHighPct     int      `yaml:"mem_high_pct"`
	RecoveryWindow Duration `yaml:"recovery_window"`
}

// ClientConfig holds defaults for the bundled client.
type ClientConfig struct {
	ReconcileWindow   Duration `yaml:"reconcile_window"`
	ReconnectDelay    Duration `yaml:"reconnect_delay"`
	ReconnectAttempts int      `yaml:"reconnect_attempts"`
}

// SizeBytes represents a number of bytes, unmarshaled from human-friendly strings like "64KB" or plain integers.
type SizeBytes int64

func (s *SizeBytes) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var raw interface{}
	if err := unmarshal(&raw); err != nil {
		return err
	}
	v, err := ParseSizeBytes(scalarString(raw))
	if err != nil {
		return err
	}
	*s = v
	return nil
}

func (s SizeBytes) Int64() int64 { return int64(s) }

// ParseSizeBytes accepts "64KB", "1MiB" or a plain byte count.
func ParseSizeBytes(raw string) (SizeBytes, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, nil
	}
	if v, err := humanize.ParseBytes(raw); err == nil {
		return SizeBytes(v), nil
	}
	if i, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return SizeBytes(i), nil
	}
	return 0, fmt.Errorf("invalid size value: %q", raw)
}

// Duration is a wrapper around time.Duration that supports YAML parsing from strings like "100ms" or plain numbers (interpreted as seconds).
type Duration time.Duration

func (d *Duration) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var raw interface{}
	if err := unmarshal(&raw); err != nil {
		return err
	}
	v, err := ParseDuration(scalarString(raw))
	if err != nil {
		return err
	}
	*d = v
	return nil
}

func (d Duration) Duration() time.Duration { return time.Duration(d) }

// ParseDuration accepts Go duration strings, a "d" day suffix, or numeric seconds.
func ParseDuration(raw string) (Duration, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, nil
	}
	if td, err := time.ParseDuration(raw); err == nil {
		return Duration(td), nil
	}
	if strings.HasSuffix(raw, "d") {
		if n, err := strconv.ParseFloat(strings.TrimSuffix(raw, "d"), 64); err == nil {
			return Duration(time.Duration(n * float64(24*time.Hour))), nil
		}
	}
	if f, err := strconv.ParseFloat(raw, 64); err == nil {
		return Duration(time.Duration(f * float64(time.Second))), nil
	}
	return 0, fmt.Errorf("invalid duration value: %q", raw)
}

func scalarString(raw interface{}) string {
	if raw == nil {
		return ""
	}
	if s, ok := raw.(string); ok {
		return s
	}
	return fmt.Sprint(raw)
}
