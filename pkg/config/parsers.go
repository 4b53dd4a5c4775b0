package config

import (
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"net"
	"os"
	"strconv"
	"strings"
)

// holds parsed command-line flag values and which were set
type Flags struct {
	Addr   string
	DB     string
	Config string
	Set    map[string]bool
}

// holds the result of LoadEffectiveConfig
type EffectiveConfigResult struct {
	Config *Config
	Addr   string
	DBPath string
	Source string // "flags", "config", or "env"
}

// parses command-line flags from os.Args
func ParseConfigFlags() Flags {
	f, err := ParseConfigFlagsFrom(flag.CommandLine, os.Args[1:])
	if err != nil {
		os.Exit(2)
	}
	return f
}

// parses args into fs; records which flags were set explicitly
func ParseConfigFlagsFrom(fset *flag.FlagSet, args []string) (Flags, error) {
	addrPtr := fset.String("addr", ":8080", "HTTP listen address")
	dbPtr := fset.String("db", "./.database", "Pebble DB path")
	cfgPtr := fset.String("config", "./config.yaml", "Path to config file")
	if err := fset.Parse(args); err != nil {
		return Flags{}, err
	}

	setFlags := make(map[string]bool)
	fset.Visit(func(f *flag.Flag) { setFlags[f.Name] = true })

	return Flags{Addr: *addrPtr, DB: *dbPtr, Config: *cfgPtr, Set: setFlags}, nil
}

// loads config from file, returns config, found bool, and error
func ParseConfigFile(flags Flags) (*Config, bool, error) {
	cfgPath := ResolveConfigPath(flags.Config, flags.Set["config"])
	cfg, err := LoadConfigFile(cfgPath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return &Config{}, false, nil
		}
		return nil, false, err
	}
	return cfg, true, nil
}

// loads CHATCORE_* environment variables into a new Config; reports whether any were set
func ParseConfigEnvs() (*Config, bool) {
	envs := map[string]string{
		"ADDR":               os.Getenv("CHATCORE_ADDR"),
		"SERVER_ADDRESS":     os.Getenv("CHATCORE_SERVER_ADDRESS"),
		"SERVER_PORT":        os.Getenv("CHATCORE_SERVER_PORT"),
		"DB_PATH":            os.Getenv("CHATCORE_DB_PATH"),
		"MAX_BODY_SIZE":      os.Getenv("CHATCORE_MAX_BODY_SIZE"),
		"TLS_CERT":           os.Getenv("CHATCORE_TLS_CERT"),
		"TLS_KEY":            os.Getenv("CHATCORE_TLS_KEY"),
		"CORS_ORIGINS":       os.Getenv("CHATCORE_CORS_ORIGINS"),
		"RATE_RPS":           os.Getenv("CHATCORE_RATE_RPS"),
		"RATE_BURST":         os.Getenv("CHATCORE_RATE_BURST"),
		"IP_WHITELIST":       os.Getenv("CHATCORE_IP_WHITELIST"),
		"API_ADMIN_KEYS":     os.Getenv("CHATCORE_API_ADMIN_KEYS"),
		"TOKEN_SECRET":       os.Getenv("CHATCORE_TOKEN_SECRET"),
		"TOKEN_TTL":          os.Getenv("CHATCORE_TOKEN_TTL"),
		"LOG_LEVEL":          os.Getenv("CHATCORE_LOG_LEVEL"),
		"LOG_AUDIT":          os.Getenv("CHATCORE_LOG_AUDIT"),
		"PUSH_QUEUE_SIZE":    os.Getenv("CHATCORE_PUSH_QUEUE_SIZE"),
		"PUSH_PING_INTERVAL": os.Getenv("CHATCORE_PUSH_PING_INTERVAL"),
		"PUSH_PONG_WAIT":     os.Getenv("CHATCORE_PUSH_PONG_WAIT"),
		"PUSH_WRITE_TIMEOUT": os.Getenv("CHATCORE_PUSH_WRITE_TIMEOUT"),
		"PUSH_MAX_MESSAGE":   os.Getenv("CHATCORE_PUSH_MAX_MESSAGE"),
		"PRESENCE_SCOPE":     os.Getenv("CHATCORE_PRESENCE_SCOPE"),
		"BOT_DISABLED":       os.Getenv("CHATCORE_BOT_DISABLED"),
		"BOT_EMAIL":          os.Getenv("CHATCORE_BOT_EMAIL"),
		"BOT_NAME":           os.Getenv("CHATCORE_BOT_NAME"),
		"BOT_RESPONSE_DELAY": os.Getenv("CHATCORE_BOT_RESPONSE_DELAY"),
		"RETENTION_ENABLED":  os.Getenv("CHATCORE_RETENTION_ENABLED"),
		"RETENTION_CRON":     os.Getenv("CHATCORE_RETENTION_CRON"),
		"RETENTION_PERIOD":   os.Getenv("CHATCORE_RETENTION_PERIOD"),
		"RETENTION_DRY_RUN":  os.Getenv("CHATCORE_RETENTION_DRY_RUN"),
		"RETENTION_LOCK_TTL": os.Getenv("CHATCORE_RETENTION_LOCK_TTL"),
		"SENSOR_INTERVAL":    os.Getenv("CHATCORE_SENSOR_INTERVAL"),
		"SENSOR_DISK_HIGH":   os.Getenv("CHATCORE_SENSOR_DISK_HIGH"),
	}

	envUsed := false
	for _, v := range envs {
		if v != "" {
			envUsed = true
			break
		}
	}
	envCfg := &Config{}

	parseList := func(v string) []string {
		parts := []string{}
		for _, p := range strings.Split(v, ",") {
			if s := strings.TrimSpace(p); s != "" {
				parts = append(parts, s)
			}
		}
		return parts
	}
	parseBool := func(v string) bool {
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "1", "true", "yes":
			return true
		default:
			return false
		}
	}
	parseInt := func(v string) int {
		n, _ := strconv.Atoi(strings.TrimSpace(v))
		return n
	}
	parseDuration := func(v string) Duration {
		d, _ := ParseDuration(v)
		return d
	}

	if v := envs["ADDR"]; v != "" {
		if h, p, err := net.SplitHostPort(v); err == nil {
			envCfg.Server.Address = h
			envCfg.Server.Port = parseInt(p)
		} else {
			envCfg.Server.Address = v
		}
	} else {
		envCfg.Server.Address = envs["SERVER_ADDRESS"]
		if port := envs["SERVER_PORT"]; port != "" {
			envCfg.Server.Port = parseInt(port)
		}
	}
	envCfg.Server.DBPath = envs["DB_PATH"]
	if v := envs["MAX_BODY_SIZE"]; v != "" {
		envCfg.Server.MaxBodySize, _ = ParseSizeBytes(v)
	}
	envCfg.Server.TLS.CertFile = envs["TLS_CERT"]
	envCfg.Server.TLS.KeyFile = envs["TLS_KEY"]

	if v := envs["CORS_ORIGINS"]; v != "" {
		envCfg.Security.CORS.AllowedOrigins = parseList(v)
	}
	if v := envs["RATE_RPS"]; v != "" {
		if f, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil {
			envCfg.Security.RateLimit.RPS = f
		}
	}
	if v := envs["RATE_BURST"]; v != "" {
		envCfg.Security.RateLimit.Burst = parseInt(v)
	}
	if v := envs["IP_WHITELIST"]; v != "" {
		envCfg.Security.IPWhitelist = parseList(v)
	}
	if v := envs["API_ADMIN_KEYS"]; v != "" {
		envCfg.Security.APIKeys.Admin = parseList(v)
	}
	envCfg.Security.Token.Secret = envs["TOKEN_SECRET"]
	if v := envs["TOKEN_TTL"]; v != "" {
		envCfg.Security.Token.TTL = parseDuration(v)
	}

	envCfg.Logging.Level = strings.TrimSpace(envs["LOG_LEVEL"])
	if v := envs["LOG_AUDIT"]; v != "" {
		envCfg.Logging.Audit = parseBool(v)
	}

	if v := envs["PUSH_QUEUE_SIZE"]; v != "" {
		envCfg.Push.SendQueueSize = parseInt(v)
	}
	if v := envs["PUSH_PING_INTERVAL"]; v != "" {
		envCfg.Push.PingInterval = parseDuration(v)
	}
	if v := envs["PUSH_PONG_WAIT"]; v != "" {
		envCfg.Push.PongWait = parseDuration(v)
	}
	if v := envs["PUSH_WRITE_TIMEOUT"]; v != "" {
		envCfg.Push.WriteTimeout = parseDuration(v)
	}
	if v := envs["PUSH_MAX_MESSAGE"]; v != "" {
		envCfg.Push.MaxMessageSize, _ = ParseSizeBytes(v)
	}
	envCfg.Presence.Scope = envs["PRESENCE_SCOPE"]

	if v := envs["BOT_DISABLED"]; v != "" {
		envCfg.Bot.Disabled = parseBool(v)
	}
	envCfg.Bot.Email = envs["BOT_EMAIL"]
	envCfg.Bot.Name = envs["BOT_NAME"]
	if v := envs["BOT_RESPONSE_DELAY"]; v != "" {
		envCfg.Bot.ResponseDelay = parseDuration(v)
	}

	if v := envs["RETENTION_ENABLED"]; v != "" {
		envCfg.Retention.Enabled = parseBool(v)
	}
	envCfg.Retention.Cron = envs["RETENTION_CRON"]
	if v := envs["RETENTION_PERIOD"]; v != "" {
		envCfg.Retention.Period = parseDuration(v)
	}
	if v := envs["RETENTION_DRY_RUN"]; v != "" {
		envCfg.Retention.DryRun = parseBool(v)
	}
	if v := envs["RETENTION_LOCK_TTL"]; v != "" {
		envCfg.Retention.LockTTL = parseDuration(v)
	}
	if v := envs["SENSOR_INTERVAL"]; v != "" {
		envCfg.Sensor.PollInterval = parseDuration(v)
	}
	if v := envs["SENSOR_DISK_HIGH"]; v != "" {
		envCfg.Sensor.DiskHighPct = parseInt(v)
	}

	return envCfg, envUsed
}

// picks the config source: an explicit --config or an existing file wins,
// otherwise env. --addr and --db always override the chosen source.
func LoadEffectiveConfig(flags Flags, fileCfg *Config, fileExists bool, envCfg *Config) (EffectiveConfigResult, error) {
	var res EffectiveConfigResult

	switch {
	case flags.Set["config"] && !fileExists:
		return res, fmt.Errorf("config file %s not found", flags.Config)
	case fileExists:
		res.Config = fileCfg
		res.Source = "config"
	default:
		res.Config = envCfg
		res.Source = "env"
	}
	if res.Config == nil {
		res.Config = &Config{}
	}

	if flags.Set["addr"] {
		host, port := splitAddr(flags.Addr)
		res.Config.Server.Address = host
		res.Config.Server.Port = port
		res.Source = "flags"
	}
	if flags.Set["db"] {
		res.Config.Server.DBPath = flags.DB
		res.Source = "flags"
	}
	if strings.TrimSpace(res.Config.Server.DBPath) == "" {
		res.Config.Server.DBPath = flags.DB
	}

	res.Addr = res.Config.Addr()
	res.DBPath = res.Config.Server.DBPath
	return res, nil
}

// splits host:port; a bare ":port" yields an empty host
func splitAddr(a string) (string, int) {
	if a == "" {
		return "", 0
	}
	h, p, err := net.SplitHostPort(a)
	if err != nil {
		return a, 0
	}
	pi, _ := strconv.Atoi(p)
	return h, pi
}
