package config

import (
	"errors"
	"fmt"
	"net/mail"
	"os"
	"strings"
)

const minTokenSecretLen = 16

// ValidateConfig rejects settings the server cannot start with, reporting
// every problem at once, then applies defaults.
func ValidateConfig(eff EffectiveConfigResult) error {
	cfg := eff.Config
	if cfg == nil {
		return errors.New("effective config is nil")
	}

	var errs []error
	if eff.DBPath == "" {
		errs = append(errs, errors.New("database path is empty: set --db flag, CHATCORE_DB_PATH env, or server.db_path in config"))
	}
	if p := cfg.Server.Port; p < 0 || p > 65535 {
		errs = append(errs, fmt.Errorf("server.port %d out of range", p))
	}
	errs = append(errs, checkTLS(cfg.Server.TLS)...)

	secret := cfg.Security.Token.Secret
	if len(secret) < minTokenSecretLen {
		errs = append(errs, fmt.Errorf("security.token.secret must be at least %d bytes: set it in config or CHATCORE_TOKEN_SECRET", minTokenSecretLen))
	}
	for _, k := range cfg.Security.APIKeys.Admin {
		switch {
		case strings.TrimSpace(k) == "":
			errs = append(errs, errors.New("security.api_keys.admin contains an empty key"))
		case k == secret:
			errs = append(errs, errors.New("admin api key must differ from security.token.secret"))
		}
	}

	if bot := strings.TrimSpace(cfg.Bot.Email); !cfg.Bot.Disabled && bot != "" {
		if _, err := mail.ParseAddress(bot); err != nil {
			errs = append(errs, fmt.Errorf("bot.email %q: %w", bot, err))
		}
	}

	if err := errors.Join(errs...); err != nil {
		return err
	}
	return cfg.ApplyDefaults()
}

func checkTLS(t TLSConfig) []error {
	if t.CertFile == "" && t.KeyFile == "" {
		return nil
	}
	if t.CertFile == "" || t.KeyFile == "" {
		return []error{errors.New("incomplete TLS configuration: both server.tls.cert_file and server.tls.key_file must be set")}
	}
	var errs []error
	for name, path := range map[string]string{"cert": t.CertFile, "key": t.KeyFile} {
		if _, err := os.Stat(path); err != nil {
			errs = append(errs, fmt.Errorf("tls %s file not accessible: %w", name, err))
		}
	}
	return errs
}
