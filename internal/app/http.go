package app

import (
	"net"

	"github.com/valyala/fasthttp"

	"chatcore/pkg/api"
	"chatcore/pkg/api/routes/common"
	"chatcore/pkg/config/banner"
	"chatcore/pkg/state/logger"
)

// printBanner prints the startup banner and build info.
func (a *App) printBanner() {
	banner.PrintWithEff(a.eff, a.versionString())
}

func (a *App) versionString() string {
	v := a.version
	if a.commit != "" && a.commit != "none" {
		v += " (" + a.commit + ")"
	}
	if a.buildDate != "" && a.buildDate != "unknown" {
		v += " @ " + a.buildDate
	}
	return v
}

func (a *App) deps() *common.Deps {
	d := &common.Deps{
		Users:    a.users,
		Tokens:   a.tokens,
		Delivery: a.delivery,
		Registry: a.registry,
		Presence: a.presence,
		Store:    a.store,
		Disk:     a.sensor,
		Version:  a.versionString(),
		Started:  a.started,
	}
	if a.bot != nil {
		d.Bot = a.bot
	}
	return d
}

// startHTTP binds the listener and serves in the background, returning a
// channel that delivers the serve error.
func (a *App) startHTTP() (<-chan error, error) {
	cfg := a.eff.Config
	addr := cfg.Addr()
	if a.listenAddr != "" {
		addr = a.listenAddr
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}

	srv := &fasthttp.Server{
		Name:               "chatcore",
		Handler:            api.Handler(a.deps(), a.gateway, a.push),
		ReadBufferSize:     64 * 1024,
		MaxRequestBodySize: int(cfg.Server.MaxBodySize.Int64()),
		ReadTimeout:        cfg.Server.ReadTimeout.Duration(),
		WriteTimeout:       cfg.Server.WriteTimeout.Duration(),
		IdleTimeout:        cfg.Server.IdleTimeout.Duration(),
		ReduceMemoryUsage:  true,
	}
	a.mu.Lock()
	a.srvFast = srv
	a.ln = ln
	a.mu.Unlock()

	errCh := make(chan error, 1)
	go func() {
		tls := cfg.Server.TLS
		if tls.CertFile != "" {
			errCh <- srv.ServeTLS(ln, tls.CertFile, tls.KeyFile)
			return
		}
		errCh <- srv.Serve(ln)
	}()
	logger.Debug("http_listening", "addr", ln.Addr().String(), "tls", cfg.Server.TLS.CertFile != "")
	return errCh, nil
}
