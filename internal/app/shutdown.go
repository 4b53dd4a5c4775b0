package app

import (
	"context"

	"chatcore/pkg/state/logger"
	"chatcore/pkg/state/shutdown"
)

// Shutdown stops intake first and closes the store last.
func (a *App) Shutdown(ctx context.Context) error {
	a.setState("shutting_down")
	a.mu.Lock()
	srv := a.srvFast
	a.mu.Unlock()

	err := shutdown.Run(ctx,
		shutdown.Step{Name: "push", Fn: func(ctx context.Context) error {
			a.registry.CloseAll()
			return a.push.Shutdown(ctx)
		}},
		shutdown.Step{Name: "http", Fn: func(ctx context.Context) error {
			if srv == nil {
				return nil
			}
			return srv.ShutdownWithContext(ctx)
		}},
		shutdown.Step{Name: "bot", Fn: func(context.Context) error {
			if a.bot != nil {
				a.bot.Stop()
			}
			return nil
		}},
		shutdown.Step{Name: "retention", Fn: func(context.Context) error {
			a.retention.Stop()
			return nil
		}},
		shutdown.Step{Name: "sensor", Fn: func(context.Context) error {
			a.sensor.Stop()
			return nil
		}},
		shutdown.Step{Name: "gateway", Fn: func(context.Context) error {
			a.gateway.Shutdown()
			return nil
		}},
		shutdown.Step{Name: "store", Fn: func(context.Context) error {
			return a.store.Close()
		}},
	)
	logger.Sync()
	if err == nil {
		a.setState("stopped")
	}
	return err
}
