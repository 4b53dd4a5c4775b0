package shutdown

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"syscall"
	"time"

	"chatcore/pkg/state/logger"
)

// Step is one stage of an ordered teardown.
type Step struct {
	Name string
	Fn   func(ctx context.Context) error
}

// Run executes steps in order. A failing step is logged and does not stop
// the ones after it; every error is returned joined.
func Run(ctx context.Context, steps ...Step) error {
	logger.Info("shutdown_requested", "steps", len(steps))
	var errs []error
	for _, s := range steps {
		if s.Fn == nil {
			continue
		}
		start := time.Now()
		logger.Info("shutdown_step", "step", s.Name)
		if err := s.Fn(ctx); err != nil {
			logger.Error("shutdown_step_failed", "step", s.Name, "error", err)
			errs = append(errs, fmt.Errorf("%s: %w", s.Name, err))
			continue
		}
		logger.Debug("shutdown_step_done", "step", s.Name, "took", time.Since(start))
	}
	if len(errs) == 0 {
		logger.Info("shutdown_complete")
	}
	return errors.Join(errs...)
}

// SetupSignalHandler returns a context cancelled on SIGINT or SIGTERM.
// SIGPIPE dumps goroutine stacks before cancelling.
func SetupSignalHandler(parent context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)

	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case s := <-sigc:
			logger.Info("signal_received", "signal", s.String(), "msg", "shutdown requested")
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(sigc)
	}()

	sigpipe := make(chan os.Signal, 1)
	signal.Notify(sigpipe, syscall.SIGPIPE)
	go func() {
		select {
		case s := <-sigpipe:
			logger.Info("signal_received", "signal", s.String(), "msg", "SIGPIPE - dumping goroutine stacks")
			buf := make([]byte, 1<<20)
			n := runtime.Stack(buf, true)
			logger.Info("goroutine_stack_dump", "dump", string(buf[:n]))
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(sigpipe)
	}()

	return ctx, cancel
}

var exit = os.Exit

// Abort logs a fatal startup error, writes a crash dump under the db path
// and exits with status 2.
func Abort(contextMsg string, err error, dbPath string) {
	logger.Error("startup_fatal", "msg", contextMsg, "error", err)
	path, derr := WriteCrashDump(dbPath, contextMsg, err)
	if derr != nil {
		logger.Error("crash_dump_failed", "error", derr)
		fmt.Fprintf(os.Stderr, "FAILED TO WRITE CRASH DUMP: %v\n", derr)
	} else {
		fmt.Fprintf(os.Stderr, "CRASH DUMP WRITTEN: %s\n", path)
	}
	logger.Sync()
	exit(2)
}

// WriteCrashDump records reason, error and all goroutine stacks.
func WriteCrashDump(dbPath, reason string, err error) (string, error) {
	dir := "./crash"
	if dbPath != "" {
		dir = filepath.Join(dbPath, "state", "crash")
	}
	if e := os.MkdirAll(dir, 0o700); e != nil {
		return "", fmt.Errorf("create crash dir: %w", e)
	}

	f, e := os.CreateTemp(dir, ".crash-*.tmp")
	if e != nil {
		return "", fmt.Errorf("create temp crash file: %w", e)
	}
	tmp := f.Name()
	defer func() { _ = os.Remove(tmp) }()

	buf := make([]byte, 1<<20)
	n := runtime.Stack(buf, true)
	fmt.Fprintf(f, "time: %s\nreason: %s\nerror: %v\ncmd: %v\n\n%s", time.Now().Format(time.RFC3339Nano), reason, err, os.Args, buf[:n])
	if e := f.Close(); e != nil {
		return "", e
	}

	dst := filepath.Join(dir, fmt.Sprintf("crash-%d.log", time.Now().UnixNano()))
	if e := os.Rename(tmp, dst); e != nil {
		return "", e
	}
	return dst, nil
}
