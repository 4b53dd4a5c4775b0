package logger

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

var Log *slog.Logger
var Audit *slog.Logger

var (
	auditMu   sync.Mutex
	auditFile *os.File
)

func parseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Init sets up the console logger. When auditDir is not empty an append-only
// JSON audit sink is attached under it.
func Init(level string, auditDir string) {
	InitWithWriter(os.Stdout, level)
	if auditDir != "" {
		attachAuditLogger(auditDir)
	}
}

// InitWithWriter points the console logger at w.
func InitWithWriter(w io.Writer, level string) {
	Log = slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: parseLevel(level)}))
}

func attachAuditLogger(dir string) {
	auditMu.Lock()
	defer auditMu.Unlock()

	if err := os.MkdirAll(dir, 0o700); err != nil {
		fmt.Fprintf(os.Stderr, "failed to create audit dir: %v\n", err)
		return
	}
	fname := filepath.Join(dir, "audit.log")
	if fi, err := os.Stat(fname); err == nil {
		const maxSize = 10 * 1024 * 1024
		if fi.Size() > maxSize {
			bak := fname + "." + fi.ModTime().UTC().Format("20060102T150405Z")
			_ = os.Rename(fname, bak)
		}
	}
	f, err := os.OpenFile(fname, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to open audit log file: %v\n", err)
		return
	}
	auditFile = f
	Audit = slog.New(slog.NewJSONHandler(f, &slog.HandlerOptions{Level: slog.LevelInfo}))
	Audit.Info("audit_sink_attached", "path", fname)
}

// Sync flushes and closes the audit sink.
func Sync() {
	auditMu.Lock()
	defer auditMu.Unlock()
	if auditFile != nil {
		_ = auditFile.Sync()
		_ = auditFile.Close()
		auditFile = nil
		Audit = nil
	}
}

// AuditEvent writes to the audit sink, falling back to the console logger.
func AuditEvent(msg string, args ...any) {
	auditMu.Lock()
	a := Audit
	auditMu.Unlock()
	if a != nil {
		a.Info(msg, args...)
		return
	}
	Info(msg, args...)
}

func Debug(msg string, args ...any) {
	if Log == nil {
		return
	}
	Log.Debug(msg, args...)
}

func Info(msg string, args ...any) {
	if Log == nil {
		return
	}
	Log.Info(msg, args...)
}

func Warn(msg string, args ...any) {
	if Log == nil {
		return
	}
	Log.Warn(msg, args...)
}

func Error(msg string, args ...any) {
	if Log == nil {
		return
	}
	Log.Error(msg, args...)
}
