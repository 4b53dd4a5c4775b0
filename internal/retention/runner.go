package retention

import (
	"context"
	"errors"
	"fmt"
	"time"

	"chatcore/pkg/models"
	"chatcore/pkg/state/logger"
	"chatcore/pkg/telemetry"

	"github.com/google/uuid"
)

const maxConsecutiveRenewFails = 3

var errLeaseLost = errors.New("retention run aborted: lease renewal failed")

// Report summarizes one run.
type Report struct {
	RunID    string
	Scanned  int
	Scrubbed int
	Failed   int
	Skipped  bool
}

// runOnce scrubs the content of messages deleted before the cutoff. The
// tombstone stays so the id remains reserved.
func (m *Manager) runOnce(ctx context.Context) (Report, error) {
	rep := Report{RunID: uuid.NewString()}
	owner := rep.RunID
	lease := newFileLease(m.leaseDir, m.now)
	ok, err := lease.Acquire(owner, m.cfg.LockTTL.Duration())
	if err != nil {
		return rep, fmt.Errorf("lease acquire: %w", err)
	}
	if !ok {
		rep.Skipped = true
		return rep, nil
	}
	defer func() {
		if err := lease.Release(owner); err != nil {
			logger.Error("retention_lease_release_error", "error", err)
		}
	}()

	runCtx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)
	go m.heartbeat(runCtx, lease, owner, cancel)

	cutoff := m.now().Add(-m.cfg.Period.Duration())
	logger.Info("retention_run_start", "run_id", rep.RunID, "cutoff", cutoff, "dry_run", m.cfg.DryRun)
	logger.AuditEvent("retention_audit_header", "run_id", rep.RunID, "cutoff", cutoff.Format(time.RFC3339), "dry_run", m.cfg.DryRun)

	var due []*models.Message
	err = m.store.DeletedMessages(runCtx, func(msg *models.Message) bool {
		rep.Scanned++
		if msg.Content == "" || msg.DeletedAt == nil || !msg.DeletedAt.Before(cutoff) {
			return true
		}
		due = append(due, msg)
		return true
	})
	if err != nil {
		return rep, fmt.Errorf("scan deleted messages: %w", err)
	}

	for _, msg := range due {
		if runCtx.Err() != nil {
			if cause := context.Cause(runCtx); errors.Is(cause, errLeaseLost) {
				return rep, cause
			}
			return rep, runCtx.Err()
		}
		if m.cfg.DryRun {
			logger.AuditEvent("retention_audit_item", "run_id", rep.RunID, "message_id", msg.ID, "status", "dry_run")
			continue
		}
		msg.Content = ""
		if err := m.store.UpdateMessage(runCtx, msg); err != nil {
			rep.Failed++
			logger.AuditEvent("retention_audit_item", "run_id", rep.RunID, "message_id", msg.ID, "status", "failed", "error", err.Error())
			logger.Error("retention_scrub_failed", "id", msg.ID, "error", err)
			continue
		}
		rep.Scrubbed++
		telemetry.RetentionScrubbed.Inc()
		logger.AuditEvent("retention_audit_item", "run_id", rep.RunID, "message_id", msg.ID, "status", "scrubbed")
	}

	logger.AuditEvent("retention_audit_footer", "run_id", rep.RunID, "scanned", rep.Scanned, "scrubbed", rep.Scrubbed, "failed", rep.Failed)
	logger.Info("retention_run_complete", "run_id", rep.RunID, "scanned", rep.Scanned, "scrubbed", rep.Scrubbed, "failed", rep.Failed)
	return rep, nil
}

// heartbeat renews the lease and cancels the run after repeated failures.
func (m *Manager) heartbeat(ctx context.Context, lease *fileLease, owner string, cancel context.CancelCauseFunc) {
	interval := m.cfg.LockTTL.Duration() / 3
	if interval <= 0 {
		return
	}
	t := time.NewTicker(interval)
	defer t.Stop()
	fails := 0
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if err := lease.Renew(owner, m.cfg.LockTTL.Duration()); err != nil {
				fails++
				logger.Error("retention_lease_renew_failed", "error", err, "count", fails)
				if fails >= maxConsecutiveRenewFails {
					cancel(errLeaseLost)
					return
				}
				continue
			}
			fails = 0
		}
	}
}
