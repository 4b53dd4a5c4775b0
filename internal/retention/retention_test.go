package retention

import (
	"context"
	"testing"
	"time"

	"chatcore/pkg/config"
	"chatcore/pkg/models"
	"chatcore/pkg/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var now = time.Date(2024, 6, 30, 12, 0, 0, 0, time.UTC)

func clock() time.Time { return now }

func seed(t *testing.T) *store.Store {
	t.Helper()
	st, err := store.Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	ctx := context.Background()

	put := func(id string, deletedAgo time.Duration) {
		m := &models.Message{
			ID: id, Sender: "a@x.io", Recipient: "b@x.io", Content: "body " + id,
			CreatedAt: now.Add(-60 * 24 * time.Hour), Status: models.StatusSent,
		}
		require.NoError(t, st.CreateMessage(ctx, m))
		if deletedAgo > 0 {
			at := now.Add(-deletedAgo)
			m.Deleted, m.DeletedAt = true, &at
			require.NoError(t, st.UpdateMessage(ctx, m))
		}
	}
	put("old", 40*24*time.Hour)
	put("recent", time.Hour)
	put("live", 0)
	return st
}

func testConfig() config.RetentionConfig {
	return config.RetentionConfig{
		Enabled: true,
		Cron:    "0 2 * * *",
		Period:  config.Duration(30 * 24 * time.Hour),
		LockTTL: config.Duration(time.Minute),
	}
}

func TestRunScrubsOnlyExpiredTombstones(t *testing.T) {
	st := seed(t)
	m := NewManager(testConfig(), st, t.TempDir(), clock)

	rep, err := m.RunNow(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, rep.Scanned)
	assert.Equal(t, 1, rep.Scrubbed)

	old, err := st.GetMessage(context.Background(), "old")
	require.NoError(t, err)
	assert.True(t, old.Deleted)
	assert.Empty(t, old.Content)

	recent, err := st.GetMessage(context.Background(), "recent")
	require.NoError(t, err)
	assert.Equal(t, "body recent", recent.Content)

	live, err := st.GetMessage(context.Background(), "live")
	require.NoError(t, err)
	assert.Equal(t, "body live", live.Content)

	// idempotent
	rep, err = m.RunNow(context.Background())
	require.NoError(t, err)
	assert.Zero(t, rep.Scrubbed)
}

func TestDryRunLeavesContent(t *testing.T) {
	st := seed(t)
	cfg := testConfig()
	cfg.DryRun = true
	rep, err := NewManager(cfg, st, t.TempDir(), clock).RunNow(context.Background())
	require.NoError(t, err)
	assert.Zero(t, rep.Scrubbed)

	old, err := st.GetMessage(context.Background(), "old")
	require.NoError(t, err)
	assert.Equal(t, "body old", old.Content)
}

func TestHeldLeaseSkipsRun(t *testing.T) {
	st := seed(t)
	dir := t.TempDir()
	other := newFileLease(dir, clock)
	ok, err := other.Acquire("other-node", time.Hour)
	require.NoError(t, err)
	require.True(t, ok)

	rep, err := NewManager(testConfig(), st, dir, clock).RunNow(context.Background())
	require.NoError(t, err)
	assert.True(t, rep.Skipped)

	require.NoError(t, other.Release("other-node"))
	rep, err = NewManager(testConfig(), st, dir, clock).RunNow(context.Background())
	require.NoError(t, err)
	assert.False(t, rep.Skipped)
	assert.Equal(t, 1, rep.Scrubbed)
}

func TestLeaseLifecycle(t *testing.T) {
	dir := t.TempDir()
	cur := now
	l := newFileLease(dir, func() time.Time { return cur })

	ok, err := l.Acquire("a", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = l.Acquire("b", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.ErrorIs(t, l.Renew("b", time.Minute), ErrNotLeaseOwner)
	require.NoError(t, l.Renew("a", time.Minute))

	cur = cur.Add(2 * time.Minute)
	ok, err = l.Acquire("b", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok, "expired lease can be taken over")
	assert.ErrorIs(t, l.Release("a"), ErrNotLeaseOwner)
	require.NoError(t, l.Release("b"))
}

func TestDisabledStartIsNoop(t *testing.T) {
	cfg := testConfig()
	cfg.Enabled = false
	m := NewManager(cfg, nil, t.TempDir(), clock)
	m.Start(context.Background())
	m.Stop()
}

func TestStartStop(t *testing.T) {
	st := seed(t)
	m := NewManager(testConfig(), st, t.TempDir(), nil)
	m.Start(context.Background())
	m.Stop()
}
