package client

import (
	"errors"
	"testing"
	"time"

	"chatcore/pkg/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)

func serverMsg(id, content string, at time.Time) models.Message {
	return models.Message{
		ID:        id,
		Sender:    "alice@x.io",
		Recipient: "bob@x.io",
		Content:   content,
		CreatedAt: at,
		Status:    models.StatusSent,
	}
}

func TestPushBeforeConfirmLeavesOneEntry(t *testing.T) {
	tl := NewTimeline(0)
	temp := tl.AddPlaceholder("alice@x.io", "bob@x.io", "hello", t0)

	merged := tl.ApplyPush(serverMsg("m1", "hello", t0.Add(200*time.Millisecond)))
	assert.True(t, merged)

	require.NoError(t, tl.ConfirmSend(temp, serverMsg("m1", "hello", t0.Add(200*time.Millisecond))))

	entries := tl.Entries()
	require.Len(t, entries, 1)
	assert.Equal(t, Confirmed, entries[0].Kind)
	assert.Equal(t, "m1", entries[0].Message.ID)
}

func TestConfirmBeforePushLeavesOneEntry(t *testing.T) {
	tl := NewTimeline(0)
	temp := tl.AddPlaceholder("alice@x.io", "bob@x.io", "hello", t0)
	require.NoError(t, tl.ConfirmSend(temp, serverMsg("m1", "hello", t0)))

	assert.False(t, tl.ApplyPush(serverMsg("m1", "hello", t0)))
	entries := tl.Entries()
	require.Len(t, entries, 1)
	assert.Equal(t, "m1", entries[0].Message.ID)
	assert.Equal(t, temp, entries[0].TempID)
}

func TestConfirmDropsPlaceholderWhenIDAlreadyPresent(t *testing.T) {
	tl := NewTimeline(time.Second)
	temp := tl.AddPlaceholder("alice@x.io", "bob@x.io", "hello", t0)
	// pushed copy lands outside the window so it is appended separately
	tl.ApplyPush(serverMsg("m1", "hello", t0.Add(5*time.Second)))
	require.Len(t, tl.Entries(), 2)

	require.NoError(t, tl.ConfirmSend(temp, serverMsg("m1", "hello", t0.Add(5*time.Second))))
	entries := tl.Entries()
	require.Len(t, entries, 1)
	assert.Equal(t, Confirmed, entries[0].Kind)
}

func TestWindowBoundsMerge(t *testing.T) {
	tl := NewTimeline(10 * time.Second)
	tl.AddPlaceholder("alice@x.io", "bob@x.io", "same", t0)

	assert.False(t, tl.ApplyPush(serverMsg("old", "same", t0.Add(-11*time.Second))))
	assert.False(t, tl.ApplyPush(serverMsg("other", "different", t0)))
	assert.True(t, tl.ApplyPush(serverMsg("m1", "same", t0.Add(9*time.Second))))

	ids := []string{}
	for _, e := range tl.Entries() {
		ids = append(ids, e.Message.ID)
	}
	assert.Equal(t, []string{"old", "other", "m1"}, ids)
}

func TestFailSendRemovesAndRecords(t *testing.T) {
	tl := NewTimeline(0)
	temp := tl.AddPlaceholder("alice@x.io", "bob@x.io", "nope", t0)
	cause := errors.New("http 404: recipient not found")

	err := tl.FailSend(temp, cause)
	var sf *SendFailure
	require.ErrorAs(t, err, &sf)
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "nope", sf.Content)
	assert.Empty(t, tl.Entries())
	assert.Len(t, tl.Failures(), 1)

	assert.ErrorIs(t, tl.FailSend(temp, cause), ErrUnknownPlaceholder)
	assert.ErrorIs(t, tl.ConfirmSend(temp, serverMsg("m1", "nope", t0)), ErrUnknownPlaceholder)
}

func TestStatusOnlyMovesForward(t *testing.T) {
	tl := NewTimeline(0)
	tl.ApplyPush(serverMsg("m1", "hi", t0))
	read := t0.Add(time.Minute)

	assert.True(t, tl.ApplyStatus(models.StatusChange{MessageID: "m1", Status: models.StatusRead, ReadAt: &read}))
	assert.False(t, tl.ApplyStatus(models.StatusChange{MessageID: "m1", Status: models.StatusDelivered}))
	assert.False(t, tl.ApplyStatus(models.StatusChange{MessageID: "ghost", Status: models.StatusRead}))

	// a stale refetch does not regress the status either
	tl.ApplyPush(serverMsg("m1", "hi", t0))
	e := tl.Entries()[0]
	assert.Equal(t, models.StatusRead, e.Message.Status)
	require.NotNil(t, e.Message.ReadAt)
	assert.True(t, read.Equal(*e.Message.ReadAt))
}

func TestMergeNewestFirstDisplaysOldestFirst(t *testing.T) {
	tl := NewTimeline(0)
	tl.Merge([]models.Message{
		serverMsg("m3", "c", t0.Add(3*time.Second)),
		serverMsg("m2", "b", t0.Add(2*time.Second)),
		serverMsg("m1", "a", t0.Add(time.Second)),
	}, true)
	tl.Merge([]models.Message{serverMsg("m4", "d", t0.Add(4*time.Second))}, false)

	var got []string
	for _, e := range tl.Entries() {
		got = append(got, e.Message.ID)
	}
	assert.Equal(t, []string{"m1", "m2", "m3", "m4"}, got)
	assert.Equal(t, "m4", tl.LastConfirmedID())
}

func TestDeletedStaysDeleted(t *testing.T) {
	tl := NewTimeline(0)
	tl.ApplyPush(serverMsg("m1", "secret", t0))
	assert.True(t, tl.ApplyDeleted("m1"))
	tl.ApplyPush(serverMsg("m1", "secret", t0))

	e := tl.Entries()[0]
	assert.True(t, e.Message.Deleted)
	assert.Empty(t, e.Message.Content)
}

func TestDropMissingStaysInsideRange(t *testing.T) {
	tl := NewTimeline(0)
	for i, id := range []string{"m1", "m2", "m3", "m4"} {
		tl.ApplyPush(serverMsg(id, id, t0.Add(time.Duration(i)*time.Second)))
	}
	tl.AddPlaceholder("alice@x.io", "bob@x.io", "pending", t0.Add(2*time.Second))

	oldest, newest, ok := tl.ConfirmedRange()
	require.True(t, ok)
	assert.Equal(t, t0, oldest)
	assert.Equal(t, t0.Add(3*time.Second), newest)

	// server listed only m3 for [t0+1s, t0+2s]
	n := tl.DropMissing(map[string]struct{}{"m3": {}}, t0.Add(time.Second), t0.Add(2*time.Second))
	assert.Equal(t, 1, n)

	byID := map[string]models.Message{}
	for _, e := range tl.Entries() {
		if e.Kind == Placeholder {
			assert.False(t, e.Message.Deleted)
			continue
		}
		byID[e.Message.ID] = e.Message
	}
	assert.False(t, byID["m1"].Deleted)
	assert.True(t, byID["m2"].Deleted)
	assert.Empty(t, byID["m2"].Content)
	assert.False(t, byID["m3"].Deleted)
	assert.False(t, byID["m4"].Deleted, "newer than the range")
}

func TestConfirmedRangeEmpty(t *testing.T) {
	tl := NewTimeline(0)
	tl.AddPlaceholder("alice@x.io", "bob@x.io", "pending", t0)
	_, _, ok := tl.ConfirmedRange()
	assert.False(t, ok)
}
