package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatusRank(t *testing.T) {
	assert.Less(t, StatusSent.Rank(), StatusDelivered.Rank())
	assert.Less(t, StatusDelivered.Rank(), StatusRead.Rank())
	assert.False(t, MessageStatus("bogus").Valid())
}

func TestMessageOrdering(t *testing.T) {
	now := time.Now()
	a := &Message{ID: "a", CreatedAt: now}
	b := &Message{ID: "b", CreatedAt: now}
	c := &Message{ID: "0", CreatedAt: now.Add(time.Millisecond)}
	assert.True(t, a.Before(b))
	assert.False(t, b.Before(a))
	assert.True(t, b.Before(c))
}

func TestEnvelopeRoundTrip(t *testing.T) {
	env, err := NewEnvelope(EventAck, AckRequest{MessageID: "m1"}, time.Now())
	require.NoError(t, err)

	var req AckRequest
	require.NoError(t, env.Decode(&req))
	assert.Equal(t, "m1", req.MessageID)

	empty := Envelope{Type: EventPing}
	var tr TypingRequest
	assert.NoError(t, empty.Decode(&tr))
}
