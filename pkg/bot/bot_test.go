package bot

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"chatcore/pkg/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResponderRules(t *testing.T) {
	at := time.Date(2024, 2, 29, 13, 14, 15, 0, time.UTC)
	r := NewResponder("Assistant", func() time.Time { return at }).WithPicker(func(int) int { return 0 })

	cases := []struct {
		in   string
		rule string
	}{
		{"Hello there", "greeting"},
		{"how are you doing", "how_are_you"},
		{"can you help me", "help"},
		{"what time is it", "time"},
		{"thanks a lot", "thanks"},
		{"ok see you", "goodbye"},
		{"weather tomorrow", "weather"},
		{"what's your name", "name"},
		{"what can you do", "capabilities"},
		{"tell me a joke", "joke"},
		{"that was great", "positive"},
		{"this is terrible", "negative"},
		{"why is the sky blue?", "question"},
		{"bananas", "default"},
		{"this thing", "default"},
	}
	for _, tc := range cases {
		t.Run(tc.in, func(t *testing.T) {
			rule, reply := r.Respond(tc.in)
			assert.Equal(t, tc.rule, rule)
			assert.NotEmpty(t, reply)
		})
	}

	_, reply := r.Respond("what's the date")
	assert.Contains(t, reply, "13:14:15")
	assert.Contains(t, reply, "Thursday, February 29, 2024")

	_, reply = r.Respond("who are you")
	assert.Contains(t, reply, "Assistant")
}

type fakeMessenger struct {
	mu    sync.Mutex
	calls []string
	sent  []models.SendRequest
	done  chan struct{}
}

func (f *fakeMessenger) record(s string) {
	f.mu.Lock()
	f.calls = append(f.calls, s)
	f.mu.Unlock()
}

func (f *fakeMessenger) Send(_ context.Context, sender string, req models.SendRequest) (*models.Message, error) {
	f.record("send")
	f.mu.Lock()
	f.sent = append(f.sent, req)
	f.mu.Unlock()
	f.done <- struct{}{}
	return &models.Message{ID: "r1", Sender: sender, Recipient: req.Recipient, Content: req.Content}, nil
}

func (f *fakeMessenger) Ack(context.Context, string, string) (*models.Message, error) {
	f.record("ack")
	return &models.Message{}, nil
}

func (f *fakeMessenger) MarkRead(context.Context, string, string, string) (int, error) {
	f.record("read")
	return 1, nil
}

func (f *fakeMessenger) Typing(_ context.Context, _, _ string, on bool) error {
	if on {
		f.record("typing_on")
	} else {
		f.record("typing_off")
	}
	return nil
}

func TestAgentReplies(t *testing.T) {
	fm := &fakeMessenger{done: make(chan struct{}, 1)}
	a := NewAgent("bot@x.io", fm, NewResponder("Assistant", nil), time.Millisecond, 4)
	a.Start(context.Background())
	defer a.Stop()

	a.Handle(models.Message{ID: "m1", Sender: "alice@x.io", Recipient: "bot@x.io", Content: "hello"})

	select {
	case <-fm.done:
	case <-time.After(2 * time.Second):
		t.Fatal("bot did not reply")
	}

	fm.mu.Lock()
	defer fm.mu.Unlock()
	assert.Equal(t, []string{"ack", "read", "typing_on", "typing_off", "send"}, fm.calls)
	require.Len(t, fm.sent, 1)
	assert.Equal(t, "alice@x.io", fm.sent[0].Recipient)
	assert.True(t, fm.sent[0].IsBotResponse)
}

func TestAgentHistoryIsBounded(t *testing.T) {
	a := NewAgent("bot@x.io", &fakeMessenger{}, NewResponder("Assistant", nil), 0, 1)
	for i := 0; i < 15; i++ {
		a.remember("alice@x.io", "user", strings.Repeat("x", i))
	}
	h := a.History("alice@x.io")
	require.Len(t, h, historyTurns)
	assert.Equal(t, strings.Repeat("x", 14), h[len(h)-1].Content)

	a.Forget("alice@x.io")
	assert.Empty(t, a.History("alice@x.io"))
}

func TestHandleDropsWhenFull(t *testing.T) {
	a := NewAgent("bot@x.io", &fakeMessenger{}, NewResponder("Assistant", nil), 0, 1)
	a.Handle(models.Message{ID: "1"})
	a.Handle(models.Message{ID: "2"})
	assert.Len(t, a.inbox, 1)
}
