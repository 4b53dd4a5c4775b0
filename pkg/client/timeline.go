package client

import (
	"errors"
	"sort"
	"sync"
	"time"

	"chatcore/pkg/models"

	"github.com/google/uuid"
)

// DefaultReconcileWindow bounds how far apart a placeholder and its pushed
// copy may be created and still be merged.
const DefaultReconcileWindow = 10 * time.Second

var ErrUnknownPlaceholder = errors.New("unknown placeholder")

type Kind int

const (
	Placeholder Kind = iota
	Confirmed
)

func (k Kind) String() string {
	if k == Confirmed {
		return "confirmed"
	}
	return "placeholder"
}

// Entry is one row of a conversation as the client displays it. A
// placeholder has a TempID and no Message.ID until the server confirms it.
type Entry struct {
	Kind    Kind
	TempID  string
	Message models.Message
}

// SendFailure describes an optimistic send the server refused.
type SendFailure struct {
	TempID    string
	Recipient string
	Content   string
	Err       error
}

func (f *SendFailure) Error() string { return "send " + f.TempID + ": " + f.Err.Error() }

func (f *SendFailure) Unwrap() error { return f.Err }

// Timeline reconciles optimistic sends with server state for one view.
type Timeline struct {
	mu       sync.Mutex
	window   time.Duration
	entries  []Entry
	failures []SendFailure
}

func NewTimeline(window time.Duration) *Timeline {
	if window <= 0 {
		window = DefaultReconcileWindow
	}
	return &Timeline{window: window}
}

// AddPlaceholder appends an unconfirmed entry and returns its temp id.
func (t *Timeline) AddPlaceholder(sender, recipient, content string, now time.Time) string {
	tempID := "tmp-" + uuid.NewString()
	t.mu.Lock()
	defer t.mu.Unlock()
	t.insert(Entry{
		Kind:   Placeholder,
		TempID: tempID,
		Message: models.Message{
			Sender:    sender,
			Recipient: recipient,
			Content:   content,
			CreatedAt: now,
		},
	})
	return tempID
}

// ConfirmSend swaps the placeholder for the server's message. When a push
// already delivered the same id the placeholder is dropped instead.
func (t *Timeline) ConfirmSend(tempID string, msg models.Message) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	pi := t.indexTemp(tempID)
	if pi < 0 {
		// merged by a push first, or already failed
		if i := t.indexID(msg.ID); i >= 0 {
			merge(&t.entries[i].Message, msg)
			return nil
		}
		return ErrUnknownPlaceholder
	}
	if t.entries[pi].Kind == Confirmed {
		merge(&t.entries[pi].Message, msg)
		return nil
	}
	if i := t.indexID(msg.ID); i >= 0 {
		merge(&t.entries[i].Message, msg)
		t.remove(pi)
		return nil
	}
	t.entries[pi].Kind = Confirmed
	t.entries[pi].Message = msg
	t.resort()
	return nil
}

// FailSend drops the placeholder and records why. The send is not retried.
func (t *Timeline) FailSend(tempID string, cause error) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	i := t.indexTemp(tempID)
	if i < 0 || t.entries[i].Kind != Placeholder {
		return ErrUnknownPlaceholder
	}
	e := t.entries[i]
	t.remove(i)
	f := SendFailure{TempID: tempID, Recipient: e.Message.Recipient, Content: e.Message.Content, Err: cause}
	t.failures = append(t.failures, f)
	return &f
}

// ApplyPush folds a server message into the timeline. Returns true when a
// placeholder was merged.
func (t *Timeline) ApplyPush(msg models.Message) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if i := t.indexID(msg.ID); i >= 0 {
		merge(&t.entries[i].Message, msg)
		return false
	}
	for i := range t.entries {
		e := &t.entries[i]
		if e.Kind != Placeholder || !t.matches(e.Message, msg) {
			continue
		}
		e.Kind = Confirmed
		e.Message = msg
		t.resort()
		return true
	}
	t.insert(Entry{Kind: Confirmed, Message: msg})
	return false
}

// ApplyStatus moves a message forward. Stale or unknown updates are ignored.
func (t *Timeline) ApplyStatus(sc models.StatusChange) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	i := t.indexID(sc.MessageID)
	if i < 0 {
		return false
	}
	m := &t.entries[i].Message
	if sc.Status.Rank() <= m.Status.Rank() {
		return false
	}
	m.Status = sc.Status
	if sc.DeliveredAt != nil {
		m.DeliveredAt = sc.DeliveredAt
	}
	if sc.ReadAt != nil {
		m.ReadAt = sc.ReadAt
	}
	return true
}

// ApplyDeleted marks a message deleted in place.
func (t *Timeline) ApplyDeleted(id string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	i := t.indexID(id)
	if i < 0 {
		return false
	}
	t.entries[i].Message.Deleted = true
	t.entries[i].Message.Content = ""
	return true
}

// Merge folds fetched messages in. History pages come newest first.
func (t *Timeline) Merge(msgs []models.Message, newestFirst bool) {
	if newestFirst {
		for i := len(msgs) - 1; i >= 0; i-- {
			t.ApplyPush(msgs[i])
		}
		return
	}
	for _, m := range msgs {
		t.ApplyPush(m)
	}
}

// Entries returns a copy in display order, oldest first.
func (t *Timeline) Entries() []Entry {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]Entry, len(t.entries))
	copy(out, t.entries)
	return out
}

// LastConfirmedID is the newest server id, the anchor for catch-up.
func (t *Timeline) LastConfirmedID() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	for i := len(t.entries) - 1; i >= 0; i-- {
		if t.entries[i].Kind == Confirmed && t.entries[i].Message.ID != "" {
			return t.entries[i].Message.ID
		}
	}
	return ""
}

// ConfirmedRange is the creation time of the oldest and newest server
// messages held.
func (t *Timeline) ConfirmedRange() (oldest, newest time.Time, ok bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for i := range t.entries {
		e := &t.entries[i]
		if e.Kind != Confirmed || e.Message.ID == "" {
			continue
		}
		if !ok {
			oldest, ok = e.Message.CreatedAt, true
		}
		newest = e.Message.CreatedAt
	}
	return oldest, newest, ok
}

// DropMissing marks deleted every confirmed message created within
// [from, to] that the server no longer lists. A zero from is unbounded.
func (t *Timeline) DropMissing(present map[string]struct{}, from, to time.Time) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	n := 0
	for i := range t.entries {
		m := &t.entries[i].Message
		if t.entries[i].Kind != Confirmed || m.ID == "" || m.Deleted {
			continue
		}
		if m.CreatedAt.After(to) || (!from.IsZero() && m.CreatedAt.Before(from)) {
			continue
		}
		if _, ok := present[m.ID]; ok {
			continue
		}
		m.Deleted = true
		m.Content = ""
		n++
	}
	return n
}

func (t *Timeline) Failures() []SendFailure {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]SendFailure, len(t.failures))
	copy(out, t.failures)
	return out
}

func (t *Timeline) matches(p, m models.Message) bool {
	if p.Sender != m.Sender || p.Recipient != m.Recipient || p.Content != m.Content {
		return false
	}
	d := m.CreatedAt.Sub(p.CreatedAt)
	if d < 0 {
		d = -d
	}
	return d <= t.window
}

func (t *Timeline) indexTemp(tempID string) int {
	for i := range t.entries {
		if t.entries[i].TempID == tempID {
			return i
		}
	}
	return -1
}

func (t *Timeline) indexID(id string) int {
	if id == "" {
		return -1
	}
	for i := range t.entries {
		if t.entries[i].Message.ID == id {
			return i
		}
	}
	return -1
}

func (t *Timeline) insert(e Entry) {
	t.entries = append(t.entries, e)
	t.resort()
}

func (t *Timeline) remove(i int) {
	t.entries = append(t.entries[:i], t.entries[i+1:]...)
}

// placeholders sort by local time, which only approximates server order
func (t *Timeline) resort() {
	sort.SliceStable(t.entries, func(i, j int) bool {
		a, b := &t.entries[i].Message, &t.entries[j].Message
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		if a.ID == "" || b.ID == "" {
			return false
		}
		return a.ID < b.ID
	})
}

// merge applies src over dst without moving the status backwards.
func merge(dst *models.Message, src models.Message) {
	status, delivered, read := dst.Status, dst.DeliveredAt, dst.ReadAt
	deleted := dst.Deleted
	*dst = src
	if status.Rank() > src.Status.Rank() {
		dst.Status, dst.DeliveredAt, dst.ReadAt = status, delivered, read
	}
	if deleted && !src.Deleted {
		dst.Deleted = true
		dst.Content = ""
	}
}
