package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"chatcore/pkg/models"
	"chatcore/pkg/state/logger"
	"chatcore/pkg/store/keys"
)

// CreateMessage persists a new message with its conversation and partner
// index entries in one batch.
func (s *Store) CreateMessage(ctx context.Context, m *models.Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := keys.ValidateMessageID(m.ID); err != nil {
		return err
	}
	if !s.Ready() {
		return ErrClosed
	}
	if _, err := s.getString(keys.GenMessageKey(m.ID)); err == nil {
		return fmt.Errorf("message %s: %w", m.ID, ErrConflict)
	} else if !errors.Is(err, ErrNotFound) {
		return err
	}

	b, err := s.newBatch()
	if err != nil {
		return err
	}
	defer b.Close()
	if err := setJSON(b, keys.GenMessageKey(m.ID), m); err != nil {
		return err
	}
	convKey := keys.GenConvKey(m.Sender, m.Recipient, m.CreatedAt.UnixNano(), m.ID)
	if err := b.Set([]byte(convKey), []byte(m.ID), nil); err != nil {
		return err
	}
	if err := b.Set([]byte(keys.GenPartnerKey(m.Sender, m.Recipient)), nil, nil); err != nil {
		return err
	}
	if err := b.Set([]byte(keys.GenPartnerKey(m.Recipient, m.Sender)), nil, nil); err != nil {
		return err
	}
	if err := s.apply(b); err != nil {
		return err
	}
	logger.Debug("message_saved", "id", m.ID, "conv_key", convKey)
	return nil
}

// UpdateMessage rewrites an existing message. A deleted message also
// leaves the conversation index so reads skip it.
func (s *Store) UpdateMessage(ctx context.Context, m *models.Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !s.Ready() {
		return ErrClosed
	}
	if _, err := s.getString(keys.GenMessageKey(m.ID)); err != nil {
		return err
	}

	b, err := s.newBatch()
	if err != nil {
		return err
	}
	defer b.Close()
	if err := setJSON(b, keys.GenMessageKey(m.ID), m); err != nil {
		return err
	}
	if m.Deleted {
		convKey := keys.GenConvKey(m.Sender, m.Recipient, m.CreatedAt.UnixNano(), m.ID)
		if err := b.Delete([]byte(convKey), nil); err != nil {
			return err
		}
	}
	return s.apply(b)
}

// GetMessage loads a message by id, deleted or not.
func (s *Store) GetMessage(ctx context.Context, id string) (*models.Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := keys.ValidateMessageID(id); err != nil {
		return nil, ErrNotFound
	}
	var m models.Message
	if err := s.getJSON(keys.GenMessageKey(id), &m); err != nil {
		return nil, err
	}
	return &m, nil
}

// Conversation visits the non-deleted messages between a and b ordered by
// creation time (newest first when reverse) until fn returns false.
func (s *Store) Conversation(ctx context.Context, a, b string, reverse bool, fn func(*models.Message) bool) error {
	return s.scanPrefix(keys.GenConvPrefix(a, b), reverse, s.visitIndexed(ctx, fn))
}

// ConversationAfter visits, oldest first, the messages of a/b created
// strictly after the given one.
func (s *Store) ConversationAfter(ctx context.Context, a, b string, after *models.Message, fn func(*models.Message) bool) error {
	prefix := keys.GenConvPrefix(a, b)
	// NUL sorts below every id byte, so this skips exactly the anchor entry
	lower := keys.GenConvKey(after.Sender, after.Recipient, after.CreatedAt.UnixNano(), after.ID) + "\x00"
	return s.scanRange([]byte(lower), keys.UpperBound(prefix), false, s.visitIndexed(ctx, fn))
}

func (s *Store) visitIndexed(ctx context.Context, fn func(*models.Message) bool) func(k, v []byte) (bool, error) {
	return func(k, v []byte) (bool, error) {
		if err := ctx.Err(); err != nil {
			return false, err
		}
		m, err := s.GetMessage(ctx, string(v))
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				logger.Warn("conversation_index_dangling", "key", string(k))
				return true, nil
			}
			return false, err
		}
		if m.Deleted {
			return true, nil
		}
		return fn(m), nil
	}
}

// Partners lists every identity user has exchanged messages with.
func (s *Store) Partners(ctx context.Context, user string) ([]string, error) {
	out := []string{}
	err := s.scanPrefix(keys.GenPartnerPrefix(user), false, func(k, _ []byte) (bool, error) {
		if err := ctx.Err(); err != nil {
			return false, err
		}
		p, err := keys.ParsePartnerKey(string(k))
		if err != nil {
			logger.Warn("partner_key_invalid", "key", string(k), "error", err)
			return true, nil
		}
		out = append(out, p)
		return true, nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// DeletedMessages visits every soft-deleted message until fn returns false.
func (s *Store) DeletedMessages(ctx context.Context, fn func(*models.Message) bool) error {
	return s.scanPrefix(keys.MessagePrefix, false, func(_, v []byte) (bool, error) {
		if err := ctx.Err(); err != nil {
			return false, err
		}
		var m models.Message
		if err := json.Unmarshal(v, &m); err != nil {
			logger.Warn("message_decode_failed", "error", err)
			return true, nil
		}
		if !m.Deleted {
			return true, nil
		}
		return fn(&m), nil
	})
}
