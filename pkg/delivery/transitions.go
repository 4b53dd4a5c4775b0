package delivery

import (
	"context"
	"errors"
	"time"

	"chatcore/pkg/models"
	"chatcore/pkg/state/logger"
	"chatcore/pkg/store"
	"chatcore/pkg/telemetry"
)

// Ack moves a message from sent to delivered on the recipient's explicit
// acknowledgement. Acking a delivered or read message returns it unchanged.
func (c *Coordinator) Ack(ctx context.Context, recipient, messageID string) (*models.Message, error) {
	recipient = normalize(recipient)
	unlock := c.msgLocks.Lock(messageID)
	defer unlock()

	m, err := c.loadMessage(ctx, messageID)
	if err != nil {
		return nil, err
	}
	if m.Recipient != recipient {
		return nil, forbidden(ErrNotRecipient)
	}
	if m.Deleted {
		return nil, invalid(ErrMessageDeleted)
	}
	if m.Delivered() {
		return m, nil
	}
	if err := c.promote(ctx, m, models.StatusDelivered, c.now()); err != nil {
		return nil, err
	}
	return m, nil
}

// MarkRead marks as read every message partner sent to reader up to and
// including upToMessageID (or all of them when empty), oldest first.
// It returns how many messages changed.
func (c *Coordinator) MarkRead(ctx context.Context, reader, partner, upToMessageID string) (int, error) {
	tr := telemetry.Track("delivery.mark_read")
	defer tr.Finish()

	reader, partner = normalize(reader), normalize(partner)
	if partner == "" || partner == reader {
		return 0, invalid(ErrSelfSend)
	}

	unlockConv := c.convLocks.Lock(convLockKey(reader, partner))
	defer unlockConv()

	var bound *models.Message
	if upToMessageID != "" {
		x, err := c.loadMessage(ctx, upToMessageID)
		if err != nil {
			return 0, err
		}
		if !x.Involves(reader, partner) {
			return 0, invalid(ErrNotInConversation)
		}
		bound = x
	}

	var pending []string
	err := c.store.Conversation(ctx, reader, partner, false, func(m *models.Message) bool {
		if bound != nil && m.CreatedAt.After(bound.CreatedAt) {
			return false
		}
		if m.Sender == partner && m.Recipient == reader && m.Status != models.StatusRead {
			pending = append(pending, m.ID)
		}
		return true
	})
	if err != nil {
		return 0, err
	}
	tr.Mark("scan")

	updated := 0
	for _, id := range pending {
		changed, err := c.readOne(ctx, id)
		if err != nil {
			logger.Error("mark_read_failed", "id", id, "reader", reader, "error", err)
			return updated, err
		}
		if changed {
			updated++
		}
	}
	tr.Mark("apply")

	logger.Info("conversation_marked_read", "reader", reader, "partner", partner, "up_to", upToMessageID, "updated", updated)
	c.emit(models.EventMarkReadAck, models.MarkReadAck{Partner: partner, UpToMessageID: upToMessageID, Updated: updated}, reader)
	return updated, nil
}

// readOne promotes a single message to read under its lock, passing
// through delivered when needed.
func (c *Coordinator) readOne(ctx context.Context, id string) (bool, error) {
	unlock := c.msgLocks.Lock(id)
	defer unlock()

	m, err := c.store.GetMessage(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	if m.Deleted || m.Status == models.StatusRead {
		return false, nil
	}
	at := c.now()
	if !m.Delivered() {
		if err := c.promote(ctx, m, models.StatusDelivered, at); err != nil {
			return false, err
		}
	}
	if err := c.promote(ctx, m, models.StatusRead, at); err != nil {
		return false, err
	}
	return true, nil
}

// promote persists one forward transition of m and notifies the sender.
// The caller holds m's lock.
func (c *Coordinator) promote(ctx context.Context, m *models.Message, to models.MessageStatus, at time.Time) error {
	if to.Rank() <= m.Status.Rank() {
		return nil
	}
	prev := *m
	switch to {
	case models.StatusDelivered:
		m.DeliveredAt = ptr(at)
	case models.StatusRead:
		if m.DeliveredAt == nil {
			m.DeliveredAt = ptr(at)
		}
		m.ReadAt = ptr(at)
	}
	m.Status = to
	if err := c.store.UpdateMessage(ctx, m); err != nil {
		*m = prev
		return err
	}
	telemetry.StatusTransitions.WithLabelValues(string(to)).Inc()
	logger.Debug("message_status_changed", "id", m.ID, "from", prev.Status, "to", to)

	c.emit(models.EventStatusChange, models.StatusChange{
		MessageID:   m.ID,
		Sender:      m.Sender,
		Recipient:   m.Recipient,
		From:        prev.Status,
		Status:      to,
		DeliveredAt: m.DeliveredAt,
		ReadAt:      m.ReadAt,
	}, m.Sender)
	return nil
}

func (c *Coordinator) loadMessage(ctx context.Context, id string) (*models.Message, error) {
	m, err := c.store.GetMessage(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, notFound(ErrMessageNotFound)
		}
		return nil, err
	}
	return m, nil
}
