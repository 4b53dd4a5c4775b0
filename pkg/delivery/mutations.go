package delivery

import (
	"context"

	"chatcore/pkg/models"
	"chatcore/pkg/state/logger"
)

// Edit replaces the content of the actor's own message. Status is kept.
func (c *Coordinator) Edit(ctx context.Context, actor, messageID, content string) (*models.Message, error) {
	actor = normalize(actor)
	content, err := validContent(content)
	if err != nil {
		return nil, err
	}

	unlock := c.msgLocks.Lock(messageID)
	defer unlock()

	m, err := c.loadMessage(ctx, messageID)
	if err != nil {
		return nil, err
	}
	if m.Sender != actor {
		return nil, forbidden(ErrNotOwner)
	}
	if m.Deleted {
		return nil, invalid(ErrMessageDeleted)
	}

	m.Content = content
	m.Edited = true
	m.EditedAt = ptr(c.now())
	if err := c.store.UpdateMessage(ctx, m); err != nil {
		return nil, err
	}
	logger.Info("message_edited", "id", m.ID, "sender", actor)
	c.emit(models.EventMessageEdited, m, m.Recipient, m.Sender)
	return m, nil
}

// Delete soft-deletes the actor's own message. Deleting twice succeeds.
func (c *Coordinator) Delete(ctx context.Context, actor, messageID string) error {
	actor = normalize(actor)
	unlock := c.msgLocks.Lock(messageID)
	defer unlock()

	m, err := c.loadMessage(ctx, messageID)
	if err != nil {
		return err
	}
	if m.Sender != actor {
		return forbidden(ErrNotOwner)
	}
	if m.Deleted {
		return nil
	}

	m.Deleted = true
	m.DeletedAt = ptr(c.now())
	if err := c.store.UpdateMessage(ctx, m); err != nil {
		return err
	}
	logger.Info("message_deleted", "id", m.ID, "sender", actor)
	c.emit(models.EventMessageDeleted, models.MessageDeleted{MessageID: m.ID, Sender: m.Sender, Recipient: m.Recipient}, m.Recipient, m.Sender)
	return nil
}
