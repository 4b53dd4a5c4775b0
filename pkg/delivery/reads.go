package delivery

import (
	"context"
	"errors"
	"sort"

	"chatcore/pkg/models"
	"chatcore/pkg/store"
)

func (c *Coordinator) limit(n int) (int, error) {
	if n == 0 {
		return c.limits.DefaultLimit, nil
	}
	if n < 1 || n > c.limits.MaxLimit {
		return 0, invalid(ErrInvalidLimit)
	}
	return n, nil
}

func (c *Coordinator) requireUser(ctx context.Context, email string) (*models.User, error) {
	u, err := c.store.GetUser(ctx, email)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, notFound(ErrUserNotFound)
		}
		return nil, err
	}
	return u, nil
}

// History returns one newest-first page of the viewer/partner conversation.
func (c *Coordinator) History(ctx context.Context, viewer, partner string, limit, offset int) (*models.HistoryPage, error) {
	viewer, partner = normalize(viewer), normalize(partner)
	limit, err := c.limit(limit)
	if err != nil {
		return nil, err
	}
	if offset < 0 {
		return nil, invalid(ErrInvalidOffset)
	}
	if _, err := c.requireUser(ctx, partner); err != nil {
		return nil, err
	}

	page := &models.HistoryPage{
		Partner:  partner,
		Messages: []models.Message{},
		Limit:    limit,
		Offset:   offset,
	}
	err = c.store.Conversation(ctx, viewer, partner, true, func(m *models.Message) bool {
		if page.Total >= offset && len(page.Messages) < limit {
			page.Messages = append(page.Messages, *m)
		}
		page.Total++
		if m.Recipient == viewer && m.Status != models.StatusRead {
			page.Unread++
		}
		return true
	})
	if err != nil {
		return nil, err
	}
	page.HasMore = offset+len(page.Messages) < page.Total
	page.PartnerOnline = c.presence.IsOnline(partner)
	return page, nil
}

// Since returns, oldest first, up to limit messages created after
// afterMessageID in the viewer/partner conversation.
func (c *Coordinator) Since(ctx context.Context, viewer, partner, afterMessageID string, limit int) ([]models.Message, error) {
	viewer, partner = normalize(viewer), normalize(partner)
	limit, err := c.limit(limit)
	if err != nil {
		return nil, err
	}
	anchor, err := c.loadMessage(ctx, afterMessageID)
	if err != nil {
		return nil, err
	}
	if !anchor.Involves(viewer, partner) {
		return nil, invalid(ErrNotInConversation)
	}

	out := []models.Message{}
	err = c.store.ConversationAfter(ctx, viewer, partner, anchor, func(m *models.Message) bool {
		out = append(out, *m)
		return len(out) < limit
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// ChatSummaries derives one row per conversation partner of viewer,
// most recent conversation first.
func (c *Coordinator) ChatSummaries(ctx context.Context, viewer string) ([]models.ChatSummary, error) {
	viewer = normalize(viewer)
	partners, err := c.store.Partners(ctx, viewer)
	if err != nil {
		return nil, err
	}

	out := make([]models.ChatSummary, 0, len(partners))
	for _, p := range partners {
		sum := models.ChatSummary{Partner: p, Online: c.presence.IsOnline(p)}
		err := c.store.Conversation(ctx, viewer, p, true, func(m *models.Message) bool {
			if sum.LastMessage == nil {
				last := *m
				sum.LastMessage = &last
				sum.LastTimestamp = m.CreatedAt
			}
			if m.Recipient == viewer && m.Status != models.StatusRead {
				sum.UnreadCount++
			}
			return true
		})
		if err != nil {
			return nil, err
		}
		if sum.LastMessage == nil {
			continue
		}
		if u, err := c.store.GetUser(ctx, p); err == nil {
			sum.PartnerName = u.DisplayName()
		}
		out = append(out, sum)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].LastTimestamp.After(out[j].LastTimestamp)
	})
	return out, nil
}
