package frontend

import (
	"chatcore/pkg/api/router"
	"chatcore/pkg/api/routes/common"
	"chatcore/pkg/models"

	"github.com/valyala/fasthttp"
)

type sinceResponse struct {
	Partner  string           `json:"partner"`
	After    string           `json:"after"`
	Messages []models.Message `json:"messages"`
}

type chatsResponse struct {
	Chats []models.ChatSummary `json:"chats"`
}

// History returns the conversation newest first.
func (h *Handlers) History(ctx *fasthttp.RequestCtx) {
	me, ok := common.RequireUser(ctx)
	if !ok {
		return
	}
	partner, ok := router.ValidatePathParam(ctx, "partner")
	if !ok {
		return
	}
	limit, ok := router.QueryInt(ctx, "limit", 0)
	if !ok {
		return
	}
	offset, ok := router.QueryInt(ctx, "offset", 0)
	if !ok {
		return
	}
	page, err := h.Delivery.History(ctx, me, partner, limit, offset)
	if err != nil {
		common.WriteServiceError(ctx, err)
		return
	}
	_ = router.WriteJSON(ctx, page)
}

// Since returns messages after a known one, oldest first.
func (h *Handlers) Since(ctx *fasthttp.RequestCtx) {
	me, ok := common.RequireUser(ctx)
	if !ok {
		return
	}
	partner, ok := router.ValidatePathParam(ctx, "partner")
	if !ok {
		return
	}
	after, ok := router.ValidatePathParam(ctx, "id")
	if !ok {
		return
	}
	limit, ok := router.QueryInt(ctx, "limit", 0)
	if !ok {
		return
	}
	msgs, err := h.Delivery.Since(ctx, me, partner, after, limit)
	if err != nil {
		common.WriteServiceError(ctx, err)
		return
	}
	_ = router.WriteJSON(ctx, sinceResponse{Partner: partner, After: after, Messages: msgs})
}

func (h *Handlers) Chats(ctx *fasthttp.RequestCtx) {
	me, ok := common.RequireUser(ctx)
	if !ok {
		return
	}
	chats, err := h.Delivery.ChatSummaries(ctx, me)
	if err != nil {
		common.WriteServiceError(ctx, err)
		return
	}
	_ = router.WriteJSON(ctx, chatsResponse{Chats: chats})
}
