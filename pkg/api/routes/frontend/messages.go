package frontend

import (
	"chatcore/pkg/api/router"
	"chatcore/pkg/api/routes/common"
	"chatcore/pkg/models"

	"github.com/valyala/fasthttp"
)

type editRequest struct {
	Content string `json:"content"`
}

type markReadRequest struct {
	UpToMessageID string `json:"up_to_message_id"`
}

func (h *Handlers) SendMessage(ctx *fasthttp.RequestCtx) {
	me, ok := common.RequireUser(ctx)
	if !ok {
		return
	}
	var req models.SendRequest
	if !router.DecodeBody(ctx, &req) {
		return
	}
	m, err := h.Delivery.Send(ctx, me, req)
	if err != nil {
		common.WriteServiceError(ctx, err)
		return
	}
	router.WriteCreated(ctx, m)
}

func (h *Handlers) EditMessage(ctx *fasthttp.RequestCtx) {
	me, ok := common.RequireUser(ctx)
	if !ok {
		return
	}
	id, ok := router.ValidatePathParam(ctx, "id")
	if !ok {
		return
	}
	var req editRequest
	if !router.DecodeBody(ctx, &req) {
		return
	}
	m, err := h.Delivery.Edit(ctx, me, id, req.Content)
	if err != nil {
		common.WriteServiceError(ctx, err)
		return
	}
	_ = router.WriteJSON(ctx, m)
}

func (h *Handlers) DeleteMessage(ctx *fasthttp.RequestCtx) {
	me, ok := common.RequireUser(ctx)
	if !ok {
		return
	}
	id, ok := router.ValidatePathParam(ctx, "id")
	if !ok {
		return
	}
	if err := h.Delivery.Delete(ctx, me, id); err != nil {
		common.WriteServiceError(ctx, err)
		return
	}
	_ = router.WriteJSON(ctx, map[string]interface{}{"deleted": true, "id": id})
}

func (h *Handlers) AckMessage(ctx *fasthttp.RequestCtx) {
	me, ok := common.RequireUser(ctx)
	if !ok {
		return
	}
	id, ok := router.ValidatePathParam(ctx, "id")
	if !ok {
		return
	}
	m, err := h.Delivery.Ack(ctx, me, id)
	if err != nil {
		common.WriteServiceError(ctx, err)
		return
	}
	_ = router.WriteJSON(ctx, m)
}

func (h *Handlers) MarkRead(ctx *fasthttp.RequestCtx) {
	me, ok := common.RequireUser(ctx)
	if !ok {
		return
	}
	partner, ok := router.ValidatePathParam(ctx, "partner")
	if !ok {
		return
	}
	var req markReadRequest
	if len(ctx.PostBody()) > 0 && !router.DecodeBody(ctx, &req) {
		return
	}
	n, err := h.Delivery.MarkRead(ctx, me, partner, req.UpToMessageID)
	if err != nil {
		common.WriteServiceError(ctx, err)
		return
	}
	_ = router.WriteJSON(ctx, models.MarkReadAck{Partner: partner, UpToMessageID: req.UpToMessageID, Updated: n})
}
