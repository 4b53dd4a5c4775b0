package frontend

import (
	"chatcore/pkg/api/router"
	"chatcore/pkg/api/routes/common"
	"chatcore/pkg/bot"

	"github.com/valyala/fasthttp"
)

type botMemory struct {
	Turns []bot.Turn `json:"turns"`
}

func (h *Handlers) botEnabled(ctx *fasthttp.RequestCtx) bool {
	if h.Bot == nil {
		router.WriteJSONError(ctx, fasthttp.StatusNotFound, "bot disabled")
		return false
	}
	return true
}

// BotMemory returns what the bot remembers of the caller's conversation.
func (h *Handlers) BotMemory(ctx *fasthttp.RequestCtx) {
	me, ok := common.RequireUser(ctx)
	if !ok || !h.botEnabled(ctx) {
		return
	}
	turns := h.Bot.History(me)
	if turns == nil {
		turns = []bot.Turn{}
	}
	_ = router.WriteJSON(ctx, botMemory{Turns: turns})
}

func (h *Handlers) ForgetBotMemory(ctx *fasthttp.RequestCtx) {
	me, ok := common.RequireUser(ctx)
	if !ok || !h.botEnabled(ctx) {
		return
	}
	h.Bot.Forget(me)
	ctx.SetStatusCode(fasthttp.StatusNoContent)
}
