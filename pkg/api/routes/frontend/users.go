package frontend

import (
	"strconv"

	"chatcore/pkg/api/router"
	"chatcore/pkg/api/routes/common"
	"chatcore/pkg/models"
	"chatcore/pkg/users"

	"github.com/valyala/fasthttp"
)

type userList struct {
	Users []models.PublicUser `json:"users"`
}

func (h *Handlers) ListUsers(ctx *fasthttp.RequestCtx) {
	me, ok := common.RequireUser(ctx)
	if !ok {
		return
	}
	skip, ok := router.QueryInt(ctx, "skip", 0)
	if !ok {
		return
	}
	limit, ok := router.QueryInt(ctx, "limit", 0)
	if !ok {
		return
	}
	var onlineOnly bool
	if raw := string(ctx.QueryArgs().Peek("online_only")); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			router.WriteJSONError(ctx, fasthttp.StatusBadRequest, "invalid online_only")
			return
		}
		onlineOnly = v
	}
	list, err := h.Users.List(ctx, me, users.ListOptions{Skip: skip, Limit: limit, OnlineOnly: onlineOnly})
	if err != nil {
		common.WriteServiceError(ctx, err)
		return
	}
	_ = router.WriteJSON(ctx, userList{Users: list})
}

func (h *Handlers) SearchUsers(ctx *fasthttp.RequestCtx) {
	me, ok := common.RequireUser(ctx)
	if !ok {
		return
	}
	q := string(ctx.QueryArgs().Peek("q"))
	if q == "" {
		router.WriteJSONError(ctx, fasthttp.StatusBadRequest, "q missing")
		return
	}
	list, err := h.Users.Search(ctx, me, q)
	if err != nil {
		common.WriteServiceError(ctx, err)
		return
	}
	_ = router.WriteJSON(ctx, userList{Users: list})
}

func (h *Handlers) GetUser(ctx *fasthttp.RequestCtx) {
	if _, ok := common.RequireUser(ctx); !ok {
		return
	}
	email, ok := router.ValidatePathParam(ctx, "email")
	if !ok {
		return
	}
	p, err := h.Users.Get(ctx, email)
	if err != nil {
		common.WriteServiceError(ctx, err)
		return
	}
	_ = router.WriteJSON(ctx, p)
}

// UpdateMe changes the caller's own profile.
func (h *Handlers) UpdateMe(ctx *fasthttp.RequestCtx) {
	me, ok := common.RequireUser(ctx)
	if !ok {
		return
	}
	var req users.UpdateRequest
	if !router.DecodeBody(ctx, &req) {
		return
	}
	p, err := h.Users.Update(ctx, me, req)
	if err != nil {
		common.WriteServiceError(ctx, err)
		return
	}
	_ = router.WriteJSON(ctx, p)
}
