package frontend

import (
	"time"

	"chatcore/pkg/api/router"
	"chatcore/pkg/api/routes/common"
	"chatcore/pkg/models"
	"chatcore/pkg/state/logger"
	"chatcore/pkg/users"

	"github.com/valyala/fasthttp"
)

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type tokenResponse struct {
	AccessToken string            `json:"access_token"`
	TokenType   string            `json:"token_type"`
	ExpiresAt   time.Time         `json:"expires_at"`
	User        models.PublicUser `json:"user"`
}

// Handlers serves the user-facing pull routes.
type Handlers struct {
	*common.Deps
}

func New(d *common.Deps) *Handlers {
	return &Handlers{Deps: d}
}

func (h *Handlers) Register(ctx *fasthttp.RequestCtx) {
	var req users.RegisterRequest
	if !router.DecodeBody(ctx, &req) {
		return
	}
	u, err := h.Users.Register(ctx, req)
	if err != nil {
		common.WriteServiceError(ctx, err)
		return
	}
	logger.Info("user_registered", "email", u.Email)
	router.WriteCreated(ctx, u.Public(h.Presence.IsOnline(u.Email)))
}

func (h *Handlers) Login(ctx *fasthttp.RequestCtx) {
	var req loginRequest
	if !router.DecodeBody(ctx, &req) {
		return
	}
	u, err := h.Users.Authenticate(ctx, req.Email, req.Password)
	if err != nil {
		common.WriteServiceError(ctx, err)
		return
	}
	token, exp, err := h.Tokens.Issue(u.Email)
	if err != nil {
		common.WriteServiceError(ctx, err)
		return
	}
	logger.AuditEvent("user_login", "email", u.Email, "remote", ctx.RemoteAddr().String())
	_ = router.WriteJSON(ctx, tokenResponse{
		AccessToken: token,
		TokenType:   "bearer",
		ExpiresAt:   exp,
		User:        u.Public(h.Presence.IsOnline(u.Email)),
	})
}

func (h *Handlers) Me(ctx *fasthttp.RequestCtx) {
	me, ok := common.RequireUser(ctx)
	if !ok {
		return
	}
	p, err := h.Users.Get(ctx, me)
	if err != nil {
		common.WriteServiceError(ctx, err)
		return
	}
	_ = router.WriteJSON(ctx, p)
}
