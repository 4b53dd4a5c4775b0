package api

import (
	"net/http"
	"net/http/pprof"

	"chatcore/pkg/api/auth"
	"chatcore/pkg/api/router"
	adminRoutes "chatcore/pkg/api/routes/admin"
	"chatcore/pkg/api/routes/common"
	frontendRoutes "chatcore/pkg/api/routes/frontend"
	"chatcore/pkg/push"
	"chatcore/pkg/telemetry"

	"github.com/valyala/fasthttp"
	"github.com/valyala/fasthttp/fasthttpadaptor"
)

// wrapHTTPHandler wraps an http.Handler to work with fasthttp.
func wrapHTTPHandler(h http.Handler) fasthttp.RequestHandler {
	return fasthttpadaptor.NewFastHTTPHandler(h)
}

// RegisterRoutes wires all API routes onto the provided router.
func RegisterRoutes(r *router.Router, deps *common.Deps, pushSrv *push.Server) {
	front := frontendRoutes.New(deps)
	admin := adminRoutes.New(deps)

	// account
	r.POST("/v1/auth/register", front.Register)
	r.POST("/v1/auth/login", front.Login)
	r.GET("/v1/auth/me", front.Me)

	// directory; search must precede the {email} pattern
	r.GET("/v1/users", front.ListUsers)
	r.GET("/v1/users/search", front.SearchUsers)
	r.GET("/v1/users/{email}", front.GetUser)
	r.PUT("/v1/users/me", front.UpdateMe)

	// messages
	r.POST("/v1/messages", front.SendMessage)
	r.PUT("/v1/messages/{id}", front.EditMessage)
	r.DELETE("/v1/messages/{id}", front.DeleteMessage)
	r.POST("/v1/messages/{id}/ack", front.AckMessage)

	// conversations
	r.POST("/v1/conversations/{partner}/read", front.MarkRead)
	r.GET("/v1/conversations/{partner}", front.History)
	r.GET("/v1/conversations/{partner}/since/{id}", front.Since)
	r.GET("/v1/chats", front.Chats)

	// bot memory of the caller
	r.GET("/v1/bot/memory", front.BotMemory)
	r.DELETE("/v1/bot/memory", front.ForgetBotMemory)

	// push channel
	if pushSrv != nil {
		r.GET("/ws/chat", pushSrv.Handle)
	}

	// health
	r.GET("/healthz", admin.Health)
	r.GET("/readyz", admin.Ready)

	// admin
	r.GET("/v1/ws/status", admin.WSStatus)
	r.GET("/metrics", telemetry.Handler())
	r.GET("/admin/debug/pprof/", wrapHTTPHandler(http.HandlerFunc(pprof.Index)))
	r.GET("/admin/debug/pprof/cmdline", wrapHTTPHandler(http.HandlerFunc(pprof.Cmdline)))
	r.GET("/admin/debug/pprof/profile", wrapHTTPHandler(http.HandlerFunc(pprof.Profile)))
	r.GET("/admin/debug/pprof/symbol", wrapHTTPHandler(http.HandlerFunc(pprof.Symbol)))
	r.GET("/admin/debug/pprof/trace", wrapHTTPHandler(http.HandlerFunc(pprof.Trace)))
}

// Handler returns the API behind the auth gateway.
func Handler(deps *common.Deps, gw *auth.Gateway, pushSrv *push.Server) fasthttp.RequestHandler {
	r := router.New()
	RegisterRoutes(r, deps, pushSrv)
	return gw.Middleware(r.Handler)
}
