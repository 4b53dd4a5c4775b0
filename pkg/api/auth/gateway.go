package auth

import (
	"net"
	"strings"

	"chatcore/pkg/api/router"
	"chatcore/pkg/state/logger"

	"github.com/valyala/fasthttp"
)

const (
	userValueUser = "auth_user"
	userValueRole = "auth_role"
)

// Gateway applies cors, ip whitelist, authentication and rate limits
// before any route handler runs.
type Gateway struct {
	cfg      SecConfig
	tokens   *Tokens
	limiters *limiterPool
}

func NewGateway(cfg SecConfig, tokens *Tokens) *Gateway {
	return &Gateway{cfg: cfg, tokens: tokens, limiters: newLimiterPool(cfg.RPS, cfg.Burst)}
}

// Shutdown stops the limiter cleanup loop.
func (g *Gateway) Shutdown() {
	g.limiters.Shutdown()
}

func (g *Gateway) Middleware(next fasthttp.RequestHandler) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		logger.LogRequestFast(ctx)

		// cors headers and handle options shortcut
		origin := string(ctx.Request.Header.Peek("Origin"))
		if origin != "" && originAllowed(origin, g.cfg.AllowedOrigins) {
			ctx.Response.Header.Set("Access-Control-Allow-Origin", origin)
			ctx.Response.Header.Set("Vary", "Origin")
			ctx.Response.Header.Set("Access-Control-Allow-Methods", "GET,POST,PUT,DELETE,OPTIONS")
			ctx.Response.Header.Set("Access-Control-Max-Age", "600")
			ctx.Response.Header.Set("Access-Control-Allow-Headers", "Authorization,Content-Type,X-API-Key")
		}
		if string(ctx.Method()) == fasthttp.MethodOptions {
			ctx.SetStatusCode(fasthttp.StatusNoContent)
			return
		}

		// ip whitelist check (always before all other checks except cors/options)
		if len(g.cfg.IPWhitelist) > 0 {
			ip := clientIPFast(ctx)
			if !ipWhitelisted(ip, g.cfg.IPWhitelist) {
				router.WriteJSONError(ctx, fasthttp.StatusForbidden, "forbidden")
				logger.Warn("request_blocked", "reason", "ip_not_whitelisted", "ip", ip, "path", string(ctx.Path()))
				return
			}
		}

		path := string(ctx.Path())
		if publicAllowedPath(path, string(ctx.Method())) {
			if !g.limiters.Allow("ip:" + clientIPFast(ctx)) {
				router.WriteJSONError(ctx, fasthttp.StatusTooManyRequests, "rate limit exceeded")
				logger.Warn("rate_limited", "path", path, "remote", ctx.RemoteAddr().String())
				return
			}
			next(ctx)
			return
		}

		role, subject := g.identify(ctx)
		if role == RoleUnauth {
			router.WriteJSONError(ctx, fasthttp.StatusUnauthorized, "unauthorized")
			logger.Warn("request_unauthorized", "path", path, "remote", ctx.RemoteAddr().String())
			return
		}
		if adminPath(path) && role != RoleAdmin {
			router.WriteJSONError(ctx, fasthttp.StatusForbidden, "admin api key required")
			logger.Warn("admin_route_violation", "path", path, "user", subject)
			return
		}
		if !adminPath(path) && role == RoleAdmin {
			router.WriteJSONError(ctx, fasthttp.StatusForbidden, "admin api keys may only access admin routes")
			logger.Warn("admin_key_on_user_route", "path", path)
			return
		}

		// rate limiting (per user or key)
		if !g.limiters.Allow(role.String() + ":" + subject) {
			router.WriteJSONError(ctx, fasthttp.StatusTooManyRequests, "rate limit exceeded")
			logger.Warn("rate_limited", "role", role.String(), "path", path)
			return
		}

		ctx.SetUserValue(userValueRole, role)
		if role == RoleUser {
			ctx.SetUserValue(userValueUser, subject)
		}
		next(ctx)
	}
}

func (g *Gateway) identify(ctx *fasthttp.RequestCtx) (Role, string) {
	if key := ExtractAPIKey(ctx); key != "" {
		if _, ok := g.cfg.AdminKeys[key]; ok {
			return RoleAdmin, key
		}
	}
	token := ExtractBearer(ctx)
	if token == "" {
		return RoleUnauth, ""
	}
	sub, err := g.tokens.Verify(token)
	if err != nil {
		logger.Debug("token_rejected", "error", err)
		return RoleUnauth, ""
	}
	return RoleUser, sub
}

// ExtractBearer returns the bearer token of the Authorization header.
func ExtractBearer(ctx *fasthttp.RequestCtx) string {
	h := strings.TrimSpace(string(ctx.Request.Header.Peek("Authorization")))
	if len(h) > 7 && strings.EqualFold(h[:7], "bearer ") {
		return strings.TrimSpace(h[7:])
	}
	return ""
}

// ExtractAPIKey reads X-API-Key.
func ExtractAPIKey(ctx *fasthttp.RequestCtx) string {
	return strings.TrimSpace(string(ctx.Request.Header.Peek("X-API-Key")))
}

// UserFrom returns the authenticated user of the request, if any.
func UserFrom(ctx *fasthttp.RequestCtx) (string, bool) {
	u, ok := ctx.UserValue(userValueUser).(string)
	return u, ok && u != ""
}

func clientIPFast(ctx *fasthttp.RequestCtx) string {
	host := ctx.RemoteAddr().String()
	h, _, err := net.SplitHostPort(host)
	if err != nil {
		return host
	}
	return h
}

func originAllowed(origin string, allowed []string) bool {
	for _, a := range allowed {
		if a == "*" || strings.EqualFold(a, origin) {
			return true
		}
	}
	return false
}

func ipWhitelisted(ip string, list []string) bool {
	for _, w := range list {
		if ip == w {
			return true
		}
	}
	return false
}

func publicAllowedPath(path, method string) bool {
	switch {
	case (path == "/healthz" || path == "/readyz") && method == fasthttp.MethodGet:
		return true
	case (path == "/v1/auth/register" || path == "/v1/auth/login") && method == fasthttp.MethodPost:
		return true
	case path == "/ws/chat" && method == fasthttp.MethodGet:
		// the push handler authenticates the token itself
		return true
	}
	return false
}

func adminPath(path string) bool {
	return path == "/metrics" || path == "/v1/ws/status" || strings.HasPrefix(path, "/admin/")
}
