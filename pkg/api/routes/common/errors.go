package common

import (
	"context"
	"errors"

	"chatcore/pkg/api/auth"
	"chatcore/pkg/api/router"
	"chatcore/pkg/delivery"
	"chatcore/pkg/state/logger"
	"chatcore/pkg/users"

	"github.com/valyala/fasthttp"
)

// WriteServiceError maps service errors to status codes with an
// {"error": reason} body.
func WriteServiceError(ctx *fasthttp.RequestCtx, err error) {
	var (
		verr *delivery.ValidationError
		aerr *delivery.AuthorizationError
		nerr *delivery.NotFoundError
	)
	switch {
	case errors.As(err, &verr):
		router.WriteJSONError(ctx, fasthttp.StatusBadRequest, verr.Error())
	case errors.As(err, &aerr):
		router.WriteJSONError(ctx, fasthttp.StatusForbidden, aerr.Error())
	case errors.As(err, &nerr):
		router.WriteJSONError(ctx, fasthttp.StatusNotFound, nerr.Error())
	case errors.Is(err, users.ErrInvalidEmail),
		errors.Is(err, users.ErrInvalidUsername),
		errors.Is(err, users.ErrInvalidPassword),
		errors.Is(err, users.ErrNoFields),
		errors.Is(err, users.ErrInvalidPaging):
		router.WriteJSONError(ctx, fasthttp.StatusBadRequest, err.Error())
	case errors.Is(err, users.ErrEmailTaken), errors.Is(err, users.ErrUsernameTaken):
		router.WriteJSONError(ctx, fasthttp.StatusConflict, err.Error())
	case errors.Is(err, users.ErrInvalidCredentials):
		router.WriteJSONError(ctx, fasthttp.StatusUnauthorized, err.Error())
	case errors.Is(err, users.ErrNotFound):
		router.WriteJSONError(ctx, fasthttp.StatusNotFound, err.Error())
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		router.WriteJSONError(ctx, fasthttp.StatusServiceUnavailable, "request cancelled")
	default:
		logger.Error("request_failed", "path", string(ctx.Path()), "error", err)
		router.WriteJSONError(ctx, fasthttp.StatusInternalServerError, "internal error")
	}
}

// RequireUser returns the authenticated user or writes a 401.
func RequireUser(ctx *fasthttp.RequestCtx) (string, bool) {
	u, ok := auth.UserFrom(ctx)
	if !ok {
		router.WriteJSONError(ctx, fasthttp.StatusUnauthorized, "unauthorized")
		return "", false
	}
	return u, true
}
