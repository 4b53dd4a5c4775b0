package router

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"

	"github.com/valyala/fasthttp"
)

func PathParam(ctx *fasthttp.RequestCtx, param string) string {
	if v := ctx.UserValue(param); v != nil {
		s, ok := v.(string)
		if !ok {
			s = fmt.Sprint(v)
		}
		if u, err := url.PathUnescape(s); err == nil {
			return u
		}
		return s
	}
	return ""
}

// ValidatePathParam writes a 400 when the param is empty.
func ValidatePathParam(ctx *fasthttp.RequestCtx, paramName string) (string, bool) {
	value := PathParam(ctx, paramName)
	if value == "" {
		WriteJSONError(ctx, fasthttp.StatusBadRequest, paramName+" missing")
		return "", false
	}
	return value, true
}

// QueryInt parses an integer query arg, writing a 400 on garbage.
func QueryInt(ctx *fasthttp.RequestCtx, name string, def int) (int, bool) {
	raw := string(ctx.QueryArgs().Peek(name))
	if raw == "" {
		return def, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		WriteJSONError(ctx, fasthttp.StatusBadRequest, "invalid "+name)
		return 0, false
	}
	return n, true
}

// DecodeBody unmarshals the JSON body into v, writing a 400 on failure.
func DecodeBody(ctx *fasthttp.RequestCtx, v any) bool {
	body := ctx.PostBody()
	if len(body) == 0 {
		WriteJSONError(ctx, fasthttp.StatusBadRequest, "request body required")
		return false
	}
	if err := json.Unmarshal(body, v); err != nil {
		WriteJSONError(ctx, fasthttp.StatusBadRequest, "invalid json body")
		return false
	}
	return true
}
