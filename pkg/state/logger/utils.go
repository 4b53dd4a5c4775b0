package logger

import (
	"strings"
	"unicode/utf8"

	"github.com/valyala/fasthttp"
)

var sensitiveHeaders = map[string]struct{}{
	"authorization": {},
	"x-api-key":     {},
	"cookie":        {},
	"set-cookie":    {},
}

// MaskedValue keeps the first and last rune and hides the rest.
func MaskedValue(v string) string {
	if v == "" {
		return ""
	}
	l := utf8.RuneCountInString(v)
	if l <= 2 {
		return "<redacted>"
	}
	first, _ := utf8.DecodeRuneInString(v)
	last, _ := utf8.DecodeLastRuneInString(v)
	return string(first) + "*****" + string(last)
}

func redactHeaderValue(k string, v string) string {
	if v == "" {
		return ""
	}
	if _, ok := sensitiveHeaders[strings.ToLower(k)]; ok {
		return MaskedValue(v)
	}
	return v
}

// SafeHeadersFast renders request headers with credentials masked.
func SafeHeadersFast(ctx *fasthttp.RequestCtx) string {
	parts := make([]string, 0)
	ctx.Request.Header.VisitAll(func(k, v []byte) {
		key := string(k)
		parts = append(parts, key+"="+redactHeaderValue(key, string(v)))
	})
	return strings.Join(parts, "; ")
}

// LogRequestFast logs one line per request; the push token query arg is masked.
func LogRequestFast(ctx *fasthttp.RequestCtx) {
	if Log == nil {
		return
	}
	query := ""
	if args := ctx.QueryArgs(); args.Len() > 0 {
		parts := make([]string, 0, args.Len())
		args.VisitAll(func(k, v []byte) {
			val := string(v)
			if string(k) == "token" {
				val = MaskedValue(val)
			}
			parts = append(parts, string(k)+"="+val)
		})
		query = strings.Join(parts, "&")
	}
	Info("incoming_request",
		"method", string(ctx.Method()),
		"path", string(ctx.Path()),
		"query", query,
		"remote", ctx.RemoteAddr().String(),
	)
	Debug("request_headers", "path", string(ctx.Path()), "headers", SafeHeadersFast(ctx))
}
