package router

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/valyala/fasthttp"
)

func serve(r *Router, method, uri string) *fasthttp.RequestCtx {
	ctx := &fasthttp.RequestCtx{}
	ctx.Request.Header.SetMethod(method)
	ctx.Request.SetRequestURI(uri)
	r.Handler(ctx)
	return ctx
}

func TestRouterMatching(t *testing.T) {
	r := New()
	var got string
	r.GET("/v1/conversations/{partner}", func(ctx *fasthttp.RequestCtx) { got = "history:" + PathParam(ctx, "partner") })
	r.GET("/v1/conversations/{partner}/since/{id}", func(ctx *fasthttp.RequestCtx) {
		got = "since:" + PathParam(ctx, "partner") + ":" + PathParam(ctx, "id")
	})
	r.POST("/v1/messages", func(ctx *fasthttp.RequestCtx) { got = "send" })
	r.GET("/", func(ctx *fasthttp.RequestCtx) { got = "root" })

	cases := []struct {
		method, uri, want string
		status            int
	}{
		{"GET", "/v1/conversations/bob@x.io", "history:bob@x.io", 200},
		{"GET", "/v1/conversations/bob%40x.io/since/m1", "since:bob@x.io:m1", 200},
		{"POST", "/v1/messages", "send", 200},
		{"GET", "/", "root", 200},
		{"GET", "/v1/messages", "", 404},
		{"GET", "/v1/conversations/", "", 404},
	}
	for _, tc := range cases {
		got = ""
		ctx := serve(r, tc.method, tc.uri)
		assert.Equal(t, tc.status, ctx.Response.StatusCode(), tc.uri)
		assert.Equal(t, tc.want, got, tc.uri)
	}
}

func TestWriteJSONError(t *testing.T) {
	ctx := &fasthttp.RequestCtx{}
	WriteJSONError(ctx, fasthttp.StatusForbidden, "nope")
	assert.Equal(t, fasthttp.StatusForbidden, ctx.Response.StatusCode())
	assert.JSONEq(t, `{"error":"nope"}`, string(ctx.Response.Body()))
}

func TestWriteCreatedAndUnencodable(t *testing.T) {
	ctx := &fasthttp.RequestCtx{}
	WriteCreated(ctx, map[string]string{"id": "m1"})
	assert.Equal(t, fasthttp.StatusCreated, ctx.Response.StatusCode())
	assert.Equal(t, "application/json", string(ctx.Response.Header.ContentType()))
	assert.JSONEq(t, `{"id":"m1"}`, string(ctx.Response.Body()))

	ctx = &fasthttp.RequestCtx{}
	assert.Error(t, WriteJSON(ctx, make(chan int)))
	assert.Equal(t, fasthttp.StatusInternalServerError, ctx.Response.StatusCode())
}

func TestQueryInt(t *testing.T) {
	ctx := &fasthttp.RequestCtx{}
	ctx.Request.SetRequestURI("/x?limit=20&offset=abc")
	n, ok := QueryInt(ctx, "limit", 50)
	assert.True(t, ok)
	assert.Equal(t, 20, n)
	n, ok = QueryInt(ctx, "missing", 50)
	assert.True(t, ok)
	assert.Equal(t, 50, n)
	_, ok = QueryInt(ctx, "offset", 0)
	assert.False(t, ok)
	assert.Equal(t, fasthttp.StatusBadRequest, ctx.Response.StatusCode())
}
