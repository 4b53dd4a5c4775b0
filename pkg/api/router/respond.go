package router

import (
	"encoding/json"

	"github.com/valyala/fasthttp"
)

const contentTypeJSON = "application/json"

// errorBody is the shape of every failed response.
type errorBody struct {
	Error string `json:"error"`
}

// WriteJSON encodes v as the response body, keeping the current status.
func WriteJSON(ctx *fasthttp.RequestCtx, v any) error {
	body, err := json.Marshal(v)
	if err != nil {
		ctx.SetStatusCode(fasthttp.StatusInternalServerError)
		return err
	}
	ctx.SetContentType(contentTypeJSON)
	ctx.SetBody(body)
	return nil
}

// WriteCreated answers 201 with the stored resource.
func WriteCreated(ctx *fasthttp.RequestCtx, v any) {
	ctx.SetStatusCode(fasthttp.StatusCreated)
	_ = WriteJSON(ctx, v)
}

// WriteJSONError answers status with {"error": message}.
func WriteJSONError(ctx *fasthttp.RequestCtx, status int, message string) {
	ctx.SetStatusCode(status)
	_ = WriteJSON(ctx, errorBody{Error: message})
}
