package logger

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/valyala/fasthttp"
)

func TestMaskedValue(t *testing.T) {
	assert.Equal(t, "", MaskedValue(""))
	assert.Equal(t, "<redacted>", MaskedValue("ab"))
	assert.Equal(t, "s*****t", MaskedValue("secret"))
}

func TestSafeHeadersFastMasksCredentials(t *testing.T) {
	var ctx fasthttp.RequestCtx
	ctx.Request.Header.Set("Authorization", "Bearer abcdef")
	ctx.Request.Header.Set("X-Request-Id", "req-1")

	out := SafeHeadersFast(&ctx)
	assert.NotContains(t, out, "abcdef")
	assert.Contains(t, out, "req-1")
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	InitWithWriter(&buf, "warn")
	Info("hidden_event")
	Warn("visible_event", "k", "v")
	assert.NotContains(t, buf.String(), "hidden_event")
	assert.Contains(t, buf.String(), "visible_event")
}

func TestLogRequestFastMasksToken(t *testing.T) {
	var buf bytes.Buffer
	InitWithWriter(&buf, "info")
	var ctx fasthttp.RequestCtx
	ctx.Request.SetRequestURI("/ws/chat?token=supersecret")
	LogRequestFast(&ctx)
	assert.Contains(t, buf.String(), "incoming_request")
	assert.NotContains(t, buf.String(), "supersecret")
}
