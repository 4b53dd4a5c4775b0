package admin

import (
	"sort"
	"time"

	"chatcore/pkg/api/router"
	"chatcore/pkg/api/routes/common"

	"github.com/dustin/go-humanize"
	"github.com/valyala/fasthttp"
)

type Handlers struct {
	*common.Deps
}

func New(d *common.Deps) *Handlers {
	return &Handlers{Deps: d}
}

type wsStatus struct {
	ConnectedUsers int      `json:"connected_users"`
	Connections    int      `json:"connections"`
	OnlineUsers    []string `json:"online_users"`
}

// WSStatus reports live push connections.
func (h *Handlers) WSStatus(ctx *fasthttp.RequestCtx) {
	users, conns := h.Registry.Count()
	online := h.Registry.OnlineUsers()
	sort.Strings(online)
	_ = router.WriteJSON(ctx, wsStatus{ConnectedUsers: users, Connections: conns, OnlineUsers: online})
}

func (h *Handlers) Health(ctx *fasthttp.RequestCtx) {
	body := map[string]interface{}{
		"status":  "ok",
		"service": "chatcore",
		"version": h.Version,
		"uptime":  humanize.RelTime(h.Started, time.Now(), "", ""),
	}
	if h.Disk != nil {
		body["disk_pressure"] = h.Disk.DiskPressure()
	}
	_ = router.WriteJSON(ctx, body)
}

func (h *Handlers) Ready(ctx *fasthttp.RequestCtx) {
	if h.Store == nil || !h.Store.Ready() {
		router.WriteJSONError(ctx, fasthttp.StatusServiceUnavailable, "store not ready")
		return
	}
	_ = router.WriteJSON(ctx, map[string]interface{}{"status": "ready"})
}
