package common

import (
	"time"

	"chatcore/pkg/api/auth"
	"chatcore/pkg/bot"
	"chatcore/pkg/delivery"
	"chatcore/pkg/presence"
	"chatcore/pkg/session"
	"chatcore/pkg/users"
)

// Checker reports whether a backing service can take traffic.
type Checker interface {
	Ready() bool
}

// DiskMonitor reports pressure on the database volume.
type DiskMonitor interface {
	DiskPressure() bool
}

// BotMemory is the bot's per-user conversation memory.
type BotMemory interface {
	History(user string) []bot.Turn
	Forget(user string)
}

// Deps are the services route handlers call into.
type Deps struct {
	Users    *users.Service
	Tokens   *auth.Tokens
	Delivery *delivery.Coordinator
	Registry *session.Registry
	Presence *presence.Broadcaster
	Store    Checker
	Disk     DiskMonitor
	Bot      BotMemory
	Version  string
	Started  time.Time
}
