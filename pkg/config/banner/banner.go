package banner

import (
	"fmt"

	"chatcore/pkg/config"
)

const banner = `
  ____ _           _                        
 / ___| |__   __ _| |_ ___ ___  _ __ ___    
| |   | '_ \ / _' | __/ __/ _ \| '__/ _ \   
| |___| | | | (_| | || (_| (_) | | |  __/   
 \____|_| |_|\__,_|\__\___\___/|_|  \___|   
`

// PrintWithEff prints the banner and a short readiness summary.
func PrintWithEff(eff config.EffectiveConfigResult, version string) {
	addr := eff.Addr
	if addr == "" && eff.Config != nil {
		addr = eff.Config.Addr()
	}
	src := eff.Source
	if src == "" {
		src = "flags"
	}

	fmt.Print(banner)
	fmt.Println("== Config =====================================================")
	fmt.Printf("Listen:   %s\n", addr)
	fmt.Printf("DB Path:  %s\n", eff.DBPath)
	if version != "" {
		fmt.Printf("Version:  %s\n", version)
	}
	fmt.Printf("Config:   %s\n", src)

	if eff.Config == nil {
		return
	}
	cfg := eff.Config

	fmt.Println("\n== Production? =================================================")
	if n := len(cfg.Security.APIKeys.Admin); n > 0 {
		fmt.Printf("- Admin API keys: OK (%d)\n", n)
	} else {
		fmt.Println("- Admin API keys: MISSING (/metrics and /v1/ws/status unavailable)")
	}
	if len(cfg.Security.CORS.AllowedOrigins) == 0 {
		fmt.Println("- CORS: no origins allowed")
	} else {
		fmt.Printf("- CORS: %d origin(s)\n", len(cfg.Security.CORS.AllowedOrigins))
	}
	fmt.Printf("- Presence fan-out: %s\n", cfg.Presence.Scope)
	if cfg.Bot.Disabled {
		fmt.Println("- Bot: disabled")
	} else {
		fmt.Printf("- Bot: %s <%s>\n", cfg.Bot.Name, cfg.Bot.Email)
	}
	if cfg.Retention.Enabled {
		fmt.Printf("- Retention: enabled (cron=%s period=%s)\n", cfg.Retention.Cron, cfg.Retention.Period.Duration())
	} else {
		fmt.Println("- Retention: disabled")
	}
	fmt.Printf("- Disk watch: alert above %d%% every %s\n", cfg.Sensor.DiskHighPct, cfg.Sensor.PollInterval.Duration())
	fmt.Println()
}
