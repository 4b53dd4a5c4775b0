// Command chatcore-client is a line-oriented terminal client: it keeps a
// push stream open and sends each stdin line to one partner.
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"

	"chatcore/pkg/client"
	"chatcore/pkg/config"
	"chatcore/pkg/models"
	"chatcore/pkg/state/logger"
	"chatcore/pkg/state/shutdown"

	"github.com/joho/godotenv"
)

func main() {
	_ = godotenv.Load(".env")

	baseURL := flag.String("url", "http://127.0.0.1:8080", "server base URL")
	email := flag.String("email", os.Getenv("CHATCORE_CLIENT_EMAIL"), "login email")
	password := flag.String("password", os.Getenv("CHATCORE_CLIENT_PASSWORD"), "login password")
	to := flag.String("to", "", "conversation partner")
	cfgPath := flag.String("config", "./config.yaml", "config file for client defaults")
	level := flag.String("log-level", "warn", "log level")
	flag.Parse()

	logger.Init(*level, "")
	defer logger.Sync()

	if *email == "" || *to == "" {
		fmt.Fprintln(os.Stderr, "usage: chatcore-client --email you@x.io --to them@x.io [--url http://host:port]")
		os.Exit(2)
	}

	cc := clientDefaults(*cfgPath)
	c := client.New(client.Config{
		BaseURL:        *baseURL,
		ReconnectDelay: cc.ReconnectDelay.Duration(),
		MaxAttempts:    cc.ReconnectAttempts,
		Window:         cc.ReconcileWindow.Duration(),
		OnEvent:        printEvent,
		OnState: func(from, to client.State) {
			fmt.Printf("* %s -> %s\n", from, to)
		},
	})

	ctx, cancel := shutdown.SetupSignalHandler(context.Background())
	defer cancel()

	if err := c.Login(ctx, *email, *password); err != nil {
		fmt.Fprintf(os.Stderr, "login: %v\n", err)
		os.Exit(1)
	}
	if _, err := c.History(ctx, *to, 20, 0); err != nil {
		fmt.Fprintf(os.Stderr, "history: %v\n", err)
	}
	for _, e := range c.Timeline(*to).Entries() {
		fmt.Printf("%s: %s [%s]\n", e.Message.Sender, e.Message.Content, e.Message.Status)
	}

	go func() {
		err := c.Run(ctx)
		if errors.Is(err, client.ErrOffline) || errors.Is(err, client.ErrUnauthorized) {
			fmt.Fprintf(os.Stderr, "push: %v\n", err)
		}
	}()

	sc := bufio.NewScanner(os.Stdin)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		if _, err := c.Send(ctx, *to, line); err != nil {
			fmt.Fprintf(os.Stderr, "send failed: %v\n", err)
		}
	}
}

func clientDefaults(path string) config.ClientConfig {
	cfg, err := config.LoadConfigFile(path)
	if err != nil {
		cfg = &config.Config{}
	}
	_ = cfg.ApplyDefaults()
	return cfg.Client
}

func printEvent(env models.Envelope) {
	switch env.Type {
	case models.EventNewMessage:
		var m models.Message
		if env.Decode(&m) == nil {
			fmt.Printf("%s: %s\n", m.Sender, m.Content)
		}
	case models.EventStatusChange:
		var sc models.StatusChange
		if env.Decode(&sc) == nil {
			fmt.Printf("* %s %s\n", sc.MessageID, sc.Status)
		}
	case models.EventTyping:
		var t models.Typing
		if env.Decode(&t) == nil && t.IsTyping {
			fmt.Printf("* %s is typing\n", t.UserEmail)
		}
	case models.EventPresenceChange:
		var p models.PresenceChange
		if env.Decode(&p) == nil {
			state := "offline"
			if p.IsOnline {
				state = "online"
			}
			fmt.Printf("* %s is %s\n", p.UserEmail, state)
		}
	}
}
