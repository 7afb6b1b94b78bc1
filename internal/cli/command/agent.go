package command

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"slices"
	"strings"
	"syscall"

	"github.com/urfave/cli/v2"

	"github.com/yndnr/shellkeep-go/internal/agent"
	"github.com/yndnr/shellkeep-go/internal/cli/connection"
	"github.com/yndnr/shellkeep-go/internal/core/domain"
	"github.com/yndnr/shellkeep-go/internal/stream"
)

// StatusCommand returns the agent status command.
func StatusCommand() *cli.Command {
	return &cli.Command{
		Name:   "status",
		Usage:  "Show agent status summary",
		Action: agentStatus,
	}
}

// HealthCommand returns the health check command.
func HealthCommand() *cli.Command {
	return &cli.Command{
		Name:  "health",
		Usage: "Check agent health",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "ready",
				Usage: "Check readiness instead of liveness",
			},
		},
		Action: agentHealth,
	}
}

// PushCommand returns the push notification command.
func PushCommand() *cli.Command {
	return &cli.Command{
		Name:      "push",
		Usage:     "Deliver a push notification to the agent",
		ArgsUsage: "TITLE",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "body", Aliases: []string{"b"}, Usage: "Notification body"},
			&cli.StringFlag{Name: "icon", Usage: "Icon URL"},
			&cli.StringFlag{Name: "url", Usage: "URL opened on click"},
		},
		Action: agentPush,
	}
}

// WatchCommand returns the event stream command.
func WatchCommand() *cli.Command {
	return &cli.Command{
		Name:  "watch",
		Usage: "Follow the agent's event stream",
		Flags: []cli.Flag{
			&cli.StringSliceFlag{
				Name:    "type",
				Aliases: []string{"t"},
				Usage:   "Only show these event types (e.g. BADGE_UPDATE)",
			},
			&cli.IntFlag{
				Name:    "count",
				Aliases: []string{"n"},
				Usage:   "Exit after this many events (0 = until interrupted)",
			},
			&cli.IntFlag{
				Name:  "retries",
				Value: stream.DefaultOptions().MaxReconnectAttempts,
				Usage: "Reconnect attempts before giving up",
			},
		},
		Action: watchEvents,
	}
}

func agentStatus(c *cli.Context) error {
	client, err := EnsureConnected(c)
	if err != nil {
		return err
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	resp, err := client.Get(ctx, "/agent/v1/status")
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}

	var st agent.Status
	if err := connection.ParseResponse(resp, &st); err != nil {
		return err
	}

	if structured(c) {
		return render(c, st)
	}

	w := stdout(c)
	online := "online"
	if !st.Online {
		online = "offline"
	}
	fmt.Fprintf(w, "Agent Status\n")
	fmt.Fprintf(w, "============\n\n")
	fmt.Fprintf(w, "Upstream:     %s (%s)\n", st.Upstream, online)
	fmt.Fprintf(w, "Queue Depth:  %d\n", st.QueueDepth)
	fmt.Fprintf(w, "Unread:       %d\n", st.UnreadCount)
	fmt.Fprintf(w, "Subscribers:  %d\n", st.Subscribers)
	if st.Cache != nil {
		fmt.Fprintf(w, "Cache Size:   %s MB\n", st.Cache.TotalSizeMB)
	}
	return nil
}

func agentHealth(c *cli.Context) error {
	client, err := EnsureConnected(c)
	if err != nil {
		return err
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	path := "/health"
	if c.Bool("ready") {
		path = "/ready"
	}
	resp, err := client.Get(ctx, path)
	if err != nil {
		PrintError("health check failed: %v", err)
		return errors.New("agent unreachable")
	}

	var result struct {
		Status string `json:"status"`
		Online *bool  `json:"online,omitempty"`
		Time   string `json:"time"`
	}
	if err := connection.ParseResponse(resp, &result); err != nil {
		return err
	}

	if structured(c) {
		return render(c, result)
	}
	line := result.Status
	if result.Online != nil && !*result.Online {
		line += " (upstream offline)"
	}
	fmt.Fprintf(stdout(c), "✓ Agent is %s\n", line)
	return nil
}

func agentPush(c *cli.Context) error {
	title := c.Args().First()
	if title == "" {
		return errors.New("notification title required")
	}

	client, err := EnsureConnected(c)
	if err != nil {
		return err
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	resp, err := client.Post(ctx, "/agent/v1/push", agent.Notification{
		Title: title,
		Body:  c.String("body"),
		Icon:  c.String("icon"),
		URL:   c.String("url"),
	})
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}

	var result struct {
		UnreadCount int `json:"unread_count"`
	}
	if err := connection.ParseResponse(resp, &result); err != nil {
		return err
	}

	if structured(c) {
		return render(c, result)
	}
	fmt.Fprintf(stdout(c), "✓ Notification delivered (unread: %d)\n", result.UnreadCount)
	return nil
}

func watchEvents(c *cli.Context) error {
	client, err := EnsureConnected(c)
	if err != nil {
		return err
	}

	parent := c.Context
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	var types []domain.EventType
	for _, t := range c.StringSlice("type") {
		types = append(types, domain.EventType(strings.ToUpper(t)))
	}
	limit := c.Int("count")

	// Streams stay open, so the dialer gets no overall timeout.
	dialer := &stream.HTTPDialer{Client: &http.Client{Transport: client.HTTP().Transport}}
	reg := stream.NewRegistry(dialer, slog.Default())
	defer reg.CloseAll()

	done := make(chan struct{})
	defer close(done)

	events := make(chan domain.Event, 16)
	exhausted := make(chan struct{}, 1)

	conn := reg.Get(client.BaseURL()+agent.EventsPath, stream.Options{MaxReconnectAttempts: c.Int("retries")})
	conn.OnStatus(func(s stream.Status) {
		if s == stream.StatusExhausted {
			select {
			case exhausted <- struct{}{}:
			default:
			}
		}
	})
	conn.AddMessageListener("watch", func(m stream.Message) {
		var ev domain.Event
		if err := json.Unmarshal([]byte(m.Data), &ev); err != nil {
			slog.Debug("undecodable event", "event", m.Event, "error", err)
			return
		}
		if len(types) > 0 && !slices.Contains(types, ev.Type) {
			return
		}
		select {
		case events <- ev:
		case <-done:
		}
	})

	seen := 0
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-exhausted:
			return fmt.Errorf("event stream at %s unavailable", client.BaseURL())
		case ev := <-events:
			if err := printEvent(c, ev); err != nil {
				return err
			}
			seen++
			if limit > 0 && seen >= limit {
				return nil
			}
		}
	}
}

func printEvent(c *cli.Context, ev domain.Event) error {
	if structured(c) {
		return render(c, ev)
	}
	data, err := json.Marshal(ev.Data)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(stdout(c), "%-18s %s\n", ev.Type, data)
	return err
}
