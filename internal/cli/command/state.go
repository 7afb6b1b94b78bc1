package command

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/yndnr/shellkeep-go/internal/cli/connection"
	"github.com/yndnr/shellkeep-go/internal/core/domain"
	"github.com/yndnr/shellkeep-go/internal/statestore"
)

// StateCommand returns the page state subcommand group.
func StateCommand() *cli.Command {
	return &cli.Command{
		Name:  "state",
		Usage: "Read and write the page state stored by the agent",
		Subcommands: []*cli.Command{
			{
				Name:   "get",
				Usage:  "Show the stored page state",
				Action: stateGet,
			},
			{
				Name:      "save",
				Usage:     "Store a page state snapshot from a file (- for stdin)",
				ArgsUsage: "FILE",
				Action:    stateSave,
			},
		},
	}
}

func stateGet(c *cli.Context) error {
	client, err := EnsureConnected(c)
	if err != nil {
		return err
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	resp, err := client.Get(ctx, statestore.StatePath)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	data, err := connection.ReadBody(resp)
	if err != nil {
		return err
	}

	snap, err := domain.DecodeSnapshot(data)
	if err != nil {
		return err
	}
	if snap == nil {
		if structured(c) {
			return render(c, map[string]any{})
		}
		fmt.Fprintln(stdout(c), "No page state stored.")
		return nil
	}

	if structured(c) {
		return render(c, snap)
	}
	return render(c, summarizeSnapshot(snap, time.Now()))
}

// snapshotSummary is the table view of a snapshot.
type snapshotSummary struct {
	Location    string `json:"location"`
	Route       string `json:"route"`
	CapturedAt  string `json:"captured_at"`
	Age         string `json:"age"`
	Orientation string `json:"orientation"`
	WindowY     string `json:"window_scroll"`
	Scrolls     int    `json:"scroll_targets"`
	Fields      int    `json:"form_fields"`
	Overlays    int    `json:"overlays"`
	Tabs        int    `json:"active_tabs"`
}

func summarizeSnapshot(s *domain.Snapshot, now time.Time) snapshotSummary {
	sum := snapshotSummary{
		Location:    s.LocationURI,
		Route:       s.ApplicationData.Route.String(),
		CapturedAt:  s.CapturedTime().Format(time.RFC3339),
		Age:         s.Age(now).Truncate(time.Second).String(),
		Orientation: string(s.Orientation),
		Scrolls:     len(s.ScrollPositions),
		Fields:      len(s.FormFields),
		Overlays:    len(s.Overlays),
		Tabs:        len(s.ApplicationData.ActiveTabs),
	}
	if p, ok := s.WindowScroll(); ok {
		sum.WindowY = fmt.Sprintf("%.0f,%.0f", p.X, p.Y)
	}
	return sum
}

func stateSave(c *cli.Context) error {
	path := c.Args().First()
	if path == "" {
		return errors.New("snapshot file required")
	}

	var data []byte
	var err error
	if path == "-" {
		reader := c.App.Reader
		if reader == nil {
			reader = os.Stdin
		}
		data, err = io.ReadAll(reader)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return fmt.Errorf("read snapshot: %w", err)
	}

	snap, err := domain.DecodeSnapshot(data)
	if err != nil {
		return err
	}
	if snap == nil {
		return errors.New("snapshot is empty")
	}
	if err := snap.Validate(); err != nil {
		return err
	}

	client, err := EnsureConnected(c)
	if err != nil {
		return err
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	resp, err := client.Post(ctx, statestore.StatePath, data)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	if _, err := connection.ReadBody(resp); err != nil {
		return err
	}

	fmt.Fprintf(stdout(c), "✓ Stored page state for %s\n", snap.LocationURI)
	return nil
}
