package command

import (
	"bufio"
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/yndnr/shellkeep-go/internal/agent/syncqueue"
	"github.com/yndnr/shellkeep-go/internal/cli/connection"
	"github.com/yndnr/shellkeep-go/internal/cli/output"
	"github.com/yndnr/shellkeep-go/internal/core/domain"
)

// QueueCommand returns the sync queue subcommand group.
func QueueCommand() *cli.Command {
	return &cli.Command{
		Name:    "queue",
		Aliases: []string{"q"},
		Usage:   "Inspect and replay the offline sync queue",
		Subcommands: []*cli.Command{
			{
				Name:    "list",
				Aliases: []string{"ls"},
				Usage:   "List queued requests",
				Action:  queueList,
			},
			{
				Name:      "delete",
				Aliases:   []string{"rm"},
				Usage:     "Discard a queued request",
				ArgsUsage: "SYNC_ID",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:    "force",
						Aliases: []string{"f"},
						Usage:   "Skip confirmation",
					},
				},
				Action: queueDelete,
			},
			{
				Name:   "sync",
				Usage:  "Replay queued requests now",
				Action: queueSync,
			},
		},
	}
}

// queueItem is one row of queue list output.
type queueItem struct {
	ID       string `json:"id"`
	Method   string `json:"method"`
	URL      string `json:"url"`
	Age      string `json:"age"`
	Size     int    `json:"size" table:"wide"`
	QueuedAt string `json:"queued_at" table:"wide"`
}

func queueList(c *cli.Context) error {
	client, err := EnsureConnected(c)
	if err != nil {
		return err
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	resp, err := client.Get(ctx, "/agent/v1/queue")
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}

	var result struct {
		Items []*domain.SyncItem `json:"items"`
		Total int                `json:"total"`
	}
	if err := connection.ParseResponse(resp, &result); err != nil {
		return err
	}

	if structured(c) {
		return render(c, result)
	}

	if len(result.Items) == 0 {
		fmt.Fprintln(stdout(c), "Queue is empty.")
		return nil
	}

	now := time.Now()
	rows := make([]queueItem, 0, len(result.Items))
	for _, item := range result.Items {
		queued := time.UnixMilli(item.Timestamp)
		rows = append(rows, queueItem{
			ID:       item.ID,
			Method:   item.Method,
			URL:      item.URL,
			Age:      now.Sub(queued).Truncate(time.Second).String(),
			Size:     len(item.Data),
			QueuedAt: queued.Format(time.RFC3339),
		})
	}
	if err := render(c, rows); err != nil {
		return err
	}
	fmt.Fprintf(stdout(c), "\nTotal: %d\n", result.Total)
	return nil
}

func queueDelete(c *cli.Context) error {
	id := c.Args().First()
	if id == "" {
		return errors.New("sync ID required")
	}

	if !c.Bool("force") && !confirm(c, fmt.Sprintf("Discard queued request %s? [y/N] ", id)) {
		fmt.Fprintln(stdout(c), "Aborted.")
		return nil
	}

	client, err := EnsureConnected(c)
	if err != nil {
		return err
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	resp, err := client.Delete(ctx, "/agent/v1/queue/"+url.PathEscape(id))
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	if err := connection.ParseResponse(resp, nil); err != nil {
		return err
	}

	fmt.Fprintf(stdout(c), "✓ Discarded %s\n", id)
	return nil
}

func queueSync(c *cli.Context) error {
	client, err := EnsureConnected(c)
	if err != nil {
		return err
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	var spinner *output.Spinner
	if !structured(c) {
		spinner = output.NewSpinner(os.Stderr, "Replaying queued requests...")
		spinner.Start()
	}

	resp, err := client.Post(ctx, "/agent/v1/sync", nil)
	if err != nil {
		if spinner != nil {
			spinner.Fail("Replay failed")
		}
		return fmt.Errorf("request failed: %w", err)
	}

	var report syncqueue.Report
	if err := connection.ParseResponse(resp, &report); err != nil {
		if spinner != nil {
			spinner.Fail("Replay failed")
		}
		return err
	}

	if spinner == nil {
		return render(c, report)
	}
	spinner.Stop()

	w := stdout(c)
	if report.Coalesced {
		fmt.Fprintln(w, "A replay was already running; joined it.")
	}
	fmt.Fprintf(w, "✓ Replayed: %d  Expired: %d  Failed: %d\n",
		len(report.Replayed), len(report.Expired), report.Failed)
	if report.Failed > 0 {
		fmt.Fprintln(w, "Failed requests stay queued until the next pass.")
	}
	return nil
}

// confirm asks a yes/no question on the app's reader.
func confirm(c *cli.Context, prompt string) bool {
	fmt.Fprint(stdout(c), prompt)
	reader := c.App.Reader
	if reader == nil {
		reader = os.Stdin
	}
	line, _ := bufio.NewReader(reader).ReadString('\n')
	answer := strings.ToLower(strings.TrimSpace(line))
	return answer == "y" || answer == "yes"
}
