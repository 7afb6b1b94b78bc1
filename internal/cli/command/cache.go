package command

import (
	"fmt"
	"sort"

	"github.com/urfave/cli/v2"

	"github.com/yndnr/shellkeep-go/internal/agent/cache"
	"github.com/yndnr/shellkeep-go/internal/cli/connection"
	"github.com/yndnr/shellkeep-go/internal/core/domain"
)

// CacheCommand returns the cache subcommand group.
func CacheCommand() *cli.Command {
	return &cli.Command{
		Name:  "cache",
		Usage: "Inspect and maintain the agent's response caches",
		Subcommands: []*cli.Command{
			{
				Name:   "info",
				Usage:  "Show the size of every cache",
				Action: cacheInfo,
			},
			{
				Name:   "cleanup",
				Usage:  "Drop outdated caches and enforce entry limits",
				Action: cacheCleanup,
			},
			{
				Name:   "activate",
				Usage:  "Run the full activation pass and show what it removed",
				Action: cacheActivate,
			},
		},
	}
}

// sendMessage delivers msg to the agent and fails on an unsuccessful reply.
func sendMessage(c *cli.Context, msg domain.Message) (*domain.Reply, error) {
	client, err := EnsureConnected(c)
	if err != nil {
		return nil, err
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	reply, err := client.Send(ctx, msg)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	if !reply.Success {
		return nil, fmt.Errorf("%s failed: %s", msg.Type, reply.Error)
	}
	return reply, nil
}

func cacheInfo(c *cli.Context) error {
	reply, err := sendMessage(c, domain.Message{Type: domain.MsgGetCacheInfo})
	if err != nil {
		return err
	}
	var info cache.Info
	if _, err := reply.Decode("cacheInfo", &info); err != nil {
		return fmt.Errorf("parse cache info: %w", err)
	}
	return printCacheInfo(c, &info)
}

func cacheCleanup(c *cli.Context) error {
	reply, err := sendMessage(c, domain.Message{Type: domain.MsgCleanupCaches})
	if err != nil {
		return err
	}
	var info cache.Info
	if _, err := reply.Decode("cacheInfo", &info); err != nil {
		return fmt.Errorf("parse cache info: %w", err)
	}
	if !structured(c) {
		fmt.Fprintln(stdout(c), "✓ Caches cleaned up")
	}
	return printCacheInfo(c, &info)
}

func cacheActivate(c *cli.Context) error {
	client, err := EnsureConnected(c)
	if err != nil {
		return err
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	resp, err := client.Post(ctx, "/agent/v1/activate", nil)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}

	var report cache.ActivationReport
	if err := connection.ParseResponse(resp, &report); err != nil {
		return err
	}

	if structured(c) {
		return render(c, report)
	}

	w := stdout(c)
	for _, name := range report.DeletedCaches {
		fmt.Fprintf(w, "Deleted cache:  %s\n", name)
	}
	for _, class := range sortedKeys(report.Evicted) {
		fmt.Fprintf(w, "Evicted:        %s (%d entries)\n", class, report.Evicted[class])
	}
	for _, class := range sortedKeys(report.Expired) {
		fmt.Fprintf(w, "Expired:        %s (%d entries)\n", class, report.Expired[class])
	}
	if report.Info == nil {
		return nil
	}
	return printCacheInfo(c, report.Info)
}

type cacheRow struct {
	Cache string `json:"cache"`
	Bytes int64  `json:"bytes"`
}

func printCacheInfo(c *cli.Context, info *cache.Info) error {
	if structured(c) {
		return render(c, info)
	}
	names := make([]string, 0, len(info.CacheSizes))
	for name := range info.CacheSizes {
		names = append(names, name)
	}
	sort.Strings(names)

	rows := make([]cacheRow, 0, len(names))
	for _, name := range names {
		rows = append(rows, cacheRow{Cache: name, Bytes: info.CacheSizes[name]})
	}
	if err := render(c, rows); err != nil {
		return err
	}
	fmt.Fprintf(stdout(c), "\nTotal: %s MB\n", info.TotalSizeMB)
	return nil
}

func sortedKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
