package command

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/urfave/cli/v2"

	"github.com/yndnr/shellkeep-go/internal/core/domain"
)

// BadgeCommand returns the unread badge subcommand group.
func BadgeCommand() *cli.Command {
	return &cli.Command{
		Name:  "badge",
		Usage: "Read and change the unread badge",
		Subcommands: []*cli.Command{
			{
				Name:   "get",
				Usage:  "Show the unread count",
				Action: badgeGet,
			},
			{
				Name:      "set",
				Usage:     "Set the unread count",
				ArgsUsage: "COUNT",
				Action:    badgeSet,
			},
			{
				Name:   "clear",
				Usage:  "Clear the badge",
				Action: badgeClear,
			},
		},
	}
}

func badgeGet(c *cli.Context) error {
	reply, err := sendMessage(c, domain.Message{Type: domain.MsgGetUnreadCount})
	if err != nil {
		return err
	}
	var count int
	if _, err := reply.Decode("count", &count); err != nil {
		return fmt.Errorf("parse count: %w", err)
	}

	if structured(c) {
		return render(c, map[string]int{"count": count})
	}
	fmt.Fprintf(stdout(c), "Unread: %d\n", count)
	return nil
}

func badgeSet(c *cli.Context) error {
	arg := c.Args().First()
	if arg == "" {
		return errors.New("count required")
	}
	count, err := strconv.Atoi(arg)
	if err != nil {
		return fmt.Errorf("invalid count %q", arg)
	}
	if count < 0 {
		return errors.New("count must not be negative")
	}

	if _, err := sendMessage(c, domain.Message{Type: domain.MsgUpdateBadge, Count: &count}); err != nil {
		return err
	}
	fmt.Fprintf(stdout(c), "✓ Badge set to %d\n", count)
	return nil
}

func badgeClear(c *cli.Context) error {
	if _, err := sendMessage(c, domain.Message{Type: domain.MsgClearBadge}); err != nil {
		return err
	}
	fmt.Fprintln(stdout(c), "✓ Badge cleared")
	return nil
}
