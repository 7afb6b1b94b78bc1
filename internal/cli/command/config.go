package command

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/yndnr/shellkeep-go/internal/cli/config"
	"github.com/yndnr/shellkeep-go/internal/infra/confloader"
	serverconfig "github.com/yndnr/shellkeep-go/internal/server/config"
)

// ConfigCommand returns the config subcommand group.
func ConfigCommand() *cli.Command {
	return &cli.Command{
		Name:  "config",
		Usage: "Configuration management",
		Subcommands: []*cli.Command{
			{
				Name:   "show",
				Usage:  "Show the effective CLI configuration",
				Action: configShow,
			},
			{
				Name:   "validate",
				Usage:  "Validate the CLI configuration",
				Action: configValidate,
			},
			{
				Name:  "init",
				Usage: "Write a default CLI configuration file",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:    "force",
						Aliases: []string{"f"},
						Usage:   "Overwrite an existing file",
					},
				},
				Action: configInit,
			},
			{
				Name:      "agent",
				Usage:     "Validate a shellkeep-agent configuration file",
				ArgsUsage: "FILE",
				Action:    configAgentTest,
			},
		},
	}
}

func configShow(c *cli.Context) error {
	cfg, err := Config(c)
	if err != nil {
		return err
	}

	shown := *cfg
	if shown.Shell.EncryptionKey != "" {
		shown.Shell.EncryptionKey = "***"
	}

	if structured(c) {
		return render(c, shown)
	}

	w := stdout(c)
	fmt.Fprintf(w, "CLI Configuration\n")
	fmt.Fprintf(w, "=================\n\n")
	path := c.String("config")
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		fmt.Fprintf(w, "Config file: %s (not found, using defaults)\n\n", path)
	} else {
		fmt.Fprintf(w, "Config file: %s\n\n", path)
	}
	fmt.Fprintf(w, "Agent:    %s\n", shown.Agent)
	fmt.Fprintf(w, "Output:   %s\n", shown.Output)
	fmt.Fprintf(w, "Timeout:  %s\n", shown.Timeout)
	fmt.Fprintf(w, "\nShell host:\n")
	fmt.Fprintf(w, "  Base URI:    %s\n", shown.Shell.BaseURI)
	fmt.Fprintf(w, "  State dir:   %s\n", valueOr(shown.Shell.StateDir, config.DefaultStateDir()))
	fmt.Fprintf(w, "  KV dir:      %s\n", valueOr(shown.Shell.KVDir, "(disabled)"))
	fmt.Fprintf(w, "  Use agent:   %t\n", shown.Shell.UseAgent)
	fmt.Fprintf(w, "  Autosave:    %s\n", shown.Shell.AutosaveInterval)
	fmt.Fprintf(w, "  Encryption:  %s\n", valueOr(shown.Shell.EncryptionKey, "(disabled)"))
	for _, s := range shown.Shell.Streams {
		fmt.Fprintf(w, "  Stream:      %s\n", s)
	}
	return nil
}

func configValidate(c *cli.Context) error {
	cfg, err := Config(c)
	if err != nil {
		return err
	}
	if err := config.Validate(cfg); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	fmt.Fprintf(stdout(c), "✓ Configuration is valid: %s\n", c.String("config"))
	return nil
}

func configInit(c *cli.Context) error {
	path := c.String("config")
	if _, err := os.Stat(path); err == nil && !c.Bool("force") {
		return fmt.Errorf("%s already exists (use --force to overwrite)", path)
	}
	if err := config.Save(config.Default(), path); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	fmt.Fprintf(stdout(c), "✓ Wrote %s\n", path)
	return nil
}

// configAgentTest loads an agent config file the way shellkeep-agent
// does, environment overrides included, and verifies it.
func configAgentTest(c *cli.Context) error {
	path := c.Args().First()
	if path == "" {
		return errors.New("configuration file path required")
	}
	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("read file: %w", err)
	}

	cfg := serverconfig.Default()
	if err := confloader.NewLoader(confloader.WithConfigFile(path)).Load(cfg); err != nil {
		return err
	}
	if err := serverconfig.Verify(cfg); err != nil {
		return fmt.Errorf("invalid agent configuration: %w", err)
	}

	if structured(c) {
		return render(c, serverconfig.Sanitize(cfg))
	}
	fmt.Fprintf(stdout(c), "✓ Agent configuration is valid: %s\n", path)
	return nil
}

func valueOr(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}
