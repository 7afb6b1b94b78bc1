package command

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/yndnr/shellkeep-go/internal/cli/config"
	"github.com/yndnr/shellkeep-go/internal/cli/connection"
	"github.com/yndnr/shellkeep-go/internal/cli/output"
	"github.com/yndnr/shellkeep-go/internal/infra/buildinfo"
)

const metaConfig = "config"

// App creates the CLI application.
func App() *cli.App {
	app := &cli.App{
		Name:    "shellkeep-cli",
		Usage:   "Operate a shellkeep agent and run headless shell hosts",
		Version: buildinfo.String(),
		Flags:   globalFlags(),
		Commands: []*cli.Command{
			StatusCommand(),
			HealthCommand(),
			QueueCommand(),
			CacheCommand(),
			BadgeCommand(),
			StateCommand(),
			PushCommand(),
			WatchCommand(),
			ShellCommand(),
			ConfigCommand(),
		},
		Before: func(c *cli.Context) error {
			_, err := Config(c)
			return err
		},
	}

	return app
}

// globalFlags returns the global CLI flags.
func globalFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "agent",
			Aliases: []string{"a"},
			Usage:   "Agent address (http://host:port or unix:///path/to/agent.sock)",
			EnvVars: []string{config.EnvAgent},
		},
		&cli.StringFlag{
			Name:    "output",
			Aliases: []string{"o"},
			Usage:   "Output format: table, json, yaml",
			EnvVars: []string{config.EnvOutput},
		},
		&cli.BoolFlag{
			Name:    "wide",
			Aliases: []string{"w"},
			Usage:   "Show wide output (more columns)",
		},
		&cli.BoolFlag{
			Name:    "verbose",
			Aliases: []string{"V"},
			Usage:   "Enable verbose output",
		},
		&cli.StringFlag{
			Name:    "config",
			Aliases: []string{"c"},
			Usage:   "CLI configuration file",
			Value:   config.DefaultConfigPath(),
		},
		&cli.DurationFlag{
			Name:  "timeout",
			Usage: "Request timeout",
		},
	}
}

// GlobalFlags defines flags available to all commands.
type GlobalFlags struct {
	Agent   string
	Output  string // table, json, yaml
	Wide    bool
	Verbose bool
	Timeout time.Duration
}

// ParseGlobalFlags resolves the global settings: flags over environment
// over the config file.
func ParseGlobalFlags(c *cli.Context) *GlobalFlags {
	cfg, err := Config(c)
	if err != nil {
		cfg = config.Default()
	}
	return &GlobalFlags{
		Agent:   cfg.Agent,
		Output:  cfg.Output,
		Wide:    c.Bool("wide"),
		Verbose: c.Bool("verbose"),
		Timeout: cfg.Timeout,
	}
}

// Config loads the CLI configuration once per invocation and applies the
// environment and explicitly set flags over it.
func Config(c *cli.Context) (*config.CLIConfig, error) {
	if c.App.Metadata == nil {
		c.App.Metadata = make(map[string]any)
	}
	if cfg, ok := c.App.Metadata[metaConfig].(*config.CLIConfig); ok {
		return cfg, nil
	}

	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return nil, err
	}

	env := map[string]string{
		config.EnvAgent:  os.Getenv(config.EnvAgent),
		config.EnvOutput: os.Getenv(config.EnvOutput),
	}
	flags := make(map[string]string)
	for _, name := range []string{"agent", "output"} {
		if c.IsSet(name) {
			flags[name] = c.String(name)
		}
	}
	if c.IsSet("timeout") {
		flags["timeout"] = c.Duration("timeout").String()
	}

	cfg = config.Merge(cfg, env, flags)
	c.App.Metadata[metaConfig] = cfg
	return cfg, nil
}

// EnsureConnected returns a client for the configured agent.
func EnsureConnected(c *cli.Context) (*connection.HTTPClient, error) {
	cfg, err := Config(c)
	if err != nil {
		return nil, err
	}
	return connection.NewHTTPClient(cfg.Agent, cfg.Timeout), nil
}

// requestContext bounds one agent request by the configured timeout.
func requestContext(c *cli.Context) (context.Context, context.CancelFunc) {
	parent := c.Context
	if parent == nil {
		parent = context.Background()
	}
	timeout := ParseGlobalFlags(c).Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return context.WithTimeout(parent, timeout)
}

// stdout is where command output goes.
func stdout(c *cli.Context) io.Writer {
	if c.App.Writer != nil {
		return c.App.Writer
	}
	return os.Stdout
}

// render writes data in the selected output format.
func render(c *cli.Context, data any) error {
	flags := ParseGlobalFlags(c)
	format, err := output.ParseFormat(flags.Output)
	if err != nil {
		return err
	}
	return output.NewFormatter(format, flags.Wide).Format(stdout(c), data)
}

// structured reports whether the output format is machine-readable.
func structured(c *cli.Context) bool {
	format, err := output.ParseFormat(ParseGlobalFlags(c).Output)
	return err == nil && format.Structured()
}

// PrintError prints an error message to stderr.
func PrintError(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "error: "+format+"\n", args...)
}
