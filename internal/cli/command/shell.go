package command

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/yndnr/shellkeep-go/internal/cli/config"
	"github.com/yndnr/shellkeep-go/internal/cli/connection"
	"github.com/yndnr/shellkeep-go/internal/core/domain"
	"github.com/yndnr/shellkeep-go/internal/infra/shutdown"
	"github.com/yndnr/shellkeep-go/internal/shell"
	"github.com/yndnr/shellkeep-go/internal/storage"
	"github.com/yndnr/shellkeep-go/internal/stream"
	"github.com/yndnr/shellkeep-go/internal/telemetry/logger"
	"github.com/yndnr/shellkeep-go/pkg/crypto/adaptive"
)

// shellStateKeyInfo separates the local state key from other keys derived
// from the same secret.
const shellStateKeyInfo = "shellkeep/local-state"

// ShellCommand returns the headless shell host command group.
func ShellCommand() *cli.Command {
	return &cli.Command{
		Name:  "shell",
		Usage: "Run a headless shell host",
		Subcommands: []*cli.Command{
			{
				Name:  "run",
				Usage: "Restore state, keep it saved and follow the lifecycle until stopped",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "base-uri", Usage: "Initial location"},
					&cli.StringFlag{Name: "state-dir", Usage: "Local state directory"},
					&cli.StringFlag{Name: "kv-dir", Usage: "Enable the Badger state backend in this directory"},
					&cli.BoolFlag{Name: "no-agent", Usage: "Do not use the agent backends or event stream"},
					&cli.BoolFlag{Name: "once", Usage: "Restore, print status, save and exit"},
					&cli.BoolFlag{Name: "no-stop", Usage: "Suspend on SIGTSTP without stopping the process"},
					&cli.StringFlag{Name: "log-level", Value: "info", Usage: "Log level: debug, info, warn, error"},
					&cli.StringFlag{Name: "log-format", Value: "text", Usage: "Log format: text, json"},
				},
				Action: shellRun,
			},
		},
	}
}

// shellSettings resolves the host configuration: flags over the config file.
func shellSettings(c *cli.Context) (*config.CLIConfig, config.ShellConfig, error) {
	cfg, err := Config(c)
	if err != nil {
		return nil, config.ShellConfig{}, err
	}
	sc := cfg.Shell
	if c.IsSet("base-uri") {
		sc.BaseURI = c.String("base-uri")
	}
	if c.IsSet("state-dir") {
		sc.StateDir = c.String("state-dir")
	}
	if c.IsSet("kv-dir") {
		sc.KVDir = c.String("kv-dir")
	}
	if c.Bool("no-agent") {
		sc.UseAgent = false
	}
	if sc.StateDir == "" {
		sc.StateDir = config.DefaultStateDir()
	}
	return cfg, sc, nil
}

func shellRun(c *cli.Context) error {
	cfg, sc, err := shellSettings(c)
	if err != nil {
		return err
	}

	l, err := logger.New(logger.Config{
		Level:  c.String("log-level"),
		Format: c.String("log-format"),
		Output: os.Stderr,
	})
	if err != nil {
		return fmt.Errorf("create logger: %w", err)
	}
	log := logger.Slog(l)

	opts := shell.Options{
		BaseURI:           sc.BaseURI,
		StateDir:          sc.StateDir,
		AutosaveInterval:  sc.AutosaveInterval,
		RestoreRoute:      sc.RestoreRoute,
		CrossPathOverlays: sc.CrossPathOverlays,
		Logger:            log,
	}

	hooks := shutdown.NewHandler(cfg.Timeout, log)

	if sc.KVDir != "" {
		kv, err := storage.NewBadgerEngine(storage.DefaultKVConfig(sc.KVDir), log)
		if err != nil {
			return fmt.Errorf("open kv store: %w", err)
		}
		// Registered first so it closes after the host's final save.
		hooks.OnShutdown("kv", func(context.Context) error { return kv.Close() })
		opts.KV = kv
	}

	if sc.EncryptionKey != "" {
		key, err := adaptive.DeriveKey(sc.EncryptionKey, shellStateKeyInfo)
		if err != nil {
			return err
		}
		if opts.Cipher, err = adaptive.New(key); err != nil {
			return err
		}
	}

	if sc.UseAgent {
		client := connection.NewHTTPClient(cfg.Agent, cfg.Timeout)
		opts.AgentURL = client.BaseURL()
		opts.Client = client.HTTP()
		opts.Dialer = &stream.HTTPDialer{Client: &http.Client{Transport: client.HTTP().Transport}}
	}

	parent := c.Context
	if parent == nil {
		parent = context.Background()
	}

	host, err := shell.New(parent, opts)
	if err != nil {
		hooks.Trigger()
		hooks.Wait(parent)
		return err
	}
	hooks.OnShutdown("shell", host.Close)

	if sc.UseAgent {
		if _, err := host.WatchAgent("cli", func(ev domain.Event) {
			log.Info("agent event", "type", ev.Type, "data", ev.Data)
		}); err != nil {
			log.Warn("agent events unavailable", "error", err)
		}
	}
	for _, endpoint := range sc.Streams {
		host.Streams.Get(endpoint, stream.DefaultOptions()).AddMessageListener("cli", func(m stream.Message) {
			log.Info("stream event", "endpoint", endpoint, "event", m.Event, "id", m.ID)
		})
	}

	restoreTimeout := cfg.Timeout
	if restoreTimeout <= 0 {
		restoreTimeout = 30 * time.Second
	}
	restoreCtx, cancel := context.WithTimeout(parent, restoreTimeout)
	if err := host.Controller.WaitRestored(restoreCtx); err != nil {
		log.Warn("initial restore did not finish", "error", err)
	}
	cancel()

	if c.Bool("once") {
		st := host.Status()
		hooks.Trigger()
		if err := hooks.Wait(parent); err != nil {
			return err
		}
		return render(c, st)
	}

	sigCtx, stopSignals := context.WithCancel(parent)
	defer stopSignals()
	go host.HandleSignals(sigCtx, !c.Bool("no-stop"))

	log.Info("shell host running", "uri", host.Navigator.CurrentURI(), "backends", host.Backends())
	return hooks.Wait(parent)
}
