package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/yndnr/shellkeep-go/internal/cli/output"
)

// Environment overrides.
const (
	EnvAgent  = "SHELLKEEP_AGENT"
	EnvOutput = "SHELLKEEP_OUTPUT"
)

// DefaultConfigPath returns the default CLI config file path.
func DefaultConfigPath() string {
	homeDir, _ := os.UserHomeDir()
	return filepath.Join(homeDir, ".shellkeep", "cli.yaml")
}

// DefaultStateDir is where the shell host keeps its state files when the
// config names none.
func DefaultStateDir() string {
	homeDir, _ := os.UserHomeDir()
	return filepath.Join(homeDir, ".shellkeep", "state")
}

// Load reads the CLI configuration. A missing file yields the defaults;
// fields absent from the file keep their default values.
func Load(path string) (*CLIConfig, error) {
	if path == "" {
		path = DefaultConfigPath()
	}

	cfg := Default()
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return cfg, nil
}

// Save writes cfg as YAML with owner-only permissions.
func Save(cfg *CLIConfig, path string) error {
	if path == "" {
		path = DefaultConfigPath()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	return os.WriteFile(path, data, 0o600)
}

// Merge applies environment variables and then explicitly set flags over
// cfg. Flags win over the environment.
func Merge(cfg *CLIConfig, env map[string]string, flags map[string]string) *CLIConfig {
	if v := env[EnvAgent]; v != "" {
		cfg.Agent = v
	}
	if v := env[EnvOutput]; v != "" {
		cfg.Output = v
	}
	if v := flags["agent"]; v != "" {
		cfg.Agent = v
	}
	if v := flags["output"]; v != "" {
		cfg.Output = v
	}
	if v := flags["timeout"]; v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Timeout = d
		}
	}
	return cfg
}

// Validate checks the fields the CLI depends on.
func Validate(cfg *CLIConfig) error {
	if !strings.HasPrefix(cfg.Agent, "unix://") {
		if err := absoluteHTTP(cfg.Agent); err != nil {
			return fmt.Errorf("agent: %w", err)
		}
	} else if cfg.Agent == "unix://" {
		return errors.New("agent: unix address needs a socket path")
	}
	if _, err := output.ParseFormat(cfg.Output); err != nil {
		return fmt.Errorf("output: %w", err)
	}
	if cfg.Timeout < 0 {
		return errors.New("timeout must not be negative")
	}
	if err := absoluteHTTP(cfg.Shell.BaseURI); err != nil {
		return fmt.Errorf("shell.base_uri: %w", err)
	}
	for _, s := range cfg.Shell.Streams {
		if err := absoluteHTTP(s); err != nil {
			return fmt.Errorf("shell.streams: %w", err)
		}
	}
	return nil
}

func absoluteHTTP(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("%q is not an absolute http(s) URL", raw)
	}
	return nil
}
