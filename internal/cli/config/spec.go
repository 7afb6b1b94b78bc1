package config

import "time"

// CLIConfig is the configuration for shellkeep-cli.
type CLIConfig struct {
	// Agent is the base URL of the agent the operator commands talk to.
	Agent   string        `yaml:"agent"`
	Output  string        `yaml:"output"` // table, json, yaml
	Timeout time.Duration `yaml:"timeout"`

	Shell ShellConfig `yaml:"shell"`
}

// ShellConfig configures the headless shell host (shellkeep-cli shell run).
type ShellConfig struct {
	BaseURI  string `yaml:"base_uri"`
	StateDir string `yaml:"state_dir"`
	// KVDir enables the Badger state backend when set.
	KVDir string `yaml:"kv_dir"`
	// UseAgent adds the agent endpoint and message backends.
	UseAgent bool `yaml:"use_agent"`
	// EncryptionKey seals the local state files when set.
	EncryptionKey string `yaml:"encryption_key"`

	AutosaveInterval  time.Duration `yaml:"autosave_interval"`
	RestoreRoute      bool          `yaml:"restore_route"`
	CrossPathOverlays bool          `yaml:"cross_path_overlays"`
	// Streams are extra event-stream endpoints the host keeps open.
	Streams []string `yaml:"streams"`
}

// Default returns the default CLI configuration.
func Default() *CLIConfig {
	return &CLIConfig{
		Agent:   "http://127.0.0.1:5080",
		Output:  "table",
		Timeout: 30 * time.Second,
		Shell: ShellConfig{
			BaseURI:          "http://127.0.0.1:5080/",
			UseAgent:         true,
			AutosaveInterval: 30 * time.Second,
			RestoreRoute:     true,
		},
	}
}
