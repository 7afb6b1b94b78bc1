package command

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/yndnr/shellkeep-go/internal/cli/config"
)

func TestConfigCommand(t *testing.T) {
	cmd := ConfigCommand()
	if cmd.Name != "config" {
		t.Errorf("Name = %q, want config", cmd.Name)
	}
	for _, name := range []string{"show", "validate", "init", "agent"} {
		if sub := subcommand(t, cmd, name); sub.Action == nil {
			t.Errorf("%s has no action", name)
		}
	}
}

func writeCLIConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "cli.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestConfigShow(t *testing.T) {
	path := writeCLIConfig(t, `
agent: http://127.0.0.1:6080
shell:
  base_uri: http://app.local/
  encryption_key: correct-horse-battery-staple
  streams:
    - /api/v1/events
`)

	t.Run("text", func(t *testing.T) {
		c := testContext(t, nil, nil, "--config", path)
		if err := configShow(c); err != nil {
			t.Fatalf("configShow() error = %v", err)
		}
		got := out(c)
		for _, want := range []string{"Agent:    http://127.0.0.1:6080", "Encryption:  ***", "Stream:      /api/v1/events"} {
			if !strings.Contains(got, want) {
				t.Errorf("output missing %q:\n%s", want, got)
			}
		}
		if strings.Contains(got, "correct-horse") {
			t.Error("encryption key leaked")
		}
		if strings.Contains(got, "not found") {
			t.Error("existing file reported as missing")
		}
	})

	t.Run("json", func(t *testing.T) {
		c := testContext(t, nil, nil, "--config", path, "--output", "json")
		if err := configShow(c); err != nil {
			t.Fatal(err)
		}
		var shown config.CLIConfig
		if err := json.Unmarshal([]byte(out(c)), &shown); err != nil {
			t.Fatalf("output is not JSON: %v", err)
		}
		if shown.Shell.EncryptionKey != "***" {
			t.Errorf("EncryptionKey = %q, want masked", shown.Shell.EncryptionKey)
		}
	})

	t.Run("defaults", func(t *testing.T) {
		c := testContext(t, nil, nil)
		if err := configShow(c); err != nil {
			t.Fatal(err)
		}
		if !strings.Contains(out(c), "not found, using defaults") {
			t.Errorf("output = %q", out(c))
		}
	})
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr bool
	}{
		{"valid", "agent: http://127.0.0.1:5080\noutput: yaml\n", false},
		{"bad output", "output: xml\n", true},
		{"relative agent", "agent: localhost:5080\n", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := testContext(t, nil, nil, "--config", writeCLIConfig(t, tt.content))
			err := configValidate(c)
			if (err != nil) != tt.wantErr {
				t.Fatalf("configValidate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && !strings.Contains(out(c), "Configuration is valid") {
				t.Errorf("output = %q", out(c))
			}
		})
	}
}

func TestConfigInit(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "cli.yaml")
	flags := subcommand(t, ConfigCommand(), "init").Flags

	c := testContext(t, nil, flags, "--config", path)
	if err := configInit(c); err != nil {
		t.Fatalf("configInit() error = %v", err)
	}
	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Agent != config.Default().Agent {
		t.Errorf("Agent = %q, want default", cfg.Agent)
	}

	c = testContext(t, nil, flags, "--config", path)
	if err := configInit(c); err == nil {
		t.Error("expected error for existing file")
	}

	c = testContext(t, nil, flags, "--config", path, "--force")
	if err := configInit(c); err != nil {
		t.Errorf("configInit(--force) error = %v", err)
	}
}

func TestConfigAgent(t *testing.T) {
	dataDir := t.TempDir()
	valid := filepath.Join(t.TempDir(), "agent.yaml")
	os.WriteFile(valid, []byte(`
server:
  http:
    addr: 127.0.0.1:5099
upstream:
  url: http://127.0.0.1:3000
storage:
  data_dir: `+dataDir+`
security:
  encryption_key: s3cret-agent-key
`), 0o600)

	invalid := filepath.Join(t.TempDir(), "agent.yaml")
	os.WriteFile(invalid, []byte(`
upstream:
  url: ftp://files.example.com
storage:
  data_dir: `+dataDir+`
`), 0o600)

	t.Run("valid", func(t *testing.T) {
		c := testContext(t, nil, nil, valid)
		if err := configAgentTest(c); err != nil {
			t.Fatalf("configAgentTest() error = %v", err)
		}
		if !strings.Contains(out(c), "Agent configuration is valid") {
			t.Errorf("output = %q", out(c))
		}
	})

	t.Run("json masks secrets", func(t *testing.T) {
		c := testContext(t, nil, nil, "--output", "json", valid)
		if err := configAgentTest(c); err != nil {
			t.Fatal(err)
		}
		if strings.Contains(out(c), "s3cret-agent-key") {
			t.Errorf("encryption key leaked:\n%s", out(c))
		}
		if !strings.Contains(out(c), "127.0.0.1:5099") {
			t.Errorf("output missing listen address:\n%s", out(c))
		}
	})

	t.Run("invalid", func(t *testing.T) {
		c := testContext(t, nil, nil, invalid)
		err := configAgentTest(c)
		if err == nil || !strings.Contains(err.Error(), "upstream.url") {
			t.Errorf("configAgentTest() error = %v", err)
		}
	})

	t.Run("missing file", func(t *testing.T) {
		c := testContext(t, nil, nil, filepath.Join(dataDir, "nope.yaml"))
		if err := configAgentTest(c); err == nil {
			t.Error("expected error")
		}
	})

	t.Run("no argument", func(t *testing.T) {
		c := testContext(t, nil, nil)
		if err := configAgentTest(c); err == nil {
			t.Error("expected error")
		}
	})
}
