package command

import (
	"encoding/json"
	"path/filepath"
	"slices"
	"testing"

	"github.com/urfave/cli/v2"

	"github.com/yndnr/shellkeep-go/internal/shell"
)

func shellFlags(t *testing.T) []cli.Flag {
	t.Helper()
	return subcommand(t, ShellCommand(), "run").Flags
}

func TestShellSettings(t *testing.T) {
	path := writeCLIConfig(t, `
shell:
  base_uri: http://file.local/
  state_dir: /from/file
  use_agent: true
`)

	t.Run("file", func(t *testing.T) {
		c := testContext(t, nil, shellFlags(t), "--config", path)
		_, sc, err := shellSettings(c)
		if err != nil {
			t.Fatal(err)
		}
		if sc.BaseURI != "http://file.local/" || sc.StateDir != "/from/file" || !sc.UseAgent {
			t.Errorf("settings = %+v", sc)
		}
	})

	t.Run("flags win", func(t *testing.T) {
		c := testContext(t, nil, shellFlags(t), "--config", path,
			"--base-uri", "http://flag.local/x", "--state-dir", "/from/flag", "--kv-dir", "/kv", "--no-agent")
		_, sc, err := shellSettings(c)
		if err != nil {
			t.Fatal(err)
		}
		if sc.BaseURI != "http://flag.local/x" || sc.StateDir != "/from/flag" || sc.KVDir != "/kv" || sc.UseAgent {
			t.Errorf("settings = %+v", sc)
		}
	})

	t.Run("default state dir", func(t *testing.T) {
		c := testContext(t, nil, shellFlags(t))
		_, sc, err := shellSettings(c)
		if err != nil {
			t.Fatal(err)
		}
		if sc.StateDir == "" {
			t.Error("StateDir not defaulted")
		}
	})
}

func runShellOnce(t *testing.T, args ...string) shell.Status {
	t.Helper()
	all := append([]string{"--once", "--no-agent", "--output", "json", "--log-level", "error"}, args...)
	c := testContext(t, nil, shellFlags(t), all...)
	if err := shellRun(c); err != nil {
		t.Fatalf("shellRun() error = %v", err)
	}
	var st shell.Status
	if err := json.Unmarshal([]byte(out(c)), &st); err != nil {
		t.Fatalf("output is not JSON: %v\n%s", err, out(c))
	}
	return st
}

func TestShellRun_Once(t *testing.T) {
	dir := t.TempDir()

	st := runShellOnce(t, "--state-dir", dir, "--base-uri", "http://app.local/x")
	if st.URI != "http://app.local/x" {
		t.Errorf("URI = %q", st.URI)
	}
	if want := []string{"local", "message"}; !slices.Equal(st.Backends, want) {
		t.Errorf("Backends = %v, want %v", st.Backends, want)
	}

	// The final save of the first run is what the second run restores.
	again := runShellOnce(t, "--state-dir", dir, "--base-uri", "http://app.local/")
	if again.URI != "http://app.local/x" {
		t.Errorf("restored URI = %q, want the saved location", again.URI)
	}
}

func TestShellRun_KV(t *testing.T) {
	st := runShellOnce(t,
		"--state-dir", t.TempDir(),
		"--kv-dir", filepath.Join(t.TempDir(), "kv"),
		"--base-uri", "http://app.local/")
	if want := []string{"local", "kv", "message"}; !slices.Equal(st.Backends, want) {
		t.Errorf("Backends = %v, want %v", st.Backends, want)
	}
}

func TestShellRun_RequiresBaseURI(t *testing.T) {
	c := testContext(t, nil, shellFlags(t), "--once", "--no-agent", "--state-dir", t.TempDir(), "--base-uri", "")
	if err := shellRun(c); err == nil {
		t.Error("expected error without a base URI")
	}
}
