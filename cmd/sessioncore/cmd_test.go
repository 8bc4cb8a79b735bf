package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/MrEthical07/sessioncore/store"
)

func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	cmd := newRootCmd(&out, &errOut)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func writeConfig(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "sessioncore.yaml")
	body := "jwt:\n" +
		"  secret: cli-test-secret-cli-test-secret-0123\n" +
		"telemetry:\n" +
		"  timezone: UTC\n" +
		"  alerts:\n" +
		"    enabled: false\n" +
		"log:\n" +
		"  level: error\n" +
		"store:\n" +
		"  driver: sqlite\n" +
		"  dsn: " + filepath.Join(dir, "sessions.db") + "\n"
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestVersion(t *testing.T) {
	out, err := runCLI(t, "version")
	if err != nil {
		t.Fatalf("version failed: %v", err)
	}
	if strings.TrimSpace(out) != "sessioncore "+version {
		t.Fatalf("unexpected output %q", out)
	}
}

func TestMigrateAndSweep(t *testing.T) {
	path := writeConfig(t)

	out, err := runCLI(t, "migrate", "--config", path)
	if err != nil {
		t.Fatalf("migrate failed: %v", err)
	}
	if !strings.Contains(out, "schema up to date (sqlite)") {
		t.Fatalf("unexpected migrate output %q", out)
	}

	out, err = runCLI(t, "sweep", "-c", path)
	if err != nil {
		t.Fatalf("sweep failed: %v", err)
	}
	var res store.SweepResult
	if err := json.Unmarshal([]byte(out), &res); err != nil {
		t.Fatalf("sweep output not json: %v (%q)", err, out)
	}
	if res != (store.SweepResult{}) {
		t.Fatalf("expected empty sweep on a fresh store, got %+v", res)
	}
}

func TestReport(t *testing.T) {
	path := writeConfig(t)
	out, err := runCLI(t, "report", "--config", path)
	if err != nil {
		t.Fatalf("report failed: %v", err)
	}
	var report map[string]any
	if err := json.Unmarshal([]byte(out), &report); err != nil {
		t.Fatalf("report output not json: %v (%q)", err, out)
	}
	if report["signingAlgorithm"] != "hs256" {
		t.Fatalf("unexpected signing algorithm %v", report["signingAlgorithm"])
	}
	if report["alerts"] != false {
		t.Fatalf("expected alerts disabled by config, got %v", report["alerts"])
	}
}

func TestSweepRejectsInvalidConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.yaml")
	if err := os.WriteFile(path, []byte("jwt:\n  secret: short\n"), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, err := runCLI(t, "sweep", "--config", path); err == nil {
		t.Fatalf("expected invalid config error")
	}
}

func TestLoadtestSmall(t *testing.T) {
	out, err := runCLI(t, "loadtest",
		"--sessions", "3",
		"--concurrency", "2",
		"--ops", "20",
		"--identifiers", "4",
	)
	if err != nil {
		t.Fatalf("loadtest failed: %v", err)
	}
	for _, want := range []string{"using miniredis", "authenticate: ops=20 failures=0", "refresh: ops=20 failures=0", "rate_limit: ops=20"} {
		if !strings.Contains(out, want) {
			t.Fatalf("missing %q in output:\n%s", want, out)
		}
	}
}

func TestLoadtestRejectsZeroOps(t *testing.T) {
	if _, err := runCLI(t, "loadtest", "--ops", "0"); err == nil {
		t.Fatalf("expected validation error")
	}
}

func TestPercentile(t *testing.T) {
	if percentile(nil, 50) != 0 {
		t.Fatalf("expected zero for empty samples")
	}
}
