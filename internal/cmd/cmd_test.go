package cmd

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/Iron-Ham/coeftune/internal/channel"
	"github.com/Iron-Ham/coeftune/internal/config"
	"github.com/Iron-Ham/coeftune/internal/logging"
)

// executeCommand runs a cobra command with args and returns captured output
func executeCommand(root *cobra.Command, args ...string) (output string, err error) {
	buf := new(bytes.Buffer)
	root.SetOut(buf)
	root.SetErr(buf)
	root.SetArgs(args)
	err = root.Execute()
	return buf.String(), err
}

// writeConfig marshals cfg into a temp file and returns its path.
func writeConfig(t *testing.T, cfg *config.Config) string {
	t.Helper()
	data, err := yaml.Marshal(cfg)
	if err != nil {
		t.Fatalf("marshal config: %v", err)
	}
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestRootCommand(t *testing.T) {
	if rootCmd.Use != "coeftune" {
		t.Errorf("rootCmd.Use = %q, want %q", rootCmd.Use, "coeftune")
	}

	cmdMap := make(map[string]bool)
	for _, cmd := range rootCmd.Commands() {
		cmdMap[cmd.Name()] = true
	}
	for _, expected := range []string{"run", "validate", "status", "config", "logs"} {
		if !cmdMap[expected] {
			t.Errorf("expected subcommand %q not found", expected)
		}
	}
}

func TestValidateCommand(t *testing.T) {
	path := writeConfig(t, config.Sample())

	output, err := executeCommand(rootCmd, "validate", "--config", path)
	if err != nil {
		t.Fatalf("validate failed: %v\n%s", err, output)
	}
	if !strings.Contains(output, "OK, 3 coefficients") {
		t.Errorf("output = %q", output)
	}
}

func TestValidateCommandReportsProblems(t *testing.T) {
	cfg := config.Sample()
	cfg.TuningOrder = append(cfg.TuningOrder, "Unknown")
	cfg.Autotune.ShotThreshold = 0
	path := writeConfig(t, cfg)

	output, err := executeCommand(rootCmd, "validate", "--config", path)
	if err == nil {
		t.Fatalf("validate succeeded on a bad config:\n%s", output)
	}
	if !strings.Contains(output, "tuning_order") || !strings.Contains(output, "autotune.shot_threshold") {
		t.Errorf("output = %q, want both problems listed", output)
	}
}

func TestConfigInitAndShow(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")

	output, err := executeCommand(rootCmd, "config", "init", path)
	if err != nil {
		t.Fatalf("config init failed: %v\n%s", err, output)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("config file not created: %v", err)
	}

	cfg, err := config.LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile() error = %v", err)
	}
	if errs := cfg.Validate(); len(errs) != 0 {
		t.Errorf("starter config is invalid: %v", config.ValidationErrors(errs))
	}

	if _, err := executeCommand(rootCmd, "config", "init", path); err == nil {
		t.Error("config init overwrote an existing file without --force")
	}

	output, err = executeCommand(rootCmd, "config", "show", "--config", path)
	if err != nil {
		t.Fatalf("config show failed: %v", err)
	}
	for _, want := range []string{"# Config file: " + path, "tuning_order:", "DragCoefficient", "shot_threshold: 10"} {
		if !strings.Contains(output, want) {
			t.Errorf("config show output missing %q", want)
		}
	}
}

func TestStatusCommand(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := config.Sample()
	cfg.Channel.Address = mr.Addr()
	path := writeConfig(t, cfg)

	store, err := channel.NewRedisStore(mr.Addr(), cfg.Channel.KeyPrefix)
	if err != nil {
		t.Fatalf("NewRedisStore() error = %v", err)
	}
	defer store.Close()
	ctx := context.Background()
	for key, value := range map[string]any{
		channel.KeyRuntimeStatus:      "WAITING",
		channel.KeyCurrentCoefficient: "DragCoefficient",
		channel.KeyShotCount:          4.0,
		channel.KeyConnected:          true,
		"/Tuning/DragCoefficient":     0.48,
	} {
		if err := store.Set(ctx, key, value); err != nil {
			t.Fatalf("Set(%s) error = %v", key, err)
		}
	}

	output, err := executeCommand(rootCmd, "status", "--config", path)
	if err != nil {
		t.Fatalf("status failed: %v\n%s", err, output)
	}

	for _, want := range []string{
		"State:",
		"WAITING",
		"Shots:",
		"Connected:",
		"true",
		"DragCoefficient:",
		"0.48",
	} {
		if !strings.Contains(output, want) {
			t.Errorf("status output missing %q:\n%s", want, output)
		}
	}
	if strings.Contains(output, "\x1b[") {
		t.Error("status output is styled when not writing to a terminal")
	}
}

func TestStatusCommandUnreachable(t *testing.T) {
	cfg := config.Sample()
	cfg.Channel.Address = "127.0.0.1:1"
	path := writeConfig(t, cfg)

	if _, err := executeCommand(rootCmd, "status", "--config", path); err == nil {
		t.Error("status succeeded against a stopped store")
	}
}

func TestRenderStatus(t *testing.T) {
	rows := []statusRow{
		{label: "State", value: "PAUSED", state: true},
		{label: "Coefficient", value: "DragCoefficient"},
	}

	var buf bytes.Buffer
	renderStatus(&buf, rows, false)
	want := "State:        PAUSED\nCoefficient:  DragCoefficient\n"
	if buf.String() != want {
		t.Errorf("renderStatus() = %q, want %q", buf.String(), want)
	}
}

func TestDisplay(t *testing.T) {
	tests := []struct {
		in    any
		found bool
		want  string
	}{
		{nil, false, "-"},
		{"", true, "-"},
		{4.0, true, "4"},
		{0.4799, true, "0.4799"},
		{true, true, "true"},
		{"WAITING", true, "WAITING"},
	}
	for _, tt := range tests {
		if got := display(tt.in, tt.found); got != tt.want {
			t.Errorf("display(%v, %v) = %q, want %q", tt.in, tt.found, got, tt.want)
		}
	}
}

func TestLogsCommand(t *testing.T) {
	dir := t.TempDir()
	logger, err := logging.NewLogger(dir, "debug", logging.DefaultRotationConfig())
	if err != nil {
		t.Fatalf("NewLogger() error = %v", err)
	}
	logger.Info("session created")
	logger.WithCoefficient("DragCoefficient").Warn("optimization failed, keeping buffer")
	logger.WithCoefficient("GravityCompensation").Warn("shot rejected")
	if err := logger.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	output, err := executeCommand(rootCmd, "logs", "--dir", dir, "--level", "warn", "--coefficient", "DragCoefficient", "-n", "0")
	if err != nil {
		t.Fatalf("logs failed: %v", err)
	}
	if !strings.Contains(output, "optimization failed") {
		t.Errorf("output missing the matching warning:\n%s", output)
	}
	if strings.Contains(output, "session created") || strings.Contains(output, "shot rejected") {
		t.Errorf("output not filtered:\n%s", output)
	}
}
