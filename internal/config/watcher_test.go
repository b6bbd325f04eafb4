package config

import (
	"context"
	"os"
	"strings"
	"testing"
	"time"
)

func TestWatcherReloadsOnWrite(t *testing.T) {
	path := writeConfig(t, testConfigYAML)

	reloaded := make(chan *Config, 1)
	failed := make(chan error, 4)
	w, err := NewWatcher(path, func(c *Config) { reloaded <- c }, func(err error) { failed <- err })
	if err != nil {
		t.Fatalf("NewWatcher failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()
	defer func() {
		cancel()
		<-done
	}()

	updated := strings.Replace(testConfigYAML, "shot_threshold: 6", "shot_threshold: 8", 1)
	if err := os.WriteFile(path, []byte(updated), 0644); err != nil {
		t.Fatal(err)
	}

	select {
	case cfg := <-reloaded:
		if cfg.Autotune.ShotThreshold != 8 {
			t.Errorf("Autotune.ShotThreshold = %d, want 8", cfg.Autotune.ShotThreshold)
		}
	case err := <-failed:
		t.Fatalf("reload failed: %v", err)
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for reload")
	}
}

func TestWatcherReportsInvalidFile(t *testing.T) {
	path := writeConfig(t, testConfigYAML)

	failed := make(chan error, 4)
	w, err := NewWatcher(path, func(*Config) { t.Error("unexpected reload") }, func(err error) { failed <- err })
	if err != nil {
		t.Fatalf("NewWatcher failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()
	defer func() {
		cancel()
		<-done
	}()

	broken := strings.Replace(testConfigYAML, "shot_threshold: 6", "shot_threshold: 0", 1)
	if err := os.WriteFile(path, []byte(broken), 0644); err != nil {
		t.Fatal(err)
	}

	select {
	case <-failed:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for error callback")
	}
}
