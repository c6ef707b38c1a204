package config

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/hammamikhairi/turnocall/internal/logger"
)

func TestWatchReportsSettledChange(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "turnocall.yaml")
	if err := os.WriteFile(path, []byte("log:\n  level: normal\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	other := filepath.Join(dir, "other.yaml")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var changes atomic.Int32
	done := make(chan error, 1)
	go func() {
		done <- Watch(ctx, path, 50*time.Millisecond, logger.New(logger.LevelOff, nil), func() {
			changes.Add(1)
		})
	}()

	// Give the watcher time to register the directory.
	time.Sleep(100 * time.Millisecond)

	if err := os.WriteFile(other, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 3; i++ {
		if err := os.WriteFile(path, []byte("log:\n  level: verbose\n"), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	deadline := time.Now().Add(2 * time.Second)
	for changes.Load() == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if got := changes.Load(); got != 1 {
		t.Errorf("changes = %d, want 1", got)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Watch returned %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Watch did not return after cancel")
	}
}

func TestWatchMissingDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nope", "turnocall.yaml")
	err := Watch(context.Background(), path, 0, logger.New(logger.LevelOff, nil), func() {})
	if err == nil {
		t.Fatal("expected error for missing directory")
	}
}
