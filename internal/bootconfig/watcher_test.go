package bootconfig_test

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/nodalcore/container/internal/bootconfig"
)

func writeConfig(t *testing.T, path, level string) {
	t.Helper()
	content := "logging:\n  level: \"" + level + "\"\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
}

func TestNewWatcherResolvesAbsolutePath(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	path := filepath.Join(dir, "boot.yaml")
	writeConfig(t, path, "info")

	w, err := bootconfig.NewWatcher(path)
	require.NoError(t, err)
	defer w.Close()

	absPath, err := filepath.Abs(path)
	require.NoError(t, err)
	require.Equal(t, absPath, w.Path())
}

func TestNewWatcherFailsOnMissingDirectory(t *testing.T) {
	t.Parallel()
	_, err := bootconfig.NewWatcher("/does/not/exist/boot.yaml")
	require.Error(t, err)
}

func TestWatcherTriggersReloadCallback(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	path := filepath.Join(dir, "boot.yaml")
	writeConfig(t, path, "info")

	w, err := bootconfig.NewWatcher(path, bootconfig.WithDebounceDelay(10*time.Millisecond))
	require.NoError(t, err)
	defer w.Close()

	var reloaded atomic.Bool
	done := make(chan struct{}, 1)
	w.OnReload(func(cfg *bootconfig.Config) error {
		if cfg.Logging.Level == "debug" {
			reloaded.Store(true)
			select {
			case done <- struct{}{}:
			default:
			}
		}
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Watch(ctx)

	time.Sleep(20 * time.Millisecond)
	writeConfig(t, path, "debug")

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("reload callback never fired")
	}
	require.True(t, reloaded.Load())
}

func TestWatcherCloseIsIdempotentFailure(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	path := filepath.Join(dir, "boot.yaml")
	writeConfig(t, path, "info")

	w, err := bootconfig.NewWatcher(path)
	require.NoError(t, err)

	require.NoError(t, w.Close())
	require.ErrorIs(t, w.Close(), bootconfig.ErrWatcherClosed)
}
