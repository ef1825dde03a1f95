package ml

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestWatcherWarnsOnModelChange(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "fined.json")
	other := filepath.Join(dir, "notes.txt")
	require.NoError(t, os.WriteFile(path, []byte("{}"), 0o600))

	core, logs := observer.New(zap.WarnLevel)
	w, err := NewWatcher(zap.New(core), ModelInfo{Name: "fined", Path: path})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	require.NoError(t, os.WriteFile(other, []byte("ignored"), 0o600))
	require.NoError(t, os.WriteFile(path, []byte(`{"nodes":[]}`), 0o600))

	require.Eventually(t, func() bool {
		return logs.FilterMessage("model file changed on disk; restart to load it").Len() > 0
	}, 2*time.Second, 20*time.Millisecond)

	changed := w.Changed()
	assert.Contains(t, changed, "fined")
	assert.Len(t, changed, 1)

	cancel()
	require.NoError(t, <-done)
}
