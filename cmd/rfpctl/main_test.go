package main

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rfpdesk/internal/cache"
	"rfpdesk/internal/session"
)

func TestFailingCommandStillClosesApp(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("RFP_API_BASE_URL", "http://127.0.0.1:1")
	t.Setenv("RFP_DATA_DIR", dir)
	t.Setenv("RFP_CACHE_BACKEND", "bolt")
	t.Setenv("REDIS_ADDR", "")

	c := &cli{}
	err := c.execute(context.Background(), []string{"--config", filepath.Join(dir, "absent.yaml"), "whoami"})
	require.ErrorIs(t, err, session.ErrLoginRequired)
	assert.Nil(t, c.app)

	// The bolt file lock is released only when the app was closed.
	kv, err := cache.OpenBolt(filepath.Join(dir, "cache.db"))
	require.NoError(t, err)
	require.NoError(t, kv.Close())
}
