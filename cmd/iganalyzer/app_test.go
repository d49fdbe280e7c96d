package main

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"iganalyzer/pkg/auth"
	"iganalyzer/pkg/config"
	"iganalyzer/pkg/logger"
	"iganalyzer/pkg/session"
)

func testConfig(t *testing.T, backend string) *config.Config {
	dir := t.TempDir()
	cfg := config.DefaultConfig()
	cfg.Session.Backend = backend
	cfg.Session.Directory = filepath.Join(dir, "sessions")
	cfg.Session.SQLitePath = filepath.Join(dir, "sessions.db")
	cfg.Media.Directory = filepath.Join(dir, "media")
	require.NoError(t, cfg.Validate())
	return cfg
}

func TestNewAppBackends(t *testing.T) {
	for _, backend := range []string{"file", "sqlite"} {
		t.Run(backend, func(t *testing.T) {
			cfg := testConfig(t, backend)
			log := logger.NewTestLogger()

			a, err := newApp(cfg, log, nil)
			require.NoError(t, err)
			id := a.sessions.CreateOrGet("alice", "")
			require.NoError(t, a.Close())

			b, err := newApp(cfg, log, &auth.Credentials{Username: "me", SessionID: "sid", CSRFToken: "csrf"})
			require.NoError(t, err)
			defer b.Close()
			stats, err := b.sessions.Load(context.Background())
			require.NoError(t, err)
			assert.Equal(t, 1, stats.Loaded)
			sess, ok := b.sessions.Get(id, session.Peek)
			require.True(t, ok)
			assert.Equal(t, "alice", sess.Username)
		})
	}
}

func TestOpenSnapshotsUnknownBackend(t *testing.T) {
	_, err := openSnapshots(&config.SessionConfig{Backend: "redis"})
	assert.Error(t, err)
}
