package config

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"pushflow/internal/store"
)

func testStore(t *testing.T) *Store {
	t.Helper()
	db, err := sql.Open("sqlite", filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	db.SetMaxOpenConns(1)
	require.NoError(t, store.EnsureSchema(db))
	return NewStore(db)
}

func TestLoadRoundTrip(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	channels := map[string]map[string]string{
		"serverchan": {"send_key": "SCTKEY"},
		"wecom":      {"corp_id": "c", "app_secret": "s", "agent_id": "1", "touser": "@all"},
	}
	require.NoError(t, s.Set(ctx, KeyChannels, channels))
	require.NoError(t, s.Set(ctx, KeyRetry, RetryConfig{MaxRetry: 3, RetryIntervalMS: 500}))

	cfg, err := s.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, channels, cfg.NotificationChannels)
	assert.Equal(t, 3, cfg.Retry.MaxRetry)
	assert.Equal(t, 500, cfg.Retry.RetryIntervalMS)
}

func TestLoadMissingChannels(t *testing.T) {
	s := testStore(t)
	_, err := s.Load(context.Background())
	assert.ErrorIs(t, err, ErrConfig)
}

func TestLoadMalformedChannels(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	require.NoError(t, s.Set(ctx, KeyChannels, "not-a-map"))

	_, err := s.Load(ctx)
	assert.ErrorIs(t, err, ErrConfig)
}

func TestLoadDefaultsRetry(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	require.NoError(t, s.Set(ctx, KeyChannels, map[string]map[string]string{"webhook": {"url": "http://x"}}))

	cfg, err := s.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, cfg.Retry.MaxRetry, "absent retry_config means no retries")
	assert.Equal(t, 0, cfg.Retry.RetryIntervalMS)
}

func TestSetOverwrites(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, KeyChannels, map[string]map[string]string{"webhook": {"url": "http://a"}}))
	require.NoError(t, s.Set(ctx, KeyChannels, map[string]map[string]string{"webhook": {"url": "http://b"}}))

	cfg, err := s.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, "http://b", cfg.NotificationChannels["webhook"]["url"])
}
