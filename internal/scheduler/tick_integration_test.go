package scheduler

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"pushflow/internal/channel"
	"pushflow/internal/config"
	"pushflow/internal/domain"
	"pushflow/internal/store"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	db.SetMaxOpenConns(1)
	require.NoError(t, store.EnsureSchema(db))
	return db
}

func TestTickRetriesExhaustAgainstFailingProvider(t *testing.T) {
	attempts := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		json.NewEncoder(w).Encode(map[string]any{"code": 40001, "message": "push endpoint down"})
	}))
	defer srv.Close()

	db := openTestDB(t)
	repo := store.NewSQLiteRepo(db)
	cfgStore := config.NewStore(db)
	ctx := context.Background()

	require.NoError(t, cfgStore.Set(ctx, config.KeyChannels, map[string]map[string]string{
		"serverchan": {"send_key": "SCTKEY", "api_base": srv.URL},
	}))
	require.NoError(t, cfgStore.Set(ctx, config.KeyRetry, config.RetryConfig{MaxRetry: 2, RetryIntervalMS: 10}))

	now := time.Now().UTC().Truncate(time.Second)
	id, err := repo.Insert(ctx, domain.Task{
		Name:        "one shot",
		Channel:     "serverchan",
		Status:      true,
		Type:        domain.TypeSingle,
		ExecuteTime: now.Add(-time.Second),
	})
	require.NoError(t, err)

	engine := NewEngine(repo, channel.DefaultRegistry(srv.Client()))
	svc := NewService(repo, cfgStore, engine, time.Minute)
	svc.RunTick(ctx, now)

	assert.Equal(t, 3, attempts, "initial attempt plus two retries")

	logs, err := repo.ListLogs(ctx, id, 10)
	require.NoError(t, err)
	require.Len(t, logs, 1, "exactly one record per tick")
	assert.Equal(t, domain.LogFail, logs[0].Status)
	assert.Contains(t, logs[0].Message, "3 attempts")

	got, err := repo.Get(ctx, id)
	require.NoError(t, err)
	assert.True(t, got.Status, "task stays due after exhausted retries")

	due, err := repo.QueryDue(ctx, now)
	require.NoError(t, err)
	assert.Len(t, due, 1, "next tick sees it again")
}

func TestTickAdvancesWeeklyCycle(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"code": 0, "data": map[string]any{"pushid": "p1"}})
	}))
	defer srv.Close()

	db := openTestDB(t)
	repo := store.NewSQLiteRepo(db)
	cfgStore := config.NewStore(db)
	ctx := context.Background()

	require.NoError(t, cfgStore.Set(ctx, config.KeyChannels, map[string]map[string]string{
		"serverchan": {"send_key": "SCTKEY", "api_base": srv.URL},
	}))

	now := time.Now().UTC().Truncate(time.Second)
	id, err := repo.Insert(ctx, domain.Task{
		Name:        "weekly digest",
		Channel:     "serverchan",
		Status:      true,
		Type:        domain.TypeCycle,
		CycleConfig: domain.CycleConfig{Period: domain.PeriodWeek},
		ExecuteTime: now,
	})
	require.NoError(t, err)

	engine := NewEngine(repo, channel.DefaultRegistry(srv.Client()))
	svc := NewService(repo, cfgStore, engine, time.Minute)
	svc.RunTick(ctx, now)

	got, err := repo.Get(ctx, id)
	require.NoError(t, err)
	assert.True(t, got.Status)
	assert.True(t, got.ExecuteTime.Equal(now.AddDate(0, 0, 7)), "got %v", got.ExecuteTime)
	assert.Equal(t, 1, got.ExecuteCount)

	logs, err := repo.ListLogs(ctx, id, 10)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, domain.LogSuccess, logs[0].Status)
}
