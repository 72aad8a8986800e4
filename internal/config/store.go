package config

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
)

var ErrConfig = errors.New("invalid configuration")

// Settings keys understood by Load.
const (
	KeyChannels = "notification_channels"
	KeyRetry    = "retry_config"
)

// RetryConfig bounds the dispatch engine's retry loop. RetryIntervalMS
// is the fixed delay slept before each retry attempt.
type RetryConfig struct {
	MaxRetry        int `json:"max_retry"`
	RetryIntervalMS int `json:"retry_interval"`
}

type Config struct {
	NotificationChannels map[string]map[string]string `json:"notification_channels"`
	Retry                RetryConfig                  `json:"retry_config"`
}

type Source interface {
	Load(ctx context.Context) (Config, error)
}

// Store reads runtime configuration from the settings key-value table.
// The scheduler calls Load on every tick, so edits take effect without
// a restart; nothing is cached here.
type Store struct{ db *sql.DB }

func NewStore(db *sql.DB) *Store { return &Store{db: db} }

func (s *Store) Load(ctx context.Context) (Config, error) {
	var cfg Config

	raw, err := s.get(ctx, KeyChannels)
	if err != nil {
		return Config{}, err
	}
	if raw == "" {
		return Config{}, fmt.Errorf("%w: %s is not set", ErrConfig, KeyChannels)
	}
	if err := json.Unmarshal([]byte(raw), &cfg.NotificationChannels); err != nil {
		return Config{}, fmt.Errorf("%w: %s: %v", ErrConfig, KeyChannels, err)
	}
	if len(cfg.NotificationChannels) == 0 {
		return Config{}, fmt.Errorf("%w: %s is empty", ErrConfig, KeyChannels)
	}

	raw, err = s.get(ctx, KeyRetry)
	if err != nil {
		return Config{}, err
	}
	if raw != "" {
		if err := json.Unmarshal([]byte(raw), &cfg.Retry); err != nil {
			return Config{}, fmt.Errorf("%w: %s: %v", ErrConfig, KeyRetry, err)
		}
	}
	return cfg, nil
}

// Set JSON-encodes value and upserts it under key.
func (s *Store) Set(ctx context.Context, key string, value any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
INSERT INTO settings(key,value) VALUES(?,?)
ON CONFLICT(key) DO UPDATE SET value=excluded.value`, key, string(raw))
	return err
}

func (s *Store) get(ctx context.Context, key string) (string, error) {
	var v string
	err := s.db.QueryRowContext(ctx, "SELECT value FROM settings WHERE key=?", key).Scan(&v)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return v, err
}
