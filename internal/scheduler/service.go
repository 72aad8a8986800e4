package scheduler

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"pushflow/internal/config"
	"pushflow/internal/domain"
	"pushflow/internal/store"
)

// Service drives the dispatch engine on a fixed tick. Every tick loads
// a fresh configuration, scans for due tasks, and runs them strictly
// one at a time - including each task's own retry loop.
type Service struct {
	repo     store.Repository
	source   config.Source
	engine   *Engine
	stop     chan struct{}
	interval time.Duration
}

func NewService(repo store.Repository, source config.Source, engine *Engine, interval time.Duration) *Service {
	return &Service{
		repo:     repo,
		source:   source,
		engine:   engine,
		stop:     make(chan struct{}),
		interval: interval,
	}
}

func (s *Service) Start(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	log.Info().Dur("interval", s.interval).Msg("scheduler started")

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stop:
			return
		case now := <-ticker.C:
			s.RunTick(ctx, now)
		}
	}
}

func (s *Service) Stop() {
	close(s.stop)
}

// RunTick runs one scheduler pass. A configuration problem aborts the
// whole pass; anything that goes wrong inside a single task's dispatch
// stays inside that task and never stops the ones after it.
func (s *Service) RunTick(ctx context.Context, now time.Time) {
	cfg, err := s.source.Load(ctx)
	if err != nil {
		log.Error().Err(err).Msg("failed to load configuration, skipping tick")
		return
	}

	tasks, err := s.repo.QueryDue(ctx, now)
	if err != nil {
		log.Error().Err(err).Msg("failed to query due tasks")
		return
	}

	for _, t := range tasks {
		rec := s.engine.DispatchOne(ctx, t, cfg, now)
		if _, err := s.repo.AppendLog(ctx, rec); err != nil {
			log.Error().Err(err).Str("task_id", t.ID).Msg("failed to append execution log")
		}

		evt := log.Info()
		if rec.Status == domain.LogFail {
			evt = log.Warn()
		}
		evt.Str("task_id", t.ID).
			Str("channel", t.Channel).
			Str("status", rec.Status).
			Int64("duration_ms", rec.DurationMS).
			Msg("task dispatched")
	}
}
