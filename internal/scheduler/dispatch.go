package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"pushflow/internal/channel"
	"pushflow/internal/config"
	"pushflow/internal/domain"
	"pushflow/internal/store"
)

// Engine runs a single due task to a terminal outcome: one send
// attempt, a bounded retry loop with a fixed delay, and the resulting
// task mutation. Errors never escape DispatchOne; every path ends in
// exactly one log record.
type Engine struct {
	repo     store.Repository
	registry *channel.Registry

	// sleep is swapped out in tests so retries don't wait on the
	// wall clock.
	sleep func(time.Duration)
}

func NewEngine(repo store.Repository, registry *channel.Registry) *Engine {
	return &Engine{repo: repo, registry: registry, sleep: time.Sleep}
}

// DispatchOne sends one task through its channel. now is the tick time
// and is recorded as the log's execute_time no matter how long the
// retries take; the duration field covers all attempts. A task whose
// retries exhaust is left untouched so the next tick picks it up again.
func (e *Engine) DispatchOne(ctx context.Context, t domain.Task, cfg config.Config, now time.Time) (rec domain.LogRecord) {
	rec = domain.LogRecord{
		TaskID:      t.ID,
		Channel:     t.Channel,
		ExecuteTime: now,
		Status:      domain.LogFail,
	}
	started := time.Now()
	defer func() {
		rec.DurationMS = time.Since(started).Milliseconds()
	}()

	// Resolve the sender and its config up front: an unknown channel
	// fails immediately with no retries, and the retry loop never runs
	// against an unresolved channel.
	chCfg, ok := cfg.NotificationChannels[t.Channel]
	if !ok {
		rec.Message = fmt.Sprintf("unknown channel %q", t.Channel)
		return rec
	}
	sender, ok := e.registry.Lookup(t.Channel)
	if !ok {
		rec.Message = fmt.Sprintf("no sender registered for channel %q", t.Channel)
		return rec
	}

	merged := channel.Merge(chCfg, t.ChannelConfig)
	msg := channel.Message{Title: t.Name, Content: t.Content, Overrides: t.ChannelConfig}

	attempts := 0
	var lastErr error
	for {
		attempts++
		_, err := sender.Send(ctx, msg, merged)
		if err == nil {
			rec.Status = domain.LogSuccess
			rec.Message = e.applySuccess(ctx, &t, now, attempts)
			return rec
		}
		lastErr = err
		if attempts > cfg.Retry.MaxRetry {
			break
		}
		e.sleep(time.Duration(cfg.Retry.RetryIntervalMS) * time.Millisecond)
	}

	rec.Message = fmt.Sprintf("failed after %d attempts: %v", attempts, lastErr)
	return rec
}

// applySuccess advances recurrence and persists the task. A persist
// failure is noted in the log message, but the record stays a success:
// the provider already accepted the message.
func (e *Engine) applySuccess(ctx context.Context, t *domain.Task, now time.Time, attempts int) string {
	next, active := Advance(*t, now)
	t.Status = active
	t.ExecuteTime = next
	t.ExecuteCount++
	t.UpdatedAt = now

	msg := fmt.Sprintf("sent on attempt %d", attempts)
	if err := e.repo.Update(ctx, *t); err != nil {
		log.Error().Err(err).Str("task_id", t.ID).Msg("failed to persist task after send")
		msg += "; task update failed: " + err.Error()
	}
	return msg
}
