package domain

import "time"

const (
	TypeSingle = "single"
	TypeCycle  = "cycle"
)

const (
	PeriodDay   = "day"
	PeriodWeek  = "week"
	PeriodMonth = "month"
	PeriodCron  = "cron"
)

const (
	LogSuccess = "success"
	LogFail    = "fail"
)

// CycleConfig describes how a cycle task repeats. CronExpr is only
// consulted when Period is "cron". A nil EndTime means the task repeats
// forever.
type CycleConfig struct {
	Period   string     `json:"period"`
	CronExpr string     `json:"cron_expr,omitempty"`
	EndTime  *time.Time `json:"end_time,omitempty"`
}

type Task struct {
	ID            string            `json:"id"`
	Name          string            `json:"name"`
	Content       string            `json:"content"`
	Channel       string            `json:"channel"`
	ChannelConfig map[string]string `json:"channel_config,omitempty"`
	Status        bool              `json:"status"`
	Type          string            `json:"type"`
	CycleConfig   CycleConfig       `json:"cycle_config"`
	ExecuteTime   time.Time         `json:"execute_time"`
	ExecuteCount  int               `json:"execute_count"`
	CreatedAt     time.Time         `json:"create_time"`
	UpdatedAt     time.Time         `json:"update_time"`
}

// Due reports whether the task is eligible to fire at now.
func (t Task) Due(now time.Time) bool {
	return t.Status && !t.ExecuteTime.After(now)
}

// LogRecord is one append-only execution log entry: one per task per
// scheduler tick, no matter how many retries happened inside the tick.
// ExecuteTime is the tick time, not the wall clock of any attempt.
type LogRecord struct {
	ID          string    `json:"id"`
	TaskID      string    `json:"task_id"`
	Channel     string    `json:"channel"`
	ExecuteTime time.Time `json:"execute_time"`
	Status      string    `json:"status"`
	Message     string    `json:"message"`
	DurationMS  int64     `json:"duration_ms"`
	CreatedAt   time.Time `json:"create_time"`
}
