package scheduler

import (
	"time"

	"github.com/robfig/cron/v3"
	"pushflow/internal/domain"
)

// Advance decides whether a task fires again after a successful send
// and, if so, when. single tasks never do. cycle tasks stop once
// end_time has passed; otherwise the next firing is one calendar
// period after now, so month boundaries roll over by date arithmetic
// rather than fixed-duration addition. An unrecognized period, or a
// cron period with an unparseable expression, keeps the task active
// with its time unchanged: the task stalls instead of erroring.
func Advance(t domain.Task, now time.Time) (time.Time, bool) {
	if t.Type != domain.TypeCycle {
		return t.ExecuteTime, false
	}
	cc := t.CycleConfig
	if cc.EndTime != nil && !cc.EndTime.After(now) {
		return t.ExecuteTime, false
	}
	switch cc.Period {
	case domain.PeriodDay:
		return now.AddDate(0, 0, 1), true
	case domain.PeriodWeek:
		return now.AddDate(0, 0, 7), true
	case domain.PeriodMonth:
		return now.AddDate(0, 1, 0), true
	case domain.PeriodCron:
		sched, err := cron.ParseStandard(cc.CronExpr)
		if err != nil {
			return t.ExecuteTime, true
		}
		return sched.Next(now), true
	default:
		return t.ExecuteTime, true
	}
}

// ValidateCronExpression validates a standard five-field cron expression.
func ValidateCronExpression(expr string) error {
	_, err := cron.ParseStandard(expr)
	return err
}
