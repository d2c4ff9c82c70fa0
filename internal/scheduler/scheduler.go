// Package scheduler runs periodic jobs aligned to wall-clock interval
// boundaries, so an hourly job fires at the top of the hour regardless of
// when the process started.
package scheduler

import (
	"context"
	"time"

	"tvbridge/internal/logger"
)

// AlignedScheduler wakes at every Interval boundary plus Offset and runs the
// task. Start blocks until the context is cancelled.
type AlignedScheduler struct {
	Name           string
	Interval       time.Duration
	Offset         time.Duration
	RunImmediately bool

	ctx   context.Context
	nowFn func() time.Time
}

func NewAlignedScheduler(ctx context.Context, interval, offset time.Duration) *AlignedScheduler {
	if ctx == nil {
		ctx = context.Background()
	}
	return &AlignedScheduler{
		Interval: interval,
		Offset:   offset,
		ctx:      ctx,
		nowFn:    time.Now,
	}
}

func (s *AlignedScheduler) Start(task func()) {
	if s == nil {
		return
	}
	prefix := "scheduler"
	if s.Name != "" {
		prefix = "scheduler[" + s.Name + "]"
	}
	if task == nil {
		logger.Warnf("%s: task is nil, exit", prefix)
		return
	}
	if s.Interval <= 0 {
		logger.Warnf("%s: invalid interval=%s, exit", prefix, s.Interval)
		return
	}
	if s.Offset < 0 {
		logger.Warnf("%s: negative offset=%s, clamp to 0", prefix, s.Offset)
		s.Offset = 0
	}
	if s.ctx == nil {
		s.ctx = context.Background()
	}
	if s.nowFn == nil {
		s.nowFn = time.Now
	}

	startAt := s.nowFn().UTC()
	logger.Infof("%s: started interval=%s offset=%s run_immediately=%v at=%s",
		prefix, s.Interval, s.Offset, s.RunImmediately, startAt.Format(time.RFC3339))

	if s.RunImmediately {
		task()
	}

	for {
		now := s.nowFn().UTC()
		wakeAt, wait := s.nextWake(now)

		logger.Debugf("%s: next run at %s (in %s) | uptime=%s",
			prefix, wakeAt.Format(time.RFC3339), wait.Truncate(time.Second),
			now.Sub(startAt).Truncate(time.Second))

		if wait <= 0 {
			task()
			continue
		}

		timer := time.NewTimer(wait)
		select {
		case <-s.ctx.Done():
			timer.Stop()
			logger.Infof("%s: ctx done, exit", prefix)
			return
		case <-timer.C:
		}
		task()
	}
}

// nextWake computes the next boundary-plus-offset wake time after now.
func (s *AlignedScheduler) nextWake(now time.Time) (time.Time, time.Duration) {
	now = now.UTC()
	boundary := now.Truncate(s.Interval).Add(s.Interval)
	wakeAt := boundary.Add(s.Offset)
	return wakeAt, wakeAt.Sub(now)
}
