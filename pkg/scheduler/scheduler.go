// Package scheduler publishes the minute tick that drives date and
// recurring triggers.
package scheduler

import (
	"context"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/gridbase/gridbase/pkg/eventbus"
	"github.com/gridbase/gridbase/pkg/events"
)

const everyMinute = "* * * * *"

// Scheduler emits one schedule-tick trigger event per minute. Ticks
// carry only the wall-clock time; evaluators decide what fires.
type Scheduler struct {
	cron      *cron.Cron
	publisher eventbus.EventPublisher
	logger    *slog.Logger
	now       func() time.Time
}

func New(publisher eventbus.EventPublisher, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		cron:      cron.New(),
		publisher: publisher,
		logger:    logger.With("module", "scheduler"),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

func (s *Scheduler) Start(ctx context.Context) error {
	_, err := s.cron.AddFunc(everyMinute, func() {
		s.Tick(ctx)
	})
	if err != nil {
		return err
	}

	s.cron.Start()
	s.logger.Info("scheduler started", "spec", everyMinute)

	return nil
}

// Tick publishes one schedule-tick event. Exposed so tests and manual
// re-evaluation can drive it directly.
func (s *Scheduler) Tick(ctx context.Context) {
	event := events.TriggerEvent{
		BaseEvent: events.NewBaseEvent(events.ScheduleTickEvent),
		Now:       s.now(),
	}

	if err := s.publisher.Publish(ctx, events.TriggerTopic, string(events.ScheduleTickEvent), event); err != nil {
		s.logger.Error("failed to publish schedule tick", "error", err)
	}
}

// Stop halts the cron loop, waiting for an in-flight tick to finish.
func (s *Scheduler) Stop() {
	stopCtx := s.cron.Stop()
	<-stopCtx.Done()
	s.logger.Info("scheduler stopped")
}
