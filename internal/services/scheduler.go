package services

import (
	"context"
	"fmt"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/rs/zerolog/log"
)

const (
	monthlyResetCron = "0 0 1 * *"
	purgeInterval    = time.Hour
	jobTimeout       = 5 * time.Minute
)

// Scheduler runs the monthly quota rollover and the event retention purge
type Scheduler struct {
	sched  gocron.Scheduler
	guard  *Guard
	events *EventLog
}

// NewScheduler registers the background jobs. Call Start to run them.
func NewScheduler(guard *Guard, events *EventLog) (*Scheduler, error) {
	sched, err := gocron.NewScheduler(gocron.WithLocation(time.UTC))
	if err != nil {
		return nil, fmt.Errorf("failed to create scheduler: %w", err)
	}

	s := &Scheduler{sched: sched, guard: guard, events: events}

	_, err = sched.NewJob(
		gocron.CronJob(monthlyResetCron, false),
		gocron.NewTask(s.RunMonthlyReset),
		gocron.WithName("autogift-monthly-reset"),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to schedule monthly reset: %w", err)
	}

	_, err = sched.NewJob(
		gocron.DurationJob(purgeInterval),
		gocron.NewTask(s.RunPurge),
		gocron.WithName("autogift-event-purge"),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to schedule event purge: %w", err)
	}

	return s, nil
}

// Start begins running jobs in the background
func (s *Scheduler) Start() {
	s.sched.Start()
	log.Info().Int("jobs", len(s.sched.Jobs())).Msg("Scheduler started")
}

// Shutdown stops the scheduler and waits for running jobs
func (s *Scheduler) Shutdown() error {
	return s.sched.Shutdown()
}

// RunMonthlyReset drops the previous months' execution counters.
// Counters are keyed by month, so the new month already starts from zero.
func (s *Scheduler) RunMonthlyReset() {
	ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
	defer cancel()

	if err := s.guard.PrunePastPeriods(ctx); err != nil {
		log.Error().Err(err).Msg("[Scheduler] monthly reset failed")
	}
}

// RunPurge removes expired events
func (s *Scheduler) RunPurge() {
	ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
	defer cancel()

	purged, err := s.events.PurgeExpired(ctx, time.Now().UTC())
	if err != nil {
		log.Error().Err(err).Int64("purged", purged).Msg("[Scheduler] event purge failed")
		return
	}
	if purged > 0 {
		log.Info().Int64("purged", purged).Msg("[Scheduler] purged expired events")
	}
}
