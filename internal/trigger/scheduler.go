package trigger

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"

	"github.com/HarinGuptha/FlowBit-Harin/internal/classify"
	"github.com/HarinGuptha/FlowBit-Harin/internal/session"
)

// scheduleRunTimeout bounds one scheduled pipeline run.
const scheduleRunTimeout = 5 * time.Minute

// Purger is the store maintenance hook driven by the scheduler.
type Purger interface {
	PurgeExpired(ctx context.Context) (int64, error)
}

// Scheduler manages cron-based pipeline runs plus periodic TTL purging.
type Scheduler struct {
	cron   *cron.Cron
	proc   Processor
	purger Purger
}

// NewScheduler creates a scheduler backed by the given processor.
// Cron expressions use the standard 5-field format: minute hour
// day-of-month month day-of-week (e.g. "0 9 * * 1-5").
func NewScheduler(proc Processor, purger Purger) *Scheduler {
	return &Scheduler{cron: cron.New(), proc: proc, purger: purger}
}

// RegisterSchedules adds cron entries from the trigger configuration and
// an hourly TTL purge.
func (s *Scheduler) RegisterSchedules(cfg *Config) error {
	if cfg != nil {
		for _, sched := range cfg.Schedules {
			content := sched.Content
			hint := classify.FormatType(sched.Hint)
			desc := sched.Description

			_, err := s.cron.AddFunc(sched.Cron, func() {
				ctx, cancel := context.WithTimeout(context.Background(), scheduleRunTimeout)
				defer cancel()

				log.Info().Str("description", desc).Msg("scheduled_trigger_fired")

				sess, err := s.proc.Process(ctx, []byte(content), hint)
				if err != nil {
					log.Error().Err(err).Str("description", desc).Msg("scheduled_trigger_failed")
					return
				}
				if sess.FinalStatus == session.StatusFailed {
					log.Warn().Str("session_id", sess.ID).Str("description", desc).
						Msg("scheduled_session_failed")
				}
			})
			if err != nil {
				return fmt.Errorf("registering cron %q: %w", sched.Cron, err)
			}
		}
	}

	if s.purger != nil {
		if _, err := s.cron.AddFunc("0 * * * *", func() {
			ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
			defer cancel()
			n, err := s.purger.PurgeExpired(ctx)
			if err != nil {
				log.Error().Err(err).Msg("session_purge_failed")
				return
			}
			if n > 0 {
				log.Info().Int64("purged", n).Msg("expired_sessions_purged")
			}
		}); err != nil {
			return fmt.Errorf("registering purge cron: %w", err)
		}
	}
	return nil
}

// Start begins executing registered cron jobs.
func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop halts the scheduler and waits for running jobs to complete.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
}

// Entries returns the number of registered cron entries.
func (s *Scheduler) Entries() int {
	return len(s.cron.Entries())
}
