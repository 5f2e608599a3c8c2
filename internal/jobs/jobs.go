package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/go-co-op/gocron"
	"github.com/rs/zerolog/log"
)

const (
	UpdateCheckJob  = "update-check"
	HistoryPruneJob = "history-prune"
)

// RegisterAll registers every updater job with jm.
func RegisterAll(jm *JobManager) {
	jm.Register(UpdateCheckJob, "Check for plugin updates", RunUpdateCheck)
	jm.Register(HistoryPruneJob, "Prune operation history", RunHistoryPrune)
}

// StartJobs starts the background job scheduler. The caller stops it.
func StartJobs(app JobContext) *gocron.Scheduler {
	s := gocron.NewScheduler(time.UTC)
	s.SingletonModeAll()

	startUpdateCheckJob(s, app)
	schedule(s, app, HistoryPruneJob, s.Every(1).Day())

	log.Info().Msg("Starting background job scheduler...")
	s.StartAsync()
	return s
}

func startUpdateCheckJob(s *gocron.Scheduler, app JobContext) {
	interval := app.Config().CheckInterval
	if interval == 0 {
		log.Info().Msg("Update check interval is 0, scheduled checks are disabled.")
		return
	}
	log.Info().Str("job", UpdateCheckJob).Int("minutes", interval).Msg("Scheduling job")
	schedule(s, app, UpdateCheckJob, s.Every(interval).Minutes())
}

func schedule(s *gocron.Scheduler, app JobContext, id string, every *gocron.Scheduler) {
	_, err := every.Do(func() {
		log.Debug().Str("job", id).Msg("Scheduler is triggering job")
		// Submit the job to the manager instead of running it directly.
		// This prevents conflicts with manually triggered jobs.
		if err := app.JobManager().RunJob(id, app); err != nil {
			log.Warn().Err(err).Str("job", id).Msg("Scheduled job could not start")
		}
	})
	if err != nil {
		log.Error().Err(err).Str("job", id).Msg("Error scheduling job")
	}
}

// RunUpdateCheck runs one update pass over every installed plugin.
func RunUpdateCheck(ctx context.Context, app JobContext) error {
	changed, err := app.Updater().CheckAndUpdateAll(ctx, false)
	if err != nil {
		return err
	}
	log.Info().Bool("restart", changed).Msg("Scheduled update check finished")
	return nil
}

// RunHistoryPrune drops history entries older than the retention window.
func RunHistoryPrune(ctx context.Context, app JobContext) error {
	days := app.Config().Database.RetentionDays
	if days <= 0 {
		return nil
	}
	n, err := app.Store().PruneHistory(time.Now().AddDate(0, 0, -days))
	if err != nil {
		return fmt.Errorf("failed to prune history: %w", err)
	}
	log.Info().Int64("removed", n).Int("retention_days", days).Msg("Pruned operation history")
	return nil
}
