package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dvloznov/finance-sync/internal/app"
	"github.com/dvloznov/finance-sync/internal/config"
	"github.com/dvloznov/finance-sync/internal/jobs"
	"github.com/dvloznov/finance-sync/internal/jobs/inmemory"
	"github.com/dvloznov/finance-sync/internal/logger"
	"github.com/rs/zerolog"
)

func main() {
	configFile := flag.String("config", "", "Optional config file (yaml, json, toml or env)")
	once := flag.Bool("once", false, "Enqueue one round of exports, wait for them and exit")
	flag.Parse()

	cfg, err := config.Load(*configFile)
	if err != nil {
		bootLog := logger.New()
		bootLog.Fatal().Err(err).Msg("Failed to load configuration")
	}

	log := logger.NewWithOptions(logger.Options{Level: cfg.LogLevel, Format: cfg.LogFormat})

	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("Invalid configuration")
	}

	ctx, cancel := context.WithCancel(logger.WithContext(context.Background(), log))
	defer cancel()

	application, err := app.Open(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialise backends")
	}
	defer application.Close()

	jobStore := inmemory.NewStore()
	jobQueue := inmemory.NewQueue(jobStore, inmemory.QueueOptions{Workers: cfg.WorkerCount})

	if err := jobQueue.Start(ctx, application.HandleJob); err != nil {
		log.Fatal().Err(err).Msg("Failed to start job consumer")
	}

	enqueue := func() {
		n, err := application.EnqueueAll(ctx, jobQueue)
		if err != nil {
			log.Error().Err(err).Int("enqueued", n).Msg("Failed to enqueue some exports")
			return
		}
		log.Info().Int("enqueued", n).Msg("Scheduled exports enqueued")
	}

	if *once {
		enqueue()
		waitForIdle(ctx, jobStore)
		shutdown(jobQueue, log)
		return
	}

	log.Info().Dur("interval", cfg.ScheduleInterval).Msg("Worker service started")

	ticker := time.NewTicker(cfg.ScheduleInterval)
	defer ticker.Stop()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	enqueue()
	for {
		select {
		case <-ticker.C:
			enqueue()
		case <-quit:
			log.Info().Msg("Shutting down worker service...")
			shutdown(jobQueue, log)
			cancel()
			log.Info().Msg("Worker service exited")
			return
		}
	}
}

// waitForIdle blocks until no job is pending, running or waiting for a retry.
func waitForIdle(ctx context.Context, store *inmemory.Store) {
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	for {
		busy := false
		all, err := store.ListJobs(ctx, jobs.JobFilter{})
		if err == nil {
			for _, j := range all {
				if j.Status != jobs.JobStatusCompleted && j.Status != jobs.JobStatusFailed {
					busy = true
					break
				}
			}
		}
		if !busy {
			return
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func shutdown(queue *inmemory.Queue, log zerolog.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := queue.Stop(ctx); err != nil {
		log.Error().Err(err).Msg("Error during graceful shutdown")
	}
}
