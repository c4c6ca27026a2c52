// Command server runs the PropShield HTTP API.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"

	"github.com/dharsanguruparan/propshield/internal/api"
	"github.com/dharsanguruparan/propshield/internal/auth"
	"github.com/dharsanguruparan/propshield/internal/backend"
	"github.com/dharsanguruparan/propshield/internal/config"
	"github.com/dharsanguruparan/propshield/internal/intake"
	"github.com/dharsanguruparan/propshield/internal/logger"
	"github.com/dharsanguruparan/propshield/internal/processing"
	"github.com/dharsanguruparan/propshield/internal/queue"
	"github.com/dharsanguruparan/propshield/internal/status"
	"github.com/dharsanguruparan/propshield/internal/worker"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	log, err := logger.New(cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "init logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	b, err := backend.Connect(ctx, cfg, log)
	if err != nil {
		log.Fatal("connect backend", zap.Error(err))
	}
	defer b.Close()

	var dispatcher intake.Dispatcher
	if cfg.InlineProcessing {
		pool := processing.New(worker.NewProcessor(b, log).Process, cfg.WorkerCount, log)
		pool.Start(ctx)
		defer pool.Wait()
		dispatcher = pool
		log.Info("processing verifications in-process", zap.Int("workers", cfg.WorkerCount))
	} else {
		client := asynq.NewClient(asynq.RedisClientOpt{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		defer client.Close()
		dispatcher = queue.NewDispatcher(client)
	}

	authSvc := auth.New(b.Profiles, b.Activity, auth.OptionsFromConfig(cfg), log)
	orchestrator := intake.New(b, log,
		intake.WithDispatcher(dispatcher),
		intake.WithLimits(cfg.MaxFiles, cfg.MaxFileSize),
	)
	tracker := status.NewTracker(b.Verifications, b.Documents, cfg.PollInterval, log)

	srv := api.New(cfg, authSvc, b, orchestrator, tracker, log)
	if err := srv.Run(ctx); err != nil {
		log.Error("server stopped", zap.Error(err))
		stop()
		os.Exit(1)
	}
}
