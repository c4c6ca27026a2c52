// Command worker consumes verification processing jobs from Redis.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"

	"github.com/dharsanguruparan/propshield/internal/backend"
	"github.com/dharsanguruparan/propshield/internal/config"
	"github.com/dharsanguruparan/propshield/internal/logger"
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

	server := asynq.NewServer(asynq.RedisClientOpt{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	}, asynq.Config{
		Concurrency: cfg.WorkerCount,
		Logger:      log.Sugar(),
	})
	processor := worker.NewProcessor(b, log)
	mux := processor.Handler()

	go func() {
		<-ctx.Done()
		server.Shutdown()
	}()

	log.Info("worker started", zap.Int("concurrency", cfg.WorkerCount))
	if err := server.Run(mux); err != nil {
		log.Error("worker stopped", zap.Error(err))
		stop()
		os.Exit(1)
	}
}
