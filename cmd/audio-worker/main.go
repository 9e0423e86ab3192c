package main

import (
	"context"
	"os/signal"
	"sync"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/wb-go/wbf/retry"
	"github.com/wb-go/wbf/zlog"

	"github.com/waveflow/audio-worker/internal/config"
	"github.com/waveflow/audio-worker/internal/dispatch"
	"github.com/waveflow/audio-worker/internal/executor"
	sqsinfra "github.com/waveflow/audio-worker/internal/infra/sqs"
	"github.com/waveflow/audio-worker/internal/model"
	"github.com/waveflow/audio-worker/internal/processor"
	"github.com/waveflow/audio-worker/internal/storage/s3"
	"github.com/waveflow/audio-worker/internal/tasks"
	"github.com/waveflow/audio-worker/internal/tempdir"
	"github.com/waveflow/audio-worker/internal/webhook"
	"github.com/waveflow/audio-worker/internal/worker"
)

func main() {
	// Context & signals: used for graceful shutdown on system interrupts.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Initialize logger and load application configuration.
	zlog.Init()
	cfg := config.MustLoad()

	if level, err := zerolog.ParseLevel(cfg.Log.Level); err == nil {
		zlog.Logger = zlog.Logger.Level(level)
	}

	// Retry strategy for broker-level calls (acknowledge, delete).
	strategy := retry.Strategy{
		Attempts: cfg.Ack.Attempts,
		Delay:    cfg.Ack.Delay,
		Backoff:  cfg.Ack.Backoff,
	}

	// Object storage for audio files, mixes, and waveform artifacts.
	store, err := s3.New(ctx, cfg.Storage.Endpoint, cfg.Storage.AccessKey, cfg.Storage.SecretKey, cfg.Storage.BucketName, cfg.Storage.UseSSL)
	if err != nil {
		zlog.Logger.Fatal().Err(err).Msg("failed to connect to storage")
	}

	// Queue client for consuming jobs and re-submitting retries.
	queue, err := sqsinfra.New(ctx, cfg.Queue.URL, cfg.Queue.Region, cfg.Queue.Endpoint, cfg.Queue.WaitTimeSeconds, cfg.Queue.VisibilityTimeout)
	if err != nil {
		zlog.Logger.Fatal().Err(err).Msg("failed to create queue client")
	}

	// Scratch directory for locally materialized audio files.
	temp, err := tempdir.New(cfg.Processing.WorkDir)
	if err != nil {
		zlog.Logger.Fatal().Err(err).Msg("failed to create work dir")
	}

	// Audio engine, webhook notifier, and the task handlers.
	proc := processor.New(cfg.Processing.MaxFileSizeMB, cfg.Processing.AllowedMIMETypes)
	hooks := webhook.New(cfg.Webhook.BaseURL, cfg.Webhook.Timeout)

	registry := dispatch.NewRegistry()
	registry.Register(model.KindHashAndNotify, tasks.NewHashHandler(store, hooks, proc, temp))
	registry.Register(model.KindDeleteDuplicate, tasks.NewDeleteHandler(store, hooks))
	registry.Register(model.KindAnalyzeAudio, tasks.NewAnalyzeHandler(store, hooks, proc, temp, cfg.Processing.DefaultPeaks))
	registry.Register(model.KindMixStems, tasks.NewMixHandler(store, hooks, proc, temp, cfg.Processing.DefaultPeaks))
	registry.Register(model.KindHealthCheck, tasks.NewHealthHandler(store, queue))
	registry.Register(model.KindCleanupTemp, tasks.NewCleanupHandler(temp, cfg.Processing.TempMaxAge, cfg.Processing.TempHardMaxAge))

	exec := executor.New(queue, hooks, cfg.Retry.MaxRetries, cfg.Retry.BaseDelay, cfg.Retry.MaxDelay)

	defaultKind, ok := model.ParseKind(cfg.Processing.DefaultTask)
	if !ok {
		zlog.Logger.Fatal().Str("task", cfg.Processing.DefaultTask).Msg("unknown default task")
	}

	// Start the consumers. Each poller holds at most one in-flight message.
	consumer := worker.New(queue, registry, exec, defaultKind, cfg.Queue.PollErrorBackoff, strategy)

	var wg sync.WaitGroup
	for i := 0; i < cfg.Queue.Pollers; i++ {
		wg.Add(1)
		go consumer.Consume(ctx, &wg)
	}

	zlog.Logger.Info().
		Int("pollers", cfg.Queue.Pollers).
		Str("queue", cfg.Queue.URL).
		Msg("audio worker started")

	// Block until context is canceled (SIGINT/SIGTERM).
	<-ctx.Done()
	zlog.Logger.Info().Msg("context done")

	// Wait for in-flight messages to finish.
	wg.Wait()
	zlog.Logger.Info().Msg("audio worker stopped")
}
