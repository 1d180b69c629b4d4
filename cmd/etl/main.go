// Command etl runs the climate collection job once: it fetches one day of
// NASA POWER data for every catalog region, merges it into the stored
// snapshot and prints the run's status object as JSON. The exit code is 1
// when the run failed.
//
// With -listen the job is not run immediately; instead an HTTP server runs
// it once per POST /invoke, for schedulers that trigger over HTTP.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	httpadapter "github.com/couchcryptid/climate-data-etl/internal/adapter/http"
	kafkaadapter "github.com/couchcryptid/climate-data-etl/internal/adapter/kafka"
	"github.com/couchcryptid/climate-data-etl/internal/adapter/localfs"
	"github.com/couchcryptid/climate-data-etl/internal/adapter/power"
	s3adapter "github.com/couchcryptid/climate-data-etl/internal/adapter/s3"
	"github.com/couchcryptid/climate-data-etl/internal/catalog"
	"github.com/couchcryptid/climate-data-etl/internal/config"
	"github.com/couchcryptid/climate-data-etl/internal/domain"
	"github.com/couchcryptid/climate-data-etl/internal/observability"
	"github.com/couchcryptid/climate-data-etl/internal/pipeline"
	"github.com/couchcryptid/climate-data-etl/internal/snapshot"
	sharedobs "github.com/couchcryptid/storm-data-shared/observability"
)

func main() {
	listen := flag.String("listen", "", "serve POST /invoke on this address instead of running once")
	flag.Parse()

	os.Exit(run(*listen))
}

func run(listen string) int {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		return 1
	}

	logger := sharedobs.NewLogger(cfg.LogLevel, cfg.LogFormat)
	metrics := observability.NewMetrics()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	blobs, err := newBlobStore(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to initialize storage", "backend", cfg.StorageBackend, "error", err)
		return 1
	}

	client := power.NewClient(power.Options{
		BaseURL:          cfg.PowerBaseURL,
		Community:        cfg.PowerCommunity,
		Timeout:          cfg.RequestTimeout,
		RateLimitWait:    cfg.RateLimitWait,
		MaxRetries:       cfg.MaxRetries,
		BreakerThreshold: cfg.BreakerThreshold,
		BreakerCooldown:  cfg.BreakerCooldown,
	}, logger, metrics)
	scheduler := pipeline.NewScheduler(client, pipeline.SchedulerOptions{
		BatchSize:  cfg.BatchSize,
		Workers:    cfg.Workers,
		BatchPause: cfg.BatchPause,
	}, logger, metrics)
	store := snapshot.NewStore(blobs, cfg.S3Key, logger, metrics)

	var publisher pipeline.Publisher
	if cfg.KafkaEnabled() {
		writer := kafkaadapter.NewWriter(cfg.KafkaBrokers, cfg.KafkaTopic, logger, metrics)
		defer func() {
			if err := writer.Close(); err != nil {
				logger.Error("kafka writer close error", "error", err)
			}
		}()
		publisher = writer
		logger.Info("kafka publishing enabled", "topic", cfg.KafkaTopic)
	}

	p := pipeline.New(catalog.NewFileSource(cfg.CatalogPath), scheduler, store, publisher, logger, metrics, pipeline.Options{
		LookbackDays: cfg.LookbackDays,
		Dedup:        cfg.MergeDedup,
		RunTimeout:   cfg.RunTimeout,
	})

	if listen != "" {
		return serve(ctx, cfg, listen, p, metrics, logger)
	}
	return runOnce(ctx, cfg, p, metrics, logger)
}

func newBlobStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (domain.BlobStore, error) {
	switch cfg.StorageBackend {
	case config.StorageFile:
		logger.Info("using local storage", "dir", cfg.LocalStorageDir, "key", cfg.S3Key)
		return localfs.New(cfg.LocalStorageDir)
	default:
		logger.Info("using s3 storage", "bucket", cfg.S3Bucket, "key", cfg.S3Key, "endpoint", cfg.S3Endpoint)
		return s3adapter.New(ctx, s3adapter.Config{
			Bucket:   cfg.S3Bucket,
			Region:   cfg.S3Region,
			Endpoint: cfg.S3Endpoint,
		}, logger)
	}
}

func runOnce(ctx context.Context, cfg *config.Config, p *pipeline.Pipeline, metrics *observability.Metrics, logger *slog.Logger) int {
	result := p.Run(ctx)
	resp := result.Response()

	if cfg.PushgatewayURL != "" {
		pushCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cfg.ShutdownTimeout)
		defer cancel()
		if err := metrics.Push(pushCtx, cfg.PushgatewayURL); err != nil {
			logger.Error("metrics push failed", "error", err)
		}
	}

	if err := json.NewEncoder(os.Stdout).Encode(resp); err != nil {
		fmt.Fprintf(os.Stderr, "encode response: %v\n", err)
	}
	if result.Outcome == domain.OutcomeFailed {
		return 1
	}
	return 0
}

func serve(ctx context.Context, cfg *config.Config, addr string, p *pipeline.Pipeline, metrics *observability.Metrics, logger *slog.Logger) int {
	srv := httpadapter.NewServer(addr, p, metrics.Gatherer(), logger)

	errCh := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	code := 0
	select {
	case <-ctx.Done():
	case err := <-errCh:
		logger.Error("http server error", "error", err)
		code = 1
	}
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}
	logger.Info("shutdown complete")
	return code
}
