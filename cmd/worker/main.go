// cmd/worker/main.go
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"github.com/tendant/simple-ocr-worker/internal/bus"
	"github.com/tendant/simple-ocr-worker/internal/config"
	"github.com/tendant/simple-ocr-worker/internal/contentstore"
	"github.com/tendant/simple-ocr-worker/internal/input"
	"github.com/tendant/simple-ocr-worker/internal/job"
	"github.com/tendant/simple-ocr-worker/internal/metrics"
	"github.com/tendant/simple-ocr-worker/internal/worker"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		fatal(slog.Default(), "load config", err)
	}

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.SlogLevel()}))
	slog.SetDefault(logger)
	logger.Info("worker starting",
		"nats_url", cfg.NATSURL,
		"job_subject", cfg.JobSubject,
		"queue", cfg.WorkerQueue,
		"result_subject", cfg.ResultSubject,
		"output_dir", cfg.OutputDir,
		"pipeline", cfg.PipelineArgs(),
		"pipeline_timeout", cfg.PipelineTimeout,
	)

	if err := os.MkdirAll(cfg.OutputDir, 0o755); err != nil {
		fatal(logger, "ensure output directory", err, "output_dir", cfg.OutputDir)
	}

	var store input.ContentStore
	if contentstore.Enabled() {
		store, err = contentstore.FromEnv(logger)
		if err != nil {
			fatal(logger, "build simplecontent service", err)
		}
	}

	m := metrics.New()
	handler, err := job.FromConfig(cfg, store, m, logger)
	if err != nil {
		fatal(logger, "build job handler", err)
	}

	nc, err := bus.Connect(cfg.NATSURL, logger)
	if err != nil {
		fatal(logger, "connect to NATS", err, "nats_url", cfg.NATSURL)
	}
	logger.Info("connected to NATS", "nats_url", cfg.NATSURL)
	defer nc.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	dispatcher := worker.NewDispatcher(handler, nc, cfg.ResultSubject, m, logger)
	sub, err := nc.QueueSubscribe(ctx, cfg.JobSubject, cfg.WorkerQueue, func(msgCtx context.Context, data []byte, reply string) {
		dispatcher.HandleMessage(msgCtx, data, reply)
	})
	if err != nil {
		fatal(logger, "subscribe worker", err, "job_subject", cfg.JobSubject, "queue", cfg.WorkerQueue)
	}
	logger.Info("listening for jobs", "subject", cfg.JobSubject, "queue", cfg.WorkerQueue)

	g, gctx := errgroup.WithContext(ctx)
	if cfg.HTTPAddr != "" {
		srv := &http.Server{Addr: cfg.HTTPAddr, Handler: m.Router(), ReadHeaderTimeout: 5 * time.Second}
		g.Go(func() error {
			logger.Info("serving metrics", "addr", cfg.HTTPAddr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		return sub.Unsubscribe()
	})

	if err := g.Wait(); err != nil {
		fatal(logger, "worker stopped", err)
	}
}

func fatal(logger *slog.Logger, msg string, err error, attrs ...any) {
	attrs = append(attrs, "err", err)
	logger.Error(msg, attrs...)
	os.Exit(1)
}
