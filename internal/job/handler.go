// Package job runs one document job end to end: resolve the input, invoke
// the pipeline, collect artifacts on success and always clean up.
package job

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gofrs/flock"
	"github.com/google/uuid"

	"github.com/tendant/simple-ocr-worker/internal/artifacts"
	"github.com/tendant/simple-ocr-worker/internal/cleanup"
	"github.com/tendant/simple-ocr-worker/internal/config"
	"github.com/tendant/simple-ocr-worker/internal/input"
	"github.com/tendant/simple-ocr-worker/internal/metrics"
	"github.com/tendant/simple-ocr-worker/internal/pipeline"
	"github.com/tendant/simple-ocr-worker/internal/process"
	"github.com/tendant/simple-ocr-worker/pkg/schema"
)

const (
	lockRetryDelay = 250 * time.Millisecond
	lockFileName   = ".ocr-job.lock"
)

// Options are the per-handler output settings.
type Options struct {
	// OutputDir is used when a request has no output_dir.
	OutputDir string
	// NamespaceOutput places default output under OutputDir/<job id>.
	NamespaceOutput bool
}

type Handler struct {
	opts      Options
	resolver  *input.Resolver
	invoker   *pipeline.Invoker
	collector *artifacts.Collector
	cleaner   *cleanup.Manager
	metrics   *metrics.Metrics
	logger    *slog.Logger
}

func NewHandler(opts Options, resolver *input.Resolver, invoker *pipeline.Invoker, collector *artifacts.Collector, cleaner *cleanup.Manager, m *metrics.Metrics, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		opts:      opts,
		resolver:  resolver,
		invoker:   invoker,
		collector: collector,
		cleaner:   cleaner,
		metrics:   m,
		logger:    logger,
	}
}

// FromConfig wires a Handler from loaded settings. store and m may be nil.
func FromConfig(cfg config.Config, store input.ContentStore, m *metrics.Metrics, logger *slog.Logger) (*Handler, error) {
	if logger == nil {
		logger = slog.Default()
	}
	invoker, err := pipeline.NewInvoker(cfg.PipelineArgs(), cfg.PipelineWorkDir, cfg.PipelineTimeout)
	if err != nil {
		return nil, fmt.Errorf("build pipeline invoker: %w", err)
	}

	resolverOpts := []input.Option{}
	if store != nil {
		resolverOpts = append(resolverOpts, input.WithContentStore(store))
	}
	resolver := input.NewResolver(cfg.DownloadTimeout, resolverOpts...)

	collector := artifacts.NewCollector(artifacts.Options{
		InlineLimit:   cfg.InlineTextLimit,
		PreviewWidth:  cfg.PreviewWidth,
		PreviewHeight: cfg.PreviewHeight,
	}, logger)

	cleaner := cleanup.NewManager(logger)
	cleaner.OnFailure(func(string, error) { m.CleanupFailed() })

	return NewHandler(Options{
		OutputDir:       cfg.OutputDir,
		NamespaceOutput: cfg.NamespaceOutput,
	}, resolver, invoker, collector, cleaner, m, logger), nil
}

// Handle runs one job. A returned error means the pipeline never produced a
// result (bad input, download or decode failure, start failure, cancellation
// by ctx); a pipeline that ran and failed or hit its deadline is reported
// through the response status instead.
func (h *Handler) Handle(ctx context.Context, jobID string, req schema.JobRequest) (*schema.JobResponse, error) {
	if jobID == "" {
		jobID = uuid.NewString()
	}
	logger := h.logger.With("job_id", jobID)
	job := process.NewJob("ocr", jobID)

	src, err := input.Select(req)
	if err != nil {
		return nil, h.fail(logger, job, err)
	}
	logger = logger.With("source", src.Kind.String())

	resolved, err := h.resolver.Resolve(ctx, src)
	if err != nil {
		return nil, h.fail(logger, job, err)
	}
	defer func() {
		// Runs after the response is assembled; failures are only logged.
		h.cleaner.Remove(resolved.CleanupPaths())
	}()

	// The output directory is only created once there is something to run.
	outputDir := h.outputDir(jobID, req.OutputDir)
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return nil, h.fail(logger, job, &StageError{Stage: StageOutput, Err: err})
	}
	if req.OutputDir != "" {
		unlock, err := lockOutputDir(ctx, outputDir)
		if err != nil {
			return nil, h.fail(logger, job, &StageError{Stage: StageLock, Err: err})
		}
		defer unlock(logger)
	}
	logger.Info("resolved input", "path", resolved.Path, "ephemeral", resolved.Ephemeral, "output_dir", outputDir)

	pageCount, err := input.PageCount(resolved.Path)
	if err != nil {
		logger.Debug("page count unavailable", "err", err)
	}

	process.MarkRunning(job)
	result, err := h.invoker.Run(ctx, resolved.Path, outputDir, req.Prompt)
	if err != nil {
		return nil, h.fail(logger, job, &StageError{Stage: StagePipeline, Err: err})
	}
	h.metrics.PipelineRan(result.Duration)

	resp := &schema.JobResponse{
		JobID:      jobID,
		Command:    result.CommandLine(),
		ReturnCode: result.ExitCode,
		Stdout:     strings.TrimSpace(result.Stdout),
		Stderr:     strings.TrimSpace(result.Stderr),
		PageCount:  pageCount,
		DurationMs: result.Duration.Milliseconds(),
	}

	switch {
	case result.TimedOut:
		process.MarkTimedOut(job)
		resp.Status = schema.StatusTimedOut
		logger.Warn("pipeline timed out", "duration_ms", resp.DurationMs)
	case result.ExitCode != 0:
		process.MarkFailed(job, fmt.Errorf("pipeline exited with code %d", result.ExitCode))
		resp.Status = schema.StatusFailed
		logger.Warn("pipeline failed", "return_code", result.ExitCode, "stderr", resp.Stderr)
	default:
		arts := h.collector.Collect(resolved.Path, outputDir)
		process.MarkSucceeded(job)
		resp.Status = schema.StatusSucceeded
		resp.Artifacts = arts
		logger.Info("pipeline succeeded", "duration_ms", resp.DurationMs, "markdown_missing", arts.MarkdownMissing != "", "warnings", len(arts.CollectWarnings))
	}

	h.metrics.JobFinished(string(resp.Status))
	return resp, nil
}

func (h *Handler) fail(logger *slog.Logger, job *process.Job, err error) error {
	process.MarkFailed(job, err)
	kind := Classify(err).Kind
	h.metrics.JobErrored(kind)
	logger.Error("job failed", "kind", kind, "elapsed", job.Duration(), "err", err)
	return err
}

func (h *Handler) outputDir(jobID, requested string) string {
	if requested != "" {
		return requested
	}
	if !h.opts.NamespaceOutput {
		return h.opts.OutputDir
	}
	return filepath.Join(h.opts.OutputDir, safeName(jobID))
}

// safeName keeps a job id from escaping the output root.
func safeName(id string) string {
	name := strings.Map(func(r rune) rune {
		if r == '/' || r == '\\' || r == os.PathSeparator {
			return '_'
		}
		return r
	}, id)
	if name == "" || name == "." || name == ".." {
		return uuid.NewString()
	}
	return name
}

// lockOutputDir serializes jobs that share an explicit output_dir, across
// goroutines and processes. The lock file lives inside dir and is left in
// place after unlock: removing it would let a waiter and a newcomer lock
// different inodes.
func lockOutputDir(ctx context.Context, dir string) (func(*slog.Logger), error) {
	fileLock := flock.New(filepath.Join(dir, lockFileName))
	locked, err := fileLock.TryLockContext(ctx, lockRetryDelay)
	if err != nil {
		return nil, fmt.Errorf("lock output_dir %s: %w", dir, err)
	}
	if !locked {
		return nil, fmt.Errorf("could not acquire lock on output_dir %s", dir)
	}
	return func(logger *slog.Logger) {
		if err := fileLock.Unlock(); err != nil {
			logger.Warn("failed to release output_dir lock", "output_dir", dir, "err", err)
		}
	}, nil
}
