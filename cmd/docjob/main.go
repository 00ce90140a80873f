// cmd/docjob runs a single document job without NATS and prints the result
// as JSON, which is handy for trying the pipeline on one file.
//
// Usage:
//
//	docjob --pdf-path ./paper.pdf
//	docjob --pdf-url https://example.com/paper.pdf --prompt "<image>\nFree OCR."
//	docjob --request job.json --output-dir ./out
//	docjob --probe --pdf-path ./paper.pdf
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/urfave/cli/v3"

	"github.com/tendant/simple-ocr-worker/internal/cleanup"
	"github.com/tendant/simple-ocr-worker/internal/config"
	"github.com/tendant/simple-ocr-worker/internal/contentstore"
	"github.com/tendant/simple-ocr-worker/internal/input"
	"github.com/tendant/simple-ocr-worker/internal/job"
	"github.com/tendant/simple-ocr-worker/pkg/schema"
)

func main() {
	_ = godotenv.Load()

	cmd := &cli.Command{
		Name:   "docjob",
		Usage:  "run one OCR document job and print the response",
		Flags:  flags(),
		Action: run,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := cmd.Run(ctx, os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "docjob:", err)
		os.Exit(1)
	}
}

func flags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{Name: "pdf-path", Usage: "local PDF path (never deleted)"},
		&cli.StringFlag{Name: "pdf-url", Usage: "URL to download the PDF from"},
		&cli.StringFlag{Name: "pdf-base64-file", Usage: "file holding base64-encoded PDF bytes"},
		&cli.StringFlag{Name: "content-id", Usage: "simple-content id (needs CONTENT_STORE_ENABLED=true)"},
		&cli.StringFlag{Name: "prompt", Usage: "prompt passed through to the pipeline"},
		&cli.StringFlag{Name: "output-dir", Usage: "directory for pipeline artifacts"},
		&cli.StringFlag{Name: "request", Usage: "JSON job request file, or - for stdin"},
		&cli.StringFlag{Name: "job-id", Usage: "job id used for the namespaced output directory"},
		&cli.BoolFlag{Name: "probe", Usage: "resolve the input and print its page count only"},
		&cli.BoolFlag{Name: "verbose", Aliases: []string{"v"}, Usage: "debug logging"},
	}
}

func run(ctx context.Context, cmd *cli.Command) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	level := cfg.SlogLevel()
	if cmd.Bool("verbose") {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	req, err := buildRequest(cmd)
	if err != nil {
		return err
	}

	if cmd.Bool("probe") {
		return probe(ctx, cfg, req)
	}

	var store input.ContentStore
	if contentstore.Enabled() {
		if store, err = contentstore.FromEnv(logger); err != nil {
			return err
		}
	}

	handler, err := job.FromConfig(cfg, store, nil, logger)
	if err != nil {
		return err
	}

	jobID := cmd.String("job-id")
	if jobID == "" {
		jobID = uuid.NewString()
	}
	outcome := schema.JobOutcome{JobID: jobID}
	resp, err := handler.Handle(ctx, jobID, req)
	if err != nil {
		jobErr := job.Classify(err)
		outcome.Error = &jobErr
	} else {
		outcome.Response = resp
	}
	outcome.HappenedAt = time.Now().Unix()

	if err := printJSON(os.Stdout, outcome); err != nil {
		return err
	}
	if outcome.Error != nil || resp.Status != schema.StatusSucceeded {
		return cli.Exit("", 1)
	}
	return nil
}

// buildRequest merges a --request file with the individual source flags;
// flags win over file values.
func buildRequest(cmd *cli.Command) (schema.JobRequest, error) {
	var req schema.JobRequest
	if path := cmd.String("request"); path != "" {
		data, err := readFileOrStdin(path)
		if err != nil {
			return req, fmt.Errorf("read request: %w", err)
		}
		if err := json.Unmarshal(data, &req); err != nil {
			return req, fmt.Errorf("parse request: %w", err)
		}
	}

	if cmd.IsSet("pdf-path") {
		v := cmd.String("pdf-path")
		req.PDFPath = &v
	}
	if cmd.IsSet("pdf-url") {
		v := cmd.String("pdf-url")
		req.PDFURL = &v
	}
	if path := cmd.String("pdf-base64-file"); path != "" {
		data, err := readFileOrStdin(path)
		if err != nil {
			return req, fmt.Errorf("read base64 file: %w", err)
		}
		v := strings.TrimSpace(string(data))
		req.PDFBase64 = &v
	}
	if cmd.IsSet("content-id") {
		v := cmd.String("content-id")
		req.ContentID = &v
	}
	if cmd.IsSet("prompt") {
		req.Prompt = cmd.String("prompt")
	}
	if cmd.IsSet("output-dir") {
		req.OutputDir = cmd.String("output-dir")
	}
	return req, nil
}

func probe(ctx context.Context, cfg config.Config, req schema.JobRequest) error {
	src, err := input.Select(req)
	if err != nil {
		return err
	}
	resolved, err := input.NewResolver(cfg.DownloadTimeout).Resolve(ctx, src)
	if err != nil {
		return err
	}
	defer cleanup.NewManager(nil).Remove(resolved.CleanupPaths())

	pages, err := input.PageCount(resolved.Path)
	if err != nil {
		return err
	}
	info, err := os.Stat(resolved.Path)
	if err != nil {
		return err
	}
	return printJSON(os.Stdout, map[string]any{
		"source":     src.Kind.String(),
		"path":       resolved.Path,
		"ephemeral":  resolved.Ephemeral,
		"page_count": pages,
		"size":       formatBytes(info.Size()),
	})
}

func readFileOrStdin(path string) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(os.Stdin)
	}
	return os.ReadFile(path)
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func formatBytes(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}
