package job

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/tendant/simple-ocr-worker/internal/artifacts"
	"github.com/tendant/simple-ocr-worker/internal/cleanup"
	"github.com/tendant/simple-ocr-worker/internal/input"
	"github.com/tendant/simple-ocr-worker/internal/metrics"
	"github.com/tendant/simple-ocr-worker/internal/pipeline"
	"github.com/tendant/simple-ocr-worker/pkg/schema"
)

// parseArgs is shared by the fake pipelines: it reads --input and --output.
const parseArgs = `
while [ $# -gt 0 ]; do
  case "$1" in
    --input) in="$2"; shift 2 ;;
    --output) out="$2"; shift 2 ;;
    *) shift ;;
  esac
done
stem=$(basename "$in" .pdf)
`

type fixture struct {
	handler *Handler
	tempDir string
	outRoot string
	marker  string
}

func newFixture(t *testing.T, body string, timeout time.Duration) *fixture {
	t.Helper()
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}
	dir := t.TempDir()
	f := &fixture{
		tempDir: filepath.Join(dir, "tmp"),
		outRoot: filepath.Join(dir, "out"),
		marker:  filepath.Join(dir, "spawned"),
	}
	if err := os.MkdirAll(f.tempDir, 0o755); err != nil {
		t.Fatalf("mkdir temp: %v", err)
	}

	script := filepath.Join(dir, "pipeline.sh")
	content := "#!/bin/sh\ntouch " + f.marker + "\n" + parseArgs + body + "\n"
	if err := os.WriteFile(script, []byte(content), 0o755); err != nil {
		t.Fatalf("write script: %v", err)
	}

	invoker, err := pipeline.NewInvoker([]string{script}, dir, timeout)
	if err != nil {
		t.Fatalf("NewInvoker: %v", err)
	}
	f.handler = NewHandler(
		Options{OutputDir: f.outRoot, NamespaceOutput: true},
		input.NewResolver(5*time.Second, input.WithTempDir(f.tempDir)),
		invoker,
		artifacts.NewCollector(artifacts.Options{}, nil),
		cleanup.NewManager(nil),
		metrics.New(),
		nil,
	)
	return f
}

func (f *fixture) assertNoTempFiles(t *testing.T) {
	t.Helper()
	entries, err := os.ReadDir(f.tempDir)
	if err != nil {
		t.Fatalf("read temp dir: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("expected ephemeral inputs to be removed, found %d entries", len(entries))
	}
}

func (f *fixture) spawned() bool {
	_, err := os.Stat(f.marker)
	return err == nil
}

func strPtr(s string) *string { return &s }

const writeMarkdown = `echo "processing $stem"
printf '# doc' > "$out/$stem.mmd"
`

func TestHandleBase64Success(t *testing.T) {
	f := newFixture(t, writeMarkdown, time.Minute)
	pdf := base64.StdEncoding.EncodeToString([]byte("%PDF-1.4 fake"))

	resp, err := f.handler.Handle(context.Background(), "job-1", schema.JobRequest{PDFBase64: &pdf})
	if err != nil {
		t.Fatalf("Handle returned error: %v", err)
	}
	if resp.Status != schema.StatusSucceeded || resp.ReturnCode != 0 {
		t.Fatalf("unexpected status %s (%d), stderr=%q", resp.Status, resp.ReturnCode, resp.Stderr)
	}
	if resp.JobID != "job-1" {
		t.Fatalf("unexpected job id %q", resp.JobID)
	}
	if resp.Artifacts == nil || resp.Markdown == nil || *resp.Markdown != "# doc" {
		t.Fatalf("unexpected markdown artifact: %+v", resp.Artifacts)
	}
	if resp.MarkdownEncoding != schema.EncodingText {
		t.Fatalf("unexpected encoding %q", resp.MarkdownEncoding)
	}
	if want := filepath.Join(f.outRoot, "job-1"); filepath.Dir(resp.MarkdownPath) != want {
		t.Fatalf("markdown not under namespaced output: %s", resp.MarkdownPath)
	}
	if !strings.HasPrefix(resp.Stdout, "processing ocr-input-") {
		t.Fatalf("stdout not captured: %q", resp.Stdout)
	}
	if !strings.Contains(resp.Command, "--input") || !strings.Contains(resp.Command, "--output") {
		t.Fatalf("command line missing flags: %q", resp.Command)
	}
	f.assertNoTempFiles(t)
}

func TestHandleNoSourceDoesNotSpawn(t *testing.T) {
	f := newFixture(t, writeMarkdown, time.Minute)

	resp, err := f.handler.Handle(context.Background(), "job-empty", schema.JobRequest{})
	if err == nil {
		t.Fatalf("expected error, got response %+v", resp)
	}
	if !input.IsKind(err, input.KindInput) {
		t.Fatalf("expected input error, got %v", err)
	}
	if f.spawned() {
		t.Fatal("pipeline must not run without a source")
	}
	if got := Classify(err); got.FailureType != schema.FailureTypeValidation {
		t.Fatalf("unexpected failure type %s", got.FailureType)
	}
}

func TestHandleURLNotFound(t *testing.T) {
	f := newFixture(t, writeMarkdown, time.Minute)
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	_, err := f.handler.Handle(context.Background(), "job-404", schema.JobRequest{PDFURL: strPtr(srv.URL + "/doc.pdf")})
	if err == nil {
		t.Fatal("expected error for 404")
	}
	var ie *input.Error
	if !errors.As(err, &ie) || ie.Kind != input.KindNetwork || ie.StatusCode != http.StatusNotFound {
		t.Fatalf("expected network error with 404, got %v", err)
	}
	if f.spawned() {
		t.Fatal("pipeline must not run when download fails")
	}
	f.assertNoTempFiles(t)
	if _, err := os.Stat(filepath.Join(f.outRoot, "job-404")); !os.IsNotExist(err) {
		t.Fatalf("no output dir expected after a failed download: %v", err)
	}
	if got := Classify(err); got.StatusCode != 404 || got.FailureType != schema.FailureTypePermanent {
		t.Fatalf("unexpected classification %+v", got)
	}
}

func TestHandleLocalPathIsKept(t *testing.T) {
	f := newFixture(t, writeMarkdown, time.Minute)
	pdf := filepath.Join(t.TempDir(), "report.PDF")
	if err := os.WriteFile(pdf, []byte("%PDF-1.4"), 0o644); err != nil {
		t.Fatalf("write pdf: %v", err)
	}

	resp, err := f.handler.Handle(context.Background(), "job-path", schema.JobRequest{PDFPath: &pdf})
	if err != nil {
		t.Fatalf("Handle returned error: %v", err)
	}
	if resp.Status != schema.StatusSucceeded {
		t.Fatalf("unexpected status %s", resp.Status)
	}
	if _, err := os.Stat(pdf); err != nil {
		t.Fatalf("caller's file must never be deleted: %v", err)
	}
}

func TestHandlePipelineFailureStillCleansUp(t *testing.T) {
	f := newFixture(t, "echo 'model crashed' >&2\nexit 2", time.Minute)
	pdf := base64.StdEncoding.EncodeToString([]byte("%PDF"))

	resp, err := f.handler.Handle(context.Background(), "job-fail", schema.JobRequest{PDFBase64: &pdf})
	if err != nil {
		t.Fatalf("a pipeline failure is a response, not an error: %v", err)
	}
	if resp.Status != schema.StatusFailed || resp.ReturnCode != 2 {
		t.Fatalf("unexpected status %s (%d)", resp.Status, resp.ReturnCode)
	}
	if resp.Stderr != "model crashed" {
		t.Fatalf("stderr not trimmed/captured: %q", resp.Stderr)
	}
	if resp.Artifacts != nil {
		t.Fatalf("artifacts must not be collected on failure: %+v", resp.Artifacts)
	}
	f.assertNoTempFiles(t)
}

func TestHandleTimeout(t *testing.T) {
	f := newFixture(t, "exec sleep 5", 100*time.Millisecond)
	pdf := base64.StdEncoding.EncodeToString([]byte("%PDF"))

	start := time.Now()
	resp, err := f.handler.Handle(context.Background(), "job-slow", schema.JobRequest{PDFBase64: &pdf})
	if err != nil {
		t.Fatalf("Handle returned error: %v", err)
	}
	if resp.Status != schema.StatusTimedOut || resp.ReturnCode != -1 {
		t.Fatalf("unexpected status %s (%d)", resp.Status, resp.ReturnCode)
	}
	if time.Since(start) > 4*time.Second {
		t.Fatalf("timeout not enforced, took %s", time.Since(start))
	}
	f.assertNoTempFiles(t)
}

func TestHandleExplicitOutputDir(t *testing.T) {
	f := newFixture(t, writeMarkdown, time.Minute)
	outDir := filepath.Join(t.TempDir(), "custom")
	pdf := base64.StdEncoding.EncodeToString([]byte("%PDF"))

	resp, err := f.handler.Handle(context.Background(), "job-out", schema.JobRequest{PDFBase64: &pdf, OutputDir: outDir})
	if err != nil {
		t.Fatalf("Handle returned error: %v", err)
	}
	if filepath.Dir(resp.MarkdownPath) != outDir {
		t.Fatalf("explicit output_dir not used verbatim: %s", resp.MarkdownPath)
	}
	if _, err := os.Stat(filepath.Join(f.outRoot, "job-out")); !os.IsNotExist(err) {
		t.Fatalf("namespaced dir should not be created for explicit output_dir: %v", err)
	}
	if _, err := os.Stat(outDir + ".lock"); !os.IsNotExist(err) {
		t.Fatalf("nothing may be written next to output_dir: %v", err)
	}
	if _, err := os.Stat(filepath.Join(outDir, lockFileName)); err != nil {
		t.Fatalf("lock file should live inside output_dir: %v", err)
	}
}

func TestHandleResolveFailureLeavesNoOutputDir(t *testing.T) {
	f := newFixture(t, writeMarkdown, time.Minute)
	missing := filepath.Join(t.TempDir(), "nope.pdf")

	if _, err := f.handler.Handle(context.Background(), "job-bad", schema.JobRequest{PDFPath: &missing}); err == nil {
		t.Fatal("expected error for missing pdf_path")
	}
	if _, err := os.Stat(filepath.Join(f.outRoot, "job-bad")); !os.IsNotExist(err) {
		t.Fatalf("output dir must not be created when the input cannot be resolved: %v", err)
	}

	bad := "not base64!"
	if _, err := f.handler.Handle(context.Background(), "job-bad-b64", schema.JobRequest{PDFBase64: &bad}); err == nil {
		t.Fatal("expected error for malformed base64")
	}
	if _, err := os.Stat(filepath.Join(f.outRoot, "job-bad-b64")); !os.IsNotExist(err) {
		t.Fatalf("output dir must not be created for undecodable input: %v", err)
	}
}

func TestHandleCancelledIsErrorNotTimeout(t *testing.T) {
	f := newFixture(t, "exec sleep 5", time.Minute)
	pdf := base64.StdEncoding.EncodeToString([]byte("%PDF"))

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(100*time.Millisecond, cancel)

	resp, err := f.handler.Handle(ctx, "job-cancel", schema.JobRequest{PDFBase64: &pdf})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected cancellation error, got resp=%+v err=%v", resp, err)
	}
	if got := Classify(err); got.Kind != StagePipeline || got.FailureType != schema.FailureTypeRetryable {
		t.Fatalf("unexpected classification %+v", got)
	}
	f.assertNoTempFiles(t)
}

func TestHandleSerializesSharedOutputDir(t *testing.T) {
	f := newFixture(t, writeMarkdown, time.Minute)
	outDir := filepath.Join(t.TempDir(), "shared")
	pdf := base64.StdEncoding.EncodeToString([]byte("%PDF"))

	errs := make(chan error, 3)
	for i := 0; i < 3; i++ {
		go func(i int) {
			resp, err := f.handler.Handle(context.Background(), fmt.Sprintf("job-%d", i), schema.JobRequest{PDFBase64: &pdf, OutputDir: outDir})
			if err == nil && resp.Status != schema.StatusSucceeded {
				err = fmt.Errorf("status %s", resp.Status)
			}
			errs <- err
		}(i)
	}
	for i := 0; i < 3; i++ {
		if err := <-errs; err != nil {
			t.Fatalf("concurrent job failed: %v", err)
		}
	}
	f.assertNoTempFiles(t)
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name        string
		err         error
		kind        string
		failureType schema.FailureType
	}{
		{"input", input.InputError("no source", nil), "input", schema.FailureTypeValidation},
		{"decode", input.DecodeError("bad base64", nil), "decode", schema.FailureTypeValidation},
		{"network 503", input.NetworkError("download", 503, nil), "network", schema.FailureTypeRetryable},
		{"network transport", input.NetworkError("download", 0, errors.New("refused")), "network", schema.FailureTypeRetryable},
		{"network 403", input.NetworkError("download", 403, nil), "network", schema.FailureTypePermanent},
		{"start", &StageError{Stage: StagePipeline, Err: fmt.Errorf("%w: python: not found", pipeline.ErrStart)}, "pipeline", schema.FailureTypePermanent},
		{"output", &StageError{Stage: StageOutput, Err: errors.New("read-only file system")}, "output", schema.FailureTypeRetryable},
		{"canceled run", &StageError{Stage: StagePipeline, Err: fmt.Errorf("pipeline interrupted: %w", context.Canceled)}, "pipeline", schema.FailureTypeRetryable},
		{"canceled lock", &StageError{Stage: StageLock, Err: context.Canceled}, "lock", schema.FailureTypeRetryable},
		{"unknown", errors.New("boom"), "internal", schema.FailureTypeRetryable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Classify(tt.err)
			if got.Kind != tt.kind || got.FailureType != tt.failureType {
				t.Fatalf("Classify = %s/%s, want %s/%s", got.Kind, got.FailureType, tt.kind, tt.failureType)
			}
			if got.Message == "" {
				t.Fatal("message must be set")
			}
		})
	}
}

func TestSafeName(t *testing.T) {
	if got := safeName("abc-123"); got != "abc-123" {
		t.Fatalf("safeName changed a plain id: %q", got)
	}
	if got := safeName("../../etc"); strings.ContainsRune(got, '/') {
		t.Fatalf("safeName kept a separator: %q", got)
	}
	if got := safeName(".."); got == ".." || got == "" {
		t.Fatalf("safeName returned unsafe name %q", got)
	}
}
