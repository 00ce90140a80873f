package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/urfave/cli/v3"

	"github.com/tendant/simple-ocr-worker/pkg/schema"
)

func parseRequest(t *testing.T, args ...string) schema.JobRequest {
	t.Helper()
	var req schema.JobRequest
	cmd := &cli.Command{
		Name:   "docjob",
		Flags:  flags(),
		Action: func(_ context.Context, c *cli.Command) error {
			var err error
			req, err = buildRequest(c)
			return err
		},
	}
	if err := cmd.Run(context.Background(), append([]string{"docjob"}, args...)); err != nil {
		t.Fatalf("run: %v", err)
	}
	return req
}

func TestBuildRequestFromFlags(t *testing.T) {
	req := parseRequest(t, "--pdf-url", "https://example.com/a.pdf", "--prompt", "Free OCR.", "--output-dir", "/tmp/out")
	if req.PDFURL == nil || *req.PDFURL != "https://example.com/a.pdf" {
		t.Fatalf("pdf_url not set: %+v", req)
	}
	if req.PDFPath != nil || req.PDFBase64 != nil || req.ContentID != nil {
		t.Fatalf("unset sources must stay nil: %+v", req)
	}
	if req.Prompt != "Free OCR." || req.OutputDir != "/tmp/out" {
		t.Fatalf("unexpected prompt/output: %+v", req)
	}
}

func TestBuildRequestFileThenFlags(t *testing.T) {
	dir := t.TempDir()
	reqPath := filepath.Join(dir, "job.json")
	if err := os.WriteFile(reqPath, []byte(`{"pdf_path":"/docs/a.pdf","prompt":"from file"}`), 0o644); err != nil {
		t.Fatalf("write request: %v", err)
	}
	b64Path := filepath.Join(dir, "doc.b64")
	if err := os.WriteFile(b64Path, []byte("JVBERi0x\n"), 0o644); err != nil {
		t.Fatalf("write base64: %v", err)
	}

	req := parseRequest(t, "--request", reqPath, "--pdf-base64-file", b64Path, "--prompt", "from flag")
	if req.PDFPath == nil || *req.PDFPath != "/docs/a.pdf" {
		t.Fatalf("file source lost: %+v", req)
	}
	if req.PDFBase64 == nil || *req.PDFBase64 != "JVBERi0x" {
		t.Fatalf("base64 not read/trimmed: %+v", req.PDFBase64)
	}
	if req.Prompt != "from flag" {
		t.Fatalf("flag should override file prompt, got %q", req.Prompt)
	}
}

func TestFormatBytes(t *testing.T) {
	tests := map[int64]string{
		512:             "512 B",
		2048:            "2.0 KB",
		5 * 1024 * 1024: "5.0 MB",
	}
	for in, want := range tests {
		if got := formatBytes(in); got != want {
			t.Fatalf("formatBytes(%d) = %q, want %q", in, got, want)
		}
	}
}
