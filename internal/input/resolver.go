package input

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"
)

const tempPattern = "ocr-input-*.pdf"

// DefaultDownloadTimeout bounds the single GET issued for pdf_url inputs.
const DefaultDownloadTimeout = 120 * time.Second

// Resolved is a local document ready to hand to the pipeline.
type Resolved struct {
	Path      string
	Kind      SourceKind
	Ephemeral bool
}

// CleanupPaths lists the paths this job owns and must delete when it ends.
func (r *Resolved) CleanupPaths() []string {
	if r == nil || !r.Ephemeral {
		return nil
	}
	return []string{r.Path}
}

// Resolver materializes a Source on the local filesystem.
type Resolver struct {
	client  *http.Client
	content ContentStore
	tempDir string
}

type Option func(*Resolver)

// WithHTTPClient replaces the download client. Its Timeout is left as given.
func WithHTTPClient(c *http.Client) Option {
	return func(r *Resolver) { r.client = c }
}

// WithContentStore enables content_id inputs.
func WithContentStore(cs ContentStore) Option {
	return func(r *Resolver) { r.content = cs }
}

// WithTempDir sets where ephemeral inputs are written; empty means os.TempDir.
func WithTempDir(dir string) Option {
	return func(r *Resolver) { r.tempDir = dir }
}

func NewResolver(downloadTimeout time.Duration, opts ...Option) *Resolver {
	if downloadTimeout <= 0 {
		downloadTimeout = DefaultDownloadTimeout
	}
	r := &Resolver{client: &http.Client{Timeout: downloadTimeout}}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve acts on exactly one source. Nothing is left on disk when it fails.
func (r *Resolver) Resolve(ctx context.Context, src Source) (*Resolved, error) {
	switch src.Kind {
	case ByPath:
		return r.resolvePath(src.Value)
	case ByURL:
		return r.download(ctx, src.Value)
	case ByBase64:
		return r.decode(src.Value)
	case ByContent:
		return r.fetchContent(ctx, src.Value)
	default:
		return nil, InputError(fmt.Sprintf("unsupported source kind %d", src.Kind), nil)
	}
}

func (r *Resolver) resolvePath(raw string) (*Resolved, error) {
	path, err := expandUser(raw)
	if err != nil {
		return nil, InputError("expand pdf_path", err)
	}
	if _, err := os.Stat(path); err != nil {
		return nil, InputError(fmt.Sprintf("provided pdf_path does not exist: %s", path), err)
	}
	return &Resolved{Path: path, Kind: ByPath}, nil
}

func (r *Resolver) download(ctx context.Context, url string) (*Resolved, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, InputError(fmt.Sprintf("invalid pdf_url %q", url), err)
	}
	resp, err := r.client.Do(req)
	if err != nil {
		return nil, NetworkError("download pdf_url", 0, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, NetworkError(fmt.Sprintf("download pdf_url: unexpected status %s", resp.Status), resp.StatusCode, nil)
	}

	path, err := r.writeTemp(resp.Body)
	if err != nil {
		return nil, NetworkError("read pdf_url body", 0, err)
	}
	return &Resolved{Path: path, Kind: ByURL, Ephemeral: true}, nil
}

func (r *Resolver) decode(encoded string) (*Resolved, error) {
	payload := strings.Map(func(c rune) rune {
		switch c {
		case ' ', '\t', '\n', '\r':
			return -1
		}
		return c
	}, encoded)

	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, DecodeError("decode pdf_base64", err)
	}

	path, err := r.writeTemp(bytes.NewReader(data))
	if err != nil {
		return nil, InputError("persist pdf_base64", err)
	}
	return &Resolved{Path: path, Kind: ByBase64, Ephemeral: true}, nil
}

// writeTemp copies src into a new temp file and removes it again on failure.
func (r *Resolver) writeTemp(src io.Reader) (string, error) {
	temp, err := os.CreateTemp(r.tempDir, tempPattern)
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}
	if _, err := io.Copy(temp, src); err != nil {
		temp.Close()
		os.Remove(temp.Name())
		return "", fmt.Errorf("copy content to disk: %w", err)
	}
	if err := temp.Close(); err != nil {
		os.Remove(temp.Name())
		return "", fmt.Errorf("close temp file: %w", err)
	}
	return temp.Name(), nil
}

func expandUser(path string) (string, error) {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	if path == "~" {
		return home, nil
	}
	return filepath.Join(home, path[2:]), nil
}
