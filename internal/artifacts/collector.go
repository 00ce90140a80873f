// Package artifacts gathers the pipeline's well-known output files into a response.
package artifacts

import (
	"encoding/base64"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/tendant/simple-ocr-worker/pkg/schema"
)

// DefaultInlineLimit is the largest text artifact returned verbatim.
const DefaultInlineLimit = 500_000

const (
	markdownExt = ".mmd"
	layoutExt   = ".pdf"
	imagesDir   = "images"
)

// Options controls encoding and the optional image preview.
type Options struct {
	InlineLimit   int64
	PreviewWidth  int
	PreviewHeight int
}

// Collector inspects an output directory after a successful pipeline run.
type Collector struct {
	opts   Options
	logger *slog.Logger
}

func NewCollector(opts Options, logger *slog.Logger) *Collector {
	if opts.InlineLimit <= 0 {
		opts.InlineLimit = DefaultInlineLimit
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Collector{opts: opts, logger: logger}
}

// Stem derives the base name the pipeline uses for its outputs: a trailing
// ".pdf" (any case) is stripped, otherwise the last extension is.
func Stem(inputPath string) string {
	name := filepath.Base(inputPath)
	if len(name) > 4 && strings.EqualFold(name[len(name)-4:], ".pdf") {
		return name[:len(name)-4]
	}
	return strings.TrimSuffix(name, filepath.Ext(name))
}

// Collect checks the four artifact locations independently. Absent files are
// normal; an artifact that exists but cannot be read is skipped with a warning
// so the others are still reported.
func (c *Collector) Collect(inputPath, outputDir string) *schema.Artifacts {
	stem := Stem(inputPath)
	out := &schema.Artifacts{}
	warn := func(artifact, path string, err error) {
		c.logger.Warn("artifact skipped", "artifact", artifact, "path", path, "err", err)
		out.CollectWarnings = append(out.CollectWarnings, fmt.Sprintf("%s %s: %v", artifact, path, err))
	}

	markdownPath := filepath.Join(outputDir, stem+markdownExt)
	data, ok, err := readOptional(markdownPath)
	switch {
	case err != nil:
		warn("markdown", markdownPath, err)
	case ok:
		text, enc := encodeText(data, c.opts.InlineLimit)
		out.Markdown = &text
		out.MarkdownEncoding = enc
		out.MarkdownPath = markdownPath
	default:
		out.MarkdownMissing = markdownPath
	}

	detectionPath := filepath.Join(outputDir, stem+"_det"+markdownExt)
	data, ok, err = readOptional(detectionPath)
	switch {
	case err != nil:
		warn("detection_markdown", detectionPath, err)
	case ok:
		text, enc := encodeText(data, c.opts.InlineLimit)
		out.DetectionMarkdown = &text
		out.DetectionMarkdownEncoding = enc
		out.DetectionMarkdownPath = detectionPath
	}

	layoutPath := filepath.Join(outputDir, stem+"_layouts"+layoutExt)
	data, ok, err = readOptional(layoutPath)
	switch {
	case err != nil:
		warn("layout_pdf", layoutPath, err)
	case ok:
		encoded := base64.StdEncoding.EncodeToString(data)
		out.LayoutPDFPath = layoutPath
		out.LayoutPDFBase64 = &encoded
	}

	images := filepath.Join(outputDir, imagesDir)
	if info, err := os.Stat(images); err == nil && info.IsDir() {
		archivePath := filepath.Join(outputDir, stem+"_images.zip")
		count, err := ArchiveDir(images, archivePath)
		if err != nil {
			warn("images", images, err)
			return out
		}
		out.ImagesArchivePath = archivePath
		c.logger.Info("archived images", "archive", archivePath, "files", count)

		if c.opts.PreviewWidth > 0 {
			previewPath := filepath.Join(outputDir, stem+"_preview.png")
			if err := WritePreview(images, previewPath, c.opts.PreviewWidth, c.opts.PreviewHeight); err != nil {
				c.logger.Warn("image preview skipped", "images_dir", images, "err", err)
			} else {
				out.ImagesPreviewPath = previewPath
			}
		}
	}

	return out
}

func readOptional(path string) ([]byte, bool, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return data, true, nil
}
