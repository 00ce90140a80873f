// Package config loads worker settings from defaults, an optional YAML file
// named by WORKER_CONFIG, and the environment, in increasing precedence.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/shlex"
	"gopkg.in/yaml.v3"
)

const (
	DefaultOutputDir       = "/tmp/ocr-output"
	DefaultPipelineCommand = "python custom_run_dpsk_ocr_pdf.py"
	DefaultInlineTextLimit = 500_000
)

type Config struct {
	OutputDir       string        `yaml:"output_dir"`
	NamespaceOutput bool          `yaml:"namespace_output"`
	PipelineCommand string        `yaml:"pipeline_command"`
	PipelineWorkDir string        `yaml:"pipeline_workdir"`
	PipelineTimeout time.Duration `yaml:"pipeline_timeout"`
	DownloadTimeout time.Duration `yaml:"download_timeout"`
	InlineTextLimit int64         `yaml:"inline_text_limit"`
	PreviewWidth    int           `yaml:"preview_width"`
	PreviewHeight   int           `yaml:"preview_height"`

	NATSURL       string `yaml:"nats_url"`
	JobSubject    string `yaml:"job_subject"`
	WorkerQueue   string `yaml:"worker_queue"`
	ResultSubject string `yaml:"result_subject"`
	HTTPAddr      string `yaml:"http_addr"`
	LogLevel      string `yaml:"log_level"`

	pipelineArgs []string
}

// Default returns the built-in settings.
func Default() Config {
	return Config{
		OutputDir:       DefaultOutputDir,
		NamespaceOutput: true,
		PipelineCommand: DefaultPipelineCommand,
		PipelineWorkDir: executableDir(),
		PipelineTimeout: 30 * time.Minute,
		DownloadTimeout: 120 * time.Second,
		InlineTextLimit: DefaultInlineTextLimit,
		NATSURL:         "nats://127.0.0.1:4222",
		JobSubject:      "ocr.jobs",
		WorkerQueue:     "ocr-workers",
		ResultSubject:   "ocr.jobs.done",
		HTTPAddr:        ":8080",
		LogLevel:        "info",
	}
}

// Load builds a validated Config.
func Load() (Config, error) {
	cfg := Default()

	if path := os.Getenv("WORKER_CONFIG"); path != "" {
		if err := cfg.mergeFile(path); err != nil {
			return Config{}, err
		}
	}
	if err := cfg.mergeEnv(); err != nil {
		return Config{}, err
	}
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// PipelineArgs is PipelineCommand split with shell quoting rules.
func (c Config) PipelineArgs() []string {
	return append([]string(nil), c.pipelineArgs...)
}

// SlogLevel maps LogLevel onto slog, defaulting to info.
func (c Config) SlogLevel() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func (c *Config) mergeFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read WORKER_CONFIG: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse WORKER_CONFIG %s: %w", path, err)
	}
	return nil
}

func (c *Config) mergeEnv() error {
	c.OutputDir = getenv("OCR_OUTPUT_DIR", c.OutputDir)
	c.PipelineCommand = getenv("PIPELINE_COMMAND", c.PipelineCommand)
	c.PipelineWorkDir = getenv("PIPELINE_WORKDIR", c.PipelineWorkDir)
	c.NATSURL = getenv("NATS_URL", c.NATSURL)
	c.JobSubject = getenv("JOB_SUBJECT", c.JobSubject)
	c.WorkerQueue = getenv("WORKER_QUEUE", c.WorkerQueue)
	c.ResultSubject = getenv("RESULT_SUBJECT", c.ResultSubject)
	c.LogLevel = getenv("LOG_LEVEL", c.LogLevel)
	if v, ok := os.LookupEnv("HTTP_ADDR"); ok {
		c.HTTPAddr = v
	}

	var err error
	if c.NamespaceOutput, err = getenvBool("NAMESPACE_OUTPUT", c.NamespaceOutput); err != nil {
		return err
	}
	if c.PipelineTimeout, err = getenvDuration("PIPELINE_TIMEOUT", c.PipelineTimeout); err != nil {
		return err
	}
	if c.DownloadTimeout, err = getenvDuration("DOWNLOAD_TIMEOUT", c.DownloadTimeout); err != nil {
		return err
	}
	limit, err := getenvInt("INLINE_TEXT_LIMIT", int(c.InlineTextLimit))
	if err != nil {
		return err
	}
	c.InlineTextLimit = int64(limit)
	if c.PreviewWidth, err = getenvInt("PREVIEW_WIDTH", c.PreviewWidth); err != nil {
		return err
	}
	if c.PreviewHeight, err = getenvInt("PREVIEW_HEIGHT", c.PreviewHeight); err != nil {
		return err
	}
	return nil
}

func (c *Config) validate() error {
	if c.OutputDir == "" {
		return errors.New("OCR_OUTPUT_DIR must not be empty")
	}
	args, err := shlex.Split(c.PipelineCommand)
	if err != nil {
		return fmt.Errorf("parse PIPELINE_COMMAND: %w", err)
	}
	if len(args) == 0 {
		return errors.New("PIPELINE_COMMAND must not be empty")
	}
	c.pipelineArgs = args

	if c.InlineTextLimit <= 0 {
		return fmt.Errorf("INLINE_TEXT_LIMIT must be greater than zero (got %d)", c.InlineTextLimit)
	}
	if c.PipelineTimeout < 0 || c.DownloadTimeout <= 0 {
		return fmt.Errorf("invalid timeouts: pipeline=%s download=%s", c.PipelineTimeout, c.DownloadTimeout)
	}
	if c.PreviewWidth < 0 || c.PreviewHeight < 0 {
		return errors.New("preview dimensions must not be negative")
	}
	return nil
}

func getenv(k, d string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return d
}

func getenvBool(key string, d bool) (bool, error) {
	val := os.Getenv(key)
	if val == "" {
		return d, nil
	}
	b, err := strconv.ParseBool(val)
	if err != nil {
		return false, fmt.Errorf("invalid %s: %w", key, err)
	}
	return b, nil
}

func getenvInt(key string, d int) (int, error) {
	val := os.Getenv(key)
	if val == "" {
		return d, nil
	}
	v, err := strconv.Atoi(val)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return v, nil
}

func getenvDuration(key string, d time.Duration) (time.Duration, error) {
	val := os.Getenv(key)
	if val == "" {
		return d, nil
	}
	v, err := time.ParseDuration(val)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return v, nil
}

func executableDir() string {
	exe, err := os.Executable()
	if err != nil {
		return ""
	}
	return filepath.Dir(exe)
}
