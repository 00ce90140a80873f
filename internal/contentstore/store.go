// Package contentstore builds the optional simple-content service that backs
// content_id inputs.
package contentstore

import (
	"fmt"
	"log/slog"
	"os"

	simpleconfig "github.com/tendant/simple-content/pkg/simplecontent/config"

	"github.com/tendant/simple-ocr-worker/internal/input"
)

// Enabled reports whether CONTENT_STORE_ENABLED asks for a store.
func Enabled() bool {
	return getenvBool("CONTENT_STORE_ENABLED", false)
}

func loadSimpleContentConfig() (*simpleconfig.ServerConfig, error) {
	backend := getenv("DEFAULT_STORAGE_BACKEND", "s3")
	opts := []simpleconfig.Option{
		simpleconfig.WithDatabase(getenv("DATABASE_TYPE", "postgres"), getenv("DATABASE_URL", "")),
		simpleconfig.WithDatabaseSchema(getenv("DATABASE_SCHEMA", "content")),
		simpleconfig.WithDefaultStorage(backend),
	}

	switch backend {
	case "s3":
		opts = append(opts, simpleconfig.WithS3StorageFull(
			"s3",
			getenv("AWS_S3_BUCKET", ""),
			getenv("AWS_S3_REGION", "us-east-1"),
			getenv("AWS_ACCESS_KEY_ID", ""),
			getenv("AWS_SECRET_ACCESS_KEY", ""),
			getenv("AWS_S3_ENDPOINT", ""),
			getenvBool("AWS_S3_USE_SSL", false),
			getenvBool("AWS_S3_USE_PATH_STYLE", true),
		))
	case "memory":
		opts = append(opts, simpleconfig.WithMemoryStorage("memory"))
	}

	opts = append(opts, simpleconfig.WithEventLogging(false))
	return simpleconfig.Load(opts...)
}

// FromEnv loads the simple-content settings from the environment and builds
// the service.
func FromEnv(logger *slog.Logger) (input.ContentStore, error) {
	if logger == nil {
		logger = slog.Default()
	}
	contentCfg, err := loadSimpleContentConfig()
	if err != nil {
		return nil, fmt.Errorf("load simplecontent config: %w", err)
	}
	backends := make([]string, 0, len(contentCfg.StorageBackends))
	for _, b := range contentCfg.StorageBackends {
		backends = append(backends, fmt.Sprintf("%s(%s)", b.Name, b.Type))
	}
	logger.Info("loaded simplecontent config", "default_backend", contentCfg.DefaultStorageBackend, "storage_backends", backends, "database_type", contentCfg.DatabaseType)

	svc, err := contentCfg.BuildService()
	if err != nil {
		return nil, err
	}
	logger.Info("simplecontent service ready", "backend", contentCfg.DefaultStorageBackend)
	return svc, nil
}

func getenv(k, d string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return d
}

func getenvBool(key string, defaultValue bool) bool {
	val := getenv(key, "")
	if val == "" {
		return defaultValue
	}
	return val == "true"
}
