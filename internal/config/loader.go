package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"gopkg.in/yaml.v3"

	"github.com/unalkalkan/narrator/pkg/types"
)

// Load reads and parses the narration configuration file, applying
// NARRATOR_-prefixed environment variable overrides on top, then
// validating the result.
func Load(configPath string) (*types.Config, error) {
	cfg := types.Defaults()

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks that a configuration is self-consistent enough to
// run a narration job.
func Validate(cfg *types.Config) error {
	if cfg.Input.Path == "" {
		return fmt.Errorf("input.path is required")
	}

	switch cfg.OutputFormat {
	case "mp3", "wav", "m4a", "m4b":
	default:
		return fmt.Errorf("invalid output_format: %s (must be one of mp3, wav, m4a, m4b)", cfg.OutputFormat)
	}

	if cfg.Speed < 0.5 || cfg.Speed > 2.0 {
		return fmt.Errorf("speed %g out of range [0.5, 2.0]", cfg.Speed)
	}

	if cfg.Storage.Adapter != "local" && cfg.Storage.Adapter != "s3" {
		return fmt.Errorf("invalid storage adapter: %s (must be 'local' or 's3')", cfg.Storage.Adapter)
	}
	if cfg.Storage.Adapter == "local" {
		if cfg.Storage.Local.BasePath != "" && !filepath.IsAbs(cfg.Storage.Local.BasePath) {
			return fmt.Errorf("local storage base_path must be absolute: %s", cfg.Storage.Local.BasePath)
		}
	}
	if cfg.Storage.Adapter == "s3" {
		if cfg.Storage.S3.Bucket == "" {
			return fmt.Errorf("s3 bucket is required")
		}
		if cfg.Storage.S3.Region == "" {
			return fmt.Errorf("s3 region is required")
		}
	}

	if cfg.CharTarget <= 0 {
		cfg.CharTarget = 400
	}
	if cfg.PhonemeHardLimit <= 0 {
		cfg.PhonemeHardLimit = 510
	}
	if cfg.CheckpointInterval <= 0 {
		cfg.CheckpointInterval = 50
	}
	if cfg.ParallelWorkers <= 0 {
		cfg.ParallelWorkers = 1
	}
	if cfg.SpanTimeoutSeconds <= 0 {
		cfg.SpanTimeoutSeconds = 60
	}
	if cfg.WorkspaceDir == "" {
		cfg.WorkspaceDir = filepath.Join(os.TempDir(), "narrator")
	}

	return nil
}

// applyEnvOverrides applies NARRATOR_-prefixed environment variable
// overrides on top of whatever the config file set.
func applyEnvOverrides(cfg *types.Config) {
	if val := os.Getenv("NARRATOR_INPUT_PATH"); val != "" {
		cfg.Input.Path = val
	}
	if val := os.Getenv("NARRATOR_OUTPUT_DIR"); val != "" {
		cfg.Output.Dir = val
	}
	if val := os.Getenv("NARRATOR_NARRATOR_VOICE"); val != "" {
		cfg.NarratorVoice = val
	}
	if val := os.Getenv("NARRATOR_OUTPUT_FORMAT"); val != "" {
		cfg.OutputFormat = val
	}
	if val := os.Getenv("NARRATOR_SPEED"); val != "" {
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			cfg.Speed = f
		}
	}
	if val := os.Getenv("NARRATOR_SAMPLE_RATE"); val != "" {
		if n, err := strconv.Atoi(val); err == nil {
			cfg.SampleRate = uint32(n)
		}
	}
	if val := os.Getenv("NARRATOR_PARALLEL_WORKERS"); val != "" {
		if n, err := strconv.Atoi(val); err == nil {
			cfg.ParallelWorkers = n
		}
	}
	if val := os.Getenv("NARRATOR_WORKSPACE_DIR"); val != "" {
		cfg.WorkspaceDir = val
	}

	if val := os.Getenv("NARRATOR_STORAGE_ADAPTER"); val != "" {
		cfg.Storage.Adapter = val
	}
	if val := os.Getenv("NARRATOR_STORAGE_LOCAL_BASE_PATH"); val != "" {
		cfg.Storage.Local.BasePath = val
	}
	if val := os.Getenv("NARRATOR_STORAGE_S3_BUCKET"); val != "" {
		cfg.Storage.S3.Bucket = val
	}
	if val := os.Getenv("NARRATOR_STORAGE_S3_REGION"); val != "" {
		cfg.Storage.S3.Region = val
	}
	if val := os.Getenv("NARRATOR_STORAGE_S3_ENDPOINT"); val != "" {
		cfg.Storage.S3.Endpoint = val
	}
	if val := os.Getenv("NARRATOR_STORAGE_S3_ACCESS_KEY_ID"); val != "" {
		cfg.Storage.S3.AccessKeyID = val
	}
	if val := os.Getenv("NARRATOR_STORAGE_S3_SECRET_ACCESS_KEY"); val != "" {
		cfg.Storage.S3.SecretAccessKey = val
	}

	if val := os.Getenv("NARRATOR_LOG_LEVEL"); val != "" {
		cfg.Logging.Level = val
	}
	if val := os.Getenv("NARRATOR_LOG_FILE"); val != "" {
		cfg.Logging.File = val
	}
}

// GetDefault returns the documented default configuration.
func GetDefault() *types.Config {
	return types.Defaults()
}
