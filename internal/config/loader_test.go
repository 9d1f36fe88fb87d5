package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/unalkalkan/narrator/pkg/types"
)

func TestLoad(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "test.yaml")

	configContent := `
input:
  path: "book.epub"
narrator_voice: "am_adam"
speed: 1.2
output_format: "m4b"
storage:
  adapter: "local"
  local:
    base_path: "/tmp/test"
`

	if err := os.WriteFile(configPath, []byte(configContent), 0644); err != nil {
		t.Fatalf("Failed to write test config: %v", err)
	}

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if cfg.Input.Path != "book.epub" {
		t.Errorf("Input.Path = %q, want %q", cfg.Input.Path, "book.epub")
	}
	if cfg.NarratorVoice != "am_adam" {
		t.Errorf("NarratorVoice = %q, want %q", cfg.NarratorVoice, "am_adam")
	}
	if cfg.Speed != 1.2 {
		t.Errorf("Speed = %v, want 1.2", cfg.Speed)
	}
	if cfg.OutputFormat != "m4b" {
		t.Errorf("OutputFormat = %q, want %q", cfg.OutputFormat, "m4b")
	}
	// Defaults should still apply where the file was silent.
	if cfg.CharTarget != 400 {
		t.Errorf("CharTarget = %d, want default 400", cfg.CharTarget)
	}
}

func validBaseConfig() *types.Config {
	cfg := types.Defaults()
	cfg.Input.Path = "book.txt"
	cfg.Storage.Local.BasePath = "/tmp/test"
	return cfg
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*types.Config)
		wantErr bool
	}{
		{
			name:    "valid config",
			modify:  func(c *types.Config) {},
			wantErr: false,
		},
		{
			name: "missing input path",
			modify: func(c *types.Config) {
				c.Input.Path = ""
			},
			wantErr: true,
		},
		{
			name: "invalid output format",
			modify: func(c *types.Config) {
				c.OutputFormat = "ogg"
			},
			wantErr: true,
		},
		{
			name: "speed out of range",
			modify: func(c *types.Config) {
				c.Speed = 5.0
			},
			wantErr: true,
		},
		{
			name: "invalid storage adapter",
			modify: func(c *types.Config) {
				c.Storage.Adapter = "invalid"
			},
			wantErr: true,
		},
		{
			name: "relative local base path",
			modify: func(c *types.Config) {
				c.Storage.Adapter = "local"
				c.Storage.Local.BasePath = "relative/path"
			},
			wantErr: true,
		},
		{
			name: "missing s3 bucket",
			modify: func(c *types.Config) {
				c.Storage.Adapter = "s3"
				c.Storage.S3.Bucket = ""
				c.Storage.S3.Region = "us-east-1"
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validBaseConfig()
			tt.modify(cfg)

			err := Validate(cfg)
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestApplyEnvOverrides(t *testing.T) {
	t.Setenv("NARRATOR_NARRATOR_VOICE", "bf_emma")
	t.Setenv("NARRATOR_SPEED", "1.5")
	t.Setenv("NARRATOR_PARALLEL_WORKERS", "4")

	cfg := types.Defaults()
	applyEnvOverrides(cfg)

	if cfg.NarratorVoice != "bf_emma" {
		t.Errorf("NarratorVoice = %q, want %q", cfg.NarratorVoice, "bf_emma")
	}
	if cfg.Speed != 1.5 {
		t.Errorf("Speed = %v, want 1.5", cfg.Speed)
	}
	if cfg.ParallelWorkers != 4 {
		t.Errorf("ParallelWorkers = %d, want 4", cfg.ParallelWorkers)
	}
}

func TestGetDefault(t *testing.T) {
	cfg := GetDefault()
	if cfg.NarratorVoice == "" {
		t.Error("GetDefault() returned empty NarratorVoice")
	}
	if cfg.SampleRate != 48000 {
		t.Errorf("GetDefault() SampleRate = %d, want 48000", cfg.SampleRate)
	}
}
