package types

// Config is the full configuration record accepted by the pipeline,
// covering the recognized options plus the ambient storage/logging
// settings needed to run it as a standalone batch job.
type Config struct {
	Input  InputConfig  `yaml:"input" json:"input"`
	Output OutputConfig `yaml:"output" json:"output"`

	NarratorVoice      string            `yaml:"narrator_voice" json:"narrator_voice"`
	Speed              float64           `yaml:"speed" json:"speed"`
	SampleRate         uint32            `yaml:"sample_rate" json:"sample_rate"`
	OutputFormat       string            `yaml:"output_format" json:"output_format"` // mp3|wav|m4a|m4b
	CharacterVoices    bool              `yaml:"character_voices" json:"character_voices"`
	CharacterMap       map[string]Voice  `yaml:"character_map" json:"character_map"`
	CharTarget         int               `yaml:"char_target" json:"char_target"`
	PhonemeHardLimit   int               `yaml:"phoneme_hard_limit" json:"phoneme_hard_limit"`
	CheckpointInterval int               `yaml:"checkpoint_interval" json:"checkpoint_interval"`
	ParallelWorkers    int               `yaml:"parallel_workers" json:"parallel_workers"`
	SpanTimeoutSeconds int               `yaml:"span_timeout_seconds" json:"span_timeout_seconds"`

	WorkspaceDir string `yaml:"workspace_dir" json:"workspace_dir"`

	Storage StorageConfig `yaml:"storage" json:"storage"`
	Logging LoggingConfig `yaml:"logging" json:"logging"`
}

// InputConfig names the source document to narrate.
type InputConfig struct {
	Path   string `yaml:"path" json:"path"`
	Format string `yaml:"format" json:"format"` // epub|pdf|txt|md|rst, "" = infer from extension
}

// OutputConfig names the destination for the final artifact.
type OutputConfig struct {
	Dir      string `yaml:"dir" json:"dir"`
	Filename string `yaml:"filename" json:"filename"`
}

// Voice carries the per-character voice assignment, including the
// optional voice-description hint for backends that support
// voice cloning by description.
type Voice struct {
	VoiceID     string `yaml:"voice_id" json:"voice_id"`
	Description string `yaml:"description,omitempty" json:"description,omitempty"`
}

// StorageConfig selects the adapter used for the input read and the
// final-artifact write (local filesystem or S3-compatible object
// storage).
type StorageConfig struct {
	Adapter string           `yaml:"adapter" json:"adapter"` // "local" or "s3"
	Local   LocalStorageOpts `yaml:"local" json:"local"`
	S3      S3StorageOpts    `yaml:"s3" json:"s3"`
}

type LocalStorageOpts struct {
	BasePath string `yaml:"base_path" json:"base_path"`
}

type S3StorageOpts struct {
	Endpoint        string `yaml:"endpoint" json:"endpoint"`
	Region          string `yaml:"region" json:"region"`
	Bucket          string `yaml:"bucket" json:"bucket"`
	AccessKeyID     string `yaml:"access_key_id" json:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key" json:"secret_access_key"`
}

// LoggingConfig configures the zap logger and optional lumberjack
// rotation.
type LoggingConfig struct {
	Level      string `yaml:"level" json:"level"`
	Dev        bool   `yaml:"dev" json:"dev"`
	File       string `yaml:"file" json:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb" json:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups" json:"max_backups"`
}

// Defaults returns the documented default option values.
func Defaults() *Config {
	return &Config{
		NarratorVoice:      "am_michael",
		Speed:              1.0,
		SampleRate:         48000,
		OutputFormat:       "wav",
		CharacterVoices:    false,
		CharacterMap:       map[string]Voice{},
		CharTarget:         400,
		PhonemeHardLimit:   510,
		CheckpointInterval: 50,
		ParallelWorkers:    1,
		SpanTimeoutSeconds: 60,
		WorkspaceDir:       "",
		Storage: StorageConfig{
			Adapter: "local",
		},
		Logging: LoggingConfig{
			Level:      "info",
			MaxSizeMB:  100,
			MaxBackups: 3,
		},
	}
}
