package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/unalkalkan/narrator/internal/config"
	"github.com/unalkalkan/narrator/internal/health"
	"github.com/unalkalkan/narrator/internal/logging"
	"github.com/unalkalkan/narrator/internal/orchestrator"
	"github.com/unalkalkan/narrator/internal/parser"
	"github.com/unalkalkan/narrator/internal/provider"
	"github.com/unalkalkan/narrator/internal/storage"
	"github.com/unalkalkan/narrator/pkg/types"
)

const version = "0.1.0"

func main() {
	configPath := flag.String("config", "config/narrate.yaml", "Path to configuration file")
	ttsEndpoint := flag.String("tts-endpoint", "", "OpenAI-compatible TTS endpoint (empty uses the in-process fake backend)")
	ttsAPIKey := flag.String("tts-api-key", "", "API key for the TTS endpoint")
	ttsModel := flag.String("tts-model", "tts-1", "Model name passed to the TTS endpoint")
	ffmpegBin := flag.String("ffmpeg", "ffmpeg", "ffmpeg binary name or path")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := logging.New(cfg.Logging)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logger.Sync()

	logger.Info("narrate starting", zap.String("version", version), zap.String("config", *configPath))

	if err := health.CheckEnvironment(context.Background(), *ffmpegBin, cfg.WorkspaceDir); err != nil {
		logger.Fatal("environment not ready", zap.Error(err))
	}

	storageAdapter, err := storage.NewAdapter(cfg.Storage)
	if err != nil {
		logger.Fatal("failed to init storage adapter", zap.Error(err))
	}
	defer storageAdapter.Close()

	backend, err := newTTSBackend(*ttsEndpoint, *ttsAPIKey, *ttsModel, logger)
	if err != nil {
		logger.Fatal("failed to init tts backend", zap.Error(err))
	}
	defer backend.Close()

	doc, inputSize, inputModUnix, err := loadDocument(context.Background(), storageAdapter, cfg.Input)
	if err != nil {
		logger.Fatal("failed to load input document", zap.Error(err))
	}

	backendModelID := "fake"
	if *ttsEndpoint != "" {
		backendModelID = *ttsModel
	}

	dest := outputDestination(*cfg)

	// The session directory name is derived from the input path and the
	// destination, so re-running the same job finds the checkpoint left
	// by an interrupted run; the SettingsFingerprint decides whether it
	// is still usable.
	sessionID := uuid.NewSHA1(uuid.NameSpaceURL, []byte(cfg.Input.Path+"\x00"+dest)).String()
	sessionDir := filepath.Join(cfg.WorkspaceDir, sessionID)
	if err := os.MkdirAll(sessionDir, 0755); err != nil {
		logger.Fatal("failed to create session workspace", zap.Error(err))
	}

	ctx, cancel := context.WithCancel(context.Background())
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sig
		logger.Warn("cancellation requested, finishing in-flight chunks and checkpointing")
		cancel()
	}()

	orch := orchestrator.New(backend, logger)
	in := orchestrator.RunInput{
		Document:       *doc,
		Config:         *cfg,
		SessionDir:     sessionDir,
		Destination:    dest,
		InputSize:      inputSize,
		InputModUnix:   inputModUnix,
		BackendModelID: backendModelID,
	}

	cp, state, err := orch.Run(ctx, in)
	signal.Stop(sig)

	logger.Info("narrate finished",
		zap.String("state", state.String()),
		zap.Uint64("last_completed_ordinal", cp.LastCompletedOrdinal),
		zap.Error(err),
	)

	if err != nil {
		var pe *types.PipelineError
		if errors.As(err, &pe) && pe.Kind == types.KindCancelled {
			logger.Info("run cancelled; resume with the same config to continue from the last checkpoint")
			os.Exit(130)
		}
		logger.Error("narration failed", zap.Error(err))
		os.Exit(1)
	}

	fmt.Printf("narration complete: %s\n", dest)
}

func newTTSBackend(endpoint, apiKey, model string, logger *zap.Logger) (provider.TTSProvider, error) {
	if endpoint == "" {
		return provider.NewFakeTTSProvider(48000), nil
	}
	return provider.NewHTTPBackend(provider.HTTPBackendOptions{
		Name:     "http",
		Endpoint: endpoint,
		APIKey:   apiKey,
		Model:    model,
	}, logger)
}

// loadDocument reads and parses the input document, returning its
// size and, when it is a plain local file, its modification time —
// both fold into the run's SettingsFingerprint so editing the source
// file invalidates any stale checkpoint (ModUnix is 0 for inputs that
// are not a local regular file, e.g. served from S3).
func loadDocument(ctx context.Context, adapter storage.Adapter, in types.InputConfig) (doc *types.Document, size int64, modUnix int64, err error) {
	rc, err := adapter.Get(ctx, in.Path)
	if err != nil {
		return nil, 0, 0, fmt.Errorf("read input %q: %w", in.Path, err)
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, 0, 0, fmt.Errorf("read input %q: %w", in.Path, err)
	}

	if fi, statErr := os.Stat(in.Path); statErr == nil {
		modUnix = fi.ModTime().Unix()
	}

	format := in.Format
	if format == "" {
		format = strings.TrimPrefix(strings.ToLower(filepath.Ext(in.Path)), ".")
	}

	factory := parser.NewFactory()
	p, err := factory.GetParser(format)
	if err != nil {
		return nil, 0, 0, fmt.Errorf("select parser for %q: %w", in.Path, err)
	}

	chapters, err := p.Parse(ctx, data)
	if err != nil {
		return nil, 0, 0, fmt.Errorf("parse %q: %w", in.Path, err)
	}

	title := strings.TrimSuffix(filepath.Base(in.Path), filepath.Ext(in.Path))
	return &types.Document{
		Title:    title,
		Chapters: chapters,
	}, int64(len(data)), modUnix, nil
}

func outputDestination(cfg types.Config) string {
	name := cfg.Output.Filename
	if name == "" {
		base := strings.TrimSuffix(filepath.Base(cfg.Input.Path), filepath.Ext(cfg.Input.Path))
		name = base + "." + cfg.OutputFormat
	}
	dir := cfg.Output.Dir
	if dir == "" {
		dir = "."
	}
	return filepath.Join(dir, name)
}
