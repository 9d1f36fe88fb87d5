package orchestrator

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"go.uber.org/zap"

	"github.com/unalkalkan/narrator/internal/checkpoint"
	"github.com/unalkalkan/narrator/internal/dialogue"
	"github.com/unalkalkan/narrator/internal/provider"
	"github.com/unalkalkan/narrator/pkg/types"
)

func testDoc() types.Document {
	return types.Document{
		Title:  "Test Book",
		Author: "Author Name",
		Chapters: []*types.Chapter{
			{Ordinal: 0, Title: "Chapter One", Paragraphs: []string{"Alice walked into the room. She looked around slowly."}},
			{Ordinal: 1, Title: "Chapter Two", Paragraphs: []string{"The rain fell all night. Bob could not sleep at all."}},
		},
	}
}

func testConfig(sessionDir string) types.Config {
	cfg := types.Defaults()
	cfg.Input.Path = "book.txt"
	cfg.ParallelWorkers = 2
	cfg.CheckpointInterval = 1
	cfg.WorkspaceDir = sessionDir
	return *cfg
}

func newTestOrchestrator(t *testing.T) *Orchestrator {
	t.Helper()
	log := zap.NewNop()
	backend := provider.NewFakeTTSProvider(24000)
	return New(backend, log)
}

func TestRunProducesFinalArtifact(t *testing.T) {
	sessionDir := t.TempDir()
	destDir := t.TempDir()

	o := newTestOrchestrator(t)
	in := RunInput{
		Document:    testDoc(),
		Config:      testConfig(sessionDir),
		SessionDir:  sessionDir,
		Destination: filepath.Join(destDir, "book.wav"),
	}
	// Destination encoding depends on ffmpeg being on PATH, which this
	// environment offers no guarantee of, so Run through Synthesizing
	// is what's under test here; Encoding failures are reported, not
	// silently swallowed.
	_, state, err := o.Run(context.Background(), in)
	if err != nil && state != StateFailed {
		t.Fatalf("Run: unexpected state %v for error %v", state, err)
	}
	if err == nil && state != StateDone {
		t.Errorf("Run: state = %v, want done", state)
	}
	if err == nil {
		if _, statErr := os.Stat(in.Destination); statErr != nil {
			t.Errorf("Run reported done but no artifact at %s: %v", in.Destination, statErr)
		}
	}
}

func TestRunWritesCheckpointsDuringSynthesis(t *testing.T) {
	sessionDir := t.TempDir()
	cfg := testConfig(sessionDir)
	cfg.OutputFormat = "wav"

	o := newTestOrchestrator(t)
	in := RunInput{
		Document:    testDoc(),
		Config:      cfg,
		SessionDir:  sessionDir,
		Destination: filepath.Join(t.TempDir(), "book.wav"),
	}
	o.Run(context.Background(), in)

	ck := checkpoint.Open(sessionDir)
	cp, ok := ck.Load()
	if !ok {
		t.Fatalf("expected a checkpoint to have been written during the run")
	}
	if cp.StreamByteOffset == 0 {
		t.Errorf("checkpoint StreamByteOffset = 0, want > 0 after synthesis")
	}
}

func TestRemainingFromSkipsCompletedOrdinals(t *testing.T) {
	planned := []plannedChunk{
		{Chunk: types.Chunk{Ordinal: 0}},
		{Chunk: types.Chunk{Ordinal: 1}},
		{Chunk: types.Chunk{Ordinal: 2}},
	}
	rem := remainingFrom(planned, 1)
	if len(rem) != 2 || rem[0].Chunk.Ordinal != 1 {
		t.Fatalf("remainingFrom(planned, 1) = %+v, want ordinals [1,2]", rem)
	}
}

func TestPlanChunksTracksPrevVoiceAcrossChunks(t *testing.T) {
	chunks := []types.Chunk{
		{Ordinal: 0, Text: `"Hello," she said.`},
		{Ordinal: 1, Text: "Narration continues here."},
	}
	opts := dialogue.Options{Enabled: true, NarratorVoice: "am_michael", CharacterMap: map[string]string{"She": "voice_b"}}
	planned := planChunks(chunks, opts)

	if planned[0].PrevVoiceID != opts.NarratorVoice {
		t.Errorf("first chunk PrevVoiceID = %q, want narrator voice", planned[0].PrevVoiceID)
	}
	if len(planned[1].Spans) == 0 {
		t.Fatalf("second chunk produced no spans")
	}
	firstSpans := planned[0].Spans
	if want := firstSpans[len(firstSpans)-1].VoiceID; planned[1].PrevVoiceID != want {
		t.Errorf("second chunk PrevVoiceID = %q, want %q (last span voice of the first chunk)", planned[1].PrevVoiceID, want)
	}
}
