// Package orchestrator drives one narration run end to end: it wires
// the Normalizer, Chunker, Dialogue Router, Synthesis Worker, Stream
// Writer, Checkpoint Log and Finalizer together behind a small state
// machine, and owns the bounded worker pool used for synthesis.
package orchestrator

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/unalkalkan/narrator/internal/checkpoint"
	"github.com/unalkalkan/narrator/internal/chunker"
	"github.com/unalkalkan/narrator/internal/dialogue"
	"github.com/unalkalkan/narrator/internal/finalizer"
	"github.com/unalkalkan/narrator/internal/normalizer"
	"github.com/unalkalkan/narrator/internal/provider"
	"github.com/unalkalkan/narrator/internal/stream"
	"github.com/unalkalkan/narrator/internal/synth"
	"github.com/unalkalkan/narrator/pkg/types"
)

// State is one node of the run's state machine.
type State int

const (
	StateInit State = iota
	StateNormalizing
	StatePlanning
	StateResuming
	StateSynthesizing
	StateEncoding
	StateDone
	StateFailed
	StateCancelled
)

func (s State) String() string {
	switch s {
	case StateInit:
		return "init"
	case StateNormalizing:
		return "normalizing"
	case StatePlanning:
		return "planning"
	case StateResuming:
		return "resuming"
	case StateSynthesizing:
		return "synthesizing"
	case StateEncoding:
		return "encoding"
	case StateDone:
		return "done"
	case StateFailed:
		return "failed"
	case StateCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// RunInput describes one narration job. InputSize/InputModUnix/
// BackendModelID feed the SettingsFingerprint so that editing the
// source file or swapping the synthesis backend invalidates any
// checkpoint left over from a prior run against the old content.
type RunInput struct {
	Document       types.Document
	Config         types.Config
	SessionDir     string
	Destination    string
	InputSize      int64
	InputModUnix   int64
	BackendModelID string
}

// Orchestrator runs narration jobs against a TTS backend.
type Orchestrator struct {
	backend provider.TTSProvider
	log     *zap.Logger
}

func New(backend provider.TTSProvider, log *zap.Logger) *Orchestrator {
	return &Orchestrator{backend: backend, log: log}
}

// plannedChunk pairs a Chunk with its pre-routed dialogue spans and
// the voice ID the previous chunk ended on, computed up front during
// Planning so synthesis dispatch never has to wait on a neighboring
// chunk's completion to know what pad to insert.
type plannedChunk struct {
	Chunk       types.Chunk
	Spans       []types.Span
	PrevVoiceID string
}

// Run executes the full Init -> Normalizing -> Planning ->
// (Resuming) -> Synthesizing -> Encoding -> Done pipeline, with
// Failed/Cancelled as terminal alternatives to Done.
func (o *Orchestrator) Run(ctx context.Context, in RunInput) (types.Checkpoint, State, error) {
	state := StateInit
	o.log.Info("narration run starting", zap.String("session", in.SessionDir))

	state = StateNormalizing
	normalized := normalizer.Normalize(toNormalizerDoc(in.Document), normalizer.Options{})

	state = StatePlanning
	narrative := narrativeChapters(normalized)
	if len(narrative) == 0 {
		return types.Checkpoint{}, StateFailed, types.NewPipelineError(types.KindInput, "orchestrator.plan", fmt.Errorf("no narrative chapters survived normalization"))
	}

	chunkOpts := chunker.Options{CharTarget: in.Config.CharTarget, PhonemeHardLimit: in.Config.PhonemeHardLimit}
	chunks := chunker.Chunk(narrative, chunkOpts)
	if len(chunks) == 0 {
		return types.Checkpoint{}, StateFailed, types.NewPipelineError(types.KindInput, "orchestrator.plan", fmt.Errorf("normalized document produced no chunks"))
	}

	dialogueOpts := dialogue.Options{
		Enabled:               in.Config.CharacterVoices,
		NarratorVoice:         in.Config.NarratorVoice,
		CharacterMap:          voiceIDMap(in.Config.CharacterMap),
		CharacterDescriptions: voiceDescriptionMap(in.Config.CharacterMap),
	}
	planned := planChunks(chunks, dialogueOpts)

	fp := types.Fingerprint(fingerprintInputs(in))

	streamPath := filepath.Join(in.SessionDir, "stream.pcm")
	ckLog := checkpoint.Open(in.SessionDir)

	startAt := uint64(planned[0].Chunk.Ordinal)
	var resumeMarkers types.ChapterMarkerTable
	if existing, ok := ckLog.Load(); ok {
		if bytes.Equal(existing.Fingerprint, fp) {
			state = StateResuming
			startAt = existing.LastCompletedOrdinal + 1
			resumeMarkers = existing.ChapterMarkers
			o.log.Info("resuming prior run", zap.Uint64("from_ordinal", startAt))
		} else {
			o.log.Warn("checkpoint fingerprint mismatch, discarding and restarting from the beginning")
		}
	} else if ckLog.SlotsExist() {
		// A slot file exists but failed CRC/version validation: this is
		// corruption, not an absent checkpoint. Policy is still to
		// restart from chunk 0, but the distinction belongs in the log.
		corruptErr := types.NewPipelineError(types.KindCorruption, "orchestrator.checkpoint_load", fmt.Errorf("no checkpoint slot validated"))
		o.log.Warn("checkpoint corrupt, discarding and restarting from the beginning", zap.Error(corruptErr))
	}

	if state != StateResuming {
		// No usable checkpoint: drop any stream audio left by an earlier
		// run so synthesis restarts from an empty stream.
		if err := os.Remove(streamPath); err != nil && !os.IsNotExist(err) {
			return types.Checkpoint{}, StateFailed, types.NewPipelineError(types.KindStorage, "orchestrator.stream_reset", err)
		}
	}

	sw, err := stream.Open(streamPath, in.Config.SampleRate)
	if err != nil {
		return types.Checkpoint{}, StateFailed, types.NewPipelineError(types.KindStorage, "orchestrator.stream_open", err)
	}
	defer sw.Close()

	if state == StateResuming {
		if existing, ok := ckLog.Load(); ok {
			if err := sw.TruncateTo(existing.StreamByteOffset); err != nil {
				return types.Checkpoint{}, StateFailed, types.NewPipelineError(types.KindStorage, "orchestrator.resume_truncate", err)
			}
		}
	}

	remaining := remainingFrom(planned, startAt)
	if len(remaining) == 0 {
		// Everything was already synthesized; skip straight to encoding.
		state = StateEncoding
	} else {
		state = StateSynthesizing
		worker := synth.New(o.backend, synth.Options{
			SampleRate:  in.Config.SampleRate,
			Speed:       in.Config.Speed,
			SpanTimeout: time.Duration(in.Config.SpanTimeoutSeconds) * time.Second,
		})

		workers := in.Config.ParallelWorkers
		if workers < 1 {
			workers = 1
		}

		cp, runErr := o.synthesizeAll(ctx, remaining, worker, sw, ckLog, in.Config.CheckpointInterval, workers, fp, resumeMarkers)
		if runErr != nil {
			var pe *types.PipelineError
			if errors.As(runErr, &pe) && pe.Kind == types.KindCancelled {
				return cp, StateCancelled, runErr
			}
			return cp, StateFailed, runErr
		}
		resumeMarkers = cp.ChapterMarkers
	}

	state = StateEncoding
	finalCp, ok := ckLog.Load()
	if !ok {
		finalCp = types.Checkpoint{
			Fingerprint:          fp,
			LastCompletedOrdinal: uint64(planned[len(planned)-1].Chunk.Ordinal),
			StreamByteOffset:     sw.Size(),
			ChapterMarkers:       resumeMarkers,
			Version:              types.CheckpointFormatVersion,
		}
	}

	fin := finalizer.New(finalizer.Options{
		SampleRate:   in.Config.SampleRate,
		Format:       in.Config.OutputFormat,
		Title:        in.Document.Title,
		Author:       in.Document.Author,
		Destination:  in.Destination,
		WorkspaceDir: in.SessionDir,
	}, o.log)

	if err := sw.Close(); err != nil {
		return finalCp, StateFailed, types.NewPipelineError(types.KindStorage, "orchestrator.stream_close", err)
	}
	if err := fin.Finalize(ctx, streamPath, finalCp); err != nil {
		return finalCp, StateFailed, err
	}

	state = StateDone
	o.log.Info("narration run finished", zap.String("destination", in.Destination))
	return finalCp, state, nil
}

// chunkResult is what one worker goroutine reports back after
// synthesizing a single chunk's audio.
type chunkResult struct {
	ordinal     int
	pcm         []int16
	lastVoiceID string
	err         error
}

// synthesizeAll dispatches items to a bounded pool of workers,
// reassembles their results in ordinal order before handing audio to
// the Stream Writer (which is strictly single-owner), and checkpoints
// every checkpointInterval chunks or on a chapter start.
func (o *Orchestrator) synthesizeAll(ctx context.Context, items []plannedChunk, w *synth.Worker, sw *stream.Writer, ckLog *checkpoint.Log, checkpointInterval, workers int, fp []byte, priorMarkers types.ChapterMarkerTable) (types.Checkpoint, error) {
	if checkpointInterval <= 0 {
		checkpointInterval = 50
	}

	byOrdinal := make(map[int]plannedChunk, len(items))
	for _, it := range items {
		byOrdinal[it.Chunk.Ordinal] = it
	}

	dispatchCtx, cancelDispatch := context.WithCancel(ctx)
	defer cancelDispatch()

	results := make(chan chunkResult, 2*workers)
	sem := make(chan struct{}, workers)
	var wg sync.WaitGroup

	go func() {
		defer close(results)
		for _, item := range items {
			select {
			case <-dispatchCtx.Done():
				wg.Wait()
				return
			default:
			}
			wg.Add(1)
			sem <- struct{}{}
			go func(it plannedChunk) {
				defer wg.Done()
				defer func() { <-sem }()
				// The very first chunk of the whole output (ordinal 0)
				// has no preceding audio, so its chapter-start pad
				// would only add leading silence; a resumed run's
				// first synthesized chunk still gets one since the
				// stream already holds audio from before.
				chapterStartPad := it.Chunk.IsChapterStart && it.Chunk.Ordinal != 0
				pcm, err := w.SynthesizeChunk(dispatchCtx, it.Spans, it.PrevVoiceID, chapterStartPad)
				voice := it.PrevVoiceID
				if len(it.Spans) > 0 {
					voice = it.Spans[len(it.Spans)-1].VoiceID
				}
				results <- chunkResult{ordinal: it.Chunk.Ordinal, pcm: pcm, lastVoiceID: voice, err: err}
			}(item)
		}
		wg.Wait()
	}()

	pending := make(map[int]chunkResult)
	nextOrdinal := items[0].Chunk.Ordinal
	markers := append(types.ChapterMarkerTable(nil), priorMarkers...)
	sinceCheckpoint := 0
	lastCheckpoint := types.Checkpoint{Fingerprint: fp, ChapterMarkers: markers, Version: types.CheckpointFormatVersion}
	if len(priorMarkers) > 0 || nextOrdinal > 0 {
		lastCheckpoint.LastCompletedOrdinal = uint64(nextOrdinal - 1)
		lastCheckpoint.StreamByteOffset = sw.Size()
	}

	var runErr error
	userCancelled := false

	for res := range results {
		if res.err != nil {
			var pe *types.PipelineError
			if errors.As(res.err, &pe) && pe.Kind == types.KindCancelled {
				// Cooperative cancellation, not a backend failure:
				// record it separately so it is reported as Cancelled
				// rather than masked as (or masking) a fatal error.
				userCancelled = true
				cancelDispatch()
			} else if runErr == nil {
				runErr = fmt.Errorf("synthesize chunk %d: %w", res.ordinal, res.err)
				cancelDispatch()
			}
		}
		pending[res.ordinal] = res

		for runErr == nil {
			r, ok := pending[nextOrdinal]
			if !ok {
				break
			}
			delete(pending, nextOrdinal)

			offsetBeforeWrite := sw.Size()
			newSize, appendErr := sw.Append(r.pcm)
			if appendErr != nil {
				runErr = types.NewPipelineError(types.KindStorage, "orchestrator.stream_append", appendErr)
				cancelDispatch()
				break
			}

			it := byOrdinal[nextOrdinal]
			if it.Chunk.IsChapterStart {
				markers = append(markers, types.ChapterMarker{
					Ordinal: it.Chunk.ChapterOrdinal,
					Title:   it.Chunk.ChapterTitle,
					Offset:  offsetBeforeWrite,
				})
			}

			sinceCheckpoint++
			lastCheckpoint = types.Checkpoint{
				Fingerprint:          fp,
				LastCompletedOrdinal: uint64(nextOrdinal),
				StreamByteOffset:     newSize,
				ChapterMarkers:       append(types.ChapterMarkerTable(nil), markers...),
				Version:              types.CheckpointFormatVersion,
			}
			if sinceCheckpoint >= checkpointInterval || it.Chunk.IsChapterStart {
				if err := ckLog.Write(lastCheckpoint); err != nil {
					runErr = types.NewPipelineError(types.KindStorage, "orchestrator.checkpoint_write", err)
					cancelDispatch()
					break
				}
				sinceCheckpoint = 0
			}

			nextOrdinal++
		}

		if ctx.Err() != nil && runErr == nil {
			userCancelled = true
			cancelDispatch()
		}
	}

	// Unconditional checkpoint before returning, whether clean,
	// failed, or cancelled, so the next run resumes from the latest
	// durable prefix rather than re-synthesizing it. A fresh run that
	// completed no chunk has no prefix to record, so nothing is written.
	if nextOrdinal > 0 {
		if writeErr := ckLog.Write(lastCheckpoint); writeErr != nil && runErr == nil {
			runErr = types.NewPipelineError(types.KindStorage, "orchestrator.checkpoint_write", writeErr)
		}
	}

	if runErr != nil {
		return lastCheckpoint, runErr
	}
	if userCancelled {
		return lastCheckpoint, types.NewPipelineError(types.KindCancelled, "orchestrator.synthesize", ctx.Err())
	}
	return lastCheckpoint, nil
}

func remainingFrom(planned []plannedChunk, startAt uint64) []plannedChunk {
	for i, p := range planned {
		if uint64(p.Chunk.Ordinal) >= startAt {
			return planned[i:]
		}
	}
	return nil
}

func planChunks(chunks []types.Chunk, opts dialogue.Options) []plannedChunk {
	planned := make([]plannedChunk, len(chunks))
	prevVoice := opts.NarratorVoice
	for i, c := range chunks {
		spans := dialogue.Route(c.Text, opts)
		planned[i] = plannedChunk{Chunk: c, Spans: spans, PrevVoiceID: prevVoice}
		if len(spans) > 0 {
			prevVoice = spans[len(spans)-1].VoiceID
		}
	}
	return planned
}

func voiceIDMap(m map[string]types.Voice) map[string]string {
	out := make(map[string]string, len(m))
	for name, v := range m {
		out[name] = v.VoiceID
	}
	return out
}

func voiceDescriptionMap(m map[string]types.Voice) map[string]string {
	out := make(map[string]string, len(m))
	for name, v := range m {
		if v.Description != "" {
			out[name] = v.Description
		}
	}
	return out
}

func toNormalizerDoc(doc types.Document) normalizer.Document {
	chapters := make([]normalizer.Chapter, len(doc.Chapters))
	for i, ch := range doc.Chapters {
		chapters[i] = normalizer.Chapter{
			Ordinal:        ch.Ordinal,
			Title:          ch.Title,
			Paragraphs:     ch.Paragraphs,
			StructuralHint: ch.StructuralHint,
		}
	}
	return normalizer.Document{Chapters: chapters}
}

func narrativeChapters(doc normalizer.Document) []chunker.Chapter {
	var out []chunker.Chapter
	for _, ch := range doc.Chapters {
		if ch.NonNarrative {
			continue
		}
		out = append(out, chunker.Chapter{Ordinal: ch.Ordinal, Title: ch.Title, Paragraphs: ch.Paragraphs})
	}
	return out
}

func fingerprintInputs(in RunInput) types.FingerprintInputs {
	return types.FingerprintInputs{
		Input: types.InputIdentity{
			Path:    in.Config.Input.Path,
			Size:    in.InputSize,
			ModUnix: in.InputModUnix,
		},
		NormalizerOptions: normalizer.Options{}.Serialize(),
		CharTarget:        in.Config.CharTarget,
		PhonemeHardLimit:  in.Config.PhonemeHardLimit,
		NarratorVoice:     in.Config.NarratorVoice,
		Speed:             in.Config.Speed,
		SampleRate:        in.Config.SampleRate,
		CharacterMap:      voiceIDMap(in.Config.CharacterMap),
		BackendModelID:    in.BackendModelID,
	}
}
