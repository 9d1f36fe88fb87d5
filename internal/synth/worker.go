// Package synth implements the Synthesis Worker: it turns a chunk's
// Spans into a single normalized int16 PCM buffer by calling the TTS
// backend per span, resampling and padding as needed.
package synth

import (
	"context"
	"math"
	"time"

	"github.com/avast/retry-go/v4"

	"github.com/unalkalkan/narrator/internal/provider"
	"github.com/unalkalkan/narrator/pkg/types"
)

// Options configures the worker.
type Options struct {
	SampleRate  uint32
	Speed       float64
	SpanTimeout time.Duration // default 60s
}

func (o Options) withDefaults() Options {
	if o.SampleRate == 0 {
		o.SampleRate = 48000
	}
	if o.Speed <= 0 {
		o.Speed = 1.0
	}
	if o.SpanTimeout <= 0 {
		o.SpanTimeout = 60 * time.Second
	}
	return o
}

const (
	interSpanVoiceChangePad = 30 * time.Millisecond
	interChunkChapterPad    = 300 * time.Millisecond
)

// Worker synthesizes chunks against a backend.
type Worker struct {
	backend provider.TTSProvider
	opts    Options
}

func New(backend provider.TTSProvider, opts Options) *Worker {
	return &Worker{backend: backend, opts: opts.withDefaults()}
}

// SynthesizeChunk concatenates every span's audio into one int16 PCM
// buffer for the chunk. prevVoiceID is the voice of the last span of
// the previously synthesized chunk (empty for the first chunk), used
// to decide whether the first inter-span/inter-chunk pad applies.
// isChapterStart inserts the wider inter-chunk pad instead of the
// voice-change pad at the very start of the chunk.
func (w *Worker) SynthesizeChunk(ctx context.Context, spans []types.Span, prevVoiceID string, isChapterStart bool) ([]int16, error) {
	var pcm []int16
	lastVoice := prevVoiceID

	for i, span := range spans {
		samples, rate, err := w.synthesizeSpanWithRetry(ctx, span)
		if err != nil {
			return nil, err
		}

		if rate != w.opts.SampleRate {
			samples = resampleLinear(samples, rate, w.opts.SampleRate)
		}

		pad := interSpanPad(i, isChapterStart, lastVoice, span.VoiceID)
		if pad > 0 {
			pcm = append(pcm, silence(pad, w.opts.SampleRate)...)
		}

		pcm = append(pcm, normalizeToInt16(samples)...)
		lastVoice = span.VoiceID
	}

	return pcm, nil
}

// interSpanPad decides the silence gap before span index i. The first
// span of a chapter-start chunk gets the wide inter-chunk pad; any
// other voice change gets the narrow inter-span pad; same-voice
// continuation gets none.
func interSpanPad(i int, isChapterStart bool, lastVoice, voiceID string) time.Duration {
	if i == 0 {
		if isChapterStart {
			return interChunkChapterPad
		}
		if lastVoice != "" && lastVoice != voiceID {
			return interSpanVoiceChangePad
		}
		return 0
	}
	if lastVoice != voiceID {
		return interSpanVoiceChangePad
	}
	return 0
}

func silence(d time.Duration, rate uint32) []int16 {
	n := int(d.Seconds() * float64(rate))
	return make([]int16, n)
}

func normalizeToInt16(samples []float32) []int16 {
	out := make([]int16, len(samples))
	for i, s := range samples {
		v := float64(s)
		if v > 1 {
			v = 1
		}
		if v < -1 {
			v = -1
		}
		out[i] = int16(math.Round(v * 32767))
	}
	return out
}

// synthesizeSpanWithRetry calls the backend for one span, retrying up
// to 3 times with 100ms/400ms/1.6s backoff on transient errors per the
// Synthesis Worker's failure contract. Non-recoverable errors surface
// immediately as a FatalBackendError.
func (w *Worker) synthesizeSpanWithRetry(ctx context.Context, span types.Span) ([]float32, uint32, error) {
	spanCtx, cancel := context.WithTimeout(ctx, w.opts.SpanTimeout)
	defer cancel()

	var samples []float32
	var rate uint32

	err := retry.Do(
		func() error {
			resp, err := w.backend.Synthesize(spanCtx, provider.TTSRequest{
				Text:             span.Text,
				VoiceID:          span.VoiceID,
				Speed:            w.opts.Speed,
				VoiceDescription: span.VoiceDescription,
			})
			if err != nil {
				return classifyBackendError(err)
			}
			samples, rate = resp.Samples, resp.Rate
			return nil
		},
		retry.Context(spanCtx),
		retry.Attempts(uint(len(backoffs) + 1)),
		retry.DelayType(backoffSchedule),
		retry.RetryIf(func(err error) bool {
			pe, ok := err.(*types.PipelineError)
			return ok && pe.Retryable()
		}),
	)
	if err != nil {
		// A cancelled outer ctx (not the per-span timeout, which is
		// scoped to spanCtx alone) means the user asked to stop, not
		// that the backend failed — surface it as such regardless of
		// how the retry loop itself classified the error.
		if ctx.Err() != nil {
			return nil, 0, types.NewPipelineError(types.KindCancelled, "synthesize", ctx.Err())
		}
		if pe, ok := err.(*types.PipelineError); ok {
			return nil, 0, pe
		}
		return nil, 0, types.NewPipelineError(types.KindFatalBackend, "synthesize", err)
	}

	return samples, rate, nil
}

var backoffs = []time.Duration{100 * time.Millisecond, 400 * time.Millisecond, 1600 * time.Millisecond}

func backoffSchedule(n uint, _ error, _ *retry.Config) time.Duration {
	if int(n) < len(backoffs) {
		return backoffs[n]
	}
	return backoffs[len(backoffs)-1]
}

// classifyBackendError wraps a raw backend error as transient (by
// default, since most backend failures are network/throttle related)
// unless the backend already returned a typed PipelineError.
func classifyBackendError(err error) error {
	if pe, ok := err.(*types.PipelineError); ok {
		return pe
	}
	return types.NewPipelineError(types.KindTransientBackend, "backend", err)
}
