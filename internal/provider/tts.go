// Package provider defines the narrow collaborator interface the
// pipeline is handed: a text-to-speech backend. The shape mirrors the original project's
// provider package but the TTS contract returns raw float32 PCM
// samples instead of an encoded audio blob, matching what the
// Synthesis Worker's resample/normalize step requires.
package provider

import "context"

// TTSProvider is the external neural TTS collaborator. Implementations
// must be safe for concurrent use when the worker pool size exceeds 1.
type TTSProvider interface {
	Name() string
	Synthesize(ctx context.Context, req TTSRequest) (*TTSResponse, error)
	Close() error
}

// TTSRequest is one span's synthesis call.
type TTSRequest struct {
	Text             string
	VoiceID          string
	Speed            float64
	VoiceDescription string
}

// TTSResponse carries raw PCM samples and the backend's native sample
// rate. The Synthesis Worker resamples when Rate does not match the
// pipeline's configured output rate.
type TTSResponse struct {
	Samples []float32
	Rate    uint32
}
