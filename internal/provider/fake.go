package provider

import (
	"context"
	"math"
)

// FakeTTSProvider is a deterministic in-process TTS backend used in
// tests and as a default when no real backend is configured. It
// generates a fixed-frequency tone whose duration is proportional to
// the input text length, rather than calling out to a model.
type FakeTTSProvider struct {
	rate uint32
}

// NewFakeTTSProvider creates a fake backend emitting samples at rate.
func NewFakeTTSProvider(rate uint32) *FakeTTSProvider {
	if rate == 0 {
		rate = 48000
	}
	return &FakeTTSProvider{rate: rate}
}

func (f *FakeTTSProvider) Name() string { return "fake" }

func (f *FakeTTSProvider) Synthesize(ctx context.Context, req TTSRequest) (*TTSResponse, error) {
	const msPerChar = 8
	durationMS := len(req.Text) * msPerChar
	if durationMS == 0 {
		durationMS = 1
	}
	speed := req.Speed
	if speed <= 0 {
		speed = 1.0
	}
	n := int(float64(f.rate) * (float64(durationMS) / 1000.0) / speed)
	samples := make([]float32, n)
	freq := voiceFrequency(req.VoiceID)
	for i := range samples {
		t := float64(i) / float64(f.rate)
		samples[i] = float32(0.2 * math.Sin(2*math.Pi*freq*t))
	}
	return &TTSResponse{Samples: samples, Rate: f.rate}, nil
}

func (f *FakeTTSProvider) Close() error { return nil }

// voiceFrequency derives a stable tone frequency from a voice id so
// different voices are at least distinguishable in test fixtures.
func voiceFrequency(voiceID string) float64 {
	h := 220.0
	for _, r := range voiceID {
		h += float64(r % 37)
	}
	return h
}
