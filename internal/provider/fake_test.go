package provider

import (
	"context"
	"testing"
)

func TestFakeTTSProviderProducesSamples(t *testing.T) {
	p := NewFakeTTSProvider(48000)
	resp, err := p.Synthesize(context.Background(), TTSRequest{Text: "hello world", VoiceID: "narrator", Speed: 1.0})
	if err != nil {
		t.Fatalf("Synthesize returned error: %v", err)
	}
	if resp.Rate != 48000 {
		t.Errorf("rate = %d, want 48000", resp.Rate)
	}
	if len(resp.Samples) == 0 {
		t.Error("expected non-empty samples")
	}
}

func TestFakeTTSProviderSpeedAffectsDuration(t *testing.T) {
	p := NewFakeTTSProvider(48000)
	slow, _ := p.Synthesize(context.Background(), TTSRequest{Text: "hello world", VoiceID: "a", Speed: 1.0})
	fast, _ := p.Synthesize(context.Background(), TTSRequest{Text: "hello world", VoiceID: "a", Speed: 2.0})
	if len(fast.Samples) >= len(slow.Samples) {
		t.Errorf("expected faster speed to produce fewer samples: fast=%d slow=%d", len(fast.Samples), len(slow.Samples))
	}
}
