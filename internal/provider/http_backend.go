package provider

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
)

// HTTPBackend calls an OpenAI-compatible speech endpoint that returns
// a WAV payload, and decodes it into the raw float32 PCM samples the
// Synthesis Worker contract requires.
type HTTPBackend struct {
	name       string
	endpoint   string
	apiKey     string
	model      string
	httpClient *http.Client
	log        *zap.Logger
}

// HTTPBackendOptions configures the backend.
type HTTPBackendOptions struct {
	Name     string
	Endpoint string
	APIKey   string
	Model    string
	Timeout  time.Duration
}

func NewHTTPBackend(opts HTTPBackendOptions, log *zap.Logger) (*HTTPBackend, error) {
	if opts.Endpoint == "" {
		return nil, fmt.Errorf("endpoint is required for HTTP TTS backend")
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &HTTPBackend{
		name:       opts.Name,
		endpoint:   opts.Endpoint,
		apiKey:     opts.APIKey,
		model:      opts.Model,
		httpClient: &http.Client{Timeout: timeout},
		log:        log,
	}, nil
}

func (b *HTTPBackend) Name() string { return b.name }

func (b *HTTPBackend) Synthesize(ctx context.Context, req TTSRequest) (*TTSResponse, error) {
	apiReq := speechRequest{
		Model:        b.model,
		Input:        req.Text,
		Voice:        req.VoiceID,
		Speed:        req.Speed,
		Instructions: req.VoiceDescription,
		Format:       "wav",
	}

	body, err := b.call(ctx, apiReq)
	if err != nil {
		return nil, fmt.Errorf("tts backend call: %w", err)
	}

	samples, rate, err := decodeWAV(body)
	if err != nil {
		return nil, fmt.Errorf("decode tts response: %w", err)
	}

	return &TTSResponse{Samples: samples, Rate: rate}, nil
}

func (b *HTTPBackend) Close() error {
	b.httpClient.CloseIdleConnections()
	return nil
}

type speechRequest struct {
	Model        string  `json:"model"`
	Input        string  `json:"input"`
	Voice        string  `json:"voice"`
	Speed        float64 `json:"speed,omitempty"`
	Instructions string  `json:"instructions,omitempty"`
	Format       string  `json:"response_format"`
}

type speechErrorResponse struct {
	Error struct {
		Message string `json:"message"`
	} `json:"error"`
}

func (b *HTTPBackend) call(ctx context.Context, req speechRequest) ([]byte, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	endpoint := b.endpoint
	if !strings.HasSuffix(endpoint, "/") {
		endpoint += "/"
	}
	endpoint += "audio/speech"

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if b.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+b.apiKey)
	}

	start := time.Now()
	resp, err := b.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()
	b.log.Debug("tts backend call", zap.String("backend", b.name), zap.Int("status", resp.StatusCode), zap.Duration("elapsed", time.Since(start)))

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		var errResp speechErrorResponse
		if jsonErr := json.Unmarshal(body, &errResp); jsonErr == nil && errResp.Error.Message != "" {
			return nil, fmt.Errorf("backend error (status %d): %s", resp.StatusCode, errResp.Error.Message)
		}
		return nil, fmt.Errorf("backend returned status %d", resp.StatusCode)
	}

	return body, nil
}

// decodeWAV parses a canonical PCM WAV file (RIFF/WAVE, fmt and data
// sub-chunks) into float32 samples and the stream's sample rate. It
// assumes 16-bit signed little-endian PCM, mono or interleaved stereo
// (only the first channel is kept).
func decodeWAV(data []byte) ([]float32, uint32, error) {
	if len(data) < 44 || string(data[0:4]) != "RIFF" || string(data[8:12]) != "WAVE" {
		return nil, 0, fmt.Errorf("not a RIFF/WAVE file")
	}

	var sampleRate uint32
	var numChannels uint16
	var bitsPerSample uint16
	var pcm []byte

	offset := 12
	for offset+8 <= len(data) {
		chunkID := string(data[offset : offset+4])
		chunkSize := binary.LittleEndian.Uint32(data[offset+4 : offset+8])
		chunkStart := offset + 8
		chunkEnd := chunkStart + int(chunkSize)
		if chunkEnd > len(data) {
			chunkEnd = len(data)
		}

		switch chunkID {
		case "fmt ":
			if chunkEnd-chunkStart < 16 {
				return nil, 0, fmt.Errorf("fmt chunk too small")
			}
			numChannels = binary.LittleEndian.Uint16(data[chunkStart+2 : chunkStart+4])
			sampleRate = binary.LittleEndian.Uint32(data[chunkStart+4 : chunkStart+8])
			bitsPerSample = binary.LittleEndian.Uint16(data[chunkStart+14 : chunkStart+16])
		case "data":
			pcm = data[chunkStart:chunkEnd]
		}

		offset = chunkEnd
		if chunkSize%2 == 1 {
			offset++ // chunks are word-aligned
		}
	}

	if pcm == nil {
		return nil, 0, fmt.Errorf("no data chunk found")
	}
	if bitsPerSample != 16 {
		return nil, 0, fmt.Errorf("unsupported bits per sample: %d", bitsPerSample)
	}
	if numChannels == 0 {
		numChannels = 1
	}

	frameSize := 2 * int(numChannels)
	frameCount := len(pcm) / frameSize
	samples := make([]float32, frameCount)
	for i := 0; i < frameCount; i++ {
		raw := int16(binary.LittleEndian.Uint16(pcm[i*frameSize : i*frameSize+2]))
		samples[i] = float32(raw) / 32768.0
	}

	return samples, sampleRate, nil
}
