package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/bobarin/wellvoice/internal/logger"
	"github.com/bobarin/wellvoice/internal/models"
)

// ---------------------------------------------------------------------------
// ElevenLabs Text-to-Speech Service
// Uses ElevenLabs REST API to convert text into speech audio.
// Model: eleven_flash_v2_5 (Flash v2.5: fast, 32 languages, ~75ms latency)
// ---------------------------------------------------------------------------

const (
	elevenLabsBaseURL      = "https://api.elevenlabs.io"
	elevenLabsDefaultModel = "eleven_flash_v2_5"
	elevenLabsDefaultVoice = "pNInz6obpgDQGcFmaJgB" // Default voice ID
	elevenLabsOutputFormat = "mp3_44100_128"        // High-quality MP3
)

// ElevenLabsService handles text-to-speech via ElevenLabs API.
type ElevenLabsService struct {
	apiKey  string
	voiceID string
	modelID string
	baseURL string
	client  *http.Client
}

// Ensure ElevenLabsService implements both interfaces at compile time.
var (
	_ Synthesizer  = (*ElevenLabsService)(nil)
	_ VoiceCatalog = (*ElevenLabsService)(nil)
)

// ElevenLabsOptions overrides service defaults. Zero values keep the default.
type ElevenLabsOptions struct {
	VoiceID string
	ModelID string
	BaseURL string
	Timeout time.Duration
}

// NewElevenLabsService creates an ElevenLabs service. The HTTP client timeout is
// the clamped synthesis timeout so no call can hang past it.
func NewElevenLabsService(apiKey string, opts ElevenLabsOptions) *ElevenLabsService {
	s := &ElevenLabsService{
		apiKey:  apiKey,
		voiceID: elevenLabsDefaultVoice,
		modelID: elevenLabsDefaultModel,
		baseURL: elevenLabsBaseURL,
		client:  &http.Client{Timeout: ClampTimeout(opts.Timeout)},
	}
	if opts.VoiceID != "" {
		s.voiceID = opts.VoiceID
	}
	if opts.ModelID != "" {
		s.modelID = opts.ModelID
	}
	if opts.BaseURL != "" {
		s.baseURL = opts.BaseURL
	}
	return s
}

// DefaultVoiceID returns the voice used when a request names none.
func (s *ElevenLabsService) DefaultVoiceID() string {
	return s.voiceID
}

// ---------------------------------------------------------------------------
// Request types
// ---------------------------------------------------------------------------

type elevenLabsRequest struct {
	Text          string                   `json:"text"`
	ModelID       string                   `json:"model_id"`
	VoiceSettings *elevenLabsVoiceSettings `json:"voice_settings,omitempty"`
}

type elevenLabsVoiceSettings struct {
	Stability       float64 `json:"stability"`
	SimilarityBoost float64 `json:"similarity_boost"`
}

// Synthesize converts text to speech using ElevenLabs.
// voiceID overrides the service-level default when non-empty.
func (s *ElevenLabsService) Synthesize(ctx context.Context, text, voiceID string, settings models.VoiceSettings) ([]byte, error) {
	if s.apiKey == "" {
		return nil, &SynthesisError{Provider: "elevenlabs", Kind: KindNotConfigured, Err: ErrNotConfigured}
	}

	effectiveVoice := s.voiceID
	if voiceID != "" {
		effectiveVoice = voiceID
	}

	reqBody := elevenLabsRequest{
		Text:    text,
		ModelID: s.modelID,
		VoiceSettings: &elevenLabsVoiceSettings{
			Stability:       settings.Stability,
			SimilarityBoost: settings.SimilarityBoost,
		},
	}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal ElevenLabs request: %w", err)
	}

	// POST /v1/text-to-speech/{voice_id}?output_format=mp3_44100_128
	endpoint := fmt.Sprintf("%s/v1/text-to-speech/%s?output_format=%s",
		s.baseURL, url.PathEscape(effectiveVoice), elevenLabsOutputFormat)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create ElevenLabs request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "audio/mpeg")
	req.Header.Set("xi-api-key", s.apiKey)

	logger.Infof("[ElevenLabs] Generating speech (voiceID=%s, model=%s, textLen=%d, stability=%.2f, similarity=%.2f)",
		effectiveVoice, s.modelID, len(text), settings.Stability, settings.SimilarityBoost)

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, &SynthesisError{Provider: "elevenlabs", Kind: classifyTransport(ctx, err), Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, &SynthesisError{
			Provider: "elevenlabs",
			Kind:     classifyStatus(resp.StatusCode, string(body)),
			Status:   resp.StatusCode,
			Err:      fmt.Errorf("%s", truncate(string(body), 300)),
		}
	}

	// The response body IS the audio file
	audioData, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &SynthesisError{Provider: "elevenlabs", Kind: classifyTransport(ctx, err), Err: err}
	}

	if len(audioData) == 0 {
		return nil, &SynthesisError{Provider: "elevenlabs", Kind: KindProvider, Status: resp.StatusCode, Err: fmt.Errorf("empty audio")}
	}

	logger.Infof("[ElevenLabs] Speech generated (%d bytes)", len(audioData))

	return audioData, nil
}
