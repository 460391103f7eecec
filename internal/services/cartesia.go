package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/bobarin/wellvoice/internal/logger"
	"github.com/bobarin/wellvoice/internal/models"
)

const (
	// Default Cartesia API version
	CartesiaAPIVersion = "2024-06-10"

	cartesiaDefaultURL   = "https://api.cartesia.ai"
	cartesiaDefaultModel = "sonic-english"

	// Calm narrator voice
	CartesiaDefaultVoiceID = "a0e99841-438c-4a64-b679-ae501e7d6091"
)

// CartesiaService is the legacy provider, used only when no ElevenLabs key is set.
// Cartesia has no stability/similarity knobs, so those settings are ignored.
type CartesiaService struct {
	apiKey         string
	apiURL         string
	apiVersion     string
	defaultVoiceID string
	client         *http.Client
}

var _ Synthesizer = (*CartesiaService)(nil)

// NewCartesiaService creates a Cartesia service. Empty apiURL and voiceID select defaults.
func NewCartesiaService(apiKey, apiURL, voiceID string, timeout time.Duration) *CartesiaService {
	if apiURL == "" {
		apiURL = cartesiaDefaultURL
	}
	if voiceID == "" {
		voiceID = CartesiaDefaultVoiceID
	}
	return &CartesiaService{
		apiKey:         apiKey,
		apiURL:         apiURL,
		apiVersion:     CartesiaAPIVersion,
		defaultVoiceID: voiceID,
		client:         &http.Client{Timeout: ClampTimeout(timeout)},
	}
}

// DefaultVoiceID returns the voice used when a request names none.
func (s *CartesiaService) DefaultVoiceID() string {
	return s.defaultVoiceID
}

type cartesiaRequest struct {
	ModelID      string                 `json:"model_id"`
	Transcript   string                 `json:"transcript"`
	Voice        cartesiaVoiceSpecifier `json:"voice"`
	Language     string                 `json:"language,omitempty"`
	OutputFormat cartesiaOutputFormat   `json:"output_format"`
}

type cartesiaVoiceSpecifier struct {
	Mode string `json:"mode"`
	ID   string `json:"id"`
}

type cartesiaOutputFormat struct {
	Container  string `json:"container"`
	SampleRate int    `json:"sample_rate"`
	BitRate    int    `json:"bit_rate,omitempty"`
}

// Synthesize generates MP3 audio from text using Cartesia /tts/bytes.
func (s *CartesiaService) Synthesize(ctx context.Context, text, voiceID string, settings models.VoiceSettings) ([]byte, error) {
	if s.apiKey == "" {
		return nil, &SynthesisError{Provider: "cartesia", Kind: KindNotConfigured, Err: ErrNotConfigured}
	}
	if voiceID == "" {
		voiceID = s.defaultVoiceID
	}

	reqBody := cartesiaRequest{
		ModelID:    cartesiaDefaultModel,
		Transcript: text,
		Voice:      cartesiaVoiceSpecifier{Mode: "id", ID: voiceID},
		Language:   "en",
		OutputFormat: cartesiaOutputFormat{
			Container:  "mp3",
			SampleRate: 44100,
			BitRate:    128000,
		},
	}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/tts/bytes", s.apiURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+s.apiKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Cartesia-Version", s.apiVersion)

	logger.Infof("[Cartesia] Generating speech (voiceID=%s, textLen=%d)", voiceID, len(text))

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, &SynthesisError{Provider: "cartesia", Kind: classifyTransport(ctx, err), Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, &SynthesisError{
			Provider: "cartesia",
			Kind:     classifyStatus(resp.StatusCode, string(body)),
			Status:   resp.StatusCode,
			Err:      fmt.Errorf("%s", truncate(string(body), 300)),
		}
	}

	audioData, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &SynthesisError{Provider: "cartesia", Kind: classifyTransport(ctx, err), Err: err}
	}
	if len(audioData) == 0 {
		return nil, &SynthesisError{Provider: "cartesia", Kind: KindProvider, Status: resp.StatusCode, Err: fmt.Errorf("empty audio")}
	}

	return audioData, nil
}
