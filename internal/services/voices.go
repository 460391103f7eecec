package services

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/bobarin/wellvoice/internal/models"
)

type elevenLabsVoicesResponse struct {
	Voices []struct {
		VoiceID    string `json:"voice_id"`
		Name       string `json:"name"`
		PreviewURL string `json:"preview_url"`
		Category   string `json:"category"`
	} `json:"voices"`
}

// ListVoices returns the account's voice catalog (GET /v1/voices).
func (s *ElevenLabsService) ListVoices(ctx context.Context) ([]models.VoiceInfo, error) {
	if s.apiKey == "" {
		return nil, &SynthesisError{Provider: "elevenlabs", Kind: KindNotConfigured, Err: ErrNotConfigured}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+"/v1/voices", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create voices request: %w", err)
	}
	req.Header.Set("xi-api-key", s.apiKey)

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("voices request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("ElevenLabs voices returned status %d: %s", resp.StatusCode, truncate(string(body), 300))
	}

	var result elevenLabsVoicesResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to parse voices response: %w", err)
	}

	voices := make([]models.VoiceInfo, 0, len(result.Voices))
	for _, v := range result.Voices {
		voices = append(voices, models.VoiceInfo{
			VoiceID:    v.VoiceID,
			Name:       v.Name,
			PreviewURL: v.PreviewURL,
			Category:   v.Category,
		})
	}

	return voices, nil
}
