package services

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/bobarin/wellvoice/internal/models"
)

// ---------------------------------------------------------------------------
// Synthesizer is the common interface for text-to-speech providers.
// Implementations make exactly one provider call per invocation. A retry is a
// new call by the user, never something done here.
// ---------------------------------------------------------------------------

// Synthesizer converts text to encoded audio bytes (MP3).
type Synthesizer interface {
	Synthesize(ctx context.Context, text, voiceID string, settings models.VoiceSettings) ([]byte, error)
}

// VoiceCatalog lists the voices a provider offers.
type VoiceCatalog interface {
	ListVoices(ctx context.Context) ([]models.VoiceInfo, error)
}

// Synthesis timeout bounds.
const (
	DefaultSynthesisTimeout = 20 * time.Second
	MinSynthesisTimeout     = 15 * time.Second
	MaxSynthesisTimeout     = 30 * time.Second
)

// ClampTimeout keeps d within [MinSynthesisTimeout, MaxSynthesisTimeout].
// Zero selects the default.
func ClampTimeout(d time.Duration) time.Duration {
	switch {
	case d == 0:
		return DefaultSynthesisTimeout
	case d < MinSynthesisTimeout:
		return MinSynthesisTimeout
	case d > MaxSynthesisTimeout:
		return MaxSynthesisTimeout
	}
	return d
}

// ErrNotConfigured means no synthesis provider credentials are available.
// Voice features degrade to text-only.
var ErrNotConfigured = errors.New("speech synthesis is not configured")

// ErrorKind classifies a synthesis failure.
type ErrorKind string

const (
	KindNotConfigured ErrorKind = "not_configured"
	KindQuota         ErrorKind = "quota"
	KindInvalidVoice  ErrorKind = "invalid_voice"
	KindNetwork       ErrorKind = "network"
	KindTimeout       ErrorKind = "timeout"
	KindProvider      ErrorKind = "provider"
)

// SynthesisError is returned by every Synthesizer failure.
type SynthesisError struct {
	Provider string
	Kind     ErrorKind
	Status   int // HTTP status, 0 when the request never completed
	Err      error
}

func (e *SynthesisError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("%s synthesis failed (%s, status %d): %v", e.Provider, e.Kind, e.Status, e.Err)
	}
	return fmt.Sprintf("%s synthesis failed (%s): %v", e.Provider, e.Kind, e.Err)
}

func (e *SynthesisError) Unwrap() error { return e.Err }

// Is lets errors.Is(err, ErrNotConfigured) match not-configured failures.
func (e *SynthesisError) Is(target error) bool {
	return target == ErrNotConfigured && e.Kind == KindNotConfigured
}

// Retryable reports whether the user can reasonably try the same request again.
func (e *SynthesisError) Retryable() bool {
	return e.Kind != KindNotConfigured && e.Kind != KindInvalidVoice
}

// NotConfigured is the Synthesizer used when no provider key is set.
type NotConfigured struct{}

var _ Synthesizer = NotConfigured{}

func (NotConfigured) Synthesize(ctx context.Context, text, voiceID string, settings models.VoiceSettings) ([]byte, error) {
	return nil, &SynthesisError{Provider: "none", Kind: KindNotConfigured, Err: ErrNotConfigured}
}

// classifyStatus maps a non-200 provider response to an error kind.
func classifyStatus(status int, body string) ErrorKind {
	switch status {
	case http.StatusUnauthorized, http.StatusPaymentRequired, http.StatusForbidden, http.StatusTooManyRequests:
		return KindQuota
	case http.StatusNotFound:
		return KindInvalidVoice
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		if strings.Contains(strings.ToLower(body), "voice") {
			return KindInvalidVoice
		}
	}
	return KindProvider
}

// classifyTransport maps a failed http.Client.Do to an error kind.
func classifyTransport(ctx context.Context, err error) ErrorKind {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return KindTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return KindTimeout
	}
	return KindNetwork
}

// truncate limits a string to maxLen characters for log and error output
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}

// ProviderConfig carries the credentials for every supported provider.
type ProviderConfig struct {
	ElevenLabsAPIKey  string
	ElevenLabsVoiceID string
	ElevenLabsModelID string
	ElevenLabsBaseURL string
	CartesiaAPIKey    string
	CartesiaAPIURL    string
	CartesiaVoiceID   string
	Timeout           time.Duration
}

// NewSynthesizer picks ElevenLabs when its key is set, then Cartesia, then
// NotConfigured. It also returns the provider's default voice ID.
func NewSynthesizer(cfg ProviderConfig) (Synthesizer, string) {
	switch {
	case cfg.ElevenLabsAPIKey != "":
		s := NewElevenLabsService(cfg.ElevenLabsAPIKey, ElevenLabsOptions{
			VoiceID: cfg.ElevenLabsVoiceID,
			ModelID: cfg.ElevenLabsModelID,
			BaseURL: cfg.ElevenLabsBaseURL,
			Timeout: cfg.Timeout,
		})
		return s, s.DefaultVoiceID()
	case cfg.CartesiaAPIKey != "":
		s := NewCartesiaService(cfg.CartesiaAPIKey, cfg.CartesiaAPIURL, cfg.CartesiaVoiceID, cfg.Timeout)
		return s, s.DefaultVoiceID()
	}
	return NotConfigured{}, ""
}
