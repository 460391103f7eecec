package models

import (
	"time"
)

// Defaults applied when a request leaves voice parameters unset.
const (
	DefaultStability       = 0.5
	DefaultSimilarityBoost = 0.75
	DefaultCacheTTL        = 30 * 24 * time.Hour
)

// Enums
type PlaybackStatus string

const (
	PlaybackStatusIdle    PlaybackStatus = "idle"
	PlaybackStatusLoading PlaybackStatus = "loading"
	PlaybackStatusPlaying PlaybackStatus = "playing"
)

// Models

// VoiceSettings is the session's synthesis configuration. It is persisted only
// when the user explicitly saves.
type VoiceSettings struct {
	Enabled         bool    `json:"enabled"`
	VoiceID         string  `json:"voice_id"`
	Stability       float64 `json:"stability"`        // 0..1
	SimilarityBoost float64 `json:"similarity_boost"` // 0..1
}

// DefaultVoiceSettings returns the settings a new session starts with.
func DefaultVoiceSettings(voiceID string) VoiceSettings {
	return VoiceSettings{
		Enabled:         true,
		VoiceID:         voiceID,
		Stability:       DefaultStability,
		SimilarityBoost: DefaultSimilarityBoost,
	}
}

// CacheEntry is one cached synthesis result. Payload holds the text-encoded
// audio bytes. Entries are replaced whole, never patched.
type CacheEntry struct {
	OwnerID   string    `json:"owner_id"`
	Key       string    `json:"cache_key"`
	Payload   string    `json:"payload"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Expired reports whether the entry is logically deleted at now.
func (e *CacheEntry) Expired(now time.Time) bool {
	return now.After(e.ExpiresAt)
}

// PlaybackSession describes the client's single audio stream.
type PlaybackSession struct {
	Handle     string         `json:"handle,omitempty"`
	Status     PlaybackStatus `json:"status"`
	SourceKey  string         `json:"source_key,omitempty"`
	Generation uint64         `json:"generation"`
}

// VoiceInfo is a voice catalog entry from the synthesis provider.
type VoiceInfo struct {
	VoiceID    string `json:"voice_id"`
	Name       string `json:"name"`
	PreviewURL string `json:"preview_url,omitempty"`
	Category   string `json:"category,omitempty"`
}

// DTOs for API requests and responses

type SpeechRequest struct {
	Text            string   `json:"text"`
	VoiceID         string   `json:"voice_id,omitempty"`         // Default: saved settings or ELEVENLABS_VOICE_ID
	Stability       *float64 `json:"stability,omitempty"`        // Default: 0.5
	SimilarityBoost *float64 `json:"similarity_boost,omitempty"` // Default: 0.75
}

type UpdateVoiceSettingsRequest struct {
	Enabled         *bool    `json:"enabled,omitempty"`
	VoiceID         *string  `json:"voice_id,omitempty"`
	Stability       *float64 `json:"stability,omitempty"`
	SimilarityBoost *float64 `json:"similarity_boost,omitempty"`
}

type VoiceSettingsResponse struct {
	VoiceSettings
	Saved bool `json:"saved"` // false when defaults were returned
}

type ListVoicesResponse struct {
	Voices []VoiceInfo `json:"voices"`
}

type PrewarmRequest struct {
	Phrases []string `json:"phrases"`
}

type PrewarmResponse struct {
	JobID   string `json:"job_id"`
	Phrases int    `json:"phrases"`
}

type ErrorResponse struct {
	Error     string `json:"error"`
	Kind      string `json:"kind,omitempty"`
	Retryable bool   `json:"retryable,omitempty"`
}
