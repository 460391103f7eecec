package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/bobarin/wellvoice/internal/logger"
	"github.com/bobarin/wellvoice/internal/models"
	"github.com/bobarin/wellvoice/internal/services"
	"github.com/bobarin/wellvoice/internal/voice"
)

const (
	HeaderCache    = "X-Cache"
	HeaderCacheKey = "X-Cache-Key"

	maxPrewarmPhrases = 50
	maxTextLength     = 5000
	maxBodyBytes      = 64 << 10

	kindDisabled = "disabled"
)

// Prewarmer enqueues cache pre-warm jobs.
type Prewarmer interface {
	EnqueuePrewarm(ctx context.Context, ownerID string, phrases []string, settings models.VoiceSettings) (uuid.UUID, error)
}

type Handler struct {
	pipeline     *voice.Pipeline
	settings     voice.SettingsStore  // nil = settings are never persisted
	catalog      services.VoiceCatalog // nil = provider has no catalog
	prewarm      Prewarmer             // nil = PREWARM_ENABLED=false
	defaultVoice string
	configured   bool
}

func NewHandler(
	pipeline *voice.Pipeline,
	settings voice.SettingsStore,
	catalog services.VoiceCatalog,
	prewarm Prewarmer,
	defaultVoiceID string,
	configured bool,
) *Handler {
	return &Handler{
		pipeline:     pipeline,
		settings:     settings,
		catalog:      catalog,
		prewarm:      prewarm,
		defaultVoice: defaultVoiceID,
		configured:   configured,
	}
}

// sessionSettings loads the owner's saved settings over the defaults. A load
// failure falls back to defaults rather than failing the request.
func (h *Handler) sessionSettings(ctx context.Context, ownerID string) (*voice.Manager, bool) {
	m := voice.NewManager(h.settings, ownerID, h.defaultVoice)
	found, err := m.Load(ctx)
	if err != nil {
		logger.Warnf("[API] Using default voice settings for %s: %v", ownerID, err)
	}
	return m, found
}

// Speak handles POST /v1/voice/speech
func (h *Handler) Speak(w http.ResponseWriter, r *http.Request) {
	var req models.SpeechRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if len(req.Text) > maxTextLength {
		respondError(w, http.StatusBadRequest, "Text is too long (max "+strconv.Itoa(maxTextLength)+" bytes)")
		return
	}

	ownerID := OwnerFromContext(r.Context())
	m, _ := h.sessionSettings(r.Context(), ownerID)
	settings := voice.ResolveSettings(m.Settings(), req)

	res, err := h.pipeline.Speak(r.Context(), ownerID, voice.Request{Text: req.Text, Settings: settings})
	if err != nil {
		respondSpeechError(w, r, err)
		return
	}

	cacheStatus := "MISS"
	if res.Cached {
		cacheStatus = "HIT"
	}

	w.Header().Set("Content-Type", "audio/mpeg")
	w.Header().Set("Content-Length", strconv.Itoa(len(res.Audio)))
	w.Header().Set(HeaderCache, cacheStatus)
	w.Header().Set(HeaderCacheKey, res.Key)
	w.WriteHeader(http.StatusOK)
	w.Write(res.Audio)
}

func respondSpeechError(w http.ResponseWriter, r *http.Request, err error) {
	var se *services.SynthesisError
	switch {
	case errors.Is(err, voice.ErrEmptyText):
		respondError(w, http.StatusBadRequest, "Text is required")
	case errors.Is(err, voice.ErrOutOfRange), errors.Is(err, voice.ErrInvalidVoice):
		respondError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, voice.ErrVoiceDisabled):
		respondJSON(w, http.StatusConflict, models.ErrorResponse{Error: "Voice is disabled in settings", Kind: kindDisabled})
	case errors.As(err, &se):
		status := http.StatusBadGateway
		switch se.Kind {
		case services.KindNotConfigured:
			status = http.StatusServiceUnavailable
		case services.KindTimeout:
			status = http.StatusGatewayTimeout
		}
		respondJSON(w, status, models.ErrorResponse{
			Error:     "Speech synthesis failed",
			Kind:      string(se.Kind),
			Retryable: se.Retryable(),
		})
	case errors.Is(err, context.DeadlineExceeded):
		respondJSON(w, http.StatusGatewayTimeout, models.ErrorResponse{
			Error: "Speech synthesis timed out", Kind: string(services.KindTimeout), Retryable: true,
		})
	case errors.Is(err, context.Canceled):
		// Client went away; nobody is listening.
		logger.Debugf("[API] Speech request cancelled by client (%s)", r.RemoteAddr)
	default:
		logger.Errorf("[API] Speech failed: %v", err)
		respondError(w, http.StatusInternalServerError, "Failed to generate speech")
	}
}

// GetSettings handles GET /v1/voice/settings
func (h *Handler) GetSettings(w http.ResponseWriter, r *http.Request) {
	m, found := h.sessionSettings(r.Context(), OwnerFromContext(r.Context()))
	respondJSON(w, http.StatusOK, models.VoiceSettingsResponse{VoiceSettings: m.Settings(), Saved: found})
}

// UpdateSettings handles PUT /v1/voice/settings. This is the explicit save.
func (h *Handler) UpdateSettings(w http.ResponseWriter, r *http.Request) {
	m, ok := h.persistentSession(w, r)
	if !ok {
		return
	}

	var req models.UpdateVoiceSettingsRequest
	if !decodeBody(w, r, &req) {
		return
	}

	if err := m.Update(req); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	h.save(w, r, m)
}

// ApplyPreset handles POST /v1/voice/settings/preset/{name}
func (h *Handler) ApplyPreset(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	m, ok := h.persistentSession(w, r)
	if !ok {
		return
	}

	if err := m.ApplyPreset(name); err != nil {
		respondError(w, http.StatusBadRequest, "Unknown preset. Available: "+strings.Join(voice.PresetNames(), ", "))
		return
	}

	h.save(w, r, m)
}

// ListPresets handles GET /v1/voice/presets
func (h *Handler) ListPresets(w http.ResponseWriter, r *http.Request) {
	type presetItem struct {
		Name            string  `json:"name"`
		Stability       float64 `json:"stability"`
		SimilarityBoost float64 `json:"similarity_boost"`
	}

	names := voice.PresetNames()
	items := make([]presetItem, 0, len(names))
	for _, name := range names {
		p, _ := voice.LookupPreset(name)
		items = append(items, presetItem{Name: name, Stability: p.Stability, SimilarityBoost: p.SimilarityBoost})
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{"presets": items})
}

// persistentSession loads settings for a request that will save them.
func (h *Handler) persistentSession(w http.ResponseWriter, r *http.Request) (*voice.Manager, bool) {
	ownerID := OwnerFromContext(r.Context())
	if ownerID == "" {
		respondError(w, http.StatusUnauthorized, "Sign in to save voice settings")
		return nil, false
	}
	if h.settings == nil {
		respondError(w, http.StatusServiceUnavailable, "Voice settings storage is not configured")
		return nil, false
	}

	m, _ := h.sessionSettings(r.Context(), ownerID)
	return m, true
}

func (h *Handler) save(w http.ResponseWriter, r *http.Request, m *voice.Manager) {
	if err := m.Save(r.Context()); err != nil {
		logger.Errorf("[API] Failed to save voice settings: %v", err)
		respondError(w, http.StatusInternalServerError, "Failed to save voice settings")
		return
	}
	respondJSON(w, http.StatusOK, models.VoiceSettingsResponse{VoiceSettings: m.Settings(), Saved: true})
}

// ListVoices handles GET /v1/voice/voices
func (h *Handler) ListVoices(w http.ResponseWriter, r *http.Request) {
	if h.catalog == nil {
		respondJSON(w, http.StatusServiceUnavailable, models.ErrorResponse{
			Error: "Voice catalog is not available", Kind: string(services.KindNotConfigured),
		})
		return
	}

	voices, err := h.catalog.ListVoices(r.Context())
	if err != nil {
		if errors.Is(err, services.ErrNotConfigured) {
			respondJSON(w, http.StatusServiceUnavailable, models.ErrorResponse{
				Error: "Voice catalog is not available", Kind: string(services.KindNotConfigured),
			})
			return
		}
		logger.Errorf("[API] Failed to list voices: %v", err)
		respondError(w, http.StatusBadGateway, "Failed to list voices")
		return
	}

	respondJSON(w, http.StatusOK, models.ListVoicesResponse{Voices: voices})
}

// Prewarm handles POST /v1/voice/prewarm
func (h *Handler) Prewarm(w http.ResponseWriter, r *http.Request) {
	ownerID := OwnerFromContext(r.Context())
	if ownerID == "" {
		respondError(w, http.StatusUnauthorized, "Pre-warm requires a signed-in user")
		return
	}
	if h.prewarm == nil {
		respondError(w, http.StatusServiceUnavailable, "Pre-warm is disabled")
		return
	}
	if !h.configured {
		respondJSON(w, http.StatusServiceUnavailable, models.ErrorResponse{
			Error: "Speech synthesis is not configured", Kind: string(services.KindNotConfigured),
		})
		return
	}

	var req models.PrewarmRequest
	if !decodeBody(w, r, &req) {
		return
	}

	phrases := make([]string, 0, len(req.Phrases))
	for _, p := range req.Phrases {
		if strings.TrimSpace(p) != "" {
			phrases = append(phrases, p)
		}
	}
	if len(phrases) == 0 {
		respondError(w, http.StatusBadRequest, "At least one phrase is required")
		return
	}
	if len(phrases) > maxPrewarmPhrases {
		respondError(w, http.StatusBadRequest, "Too many phrases (max "+strconv.Itoa(maxPrewarmPhrases)+")")
		return
	}

	m, _ := h.sessionSettings(r.Context(), ownerID)
	if !m.Settings().Enabled {
		respondJSON(w, http.StatusConflict, models.ErrorResponse{Error: "Voice is disabled in settings", Kind: kindDisabled})
		return
	}
	jobID, err := h.prewarm.EnqueuePrewarm(r.Context(), ownerID, phrases, m.Settings())
	if err != nil {
		logger.Errorf("[API] Failed to enqueue prewarm: %v", err)
		respondError(w, http.StatusInternalServerError, "Failed to enqueue job")
		return
	}

	respondJSON(w, http.StatusAccepted, models.PrewarmResponse{JobID: jobID.String(), Phrases: len(phrases)})
}

// decodeBody reads a JSON body of at most maxBodyBytes into v.
func decodeBody(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			respondError(w, http.StatusRequestEntityTooLarge, "Request body too large")
			return false
		}
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return false
	}
	return true
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

// Health check
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	mode := "voice"
	if !h.configured {
		mode = "text-only"
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"status": "ok",
		"mode":   mode,
		"cache":  h.pipeline.Stats(),
	})
}
