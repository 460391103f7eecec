package voice

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"sync"

	"github.com/bobarin/wellvoice/internal/logger"
	"github.com/bobarin/wellvoice/internal/models"
)

var (
	// ErrOutOfRange is returned for stability or similarity outside [0, 1].
	ErrOutOfRange = errors.New("voice setting out of range")
	// ErrInvalidVoice is returned for a voice ID that is not a plain token.
	ErrInvalidVoice = errors.New("invalid voice id")
	// ErrUnknownPreset is returned by ApplyPreset for an unrecognised name.
	ErrUnknownPreset = errors.New("unknown voice preset")
	// ErrNotPersistent means the session has no owner or no store to save to.
	ErrNotPersistent = errors.New("voice settings cannot be saved for this session")
)

// SettingsStore persists voice settings per owner. Implemented by the
// Postgres db and the SQLite cache backend.
type SettingsStore interface {
	GetVoiceSettings(ctx context.Context, ownerID string) (*models.VoiceSettings, error)
	UpsertVoiceSettings(ctx context.Context, ownerID string, s models.VoiceSettings) error
}

// Preset is a named (stability, similarity) pair. Applying one only sets
// those two fields.
type Preset struct {
	Stability       float64
	SimilarityBoost float64
}

var presets = map[string]Preset{
	"standard":   {Stability: 0.50, SimilarityBoost: 0.75},
	"clear":      {Stability: 0.75, SimilarityBoost: 0.50},
	"expressive": {Stability: 0.30, SimilarityBoost: 0.85},
}

// PresetNames lists the available presets in sorted order.
func PresetNames() []string {
	names := make([]string, 0, len(presets))
	for name := range presets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// LookupPreset returns the named preset.
func LookupPreset(name string) (Preset, error) {
	p, ok := presets[name]
	if !ok {
		return Preset{}, fmt.Errorf("%w: %q", ErrUnknownPreset, name)
	}
	return p, nil
}

// Provider voice IDs are path segments; empty means the default voice.
var voiceIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]*$`)

// Validate checks the voice ID and the ranged fields of s.
func Validate(s models.VoiceSettings) error {
	if len(s.VoiceID) > 64 || !voiceIDPattern.MatchString(s.VoiceID) {
		return fmt.Errorf("%w: %q", ErrInvalidVoice, s.VoiceID)
	}
	if err := checkUnit("stability", s.Stability); err != nil {
		return err
	}
	return checkUnit("similarity_boost", s.SimilarityBoost)
}

func checkUnit(field string, v float64) error {
	// NaN fails both comparisons
	if !(v >= 0 && v <= 1) {
		return fmt.Errorf("%w: %s=%v must be within [0, 1]", ErrOutOfRange, field, v)
	}
	return nil
}

// Manager holds one session's voice settings. Mutations are validated and
// kept in memory; nothing is written until Save.
type Manager struct {
	mu           sync.Mutex
	store        SettingsStore
	ownerID      string
	defaultVoice string
	current      models.VoiceSettings
	dirty        bool
}

// NewManager starts from the default settings. store may be nil and ownerID
// empty, in which case Save returns ErrNotPersistent.
func NewManager(store SettingsStore, ownerID, defaultVoiceID string) *Manager {
	return &Manager{
		store:        store,
		ownerID:      ownerID,
		defaultVoice: defaultVoiceID,
		current:      models.DefaultVoiceSettings(defaultVoiceID),
	}
}

// Settings returns a copy of the current settings.
func (m *Manager) Settings() models.VoiceSettings {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

// Dirty reports whether there are unsaved changes.
func (m *Manager) Dirty() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.dirty
}

func (m *Manager) SetStability(v float64) error {
	if err := checkUnit("stability", v); err != nil {
		return err
	}
	m.mutate(func(s *models.VoiceSettings) { s.Stability = v })
	return nil
}

func (m *Manager) SetSimilarityBoost(v float64) error {
	if err := checkUnit("similarity_boost", v); err != nil {
		return err
	}
	m.mutate(func(s *models.VoiceSettings) { s.SimilarityBoost = v })
	return nil
}

// SetVoiceID selects a voice. Empty restores the default voice.
func (m *Manager) SetVoiceID(id string) {
	if id == "" {
		id = m.defaultVoice
	}
	m.mutate(func(s *models.VoiceSettings) { s.VoiceID = id })
}

func (m *Manager) SetEnabled(enabled bool) {
	m.mutate(func(s *models.VoiceSettings) { s.Enabled = enabled })
}

// ApplyPreset sets stability and similarity from the named preset.
func (m *Manager) ApplyPreset(name string) error {
	p, err := LookupPreset(name)
	if err != nil {
		return err
	}
	m.mutate(func(s *models.VoiceSettings) {
		s.Stability = p.Stability
		s.SimilarityBoost = p.SimilarityBoost
	})
	return nil
}

// Update applies a partial update. Either every field is applied or none is.
func (m *Manager) Update(req models.UpdateVoiceSettingsRequest) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	next := m.current
	if req.Enabled != nil {
		next.Enabled = *req.Enabled
	}
	if req.VoiceID != nil {
		next.VoiceID = *req.VoiceID
		if next.VoiceID == "" {
			next.VoiceID = m.defaultVoice
		}
	}
	if req.Stability != nil {
		next.Stability = *req.Stability
	}
	if req.SimilarityBoost != nil {
		next.SimilarityBoost = *req.SimilarityBoost
	}
	if err := Validate(next); err != nil {
		return err
	}

	if next != m.current {
		m.current = next
		m.dirty = true
	}
	return nil
}

// Load replaces the current settings with the owner's saved ones. It reports
// whether saved settings were found; otherwise the defaults stay in place.
func (m *Manager) Load(ctx context.Context) (bool, error) {
	if m.store == nil || m.ownerID == "" {
		return false, nil
	}

	saved, err := m.store.GetVoiceSettings(ctx, m.ownerID)
	if err != nil {
		return false, fmt.Errorf("failed to load voice settings: %w", err)
	}
	if saved == nil {
		return false, nil
	}

	s := *saved
	if s.VoiceID == "" {
		s.VoiceID = m.defaultVoice
	}
	if err := Validate(s); err != nil {
		logger.Warnf("[Voice] Ignoring invalid saved settings for %s: %v", m.ownerID, err)
		return false, nil
	}

	m.mu.Lock()
	m.current = s
	m.dirty = false
	m.mu.Unlock()
	return true, nil
}

// Save persists the current settings. This is the only write path.
func (m *Manager) Save(ctx context.Context) error {
	if m.store == nil || m.ownerID == "" {
		return ErrNotPersistent
	}

	m.mu.Lock()
	s := m.current
	m.mu.Unlock()

	if err := m.store.UpsertVoiceSettings(ctx, m.ownerID, s); err != nil {
		return fmt.Errorf("failed to save voice settings: %w", err)
	}

	m.mu.Lock()
	if m.current == s {
		m.dirty = false
	}
	m.mu.Unlock()

	logger.Infof("[Voice] Saved settings for %s (voice=%s, stability=%.2f, similarity=%.2f)",
		m.ownerID, s.VoiceID, s.Stability, s.SimilarityBoost)
	return nil
}

func (m *Manager) mutate(fn func(*models.VoiceSettings)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	before := m.current
	fn(&m.current)
	if m.current != before {
		m.dirty = true
	}
}
