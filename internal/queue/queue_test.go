package queue

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/bobarin/wellvoice/internal/models"
)

func TestNewPrewarmJob(t *testing.T) {
	settings := models.DefaultVoiceSettings("V1")
	job := NewPrewarmJob("owner-1", []string{"Good morning.", "Time to stretch."}, settings)

	if job.Type != JobTypePrewarm || job.OwnerID != "owner-1" || len(job.Phrases) != 2 {
		t.Errorf("unexpected job %+v", job)
	}
	if job.ID.String() == "00000000-0000-0000-0000-000000000000" {
		t.Error("expected a fresh job ID")
	}
}

func TestDecodeJob(t *testing.T) {
	data, err := json.Marshal(NewPrewarmJob("owner-1", []string{"Drink some water."}, models.DefaultVoiceSettings("V1")))
	if err != nil {
		t.Fatal(err)
	}

	job, err := decodeJob(data)
	if err != nil {
		t.Fatalf("decodeJob failed: %v", err)
	}
	if job.Settings.VoiceID != "V1" || job.Phrases[0] != "Drink some water." {
		t.Errorf("unexpected job %+v", job)
	}
}

func TestDecodeJobRejectsGarbage(t *testing.T) {
	if _, err := decodeJob([]byte("{")); err == nil {
		t.Error("expected error for truncated JSON")
	}
	if _, err := decodeJob([]byte(`{"owner_id":"x"}`)); err == nil || !strings.Contains(err.Error(), "no type") {
		t.Errorf("expected missing type error, got %v", err)
	}
}

func TestNewBadURL(t *testing.T) {
	if _, err := New("not-a-url"); err == nil {
		t.Error("expected parse error")
	}
}
