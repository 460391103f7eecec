package services

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/bobarin/wellvoice/internal/models"
)

func newElevenLabsTest(t *testing.T, h http.HandlerFunc) *ElevenLabsService {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return NewElevenLabsService("test-key", ElevenLabsOptions{VoiceID: "default-voice", BaseURL: srv.URL})
}

func TestElevenLabsSynthesizeSendsSettings(t *testing.T) {
	var gotPath, gotKey string
	var gotBody elevenLabsRequest

	svc := newElevenLabsTest(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotKey = r.Header.Get("xi-api-key")
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		w.Header().Set("Content-Type", "audio/mpeg")
		w.Write([]byte("ID3audio"))
	})

	audio, err := svc.Synthesize(context.Background(), "Breathe in slowly.", "V2", models.VoiceSettings{
		Stability: 0.3, SimilarityBoost: 0.85,
	})
	if err != nil {
		t.Fatalf("Synthesize failed: %v", err)
	}
	if string(audio) != "ID3audio" {
		t.Errorf("unexpected audio %q", audio)
	}
	if gotPath != "/v1/text-to-speech/V2" {
		t.Errorf("unexpected path %q", gotPath)
	}
	if gotKey != "test-key" {
		t.Errorf("missing api key header")
	}
	if gotBody.Text != "Breathe in slowly." || gotBody.VoiceSettings == nil ||
		gotBody.VoiceSettings.Stability != 0.3 || gotBody.VoiceSettings.SimilarityBoost != 0.85 {
		t.Errorf("unexpected request body %+v", gotBody)
	}
}

func TestElevenLabsDefaultVoice(t *testing.T) {
	var gotPath string
	svc := newElevenLabsTest(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		w.Write([]byte{0xff, 0xfb})
	})

	if _, err := svc.Synthesize(context.Background(), "hi", "", models.DefaultVoiceSettings("")); err != nil {
		t.Fatalf("Synthesize failed: %v", err)
	}
	if gotPath != "/v1/text-to-speech/default-voice" {
		t.Errorf("expected default voice in path, got %q", gotPath)
	}
}

func TestElevenLabsErrorKinds(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		body      string
		kind      ErrorKind
		retryable bool
	}{
		{"unauthorized", http.StatusUnauthorized, `{"detail":"invalid key"}`, KindQuota, true},
		{"quota", http.StatusTooManyRequests, `{"detail":"quota_exceeded"}`, KindQuota, true},
		{"payment", http.StatusPaymentRequired, ``, KindQuota, true},
		{"voice not found", http.StatusNotFound, `{"detail":"voice_not_found"}`, KindInvalidVoice, false},
		{"bad voice id", http.StatusBadRequest, `{"detail":"Invalid voice id"}`, KindInvalidVoice, false},
		{"bad request", http.StatusBadRequest, `{"detail":"text too long"}`, KindProvider, true},
		{"server error", http.StatusInternalServerError, `oops`, KindProvider, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := newElevenLabsTest(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			})

			_, err := svc.Synthesize(context.Background(), "hello", "V1", models.DefaultVoiceSettings(""))
			var se *SynthesisError
			if !errors.As(err, &se) {
				t.Fatalf("expected *SynthesisError, got %v", err)
			}
			if se.Kind != tt.kind {
				t.Errorf("kind = %s, want %s", se.Kind, tt.kind)
			}
			if se.Status != tt.status {
				t.Errorf("status = %d, want %d", se.Status, tt.status)
			}
			if se.Retryable() != tt.retryable {
				t.Errorf("retryable = %v, want %v", se.Retryable(), tt.retryable)
			}
		})
	}
}

func TestElevenLabsSingleAttempt(t *testing.T) {
	calls := 0
	svc := newElevenLabsTest(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusServiceUnavailable)
	})

	if _, err := svc.Synthesize(context.Background(), "hello", "V1", models.DefaultVoiceSettings("")); err == nil {
		t.Fatal("expected error")
	}
	if calls != 1 {
		t.Errorf("expected exactly one attempt, got %d", calls)
	}
}

func TestElevenLabsEmptyAudio(t *testing.T) {
	svc := newElevenLabsTest(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	_, err := svc.Synthesize(context.Background(), "hello", "V1", models.DefaultVoiceSettings(""))
	var se *SynthesisError
	if !errors.As(err, &se) || se.Kind != KindProvider {
		t.Fatalf("expected provider error, got %v", err)
	}
}

func TestElevenLabsTimeout(t *testing.T) {
	release := make(chan struct{})
	svc := newElevenLabsTest(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	})
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := svc.Synthesize(ctx, "hello", "V1", models.DefaultVoiceSettings(""))
	var se *SynthesisError
	if !errors.As(err, &se) || se.Kind != KindTimeout {
		t.Fatalf("expected timeout error, got %v", err)
	}
}

func TestElevenLabsNetworkError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	svc := NewElevenLabsService("test-key", ElevenLabsOptions{BaseURL: url})
	_, err := svc.Synthesize(context.Background(), "hello", "V1", models.DefaultVoiceSettings(""))
	var se *SynthesisError
	if !errors.As(err, &se) || se.Kind != KindNetwork {
		t.Fatalf("expected network error, got %v", err)
	}
}

func TestElevenLabsNotConfigured(t *testing.T) {
	svc := NewElevenLabsService("", ElevenLabsOptions{})
	_, err := svc.Synthesize(context.Background(), "hello", "", models.DefaultVoiceSettings(""))
	if !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("expected ErrNotConfigured, got %v", err)
	}
}

func TestListVoices(t *testing.T) {
	svc := newElevenLabsTest(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/voices" {
			http.NotFound(w, r)
			return
		}
		w.Write([]byte(`{"voices":[{"voice_id":"V1","name":"Calm","category":"premade","preview_url":"https://x/p.mp3"},{"voice_id":"V2","name":"Warm"}]}`))
	})

	voices, err := svc.ListVoices(context.Background())
	if err != nil {
		t.Fatalf("ListVoices failed: %v", err)
	}
	if len(voices) != 2 || voices[0].VoiceID != "V1" || voices[0].Name != "Calm" || voices[1].Name != "Warm" {
		t.Errorf("unexpected voices %+v", voices)
	}
}

func TestListVoicesError(t *testing.T) {
	svc := newElevenLabsTest(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})

	_, err := svc.ListVoices(context.Background())
	if err == nil || !strings.Contains(err.Error(), "401") {
		t.Fatalf("expected status error, got %v", err)
	}
}

func TestElevenLabsVoiceIDStaysInPathSegment(t *testing.T) {
	var escapedPath, format, extra string
	svc := newElevenLabsTest(t, func(w http.ResponseWriter, r *http.Request) {
		escapedPath = r.URL.EscapedPath()
		format = r.URL.Query().Get("output_format")
		extra = r.URL.Query().Get("x")
		w.Write([]byte("ID3audio"))
	})

	if _, err := svc.Synthesize(context.Background(), "hi", "../../v1/voices/add?x=", models.VoiceSettings{}); err != nil {
		t.Fatalf("Synthesize failed: %v", err)
	}
	if !strings.HasPrefix(escapedPath, "/v1/text-to-speech/") || strings.Count(escapedPath, "/") != 3 {
		t.Errorf("voice id escaped its path segment: %q", escapedPath)
	}
	if format != elevenLabsOutputFormat || extra != "" {
		t.Errorf("query was altered: output_format=%q x=%q", format, extra)
	}
}
