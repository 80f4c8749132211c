package tts

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestVoices(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/voices" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if got := r.Header.Get("xi-api-key"); got != "el-key" {
			t.Errorf("api key header = %q", got)
		}
		fmt.Fprint(w, `{"voices": [{"voice_id": "v1", "name": "Rachel"}, {"voice_id": "v2", "name": "Josh"}]}`)
	}))
	defer server.Close()

	client := NewClient(Config{APIKey: "el-key", BaseURL: server.URL})
	voices, err := client.Voices(context.Background())
	if err != nil {
		t.Fatalf("Voices: %v", err)
	}
	if len(voices) != 2 || voices[0].ID != "v1" || voices[0].Name != "Rachel" {
		t.Errorf("voices = %+v", voices)
	}
}

func TestVoicesRequiresKey(t *testing.T) {
	client := NewClient(Config{})
	if client.Configured() {
		t.Error("Configured() = true without key")
	}
	if _, err := client.Voices(context.Background()); err == nil {
		t.Error("Voices succeeded without key")
	}
}

func TestVoicesErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		fmt.Fprint(w, `{"detail": {"status": "invalid_api_key", "message": "Invalid API key."}}`)
	}))
	defer server.Close()

	client := NewClient(Config{APIKey: "bad", BaseURL: server.URL})
	_, err := client.Voices(context.Background())
	if err == nil || !strings.Contains(err.Error(), "Invalid API key") {
		t.Errorf("err = %v, want API detail surfaced", err)
	}
}

func TestSynthesizeAccumulatesChunks(t *testing.T) {
	chunks := [][]byte{[]byte("ID3 head"), []byte(" middle"), []byte(" tail")}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/text-to-speech/voice-7" {
			t.Errorf("path = %s", r.URL.Path)
		}
		var req synthesizeRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if req.Text != "Nice squats today." {
			t.Errorf("text = %q", req.Text)
		}
		if req.ModelID != "eleven_multilingual_v2" {
			t.Errorf("model_id = %q", req.ModelID)
		}

		w.Header().Set("Content-Type", "audio/mpeg")
		flusher := w.(http.Flusher)
		for _, chunk := range chunks {
			w.Write(chunk)
			flusher.Flush()
		}
	}))
	defer server.Close()

	client := NewClient(Config{APIKey: "k", BaseURL: server.URL})
	audio, err := client.Synthesize(context.Background(), "Nice squats today.", "voice-7")
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if string(audio) != "ID3 head middle tail" {
		t.Errorf("audio = %q, chunks must accumulate in order", audio)
	}
}

func TestSynthesizeUsesDefaultVoice(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/text-to-speech/fallback-voice" {
			t.Errorf("path = %s", r.URL.Path)
		}
		w.Write([]byte("mp3"))
	}))
	defer server.Close()

	client := NewClient(Config{APIKey: "k", BaseURL: server.URL, DefaultVoiceID: "fallback-voice"})
	if _, err := client.Synthesize(context.Background(), "hello", ""); err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
}

func TestSynthesizeErrors(t *testing.T) {
	t.Run("no key", func(t *testing.T) {
		client := NewClient(Config{})
		if _, err := client.Synthesize(context.Background(), "text", "v"); err == nil {
			t.Error("Synthesize succeeded without key")
		}
	})

	t.Run("empty text", func(t *testing.T) {
		client := NewClient(Config{APIKey: "k"})
		if _, err := client.Synthesize(context.Background(), "  ", "v"); err == nil {
			t.Error("Synthesize accepted empty text")
		}
	})

	t.Run("api error", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusTooManyRequests)
			fmt.Fprint(w, `{"detail": {"status": "quota_exceeded", "message": "Character quota exceeded."}}`)
		}))
		defer server.Close()

		client := NewClient(Config{APIKey: "k", BaseURL: server.URL})
		_, err := client.Synthesize(context.Background(), "text", "v")
		if err == nil || !strings.Contains(err.Error(), "quota") {
			t.Errorf("err = %v", err)
		}
	})

	t.Run("empty stream", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		}))
		defer server.Close()

		client := NewClient(Config{APIKey: "k", BaseURL: server.URL})
		if _, err := client.Synthesize(context.Background(), "text", "v"); err == nil {
			t.Error("Synthesize accepted an empty audio stream")
		}
	})
}

func TestDefaultConfig(t *testing.T) {
	client := NewClient(Config{APIKey: "k"})
	if client.cfg.BaseURL != "https://api.elevenlabs.io" {
		t.Errorf("BaseURL = %q", client.cfg.BaseURL)
	}
	if client.cfg.ModelID != "eleven_multilingual_v2" {
		t.Errorf("ModelID = %q", client.cfg.ModelID)
	}
	if client.DefaultVoiceID() != "21m00Tcm4TlvDq8ikWAM" {
		t.Errorf("DefaultVoiceID = %q", client.DefaultVoiceID())
	}
}
