// Package tts renders narration audio through the ElevenLabs HTTP API.
package tts

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Voice is one entry of the remote voice catalog.
type Voice struct {
	ID   string `json:"voice_id"`
	Name string `json:"name"`
}

type Config struct {
	APIKey         string
	BaseURL        string
	ModelID        string
	DefaultVoiceID string
	Timeout        time.Duration
}

type Client struct {
	cfg        Config
	httpClient *http.Client
}

type Option func(*Client)

// WithHTTPClient substitutes the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

func NewClient(cfg Config, opts ...Option) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.elevenlabs.io"
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.ModelID == "" {
		cfg.ModelID = "eleven_multilingual_v2"
	}
	if cfg.DefaultVoiceID == "" {
		cfg.DefaultVoiceID = "21m00Tcm4TlvDq8ikWAM"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 120 * time.Second
	}

	c := &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Configured reports whether an API key is present. Without one the
// narration feature stays disabled.
func (c *Client) Configured() bool {
	return c.cfg.APIKey != ""
}

// DefaultVoiceID returns the voice used when no choice was made or the
// catalog is unavailable.
func (c *Client) DefaultVoiceID() string {
	return c.cfg.DefaultVoiceID
}

// Voices fetches the available voice catalog.
func (c *Client) Voices(ctx context.Context) ([]Voice, error) {
	if !c.Configured() {
		return nil, errors.New("elevenlabs voices: api key required")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.BaseURL+"/v1/voices", nil)
	if err != nil {
		return nil, fmt.Errorf("elevenlabs voices: %w", err)
	}
	req.Header.Set("xi-api-key", c.cfg.APIKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("elevenlabs voices: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("elevenlabs voices: %s", errorDetail(resp))
	}

	var result struct {
		Voices []Voice `json:"voices"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("elevenlabs voices: decode response: %w", err)
	}
	return result.Voices, nil
}

type synthesizeRequest struct {
	Text    string `json:"text"`
	ModelID string `json:"model_id"`
}

// Synthesize renders text with the chosen voice and returns the complete
// MP3. Audio arrives in chunks which are accumulated in order; a broken
// stream discards everything read so far and returns the error.
func (c *Client) Synthesize(ctx context.Context, text, voiceID string) ([]byte, error) {
	if !c.Configured() {
		return nil, errors.New("elevenlabs synthesize: api key required")
	}
	if strings.TrimSpace(text) == "" {
		return nil, errors.New("elevenlabs synthesize: empty text")
	}
	if voiceID == "" {
		voiceID = c.cfg.DefaultVoiceID
	}

	payload, err := json.Marshal(synthesizeRequest{Text: text, ModelID: c.cfg.ModelID})
	if err != nil {
		return nil, fmt.Errorf("elevenlabs synthesize: %w", err)
	}

	url := fmt.Sprintf("%s/v1/text-to-speech/%s", c.cfg.BaseURL, voiceID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("elevenlabs synthesize: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "audio/mpeg")
	req.Header.Set("xi-api-key", c.cfg.APIKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("elevenlabs synthesize: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("elevenlabs synthesize: %s", errorDetail(resp))
	}

	var audio []byte
	buf := make([]byte, 32*1024)
	for {
		n, err := resp.Body.Read(buf)
		if n > 0 {
			audio = append(audio, buf[:n]...)
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("elevenlabs synthesize: stream interrupted: %w", err)
		}
	}
	if len(audio) == 0 {
		return nil, errors.New("elevenlabs synthesize: empty audio stream")
	}
	return audio, nil
}

// errorDetail renders a non-200 response for error messages, preferring
// the JSON detail the API sends.
func errorDetail(resp *http.Response) string {
	body, err := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if err != nil || len(body) == 0 {
		return resp.Status
	}

	var detail struct {
		Detail struct {
			Status  string `json:"status"`
			Message string `json:"message"`
		} `json:"detail"`
	}
	if json.Unmarshal(body, &detail) == nil && detail.Detail.Message != "" {
		return fmt.Sprintf("%s: %s", resp.Status, detail.Detail.Message)
	}
	return fmt.Sprintf("%s: %s", resp.Status, strings.TrimSpace(string(body)))
}
