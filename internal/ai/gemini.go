// Package ai talks to the Gemini file and generation APIs over plain
// HTTP: upload a video, poll it until the service has processed it, then
// ask for content grounded on it.
package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Remote file lifecycle states. Anything else non-empty is treated as
// still in progress and polled again.
const (
	FileStateProcessing = "PROCESSING"
	FileStateActive     = "ACTIVE"
	FileStateFailed     = "FAILED"
)

// File is the service-side handle for an uploaded video.
type File struct {
	Name     string `json:"name"`
	URI      string `json:"uri"`
	MIMEType string `json:"mimeType"`
	State    string `json:"state"`
}

type Config struct {
	APIKey  string
	BaseURL string
	Model   string
	// PollInterval is the delay between file state checks.
	PollInterval time.Duration
	// ProcessingWarn is how long processing may run before the wait
	// loop surfaces a slow-processing notice.
	ProcessingWarn time.Duration
	Timeout        time.Duration
}

type Client struct {
	cfg        Config
	httpClient *http.Client
	sleeper    func(time.Duration)
}

type Option func(*Client)

// WithHTTPClient substitutes the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithSleeper replaces the poll delay, letting tests skip real waiting.
func WithSleeper(fn func(time.Duration)) Option {
	return func(c *Client) { c.sleeper = fn }
}

func NewClient(cfg Config, opts ...Option) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://generativelanguage.googleapis.com"
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.Model == "" {
		cfg.Model = "gemini-2.0-flash-exp"
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = time.Second
	}
	if cfg.ProcessingWarn <= 0 {
		cfg.ProcessingWarn = 60 * time.Second
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

// UploadVideo streams the file at path to the service and returns its
// remote handle, usually still in the PROCESSING state.
func (c *Client) UploadVideo(ctx context.Context, path, mimeType string) (*File, error) {
	video, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("gemini upload: %w", err)
	}
	defer video.Close()

	meta, err := json.Marshal(map[string]any{
		"file": map[string]any{"displayName": filepath.Base(path)},
	})
	if err != nil {
		return nil, fmt.Errorf("gemini upload: %w", err)
	}

	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)
	go func() {
		pw.CloseWithError(writeRelatedBody(mw, meta, mimeType, video))
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/upload/v1beta/files", pr)
	if err != nil {
		return nil, fmt.Errorf("gemini upload: %w", err)
	}
	req.Header.Set("Content-Type", "multipart/related; boundary="+mw.Boundary())
	req.Header.Set("X-Goog-Upload-Protocol", "multipart")
	req.Header.Set("x-goog-api-key", c.cfg.APIKey)

	var result struct {
		File File `json:"file"`
	}
	if err := c.do(req, &result); err != nil {
		return nil, fmt.Errorf("gemini upload: %w", err)
	}
	if result.File.Name == "" {
		return nil, errors.New("gemini upload: response carried no file handle")
	}
	return &result.File, nil
}

// writeRelatedBody emits the two parts of a multipart/related upload:
// JSON metadata first, then the raw media.
func writeRelatedBody(mw *multipart.Writer, meta []byte, mimeType string, video io.Reader) error {
	metaPart, err := mw.CreatePart(textproto.MIMEHeader{"Content-Type": {"application/json; charset=UTF-8"}})
	if err != nil {
		return err
	}
	if _, err := metaPart.Write(meta); err != nil {
		return err
	}

	videoPart, err := mw.CreatePart(textproto.MIMEHeader{"Content-Type": {mimeType}})
	if err != nil {
		return err
	}
	if _, err := io.Copy(videoPart, video); err != nil {
		return err
	}
	return mw.Close()
}

// GetFile fetches the current state of an uploaded file by its handle
// name (for example "files/abc123").
func (c *Client) GetFile(ctx context.Context, name string) (*File, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.BaseURL+"/v1beta/"+name, nil)
	if err != nil {
		return nil, fmt.Errorf("gemini get file: %w", err)
	}
	req.Header.Set("x-goog-api-key", c.cfg.APIKey)

	var f File
	if err := c.do(req, &f); err != nil {
		return nil, fmt.Errorf("gemini get file: %w", err)
	}
	return &f, nil
}

// WaitForFileActive polls until the uploaded file is ready for
// inference. When processing runs past the configured threshold, warn is
// called once with the elapsed time. A FAILED file is a hard error.
func (c *Client) WaitForFileActive(ctx context.Context, file *File, warn func(elapsed time.Duration)) (*File, error) {
	if file == nil {
		return nil, errors.New("gemini wait: no file")
	}

	f := file
	start := time.Now()
	warned := false
	for {
		switch f.State {
		case FileStateActive:
			return f, nil
		case FileStateFailed:
			return nil, fmt.Errorf("gemini wait: processing failed for %s", f.Name)
		}

		if !warned && warn != nil && time.Since(start) > c.cfg.ProcessingWarn {
			warn(time.Since(start))
			warned = true
		}
		if err := c.sleep(ctx, c.cfg.PollInterval); err != nil {
			return nil, fmt.Errorf("gemini wait: %w", err)
		}

		next, err := c.GetFile(ctx, f.Name)
		if err != nil {
			return nil, fmt.Errorf("gemini wait: %w", err)
		}
		f = next
	}
}

type generatePart struct {
	Text     string            `json:"text,omitempty"`
	FileData *generateFileData `json:"fileData,omitempty"`
}

type generateFileData struct {
	FileURI  string `json:"fileUri"`
	MIMEType string `json:"mimeType"`
}

type generateContent struct {
	Parts []generatePart `json:"parts"`
}

type generateRequest struct {
	Contents []generateContent `json:"contents"`
}

type generateResponse struct {
	Candidates []struct {
		Content struct {
			Parts []struct {
				Text string `json:"text"`
			} `json:"parts"`
		} `json:"content"`
		FinishReason string `json:"finishReason"`
	} `json:"candidates"`
}

// GenerateContent sends the prompt, grounded on file when non-nil, and
// returns the model's text.
func (c *Client) GenerateContent(ctx context.Context, prompt string, file *File) (string, error) {
	var parts []generatePart
	if file != nil {
		parts = append(parts, generatePart{
			FileData: &generateFileData{FileURI: file.URI, MIMEType: file.MIMEType},
		})
	}
	parts = append(parts, generatePart{Text: prompt})

	reqBody := generateRequest{Contents: []generateContent{{Parts: parts}}}
	payload, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("gemini generate: %w", err)
	}

	url := fmt.Sprintf("%s/v1beta/models/%s:generateContent", c.cfg.BaseURL, c.cfg.Model)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("gemini generate: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-goog-api-key", c.cfg.APIKey)

	var result generateResponse
	if err := c.do(req, &result); err != nil {
		return "", fmt.Errorf("gemini generate: %w", err)
	}
	if len(result.Candidates) == 0 {
		return "", errors.New("gemini generate: no candidates in response")
	}

	var sb strings.Builder
	for _, p := range result.Candidates[0].Content.Parts {
		sb.WriteString(p.Text)
	}
	text := strings.TrimSpace(sb.String())
	if text == "" {
		return "", errors.New("gemini generate: empty response")
	}
	return text, nil
}

// HealthCheck issues a minimal text-only generation to verify the key,
// model, and connectivity in one round trip.
func (c *Client) HealthCheck(ctx context.Context) error {
	_, err := c.GenerateContent(ctx, "Reply with the single word OK.", nil)
	return err
}

type apiErrorEnvelope struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error"`
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var envelope apiErrorEnvelope
		if json.Unmarshal(body, &envelope) == nil && envelope.Error.Message != "" {
			return fmt.Errorf("api error %d: %s", resp.StatusCode, envelope.Error.Message)
		}
		return fmt.Errorf("unexpected status %s: %s", resp.Status, truncateBody(body))
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func (c *Client) sleep(ctx context.Context, d time.Duration) error {
	if c.sleeper != nil {
		c.sleeper(d)
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func truncateBody(body []byte) string {
	const max = 300
	s := strings.TrimSpace(string(body))
	if len(s) > max {
		return s[:max] + "..."
	}
	return s
}

// VideoMIMEType maps an upload extension to the content type sent to
// the service.
func VideoMIMEType(ext string) string {
	switch strings.ToLower(strings.TrimPrefix(ext, ".")) {
	case "mov":
		return "video/quicktime"
	case "avi":
		return "video/x-msvideo"
	default:
		return "video/mp4"
	}
}
