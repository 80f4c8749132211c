package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/hiapplyco/cfvideoanalysis/internal/ai"
	"github.com/hiapplyco/cfvideoanalysis/internal/coach"
	"github.com/hiapplyco/cfvideoanalysis/internal/database"
	"github.com/hiapplyco/cfvideoanalysis/internal/logging"
	"github.com/hiapplyco/cfvideoanalysis/internal/session"
	"github.com/hiapplyco/cfvideoanalysis/internal/storage"
	"github.com/hiapplyco/cfvideoanalysis/internal/tts"
)

const testAnalysis = "## SKILL LEVEL & MOVEMENT EFFICIENCY\nIntermediate: solid squat mechanics."

type stubInference struct {
	mu          sync.Mutex
	uploads     int
	generates   int
	uploadErr   error
	waitErr     error
	analysisErr error
	scriptErr   error
	analysis    string
	script      string
}

func (s *stubInference) UploadVideo(ctx context.Context, path, mimeType string) (*ai.File, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.uploads++
	if s.uploadErr != nil {
		return nil, s.uploadErr
	}
	return &ai.File{Name: "files/test", URI: "https://files/test", MIMEType: mimeType, State: ai.FileStateActive}, nil
}

func (s *stubInference) WaitForFileActive(ctx context.Context, file *ai.File, warn func(elapsed time.Duration)) (*ai.File, error) {
	if s.waitErr != nil {
		return nil, s.waitErr
	}
	return file, nil
}

func (s *stubInference) GenerateContent(ctx context.Context, prompt string, file *ai.File) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.generates++
	if file == nil {
		if s.scriptErr != nil {
			return "", s.scriptErr
		}
		if s.script != "" {
			return s.script, nil
		}
		return "Alright athlete, let's talk about that squat.", nil
	}
	if s.analysisErr != nil {
		return "", s.analysisErr
	}
	if s.analysis != "" {
		return s.analysis, nil
	}
	return testAnalysis, nil
}

func (s *stubInference) callCounts() (uploads, generates int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.uploads, s.generates
}

type stubSpeech struct {
	mu         sync.Mutex
	configured bool
	voices     []tts.Voice
	voicesErr  error
	audio      []byte
	synthErr   error
	synthCalls int
	lastVoice  string
}

func (s *stubSpeech) Configured() bool       { return s.configured }
func (s *stubSpeech) DefaultVoiceID() string { return "21m00Tcm4TlvDq8ikWAM" }

func (s *stubSpeech) Voices(ctx context.Context) ([]tts.Voice, error) {
	if s.voicesErr != nil {
		return nil, s.voicesErr
	}
	return s.voices, nil
}

func (s *stubSpeech) Synthesize(ctx context.Context, text, voiceID string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.synthCalls++
	s.lastVoice = voiceID
	if s.synthErr != nil {
		return nil, s.synthErr
	}
	if s.audio != nil {
		return s.audio, nil
	}
	return []byte("mp3-bytes"), nil
}

func (s *stubSpeech) lastSynthVoice() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastVoice
}

func newTestApp(t *testing.T, inference coach.InferenceClient, speech coach.SpeechClient) (*App, string) {
	t.Helper()

	db, err := database.NewDB(database.Config{
		DSN: fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.New().String()),
	})
	if err != nil {
		t.Fatalf("NewDB: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	uploadDir := t.TempDir()
	store, err := storage.NewLocalStorage(uploadDir)
	if err != nil {
		t.Fatalf("NewLocalStorage: %v", err)
	}
	temp, err := storage.NewTempStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewTempStore: %v", err)
	}

	if inference == nil {
		inference = &stubInference{}
	}
	if speech == nil {
		speech = &stubSpeech{configured: true, voices: []tts.Voice{{ID: "v1", Name: "Rachel"}}}
	}

	persona, err := coach.ResolvePersona("crossfit", "", "")
	if err != nil {
		t.Fatalf("ResolvePersona: %v", err)
	}

	logger := logging.Discard()
	manager := session.NewManager(database.NewSessionRepo(db), store, time.Hour, logger)

	app := &App{
		Sessions:      manager,
		Storage:       store,
		Analyzer:      coach.NewAnalyzer(inference, temp, persona, logger),
		Narrator:      coach.NewNarrator(inference, speech, persona, logger),
		MaxUploadSize: 10 << 20,
		Logger:        logger,
		TemplateDir:   filepath.Join("..", "..", "web", "templates"),
	}
	return app, uploadDir
}

func newTestServer(t *testing.T, app *App) (*httptest.Server, *http.Client) {
	t.Helper()

	srv := httptest.NewServer(NewRouter(app))
	t.Cleanup(srv.Close)

	jar, err := cookiejar.New(nil)
	if err != nil {
		t.Fatalf("cookiejar: %v", err)
	}
	return srv, &http.Client{Jar: jar}
}

func uploadVideo(t *testing.T, client *http.Client, baseURL, filename string) *http.Response {
	t.Helper()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("video", filename)
	if err != nil {
		t.Fatalf("CreateFormFile: %v", err)
	}
	if _, err := part.Write([]byte("fake video bytes")); err != nil {
		t.Fatalf("write part: %v", err)
	}
	mw.Close()

	req, err := http.NewRequest(http.MethodPost, baseURL+"/upload", &buf)
	if err != nil {
		t.Fatalf("NewRequest: %v", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("upload request: %v", err)
	}
	return resp
}

func postForm(t *testing.T, client *http.Client, target string, form url.Values) *http.Response {
	t.Helper()

	resp, err := client.PostForm(target, form)
	if err != nil {
		t.Fatalf("POST %s: %v", target, err)
	}
	return resp
}

func readBody(t *testing.T, resp *http.Response) string {
	t.Helper()

	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return string(data)
}

func getSnapshot(t *testing.T, client *http.Client, baseURL string) sessionSnapshot {
	t.Helper()

	resp, err := client.Get(baseURL + "/api/session")
	if err != nil {
		t.Fatalf("GET /api/session: %v", err)
	}
	defer resp.Body.Close()

	var snap sessionSnapshot
	if err := json.NewDecoder(resp.Body).Decode(&snap); err != nil {
		t.Fatalf("decode snapshot: %v", err)
	}
	return snap
}

func TestPingHandler(t *testing.T) {
	app, _ := newTestApp(t, nil, nil)
	srv, client := newTestServer(t, app)

	resp, err := client.Get(srv.URL + "/ping")
	if err != nil {
		t.Fatalf("GET /ping: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusOK)
	}
	if body := readBody(t, resp); body != "pong" {
		t.Errorf("body = %q, want %q", body, "pong")
	}
}

func TestHomeHandler(t *testing.T) {
	app, _ := newTestApp(t, nil, nil)
	srv, client := newTestServer(t, app)

	resp, err := client.Get(srv.URL + "/")
	if err != nil {
		t.Fatalf("GET /: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusOK)
	}
	body := readBody(t, resp)
	if !strings.Contains(body, "CrossFit Form Analyzer") {
		t.Errorf("body missing page heading:\n%s", body)
	}

	u, _ := url.Parse(srv.URL)
	var found bool
	for _, c := range client.Jar.Cookies(u) {
		if c.Name == sessionCookieName && c.Value != "" {
			found = true
		}
	}
	if !found {
		t.Errorf("no %s cookie set", sessionCookieName)
	}
}

func TestUploadHandler(t *testing.T) {
	t.Run("stages an mp4 upload", func(t *testing.T) {
		app, _ := newTestApp(t, nil, nil)
		srv, client := newTestServer(t, app)

		resp := uploadVideo(t, client, srv.URL, "workout.mp4")
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusOK)
		}
		if got := resp.Header.Get("HX-Trigger"); got != "videoUploaded" {
			t.Errorf("HX-Trigger = %q, want %q", got, "videoUploaded")
		}
		if body := readBody(t, resp); !strings.Contains(body, "Video uploaded successfully!") {
			t.Errorf("unexpected body: %s", body)
		}

		snap := getSnapshot(t, client, srv.URL)
		if snap.State != "video_loaded" {
			t.Errorf("state = %q, want %q", snap.State, "video_loaded")
		}
		if snap.VideoName != "workout.mp4" {
			t.Errorf("video name = %q, want %q", snap.VideoName, "workout.mp4")
		}
	})

	t.Run("rejects unsupported extensions", func(t *testing.T) {
		app, uploadDir := newTestApp(t, nil, nil)
		srv, client := newTestServer(t, app)

		resp := uploadVideo(t, client, srv.URL, "notes.txt")
		if resp.StatusCode != http.StatusBadRequest {
			t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusBadRequest)
		}
		if body := readBody(t, resp); !strings.Contains(body, "Only MP4, MOV, and AVI video files are allowed") {
			t.Errorf("unexpected body: %s", body)
		}

		entries, err := os.ReadDir(uploadDir)
		if err != nil {
			t.Fatalf("ReadDir: %v", err)
		}
		if len(entries) != 0 {
			t.Errorf("rejected upload left %d files staged", len(entries))
		}
	})

	t.Run("rejects a missing file field", func(t *testing.T) {
		app, _ := newTestApp(t, nil, nil)
		srv, client := newTestServer(t, app)

		var buf bytes.Buffer
		mw := multipart.NewWriter(&buf)
		mw.WriteField("note", "no video here")
		mw.Close()

		req, _ := http.NewRequest(http.MethodPost, srv.URL+"/upload", &buf)
		req.Header.Set("Content-Type", mw.FormDataContentType())
		resp, err := client.Do(req)
		if err != nil {
			t.Fatalf("upload request: %v", err)
		}
		if resp.StatusCode != http.StatusBadRequest {
			t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusBadRequest)
		}
		if body := readBody(t, resp); !strings.Contains(body, "Failed to get file") {
			t.Errorf("unexpected body: %s", body)
		}
	})

	t.Run("rejects uploads over the size limit", func(t *testing.T) {
		app, _ := newTestApp(t, nil, nil)
		app.MaxUploadSize = 64
		srv, client := newTestServer(t, app)

		resp := uploadVideo(t, client, srv.URL, "workout.mp4")
		if resp.StatusCode != http.StatusBadRequest {
			t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusBadRequest)
		}
		if body := readBody(t, resp); !strings.Contains(body, "File too large") {
			t.Errorf("unexpected body: %s", body)
		}
	})

	t.Run("replacing an upload drops the previous file", func(t *testing.T) {
		app, uploadDir := newTestApp(t, nil, nil)
		srv, client := newTestServer(t, app)

		readBody(t, uploadVideo(t, client, srv.URL, "first.mp4"))
		readBody(t, uploadVideo(t, client, srv.URL, "second.mov"))

		entries, err := os.ReadDir(uploadDir)
		if err != nil {
			t.Fatalf("ReadDir: %v", err)
		}
		if len(entries) != 1 {
			t.Errorf("staged files = %d, want 1", len(entries))
		}

		snap := getSnapshot(t, client, srv.URL)
		if snap.VideoName != "second.mov" {
			t.Errorf("video name = %q, want %q", snap.VideoName, "second.mov")
		}
	})
}

func TestAnalyzeHandler(t *testing.T) {
	t.Run("runs the pipeline and renders the analysis", func(t *testing.T) {
		inference := &stubInference{}
		app, _ := newTestApp(t, inference, nil)
		srv, client := newTestServer(t, app)

		readBody(t, uploadVideo(t, client, srv.URL, "workout.mp4"))
		resp := postForm(t, client, srv.URL+"/analyze", url.Values{"query": {"Analyze my squat form"}})
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusOK)
		}
		if got := resp.Header.Get("HX-Trigger"); got != "analysisReady" {
			t.Errorf("HX-Trigger = %q, want %q", got, "analysisReady")
		}
		body := readBody(t, resp)
		if !strings.Contains(body, "Intermediate: solid squat mechanics.") {
			t.Errorf("body missing analysis text:\n%s", body)
		}
		if !strings.Contains(body, "Download Analysis") {
			t.Errorf("body missing download link:\n%s", body)
		}

		snap := getSnapshot(t, client, srv.URL)
		if snap.State != "analysis_ready" {
			t.Errorf("state = %q, want %q", snap.State, "analysis_ready")
		}
		if !snap.HasAnalysis {
			t.Error("snapshot reports no analysis")
		}
		if snap.ProgressStage != coach.StageComplete || snap.ProgressPercent != 100 {
			t.Errorf("progress = %q/%d, want %q/100", snap.ProgressStage, snap.ProgressPercent, coach.StageComplete)
		}
	})

	t.Run("warns on an empty query without calling the model", func(t *testing.T) {
		inference := &stubInference{}
		app, _ := newTestApp(t, inference, nil)
		srv, client := newTestServer(t, app)

		readBody(t, uploadVideo(t, client, srv.URL, "workout.mp4"))
		resp := postForm(t, client, srv.URL+"/analyze", url.Values{"query": {"   "}})
		if resp.StatusCode != http.StatusBadRequest {
			t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusBadRequest)
		}
		if body := readBody(t, resp); !strings.Contains(body, "Please enter a question about your form to analyze the video.") {
			t.Errorf("unexpected body: %s", body)
		}

		uploads, generates := inference.callCounts()
		if uploads != 0 || generates != 0 {
			t.Errorf("model called (%d uploads, %d generates) for an empty query", uploads, generates)
		}
		if snap := getSnapshot(t, client, srv.URL); snap.State != "video_loaded" {
			t.Errorf("state = %q, want %q", snap.State, "video_loaded")
		}
	})

	t.Run("requires a video", func(t *testing.T) {
		app, _ := newTestApp(t, nil, nil)
		srv, client := newTestServer(t, app)

		resp := postForm(t, client, srv.URL+"/analyze", url.Values{"query": {"Check my form"}})
		if resp.StatusCode != http.StatusBadRequest {
			t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusBadRequest)
		}
		if body := readBody(t, resp); !strings.Contains(body, "Please upload a video first") {
			t.Errorf("unexpected body: %s", body)
		}
	})

	t.Run("records failures and rolls the session back", func(t *testing.T) {
		inference := &stubInference{uploadErr: errors.New("quota exhausted")}
		app, _ := newTestApp(t, inference, nil)
		srv, client := newTestServer(t, app)

		readBody(t, uploadVideo(t, client, srv.URL, "workout.mp4"))
		resp := postForm(t, client, srv.URL+"/analyze", url.Values{"query": {"Analyze my squat form"}})
		if resp.StatusCode != http.StatusBadRequest {
			t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusBadRequest)
		}
		body := readBody(t, resp)
		if !strings.Contains(body, "Analysis error:") {
			t.Errorf("body missing error message:\n%s", body)
		}
		if !strings.Contains(body, "Try uploading a shorter video or check your internet connection.") {
			t.Errorf("body missing hint:\n%s", body)
		}

		snap := getSnapshot(t, client, srv.URL)
		if snap.State != "video_loaded" {
			t.Errorf("state = %q, want %q", snap.State, "video_loaded")
		}
		if !strings.Contains(snap.LastError, "Analysis error:") {
			t.Errorf("last error = %q, want analysis error", snap.LastError)
		}
	})
}

func TestDownloadAnalysisHandler(t *testing.T) {
	app, _ := newTestApp(t, nil, nil)
	srv, client := newTestServer(t, app)

	resp, err := client.Get(srv.URL + "/download/analysis")
	if err != nil {
		t.Fatalf("GET /download/analysis: %v", err)
	}
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status before analysis = %d, want %d", resp.StatusCode, http.StatusNotFound)
	}
	resp.Body.Close()

	readBody(t, uploadVideo(t, client, srv.URL, "workout.mp4"))
	readBody(t, postForm(t, client, srv.URL+"/analyze", url.Values{"query": {"Analyze my squat form"}}))

	resp, err = client.Get(srv.URL + "/download/analysis")
	if err != nil {
		t.Fatalf("GET /download/analysis: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusOK)
	}
	if got := resp.Header.Get("Content-Disposition"); !strings.Contains(got, "crossfit_form_analysis.md") {
		t.Errorf("Content-Disposition = %q, want crossfit_form_analysis.md attachment", got)
	}
	if body := readBody(t, resp); body != testAnalysis {
		t.Errorf("downloaded analysis = %q, want %q", body, testAnalysis)
	}
}
