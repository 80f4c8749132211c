package coach

import (
	"bytes"
	"context"
	"errors"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/hiapplyco/cfvideoanalysis/internal/ai"
	"github.com/hiapplyco/cfvideoanalysis/internal/logging"
	"github.com/hiapplyco/cfvideoanalysis/internal/storage"
)

type mockInference struct {
	uploadFn   func(ctx context.Context, path, mimeType string) (*ai.File, error)
	waitFn     func(ctx context.Context, file *ai.File, warn func(time.Duration)) (*ai.File, error)
	generateFn func(ctx context.Context, prompt string, file *ai.File) (string, error)

	uploads   int
	generates int
}

func (m *mockInference) UploadVideo(ctx context.Context, path, mimeType string) (*ai.File, error) {
	m.uploads++
	if m.uploadFn != nil {
		return m.uploadFn(ctx, path, mimeType)
	}
	return &ai.File{Name: "files/mock", URI: "uri", MIMEType: mimeType, State: ai.FileStateProcessing}, nil
}

func (m *mockInference) WaitForFileActive(ctx context.Context, file *ai.File, warn func(time.Duration)) (*ai.File, error) {
	if m.waitFn != nil {
		return m.waitFn(ctx, file, warn)
	}
	active := *file
	active.State = ai.FileStateActive
	return &active, nil
}

func (m *mockInference) GenerateContent(ctx context.Context, prompt string, file *ai.File) (string, error) {
	m.generates++
	if m.generateFn != nil {
		return m.generateFn(ctx, prompt, file)
	}
	return "## SKILL LEVEL & MOVEMENT EFFICIENCY\nLooking strong.", nil
}

type milestone struct {
	stage   string
	percent int
}

func newTestAnalyzer(t *testing.T, client InferenceClient) (*Analyzer, string) {
	t.Helper()
	dir := t.TempDir()
	temp, err := storage.NewTempStore(dir)
	if err != nil {
		t.Fatal(err)
	}
	persona, err := ResolvePersona("crossfit", "", "")
	if err != nil {
		t.Fatal(err)
	}
	return NewAnalyzer(client, temp, persona, logging.Discard()), dir
}

func requireEmptyDir(t *testing.T, dir string) {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 0 {
		t.Errorf("working copies left behind: %v", entries)
	}
}

func TestAnalyzeHappyPath(t *testing.T) {
	var uploadedPath string
	mock := &mockInference{
		uploadFn: func(ctx context.Context, path, mimeType string) (*ai.File, error) {
			uploadedPath = path
			if _, err := os.Stat(path); err != nil {
				t.Errorf("working copy missing at upload time: %v", err)
			}
			if mimeType != "video/quicktime" {
				t.Errorf("mimeType = %q", mimeType)
			}
			return &ai.File{Name: "files/a", URI: "uri-a", MIMEType: mimeType, State: ai.FileStateProcessing}, nil
		},
		generateFn: func(ctx context.Context, prompt string, file *ai.File) (string, error) {
			if file == nil || file.State != ai.FileStateActive {
				t.Errorf("generate called with file %+v", file)
			}
			if !strings.Contains(prompt, "Check my overhead position") {
				t.Error("prompt missing the user query")
			}
			if !strings.Contains(prompt, AnalysisSections[0]) {
				t.Error("prompt missing section structure")
			}
			return "full analysis", nil
		},
	}

	analyzer, dir := newTestAnalyzer(t, mock)

	var milestones []milestone
	analysis, err := analyzer.Analyze(context.Background(),
		bytes.NewReader([]byte("clip")), ".mov", "Check my overhead position",
		func(stage string, percent int) { milestones = append(milestones, milestone{stage, percent}) },
		nil,
	)
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if analysis != "full analysis" {
		t.Errorf("analysis = %q", analysis)
	}

	want := []milestone{
		{StageUploading, 10},
		{StageProcessing, 30},
		{StageAnalyzing, 60},
		{StageInsights, 80},
		{StageComplete, 100},
	}
	if len(milestones) != len(want) {
		t.Fatalf("milestones = %v", milestones)
	}
	for i, m := range milestones {
		if m != want[i] {
			t.Errorf("milestone[%d] = %v, want %v", i, m, want[i])
		}
	}

	if uploadedPath == "" {
		t.Fatal("upload never called")
	}
	requireEmptyDir(t, dir)
}

func TestAnalyzeEmptyQuery(t *testing.T) {
	mock := &mockInference{}
	analyzer, _ := newTestAnalyzer(t, mock)

	_, err := analyzer.Analyze(context.Background(), bytes.NewReader(nil), ".mp4", "   ", nil, nil)
	if !errors.Is(err, ErrValidation) {
		t.Errorf("err = %v, want ErrValidation", err)
	}
	if mock.uploads != 0 || mock.generates != 0 {
		t.Error("remote calls made for an empty query")
	}
}

func TestAnalyzeFailureClassesAndCleanup(t *testing.T) {
	boom := errors.New("boom")
	tests := []struct {
		name  string
		setup func(*mockInference)
		want  error
	}{
		{
			name: "upload failure",
			setup: func(m *mockInference) {
				m.uploadFn = func(context.Context, string, string) (*ai.File, error) { return nil, boom }
			},
			want: ErrUpload,
		},
		{
			name: "processing failure",
			setup: func(m *mockInference) {
				m.waitFn = func(context.Context, *ai.File, func(time.Duration)) (*ai.File, error) { return nil, boom }
			},
			want: ErrRemoteProcessing,
		},
		{
			name: "generation failure",
			setup: func(m *mockInference) {
				m.generateFn = func(context.Context, string, *ai.File) (string, error) { return "", boom }
			},
			want: ErrPrompt,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock := &mockInference{}
			tt.setup(mock)
			analyzer, dir := newTestAnalyzer(t, mock)

			_, err := analyzer.Analyze(context.Background(), bytes.NewReader([]byte("clip")), ".mp4", "query", nil, nil)
			if !errors.Is(err, tt.want) {
				t.Errorf("err = %v, want class %v", err, tt.want)
			}
			if !errors.Is(err, boom) {
				t.Errorf("cause lost from %v", err)
			}
			requireEmptyDir(t, dir)
		})
	}
}

func TestAnalyzeSlowProcessingNotice(t *testing.T) {
	mock := &mockInference{
		waitFn: func(ctx context.Context, file *ai.File, warn func(time.Duration)) (*ai.File, error) {
			warn(90 * time.Second)
			active := *file
			active.State = ai.FileStateActive
			return &active, nil
		},
	}
	analyzer, _ := newTestAnalyzer(t, mock)

	var notices []string
	_, err := analyzer.Analyze(context.Background(), bytes.NewReader([]byte("clip")), ".mp4", "query",
		nil, func(message string) { notices = append(notices, message) })
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if len(notices) != 1 || notices[0] != SlowProcessingNotice {
		t.Errorf("notices = %v", notices)
	}
}
