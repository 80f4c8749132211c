// Package coach runs the two pipelines of the app: video form analysis
// and spoken narration. It owns the prompts, the failure taxonomy, and
// the transient working-copy discipline around each analysis.
package coach

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/hiapplyco/cfvideoanalysis/internal/ai"
	"github.com/hiapplyco/cfvideoanalysis/internal/storage"
)

// InferenceClient is the slice of the Gemini client the pipelines use.
type InferenceClient interface {
	UploadVideo(ctx context.Context, path, mimeType string) (*ai.File, error)
	WaitForFileActive(ctx context.Context, file *ai.File, warn func(elapsed time.Duration)) (*ai.File, error)
	GenerateContent(ctx context.Context, prompt string, file *ai.File) (string, error)
}

// ProgressFunc receives pipeline milestones. stage is user-facing text.
type ProgressFunc func(stage string, percent int)

// WarnFunc receives advisory notices that do not stop the pipeline.
type WarnFunc func(message string)

// Pipeline milestones, surfaced through ProgressFunc.
const (
	StageUploading  = "Uploading..."
	StageProcessing = "Processing..."
	StageAnalyzing  = "Analyzing Form..."
	StageInsights   = "Generating Form Insights..."
	StageComplete   = "Complete!"
)

// SlowProcessingNotice is surfaced when remote processing overruns the
// configured threshold.
const SlowProcessingNotice = "Video processing is taking longer than expected. Please be patient."

// Analyzer runs the full form-analysis pipeline: stage a working copy,
// hand it to the inference service, poll until processed, then ask for
// structured feedback.
type Analyzer struct {
	client  InferenceClient
	temp    *storage.TempStore
	persona Persona
	logger  *slog.Logger
}

func NewAnalyzer(client InferenceClient, temp *storage.TempStore, persona Persona, logger *slog.Logger) *Analyzer {
	return &Analyzer{
		client:  client,
		temp:    temp,
		persona: persona,
		logger:  logger,
	}
}

func (a *Analyzer) Persona() Persona { return a.persona }

// Analyze answers query about the video read from src. The working copy
// is always released before returning, success or failure. progress and
// warn may be nil.
func (a *Analyzer) Analyze(ctx context.Context, src io.Reader, ext, query string, progress ProgressFunc, warn WarnFunc) (string, error) {
	if strings.TrimSpace(query) == "" {
		return "", Wrap(ErrValidation, "analyze", nil)
	}
	report := func(stage string, percent int) {
		if progress != nil {
			progress(stage, percent)
		}
	}

	report(StageUploading, 10)
	path, err := a.temp.Store(src, ext)
	if err != nil {
		return "", Wrap(ErrUpload, "stage working copy", err)
	}
	defer func() {
		if err := a.temp.Release(path); err != nil {
			a.logger.Warn("working copy not released", "path", path, "error", err)
		}
	}()

	file, err := a.client.UploadVideo(ctx, path, ai.VideoMIMEType(ext))
	if err != nil {
		return "", Wrap(ErrUpload, "upload video", err)
	}
	a.logger.Debug("video uploaded", "file", file.Name, "state", file.State)

	report(StageProcessing, 30)
	file, err = a.client.WaitForFileActive(ctx, file, func(elapsed time.Duration) {
		a.logger.Warn("remote processing slow", "file", file.Name, "elapsed", elapsed)
		if warn != nil {
			warn(SlowProcessingNotice)
		}
	})
	if err != nil {
		return "", Wrap(ErrRemoteProcessing, "wait for processing", err)
	}

	report(StageAnalyzing, 60)
	prompt := AnalysisPrompt(a.persona, query)

	report(StageInsights, 80)
	analysis, err := a.client.GenerateContent(ctx, prompt, file)
	if err != nil {
		return "", Wrap(ErrPrompt, "generate analysis", err)
	}

	report(StageComplete, 100)
	a.logger.Info("analysis complete", "file", file.Name, "length", len(analysis))
	return analysis, nil
}
