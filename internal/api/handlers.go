package api

import (
	"context"
	"errors"
	"fmt"
	"html/template"
	"io/fs"
	"log/slog"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/hiapplyco/cfvideoanalysis/internal/ai"
	"github.com/hiapplyco/cfvideoanalysis/internal/coach"
	"github.com/hiapplyco/cfvideoanalysis/internal/models"
	"github.com/hiapplyco/cfvideoanalysis/internal/session"
	"github.com/hiapplyco/cfvideoanalysis/internal/storage"
)

const sessionCookieName = "cfva_session"

func PingHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("pong"))
}

type App struct {
	Sessions      *session.Manager
	Storage       storage.Storage
	Analyzer      *coach.Analyzer
	Narrator      *coach.Narrator
	MaxUploadSize int64
	Logger        *slog.Logger

	// TemplateDir overrides the default web/templates lookup path.
	TemplateDir string
}

func (app *App) templateDir() string {
	if app.TemplateDir != "" {
		return app.TemplateDir
	}
	return filepath.Join("web", "templates")
}

// currentSession resolves the browser session from the cfva_session
// cookie, creating a fresh session (and setting the cookie) when none
// exists yet.
func (app *App) currentSession(w http.ResponseWriter, r *http.Request) (*models.Session, error) {
	var id string
	if cookie, err := r.Cookie(sessionCookieName); err == nil {
		id = cookie.Value
	}

	sess, created, err := app.Sessions.GetOrCreate(r.Context(), id)
	if err != nil {
		return nil, err
	}
	if created {
		http.SetCookie(w, &http.Cookie{
			Name:     sessionCookieName,
			Value:    sess.ID,
			Path:     "/",
			HttpOnly: true,
			SameSite: http.SameSiteLaxMode,
		})
	}
	return sess, nil
}

func (app *App) HomeHandler(w http.ResponseWriter, r *http.Request) {
	sess, err := app.currentSession(w, r)
	if err != nil {
		http.Error(w, "Error loading session", http.StatusInternalServerError)
		return
	}

	tmpl, err := template.ParseFiles(
		filepath.Join(app.templateDir(), "base.html"),
		filepath.Join(app.templateDir(), "index.html"),
	)
	if err != nil {
		http.Error(w, "Error loading template", http.StatusInternalServerError)
		return
	}

	persona := app.Analyzer.Persona()
	data := struct {
		Title            string
		Heading          string
		Discipline       string
		Session          *models.Session
		FormattedSize    string
		NarrationEnabled bool
	}{
		Title:            fmt.Sprintf("%s Form Analyzer - Get Workout Feedback", persona.Discipline),
		Heading:          fmt.Sprintf("%s Form Analyzer", persona.Discipline),
		Discipline:       persona.Discipline,
		Session:          sess,
		FormattedSize:    formatFileSize(sess.Video.Size),
		NarrationEnabled: app.Narrator.Enabled(),
	}

	if err := tmpl.ExecuteTemplate(w, "base.html", data); err != nil {
		http.Error(w, "Error rendering template", http.StatusInternalServerError)
		return
	}
}

func (app *App) UploadHandler(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, app.MaxUploadSize)

	if err := r.ParseMultipartForm(app.MaxUploadSize); err != nil {
		app.renderError(w, "File too large")
		return
	}

	file, header, err := r.FormFile("video")
	if err != nil {
		app.renderError(w, "Failed to get file")
		return
	}
	defer file.Close()

	ext := strings.ToLower(filepath.Ext(header.Filename))
	if ext != ".mp4" && ext != ".mov" && ext != ".avi" {
		app.renderError(w, "Only MP4, MOV, and AVI video files are allowed")
		return
	}

	contentType := header.Header.Get("Content-Type")
	if !strings.HasPrefix(contentType, "video/") {
		contentType = ai.VideoMIMEType(ext)
	}

	sess, err := app.currentSession(w, r)
	if err != nil {
		http.Error(w, "Error loading session", http.StatusInternalServerError)
		return
	}

	filename, err := app.Storage.SaveFile(file, storage.FileInfo{
		Filename:    header.Filename,
		ContentType: contentType,
		Size:        header.Size,
	})
	if err != nil {
		app.renderError(w, "Failed to save file")
		return
	}

	previous := sess.Video.Filename
	video := models.NewVideo(header.Filename, filename, contentType, header.Size)
	if err := app.Sessions.Transition(r.Context(), sess, session.VideoUploaded{Video: video}); err != nil {
		app.Storage.DeleteFile(filename)
		if errors.Is(err, session.ErrBusy) {
			app.renderError(w, "Please wait for the current step to finish")
			return
		}
		app.renderError(w, "Failed to save video information")
		return
	}

	// The replaced upload is unreferenced once the transition landed.
	if previous != "" && previous != filename {
		if err := app.Storage.DeleteFile(previous); err != nil && !errors.Is(err, fs.ErrNotExist) {
			app.Logger.Warn("replaced upload not removed", "filename", previous, "error", err)
		}
	}

	w.Header().Set("HX-Trigger", "videoUploaded")
	app.renderSuccess(w, "Video uploaded successfully!")
}

func (app *App) AnalyzeHandler(w http.ResponseWriter, r *http.Request) {
	sess, err := app.currentSession(w, r)
	if err != nil {
		http.Error(w, "Error loading session", http.StatusInternalServerError)
		return
	}

	query := r.FormValue("query")
	if err := app.Sessions.Transition(r.Context(), sess, session.AnalyzeStarted{Query: query}); err != nil {
		switch {
		case errors.Is(err, session.ErrEmptyQuery):
			app.renderWarning(w, "Please enter a question about your form to analyze the video.")
		case errors.Is(err, session.ErrNoVideo):
			app.renderError(w, "Please upload a video first")
		case errors.Is(err, session.ErrBusy):
			app.renderError(w, "Please wait for the current step to finish")
		default:
			app.renderError(w, "Failed to start analysis")
		}
		return
	}

	analysis, err := app.runAnalysis(r.Context(), sess)
	if err != nil {
		app.Logger.Error("analysis failed", "session", sess.ID, "error", err)
		message := fmt.Sprintf("Analysis error: %v", err)
		// Failure is recorded even when the client went away mid-request,
		// so the session never sticks in an in-flight state.
		cleanupCtx := context.WithoutCancel(r.Context())
		if terr := app.Sessions.Transition(cleanupCtx, sess, session.AnalyzeFailed{Message: message}); terr != nil {
			app.Logger.Error("analysis failure not recorded", "session", sess.ID, "error", terr)
		}
		app.renderError(w, message)
		if hint := coach.Hint(err); hint != "" {
			app.renderInfo(w, hint)
		}
		return
	}

	if err := app.Sessions.Transition(context.WithoutCancel(r.Context()), sess, session.AnalyzeSucceeded{Analysis: analysis}); err != nil {
		app.renderError(w, "Failed to store analysis")
		return
	}

	w.Header().Set("HX-Trigger", "analysisReady")
	app.renderAnalysis(w, sess)
}

func (app *App) runAnalysis(ctx context.Context, sess *models.Session) (string, error) {
	video, err := app.Storage.OpenFile(sess.Video.Filename)
	if err != nil {
		return "", coach.Wrap(coach.ErrUpload, "open staged video", err)
	}
	defer video.Close()

	progress := func(stage string, percent int) {
		app.Sessions.Progress(ctx, sess, stage, percent)
	}
	warn := func(message string) {
		app.Sessions.Warn(sess.ID, message)
	}

	ext := filepath.Ext(sess.Video.Filename)
	return app.Analyzer.Analyze(ctx, video, ext, sess.Query, progress, warn)
}

func (app *App) renderAnalysis(w http.ResponseWriter, sess *models.Session) {
	tmplPath := filepath.Join(app.templateDir(), "_analysis.html")
	tmpl, err := template.ParseFiles(tmplPath)
	if err != nil {
		fmt.Fprintf(w, `<div class="analysis-section">
			<h3>%s Form Analysis</h3>
			<div class="analysis-text">%s</div>
			<a href="/download/analysis" download>Download Analysis</a>
		</div>`,
			template.HTMLEscapeString(app.Analyzer.Persona().Discipline),
			template.HTMLEscapeString(sess.Analysis))
		return
	}

	data := struct {
		Discipline string
		Session    *models.Session
	}{
		Discipline: app.Analyzer.Persona().Discipline,
		Session:    sess,
	}
	if err := tmpl.Execute(w, data); err != nil {
		app.Logger.Error("analysis partial not rendered", "session", sess.ID, "error", err)
	}
}

func (app *App) DownloadAnalysisHandler(w http.ResponseWriter, r *http.Request) {
	sess, err := app.currentSession(w, r)
	if err != nil {
		http.Error(w, "Error loading session", http.StatusInternalServerError)
		return
	}
	if !sess.HasAnalysis() {
		http.NotFound(w, r)
		return
	}

	filename := fmt.Sprintf("%s_form_analysis.md", app.Analyzer.Persona().Key)
	w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	w.Write([]byte(sess.Analysis))
}

func (app *App) renderError(w http.ResponseWriter, message string) {
	w.WriteHeader(http.StatusBadRequest)
	fmt.Fprintf(w, `<div class="alert alert-error">%s</div>`, template.HTMLEscapeString(message))
}

func (app *App) renderWarning(w http.ResponseWriter, message string) {
	w.WriteHeader(http.StatusBadRequest)
	fmt.Fprintf(w, `<div class="alert alert-warning">%s</div>`, template.HTMLEscapeString(message))
}

func (app *App) renderSuccess(w http.ResponseWriter, message string) {
	fmt.Fprintf(w, `<div class="alert alert-success">%s</div>`, template.HTMLEscapeString(message))
}

func (app *App) renderInfo(w http.ResponseWriter, message string) {
	fmt.Fprintf(w, `<div class="alert alert-info">%s</div>`, template.HTMLEscapeString(message))
}

func formatFileSize(size int64) string {
	const (
		KB = 1024
		MB = KB * 1024
		GB = MB * 1024
	)

	switch {
	case size >= GB:
		return fmt.Sprintf("%.2f GB", float64(size)/float64(GB))
	case size >= MB:
		return fmt.Sprintf("%.2f MB", float64(size)/float64(MB))
	case size >= KB:
		return fmt.Sprintf("%.2f KB", float64(size)/float64(KB))
	default:
		return fmt.Sprintf("%d B", size)
	}
}
