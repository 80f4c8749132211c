package api

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"html/template"
	"net/http"
	"path/filepath"

	"github.com/hiapplyco/cfvideoanalysis/internal/models"
	"github.com/hiapplyco/cfvideoanalysis/internal/session"
	"github.com/hiapplyco/cfvideoanalysis/internal/tts"
)

func (app *App) RevealNarrationHandler(w http.ResponseWriter, r *http.Request) {
	sess, err := app.currentSession(w, r)
	if err != nil {
		http.Error(w, "Error loading session", http.StatusInternalServerError)
		return
	}

	if err := app.Sessions.Transition(r.Context(), sess, session.NarrationRevealed{}); err != nil {
		if errors.Is(err, session.ErrBusy) {
			app.renderError(w, "Please wait for the current step to finish")
			return
		}
		app.renderError(w, "Run an analysis before exploring audio options")
		return
	}

	app.renderNarrationOptions(r.Context(), w, sess)
}

func (app *App) renderNarrationOptions(ctx context.Context, w http.ResponseWriter, sess *models.Session) {
	data := struct {
		Enabled        bool
		Voices         []tts.Voice
		Warning        string
		DefaultVoiceID string
		Session        *models.Session
	}{
		Enabled:        app.Narrator.Enabled(),
		DefaultVoiceID: app.Narrator.DefaultVoiceID(),
		Session:        sess,
	}

	if data.Enabled {
		voices, err := app.Narrator.Voices(ctx)
		data.Voices = voices
		if err != nil {
			// The narrator already fell back to the default voice; the
			// options stay usable.
			data.Warning = fmt.Sprintf("Could not retrieve voices: %v. Using default voice.", err)
			app.Logger.Warn("voice catalog unavailable", "session", sess.ID, "error", err)
		}
	}

	tmplPath := filepath.Join(app.templateDir(), "_narration.html")
	tmpl, err := template.ParseFiles(tmplPath)
	if err != nil {
		app.renderNarrationFallback(w, data.Enabled, data.Voices, data.Warning)
		return
	}

	if err := tmpl.Execute(w, data); err != nil {
		app.Logger.Error("narration partial not rendered", "session", sess.ID, "error", err)
	}
}

func (app *App) renderNarrationFallback(w http.ResponseWriter, enabled bool, voices []tts.Voice, warning string) {
	fmt.Fprint(w, `<div class="narration-options"><h4>Voice Options</h4>`)
	if !enabled {
		fmt.Fprint(w, `<div class="alert alert-error">ElevenLabs API key missing.</div></div>`)
		return
	}
	if warning != "" {
		fmt.Fprintf(w, `<div class="alert alert-warning">%s</div>`, template.HTMLEscapeString(warning))
	}
	fmt.Fprint(w, `<select name="voice_id" form="audio-form">`)
	for _, voice := range voices {
		fmt.Fprintf(w, `<option value="%s">%s</option>`,
			template.HTMLEscapeString(voice.ID), template.HTMLEscapeString(voice.Name))
	}
	fmt.Fprint(w, `</select></div>`)
}

func (app *App) GenerateAudioHandler(w http.ResponseWriter, r *http.Request) {
	sess, err := app.currentSession(w, r)
	if err != nil {
		http.Error(w, "Error loading session", http.StatusInternalServerError)
		return
	}

	// Without a key the session never enters a narration state.
	if !app.Narrator.Enabled() {
		app.renderError(w, "ElevenLabs API key needed for audio.")
		return
	}

	if err := app.Sessions.Transition(r.Context(), sess, session.ScriptStarted{}); err != nil {
		if errors.Is(err, session.ErrBusy) {
			app.renderError(w, "Please wait for the current step to finish")
			return
		}
		app.renderError(w, "Run an analysis before generating audio")
		return
	}

	cleanupCtx := context.WithoutCancel(r.Context())

	script, err := app.Narrator.Script(r.Context(), sess.Analysis)
	if err != nil {
		app.Logger.Error("script generation failed", "session", sess.ID, "error", err)
		message := fmt.Sprintf("Audio generation error: %v", err)
		if terr := app.Sessions.Transition(cleanupCtx, sess, session.ScriptFailed{Message: message}); terr != nil {
			app.Logger.Error("script failure not recorded", "session", sess.ID, "error", terr)
		}
		app.renderError(w, message)
		return
	}

	if err := app.Sessions.Transition(cleanupCtx, sess, session.ScriptSucceeded{Script: script}); err != nil {
		app.renderError(w, "Failed to store narration script")
		return
	}

	voiceID := r.FormValue("voice_id")
	if voiceID == "" {
		voiceID = app.Narrator.DefaultVoiceID()
	}
	if err := app.Sessions.Transition(r.Context(), sess, session.AudioStarted{VoiceID: voiceID}); err != nil {
		app.renderError(w, "Failed to start audio generation")
		return
	}

	audio, err := app.Narrator.Synthesize(r.Context(), sess.Script, sess.VoiceID)
	if err != nil {
		app.Logger.Error("audio synthesis failed", "session", sess.ID, "error", err)
		message := fmt.Sprintf("Audio generation error: %v", err)
		if terr := app.Sessions.Transition(cleanupCtx, sess, session.AudioFailed{Message: message}); terr != nil {
			app.Logger.Error("audio failure not recorded", "session", sess.ID, "error", terr)
		}
		app.renderError(w, message)
		return
	}

	if err := app.Sessions.Transition(cleanupCtx, sess, session.AudioSucceeded{Audio: audio}); err != nil {
		app.renderError(w, "Failed to store audio")
		return
	}

	w.Header().Set("HX-Trigger", "audioReady")
	app.renderAudioResult(w, sess)
}

func (app *App) renderAudioResult(w http.ResponseWriter, sess *models.Session) {
	tmplPath := filepath.Join(app.templateDir(), "_audio_result.html")
	tmpl, err := template.ParseFiles(tmplPath)
	if err != nil {
		fmt.Fprint(w, `<div class="audio-result">
			<div class="alert alert-success">Your audio analysis is ready!</div>
			<audio controls src="/audio"></audio>
			<a href="/download/audio" download>Download Audio Analysis</a>
		</div>`)
		return
	}

	if err := tmpl.Execute(w, sess); err != nil {
		app.Logger.Error("audio partial not rendered", "session", sess.ID, "error", err)
	}
}

// AudioHandler serves the narration inline for the audio player.
// Downloads go through DownloadAudioHandler instead.
func (app *App) AudioHandler(w http.ResponseWriter, r *http.Request) {
	sess, err := app.currentSession(w, r)
	if err != nil {
		http.Error(w, "Error loading session", http.StatusInternalServerError)
		return
	}
	if !sess.HasAudio() {
		http.NotFound(w, r)
		return
	}

	w.Header().Set("Content-Type", "audio/mpeg")
	// ServeContent handles Range requests, which browsers send when
	// seeking inside the player.
	http.ServeContent(w, r, "narration.mp3", sess.UpdatedAt, bytes.NewReader(sess.Audio))
}

func (app *App) DownloadAudioHandler(w http.ResponseWriter, r *http.Request) {
	sess, err := app.currentSession(w, r)
	if err != nil {
		http.Error(w, "Error loading session", http.StatusInternalServerError)
		return
	}
	if !sess.HasAudio() {
		http.NotFound(w, r)
		return
	}

	filename := fmt.Sprintf("%s_form_analysis_audio.mp3", app.Analyzer.Persona().Key)
	w.Header().Set("Content-Type", "audio/mpeg")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	w.Write(sess.Audio)
}
