package api

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/hiapplyco/cfvideoanalysis/internal/session"
	"github.com/hiapplyco/cfvideoanalysis/internal/tts"
)

type sessionSnapshot struct {
	ID               string    `json:"id"`
	State            string    `json:"state"`
	VideoName        string    `json:"video_name,omitempty"`
	VideoSize        string    `json:"video_size,omitempty"`
	Query            string    `json:"query,omitempty"`
	HasAnalysis      bool      `json:"has_analysis"`
	HasScript        bool      `json:"has_script"`
	HasAudio         bool      `json:"has_audio"`
	ShowNarration    bool      `json:"show_narration"`
	NarrationEnabled bool      `json:"narration_enabled"`
	ProgressStage    string    `json:"progress_stage,omitempty"`
	ProgressPercent  int       `json:"progress_percent"`
	LastError        string    `json:"last_error,omitempty"`
	UpdatedAt        time.Time `json:"updated_at"`
}

func (app *App) SessionHandler(w http.ResponseWriter, r *http.Request) {
	sess, err := app.currentSession(w, r)
	if err != nil {
		http.Error(w, "Error loading session", http.StatusInternalServerError)
		return
	}

	snapshot := sessionSnapshot{
		ID:               sess.ID,
		State:            string(sess.State),
		Query:            sess.Query,
		HasAnalysis:      sess.HasAnalysis(),
		HasScript:        sess.HasScript(),
		HasAudio:         sess.HasAudio(),
		ShowNarration:    sess.ShowNarration,
		NarrationEnabled: app.Narrator.Enabled(),
		ProgressStage:    sess.ProgressStage,
		ProgressPercent:  sess.ProgressPercent,
		LastError:        sess.LastError,
		UpdatedAt:        sess.UpdatedAt,
	}
	if sess.HasVideo() {
		snapshot.VideoName = sess.Video.OriginalName
		snapshot.VideoSize = formatFileSize(sess.Video.Size)
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(snapshot); err != nil {
		app.Logger.Error("session snapshot not encoded", "session", sess.ID, "error", err)
	}
}

// SessionEventsHandler streams state, progress, and warning events for
// the caller's session over SSE until the client disconnects.
func (app *App) SessionEventsHandler(w http.ResponseWriter, r *http.Request) {
	sess, err := app.currentSession(w, r)
	if err != nil {
		http.Error(w, "Error loading session", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("Access-Control-Allow-Origin", "*")

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming unsupported", http.StatusInternalServerError)
		return
	}

	events, cancel := app.Sessions.Subscribe(sess.ID)
	defer cancel()

	// Late subscribers sync from a snapshot event before live updates.
	writeEvent(w, session.Event{
		Type:    session.EventState,
		State:   string(sess.State),
		Stage:   sess.ProgressStage,
		Percent: sess.ProgressPercent,
		Message: sess.LastError,
	})
	flusher.Flush()

	clientGone := r.Context().Done()

	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return
			}
			if err := writeEvent(w, ev); err != nil {
				return
			}
			flusher.Flush()

		case <-clientGone:
			return
		}
	}
}

func writeEvent(w io.Writer, ev session.Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Type, data)
	return err
}

func (app *App) VoicesHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	if !app.Narrator.Enabled() {
		w.WriteHeader(http.StatusServiceUnavailable)
		json.NewEncoder(w).Encode(map[string]string{"error": "ElevenLabs API key missing."})
		return
	}

	voices, err := app.Narrator.Voices(r.Context())
	resp := struct {
		Voices  []tts.Voice `json:"voices"`
		Warning string      `json:"warning,omitempty"`
	}{Voices: voices}
	if err != nil {
		resp.Warning = "Could not retrieve voices. Using default voice."
		app.Logger.Warn("voice catalog unavailable", "error", err)
	}

	if err := json.NewEncoder(w).Encode(resp); err != nil {
		app.Logger.Error("voice list not encoded", "error", err)
	}
}
