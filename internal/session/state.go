// Package session implements the lifecycle of a coaching session: the
// transition rules that gate every pipeline step, the manager that
// persists sessions, and the event hub behind live progress updates.
package session

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/hiapplyco/cfvideoanalysis/internal/models"
)

var (
	// ErrInvalidTransition rejects an action the current state does not allow.
	ErrInvalidTransition = errors.New("invalid transition")
	// ErrBusy rejects user actions while a pipeline step is running.
	ErrBusy = errors.New("session busy")
	// ErrEmptyQuery rejects analysis without a question to answer.
	ErrEmptyQuery = errors.New("empty query")
	// ErrNoVideo rejects analysis before any upload.
	ErrNoVideo = errors.New("no video loaded")
)

// Action is one input to the session state machine.
type Action interface {
	name() string
}

type VideoUploaded struct{ Video models.Video }

type AnalyzeStarted struct{ Query string }

type AnalyzeSucceeded struct{ Analysis string }

type AnalyzeFailed struct{ Message string }

type NarrationRevealed struct{}

type ScriptStarted struct{}

type ScriptSucceeded struct{ Script string }

type ScriptFailed struct{ Message string }

type AudioStarted struct{ VoiceID string }

type AudioSucceeded struct{ Audio []byte }

type AudioFailed struct{ Message string }

func (VideoUploaded) name() string     { return "video_uploaded" }
func (AnalyzeStarted) name() string    { return "analyze_started" }
func (AnalyzeSucceeded) name() string  { return "analyze_succeeded" }
func (AnalyzeFailed) name() string     { return "analyze_failed" }
func (NarrationRevealed) name() string { return "narration_revealed" }
func (ScriptStarted) name() string     { return "script_started" }
func (ScriptSucceeded) name() string   { return "script_succeeded" }
func (ScriptFailed) name() string      { return "script_failed" }
func (AudioStarted) name() string      { return "audio_started" }
func (AudioSucceeded) name() string    { return "audio_succeeded" }
func (AudioFailed) name() string       { return "audio_failed" }

// Apply runs one action against a session snapshot and returns the next
// snapshot. The input is never mutated; on error the returned session
// equals the input. Side effects (uploads, inference, synthesis) happen
// elsewhere, between the Started and Succeeded/Failed actions.
func Apply(s models.Session, a Action) (models.Session, error) {
	switch act := a.(type) {
	case VideoUploaded:
		return applyVideoUploaded(s, act)
	case AnalyzeStarted:
		return applyAnalyzeStarted(s, act)
	case AnalyzeSucceeded:
		return applyAnalyzeSucceeded(s, act)
	case AnalyzeFailed:
		return applyFailed(s, models.StateAnalyzing, act.Message)
	case NarrationRevealed:
		return applyNarrationRevealed(s)
	case ScriptStarted:
		return applyScriptStarted(s)
	case ScriptSucceeded:
		return applyScriptSucceeded(s, act)
	case ScriptFailed:
		return applyFailed(s, models.StateScriptGenerating, act.Message)
	case AudioStarted:
		return applyAudioStarted(s, act)
	case AudioSucceeded:
		return applyAudioSucceeded(s, act)
	case AudioFailed:
		return applyFailed(s, models.StateAudioGenerating, act.Message)
	default:
		return s, fmt.Errorf("%w: unknown action %T", ErrInvalidTransition, a)
	}
}

func applyVideoUploaded(s models.Session, a VideoUploaded) (models.Session, error) {
	if s.State.IsInFlight() {
		return s, fmt.Errorf("%w: cannot replace video in state %s", ErrBusy, s.State)
	}
	// A new video invalidates every artifact derived from the old one.
	s.Video = a.Video
	s.Analysis = ""
	s.Script = ""
	s.Audio = nil
	s.ShowNarration = false
	s.AudioGenerated = false
	s.LastError = ""
	s.ProgressStage = ""
	s.ProgressPercent = 0
	s.State = models.StateVideoLoaded
	return touched(s), nil
}

func applyAnalyzeStarted(s models.Session, a AnalyzeStarted) (models.Session, error) {
	if s.State.IsInFlight() {
		return s, fmt.Errorf("%w: analysis already running in state %s", ErrBusy, s.State)
	}
	if !s.HasVideo() || s.State == models.StateIdle {
		return s, ErrNoVideo
	}
	if strings.TrimSpace(a.Query) == "" {
		return s, ErrEmptyQuery
	}
	s.Query = a.Query
	s.LastError = ""
	s.ProgressStage = ""
	s.ProgressPercent = 0
	s.State = models.StateAnalyzing
	return touched(s), nil
}

func applyAnalyzeSucceeded(s models.Session, a AnalyzeSucceeded) (models.Session, error) {
	if s.State != models.StateAnalyzing {
		return s, transitionErr(a, s.State)
	}
	// A fresh analysis invalidates any narration built on the old one.
	s.Analysis = a.Analysis
	s.Script = ""
	s.Audio = nil
	s.ShowNarration = false
	s.AudioGenerated = false
	s.LastError = ""
	s.State = models.StateAnalysisReady
	return touched(s), nil
}

func applyNarrationRevealed(s models.Session) (models.Session, error) {
	if !s.State.HasAnalysis() || s.State.IsInFlight() {
		return s, transitionErr(NarrationRevealed{}, s.State)
	}
	s.ShowNarration = true
	return touched(s), nil
}

func applyScriptStarted(s models.Session) (models.Session, error) {
	if s.State.IsInFlight() {
		return s, fmt.Errorf("%w: narration already running in state %s", ErrBusy, s.State)
	}
	if !s.State.HasAnalysis() {
		return s, transitionErr(ScriptStarted{}, s.State)
	}
	s.LastError = ""
	s.State = models.StateScriptGenerating
	return touched(s), nil
}

func applyScriptSucceeded(s models.Session, a ScriptSucceeded) (models.Session, error) {
	if s.State != models.StateScriptGenerating {
		return s, transitionErr(a, s.State)
	}
	// A new script invalidates audio rendered from the old one.
	s.Script = a.Script
	s.Audio = nil
	s.AudioGenerated = false
	s.State = models.StateScriptReady
	return touched(s), nil
}

func applyAudioStarted(s models.Session, a AudioStarted) (models.Session, error) {
	// Audio is only reachable through a fresh script.
	if s.State != models.StateScriptReady {
		return s, transitionErr(a, s.State)
	}
	if a.VoiceID != "" {
		s.VoiceID = a.VoiceID
	}
	s.State = models.StateAudioGenerating
	return touched(s), nil
}

func applyAudioSucceeded(s models.Session, a AudioSucceeded) (models.Session, error) {
	if s.State != models.StateAudioGenerating {
		return s, transitionErr(a, s.State)
	}
	s.Audio = a.Audio
	s.AudioGenerated = true
	s.State = models.StateAudioReady
	return touched(s), nil
}

// applyFailed settles a failed step: the session returns to the state its
// retained artifacts support, and no partial artifact survives.
func applyFailed(s models.Session, from models.State, message string) (models.Session, error) {
	if s.State != from {
		return s, fmt.Errorf("%w: failure reported in state %s, expected %s", ErrInvalidTransition, s.State, from)
	}
	if from == models.StateAudioGenerating {
		s.Audio = nil
		s.AudioGenerated = false
	}
	s.LastError = message
	s.ProgressStage = ""
	s.ProgressPercent = 0
	s.State = settledState(s)
	return touched(s), nil
}

// settledState derives the resting state from the artifacts a session
// still holds. Failed steps land here since earlier results survive.
func settledState(s models.Session) models.State {
	switch {
	case s.HasAudio():
		return models.StateAudioReady
	case s.HasScript():
		return models.StateScriptReady
	case s.HasAnalysis():
		return models.StateAnalysisReady
	case s.HasVideo():
		return models.StateVideoLoaded
	default:
		return models.StateIdle
	}
}

func transitionErr(a Action, from models.State) error {
	return fmt.Errorf("%w: %s in state %s", ErrInvalidTransition, a.name(), from)
}

func touched(s models.Session) models.Session {
	s.UpdatedAt = time.Now()
	return s
}
