package models

import (
	"time"

	"github.com/google/uuid"
)

// Session carries one browser session's pipeline state and artifacts.
// Everything here lives in the in-memory store only.
type Session struct {
	ID    string
	State State

	Video Video
	Query string

	Analysis string
	Script   string
	Audio    []byte
	VoiceID  string

	ShowNarration  bool
	AudioGenerated bool

	LastError       string
	ProgressStage   string
	ProgressPercent int

	CreatedAt time.Time
	UpdatedAt time.Time
}

func NewSession() *Session {
	now := time.Now()
	return &Session{
		ID:        uuid.New().String(),
		State:     StateIdle,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func (s *Session) HasVideo() bool    { return s.Video.Filename != "" }
func (s *Session) HasAnalysis() bool { return s.Analysis != "" }
func (s *Session) HasScript() bool   { return s.Script != "" }
func (s *Session) HasAudio() bool    { return s.AudioGenerated && len(s.Audio) > 0 }
