package coach

import (
	"context"
	"log/slog"

	"github.com/hiapplyco/cfvideoanalysis/internal/tts"
)

// SpeechClient is the slice of the ElevenLabs client the narrator uses.
type SpeechClient interface {
	Configured() bool
	DefaultVoiceID() string
	Voices(ctx context.Context) ([]tts.Voice, error)
	Synthesize(ctx context.Context, text, voiceID string) ([]byte, error)
}

// Narrator turns an analysis into a spoken-word script and renders it to
// audio. Both steps need the speech credential; without it the feature
// reports itself disabled instead of failing mid-flight.
type Narrator struct {
	inference InferenceClient
	speech    SpeechClient
	persona   Persona
	logger    *slog.Logger
}

func NewNarrator(inference InferenceClient, speech SpeechClient, persona Persona, logger *slog.Logger) *Narrator {
	return &Narrator{
		inference: inference,
		speech:    speech,
		persona:   persona,
		logger:    logger,
	}
}

// Enabled reports whether narration can run at all.
func (n *Narrator) Enabled() bool {
	return n.speech.Configured()
}

// Script converts an analysis into a plain spoken monologue. The model
// output is kept verbatim; it was asked for plain text already.
func (n *Narrator) Script(ctx context.Context, analysis string) (string, error) {
	if analysis == "" {
		return "", Wrap(ErrValidation, "generate script", nil)
	}
	if !n.Enabled() {
		return "", Wrap(ErrConfiguration, "generate script", nil)
	}

	script, err := n.inference.GenerateContent(ctx, NarrationPrompt(n.persona, analysis), nil)
	if err != nil {
		return "", Wrap(ErrNarration, "generate script", err)
	}
	n.logger.Debug("narration script ready", "length", len(script))
	return script, nil
}

// Synthesize renders a script to MP3 audio with the chosen voice, the
// default voice when voiceID is empty.
func (n *Narrator) Synthesize(ctx context.Context, script, voiceID string) ([]byte, error) {
	if !n.Enabled() {
		return nil, Wrap(ErrConfiguration, "synthesize audio", nil)
	}

	audio, err := n.speech.Synthesize(ctx, script, voiceID)
	if err != nil {
		return nil, Wrap(ErrNarration, "synthesize audio", err)
	}
	n.logger.Info("narration audio ready", "bytes", len(audio))
	return audio, nil
}

// Voices returns the voice catalog. When the catalog cannot be fetched
// the default voice comes back as the only option, together with a
// classified error the caller may surface as a warning.
func (n *Narrator) Voices(ctx context.Context) ([]tts.Voice, error) {
	if !n.Enabled() {
		return nil, Wrap(ErrConfiguration, "list voices", nil)
	}

	voices, err := n.speech.Voices(ctx)
	if err != nil {
		return n.fallbackVoices(), Wrap(ErrVoiceCatalog, "list voices", err)
	}
	if len(voices) == 0 {
		return n.fallbackVoices(), Wrap(ErrVoiceCatalog, "list voices", nil)
	}
	return voices, nil
}

// DefaultVoiceID exposes the voice used when no selection was made.
func (n *Narrator) DefaultVoiceID() string {
	return n.speech.DefaultVoiceID()
}

func (n *Narrator) fallbackVoices() []tts.Voice {
	return []tts.Voice{{ID: n.speech.DefaultVoiceID(), Name: "Default voice"}}
}
