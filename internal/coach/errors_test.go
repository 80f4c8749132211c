package coach

import (
	"errors"
	"strings"
	"testing"
)

func TestWrapKeepsClassAndCause(t *testing.T) {
	cause := errors.New("connection refused")
	err := Wrap(ErrRemoteProcessing, "wait for processing", cause)

	if !errors.Is(err, ErrRemoteProcessing) {
		t.Error("class lost")
	}
	if !errors.Is(err, cause) {
		t.Error("cause lost")
	}
	if !strings.Contains(err.Error(), "wait for processing") {
		t.Errorf("operation missing from %q", err)
	}
}

func TestWrapWithoutCause(t *testing.T) {
	err := Wrap(ErrValidation, "analyze", nil)
	if !errors.Is(err, ErrValidation) {
		t.Error("class lost")
	}
}

func TestHint(t *testing.T) {
	withHint := []error{
		Wrap(ErrUpload, "upload video", errors.New("x")),
		Wrap(ErrRemoteProcessing, "wait", errors.New("x")),
		Wrap(ErrPrompt, "generate", errors.New("x")),
	}
	for _, err := range withHint {
		if Hint(err) == "" {
			t.Errorf("no hint for %v", err)
		}
	}

	withoutHint := []error{
		Wrap(ErrValidation, "analyze", nil),
		Wrap(ErrConfiguration, "narrate", nil),
		Wrap(ErrNarration, "synthesize", errors.New("x")),
		errors.New("unclassified"),
	}
	for _, err := range withoutHint {
		if hint := Hint(err); hint != "" {
			t.Errorf("unexpected hint %q for %v", hint, err)
		}
	}
}
