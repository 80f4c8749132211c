package coach

import (
	"errors"
	"fmt"
)

// Failure classes for the analysis and narration pipelines. Handlers
// branch on these with errors.Is; Wrap attaches operation context while
// keeping the class intact.
var (
	ErrConfiguration    = errors.New("configuration error")
	ErrValidation       = errors.New("validation error")
	ErrUpload           = errors.New("upload error")
	ErrRemoteProcessing = errors.New("remote processing error")
	ErrPrompt           = errors.New("prompt error")
	ErrNarration        = errors.New("narration error")
	ErrVoiceCatalog     = errors.New("voice catalog error")
)

func Wrap(class error, operation string, err error) error {
	if err == nil {
		return fmt.Errorf("%w: %s", class, operation)
	}
	return fmt.Errorf("%w: %s: %w", class, operation, err)
}

// Hint returns the recovery suggestion shown alongside analysis pipeline
// failures. Validation and configuration problems carry their own
// messages and get no hint.
func Hint(err error) string {
	switch {
	case errors.Is(err, ErrUpload), errors.Is(err, ErrRemoteProcessing), errors.Is(err, ErrPrompt):
		return "Try uploading a shorter video or check your internet connection."
	default:
		return ""
	}
}
