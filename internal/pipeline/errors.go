package pipeline

import (
	"errors"
	"fmt"
)

// Kind names the pipeline stage outcome an error represents. HTTP and
// WebSocket surfaces map kinds to status codes and user-facing labels.
type Kind string

const (
	KindInvalidInput            Kind = "invalid_input"
	KindTranscriptionFailed     Kind = "transcription_failed"
	KindUnderstandingFailed     Kind = "understanding_failed"
	KindGenerationFailed        Kind = "generation_failed"
	KindClassificationParseFail Kind = "classification_parse_failed"
	KindSynthesisFailed         Kind = "synthesis_failed"
)

// StageError tags an underlying error with the stage that produced it.
type StageError struct {
	Kind Kind
	Err  error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// stageError wraps err with kind. An error already carrying a stage tag keeps
// its inner one, so validation failures surfacing through a stage helper stay
// invalid_input.
func stageError(kind Kind, err error) error {
	var inner *StageError
	if errors.As(err, &inner) {
		return err
	}
	return &StageError{Kind: kind, Err: err}
}

func invalidInput(format string, args ...any) error {
	return &StageError{Kind: KindInvalidInput, Err: fmt.Errorf(format, args...)}
}

// KindOf returns the stage kind of err, or "" when err carries none.
func KindOf(err error) Kind {
	var se *StageError
	if errors.As(err, &se) {
		return se.Kind
	}
	return ""
}

// Cause returns the message of the innermost wrapped error, suitable for a
// response body.
func Cause(err error) string {
	var se *StageError
	if errors.As(err, &se) {
		return se.Err.Error()
	}
	if err == nil {
		return ""
	}
	return err.Error()
}
