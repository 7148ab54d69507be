package pipeline

import (
	"github.com/pkg/errors"
)

var (
	// ErrSourceUnavailable means the video could not be opened.
	ErrSourceUnavailable = errors.New("video source unavailable")
	// ErrSinkUnavailable means the annotated output could not be created.
	ErrSinkUnavailable = errors.New("video sink unavailable")
	// ErrCanceled means the caller canceled the run or its deadline passed.
	ErrCanceled = errors.New("processing canceled")
)

// stageError tags a cause with one of the sentinel errors so that both
// errors.Is(err, ErrSourceUnavailable) and errors.Is(err, cause) hold.
type stageError struct {
	kind  error
	cause error
}

func (e *stageError) Error() string {
	return e.kind.Error() + ": " + e.cause.Error()
}

func (e *stageError) Unwrap() []error {
	return []error{e.kind, e.cause}
}

func newStageError(kind, cause error) error {
	return &stageError{kind: kind, cause: cause}
}
