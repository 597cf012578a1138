package scan

import (
	"errors"
	"fmt"
)

var (
	// ErrImageNotFound is returned when an image path does not exist
	ErrImageNotFound = errors.New("image not found")

	// ErrUnreadableImage is returned when image bytes cannot be decoded
	ErrUnreadableImage = errors.New("unreadable image")

	// ErrNoImage is returned when no image data was supplied
	ErrNoImage = errors.New("no image provided")

	// ErrRecognitionFailed reports a scan where every variant failed recognition
	ErrRecognitionFailed = errors.New("recognition failed for every variant")

	// ErrScanIncomplete reports a scan cut short by cancellation or timeout
	ErrScanIncomplete = errors.New("scan did not complete")
)

// InputError is a problem with the caller's image rather than with the pipeline.
// It is never retried.
type InputError struct {
	Err    error
	Detail string
}

func (e *InputError) Error() string {
	if e.Detail == "" {
		return e.Err.Error()
	}
	return fmt.Sprintf("%v: %s", e.Err, e.Detail)
}

func (e *InputError) Unwrap() error {
	return e.Err
}

// Err returns the error a caller persisting results should record for r, or nil
// when r is a complete reading
func (r *Result) Err() error {
	switch {
	case r.EngineFailed:
		return ErrRecognitionFailed
	case r.Partial:
		return ErrScanIncomplete
	}
	return nil
}

func inputError(err error, detail string) error {
	return &InputError{Err: err, Detail: detail}
}

// IsInputError reports whether err is caused by the caller's input
func IsInputError(err error) bool {
	var ie *InputError
	return errors.As(err, &ie)
}
