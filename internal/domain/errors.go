package domain

import (
	"errors"
	"fmt"
)

var (
	ErrIngestion             = errors.New("ingestion failed")
	ErrIndexCorruption       = errors.New("index corruption")
	ErrEmbeddingUnavailable  = errors.New("embedding unavailable")
	ErrGenerationUnavailable = errors.New("generation unavailable")
	ErrModelMismatch         = errors.New("embedding model mismatch")
	ErrInvalidConfig         = errors.New("invalid configuration")
)

// OpError records the operation and, when known, the source that failed.
type OpError struct {
	Op     string
	Source string
	Err    error
}

func (e *OpError) Error() string {
	if e.Source != "" {
		return fmt.Sprintf("%s [source=%s]: %v", e.Op, e.Source, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *OpError) Unwrap() error {
	return e.Err
}

// NewOpError wraps kind, and optionally cause, under op.
// Both kind and cause remain reachable through errors.Is.
func NewOpError(op, source string, kind, cause error) *OpError {
	err := kind
	if cause != nil {
		err = fmt.Errorf("%w: %w", kind, cause)
	}
	return &OpError{Op: op, Source: source, Err: err}
}

// IsUnavailable reports whether err is a transient backend outage that the
// user should see as "try again later".
func IsUnavailable(err error) bool {
	return errors.Is(err, ErrEmbeddingUnavailable) || errors.Is(err, ErrGenerationUnavailable)
}
