package model

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNotFound is returned when a file, upload, analysis or job does not exist.
	ErrNotFound = errors.New("not found")

	// ErrMalformedFile is returned when the CSV tokenizer cannot complete.
	ErrMalformedFile = errors.New("malformed file")

	// ErrJobInProgress is returned when an upload already has an active job.
	ErrJobInProgress = errors.New("processing job already in progress")
)

// StructuralError reports a file that cannot be read or tokenized.
// It aborts analysis and is returned to the caller.
type StructuralError struct {
	Path string
	Err  error
}

func (e *StructuralError) Error() string {
	return fmt.Sprintf("invalid csv %s: %v", e.Path, e.Err)
}

func (e *StructuralError) Unwrap() error { return e.Err }

// MappingError reports a mapping set that lacks required roles.
// It is normally surfaced as ValidationResult output; StartProcessing
// returns it when asked to run with an invalid mapping set.
type MappingError struct {
	Problems []string
}

func (e *MappingError) Error() string {
	return "invalid mapping: " + strings.Join(e.Problems, "; ")
}

// InfrastructureError reports a persistence or filesystem failure.
// It aborts the running job and flips it to FAILED.
type InfrastructureError struct {
	Op  string
	Err error
}

func (e *InfrastructureError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *InfrastructureError) Unwrap() error { return e.Err }

// Infra wraps err as an InfrastructureError. Returns nil for a nil err and
// leaves existing InfrastructureErrors untouched.
func Infra(op string, err error) error {
	if err == nil {
		return nil
	}
	var ie *InfrastructureError
	if errors.As(err, &ie) {
		return err
	}
	return &InfrastructureError{Op: op, Err: err}
}

// RowError builds a row-level ProcessingError. Row errors are accumulated
// against a job and never propagated.
func RowError(row int, errType, message, raw string, severity Severity) ProcessingError {
	return ProcessingError{
		RowNumber:    row,
		ErrorType:    errType,
		ErrorMessage: message,
		RawValue:     raw,
		Severity:     severity,
	}
}
