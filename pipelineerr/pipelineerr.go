// Package pipelineerr defines the stable error taxonomy shared by every
// pipeline phase: plain errors are wrapped with fmt.Errorf("...: %w", err)
// and exposed through a small number of codes callers can test with
// errors.Is/errors.As.
package pipelineerr

import (
	"errors"
	"fmt"
)

// Code is a stable, machine-readable error classification.
type Code string

const (
	CodeConfigError       Code = "CONFIG_ERROR"
	CodeIOError           Code = "IO_ERROR"
	CodeParsingError      Code = "PARSING_ERROR"
	CodeSchemaMismatch    Code = "SCHEMA_MISMATCH"
	CodeStorageFailure    Code = "STORAGE_FAILURE"
	CodeResourceExceeded  Code = "RESOURCE_LIMIT_EXCEEDED"
	CodeSandboxViolation  Code = "SANDBOX_VIOLATION"
	CodeUserAbort         Code = "USER_ABORT"
)

// Sentinel base errors for errors.Is comparisons when callers don't need
// the full PipelineError wrapper.
var (
	ErrConfig      = errors.New("config error")
	ErrIO          = errors.New("io error")
	ErrParsing     = errors.New("parsing error")
	ErrSchema      = errors.New("schema mismatch")
	ErrStorage     = errors.New("storage failure")
	ErrResource    = errors.New("resource limit exceeded")
	ErrSandbox     = errors.New("sandbox violation")
	ErrUserAbort   = errors.New("user abort")
)

var codeSentinel = map[Code]error{
	CodeConfigError:      ErrConfig,
	CodeIOError:          ErrIO,
	CodeParsingError:     ErrParsing,
	CodeSchemaMismatch:   ErrSchema,
	CodeStorageFailure:   ErrStorage,
	CodeResourceExceeded: ErrResource,
	CodeSandboxViolation: ErrSandbox,
	CodeUserAbort:        ErrUserAbort,
}

// PipelineError wraps an underlying cause with a stable Code and a
// human-readable Detail, suitable for persisting as job_status.last_error.
type PipelineError struct {
	Code   Code
	Detail string
	Err    error
}

// New builds a PipelineError for the given code, chaining the sentinel for
// that code as the wrapped error's target when cause is nil.
func New(code Code, detail string, cause error) *PipelineError {
	if cause == nil {
		cause = codeSentinel[code]
	}
	return &PipelineError{Code: code, Detail: detail, Err: cause}
}

func (e *PipelineError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("%s: %v", e.Code, e.Err)
	}
	return fmt.Sprintf("%s: %s: %v", e.Code, e.Detail, e.Err)
}

func (e *PipelineError) Unwrap() error {
	return e.Err
}

// Is reports whether err ultimately carries the given code.
func Is(err error, code Code) bool {
	var pe *PipelineError
	if errors.As(err, &pe) {
		return pe.Code == code
	}
	return errors.Is(err, codeSentinel[code])
}

// Retryable reports whether the pipeline should retry this error at the
// current block boundary rather than aborting the phase. Only IO_ERROR is
// retryable.
func Retryable(err error) bool {
	return Is(err, CodeIOError)
}
