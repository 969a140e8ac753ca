package domain

import (
	"errors"
	"fmt"
)

// ErrRefreshInFlight is returned when a discovery refresh is requested while another one runs.
var ErrRefreshInFlight = errors.New("discovery refresh already in flight")

// ReportedError wraps an error that has already been shown to the user and logged.
// Callers return it up the stack without reporting it again.
type ReportedError struct {
	Err error
}

func (e *ReportedError) Error() string {
	return e.Err.Error()
}

func (e *ReportedError) Unwrap() error {
	return e.Err
}

// IsReported reports whether err, or an error it wraps, was already shown to the user.
func IsReported(err error) bool {
	var reported *ReportedError

	return errors.As(err, &reported)
}

// DiscoveryError reports that the build graph query failed or produced no usable lines.
// The previously cached target set stays valid.
type DiscoveryError struct {
	Roots []string
	Err   error
}

func (e *DiscoveryError) Error() string {
	return fmt.Sprintf("discover targets in %v: %v", e.Roots, e.Err)
}

func (e *DiscoveryError) Unwrap() error {
	return e.Err
}

// ParseError reports a structured report or coverage document that is not well-formed.
type ParseError struct {
	Source string
	Err    error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse %s: %v", e.Source, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// ExecutionError reports that the test process could not be launched.
type ExecutionError struct {
	Label string
	Err   error
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("failed to launch %s: %v", e.Label, e.Err)
}

func (e *ExecutionError) Unwrap() error {
	return e.Err
}

// ExecutionFailure reports that the test process ran and exited nonzero.
type ExecutionFailure struct {
	Label    string
	ExitCode int
}

func (e *ExecutionFailure) Error() string {
	return fmt.Sprintf("%s exited with code %d", e.Label, e.ExitCode)
}

// RecoverableRecordError describes a single bad record that was skipped.
type RecoverableRecordError struct {
	Line   int
	Record string
	Reason string
}

func (e *RecoverableRecordError) Error() string {
	return fmt.Sprintf("line %d: %s: %q", e.Line, e.Reason, e.Record)
}
