package model

import (
	"errors"
	"fmt"
)

// FailureKind classifies an error by the collaborator that produced it.
type FailureKind string

const (
	// GraphQueryFailure: graph store unreachable or query rejected.
	GraphQueryFailure FailureKind = "graph_query"
	// StorageQueryFailure: relational store unreachable or query rejected.
	StorageQueryFailure FailureKind = "storage_query"
	// RecordingFailure: history persistence failed.
	RecordingFailure FailureKind = "recording"
	// InputValidationFailure: a required request parameter is missing or malformed.
	InputValidationFailure FailureKind = "input_validation"
	// NonFiniteFailure: a metric's values overflow the accumulator; the metric adds nothing.
	NonFiniteFailure FailureKind = "non_finite"
)

// Failure is a per-metric error that was recovered locally. It is kept on the
// aggregation result so callers can see which metrics degraded the score.
type Failure struct {
	Kind    FailureKind `json:"kind"`
	Scheme  Scheme      `json:"scheme"`
	Metric  string      `json:"metric"`
	Message string      `json:"message"`
	Err     error       `json:"-"`
}

// NewFailure records err against metric under scheme.
func NewFailure(kind FailureKind, scheme Scheme, metric string, err error) Failure {
	f := Failure{Kind: kind, Scheme: scheme, Metric: metric, Err: err}
	if err != nil {
		f.Message = err.Error()
	}
	return f
}

func (f Failure) Error() string {
	return fmt.Sprintf("%s failure for %s metric %q: %s", f.Kind, f.Scheme, f.Metric, f.Message)
}

func (f Failure) Unwrap() error {
	return f.Err
}

// ValidationError reports an InputValidationFailure for a single field.
type ValidationError struct {
	Field  string
	Reason string
}

// NewValidationError returns a *ValidationError for field.
func NewValidationError(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s %s", e.Field, e.Reason)
}

// IsValidation reports whether err (or any error in its chain) is a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
