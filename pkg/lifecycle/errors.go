package lifecycle

import (
	"errors"
	"fmt"
)

// ErrorKind classifies a range operation failure for handling decisions:
// which failures abort before any cloud call, which trigger teardown, and
// which escalate to the critical channel.
type ErrorKind string

const (
	// KindAuthentication indicates a bad master key or password.
	KindAuthentication ErrorKind = "authentication"

	// KindInsufficientCredentials indicates a driver-level capability gap:
	// required credential fields are missing or empty.
	KindInsufficientCredentials ErrorKind = "insufficient_credentials"

	// KindUnknownProvider indicates a provider identifier the factory does
	// not recognize.
	KindUnknownProvider ErrorKind = "unknown_provider"

	// KindSynthesis indicates the engine failed before the apply step
	// (workspace selection, configuration).
	KindSynthesis ErrorKind = "synthesis"

	// KindApply indicates the engine's apply step failed.
	KindApply ErrorKind = "apply"

	// KindDestroy indicates the engine could not tear a workspace down.
	KindDestroy ErrorKind = "destroy"

	// KindOutputParsing indicates the engine's output set was malformed or
	// did not match the blueprint's declared topology.
	KindOutputParsing ErrorKind = "output_parsing"

	// KindPersistence indicates a database write or delete failed after a
	// confirmed infrastructure change.
	KindPersistence ErrorKind = "persistence"

	// KindUserNotFound indicates the acting user does not exist.
	KindUserNotFound ErrorKind = "user_not_found"

	// KindDecryptionFailed indicates the user's secrets could not be
	// decrypted with the supplied key material.
	KindDecryptionFailed ErrorKind = "decryption_failed"

	// KindMissingState indicates a destroy was requested for a range with
	// no persisted engine state.
	KindMissingState ErrorKind = "missing_state"
)

// RangeError is a classified range operation failure. Engine-level kinds
// carry the engine's raw diagnostic text so the cause survives to the job
// status unmodified.
type RangeError struct {
	// Kind is the failure classification.
	Kind ErrorKind `json:"kind"`

	// Message is the human-readable failure summary.
	Message string `json:"message"`

	// RangeID is the affected range, if known.
	RangeID string `json:"range_id,omitempty"`

	// Provider is the cloud provider involved, if known.
	Provider string `json:"provider,omitempty"`

	// Diagnostic is the external engine's raw error text, if any.
	Diagnostic string `json:"diagnostic,omitempty"`

	// Err is the underlying error.
	Err error `json:"-"`
}

// Error implements the error interface.
func (e *RangeError) Error() string {
	msg := fmt.Sprintf("[%s] %s", e.Kind, e.Message)
	if e.RangeID != "" {
		msg += fmt.Sprintf(" (range=%s)", e.RangeID)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	if e.Diagnostic != "" {
		msg += "\nengine diagnostic: " + e.Diagnostic
	}
	return msg
}

// Unwrap returns the underlying error for errors.Is/As chains.
func (e *RangeError) Unwrap() error {
	return e.Err
}

// Is matches RangeErrors by kind.
func (e *RangeError) Is(target error) bool {
	t, ok := target.(*RangeError)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

// NewError creates a classified range error.
func NewError(kind ErrorKind, message string, err error) *RangeError {
	return &RangeError{Kind: kind, Message: message, Err: err}
}

// WithRange adds range context.
func (e *RangeError) WithRange(rangeID string) *RangeError {
	e.RangeID = rangeID
	return e
}

// WithProvider adds provider context.
func (e *RangeError) WithProvider(provider string) *RangeError {
	e.Provider = provider
	return e
}

// WithDiagnostic attaches the engine's raw diagnostic text.
func (e *RangeError) WithDiagnostic(diag string) *RangeError {
	e.Diagnostic = diag
	return e
}

// KindOf returns the classification of err, or an empty kind for errors
// that are not RangeErrors.
func KindOf(err error) ErrorKind {
	var e *RangeError
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// IsKind reports whether err is a RangeError of the given kind.
func IsKind(err error, kind ErrorKind) bool {
	return KindOf(err) == kind
}
