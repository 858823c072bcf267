package errors

import (
	"encoding/json"
	stderrors "errors"
	"fmt"
)

// Kind identifies a failure class surfaced to the shell.
type Kind string

const (
	// Local filesystem errors
	KindIO Kind = "io"

	// Updater state machine errors
	KindUpdate    Kind = "update"
	KindCancelled Kind = "cancelled"

	// Remote errors
	KindRepository Kind = "repository"
	KindHTTP       Kind = "http"
	KindStatus     Kind = "rpc-status"

	// Plugin errors
	KindWasm          Kind = "wasm"
	KindPluginMissing Kind = "plugin-missing"

	// Decoding errors
	KindJSON   Kind = "json"
	KindSemver Kind = "semver"
	KindConfig Kind = "config"

	// Game discovery
	KindGameNotInstalled Kind = "game-not-installed"
)

// SparusError represents a structured error with context
type SparusError struct {
	Kind    Kind                   `json:"kind"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
	Cause   error                  `json:"-"`
}

// Error implements the error interface
func (e *SparusError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap implements the errors.Unwrap interface
func (e *SparusError) Unwrap() error {
	return e.Cause
}

// WithDetail adds a detail to the error
func (e *SparusError) WithDetail(key string, value interface{}) *SparusError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// MarshalJSON emits the tagged object the shell expects: {kind, message}.
// The message carries the cause so the shell sees the full failure.
func (e *SparusError) MarshalJSON() ([]byte, error) {
	message := e.Message
	if e.Cause != nil {
		message = fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return json.Marshal(struct {
		Kind    Kind   `json:"kind"`
		Message string `json:"message"`
	}{e.Kind, message})
}

// ToJSON converts the error, including details, to indented JSON
func (e *SparusError) ToJSON() string {
	type verbose SparusError
	data, _ := json.MarshalIndent(struct {
		*verbose
		Cause string `json:"cause,omitempty"`
	}{(*verbose)(e), causeString(e.Cause)}, "", "  ")
	return string(data)
}

func causeString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

// New creates a new SparusError
func New(kind Kind, message string) *SparusError {
	return &SparusError{
		Kind:    kind,
		Message: message,
	}
}

// Wrap wraps an existing error with a SparusError
func Wrap(err error, kind Kind, message string) *SparusError {
	return &SparusError{
		Kind:    kind,
		Message: message,
		Cause:   err,
	}
}

// Is checks if an error is a SparusError of the given kind
func Is(err error, kind Kind) bool {
	return GetKind(err) == kind
}

// GetKind extracts the kind of the outermost SparusError in the chain
func GetKind(err error) Kind {
	var sparusErr *SparusError
	if stderrors.As(err, &sparusErr) {
		return sparusErr.Kind
	}
	return ""
}

// From coerces any error into a SparusError. Errors that already carry a
// kind are returned as-is; others are classified by their concrete type.
func From(err error) *SparusError {
	if err == nil {
		return nil
	}
	var sparusErr *SparusError
	if stderrors.As(err, &sparusErr) {
		return sparusErr
	}
	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	switch {
	case isPathError(err):
		return Wrap(err, KindIO, "filesystem error")
	case stderrors.As(err, &syntaxErr), stderrors.As(err, &typeErr):
		return Wrap(err, KindJSON, "malformed JSON")
	default:
		return Wrap(err, KindUpdate, "operation failed")
	}
}
