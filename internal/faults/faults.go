// Package faults defines the error taxonomy shared by the turn pipeline.
package faults

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/pkg/errors"
)

// InputValidationError reports caller input that can never succeed as given.
type InputValidationError struct {
	Field  string
	Reason string
}

func (e *InputValidationError) Error() string {
	if e.Field == "" {
		return "invalid input: " + e.Reason
	}
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// Invalid builds an InputValidationError.
func Invalid(field, reason string) error {
	return &InputValidationError{Field: field, Reason: reason}
}

// RecognitionKind classifies why speech could not be transcribed.
type RecognitionKind string

const (
	// RecognitionService is a transient provider failure (network, 5xx, throttling, timeout).
	RecognitionService RecognitionKind = "service"
	// RecognitionUnintelligible means the provider answered but heard nothing usable.
	RecognitionUnintelligible RecognitionKind = "unintelligible"
	// RecognitionUnavailable means the provider cannot be used at all (credentials, missing binary).
	RecognitionUnavailable RecognitionKind = "unavailable"
)

// RecognitionError is returned when speech-to-text fails.
type RecognitionError struct {
	Kind      RecognitionKind
	Provider  string
	Retryable bool
	Err       error
}

func (e *RecognitionError) Error() string {
	msg := fmt.Sprintf("speech recognition %s failure", e.Kind)
	if e.Provider != "" {
		msg += " (" + e.Provider + ")"
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *RecognitionError) Unwrap() error { return e.Err }

// ServiceFailure wraps a transient provider error.
func ServiceFailure(provider string, err error) error {
	return &RecognitionError{Kind: RecognitionService, Provider: provider, Retryable: true, Err: err}
}

// Unintelligible reports audio the provider could not understand.
func Unintelligible(provider string) error {
	return &RecognitionError{Kind: RecognitionUnintelligible, Provider: provider, Err: errors.New("no speech recognized")}
}

// Unavailable reports a provider that cannot serve requests in this deployment.
func Unavailable(provider string, err error) error {
	return &RecognitionError{Kind: RecognitionUnavailable, Provider: provider, Err: err}
}

// Attempt is one failed provider call inside an aggregated error.
type Attempt struct {
	Provider string
	Err      error
}

// SynthesisError is returned only when every synthesis provider failed.
type SynthesisError struct {
	Attempts []Attempt
}

func (e *SynthesisError) Error() string {
	if len(e.Attempts) == 0 {
		return "speech synthesis failed: no providers configured"
	}
	parts := make([]string, 0, len(e.Attempts))
	for _, a := range e.Attempts {
		parts = append(parts, fmt.Sprintf("%s: %v", a.Provider, a.Err))
	}
	return "speech synthesis failed: " + strings.Join(parts, "; ")
}

// ConfigurationError is fatal at startup.
type ConfigurationError struct {
	Setting string
	Reason  string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration error: %s %s", e.Setting, e.Reason)
}

// Misconfigured builds a ConfigurationError.
func Misconfigured(setting, reason string) error {
	return &ConfigurationError{Setting: setting, Reason: reason}
}

// IsInputValidation reports whether err carries an InputValidationError.
func IsInputValidation(err error) bool {
	var target *InputValidationError
	return errors.As(err, &target)
}

// AsRecognition extracts a RecognitionError from err.
func AsRecognition(err error) (*RecognitionError, bool) {
	var target *RecognitionError
	if errors.As(err, &target) {
		return target, true
	}
	return nil, false
}

// IsSynthesis reports whether err carries a SynthesisError.
func IsSynthesis(err error) bool {
	var target *SynthesisError
	return errors.As(err, &target)
}

// IsConfiguration reports whether err carries a ConfigurationError.
func IsConfiguration(err error) bool {
	var target *ConfigurationError
	return errors.As(err, &target)
}

// HTTPStatus maps err to the status code the transport should answer with.
func HTTPStatus(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case IsInputValidation(err):
		return http.StatusBadRequest
	case IsConfiguration(err):
		return http.StatusServiceUnavailable
	case IsSynthesis(err):
		return http.StatusBadGateway
	}
	if rec, ok := AsRecognition(err); ok {
		switch rec.Kind {
		case RecognitionUnintelligible:
			return http.StatusUnprocessableEntity
		case RecognitionUnavailable:
			return http.StatusServiceUnavailable
		default:
			return http.StatusBadGateway
		}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return http.StatusGatewayTimeout
	}
	return http.StatusInternalServerError
}
