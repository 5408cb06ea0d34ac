// Package errors provides unified error handling with structured error codes.
// Capture errors are fatal to the capture loop, recognition and research
// errors are recovered per utterance/query, config errors are fatal at startup.
package errors

import "fmt"

// Code identifies an error category.
type Code string

const (
	CodeUnknown Code = "UNKNOWN"

	// Capture: device-level failures, fatal to the capture loop.
	CodeCaptureDevice      Code = "CAPTURE_DEVICE"
	CodeCaptureUnavailable Code = "CAPTURE_UNAVAILABLE"

	// Recognition: per-utterance failures, utterance dropped and loop continues.
	CodeRecognitionFailed  Code = "RECOGNITION_FAILED"
	CodeRecognitionTimeout Code = "RECOGNITION_TIMEOUT"
	CodeRecognitionAuth    Code = "RECOGNITION_AUTH"

	// Research: per-query failures, state machine returns to idle.
	CodeResearchFailed      Code = "RESEARCH_FAILED"
	CodeResearchTimeout     Code = "RESEARCH_TIMEOUT"
	CodeResearchAuth        Code = "RESEARCH_AUTH"
	CodeResearchRateLimited Code = "RESEARCH_RATE_LIMITED"
	CodeResearchUnavailable Code = "RESEARCH_UNAVAILABLE"

	// Config: invalid configuration, fatal at startup.
	CodeConfigInvalid Code = "CONFIG_INVALID"
	CodeConfigMissing Code = "CONFIG_MISSING"
)

// AppError is the base error type with structured error code and metadata.
type AppError struct {
	Code     Code
	Message  string
	Metadata map[string]string
	Cause    error
}

// Error implements the error interface.
func (e *AppError) Error() string {
	s := fmt.Sprintf("[%s] %s", e.Code, e.Message)
	if len(e.Metadata) > 0 {
		s += fmt.Sprintf(" %v", e.Metadata)
	}
	if e.Cause != nil {
		s += fmt.Sprintf(" caused by: %v", e.Cause)
	}
	return s
}

// Unwrap returns the underlying cause for errors.Is/As.
func (e *AppError) Unwrap() error { return e.Cause }

// New creates a new AppError with the given code and message.
func New(code Code, msg string) *AppError {
	return &AppError{Code: code, Message: msg}
}

// Newf creates a new AppError with formatted message.
func Newf(code Code, format string, args ...interface{}) *AppError {
	return &AppError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap wraps an existing error with an AppError.
func Wrap(err error, code Code, msg string) *AppError {
	return &AppError{Code: code, Message: msg, Cause: err}
}

// Wrapf wraps an existing error with formatted message.
func Wrapf(err error, code Code, format string, args ...interface{}) *AppError {
	return &AppError{Code: code, Message: fmt.Sprintf(format, args...), Cause: err}
}

// WithMetadata adds metadata to an AppError.
func (e *AppError) WithMetadata(key, value string) *AppError {
	if e.Metadata == nil {
		e.Metadata = make(map[string]string)
	}
	e.Metadata[key] = value
	return e
}

// CodeOf returns the error code, or CodeUnknown for foreign errors.
func CodeOf(err error) Code {
	if appErr, ok := err.(*AppError); ok {
		return appErr.Code
	}
	return CodeUnknown
}

// IsCode checks if an error has a specific error code.
func IsCode(err error, code Code) bool {
	if appErr, ok := err.(*AppError); ok {
		return appErr.Code == code
	}
	return false
}

// IsFatal reports whether the error should stop the process rather than be
// recovered per utterance or per query.
func IsFatal(err error) bool {
	switch CodeOf(err) {
	case CodeCaptureDevice, CodeCaptureUnavailable, CodeConfigInvalid, CodeConfigMissing:
		return true
	default:
		return false
	}
}

// IsRetryable returns true if the error is potentially retryable.
func IsRetryable(err error) bool {
	switch CodeOf(err) {
	case CodeRecognitionTimeout, CodeResearchTimeout, CodeResearchRateLimited, CodeResearchUnavailable:
		return true
	default:
		return false
	}
}

// FromHTTPStatus maps an HTTP status from an external provider to an error
// code within the given family ("recognition" or "research").
func FromHTTPStatus(family string, status int, body string) *AppError {
	var code Code
	switch {
	case status == 401 || status == 403:
		code = pick(family, CodeRecognitionAuth, CodeResearchAuth)
	case status == 429:
		code = pick(family, CodeRecognitionTimeout, CodeResearchRateLimited)
	case status >= 500:
		code = pick(family, CodeRecognitionTimeout, CodeResearchUnavailable)
	default:
		code = pick(family, CodeRecognitionFailed, CodeResearchFailed)
	}
	return Newf(code, "http %d from %s provider: %s", status, family, body)
}

func pick(family string, recognition, research Code) Code {
	if family == "recognition" {
		return recognition
	}
	return research
}
