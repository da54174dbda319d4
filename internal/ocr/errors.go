package ocr

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Common OCR proxy errors
var (
	// ErrMissingAPIKey is returned when no Google Vision API key is configured.
	ErrMissingAPIKey = errors.New("GOOGLE_VISION_API_KEY not configured")

	// ErrNoImage is returned when the request carries no usable image field.
	ErrNoImage = errors.New("no image provided")

	// ErrInvalidImageType is returned when the image field is present but not a string.
	ErrInvalidImageType = errors.New("image must be a base64 string")

	// ErrInvalidBase64 is returned when the cleaned payload fails the character class check.
	ErrInvalidBase64 = errors.New("invalid base64 format")

	// ErrUpstream is returned when the Vision API answers with a non-success status.
	ErrUpstream = errors.New("Google Vision API error")

	// ErrProvider is returned when the Vision API reports an error object in its body.
	ErrProvider = errors.New("Vision API error")

	// ErrEmptyResponse is returned when the Vision API body holds no responses.
	ErrEmptyResponse = errors.New("empty response from Vision API")
)

// OCRError wraps errors with additional context about the failed operation.
type OCRError struct {
	// Op is the operation that failed (e.g., "Annotate", "Process").
	Op string

	// Err is the underlying error.
	Err error

	// Details provides additional context about the failure.
	Details string
}

// Error implements the error interface.
func (e *OCRError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("ocr: %s failed: %s: %v", e.Op, e.Details, e.Err)
	}
	return fmt.Sprintf("ocr: %s failed: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error for error unwrapping.
func (e *OCRError) Unwrap() error {
	return e.Err
}

// NewOCRError creates a new OCRError with the specified operation and underlying error.
func NewOCRError(op string, err error, details string) *OCRError {
	return &OCRError{
		Op:      op,
		Err:     err,
		Details: details,
	}
}

// WrapOCRError wraps an error as an OCRError if it isn't already one.
func WrapOCRError(op string, err error, details string) error {
	if err == nil {
		return nil
	}

	var ocrErr *OCRError
	if errors.As(err, &ocrErr) {
		return err
	}

	return NewOCRError(op, err, details)
}

// ValidationError describes an image payload rejected before any upstream call.
type ValidationError struct {
	Field string
	// Sample is the prefix of the payload that was inspected.
	Sample string
	Err    error
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error for field '%s': %v", e.Field, e.Err)
}

// Unwrap returns the underlying sentinel.
func (e *ValidationError) Unwrap() error {
	return e.Err
}

// UpstreamError carries a non-success HTTP answer from the Vision API.
type UpstreamError struct {
	StatusCode int
	// Body is the raw response text.
	Body string
}

// Error implements the error interface.
func (e *UpstreamError) Error() string {
	return fmt.Sprintf("%v: status %d", ErrUpstream, e.StatusCode)
}

// Unwrap returns ErrUpstream.
func (e *UpstreamError) Unwrap() error {
	return ErrUpstream
}

// ProviderError is an error object reported inside a Vision API response body.
type ProviderError struct {
	Message string
	// Code is forwarded verbatim; nil when the provider sent none.
	Code json.RawMessage
}

// Error implements the error interface.
func (e *ProviderError) Error() string {
	if e.Message == "" {
		return ErrProvider.Error()
	}
	return e.Message
}

// Unwrap returns ErrProvider.
func (e *ProviderError) Unwrap() error {
	return ErrProvider
}
