// Package ocr forwards base64-encoded images to Google Cloud Vision text detection.
//
// A Service owns the part of the proxy pipeline that no longer depends on HTTP:
// it strips any data-URI prefix from the payload, checks that the payload looks
// like base64, issues exactly one annotate call through an Annotator, and
// classifies the provider's answer.
//
// Backends:
//   - RESTAnnotator: POST {endpoint}?key={api key}, the JSON body is returned byte for byte
//   - GRPCAnnotator: ImageAnnotatorClient.BatchAnnotateImages, rendered with protojson
//
// Both request TEXT_DETECTION and DOCUMENT_TEXT_DETECTION for a single image.
// No retries are performed; a failed call is reported, not repeated.
package ocr

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
)

// Annotator sends one cleaned base64 payload to an OCR backend.
type Annotator interface {
	// Annotate returns the raw JSON response body on success. A non-success
	// answer from the provider is reported as *UpstreamError.
	Annotate(ctx context.Context, content string) ([]byte, error)

	// Name identifies the backend in logs and metrics.
	Name() string
}

// UpstreamObserver records the outcome of each annotate call.
type UpstreamObserver interface {
	ObserveUpstream(backend, outcome string, elapsed time.Duration)
}

// ServiceConfig holds the collaborators of a Service.
type ServiceConfig struct {
	// Timeout bounds a single annotate call. Zero means no timeout.
	Timeout time.Duration

	// Observer is optional.
	Observer UpstreamObserver

	Logger zerolog.Logger
}

// Service runs the validation and upstream part of the proxy pipeline.
type Service struct {
	annotator Annotator
	config    ServiceConfig
}

// NewService creates a Service that calls annotator once per Process.
func NewService(annotator Annotator, config ServiceConfig) *Service {
	return &Service{
		annotator: annotator,
		config:    config,
	}
}

// Process normalizes image, validates it and returns the provider's response
// body unmodified when it contains at least one response.
func (s *Service) Process(ctx context.Context, image string) ([]byte, error) {
	const op = "Process"

	clean := NormalizeImage(image)
	if err := ValidateBase64(clean); err != nil {
		return nil, err
	}

	if s.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.config.Timeout)
		defer cancel()
	}

	log := s.config.Logger.With().Str("backend", s.annotator.Name()).Logger()
	log.Debug().
		Int("payload_length", len(clean)).
		Msg("Calling Vision API")

	start := time.Now()
	body, err := s.annotator.Annotate(ctx, clean)
	elapsed := time.Since(start)
	s.observe(outcome(err), elapsed)

	if err != nil {
		var upstreamErr *UpstreamError
		if errors.As(err, &upstreamErr) {
			log.Warn().
				Int("status", upstreamErr.StatusCode).
				Dur("duration", elapsed).
				Msg("Vision API returned an error status")
			return nil, err
		}
		return nil, WrapOCRError(op, err, "Vision API call failed")
	}

	log.Info().
		Int("bytes", len(body)).
		Dur("duration", elapsed).
		Msg("Vision API responded")

	if err := CheckResponse(body); err != nil {
		return nil, err
	}
	return body, nil
}

func (s *Service) observe(outcome string, elapsed time.Duration) {
	if s.config.Observer != nil {
		s.config.Observer.ObserveUpstream(s.annotator.Name(), outcome, elapsed)
	}
}

func outcome(err error) string {
	var upstreamErr *UpstreamError
	switch {
	case err == nil:
		return "ok"
	case errors.As(err, &upstreamErr):
		return "upstream_error"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	default:
		return "failed"
	}
}
