package cmd

import (
	"context"
	"fmt"
	"net/http"

	"visionproxy/internal/config"
	"visionproxy/internal/ocr"
)

// newAnnotator builds the backend selected by VISION_BACKEND. The returned
// close function releases backend resources and is never nil.
func newAnnotator(ctx context.Context, cfg *config.Config) (ocr.Annotator, func() error, error) {
	switch cfg.VisionBackend {
	case config.BackendGRPC:
		a, err := ocr.NewGRPCAnnotator(ctx, cfg.VisionAPIKey)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create gRPC Vision client: %w", err)
		}
		return a, a.Close, nil
	default:
		a := ocr.NewRESTAnnotator(cfg.VisionEndpoint, cfg.VisionAPIKey, &http.Client{})
		return a, func() error { return nil }, nil
	}
}
