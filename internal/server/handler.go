package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"runtime/debug"
	"sort"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"visionproxy/internal/ocr"
)

// Processor runs the OCR part of the pipeline for one image.
type Processor interface {
	Process(ctx context.Context, image string) ([]byte, error)
}

// RequestObserver counts finished requests by status.
type RequestObserver interface {
	ObserveRequest(status int)
}

// HandlerConfig holds everything the vision handler needs. It is read once at
// construction and never mutated.
type HandlerConfig struct {
	// APIKey is only checked for presence; the Processor owns the credential.
	APIKey string

	Processor Processor

	// MaxBodyBytes caps the inbound body. Zero disables the limit.
	MaxBodyBytes int64

	// Development adds a stack field to internal error responses.
	Development bool

	// DebugInfo attaches payload diagnostics to error responses.
	DebugInfo bool

	// Observer is optional.
	Observer RequestObserver

	Logger zerolog.Logger
}

// VisionHandler proxies a base64 image to the OCR provider.
type VisionHandler struct {
	config HandlerConfig
}

// NewVisionHandler creates the /vision handler.
func NewVisionHandler(config HandlerConfig) *VisionHandler {
	return &VisionHandler{config: config}
}

// ServeHTTP implements http.Handler.
func (h *VisionHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
	defer h.observe(ww)

	log := h.config.Logger.With().
		Str("request_id", middleware.GetReqID(r.Context())).
		Str("method", r.Method).
		Logger()

	setCORSHeaders(ww.Header())

	if r.Method == http.MethodOptions {
		ww.WriteHeader(http.StatusOK)
		return
	}

	if r.Method != http.MethodPost {
		writeJSON(ww, http.StatusMethodNotAllowed, jsonObject{"error": "Method not allowed"})
		return
	}

	if h.config.APIKey == "" {
		log.Error().Msg("Vision API key not configured")
		writeJSON(ww, http.StatusInternalServerError, jsonObject{
			"error": ocr.ErrMissingAPIKey.Error(),
			"hint":  "Set GOOGLE_VISION_API_KEY in the environment or in a .env file",
		})
		return
	}

	defer func() {
		if rec := recover(); rec != nil {
			log.Error().
				Interface("panic", rec).
				Bytes("stack", debug.Stack()).
				Msg("Recovered from panic")
			if ww.Status() != 0 {
				return
			}
			h.writeInternalError(ww, fmt.Sprint(rec))
		}
	}()

	log.Debug().
		Int64("content_length", r.ContentLength).
		Msg("Request received")

	h.serveImage(ww, r, log)
}

func (h *VisionHandler) serveImage(w http.ResponseWriter, r *http.Request, log zerolog.Logger) {
	body := r.Body
	if h.config.MaxBodyBytes > 0 {
		body = http.MaxBytesReader(w, r.Body, h.config.MaxBodyBytes)
	}

	raw, err := io.ReadAll(body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			log.Warn().Int64("limit", tooLarge.Limit).Msg("Request body too large")
			writeJSON(w, http.StatusRequestEntityTooLarge, jsonObject{
				"error": fmt.Sprintf("Body exceeded %s limit", formatLimit(tooLarge.Limit)),
			})
			return
		}
		log.Error().Err(err).Msg("Failed to read request body")
		h.writeInternalError(w, err.Error())
		return
	}

	if len(bytes.TrimSpace(raw)) == 0 {
		writeJSON(w, http.StatusBadRequest, jsonObject{"error": "No body received"})
		return
	}

	var decoded any
	if err := json.Unmarshal(raw, &decoded); err != nil {
		log.Warn().Err(err).Msg("Request body is not valid JSON")
		writeJSON(w, http.StatusBadRequest, jsonObject{"error": "Invalid JSON"})
		return
	}
	if decoded == nil {
		writeJSON(w, http.StatusBadRequest, jsonObject{"error": "No body received"})
		return
	}

	fields, _ := decoded.(map[string]any)
	image, err := ocr.ImageField(fields)
	switch {
	case errors.Is(err, ocr.ErrNoImage):
		writeJSON(w, http.StatusBadRequest, jsonObject{
			"error":    "No image in body",
			"received": sortedKeys(fields),
		})
		return
	case errors.Is(err, ocr.ErrInvalidImageType):
		writeJSON(w, http.StatusBadRequest, jsonObject{"error": "Image must be a base64 string"})
		return
	}

	// The upstream call runs to completion even if the caller goes away.
	result, err := h.config.Processor.Process(context.WithoutCancel(r.Context()), image)
	if err != nil {
		h.writeProcessError(w, err, image, log)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(result)
}

// writeProcessError maps an error from the OCR pipeline to its response.
func (h *VisionHandler) writeProcessError(w http.ResponseWriter, err error, image string, log zerolog.Logger) {
	var (
		validationErr *ocr.ValidationError
		upstreamErr   *ocr.UpstreamError
		providerErr   *ocr.ProviderError
	)

	status := http.StatusBadRequest
	var resp jsonObject

	switch {
	case errors.As(err, &validationErr):
		resp = jsonObject{"error": "Invalid base64 format", "sample": validationErr.Sample}
	case errors.As(err, &upstreamErr):
		status = upstreamErr.StatusCode
		resp = jsonObject{
			"error":   ocr.ErrUpstream.Error(),
			"status":  upstreamErr.StatusCode,
			"details": upstreamErr.Body,
		}
	case errors.As(err, &providerErr):
		resp = jsonObject{"error": providerErr.Error()}
		if providerErr.Code != nil {
			resp["code"] = providerErr.Code
		}
	case errors.Is(err, ocr.ErrEmptyResponse):
		resp = jsonObject{"error": "Empty response from provider"}
	case errors.Is(err, context.DeadlineExceeded):
		status = http.StatusGatewayTimeout
		resp = jsonObject{"error": "Vision API request timed out"}
	default:
		log.Error().Err(err).Msg("Request failed")
		h.writeInternalError(w, err.Error())
		return
	}

	log.Warn().Err(err).Int("status", status).Msg("Request rejected")
	if h.config.DebugInfo {
		resp["_debug"] = ocr.Diagnose(image)
	}
	writeJSON(w, status, resp)
}

func (h *VisionHandler) writeInternalError(w http.ResponseWriter, message string) {
	if message == "" {
		message = "Internal server error"
	}
	resp := jsonObject{"error": message}
	if h.config.Development {
		resp["stack"] = string(debug.Stack())
	}
	writeJSON(w, http.StatusInternalServerError, resp)
}

func (h *VisionHandler) observe(ww middleware.WrapResponseWriter) {
	if h.config.Observer == nil {
		return
	}
	status := ww.Status()
	if status == 0 {
		status = http.StatusOK
	}
	h.config.Observer.ObserveRequest(status)
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func formatLimit(limit int64) string {
	if limit >= 1<<20 && limit%(1<<20) == 0 {
		return fmt.Sprintf("%dmb", limit>>20)
	}
	return fmt.Sprintf("%d bytes", limit)
}
