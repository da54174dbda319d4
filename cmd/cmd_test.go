package cmd

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"visionproxy/internal/config"
	"visionproxy/internal/ocr"
)

func testConfig() *config.Config {
	return &config.Config{
		VisionEndpoint:  config.DefaultVisionEndpoint,
		VisionBackend:   config.BackendREST,
		UpstreamTimeout: time.Second,
		Port:            "0",
		MaxBodyBytes:    config.DefaultMaxBodyBytes,
		MetricsEnabled:  true,
		Environment:     config.EnvironmentProduction,
	}
}

func TestReadImageFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "img.png")
	require.NoError(t, os.WriteFile(path, []byte("ABC"), 0o600))

	data, err := readImageFile(path, 1024, zerolog.Nop())
	require.NoError(t, err)
	assert.Equal(t, []byte("ABC"), data)

	_, err = readImageFile(filepath.Join(dir, "missing.png"), 1024, zerolog.Nop())
	assert.ErrorContains(t, err, "not found")

	_, err = readImageFile(dir, 1024, zerolog.Nop())
	assert.ErrorContains(t, err, "not a regular file")

	empty := filepath.Join(dir, "empty.png")
	require.NoError(t, os.WriteFile(empty, nil, 0o600))
	_, err = readImageFile(empty, 1024, zerolog.Nop())
	assert.ErrorContains(t, err, "empty")

	_, err = readImageFile(path, 3, zerolog.Nop())
	assert.ErrorContains(t, err, "too large")
}

func TestFormatAnnotation(t *testing.T) {
	body := []byte(`{"responses":[{"textAnnotations":[{"description":"Total 12.50"}]}]}`)

	out, err := formatAnnotation(body, false)
	require.NoError(t, err)
	assert.Equal(t, "Total 12.50\n", string(out))

	out, err = formatAnnotation(body, true)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(out), "{\n  \"responses\""))
}

func TestHandleAnnotateError(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{context.DeadlineExceeded, "timed out"},
		{&ocr.UpstreamError{StatusCode: 403, Body: "denied"}, "status 403"},
		{&ocr.ProviderError{Message: "Bad image data"}, "Bad image data"},
		{ocr.ErrEmptyResponse, "no results"},
		{errors.New("boom"), "annotation failed: boom"},
	}
	for _, tt := range tests {
		assert.ErrorContains(t, handleAnnotateError(tt.err, zerolog.Nop()), tt.want)
	}
}

func TestNewAnnotator_REST(t *testing.T) {
	cfg := testConfig()
	cfg.VisionAPIKey = "k"

	a, closeFn, err := newAnnotator(context.Background(), cfg)
	require.NoError(t, err)
	assert.Equal(t, "rest", a.Name())
	assert.NoError(t, closeFn())
}

func TestBuildServer_WithoutAPIKey(t *testing.T) {
	srv, closeFn, err := buildServer(context.Background(), testConfig())
	require.NoError(t, err)
	defer closeFn()

	w := httptest.NewRecorder()
	srv.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/vision", strings.NewReader(`{"image":"QUJD"}`)))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Body.String(), "GOOGLE_VISION_API_KEY not configured")

	w = httptest.NewRecorder()
	srv.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestBuildServer_ForwardsToEndpoint(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "k", r.URL.Query().Get("key"))
		_, _ = w.Write([]byte(`{"responses":[{"textAnnotations":[{"description":"X"}]}]}`))
	}))
	defer upstream.Close()

	cfg := testConfig()
	cfg.VisionAPIKey = "k"
	cfg.VisionEndpoint = upstream.URL
	cfg.MetricsEnabled = false

	srv, closeFn, err := buildServer(context.Background(), cfg)
	require.NoError(t, err)
	defer closeFn()

	w := httptest.NewRecorder()
	srv.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/vision", strings.NewReader(`{"image":"QUJD"}`)))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"responses":[{"textAnnotations":[{"description":"X"}]}]}`, w.Body.String())

	w = httptest.NewRecorder()
	srv.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestRequireConfig(t *testing.T) {
	orig, origErr := appConfig, appConfigErr
	t.Cleanup(func() { appConfig, appConfigErr = orig, origErr })

	appConfig, appConfigErr = nil, errors.New("bad backend")
	_, err := requireConfig()
	assert.ErrorContains(t, err, "bad backend")

	appConfig, appConfigErr = testConfig(), nil
	cfg, err := requireConfig()
	require.NoError(t, err)
	assert.Equal(t, config.BackendREST, cfg.VisionBackend)
}
