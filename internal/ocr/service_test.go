package ocr

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubAnnotator struct {
	mu       sync.Mutex
	contents []string
	body     []byte
	err      error
	delay    time.Duration
}

func (s *stubAnnotator) Annotate(ctx context.Context, content string) ([]byte, error) {
	s.mu.Lock()
	s.contents = append(s.contents, content)
	s.mu.Unlock()

	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return s.body, s.err
}

func (s *stubAnnotator) Name() string { return "stub" }

type observation struct {
	backend string
	outcome string
}

type recordingObserver struct {
	seen []observation
}

func (r *recordingObserver) ObserveUpstream(backend, outcome string, _ time.Duration) {
	r.seen = append(r.seen, observation{backend, outcome})
}

func newTestService(a Annotator, obs UpstreamObserver) *Service {
	return NewService(a, ServiceConfig{
		Timeout:  time.Second,
		Observer: obs,
		Logger:   zerolog.Nop(),
	})
}

func TestProcess_ForwardsCleanPayload(t *testing.T) {
	stub := &stubAnnotator{body: []byte(`{"responses":[{"textAnnotations":[{"description":"X"}]}]}`)}
	obs := &recordingObserver{}

	body, err := newTestService(stub, obs).Process(context.Background(), "data:image/png;base64,QUJD")
	require.NoError(t, err)

	assert.Equal(t, []string{"QUJD"}, stub.contents)
	assert.Equal(t, stub.body, body)
	assert.Equal(t, []observation{{"stub", "ok"}}, obs.seen)
}

func TestProcess_InvalidBase64SkipsUpstream(t *testing.T) {
	stub := &stubAnnotator{}
	obs := &recordingObserver{}

	_, err := newTestService(stub, obs).Process(context.Background(), "not-base64!!")

	assert.ErrorIs(t, err, ErrInvalidBase64)
	assert.Empty(t, stub.contents)
	assert.Empty(t, obs.seen)
}

func TestProcess_UpstreamErrorPassesThrough(t *testing.T) {
	stub := &stubAnnotator{err: &UpstreamError{StatusCode: 503, Body: "down"}}
	obs := &recordingObserver{}

	_, err := newTestService(stub, obs).Process(context.Background(), "QUJD")

	var ue *UpstreamError
	require.True(t, errors.As(err, &ue))
	assert.Equal(t, 503, ue.StatusCode)
	assert.Equal(t, []observation{{"stub", "upstream_error"}}, obs.seen)
}

func TestProcess_ProviderError(t *testing.T) {
	stub := &stubAnnotator{body: []byte(`{"error":{"message":"Bad image data","code":3}}`)}

	_, err := newTestService(stub, nil).Process(context.Background(), "QUJD")

	var pe *ProviderError
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, "Bad image data", pe.Message)
	assert.Len(t, stub.contents, 1)
}

func TestProcess_EmptyResponse(t *testing.T) {
	stub := &stubAnnotator{body: []byte(`{"responses":[]}`)}

	_, err := newTestService(stub, nil).Process(context.Background(), "QUJD")
	assert.ErrorIs(t, err, ErrEmptyResponse)
}

func TestProcess_Timeout(t *testing.T) {
	stub := &stubAnnotator{delay: time.Second}
	obs := &recordingObserver{}
	svc := NewService(stub, ServiceConfig{Timeout: 10 * time.Millisecond, Observer: obs, Logger: zerolog.Nop()})

	_, err := svc.Process(context.Background(), "QUJD")

	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, []observation{{"stub", "timeout"}}, obs.seen)
}

func TestProcess_TransportFailureIsWrapped(t *testing.T) {
	stub := &stubAnnotator{err: errors.New("connection reset")}

	_, err := newTestService(stub, nil).Process(context.Background(), "QUJD")

	var ocrErr *OCRError
	require.True(t, errors.As(err, &ocrErr))
	assert.Equal(t, "Process", ocrErr.Op)
	assert.Contains(t, err.Error(), "connection reset")
}
