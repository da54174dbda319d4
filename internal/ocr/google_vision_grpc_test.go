package ocr

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"testing"

	"cloud.google.com/go/vision/v2/apiv1/visionpb"
	gax "github.com/googleapis/gax-go/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

type fakeImageAnnotator struct {
	requests []*visionpb.BatchAnnotateImagesRequest
	resp     *visionpb.BatchAnnotateImagesResponse
	err      error
	closed   bool
}

func (f *fakeImageAnnotator) BatchAnnotateImages(_ context.Context, req *visionpb.BatchAnnotateImagesRequest, _ ...gax.CallOption) (*visionpb.BatchAnnotateImagesResponse, error) {
	f.requests = append(f.requests, req)
	return f.resp, f.err
}

func (f *fakeImageAnnotator) Close() error {
	f.closed = true
	return nil
}

func TestGRPCAnnotator_Success(t *testing.T) {
	fake := &fakeImageAnnotator{
		resp: &visionpb.BatchAnnotateImagesResponse{
			Responses: []*visionpb.AnnotateImageResponse{
				{TextAnnotations: []*visionpb.EntityAnnotation{{Description: "X"}}},
			},
		},
	}
	a := newGRPCAnnotatorWithClient(fake)

	body, err := a.Annotate(context.Background(), "QUJD")
	require.NoError(t, err)

	require.Len(t, fake.requests, 1)
	req := fake.requests[0].GetRequests()[0]
	assert.Equal(t, []byte("ABC"), req.GetImage().GetContent())
	require.Len(t, req.GetFeatures(), 2)
	assert.Equal(t, visionpb.Feature_TEXT_DETECTION, req.GetFeatures()[0].GetType())
	assert.Equal(t, visionpb.Feature_DOCUMENT_TEXT_DETECTION, req.GetFeatures()[1].GetType())

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(body, &decoded))
	assert.Contains(t, decoded, "responses")
	assert.NoError(t, CheckResponse(body))

	text, err := ExtractText(body)
	require.NoError(t, err)
	assert.Equal(t, "X", text)
}

func TestGRPCAnnotator_StatusError(t *testing.T) {
	fake := &fakeImageAnnotator{err: status.Error(codes.Unavailable, "try later")}
	a := newGRPCAnnotatorWithClient(fake)

	_, err := a.Annotate(context.Background(), "QUJD")

	var ue *UpstreamError
	require.True(t, errors.As(err, &ue))
	assert.Equal(t, http.StatusServiceUnavailable, ue.StatusCode)
	assert.Equal(t, "try later", ue.Body)
}

func TestGRPCAnnotator_InvalidBase64(t *testing.T) {
	fake := &fakeImageAnnotator{}
	a := newGRPCAnnotatorWithClient(fake)

	_, err := a.Annotate(context.Background(), "QUJD=====")
	assert.ErrorIs(t, err, ErrInvalidBase64)
	assert.Empty(t, fake.requests)
}

func TestGRPCAnnotator_Close(t *testing.T) {
	fake := &fakeImageAnnotator{}
	a := newGRPCAnnotatorWithClient(fake)

	require.NoError(t, a.Close())
	assert.True(t, fake.closed)
	assert.Equal(t, "grpc", a.Name())
}

func TestNewGRPCAnnotator_RequiresAPIKey(t *testing.T) {
	_, err := NewGRPCAnnotator(context.Background(), "")
	assert.ErrorIs(t, err, ErrMissingAPIKey)
}

func TestHTTPStatusFromCode(t *testing.T) {
	tests := map[codes.Code]int{
		codes.OK:                http.StatusOK,
		codes.InvalidArgument:   http.StatusBadRequest,
		codes.PermissionDenied:  http.StatusForbidden,
		codes.Unauthenticated:   http.StatusUnauthorized,
		codes.ResourceExhausted: http.StatusTooManyRequests,
		codes.DeadlineExceeded:  http.StatusGatewayTimeout,
		codes.Internal:          http.StatusInternalServerError,
		codes.DataLoss:          http.StatusInternalServerError,
	}
	for code, want := range tests {
		assert.Equal(t, want, httpStatusFromCode(code), code.String())
	}
}
