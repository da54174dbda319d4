package ocr

import (
	"context"
	"encoding/base64"
	"net/http"

	vision "cloud.google.com/go/vision/v2/apiv1"
	"cloud.google.com/go/vision/v2/apiv1/visionpb"
	gax "github.com/googleapis/gax-go/v2"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/encoding/protojson"
)

// imageAnnotatorClient is the subset of vision.ImageAnnotatorClient used here.
type imageAnnotatorClient interface {
	BatchAnnotateImages(ctx context.Context, req *visionpb.BatchAnnotateImagesRequest, opts ...gax.CallOption) (*visionpb.BatchAnnotateImagesResponse, error)
	Close() error
}

// GRPCAnnotator implements Annotator with the Cloud Vision gRPC client.
// Responses are rendered in the same JSON shape as the REST API.
type GRPCAnnotator struct {
	client imageAnnotatorClient
}

// NewGRPCAnnotator creates a gRPC-backed annotator authenticated with apiKey.
func NewGRPCAnnotator(ctx context.Context, apiKey string, opts ...option.ClientOption) (*GRPCAnnotator, error) {
	const op = "NewGRPCAnnotator"

	if apiKey == "" {
		return nil, NewOCRError(op, ErrMissingAPIKey, "")
	}

	client, err := vision.NewImageAnnotatorClient(ctx, append([]option.ClientOption{option.WithAPIKey(apiKey)}, opts...)...)
	if err != nil {
		return nil, WrapOCRError(op, err, "failed to create image annotator client")
	}
	return &GRPCAnnotator{client: client}, nil
}

func newGRPCAnnotatorWithClient(client imageAnnotatorClient) *GRPCAnnotator {
	return &GRPCAnnotator{client: client}
}

// Name implements Annotator.
func (a *GRPCAnnotator) Name() string {
	return "grpc"
}

// Annotate implements Annotator. The payload is decoded locally because the
// gRPC API carries raw image bytes.
func (a *GRPCAnnotator) Annotate(ctx context.Context, content string) ([]byte, error) {
	const op = "Annotate"

	img, err := decodeBase64(content)
	if err != nil {
		return nil, &ValidationError{Field: "image", Sample: Sample(content), Err: ErrInvalidBase64}
	}

	req := &visionpb.BatchAnnotateImagesRequest{
		Requests: []*visionpb.AnnotateImageRequest{
			{
				Image: &visionpb.Image{Content: img},
				Features: []*visionpb.Feature{
					{Type: visionpb.Feature_TEXT_DETECTION},
					{Type: visionpb.Feature_DOCUMENT_TEXT_DETECTION},
				},
			},
		},
	}

	resp, err := a.client.BatchAnnotateImages(ctx, req)
	if err != nil {
		if st, ok := status.FromError(err); ok {
			return nil, &UpstreamError{
				StatusCode: httpStatusFromCode(st.Code()),
				Body:       st.Message(),
			}
		}
		return nil, WrapOCRError(op, err, "Vision API call failed")
	}

	body, err := protojson.Marshal(resp)
	if err != nil {
		return nil, WrapOCRError(op, err, "failed to encode response")
	}
	return body, nil
}

// Close closes the underlying Vision client.
func (a *GRPCAnnotator) Close() error {
	if a.client != nil {
		return a.client.Close()
	}
	return nil
}

func decodeBase64(content string) ([]byte, error) {
	img, err := base64.StdEncoding.DecodeString(content)
	if err == nil {
		return img, nil
	}
	return base64.RawStdEncoding.DecodeString(content)
}

// httpStatusFromCode maps a gRPC status code to the HTTP status the REST API
// would have answered with.
func httpStatusFromCode(code codes.Code) int {
	switch code {
	case codes.OK:
		return http.StatusOK
	case codes.Canceled:
		return 499
	case codes.InvalidArgument, codes.FailedPrecondition, codes.OutOfRange:
		return http.StatusBadRequest
	case codes.DeadlineExceeded:
		return http.StatusGatewayTimeout
	case codes.NotFound:
		return http.StatusNotFound
	case codes.AlreadyExists, codes.Aborted:
		return http.StatusConflict
	case codes.PermissionDenied:
		return http.StatusForbidden
	case codes.Unauthenticated:
		return http.StatusUnauthorized
	case codes.ResourceExhausted:
		return http.StatusTooManyRequests
	case codes.Unimplemented:
		return http.StatusNotImplemented
	case codes.Unavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
