package ocr

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"google.golang.org/api/googleapi"
	vision "google.golang.org/api/vision/v1"
)

const (
	// FeatureTextDetection and FeatureDocumentTextDetection are requested for every image.
	FeatureTextDetection         = "TEXT_DETECTION"
	FeatureDocumentTextDetection = "DOCUMENT_TEXT_DETECTION"
)

// RESTAnnotator implements Annotator against the Vision REST API using an API key.
type RESTAnnotator struct {
	endpoint string
	apiKey   string
	client   *http.Client
}

// NewRESTAnnotator creates an annotator posting to endpoint, typically
// https://vision.googleapis.com/v1/images:annotate. A nil client uses
// http.DefaultClient.
func NewRESTAnnotator(endpoint, apiKey string, client *http.Client) *RESTAnnotator {
	if client == nil {
		client = http.DefaultClient
	}
	return &RESTAnnotator{
		endpoint: endpoint,
		apiKey:   apiKey,
		client:   client,
	}
}

// Name implements Annotator.
func (a *RESTAnnotator) Name() string {
	return "rest"
}

// NewAnnotateRequest builds the single-image request sent to images:annotate.
func NewAnnotateRequest(content string) *vision.BatchAnnotateImagesRequest {
	return &vision.BatchAnnotateImagesRequest{
		Requests: []*vision.AnnotateImageRequest{
			{
				Image: &vision.Image{Content: content},
				Features: []*vision.Feature{
					{Type: FeatureTextDetection},
					{Type: FeatureDocumentTextDetection},
				},
			},
		},
	}
}

// Annotate implements Annotator.
func (a *RESTAnnotator) Annotate(ctx context.Context, content string) ([]byte, error) {
	const op = "Annotate"

	payload, err := json.Marshal(NewAnnotateRequest(content))
	if err != nil {
		return nil, WrapOCRError(op, err, "failed to encode request")
	}

	target, err := a.requestURL()
	if err != nil {
		return nil, WrapOCRError(op, err, "invalid Vision endpoint")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(payload))
	if err != nil {
		return nil, WrapOCRError(op, err, "failed to create request")
	}
	req.Header.Set("Content-Type", "application/json")

	res, err := a.client.Do(req)
	if err != nil {
		return nil, WrapOCRError(op, err, "Vision API request failed")
	}
	defer res.Body.Close()

	if err := googleapi.CheckResponse(res); err != nil {
		var apiErr *googleapi.Error
		if errors.As(err, &apiErr) {
			// apiErr.Code is taken from the JSON error body when present, not the response status.
			return nil, &UpstreamError{StatusCode: res.StatusCode, Body: apiErr.Body}
		}
		return nil, WrapOCRError(op, err, fmt.Sprintf("status %d", res.StatusCode))
	}

	body, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, WrapOCRError(op, err, "failed to read response")
	}
	return body, nil
}

func (a *RESTAnnotator) requestURL() (string, error) {
	u, err := url.Parse(a.endpoint)
	if err != nil {
		return "", err
	}
	q := u.Query()
	q.Set("key", a.apiKey)
	u.RawQuery = q.Encode()
	return u.String(), nil
}
