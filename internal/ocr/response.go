package ocr

import (
	"bytes"
	"encoding/json"
	"strings"
)

type annotateEnvelope struct {
	Error     json.RawMessage `json:"error"`
	Responses json.RawMessage `json:"responses"`
}

type providerErrorBody struct {
	Message string          `json:"message"`
	Code    json.RawMessage `json:"code"`
}

// CheckResponse classifies a decoded Vision API body. It returns
// *ProviderError when the body carries an error object and ErrEmptyResponse
// when there is no non-empty responses array.
func CheckResponse(body []byte) error {
	var envelope annotateEnvelope
	if err := json.Unmarshal(body, &envelope); err != nil {
		return WrapOCRError("CheckResponse", err, "decode Vision API response")
	}

	if !isFalsy(envelope.Error) {
		var pe providerErrorBody
		// A non-object error still counts as a provider error, just without details.
		_ = json.Unmarshal(envelope.Error, &pe)
		return &ProviderError{Message: pe.Message, Code: pe.Code}
	}

	var responses []json.RawMessage
	if err := json.Unmarshal(envelope.Responses, &responses); err != nil || len(responses) == 0 {
		return ErrEmptyResponse
	}
	return nil
}

// isFalsy reports whether raw is absent or one of null, false, 0 or "".
func isFalsy(raw json.RawMessage) bool {
	switch string(bytes.TrimSpace(raw)) {
	case "", "null", "false", "0", `""`:
		return true
	}
	return false
}

type textResponse struct {
	Responses []struct {
		FullTextAnnotation *struct {
			Text string `json:"text"`
		} `json:"fullTextAnnotation"`
		TextAnnotations []struct {
			Description string `json:"description"`
		} `json:"textAnnotations"`
	} `json:"responses"`
}

// ExtractText returns the text detected in the first response of body. It
// prefers the document text annotation and falls back to the first text
// annotation.
func ExtractText(body []byte) (string, error) {
	var resp textResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", WrapOCRError("ExtractText", err, "decode Vision API response")
	}
	if len(resp.Responses) == 0 {
		return "", ErrEmptyResponse
	}

	first := resp.Responses[0]
	if first.FullTextAnnotation != nil && strings.TrimSpace(first.FullTextAnnotation.Text) != "" {
		return first.FullTextAnnotation.Text, nil
	}
	if len(first.TextAnnotations) > 0 {
		return first.TextAnnotations[0].Description, nil
	}
	return "", nil
}
