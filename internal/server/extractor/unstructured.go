// Package extractor turns uploaded documents into plain text by calling an
// Unstructured-compatible partition endpoint. The service returns a list of
// elements; their texts are concatenated in order.
package extractor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
)

type element struct {
	Text string `json:"text"`
}

// HTTPExtractor is the production document-text extractor.
type HTTPExtractor struct {
	endpoint string
	apiKey   string
	client   *http.Client
}

// NewHTTPExtractor builds an extractor for the given partition endpoint.
func NewHTTPExtractor(endpoint, apiKey string) *HTTPExtractor {
	return &HTTPExtractor{
		endpoint: endpoint,
		apiKey:   apiKey,
		client:   &http.Client{},
	}
}

// Extract sends the file for partitioning and returns its concatenated text.
func (e *HTTPExtractor) Extract(ctx context.Context, filename string, data []byte) (string, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("files", filename)
	if err != nil {
		return "", err
	}
	if _, err := part.Write(data); err != nil {
		return "", err
	}
	if err := mw.Close(); err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.endpoint, &buf)
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Accept", "application/json")
	if e.apiKey != "" {
		req.Header.Set("unstructured-api-key", e.apiKey)
	}

	resp, err := e.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("extraction failed: status %d", resp.StatusCode)
	}

	var elements []element
	if err := json.Unmarshal(body, &elements); err != nil {
		return "", fmt.Errorf("extraction response decode: %w", err)
	}

	var sb strings.Builder
	for _, el := range elements {
		sb.WriteString(el.Text)
	}
	return sb.String(), nil
}
