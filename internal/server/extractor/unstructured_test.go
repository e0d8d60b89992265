package extractor

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPExtractor_Extract(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "secret", r.Header.Get("unstructured-api-key"))

		require.NoError(t, r.ParseMultipartForm(1<<20))
		file, header, err := r.FormFile("files")
		require.NoError(t, err)
		defer file.Close()
		assert.Equal(t, "report.pdf", header.Filename)

		_ = json.NewEncoder(w).Encode([]map[string]string{
			{"text": "First paragraph. "},
			{"text": "Second paragraph."},
		})
	}))
	defer ts.Close()

	e := NewHTTPExtractor(ts.URL, "secret")
	text, err := e.Extract(context.Background(), "report.pdf", []byte("%PDF-1.7"))
	require.NoError(t, err)
	assert.Equal(t, "First paragraph. Second paragraph.", text)
}

func TestHTTPExtractor_UpstreamError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer ts.Close()

	e := NewHTTPExtractor(ts.URL, "")
	_, err := e.Extract(context.Background(), "a.pdf", []byte("x"))
	assert.Error(t, err)
}
