package images

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ternarybob/newswire/internal/common"
)

func validatorServer(t *testing.T, contentType string, contentLength int64, status int) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodHead, r.Method)
		w.Header().Set("Content-Type", contentType)
		if contentLength >= 0 {
			w.Header().Set("Content-Length", strconv.FormatInt(contentLength, 10))
		}
		w.WriteHeader(status)
	}))
	t.Cleanup(server.Close)
	return server
}

func TestValidateAcceptsLargeImage(t *testing.T) {
	server := validatorServer(t, "image/jpeg", 120*1024, http.StatusOK)
	v := NewValidator(common.CrawlerConfig{}, 40*1024)
	assert.NoError(t, v.Validate(context.Background(), server.URL))
}

func TestValidateRejectsUndersizedImage(t *testing.T) {
	server := validatorServer(t, "image/jpeg", 10*1024, http.StatusOK)
	v := NewValidator(common.CrawlerConfig{}, 40*1024)
	err := v.Validate(context.Background(), server.URL)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "byte floor")
}

func TestValidateRejectsNonImageContentType(t *testing.T) {
	server := validatorServer(t, "text/html", 120*1024, http.StatusOK)
	v := NewValidator(common.CrawlerConfig{}, 0)
	assert.Error(t, v.Validate(context.Background(), server.URL))
}

func TestValidateRejectsSVG(t *testing.T) {
	server := validatorServer(t, "image/svg+xml", 120*1024, http.StatusOK)
	v := NewValidator(common.CrawlerConfig{}, 0)
	assert.Error(t, v.Validate(context.Background(), server.URL))
}

func TestValidateRejectsNotFound(t *testing.T) {
	server := validatorServer(t, "image/jpeg", 120*1024, http.StatusNotFound)
	v := NewValidator(common.CrawlerConfig{}, 0)
	assert.Error(t, v.Validate(context.Background(), server.URL))
}

func TestValidatePassesMissingContentLength(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/png")
	}))
	defer server.Close()

	v := NewValidator(common.CrawlerConfig{}, 40*1024)
	assert.NoError(t, v.Validate(context.Background(), server.URL))
}
