package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ternarybob/newswire/internal/models"
)

type stubFinder struct {
	queries   []string
	candidate *models.ImageCandidate
	err       error
}

func (f *stubFinder) FindCandidate(_ context.Context, query string) (*models.ImageCandidate, error) {
	f.queries = append(f.queries, query)
	return f.candidate, f.err
}

func TestFallbackImageReturnsCandidate(t *testing.T) {
	finder := &stubFinder{candidate: &models.ImageCandidate{
		URL:   "https://img.example.com/wide.jpg",
		Width: 1200,
	}}
	h := NewImageHandler(finder)

	req := httptest.NewRequest("GET", "/api/fallback-image?topic=Cricket+Final&category=Sports", nil)
	rec := httptest.NewRecorder()
	h.FallbackImageHandler(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, finder.queries, 1)
	assert.Equal(t, "cricket final sports", finder.queries[0])

	var got models.ImageCandidate
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, "https://img.example.com/wide.jpg", got.URL)
}

func TestFallbackImageAcceptsTitleAlias(t *testing.T) {
	finder := &stubFinder{candidate: &models.ImageCandidate{URL: "https://img.example.com/a.jpg"}}
	h := NewImageHandler(finder)

	req := httptest.NewRequest("GET", "/api/fallback-image?title=Budget+2026", nil)
	rec := httptest.NewRecorder()
	h.FallbackImageHandler(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, finder.queries, 1)
	assert.Equal(t, "budget 2026", finder.queries[0])
}

func TestFallbackImageRequiresTopic(t *testing.T) {
	h := NewImageHandler(&stubFinder{})

	req := httptest.NewRequest("GET", "/api/fallback-image", nil)
	rec := httptest.NewRecorder()
	h.FallbackImageHandler(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestFallbackImageNotFound(t *testing.T) {
	h := NewImageHandler(&stubFinder{err: errors.New("no candidates")})

	req := httptest.NewRequest("GET", "/api/fallback-image?topic=obscure", nil)
	rec := httptest.NewRecorder()
	h.FallbackImageHandler(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}
