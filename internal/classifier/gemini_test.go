package classifier

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/paper-harvester/internal/harvest"
)

func TestGeminiGenerate(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1beta/models/gemini-1.5-flash:generateContent", r.URL.Path)
		assert.Equal(t, "secret", r.Header.Get("x-goog-api-key"))

		var req geminiRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		if assert.Len(t, req.Contents, 1) && assert.Len(t, req.Contents[0].Parts, 1) {
			assert.Equal(t, "classify me", req.Contents[0].Parts[0].Text)
		}

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"candidates":[{"content":{"parts":[{"text":"Computer "},{"text":"Vision\n"}]}}]}`))
	}))
	defer srv.Close()

	g, err := NewGemini(GeminiConfig{Endpoint: srv.URL + "/", Model: "gemini-1.5-flash", APIKey: "secret"})
	require.NoError(t, err)

	reply, err := g.Generate(context.Background(), "classify me")
	require.NoError(t, err)
	assert.Equal(t, "Computer Vision", reply)
}

func TestGeminiRateLimit(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, `{"error":{"code":429,"status":"RESOURCE_EXHAUSTED"}}`, http.StatusTooManyRequests)
	}))
	defer srv.Close()

	g, err := NewGemini(GeminiConfig{Endpoint: srv.URL, Model: "m", APIKey: "k"})
	require.NoError(t, err)

	_, err = g.Generate(context.Background(), "p")
	require.Error(t, err)
	assert.True(t, errors.Is(err, harvest.ErrRateLimited))
	assert.True(t, IsRateLimited(err))
}

func TestGeminiServerErrorIsNotRateLimit(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "internal", http.StatusInternalServerError)
	}))
	defer srv.Close()

	g, err := NewGemini(GeminiConfig{Endpoint: srv.URL, Model: "m", APIKey: "k"})
	require.NoError(t, err)

	_, err = g.Generate(context.Background(), "p")
	require.Error(t, err)
	assert.False(t, IsRateLimited(err))
	assert.True(t, errors.Is(err, harvest.ErrTransient))
}

func TestGeminiEmptyCandidates(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"candidates":[]}`))
	}))
	defer srv.Close()

	g, err := NewGemini(GeminiConfig{Endpoint: srv.URL, Model: "m", APIKey: "k"})
	require.NoError(t, err)

	reply, err := g.Generate(context.Background(), "p")
	require.NoError(t, err)
	assert.Empty(t, reply)
}

func TestNewGeminiValidates(t *testing.T) {
	t.Parallel()

	_, err := NewGemini(GeminiConfig{Endpoint: "https://x", Model: "m"})
	require.Error(t, err)
	_, err = NewGemini(GeminiConfig{Endpoint: "https://x", APIKey: "k"})
	require.Error(t, err)
	_, err = NewGemini(GeminiConfig{Endpoint: "not a url", Model: "m", APIKey: "k"})
	require.Error(t, err)
}
