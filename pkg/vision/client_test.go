package vision

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtract_Success(t *testing.T) {
	image := []byte("fake png bytes")
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/extract", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		got, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		assert.Equal(t, image, got)

		_ = json.NewEncoder(w).Encode(map[string]any{
			"success":    true,
			"confidence": 0.96,
			"players": []map[string]any{
				{"name": "Shadow", "placement": 1},
				{"name": "BlazeKing", "placement": 2},
			},
		})
	}))
	defer ts.Close()

	c := NewClient("test-key", WithBaseURL(ts.URL))
	result, err := c.Extract(context.Background(), image)
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.InDelta(t, 0.96, result.Confidence, 1e-9)
	require.Len(t, result.Players, 2)
	assert.Equal(t, "Shadow", result.Players[0].Name)
	assert.Equal(t, 1, result.Players[0].Placement)
}

func TestExtract_UnreadableImageIsAResultNotAnError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"success": false,
			"error":   "no standings table detected",
		})
	}))
	defer ts.Close()

	c := NewClient("test-key", WithBaseURL(ts.URL))
	result, err := c.Extract(context.Background(), []byte("blurry"))
	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.Equal(t, "no standings table detected", result.Error)
	assert.Empty(t, result.Players)
}

func TestExtract_RetriesTransientFailures(t *testing.T) {
	var calls atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"success": true, "confidence": 0.9})
	}))
	defer ts.Close()

	c := NewClient("test-key", WithBaseURL(ts.URL), WithRateLimit(1000, 1000))
	result, err := c.Extract(context.Background(), []byte("img"))
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, int32(2), calls.Load())
}

func TestExtract_NonRetryableStatus(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad image payload", http.StatusBadRequest)
	}))
	defer ts.Close()

	c := NewClient("test-key", WithBaseURL(ts.URL))
	_, err := c.Extract(context.Background(), []byte("img"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unexpected status 400")
}

func TestExtract_EmptyPayload(t *testing.T) {
	c := NewClient("test-key")
	_, err := c.Extract(context.Background(), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "empty image payload")
}
