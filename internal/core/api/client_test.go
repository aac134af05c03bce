package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kamrah/camsync/internal/core/domain"
	"github.com/kamrah/camsync/internal/core/observability/log"
)

func newTestClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(Config{BaseURL: srv.URL}, log.NewNop())
}

func TestToggleFavoriteSendsExplicitDesiredValue(t *testing.T) {
	var got struct {
		IsFavorite bool `json:"isFavorite"`
	}
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/cameras/cam-1/favorite", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_ = json.NewEncoder(w).Encode(domain.Camera{ID: "cam-1", IsFavorite: got.IsFavorite})
	}))

	cam, err := client.ToggleFavorite(context.Background(), "cam-1", true)
	require.NoError(t, err)
	assert.True(t, got.IsFavorite)
	assert.True(t, cam.IsFavorite)
}

func TestUpdateCameraSettingsWrapsPatch(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/cameras/cam-1/control", r.URL.Path)
		var body map[string]json.RawMessage
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Contains(t, body, "settings")
		_ = json.NewEncoder(w).Encode(domain.Camera{ID: "cam-1"})
	}))

	brightness := 80
	_, err := client.UpdateCameraSettings(context.Background(), "cam-1", domain.CameraSettingsPatch{Brightness: &brightness})
	require.NoError(t, err)
}

func TestBearerTokenAttached(t *testing.T) {
	var auth string
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		_ = json.NewEncoder(w).Encode([]domain.Camera{})
	}))
	client.SetToken("secret-token")

	_, err := client.Cameras(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Bearer secret-token", auth)
}

func TestErrorBodyDecoded(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Request-Id", "req-42")
		w.WriteHeader(http.StatusNotFound)
		_ = json.NewEncoder(w).Encode(map[string]string{"message": "camera not found"})
	}))

	_, err := client.Camera(context.Background(), "nope")
	require.Error(t, err)

	var apiErr *Error
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, 404, apiErr.Status)
	assert.Equal(t, "camera not found", apiErr.Message)
	assert.Equal(t, "req-42", apiErr.RequestID)
	assert.False(t, apiErr.Retryable())
}

func TestErrorFallbackMessage(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte("not json"))
	}))

	err := client.Health(context.Background())
	var apiErr *Error
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, 502, apiErr.Status)
	assert.NotEmpty(t, apiErr.Message)
}

func TestRetryabilityClassification(t *testing.T) {
	cases := []struct {
		status    int
		retryable bool
	}{
		{400, false},
		{401, false},
		{403, false},
		{404, false},
		{408, true},
		{429, true},
		{500, true},
		{503, true},
	}
	for _, tc := range cases {
		err := &Error{Status: tc.status}
		assert.Equal(t, tc.retryable, IsRetryable(err), "status %d", tc.status)
	}

	// Transport failures are always retryable
	client := NewClient(Config{BaseURL: "http://127.0.0.1:1"}, log.NewNop())
	err := client.Health(context.Background())
	require.Error(t, err)
	assert.True(t, IsRetryable(err))

	assert.False(t, IsRetryable(nil))
}

func TestAuthFailureClassification(t *testing.T) {
	assert.True(t, IsAuthFailure(&Error{Status: 401}))
	assert.True(t, IsAuthFailure(&Error{Status: 403}))
	assert.False(t, IsAuthFailure(&Error{Status: 500}))
	assert.False(t, IsAuthFailure(nil))
}
