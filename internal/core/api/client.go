// Package api wraps the fleet's REST command surface. Each command maps to
// exactly one HTTP call; responses are authoritative entity snapshots.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/kamrah/camsync/internal/core/domain"
	"github.com/kamrah/camsync/internal/core/observability/log"
)

type Config struct {
	BaseURL string
	Timeout time.Duration
}

func DefaultConfig() Config {
	return Config{
		BaseURL: "http://localhost:5000/api",
		Timeout: 10 * time.Second,
	}
}

type Client struct {
	config Config
	http   *http.Client
	logger log.Log

	mu    sync.RWMutex
	token string
}

func NewClient(config Config, logger log.Log) *Client {
	if config.Timeout <= 0 {
		config.Timeout = DefaultConfig().Timeout
	}
	return &Client{
		config: config,
		http:   &http.Client{Timeout: config.Timeout},
		logger: logger.With(log.String("component", "api")),
	}
}

// SetToken installs the bearer token used on every request.
func (c *Client) SetToken(token string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.token = token
}

func (c *Client) bearer() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

// Health probes the service; any transport or non-2xx failure means
// unreachable. Used by the connectivity monitor.
func (c *Client) Health(ctx context.Context) error {
	return c.call(ctx, http.MethodGet, "/health", nil, nil)
}

func (c *Client) Cameras(ctx context.Context) ([]domain.Camera, error) {
	var cameras []domain.Camera
	if err := c.call(ctx, http.MethodGet, "/cameras", nil, &cameras); err != nil {
		return nil, err
	}
	return cameras, nil
}

func (c *Client) Camera(ctx context.Context, id string) (domain.Camera, error) {
	var cam domain.Camera
	err := c.call(ctx, http.MethodGet, "/cameras/"+id, nil, &cam)
	return cam, err
}

func (c *Client) Tasks(ctx context.Context) ([]domain.Task, error) {
	var tasks []domain.Task
	if err := c.call(ctx, http.MethodGet, "/tasks", nil, &tasks); err != nil {
		return nil, err
	}
	return tasks, nil
}

// UpdateCameraSettings pushes a partial settings change and returns the
// server's authoritative snapshot.
func (c *Client) UpdateCameraSettings(ctx context.Context, id string, patch domain.CameraSettingsPatch) (domain.Camera, error) {
	body := struct {
		Settings domain.CameraSettingsPatch `json:"settings"`
	}{Settings: patch}

	var cam domain.Camera
	err := c.call(ctx, http.MethodPost, "/cameras/"+id+"/control", body, &cam)
	return cam, err
}

func (c *Client) ToggleRecording(ctx context.Context, id string, record bool) (domain.Camera, error) {
	body := struct {
		Record bool `json:"record"`
	}{Record: record}

	var cam domain.Camera
	err := c.call(ctx, http.MethodPost, "/cameras/"+id+"/record", body, &cam)
	return cam, err
}

// ToggleFavorite sends the explicit desired value, computed once by the
// caller. The wire contract is the new state, never a negation of
// whatever the server last saw.
func (c *Client) ToggleFavorite(ctx context.Context, id string, favorite bool) (domain.Camera, error) {
	body := struct {
		IsFavorite bool `json:"isFavorite"`
	}{IsFavorite: favorite}

	var cam domain.Camera
	err := c.call(ctx, http.MethodPost, "/cameras/"+id+"/favorite", body, &cam)
	return cam, err
}

func (c *Client) UpdateTask(ctx context.Context, id string, patch domain.TaskPatch) (domain.Task, error) {
	var task domain.Task
	err := c.call(ctx, http.MethodPut, "/tasks/"+id, patch, &task)
	return task, err
}

func (c *Client) call(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return errors.Wrap(err, "marshal request body")
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.config.BaseURL+path, reader)
	if err != nil {
		return errors.Wrap(err, "build request")
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token := c.bearer(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return errors.Wrapf(err, "%s %s", method, path)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return c.decodeError(resp, method, path)
	}

	if out == nil || resp.StatusCode == http.StatusNoContent {
		// Drain so the connection can be reused
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}

	if err = json.NewDecoder(resp.Body).Decode(out); err != nil {
		return errors.Wrapf(ErrUnexpectedBody, "decode %s %s: %v", method, path, err)
	}
	return nil
}

// decodeError turns a non-2xx response into an *Error, falling back to a
// generic message when the body is not the expected {message} shape.
func (c *Client) decodeError(resp *http.Response, method, path string) error {
	apiErr := &Error{
		Status:    resp.StatusCode,
		Message:   fmt.Sprintf("request failed with status %d", resp.StatusCode),
		RequestID: resp.Header.Get("X-Request-Id"),
	}

	var body struct {
		Message string `json:"message"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err == nil && body.Message != "" {
		apiErr.Message = body.Message
	}

	c.logger.Warn("Request rejected",
		log.String("method", method),
		log.String("path", path),
		log.Int("status", resp.StatusCode),
		log.String("request_id", apiErr.RequestID))

	return apiErr
}
