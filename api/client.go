package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Client talks to the fine-tuning backend's REST API. All methods return
// *APIError for non-2xx responses and plain wrapped errors for transport
// failures.
type Client struct {
	baseURL string
	httpc   *http.Client
}

// NewClient creates a client for the given base URL (e.g.
// "http://localhost:23979"). A trailing slash is stripped.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpc:   &http.Client{Timeout: 30 * time.Second},
	}
}

// BaseURL returns the configured backend base URL.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// WebSocketURL derives the live-channel endpoint for a project by swapping
// the HTTP(S) scheme for its WebSocket equivalent.
func (c *Client) WebSocketURL(slug string) (string, error) {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return "", fmt.Errorf("invalid base URL %q: %w", c.baseURL, err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("unsupported scheme %q in base URL", u.Scheme)
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/api/projects/" + url.PathEscape(slug) + "/train/ws"
	return u.String(), nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request body: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("X-Request-ID", uuid.NewString())
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpc.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return decodeError(resp)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// ListProjects returns all projects known to the backend.
func (c *Client) ListProjects(ctx context.Context) ([]ProjectInfo, error) {
	var projects []ProjectInfo
	if err := c.do(ctx, http.MethodGet, "/api/projects", nil, &projects); err != nil {
		return nil, err
	}
	return projects, nil
}

// CreateProject creates a new project.
func (c *Client) CreateProject(ctx context.Context, req CreateProjectRequest) (*CreateProjectResponse, error) {
	var resp CreateProjectResponse
	if err := c.do(ctx, http.MethodPost, "/api/projects", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// UpdateProject updates name, description, model or target name of a project.
func (c *Client) UpdateProject(ctx context.Context, slug string, req UpdateProjectRequest) (*UpdateProjectResponse, error) {
	var resp UpdateProjectResponse
	if err := c.do(ctx, http.MethodPut, "/api/projects/"+url.PathEscape(slug), req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// DeleteProject removes a project and all of its data.
func (c *Client) DeleteProject(ctx context.Context, slug string) error {
	return c.do(ctx, http.MethodDelete, "/api/projects/"+url.PathEscape(slug), nil, nil)
}

// ListDataFiles lists the training data files of a project.
func (c *Client) ListDataFiles(ctx context.Context, slug string) ([]DataFileInfo, error) {
	var files []DataFileInfo
	if err := c.do(ctx, http.MethodGet, "/api/projects/"+url.PathEscape(slug)+"/data", nil, &files); err != nil {
		return nil, err
	}
	return files, nil
}

// UploadDataFile uploads a JSONL file as multipart form data. The filename
// sent to the backend is the base name of path.
func (c *Client) UploadDataFile(ctx context.Context, slug, path string, content io.Reader) (*UploadDataFileResponse, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	part, err := writer.CreateFormFile("file", filepath.Base(path))
	if err != nil {
		return nil, fmt.Errorf("failed to build multipart body: %w", err)
	}
	if _, err := io.Copy(part, content); err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("failed to finalize multipart body: %w", err)
	}

	endpoint := c.baseURL + "/api/projects/" + url.PathEscape(slug) + "/data"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, &buf)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("X-Request-ID", uuid.NewString())
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.httpc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("upload failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, decodeError(resp)
	}
	var out UploadDataFileResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	return &out, nil
}

// DeleteDataFile removes a data file from a project.
func (c *Client) DeleteDataFile(ctx context.Context, slug, filename string) error {
	path := "/api/projects/" + url.PathEscape(slug) + "/data/" + url.PathEscape(filename)
	return c.do(ctx, http.MethodDelete, path, nil, nil)
}

// GetDataFileContent fetches the validated rows of a data file.
func (c *Client) GetDataFileContent(ctx context.Context, slug, filename string) (*DataFileContentResponse, error) {
	path := "/api/projects/" + url.PathEscape(slug) + "/data/" + url.PathEscape(filename)
	var resp DataFileContentResponse
	if err := c.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ListPresets returns the hyperparameter presets offered by the backend.
func (c *Client) ListPresets(ctx context.Context) ([]PresetInfo, error) {
	var presets []PresetInfo
	if err := c.do(ctx, http.MethodGet, "/api/presets", nil, &presets); err != nil {
		return nil, err
	}
	return presets, nil
}

// GetPreset returns a single preset by id.
func (c *Client) GetPreset(ctx context.Context, id string) (*PresetInfo, error) {
	var preset PresetInfo
	if err := c.do(ctx, http.MethodGet, "/api/presets/"+url.PathEscape(id), nil, &preset); err != nil {
		return nil, err
	}
	return &preset, nil
}

// TrainingStatus fetches the authoritative status snapshot for a project.
func (c *Client) TrainingStatus(ctx context.Context, slug string) (*TrainingStatusResponse, error) {
	var resp TrainingStatusResponse
	if err := c.do(ctx, http.MethodGet, "/api/projects/"+url.PathEscape(slug)+"/train/status", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// StartTraining asks the backend to queue a new training job. The backend
// answers 202 immediately; progress arrives over the live channel.
func (c *Client) StartTraining(ctx context.Context, slug string, req StartTrainingRequest) (*StartTrainingResponse, error) {
	var resp StartTrainingResponse
	if err := c.do(ctx, http.MethodPost, "/api/projects/"+url.PathEscape(slug)+"/train", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// CancelTraining requests cancellation of the running job. The status
// transition to cancelled arrives over the live channel, not here.
func (c *Client) CancelTraining(ctx context.Context, slug string) error {
	return c.do(ctx, http.MethodPost, "/api/projects/"+url.PathEscape(slug)+"/train/cancel", nil, nil)
}
