package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestWebSocketURL(t *testing.T) {
	cases := []struct {
		name    string
		baseURL string
		slug    string
		want    string
		wantErr bool
	}{
		{"http", "http://localhost:23979", "demo", "ws://localhost:23979/api/projects/demo/train/ws", false},
		{"https", "https://forge.example.com", "demo", "wss://forge.example.com/api/projects/demo/train/ws", false},
		{"trailing slash", "http://localhost:23979/", "demo", "ws://localhost:23979/api/projects/demo/train/ws", false},
		{"slug escaping", "http://localhost:23979", "my project", "ws://localhost:23979/api/projects/my%20project/train/ws", false},
		{"unsupported scheme", "ftp://localhost", "demo", "", true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c := NewClient(tc.baseURL)
			got, err := c.WebSocketURL(tc.slug)
			if tc.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("WebSocketURL returned error: %v", err)
			}
			if got != tc.want {
				t.Fatalf("WebSocketURL() = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestClientDecodesErrorEnvelope(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
		w.Write([]byte(`{"detail":{"error_code":"ERR_TRAINING_4001"}}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	_, err := c.StartTraining(context.Background(), "demo", StartTrainingRequest{ModelName: "m"})
	if err == nil {
		t.Fatal("expected error")
	}

	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("error type = %T, want *APIError", err)
	}
	if apiErr.StatusCode != http.StatusConflict {
		t.Fatalf("StatusCode = %d, want 409", apiErr.StatusCode)
	}
	if apiErr.ErrorCode != ErrCodeTrainingAlreadyRunning {
		t.Fatalf("ErrorCode = %q, want %q", apiErr.ErrorCode, ErrCodeTrainingAlreadyRunning)
	}
}

func TestClientKeepsPlainTextErrorBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		w.Write([]byte("upstream unavailable"))
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	_, err := c.TrainingStatus(context.Background(), "demo")

	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("error type = %T, want *APIError", err)
	}
	if apiErr.ErrorCode != "" {
		t.Fatalf("ErrorCode = %q, want empty for a non-envelope body", apiErr.ErrorCode)
	}
	if apiErr.Message != "upstream unavailable" {
		t.Fatalf("Message = %q", apiErr.Message)
	}
}

func TestCodeFallbackTiers(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want string
	}{
		{"nil", nil, ""},
		{"backend code", &APIError{StatusCode: 409, ErrorCode: ErrCodeTrainingNotRunning}, ErrCodeTrainingNotRunning},
		{"envelope without code", &APIError{StatusCode: 500, Message: "boom"}, "backend error 500: boom"},
		{"plain error", errors.New("dial tcp: refused"), "dial tcp: refused"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Code(tc.err); got != tc.want {
				t.Fatalf("Code() = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestClientTrainingStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/projects/demo/train/status" {
			t.Errorf("path = %q", r.URL.Path)
		}
		if r.Header.Get("X-Request-ID") == "" {
			t.Error("missing X-Request-ID header")
		}
		json.NewEncoder(w).Encode(TrainingStatusResponse{
			JobID:    "job-3",
			Status:   StatusTraining,
			CanStart: false,
			Progress: TrainingProgress{
				Progress:   12.5,
				Tasks:      []TrainingTask{{TaskID: "train", Status: TaskInProgress, Progress: 12}},
				TotalSteps: 400,
			},
		})
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	resp, err := c.TrainingStatus(context.Background(), "demo")
	if err != nil {
		t.Fatalf("TrainingStatus returned error: %v", err)
	}
	if resp.JobID != "job-3" || resp.Status != StatusTraining {
		t.Fatalf("resp = %+v", resp)
	}
	if len(resp.Progress.Tasks) != 1 || resp.Progress.Tasks[0].TaskID != "train" {
		t.Fatalf("Tasks = %+v", resp.Progress.Tasks)
	}
}

func TestClientStartTrainingBody(t *testing.T) {
	var got StartTrainingRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s", r.Method)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("bad body: %v", err)
		}
		w.WriteHeader(http.StatusAccepted)
		json.NewEncoder(w).Encode(StartTrainingResponse{JobID: "job-4", Status: StatusStarting})
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	resp, err := c.StartTraining(context.Background(), "demo", StartTrainingRequest{
		ModelName:    "llama3.2:3b",
		DataFiles:    []string{"a.jsonl", "b.jsonl"},
		Quantization: "q8_0",
	})
	if err != nil {
		t.Fatalf("StartTraining returned error: %v", err)
	}
	if resp.JobID != "job-4" {
		t.Fatalf("JobID = %q", resp.JobID)
	}
	if got.ModelName != "llama3.2:3b" || len(got.DataFiles) != 2 || got.Quantization != "q8_0" {
		t.Fatalf("request body = %+v", got)
	}
}

func TestClientUploadDataFile(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("not multipart: %v", err)
		}
		file, header, err := r.FormFile("file")
		if err != nil {
			t.Fatalf("missing file part: %v", err)
		}
		defer file.Close()
		if header.Filename != "train.jsonl" {
			t.Errorf("filename = %q", header.Filename)
		}
		json.NewEncoder(w).Encode(UploadDataFileResponse{Filename: "train.jsonl", Size: 12})
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	resp, err := c.UploadDataFile(context.Background(), "demo", "/tmp/data/train.jsonl",
		strings.NewReader(`{"text":"x"}`))
	if err != nil {
		t.Fatalf("UploadDataFile returned error: %v", err)
	}
	if resp.Filename != "train.jsonl" {
		t.Fatalf("Filename = %q", resp.Filename)
	}
}

func TestIsTerminal(t *testing.T) {
	terminal := []TrainingStatus{StatusCompleted, StatusFailed, StatusCancelled}
	for _, s := range terminal {
		if !s.IsTerminal() {
			t.Errorf("%s should be terminal", s)
		}
	}
	active := []TrainingStatus{StatusIdle, StatusStarting, StatusLoadingData, StatusLoadingModel, StatusTraining, StatusExporting, StatusConverting}
	for _, s := range active {
		if s.IsTerminal() {
			t.Errorf("%s should not be terminal", s)
		}
	}
}
