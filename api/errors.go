package api

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

// Backend error codes. The backend reports failures as machine-readable
// codes inside a {"detail": {"error_code": ...}} envelope; the presentation
// layer translates them to display text.
const (
	ErrCodeProjectAlreadyExists = "ERR_PROJECT_1001"
	ErrCodeProjectNotFound      = "ERR_PROJECT_1002"
	ErrCodeProjectInvalidName   = "ERR_PROJECT_1003"
	ErrCodeProjectNameEmpty     = "ERR_PROJECT_1004"
	ErrCodeProjectCreateFailed  = "ERR_PROJECT_1005"
	ErrCodeProjectDeleteFailed  = "ERR_PROJECT_1006"
	ErrCodeProjectUpdateFailed  = "ERR_PROJECT_1007"

	ErrCodeDataFileReadFailed   = "ERR_DATA_FILE_3001"
	ErrCodeDataFileInvalidType  = "ERR_DATA_FILE_3002"
	ErrCodeDataFileUploadFailed = "ERR_DATA_FILE_3003"
	ErrCodeDataFileNotFound     = "ERR_DATA_FILE_3004"
	ErrCodeDataFileDeleteFailed = "ERR_DATA_FILE_3005"

	ErrCodeTrainingAlreadyRunning   = "ERR_TRAINING_4001"
	ErrCodeTrainingNotRunning       = "ERR_TRAINING_4002"
	ErrCodeTrainingNoDataFiles      = "ERR_TRAINING_4003"
	ErrCodeTrainingDataFileNotFound = "ERR_TRAINING_4004"
	ErrCodeTrainingModelLoadFailed  = "ERR_TRAINING_4005"
	ErrCodeTrainingFailed           = "ERR_TRAINING_4006"
	ErrCodeTrainingExportFailed     = "ERR_TRAINING_4007"
	ErrCodeTrainingCancelled        = "ERR_TRAINING_4009"

	// ErrCodeUnknown is the fixed fallback when neither the backend envelope
	// nor the transport supplies anything usable.
	ErrCodeUnknown = "ERR_UNKNOWN"
)

// APIError is a non-2xx response from the backend.
type APIError struct {
	StatusCode int
	ErrorCode  string
	Message    string
}

func (e *APIError) Error() string {
	if e.ErrorCode != "" {
		return fmt.Sprintf("backend error %d: %s", e.StatusCode, e.ErrorCode)
	}
	if e.Message != "" {
		return fmt.Sprintf("backend error %d: %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("backend error %d", e.StatusCode)
}

// Code returns the best available machine code for an error, applying the
// three-tier fallback: backend error code, then the error's own message,
// then ErrCodeUnknown.
func Code(err error) string {
	if err == nil {
		return ""
	}
	if apiErr, ok := err.(*APIError); ok && apiErr.ErrorCode != "" {
		return apiErr.ErrorCode
	}
	if msg := err.Error(); msg != "" {
		return msg
	}
	return ErrCodeUnknown
}

type errorEnvelope struct {
	Detail struct {
		ErrorCode string `json:"error_code"`
	} `json:"detail"`
}

// decodeError turns a non-2xx response into an *APIError. The envelope shape
// is attempted first; a body that is not the envelope is kept as plain text.
func decodeError(resp *http.Response) error {
	apiErr := &APIError{StatusCode: resp.StatusCode}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	if err != nil {
		return apiErr
	}

	var envelope errorEnvelope
	if err := json.Unmarshal(body, &envelope); err == nil && envelope.Detail.ErrorCode != "" {
		apiErr.ErrorCode = envelope.Detail.ErrorCode
		return apiErr
	}

	apiErr.Message = string(body)
	return apiErr
}
