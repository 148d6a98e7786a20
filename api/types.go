package api

// TrainingStatus is the lifecycle status of a training job.
type TrainingStatus string

const (
	StatusIdle         TrainingStatus = "idle"
	StatusStarting     TrainingStatus = "starting"
	StatusLoadingData  TrainingStatus = "loading_data"
	StatusLoadingModel TrainingStatus = "loading_model"
	StatusTraining     TrainingStatus = "training"
	StatusExporting    TrainingStatus = "exporting"
	StatusConverting   TrainingStatus = "converting"
	StatusCompleted    TrainingStatus = "completed"
	StatusFailed       TrainingStatus = "failed"
	StatusCancelled    TrainingStatus = "cancelled"
)

// IsTerminal reports whether the status is a final state for a job.
func (s TrainingStatus) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCancelled:
		return true
	}
	return false
}

// TaskStatus is the status of a single pipeline task or data file.
type TaskStatus string

const (
	TaskPending    TaskStatus = "pending"
	TaskInProgress TaskStatus = "in_progress"
	TaskCompleted  TaskStatus = "completed"
	TaskFailed     TaskStatus = "failed"
	TaskSkipped    TaskStatus = "skipped"
)

// DeviceType is the compute device the backend trains on.
type DeviceType string

const (
	DeviceCUDA DeviceType = "cuda"
	DeviceMPS  DeviceType = "mps"
	DeviceCPU  DeviceType = "cpu"
)

// TaskIDs lists the pipeline stages in backend order. The backend owns task
// ordering and membership; this list exists only for display fallbacks.
var TaskIDs = []string{
	"detect_device",
	"import_libraries",
	"load_model",
	"setup_lora",
	"tokenize",
	"train",
	"merge_lora",
	"convert_gguf",
	"create_modelfile",
}

// TrainingTask is one stage of the training pipeline.
type TrainingTask struct {
	TaskID     string     `json:"task_id"`
	Status     TaskStatus `json:"status"`
	Progress   int        `json:"progress"`
	ErrorCount int        `json:"error_count"`
}

// DataFileStatus is the ingestion state of one training data file.
type DataFileStatus struct {
	Filename    string     `json:"filename"`
	Status      TaskStatus `json:"status"`
	RowsLoaded  int        `json:"rows_loaded"`
	RowsSkipped int        `json:"rows_skipped"`
}

// TrainingProgress is the progress block of a status response.
type TrainingProgress struct {
	Status       TrainingStatus   `json:"status"`
	Progress     float64          `json:"progress"`
	CurrentStep  int              `json:"current_step"`
	TotalSteps   int              `json:"total_steps"`
	Device       DeviceType       `json:"device,omitempty"`
	ErrorCode    string           `json:"error_code,omitempty"`
	Tasks        []TrainingTask   `json:"tasks"`
	FileStatuses []DataFileStatus `json:"file_statuses"`
}

// TrainingStatusResponse is returned by GET /api/projects/{slug}/train/status.
type TrainingStatusResponse struct {
	JobID    string           `json:"job_id"`
	Status   TrainingStatus   `json:"status"`
	Progress TrainingProgress `json:"progress"`
	CanStart bool             `json:"can_start"`
}

// StartTrainingRequest is the body of POST /api/projects/{slug}/train.
type StartTrainingRequest struct {
	ModelName    string   `json:"model_name"`
	DataFiles    []string `json:"data_files"`
	Quantization string   `json:"quantization,omitempty"`
}

// StartTrainingResponse is returned with 202 Accepted when a job is queued.
type StartTrainingResponse struct {
	JobID  string         `json:"job_id"`
	Status TrainingStatus `json:"status"`
}

// CancelTrainingResponse is returned by POST /api/projects/{slug}/train/cancel.
type CancelTrainingResponse struct {
	Cancelled bool `json:"cancelled"`
}

// ProjectInfo describes a project as stored by the backend.
type ProjectInfo struct {
	Slug        string `json:"slug"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Model       string `json:"model,omitempty"`
	TargetName  string `json:"target_name,omitempty"`
	Path        string `json:"path"`
}

// CreateProjectRequest is the body of POST /api/projects.
type CreateProjectRequest struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

// CreateProjectResponse is returned after creating a project.
type CreateProjectResponse struct {
	Slug        string `json:"slug"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

// UpdateProjectRequest is the body of PUT /api/projects/{slug}.
type UpdateProjectRequest struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Model       string `json:"model,omitempty"`
	TargetName  string `json:"target_name,omitempty"`
}

// UpdateProjectResponse is returned after updating a project.
type UpdateProjectResponse struct {
	Slug        string `json:"slug"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Model       string `json:"model,omitempty"`
	TargetName  string `json:"target_name,omitempty"`
}

// DataFileInfo describes a training data file in a project.
type DataFileInfo struct {
	Filename      string `json:"filename"`
	Size          int64  `json:"size"`
	SizeFormatted string `json:"size_formatted"`
}

// UploadDataFileResponse is returned after uploading a data file. The final
// filename may differ from the original when the backend renames for
// uniqueness.
type UploadDataFileResponse struct {
	Filename      string `json:"filename"`
	Size          int64  `json:"size"`
	SizeFormatted string `json:"size_formatted"`
}

// DataFileRow is a single validated row of a JSONL data file.
type DataFileRow struct {
	LineNumber int            `json:"line_number"`
	IsValid    bool           `json:"is_valid"`
	Error      string         `json:"error,omitempty"`
	Data       map[string]any `json:"data,omitempty"`
	Raw        string         `json:"raw"`
	RawLength  int            `json:"raw_length"`
}

// DataFileContentResponse is the paged content of a JSONL data file.
type DataFileContentResponse struct {
	Filename  string        `json:"filename"`
	Rows      []DataFileRow `json:"rows"`
	TotalRows int           `json:"total_rows"`
	Truncated bool          `json:"truncated"`
}

// PresetInfo is a read-only hyperparameter preset offered by the backend.
type PresetInfo struct {
	ID           string         `json:"id"`
	Name         string         `json:"name"`
	Description  string         `json:"description,omitempty"`
	Training     map[string]any `json:"training,omitempty"`
	Lora         map[string]any `json:"lora,omitempty"`
	Quantization map[string]any `json:"quantization,omitempty"`
}
