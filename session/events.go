package session

import (
	"encoding/json"
	"fmt"

	"github.com/ollaforge/forgecli/api"
)

// EventKind discriminates push messages on the live channel.
type EventKind string

const (
	EventStatus   EventKind = "status"
	EventProgress EventKind = "progress"
	EventLog      EventKind = "log"
	EventDone     EventKind = "done"
	EventError    EventKind = "error"
)

// Event is one decoded push message. Fields are populated depending on the
// kind; missing numeric fields decode to zero and a missing device to the
// empty string. Kinds outside the table above are preserved verbatim so the
// reconciler can ignore them without failing.
type Event struct {
	Type EventKind `json:"type"`

	// status / progress / done
	JobID        string               `json:"job_id"`
	Status       api.TrainingStatus   `json:"status"`
	Progress     float64              `json:"progress"`
	CurrentStep  int                  `json:"current_step"`
	TotalSteps   int                  `json:"total_steps"`
	Device       api.DeviceType       `json:"device"`
	ErrorCode    string               `json:"error_code"`
	CanStart     bool                 `json:"can_start"`
	Tasks        []api.TrainingTask   `json:"tasks"`
	FileStatuses []api.DataFileStatus `json:"file_statuses"`

	// log / error
	Timestamp string `json:"timestamp"`
	Message   string `json:"message"`
}

// ParseEvent decodes a raw channel payload.
func ParseEvent(data []byte) (Event, error) {
	var ev Event
	if err := json.Unmarshal(data, &ev); err != nil {
		return Event{}, fmt.Errorf("malformed channel message: %w", err)
	}
	return ev, nil
}
