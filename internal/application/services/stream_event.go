package services

import (
	"encoding/json"

	"github.com/mshogin/reasonguard/internal/domain/models"
)

// StreamEvent is one progress notification of a streamed task run.
// Events are sent from the orchestrator to the HTTP handler for SSE streaming.
type StreamEvent struct {
	Type string      `json:"type"` // "task", "report", "error", "done"
	Data interface{} `json:"data"`
}

// NewTaskEvent announces the created task before agents run.
func NewTaskEvent(task *models.Task) *StreamEvent {
	return &StreamEvent{
		Type: "task",
		Data: task,
	}
}

// NewReportEvent carries the finished analysis.
func NewReportEvent(report *TaskReport) *StreamEvent {
	return &StreamEvent{
		Type: "report",
		Data: report,
	}
}

// NewErrorEvent creates an error event.
func NewErrorEvent(message string) *StreamEvent {
	return &StreamEvent{
		Type: "error",
		Data: map[string]string{
			"message": message,
		},
	}
}

// NewDoneEvent creates a done event (signals end of stream).
func NewDoneEvent() *StreamEvent {
	return &StreamEvent{
		Type: "done",
		Data: map[string]string{
			"status": "complete",
		},
	}
}

// ToJSON converts the event to JSON string.
func (e *StreamEvent) ToJSON() (string, error) {
	data, err := json.Marshal(e)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// ToSSE formats the event as a Server-Sent Event.
func (e *StreamEvent) ToSSE() (string, error) {
	jsonData, err := e.ToJSON()
	if err != nil {
		return "", err
	}
	return "event: " + e.Type + "\ndata: " + jsonData + "\n\n", nil
}
