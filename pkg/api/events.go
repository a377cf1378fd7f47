package api

import "encoding/json"

type (
	// EventType identifies the kind of a streamed session event
	EventType string

	// Event is a single message delivered through the Event Sink
	Event struct {
		Payload   json.RawMessage `json:"payload"`
		EventType EventType       `json:"event_type"`
		SessionID SessionID       `json:"session_id"`
	}

	// NodeExecutedEvent is emitted after a stage's update has been merged
	NodeExecutedEvent struct {
		Update *PartialUpdate `json:"update"`
		Stage  StageID        `json:"stage"`
		Error  string         `json:"error,omitempty"`
	}

	// StageProgressedEvent is emitted once the merged state is persisted
	StageProgressedEvent struct {
		Stage         StageID       `json:"stage"`
		Description   string        `json:"description"`
		Status        SessionStatus `json:"status"`
		AwaitingInput bool          `json:"awaiting_input"`
	}

	// WaitingForInputEvent is emitted when a stage pauses the session
	WaitingForInputEvent struct {
		Stage           StageID          `json:"stage"`
		PendingQuestion string           `json:"pending_question"`
		StageResults    []PredictionItem `json:"stage_results"`
	}

	// WorkflowFinishedEvent is emitted when traversal reaches its end
	WorkflowFinishedEvent struct {
		Stage  StageID       `json:"stage"`
		Status SessionStatus `json:"status"`
	}
)

const (
	EventTypeNodeExecuted     EventType = "node_executed"
	EventTypeStageProgressed  EventType = "stage_progressed"
	EventTypeWaitingForInput  EventType = "waiting_for_input"
	EventTypeWorkflowFinished EventType = "workflow_finished"
)

// NewEvent builds an Event with a JSON-encoded payload
func NewEvent(id SessionID, typ EventType, payload any) (*Event, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return &Event{
		Payload:   data,
		EventType: typ,
		SessionID: id,
	}, nil
}
