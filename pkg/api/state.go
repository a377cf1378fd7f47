package api

import (
	"encoding/json"
	"fmt"
	"maps"
	"slices"
	"strings"
	"time"
)

type (
	// SessionStatus represents the lifecycle position of a session
	SessionStatus string

	// PredictionStatus is the compliance status of a PredictionItem
	PredictionStatus string

	// WorkflowState is the persisted progress of one session
	WorkflowState struct {
		CreatedAt       time.Time        `json:"created_at"`
		UpdatedAt       time.Time        `json:"updated_at"`
		Attributes      Attributes       `json:"attributes,omitempty"`
		PendingQuestion *string          `json:"pending_question,omitempty"`
		SessionID       SessionID        `json:"session_id"`
		DocumentText    string           `json:"document_text"`
		CurrentStage    StageID          `json:"current_stage,omitempty"`
		Status          SessionStatus    `json:"status"`
		StageResults    []PredictionItem `json:"stage_results"`
		AuditTrail      []string         `json:"audit_trail"`
		StageLog        []StageEvent     `json:"stage_log"`
		IterationCount  int              `json:"iteration_count"`
		IterationLimit  int              `json:"iteration_limit"`
		AwaitingInput   bool             `json:"awaiting_input"`
	}

	// PredictionItem is one candidate classification produced by a stage
	PredictionItem struct {
		Identifier    string           `json:"identifier"`
		Status        PredictionStatus `json:"status"`
		MissingFields []FieldRequest   `json:"missing_fields"`
	}

	// FieldRequest is one piece of information a human must supply
	FieldRequest struct {
		AnswerValue *string `json:"answer_value,omitempty"`
		FieldName   string  `json:"field_name"`
		IsAnswered  bool    `json:"is_answered"`
	}

	// StageEvent is the durable record of one executed stage
	StageEvent struct {
		Data        json.RawMessage `json:"data,omitempty"`
		Stage       StageID         `json:"stage"`
		Description string          `json:"description"`
	}

	// Attributes holds stage-produced values keyed by name
	Attributes map[string]json.RawMessage
)

const (
	SessionRunning   SessionStatus = "running"
	SessionAwaiting  SessionStatus = "awaiting_input"
	SessionCompleted SessionStatus = "completed"
	SessionExhausted SessionStatus = "exhausted"
	SessionFailed    SessionStatus = "failed"
)

const (
	PredictionFailing PredictionStatus = "failing"
	PredictionPassing PredictionStatus = "passing"
	PredictionUnknown PredictionStatus = "unknown"
)

// IsValid reports whether the status is one of the known values
func (s PredictionStatus) IsValid() bool {
	switch s {
	case PredictionFailing, PredictionPassing, PredictionUnknown:
		return true
	default:
		return false
	}
}

// Clone returns a deep copy of the state
func (s *WorkflowState) Clone() *WorkflowState {
	res := *s
	if s.PendingQuestion != nil {
		q := *s.PendingQuestion
		res.PendingQuestion = &q
	}
	res.Attributes = s.Attributes.Clone()
	res.StageResults = ClonePredictions(s.StageResults)
	res.AuditTrail = slices.Clone(s.AuditTrail)
	res.StageLog = slices.Clone(s.StageLog)
	return &res
}

// HasUnanswered returns true if any prediction has an unanswered field
func (s *WorkflowState) HasUnanswered() bool {
	for _, p := range s.StageResults {
		if len(p.Unanswered()) > 0 {
			return true
		}
	}
	return false
}

// Question returns the pending question, or an empty string
func (s *WorkflowState) Question() string {
	if s.PendingQuestion == nil {
		return ""
	}
	return *s.PendingQuestion
}

// QuestionFor phrases one request line per prediction that still has
// unanswered fields, or returns an empty string if none remain
func QuestionFor(items []PredictionItem) string {
	var lines []string
	for _, p := range items {
		if missing := p.Unanswered(); len(missing) > 0 {
			lines = append(lines, fmt.Sprintf(
				"For service code %s, please provide: %s",
				p.Identifier, strings.Join(missing, ", "),
			))
		}
	}
	return strings.Join(lines, "\n")
}

// Unanswered returns the names of fields still missing an answer
func (p PredictionItem) Unanswered() []string {
	var res []string
	for _, f := range p.MissingFields {
		if !f.IsAnswered {
			res = append(res, f.FieldName)
		}
	}
	return res
}

// Answer returns the answer value, or an empty string
func (f FieldRequest) Answer() string {
	if f.AnswerValue == nil {
		return ""
	}
	return *f.AnswerValue
}

// ClonePredictions deep copies a list of prediction items. A nil input
// yields nil so that "unset" remains distinguishable from "empty"
func ClonePredictions(items []PredictionItem) []PredictionItem {
	if items == nil {
		return nil
	}
	res := make([]PredictionItem, len(items))
	for i, item := range items {
		res[i] = item
		res[i].MissingFields = make([]FieldRequest, len(item.MissingFields))
		for j, f := range item.MissingFields {
			res[i].MissingFields[j] = f
			if f.AnswerValue != nil {
				v := *f.AnswerValue
				res[i].MissingFields[j].AnswerValue = &v
			}
		}
	}
	return res
}

// Clone returns a shallow copy of the attribute map. Values are treated
// as immutable once stored
func (a Attributes) Clone() Attributes {
	if a == nil {
		return nil
	}
	return maps.Clone(a)
}

// Decode unmarshals the named attribute into dst, returning false if the
// attribute is absent or cannot be decoded
func (a Attributes) Decode(key string, dst any) bool {
	raw, ok := a[key]
	if !ok {
		return false
	}
	return json.Unmarshal(raw, dst) == nil
}

// Bool returns the named attribute as a boolean, defaulting to false
func (a Attributes) Bool(key string) bool {
	var res bool
	a.Decode(key, &res)
	return res
}

// String returns the named attribute as a string, defaulting to empty
func (a Attributes) String(key string) string {
	var res string
	a.Decode(key, &res)
	return res
}

// AttrValue encodes a value for storage in Attributes
func AttrValue(v any) json.RawMessage {
	data, err := json.Marshal(v)
	if err != nil {
		return json.RawMessage("null")
	}
	return data
}
