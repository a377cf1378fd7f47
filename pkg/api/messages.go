package api

type (
	// SubmitRequest starts a new session for a clinical note
	SubmitRequest struct {
		SessionID      SessionID `json:"session_id,omitempty"`
		Document       string    `json:"document" binding:"required"`
		IterationLimit int       `json:"iteration_limit,omitempty"`
	}

	// ResumeRequest supplies answers to a paused session
	ResumeRequest struct {
		Answers   map[string]string `json:"answers"`
		SessionID SessionID         `json:"session_id,omitempty"`
	}

	// ResumeResponse summarizes a session after submit or resume
	ResumeResponse struct {
		PendingQuestion *string          `json:"pending_question"`
		SessionID       SessionID        `json:"session_id"`
		Status          SessionStatus    `json:"status"`
		StageResults    []PredictionItem `json:"stage_results"`
		AwaitingInput   bool             `json:"awaiting_input"`
	}

	// ErrorResponse is the body of every failed API call
	ErrorResponse struct {
		Error  string `json:"error"`
		Status int    `json:"status"`
	}

	// HealthResponse reports service liveness
	HealthResponse struct {
		Service string `json:"service"`
		Version string `json:"version"`
		Status  string `json:"status"`
	}
)

// NewResumeResponse projects the wire summary of a session
func NewResumeResponse(st *WorkflowState) *ResumeResponse {
	res := &ResumeResponse{
		SessionID:     st.SessionID,
		Status:        st.Status,
		StageResults:  st.StageResults,
		AwaitingInput: st.AwaitingInput,
	}
	if st.PendingQuestion != nil {
		q := *st.PendingQuestion
		res.PendingQuestion = &q
	}
	if res.StageResults == nil {
		res.StageResults = []PredictionItem{}
	}
	return res
}
