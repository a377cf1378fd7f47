package api

type (
	// PartialUpdate is the sparse set of assignments a stage returns. Nil
	// fields are left untouched. A non-nil StageResults replaces the list
	// wholesale, Attributes are merged by key, and Audit lines are appended
	PartialUpdate struct {
		DocumentText    *string          `json:"document_text,omitempty"`
		AwaitingInput   *bool            `json:"awaiting_input,omitempty"`
		PendingQuestion *string          `json:"pending_question,omitempty"`
		Attributes      Attributes       `json:"attributes,omitempty"`
		Description     string           `json:"description,omitempty"`
		StageResults    []PredictionItem `json:"stage_results,omitempty"`
		Audit           []string         `json:"audit,omitempty"`
	}
)

// NewUpdate returns an update carrying the given audit lines
func NewUpdate(audit ...string) *PartialUpdate {
	return &PartialUpdate{Audit: audit}
}

// WithDocument sets the replacement document text
func (u *PartialUpdate) WithDocument(text string) *PartialUpdate {
	u.DocumentText = &text
	return u
}

// WithResults sets the replacement prediction list
func (u *PartialUpdate) WithResults(items []PredictionItem) *PartialUpdate {
	if items == nil {
		items = []PredictionItem{}
	}
	u.StageResults = items
	return u
}

// WithAwaiting sets the awaiting flag and, when awaiting, the question
func (u *PartialUpdate) WithAwaiting(
	awaiting bool, question string,
) *PartialUpdate {
	u.AwaitingInput = &awaiting
	if awaiting && question != "" {
		u.PendingQuestion = &question
	}
	return u
}

// WithAttribute records a single attribute value
func (u *PartialUpdate) WithAttribute(key string, value any) *PartialUpdate {
	if u.Attributes == nil {
		u.Attributes = Attributes{}
	}
	u.Attributes[key] = AttrValue(value)
	return u
}

// WithDescription sets the human-readable stage description
func (u *PartialUpdate) WithDescription(desc string) *PartialUpdate {
	u.Description = desc
	return u
}

// WithAudit appends audit lines
func (u *PartialUpdate) WithAudit(lines ...string) *PartialUpdate {
	u.Audit = append(u.Audit, lines...)
	return u
}
