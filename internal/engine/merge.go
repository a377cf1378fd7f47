package engine

import (
	"encoding/json"
	"fmt"

	"github.com/wilson-pinto/medical-agent-poc/pkg/api"
	"github.com/wilson-pinto/medical-agent-poc/pkg/log"
)

type stageRecord struct {
	Update *api.PartialUpdate `json:"update"`
	Error  string             `json:"error,omitempty"`
}

// merge folds the outcome of one stage into st. A failed stage only
// contributes its audit lines and an error entry
func (e *Engine) merge(
	st *api.WorkflowState, stage api.StageID, upd *api.PartialUpdate,
	nodeErr error,
) {
	if nodeErr != nil {
		e.audit(st, upd.Audit...)
		e.audit(st, fmt.Sprintf("%s failed: %v", stage, nodeErr))
	} else {
		e.applyUpdate(st, upd)
		if len(upd.Audit) == 0 {
			e.audit(st, fmt.Sprintf("%s completed", stage))
		}
	}
	e.normalizePause(st)
	st.StageLog = append(st.StageLog, stageEvent(stage, upd, nodeErr))
	st.UpdatedAt = e.clock.Now()
}

// applyUpdate assigns every set field of upd. StageResults are replaced
// wholesale, Attributes merged by key, and Audit lines appended
func (e *Engine) applyUpdate(st *api.WorkflowState, upd *api.PartialUpdate) {
	if upd.DocumentText != nil {
		st.DocumentText = *upd.DocumentText
	}
	forged := false
	if upd.StageResults != nil {
		st.StageResults, forged = e.sanitize(st, upd.StageResults)
	}
	if upd.AwaitingInput != nil {
		st.AwaitingInput = *upd.AwaitingInput
	}
	if upd.PendingQuestion != nil {
		q := *upd.PendingQuestion
		st.PendingQuestion = &q
	}
	if forged && !st.AwaitingInput && st.HasUnanswered() {
		st.AwaitingInput = true
		st.PendingQuestion = nil
	}
	if len(upd.Attributes) > 0 {
		if st.Attributes == nil {
			st.Attributes = api.Attributes{}
		}
		for k, v := range upd.Attributes {
			st.Attributes[k] = v
		}
	}
	e.audit(st, upd.Audit...)
}

// sanitize validates the replacement results of a stage. Answer state is
// taken from the current session, and it reports whether the stage
// returned any answer state of its own
func (e *Engine) sanitize(
	st *api.WorkflowState, items []api.PredictionItem,
) ([]api.PredictionItem, bool) {
	prior := answeredFields(st.StageResults)
	res := api.ClonePredictions(items)
	forged := false
	for i := range res {
		if !res[i].Status.IsValid() {
			e.audit(st, fmt.Sprintf("invalid status %q on %s treated as %s",
				res[i].Status, res[i].Identifier, api.PredictionUnknown))
			res[i].Status = api.PredictionUnknown
		}
		tampered := false
		for j := range res[i].MissingFields {
			f := &res[i].MissingFields[j]
			key := fieldKey{res[i].Identifier, f.FieldName}
			if restoreAnswer(f, prior[key]) {
				tampered = true
				e.audit(st, fmt.Sprintf("answer state of %s on %s restored",
					f.FieldName, res[i].Identifier))
			}
		}
		if tampered {
			forged = true
			if res[i].Status == api.PredictionPassing &&
				len(res[i].Unanswered()) > 0 {
				res[i].Status = api.PredictionFailing
			}
		}
	}
	return res, forged
}

// restoreAnswer makes a field's answer state match what the session already
// recorded, since only Resume may answer a field. It reports whether the
// node had returned something different
func restoreAnswer(f *api.FieldRequest, prev *api.FieldRequest) bool {
	if prev == nil {
		changed := f.IsAnswered || f.AnswerValue != nil
		f.IsAnswered = false
		f.AnswerValue = nil
		return changed
	}
	changed := !f.IsAnswered || !sameAnswer(f.AnswerValue, prev.AnswerValue)
	f.IsAnswered = true
	f.AnswerValue = nil
	if prev.AnswerValue != nil {
		v := *prev.AnswerValue
		f.AnswerValue = &v
	}
	return changed
}

type fieldKey struct {
	identifier string
	field      string
}

func answeredFields(
	items []api.PredictionItem,
) map[fieldKey]*api.FieldRequest {
	res := map[fieldKey]*api.FieldRequest{}
	for i := range items {
		for j := range items[i].MissingFields {
			f := &items[i].MissingFields[j]
			if f.IsAnswered {
				res[fieldKey{items[i].Identifier, f.FieldName}] = f
			}
		}
	}
	return res
}

func sameAnswer(a, b *string) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

// normalizePause keeps awaiting_input consistent with the pending
// question and the unanswered fields
func (e *Engine) normalizePause(st *api.WorkflowState) {
	if !st.AwaitingInput {
		st.PendingQuestion = nil
		return
	}
	if !st.HasUnanswered() {
		st.AwaitingInput = false
		st.PendingQuestion = nil
		e.audit(st, "pause ignored: no unanswered fields")
		return
	}
	if st.Question() == "" {
		q := api.QuestionFor(st.StageResults)
		st.PendingQuestion = &q
	}
}

func (e *Engine) audit(st *api.WorkflowState, lines ...string) {
	if len(lines) == 0 {
		return
	}
	now := e.clock.Now()
	for _, line := range lines {
		st.AuditTrail = append(st.AuditTrail, log.Audit(now, "%s", line))
	}
}

func stageEvent(
	stage api.StageID, upd *api.PartialUpdate, nodeErr error,
) api.StageEvent {
	desc := upd.Description
	if desc == "" {
		desc = fmt.Sprintf("%s executed", stage)
	}
	rec := stageRecord{Update: upd}
	if nodeErr != nil {
		rec.Error = nodeErr.Error()
	}
	data, err := json.Marshal(rec)
	if err != nil {
		data = nil
	}
	return api.StageEvent{
		Stage:       stage,
		Description: desc,
		Data:        data,
	}
}
