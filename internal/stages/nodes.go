package stages

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/wilson-pinto/medical-agent-poc/internal/collab"
	"github.com/wilson-pinto/medical-agent-poc/internal/graph"
	"github.com/wilson-pinto/medical-agent-poc/pkg/api"
)

type nodes struct {
	fallback *collab.Collaborators
}

func (n *nodes) detectPII(
	ctx context.Context, st *api.WorkflowState, deps *collab.Collaborators,
) (*api.PartialUpdate, error) {
	upd := api.NewUpdate().WithDescription("Detect personal information")
	ents, note, err := invoke(deps.PII, n.fallback.PII,
		func(d collab.PIIDetector) ([]collab.Entity, error) {
			return d.Detect(ctx, st.DocumentText)
		},
	)
	upd.WithAudit(note...)
	if err != nil {
		return upd, err
	}

	upd.WithAttribute(collab.AttrPIIFound, len(ents) > 0).
		WithAttribute(collab.AttrPIIEntities, ents)
	if len(ents) == 0 {
		return upd.WithAudit("no personal information found"), nil
	}
	return upd.WithAudit(fmt.Sprintf(
		"found %d personal entities: %s", len(ents), entityKinds(ents),
	)), nil
}

func (n *nodes) anonymizePII(
	ctx context.Context, st *api.WorkflowState, deps *collab.Collaborators,
) (*api.PartialUpdate, error) {
	var ents []collab.Entity
	st.Attributes.Decode(collab.AttrPIIEntities, &ents)

	upd := api.NewUpdate().WithDescription("Mask personal information")
	masked, note, err := invoke(deps.Anonymizer, n.fallback.Anonymizer,
		func(a collab.Anonymizer) (string, error) {
			return a.Anonymize(ctx, st.DocumentText, ents)
		},
	)
	upd.WithAudit(note...)
	if err != nil {
		return upd, err
	}
	return upd.WithDocument(masked).
		WithAudit(fmt.Sprintf("masked %d personal entities", len(ents))), nil
}

func (n *nodes) predictCodes(
	ctx context.Context, st *api.WorkflowState, deps *collab.Collaborators,
) (*api.PartialUpdate, error) {
	if err := requireDocument(st); err != nil {
		return nil, err
	}

	upd := api.NewUpdate().WithDescription("Predict service codes")
	cands, note, err := invoke(deps.Search, n.fallback.Search,
		func(s collab.Searcher) ([]collab.Candidate, error) {
			return s.Search(ctx, st.DocumentText, deps.Limit())
		},
	)
	upd.WithAudit(note...)
	if err != nil {
		cands = nil
		upd.WithAudit(fmt.Sprintf(
			"code search failed, continuing without candidates: %v", err,
		))
	}
	if cands == nil {
		cands = []collab.Candidate{}
	}

	items := make([]api.PredictionItem, 0, len(cands))
	ids := make([]string, 0, len(cands))
	for _, c := range cands {
		items = append(items, api.PredictionItem{
			Identifier:    c.Identifier,
			Status:        api.PredictionUnknown,
			MissingFields: []api.FieldRequest{},
		})
		ids = append(ids, c.Identifier)
	}

	upd.WithAttribute(collab.AttrCandidates, cands).WithResults(items)
	if len(ids) == 0 {
		return upd.WithAudit("no candidate codes found"), nil
	}
	return upd.WithAudit(fmt.Sprintf(
		"predicted %d candidate code(s): %s",
		len(ids), strings.Join(ids, ", "),
	)), nil
}

func (n *nodes) rerankCodes(
	ctx context.Context, st *api.WorkflowState, deps *collab.Collaborators,
) (*api.PartialUpdate, error) {
	if err := requireDocument(st); err != nil {
		return nil, err
	}

	upd := api.NewUpdate().WithDescription("Select the best service code")
	var cands []collab.Candidate
	st.Attributes.Decode(collab.AttrCandidates, &cands)
	if len(cands) == 0 {
		return upd.WithResults(nil).
			WithAudit("no candidates to rerank"), nil
	}

	best, note, err := invoke(deps.Rerank, n.fallback.Rerank,
		func(r collab.Reranker) (collab.Candidate, error) {
			return r.Rerank(ctx, st.DocumentText, cands)
		},
	)
	upd.WithAudit(note...)
	if err != nil || !slices.ContainsFunc(cands, sameIdentifier(best)) {
		best = cands[0]
		upd.WithAudit(fmt.Sprintf(
			"rerank unusable, kept first candidate %s", best.Identifier,
		))
	}

	return upd.WithAttribute(collab.AttrSelectedCode, best.Identifier).
		WithResults([]api.PredictionItem{{
			Identifier:    best.Identifier,
			Status:        api.PredictionUnknown,
			MissingFields: []api.FieldRequest{},
		}}).
		WithAudit(fmt.Sprintf("selected code %s", best.Identifier)), nil
}

func (n *nodes) validateNote(
	ctx context.Context, st *api.WorkflowState, deps *collab.Collaborators,
) (*api.PartialUpdate, error) {
	if err := requireDocument(st); err != nil {
		return nil, err
	}

	upd := api.NewUpdate().WithDescription("Validate note requirements")
	items := make([]api.PredictionItem, 0, len(st.StageResults))
	for _, prev := range st.StageResults {
		res, note, err := invoke(deps.Validate, n.fallback.Validate,
			func(v collab.Validator) (collab.Validation, error) {
				return v.Validate(ctx, st.DocumentText, prev.Identifier)
			},
		)
		upd.WithAudit(note...)
		if err != nil {
			upd.WithAudit(fmt.Sprintf(
				"validation of %s failed: %v", prev.Identifier, err,
			))
			res = collab.Validation{
				Identifier: prev.Identifier,
				Status:     api.PredictionUnknown,
			}
		}
		item := validatedItem(prev, res)
		items = append(items, item)
		upd.WithAudit(fmt.Sprintf("%s is %s", item.Identifier, item.Status))
	}
	upd.WithResults(items)

	open := false
	for _, item := range items {
		if len(item.Unanswered()) > 0 {
			open = true
		}
	}
	if !open {
		return upd.WithAwaiting(false, ""), nil
	}

	question, note, err := invoke(deps.Questions, n.fallback.Questions,
		func(p collab.QuestionPlanner) (string, error) {
			return p.Plan(ctx, st.DocumentText, items)
		},
	)
	upd.WithAudit(note...)
	if err != nil {
		question = api.QuestionFor(items)
	}
	return upd.WithAwaiting(true, question).
		WithAudit("waiting for missing documentation"), nil
}

func (n *nodes) checkReferral(
	ctx context.Context, st *api.WorkflowState, deps *collab.Collaborators,
) (*api.PartialUpdate, error) {
	upd := api.NewUpdate().WithDescription("Check referral requirement")
	ids := identifiers(st.StageResults)
	ref, note, err := invoke(deps.Referral, n.fallback.Referral,
		func(a collab.ReferralAdvisor) (collab.Referral, error) {
			return a.Assess(ctx, st.DocumentText, ids)
		},
	)
	upd.WithAudit(note...)
	if err != nil {
		return upd, err
	}

	upd.WithAttribute(collab.AttrReferralRequired, ref.Required).
		WithAttribute(collab.AttrReferralReason, ref.Reason)
	if ref.RuleID != "" {
		upd.WithAttribute(collab.AttrReferralRule, ref.RuleID)
	}
	return upd.WithAudit("referral check: " + ref.Reason), nil
}

func (n *nodes) draftReferral(
	ctx context.Context, st *api.WorkflowState, deps *collab.Collaborators,
) (*api.PartialUpdate, error) {
	ref := collab.Referral{
		RuleID:   st.Attributes.String(collab.AttrReferralRule),
		Reason:   st.Attributes.String(collab.AttrReferralReason),
		Required: true,
	}

	upd := api.NewUpdate().WithDescription("Draft referral letter")
	draft, note, err := invoke(deps.Drafter, n.fallback.Drafter,
		func(d collab.Drafter) (string, error) {
			return d.Draft(ctx, st.DocumentText, ref)
		},
	)
	upd.WithAudit(note...)
	if err != nil {
		return upd, err
	}
	return upd.WithAttribute(collab.AttrReferralDraft, draft).
		WithAudit("referral letter drafted"), nil
}

func (n *nodes) renderSummary(
	ctx context.Context, st *api.WorkflowState, deps *collab.Collaborators,
) (*api.PartialUpdate, error) {
	upd := api.NewUpdate().WithDescription("Render patient summary")
	data, note, err := invoke(deps.Renderer, n.fallback.Renderer,
		func(r collab.Renderer) ([]byte, error) {
			return r.Render(ctx, st)
		},
	)
	upd.WithAudit(note...)
	if err != nil {
		return upd, err
	}
	upd.WithAttribute(collab.AttrSummarySize, len(data))

	if deps.Artifacts == nil {
		return upd.WithAudit(fmt.Sprintf(
			"summary rendered (%d bytes), no artifact store", len(data),
		)), nil
	}

	key := SummaryKey(st.SessionID)
	if err := deps.Artifacts.Put(ctx, key, data); err != nil {
		return upd, fmt.Errorf("%w: %w", ErrStoreArtifact, err)
	}
	return upd.WithAttribute(collab.AttrSummaryKey, key).
		WithAudit("summary stored as " + key), nil
}

func (n *nodes) finalize(
	_ context.Context, st *api.WorkflowState, _ *collab.Collaborators,
) (*api.PartialUpdate, error) {
	return api.NewUpdate().
		WithDescription("Finalize").
		WithAudit(fmt.Sprintf(
			"finalized with %d code(s), referral required: %t",
			len(st.StageResults),
			st.Attributes.Bool(collab.AttrReferralRequired),
		)), nil
}

// SummaryKey is the artifact key of a session's rendered summary
func SummaryKey(id api.SessionID) string {
	return fmt.Sprintf("%s/summary.txt", id)
}

// invoke calls the configured collaborator and falls back to the local one
// when it is missing or fails. Any fallback after a failure is described in
// the returned audit lines
func invoke[C, R any](
	configured, fallback C, call func(C) (R, error),
) (R, []string, error) {
	if any(configured) == nil {
		res, err := call(fallback)
		return res, nil, err
	}
	res, err := call(configured)
	if err == nil {
		return res, nil, nil
	}
	note := []string{
		fmt.Sprintf("collaborator failed, used local fallback: %v", err),
	}
	res, err = call(fallback)
	return res, note, err
}

// validatedItem builds the replacement prediction for one identifier,
// keeping the fields a user already answered
func validatedItem(
	prev api.PredictionItem, res collab.Validation,
) api.PredictionItem {
	answered := map[string]api.FieldRequest{}
	var order []string
	for _, f := range prev.MissingFields {
		if f.IsAnswered {
			answered[f.FieldName] = f
			order = append(order, f.FieldName)
		}
	}

	item := api.PredictionItem{
		Identifier:    prev.Identifier,
		MissingFields: []api.FieldRequest{},
	}
	seen := map[string]bool{}
	for _, name := range order {
		item.MissingFields = append(item.MissingFields, answered[name])
		seen[name] = true
	}
	for _, name := range res.MissingFields {
		if seen[name] {
			continue
		}
		seen[name] = true
		item.MissingFields = append(item.MissingFields,
			api.FieldRequest{FieldName: name})
	}

	switch {
	case res.Status == api.PredictionUnknown || !res.Status.IsValid():
		item.Status = api.PredictionUnknown
	case len(item.Unanswered()) > 0:
		item.Status = api.PredictionFailing
	default:
		item.Status = api.PredictionPassing
	}
	return item
}

func requireDocument(st *api.WorkflowState) error {
	if strings.TrimSpace(st.DocumentText) == "" {
		return graph.Fatal(ErrNoDocument)
	}
	return nil
}

func identifiers(items []api.PredictionItem) []string {
	res := make([]string, 0, len(items))
	for _, item := range items {
		res = append(res, item.Identifier)
	}
	return res
}

func entityKinds(ents []collab.Entity) string {
	var kinds []string
	for _, e := range ents {
		if !slices.Contains(kinds, e.Kind) {
			kinds = append(kinds, e.Kind)
		}
	}
	slices.Sort(kinds)
	return strings.Join(kinds, ", ")
}

func sameIdentifier(c collab.Candidate) func(collab.Candidate) bool {
	return func(o collab.Candidate) bool {
		return o.Identifier == c.Identifier
	}
}
