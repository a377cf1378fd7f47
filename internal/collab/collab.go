// Package collab declares the external collaborators consumed by stages
//
// Each collaborator is a narrow interface returning a best-effort result
// or an explicit error. Stages substitute deterministic fallbacks when a
// collaborator fails
package collab

import (
	"context"
	"errors"

	"github.com/wilson-pinto/medical-agent-poc/pkg/api"
)

type (
	// Entity is a span of personally identifying text
	Entity struct {
		Kind  string `json:"kind"`
		Start int    `json:"start"`
		End   int    `json:"end"`
	}

	// Candidate is a ranked identifier returned by a search
	Candidate struct {
		Identifier  string  `json:"identifier"`
		Description string  `json:"description,omitempty"`
		Score       float64 `json:"score"`
	}

	// Validation is the compliance verdict for one identifier
	Validation struct {
		Identifier    string               `json:"identifier"`
		Status        api.PredictionStatus `json:"status"`
		MissingFields []string             `json:"missing_fields"`
	}

	// Referral is the outcome of a referral assessment
	Referral struct {
		RuleID   string `json:"rule_id,omitempty"`
		Reason   string `json:"reason"`
		Required bool   `json:"required"`
	}

	// PIIDetector finds identifying spans in text
	PIIDetector interface {
		Detect(ctx context.Context, text string) ([]Entity, error)
	}

	// Anonymizer rewrites text with the given spans masked
	Anonymizer interface {
		Anonymize(
			ctx context.Context, text string, entities []Entity,
		) (string, error)
	}

	// Searcher returns candidate identifiers ranked by relevance
	Searcher interface {
		Search(ctx context.Context, text string, limit int) ([]Candidate, error)
	}

	// Reranker picks the best identifier among candidates
	Reranker interface {
		Rerank(
			ctx context.Context, text string, candidates []Candidate,
		) (Candidate, error)
	}

	// Validator checks a document against the rules of one identifier
	Validator interface {
		Validate(
			ctx context.Context, text, identifier string,
		) (Validation, error)
	}

	// QuestionPlanner phrases a question for the unanswered fields
	QuestionPlanner interface {
		Plan(
			ctx context.Context, text string, items []api.PredictionItem,
		) (string, error)
	}

	// ReferralAdvisor decides whether a referral is required
	ReferralAdvisor interface {
		Assess(
			ctx context.Context, text string, identifiers []string,
		) (Referral, error)
	}

	// Drafter writes a referral letter
	Drafter interface {
		Draft(ctx context.Context, text string, ref Referral) (string, error)
	}

	// Renderer produces a binary artifact from a session state
	Renderer interface {
		Render(ctx context.Context, st *api.WorkflowState) ([]byte, error)
	}

	// ArtifactStore persists rendered artifacts under a key
	ArtifactStore interface {
		Put(ctx context.Context, key string, data []byte) error
	}

	// Collaborators bundles every dependency a stage may consume
	Collaborators struct {
		PII         PIIDetector
		Anonymizer  Anonymizer
		Search      Searcher
		Rerank      Reranker
		Validate    Validator
		Questions   QuestionPlanner
		Referral    ReferralAdvisor
		Drafter     Drafter
		Renderer    Renderer
		Artifacts   ArtifactStore
		SearchLimit int
	}
)

// DefaultSearchLimit is the number of candidates requested when unset
const DefaultSearchLimit = 5

// Attribute keys written by the clinical stages
const (
	AttrPIIFound         = "pii_found"
	AttrPIIEntities      = "pii_entities"
	AttrCandidates       = "candidates"
	AttrSelectedCode     = "selected_code"
	AttrReferralRequired = "referral_required"
	AttrReferralRule     = "referral_rule"
	AttrReferralReason   = "referral_reason"
	AttrReferralDraft    = "referral_draft"
	AttrSummaryKey       = "summary_key"
	AttrSummarySize      = "summary_size"
)

var (
	ErrUnavailable     = errors.New("collaborator unavailable")
	ErrNoCandidates    = errors.New("no candidates to rank")
	ErrInvalidResponse = errors.New("invalid collaborator response")
)

// Limit returns the configured search limit or the default
func (c *Collaborators) Limit() int {
	if c == nil || c.SearchLimit <= 0 {
		return DefaultSearchLimit
	}
	return c.SearchLimit
}
