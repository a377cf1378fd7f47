// Package stages defines the clinical note workflow: the stage IDs, the
// node for each stage, and the routing between them
package stages

import (
	"errors"

	"github.com/wilson-pinto/medical-agent-poc/internal/collab"
	"github.com/wilson-pinto/medical-agent-poc/internal/graph"
	"github.com/wilson-pinto/medical-agent-poc/internal/local"
	"github.com/wilson-pinto/medical-agent-poc/pkg/api"
)

const (
	DetectPII     api.StageID = "detect_pii"
	AnonymizePII  api.StageID = "anonymize_pii"
	PredictCodes  api.StageID = "predict_codes"
	RerankCodes   api.StageID = "rerank_codes"
	ValidateNote  api.StageID = "validate_note"
	CheckReferral api.StageID = "check_referral"
	DraftReferral api.StageID = "draft_referral"
	RenderSummary api.StageID = "render_summary"
	Finalize      api.StageID = "finalize"
)

var (
	ErrNoDocument    = errors.New("document is empty")
	ErrStoreArtifact = errors.New("failed to store artifact")
)

// Build compiles the clinical graph. The fallback collaborators serve any
// collaborator that is not configured or that fails. A nil fallback uses
// the local collaborators over the default catalog
func Build(fallback *collab.Collaborators) (*graph.Graph, error) {
	if fallback == nil {
		fallback = local.New(nil)
	}
	n := &nodes{fallback: fallback}

	return graph.NewBuilder().
		Stage(DetectPII, n.detectPII).
		Stage(AnonymizePII, n.anonymizePII).
		Stage(PredictCodes, n.predictCodes).
		Stage(RerankCodes, n.rerankCodes).
		Stage(ValidateNote, n.validateNote).
		Stage(CheckReferral, n.checkReferral).
		Stage(DraftReferral, n.draftReferral).
		Stage(RenderSummary, n.renderSummary).
		Stage(Finalize, n.finalize).
		Entry(DetectPII).
		Branch(DetectPII, routePII,
			graph.To(AnonymizePII), graph.To(PredictCodes),
		).
		Edge(AnonymizePII, PredictCodes).
		Edge(PredictCodes, RerankCodes).
		Edge(RerankCodes, ValidateNote).
		Edge(ValidateNote, CheckReferral).
		Branch(CheckReferral, routeReferral,
			graph.To(DraftReferral), graph.To(RenderSummary),
		).
		Edge(DraftReferral, RenderSummary).
		Edge(RenderSummary, Finalize).
		Terminal(Finalize).
		Build()
}

func routePII(st *api.WorkflowState) graph.Target {
	if st.Attributes.Bool(collab.AttrPIIFound) {
		return graph.To(AnonymizePII)
	}
	return graph.To(PredictCodes)
}

func routeReferral(st *api.WorkflowState) graph.Target {
	if st.Attributes.Bool(collab.AttrReferralRequired) {
		return graph.To(DraftReferral)
	}
	return graph.To(RenderSummary)
}
