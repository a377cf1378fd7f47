// Package local provides deterministic, in-process collaborators. They
// serve as the default when no remote service is configured and as the
// fallback when one fails
package local

import "github.com/wilson-pinto/medical-agent-poc/internal/collab"

// New returns a complete collaborator set backed by a catalog. Artifacts
// are left unset
func New(cat *Catalog) *collab.Collaborators {
	if cat == nil {
		cat = DefaultCatalog()
	}
	return &collab.Collaborators{
		PII:         PIIDetector{},
		Anonymizer:  Anonymizer{},
		Search:      NewSearcher(cat),
		Rerank:      Reranker{},
		Validate:    NewValidator(cat),
		Questions:   QuestionPlanner{},
		Referral:    NewReferralAdvisor(cat),
		Drafter:     Drafter{},
		Renderer:    Renderer{},
		SearchLimit: collab.DefaultSearchLimit,
	}
}
