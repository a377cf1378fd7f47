package local

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/wilson-pinto/medical-agent-poc/internal/collab"
	"github.com/wilson-pinto/medical-agent-poc/pkg/api"
)

type (
	// Searcher scores catalog codes by the share of their keywords that
	// appear in a note
	Searcher struct {
		catalog *Catalog
	}

	// Reranker picks the highest scoring candidate
	Reranker struct{}

	// Validator checks a note against the catalog requirements of a code
	Validator struct {
		catalog *Catalog
	}
)

var (
	_ collab.Searcher  = (*Searcher)(nil)
	_ collab.Reranker  = Reranker{}
	_ collab.Validator = (*Validator)(nil)
)

// NewSearcher creates a Searcher over a catalog
func NewSearcher(cat *Catalog) *Searcher {
	return &Searcher{catalog: cat}
}

// Search returns up to limit codes with a positive score, best first
func (s *Searcher) Search(
	_ context.Context, text string, limit int,
) ([]collab.Candidate, error) {
	lower := strings.ToLower(text)
	var res []collab.Candidate
	for _, code := range s.catalog.Codes {
		if len(code.Keywords) == 0 {
			continue
		}
		hits := 0
		for _, kw := range code.Keywords {
			if strings.Contains(lower, strings.ToLower(kw)) {
				hits++
			}
		}
		if hits == 0 {
			continue
		}
		res = append(res, collab.Candidate{
			Identifier:  code.Code,
			Description: code.Description,
			Score:       float64(hits) / float64(len(code.Keywords)),
		})
	}
	sort.SliceStable(res, func(i, j int) bool {
		if res[i].Score != res[j].Score {
			return res[i].Score > res[j].Score
		}
		return res[i].Identifier < res[j].Identifier
	})
	if limit > 0 && len(res) > limit {
		res = res[:limit]
	}
	return res, nil
}

// Rerank returns the candidate with the highest score. Ties keep the
// earlier candidate
func (Reranker) Rerank(
	_ context.Context, _ string, candidates []collab.Candidate,
) (collab.Candidate, error) {
	if len(candidates) == 0 {
		return collab.Candidate{}, collab.ErrNoCandidates
	}
	best := candidates[0]
	for _, c := range candidates[1:] {
		if c.Score > best.Score {
			best = c
		}
	}
	return best, nil
}

// NewValidator creates a Validator over a catalog
func NewValidator(cat *Catalog) *Validator {
	return &Validator{catalog: cat}
}

// Validate reports the requirements of identifier the note does not meet.
// A field also counts as documented when the note carries an answer line
// for it. Codes missing from the catalog are reported as unknown
func (v *Validator) Validate(
	_ context.Context, text, identifier string,
) (collab.Validation, error) {
	res := collab.Validation{
		Identifier:    identifier,
		MissingFields: []string{},
	}
	code, ok := v.catalog.Lookup(identifier)
	if !ok {
		res.Status = api.PredictionUnknown
		return res, nil
	}

	lower := strings.ToLower(text)
	for _, req := range code.Requirements {
		answered := strings.Contains(lower, fmt.Sprintf("%s:", req.Field))
		if !answered && !containsAny(lower, req.Terms) {
			res.MissingFields = append(res.MissingFields, req.Field)
		}
	}
	res.Status = api.PredictionPassing
	if len(res.MissingFields) > 0 {
		res.Status = api.PredictionFailing
	}
	return res, nil
}
