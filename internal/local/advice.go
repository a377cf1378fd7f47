package local

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/wilson-pinto/medical-agent-poc/internal/collab"
	"github.com/wilson-pinto/medical-agent-poc/pkg/api"
)

type (
	// QuestionPlanner phrases one line per identifier with open fields
	QuestionPlanner struct{}

	// ReferralAdvisor applies the catalog referral rules
	ReferralAdvisor struct {
		catalog *Catalog
	}

	// Drafter fills a fixed referral letter template
	Drafter struct{}

	// Renderer writes a plain text summary of a session
	Renderer struct{}
)

// ReferralCodePrefix marks service codes that always need a referral
const ReferralCodePrefix = "FRACT"

var (
	_ collab.QuestionPlanner = QuestionPlanner{}
	_ collab.ReferralAdvisor = (*ReferralAdvisor)(nil)
	_ collab.Drafter         = Drafter{}
	_ collab.Renderer        = Renderer{}
)

func (QuestionPlanner) Plan(
	_ context.Context, _ string, items []api.PredictionItem,
) (string, error) {
	return api.QuestionFor(items), nil
}

// NewReferralAdvisor creates a ReferralAdvisor over a catalog
func NewReferralAdvisor(cat *Catalog) *ReferralAdvisor {
	return &ReferralAdvisor{catalog: cat}
}

// Assess applies the first rule whose keywords appear in the note. When
// no rule requires a referral, codes with the referral prefix still do
func (a *ReferralAdvisor) Assess(
	_ context.Context, text string, identifiers []string,
) (collab.Referral, error) {
	lower := strings.ToLower(text)
	var matched *ReferralRule
	for i := range a.catalog.ReferralRules {
		rule := &a.catalog.ReferralRules[i]
		if containsAny(lower, rule.Keywords) {
			matched = rule
			break
		}
	}

	if matched != nil && matched.Required {
		return collab.Referral{
			RuleID: matched.ID,
			Reason: fmt.Sprintf("matched rule %s: %s",
				matched.ID, matched.Description),
			Required: true,
		}, nil
	}

	res := collab.Referral{Reason: "no referral required"}
	if matched != nil {
		res.RuleID = matched.ID
	}
	for _, id := range identifiers {
		if strings.HasPrefix(strings.ToUpper(id), ReferralCodePrefix) {
			res.Required = true
			res.Reason = fmt.Sprintf("service code %s requires referral", id)
			break
		}
	}
	return res, nil
}

func (Drafter) Draft(
	_ context.Context, text string, ref collab.Referral,
) (string, error) {
	var b strings.Builder
	b.WriteString("Referral request\n\n")
	fmt.Fprintf(&b, "Reason: %s\n", ref.Reason)
	if ref.RuleID != "" {
		fmt.Fprintf(&b, "Rule: %s\n", ref.RuleID)
	}
	b.WriteString("\nClinical note:\n")
	b.WriteString(strings.TrimSpace(text))
	b.WriteString("\n")
	return b.String(), nil
}

func (Renderer) Render(
	_ context.Context, st *api.WorkflowState,
) ([]byte, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "Session %s\n", st.SessionID)
	fmt.Fprintf(&b, "Created %s\n\n", st.CreatedAt.UTC().Format(time.RFC3339))

	b.WriteString("Service codes:\n")
	if len(st.StageResults) == 0 {
		b.WriteString("  (none)\n")
	}
	for _, item := range st.StageResults {
		fmt.Fprintf(&b, "  %s [%s]\n", item.Identifier, item.Status)
		for _, f := range item.MissingFields {
			if f.IsAnswered {
				fmt.Fprintf(&b, "    %s: %s\n", f.FieldName, f.Answer())
			} else {
				fmt.Fprintf(&b, "    %s: (missing)\n", f.FieldName)
			}
		}
	}

	if st.Attributes.Bool(collab.AttrReferralRequired) {
		fmt.Fprintf(&b, "\nReferral: %s\n",
			st.Attributes.String(collab.AttrReferralReason))
	}

	b.WriteString("\nNote:\n")
	b.WriteString(strings.TrimSpace(st.DocumentText))
	b.WriteString("\n")
	return []byte(b.String()), nil
}
