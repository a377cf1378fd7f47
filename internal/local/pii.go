package local

import (
	"context"
	"regexp"
	"sort"
	"strings"

	"github.com/wilson-pinto/medical-agent-poc/internal/collab"
)

type (
	// PIIDetector finds national identity numbers, phone numbers and
	// email addresses with fixed patterns
	PIIDetector struct{}

	// Anonymizer replaces detected spans with <KIND> placeholders
	Anonymizer struct{}

	piiPattern struct {
		re   *regexp.Regexp
		kind string
	}
)

const (
	KindNationalID = "FNR"
	KindPhone      = "PHONE_NUMBER"
	KindEmail      = "EMAIL_ADDRESS"
)

// Longer patterns first, so an 11 digit number is never read as a phone
var piiPatterns = []piiPattern{
	{re: regexp.MustCompile(`\b\d{11}\b`), kind: KindNationalID},
	{re: regexp.MustCompile(`\b\d{8}\b`), kind: KindPhone},
	{
		re:   regexp.MustCompile(`\b[\w.+-]+@[\w-]+(\.[\w-]+)+\b`),
		kind: KindEmail,
	},
}

var (
	_ collab.PIIDetector = PIIDetector{}
	_ collab.Anonymizer  = Anonymizer{}
)

// Detect returns the non-overlapping entities in text ordered by offset
func (PIIDetector) Detect(
	_ context.Context, text string,
) ([]collab.Entity, error) {
	var res []collab.Entity
	for _, p := range piiPatterns {
		for _, loc := range p.re.FindAllStringIndex(text, -1) {
			ent := collab.Entity{Kind: p.kind, Start: loc[0], End: loc[1]}
			if !overlaps(res, ent) {
				res = append(res, ent)
			}
		}
	}
	sort.Slice(res, func(i, j int) bool {
		return res[i].Start < res[j].Start
	})
	return res, nil
}

// Anonymize masks each entity. Entities that fall outside the text are
// skipped
func (Anonymizer) Anonymize(
	_ context.Context, text string, entities []collab.Entity,
) (string, error) {
	ents := append([]collab.Entity(nil), entities...)
	sort.Slice(ents, func(i, j int) bool {
		return ents[i].Start < ents[j].Start
	})

	var b strings.Builder
	pos := 0
	for _, e := range ents {
		if e.Start < pos || e.End > len(text) || e.Start >= e.End {
			continue
		}
		b.WriteString(text[pos:e.Start])
		b.WriteString("<" + e.Kind + ">")
		pos = e.End
	}
	b.WriteString(text[pos:])
	return b.String(), nil
}

func overlaps(ents []collab.Entity, e collab.Entity) bool {
	for _, o := range ents {
		if e.Start < o.End && o.Start < e.End {
			return true
		}
	}
	return false
}
