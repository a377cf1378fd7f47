package local

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

type (
	// Catalog holds the service codes and referral rules the local
	// collaborators work from
	Catalog struct {
		Codes         []Code         `yaml:"codes"`
		ReferralRules []ReferralRule `yaml:"referral_rules"`
		byCode        map[string]*Code
	}

	// Code is a billable service code with its documentation rules
	Code struct {
		Code         string        `yaml:"code"`
		Description  string        `yaml:"description"`
		Keywords     []string      `yaml:"keywords"`
		Requirements []Requirement `yaml:"requirements"`
	}

	// Requirement names a field a note must document. It is met when any
	// of its terms appears in the note
	Requirement struct {
		Field string   `yaml:"field"`
		Terms []string `yaml:"terms"`
	}

	// ReferralRule marks notes mentioning any of its keywords
	ReferralRule struct {
		ID          string   `yaml:"id"`
		Description string   `yaml:"description"`
		Keywords    []string `yaml:"keywords"`
		Required    bool     `yaml:"referral_required"`
	}
)

//go:embed catalog.yaml
var defaultCatalog []byte

var (
	ErrReadCatalog    = errors.New("failed to read catalog")
	ErrParseCatalog   = errors.New("failed to parse catalog")
	ErrDuplicateCode  = errors.New("duplicate service code")
	ErrEmptyCode      = errors.New("service code is empty")
	ErrEmptyRuleID    = errors.New("referral rule id is empty")
	ErrEmptyFieldName = errors.New("requirement field is empty")
)

// DefaultCatalog returns the catalog compiled into the binary
func DefaultCatalog() *Catalog {
	cat, err := ParseCatalog(defaultCatalog)
	if err != nil {
		panic(err)
	}
	return cat
}

// LoadCatalog reads a catalog from a YAML file
func LoadCatalog(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrReadCatalog, err)
	}
	return ParseCatalog(data)
}

// ParseCatalog decodes and checks a YAML catalog
func ParseCatalog(data []byte) (*Catalog, error) {
	var cat Catalog
	if err := yaml.Unmarshal(data, &cat); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrParseCatalog, err)
	}
	if err := cat.index(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrParseCatalog, err)
	}
	return &cat, nil
}

// Lookup returns the code entry for an identifier
func (c *Catalog) Lookup(code string) (*Code, bool) {
	res, ok := c.byCode[strings.ToUpper(strings.TrimSpace(code))]
	return res, ok
}

func (c *Catalog) index() error {
	c.byCode = make(map[string]*Code, len(c.Codes))
	for i := range c.Codes {
		code := &c.Codes[i]
		key := strings.ToUpper(strings.TrimSpace(code.Code))
		if key == "" {
			return ErrEmptyCode
		}
		if _, ok := c.byCode[key]; ok {
			return fmt.Errorf("%w: %s", ErrDuplicateCode, code.Code)
		}
		for _, req := range code.Requirements {
			if req.Field == "" {
				return fmt.Errorf("%w: %s", ErrEmptyFieldName, code.Code)
			}
		}
		c.byCode[key] = code
	}
	for _, rule := range c.ReferralRules {
		if rule.ID == "" {
			return ErrEmptyRuleID
		}
	}
	return nil
}

func containsAny(text string, terms []string) bool {
	for _, term := range terms {
		if term != "" && strings.Contains(text, strings.ToLower(term)) {
			return true
		}
	}
	return false
}
