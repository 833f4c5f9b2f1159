package bomtext

import (
	"fmt"
	"regexp"
	"strings"
)

// ---------------------------------------------------------------------------
// Patterns
// ---------------------------------------------------------------------------

const (
	// PatternHierarchicalCode matches codes such as 01.09.2549. \b is
	// ASCII-only, so CJK text directly before or after a code is a boundary.
	PatternHierarchicalCode = `\b\d{2}\.\d{2}\.\d{4}\b`

	// PatternProductCode matches compound product codes such as T-SPV1830-EURO-09.
	PatternProductCode = `T-[A-Z0-9]+-[A-Z0-9]+-\d+`
)

// specRule is one size-token form. Rules are tried in order and the first
// rule that matches anywhere in the text wins.
type specRule struct {
	re    *regexp.Regexp
	upper bool
}

var defaultSpecRules = []specRule{
	// thread by length, M8×80 / m8*80
	{re: regexp.MustCompile(`(?i)M\d+[×*]\d+`), upper: true},
	// diameter by length, Φ20×3 / 16*3
	{re: regexp.MustCompile(`[ΦФ]?\d+[×*]\d+`)},
	// bare thread, M8
	{re: regexp.MustCompile(`(?i)M\d+`), upper: true},
}

// ---------------------------------------------------------------------------
// Configuration
// ---------------------------------------------------------------------------

// ExtractorConfig holds tuneable parameters for code extraction.
type ExtractorConfig struct {
	// ExtraCodePatterns are appended after the built-in code patterns.
	ExtraCodePatterns []string `json:"extra_code_patterns" yaml:"extra_code_patterns"`
}

// DefaultExtractorConfig returns the built-in configuration.
func DefaultExtractorConfig() ExtractorConfig {
	return ExtractorConfig{}
}

// ---------------------------------------------------------------------------
// Extractor
// ---------------------------------------------------------------------------

// Extractor pulls part codes and size specifications out of names. It holds
// only compiled patterns and is safe for concurrent use.
type Extractor struct {
	codeRes []*regexp.Regexp
	specs   []specRule
}

// NewExtractor compiles cfg. It fails only on an invalid extra pattern.
func NewExtractor(cfg ExtractorConfig) (*Extractor, error) {
	e := &Extractor{
		codeRes: []*regexp.Regexp{
			regexp.MustCompile(PatternHierarchicalCode),
			regexp.MustCompile(PatternProductCode),
		},
		specs: defaultSpecRules,
	}
	for _, p := range cfg.ExtraCodePatterns {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("bomtext: invalid code pattern %q: %w", p, err)
		}
		e.codeRes = append(e.codeRes, re)
	}
	return e, nil
}

var defaultExtractor, _ = NewExtractor(DefaultExtractorConfig())

// Default returns the shared extractor built from DefaultExtractorConfig.
func Default() *Extractor { return defaultExtractor }

// ExtractCode returns the code that starts first in s. When two patterns
// start at the same offset the earlier pattern wins.
func (e *Extractor) ExtractCode(s string) (string, bool) {
	if s == "" {
		return "", false
	}
	best, bestAt := "", -1
	for _, re := range e.codeRes {
		loc := re.FindStringIndex(s)
		if loc == nil {
			continue
		}
		if bestAt == -1 || loc[0] < bestAt {
			best, bestAt = s[loc[0]:loc[1]], loc[0]
		}
	}
	return best, bestAt >= 0
}

// ExtractSpec returns the normalized size token of s: upper-cased for thread
// sizes, with "*" rewritten to "×" so BOM-side and mesh-side tokens compare
// equal.
func (e *Extractor) ExtractSpec(s string) (string, bool) {
	if s == "" {
		return "", false
	}
	for _, rule := range e.specs {
		m := rule.re.FindString(s)
		if m == "" {
			continue
		}
		if rule.upper {
			m = strings.ToUpper(m)
		}
		return strings.ReplaceAll(m, "*", "×"), true
	}
	return "", false
}

// ExtractCode uses the default extractor.
func ExtractCode(s string) (string, bool) { return defaultExtractor.ExtractCode(s) }

// ExtractSpec uses the default extractor.
func ExtractSpec(s string) (string, bool) { return defaultExtractor.ExtractSpec(s) }

// Normalize repairs name; it lets an Extractor serve as the full text
// analyzer of the matcher.
func (e *Extractor) Normalize(name string) string { return Normalize(name) }
