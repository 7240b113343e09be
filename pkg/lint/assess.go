package lint

import (
	"context"
	"strings"
)

// HeuristicAssessor categorizes findings from rule names and messages
// alone. It is the default assessment path when no language-aware
// analyzer is plugged in.
type HeuristicAssessor struct{}

// NewHeuristicAssessor returns a ready assessor.
func NewHeuristicAssessor() *HeuristicAssessor {
	return &HeuristicAssessor{}
}

// Assess enriches every finding. The output order matches the input.
func (h *HeuristicAssessor) Assess(ctx context.Context, findings []Finding) ([]ErrorAssessment, error) {
	// Related-error counts link findings in the same file and category.
	type fileCat struct {
		file     string
		category ErrorCategory
	}
	related := make(map[fileCat]int)
	categories := make([]ErrorCategory, len(findings))
	for i, f := range findings {
		categories[i] = categorize(f)
		related[fileCat{f.FilePath, categories[i]}]++
	}

	out := make([]ErrorAssessment, len(findings))
	for i, f := range findings {
		category := categories[i]
		complexity := complexityFor(category)
		out[i] = ErrorAssessment{
			Finding:         f,
			Category:        category,
			Complexity:      complexity,
			Fixable:         fixableFor(category),
			Priority:        priorityFor(f, category),
			EstimatedEffort: effortFor(complexity),
			RelatedErrors:   related[fileCat{f.FilePath, category}] - 1,
			ContextSize:     contextSizeFor(complexity),
		}
	}
	return out, nil
}

// categorize maps a finding onto an error category from its rule and
// message text.
func categorize(f Finding) ErrorCategory {
	rule := strings.ToLower(f.RuleID)
	msg := strings.ToLower(f.Message)

	switch {
	case containsAny(rule, "undefined", "no-undef", "undef", "f821"):
		return CategoryUndefinedReference
	case containsAny(rule, "global-statement", "global-variable", "no-global-assign", "w0603"):
		return CategoryGlobalMutation
	case containsAny(rule, "import-error", "no-unresolved", "e0401") ||
		strings.Contains(msg, "unable to import") ||
		strings.Contains(msg, "cannot resolve"):
		return CategoryUnresolvedImport
	case containsAny(rule, "unused-import", "no-unused-vars", "f401", "w0611"):
		return CategoryUnusedImport
	case containsAny(rule, "line-too-long", "trailing-whitespace", "e501", "w291", "w293", "max-len", "semi", "quotes", "indent"):
		return CategoryTrivialStyle
	case containsAny(rule, "gofmt", "goimports", "black", "prettier", "format"):
		return CategoryFormatting
	case containsAny(rule, "type", "ts2", "arg-type", "return-value", "e1101") ||
		strings.Contains(msg, "incompatible type"):
		return CategoryTypeError
	default:
		return CategoryOther
	}
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

func complexityFor(category ErrorCategory) ComplexityTier {
	switch category {
	case CategoryTrivialStyle, CategoryFormatting:
		return ComplexityTrivial
	case CategoryUnusedImport:
		return ComplexitySimple
	case CategoryUnresolvedImport, CategoryTypeError:
		return ComplexityModerate
	case CategoryUndefinedReference, CategoryGlobalMutation:
		return ComplexityComplex
	default:
		return ComplexitySimple
	}
}

func fixableFor(category ErrorCategory) bool {
	switch category {
	case CategoryUndefinedReference, CategoryGlobalMutation:
		return false
	default:
		return true
	}
}

// priorityFor combines severity with category weight into the 1-10 range.
func priorityFor(f Finding, category ErrorCategory) int {
	base := int(f.Severity.Weight() * 8)
	switch category {
	case CategoryUndefinedReference, CategoryTypeError:
		base += 2
	case CategoryUnresolvedImport:
		base += 1
	case CategoryTrivialStyle, CategoryFormatting:
		base -= 2
	}
	if base < 1 {
		return 1
	}
	if base > 10 {
		return 10
	}
	return base
}

func effortFor(complexity ComplexityTier) int {
	switch complexity {
	case ComplexityTrivial:
		return 1
	case ComplexitySimple:
		return 2
	case ComplexityModerate:
		return 3
	default:
		return 4
	}
}

func contextSizeFor(complexity ComplexityTier) int {
	switch complexity {
	case ComplexityTrivial:
		return 5
	case ComplexitySimple:
		return 15
	case ComplexityModerate:
		return 40
	default:
		return 80
	}
}
