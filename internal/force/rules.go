package force

import (
	"strings"

	"github.com/tosin2013/aider-lint-fixer/pkg/lint"
)

// Rule classification tables. Rule IDs are matched case-insensitively after
// stripping the linter prefix ("pylint:undefined-variable" and
// "undefined-variable" classify identically).

// safeRules are formatting/style rules that are safe to auto-fix whenever
// confidence clears the lowered allowlist bar.
var safeRules = map[string]bool{
	"line-too-long":           true,
	"trailing-whitespace":     true,
	"missing-final-newline":   true,
	"superfluous-parens":      true,
	"unnecessary-semicolon":   true,
	"bad-indentation":         true,
	"trailing-newlines":       true,
	"whitespace-before-colon": true,
	"e501":                    true,
	"max-len":                 true,
	"w291":                    true,
	"w292":                    true,
	"w293":                    true,
	"indent":                  true,
	"semi":                    true,
	"quotes":                  true,
	"comma-dangle":            true,
	"no-trailing-spaces":      true,
	"gofmt":                   true,
	"whitespace":              true,
}

// dangerousRules can break runtime behavior at a distance; their base
// confidence stays low regardless of how trivial the textual edit looks.
var dangerousRules = map[string]float64{
	"undefined-variable":  0.20,
	"undefined-reference": 0.20,
	"no-undef":            0.20,
	"f821":                0.20,
	"global-statement":    0.25,
	"global-variable":     0.25,
	"global-mutation":     0.25,
	"import-error":        0.30,
	"no-name-in-module":   0.30,
	"e0401":               0.30,
}

// longLineRules are the safe rules that get the template-string override.
var longLineRules = map[string]bool{
	"line-too-long": true,
	"e501":          true,
	"max-len":       true,
}

// normalizeRule strips a "linter:" prefix and lowercases the rule ID.
func normalizeRule(ruleID string) string {
	rule := strings.ToLower(ruleID)
	if idx := strings.LastIndex(rule, ":"); idx >= 0 {
		rule = rule[idx+1:]
	}
	return strings.TrimSpace(rule)
}

func isSafeRule(ruleID string) bool {
	return safeRules[normalizeRule(ruleID)]
}

func isDangerousRule(ruleID string) bool {
	_, ok := dangerousRules[normalizeRule(ruleID)]
	return ok
}

// baseConfidence implements the rule classification table: safe rules 0.85,
// dangerous rules 0.20-0.30, unfixable 0.20, everything else 0.60. A safe
// long-line rule inside a template-like or concatenated string drops to
// 0.75 because reflowing those lines tends to change semantics.
func baseConfidence(a *lint.ErrorAssessment) float64 {
	rule := normalizeRule(a.Finding.RuleID)

	if base, ok := dangerousRules[rule]; ok {
		return base
	}
	if !a.Fixable {
		return 0.20
	}
	if safeRules[rule] {
		if longLineRules[rule] && looksLikeTemplateString(a.Finding.Message) {
			return 0.75
		}
		return 0.85
	}
	return 0.60
}

// looksLikeTemplateString reports whether a long-line message points at a
// templated or concatenated string literal rather than plain code.
func looksLikeTemplateString(message string) bool {
	if !strings.ContainsAny(message, `"'`) {
		return false
	}
	for _, marker := range []string{"%s", "%d", "{}", "{0", "${", "f\"", "f'", " + ", ".format("} {
		if strings.Contains(message, marker) {
			return true
		}
	}
	return false
}

// errorTypeMultiplier scales cascade risk by how far a rule's effects can
// travel through the dependency graph.
func errorTypeMultiplier(a *lint.ErrorAssessment) float64 {
	switch a.Category {
	case lint.CategoryUndefinedReference:
		return 0.8
	case lint.CategoryGlobalMutation:
		return 0.7
	case lint.CategoryUnresolvedImport:
		return 0.9
	case lint.CategoryUnusedImport:
		return 0.2
	case lint.CategoryTrivialStyle:
		return 0.1
	default:
		return 0.3
	}
}
