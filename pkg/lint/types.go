// Package lint defines the data model shared between the lint runner,
// the force decision engine, and the fix loop: findings as produced by
// linters, and the assessments layered on top of them by the analyzer.
package lint

import "strings"

// Severity is the linter-reported severity of a finding.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityError    Severity = "error"
	SeverityCritical Severity = "critical"
)

// Weight returns a numeric weight for severity, used in feature vectors.
func (s Severity) Weight() float64 {
	switch s {
	case SeverityInfo:
		return 0.25
	case SeverityWarning:
		return 0.5
	case SeverityError:
		return 0.75
	case SeverityCritical:
		return 1.0
	default:
		return 0.5
	}
}

// Finding is a single lint rule violation at a file/line/column.
// Findings are immutable once produced by the runner.
type Finding struct {
	FilePath string   `json:"file_path"`
	Line     int      `json:"line"`
	Column   int      `json:"column"`
	RuleID   string   `json:"rule_id"`
	Message  string   `json:"message"`
	Severity Severity `json:"severity"`
	Linter   string   `json:"linter"`
}

// ErrorCategory classifies what kind of problem a finding represents.
type ErrorCategory string

const (
	CategoryUndefinedReference ErrorCategory = "undefined_reference"
	CategoryGlobalMutation     ErrorCategory = "global_mutation"
	CategoryUnresolvedImport   ErrorCategory = "unresolved_import"
	CategoryUnusedImport       ErrorCategory = "unused_import"
	CategoryTrivialStyle       ErrorCategory = "trivial_style"
	CategoryFormatting         ErrorCategory = "formatting"
	CategoryTypeError          ErrorCategory = "type_error"
	CategoryOther              ErrorCategory = "other"
)

// ComplexityTier estimates how involved a fix is likely to be.
type ComplexityTier string

const (
	ComplexityTrivial  ComplexityTier = "trivial"
	ComplexitySimple   ComplexityTier = "simple"
	ComplexityModerate ComplexityTier = "moderate"
	ComplexityComplex  ComplexityTier = "complex"
)

// Weight returns a numeric weight for the tier, used in feature vectors.
func (c ComplexityTier) Weight() float64 {
	switch c {
	case ComplexityTrivial:
		return 0.1
	case ComplexitySimple:
		return 0.35
	case ComplexityModerate:
		return 0.65
	case ComplexityComplex:
		return 1.0
	default:
		return 0.5
	}
}

// ErrorAssessment wraps a Finding with the analyzer's judgment of it.
// Assessments are produced by the external analyzer and consumed read-only.
type ErrorAssessment struct {
	Finding Finding `json:"finding"`

	Category   ErrorCategory  `json:"category"`
	Complexity ComplexityTier `json:"complexity"`
	Fixable    bool           `json:"fixable"`

	// Priority ranges 1-10, higher is more urgent.
	Priority int `json:"priority"`

	// EstimatedEffort ranges 1-5, higher means a longer multi-step fix.
	EstimatedEffort int `json:"estimated_effort"`

	// RelatedErrors counts other findings the analyzer linked to this one.
	RelatedErrors int `json:"related_errors"`

	// ContextSize is the number of context lines the analyzer captured.
	ContextSize int `json:"context_size"`
}

// IsTestFile reports whether the finding's path looks like a test file.
func (a *ErrorAssessment) IsTestFile() bool {
	p := a.Finding.FilePath
	return strings.Contains(p, "_test.") ||
		strings.Contains(p, "/test/") ||
		strings.Contains(p, "/tests/") ||
		strings.HasPrefix(p, "test_") ||
		strings.Contains(p, "/test_")
}

// IsConfigFile reports whether the finding's path looks like project configuration.
func (a *ErrorAssessment) IsConfigFile() bool {
	p := strings.ToLower(a.Finding.FilePath)
	for _, marker := range []string{".yaml", ".yml", ".toml", ".ini", ".cfg", ".json"} {
		if strings.HasSuffix(p, marker) {
			return true
		}
	}
	return strings.Contains(p, "config")
}

// PathDepth returns the number of directories in the finding's path.
func (a *ErrorAssessment) PathDepth() int {
	return strings.Count(a.Finding.FilePath, "/")
}
