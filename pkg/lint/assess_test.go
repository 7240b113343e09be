package lint

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCategorize(t *testing.T) {
	tests := []struct {
		name    string
		rule    string
		message string
		want    ErrorCategory
	}{
		{"pylint undefined", "undefined-variable", "undefined name 'x'", CategoryUndefinedReference},
		{"eslint no-undef", "no-undef", "'foo' is not defined", CategoryUndefinedReference},
		{"flake8 F821", "F821", "undefined name", CategoryUndefinedReference},
		{"global statement", "global-statement", "using the global statement", CategoryGlobalMutation},
		{"pylint W0603", "W0603", "using the global statement", CategoryGlobalMutation},
		{"import error", "import-error", "unable to import 'foo'", CategoryUnresolvedImport},
		{"import by message", "some-rule", "Unable to import 'requests'", CategoryUnresolvedImport},
		{"unused import", "unused-import", "unused import os", CategoryUnusedImport},
		{"flake8 F401", "F401", "'os' imported but unused", CategoryUnusedImport},
		{"line too long", "line-too-long", "line too long (120 > 79)", CategoryTrivialStyle},
		{"eslint max-len", "max-len", "line exceeds 100", CategoryTrivialStyle},
		{"trailing whitespace", "W291", "trailing whitespace", CategoryTrivialStyle},
		{"black", "black", "file would be reformatted", CategoryFormatting},
		{"type mismatch", "arg-type", "argument has incompatible type", CategoryTypeError},
		{"typescript", "TS2322", "type 'string' is not assignable", CategoryTypeError},
		{"fallback", "some-rule", "something else entirely", CategoryOther},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := Finding{RuleID: tt.rule, Message: tt.message}
			assert.Equal(t, tt.want, categorize(f))
		})
	}
}

func TestAssessFixability(t *testing.T) {
	findings := []Finding{
		{FilePath: "a.py", RuleID: "undefined-variable", Severity: SeverityError},
		{FilePath: "a.py", RuleID: "global-statement", Severity: SeverityWarning},
		{FilePath: "a.py", RuleID: "line-too-long", Severity: SeverityWarning},
	}

	out, err := NewHeuristicAssessor().Assess(context.Background(), findings)
	require.NoError(t, err)
	require.Len(t, out, 3)

	assert.False(t, out[0].Fixable)
	assert.False(t, out[1].Fixable)
	assert.True(t, out[2].Fixable)
}

func TestAssessRelatedErrorsCountSameFileAndCategory(t *testing.T) {
	findings := []Finding{
		{FilePath: "a.py", RuleID: "line-too-long"},
		{FilePath: "a.py", RuleID: "trailing-whitespace"},
		{FilePath: "a.py", RuleID: "unused-import"},
		{FilePath: "b.py", RuleID: "line-too-long"},
	}

	out, err := NewHeuristicAssessor().Assess(context.Background(), findings)
	require.NoError(t, err)

	// Both style findings in a.py see each other; the unused import and
	// the finding in b.py stand alone.
	assert.Equal(t, 1, out[0].RelatedErrors)
	assert.Equal(t, 1, out[1].RelatedErrors)
	assert.Equal(t, 0, out[2].RelatedErrors)
	assert.Equal(t, 0, out[3].RelatedErrors)
}

func TestAssessPriorityStaysInRange(t *testing.T) {
	severities := []Severity{SeverityInfo, SeverityWarning, SeverityError, SeverityCritical}
	rules := []string{"undefined-variable", "line-too-long", "import-error", "some-rule", "arg-type"}

	for _, sev := range severities {
		for _, rule := range rules {
			out, err := NewHeuristicAssessor().Assess(context.Background(),
				[]Finding{{FilePath: "a.py", RuleID: rule, Severity: sev}})
			require.NoError(t, err)
			p := out[0].Priority
			assert.GreaterOrEqual(t, p, 1, "rule %s severity %s", rule, sev)
			assert.LessOrEqual(t, p, 10, "rule %s severity %s", rule, sev)
		}
	}
}

func TestAssessCriticalTypeErrorOutranksStyle(t *testing.T) {
	out, err := NewHeuristicAssessor().Assess(context.Background(), []Finding{
		{FilePath: "a.py", RuleID: "arg-type", Severity: SeverityCritical},
		{FilePath: "a.py", RuleID: "line-too-long", Severity: SeverityInfo},
	})
	require.NoError(t, err)
	assert.Greater(t, out[0].Priority, out[1].Priority)
}

func TestAssessEffortAndContextFollowComplexity(t *testing.T) {
	out, err := NewHeuristicAssessor().Assess(context.Background(), []Finding{
		{FilePath: "a.py", RuleID: "line-too-long"},       // trivial
		{FilePath: "a.py", RuleID: "unused-import"},       // simple
		{FilePath: "a.py", RuleID: "import-error"},        // moderate
		{FilePath: "a.py", RuleID: "undefined-variable"},  // complex
	})
	require.NoError(t, err)

	assert.Equal(t, ComplexityTrivial, out[0].Complexity)
	assert.Equal(t, 1, out[0].EstimatedEffort)
	assert.Equal(t, 5, out[0].ContextSize)

	assert.Equal(t, ComplexitySimple, out[1].Complexity)
	assert.Equal(t, 2, out[1].EstimatedEffort)

	assert.Equal(t, ComplexityModerate, out[2].Complexity)
	assert.Equal(t, 40, out[2].ContextSize)

	assert.Equal(t, ComplexityComplex, out[3].Complexity)
	assert.Equal(t, 4, out[3].EstimatedEffort)
	assert.Equal(t, 80, out[3].ContextSize)
}
