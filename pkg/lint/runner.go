package lint

import "context"

// Runner produces findings for a set of files. Implementations invoke the
// actual lint tools; this module only consumes their output.
type Runner interface {
	// RunLinters lints the given files and returns all findings.
	// An empty files slice means the whole project.
	RunLinters(ctx context.Context, files []string) ([]Finding, error)
}

// GroupByFile buckets findings by their file path, preserving input order
// within each bucket.
func GroupByFile(findings []Finding) map[string][]Finding {
	grouped := make(map[string][]Finding)
	for _, f := range findings {
		grouped[f.FilePath] = append(grouped[f.FilePath], f)
	}
	return grouped
}
