package lint

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"

	"go.uber.org/zap"
)

// CommandRunner runs configured linter commands in a project directory
// and parses their stdout as findings. Each command must print either a
// JSON array of findings or one finding per line (JSON lines). Linters
// conventionally exit non-zero when they report findings, so the exit
// code is ignored whenever the output parses.
type CommandRunner struct {
	dir      string
	commands [][]string
	logger   *zap.Logger
}

// NewCommandRunner creates a runner. Each command is an argv vector.
func NewCommandRunner(dir string, commands [][]string, logger *zap.Logger) (*CommandRunner, error) {
	if len(commands) == 0 {
		return nil, fmt.Errorf("at least one linter command is required")
	}
	for _, c := range commands {
		if len(c) == 0 {
			return nil, fmt.Errorf("linter command cannot be empty")
		}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CommandRunner{dir: dir, commands: commands, logger: logger}, nil
}

// RunLinters executes every configured linter and merges the findings.
// The files argument narrows the run when non-empty; it is appended to
// each command line.
func (r *CommandRunner) RunLinters(ctx context.Context, files []string) ([]Finding, error) {
	var all []Finding
	for _, argv := range r.commands {
		findings, err := r.runOne(ctx, argv, files)
		if err != nil {
			return nil, fmt.Errorf("linter %q: %w", argv[0], err)
		}
		all = append(all, findings...)
	}
	return all, nil
}

func (r *CommandRunner) runOne(ctx context.Context, argv, files []string) ([]Finding, error) {
	args := append(append([]string{}, argv[1:]...), files...)
	cmd := exec.CommandContext(ctx, argv[0], args...)
	cmd.Dir = r.dir

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	runErr := cmd.Run()
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	findings, parseErr := parseFindings(stdout.Bytes())
	if parseErr != nil {
		if runErr != nil {
			return nil, fmt.Errorf("command failed: %w (stderr: %s)", runErr, stderr.String())
		}
		return nil, parseErr
	}
	// A non-zero exit with findings is a linter reporting problems; a
	// non-zero exit with nothing on stdout is the linter itself failing.
	if runErr != nil && len(findings) == 0 {
		return nil, fmt.Errorf("command produced no findings: %w (stderr: %s)", runErr, stderr.String())
	}

	r.logger.Debug("linter run complete",
		zap.String("command", argv[0]),
		zap.Int("findings", len(findings)))
	return findings, nil
}

// parseFindings accepts a JSON array or JSON lines.
func parseFindings(out []byte) ([]Finding, error) {
	trimmed := bytes.TrimSpace(out)
	if len(trimmed) == 0 {
		return nil, nil
	}

	if trimmed[0] == '[' {
		var findings []Finding
		if err := json.Unmarshal(trimmed, &findings); err != nil {
			return nil, fmt.Errorf("parsing findings array: %w", err)
		}
		return findings, nil
	}

	var findings []Finding
	scanner := bufio.NewScanner(bytes.NewReader(trimmed))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		var f Finding
		if err := json.Unmarshal(line, &f); err != nil {
			return nil, fmt.Errorf("parsing finding line %q: %w", line, err)
		}
		findings = append(findings, f)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading linter output: %w", err)
	}
	return findings, nil
}
