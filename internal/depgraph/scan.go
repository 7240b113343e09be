package depgraph

import (
	"bufio"
	"context"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"go.uber.org/zap"
)

// Scanner is a lightweight Builder that derives import edges from source
// text with per-language regexes. It only links files inside the given
// set; external packages never become nodes. Files in the same directory
// additionally get proximity edges, since lint fixes tend to spill over
// within a package.
type Scanner struct {
	root   string
	logger *zap.Logger
}

// NewScanner creates a scanner rooted at the project directory.
func NewScanner(root string, logger *zap.Logger) *Scanner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scanner{root: root, logger: logger}
}

var (
	pythonFromImport = regexp.MustCompile(`^\s*from\s+([\w.]+)\s+import\s+(.+)$`)
	pythonImport     = regexp.MustCompile(`^\s*import\s+([\w.]+)`)
	jsImport         = regexp.MustCompile(`(?:import\s+(?:\{([^}]*)\}|\w+)\s+from\s+|require\()\s*['"]([^'"]+)['"]`)
	goImport         = regexp.MustCompile(`^\s*(?:import\s+)?"([^"]+)"`)
)

// BuildGraph scans the given files and links them by import and
// proximity. Unreadable files degrade to nodes without outgoing edges.
func (s *Scanner) BuildGraph(ctx context.Context, files []string) (*Graph, error) {
	g := New()

	// Index by module-ish path fragments so "pkg.module" and "./module"
	// both resolve to files in the set.
	index := make(map[string]string)
	byDir := make(map[string][]string)
	for _, f := range files {
		g.AddNode(f, Node{})
		index[moduleKey(f)] = f
		byDir[filepath.Dir(f)] = append(byDir[filepath.Dir(f)], f)
	}

	for _, f := range files {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		for _, imp := range s.scanImports(f) {
			target, ok := index[imp.module]
			if !ok {
				// Relative imports resolve against the importing file's
				// directory.
				if dir := moduleKey(filepath.Dir(f)); dir != "" && dir != "." {
					target, ok = index[dir+"."+imp.module]
				}
			}
			if !ok || target == f {
				continue
			}
			g.AddEdge(Edge{
				From:          f,
				To:            target,
				Type:          EdgeImport,
				ImportedNames: imp.names,
			})
		}
	}

	for _, siblings := range byDir {
		for i := 0; i < len(siblings); i++ {
			for j := i + 1; j < len(siblings); j++ {
				g.AddEdge(Edge{From: siblings[i], To: siblings[j], Type: EdgeProximity})
			}
		}
	}
	return g, nil
}

type scannedImport struct {
	module string
	names  []string
}

// scanImports extracts import statements from one file.
func (s *Scanner) scanImports(file string) []scannedImport {
	f, err := os.Open(filepath.Join(s.root, file))
	if err != nil {
		s.logger.Debug("cannot read file for import scan",
			zap.String("file", file), zap.Error(err))
		return nil
	}
	defer f.Close()

	ext := strings.ToLower(filepath.Ext(file))
	var imports []scannedImport

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		switch ext {
		case ".py":
			if m := pythonFromImport.FindStringSubmatch(line); m != nil {
				imports = append(imports, scannedImport{
					module: normalizeModule(m[1]),
					names:  splitNames(m[2]),
				})
			} else if m := pythonImport.FindStringSubmatch(line); m != nil {
				imports = append(imports, scannedImport{module: normalizeModule(m[1])})
			}
		case ".js", ".jsx", ".ts", ".tsx", ".mjs":
			if m := jsImport.FindStringSubmatch(line); m != nil {
				imports = append(imports, scannedImport{
					module: normalizeModule(m[2]),
					names:  splitNames(m[1]),
				})
			}
		case ".go":
			if m := goImport.FindStringSubmatch(line); m != nil {
				imports = append(imports, scannedImport{module: normalizeModule(m[1])})
			}
		}
	}
	return imports
}

// moduleKey reduces a file path to the dotless, extensionless form used
// for import resolution.
func moduleKey(file string) string {
	key := strings.TrimSuffix(file, filepath.Ext(file))
	key = strings.ReplaceAll(key, "/", ".")
	return strings.TrimPrefix(key, ".")
}

// normalizeModule maps an import string to the same keyspace as moduleKey.
func normalizeModule(module string) string {
	module = strings.TrimPrefix(module, "./")
	module = strings.ReplaceAll(module, "/", ".")
	return strings.TrimPrefix(module, ".")
}

func splitNames(raw string) []string {
	var names []string
	for _, part := range strings.Split(raw, ",") {
		name := strings.TrimSpace(part)
		// "x as y" imports bind the original symbol x.
		if idx := strings.Index(name, " as "); idx != -1 {
			name = name[:idx]
		}
		if name != "" && name != "*" {
			names = append(names, name)
		}
	}
	return names
}
