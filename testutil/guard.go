// Package testutil checks import boundaries between the domain, the analysis
// engines, the storage drivers and the service layer.
package testutil

import (
	"bytes"
	"fmt"
	"go/parser"
	"go/token"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
)

// Boundary names a set of import paths a package must stay clear of.
type Boundary struct {
	Name    string
	Matches func(importPath string) bool
}

var (
	// Internal covers every package below an internal/ directory.
	Internal = Boundary{Name: "internal packages", Matches: func(p string) bool {
		return strings.Contains(p, "/internal/")
	}}
	// Service covers the service layer and the commands built on it.
	Service = Boundary{Name: "service layer", Matches: func(p string) bool {
		return strings.HasSuffix(p, "/internal/core") || strings.Contains(p, "/cmd/")
	}}
	// Drivers covers database drivers, object store clients and the
	// observability stack.
	Drivers = Boundary{Name: "drivers", Matches: prefixes(
		"github.com/jackc/pgx",
		"modernc.org/sqlite",
		"github.com/aws/aws-sdk-go-v2",
		"github.com/prometheus/",
		"go.uber.org/zap",
	)}
)

func prefixes(ps ...string) func(string) bool {
	return func(path string) bool {
		for _, p := range ps {
			if strings.HasPrefix(path, p) {
				return true
			}
		}
		return false
	}
}

// listDeps prints the transitive imports of pattern, one per line.
var listDeps = func(pattern string) ([]byte, error) {
	var stderr bytes.Buffer
	cmd := exec.Command("go", "list", "-deps", "-f", "{{.ImportPath}}", pattern)
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("go list -deps %s: %w: %s", pattern, err, strings.TrimSpace(stderr.String()))
	}
	return out, nil
}

// Imports returns the direct imports of the non-test files in dir that cross
// b, each annotated with the file importing it.
func (b Boundary) Imports(dir string) ([]string, error) {
	files, err := filepath.Glob(filepath.Join(dir, "*.go"))
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		if _, err := os.Stat(dir); err != nil {
			return nil, err
		}
	}
	fset := token.NewFileSet()
	var hits []string
	for _, file := range files {
		if strings.HasSuffix(file, "_test.go") {
			continue
		}
		f, err := parser.ParseFile(fset, file, nil, parser.ImportsOnly)
		if err != nil {
			return nil, err
		}
		for _, imp := range f.Imports {
			path := strings.Trim(imp.Path.Value, `"`)
			if b.Matches(path) {
				hits = append(hits, fmt.Sprintf("%s (%s)", path, filepath.Base(file)))
			}
		}
	}
	return hits, nil
}

// Deps returns the transitive dependencies of pattern that cross b.
func (b Boundary) Deps(pattern string) ([]string, error) {
	out, err := listDeps(pattern)
	if err != nil {
		return nil, err
	}
	var hits []string
	for _, line := range strings.Fields(string(out)) {
		if b.Matches(line) {
			hits = append(hits, line)
		}
	}
	sort.Strings(hits)
	return hits, nil
}

// fataler is the subset of testing.TB the checks need.
type fataler interface {
	Helper()
	Fatalf(format string, args ...any)
}

// CheckImports fails t when a non-test file in dir imports across b.
func (b Boundary) CheckImports(t fataler, dir string) {
	t.Helper()
	hits, err := b.Imports(dir)
	if err != nil {
		t.Fatalf("scan %s: %v", dir, err)
	}
	report(t, dir+" imports "+b.Name, hits)
}

// CheckDeps fails t when pattern depends on b, directly or not.
func (b Boundary) CheckDeps(t fataler, pattern string) {
	t.Helper()
	hits, err := b.Deps(pattern)
	if err != nil {
		t.Fatalf("%v", err)
	}
	report(t, pattern+" depends on "+b.Name, hits)
}

func report(t fataler, what string, hits []string) {
	t.Helper()
	if len(hits) > 0 {
		t.Fatalf("%s:\n  %s", what, strings.Join(hits, "\n  "))
	}
}
