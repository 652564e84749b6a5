package testutil

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

type recorder struct{ msg string }

func (r *recorder) Helper() {}

func (r *recorder) Fatalf(format string, args ...any) { r.msg = fmt.Sprintf(format, args...) }

func TestBoundaries(t *testing.T) {
	cases := []struct {
		b    Boundary
		in   string
		want bool
	}{
		{Internal, "shieldcore/internal/geometry", true},
		{Internal, "shieldcore/pkg/domain", false},
		{Service, "shieldcore/internal/core", true},
		{Service, "shieldcore/cmd/shieldctl", true},
		{Service, "shieldcore/internal/collision", false},
		{Drivers, "github.com/jackc/pgx/v5/stdlib", true},
		{Drivers, "modernc.org/sqlite", true},
		{Drivers, "github.com/aws/aws-sdk-go-v2/service/s3", true},
		{Drivers, "github.com/go-playground/validator/v10", false},
	}
	for _, c := range cases {
		if got := c.b.Matches(c.in); got != c.want {
			t.Fatalf("%s matches %q = %v, want %v", c.b.Name, c.in, got, c.want)
		}
	}
}

func TestImportsSkipsTestFiles(t *testing.T) {
	dir := t.TempDir()
	src := "package tmp\nimport (\n\"fmt\"\n\"shieldcore/internal/core\"\n)\nfunc X(){fmt.Println(core.EnvPrefix)}"
	if err := os.WriteFile(filepath.Join(dir, "x.go"), []byte(src), 0o600); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "x_test.go"), []byte("package tmp\nimport \"shieldcore/cmd/shieldctl\"\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	hits, err := Service.Imports(dir)
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if len(hits) != 1 || hits[0] != "shieldcore/internal/core (x.go)" {
		t.Fatalf("unexpected hits %v", hits)
	}

	var rec recorder
	Service.CheckImports(&rec, dir)
	if !strings.Contains(rec.msg, "imports service layer") {
		t.Fatalf("unexpected failure message %q", rec.msg)
	}
	if _, err := Service.Imports(filepath.Join(dir, "missing")); err == nil {
		t.Fatalf("expected error for a missing directory")
	}
}

func TestDepsUsesGoList(t *testing.T) {
	orig := listDeps
	t.Cleanup(func() { listDeps = orig })

	listDeps = func(string) ([]byte, error) {
		return []byte("fmt\nshieldcore/pkg/domain\nmodernc.org/sqlite\ngo.uber.org/zap\n"), nil
	}
	hits, err := Drivers.Deps(".")
	if err != nil || len(hits) != 2 || hits[0] != "go.uber.org/zap" || hits[1] != "modernc.org/sqlite" {
		t.Fatalf("unexpected result %v %v", hits, err)
	}
	var rec recorder
	Drivers.CheckDeps(&rec, ".")
	if !strings.Contains(rec.msg, "modernc.org/sqlite") {
		t.Fatalf("expected the dependency in the failure, got %q", rec.msg)
	}

	listDeps = func(string) ([]byte, error) { return nil, errors.New("go list -deps .: exit status 1") }
	rec = recorder{}
	Drivers.CheckDeps(&rec, ".")
	if !strings.Contains(rec.msg, "exit status 1") {
		t.Fatalf("expected go list failure to surface, got %q", rec.msg)
	}
}

// Analysis engines and storage work on documents only; the service layer
// depends on them, never the reverse.
func TestEnginePackagesStayIndependent(t *testing.T) {
	for _, pkg := range []string{"collision", "geometry", "expression", "nuclide", "units", "solver"} {
		dir := filepath.Join("..", "internal", pkg)
		Service.CheckImports(t, dir)
		Drivers.CheckImports(t, dir)
	}
	Service.CheckImports(t, filepath.Join("..", "internal", "infra", "persistence", "sqlstore"))
	Drivers.CheckImports(t, filepath.Join("..", "internal", "infra", "persistence", "sqlstore"))
}
