package architecture_test

import (
	"fmt"
	"go/parser"
	"go/token"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"testing"
)

// layerRules lists, per internal/ layer, the sibling layers it must not import.
var layerRules = map[string][]string{
	"domain":   {"platform", "modules", "data", "http", "app"},
	"platform": {"modules", "data", "http", "app"},
	"modules":  {"data", "http", "app"},
	"data":     {"modules", "http", "app"},
	"http":     {"data", "app"},
}

var coreDriverPrefixes = []string{
	"github.com/neo4j/neo4j-go-driver/",
	"github.com/redis/go-redis/",
	"gorm.io/",
	"github.com/gin-gonic/",
	"net/http",
}

type importRef struct {
	file string
	path string
}

func TestImportBoundaries(t *testing.T) {
	root, module := moduleRoot(t)

	var problems []string
	for layer, banned := range layerRules {
		prefixes := make([]string, 0, len(banned))
		for _, b := range banned {
			prefixes = append(prefixes, module+"/internal/"+b)
		}
		// Tests may wire in-memory adapters across layers.
		for _, ref := range collectImports(t, root, "internal/"+layer, false) {
			if bad := matchPrefix(ref.path, prefixes); bad != "" {
				problems = append(problems, fmt.Sprintf("%s imports %q (layer %s must not import %s)", ref.file, ref.path, layer, bad))
			}
		}
	}
	report(t, "import boundary violations", problems)
}

func TestCoreHasNoDriverImports(t *testing.T) {
	root, _ := moduleRoot(t)

	var problems []string
	for _, dir := range []string{"internal/domain", "internal/modules"} {
		for _, ref := range collectImports(t, root, dir, true) {
			if matchPrefix(ref.path, coreDriverPrefixes) != "" {
				problems = append(problems, fmt.Sprintf("%s imports %q", ref.file, ref.path))
			}
		}
	}
	report(t, "driver imports in the graph core; move them behind a data/ or platform/ adapter", problems)
}

// collectImports parses every .go file under dir (relative to root) in imports-only mode.
func collectImports(t *testing.T, root, dir string, withTests bool) []importRef {
	t.Helper()
	base := filepath.Join(root, filepath.FromSlash(dir))
	if _, err := os.Stat(base); os.IsNotExist(err) {
		return nil
	}
	fset := token.NewFileSet()
	var refs []importRef
	err := filepath.WalkDir(base, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() || !strings.HasSuffix(path, ".go") {
			return err
		}
		if !withTests && strings.HasSuffix(path, "_test.go") {
			return nil
		}
		f, err := parser.ParseFile(fset, path, nil, parser.ImportsOnly)
		if err != nil {
			return err
		}
		rel, _ := filepath.Rel(root, path)
		for _, spec := range f.Imports {
			if imp, err := strconv.Unquote(spec.Path.Value); err == nil {
				refs = append(refs, importRef{file: filepath.ToSlash(rel), path: imp})
			}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("walk %s: %v", dir, err)
	}
	return refs
}

func matchPrefix(imp string, prefixes []string) string {
	for _, p := range prefixes {
		if imp == p || strings.HasPrefix(imp, strings.TrimSuffix(p, "/")+"/") {
			return p
		}
	}
	return ""
}

func report(t *testing.T, title string, problems []string) {
	t.Helper()
	if len(problems) == 0 {
		return
	}
	sort.Strings(problems)
	t.Fatalf("%s:\n- %s", title, strings.Join(problems, "\n- "))
}

// moduleRoot walks up from the working directory to go.mod and returns its module path.
func moduleRoot(t *testing.T) (string, string) {
	t.Helper()
	dir, err := os.Getwd()
	if err != nil {
		t.Fatalf("getwd: %v", err)
	}
	for {
		raw, err := os.ReadFile(filepath.Join(dir, "go.mod"))
		if err == nil {
			for _, line := range strings.Split(string(raw), "\n") {
				if mp, ok := strings.CutPrefix(strings.TrimSpace(line), "module "); ok {
					return dir, strings.TrimSpace(mp)
				}
			}
			t.Fatalf("module path not found in %s/go.mod", dir)
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			t.Fatalf("go.mod not found")
		}
		dir = parent
	}
}
