package adapter

import (
	"go/ast"
	"go/parser"
	"go/token"
	"os"
	"path/filepath"
	"sort"
	"strings"

	m "tessel.dev/pkg/tessel/internal/model"
)

// GoFileAdapter encapsulates Go source inspection so the domain can point test cases at
// their declaring function when a structured report carries no file attribute.
type GoFileAdapter interface {
	// Parse builds an AST using the provided file set and optional source bytes.
	Parse(fileSet *token.FileSet, filename string, src []byte) (*ast.File, error)

	// LocateTestFunc searches the *_test.go files of dir for a top-level function
	// named funcName and returns its location.
	LocateTestFunc(dir m.Path, funcName string) (*m.SourceLocation, bool)
}

// LocalGoFileAdapter provides a concrete GoFileAdapter backed by go/parser.
type LocalGoFileAdapter struct{}

// NewLocalGoFileAdapter constructs a LocalGoFileAdapter.
func NewLocalGoFileAdapter() *LocalGoFileAdapter {
	return &LocalGoFileAdapter{}
}

// Parse builds an AST for the provided filename/source pair. A nil src reads filename.
func (a *LocalGoFileAdapter) Parse(fileSet *token.FileSet, filename string, src []byte) (*ast.File, error) {
	// A nil []byte stored in an interface is not nil, so ParseFile would parse it as empty source.
	if src == nil {
		return parser.ParseFile(fileSet, filename, nil, parser.SkipObjectResolution)
	}

	return parser.ParseFile(fileSet, filename, src, parser.SkipObjectResolution)
}

// LocateTestFunc scans the test files of dir in name order.
func (a *LocalGoFileAdapter) LocateTestFunc(dir m.Path, funcName string) (*m.SourceLocation, bool) {
	// Subtests are reported as Parent/child; only the top-level function is declared.
	funcName, _, _ = strings.Cut(funcName, "/")
	if funcName == "" {
		return nil, false
	}

	entries, err := os.ReadDir(string(dir))
	if err != nil {
		return nil, false
	}

	names := make([]string, 0, len(entries))

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), "_test.go") {
			continue
		}

		names = append(names, entry.Name())
	}

	sort.Strings(names)

	for _, name := range names {
		path := filepath.Join(string(dir), name)
		fileSet := token.NewFileSet()

		file, err := a.Parse(fileSet, path, nil)
		if err != nil {
			continue
		}

		for _, decl := range file.Decls {
			fn, ok := decl.(*ast.FuncDecl)
			if !ok || fn.Recv != nil || fn.Name.Name != funcName {
				continue
			}

			return &m.SourceLocation{
				Path: m.Path(path),
				Line: fileSet.Position(fn.Pos()).Line,
			}, true
		}
	}

	return nil, false
}
