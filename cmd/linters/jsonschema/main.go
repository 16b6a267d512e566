// Command jsonschema-lint scans internal/tools' argument structs for
// jsonschema struct tags whose description contains an unescaped comma,
// which the schema generator truncates at. Run via `go generate ./...`
// (see internal/tools/catalog.go) or as a CI gate with no -fix flag.
package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"github.com/lokimcp/loki-mcp-server/internal/linter/jsonschema"
)

func main() {
	var (
		basePath string
		help     bool
		fix      bool
	)

	flag.StringVar(&basePath, "path", "./internal/tools", "base directory to scan for Go files")
	flag.BoolVar(&help, "help", false, "show help message")
	flag.BoolVar(&fix, "fix", false, "automatically escape unescaped commas")
	flag.Parse()

	if help {
		fmt.Println("jsonschema-lint - find unescaped commas in jsonschema struct tags")
		fmt.Println("\nUsage:")
		flag.PrintDefaults()
		os.Exit(0)
	}

	absPath, err := filepath.Abs(basePath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "resolving path: %v\n", err)
		os.Exit(1)
	}

	l := &jsonschema.TagLinter{FixMode: fix}

	if err := l.Scan(absPath); err != nil {
		fmt.Fprintf(os.Stderr, "scanning files: %v\n", err)
		os.Exit(1)
	}

	l.Report()

	if len(l.Errors) > 0 {
		os.Exit(1)
	}
}
