// Package jsonschema implements a narrow static check for this repo's
// argument structs in internal/tools: a jsonschema struct tag whose
// description contains an unescaped comma gets truncated by the
// jsonschema library's own tag parser, silently dropping the rest of the
// description from the tool catalog the MCP client sees. go:generate
// wires this in over internal/tools (see catalog.go); CI can run the
// same binary with no -fix flag to fail the build instead of patching it.
package jsonschema

import (
	"fmt"
	"go/ast"
	"go/parser"
	"go/token"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
)

// TagLinter walks a directory tree looking for struct tags of the form
// `jsonschema:"...description=...,..."` where the description itself
// contains a comma that was not escaped as `\,`.
type TagLinter struct {
	FilePaths []string
	Errors    []TagError
	FixMode   bool
	Fixed     map[string]bool
}

// TagError is one offending tag, located precisely enough to patch in
// place when FixMode is set.
type TagError struct {
	FilePath string
	Line     int
	Column   int
	Offset   int
	Struct   string
	Field    string
	Tag      string
	FixedTag string
}

// descriptionComma matches a jsonschema tag's description segment up to
// the first comma not preceded by a backslash. A genuine escaped comma
// ("\,") is left alone; anything else ends the description early from
// the schema generator's point of view.
var descriptionComma = regexp.MustCompile(`jsonschema:"([^"]*)description=(.*?[^\\],)([^"]*)"`)

// Scan walks baseDir for Go source files and records every struct tag
// with an unescaped comma in a jsonschema description. In FixMode it
// also rewrites the offending files in place.
func (l *TagLinter) Scan(baseDir string) error {
	l.Errors = nil
	if l.FixMode {
		l.Fixed = make(map[string]bool)
	}

	err := filepath.Walk(baseDir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() && strings.HasSuffix(path, ".go") {
			l.FilePaths = append(l.FilePaths, path)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("walking %s: %w", baseDir, err)
	}

	for _, path := range l.FilePaths {
		fset := token.NewFileSet()
		f, err := parser.ParseFile(fset, path, nil, parser.ParseComments)
		if err != nil {
			return fmt.Errorf("parsing %s: %w", path, err)
		}

		var fileErrors []TagError
		ast.Inspect(f, func(n ast.Node) bool {
			ts, ok := n.(*ast.TypeSpec)
			if !ok || ts.Type == nil {
				return true
			}
			st, ok := ts.Type.(*ast.StructType)
			if !ok {
				return true
			}
			structName := ts.Name.Name

			for _, field := range st.Fields.List {
				if field.Tag == nil {
					continue
				}
				tag := field.Tag.Value

				matches := descriptionComma.FindStringSubmatch(tag)
				if len(matches) == 0 {
					continue
				}

				fieldName := ""
				if len(field.Names) > 0 {
					fieldName = field.Names[0].Name
				}

				fixedTag := tag
				if len(matches) > 2 {
					unescaped := matches[2]
					fixedTag = strings.Replace(tag, unescaped, escapeCommas(unescaped), 1)
				}

				pos := fset.Position(field.Tag.Pos())
				fileErrors = append(fileErrors, TagError{
					FilePath: path,
					Line:     pos.Line,
					Column:   pos.Column,
					Offset:   pos.Offset,
					Struct:   structName,
					Field:    fieldName,
					Tag:      tag,
					FixedTag: fixedTag,
				})
			}
			return true
		})

		l.Errors = append(l.Errors, fileErrors...)

		if l.FixMode && len(fileErrors) > 0 {
			if err := l.rewrite(path, fileErrors); err != nil {
				return fmt.Errorf("fixing %s: %w", path, err)
			}
			l.Fixed[path] = true
		}
	}

	return nil
}

// escapeCommas backslash-escapes every comma in desc that isn't already
// escaped.
func escapeCommas(desc string) string {
	r := regexp.MustCompile(`([^\\]),`)
	return r.ReplaceAllString(desc, `$1\\,`)
}

// rewrite patches every offending tag in path, working from the highest
// byte offset down so earlier replacements don't shift later offsets.
func (l *TagLinter) rewrite(path string, errs []TagError) error {
	content, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading %s: %w", path, err)
	}
	src := string(content)

	sort.Slice(errs, func(i, j int) bool { return errs[i].Offset > errs[j].Offset })

	for _, e := range errs {
		idx := strings.Index(src[e.Offset:], e.Tag)
		if idx == -1 {
			continue
		}
		abs := e.Offset + idx
		src = src[:abs] + e.FixedTag + src[abs+len(e.Tag):]
	}

	return os.WriteFile(path, []byte(src), 0o644)
}

// Report prints every finding to stdout in a form suitable for CI logs.
func (l *TagLinter) Report() {
	if len(l.Errors) == 0 {
		fmt.Println("no unescaped commas in jsonschema descriptions")
		return
	}

	if l.FixMode {
		fmt.Printf("fixed %d unescaped comma(s) in jsonschema descriptions:\n\n", len(l.Errors))
	} else {
		fmt.Printf("found %d unescaped comma(s) in jsonschema descriptions:\n\n", len(l.Errors))
	}

	for i, e := range l.Errors {
		rel, _ := filepath.Rel(".", e.FilePath)
		fmt.Printf("%d. %s:%d:%d - struct %s, field %s\n", i+1, rel, e.Line, e.Column, e.Struct, e.Field)
		fmt.Printf("   %s\n", e.Tag)
		if l.FixMode {
			fmt.Printf("   fixed to: %s\n\n", e.FixedTag)
		} else {
			fmt.Printf("   commas in the description must be escaped as \\\\,\n\n")
		}
	}

	if !l.FixMode {
		fmt.Println("escape commas in jsonschema descriptions with \\\\, or they will be truncated by the schema generator")
		fmt.Println("run with -fix to rewrite the offending tags automatically")
	} else {
		fmt.Printf("rewrote %d file(s)\n", len(l.Fixed))
	}
}
