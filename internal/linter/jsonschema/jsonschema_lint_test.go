package jsonschema

import (
	"os"
	"path/filepath"
	"testing"
)

func TestScanFindsUnescapedCommas(t *testing.T) {
	tmpDir, err := os.MkdirTemp("", "jsonschema-lint-test")
	if err != nil {
		t.Fatalf("failed to create temp dir: %v", err)
	}
	defer os.RemoveAll(tmpDir)

	testFiles := map[string]string{
		"valid.go": `package test

type Valid struct {
	Name string ` + "`json:\"name\" jsonschema:\"description=A valid field\\, with escaped comma\"`" + `
	Age  int    ` + "`json:\"age\" jsonschema:\"description=Another valid field\"`" + `
}
`,
		"invalid.go": `package test

type Invalid struct {
	Name string ` + "`json:\"name\" jsonschema:\"description=An invalid field, with unescaped comma\"`" + `
	Age  int    ` + "`json:\"age\" jsonschema:\"description=Another valid field\"`" + `
}
`,
		"mixed.go": `package test

type Mixed struct {
	Valid   string ` + "`json:\"valid\" jsonschema:\"description=A valid field\\, with escaped comma\"`" + `
	Invalid string ` + "`json:\"invalid\" jsonschema:\"description=An invalid field, with unescaped comma\"`" + `
}
`,
	}

	for filename, content := range testFiles {
		filePath := filepath.Join(tmpDir, filename)
		if err := os.WriteFile(filePath, []byte(content), 0o644); err != nil {
			t.Fatalf("failed to write test file %s: %v", filename, err)
		}
	}

	l := &TagLinter{}
	if err := l.Scan(tmpDir); err != nil {
		t.Fatalf("Scan failed: %v", err)
	}

	if len(l.Errors) != 2 {
		t.Errorf("expected 2 errors, got %d", len(l.Errors))
	}

	byFile := make(map[string]int)
	for _, e := range l.Errors {
		byFile[filepath.Base(e.FilePath)]++
	}

	if byFile["invalid.go"] != 1 {
		t.Errorf("expected 1 error in invalid.go, got %d", byFile["invalid.go"])
	}
	if byFile["mixed.go"] != 1 {
		t.Errorf("expected 1 error in mixed.go, got %d", byFile["mixed.go"])
	}
	if byFile["valid.go"] != 0 {
		t.Errorf("expected 0 errors in valid.go, got %d", byFile["valid.go"])
	}
}

func TestDescriptionCommaPattern(t *testing.T) {
	testCases := []struct {
		tag         string
		shouldMatch bool
		description string
	}{
		{`jsonschema:"description=This has an unescaped, comma"`, true, "simple unescaped comma"},
		{`jsonschema:"description=This has escaped quote \"followed by, comma"`, true, "escaped quote then unescaped comma"},
		{`jsonschema:"description=This has escaped quote \", comma"`, true, "escaped quote, comma with space"},
		{`jsonschema:"description=This has escaped quote \\\"and escaped\\, comma"`, false, "properly escaped quote and comma"},
		{`jsonschema:"description=No comma here"`, false, "no comma at all"},
	}

	for _, tc := range testCases {
		t.Run(tc.description, func(t *testing.T) {
			matches := descriptionComma.FindStringSubmatch(tc.tag)
			hasMatch := len(matches) > 0
			if hasMatch != tc.shouldMatch {
				t.Fatalf("expected match=%v, got=%v", tc.shouldMatch, hasMatch)
			}
		})
	}
}

func TestScanFixModeRewritesFile(t *testing.T) {
	tmpDir, err := os.MkdirTemp("", "jsonschema-lint-test")
	if err != nil {
		t.Fatalf("failed to create temp dir: %v", err)
	}
	defer os.RemoveAll(tmpDir)

	invalidContent := `package test

type Invalid struct {
	Name string ` + "`json:\"name\" jsonschema:\"description=An invalid field, with unescaped comma\"`" + `
	Age  int    ` + "`json:\"age\" jsonschema:\"description=Another field, also with unescaped comma\"`" + `
}
`

	expectedContent := `package test

type Invalid struct {
	Name string ` + "`json:\"name\" jsonschema:\"description=An invalid field\\\\, with unescaped comma\"`" + `
	Age  int    ` + "`json:\"age\" jsonschema:\"description=Another field\\\\, also with unescaped comma\"`" + `
}
`

	filePath := filepath.Join(tmpDir, "invalid.go")
	if err := os.WriteFile(filePath, []byte(invalidContent), 0o644); err != nil {
		t.Fatalf("failed to write test file: %v", err)
	}

	l := &TagLinter{FixMode: true}
	if err := l.Scan(tmpDir); err != nil {
		t.Fatalf("Scan failed: %v", err)
	}

	if len(l.Errors) != 2 {
		t.Errorf("expected 2 errors, got %d", len(l.Errors))
	}

	fixedContent, err := os.ReadFile(filePath)
	if err != nil {
		t.Fatalf("failed to read fixed file: %v", err)
	}

	if string(fixedContent) != expectedContent {
		t.Errorf("file not fixed correctly.\nexpected:\n%s\n\ngot:\n%s", expectedContent, string(fixedContent))
	}

	if !l.Fixed[filePath] {
		t.Errorf("fixed file not tracked in l.Fixed")
	}
}
