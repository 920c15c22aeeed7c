package compiler

import (
	"errors"
	"os"
	"testing"

	"gopkg.in/yaml.v3"
)

// ParseCase is one entry of testdata/parse.yaml. Exactly one of AST and
// Error is set: AST is the expected Program.String(), Error the expected
// error code message.
type ParseCase struct {
	Name  string `yaml:"name"`
	Input string `yaml:"input"`
	AST   string `yaml:"ast,omitempty"`
	Error string `yaml:"error,omitempty"`
}

type ParseFile struct {
	Tests []ParseCase `yaml:"tests"`
}

func TestParseYAML(t *testing.T) {
	data, err := os.ReadFile("testdata/parse.yaml")
	if err != nil {
		t.Fatalf("failed to read parse.yaml: %v", err)
	}

	var file ParseFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		t.Fatalf("failed to parse parse.yaml: %v", err)
	}
	if len(file.Tests) == 0 {
		t.Fatal("parse.yaml has no tests")
	}

	for _, tc := range file.Tests {
		t.Run(tc.Name, func(t *testing.T) {
			prog, err := parseSource(t, tc.Input)
			if tc.Error != "" {
				var cerr *Error
				if !errors.As(err, &cerr) {
					t.Fatalf("expected %q error, got %v", tc.Error, err)
				}
				if cerr.Code.String() != tc.Error {
					t.Errorf("error: got %q, want %q", cerr.Code, tc.Error)
				}
				return
			}
			if err != nil {
				t.Fatalf("Parse failed: %v", err)
			}
			if got := prog.String(); got != tc.AST {
				t.Errorf("got  %s\nwant %s", got, tc.AST)
			}
		})
	}
}
