package compiler

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestErrorFormatting(t *testing.T) {
	e := &Error{Stage: StageCodegen, Code: CodeUndeclared, Line: 3, Msg: "y", Snippet: "return y;"}

	if got, want := e.Error(), "line 3: undeclared identifier: y\n  |> return y;"; got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}

	plain := e.Format(false)
	if plain != "codegen error at line 3: undeclared identifier: y\n  |> return y;" {
		t.Errorf("Format(false) = %q", plain)
	}
	if strings.Contains(plain, "\033[") {
		t.Error("Format(false) must not contain escapes")
	}

	colored := e.Format(true)
	if !strings.Contains(colored, "\033[1;31m") || !strings.Contains(colored, "undeclared identifier") {
		t.Errorf("Format(true) = %q", colored)
	}

	bare := &Error{Stage: StageCodegen, Code: CodeBreakOutsideLoop}
	if got := bare.Error(); got != "break outside of a loop" {
		t.Errorf("bare Error() = %q", got)
	}
}

func TestErrorIs(t *testing.T) {
	err := fmt.Errorf("compiling: %w", newError(StageCodegen, CodeRedefinition, 2, "%s", "x"))

	if !errors.Is(err, ErrRedefinition) {
		t.Error("wrapped error should match ErrRedefinition")
	}
	if errors.Is(err, ErrUndeclared) {
		t.Error("wrapped error should not match ErrUndeclared")
	}

	var cerr *Error
	if !errors.As(err, &cerr) || cerr.Msg != "x" || cerr.Line != 2 {
		t.Errorf("errors.As: got %+v", cerr)
	}
}

func TestCodeAndStageStrings(t *testing.T) {
	tests := []struct {
		got, want string
	}{
		{StageLex.String(), "lex"},
		{StageParse.String(), "parse"},
		{StageCodegen.String(), "codegen"},
		{Stage(42).String(), "unknown"},
		{CodeBadLvalue.String(), "bad lvalue"},
		{CodeBadDeref.String(), "bad dereferencing"},
		{CodeContinueOutsideLoop.String(), "continue outside of a loop"},
		{Code(0).String(), "Code(0)"},
	}
	for _, tt := range tests {
		if tt.got != tt.want {
			t.Errorf("got %q, want %q", tt.got, tt.want)
		}
	}
}
