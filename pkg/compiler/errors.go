package compiler

import (
	"fmt"
	"strings"
)

// Stage names the pipeline step that rejected the program.
type Stage int

const (
	StageLex Stage = iota
	StageParse
	StageCodegen
)

func (s Stage) String() string {
	switch s {
	case StageLex:
		return "lex"
	case StageParse:
		return "parse"
	case StageCodegen:
		return "codegen"
	default:
		return "unknown"
	}
}

// Code classifies a compile failure. Each code has an exported sentinel
// so callers can test with errors.Is.
type Code int

const (
	CodeIllegalChar Code = iota + 1
	CodeUnterminatedComment
	CodeUnexpectedToken
	CodeUnexpectedEOF
	CodeBadLiteral
	CodeBadArraySize
	CodeUndeclared
	CodeRedefinition
	CodeBadLvalue
	CodeBadDeref
	CodeBreakOutsideLoop
	CodeContinueOutsideLoop
	CodeInvalidOperands
	CodeArrayInitializer
)

var codeMessages = map[Code]string{
	CodeIllegalChar:         "illegal character",
	CodeUnterminatedComment: "unterminated comment",
	CodeUnexpectedToken:     "unexpected token",
	CodeUnexpectedEOF:       "unexpected end of input",
	CodeBadLiteral:          "bad integer literal",
	CodeBadArraySize:        "bad array size",
	CodeUndeclared:          "undeclared identifier",
	CodeRedefinition:        "variable redefinition",
	CodeBadLvalue:           "bad lvalue",
	CodeBadDeref:            "bad dereferencing",
	CodeBreakOutsideLoop:    "break outside of a loop",
	CodeContinueOutsideLoop: "continue outside of a loop",
	CodeInvalidOperands:     "invalid operands",
	CodeArrayInitializer:    "array initializer",
}

func (c Code) String() string {
	if m, ok := codeMessages[c]; ok {
		return m
	}
	return fmt.Sprintf("Code(%d)", int(c))
}

// Sentinels for errors.Is. Only Code is compared.
var (
	ErrIllegalChar         = &Error{Code: CodeIllegalChar}
	ErrUnterminatedComment = &Error{Code: CodeUnterminatedComment}
	ErrUnexpectedToken     = &Error{Code: CodeUnexpectedToken}
	ErrUnexpectedEOF       = &Error{Code: CodeUnexpectedEOF}
	ErrBadLiteral          = &Error{Code: CodeBadLiteral}
	ErrBadArraySize        = &Error{Code: CodeBadArraySize}
	ErrUndeclared          = &Error{Code: CodeUndeclared}
	ErrRedefinition        = &Error{Code: CodeRedefinition}
	ErrBadLvalue           = &Error{Code: CodeBadLvalue}
	ErrBadDeref            = &Error{Code: CodeBadDeref}
	ErrBreakOutsideLoop    = &Error{Code: CodeBreakOutsideLoop}
	ErrContinueOutsideLoop = &Error{Code: CodeContinueOutsideLoop}
	ErrInvalidOperands     = &Error{Code: CodeInvalidOperands}
	ErrArrayInitializer    = &Error{Code: CodeArrayInitializer}
)

// Error is the single failure value produced by Lex, Parse and Generate.
type Error struct {
	Stage   Stage
	Code    Code
	Line    int    // 1-based; 0 when no position is known
	Msg     string // detail, e.g. the offending name
	Snippet string // trimmed source line, when available
}

func (e *Error) Error() string {
	var sb strings.Builder
	if e.Line > 0 {
		fmt.Fprintf(&sb, "line %d: ", e.Line)
	}
	sb.WriteString(e.Code.String())
	if e.Msg != "" {
		sb.WriteString(": ")
		sb.WriteString(e.Msg)
	}
	if e.Snippet != "" {
		sb.WriteString("\n  |> ")
		sb.WriteString(e.Snippet)
	}
	return sb.String()
}

// Is matches on Code so that errors.Is(err, ErrUndeclared) works for any
// undeclared-identifier failure.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// Format renders the error for a terminal. With useColor the stage and
// code are highlighted with ANSI escapes.
func (e *Error) Format(useColor bool) string {
	var sb strings.Builder
	if useColor {
		sb.WriteString("\033[1;31m") // Bold red
	}
	fmt.Fprintf(&sb, "%s error", e.Stage)
	if useColor {
		sb.WriteString("\033[0m")
	}
	if e.Line > 0 {
		fmt.Fprintf(&sb, " at line %d", e.Line)
	}
	sb.WriteString(": ")
	if useColor {
		sb.WriteString("\033[1m")
	}
	sb.WriteString(e.Code.String())
	if useColor {
		sb.WriteString("\033[0m")
	}
	if e.Msg != "" {
		sb.WriteString(": ")
		sb.WriteString(e.Msg)
	}
	if e.Snippet != "" {
		sb.WriteString("\n")
		if useColor {
			sb.WriteString("\033[1;34m") // Bold blue
		}
		sb.WriteString("  |> ")
		if useColor {
			sb.WriteString("\033[0m")
		}
		sb.WriteString(e.Snippet)
	}
	return sb.String()
}

func newError(stage Stage, code Code, line int, format string, args ...any) *Error {
	return &Error{Stage: stage, Code: code, Line: line, Msg: fmt.Sprintf(format, args...)}
}
