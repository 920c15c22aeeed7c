package compiler

import (
	"fmt"
	"os"
)

// Compile runs the whole pipeline over src and returns the assembly text.
// Errors are *Error values from the failing stage.
func Compile(src string) (string, error) {
	tokens, err := Lex(src)
	if err != nil {
		return "", err
	}

	prog, err := Parse(tokens, src)
	if err != nil {
		return "", err
	}

	return Generate(prog)
}

// CompileFile reads path and compiles it.
func CompileFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read %s: %w", path, err)
	}
	return Compile(string(data))
}
