package asm

import (
	"testing"
)

func TestAssembleSourceMap(t *testing.T) {
	code := `
# Line 2: comment
    mov $10, %rax   # Line 3: instruction 0

loop:               # Line 5: label for instruction 1
    sub $1, %rax    # Line 6: instruction 1
    cmp $0, %rax    # Line 7: instruction 2
    jne loop        # Line 8: instruction 3
    .globl loop     # Line 9: directive, no instruction
    ret             # Line 10: instruction 4
`
	prog, err := Assemble(code)
	if err != nil {
		t.Fatalf("Assemble failed: %v", err)
	}

	tests := []struct {
		index int
		line  int
	}{
		{0, 3},
		{1, 6},
		{2, 7},
		{3, 8},
		{4, 10},
	}

	for _, tc := range tests {
		if got := prog.SourceMap[tc.index]; got != tc.line {
			t.Errorf("SourceMap[%d] = %d; want %d", tc.index, got, tc.line)
		}
		if got := prog.Instrs[tc.index].Line; got != tc.line {
			t.Errorf("Instrs[%d].Line = %d; want %d", tc.index, got, tc.line)
		}
	}
	if len(prog.SourceMap) != len(prog.Instrs) {
		t.Errorf("SourceMap has %d entries for %d instructions", len(prog.SourceMap), len(prog.Instrs))
	}
	if prog.Labels["loop"] != 1 {
		t.Errorf("loop: expected 1, got %d", prog.Labels["loop"])
	}
}
