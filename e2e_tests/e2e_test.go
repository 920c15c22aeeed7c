package main

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"gocc/pkg/asm"
	"gocc/pkg/compiler"
	"gocc/pkg/cpu"
)

type program struct {
	name   string
	source string
	status int
}

var programs = []program{
	// The five reference scenarios.
	{"A arithmetic", `int main(){ return 2 + 3 * 4; }`, 14},
	{"B if else", `int main(){ int x = 1; if (x) x = 5; else x = 6; return x; }`, 5},
	{"C for loop", `int main(){ int i = 0; int s = 0; for (i = 0; i < 5; i = i + 1) s = s + i; return s; }`, 10},
	{"E pointer store", `int main(){ int x; int *p = &x; *p = 7; return x; }`, 7},

	{"while", `int main() { int i = 0; int s = 0; while (i < 10) { s = s + i; i = i + 1; } return s; }`, 45},
	{"do while", `int main() { int i = 0; do i = i + 3; while (i < 10); return i; }`, 12},
	{"break and continue", `
int main() {
    int s = 0;
    for (int i = 0; i < 10; i = i + 1) {
        if (i % 2) continue;
        if (i > 6) break;
        s = s + i;
    }
    return s;
}`, 12},
	{"break leaves innermost loop", `
int main() {
    int c = 0;
    for (int i = 0; i < 3; i = i + 1) {
        for (int j = 0; j < 10; j = j + 1) {
            if (j == 2) break;
            c = c + 1;
        }
    }
    return c;
}`, 6},
	{"break from nested block", `
int main() {
    int s = 0;
    while (1) {
        int a = 5;
        {
            int b = 6;
            s = a + b;
            break;
        }
    }
    int after = 1;
    return s + after;
}`, 12},
	{"continue in do while", `
int main() {
    int i = 0;
    int s = 0;
    do {
        i = i + 1;
        if (i == 2) continue;
        s = s + i;
    } while (i < 4);
    return s;
}`, 8},
	{"for scope ends with loop", `int main() { for (int i = 0; i < 3; i = i + 1) ; int i = 5; return i; }`, 5},
	{"shadowing", `int main() { int x = 1; { int x = 2; x = x + 10; } return x; }`, 1},
	{"inner sees outer", `int main() { int x = 1; { int y = x + 1; x = y * 10; } return x; }`, 20},
	{"calls", `
int three() { return 3; }
int main() { return three() * three() + 1; }`, 10},
	{"call preserves temporaries", `
int five() { int a = 1; int b = 2; return a + b + 2; }
int main() { return 100 - five() * (1 + five()); }`, 70},
	{"double pointer", `int main() { int x = 1; int *p = &x; int **pp = &p; **pp = 9; return x; }`, 9},
	{"array fill", `
int main() {
    int a[5];
    for (int i = 0; i < 5; i = i + 1) a[i] = i * i;
    return a[4] + a[3];
}`, 25},
	{"two dimensional array", `
int main() {
    int m[3][4];
    for (int i = 0; i < 3; i = i + 1)
        for (int j = 0; j < 4; j = j + 1)
            m[i][j] = i * 4 + j;
    return m[2][3] + m[1][0];
}`, 15},
	{"pointer to array", `int main() { int m[2][3]; int (*p)[3] = m; m[1][2] = 42; return p[1][2]; }`, 42},
	{"address of array", `int main() { int a[2]; int (*p)[2] = &a; (*p)[1] = 6; return a[1]; }`, 6},
	{"pointer arithmetic", `int main() { int a[3]; int *p = a; *(p + 2) = 7; *(1 + p) = 2; return a[2] * a[1]; }`, 14},
	{"ternary", `int main() { int x = 5; return x > 3 ? x * 2 : 0; }`, 10},
	{"nested ternary", `int main() { int x = 0; return x ? 1 : x + 1 ? 2 : 3; }`, 2},
	{"logical operators evaluate both sides", `int main() { int x = 0; int y = (x = 1) || (x = 2); return x * 10 + y; }`, 21},
	{"logical and", `int main() { return (2 && 3) + (0 && 1) + (0 || 0) + (0 || 7); }`, 2},
	{"comma", `int main() { int x = (1, 2, 3); return x; }`, 3},
	{"signed division", `int main() { return -7 / 2 + 10; }`, 7},
	{"signed remainder", `int main() { return -7 % 3 + 10; }`, 9},
	{"bitwise", `int main() { return (12 & 10) | (1 ^ 3) | ~-1; }`, 10},
	{"assignment chain", `int main() { int a; int b; a = b = 4; return a + b; }`, 8},
	{"comparisons", `int main() { return (1 < 2) + (2 <= 2) + (3 > 4) + (4 >= 4) + (5 == 5) + (5 != 5); }`, 4},
	{"logical not", `int main() { return !0 + !5; }`, 1},
	{"status is truncated", `int main() { return 256 + 3; }`, 3},
	{"negative status", `int main() { return -1; }`, 255},
	{"falling off main returns zero", `int main() { int x = 3; }`, 0},
	{"comments", `
// computes 6
int main() {
    /* block
       comment */
    return 6; // done
}`, 6},
}

// compileAndRun runs source through the compiler, the assembly reader and
// the emulator.
func compileAndRun(t *testing.T, source string) (string, int) {
	t.Helper()
	assembly, err := compiler.Compile(source)
	if err != nil {
		t.Fatalf("Compile failed: %v", err)
	}

	prog, err := asm.Assemble(assembly)
	if err != nil {
		t.Fatalf("Assembly failed: %v\n%s", err, assembly)
	}
	if len(prog.Externs) != 0 {
		t.Fatalf("unexpected externs %v", prog.Externs)
	}

	vm := cpu.New(prog)
	v, err := vm.Call("main")
	if err != nil {
		t.Fatalf("Run failed: %v\n%s", err, assembly)
	}
	if vm.Regs[cpu.RSP] != cpu.StackTop {
		t.Errorf("stack not unwound: %%rsp = %#x", vm.Regs[cpu.RSP])
	}
	return assembly, cpu.ExitStatus(v)
}

func TestCompilerAndCPU(t *testing.T) {
	for _, p := range programs {
		t.Run(p.name, func(t *testing.T) {
			_, status := compileAndRun(t, p.source)
			if status != p.status {
				t.Errorf("exit status: got %d, want %d", status, p.status)
			}
		})
	}
}

func TestCompileErrors(t *testing.T) {
	tests := []struct {
		name   string
		source string
		want   error
	}{
		{"D undeclared", `int main(){ return y; }`, compiler.ErrUndeclared},
		{"redefinition", `int main(){ int x; int x; return 0; }`, compiler.ErrRedefinition},
		{"break outside loop", `int main(){ break; }`, compiler.ErrBreakOutsideLoop},
		{"continue outside loop", `int main(){ continue; }`, compiler.ErrContinueOutsideLoop},
		{"bad lvalue", `int main(){ 1 = 2; return 0; }`, compiler.ErrBadLvalue},
		{"bad dereference", `int main(){ int x; return *x; }`, compiler.ErrBadDeref},
		{"bad array size", `int main(){ int a[0]; return 0; }`, compiler.ErrBadArraySize},
		{"illegal character", `int main(){ return 1 @ 2; }`, compiler.ErrIllegalChar},
		{"unexpected end", `int main(){ return 0;`, compiler.ErrUnexpectedEOF},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := compiler.Compile(tt.source)
			if !errors.Is(err, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, err)
			}
			if out != "" {
				t.Errorf("no output expected on failure, got:\n%s", out)
			}
		})
	}
}

func TestCompileFileWritesNothingOnError(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "bad.c")
	if err := os.WriteFile(src, []byte("int main(){ return y; }"), 0o644); err != nil {
		t.Fatal(err)
	}
	out, err := compiler.CompileFile(src)
	if !errors.Is(err, compiler.ErrUndeclared) || out != "" {
		t.Errorf("CompileFile = %q, %v", out, err)
	}
}

// TestHostToolchain assembles and links the output with the system C
// compiler and checks the real exit status.
func TestHostToolchain(t *testing.T) {
	if runtime.GOOS != "linux" || runtime.GOARCH != "amd64" {
		t.Skip("host toolchain check needs linux/amd64")
	}
	cc, err := exec.LookPath("cc")
	if err != nil {
		t.Skip("no cc on PATH")
	}

	dir := t.TempDir()
	for i, p := range programs {
		t.Run(p.name, func(t *testing.T) {
			assembly, err := compiler.Compile(p.source)
			if err != nil {
				t.Fatalf("Compile failed: %v", err)
			}
			src := filepath.Join(dir, fmt.Sprintf("prog%d.s", i))
			bin := strings.TrimSuffix(src, ".s")
			if err := os.WriteFile(src, []byte(assembly), 0o644); err != nil {
				t.Fatal(err)
			}
			if out, err := exec.Command(cc, "-o", bin, src).CombinedOutput(); err != nil {
				t.Fatalf("cc failed: %v\n%s\n%s", err, out, assembly)
			}

			status := 0
			if err := exec.Command(bin).Run(); err != nil {
				var exitErr *exec.ExitError
				if !errors.As(err, &exitErr) {
					t.Fatalf("running %s: %v", bin, err)
				}
				status = exitErr.ExitCode()
			}
			if status != p.status {
				t.Errorf("exit status: got %d, want %d", status, p.status)
			}
		})
	}
}
