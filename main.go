package main

import (
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/xyproto/env/v2"

	"gocc/pkg/asm"
	"gocc/pkg/compiler"
	"gocc/pkg/cpu"
)

func main() {
	inPath := flag.String("in", "", "input file: C source (.c) or assembly")
	runProgram := flag.Bool("run", false, "run main on the emulator")
	maxSteps := flag.Int("max-steps", env.Int("GOCC_MAX_STEPS", cpu.DefaultMaxSteps), "instruction limit for -run")
	flag.Parse()

	if *inPath == "" {
		fmt.Fprintln(os.Stderr, "nothing to do: provide -in <file.c|file.s>")
		flag.Usage()
		os.Exit(2)
	}

	text, err := loadAssembly(*inPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", *inPath, err)
		os.Exit(1)
	}

	prog, err := asm.Assemble(text)
	if err != nil {
		fmt.Fprintf(os.Stderr, "assembly failed: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("assembled %d instructions, %d labels", len(prog.Instrs), len(prog.Labels))
	if len(prog.Externs) > 0 {
		fmt.Printf(", externs: %s", strings.Join(prog.Externs, " "))
	}
	fmt.Println()

	if !*runProgram {
		return
	}
	if err := runMain(prog, *maxSteps); err != nil {
		fmt.Fprintf(os.Stderr, "run failed for %q: %v\n", *inPath, err)
		os.Exit(1)
	}
}

// loadAssembly compiles C sources and reads anything else as assembly.
func loadAssembly(path string) (string, error) {
	if strings.HasSuffix(path, ".c") {
		text, err := compiler.CompileFile(path)
		if err != nil {
			return "", fmt.Errorf("compilation failed: %w", err)
		}
		return text, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func runMain(prog *asm.Program, maxSteps int) error {
	if len(prog.Externs) > 0 {
		return fmt.Errorf("undefined functions: %s", strings.Join(prog.Externs, " "))
	}

	vm := cpu.New(prog, cpu.WithMaxSteps(maxSteps))
	v, err := vm.Call("main")
	if err != nil {
		return err
	}

	fmt.Printf("run complete: rax=%d status=%d steps=%d\n", v, cpu.ExitStatus(v), vm.Steps)
	return nil
}
