package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"

	"github.com/xyproto/env/v2"

	"gocc/pkg/asm"
	"gocc/pkg/compiler"
	"gocc/pkg/cpu"
	"gocc/pkg/utils"
)

const usageText = `usage: ccompiler [flags] input.c [output.s]

Compiles a C-subset source file to AT&T x86-64 assembly.

Environment:
  GOCC_OUTPUT     default for -o
  GOCC_CHECK      default for -check
  GOCC_MAX_STEPS  default for -max-steps
  NO_COLOR        disable colored diagnostics

Flags:
`

type options struct {
	input    string
	output   string
	check    bool
	run      bool
	tokens   bool
	ast      bool
	maxSteps int
	color    bool
}

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func parseFlags(args []string, stderr io.Writer) (options, error) {
	var opts options
	fs := flag.NewFlagSet("ccompiler", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.Usage = func() {
		fmt.Fprint(stderr, usageText)
		fs.PrintDefaults()
	}
	fs.StringVar(&opts.output, "o", env.Str("GOCC_OUTPUT"), "output assembly path (default: input with .s extension)")
	fs.BoolVar(&opts.check, "check", env.Bool("GOCC_CHECK"), "validate the generated assembly")
	fs.BoolVar(&opts.run, "run", false, "execute main on the built-in emulator and exit with its status")
	fs.BoolVar(&opts.tokens, "tokens", false, "print the token stream")
	fs.BoolVar(&opts.ast, "ast", false, "print the syntax tree")
	fs.IntVar(&opts.maxSteps, "max-steps", env.Int("GOCC_MAX_STEPS", cpu.DefaultMaxSteps), "instruction limit for -run")
	if err := fs.Parse(args); err != nil {
		return opts, err
	}

	switch fs.NArg() {
	case 1:
		opts.input = fs.Arg(0)
	case 2:
		opts.input = fs.Arg(0)
		opts.output = fs.Arg(1)
	default:
		fs.Usage()
		return opts, errors.New("expected an input path and an optional output path")
	}
	if opts.output == "" {
		opts.output = utils.AssemblyPath(opts.input)
	}
	same, err := utils.SamePath(opts.input, opts.output)
	if err != nil {
		return opts, err
	}
	if same {
		return opts, fmt.Errorf("output %s would overwrite the input", opts.output)
	}
	return opts, nil
}

// run is main without the process exit, so it can be tested.
func run(args []string, stdout, stderr io.Writer) int {
	logger := log.New(stderr, "ccompiler: ", 0)

	opts, err := parseFlags(args, stderr)
	if err != nil {
		if !errors.Is(err, flag.ErrHelp) {
			logger.Println(err)
		}
		return 1
	}
	if f, ok := stderr.(*os.File); ok {
		opts.color = utils.IsTerminal(f.Fd()) && env.Str("NO_COLOR") == ""
	}

	assembly, err := compileFile(opts, stdout)
	if err != nil {
		var cerr *compiler.Error
		if errors.As(err, &cerr) {
			fmt.Fprintf(stderr, "%s: %s\n", opts.input, cerr.Format(opts.color))
		} else {
			logger.Println(err)
		}
		return 1
	}

	// Every check runs before the output is written, so a failed run
	// leaves nothing behind.
	status := 0
	if opts.check || opts.run {
		prog, err := asm.Assemble(assembly)
		if err != nil {
			logger.Printf("generated assembly rejected: %v", err)
			return 1
		}
		if opts.run {
			status, err = execute(prog, opts.maxSteps)
			if err != nil {
				logger.Printf("run: %v", err)
				return 1
			}
		}
	}

	if err := os.WriteFile(opts.output, []byte(assembly), 0o644); err != nil {
		logger.Printf("write error: %v", err)
		return 1
	}
	return status
}

// compileFile runs the pipeline stage by stage so the dumps can be
// printed.
func compileFile(opts options, stdout io.Writer) (string, error) {
	fullPath, _, err := utils.GetPathInfo(opts.input)
	if err != nil {
		return "", err
	}
	data, err := os.ReadFile(fullPath)
	if err != nil {
		return "", fmt.Errorf("read error: %w", err)
	}
	src := string(data)

	tokens, err := compiler.Lex(src)
	if err != nil {
		return "", err
	}
	if opts.tokens {
		fmt.Fprintf(stdout, "Tokens (%d)\n", len(tokens))
		for _, tok := range tokens {
			fmt.Fprintln(stdout, " ", tok)
		}
	}

	prog, err := compiler.Parse(tokens, src)
	if err != nil {
		return "", err
	}
	if opts.ast {
		fmt.Fprintln(stdout, "AST")
		for _, fn := range prog.Functions {
			fmt.Fprintln(stdout, " ", fn)
		}
	}

	return compiler.Generate(prog)
}

func execute(prog *asm.Program, maxSteps int) (int, error) {
	if len(prog.Externs) > 0 {
		return 0, fmt.Errorf("cannot run: calls undefined functions %v", prog.Externs)
	}
	vm := cpu.New(prog, cpu.WithMaxSteps(maxSteps))
	v, err := vm.Call("main")
	if err != nil {
		return 0, err
	}
	return cpu.ExitStatus(v), nil
}
