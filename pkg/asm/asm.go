// Package asm reads the AT&T-syntax x86-64 text the compiler emits and
// resolves it into a Program the cpu package can execute.
package asm

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"
)

// OperandKind says how an operand is addressed.
type OperandKind int

const (
	KindReg OperandKind = iota // %rax
	KindImm                    // $42
	KindMem                    // -8(%rbp), (%rax)
	KindSym                    // main, .L3
)

// Operand is one parsed instruction operand.
type Operand struct {
	Kind OperandKind
	Reg  string // register name without '%'; the base register for KindMem
	Imm  int64  // immediate value, or displacement for KindMem
	Sym  string // symbol name for KindSym
}

func (o Operand) String() string {
	switch o.Kind {
	case KindReg:
		return "%" + o.Reg
	case KindImm:
		return "$" + strconv.FormatInt(o.Imm, 10)
	case KindMem:
		if o.Imm == 0 {
			return "(%" + o.Reg + ")"
		}
		return fmt.Sprintf("%d(%%%s)", o.Imm, o.Reg)
	default:
		return o.Sym
	}
}

// Instr is one instruction with its source line.
type Instr struct {
	Op   string
	Args []Operand
	Line int
}

func (in Instr) String() string {
	if len(in.Args) == 0 {
		return in.Op
	}
	parts := make([]string, len(in.Args))
	for i, a := range in.Args {
		parts[i] = a.String()
	}
	return in.Op + " " + strings.Join(parts, ", ")
}

// Program is an assembled translation unit.
type Program struct {
	Instrs    []Instr
	Labels    map[string]int // label -> index of the instruction it precedes
	Globals   []string       // names declared with .globl, in order
	Externs   []string       // call targets not defined in this program
	SourceMap map[int]int    // instruction index -> 1-based source line
}

// arity gives the operand count of every supported mnemonic.
var arity = map[string]int{
	"mov":    2,
	"movq":   2,
	"lea":    2,
	"movzbq": 2,
	"push":   1,
	"pop":    1,
	"add":    2,
	"sub":    2,
	"imul":   2,
	"idiv":   1,
	"cqo":    0,
	"neg":    1,
	"not":    1,
	"and":    2,
	"or":     2,
	"xor":    2,
	"cmp":    2,
	"test":   2,
	"sete":   1,
	"setne":  1,
	"setl":   1,
	"setle":  1,
	"setg":   1,
	"setge":  1,
	"jmp":    1,
	"je":     1,
	"jne":    1,
	"jz":     1,
	"jnz":    1,
	"jl":     1,
	"jle":    1,
	"jg":     1,
	"jge":    1,
	"call":   1,
	"ret":    0,
	"nop":    0,
}

// branchOps take a symbol operand that must name a label.
var branchOps = map[string]bool{
	"jmp": true, "je": true, "jne": true, "jz": true, "jnz": true,
	"jl": true, "jle": true, "jg": true, "jge": true,
}

// Registers lists every register name the reader accepts.
var Registers = map[string]bool{
	"rax": true, "rbx": true, "rcx": true, "rdx": true,
	"rsi": true, "rdi": true, "rbp": true, "rsp": true,
	"r8": true, "r9": true, "r10": true, "r11": true,
	"r12": true, "r13": true, "r14": true, "r15": true,
	"al": true, "bl": true, "cl": true, "dl": true,
}

type Assembler struct {
	labels map[string]int
}

type parsedLine struct {
	lineNo    int
	labels    []string
	mnemonic  string
	operands  []string
	directive bool
}

func NewAssembler() *Assembler {
	return &Assembler{
		labels: make(map[string]int),
	}
}

// Assemble parses and resolves code.
func Assemble(code string) (*Program, error) {
	return NewAssembler().Assemble(code)
}

func (a *Assembler) Assemble(code string) (*Program, error) {
	lines := strings.Split(code, "\n")

	if err := a.pass1(lines); err != nil {
		return nil, err
	}

	return a.pass2(lines)
}

// pass1 assigns every label the index of the instruction that follows it.
func (a *Assembler) pass1(lines []string) error {
	index := 0

	for i, raw := range lines {
		lineNo := i + 1
		p, err := parseLine(raw, lineNo)
		if err != nil {
			return err
		}

		for _, lbl := range p.labels {
			if _, exists := a.labels[lbl]; exists {
				return fmt.Errorf("duplicate label '%s' on line %d", lbl, lineNo)
			}
			a.labels[lbl] = index
		}

		if p.mnemonic == "" || p.directive {
			continue
		}
		if _, ok := arity[p.mnemonic]; !ok {
			return fmt.Errorf("unknown instruction on line %d: %s", lineNo, p.mnemonic)
		}
		index++
	}

	return nil
}

func (a *Assembler) pass2(lines []string) (*Program, error) {
	prog := &Program{
		Labels:    a.labels,
		SourceMap: make(map[int]int),
	}
	externs := map[string]bool{}

	for i, raw := range lines {
		lineNo := i + 1
		p, err := parseLine(raw, lineNo)
		if err != nil {
			return nil, err
		}
		if p.mnemonic == "" {
			continue
		}

		if p.directive {
			if err := a.directive(prog, p); err != nil {
				return nil, err
			}
			continue
		}

		want := arity[p.mnemonic]
		if len(p.operands) != want {
			return nil, fmt.Errorf("%s expects %d operand(s), got %d on line %d", p.mnemonic, want, len(p.operands), lineNo)
		}

		in := Instr{Op: p.mnemonic, Line: lineNo}
		for _, tok := range p.operands {
			op, err := parseOperand(tok, lineNo)
			if err != nil {
				return nil, err
			}
			in.Args = append(in.Args, op)
		}

		if err := a.resolve(in, externs, prog); err != nil {
			return nil, err
		}

		prog.SourceMap[len(prog.Instrs)] = lineNo
		prog.Instrs = append(prog.Instrs, in)
	}

	return prog, nil
}

// resolve checks symbol operands: branch targets must be local labels,
// call targets that are not become externs.
func (a *Assembler) resolve(in Instr, externs map[string]bool, prog *Program) error {
	for _, arg := range in.Args {
		if arg.Kind != KindSym {
			continue
		}
		_, defined := a.labels[arg.Sym]
		switch {
		case branchOps[in.Op]:
			if !defined {
				return fmt.Errorf("undefined label '%s' on line %d", arg.Sym, in.Line)
			}
		case in.Op == "call":
			if !defined && !externs[arg.Sym] {
				externs[arg.Sym] = true
				prog.Externs = append(prog.Externs, arg.Sym)
			}
		default:
			return fmt.Errorf("%s cannot take symbol '%s' on line %d", in.Op, arg.Sym, in.Line)
		}
	}
	return nil
}

func (a *Assembler) directive(prog *Program, p parsedLine) error {
	switch p.mnemonic {
	case ".text", ".section":
		return nil
	case ".globl", ".global":
		if len(p.operands) != 1 || !isIdentifier(p.operands[0]) {
			return fmt.Errorf("%s expects one symbol on line %d", p.mnemonic, p.lineNo)
		}
		prog.Globals = append(prog.Globals, p.operands[0])
		return nil
	default:
		return fmt.Errorf("unknown directive on line %d: %s", p.lineNo, p.mnemonic)
	}
}

func parseLine(raw string, lineNo int) (parsedLine, error) {
	p := parsedLine{lineNo: lineNo}

	line := strings.TrimSpace(stripComments(raw))
	if line == "" {
		return p, nil
	}

	for {
		colon := strings.IndexByte(line, ':')
		if colon <= 0 {
			break
		}

		beforeColon := strings.TrimSpace(line[:colon])
		if strings.ContainsAny(beforeColon, " \t\"") {
			break
		}

		if !isIdentifier(beforeColon) {
			return p, fmt.Errorf("invalid label '%s' on line %d", beforeColon, lineNo)
		}

		p.labels = append(p.labels, beforeColon)
		line = strings.TrimSpace(line[colon+1:])
		if line == "" {
			return p, nil
		}
	}

	mnemonic, rest := line, ""
	if i := strings.IndexAny(line, " \t"); i >= 0 {
		mnemonic, rest = line[:i], line[i+1:]
	}
	p.mnemonic = strings.ToLower(mnemonic)
	p.directive = strings.HasPrefix(p.mnemonic, ".")
	rest = strings.TrimSpace(rest)
	if rest != "" {
		p.operands = splitOperands(rest)
	}
	return p, nil
}

// splitOperands splits on commas that are not inside parentheses or quotes.
func splitOperands(s string) []string {
	var out []string
	depth, start := 0, 0
	inQuote := false
	for i, r := range s {
		switch {
		case r == '"':
			inQuote = !inQuote
		case inQuote:
		case r == '(':
			depth++
		case r == ')':
			depth--
		case r == ',' && depth == 0:
			out = append(out, strings.TrimSpace(s[start:i]))
			start = i + 1
		}
	}
	return append(out, strings.TrimSpace(s[start:]))
}

// stripComments removes a '#' comment that is not inside a string.
func stripComments(line string) string {
	inQuote := false
	for i, r := range line {
		switch r {
		case '"':
			inQuote = !inQuote
		case '#':
			if !inQuote {
				return line[:i]
			}
		}
	}
	return line
}

func parseOperand(tok string, lineNo int) (Operand, error) {
	switch {
	case strings.HasPrefix(tok, "%"):
		reg, err := parseRegister(tok, lineNo)
		return Operand{Kind: KindReg, Reg: reg}, err

	case strings.HasPrefix(tok, "$"):
		v, err := strconv.ParseInt(tok[1:], 0, 64)
		if err != nil {
			return Operand{}, fmt.Errorf("invalid immediate '%s' on line %d", tok, lineNo)
		}
		return Operand{Kind: KindImm, Imm: v}, nil

	case strings.HasSuffix(tok, ")"):
		open := strings.IndexByte(tok, '(')
		if open < 0 {
			return Operand{}, fmt.Errorf("invalid memory operand '%s' on line %d", tok, lineNo)
		}
		var disp int64
		if open > 0 {
			v, err := strconv.ParseInt(tok[:open], 0, 64)
			if err != nil {
				return Operand{}, fmt.Errorf("invalid displacement '%s' on line %d", tok, lineNo)
			}
			disp = v
		}
		reg, err := parseRegister(tok[open+1:len(tok)-1], lineNo)
		if err != nil {
			return Operand{}, err
		}
		return Operand{Kind: KindMem, Reg: reg, Imm: disp}, nil

	case isIdentifier(tok):
		return Operand{Kind: KindSym, Sym: tok}, nil
	}
	return Operand{}, fmt.Errorf("invalid operand '%s' on line %d", tok, lineNo)
}

func parseRegister(token string, lineNo int) (string, error) {
	name := strings.TrimPrefix(strings.TrimSpace(token), "%")
	if !Registers[name] {
		return "", fmt.Errorf("invalid register '%s' on line %d", token, lineNo)
	}
	return name, nil
}

func isIdentifier(s string) bool {
	if s == "" {
		return false
	}

	for i, r := range s {
		if i == 0 {
			if !unicode.IsLetter(r) && r != '_' && r != '.' {
				return false
			}
			continue
		}

		if !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '_' && r != '.' {
			return false
		}
	}

	return true
}
