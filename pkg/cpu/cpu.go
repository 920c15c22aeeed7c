// Package cpu interprets the subset of x86-64 that the compiler emits. It
// runs an assembled asm.Program directly, so generated code can be
// checked on any host.
package cpu

import (
	"encoding/binary"
	"errors"
	"fmt"

	"gocc/pkg/asm"
)

const (
	DefaultMemorySize = 1 << 20
	DefaultMaxSteps   = 10_000_000

	// StackTop is the address just past the highest stack byte.
	StackTop uint64 = 0x7fff_0000_0000

	// haltAddr is the return address pushed by Call; returning to it stops
	// the machine.
	haltAddr = ^uint64(0)
)

var (
	ErrStepLimit       = errors.New("step limit exceeded")
	ErrDivideByZero    = errors.New("integer divide by zero")
	ErrDivideOverflow  = errors.New("integer divide overflow")
	ErrSegfault        = errors.New("memory access out of range")
	ErrUndefinedSymbol = errors.New("undefined symbol")
	ErrPCOutOfRange    = errors.New("execution ran off the end of the program")
	ErrBadOperand      = errors.New("bad operand")
)

// Register numbers, in hardware encoding order.
const (
	RAX = iota
	RCX
	RDX
	RBX
	RSP
	RBP
	RSI
	RDI
	R8
	R9
	R10
	R11
	R12
	R13
	R14
	R15
)

var regIndex = map[string]int{
	"rax": RAX, "rcx": RCX, "rdx": RDX, "rbx": RBX,
	"rsp": RSP, "rbp": RBP, "rsi": RSI, "rdi": RDI,
	"r8": R8, "r9": R9, "r10": R10, "r11": R11,
	"r12": R12, "r13": R13, "r14": R14, "r15": R15,
	"al": RAX, "cl": RCX, "dl": RDX, "bl": RBX,
}

var byteRegs = map[string]bool{"al": true, "cl": true, "dl": true, "bl": true}

type CPU struct {
	Regs [16]uint64

	// PC is the index of the next instruction in the program.
	PC int

	ZF bool
	SF bool
	OF bool
	CF bool

	// Memory backs the stack: addresses [StackTop-len(Memory), StackTop).
	Memory []byte

	Halted   bool
	Steps    int
	MaxSteps int

	prog *asm.Program
}

// Option configures a CPU.
type Option func(*CPU)

// WithMemorySize sets the stack size in bytes.
func WithMemorySize(n int) Option {
	return func(c *CPU) { c.Memory = make([]byte, n) }
}

// WithMaxSteps bounds how many instructions Run executes.
func WithMaxSteps(n int) Option {
	return func(c *CPU) { c.MaxSteps = n }
}

func New(prog *asm.Program, opts ...Option) *CPU {
	c := &CPU{
		prog:     prog,
		MaxSteps: DefaultMaxSteps,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.Memory == nil {
		c.Memory = make([]byte, DefaultMemorySize)
	}
	c.Regs[RSP] = StackTop
	return c
}

func (c *CPU) stackBase() uint64 {
	return StackTop - uint64(len(c.Memory))
}

// Read64 loads the little-endian word at addr.
func (c *CPU) Read64(addr uint64) (uint64, error) {
	if addr < c.stackBase() || addr > StackTop-8 {
		return 0, fmt.Errorf("%w: read at %#x", ErrSegfault, addr)
	}
	off := addr - c.stackBase()
	return binary.LittleEndian.Uint64(c.Memory[off : off+8]), nil
}

// Write64 stores val little-endian at addr.
func (c *CPU) Write64(addr uint64, val uint64) error {
	if addr < c.stackBase() || addr > StackTop-8 {
		return fmt.Errorf("%w: write at %#x", ErrSegfault, addr)
	}
	off := addr - c.stackBase()
	binary.LittleEndian.PutUint64(c.Memory[off:off+8], val)
	return nil
}

func (c *CPU) push(v uint64) error {
	c.Regs[RSP] -= 8
	return c.Write64(c.Regs[RSP], v)
}

func (c *CPU) pop() (uint64, error) {
	v, err := c.Read64(c.Regs[RSP])
	if err != nil {
		return 0, err
	}
	c.Regs[RSP] += 8
	return v, nil
}

func (c *CPU) address(op asm.Operand) (uint64, error) {
	if op.Kind != asm.KindMem {
		return 0, fmt.Errorf("%w: %s is not a memory operand", ErrBadOperand, op)
	}
	return c.Regs[regIndex[op.Reg]] + uint64(op.Imm), nil
}

func (c *CPU) read(op asm.Operand) (uint64, error) {
	switch op.Kind {
	case asm.KindReg:
		v := c.Regs[regIndex[op.Reg]]
		if byteRegs[op.Reg] {
			v &= 0xff
		}
		return v, nil
	case asm.KindImm:
		return uint64(op.Imm), nil
	case asm.KindMem:
		addr, err := c.address(op)
		if err != nil {
			return 0, err
		}
		return c.Read64(addr)
	}
	return 0, fmt.Errorf("%w: cannot read %s", ErrBadOperand, op)
}

func (c *CPU) write(op asm.Operand, v uint64) error {
	switch op.Kind {
	case asm.KindReg:
		idx := regIndex[op.Reg]
		if byteRegs[op.Reg] {
			c.Regs[idx] = c.Regs[idx]&^0xff | v&0xff
		} else {
			c.Regs[idx] = v
		}
		return nil
	case asm.KindMem:
		addr, err := c.address(op)
		if err != nil {
			return err
		}
		return c.Write64(addr, v)
	}
	return fmt.Errorf("%w: cannot write %s", ErrBadOperand, op)
}

func (c *CPU) setLogicFlags(r uint64) {
	c.ZF = r == 0
	c.SF = int64(r) < 0
	c.CF = false
	c.OF = false
}

func (c *CPU) setAddFlags(d, s, r uint64) {
	c.ZF = r == 0
	c.SF = int64(r) < 0
	c.CF = r < d
	c.OF = ((d^r)&(s^r))>>63 == 1
}

func (c *CPU) setSubFlags(d, s, r uint64) {
	c.ZF = r == 0
	c.SF = int64(r) < 0
	c.CF = d < s
	c.OF = ((d^s)&(d^r))>>63 == 1
}

// condition evaluates the flag test behind a jcc or setcc suffix.
func (c *CPU) condition(cc string) bool {
	switch cc {
	case "e", "z":
		return c.ZF
	case "ne", "nz":
		return !c.ZF
	case "l":
		return c.SF != c.OF
	case "le":
		return c.ZF || c.SF != c.OF
	case "g":
		return !c.ZF && c.SF == c.OF
	case "ge":
		return c.SF == c.OF
	}
	return false
}

func (c *CPU) jumpTarget(op asm.Operand) (int, error) {
	target, ok := c.prog.Labels[op.Sym]
	if op.Kind != asm.KindSym || !ok {
		return 0, fmt.Errorf("%w: %s", ErrUndefinedSymbol, op)
	}
	return target, nil
}

// binary runs a two-operand ALU instruction: dst = fn(dst, src).
func (c *CPU) binary(in asm.Instr, fn func(d, s uint64) uint64, flags func(d, s, r uint64)) error {
	s, err := c.read(in.Args[0])
	if err != nil {
		return err
	}
	d, err := c.read(in.Args[1])
	if err != nil {
		return err
	}
	r := fn(d, s)
	if flags != nil {
		flags(d, s, r)
	}
	return c.write(in.Args[1], r)
}

// Step executes one instruction.
func (c *CPU) Step() error {
	if c.Halted {
		return nil
	}
	if c.PC < 0 || c.PC >= len(c.prog.Instrs) {
		return ErrPCOutOfRange
	}

	in := c.prog.Instrs[c.PC]
	c.PC++
	c.Steps++

	if err := c.exec(in); err != nil {
		return fmt.Errorf("line %d: %s: %w", in.Line, in, err)
	}
	return nil
}

func (c *CPU) exec(in asm.Instr) error {
	logic := func(d, s, r uint64) { c.setLogicFlags(r) }

	switch in.Op {
	case "nop":

	case "mov", "movq":
		v, err := c.read(in.Args[0])
		if err != nil {
			return err
		}
		return c.write(in.Args[1], v)

	case "movzbq":
		v, err := c.read(in.Args[0])
		if err != nil {
			return err
		}
		return c.write(in.Args[1], v&0xff)

	case "lea":
		addr, err := c.address(in.Args[0])
		if err != nil {
			return err
		}
		return c.write(in.Args[1], addr)

	case "push":
		v, err := c.read(in.Args[0])
		if err != nil {
			return err
		}
		return c.push(v)

	case "pop":
		v, err := c.pop()
		if err != nil {
			return err
		}
		return c.write(in.Args[0], v)

	case "add":
		return c.binary(in, func(d, s uint64) uint64 { return d + s }, c.setAddFlags)

	case "sub":
		return c.binary(in, func(d, s uint64) uint64 { return d - s }, c.setSubFlags)

	case "imul":
		return c.binary(in, func(d, s uint64) uint64 { return uint64(int64(d) * int64(s)) }, nil)

	case "and":
		return c.binary(in, func(d, s uint64) uint64 { return d & s }, logic)

	case "or":
		return c.binary(in, func(d, s uint64) uint64 { return d | s }, logic)

	case "xor":
		return c.binary(in, func(d, s uint64) uint64 { return d ^ s }, logic)

	case "cmp", "test":
		s, err := c.read(in.Args[0])
		if err != nil {
			return err
		}
		d, err := c.read(in.Args[1])
		if err != nil {
			return err
		}
		if in.Op == "cmp" {
			c.setSubFlags(d, s, d-s)
		} else {
			c.setLogicFlags(d & s)
		}

	case "cqo":
		if int64(c.Regs[RAX]) < 0 {
			c.Regs[RDX] = ^uint64(0)
		} else {
			c.Regs[RDX] = 0
		}

	case "idiv":
		v, err := c.read(in.Args[0])
		if err != nil {
			return err
		}
		divisor := int64(v)
		dividend := int64(c.Regs[RAX])
		if divisor == 0 {
			return ErrDivideByZero
		}
		// Only dividends that fit in %rax are supported: %rdx must hold
		// the sign extension produced by cqo.
		signExt := uint64(0)
		if dividend < 0 {
			signExt = ^uint64(0)
		}
		if c.Regs[RDX] != signExt || (dividend == -1<<63 && divisor == -1) {
			return ErrDivideOverflow
		}
		c.Regs[RAX] = uint64(dividend / divisor)
		c.Regs[RDX] = uint64(dividend % divisor)

	case "neg":
		v, err := c.read(in.Args[0])
		if err != nil {
			return err
		}
		r := -v
		c.setSubFlags(0, v, r)
		return c.write(in.Args[0], r)

	case "not":
		v, err := c.read(in.Args[0])
		if err != nil {
			return err
		}
		return c.write(in.Args[0], ^v)

	case "sete", "setne", "setl", "setle", "setg", "setge":
		var v uint64
		if c.condition(in.Op[3:]) {
			v = 1
		}
		return c.write(in.Args[0], v)

	case "jmp", "je", "jne", "jz", "jnz", "jl", "jle", "jg", "jge":
		if in.Op != "jmp" && !c.condition(in.Op[1:]) {
			return nil
		}
		target, err := c.jumpTarget(in.Args[0])
		if err != nil {
			return err
		}
		c.PC = target

	case "call":
		target, err := c.jumpTarget(in.Args[0])
		if err != nil {
			return err
		}
		if err := c.push(uint64(c.PC)); err != nil {
			return err
		}
		c.PC = target

	case "ret":
		addr, err := c.pop()
		if err != nil {
			return err
		}
		if addr == haltAddr {
			c.Halted = true
			return nil
		}
		c.PC = int(addr)

	default:
		return fmt.Errorf("unsupported instruction %q", in.Op)
	}
	return nil
}

// Run steps until the machine halts or MaxSteps is exceeded.
func (c *CPU) Run() error {
	for !c.Halted {
		if c.MaxSteps > 0 && c.Steps >= c.MaxSteps {
			return fmt.Errorf("%w (%d)", ErrStepLimit, c.MaxSteps)
		}
		if err := c.Step(); err != nil {
			return err
		}
	}
	return nil
}

// Call runs the function named symbol to completion and returns %rax.
func (c *CPU) Call(symbol string) (int64, error) {
	target, ok := c.prog.Labels[symbol]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrUndefinedSymbol, symbol)
	}
	c.Halted = false
	c.PC = target
	if err := c.push(haltAddr); err != nil {
		return 0, err
	}
	if err := c.Run(); err != nil {
		return 0, err
	}
	return int64(c.Regs[RAX]), nil
}

// ExitStatus is the process exit status a return value from main becomes.
func ExitStatus(v int64) int {
	return int(uint8(v))
}
