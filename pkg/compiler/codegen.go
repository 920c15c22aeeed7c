package compiler

import (
	"fmt"
	"strconv"
	"strings"
)

// scratchRegs are the registers the generator uses for operands besides
// the %rax accumulator. They are saved around every call.
var scratchRegs = []string{"%rcx", "%rdx", "%rdi"}

// setInstr maps a comparison operator to the setcc that materializes it.
var setInstr = map[TokenType]string{
	EQUALS:     "sete",
	NOT_EQ:     "setne",
	LESS:       "setl",
	LESS_EQ:    "setle",
	GREATER:    "setg",
	GREATER_EQ: "setge",
}

// CodeGen walks an AST and emits AT&T x86-64 assembly text.
type CodeGen struct {
	out       strings.Builder
	nextLabel int
	scope     *Scope
	loopStack []LoopLabel
	retLabel  string // epilogue of the function being generated
}

// LoopLabel is the break/continue context of one enclosing loop.
type LoopLabel struct {
	Continue string
	End      string
	Depth    int // frame depth at both labels
}

func newCodeGen() *CodeGen {
	return &CodeGen{}
}

func (cg *CodeGen) newLabel() string {
	l := fmt.Sprintf(".L%d", cg.nextLabel)
	cg.nextLabel++
	return l
}

func (cg *CodeGen) line(format string, args ...any) {
	fmt.Fprintf(&cg.out, format+"\n", args...)
}

func (cg *CodeGen) comment(format string, args ...any) {
	cg.line("    # "+format, args...)
}

// ins emits one instruction with comma-separated operands.
func (cg *CodeGen) ins(op string, operands ...string) {
	if len(operands) == 0 {
		cg.line("    %s", op)
		return
	}
	cg.line("    %s %s", op, strings.Join(operands, ", "))
}

func (cg *CodeGen) label(name string) {
	cg.line("%s:", name)
}

func imm(v int64) string { return "$" + strconv.FormatInt(v, 10) }

func slot(off int) string { return fmt.Sprintf("%d(%%rbp)", off) }

func (cg *CodeGen) errorf(code Code, line int, format string, args ...any) error {
	return newError(StageCodegen, code, line, format, args...)
}

// booleanize turns %rax into 0 or 1.
func (cg *CodeGen) booleanize() {
	cg.ins("cmp", "$0", "%rax")
	cg.ins("setne", "%al")
	cg.ins("movzbq", "%al", "%rax")
}

// genExpr leaves the value of e in %rax and returns its type. Array
// values are their base address; callers decay the type as needed.
func (cg *CodeGen) genExpr(e Expr) (*Type, error) {
	switch n := e.(type) {

	case *Literal:
		cg.ins("mov", imm(n.Value), "%rax")
		return IntType(), nil

	case *VarRef:
		sym, ok := cg.scope.Lookup(n.Name)
		if !ok {
			return nil, cg.errorf(CodeUndeclared, n.Line, "%s", n.Name)
		}
		if sym.Type.IsArray() {
			cg.ins("lea", slot(sym.Offset), "%rax")
		} else {
			cg.ins("mov", slot(sym.Offset), "%rax")
		}
		return sym.Type, nil

	case *BinaryExpr:
		if n.Op == COMMA {
			if _, err := cg.genExpr(n.Left); err != nil {
				return nil, err
			}
			return cg.genExpr(n.Right)
		}
		rt, err := cg.genExpr(n.Right)
		if err != nil {
			return nil, err
		}
		cg.ins("push", "%rax")
		lt, err := cg.genExpr(n.Left)
		if err != nil {
			return nil, err
		}
		cg.ins("pop", "%rcx")
		return cg.genBinaryOp(n, lt.Decay(), rt.Decay())

	case *LogicalExpr:
		if _, err := cg.genExpr(n.Left); err != nil {
			return nil, err
		}
		cg.booleanize()
		cg.ins("push", "%rax")
		if _, err := cg.genExpr(n.Right); err != nil {
			return nil, err
		}
		cg.booleanize()
		cg.ins("pop", "%rcx")
		if n.Op == AND_LOGICAL {
			cg.ins("and", "%rcx", "%rax")
		} else {
			cg.ins("or", "%rcx", "%rax")
		}
		return IntType(), nil

	case *TernaryExpr:
		trueLabel, falseLabel, endLabel := cg.newLabel(), cg.newLabel(), cg.newLabel()
		if _, err := cg.genExpr(n.Cond); err != nil {
			return nil, err
		}
		cg.ins("cmp", "$0", "%rax")
		cg.ins("jne", trueLabel)
		cg.ins("jmp", falseLabel)
		cg.label(trueLabel)
		t, err := cg.genExpr(n.Then)
		if err != nil {
			return nil, err
		}
		cg.ins("jmp", endLabel)
		cg.label(falseLabel)
		if _, err := cg.genExpr(n.Else); err != nil {
			return nil, err
		}
		cg.label(endLabel)
		return t.Decay(), nil

	case *UnaryExpr:
		return cg.genUnary(n)

	case *AssignExpr:
		return cg.genAssign(n)

	case *FunctionCall:
		for _, r := range scratchRegs {
			cg.ins("push", r)
		}
		// %rbx is callee-saved, so it survives the call and can hold the
		// unaligned stack pointer.
		cg.ins("push", "%rbx")
		cg.ins("mov", "%rsp", "%rbx")
		cg.ins("and", "$-16", "%rsp")
		cg.ins("call", n.Name)
		cg.ins("mov", "%rbx", "%rsp")
		cg.ins("pop", "%rbx")
		for i := len(scratchRegs) - 1; i >= 0; i-- {
			cg.ins("pop", scratchRegs[i])
		}
		return IntType(), nil

	default:
		return nil, fmt.Errorf("codegen: unknown expression node %T", e)
	}
}

// genBinaryOp combines left in %rax with right in %rcx.
func (cg *CodeGen) genBinaryOp(n *BinaryExpr, lt, rt *Type) (*Type, error) {
	switch n.Op {
	case PLUS, MINUS:
		return cg.genAdditive(n, lt, rt)
	case STAR:
		cg.ins("imul", "%rcx", "%rax")
	case SLASH:
		cg.ins("cqo")
		cg.ins("idiv", "%rcx")
	case PERCENT:
		cg.ins("cqo")
		cg.ins("idiv", "%rcx")
		cg.ins("mov", "%rdx", "%rax")
	case AND:
		cg.ins("and", "%rcx", "%rax")
	case PIPE:
		cg.ins("or", "%rcx", "%rax")
	case CARET:
		cg.ins("xor", "%rcx", "%rax")
	case EQUALS, NOT_EQ, LESS, LESS_EQ, GREATER, GREATER_EQ:
		cg.ins("cmp", "%rcx", "%rax")
		cg.ins(setInstr[n.Op], "%al")
		cg.ins("movzbq", "%al", "%rax")
	default:
		return nil, fmt.Errorf("codegen: unknown binary operator %s", n.Op)
	}
	return IntType(), nil
}

// genAdditive handles + and -, scaling the integer side of pointer
// arithmetic by the pointee size.
func (cg *CodeGen) genAdditive(n *BinaryExpr, lt, rt *Type) (*Type, error) {
	op := "add"
	if n.Op == MINUS {
		op = "sub"
	}
	switch {
	case lt.IsPointer() && rt.IsPointer():
		return nil, cg.errorf(CodeInvalidOperands, n.Line, "%s %s %s", lt, n.Op.Spelling(), rt)

	case lt.IsPointer():
		if size := lt.Elem.Size(); size != 1 {
			cg.ins("imul", imm(int64(size)), "%rcx")
		}
		cg.ins(op, "%rcx", "%rax")
		return lt, nil

	case rt.IsPointer():
		if n.Op == MINUS {
			return nil, cg.errorf(CodeInvalidOperands, n.Line, "%s - %s", lt, rt)
		}
		if size := rt.Elem.Size(); size != 1 {
			cg.ins("imul", imm(int64(size)), "%rax")
		}
		cg.ins(op, "%rcx", "%rax")
		return rt, nil
	}
	cg.ins(op, "%rcx", "%rax")
	return IntType(), nil
}

func (cg *CodeGen) genUnary(n *UnaryExpr) (*Type, error) {
	switch n.Op {
	case STAR:
		t, err := cg.genExpr(n.Right)
		if err != nil {
			return nil, err
		}
		t = t.Decay()
		if !t.IsPointer() {
			return nil, cg.errorf(CodeBadDeref, n.Line, "%s is not a pointer", t)
		}
		// An array element of array type is already an address.
		if !t.Elem.IsArray() {
			cg.ins("mov", "(%rax)", "%rax")
		}
		return t.Elem, nil

	case AND:
		return cg.genAddressOf(n)

	case PLUS:
		t, err := cg.genExpr(n.Right)
		if err != nil {
			return nil, err
		}
		return t.Decay(), nil

	case MINUS:
		if _, err := cg.genExpr(n.Right); err != nil {
			return nil, err
		}
		cg.ins("neg", "%rax")

	case TILDE:
		if _, err := cg.genExpr(n.Right); err != nil {
			return nil, err
		}
		cg.ins("not", "%rax")

	case NOT:
		if _, err := cg.genExpr(n.Right); err != nil {
			return nil, err
		}
		cg.ins("cmp", "$0", "%rax")
		cg.ins("sete", "%al")
		cg.ins("movzbq", "%al", "%rax")

	default:
		return nil, fmt.Errorf("codegen: unknown unary operator %s", n.Op)
	}
	return IntType(), nil
}

// genAddressOf handles &x and &*p.
func (cg *CodeGen) genAddressOf(n *UnaryExpr) (*Type, error) {
	switch target := n.Right.(type) {
	case *VarRef:
		sym, ok := cg.scope.Lookup(target.Name)
		if !ok {
			return nil, cg.errorf(CodeUndeclared, target.Line, "%s", target.Name)
		}
		cg.ins("lea", slot(sym.Offset), "%rax")
		return PointerTo(sym.Type), nil

	case *UnaryExpr:
		if target.Op == STAR {
			// &*p is just p.
			t, err := cg.genExpr(target.Right)
			if err != nil {
				return nil, err
			}
			t = t.Decay()
			if !t.IsPointer() {
				return nil, cg.errorf(CodeBadDeref, target.Line, "%s is not a pointer", t)
			}
			return t, nil
		}
	}
	return nil, cg.errorf(CodeBadLvalue, n.Line, "cannot take the address of %s", n.Right)
}

func (cg *CodeGen) genAssign(n *AssignExpr) (*Type, error) {
	switch target := n.Left.(type) {
	case *VarRef:
		sym, ok := cg.scope.Lookup(target.Name)
		if !ok {
			return nil, cg.errorf(CodeUndeclared, target.Line, "%s", target.Name)
		}
		if sym.Type.IsArray() {
			return nil, cg.errorf(CodeBadLvalue, n.Line, "cannot assign to array %s", target.Name)
		}
		if _, err := cg.genExpr(n.Value); err != nil {
			return nil, err
		}
		cg.ins("mov", "%rax", slot(sym.Offset))
		return sym.Type, nil

	case *UnaryExpr:
		if target.Op != STAR {
			break
		}
		t, err := cg.genExpr(target.Right)
		if err != nil {
			return nil, err
		}
		t = t.Decay()
		if !t.IsPointer() {
			return nil, cg.errorf(CodeBadDeref, target.Line, "%s is not a pointer", t)
		}
		if t.Elem.IsArray() {
			return nil, cg.errorf(CodeBadLvalue, n.Line, "cannot assign to array %s", n.Left)
		}
		cg.ins("push", "%rax")
		if _, err := cg.genExpr(n.Value); err != nil {
			return nil, err
		}
		cg.ins("pop", "%rdi")
		cg.ins("mov", "%rax", "(%rdi)")
		return t.Elem, nil
	}
	return nil, cg.errorf(CodeBadLvalue, n.Line, "%s", n.Left)
}

// enterScope opens a block scope and reserves its stack space.
func (cg *CodeGen) enterScope(items []Stmt) error {
	size, err := cg.scopeBytes(cg.scope.End(), items)
	if err != nil {
		return err
	}
	cg.scope = cg.scope.Enter(size)
	if size > 0 {
		cg.ins("sub", imm(int64(size)), "%rsp")
	}
	return nil
}

// exitScope releases exactly what the innermost scope reserved.
func (cg *CodeGen) exitScope() {
	if size := cg.scope.Size(); size > 0 {
		cg.ins("add", imm(int64(size)), "%rsp")
	}
	cg.scope = cg.scope.Exit()
}

// scopeBytes validates the declarations directly in items and returns the
// bytes they need. base is the frame depth the scope starts at; the frame
// may not grow past MaxObjectSize.
func (cg *CodeGen) scopeBytes(base int, items []Stmt) (int, error) {
	depth := base
	for _, s := range items {
		d, ok := s.(*VariableDecl)
		if !ok {
			continue
		}
		if !d.Type.Valid() {
			return 0, cg.errorf(CodeBadArraySize, d.Line, "%s", d.Name)
		}
		depth += d.Type.SlotSize()
		if depth > MaxObjectSize {
			return 0, cg.errorf(CodeBadArraySize, d.Line, "%s: stack frame larger than %d bytes", d.Name, MaxObjectSize)
		}
	}
	return declaredBytes(items), nil
}

// bodyItems returns the items a loop body declares into the loop scope.
func bodyItems(body Stmt) []Stmt {
	if b, ok := body.(*BlockStmt); ok {
		return b.Stmts
	}
	return []Stmt{body}
}

func (cg *CodeGen) genItems(items []Stmt) error {
	for _, s := range items {
		if err := cg.genStmt(s); err != nil {
			return err
		}
	}
	return nil
}

// genScoped generates s inside its own scope.
func (cg *CodeGen) genScoped(s Stmt) error {
	items := bodyItems(s)
	if err := cg.enterScope(items); err != nil {
		return err
	}
	if err := cg.genItems(items); err != nil {
		return err
	}
	cg.exitScope()
	return nil
}

// jumpOut releases the scopes opened inside the loop, then jumps to target.
// The frame depth the generator tracks is unchanged because control does
// not fall through.
func (cg *CodeGen) jumpOut(loop LoopLabel, target string) {
	if n := cg.scope.End() - loop.Depth; n > 0 {
		cg.ins("add", imm(int64(n)), "%rsp")
	}
	cg.ins("jmp", target)
}

func (cg *CodeGen) pushLoop(cont, end string) {
	cg.loopStack = append(cg.loopStack, LoopLabel{Continue: cont, End: end, Depth: cg.scope.End()})
}

func (cg *CodeGen) popLoop() {
	cg.loopStack = cg.loopStack[:len(cg.loopStack)-1]
}

func (cg *CodeGen) genStmt(s Stmt) error {
	switch n := s.(type) {

	case *VariableDecl:
		return cg.genDecl(n)

	case *ExprStmt:
		if n.Expr == nil {
			return nil
		}
		_, err := cg.genExpr(n.Expr)
		return err

	case *ReturnStmt:
		if _, err := cg.genExpr(n.Expr); err != nil {
			return err
		}
		cg.ins("jmp", cg.retLabel)

	case *BlockStmt:
		return cg.genScoped(n)

	case *IfStmt:
		trueLabel, falseLabel, endLabel := cg.newLabel(), cg.newLabel(), cg.newLabel()
		if _, err := cg.genExpr(n.Condition); err != nil {
			return err
		}
		cg.ins("cmp", "$0", "%rax")
		cg.ins("jne", trueLabel)
		cg.ins("jmp", falseLabel)
		cg.label(trueLabel)
		if err := cg.genScoped(n.Body); err != nil {
			return err
		}
		cg.ins("jmp", endLabel)
		cg.label(falseLabel)
		if n.ElseBody != nil {
			if err := cg.genScoped(n.ElseBody); err != nil {
				return err
			}
		}
		cg.label(endLabel)

	case *WhileStmt:
		items := bodyItems(n.Body)
		if err := cg.enterScope(items); err != nil {
			return err
		}
		begin, body, cont, end := cg.newLabel(), cg.newLabel(), cg.newLabel(), cg.newLabel()
		cg.label(begin)
		if _, err := cg.genExpr(n.Condition); err != nil {
			return err
		}
		cg.ins("cmp", "$0", "%rax")
		cg.ins("jne", body)
		cg.ins("jmp", end)
		cg.label(body)
		cg.pushLoop(cont, end)
		if err := cg.genItems(items); err != nil {
			return err
		}
		cg.popLoop()
		cg.label(cont)
		cg.ins("jmp", begin)
		cg.label(end)
		cg.exitScope()

	case *DoWhileStmt:
		items := bodyItems(n.Body)
		if err := cg.enterScope(items); err != nil {
			return err
		}
		begin, cont, end := cg.newLabel(), cg.newLabel(), cg.newLabel()
		cg.label(begin)
		cg.pushLoop(cont, end)
		if err := cg.genItems(items); err != nil {
			return err
		}
		cg.popLoop()
		cg.label(cont)
		if _, err := cg.genExpr(n.Condition); err != nil {
			return err
		}
		cg.ins("cmp", "$0", "%rax")
		cg.ins("jne", begin)
		cg.label(end)
		cg.exitScope()

	case *ForStmt:
		// The for-header and the body share one scope.
		items := bodyItems(n.Body)
		scopeItems := items
		if n.Init != nil {
			scopeItems = append([]Stmt{n.Init}, items...)
		}
		if err := cg.enterScope(scopeItems); err != nil {
			return err
		}
		if n.Init != nil {
			if err := cg.genStmt(n.Init); err != nil {
				return err
			}
		}
		begin, body, cont, end := cg.newLabel(), cg.newLabel(), cg.newLabel(), cg.newLabel()
		cg.label(begin)
		if n.Cond != nil {
			if _, err := cg.genExpr(n.Cond); err != nil {
				return err
			}
			cg.ins("cmp", "$0", "%rax")
			cg.ins("jne", body)
			cg.ins("jmp", end)
		}
		cg.label(body)
		cg.pushLoop(cont, end)
		if err := cg.genItems(items); err != nil {
			return err
		}
		cg.popLoop()
		cg.label(cont)
		if n.Post != nil {
			if _, err := cg.genExpr(n.Post); err != nil {
				return err
			}
		}
		cg.ins("jmp", begin)
		cg.label(end)
		cg.exitScope()

	case *BreakStmt:
		if len(cg.loopStack) == 0 {
			return cg.errorf(CodeBreakOutsideLoop, n.Line, "")
		}
		loop := cg.loopStack[len(cg.loopStack)-1]
		cg.jumpOut(loop, loop.End)

	case *ContinueStmt:
		if len(cg.loopStack) == 0 {
			return cg.errorf(CodeContinueOutsideLoop, n.Line, "")
		}
		loop := cg.loopStack[len(cg.loopStack)-1]
		cg.jumpOut(loop, loop.Continue)

	default:
		return fmt.Errorf("codegen: unknown statement node %T", s)
	}
	return nil
}

func (cg *CodeGen) genDecl(n *VariableDecl) error {
	if !n.Type.Valid() {
		return cg.errorf(CodeBadArraySize, n.Line, "%s", n.Name)
	}
	if cg.scope.IsLocal(n.Name) {
		return cg.errorf(CodeRedefinition, n.Line, "%s", n.Name)
	}
	sym, err := cg.scope.Define(n.Name, n.Type)
	if err != nil {
		return cg.errorf(CodeUnexpectedToken, n.Line, "declaration of %s is not allowed here", n.Name)
	}
	cg.comment("%s %s at %s", n.Type, n.Name, slot(sym.Offset))

	if n.Init == nil {
		return nil
	}
	if n.Type.IsArray() {
		return cg.errorf(CodeArrayInitializer, n.Line, "%s cannot be initialized", n.Name)
	}
	if _, err := cg.genExpr(n.Init); err != nil {
		return err
	}
	cg.ins("mov", "%rax", slot(sym.Offset))
	return nil
}

func (cg *CodeGen) genFunction(fn *FunctionDecl) error {
	size, err := cg.scopeBytes(0, fn.Body)
	if err != nil {
		return err
	}
	cg.scope = NewScope(0, size)
	cg.loopStack = nil
	cg.retLabel = cg.newLabel()

	cg.line("    .globl %s", fn.Name)
	cg.label(fn.Name)
	cg.ins("push", "%rbp")
	cg.ins("mov", "%rsp", "%rbp")
	if size > 0 {
		cg.ins("sub", imm(int64(size)), "%rsp")
	}

	if err := cg.genItems(fn.Body); err != nil {
		return err
	}

	// Falling off the end returns 0. The function scope is released by
	// restoring %rsp from %rbp.
	cg.ins("mov", "$0", "%rax")
	cg.label(cg.retLabel)
	cg.ins("mov", "%rbp", "%rsp")
	cg.ins("pop", "%rbp")
	cg.ins("ret")
	cg.scope = nil
	return nil
}

// Generate lowers a parsed program to assembly. Nothing is returned on
// error. Each call starts label numbering from zero.
func Generate(prog *Program) (string, error) {
	cg := newCodeGen()
	cg.line("    .text")
	defined := map[string]bool{}
	for _, fn := range prog.Functions {
		if defined[fn.Name] {
			return "", cg.errorf(CodeRedefinition, fn.Line, "function %s", fn.Name)
		}
		defined[fn.Name] = true
		if err := cg.genFunction(fn); err != nil {
			return "", err
		}
	}
	cg.line(`    .section .note.GNU-stack,"",@progbits`)
	return cg.out.String(), nil
}
