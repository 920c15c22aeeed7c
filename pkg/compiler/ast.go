package compiler

import (
	"fmt"
	"strings"
)

//  Expression nodes

// Expr is implemented by every node that produces a value.
// genExpr always leaves the result in %rax.
type Expr interface {
	exprNode()
	String() string
}

// Literal is an integer constant.
//
//	return 14;
//	       ^^  Literal{Value: 14}
type Literal struct {
	Value int64
	Line  int
}

func (*Literal) exprNode()        {}
func (l *Literal) String() string { return fmt.Sprintf("%d", l.Value) }

// VarRef is a read of a named variable.
//
//	return x;
//	       ^  VarRef{Name: "x"}
type VarRef struct {
	Name string
	Line int
}

func (*VarRef) exprNode()        {}
func (v *VarRef) String() string { return v.Name }

// BinaryExpr represents a binary operation: Left Op Right. The comma
// operator is a BinaryExpr with Op COMMA.
//
//	x + 1
//	^ ^ ^
//	| | |
//	| | Right
//	| Op
//	Left
type BinaryExpr struct {
	Op    TokenType
	Left  Expr
	Right Expr
	Line  int
}

func (*BinaryExpr) exprNode() {}
func (b *BinaryExpr) String() string {
	return fmt.Sprintf("(%s %s %s)", b.Op.Spelling(), b.Left, b.Right)
}

// LogicalExpr represents Left && Right or Left || Right. Both operands
// are always evaluated.
type LogicalExpr struct {
	Op    TokenType
	Left  Expr
	Right Expr
	Line  int
}

func (*LogicalExpr) exprNode() {}
func (l *LogicalExpr) String() string {
	return fmt.Sprintf("(%s %s %s)", l.Op.Spelling(), l.Left, l.Right)
}

// AssignExpr represents Left = Value. Left must be an lvalue, which the
// code generator checks.
type AssignExpr struct {
	Left  Expr
	Value Expr
	Line  int
}

func (*AssignExpr) exprNode() {}
func (a *AssignExpr) String() string {
	return fmt.Sprintf("(= %s %s)", a.Left, a.Value)
}

// UnaryExpr represents Op Right for & * + - ~ !.
type UnaryExpr struct {
	Op    TokenType
	Right Expr
	Line  int
}

func (*UnaryExpr) exprNode()        {}
func (u *UnaryExpr) String() string { return fmt.Sprintf("(%s %s)", u.Op.Spelling(), u.Right) }

// TernaryExpr represents Cond ? Then : Else.
type TernaryExpr struct {
	Cond Expr
	Then Expr
	Else Expr
	Line int // line of "?"
}

func (*TernaryExpr) exprNode() {}
func (t *TernaryExpr) String() string {
	return fmt.Sprintf("(?: %s %s %s)", t.Cond, t.Then, t.Else)
}

// FunctionCall represents name(). Calls take no arguments.
type FunctionCall struct {
	Name string
	Line int
}

func (*FunctionCall) exprNode()        {}
func (c *FunctionCall) String() string { return fmt.Sprintf("(call %s)", c.Name) }

//  Statement nodes

// Stmt is implemented by every node that does not produce a value.
type Stmt interface {
	stmtNode()
	String() string
}

// VariableDecl represents  int name = expr;  with the declarator already
// folded into Type.
type VariableDecl struct {
	Name string
	Type *Type
	Init Expr // may be nil
	Line int
}

func (*VariableDecl) stmtNode() {}
func (d *VariableDecl) String() string {
	if d.Init != nil {
		return fmt.Sprintf("(decl %s %s %s)", d.Type, d.Name, d.Init)
	}
	return fmt.Sprintf("(decl %s %s)", d.Type, d.Name)
}

// ReturnStmt represents  return expr;
type ReturnStmt struct {
	Expr Expr
	Line int
}

func (*ReturnStmt) stmtNode() {}
func (r *ReturnStmt) String() string {
	return fmt.Sprintf("(return %s)", r.Expr)
}

// ExprStmt is an expression evaluated for its side effects. A nil Expr is
// the null statement ";".
type ExprStmt struct {
	Expr Expr
}

func (*ExprStmt) stmtNode() {}
func (e *ExprStmt) String() string {
	if e.Expr == nil {
		return "(expr)"
	}
	return fmt.Sprintf("(expr %s)", e.Expr)
}

// BlockStmt represents { item; ... }
type BlockStmt struct {
	Stmts []Stmt
}

func (*BlockStmt) stmtNode() {}
func (b *BlockStmt) String() string {
	return nodeList("block", b.Stmts)
}

// IfStmt represents if (cond) body [else elseBody]
type IfStmt struct {
	Condition Expr
	Body      Stmt
	ElseBody  Stmt // may be nil
	Line      int
}

func (*IfStmt) stmtNode() {}
func (i *IfStmt) String() string {
	if i.ElseBody != nil {
		return fmt.Sprintf("(if %s %s %s)", i.Condition, i.Body, i.ElseBody)
	}
	return fmt.Sprintf("(if %s %s)", i.Condition, i.Body)
}

// WhileStmt represents while (cond) body
type WhileStmt struct {
	Condition Expr
	Body      Stmt
}

func (*WhileStmt) stmtNode() {}
func (w *WhileStmt) String() string {
	return fmt.Sprintf("(while %s %s)", w.Condition, w.Body)
}

// DoWhileStmt represents do body while (cond);
type DoWhileStmt struct {
	Body      Stmt
	Condition Expr
}

func (*DoWhileStmt) stmtNode() {}
func (d *DoWhileStmt) String() string {
	return fmt.Sprintf("(do %s %s)", d.Body, d.Condition)
}

// ForStmt represents for (init; cond; post) body. Init is a *VariableDecl,
// an *ExprStmt, or nil; Cond and Post may be nil.
type ForStmt struct {
	Init Stmt
	Cond Expr
	Post Expr
	Body Stmt
}

func (*ForStmt) stmtNode() {}
func (f *ForStmt) String() string {
	return fmt.Sprintf("(for %s %s %s %s)", orBlank(f.Init), orBlank(f.Cond), orBlank(f.Post), f.Body)
}

// BreakStmt represents break;
type BreakStmt struct {
	Line int
}

func (*BreakStmt) stmtNode()      {}
func (*BreakStmt) String() string { return "(break)" }

// ContinueStmt represents continue;
type ContinueStmt struct {
	Line int
}

func (*ContinueStmt) stmtNode()      {}
func (*ContinueStmt) String() string { return "(continue)" }

// FunctionDecl represents int name() { body }. Body holds the block items
// directly.
type FunctionDecl struct {
	Name string
	Body []Stmt
	Line int
}

func (*FunctionDecl) stmtNode() {}
func (f *FunctionDecl) String() string {
	return nodeList("function "+f.Name, f.Body)
}

// Program is the root of the tree: the functions of one source file.
type Program struct {
	Functions []*FunctionDecl
}

func (p *Program) String() string {
	return nodeList("program", p.Functions)
}

func nodeList[T fmt.Stringer](head string, items []T) string {
	var sb strings.Builder
	sb.WriteString("(")
	sb.WriteString(head)
	for _, it := range items {
		sb.WriteString(" ")
		sb.WriteString(it.String())
	}
	sb.WriteString(")")
	return sb.String()
}

func orBlank(n fmt.Stringer) string {
	if n == nil {
		return "_"
	}
	return n.String()
}
