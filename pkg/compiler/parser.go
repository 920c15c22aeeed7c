package compiler

import (
	"math"
	"strconv"
	"strings"
)

// Parser consumes the flat token slice produced by the Lexer and builds an AST.
//
// Grammar:
//
//	program      = function* EOF
//	function     = "int" IDENTIFIER "(" ")" "{" blockItem* "}"
//	blockItem    = declaration | statement
//	declaration  = "int" declarator ("=" assignment)? ";"
//	declarator   = "*"* (IDENTIFIER | "(" declarator ")") ("[" constant "]")*
//	statement    = "{" blockItem* "}" | if | while | do | for
//	             | "break" ";" | "continue" ";" | "return" expression ";"
//	             | expression? ";"
//	expression   = assignment ("," assignment)*
//	assignment   = unary "=" assignment | conditional
//	conditional  = logical_or ("?" expression ":" conditional)?
//	logical_or   = logical_and ("||" logical_and)*
//	logical_and  = bitwise_or ("&&" bitwise_or)*
//	bitwise_or   = bitwise_xor ("|" bitwise_xor)*
//	bitwise_xor  = bitwise_and ("^" bitwise_and)*
//	bitwise_and  = equality ("&" equality)*
//	equality     = relational (("==" | "!=") relational)*
//	relational   = additive (("<" | "<=" | ">" | ">=") additive)*
//	additive     = multiplicative (("+" | "-") multiplicative)*
//	multiplicative = unary (("*" | "/" | "%") unary)*
//	unary        = ("&" | "*" | "+" | "-" | "~" | "!") unary | postfix
//	postfix      = primary ("(" ")" | "[" expression "]")*
//	primary      = INTEGER | IDENTIFIER | "(" expression ")"
type Parser struct {
	tokens      []Token
	pos         int
	sourceLines []string

	// unaryMemo holds parseUnary results by start index, so the rewind in
	// parseAssignment reuses the unary it already parsed.
	unaryMemo map[int]unaryResult
}

type unaryResult struct {
	expr Expr
	end  int
	err  error
}

func NewParser(tokens []Token, rawSource string) *Parser {
	return &Parser{tokens: tokens, sourceLines: strings.Split(rawSource, "\n")}
}

// fmtError builds a parse error carrying the source line where tok appears.
func (p *Parser) fmtError(tok Token, code Code, format string, args ...any) error {
	if tok.Type == EOF && code == CodeUnexpectedToken {
		code = CodeUnexpectedEOF
	}
	e := newError(StageParse, code, tok.Line, format, args...)
	lineIdx := tok.Line - 1
	if lineIdx >= 0 && lineIdx < len(p.sourceLines) {
		e.Snippet = strings.TrimSpace(p.sourceLines[lineIdx])
	}
	return e
}

// peek returns the current token without consuming it.
func (p *Parser) peek() Token {
	if p.pos >= len(p.tokens) {
		return p.eofToken()
	}
	return p.tokens[p.pos]
}

// peekAt returns the token at the given offset from the current position.
func (p *Parser) peekAt(offset int) Token {
	if p.pos+offset >= len(p.tokens) {
		return p.eofToken()
	}
	return p.tokens[p.pos+offset]
}

func (p *Parser) eofToken() Token {
	line := 0
	if n := len(p.tokens); n > 0 {
		line = p.tokens[n-1].Line
	}
	return Token{Type: EOF, Line: line}
}

// advance consumes and returns the current token.
func (p *Parser) advance() Token {
	tok := p.peek()
	if p.pos < len(p.tokens) {
		p.pos++
	}
	return tok
}

// expect consumes the current token if it matches tt, otherwise returns an error.
func (p *Parser) expect(tt TokenType) (Token, error) {
	tok := p.peek()
	if tok.Type != tt {
		return tok, p.fmtError(tok, CodeUnexpectedToken, "expected %s, got %s (%q)", tt, tok.Type, tok.Lexeme)
	}
	return p.advance(), nil
}

func (p *Parser) accept(tt TokenType) bool {
	if p.peek().Type == tt {
		p.advance()
		return true
	}
	return false
}

// parseExpression is the entry point for expression parsing (comma level).
func (p *Parser) parseExpression() (Expr, error) {
	expr, err := p.parseAssignment()
	if err != nil {
		return nil, err
	}
	for p.peek().Type == COMMA {
		tok := p.advance()
		right, err := p.parseAssignment()
		if err != nil {
			return nil, err
		}
		expr = &BinaryExpr{Op: COMMA, Left: expr, Right: right, Line: tok.Line}
	}
	return expr, nil
}

// parseAssignment handles right-associative "=". The left side is tried as
// a unary expression; when no "=" follows, the cursor is rewound and the
// same tokens are parsed as a conditional expression.
func (p *Parser) parseAssignment() (Expr, error) {
	save := p.pos
	left, err := p.parseUnary()
	if err == nil && p.peek().Type == ASSIGN {
		tok := p.advance()
		value, err := p.parseAssignment()
		if err != nil {
			return nil, err
		}
		return &AssignExpr{Left: left, Value: value, Line: tok.Line}, nil
	}
	p.pos = save
	return p.parseConditional()
}

// parseConditional handles cond ? then : else
func (p *Parser) parseConditional() (Expr, error) {
	cond, err := p.parseLogicalOr()
	if err != nil {
		return nil, err
	}
	tok := p.peek()
	if !p.accept(QUESTION) {
		return cond, nil
	}
	then, err := p.parseExpression()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(COLON); err != nil {
		return nil, err
	}
	els, err := p.parseConditional()
	if err != nil {
		return nil, err
	}
	return &TernaryExpr{Cond: cond, Then: then, Else: els, Line: tok.Line}, nil
}

// parseLogicalOr handles ||
func (p *Parser) parseLogicalOr() (Expr, error) {
	expr, err := p.parseLogicalAnd()
	if err != nil {
		return nil, err
	}
	for p.peek().Type == OR_LOGICAL {
		tok := p.advance()
		right, err := p.parseLogicalAnd()
		if err != nil {
			return nil, err
		}
		expr = &LogicalExpr{Op: tok.Type, Left: expr, Right: right, Line: tok.Line}
	}
	return expr, nil
}

// parseLogicalAnd handles &&
func (p *Parser) parseLogicalAnd() (Expr, error) {
	expr, err := p.parseBitwiseOr()
	if err != nil {
		return nil, err
	}
	for p.peek().Type == AND_LOGICAL {
		tok := p.advance()
		right, err := p.parseBitwiseOr()
		if err != nil {
			return nil, err
		}
		expr = &LogicalExpr{Op: tok.Type, Left: expr, Right: right, Line: tok.Line}
	}
	return expr, nil
}

// parseBinaryLevel parses one left-associative precedence level: operands
// come from next, operators from ops.
func (p *Parser) parseBinaryLevel(next func() (Expr, error), ops ...TokenType) (Expr, error) {
	expr, err := next()
	if err != nil {
		return nil, err
	}
	for {
		tok := p.peek()
		matched := false
		for _, op := range ops {
			if tok.Type == op {
				matched = true
				break
			}
		}
		if !matched {
			return expr, nil
		}
		p.advance()
		right, err := next()
		if err != nil {
			return nil, err
		}
		expr = &BinaryExpr{Op: tok.Type, Left: expr, Right: right, Line: tok.Line}
	}
}

func (p *Parser) parseBitwiseOr() (Expr, error) {
	return p.parseBinaryLevel(p.parseBitwiseXor, PIPE)
}

func (p *Parser) parseBitwiseXor() (Expr, error) {
	return p.parseBinaryLevel(p.parseBitwiseAnd, CARET)
}

func (p *Parser) parseBitwiseAnd() (Expr, error) {
	return p.parseBinaryLevel(p.parseEquality, AND)
}

func (p *Parser) parseEquality() (Expr, error) {
	return p.parseBinaryLevel(p.parseRelational, EQUALS, NOT_EQ)
}

func (p *Parser) parseRelational() (Expr, error) {
	return p.parseBinaryLevel(p.parseAdditive, LESS, LESS_EQ, GREATER, GREATER_EQ)
}

func (p *Parser) parseAdditive() (Expr, error) {
	return p.parseBinaryLevel(p.parseMultiplicative, PLUS, MINUS)
}

func (p *Parser) parseMultiplicative() (Expr, error) {
	return p.parseBinaryLevel(p.parseUnary, STAR, SLASH, PERCENT)
}

// parseUnary handles prefix operators &, *, +, -, ~ and !
func (p *Parser) parseUnary() (Expr, error) {
	start := p.pos
	if r, ok := p.unaryMemo[start]; ok {
		p.pos = r.end
		return r.expr, r.err
	}
	expr, err := p.parseUnaryUncached()
	if p.unaryMemo == nil {
		p.unaryMemo = map[int]unaryResult{}
	}
	p.unaryMemo[start] = unaryResult{expr: expr, end: p.pos, err: err}
	return expr, err
}

func (p *Parser) parseUnaryUncached() (Expr, error) {
	switch p.peek().Type {
	case AND, STAR, PLUS, MINUS, TILDE, NOT:
		tok := p.advance()
		right, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return &UnaryExpr{Op: tok.Type, Right: right, Line: tok.Line}, nil
	}
	return p.parsePostfix()
}

// parsePostfix handles calls and indexing. a[i] becomes *(a + i).
func (p *Parser) parsePostfix() (Expr, error) {
	expr, err := p.parsePrimary()
	if err != nil {
		return nil, err
	}

	for {
		tok := p.peek()
		switch tok.Type {
		case LPAREN:
			ref, ok := expr.(*VarRef)
			if !ok {
				return nil, p.fmtError(tok, CodeUnexpectedToken, "expected function name before '('")
			}
			p.advance()
			if _, err := p.expect(RPAREN); err != nil {
				return nil, err
			}
			expr = &FunctionCall{Name: ref.Name, Line: ref.Line}

		case LBRACKET:
			p.advance()
			index, err := p.parseExpression()
			if err != nil {
				return nil, err
			}
			if _, err := p.expect(RBRACKET); err != nil {
				return nil, err
			}
			sum := &BinaryExpr{Op: PLUS, Left: expr, Right: index, Line: tok.Line}
			expr = &UnaryExpr{Op: STAR, Right: sum, Line: tok.Line}

		default:
			return expr, nil
		}
	}
}

// parsePrimary handles literals, variables, and parenthesised expressions.
func (p *Parser) parsePrimary() (Expr, error) {
	tok := p.peek()
	switch tok.Type {
	case INTEGER:
		p.advance()
		val, err := strconv.ParseInt(tok.Lexeme, 10, 64)
		if err != nil {
			return nil, p.fmtError(tok, CodeBadLiteral, "%q does not fit in 64 bits", tok.Lexeme)
		}
		return &Literal{Value: val, Line: tok.Line}, nil

	case IDENTIFIER:
		p.advance()
		return &VarRef{Name: tok.Lexeme, Line: tok.Line}, nil

	case LPAREN:
		p.advance()
		expr, err := p.parseExpression()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(RPAREN); err != nil {
			return nil, err
		}
		return expr, nil

	default:
		return nil, p.fmtError(tok, CodeUnexpectedToken, "expected expression, got %s (%q)", tok.Type, tok.Lexeme)
	}
}

// parseOptionalExpression parses an expression unless the next token is
// the terminator. The terminator itself is not consumed.
func (p *Parser) parseOptionalExpression(terminator TokenType) (Expr, error) {
	if p.peek().Type == terminator {
		return nil, nil
	}
	return p.parseExpression()
}

// parseDeclarator parses the part of a declaration after "int" and
// returns the declared name with its full type. base is the type the
// declarator applies to.
func (p *Parser) parseDeclarator(base *Type) (Token, *Type, error) {
	for p.accept(STAR) {
		base = PointerTo(base)
	}

	if p.peek().Type == LPAREN {
		// int (*p)[3]: the suffix after ")" binds tighter than the inner
		// declarator, so parse the inner part against a placeholder and fill
		// it in once the suffix is known.
		p.advance()
		placeholder := &Type{}
		name, inner, err := p.parseDeclarator(placeholder)
		if err != nil {
			return Token{}, nil, err
		}
		if _, err := p.expect(RPAREN); err != nil {
			return Token{}, nil, err
		}
		outer, err := p.parseArraySuffix(base)
		if err != nil {
			return Token{}, nil, err
		}
		*placeholder = *outer
		return name, inner, nil
	}

	name, err := p.expect(IDENTIFIER)
	if err != nil {
		return Token{}, nil, err
	}
	t, err := p.parseArraySuffix(base)
	if err != nil {
		return Token{}, nil, err
	}
	return name, t, nil
}

// parseArraySuffix parses ("[" constant "]")*. The first bracket is the
// outermost dimension.
func (p *Parser) parseArraySuffix(base *Type) (*Type, error) {
	if p.peek().Type != LBRACKET {
		return base, nil
	}
	open := p.advance()
	bound, err := p.parseConditional()
	if err != nil {
		return nil, err
	}
	n, ok := foldConstant(bound)
	if !ok || n <= 0 || n > MaxObjectSize {
		return nil, p.fmtError(open, CodeBadArraySize, "%s", bound)
	}
	if _, err := p.expect(RBRACKET); err != nil {
		return nil, err
	}
	elem, err := p.parseArraySuffix(base)
	if err != nil {
		return nil, err
	}
	arr := ArrayOf(elem, int(n))
	if !arr.Valid() {
		return nil, p.fmtError(open, CodeBadArraySize, "%s is larger than %d bytes", arr, MaxObjectSize)
	}
	return arr, nil
}

// foldConstant evaluates an expression built only from literals and
// arithmetic operators. Overflowing int64 makes the expression
// non-constant.
func foldConstant(e Expr) (int64, bool) {
	switch n := e.(type) {
	case *Literal:
		return n.Value, true
	case *UnaryExpr:
		v, ok := foldConstant(n.Right)
		if !ok {
			return 0, false
		}
		switch n.Op {
		case PLUS:
			return v, true
		case MINUS:
			if v != math.MinInt64 {
				return -v, true
			}
		}
	case *BinaryExpr:
		l, ok := foldConstant(n.Left)
		if !ok {
			return 0, false
		}
		r, ok := foldConstant(n.Right)
		if !ok {
			return 0, false
		}
		switch n.Op {
		case PLUS:
			if sum := l + r; (sum > l) == (r > 0) {
				return sum, true
			}
		case MINUS:
			if diff := l - r; (diff < l) == (r > 0) {
				return diff, true
			}
		case STAR:
			if l == 0 || r == 0 {
				return 0, true
			}
			if (l == -1 && r == math.MinInt64) || (r == -1 && l == math.MinInt64) {
				return 0, false
			}
			if prod := l * r; prod/r == l {
				return prod, true
			}
		case SLASH:
			if r != 0 && !(l == math.MinInt64 && r == -1) {
				return l / r, true
			}
		case PERCENT:
			if r != 0 {
				return l % r, true
			}
		}
	}
	return 0, false
}

// parseDeclaration parses int declarator [= init];
func (p *Parser) parseDeclaration() (*VariableDecl, error) {
	if _, err := p.expect(INT); err != nil {
		return nil, err
	}
	name, typ, err := p.parseDeclarator(IntType())
	if err != nil {
		return nil, err
	}
	decl := &VariableDecl{Name: name.Lexeme, Type: typ, Line: name.Line}
	if p.accept(ASSIGN) {
		decl.Init, err = p.parseAssignment()
		if err != nil {
			return nil, err
		}
	}
	if _, err := p.expect(SEMICOLON); err != nil {
		return nil, err
	}
	return decl, nil
}

// parseBlockItem parses a declaration when the item starts with "int",
// otherwise a statement.
func (p *Parser) parseBlockItem() (Stmt, error) {
	if p.peek().Type == INT {
		return p.parseDeclaration()
	}
	return p.parseStatement()
}

// parseBlockItems parses items up to and including the closing brace.
func (p *Parser) parseBlockItems() ([]Stmt, error) {
	var stmts []Stmt
	for p.peek().Type != RBRACE {
		if p.peek().Type == EOF {
			return nil, p.fmtError(p.peek(), CodeUnexpectedEOF, "expected RBRACE")
		}
		stmt, err := p.parseBlockItem()
		if err != nil {
			return nil, err
		}
		stmts = append(stmts, stmt)
	}
	p.advance()
	return stmts, nil
}

// parseIf parses if ( cond ) body [ else elseBody ]
// The leading IF token has already been consumed by parseStatement.
func (p *Parser) parseIf(ifTok Token) (Stmt, error) {
	if _, err := p.expect(LPAREN); err != nil {
		return nil, err
	}
	cond, err := p.parseOptionalExpression(RPAREN)
	if err != nil {
		return nil, err
	}
	if cond == nil {
		return nil, p.fmtError(ifTok, CodeUnexpectedToken, "expected expression in if condition")
	}
	if _, err := p.expect(RPAREN); err != nil {
		return nil, err
	}
	body, err := p.parseStatement()
	if err != nil {
		return nil, err
	}

	var elseBody Stmt
	if p.accept(ELSE) {
		elseBody, err = p.parseStatement()
		if err != nil {
			return nil, err
		}
	}
	return &IfStmt{Condition: cond, Body: body, ElseBody: elseBody, Line: ifTok.Line}, nil
}

// parseWhile parses while ( cond ) body
func (p *Parser) parseWhile() (Stmt, error) {
	if _, err := p.expect(LPAREN); err != nil {
		return nil, err
	}
	cond, err := p.parseExpression()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(RPAREN); err != nil {
		return nil, err
	}
	body, err := p.parseStatement()
	if err != nil {
		return nil, err
	}
	return &WhileStmt{Condition: cond, Body: body}, nil
}

// parseDoWhile parses do body while ( cond ) ;
func (p *Parser) parseDoWhile() (Stmt, error) {
	body, err := p.parseStatement()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(WHILE); err != nil {
		return nil, err
	}
	if _, err := p.expect(LPAREN); err != nil {
		return nil, err
	}
	cond, err := p.parseExpression()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(RPAREN); err != nil {
		return nil, err
	}
	if _, err := p.expect(SEMICOLON); err != nil {
		return nil, err
	}
	return &DoWhileStmt{Body: body, Condition: cond}, nil
}

// parseForStmt parses for ( init ; cond ; post ) body
func (p *Parser) parseForStmt() (Stmt, error) {
	if _, err := p.expect(LPAREN); err != nil {
		return nil, err
	}

	var init Stmt
	if p.peek().Type == INT {
		decl, err := p.parseDeclaration()
		if err != nil {
			return nil, err
		}
		init = decl
	} else {
		expr, err := p.parseOptionalExpression(SEMICOLON)
		if err != nil {
			return nil, err
		}
		if expr != nil {
			init = &ExprStmt{Expr: expr}
		}
		if _, err := p.expect(SEMICOLON); err != nil {
			return nil, err
		}
	}

	cond, err := p.parseOptionalExpression(SEMICOLON)
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(SEMICOLON); err != nil {
		return nil, err
	}

	post, err := p.parseOptionalExpression(RPAREN)
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(RPAREN); err != nil {
		return nil, err
	}

	body, err := p.parseStatement()
	if err != nil {
		return nil, err
	}
	return &ForStmt{Init: init, Cond: cond, Post: post, Body: body}, nil
}

// parseStatement dispatches to the correct sub-parser based on the leading token.
func (p *Parser) parseStatement() (Stmt, error) {
	tok := p.peek()
	switch tok.Type {

	case LBRACE:
		p.advance()
		stmts, err := p.parseBlockItems()
		if err != nil {
			return nil, err
		}
		return &BlockStmt{Stmts: stmts}, nil

	case IF:
		p.advance()
		return p.parseIf(tok)

	case WHILE:
		p.advance()
		return p.parseWhile()

	case DO:
		p.advance()
		return p.parseDoWhile()

	case FOR:
		p.advance()
		return p.parseForStmt()

	case BREAK:
		p.advance()
		if _, err := p.expect(SEMICOLON); err != nil {
			return nil, err
		}
		return &BreakStmt{Line: tok.Line}, nil

	case CONTINUE:
		p.advance()
		if _, err := p.expect(SEMICOLON); err != nil {
			return nil, err
		}
		return &ContinueStmt{Line: tok.Line}, nil

	case RETURN:
		p.advance()
		expr, err := p.parseExpression()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(SEMICOLON); err != nil {
			return nil, err
		}
		return &ReturnStmt{Expr: expr, Line: tok.Line}, nil

	case INT:
		// Declarations are block items, not statements: "if (x) int y;" is rejected.
		return nil, p.fmtError(tok, CodeUnexpectedToken, "declaration is not allowed here")

	default:
		expr, err := p.parseOptionalExpression(SEMICOLON)
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(SEMICOLON); err != nil {
			return nil, err
		}
		return &ExprStmt{Expr: expr}, nil
	}
}

// parseFunctionDecl parses int name() { ... }
func (p *Parser) parseFunctionDecl() (*FunctionDecl, error) {
	if _, err := p.expect(INT); err != nil {
		return nil, err
	}
	name, err := p.expect(IDENTIFIER)
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(LPAREN); err != nil {
		return nil, err
	}
	if _, err := p.expect(RPAREN); err != nil {
		return nil, err
	}
	if _, err := p.expect(LBRACE); err != nil {
		return nil, err
	}
	body, err := p.parseBlockItems()
	if err != nil {
		return nil, err
	}
	return &FunctionDecl{Name: name.Lexeme, Body: body, Line: name.Line}, nil
}

// ParseProgram parses function definitions until EOF.
func (p *Parser) ParseProgram() (*Program, error) {
	prog := &Program{}
	for p.peek().Type != EOF {
		fn, err := p.parseFunctionDecl()
		if err != nil {
			return nil, err
		}
		prog.Functions = append(prog.Functions, fn)
	}
	return prog, nil
}

// Parse builds the AST for a token stream produced by Lex. rawSource is
// only used to quote the offending line in error messages.
func Parse(tokens []Token, rawSource string) (*Program, error) {
	return NewParser(tokens, rawSource).ParseProgram()
}
