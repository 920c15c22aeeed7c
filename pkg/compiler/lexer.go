package compiler

import (
	"strings"
	"unicode/utf8"
)

// keywords maps source text to its keyword TokenType.
var keywords = map[string]TokenType{
	"int":      INT,
	"return":   RETURN,
	"if":       IF,
	"else":     ELSE,
	"while":    WHILE,
	"for":      FOR,
	"do":       DO,
	"continue": CONTINUE,
	"break":    BREAK,
}

// punctuators is searched in order, so every two-character spelling must
// come before its one-character prefix.
var punctuators = []struct {
	text string
	tt   TokenType
}{
	{"&&", AND_LOGICAL},
	{"||", OR_LOGICAL},
	{"==", EQUALS},
	{"!=", NOT_EQ},
	{"<=", LESS_EQ},
	{">=", GREATER_EQ},
	{"<", LESS},
	{">", GREATER},
	{"=", ASSIGN},
	{"?", QUESTION},
	{":", COLON},
	{"{", LBRACE},
	{"}", RBRACE},
	{"(", LPAREN},
	{")", RPAREN},
	{";", SEMICOLON},
	{"-", MINUS},
	{"~", TILDE},
	{"!", NOT},
	{"+", PLUS},
	{"/", SLASH},
	{"*", STAR},
	{"%", PERCENT},
	{"&", AND},
	{"[", LBRACKET},
	{"]", RBRACKET},
	{"|", PIPE},
	{"^", CARET},
	{",", COMMA},
}

// LexOptions tunes the scanner.
type LexOptions struct {
	// SkipUnknown drops characters that start no token instead of
	// failing with ErrIllegalChar.
	SkipUnknown bool
}

// Lexer holds all mutable state for a single scanning pass over src.
type Lexer struct {
	src  string
	pos  int // byte offset of the next character to consume
	line int // current 1-based source line
	opts LexOptions
}

func newLexer(src string, opts LexOptions) *Lexer {
	return &Lexer{src: src, line: 1, opts: opts}
}

func (l *Lexer) peek() byte {
	if l.pos >= len(l.src) {
		return 0
	}
	return l.src[l.pos]
}

func (l *Lexer) peek2() byte {
	if l.pos+1 >= len(l.src) {
		return 0
	}
	return l.src[l.pos+1]
}

// advance consumes one character and returns it.
func (l *Lexer) advance() byte {
	if l.pos >= len(l.src) {
		return 0
	}
	c := l.src[l.pos]
	l.pos++
	if c == '\n' {
		l.line++
	}
	return c
}

func isIdentStart(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }

// isSpace matches ASCII whitespace only. Bytes of multi-byte characters
// such as U+00A0 are not whitespace.
func isSpace(c byte) bool {
	switch c {
	case ' ', '\t', '\n', '\r', '\v', '\f':
		return true
	}
	return false
}

func (l *Lexer) skipWhitespace() {
	for l.pos < len(l.src) && isSpace(l.peek()) {
		l.advance()
	}
}

// skipBlockComment discards everything up to and including the closing "*/".
// The opening "/*" must already have been consumed.
func (l *Lexer) skipBlockComment(startLine int) error {
	for l.pos < len(l.src) {
		if l.peek() == '*' && l.peek2() == '/' {
			l.advance()
			l.advance()
			return nil
		}
		l.advance()
	}
	return newError(StageLex, CodeUnterminatedComment, startLine, "comment opened here never closes")
}

// skipTrivia consumes whitespace and both comment styles.
func (l *Lexer) skipTrivia() error {
	for {
		l.skipWhitespace()
		switch {
		case l.peek() == '/' && l.peek2() == '/':
			for l.pos < len(l.src) && l.peek() != '\n' {
				l.advance()
			}
		case l.peek() == '/' && l.peek2() == '*':
			line := l.line
			l.advance()
			l.advance()
			if err := l.skipBlockComment(line); err != nil {
				return err
			}
		default:
			return nil
		}
	}
}

// scanIdent collects a maximal run of identifier characters and classifies
// it as keyword or identifier.
func (l *Lexer) scanIdent() Token {
	start := l.pos
	for l.pos < len(l.src) && (isIdentStart(l.peek()) || isDigit(l.peek())) {
		l.advance()
	}
	lexeme := l.src[start:l.pos]
	tt := IDENTIFIER
	if kw, ok := keywords[lexeme]; ok {
		tt = kw
	}
	return Token{Type: tt, Lexeme: lexeme, Line: l.line}
}

// scanInt collects a maximal run of decimal digits.
func (l *Lexer) scanInt() Token {
	start := l.pos
	for l.pos < len(l.src) && isDigit(l.peek()) {
		l.advance()
	}
	return Token{Type: INTEGER, Lexeme: l.src[start:l.pos], Line: l.line}
}

// nextToken returns the next Token, or an EOF token at the end of input.
func (l *Lexer) nextToken() (Token, error) {
	for {
		if err := l.skipTrivia(); err != nil {
			return Token{}, err
		}
		if l.pos >= len(l.src) {
			return Token{Type: EOF, Lexeme: "", Line: l.line}, nil
		}

		c := l.peek()
		if isIdentStart(c) {
			return l.scanIdent(), nil
		}
		if isDigit(c) {
			return l.scanInt(), nil
		}

		rest := l.src[l.pos:]
		for _, p := range punctuators {
			if strings.HasPrefix(rest, p.text) {
				line := l.line
				l.pos += len(p.text)
				return Token{Type: p.tt, Lexeme: p.text, Line: line}, nil
			}
		}

		r, size := utf8.DecodeRuneInString(rest)
		if !l.opts.SkipUnknown {
			if r == utf8.RuneError && size == 1 {
				return Token{}, newError(StageLex, CodeIllegalChar, l.line, "byte %#x", c)
			}
			return Token{}, newError(StageLex, CodeIllegalChar, l.line, "%q", r)
		}
		l.pos += size
	}
}

// Lex tokenises src and returns all tokens including the final EOF token.
// It returns an error on the first illegal character or unterminated comment.
func Lex(src string) ([]Token, error) {
	return LexWith(src, LexOptions{})
}

// LexWith is Lex with explicit options.
func LexWith(src string, opts LexOptions) ([]Token, error) {
	l := newLexer(src, opts)
	var tokens []Token
	for {
		tok, err := l.nextToken()
		if err != nil {
			return tokens, err
		}
		tokens = append(tokens, tok)
		if tok.Type == EOF {
			return tokens, nil
		}
	}
}
