package compiler

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func parseSource(t *testing.T, src string) (*Program, error) {
	t.Helper()
	tokens, err := Lex(src)
	if err != nil {
		t.Fatalf("Lex failed: %v", err)
	}
	return Parse(tokens, src)
}

// mainBody wraps statements in int main() { ... }.
func mainBody(stmts string) string {
	return "int main() { " + stmts + " }"
}

func TestParseExpressions(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"Precedence", "return 1 + 2 * 3 - 4;", "(return (- (+ 1 (* 2 3)) 4))"},
		{"Division And Modulo", "return 7 / 2 % 3;", "(return (% (/ 7 2) 3))"},
		{"Parentheses", "return (1 + 2) * 3;", "(return (* (+ 1 2) 3))"},
		{"Unary Chain", "return -~!*&x;", "(return (- (~ (! (* (& x))))))"},
		{"Unary Plus", "return +x;", "(return (+ x))"},
		{"Relational Over Equality", "return a < b == c > d;", "(return (== (< a b) (> c d)))"},
		{"Bitwise Levels", "return a | b ^ c & d;", "(return (| a (^ b (& c d))))"},
		{"Logical Levels", "return a && b || c;", "(return (|| (&& a b) c))"},
		{"Logical Below Bitwise", "return a & b && c | d;", "(return (&& (& a b) (| c d)))"},
		{"Ternary Right Assoc", "return a ? b : c ? d : e;", "(return (?: a b (?: c d e)))"},
		{"Ternary Comma In Then", "return a ? b, c : d;", "(return (?: a (, b c) d))"},
		{"Assignment Right Assoc", "a = b = 5;", "(expr (= a (= b 5)))"},
		{"Parenthesised Assignment", "return (a = 3) + 1;", "(return (+ (= a 3) 1))"},
		{"Store Through Pointer", "*p = 3;", "(expr (= (* p) 3))"},
		{"Comma", "a = 1, b = 2;", "(expr (, (= a 1) (= b 2)))"},
		{"Index", "return a[1];", "(return (* (+ a 1)))"},
		{"Nested Index", "return a[1][2];", "(return (* (+ (* (+ a 1)) 2)))"},
		{"Index Store", "a[i] = 4;", "(expr (= (* (+ a i)) 4))"},
		{"Call", "return f() + 1;", "(return (+ (call f) 1))"},
		{"Null Statement", ";", "(expr)"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			prog, err := parseSource(t, mainBody(tt.input))
			if err != nil {
				t.Fatalf("Parse failed: %v", err)
			}
			want := "(program (function main " + tt.want + "))"
			if got := prog.String(); got != want {
				t.Errorf("got  %s\nwant %s", got, want)
			}
		})
	}
}

func TestParseDeclarations(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"Int", "int x;", "(decl int x)"},
		{"Initialized", "int x = 1 + 2;", "(decl int x (+ 1 2))"},
		{"Pointer", "int *p = &x;", "(decl int* p (& x))"},
		{"Pointer To Pointer", "int **pp;", "(decl int** pp)"},
		{"Array", "int a[3];", "(decl int[3] a)"},
		{"Array Of Pointers", "int *a[3];", "(decl int*[3] a)"},
		{"Pointer To Array", "int (*p)[3];", "(decl int(*)[3] p)"},
		{"Two Dimensional", "int a[2][3];", "(decl int[2][3] a)"},
		{"Folded Bound", "int a[2 * 3 + 1];", "(decl int[7] a)"},
		{"Parenthesised Name", "int (x);", "(decl int x)"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			prog, err := parseSource(t, mainBody(tt.input))
			if err != nil {
				t.Fatalf("Parse failed: %v", err)
			}
			want := "(program (function main " + tt.want + "))"
			if got := prog.String(); got != want {
				t.Errorf("got  %s\nwant %s", got, want)
			}
		})
	}
}

func TestParseStatements(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"If", "if (a) return 1;", "(if a (return 1))"},
		{"If Else", "if (a) return 1; else return 2;", "(if a (return 1) (return 2))"},
		{"Dangling Else", "if (a) if (b) x = 1; else x = 2;", "(if a (if b (expr (= x 1)) (expr (= x 2))))"},
		{"While", "while (i < 3) i = i + 1;", "(while (< i 3) (expr (= i (+ i 1))))"},
		{"Do While", "do { x = 1; } while (x);", "(do (block (expr (= x 1))) x)"},
		{"For Declaration", "for (int i = 0; i < 3; i = i + 1) ;", "(for (decl int i 0) (< i 3) (= i (+ i 1)) (expr))"},
		{"For Expression", "for (i = 0; i; ) continue;", "(for (expr (= i 0)) i _ (continue))"},
		{"For Empty", "for (;;) break;", "(for _ _ _ (break))"},
		{"Nested Blocks", "{ int x; { int y; } }", "(block (decl int x) (block (decl int y)))"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			prog, err := parseSource(t, mainBody(tt.input))
			if err != nil {
				t.Fatalf("Parse failed: %v", err)
			}
			want := "(program (function main " + tt.want + "))"
			if got := prog.String(); got != want {
				t.Errorf("got  %s\nwant %s", got, want)
			}
		})
	}
}

func TestParseFunctions(t *testing.T) {
	src := `
int five() { return 5; }
int main() { return five() + 1; }
`
	prog, err := parseSource(t, src)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if len(prog.Functions) != 2 {
		t.Fatalf("expected 2 functions, got %d", len(prog.Functions))
	}
	if prog.Functions[0].Name != "five" || prog.Functions[1].Name != "main" {
		t.Errorf("unexpected function names: %s, %s", prog.Functions[0].Name, prog.Functions[1].Name)
	}
	if prog.Functions[1].Line != 3 {
		t.Errorf("main line: expected 3, got %d", prog.Functions[1].Line)
	}

	empty, err := parseSource(t, "")
	if err != nil {
		t.Fatalf("empty source: %v", err)
	}
	if len(empty.Functions) != 0 {
		t.Errorf("expected no functions, got %d", len(empty.Functions))
	}
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name  string
		input string
		code  Code
	}{
		{"Missing Semicolon", mainBody("return 1"), CodeUnexpectedToken},
		{"Unclosed Function", "int main() { return 1;", CodeUnexpectedEOF},
		{"Missing Paren", "int main( { return 1; }", CodeUnexpectedToken},
		{"Empty If Condition", mainBody("if () return 1;"), CodeUnexpectedToken},
		{"Zero Array", mainBody("int a[0];"), CodeBadArraySize},
		{"Negative Array", mainBody("int a[1 - 2];"), CodeBadArraySize},
		{"Variable Array", mainBody("int n; int a[n];"), CodeBadArraySize},
		{"Array Bound Past 64 Bits", mainBody("int a[2305843009213693952];"), CodeBadArraySize},
		{"Array Bytes Past 64 Bits", mainBody("int a[1152921504606846977];"), CodeBadArraySize},
		{"Array Bytes Past Limit", mainBody("int a[268435456];"), CodeBadArraySize},
		{"Nested Array Past Limit", mainBody("int a[65536][4096];"), CodeBadArraySize},
		{"Bound Arithmetic Overflow", mainBody("int a[4611686018427387905 * 4];"), CodeBadArraySize},
		{"Bound Negation Overflow", mainBody("int a[-(-9223372036854775807 - 1)];"), CodeBadArraySize},
		{"Declaration As Body", mainBody("if (1) int x;"), CodeUnexpectedToken},
		{"Huge Literal", mainBody("return 99999999999999999999;"), CodeBadLiteral},
		{"Call Non Name", mainBody("return (1)();"), CodeUnexpectedToken},
		{"Missing Colon", mainBody("return a ? b;"), CodeUnexpectedToken},
		{"Top Level Statement", "return 1;", CodeUnexpectedToken},
		{"Do Without While", mainBody("do x = 1; (x);"), CodeUnexpectedToken},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := parseSource(t, tt.input)
			if err == nil {
				t.Fatalf("expected error with code %s", tt.code)
			}
			var cerr *Error
			if !errors.As(err, &cerr) {
				t.Fatalf("expected *Error, got %T: %v", err, err)
			}
			if cerr.Code != tt.code {
				t.Errorf("got code %q, want %q (%v)", cerr.Code, tt.code, err)
			}
			if cerr.Stage != StageParse {
				t.Errorf("got stage %s, want parse", cerr.Stage)
			}
		})
	}
}

func TestParseErrorSnippet(t *testing.T) {
	src := "int main() {\n    int x = ;\n}"
	_, err := parseSource(t, src)
	if !errors.Is(err, ErrUnexpectedToken) {
		t.Fatalf("expected ErrUnexpectedToken, got %v", err)
	}
	var cerr *Error
	errors.As(err, &cerr)
	if cerr.Line != 2 {
		t.Errorf("line: expected 2, got %d", cerr.Line)
	}
	if cerr.Snippet != "int x = ;" {
		t.Errorf("snippet: got %q", cerr.Snippet)
	}
	if !strings.Contains(err.Error(), "|> int x = ;") {
		t.Errorf("Error() should quote the line, got %q", err.Error())
	}
}

func TestParseLargestArray(t *testing.T) {
	prog, err := parseSource(t, mainBody("int a[268435455]; int b[3][89478485];"))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	for _, item := range prog.Functions[0].Body {
		d := item.(*VariableDecl)
		if !d.Type.Valid() || d.Type.Size() != 2147483640 {
			t.Errorf("%s: size %d, valid %v", d.Name, d.Type.Size(), d.Type.Valid())
		}
	}
}

func TestParseDeepNesting(t *testing.T) {
	const depth = 400
	inputs := []string{
		mainBody("return " + strings.Repeat("(", depth) + "1" + strings.Repeat(")", depth) + ";"),
		mainBody("int x; return " + strings.Repeat("-(x = ", depth) + "1" + strings.Repeat(")", depth) + ";"),
		mainBody("return " + strings.Repeat("(1 ? ", depth) + "2" + strings.Repeat(" : 3)", depth) + ";"),
	}

	for i, src := range inputs {
		tokens, err := Lex(src)
		if err != nil {
			t.Fatalf("Lex failed: %v", err)
		}
		done := make(chan error, 1)
		go func() {
			_, err := Parse(tokens, src)
			done <- err
		}()
		select {
		case err := <-done:
			if err != nil {
				t.Errorf("input %d: Parse failed: %v", i, err)
			}
		case <-time.After(5 * time.Second):
			t.Fatalf("input %d: parsing %d nested levels did not finish", i, depth)
		}
	}
}

func TestParseNestedParensTree(t *testing.T) {
	prog, err := parseSource(t, mainBody("return ((((1 + 2)) * ((3))));"))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if got, want := prog.Functions[0].String(), "(function main (return (* (+ 1 2) 3)))"; got != want {
		t.Errorf("got %s, want %s", got, want)
	}
}

func TestParseRecordsLines(t *testing.T) {
	src := "int main() {\n  if (1)\n    return 2 ? 3 : 4;\n  return 1 || 0;\n}"
	prog, err := parseSource(t, src)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	body := prog.Functions[0].Body
	ifStmt := body[0].(*IfStmt)
	ret := ifStmt.Body.(*ReturnStmt)
	tern := ret.Expr.(*TernaryExpr)
	last := body[1].(*ReturnStmt)
	logical := last.Expr.(*LogicalExpr)

	lines := []struct {
		name      string
		got, want int
	}{
		{"if", ifStmt.Line, 2},
		{"condition", ifStmt.Condition.(*Literal).Line, 2},
		{"return", ret.Line, 3},
		{"ternary", tern.Line, 3},
		{"then", tern.Then.(*Literal).Line, 3},
		{"second return", last.Line, 4},
		{"logical", logical.Line, 4},
	}
	for _, l := range lines {
		if l.got != l.want {
			t.Errorf("%s: line %d, want %d", l.name, l.got, l.want)
		}
	}
}
