// Package compiler provides a C-subset lexer, parser, and code generator
// that targets AT&T-syntax x86-64 assembly.
//
// Pipeline: C source → Lex → Parse → Generate → assembly text
//
// The language has int, pointers and fixed-size arrays, no-argument
// functions, and the usual C statements and operators. Locals live in the
// frame below %rbp; every expression leaves its value in %rax.
package compiler
