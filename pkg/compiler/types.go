package compiler

import (
	"fmt"
	"math"
)

// TypeKind distinguishes the three type shapes the language has.
type TypeKind int

const (
	TypeInt TypeKind = iota
	TypePointer
	TypeArray
)

// WordSize is the size of int and of every pointer, and the stack slot
// granularity.
const WordSize = 8

// MaxObjectSize bounds the size of one object and of a whole stack frame,
// so every %rbp offset fits a 32-bit displacement.
const MaxObjectSize = math.MaxInt32

// Type describes int, pointer-to-Elem, or array of Len Elem.
type Type struct {
	Kind TypeKind
	Elem *Type // pointee or element type; nil for int
	Len  int   // element count for arrays
}

var intType = &Type{Kind: TypeInt}

// IntType returns the int type.
func IntType() *Type { return intType }

// PointerTo returns the type pointer-to-t.
func PointerTo(t *Type) *Type { return &Type{Kind: TypePointer, Elem: t} }

// ArrayOf returns the type array of n t.
func ArrayOf(t *Type, n int) *Type { return &Type{Kind: TypeArray, Elem: t, Len: n} }

func (t *Type) IsPointer() bool { return t.Kind == TypePointer }
func (t *Type) IsArray() bool   { return t.Kind == TypeArray }

// Size is sizeof(t) in bytes. It is only meaningful for valid types.
func (t *Type) Size() int {
	switch t.Kind {
	case TypeArray:
		return t.Len * t.Elem.Size()
	default:
		return WordSize
	}
}

// SlotSize is Size rounded up to the stack slot granularity.
func (t *Type) SlotSize() int {
	return align(t.Size(), WordSize)
}

// Decay converts array-of-T to pointer-to-T and leaves other types as is.
func (t *Type) Decay() *Type {
	if t.Kind == TypeArray {
		return PointerTo(t.Elem)
	}
	return t
}

// Equal reports structural equality.
func (t *Type) Equal(o *Type) bool {
	if t == nil || o == nil {
		return t == o
	}
	if t.Kind != o.Kind || t.Len != o.Len {
		return false
	}
	if t.Kind == TypeInt {
		return true
	}
	return t.Elem.Equal(o.Elem)
}

// String renders the type in C order, e.g. "int*[3]" for an array of
// three pointers and "int(*)[3]" for a pointer to an array.
func (t *Type) String() string {
	switch t.Kind {
	case TypeInt:
		return "int"
	case TypePointer:
		if t.Elem.Kind == TypeArray {
			return fmt.Sprintf("%s(*)%s", t.Elem.base(), t.Elem.dims())
		}
		return t.Elem.String() + "*"
	case TypeArray:
		return t.base() + t.dims()
	}
	return "?"
}

// base is the innermost non-array type of t.
func (t *Type) base() string {
	for t.Kind == TypeArray {
		t = t.Elem
	}
	return t.String()
}

func (t *Type) dims() string {
	s := ""
	for t.Kind == TypeArray {
		s += fmt.Sprintf("[%d]", t.Len)
		t = t.Elem
	}
	return s
}

func align(n, a int) int {
	return (n + a - 1) / a * a
}

// Valid reports whether t is fully formed: pointers and arrays need an
// element type, and arrays a positive length with a total size of at most
// MaxObjectSize.
func (t *Type) Valid() bool {
	if t == nil {
		return false
	}
	switch t.Kind {
	case TypeInt:
		return true
	case TypePointer:
		return t.Elem.Valid()
	case TypeArray:
		return t.Len > 0 && t.Elem.Valid() && t.Len <= MaxObjectSize/t.Elem.Size()
	}
	return false
}
