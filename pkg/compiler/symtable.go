package compiler

import (
	"fmt"
	"sort"
	"strings"
)

// Symbol is a local variable's frame slot.
type Symbol struct {
	Offset int // relative to %rbp, always negative
	Type   *Type
}

// Scope is one lexical block. Lookups check the block's own names first,
// then a flattened snapshot of everything visible when the block was
// entered, so shadowing needs no chain walk.
//
// A scope owns a contiguous region of the frame: it starts at base bytes
// below %rbp and is size bytes long. Slots are handed out from the top of
// that region.
type Scope struct {
	parent *Scope
	outer  map[string]Symbol
	local  map[string]Symbol
	base   int // frame depth when the scope was entered
	size   int // bytes reserved for this scope's own declarations
	used   int // bytes handed out so far
}

// NewScope returns a root scope that starts at frame depth base and
// reserves size bytes.
func NewScope(base, size int) *Scope {
	return &Scope{
		outer: map[string]Symbol{},
		local: map[string]Symbol{},
		base:  base,
		size:  size,
	}
}

// Enter opens a nested scope directly below this scope's region.
func (s *Scope) Enter(size int) *Scope {
	outer := make(map[string]Symbol, len(s.outer)+len(s.local))
	for name, sym := range s.outer {
		outer[name] = sym
	}
	for name, sym := range s.local {
		outer[name] = sym
	}
	return &Scope{
		parent: s,
		outer:  outer,
		local:  map[string]Symbol{},
		base:   s.End(),
		size:   size,
	}
}

// Exit returns the enclosing scope.
func (s *Scope) Exit() *Scope {
	return s.parent
}

// End is the frame depth just past this scope's region.
func (s *Scope) End() int {
	return s.base + s.size
}

// Size is the number of bytes this scope reserved.
func (s *Scope) Size() int {
	return s.size
}

// Define binds name in this scope. It fails when the name is already
// declared in the same block or when the reservation made at Enter is too
// small for it.
func (s *Scope) Define(name string, t *Type) (Symbol, error) {
	if _, ok := s.local[name]; ok {
		return Symbol{}, fmt.Errorf("%q already declared in this block", name)
	}
	n := t.SlotSize()
	if s.used+n > s.size {
		return Symbol{}, fmt.Errorf("scope reserved %d bytes, %q needs %d more", s.size, name, s.used+n-s.size)
	}
	s.used += n
	sym := Symbol{Offset: -(s.base + s.used), Type: t}
	s.local[name] = sym
	return sym, nil
}

// Lookup returns the innermost binding of name.
func (s *Scope) Lookup(name string) (Symbol, bool) {
	if sym, ok := s.local[name]; ok {
		return sym, true
	}
	sym, ok := s.outer[name]
	return sym, ok
}

// IsLocal reports whether name was declared directly in this scope.
func (s *Scope) IsLocal(name string) bool {
	_, ok := s.local[name]
	return ok
}

// String prints every visible binding, sorted by name.
func (s *Scope) String() string {
	seen := map[string]Symbol{}
	for name, sym := range s.outer {
		seen[name] = sym
	}
	for name, sym := range s.local {
		seen[name] = sym
	}
	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	sort.Strings(names)

	var sb strings.Builder
	sb.WriteString("Symbol Table\n")
	for _, name := range names {
		sym := seen[name]
		fmt.Fprintf(&sb, "  %-12s %-12s %d(%%rbp)\n", name, sym.Type, sym.Offset)
	}
	return sb.String()
}

// declaredBytes is the stack space needed by the declarations that appear
// directly in items. Nested blocks are not counted; they reserve their own.
func declaredBytes(items []Stmt) int {
	n := 0
	for _, s := range items {
		if d, ok := s.(*VariableDecl); ok && d.Type != nil {
			n += d.Type.SlotSize()
		}
	}
	return n
}
