package compiler

import "testing"

func TestTypeSizes(t *testing.T) {
	tests := []struct {
		typ      *Type
		str      string
		size     int
		slotSize int
	}{
		{IntType(), "int", 8, 8},
		{PointerTo(IntType()), "int*", 8, 8},
		{PointerTo(PointerTo(IntType())), "int**", 8, 8},
		{ArrayOf(IntType(), 3), "int[3]", 24, 24},
		{ArrayOf(PointerTo(IntType()), 3), "int*[3]", 24, 24},
		{PointerTo(ArrayOf(IntType(), 3)), "int(*)[3]", 8, 8},
		{ArrayOf(ArrayOf(IntType(), 3), 2), "int[2][3]", 48, 48},
	}

	for _, tt := range tests {
		t.Run(tt.str, func(t *testing.T) {
			if got := tt.typ.String(); got != tt.str {
				t.Errorf("String() = %q, want %q", got, tt.str)
			}
			if got := tt.typ.Size(); got != tt.size {
				t.Errorf("Size() = %d, want %d", got, tt.size)
			}
			if got := tt.typ.SlotSize(); got != tt.slotSize {
				t.Errorf("SlotSize() = %d, want %d", got, tt.slotSize)
			}
			if !tt.typ.Valid() {
				t.Errorf("%s should be valid", tt.str)
			}
		})
	}
}

func TestTypeDecay(t *testing.T) {
	arr := ArrayOf(ArrayOf(IntType(), 3), 2)
	d := arr.Decay()
	if !d.IsPointer() || d.String() != "int(*)[3]" {
		t.Errorf("int[2][3] should decay to int(*)[3], got %s", d)
	}
	if IntType().Decay() != IntType() {
		t.Error("int should not decay")
	}
	p := PointerTo(IntType())
	if p.Decay() != p {
		t.Error("pointers should not decay")
	}
}

func TestTypeEqualAndValid(t *testing.T) {
	if !ArrayOf(IntType(), 3).Equal(ArrayOf(IntType(), 3)) {
		t.Error("int[3] should equal int[3]")
	}
	if ArrayOf(IntType(), 3).Equal(ArrayOf(IntType(), 4)) {
		t.Error("int[3] should not equal int[4]")
	}
	if PointerTo(IntType()).Equal(IntType()) {
		t.Error("int* should not equal int")
	}

	invalid := []*Type{
		nil,
		ArrayOf(IntType(), 0),
		ArrayOf(IntType(), -1),
		PointerTo(ArrayOf(IntType(), 0)),
		{Kind: TypePointer},
	}
	for i, typ := range invalid {
		if typ.Valid() {
			t.Errorf("case %d: expected invalid type", i)
		}
	}
}
