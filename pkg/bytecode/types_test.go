package bytecode

import (
	"testing"

	"github.com/dacite-lang/dacite/compiler"
)

func prim(name string) compiler.TypeDesc {
	return compiler.TypeDesc{Name: name}
}

func TestPrimitiveByte(t *testing.T) {
	tests := []struct {
		typ  compiler.TypeDesc
		want byte
	}{
		{prim("u8"), PrimU8},
		{prim("u16"), PrimU16},
		{prim("u32"), PrimU32},
		{prim("u64"), PrimU64},
		{prim("i8"), PrimI8},
		{prim("i16"), PrimI16},
		{prim("i32"), PrimI32},
		{prim("i64"), PrimI64},
		{prim("f32"), PrimF32},
		{prim("f64"), PrimF64},

		{prim("f8"), TypeNone},
		{prim("f16"), TypeNone},
		{prim("u128"), TypeNone},
		{prim("int"), TypeNone},
		{prim("x32"), TypeNone},
		{prim(""), TypeNone},
		{compiler.TypeDesc{Name: "u8", ArrSize: 4}, TypeNone},
		{compiler.TypeDesc{Name: "Unique", Args: []compiler.TypeDesc{prim("u8")}}, TypeNone},
	}

	for _, tt := range tests {
		if got := PrimitiveByte(tt.typ); got != tt.want {
			t.Errorf("PrimitiveByte(%s) = 0x%02X, want 0x%02X", tt.typ, got, tt.want)
		}
	}
}

func TestPrimPacking(t *testing.T) {
	for _, p := range []byte{PrimU8, PrimU16, PrimU32, PrimU64, PrimI8, PrimI16, PrimI32, PrimI64, PrimF32, PrimF64} {
		if !PrimValid(p) {
			t.Errorf("PrimValid(0x%02X) = false, want true", p)
		}
		if got := PrimByte(PrimCategory(p), PrimSize(p)); got != p {
			t.Errorf("PrimByte(PrimCategory, PrimSize) = 0x%02X, want 0x%02X", got, p)
		}
	}

	for _, p := range []byte{0x00, 0x10, 0x13, 0x31, 0x32, 0x41, 0xFF} {
		if PrimValid(p) {
			t.Errorf("PrimValid(0x%02X) = true, want false", p)
		}
	}
}

func TestPrimString(t *testing.T) {
	tests := []struct {
		p    byte
		want string
	}{
		{PrimU8, "u8"},
		{PrimI16, "i16"},
		{PrimU32, "u32"},
		{PrimF64, "f64"},
		{0x99, "prim(0x99)"},
	}

	for _, tt := range tests {
		if got := PrimString(tt.p); got != tt.want {
			t.Errorf("PrimString(0x%02X) = %q, want %q", tt.p, got, tt.want)
		}
	}
}

func TestTypeSize(t *testing.T) {
	tests := []struct {
		typ  compiler.TypeDesc
		want int
	}{
		{prim("u8"), 1},
		{prim("i32"), 4},
		{prim("f64"), 8},
		{compiler.TypeDesc{Name: "u16", Ref: true}, 8},
		{prim("Shared"), 0},
	}

	for _, tt := range tests {
		if got := TypeSize(tt.typ); got != tt.want {
			t.Errorf("TypeSize(%s) = %d, want %d", tt.typ, got, tt.want)
		}
	}
}

func TestPromote(t *testing.T) {
	tests := []struct {
		left, right string
		want        string
	}{
		{"u8", "u8", "u8"},
		{"u8", "u16", "u16"},
		{"u32", "u8", "u32"},
		{"u8", "i8", "i8"},
		{"i16", "u32", "i16"},
		{"u8", "f32", "f32"},
		{"f32", "u64", "f32"},
		{"i64", "f32", "f32"},
		{"f32", "f64", "f64"},
		{"i8", "i64", "i64"},
	}

	for _, tt := range tests {
		got, err := Promote(prim(tt.left), prim(tt.right))
		if err != nil {
			t.Errorf("Promote(%s, %s): %v", tt.left, tt.right, err)
			continue
		}
		if got.Name != tt.want {
			t.Errorf("Promote(%s, %s) = %s, want %s", tt.left, tt.right, got.Name, tt.want)
		}
	}
}

func TestPromotePropagatesLock(t *testing.T) {
	locked := compiler.TypeDesc{Name: "u8", Locked: true}
	got, err := Promote(locked, prim("u16"))
	if err != nil {
		t.Fatal(err)
	}
	if !got.Locked {
		t.Error("promotion of a locked operand lost the lock flag")
	}

	got, err = Promote(prim("u8"), prim("u16"))
	if err != nil {
		t.Fatal(err)
	}
	if got.Locked {
		t.Error("promotion of unlocked operands produced a locked result")
	}
}

func TestPromoteNonPrimitive(t *testing.T) {
	if _, err := Promote(prim("u8"), prim("Shared")); err == nil {
		t.Error("expected an error promoting against a non-primitive type")
	}
}
