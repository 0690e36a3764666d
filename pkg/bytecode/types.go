package bytecode

import (
	"fmt"
	"strconv"

	"github.com/dacite-lang/dacite/compiler"
)

// ---------------------------------------------------------------------------
// Primitive type classification and promotion
// ---------------------------------------------------------------------------

// A primitive type byte packs the category into the upper nibble and the
// width in bytes into the lower nibble. TypeNone (0x00) is the "invalid"
// sentinel; a valid primitive byte never has a zero lower nibble.
const (
	TypeNone byte = 0x00

	CategoryUnsigned byte = 0x1
	CategorySigned   byte = 0x2
	CategoryFloat    byte = 0x3
)

// The ten valid primitive bytes.
const (
	PrimU8  byte = 0x11
	PrimU16 byte = 0x12
	PrimU32 byte = 0x14
	PrimU64 byte = 0x18
	PrimI8  byte = 0x21
	PrimI16 byte = 0x22
	PrimI32 byte = 0x24
	PrimI64 byte = 0x28
	PrimF32 byte = 0x34
	PrimF64 byte = 0x38
)

// PrimByte packs a category and a width in bytes.
func PrimByte(category byte, size int) byte {
	return category<<4 | byte(size&0x0F)
}

// PrimCategory extracts the category nibble.
func PrimCategory(p byte) byte {
	return p >> 4
}

// PrimSize extracts the width in bytes.
func PrimSize(p byte) int {
	return int(p & 0x0F)
}

// PrimValid reports whether p is one of the ten valid primitive bytes.
func PrimValid(p byte) bool {
	switch PrimCategory(p) {
	case CategoryUnsigned, CategorySigned:
		switch PrimSize(p) {
		case 1, 2, 4, 8:
			return true
		}
	case CategoryFloat:
		switch PrimSize(p) {
		case 4, 8:
			return true
		}
	}
	return false
}

// PrimString renders a primitive byte as its source-language name.
func PrimString(p byte) string {
	var c string
	switch PrimCategory(p) {
	case CategoryUnsigned:
		c = "u"
	case CategorySigned:
		c = "i"
	case CategoryFloat:
		c = "f"
	default:
		return fmt.Sprintf("prim(0x%02X)", p)
	}
	return c + strconv.Itoa(PrimSize(p)*8)
}

// IsPrimitive reports whether a type descriptor names one of the primitive
// numeric types. Arrays and templated types are never primitive.
func IsPrimitive(t compiler.TypeDesc) bool {
	return PrimitiveByte(t) != TypeNone
}

// PrimitiveByte classifies a type descriptor into its primitive byte, or
// TypeNone if the descriptor is not primitive.
func PrimitiveByte(t compiler.TypeDesc) byte {
	if t.ArrSize != 0 || len(t.Args) != 0 {
		return TypeNone
	}
	if len(t.Name) < 2 || len(t.Name) > 3 {
		return TypeNone
	}

	var category byte
	switch t.Name[0] {
	case 'u':
		category = CategoryUnsigned
	case 'i':
		category = CategorySigned
	case 'f':
		category = CategoryFloat
	default:
		return TypeNone
	}

	switch t.Name[1:] {
	case "8":
		if category == CategoryFloat {
			return TypeNone
		}
		return PrimByte(category, 1)
	case "16":
		if category == CategoryFloat {
			return TypeNone
		}
		return PrimByte(category, 2)
	case "32":
		return PrimByte(category, 4)
	case "64":
		return PrimByte(category, 8)
	}
	return TypeNone
}

// TypeSize returns the byte size of a value of the given type: pointer width
// for references, the primitive width for primitives, and 0 otherwise
// (aggregate layout is not implemented).
func TypeSize(t compiler.TypeDesc) int {
	if t.Ref {
		return 8
	}
	if p := PrimitiveByte(t); p != TypeNone {
		return PrimSize(p)
	}
	return 0
}

// bestCategory picks the stronger of two categories under the ordering
// unsigned < signed < float.
func bestCategory(l, r byte) byte {
	if r > l {
		return r
	}
	return l
}

// Promote computes the common type of two primitive operands: the stronger
// category wins; within a category, the larger size. The lock flag of the
// result is the OR of the operands' locks. Non-primitive operands are a
// compile error.
func Promote(l, r compiler.TypeDesc) (compiler.TypeDesc, error) {
	lp := PrimitiveByte(l)
	rp := PrimitiveByte(r)
	lock := l.Locked || r.Locked

	if lp == TypeNone || rp == TypeNone {
		return compiler.TypeDesc{}, fmt.Errorf("no promotion between %s and %s", l, r)
	}

	best := bestCategory(PrimCategory(lp), PrimCategory(rp))
	size := PrimSize(lp)
	switch {
	case best != PrimCategory(lp):
		size = PrimSize(rp)
	case best != PrimCategory(rp):
		// keep left's size
	case PrimSize(rp) > size:
		size = PrimSize(rp)
	}

	return compiler.TypeDesc{
		Name:   PrimString(PrimByte(best, size)),
		Locked: lock,
	}, nil
}
