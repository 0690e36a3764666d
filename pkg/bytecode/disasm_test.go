package bytecode

import (
	"strings"
	"testing"
)

func TestDisassembleListing(t *testing.T) {
	prog := compileOrFail(t, `let u8 x = 1 + 2;`)
	listing := prog.Disassemble()

	for _, want := range []string{"; Code:", "; Pool:", "LOADC", "ADD u8", "PUSH L1", "RETURN", "max stack"} {
		if !strings.Contains(listing, want) {
			t.Errorf("listing missing %q:\n%s", want, listing)
		}
	}
}

func TestDisassembleWithName(t *testing.T) {
	prog := compileOrFail(t, `let u8 x = 1;`)
	listing := prog.DisassembleWithName("main.dcs")
	if !strings.HasPrefix(listing, "; === main.dcs ===\n") {
		t.Errorf("listing missing name header:\n%s", listing)
	}
}

func TestDisassembleInstructionFormats(t *testing.T) {
	em := NewEmitter()
	em.Emit(OpJmp)
	em.EmitI32(9)
	em.Emit(OpConv)
	em.EmitByte(PrimU8)
	em.EmitByte(PrimU32)
	em.Emit(OpPop)
	em.EmitByte(PackReg(RegRight, 8))
	prog, err := em.Finish()
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		offset int
		want   string
	}{
		{0, "JMP -> 0009"},
		{5, "CONV u8 -> u32"},
		{8, "POP R8"},
		{10, "RETURN"},
	}

	for _, tt := range tests {
		if got := prog.DisassembleInstruction(tt.offset); got != tt.want {
			t.Errorf("instruction at %d = %q, want %q", tt.offset, got, tt.want)
		}
	}
}

func TestDisassembleLoadcShowsConstant(t *testing.T) {
	em := NewEmitter()
	em.EmitLoadConst([]byte{0x2A})
	prog, err := em.Finish()
	if err != nil {
		t.Fatal(err)
	}

	line := prog.DisassembleInstruction(0)
	if !strings.Contains(line, "(42)") {
		t.Errorf("LOADC line missing decoded constant: %q", line)
	}
}

func TestInstructionCount(t *testing.T) {
	em := NewEmitter()
	em.Emit(OpSwap)
	em.EmitLoadConst([]byte{1})
	em.Emit(OpBnot)
	prog, err := em.Finish()
	if err != nil {
		t.Fatal(err)
	}

	// SWAP, LOADC, BNOT plus the final RETURN.
	if got := prog.InstructionCount(); got != 4 {
		t.Errorf("instruction count = %d, want 4", got)
	}

	lines := prog.DisassembleToLines()
	if len(lines) != 4 {
		t.Errorf("line count = %d, want 4", len(lines))
	}
}
