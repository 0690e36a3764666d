package bytecode

import (
	"encoding/binary"
	"fmt"
	"strings"
)

// Disassemble returns a human-readable listing of the program: a header, the
// instruction stream and a hex dump of the constant pool.
func (p *Program) Disassemble() string {
	return p.DisassembleWithName("")
}

// DisassembleWithName returns a listing with a name header.
func (p *Program) DisassembleWithName(name string) string {
	var sb strings.Builder

	if name != "" {
		sb.WriteString(fmt.Sprintf("; === %s ===\n", name))
	}
	sb.WriteString(fmt.Sprintf("; %d code bytes, %d pool bytes, max stack %d\n",
		p.PoolBase, len(p.Code)-p.PoolBase, p.MaxStack))
	sb.WriteString("\n; Code:\n")

	offset := 0
	for offset < p.PoolBase {
		line, instrLen := p.disassembleInstruction(offset)
		sb.WriteString(fmt.Sprintf("%04X  %s\n", offset, line))
		if instrLen == 0 {
			break
		}
		offset += instrLen
	}

	if p.PoolBase < len(p.Code) {
		sb.WriteString("\n; Pool:\n")
		for off := p.PoolBase; off < len(p.Code); off += 8 {
			hi := off + 8
			if hi > len(p.Code) {
				hi = len(p.Code)
			}
			parts := make([]string, 0, 8)
			for _, b := range p.Code[off:hi] {
				parts = append(parts, fmt.Sprintf("%02X", b))
			}
			sb.WriteString(fmt.Sprintf("%04X  %s\n", off, strings.Join(parts, " ")))
		}
	}

	return sb.String()
}

// disassembleInstruction formats a single instruction at the given offset.
// Returns the formatted line and the instruction length (0 when the stream is
// truncated).
func (p *Program) disassembleInstruction(offset int) (string, int) {
	op := Opcode(p.Code[offset])
	info := GetOpcodeInfo(op)
	instrLen := 1 + info.OperandLen
	if offset+instrLen > p.PoolBase {
		return fmt.Sprintf("%s <truncated>", info.Name), 0
	}

	switch op {
	case OpCall, OpJmp, OpJmpz, OpJmpnz:
		target := p.readI32(offset + 1)
		return fmt.Sprintf("%s -> %04X", info.Name, target), instrLen

	case OpSpp, OpFpp:
		return fmt.Sprintf("%s %+d", info.Name, p.readI32(offset+1)), instrLen

	case OpLoad, OpStore:
		return fmt.Sprintf("%s size=%d", info.Name, p.Code[offset+1]), instrLen

	case OpLoadc:
		size := int(p.Code[offset+1])
		poolOff := p.readI32(offset + 2)
		line := fmt.Sprintf("LOADC size=%d @%04X", size, poolOff)
		if poolOff >= p.PoolBase && poolOff+size <= len(p.Code) {
			line += " ; " + formatConstant(p.Code[poolOff:poolOff+size])
		}
		return line, instrLen

	case OpConv:
		return fmt.Sprintf("CONV %s -> %s", PrimString(p.Code[offset+1]), PrimString(p.Code[offset+2])), instrLen

	case OpPush, OpPop:
		packed := p.Code[offset+1]
		return fmt.Sprintf("%s %s", info.Name, formatReg(packed)), instrLen

	case OpReserve, OpRelease:
		return fmt.Sprintf("%s %d", info.Name, int16(binary.LittleEndian.Uint16(p.Code[offset+1:]))), instrLen

	case OpSpecCall:
		return fmt.Sprintf("SPECCALL %d", p.Code[offset+1]), instrLen

	default:
		if info.Typed {
			return fmt.Sprintf("%s %s", info.Name, PrimString(p.Code[offset+1])), instrLen
		}
		return info.Name, instrLen
	}
}

// DisassembleInstruction returns a single formatted instruction.
func (p *Program) DisassembleInstruction(offset int) string {
	line, _ := p.disassembleInstruction(offset)
	return line
}

// DisassembleToLines returns the instruction stream as one line per
// instruction.
func (p *Program) DisassembleToLines() []string {
	var lines []string
	offset := 0
	for offset < p.PoolBase {
		line, instrLen := p.disassembleInstruction(offset)
		lines = append(lines, fmt.Sprintf("%04X  %s", offset, line))
		if instrLen == 0 {
			break
		}
		offset += instrLen
	}
	return lines
}

// InstructionCount walks the instruction stream and counts instructions.
func (p *Program) InstructionCount() int {
	count := 0
	offset := 0
	for offset < p.PoolBase {
		op := Opcode(p.Code[offset])
		n := op.InstructionLen()
		if offset+n > p.PoolBase {
			break
		}
		offset += n
		count++
	}
	return count
}

func (p *Program) readI32(offset int) int {
	return int(int32(binary.LittleEndian.Uint32(p.Code[offset:])))
}

// formatConstant renders pool bytes as hex plus their little-endian unsigned
// reading.
func formatConstant(data []byte) string {
	var v uint64
	for i := len(data) - 1; i >= 0; i-- {
		v = v<<8 | uint64(data[i])
	}
	return fmt.Sprintf("% X (%d)", data, v)
}

func formatReg(packed byte) string {
	name := "L"
	if RegOffset(packed) == 8 {
		name = "R"
	}
	return fmt.Sprintf("%s%d", name, RegSize(packed))
}
