package bytecode

import (
	"encoding/binary"
	"fmt"
)

// ---------------------------------------------------------------------------
// Emitter: append-only bytecode writer with constant-pool fixups
// ---------------------------------------------------------------------------

// FrameHeaderSize is the size of the (frame, pc) pair the VM pushes before
// entering the instruction stream. Variable layout starts past it so that
// offset arithmetic can never alias the startup frame.
const FrameHeaderSize = 8

// Program is a finished unit of execution: the instruction stream with the
// constant pool appended, plus the offset where the pool begins.
type Program struct {
	Code     []byte
	PoolBase int
	MaxStack int // high-water mark of the compile-time stack model
}

// Emitter builds a Program by appending opcodes and operands. LOADC operands
// are emitted as placeholders and rewritten by Finish once the final pool
// base is known. It also models the runtime stack depth so the finished
// program carries its own high-water mark.
type Emitter struct {
	code   []byte
	pool   *ConstantPool
	fixups []constFixup

	depth    int
	maxDepth int
}

// constFixup maps a placeholder position in the byte stream to an offset in
// the pool storage.
type constFixup struct {
	pos     int
	poolOff int
}

// NewEmitter creates an empty emitter. The stack model starts past the
// startup frame header.
func NewEmitter() *Emitter {
	return &Emitter{
		pool:     NewConstantPool(),
		depth:    FrameHeaderSize,
		maxDepth: FrameHeaderSize,
	}
}

// Here returns the current byte-stream position.
func (e *Emitter) Here() int {
	return len(e.code)
}

// Depth returns the current modeled stack depth in bytes.
func (e *Emitter) Depth() int {
	return e.depth
}

// Emit appends a bare opcode.
func (e *Emitter) Emit(op Opcode) {
	e.code = append(e.code, byte(op))
}

// EmitByte appends a single operand byte.
func (e *Emitter) EmitByte(b byte) {
	e.code = append(e.code, b)
}

// EmitI16 appends a little-endian 16-bit operand.
func (e *Emitter) EmitI16(v int16) {
	e.code = binary.LittleEndian.AppendUint16(e.code, uint16(v))
}

// EmitI32 appends a little-endian 32-bit operand.
func (e *Emitter) EmitI32(v int32) {
	e.code = binary.LittleEndian.AppendUint32(e.code, uint32(v))
}

// EmitJump emits a jump opcode with a placeholder target and returns the
// placeholder position for PatchJump.
func (e *Emitter) EmitJump(op Opcode) int {
	e.Emit(op)
	pos := e.Here()
	e.EmitI32(0)
	return pos
}

// PatchJump rewrites the placeholder at pos to the current position.
func (e *Emitter) PatchJump(pos int) error {
	return e.PatchI32(pos, e.Here())
}

// PatchI32 rewrites a previously emitted 32-bit slot.
func (e *Emitter) PatchI32(pos, value int) error {
	if pos < 0 || pos+4 > len(e.code) {
		return fmt.Errorf("patch position %d outside emitted code (%d bytes)", pos, len(e.code))
	}
	binary.LittleEndian.PutUint32(e.code[pos:], uint32(value))
	return nil
}

// EmitPush emits PUSH of a packed register byte and returns the stack
// offset the pushed bytes occupy.
func (e *Emitter) EmitPush(packed byte) int {
	e.Emit(OpPush)
	e.EmitByte(packed)
	loc := e.depth
	e.grow(RegSize(packed))
	return loc
}

// EmitPop emits POP of a packed register byte.
func (e *Emitter) EmitPop(packed byte) {
	e.Emit(OpPop)
	e.EmitByte(packed)
	e.depth -= RegSize(packed)
}

// EmitReserve emits RESERVE and returns the offset of the reserved region.
func (e *Emitter) EmitReserve(size int) int {
	e.Emit(OpReserve)
	e.EmitI16(int16(size))
	loc := e.depth
	e.grow(size)
	return loc
}

// EmitRelease emits RELEASE.
func (e *Emitter) EmitRelease(size int) {
	e.Emit(OpRelease)
	e.EmitI16(int16(size))
	e.depth -= size
}

func (e *Emitter) grow(n int) {
	e.depth += n
	if e.depth > e.maxDepth {
		e.maxDepth = e.depth
	}
}

// EmitLoadConst emits LOADC for a literal byte sequence: the size byte, a
// placeholder 32-bit offset, and a pending fixup against the pool entry the
// sequence deduplicates to.
func (e *Emitter) EmitLoadConst(data []byte) {
	e.Emit(OpLoadc)
	e.EmitByte(byte(len(data)))
	pos := e.Here()
	e.EmitI32(0)
	e.fixups = append(e.fixups, constFixup{pos: pos, poolOff: e.pool.Add(data)})
}

// Finish appends the terminating RETURN, rebases every LOADC placeholder to
// its final offset, appends the pool storage, and returns the Program.
func (e *Emitter) Finish() (*Program, error) {
	e.Emit(OpReturn)

	poolBase := e.Here()
	for _, f := range e.fixups {
		if err := e.PatchI32(f.pos, f.poolOff+poolBase); err != nil {
			return nil, err
		}
	}
	e.code = append(e.code, e.pool.Bytes()...)

	return &Program{
		Code:     e.code,
		PoolBase: poolBase,
		MaxStack: e.maxDepth,
	}, nil
}
