package bytecode

// ---------------------------------------------------------------------------
// Constant pool: deduplicated literal byte storage
// ---------------------------------------------------------------------------

// ConstantPool accumulates literal byte sequences and deduplicates them.
// Offsets are measured within the pool storage, not the final bytecode; the
// emitter rebases them when it appends the pool after the instruction stream.
type ConstantPool struct {
	storage []byte
	index   map[string]int
}

// NewConstantPool creates an empty pool.
func NewConstantPool() *ConstantPool {
	return &ConstantPool{
		index: make(map[string]int),
	}
}

// Add records a byte sequence and returns its offset in the pool storage.
// A bit-identical sequence added twice returns the same offset.
func (p *ConstantPool) Add(data []byte) int {
	key := string(data)
	if off, ok := p.index[key]; ok {
		return off
	}
	off := len(p.storage)
	p.storage = append(p.storage, data...)
	p.index[key] = off
	return off
}

// Len returns the current storage size in bytes.
func (p *ConstantPool) Len() int {
	return len(p.storage)
}

// Bytes returns the pool storage. The slice is owned by the pool; callers
// must not modify it.
func (p *ConstantPool) Bytes() []byte {
	return p.storage
}
