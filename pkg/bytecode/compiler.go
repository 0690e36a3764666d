package bytecode

import (
	"encoding/binary"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/dacite-lang/dacite/compiler"
)

// ---------------------------------------------------------------------------
// Compiler: type-directed lowering of the AST to bytecode
// ---------------------------------------------------------------------------

// voidType is the result type of statements and failed expressions.
var voidType = compiler.TypeDesc{Name: "void", Locked: true}

// varInfo records the layout of one declared variable.
type varInfo struct {
	global   bool
	prim     byte // TypeNone when the variable is not primitive
	location int  // stack offset of the variable's storage
	size     int
	typ      compiler.TypeDesc
}

// exprBlockFrame tracks one expression block being lowered: its declared
// result type, the stack depth at block entry, and the positions of yield
// jumps awaiting the block end.
type exprBlockFrame struct {
	typ        compiler.TypeDesc
	prim       byte
	entryDepth int
	jumps      []int
}

// Compiler lowers a parsed program into a Program. Values of primitive
// expressions travel through the Left register; a result type with the Ref
// flag set means Left holds a pointer instead of the value.
type Compiler struct {
	em *Emitter

	vars        map[string]*varInfo
	globalNames []string
	localScopes [][]string
	global      bool

	exprBlocks []*exprBlockFrame

	errors []string
}

// Compile lowers a top-level statement list. On any diagnostic the emitted
// output is discarded and the diagnostics are returned instead.
func Compile(top *compiler.CodeBlock) (*Program, []string) {
	c := &Compiler{
		em:     NewEmitter(),
		vars:   make(map[string]*varInfo),
		global: true,
	}

	for _, stmt := range top.Stmts {
		c.compileStmt(stmt)
	}

	// Globals are torn down in reverse declaration order, the same
	// discipline code blocks use for their scopes.
	for i := len(c.globalNames) - 1; i >= 0; i-- {
		c.teardownVar(c.globalNames[i])
	}

	if len(c.errors) > 0 {
		return nil, c.errors
	}

	prog, err := c.em.Finish()
	if err != nil {
		return nil, []string{err.Error()}
	}
	return prog, nil
}

// CompileSource is the front door: lex, parse, and lower in one call.
func CompileSource(src string) (*Program, []string) {
	p := compiler.NewParser(src)
	top := p.ParseProgram()
	if errs := p.Errors(); len(errs) > 0 {
		return nil, errs
	}
	return Compile(top)
}

func (c *Compiler) errorf(span compiler.Span, format string, args ...interface{}) {
	msg := fmt.Sprintf("line %d: %s", span.Start.Line, fmt.Sprintf(format, args...))
	c.errors = append(c.errors, msg)
}

// ---------------------------------------------------------------------------
// Statements
// ---------------------------------------------------------------------------

func (c *Compiler) compileStmt(stmt compiler.Stmt) {
	switch s := stmt.(type) {
	case *compiler.VarDecl:
		c.compileVarDecl(s)
	case *compiler.CodeBlock:
		c.compileCodeBlock(s)
	case *compiler.IfElse:
		c.compileIfElse(s)
	case *compiler.Yield:
		c.compileYield(s)
	case *compiler.DoExpr:
		c.compileExpr(s.Inner)
	default:
		c.errorf(stmt.Span(), "cannot lower statement %T", stmt)
	}
}

func (c *Compiler) compileVarDecl(decl *compiler.VarDecl) {
	name := decl.Name.Literal
	if _, exists := c.vars[name]; exists {
		c.errorf(decl.Span(), "variable %s already declared", name)
		return
	}

	info := &varInfo{
		global: c.global,
		size:   TypeSize(decl.Type),
		typ:    decl.Type,
	}

	switch {
	case decl.Type.Ref:
		if decl.Init == nil {
			c.errorf(decl.Span(), "reference %s requires an initializer", name)
			return
		}
		res := c.compileExpr(decl.Init)
		target := decl.Type
		target.Ref = false
		if !res.Ref || !res.Equal(target) {
			c.errorf(decl.Span(), "cannot bind %s to reference of type %s", res, target)
			return
		}
		if res.Locked && !decl.Type.Locked {
			c.errorf(decl.Span(), "cannot bind mutable reference %s to locked value", name)
			return
		}
		info.location = c.em.EmitPush(PackReg(RegLeft, 8))

	case IsPrimitive(decl.Type):
		prim := PrimitiveByte(decl.Type)
		info.prim = prim

		if decl.Init != nil {
			res := c.compileExpr(decl.Init)
			resPrim := PrimitiveByte(res)
			if resPrim == TypeNone {
				c.errorf(decl.Span(), "cannot initialize primitive %s from %s", name, res)
				return
			}
			c.derefPrim(&res, resPrim)
			if resPrim != prim {
				c.emitConv(resPrim, prim)
			}
		} else {
			// Zero of any primitive type is the all-zero bit pattern.
			c.em.EmitLoadConst(make([]byte, PrimSize(prim)))
		}
		info.location = c.em.EmitPush(PackReg(RegLeft, PrimSize(prim)))

	default:
		c.errorf(decl.Span(), "aggregate declarations are not yet supported")
		return
	}

	if c.global {
		c.globalNames = append(c.globalNames, name)
	} else {
		last := len(c.localScopes) - 1
		c.localScopes[last] = append(c.localScopes[last], name)
	}
	c.vars[name] = info
}

func (c *Compiler) compileCodeBlock(block *compiler.CodeBlock) {
	c.beginScope()
	for _, stmt := range block.Stmts {
		c.compileStmt(stmt)
	}
	c.endScope()
}

func (c *Compiler) beginScope() {
	c.localScopes = append(c.localScopes, nil)
	c.global = false
}

// endScope tears down the innermost scope in reverse declaration order and
// removes its names from the variable map.
func (c *Compiler) endScope() {
	last := len(c.localScopes) - 1
	names := c.localScopes[last]
	for i := len(names) - 1; i >= 0; i-- {
		c.teardownVar(names[i])
	}
	c.localScopes = c.localScopes[:last]
	c.global = len(c.localScopes) == 0
}

func (c *Compiler) teardownVar(name string) {
	info := c.vars[name]
	switch {
	case info.typ.Ref:
		c.em.EmitPop(PackReg(RegLeft, 8))
	case info.prim != TypeNone:
		c.em.EmitPop(PackReg(RegLeft, PrimSize(info.prim)))
	default:
		c.em.EmitRelease(info.size)
	}
	delete(c.vars, name)
}

func (c *Compiler) compileIfElse(s *compiler.IfElse) {
	c.compileCondition(s.Cond)

	jmpz := c.em.EmitJump(OpJmpz)
	c.compileStmt(s.Then)

	if s.Else != nil {
		jmp := c.em.EmitJump(OpJmp)
		c.patch(jmpz, s.Span())
		c.compileStmt(s.Else)
		c.patch(jmp, s.Span())
	} else {
		c.patch(jmpz, s.Span())
	}
}

// compileCondition lowers an expression into a u8 truth value in Left[0].
// Results that are already u8 (comparisons, booleans) are used as is; wider
// values are normalized against zero so a value like 256 still counts as
// true.
func (c *Compiler) compileCondition(e compiler.Expr) {
	res := c.compileExpr(e)
	prim := PrimitiveByte(res)
	if prim == TypeNone {
		c.errorf(e.Span(), "condition must be primitive, got %s", res)
		return
	}
	c.derefPrim(&res, prim)
	if prim != PrimU8 {
		c.emitIsNonZero(prim)
	}
}

// emitIsNonZero turns the typed value in Left into u8 0/1.
func (c *Compiler) emitIsNonZero(prim byte) {
	c.em.Emit(OpSwap)
	c.em.EmitLoadConst(make([]byte, PrimSize(prim)))
	c.emitTyped(OpCmpe, prim)
	c.em.Emit(OpBnot)
}

func (c *Compiler) compileYield(s *compiler.Yield) {
	if len(c.exprBlocks) == 0 {
		c.errorf(s.Span(), "yield outside expression block")
		return
	}
	frame := c.exprBlocks[len(c.exprBlocks)-1]

	res := c.compileExpr(s.Inner)
	resPrim := PrimitiveByte(res)
	if resPrim == TypeNone {
		c.errorf(s.Span(), "cannot yield %s from block of type %s", res, frame.typ)
		return
	}
	c.derefPrim(&res, resPrim)
	if resPrim != frame.prim {
		c.emitConv(resPrim, frame.prim)
	}

	// The jump lands past the block's teardown, which must not run on this
	// path (it pops through Left). Release the block's locals here instead.
	// The raw emit leaves the depth model alone: code after the yield still
	// sees the locals.
	if n := c.em.Depth() - frame.entryDepth; n > 0 {
		c.em.Emit(OpRelease)
		c.em.EmitI16(int16(n))
	}

	frame.jumps = append(frame.jumps, c.em.EmitJump(OpJmp))
}

// ---------------------------------------------------------------------------
// Expressions
// ---------------------------------------------------------------------------

// compileExpr lowers an expression and returns its static type. Primitive
// results live in the Left register; a set Ref flag means Left holds a
// pointer to the value instead.
func (c *Compiler) compileExpr(e compiler.Expr) compiler.TypeDesc {
	switch n := e.(type) {
	case *compiler.Number:
		return c.compileNumber(n)
	case *compiler.Identifier:
		return c.compileIdentifier(n)
	case *compiler.Unary:
		return c.compileUnary(n)
	case *compiler.Binary:
		return c.compileBinary(n)
	case *compiler.ExprBlock:
		return c.compileExprBlock(n)
	default:
		c.errorf(e.Span(), "cannot lower expression %T", e)
		return voidType
	}
}

// compileNumber types a literal by its suffix: d selects f64, a decimal
// point or f selects f32, and plain integers take the smallest unsigned
// width that fits. Constants are locked.
func (c *Compiler) compileNumber(n *compiler.Number) compiler.TypeDesc {
	lit := n.Tok.Literal

	if strings.HasSuffix(lit, "d") {
		v, err := strconv.ParseFloat(strings.TrimSuffix(lit, "d"), 64)
		if err != nil {
			c.errorf(n.Span(), "invalid f64 literal %q", lit)
			return voidType
		}
		var buf [8]byte
		binary.LittleEndian.PutUint64(buf[:], math.Float64bits(v))
		c.em.EmitLoadConst(buf[:])
		return compiler.TypeDesc{Name: "f64", Locked: true}
	}

	if strings.ContainsAny(lit, ".f") {
		v, err := strconv.ParseFloat(strings.TrimSuffix(lit, "f"), 32)
		if err != nil {
			c.errorf(n.Span(), "invalid f32 literal %q", lit)
			return voidType
		}
		var buf [4]byte
		binary.LittleEndian.PutUint32(buf[:], math.Float32bits(float32(v)))
		c.em.EmitLoadConst(buf[:])
		return compiler.TypeDesc{Name: "f32", Locked: true}
	}

	v, err := strconv.ParseUint(lit, 10, 64)
	if err != nil {
		c.errorf(n.Span(), "integer literal %q out of range", lit)
		return voidType
	}

	switch {
	case v < 1<<8:
		c.em.EmitLoadConst([]byte{byte(v)})
		return compiler.TypeDesc{Name: "u8", Locked: true}
	case v < 1<<16:
		var buf [2]byte
		binary.LittleEndian.PutUint16(buf[:], uint16(v))
		c.em.EmitLoadConst(buf[:])
		return compiler.TypeDesc{Name: "u16", Locked: true}
	case v < 1<<32:
		var buf [4]byte
		binary.LittleEndian.PutUint32(buf[:], uint32(v))
		c.em.EmitLoadConst(buf[:])
		return compiler.TypeDesc{Name: "u32", Locked: true}
	default:
		var buf [8]byte
		binary.LittleEndian.PutUint64(buf[:], v)
		c.em.EmitLoadConst(buf[:])
		return compiler.TypeDesc{Name: "u64", Locked: true}
	}
}

// compileIdentifier places a pointer to the variable's storage in Left.
// Reference-typed variables are dereferenced once so Left points at the
// referenced slot; either way the result type has Ref set.
func (c *Compiler) compileIdentifier(n *compiler.Identifier) compiler.TypeDesc {
	info, ok := c.vars[n.Tok.Literal]
	if !ok {
		c.errorf(n.Span(), "unknown variable %s", n.Tok.Literal)
		return voidType
	}

	if info.global {
		c.em.Emit(OpSpp)
	} else {
		c.em.Emit(OpFpp)
	}
	c.em.EmitI32(int32(info.location))

	t := info.typ
	if t.Ref {
		c.em.Emit(OpLoad)
		c.em.EmitByte(8)
	}
	t.Ref = true
	return t
}

func (c *Compiler) compileUnary(n *compiler.Unary) compiler.TypeDesc {
	res := c.compileExpr(n.Operand)
	prim := PrimitiveByte(res)
	if prim == TypeNone {
		c.errorf(n.Span(), "unary %s requires a primitive operand, got %s", n.Op, res)
		return voidType
	}
	c.derefPrim(&res, prim)

	switch n.Op {
	case compiler.TokenMinus:
		// Negating an unsigned value promotes it to the signed type of
		// the same width first.
		if PrimCategory(prim) == CategoryUnsigned {
			signed := PrimByte(CategorySigned, PrimSize(prim))
			c.emitConv(prim, signed)
			prim = signed
		}
		c.emitTyped(OpNeg, prim)

	case compiler.TokenTilde:
		c.emitTyped(OpNot, prim)

	case compiler.TokenBang:
		c.em.Emit(OpSwap)
		c.em.EmitLoadConst(make([]byte, PrimSize(prim)))
		c.emitTyped(OpCmpe, prim)
		return u8Result()

	default:
		c.errorf(n.Span(), "cannot lower unary operator %s", n.Op)
		return voidType
	}

	return compiler.TypeDesc{Name: PrimString(prim), Locked: true}
}

func (c *Compiler) compileBinary(n *compiler.Binary) compiler.TypeDesc {
	switch n.Op {
	case compiler.TokenComma:
		c.errorf(n.Span(), "comma operator is reserved")
		return voidType
	case compiler.TokenDot:
		c.errorf(n.Span(), "member access is not yet supported")
		return voidType
	}

	if compiler.IsAssignOp(n.Op) {
		return c.compileAssign(n)
	}

	if n.Op == compiler.TokenAndAnd || n.Op == compiler.TokenOrOr {
		return c.compileLogical(n)
	}

	return c.compileArithBinary(n)
}

// compileAssign lowers the assignment family. The left operand must lower
// to an unlocked reference; the right operand is converted to the left's
// primitive type and stored through the pointer. Compound operators load
// the current value and apply the arithmetic first.
func (c *Compiler) compileAssign(n *compiler.Binary) compiler.TypeDesc {
	left := c.compileExpr(n.Left)
	if !left.Ref {
		c.errorf(n.Span(), "assignment target is not assignable")
		return voidType
	}
	if left.Locked {
		c.errorf(n.Span(), "assignment to locked value")
		return voidType
	}
	leftPrim := PrimitiveByte(left)
	if leftPrim == TypeNone {
		c.errorf(n.Span(), "assignment to aggregate %s is not yet supported", left)
		return voidType
	}
	size := PrimSize(leftPrim)

	c.em.EmitPush(PackReg(RegLeft, 8)) // save destination pointer

	right := c.compileExpr(n.Right)
	rightPrim := PrimitiveByte(right)
	if rightPrim == TypeNone {
		c.errorf(n.Span(), "cannot assign %s to primitive", right)
		return voidType
	}
	c.derefPrim(&right, rightPrim)
	if rightPrim != leftPrim {
		c.emitConv(rightPrim, leftPrim)
	}

	c.em.Emit(OpSwap)                 // value to Right
	c.em.EmitPop(PackReg(RegLeft, 8)) // pointer back in Left

	if op, compound := compoundArithOp(n.Op); compound {
		c.em.EmitPush(PackReg(RegLeft, 8)) // keep the pointer
		c.em.Emit(OpLoad)
		c.em.EmitByte(byte(size)) // Left <- current value
		c.emitTyped(op, leftPrim)
		c.em.Emit(OpSwap)
		c.em.EmitPop(PackReg(RegLeft, 8))
	}

	c.em.Emit(OpStore)
	c.em.EmitByte(byte(size))

	return left
}

// compoundArithOp maps a compound assignment operator to its arithmetic
// opcode.
func compoundArithOp(op compiler.TokenType) (Opcode, bool) {
	switch op {
	case compiler.TokenPlusAssign:
		return OpAdd, true
	case compiler.TokenMinusAssign:
		return OpSub, true
	case compiler.TokenStarAssign:
		return OpMul, true
	case compiler.TokenSlashAssign:
		return OpDiv, true
	}
	return 0, false
}

// compileLogical lowers && and ||. Both operands are normalized to u8
// truth values, then combined with the boolean opcodes.
func (c *Compiler) compileLogical(n *compiler.Binary) compiler.TypeDesc {
	c.compileCondition(n.Left)
	c.em.EmitPush(PackReg(RegLeft, 1))

	c.compileCondition(n.Right)
	c.em.EmitPop(PackReg(RegRight, 1))

	if n.Op == compiler.TokenAndAnd {
		c.em.Emit(OpBand)
	} else {
		c.em.Emit(OpBor)
	}
	return u8Result()
}

// compileArithBinary lowers the arithmetic, bitwise, and comparison
// families: evaluate left, park it on the stack at its own width, evaluate
// right, promote both to the common type, then dispatch.
func (c *Compiler) compileArithBinary(n *compiler.Binary) compiler.TypeDesc {
	left := c.compileExpr(n.Left)
	leftPrim := PrimitiveByte(left)
	if leftPrim == TypeNone {
		c.errorf(n.Span(), "operator %s requires primitive operands, got %s", n.Op, left)
		return voidType
	}
	c.derefPrim(&left, leftPrim)
	c.em.EmitPush(PackReg(RegLeft, PrimSize(leftPrim)))

	right := c.compileExpr(n.Right)
	rightPrim := PrimitiveByte(right)
	if rightPrim == TypeNone {
		c.errorf(n.Span(), "operator %s requires primitive operands, got %s", n.Op, right)
		return voidType
	}
	c.derefPrim(&right, rightPrim)

	best, err := Promote(left, right)
	if err != nil {
		c.errorf(n.Span(), "%s", err)
		return voidType
	}
	bestPrim := PrimitiveByte(best)

	if rightPrim != bestPrim {
		c.emitConv(rightPrim, bestPrim)
	}
	c.em.Emit(OpSwap)
	c.em.EmitPop(PackReg(RegLeft, PrimSize(leftPrim)))
	if leftPrim != bestPrim {
		c.emitConv(leftPrim, bestPrim)
	}

	switch n.Op {
	case compiler.TokenPlus:
		c.emitTyped(OpAdd, bestPrim)
	case compiler.TokenMinus:
		c.emitTyped(OpSub, bestPrim)
	case compiler.TokenStar:
		c.emitTyped(OpMul, bestPrim)
	case compiler.TokenSlash:
		c.emitTyped(OpDiv, bestPrim)
	case compiler.TokenAmp:
		c.emitTyped(OpAnd, bestPrim)
	case compiler.TokenPipe:
		c.emitTyped(OpOr, bestPrim)
	case compiler.TokenCaret:
		c.emitTyped(OpXor, bestPrim)

	case compiler.TokenEq:
		c.emitTyped(OpCmpe, bestPrim)
		return u8Result()
	case compiler.TokenNeq:
		c.emitTyped(OpCmpe, bestPrim)
		c.em.Emit(OpBnot)
		return u8Result()
	case compiler.TokenLt:
		c.emitTyped(OpCmpl, bestPrim)
		return u8Result()
	case compiler.TokenGt:
		c.emitTyped(OpCmpg, bestPrim)
		return u8Result()
	case compiler.TokenGeq:
		c.emitTyped(OpCmpl, bestPrim)
		c.em.Emit(OpBnot)
		return u8Result()
	case compiler.TokenLeq:
		c.emitTyped(OpCmpg, bestPrim)
		c.em.Emit(OpBnot)
		return u8Result()

	default:
		c.errorf(n.Span(), "cannot lower binary operator %s", n.Op)
		return voidType
	}

	best.Locked = true
	return best
}

func u8Result() compiler.TypeDesc {
	return compiler.TypeDesc{Name: "u8", Locked: true}
}

// compileExprBlock lowers T : { ... }. Yields inside the block convert to
// T and jump to the end; the block's value arrives in Left.
func (c *Compiler) compileExprBlock(n *compiler.ExprBlock) compiler.TypeDesc {
	prim := PrimitiveByte(n.Type)
	if prim == TypeNone {
		c.errorf(n.Span(), "expression block type %s must be primitive", n.Type)
		return voidType
	}

	frame := &exprBlockFrame{typ: n.Type, prim: prim, entryDepth: c.em.Depth()}
	c.exprBlocks = append(c.exprBlocks, frame)

	c.beginScope()
	for _, stmt := range n.Stmts {
		c.compileStmt(stmt)
	}
	c.endScope()

	c.exprBlocks = c.exprBlocks[:len(c.exprBlocks)-1]
	for _, pos := range frame.jumps {
		c.patch(pos, n.Span())
	}

	return n.Type
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

// derefPrim loads the value behind Left when the type is a reference,
// clearing the flag.
func (c *Compiler) derefPrim(t *compiler.TypeDesc, prim byte) {
	if !t.Ref {
		return
	}
	t.Ref = false
	c.em.Emit(OpLoad)
	c.em.EmitByte(byte(PrimSize(prim)))
}

func (c *Compiler) emitConv(from, to byte) {
	c.em.Emit(OpConv)
	c.em.EmitByte(from)
	c.em.EmitByte(to)
}

func (c *Compiler) emitTyped(op Opcode, prim byte) {
	c.em.Emit(op)
	c.em.EmitByte(prim)
}

func (c *Compiler) patch(pos int, span compiler.Span) {
	if err := c.em.PatchJump(pos); err != nil {
		c.errorf(span, "%s", err)
	}
}
