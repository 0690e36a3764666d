// Package bytecode compiles Dacite syntax trees to a compact instruction
// format and executes it on a register/stack virtual machine.
//
// The bytecode format is designed for:
//   - Compact representation (typically 1-6 bytes per instruction)
//   - Fast decoding (single-byte opcodes, little-endian operands)
//   - Easy serialization (a program is one flat byte slice)
//
// # Architecture Overview
//
// The system consists of several components:
//
//   - Opcodes: ~30 instructions covering frames and control flow, memory and
//     pointers, stack management, and typed arithmetic, comparison and
//     bitwise operations. Typed instructions carry a primitive type byte that
//     packs the category (unsigned, signed, float) and width.
//
//   - Emitter: An append-only writer that builds a Program. Literal values go
//     through a deduplicating constant pool that is appended after the
//     instruction stream; LOADC operands are rebased to their final offsets
//     when the program is finished.
//
//   - Compiler: Lowers the syntax tree produced by the compiler package into
//     a Program, laying out variables on the stack and inserting numeric
//     conversions where operand types differ.
//
//   - VM: Executes a Program. The machine has two 8-byte registers (Left and
//     Right) and a byte-addressed stack that grows on demand. Pointers are
//     stack offsets. Faults carry stable codes that the CLI maps to process
//     exit codes.
//
//   - Image: The on-disk form of a compiled program, a magic prefix followed
//     by a canonical CBOR record. Images carry the hash of the source they
//     were compiled from so caches can detect staleness.
//
// # Value Model
//
// All values are raw bytes on the stack. The compiler tracks types; the
// machine only sees widths. Binary operators promote operands to a common
// type (float over signed over unsigned; within one category, larger width
// over smaller; across categories, the stronger category's width) and the
// compiler emits CONV instructions to realize the promotion at runtime.
package bytecode
