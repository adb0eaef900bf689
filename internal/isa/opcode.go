// Package isa defines the CASM instruction set: the opcode table, operand
// layout, and the M31/QM31/JSON (de)serialization contract shared between
// the code generator (internal/codegen), the runner (internal/runner),
// and (outside this repo's scope) the STARK prover. Opcode numbers and
// operand order are part of the on-disk format and must never change.
package isa

// Opcode identifies a CASM instruction kind. The numeric values are part
// of the wire format (spec §3.2) and must be preserved bit-exact.
type Opcode uint8

const (
	OpStoreAddFpFp Opcode = iota
	OpStoreAddFpImm
	OpStoreSubFpFp
	OpStoreSubFpImm
	OpStoreDoubleDerefFp
	OpStoreImm
	OpStoreMulFpFp
	OpStoreMulFpImm
	OpStoreDivFpFp
	OpStoreDivFpImm
	OpCallAbsImm
	OpRet
	OpJmpAbsImm
	OpJmpRelImm
	OpJnzFpImm
	OpU32StoreAddFpImm

	opcodeCount
)

// opcodeInfo is the static per-opcode contract: how many M31 operands it
// carries (including the opcode slot itself in sizeInM31), and how many
// memory accesses it performs (spec §3.2 table).
type opcodeInfo struct {
	name            string
	sizeInM31       int
	memoryAccesses  int
	operandCount    int
}

var table = [opcodeCount]opcodeInfo{
	OpStoreAddFpFp:       {"StoreAddFpFp", 4, 3, 3},
	OpStoreAddFpImm:      {"StoreAddFpImm", 4, 2, 3},
	OpStoreSubFpFp:       {"StoreSubFpFp", 4, 3, 3},
	OpStoreSubFpImm:      {"StoreSubFpImm", 4, 2, 3},
	OpStoreDoubleDerefFp: {"StoreDoubleDerefFp", 4, 2, 3},
	OpStoreImm:           {"StoreImm", 3, 1, 2},
	OpStoreMulFpFp:       {"StoreMulFpFp", 4, 3, 3},
	OpStoreMulFpImm:      {"StoreMulFpImm", 4, 2, 3},
	OpStoreDivFpFp:       {"StoreDivFpFp", 4, 3, 3},
	OpStoreDivFpImm:      {"StoreDivFpImm", 4, 2, 3},
	OpCallAbsImm:         {"CallAbsImm", 3, 0, 2},
	OpRet:                {"Ret", 1, 2, 0},
	OpJmpAbsImm:          {"JmpAbsImm", 2, 0, 1},
	OpJmpRelImm:          {"JmpRelImm", 2, 0, 1},
	OpJnzFpImm:           {"JnzFpImm", 3, 1, 2},
	OpU32StoreAddFpImm:   {"U32StoreAddFpImm", 5, 0, 4},
}

// Valid reports whether op is one of the sixteen defined opcodes.
func (op Opcode) Valid() bool {
	return op < opcodeCount
}

// Name returns the human-readable opcode name, e.g. "StoreAddFpFp".
func (op Opcode) Name() string {
	if !op.Valid() {
		return "Invalid"
	}
	return table[op].name
}

// String implements fmt.Stringer.
func (op Opcode) String() string { return op.Name() }

// SizeInM31s returns the total number of M31 slots this instruction
// occupies on the wire, including the opcode slot itself.
func (op Opcode) SizeInM31s() int {
	return table[op].sizeInM31
}

// SizeInQM31s returns ceil(SizeInM31s/4), the number of QM31 cells this
// instruction occupies in the runner's memory.
func (op Opcode) SizeInQM31s() int {
	n := op.SizeInM31s()
	return (n + 3) / 4
}

// OperandCount returns the number of declared operands this opcode
// takes, excluding the opcode slot itself (spec §3.2 table; spec §8.2's
// SizeMismatch scenario is expressed in these terms, not total slots).
func (op Opcode) OperandCount() int {
	return op.SizeInM31s() - 1
}

// MemoryAccesses returns the number of memory reads/writes performed when
// this instruction executes (spec §3.2 table; distinct from its own
// instruction-fetch size).
func (op Opcode) MemoryAccesses() int {
	return table[op].memoryAccesses
}

// Value returns the opcode as the small integer stored in byte 0 of its
// encoding.
func (op Opcode) Value() uint8 { return uint8(op) }
