package isa

import (
	"fmt"

	"github.com/kkrt-labs/cairo-m-sub002/internal/field"
)

// Instruction is a fully-decoded CASM instruction: an opcode plus its
// operands in declaration order (spec §3.2). Operand semantics vary by
// opcode; use the typed constructors below to build one, and Operands to
// read it back generically.
type Instruction struct {
	Op       Opcode
	operands []field.M31
}

// Operands returns the operand list, excluding the opcode itself.
func (i Instruction) Operands() []field.M31 {
	return i.operands
}

// Name returns the human string for this instruction's opcode.
func (i Instruction) Name() string { return i.Op.Name() }

// ToM31Vec emits the flat M31 vector form: [opcode, operand0, operand1, ...].
func (i Instruction) ToM31Vec() []field.M31 {
	out := make([]field.M31, 0, i.Op.SizeInM31s())
	out = append(out, field.NewM31(uint32(i.Op.Value())))
	out = append(out, i.operands...)
	return out
}

// ToQM31Vec emits the QM31-packed form: the M31 vector chunked into
// groups of 4, zero-padding the final chunk's unused slots.
func (i Instruction) ToQM31Vec() []field.QM31 {
	m31s := i.ToM31Vec()
	n := i.Op.SizeInQM31s()
	out := make([]field.QM31, n)
	for chunk := 0; chunk < n; chunk++ {
		var q field.QM31
		base := chunk * 4
		limbs := [4]*field.M31{&q.C0, &q.C1, &q.C2, &q.C3}
		for j := 0; j < 4; j++ {
			idx := base + j
			if idx < len(m31s) {
				*limbs[j] = m31s[idx]
			}
		}
		out[chunk] = q
	}
	return out
}

// Format renders a debug string, e.g. "StoreAddFpFp[1 2 3]".
func (i Instruction) Format() string {
	ops := make([]interface{}, len(i.operands))
	for idx, o := range i.operands {
		ops[idx] = o.String()
	}
	return fmt.Sprintf("%s%v", i.Op.Name(), ops)
}

func (i Instruction) String() string { return i.Format() }

// --- typed constructors --------------------------------------------------

func imm(i int64) field.M31 { return field.NewM31FromInt64(i) }

// NewStoreAddFpFp builds `[dst_off] = [src0_off] + [src1_off]`.
func NewStoreAddFpFp(src0Off, src1Off, dstOff int64) Instruction {
	return Instruction{Op: OpStoreAddFpFp, operands: []field.M31{imm(src0Off), imm(src1Off), imm(dstOff)}}
}

// NewStoreAddFpImm builds `[dst_off] = [src_off] + imm`.
func NewStoreAddFpImm(srcOff int64, immediate int64, dstOff int64) Instruction {
	return Instruction{Op: OpStoreAddFpImm, operands: []field.M31{imm(srcOff), imm(immediate), imm(dstOff)}}
}

// NewStoreSubFpFp builds `[dst_off] = [src0_off] - [src1_off]`.
func NewStoreSubFpFp(src0Off, src1Off, dstOff int64) Instruction {
	return Instruction{Op: OpStoreSubFpFp, operands: []field.M31{imm(src0Off), imm(src1Off), imm(dstOff)}}
}

// NewStoreSubFpImm builds `[dst_off] = [src_off] - imm`.
func NewStoreSubFpImm(srcOff int64, immediate int64, dstOff int64) Instruction {
	return Instruction{Op: OpStoreSubFpImm, operands: []field.M31{imm(srcOff), imm(immediate), imm(dstOff)}}
}

// NewStoreDoubleDerefFp builds `[dst_off] = [[base_off] + offset]`.
func NewStoreDoubleDerefFp(baseOff, offset, dstOff int64) Instruction {
	return Instruction{Op: OpStoreDoubleDerefFp, operands: []field.M31{imm(baseOff), imm(offset), imm(dstOff)}}
}

// NewStoreImm builds `[dst_off] = imm`.
func NewStoreImm(immediate int64, dstOff int64) Instruction {
	return Instruction{Op: OpStoreImm, operands: []field.M31{imm(immediate), imm(dstOff)}}
}

// NewStoreMulFpFp builds `[dst_off] = [src0_off] * [src1_off]`.
func NewStoreMulFpFp(src0Off, src1Off, dstOff int64) Instruction {
	return Instruction{Op: OpStoreMulFpFp, operands: []field.M31{imm(src0Off), imm(src1Off), imm(dstOff)}}
}

// NewStoreMulFpImm builds `[dst_off] = [src_off] * imm`.
func NewStoreMulFpImm(srcOff int64, immediate int64, dstOff int64) Instruction {
	return Instruction{Op: OpStoreMulFpImm, operands: []field.M31{imm(srcOff), imm(immediate), imm(dstOff)}}
}

// NewStoreDivFpFp builds `[dst_off] = [src0_off] / [src1_off]`.
func NewStoreDivFpFp(src0Off, src1Off, dstOff int64) Instruction {
	return Instruction{Op: OpStoreDivFpFp, operands: []field.M31{imm(src0Off), imm(src1Off), imm(dstOff)}}
}

// NewStoreDivFpImm builds `[dst_off] = [src_off] / imm`.
func NewStoreDivFpImm(srcOff int64, immediate int64, dstOff int64) Instruction {
	return Instruction{Op: OpStoreDivFpImm, operands: []field.M31{imm(srcOff), imm(immediate), imm(dstOff)}}
}

// NewCallAbsImm builds a call whose callee frame pointer is the caller's
// fp plus frameOff, jumping to the absolute target pc.
func NewCallAbsImm(frameOff int64, target int64) Instruction {
	return Instruction{Op: OpCallAbsImm, operands: []field.M31{imm(frameOff), imm(target)}}
}

// NewRet builds a return instruction.
func NewRet() Instruction {
	return Instruction{Op: OpRet}
}

// NewJmpAbsImm builds an unconditional absolute jump.
func NewJmpAbsImm(target int64) Instruction {
	return Instruction{Op: OpJmpAbsImm, operands: []field.M31{imm(target)}}
}

// NewJmpRelImm builds an unconditional relative jump.
func NewJmpRelImm(offset int64) Instruction {
	return Instruction{Op: OpJmpRelImm, operands: []field.M31{imm(offset)}}
}

// NewJnzFpImm builds a conditional relative jump: jump by offset if
// [cond_off] != 0.
func NewJnzFpImm(condOff int64, offset int64) Instruction {
	return Instruction{Op: OpJnzFpImm, operands: []field.M31{imm(condOff), imm(offset)}}
}

// NewU32StoreAddFpImm builds the 32-bit-immediate add: [dst_off] =
// [src_off] + (imm_hi<<16 | imm_lo), operating on U32 limb pairs.
func NewU32StoreAddFpImm(srcOff int64, immHi, immLo uint32, dstOff int64) Instruction {
	return Instruction{
		Op: OpU32StoreAddFpImm,
		operands: []field.M31{
			imm(srcOff),
			field.NewM31(immHi),
			field.NewM31(immLo),
			imm(dstOff),
		},
	}
}
