package isa

import (
	"github.com/pkg/errors"

	"github.com/kkrt-labs/cairo-m-sub002/internal/field"
)

// FromM31Slice decodes an Instruction from a slice whose first element is
// the opcode and whose remainder must exactly match that opcode's
// declared operand count (spec §3.2 decode rules). SizeMismatch is
// reported in operand-count terms (the opcode slot itself doesn't
// count), matching spec §8.2's worked example: decoding
// `StoreAddFpFp`'s 3 declared operands from only 1 supplied operand
// reports SizeMismatch{expected:3, found:1}, not total-slot counts.
//
// An empty slice is treated as SizeMismatch{expected:1, found:0} — there
// is always at least the opcode slot to read — before any opcode value
// can even be examined, matching the concrete scenario in spec §8.2.
func FromM31Slice(s []field.M31) (Instruction, error) {
	if len(s) == 0 {
		return Instruction{}, errors.WithStack(&SizeMismatchError{Expected: 1, Found: 0})
	}

	opVal := s[0].Uint32()
	if opVal >= uint32(opcodeCount) {
		return Instruction{}, errors.WithStack(&InvalidOpcodeError{Value: opVal})
	}
	op := Opcode(opVal)

	expected := op.OperandCount()
	found := len(s) - 1
	if found != expected {
		return Instruction{}, errors.WithStack(&SizeMismatchError{Expected: expected, Found: found})
	}

	operands := make([]field.M31, len(s)-1)
	copy(operands, s[1:])
	return Instruction{Op: op, operands: operands}, nil
}

// FromQM31Slice unpacks the QM31-packed wire form back into M31 slots
// (zero-padding inclusive, per the chunking contract in ToQM31Vec) and
// decodes an Instruction from it. Decoding may need fewer slots than
// 4*len(s); trailing zero padding is simply ignored once the opcode's
// declared size is known.
func FromQM31Slice(qs []field.QM31) (Instruction, error) {
	if len(qs) == 0 {
		return Instruction{}, errors.WithStack(&SizeMismatchError{Expected: 1, Found: 0})
	}
	opVal := qs[0].C0.Uint32()
	if opVal >= uint32(opcodeCount) {
		return Instruction{}, errors.WithStack(&InvalidOpcodeError{Value: opVal})
	}
	op := Opcode(opVal)
	total := op.SizeInM31s()

	flat := make([]field.M31, 0, len(qs)*4)
	for _, q := range qs {
		c := q.Components()
		flat = append(flat, c[0], c[1], c[2], c[3])
	}
	if len(flat) < total {
		return Instruction{}, errors.WithStack(&SizeMismatchError{Expected: op.OperandCount(), Found: len(flat) - 1})
	}
	return FromM31Slice(flat[:total])
}
