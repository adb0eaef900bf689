package passes

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kkrt-labs/cairo-m-sub002/internal/mir"
)

func TestConstantPropagationIntoBinary(t *testing.T) {
	fn := mir.NewFunction("test", []mir.Type{mir.U32()})
	a := fn.AllocateValue(mir.U32())
	b := fn.AllocateValue(mir.U32())
	c := fn.AllocateValue(mir.U32())

	entry := fn.EntryBlock()
	entry.AddInstruction(mir.Assign(a, mir.LiteralValue(mir.IntLiteral(1)), mir.U32()))
	entry.AddInstruction(mir.Assign(b, mir.LiteralValue(mir.IntLiteral(2)), mir.U32()))
	entry.AddInstruction(mir.MakeBinaryOp(c, mir.BU32Add, mir.OperandValue(a), mir.OperandValue(b), mir.U32()))
	entry.SetTerminator(mir.Return([]mir.Value{mir.OperandValue(c)}))

	pass := NewConstantPropagation()
	require.True(t, pass.Run(fn))

	instr := entry.Instructions[2]
	assert.Equal(t, mir.LiteralValue(mir.IntLiteral(1)), instr.Left)
	assert.Equal(t, mir.LiteralValue(mir.IntLiteral(2)), instr.Right)
}

func TestConstantPropagationAcrossBlocks(t *testing.T) {
	fn := mir.NewFunction("test", []mir.Type{mir.Felt()})
	a := fn.AllocateValue(mir.Felt())
	c := fn.AllocateValue(mir.Felt())

	b0 := fn.EntryBlock()
	b1 := fn.AddBlock()

	b0.AddInstruction(mir.Assign(a, mir.LiteralValue(mir.IntLiteral(1)), mir.Felt()))
	b0.SetTerminator(mir.Jump(b1.ID))

	b1.AddInstruction(mir.MakeBinaryOp(c, mir.BAdd, mir.OperandValue(a), mir.LiteralValue(mir.IntLiteral(2)), mir.Felt()))
	b1.SetTerminator(mir.Return([]mir.Value{mir.OperandValue(c)}))
	fn.RecomputeEdges()

	pass := NewConstantPropagation()
	require.True(t, pass.Run(fn))

	instr := b1.Instructions[0]
	assert.Equal(t, mir.LiteralValue(mir.IntLiteral(1)), instr.Left)
	assert.Equal(t, mir.LiteralValue(mir.IntLiteral(2)), instr.Right)
}

func TestConstantPropagationPhiSameConstants(t *testing.T) {
	fn := mir.NewFunction("test", []mir.Type{mir.Felt()})
	p := fn.AllocateValue(mir.Felt())
	r := fn.AllocateValue(mir.Felt())

	b0 := fn.EntryBlock()
	b1 := fn.AddBlock()
	b0.SetTerminator(mir.Jump(b1.ID))

	b1.AddInstruction(mir.Phi(p, mir.Felt(), []mir.PhiSource{
		{Block: b0.ID, Value: mir.LiteralValue(mir.IntLiteral(5))},
		{Block: b0.ID, Value: mir.LiteralValue(mir.IntLiteral(5))},
	}))
	b1.AddInstruction(mir.MakeBinaryOp(r, mir.BAdd, mir.OperandValue(p), mir.LiteralValue(mir.IntLiteral(1)), mir.Felt()))
	b1.SetTerminator(mir.Return([]mir.Value{mir.OperandValue(r)}))
	fn.RecomputeEdges()

	pass := NewConstantPropagation()
	require.True(t, pass.Run(fn))

	instr := b1.Instructions[1]
	assert.Equal(t, mir.LiteralValue(mir.IntLiteral(5)), instr.Left)
	assert.Equal(t, mir.LiteralValue(mir.IntLiteral(1)), instr.Right)
}

func TestConstantPropagationPhiConflictingConstantsBecomesNonConst(t *testing.T) {
	fn := mir.NewFunction("test", []mir.Type{mir.Felt()})
	p := fn.AllocateValue(mir.Felt())
	r := fn.AllocateValue(mir.Felt())

	b0 := fn.EntryBlock()
	b1 := fn.AddBlock()
	b0.SetTerminator(mir.Jump(b1.ID))

	b1.AddInstruction(mir.Phi(p, mir.Felt(), []mir.PhiSource{
		{Block: b0.ID, Value: mir.LiteralValue(mir.IntLiteral(5))},
		{Block: b0.ID, Value: mir.LiteralValue(mir.IntLiteral(6))},
	}))
	b1.AddInstruction(mir.MakeBinaryOp(r, mir.BAdd, mir.OperandValue(p), mir.LiteralValue(mir.IntLiteral(1)), mir.Felt()))
	b1.SetTerminator(mir.Return([]mir.Value{mir.OperandValue(r)}))
	fn.RecomputeEdges()

	pass := NewConstantPropagation()
	pass.Run(fn)

	instr := b1.Instructions[1]
	assert.True(t, instr.Left.IsOperand(), "left should remain an operand when phi sources conflict")
}
