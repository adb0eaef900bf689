package passes

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kkrt-labs/cairo-m-sub002/internal/mir"
)

func TestConstFoldAggregateExtractTupleElement(t *testing.T) {
	fn := mir.NewFunction("test", []mir.Type{mir.Felt()})
	v1 := fn.AllocateValue(mir.Felt())
	v2 := fn.AllocateValue(mir.Felt())
	tupleTy := mir.Tuple(mir.Felt(), mir.Felt())
	tupleDest := fn.AllocateValue(tupleTy)
	extractDest := fn.AllocateValue(mir.Felt())

	entry := fn.EntryBlock()
	entry.AddInstruction(mir.Assign(v1, mir.LiteralValue(mir.IntLiteral(42)), mir.Felt()))
	entry.AddInstruction(mir.Assign(v2, mir.LiteralValue(mir.IntLiteral(24)), mir.Felt()))
	entry.AddInstruction(mir.MakeTuple(tupleDest, []mir.Value{mir.OperandValue(v1), mir.OperandValue(v2)}, tupleTy))
	entry.AddInstruction(mir.ExtractTupleElement(extractDest, mir.OperandValue(tupleDest), 0, mir.Felt()))
	entry.SetTerminator(mir.Return([]mir.Value{mir.OperandValue(extractDest)}))

	pass := NewConstFoldAggregate()
	changed := pass.foldBlock(entry)
	require.True(t, changed)

	require.Len(t, entry.Instructions, 4)
	last := entry.Instructions[3]
	assert.Equal(t, mir.KAssign, last.Kind)
	assert.Equal(t, extractDest, last.Dest)
	assert.Equal(t, mir.OperandValue(v1), last.Source)

	eliminated := pass.eliminateDeadAggregates(fn)
	assert.True(t, eliminated)
	assert.Len(t, entry.Instructions, 3)
}

func TestConstFoldAggregateExtractStructField(t *testing.T) {
	fn := mir.NewFunction("test", []mir.Type{mir.Felt()})
	xVal := fn.AllocateValue(mir.Felt())
	yVal := fn.AllocateValue(mir.Felt())
	structTy := mir.Struct("Point", mir.StructField{Name: "x", Type: mir.Felt()}, mir.StructField{Name: "y", Type: mir.Felt()})
	structDest := fn.AllocateValue(structTy)
	extractDest := fn.AllocateValue(mir.Felt())

	entry := fn.EntryBlock()
	entry.AddInstruction(mir.Assign(xVal, mir.LiteralValue(mir.IntLiteral(10)), mir.Felt()))
	entry.AddInstruction(mir.Assign(yVal, mir.LiteralValue(mir.IntLiteral(20)), mir.Felt()))
	entry.AddInstruction(mir.MakeStruct(structDest, "Point", []mir.StructFieldValue{
		{Name: "x", Value: mir.OperandValue(xVal)},
		{Name: "y", Value: mir.OperandValue(yVal)},
	}, structTy))
	entry.AddInstruction(mir.ExtractStructField(extractDest, mir.OperandValue(structDest), "x", mir.Felt()))
	entry.SetTerminator(mir.Return([]mir.Value{mir.OperandValue(extractDest)}))

	pass := NewConstFoldAggregate()
	changed := pass.foldBlock(entry)
	require.True(t, changed)

	require.Len(t, entry.Instructions, 4)
	last := entry.Instructions[3]
	assert.Equal(t, mir.KAssign, last.Kind)
	assert.Equal(t, extractDest, last.Dest)
	assert.Equal(t, mir.OperandValue(xVal), last.Source)
}

func TestConstFoldAggregateDeadAggregateElimination(t *testing.T) {
	fn := mir.NewFunction("test", nil)
	tupleTy := mir.Tuple(mir.Felt(), mir.Felt())
	unusedTuple := fn.AllocateValue(tupleTy)

	entry := fn.EntryBlock()
	entry.AddInstruction(mir.MakeTuple(unusedTuple, []mir.Value{mir.LiteralValue(mir.IntLiteral(1)), mir.LiteralValue(mir.IntLiteral(2))}, tupleTy))
	entry.SetTerminator(mir.Return(nil))

	pass := NewConstFoldAggregate()
	changed := pass.Run(fn)
	require.True(t, changed)
	assert.Empty(t, entry.Instructions)
}

func TestConstFoldAggregateInsertField(t *testing.T) {
	fn := mir.NewFunction("test", nil)
	structTy := mir.Struct("Data", mir.StructField{Name: "a", Type: mir.Felt()}, mir.StructField{Name: "b", Type: mir.Felt()})
	struct1 := fn.AllocateValue(structTy)
	struct2 := fn.AllocateValue(structTy)
	newVal := fn.AllocateValue(mir.Felt())

	entry := fn.EntryBlock()
	entry.AddInstruction(mir.MakeStruct(struct1, "Data", []mir.StructFieldValue{
		{Name: "a", Value: mir.LiteralValue(mir.IntLiteral(1))},
		{Name: "b", Value: mir.LiteralValue(mir.IntLiteral(2))},
	}, structTy))
	entry.AddInstruction(mir.Assign(newVal, mir.LiteralValue(mir.IntLiteral(99)), mir.Felt()))
	entry.AddInstruction(mir.InsertField(struct2, mir.OperandValue(struct1), "a", mir.OperandValue(newVal), structTy))
	entry.SetTerminator(mir.Return(nil))

	pass := NewConstFoldAggregate()
	changed := pass.foldBlock(entry)
	require.True(t, changed)

	require.Len(t, entry.Instructions, 3)
	last := entry.Instructions[2]
	require.Equal(t, mir.KMakeStruct, last.Kind)
	assert.Equal(t, struct2, last.Dest)
	aField, ok := findStructField(last.StructFields, "a")
	require.True(t, ok)
	assert.Equal(t, mir.OperandValue(newVal), aField)
	bField, ok := findStructField(last.StructFields, "b")
	require.True(t, ok)
	assert.Equal(t, mir.LiteralValue(mir.IntLiteral(2)), bField)
}

func TestConstFoldAggregateInsertTuple(t *testing.T) {
	fn := mir.NewFunction("test", nil)
	tupleTy := mir.Tuple(mir.Felt(), mir.Felt())
	tuple1 := fn.AllocateValue(tupleTy)
	tuple2 := fn.AllocateValue(tupleTy)
	newVal := fn.AllocateValue(mir.Felt())

	entry := fn.EntryBlock()
	entry.AddInstruction(mir.MakeTuple(tuple1, []mir.Value{mir.LiteralValue(mir.IntLiteral(1)), mir.LiteralValue(mir.IntLiteral(2))}, tupleTy))
	entry.AddInstruction(mir.Assign(newVal, mir.LiteralValue(mir.IntLiteral(77)), mir.Felt()))
	entry.AddInstruction(mir.InsertTuple(tuple2, mir.OperandValue(tuple1), 1, mir.OperandValue(newVal), tupleTy))
	entry.SetTerminator(mir.Return(nil))

	pass := NewConstFoldAggregate()
	changed := pass.foldBlock(entry)
	require.True(t, changed)

	last := entry.Instructions[2]
	require.Equal(t, mir.KMakeTuple, last.Kind)
	assert.Equal(t, tuple2, last.Dest)
	assert.Equal(t, mir.LiteralValue(mir.IntLiteral(1)), last.TupleElems[0])
	assert.Equal(t, mir.OperandValue(newVal), last.TupleElems[1])
}
