package marshal

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kkrt-labs/cairo-m-sub002/internal/field"
	"github.com/kkrt-labs/cairo-m-sub002/internal/mir"
	"github.com/kkrt-labs/cairo-m-sub002/internal/runner"
)

func TestMarshalArgsThenUnmarshalReturnsRoundTripsScalars(t *testing.T) {
	mem := runner.NewMemory()
	fp := field.NewM31(100)

	paramTypes := []mir.Type{mir.Felt(), mir.U32(), mir.Bool()}
	returnTypes := []mir.Type{mir.Felt()}

	err := MarshalArgs(mem, fp, paramTypes, returnTypes, []Value{
		FeltValue(7),
		U32Value(0x0001FFFF),
		BoolValue(true),
	})
	require.NoError(t, err)

	// M = 1+2+1 = 4, K = 1, argsOffset = -(2+1+4) = -7.
	feltAddr := fp.Add(field.NewM31FromInt64(-7))
	v, err := mem.GetData(feltAddr)
	require.NoError(t, err)
	assert.Equal(t, uint32(7), v.Uint32())

	// Simulate the callee writing its single return value, then read it back.
	retAddr := fp.Add(field.NewM31FromInt64(-3)) // -(2+K) = -3
	require.NoError(t, mem.Insert(retAddr, field.M31ToQM31(field.NewM31(42))))

	results, err := UnmarshalReturns(mem, fp, paramTypes, returnTypes)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, uint32(42), results[0].Felt)
}

func TestMarshalArgsWritesU32AsLoHiPair(t *testing.T) {
	mem := runner.NewMemory()
	fp := field.NewM31(100)

	paramTypes := []mir.Type{mir.U32()}
	err := MarshalArgs(mem, fp, paramTypes, nil, []Value{U32Value(0xABCD1234)})
	require.NoError(t, err)

	// M=2, K=0: argsOffset = -(2+0+2) = -4.
	addr := fp.Add(field.NewM31FromInt64(-4))
	lo, err := mem.GetData(addr)
	require.NoError(t, err)
	hi, err := mem.GetData(addr.Add(field.One()))
	require.NoError(t, err)
	assert.Equal(t, uint32(0xABCD1234), lo.Uint32()|hi.Uint32()<<16)
}

func TestMarshalArgsRejectsArityMismatch(t *testing.T) {
	mem := runner.NewMemory()
	fp := field.NewM31(100)

	err := MarshalArgs(mem, fp, []mir.Type{mir.Felt(), mir.Felt()}, nil, []Value{FeltValue(1)})
	require.Error(t, err)
	var mismatch *InputMismatchError
	assert.ErrorAs(t, err, &mismatch)
}

func TestMarshalArgsRejectsKindMismatch(t *testing.T) {
	mem := runner.NewMemory()
	fp := field.NewM31(100)

	err := MarshalArgs(mem, fp, []mir.Type{mir.Felt()}, nil, []Value{BoolValue(true)})
	require.Error(t, err)
	var mismatch *InputMismatchError
	assert.ErrorAs(t, err, &mismatch)
}

func TestUnmarshalReturnsTupleAndStruct(t *testing.T) {
	mem := runner.NewMemory()
	fp := field.NewM31(100)

	tupleTy := mir.Tuple(mir.Felt(), mir.Bool())
	structTy := mir.Struct("Point", mir.StructField{Name: "x", Type: mir.Felt()}, mir.StructField{Name: "y", Type: mir.Felt()})
	returnTypes := []mir.Type{tupleTy, structTy}

	// K = 2 (tuple) + 2 (struct) = 4. retOffset = -(2+4) = -6.
	base := fp.Add(field.NewM31FromInt64(-6))
	require.NoError(t, mem.Insert(base, field.M31ToQM31(field.NewM31(9))))
	require.NoError(t, mem.Insert(base.Add(field.NewM31(1)), field.M31ToQM31(field.NewM31(1))))
	require.NoError(t, mem.Insert(base.Add(field.NewM31(2)), field.M31ToQM31(field.NewM31(10))))
	require.NoError(t, mem.Insert(base.Add(field.NewM31(3)), field.M31ToQM31(field.NewM31(20))))

	results, err := UnmarshalReturns(mem, fp, nil, returnTypes)
	require.NoError(t, err)
	require.Len(t, results, 2)

	assert.Equal(t, uint32(9), results[0].Elements[0].Felt)
	assert.True(t, results[0].Elements[1].Bool)
	assert.Equal(t, uint32(10), results[1].Fields["x"].Felt)
	assert.Equal(t, uint32(20), results[1].Fields["y"].Felt)
}

func TestUnmarshalReturnsFixedArrayFollowsPointer(t *testing.T) {
	mem := runner.NewMemory()
	fp := field.NewM31(100)

	arrTy := mir.FixedArray(mir.Felt(), 3)
	returnTypes := []mir.Type{arrTy}

	// Backing storage lives anywhere; here, far above the frame.
	backing := field.NewM31(500)
	require.NoError(t, mem.Insert(backing, field.M31ToQM31(field.NewM31(1))))
	require.NoError(t, mem.Insert(backing.Add(field.NewM31(1)), field.M31ToQM31(field.NewM31(2))))
	require.NoError(t, mem.Insert(backing.Add(field.NewM31(2)), field.M31ToQM31(field.NewM31(3))))

	// K=1 (pointer). retOffset = -(2+1) = -3.
	ptrAddr := fp.Add(field.NewM31FromInt64(-3))
	require.NoError(t, mem.Insert(ptrAddr, field.M31ToQM31(backing)))

	results, err := UnmarshalReturns(mem, fp, nil, returnTypes)
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.Len(t, results[0].Elements, 3)
	assert.Equal(t, uint32(1), results[0].Elements[0].Felt)
	assert.Equal(t, uint32(2), results[0].Elements[1].Felt)
	assert.Equal(t, uint32(3), results[0].Elements[2].Felt)
}
