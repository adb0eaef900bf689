package runner

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kkrt-labs/cairo-m-sub002/internal/field"
	"github.com/kkrt-labs/cairo-m-sub002/internal/isa"
)

// loadProgram writes instrs contiguously starting at address 0, without
// adding trace entries (program loading is not itself an instruction
// fetch), and returns the pc just past the last instruction.
func loadProgram(t *testing.T, mem *Memory, instrs []isa.Instruction) uint32 {
	t.Helper()
	var pc uint32
	for _, instr := range instrs {
		for _, w := range instr.ToQM31Vec() {
			require.NoError(t, mem.InsertNoTrace(field.NewM31(pc), w))
			pc++
		}
	}
	return pc
}

func TestRunnerReturnLiteralWritesReturnSlot(t *testing.T) {
	mem := NewMemory()
	loadProgram(t, mem, []isa.Instruction{
		isa.NewStoreImm(7, -3),
		isa.NewRet(),
	})

	r := NewRunner(mem)
	fp := field.NewM31(100)
	halt := field.NewM31(999999)
	require.NoError(t, r.PrepareEntrypoint(field.NewM31(0), fp, halt))

	steps, err := r.Run(halt, 16)
	require.NoError(t, err)
	assert.Equal(t, 2, steps)

	result, err := mem.GetData(fp.Sub(field.NewM31(3)))
	require.NoError(t, err)
	assert.Equal(t, uint32(7), result.Uint32())
}

func TestRunnerFeltArithmeticFpFp(t *testing.T) {
	mem := NewMemory()
	loadProgram(t, mem, []isa.Instruction{
		isa.NewStoreAddFpFp(0, 1, 2), // [fp+2] = [fp+0] + [fp+1]
		isa.NewRet(),
	})

	fp := field.NewM31(50)
	require.NoError(t, mem.InsertNoTrace(fp, field.M31ToQM31(field.NewM31(3))))
	require.NoError(t, mem.InsertNoTrace(fp.Add(field.NewM31(1)), field.M31ToQM31(field.NewM31(4))))

	r := NewRunner(mem)
	halt := field.NewM31(999999)
	require.NoError(t, r.PrepareEntrypoint(field.NewM31(0), fp, halt))
	_, err := r.Run(halt, 16)
	require.NoError(t, err)

	result, err := mem.GetData(fp.Add(field.NewM31(2)))
	require.NoError(t, err)
	assert.Equal(t, uint32(7), result.Uint32())
}

func TestRunnerU32StoreAddFpImmWraps(t *testing.T) {
	mem := NewMemory()
	loadProgram(t, mem, []isa.Instruction{
		isa.NewU32StoreAddFpImm(0, 0xFFFF, 0xFFFF, 2),
		isa.NewRet(),
	})

	fp := field.NewM31(50)
	// src u32 value = 0xFFFFFFFF (lo=0xFFFF, hi=0xFFFF).
	require.NoError(t, mem.InsertNoTrace(fp, field.M31ToQM31(field.NewM31(0xFFFF))))
	require.NoError(t, mem.InsertNoTrace(fp.Add(field.NewM31(1)), field.M31ToQM31(field.NewM31(0xFFFF))))

	r := NewRunner(mem)
	halt := field.NewM31(999999)
	require.NoError(t, r.PrepareEntrypoint(field.NewM31(0), fp, halt))
	_, err := r.Run(halt, 16)
	require.NoError(t, err)

	// 0xFFFFFFFF + 0xFFFFFFFF wraps to 0xFFFFFFFE.
	lo, err := mem.GetData(fp.Add(field.NewM31(2)))
	require.NoError(t, err)
	hi, err := mem.GetData(fp.Add(field.NewM31(3)))
	require.NoError(t, err)
	assert.Equal(t, uint32(0xFFFFFFFE), lo.Uint32()|hi.Uint32()<<16)
}

func TestRunnerCallAndRetRestoreCallerFrame(t *testing.T) {
	mem := NewMemory()
	// callee: return literal 5 into its return slot (-3), then Ret.
	calleeStart := uint32(0)
	callee := []isa.Instruction{
		isa.NewStoreImm(5, -3),
		isa.NewRet(),
	}
	// caller: CallAbsImm(frame_off=3, target=calleeStart), then Ret.
	caller := []isa.Instruction{
		isa.NewCallAbsImm(3, int64(calleeStart)),
		isa.NewRet(),
	}
	var all []isa.Instruction
	all = append(all, callee...)
	all = append(all, caller...)
	loadProgram(t, mem, all)

	// caller's own instructions start right after the callee's.
	callerPC := uint32(0)
	for _, instr := range callee {
		callerPC += uint32(instr.Op.SizeInQM31s())
	}

	r := NewRunner(mem)
	fp := field.NewM31(100)
	halt := field.NewM31(999999)
	require.NoError(t, r.PrepareEntrypoint(field.NewM31(callerPC), fp, halt))

	_, err := r.Run(halt, 16)
	require.NoError(t, err)

	// caller's fp is restored after the callee returns.
	assert.Equal(t, fp.Uint32(), r.FP.Uint32())

	// the callee wrote its return value at calleeFP-3 = (fp+3)-3 = fp.
	result, err := mem.GetData(fp)
	require.NoError(t, err)
	assert.Equal(t, uint32(5), result.Uint32())
}

func TestRunnerJnzBranchesOnNonzero(t *testing.T) {
	mem := NewMemory()
	loadProgram(t, mem, []isa.Instruction{
		isa.NewJnzFpImm(0, 2), // if [fp+0] != 0, skip the next instr
		isa.NewStoreImm(111, 1),
		isa.NewStoreImm(222, 1),
		isa.NewRet(),
	})

	fp := field.NewM31(50)
	require.NoError(t, mem.InsertNoTrace(fp, field.M31ToQM31(field.NewM31(1))))

	r := NewRunner(mem)
	halt := field.NewM31(999999)
	require.NoError(t, r.PrepareEntrypoint(field.NewM31(0), fp, halt))
	_, err := r.Run(halt, 16)
	require.NoError(t, err)

	result, err := mem.GetData(fp.Add(field.NewM31(1)))
	require.NoError(t, err)
	assert.Equal(t, uint32(222), result.Uint32())
}

func TestRunnerGetInstructionFromUninitializedCellErrors(t *testing.T) {
	mem := NewMemory()
	_, err := mem.GetInstruction(field.NewM31(0))
	require.Error(t, err)
	var uninit *UninitializedMemoryCellError
	assert.ErrorAs(t, err, &uninit)
	assert.Equal(t, uint32(0), uninit.Addr)
}

func TestRunnerGetDataFromUnwrittenCellDefaultsToZero(t *testing.T) {
	mem := NewMemory()
	v, err := mem.GetData(field.NewM31(12345))
	require.NoError(t, err)
	assert.True(t, v.IsZero())
}

func TestRunnerGetDataRejectsNonTrivialExtension(t *testing.T) {
	mem := NewMemory()
	q := field.QM31{C0: field.NewM31(1), C1: field.NewM31(2)}
	require.NoError(t, mem.InsertNoTrace(field.NewM31(7), q))

	_, err := mem.GetData(field.NewM31(7))
	require.Error(t, err)
	var projErr *BaseFieldProjectionFailedError
	assert.ErrorAs(t, err, &projErr)
	assert.Equal(t, uint32(7), projErr.Addr)
}

func TestRunnerInsertRejectsOutOfBoundsAddress(t *testing.T) {
	mem := NewMemory()
	err := mem.Insert(field.NewM31(1<<30), field.QM31Zero())
	require.Error(t, err)
	var oob *AddressOutOfBoundsError
	assert.ErrorAs(t, err, &oob)
}

func TestRunnerInsertSliceIsAllOrNothing(t *testing.T) {
	mem := NewMemory()
	vals := []field.QM31{field.M31ToQM31(field.NewM31(1)), field.M31ToQM31(field.NewM31(2))}

	err := mem.InsertSlice(field.NewM31((1<<30)-1), vals)
	require.Error(t, err)

	// The in-bounds first element must not have been written.
	v, err := mem.GetData(field.NewM31((1 << 30) - 1))
	require.NoError(t, err)
	assert.True(t, v.IsZero())
}

func TestRunnerInsertSliceAddsOneTraceEntryPerElement(t *testing.T) {
	mem := NewMemory()
	vals := []field.QM31{
		field.M31ToQM31(field.NewM31(10)),
		field.M31ToQM31(field.NewM31(20)),
		field.M31ToQM31(field.NewM31(30)),
	}
	require.NoError(t, mem.InsertSlice(field.NewM31(0), vals))
	require.Len(t, mem.Trace, 3)
	assert.Equal(t, uint32(0), mem.Trace[0].Addr)
	assert.Equal(t, uint32(2), mem.Trace[2].Addr)
}

func TestRunnerSerializeTraceLengthMatchesEntryCount(t *testing.T) {
	mem := NewMemory()
	require.NoError(t, mem.Insert(field.NewM31(0), field.M31ToQM31(field.NewM31(1))))
	require.NoError(t, mem.Insert(field.NewM31(1), field.M31ToQM31(field.NewM31(2))))
	_, err := mem.GetData(field.NewM31(0))
	require.NoError(t, err)

	assert.Len(t, mem.Trace, 3)
	assert.Len(t, mem.SerializeTrace(), 3*20)
}

func TestRunnerPrepareEntrypointWritesCallFrameWithoutTrace(t *testing.T) {
	mem := NewMemory()
	fp := field.NewM31(100)
	halt := field.NewM31(999999)
	r := NewRunner(mem)
	require.NoError(t, r.PrepareEntrypoint(field.NewM31(0), fp, halt))

	assert.Empty(t, mem.Trace)

	savedFP, err := mem.GetData(fp.Sub(field.NewM31(2)))
	require.NoError(t, err)
	assert.Equal(t, fp.Uint32(), savedFP.Uint32())

	savedPC, err := mem.GetData(fp.Sub(field.One()))
	require.NoError(t, err)
	assert.Equal(t, halt.Uint32(), savedPC.Uint32())
}
