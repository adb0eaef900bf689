package layout

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kkrt-labs/cairo-m-sub002/internal/mir"
)

func TestNewForFunctionPlacesArgsBelowReturnArea(t *testing.T) {
	fn := mir.NewFunction("add_u32", []mir.Type{mir.U32()})
	a := fn.AddParam(mir.Felt())
	b := fn.AddParam(mir.U32())

	l, err := NewForFunction(fn)
	require.NoError(t, err)

	// M = 1 (felt) + 2 (u32) = 3, K = 2 (u32 return).
	assert.Equal(t, 2, l.NumReturnSlots())

	aOff, err := l.GetOffset(a)
	require.NoError(t, err)
	assert.Equal(t, int64(-7), aOff) // -(2+K+M) = -(2+2+3) = -7

	bOff, err := l.GetOffset(b)
	require.NoError(t, err)
	assert.Equal(t, int64(-6), bOff) // immediately after a's single slot

	bSize, err := l.GetValueSize(b)
	require.NoError(t, err)
	assert.Equal(t, 2, bSize)

	assert.True(t, l.IsContiguous(b, -6, 2))
	assert.False(t, l.IsContiguous(b, -6, 1))
	assert.False(t, l.IsContiguous(a, -6, 1))
}

func TestAllocateValueGrowsLocalsUpwardFromZero(t *testing.T) {
	l := New()
	v1 := mir.ValueID(10)
	v2 := mir.ValueID(11)

	off1, err := l.AllocateValue(v1, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(0), off1)

	off2, err := l.AllocateValue(v2, 2)
	require.NoError(t, err)
	assert.Equal(t, int64(1), off2)

	assert.Equal(t, int64(3), l.CurrentFrameUsage())
}

func TestAllocateValueDoubleBindingIsAnError(t *testing.T) {
	l := New()
	v := mir.ValueID(1)
	_, err := l.AllocateValue(v, 1)
	require.NoError(t, err)

	_, err = l.AllocateValue(v, 1)
	require.Error(t, err)
	var layoutErr *LayoutError
	assert.ErrorAs(t, err, &layoutErr)
}

func TestGetOffsetMissingBindingIsAnError(t *testing.T) {
	l := New()
	_, err := l.GetOffset(mir.ValueID(99))
	require.Error(t, err)
	var layoutErr *LayoutError
	assert.ErrorAs(t, err, &layoutErr)
}

func TestReserveStackAdvancesUsageWithoutBinding(t *testing.T) {
	l := New()
	off := l.ReserveStack(4)
	assert.Equal(t, int64(0), off)
	assert.Equal(t, int64(4), l.CurrentFrameUsage())

	v := mir.ValueID(1)
	nextOff, err := l.AllocateValue(v, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(4), nextOff)
}

func TestMapValueBindsCallDestinationsOntoReturnArea(t *testing.T) {
	l := New()
	dest := mir.ValueID(5)
	require.NoError(t, l.MapValue(dest, 3, 1))

	off, err := l.GetOffset(dest)
	require.NoError(t, err)
	assert.Equal(t, int64(3), off)
	assert.True(t, l.IsContiguous(dest, 3, 1))
}

func TestMaxWrittenOffsetAndLiveFrameUsage(t *testing.T) {
	l := New()
	assert.Equal(t, int64(0), l.MaxWrittenOffset())

	l.RecordWrite(2, 2) // writes offsets 2,3
	assert.Equal(t, int64(3), l.MaxWrittenOffset())

	_, err := l.AllocateValue(mir.ValueID(1), 1)
	require.NoError(t, err)
	assert.Equal(t, int64(1), l.CurrentFrameUsage())

	// live frame usage is the larger of current_frame_usage and one past
	// the last written offset.
	assert.Equal(t, int64(4), l.LiveFrameUsage())
}
