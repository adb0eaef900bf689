package field

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestM31AddWraps(t *testing.T) {
	a := NewM31(P - 1)
	b := NewM31(5)
	assert.Equal(t, NewM31(4), a.Add(b)) // (P-1) + 5 == P+4, wraps to 4
}

func TestM31MulAndInv(t *testing.T) {
	for _, x := range []uint32{1, 2, 3, 12345, P - 1} {
		a := NewM31(x)
		if a.IsZero() {
			continue
		}
		inv := a.Inv()
		require.False(t, inv.IsZero())
		assert.True(t, a.Mul(inv).Equal(One()), "a*inv should be 1 for a=%d", x)
	}
}

func TestM31DivRoundTrip(t *testing.T) {
	a := NewM31(12345)
	b := NewM31(6789)
	q := a.Div(b)
	assert.True(t, q.Mul(b).Equal(a))
}

func TestM31NegZero(t *testing.T) {
	assert.True(t, Zero().Neg().IsZero())
	assert.True(t, NewM31(5).Neg().Add(NewM31(5)).IsZero())
}

func TestM31SignedRoundTrip(t *testing.T) {
	for _, x := range []int64{0, 1, -1, -3, 100, -100} {
		m := NewM31FromInt64(x)
		assert.Equal(t, x, m.Int64())
	}
}

func TestQM31EmbeddingAndProjection(t *testing.T) {
	x := NewM31(42)
	q := M31ToQM31(x)
	proj, ok := q.BaseFieldProjection()
	require.True(t, ok)
	assert.True(t, proj.Equal(x))

	nonTrivial := QM31{C0: x, C1: NewM31(1)}
	_, ok = nonTrivial.BaseFieldProjection()
	assert.False(t, ok)
}

func TestQM31ZeroAndAdd(t *testing.T) {
	z := QM31Zero()
	assert.True(t, z.IsZero())
	x := M31ToQM31(NewM31(7))
	assert.True(t, z.Add(x).Equal(x))
}
