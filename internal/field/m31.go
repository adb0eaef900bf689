// Package field implements the scalar arithmetic Cairo-M programs and the
// CASM instruction set are defined over: M31, the prime field of size
// 2^31-1, and its degree-4 extension QM31.
package field

import "strconv"

// P is the modulus of the Mersenne-31 prime field: 2^31 - 1.
const P uint32 = (1 << 31) - 1

// M31 is an element of the prime field of size P, always held in its
// canonical representative range [0, P).
type M31 struct {
	v uint32
}

// NewM31 reduces x modulo P and returns the canonical element.
func NewM31(x uint32) M31 {
	return M31{v: x % P}
}

// NewM31FromInt64 reduces a signed value modulo P, mapping negative inputs
// into [0, P) the way CASM's signed fp-relative offsets are embedded as
// field elements.
func NewM31FromInt64(x int64) M31 {
	m := x % int64(P)
	if m < 0 {
		m += int64(P)
	}
	return M31{v: uint32(m)}
}

// Zero is the additive identity.
func Zero() M31 { return M31{v: 0} }

// One is the multiplicative identity.
func One() M31 { return M31{v: 1} }

// Uint32 returns the canonical representative in [0, P).
func (a M31) Uint32() uint32 { return a.v }

// Int64 reinterprets the canonical representative as a signed two's
// complement value, i.e. representatives in (P/2, P) map to negative
// offsets. This is the inverse of NewM31FromInt64 for values that began
// life as small signed offsets.
func (a M31) Int64() int64 {
	if a.v > P/2 {
		return int64(a.v) - int64(P)
	}
	return int64(a.v)
}

// IsZero reports whether a is the additive identity.
func (a M31) IsZero() bool { return a.v == 0 }

// Equal reports whether a and b have the same canonical representative.
func (a M31) Equal(b M31) bool { return a.v == b.v }

// Add returns a+b mod P.
func (a M31) Add(b M31) M31 {
	s := uint64(a.v) + uint64(b.v)
	if s >= uint64(P) {
		s -= uint64(P)
	}
	return M31{v: uint32(s)}
}

// Sub returns a-b mod P.
func (a M31) Sub(b M31) M31 {
	if a.v >= b.v {
		return M31{v: a.v - b.v}
	}
	return M31{v: P - (b.v - a.v)}
}

// Neg returns -a mod P; zero maps to zero.
func (a M31) Neg() M31 {
	if a.v == 0 {
		return a
	}
	return M31{v: P - a.v}
}

// Mul returns a*b mod P, reducing the 64-bit product with a single
// Mersenne-prime fold since P = 2^31-1.
func (a M31) Mul(b M31) M31 {
	prod := uint64(a.v) * uint64(b.v)
	return M31{v: reduceMersenne31(prod)}
}

// reduceMersenne31 folds a 62-bit product into [0, P) using the identity
// 2^31 ≡ 1 (mod P).
func reduceMersenne31(x uint64) uint32 {
	lo := uint32(x & uint64(P))
	hi := uint32(x >> 31)
	s := lo + hi
	if s >= P {
		s -= P
	}
	return s
}

// Inv returns the multiplicative inverse of a via Fermat's little theorem
// (a^(P-2)). Panics if a is zero; callers must check IsZero first since
// the compiler-visible Div operation treats division by zero as a
// non-foldable case rather than a panic.
func (a M31) Inv() M31 {
	if a.v == 0 {
		panic("field: inverse of zero")
	}
	return a.Pow(uint64(P - 2))
}

// Pow returns a^e mod P via square-and-multiply.
func (a M31) Pow(e uint64) M31 {
	result := One()
	base := a
	for e > 0 {
		if e&1 == 1 {
			result = result.Mul(base)
		}
		base = base.Mul(base)
		e >>= 1
	}
	return result
}

// Div returns a/b mod P. Callers must ensure b is non-zero; the MIR
// constant evaluator (internal/mir/passes) is responsible for refusing to
// fold division by a zero literal rather than calling this with b==0.
func (a M31) Div(b M31) M31 {
	return a.Mul(b.Inv())
}

// String renders the canonical decimal representative.
func (a M31) String() string {
	return strconv.FormatUint(uint64(a.v), 10)
}
