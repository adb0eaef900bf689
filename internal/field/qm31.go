package field

import "fmt"

// QM31 is an element of the degree-4 extension of M31, represented as its
// four M31 components. The core only relies on three properties of QM31
// (spec §3.1): it packs exactly 4 M31 slots, it has a canonical zero, and
// any M31 embeds as [x, 0, 0, 0] — so only componentwise zero/add/equality
// and the M31 embedding are implemented here; full extension-field
// multiplication is out of scope for the compiler/codegen/runner core.
type QM31 struct {
	C0, C1, C2, C3 M31
}

// QM31Zero is the canonical zero of the extension field.
func QM31Zero() QM31 {
	return QM31{}
}

// M31ToQM31 embeds an M31 scalar as [x, 0, 0, 0], the convention used to
// pack a single-slot CASM operand into the runner's QM31-addressed memory.
func M31ToQM31(x M31) QM31 {
	return QM31{C0: x}
}

// IsZero reports whether every component is zero.
func (q QM31) IsZero() bool {
	return q.C0.IsZero() && q.C1.IsZero() && q.C2.IsZero() && q.C3.IsZero()
}

// Add adds componentwise.
func (q QM31) Add(o QM31) QM31 {
	return QM31{
		C0: q.C0.Add(o.C0),
		C1: q.C1.Add(o.C1),
		C2: q.C2.Add(o.C2),
		C3: q.C3.Add(o.C3),
	}
}

// Equal compares componentwise canonical representatives.
func (q QM31) Equal(o QM31) bool {
	return q.C0.Equal(o.C0) && q.C1.Equal(o.C1) && q.C2.Equal(o.C2) && q.C3.Equal(o.C3)
}

// BaseFieldProjection returns (x, true) if q embeds an M31 scalar (i.e.
// q.C1==q.C2==q.C3==0), and (0, false) otherwise. The runner (C9) uses
// this to implement get_data, which traps with BaseFieldProjectionFailed
// when the non-trivial extension components are non-zero.
func (q QM31) BaseFieldProjection() (M31, bool) {
	if q.C1.IsZero() && q.C2.IsZero() && q.C3.IsZero() {
		return q.C0, true
	}
	return M31{}, false
}

// Components returns the four M31 limbs in order.
func (q QM31) Components() [4]M31 {
	return [4]M31{q.C0, q.C1, q.C2, q.C3}
}

// String renders the four components.
func (q QM31) String() string {
	return fmt.Sprintf("[%s,%s,%s,%s]", q.C0, q.C1, q.C2, q.C3)
}
