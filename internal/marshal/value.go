// Package marshal implements the host/VM value boundary (spec §4.10): it
// writes host-side typed values into a callee's argument region per the
// call ABI and reconstructs typed values from a return region on exit.
// It plays the same role as wazero's api package converting between Go
// values and wasm's flat uint64 stack slots, generalized to this
// project's richer composite types (Tuple, Struct, FixedArray).
package marshal

import (
	"github.com/kkrt-labs/cairo-m-sub002/internal/mir"
)

// Value is a host-side typed value, tagged the same way mir.Type is: one
// struct, fields meaningful by Kind (mirrors mir.Type's own "tagged union
// as one struct" idiom).
type Value struct {
	Kind mir.TypeKind

	Felt uint32
	Bool bool
	U32  uint32

	// Tuple elements / FixedArray elements, in order.
	Elements []Value

	// Struct fields, keyed by field name (read/written positionally per
	// the type's own Fields order, not map iteration order).
	Fields map[string]Value
}

func FeltValue(v uint32) Value { return Value{Kind: mir.KindFelt, Felt: v} }
func BoolValue(v bool) Value   { return Value{Kind: mir.KindBool, Bool: v} }
func U32Value(v uint32) Value  { return Value{Kind: mir.KindU32, U32: v} }
func UnitValue() Value         { return Value{Kind: mir.KindUnit} }

func TupleValue(elems ...Value) Value {
	return Value{Kind: mir.KindTuple, Elements: elems}
}

func StructValue(fields map[string]Value) Value {
	return Value{Kind: mir.KindStruct, Fields: fields}
}

// FixedArrayValue represents an already-materialized array: Elements
// holds its contents for the return/decode side. There is no argument-
// side FixedArray marshalling (see MarshalArgs's doc comment).
func FixedArrayValue(elems ...Value) Value {
	return Value{Kind: mir.KindFixedArray, Elements: elems}
}
