// Package mir implements the SSA-form mid-level IR (MIR): the typed value
// model, instruction/block/function/module structure, dominance and SSA
// analysis (C3, C4 — spec §3.3, §3.4, §4.3, §4.4), shared by the
// optimization passes (internal/mir/passes), the frame layout
// (internal/layout), and the CASM emitter (internal/codegen/builder).
package mir

import (
	"strconv"
	"strings"
)

// TypeKind discriminates the MirType lattice (spec §3.3).
type TypeKind uint8

const (
	KindFelt TypeKind = iota
	KindBool
	KindU32
	KindUnit
	KindTuple
	KindStruct
	KindFixedArray
	KindPointer
	KindFunction
	KindError
	KindUnknown
)

// StructField is one named, typed field of a Struct type.
type StructField struct {
	Name string
	Type Type
}

// Type is the MIR type lattice. Composite variants (Tuple, Struct,
// FixedArray, Pointer) carry their payload in the fields below; which
// fields are meaningful is determined by Kind, matching the "tagged
// union realized as one struct" idiom used throughout this codebase
// (mirrors how internal/isa.Instruction and ssa.Instruction in the
// teacher both flatten a variant type into one struct with an opcode
// tag rather than an interface hierarchy).
type Type struct {
	Kind TypeKind

	// Struct
	StructName string
	Fields     []StructField

	// Tuple
	Elements []Type

	// FixedArray / Pointer
	Elem   *Type
	Length int
}

func Felt() Type    { return Type{Kind: KindFelt} }
func Bool() Type    { return Type{Kind: KindBool} }
func U32() Type     { return Type{Kind: KindU32} }
func Unit() Type    { return Type{Kind: KindUnit} }
func ErrorT() Type  { return Type{Kind: KindError} }
func Unknown() Type { return Type{Kind: KindUnknown} }

func Tuple(elems ...Type) Type {
	return Type{Kind: KindTuple, Elements: elems}
}

func Struct(name string, fields ...StructField) Type {
	return Type{Kind: KindStruct, StructName: name, Fields: fields}
}

func FixedArray(elem Type, length int) Type {
	return Type{Kind: KindFixedArray, Elem: &elem, Length: length}
}

func Pointer(elem Type) Type {
	return Type{Kind: KindPointer, Elem: &elem}
}

func Function() Type { return Type{Kind: KindFunction} }

// IsPoison reports whether t is one of the Error/Unknown poison types
// that are compatible with anything in order to suppress cascading
// diagnostics (spec §3.3). Poison types are a type-system concern, never
// an error value at the MIR/codegen level (spec §7).
func (t Type) IsPoison() bool {
	return t.Kind == KindError || t.Kind == KindUnknown
}

// FieldType looks up a struct field's type by name.
func (t Type) FieldType(name string) (Type, bool) {
	for _, f := range t.Fields {
		if f.Name == name {
			return f.Type, true
		}
	}
	return Type{}, false
}

// MemorySizeOf returns the number of M31 slots a value of type t occupies
// on an fp-relative frame (spec §3.3). FixedArray is heap-resident and
// held by pointer, so its own size is the pointer's size (1), not
// length*element size.
func MemorySizeOf(t Type) int {
	switch t.Kind {
	case KindFelt, KindBool, KindPointer, KindFixedArray, KindFunction:
		return 1
	case KindU32:
		return 2
	case KindUnit:
		return 0
	case KindTuple:
		n := 0
		for _, e := range t.Elements {
			n += MemorySizeOf(e)
		}
		return n
	case KindStruct:
		n := 0
		for _, f := range t.Fields {
			n += MemorySizeOf(f.Type)
		}
		return n
	case KindError, KindUnknown:
		// Poison types never reach codegen; treat as zero-size so any
		// stray use is at least not silently mis-sized.
		return 0
	default:
		return 0
	}
}

// String renders a debug form of the type.
func (t Type) String() string {
	switch t.Kind {
	case KindFelt:
		return "felt"
	case KindBool:
		return "bool"
	case KindU32:
		return "u32"
	case KindUnit:
		return "()"
	case KindTuple:
		parts := make([]string, len(t.Elements))
		for i, e := range t.Elements {
			parts[i] = e.String()
		}
		return "(" + strings.Join(parts, ", ") + ")"
	case KindStruct:
		return t.StructName
	case KindFixedArray:
		return t.Elem.String() + "[" + strconv.Itoa(t.Length) + "]"
	case KindPointer:
		return "*" + t.Elem.String()
	case KindFunction:
		return "fn"
	case KindError:
		return "<error>"
	case KindUnknown:
		return "<unknown>"
	default:
		return "<?>"
	}
}
