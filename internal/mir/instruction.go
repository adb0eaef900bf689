package mir

import "fmt"

// InstrKind discriminates the MIR instruction variants (spec §3.3). As
// with Type and isa.Instruction, the variant is realized as one flat
// struct tagged by Kind rather than an interface hierarchy, so passes can
// do exhaustive switch-based case analysis (spec §9 "Polymorphism").
type InstrKind uint8

const (
	KAssign InstrKind = iota
	KUnaryOp
	KBinaryOp
	KLoad
	KStore
	KStackAlloc
	KGetElementPtr
	KAddressOf
	KCast
	KCall
	KVoidCall
	KMakeTuple
	KExtractTupleElement
	KInsertTuple
	KMakeStruct
	KExtractStructField
	KInsertField
	KMakeFixedArray
	KArrayIndex
	KArrayInsert
	KPhi
	KAssertEq
	KDebug
	KNop
)

// UnaryOpKind enumerates MIR unary operators.
type UnaryOpKind uint8

const (
	UNot UnaryOpKind = iota
	UNeg
)

// BinaryOpKind enumerates MIR binary operators, split into the Felt
// family (modular arithmetic, boolean logic, equality) and the U32
// family (wrapping arithmetic, unsigned comparisons, bitwise ops) per
// spec §3.3.
type BinaryOpKind uint8

const (
	BAdd BinaryOpKind = iota
	BSub
	BMul
	BDiv
	BEq
	BNeq
	BAnd
	BOr

	BU32Add
	BU32Sub
	BU32Mul
	BU32Div
	BU32Rem
	BU32Eq
	BU32Neq
	BU32Less
	BU32Greater
	BU32LessEqual
	BU32GreaterEqual
	BU32BitwiseAnd
	BU32BitwiseOr
	BU32BitwiseXor
)

// IsU32Family reports whether op operates on the U32 representation
// rather than Felt.
func (op BinaryOpKind) IsU32Family() bool { return op >= BU32Add }

// IsComparison reports whether op produces a Bool result.
func (op BinaryOpKind) IsComparison() bool {
	switch op {
	case BEq, BNeq, BU32Eq, BU32Neq, BU32Less, BU32Greater, BU32LessEqual, BU32GreaterEqual:
		return true
	default:
		return false
	}
}

// StructFieldValue pairs a struct field name with the Value stored there,
// used by MakeStruct.
type StructFieldValue struct {
	Name  string
	Value Value
}

// PhiSource is one (predecessor, value) edge of a Phi instruction. Spec
// §3.3 invariant 5 requires these to be ordered identically to the
// block's predecessor enumeration, one entry per predecessor.
type PhiSource struct {
	Block BasicBlockID
	Value Value
}

// CallSignature is the (param types, return types) contract checked
// against a Call/VoidCall's actual argument/destination counts (spec
// §3.3 invariant 6).
type CallSignature struct {
	ParamTypes  []Type
	ReturnTypes []Type
}

// SourceSpan locates an instruction in the original source text. It is
// optional metadata only; no MIR semantics depend on it.
type SourceSpan struct {
	Start, End int
}

// Instruction is one MIR instruction. Which fields are meaningful is
// determined by Kind; see the per-kind constructors below for the
// authoritative field mapping.
type Instruction struct {
	Kind InstrKind

	Dest  ValueID // primary/only destination, when Kind has exactly one
	Dests []ValueID // Call: one per return value

	Ty Type // result type, when applicable

	Source Value // Assign, UnaryOp, Cast, AddressOf operand

	UnOp UnaryOpKind

	BinOp       BinaryOpKind
	Left, Right Value

	// InPlaceTarget is an optional fp-offset hint the codegen backend may
	// use to avoid allocating a fresh slot for a Unary/BinaryOp result
	// (spec §4.7, §9 "in-place target hint is an optimization; a correct
	// implementation may ignore it").
	InPlaceTarget *int64

	Address Value // Load address / Store address
	Value_  Value // Store value

	Size int // StackAlloc

	Base, Offset Value // GetElementPtr

	Callee    FunctionID
	Args      []Value
	Signature CallSignature

	TupleElems []Value // MakeTuple
	TupleIndex int      // ExtractTupleElement / InsertTuple
	InsertVal  Value    // InsertTuple / InsertField

	StructName   string
	StructFields []StructFieldValue // MakeStruct
	FieldName    string             // ExtractStructField / InsertField

	ArrayElems    []Value // MakeFixedArray
	ArrayElemType Type
	ArrayLen      int

	PhiSources []PhiSource

	DebugMessage string // Debug / AssertEq annotation

	Comment string
	Span    *SourceSpan
}

// --- constructors ---------------------------------------------------

func Assign(dest ValueID, source Value, ty Type) Instruction {
	return Instruction{Kind: KAssign, Dest: dest, Source: source, Ty: ty}
}

func MakeUnaryOp(dest ValueID, op UnaryOpKind, source Value, ty Type) Instruction {
	return Instruction{Kind: KUnaryOp, Dest: dest, UnOp: op, Source: source, Ty: ty}
}

func MakeBinaryOp(dest ValueID, op BinaryOpKind, left, right Value, ty Type) Instruction {
	return Instruction{Kind: KBinaryOp, Dest: dest, BinOp: op, Left: left, Right: right, Ty: ty}
}

func Load(dest ValueID, address Value, ty Type) Instruction {
	return Instruction{Kind: KLoad, Dest: dest, Address: address, Ty: ty}
}

func Store(address, value Value) Instruction {
	return Instruction{Kind: KStore, Address: address, Value_: value}
}

func StackAlloc(dest ValueID, size int, ty Type) Instruction {
	return Instruction{Kind: KStackAlloc, Dest: dest, Size: size, Ty: ty}
}

func GetElementPtr(dest ValueID, base, offset Value, ty Type) Instruction {
	return Instruction{Kind: KGetElementPtr, Dest: dest, Base: base, Offset: offset, Ty: ty}
}

func AddressOf(dest ValueID, operand Value, ty Type) Instruction {
	return Instruction{Kind: KAddressOf, Dest: dest, Source: operand, Ty: ty}
}

func Cast(dest ValueID, source Value, ty Type) Instruction {
	return Instruction{Kind: KCast, Dest: dest, Source: source, Ty: ty}
}

func Call(dests []ValueID, callee FunctionID, args []Value, sig CallSignature) Instruction {
	return Instruction{Kind: KCall, Dests: dests, Callee: callee, Args: args, Signature: sig}
}

func VoidCall(callee FunctionID, args []Value, sig CallSignature) Instruction {
	sig.ReturnTypes = nil
	return Instruction{Kind: KVoidCall, Callee: callee, Args: args, Signature: sig}
}

func MakeTuple(dest ValueID, elems []Value, ty Type) Instruction {
	return Instruction{Kind: KMakeTuple, Dest: dest, TupleElems: elems, Ty: ty}
}

func ExtractTupleElement(dest ValueID, tuple Value, index int, ty Type) Instruction {
	return Instruction{Kind: KExtractTupleElement, Dest: dest, Source: tuple, TupleIndex: index, Ty: ty}
}

func InsertTuple(dest ValueID, tuple Value, index int, val Value, ty Type) Instruction {
	return Instruction{Kind: KInsertTuple, Dest: dest, Source: tuple, TupleIndex: index, InsertVal: val, Ty: ty}
}

func MakeStruct(dest ValueID, name string, fields []StructFieldValue, ty Type) Instruction {
	return Instruction{Kind: KMakeStruct, Dest: dest, StructName: name, StructFields: fields, Ty: ty}
}

func ExtractStructField(dest ValueID, str Value, field string, ty Type) Instruction {
	return Instruction{Kind: KExtractStructField, Dest: dest, Source: str, FieldName: field, Ty: ty}
}

func InsertField(dest ValueID, str Value, field string, val Value, ty Type) Instruction {
	return Instruction{Kind: KInsertField, Dest: dest, Source: str, FieldName: field, InsertVal: val, Ty: ty}
}

func MakeFixedArray(dest ValueID, elems []Value, elemType Type, ty Type) Instruction {
	return Instruction{Kind: KMakeFixedArray, Dest: dest, ArrayElems: elems, ArrayElemType: elemType, Ty: ty}
}

func ArrayIndex(dest ValueID, base, index Value, ty Type) Instruction {
	return Instruction{Kind: KArrayIndex, Dest: dest, Base: base, Offset: index, Ty: ty}
}

func ArrayInsert(base, index, val Value) Instruction {
	return Instruction{Kind: KArrayInsert, Base: base, Offset: index, InsertVal: val}
}

func Phi(dest ValueID, ty Type, sources []PhiSource) Instruction {
	return Instruction{Kind: KPhi, Dest: dest, Ty: ty, PhiSources: sources}
}

func AssertEq(left, right Value, message string) Instruction {
	return Instruction{Kind: KAssertEq, Left: left, Right: right, DebugMessage: message}
}

func Debug(message string, args []Value) Instruction {
	return Instruction{Kind: KDebug, DebugMessage: message, Args: args}
}

func Nop() Instruction {
	return Instruction{Kind: KNop}
}

// --- queries (C3, spec §4.3) -----------------------------------------

// Destinations returns the ValueIDs defined by this instruction (zero,
// one, or — for Call — many).
func (i Instruction) Destinations() []ValueID {
	switch i.Kind {
	case KCall:
		return i.Dests
	case KAssign, KUnaryOp, KBinaryOp, KLoad, KStackAlloc, KGetElementPtr, KAddressOf, KCast,
		KMakeTuple, KExtractTupleElement, KInsertTuple, KMakeStruct, KExtractStructField,
		KInsertField, KMakeFixedArray, KArrayIndex, KPhi:
		return []ValueID{i.Dest}
	default:
		return nil
	}
}

// Destination returns the single defined ValueID, if this instruction
// defines exactly one.
func (i Instruction) Destination() (ValueID, bool) {
	switch i.Kind {
	case KCall, KStore, KArrayInsert, KVoidCall, KAssertEq, KDebug, KNop:
		return 0, false
	default:
		return i.Dest, true
	}
}

// UsedValues returns the set of ValueIDs read by this instruction.
func (i Instruction) UsedValues() []ValueID {
	var out []ValueID
	add := func(v Value) {
		if v.IsOperand() {
			out = append(out, v.Operand)
		}
	}
	switch i.Kind {
	case KAssign, KCast, KAddressOf:
		add(i.Source)
	case KUnaryOp:
		add(i.Source)
	case KBinaryOp:
		add(i.Left)
		add(i.Right)
	case KLoad:
		add(i.Address)
	case KStore:
		add(i.Address)
		add(i.Value_)
	case KGetElementPtr:
		add(i.Base)
		add(i.Offset)
	case KCall, KVoidCall:
		for _, a := range i.Args {
			add(a)
		}
	case KMakeTuple:
		for _, e := range i.TupleElems {
			add(e)
		}
	case KExtractTupleElement:
		add(i.Source)
	case KInsertTuple:
		add(i.Source)
		add(i.InsertVal)
	case KMakeStruct:
		for _, f := range i.StructFields {
			add(f.Value)
		}
	case KExtractStructField:
		add(i.Source)
	case KInsertField:
		add(i.Source)
		add(i.InsertVal)
	case KMakeFixedArray:
		for _, e := range i.ArrayElems {
			add(e)
		}
	case KArrayIndex:
		add(i.Base)
		add(i.Offset)
	case KArrayInsert:
		add(i.Base)
		add(i.Offset)
		add(i.InsertVal)
	case KPhi:
		for _, s := range i.PhiSources {
			add(s.Value)
		}
	case KAssertEq:
		add(i.Left)
		add(i.Right)
	case KDebug:
		for _, a := range i.Args {
			add(a)
		}
	}
	return out
}

// HasSideEffects reports whether this instruction may write memory or
// perform I/O (spec §4.3): Store, StackAlloc, VoidCall, Debug, Call,
// AssertEq, and ArrayInsert are all side-effecting; everything else is pure.
func (i Instruction) HasSideEffects() bool {
	switch i.Kind {
	case KStore, KStackAlloc, KVoidCall, KDebug, KCall, KAssertEq, KArrayInsert:
		return true
	default:
		return false
	}
}

// IsPure is the negation of HasSideEffects.
func (i Instruction) IsPure() bool { return !i.HasSideEffects() }

func (i Instruction) String() string {
	return fmt.Sprintf("%s(dest=v%d)", i.Kind, i.Dest)
}

func (k InstrKind) String() string {
	names := [...]string{
		"Assign", "UnaryOp", "BinaryOp", "Load", "Store", "StackAlloc", "GetElementPtr",
		"AddressOf", "Cast", "Call", "VoidCall", "MakeTuple", "ExtractTupleElement",
		"InsertTuple", "MakeStruct", "ExtractStructField", "InsertField", "MakeFixedArray",
		"ArrayIndex", "ArrayInsert", "Phi", "AssertEq", "Debug", "Nop",
	}
	if int(k) < len(names) {
		return names[k]
	}
	return "Unknown"
}
