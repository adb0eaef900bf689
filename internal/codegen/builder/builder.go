// Package builder implements the CASM emitter (spec §4.7): a stateful
// object that lowers one MIR function's instructions and terminators into
// a flat list of CASM instructions against a precomputed FunctionLayout,
// deferring branch/call targets as symbolic labels for the orchestrator
// (internal/codegen, C8) to resolve in a second pass.
//
// The design — accumulate instructions with placeholder operands, record
// a Fixup per symbolic operand, patch in a later pass once every label's
// position is known — is grounded on the teacher's arm64 backend
// (backend/isa/arm64/machine_relocation.go's ResolveRelocations), adapted
// from native machine-code relocations to CASM's own label scheme.
package builder

import (
	"fmt"

	"github.com/pkg/errors"

	"github.com/kkrt-labs/cairo-m-sub002/internal/isa"
	"github.com/kkrt-labs/cairo-m-sub002/internal/layout"
	"github.com/kkrt-labs/cairo-m-sub002/internal/mir"
)

// InvalidMirError reports a structural violation the builder caught while
// lowering (e.g. an address operand that isn't an Operand value) — a bug
// in the instruction stream handed to codegen, not an expressiveness gap.
type InvalidMirError struct {
	Message string
}

func (e *InvalidMirError) Error() string { return "codegen: invalid mir: " + e.Message }

// UnsupportedInstructionError reports an operation this minimal
// sixteen-opcode instruction set genuinely cannot express (spec §9): no
// retroactive opcode is added to work around it.
type UnsupportedInstructionError struct {
	Message string
}

func (e *UnsupportedInstructionError) Error() string {
	return "codegen: unsupported instruction: " + e.Message
}

// TargetKind discriminates how a Fixup's placeholder operand is patched
// once its label's position is known (spec §4.8 phase 3).
type TargetKind uint8

const (
	// TargetAbsolute patches the operand to the target's absolute pc
	// (JmpAbsImm, CallAbsImm).
	TargetAbsolute TargetKind = iota
	// TargetRelative patches the operand to target_pc - current_pc
	// (JnzFpImm).
	TargetRelative
)

// Emitted is one CASM instruction as built by this package: an opcode
// plus its operands in the exact order the matching isa.New* constructor
// expects. Instructions with a symbolic label operand carry a placeholder
// value (0) at the fixed-up slot until Fixups are resolved.
type Emitted struct {
	Op       isa.Opcode
	Operands []int64
	Comment  string
}

// ToInstruction builds the final isa.Instruction from e, dispatching on
// Op to the matching typed constructor.
func (e Emitted) ToInstruction() (isa.Instruction, error) {
	ops := e.Operands
	switch e.Op {
	case isa.OpStoreAddFpFp:
		return isa.NewStoreAddFpFp(ops[0], ops[1], ops[2]), nil
	case isa.OpStoreAddFpImm:
		return isa.NewStoreAddFpImm(ops[0], ops[1], ops[2]), nil
	case isa.OpStoreSubFpFp:
		return isa.NewStoreSubFpFp(ops[0], ops[1], ops[2]), nil
	case isa.OpStoreSubFpImm:
		return isa.NewStoreSubFpImm(ops[0], ops[1], ops[2]), nil
	case isa.OpStoreDoubleDerefFp:
		return isa.NewStoreDoubleDerefFp(ops[0], ops[1], ops[2]), nil
	case isa.OpStoreImm:
		return isa.NewStoreImm(ops[0], ops[1]), nil
	case isa.OpStoreMulFpFp:
		return isa.NewStoreMulFpFp(ops[0], ops[1], ops[2]), nil
	case isa.OpStoreMulFpImm:
		return isa.NewStoreMulFpImm(ops[0], ops[1], ops[2]), nil
	case isa.OpStoreDivFpFp:
		return isa.NewStoreDivFpFp(ops[0], ops[1], ops[2]), nil
	case isa.OpStoreDivFpImm:
		return isa.NewStoreDivFpImm(ops[0], ops[1], ops[2]), nil
	case isa.OpCallAbsImm:
		return isa.NewCallAbsImm(ops[0], ops[1]), nil
	case isa.OpRet:
		return isa.NewRet(), nil
	case isa.OpJmpAbsImm:
		return isa.NewJmpAbsImm(ops[0]), nil
	case isa.OpJmpRelImm:
		return isa.NewJmpRelImm(ops[0]), nil
	case isa.OpJnzFpImm:
		return isa.NewJnzFpImm(ops[0], ops[1]), nil
	case isa.OpU32StoreAddFpImm:
		return isa.NewU32StoreAddFpImm(ops[0], uint32(ops[1]), uint32(ops[2]), ops[3]), nil
	default:
		return isa.Instruction{}, errors.WithStack(&InvalidMirError{Message: fmt.Sprintf("unknown opcode %v", e.Op)})
	}
}

// Fixup records one placeholder operand awaiting label resolution.
type Fixup struct {
	InstrIdx    int
	OperandIdx  int
	TargetLabel string
	Kind        TargetKind
}

// Builder accumulates one function's emitted CASM instructions against a
// FunctionLayout, tracking label positions and deferred fixups for the
// orchestrator's resolution pass (spec §4.7, §4.8).
type Builder struct {
	Layout *layout.FunctionLayout
	Fn     *mir.Function // for type lookups of aggregate sources (Extract/Insert)

	Instructions   []Emitted
	LabelPositions map[string]int
	Fixups         []Fixup

	pendingLabels []string
}

// New creates a builder for fn against its precomputed layout.
func New(l *layout.FunctionLayout, fn *mir.Function) *Builder {
	return &Builder{
		Layout:         l,
		Fn:             fn,
		LabelPositions: make(map[string]int),
	}
}

// Label queues name to be bound to the position of the next instruction
// actually emitted. Queuing (rather than binding immediately) makes
// labels robust to fall-through elision: a block whose only instruction
// is an elided Jump contributes zero instructions, and its label must
// then point at whatever comes after it.
func (b *Builder) Label(name string) {
	b.pendingLabels = append(b.pendingLabels, name)
}

func (b *Builder) emit(op isa.Opcode, operands []int64, comment string) int {
	idx := len(b.Instructions)
	for _, name := range b.pendingLabels {
		b.LabelPositions[name] = idx
	}
	b.pendingLabels = nil
	b.Instructions = append(b.Instructions, Emitted{Op: op, Operands: operands, Comment: comment})
	return idx
}

func (b *Builder) emitWithFixup(op isa.Opcode, operands []int64, operandIdx int, label string, kind TargetKind, comment string) int {
	idx := b.emit(op, operands, comment)
	b.Fixups = append(b.Fixups, Fixup{InstrIdx: idx, OperandIdx: operandIdx, TargetLabel: label, Kind: kind})
	return idx
}

// --- destination/value helpers ---------------------------------------

func (b *Builder) bindDest(dest mir.ValueID, size int, inPlace *int64) (int64, error) {
	if inPlace != nil {
		if err := b.Layout.MapValue(dest, *inPlace, size); err != nil {
			return 0, err
		}
		return *inPlace, nil
	}
	return b.Layout.AllocateValue(dest, size)
}

// storeImmediateBySize emits the store(s) needed to write lit at offset,
// sized by size (0 = Unit, no-op; 1 = Felt/Bool via a single StoreImm;
// 2 = U32, split into lo/hi StoreImm halves since this instruction set
// has no dedicated U32-immediate opcode).
func (b *Builder) storeImmediateBySize(offset int64, lit mir.Literal, size int) error {
	switch size {
	case 0:
		return nil
	case 1:
		v := int64(lit.Integer)
		if lit.Kind == mir.LiteralBoolean {
			v = 0
			if lit.Boolean {
				v = 1
			}
		}
		b.emit(isa.OpStoreImm, []int64{v, offset}, "")
		b.Layout.RecordWrite(offset, 1)
		return nil
	case 2:
		lo := int64(lit.Integer & 0xFFFF)
		hi := int64(lit.Integer >> 16)
		b.emit(isa.OpStoreImm, []int64{lo, offset}, "u32 imm lo")
		b.emit(isa.OpStoreImm, []int64{hi, offset + 1}, "u32 imm hi")
		b.Layout.RecordWrite(offset, 2)
		return nil
	default:
		return errors.WithStack(&UnsupportedInstructionError{Message: fmt.Sprintf("immediate store of a %d-slot aggregate is not supported directly", size)})
	}
}

// copySlots emits a per-slot same-frame copy from srcOff to dstOff
// (store_copy_single/store_copy_u32's generalization, spec §4.7), using
// the store-add-with-zero idiom StoreAddFpImm(src,0,dst). A no-op if the
// two offsets already coincide.
func (b *Builder) copySlots(srcOff, dstOff int64, size int) error {
	if srcOff == dstOff || size == 0 {
		return nil
	}
	for i := 0; i < size; i++ {
		b.emit(isa.OpStoreAddFpImm, []int64{srcOff + int64(i), 0, dstOff + int64(i)}, "copy")
	}
	b.Layout.RecordWrite(dstOff, size)
	return nil
}

// materializeToScratch returns an operand's existing offset, or writes a
// literal into a freshly reserved scratch slot and returns that.
func (b *Builder) materializeToScratch(v mir.Value, ty mir.Type) (int64, error) {
	if v.IsOperand() {
		return b.Layout.GetOffset(v.Operand)
	}
	size := mir.MemorySizeOf(ty)
	off := b.Layout.ReserveStack(size)
	if err := b.storeImmediateBySize(off, v.Literal, size); err != nil {
		return 0, err
	}
	return off, nil
}

// --- LowerInstruction dispatcher --------------------------------------

// LowerInstruction lowers every MIR instruction kind except Call/VoidCall,
// which the orchestrator routes to LowerCall directly because it alone
// knows how to resolve a FunctionID to the callee's symbolic label name.
func (b *Builder) LowerInstruction(instr mir.Instruction) error {
	switch instr.Kind {
	case mir.KAssign:
		return b.lowerAssign(instr)
	case mir.KUnaryOp:
		return b.lowerUnaryOp(instr)
	case mir.KBinaryOp:
		return b.lowerBinaryOp(instr)
	case mir.KLoad:
		return b.lowerLoad(instr)
	case mir.KStore:
		return b.lowerStore(instr)
	case mir.KStackAlloc:
		return b.lowerStackAlloc(instr)
	case mir.KGetElementPtr:
		return b.lowerGetElementPtr(instr)
	case mir.KAddressOf:
		return errors.WithStack(&UnsupportedInstructionError{Message: "address-of has no CASM encoding: stack storage is addressed purely at compile time by this emitter"})
	case mir.KCast:
		return errors.WithStack(&UnsupportedInstructionError{Message: "cast has no direct CASM encoding in this instruction set"})
	case mir.KMakeTuple:
		return b.lowerMakeTuple(instr)
	case mir.KExtractTupleElement:
		return b.lowerExtractTupleElement(instr)
	case mir.KInsertTuple:
		return b.lowerInsertTuple(instr)
	case mir.KMakeStruct:
		return b.lowerMakeStruct(instr)
	case mir.KExtractStructField:
		return b.lowerExtractStructField(instr)
	case mir.KInsertField:
		return b.lowerInsertField(instr)
	case mir.KMakeFixedArray, mir.KArrayIndex, mir.KArrayInsert:
		return errors.WithStack(&UnsupportedInstructionError{Message: "fixed-size arrays are heap-resident and addressed through a runtime pointer value (MemorySizeOf(FixedArray) == 1); this instruction set has no dynamic-allocation opcode and StoreDoubleDerefFp only indexes through a compile-time-known base offset, not a runtime-held heap address"})
	case mir.KPhi:
		return errors.WithStack(&UnsupportedInstructionError{Message: "phi nodes must be eliminated by VarSsaPass before codegen is reached"})
	case mir.KAssertEq:
		return errors.WithStack(&UnsupportedInstructionError{Message: "assertions have no trap opcode in this instruction set"})
	case mir.KDebug, mir.KNop:
		return nil
	case mir.KCall, mir.KVoidCall:
		return errors.WithStack(&InvalidMirError{Message: "Call/VoidCall must be lowered via LowerCall"})
	default:
		return errors.WithStack(&InvalidMirError{Message: fmt.Sprintf("unknown instruction kind %v", instr.Kind)})
	}
}

func (b *Builder) lowerAssign(instr mir.Instruction) error {
	size := mir.MemorySizeOf(instr.Ty)
	destOff, err := b.bindDest(instr.Dest, size, instr.InPlaceTarget)
	if err != nil {
		return err
	}
	if size == 0 {
		return nil
	}
	if instr.Source.IsLiteral() {
		return b.storeImmediateBySize(destOff, instr.Source.Literal, size)
	}
	if !instr.Source.IsOperand() {
		return errors.WithStack(&InvalidMirError{Message: "assign source must be a literal or operand"})
	}
	srcOff, err := b.Layout.GetOffset(instr.Source.Operand)
	if err != nil {
		return err
	}
	return b.copySlots(srcOff, destOff, size)
}

func (b *Builder) lowerUnaryOp(instr mir.Instruction) error {
	if instr.Ty.Kind != mir.KindFelt && instr.Ty.Kind != mir.KindBool {
		return errors.WithStack(&UnsupportedInstructionError{Message: "unary operators are only supported on Felt/Bool values in this instruction set"})
	}
	if !instr.Source.IsOperand() {
		return errors.WithStack(&InvalidMirError{Message: "unary op source must be an operand"})
	}
	srcOff, err := b.Layout.GetOffset(instr.Source.Operand)
	if err != nil {
		return err
	}
	destOff, err := b.bindDest(instr.Dest, 1, instr.InPlaceTarget)
	if err != nil {
		return err
	}
	switch instr.UnOp {
	case mir.UNeg:
		b.emit(isa.OpStoreMulFpImm, []int64{srcOff, -1, destOff}, "neg")
		b.Layout.RecordWrite(destOff, 1)
	case mir.UNot:
		// not(x) = 1 - x for x in {0, 1}: negate then add one, both into
		// the same destination slot.
		b.emit(isa.OpStoreMulFpImm, []int64{srcOff, -1, destOff}, "not: -x")
		b.emit(isa.OpStoreAddFpImm, []int64{destOff, 1, destOff}, "not: 1-x")
		b.Layout.RecordWrite(destOff, 1)
	default:
		return errors.WithStack(&InvalidMirError{Message: "unknown unary operator"})
	}
	return nil
}

var feltFpFpOp = map[mir.BinaryOpKind]isa.Opcode{
	mir.BAdd: isa.OpStoreAddFpFp,
	mir.BSub: isa.OpStoreSubFpFp,
	mir.BMul: isa.OpStoreMulFpFp,
	mir.BDiv: isa.OpStoreDivFpFp,
}

var feltFpImmOp = map[mir.BinaryOpKind]isa.Opcode{
	mir.BAdd: isa.OpStoreAddFpImm,
	mir.BSub: isa.OpStoreSubFpImm,
	mir.BMul: isa.OpStoreMulFpImm,
	mir.BDiv: isa.OpStoreDivFpImm,
}

var commutativeFelt = map[mir.BinaryOpKind]bool{mir.BAdd: true, mir.BMul: true}

func (b *Builder) lowerBinaryOp(instr mir.Instruction) error {
	switch instr.BinOp {
	case mir.BAdd, mir.BSub, mir.BMul, mir.BDiv:
		return b.lowerFeltArith(instr)
	case mir.BU32Add:
		return b.lowerU32Add(instr)
	default:
		return errors.WithStack(&UnsupportedInstructionError{Message: fmt.Sprintf("binary operator %d has no direct opcode as a standalone (non-branch) value in this instruction set", instr.BinOp)})
	}
}

func (b *Builder) lowerFeltArith(instr mir.Instruction) error {
	left, right := instr.Left, instr.Right
	destOff, err := b.bindDest(instr.Dest, 1, instr.InPlaceTarget)
	if err != nil {
		return err
	}

	if left.IsOperand() && right.IsOperand() {
		lOff, err := b.Layout.GetOffset(left.Operand)
		if err != nil {
			return err
		}
		rOff, err := b.Layout.GetOffset(right.Operand)
		if err != nil {
			return err
		}
		b.emit(feltFpFpOp[instr.BinOp], []int64{lOff, rOff, destOff}, "")
		b.Layout.RecordWrite(destOff, 1)
		return nil
	}

	if left.IsOperand() && right.IsLiteral() {
		lOff, err := b.Layout.GetOffset(left.Operand)
		if err != nil {
			return err
		}
		b.emit(feltFpImmOp[instr.BinOp], []int64{lOff, int64(right.Literal.Integer), destOff}, "")
		b.Layout.RecordWrite(destOff, 1)
		return nil
	}

	if left.IsLiteral() && right.IsOperand() && commutativeFelt[instr.BinOp] {
		rOff, err := b.Layout.GetOffset(right.Operand)
		if err != nil {
			return err
		}
		b.emit(feltFpImmOp[instr.BinOp], []int64{rOff, int64(left.Literal.Integer), destOff}, "")
		b.Layout.RecordWrite(destOff, 1)
		return nil
	}

	// A literal on the left of a non-commutative op, or two literals that
	// ConstantFolding should already have collapsed: materialize whichever
	// side is a literal into a scratch slot, then use the Fp-Fp form.
	lOff, err := b.materializeToScratch(left, instr.Ty)
	if err != nil {
		return err
	}
	rOff, err := b.materializeToScratch(right, instr.Ty)
	if err != nil {
		return err
	}
	b.emit(feltFpFpOp[instr.BinOp], []int64{lOff, rOff, destOff}, "")
	b.Layout.RecordWrite(destOff, 1)
	return nil
}

func (b *Builder) lowerU32Add(instr mir.Instruction) error {
	left, right := instr.Left, instr.Right
	var srcVal, litVal mir.Value
	switch {
	case left.IsOperand() && right.IsLiteral():
		srcVal, litVal = left, right
	case left.IsLiteral() && right.IsOperand():
		srcVal, litVal = right, left
	default:
		return errors.WithStack(&UnsupportedInstructionError{Message: "u32 add requires exactly one literal operand; this instruction set has no fp-fp u32 add opcode"})
	}
	srcOff, err := b.Layout.GetOffset(srcVal.Operand)
	if err != nil {
		return err
	}
	destOff, err := b.bindDest(instr.Dest, 2, instr.InPlaceTarget)
	if err != nil {
		return err
	}
	hi := litVal.Literal.Integer >> 16
	lo := litVal.Literal.Integer & 0xFFFF
	b.emit(isa.OpU32StoreAddFpImm, []int64{srcOff, int64(hi), int64(lo), destOff}, "")
	b.Layout.RecordWrite(destOff, 2)
	return nil
}

func (b *Builder) lowerStackAlloc(instr mir.Instruction) error {
	_, err := b.Layout.AllocateValue(instr.Dest, instr.Size)
	return err
}

func (b *Builder) lowerGetElementPtr(instr mir.Instruction) error {
	if !instr.Base.IsOperand() {
		return errors.WithStack(&InvalidMirError{Message: "get-element-ptr base must be an operand"})
	}
	if !instr.Offset.IsLiteral() {
		return errors.WithStack(&UnsupportedInstructionError{Message: "dynamic (non-literal) get-element-ptr offsets require runtime pointer arithmetic this instruction set cannot express"})
	}
	baseOff, err := b.Layout.GetOffset(instr.Base.Operand)
	if err != nil {
		return err
	}
	destSize := mir.MemorySizeOf(instr.Ty)
	destOff := baseOff + int64(instr.Offset.Literal.Integer)
	return b.Layout.MapValue(instr.Dest, destOff, destSize)
}

func (b *Builder) lowerLoad(instr mir.Instruction) error {
	if !instr.Address.IsOperand() {
		return errors.WithStack(&InvalidMirError{Message: "load address must be an operand"})
	}
	srcOff, err := b.Layout.GetOffset(instr.Address.Operand)
	if err != nil {
		return err
	}
	size := mir.MemorySizeOf(instr.Ty)
	destOff, err := b.bindDest(instr.Dest, size, instr.InPlaceTarget)
	if err != nil {
		return err
	}
	return b.copySlots(srcOff, destOff, size)
}

func (b *Builder) lowerStore(instr mir.Instruction) error {
	if !instr.Address.IsOperand() {
		return errors.WithStack(&InvalidMirError{Message: "store address must be an operand"})
	}
	dstOff, err := b.Layout.GetOffset(instr.Address.Operand)
	if err != nil {
		return err
	}
	dstSize, err := b.Layout.GetValueSize(instr.Address.Operand)
	if err != nil {
		return err
	}
	if instr.Value_.IsLiteral() {
		return b.storeImmediateBySize(dstOff, instr.Value_.Literal, dstSize)
	}
	if !instr.Value_.IsOperand() {
		return errors.WithStack(&InvalidMirError{Message: "store value must be a literal or operand"})
	}
	srcOff, err := b.Layout.GetOffset(instr.Value_.Operand)
	if err != nil {
		return err
	}
	return b.copySlots(srcOff, dstOff, dstSize)
}

// --- aggregates (spec §4.5.6 residue: anything SROA/ConstFoldAggregate
// did not already scalarize away, e.g. a struct/tuple crossing a block
// boundary or returned from a function) --------------------------------

func (b *Builder) lowerAggregateComponents(dest mir.ValueID, ty mir.Type, components []mir.Value, elemTypes []mir.Type, inPlace *int64) error {
	size := mir.MemorySizeOf(ty)
	destOff, err := b.bindDest(dest, size, inPlace)
	if err != nil {
		return err
	}
	offset := destOff
	for i, c := range components {
		sz := mir.MemorySizeOf(elemTypes[i])
		if c.IsLiteral() {
			if err := b.storeImmediateBySize(offset, c.Literal, sz); err != nil {
				return err
			}
		} else if c.IsOperand() {
			srcOff, err := b.Layout.GetOffset(c.Operand)
			if err != nil {
				return err
			}
			if err := b.copySlots(srcOff, offset, sz); err != nil {
				return err
			}
		} else {
			return errors.WithStack(&InvalidMirError{Message: "aggregate component must be a literal or operand"})
		}
		offset += int64(sz)
	}
	return nil
}

func (b *Builder) lowerMakeTuple(instr mir.Instruction) error {
	if len(instr.TupleElems) != len(instr.Ty.Elements) {
		return errors.WithStack(&InvalidMirError{Message: "make-tuple element count does not match its declared type"})
	}
	return b.lowerAggregateComponents(instr.Dest, instr.Ty, instr.TupleElems, instr.Ty.Elements, instr.InPlaceTarget)
}

func (b *Builder) lowerMakeStruct(instr mir.Instruction) error {
	elemTypes := make([]mir.Type, len(instr.StructFields))
	elemVals := make([]mir.Value, len(instr.StructFields))
	for i, f := range instr.StructFields {
		elemVals[i] = f.Value
		ft, ok := instr.Ty.FieldType(f.Name)
		if !ok {
			return errors.WithStack(&InvalidMirError{Message: fmt.Sprintf("struct type has no field %q", f.Name)})
		}
		elemTypes[i] = ft
	}
	return b.lowerAggregateComponents(instr.Dest, instr.Ty, elemVals, elemTypes, instr.InPlaceTarget)
}

func (b *Builder) lowerExtractTupleElement(instr mir.Instruction) error {
	if !instr.Source.IsOperand() {
		return errors.WithStack(&InvalidMirError{Message: "extract-tuple-element source must be an operand"})
	}
	srcTy, ok := b.Fn.TypeOf(instr.Source.Operand)
	if !ok || srcTy.Kind != mir.KindTuple || instr.TupleIndex < 0 || instr.TupleIndex >= len(srcTy.Elements) {
		return errors.WithStack(&InvalidMirError{Message: "extract-tuple-element source has no recorded tuple type"})
	}
	byteOff := 0
	for i := 0; i < instr.TupleIndex; i++ {
		byteOff += mir.MemorySizeOf(srcTy.Elements[i])
	}
	baseOff, err := b.Layout.GetOffset(instr.Source.Operand)
	if err != nil {
		return err
	}
	size := mir.MemorySizeOf(instr.Ty)
	return b.Layout.MapValue(instr.Dest, baseOff+int64(byteOff), size)
}

func (b *Builder) lowerExtractStructField(instr mir.Instruction) error {
	if !instr.Source.IsOperand() {
		return errors.WithStack(&InvalidMirError{Message: "extract-struct-field source must be an operand"})
	}
	srcTy, ok := b.Fn.TypeOf(instr.Source.Operand)
	if !ok || srcTy.Kind != mir.KindStruct {
		return errors.WithStack(&InvalidMirError{Message: "extract-struct-field source has no recorded struct type"})
	}
	byteOff, _, found := structFieldOffset(srcTy, instr.FieldName)
	if !found {
		return errors.WithStack(&InvalidMirError{Message: fmt.Sprintf("struct %q has no field %q", srcTy.StructName, instr.FieldName)})
	}
	baseOff, err := b.Layout.GetOffset(instr.Source.Operand)
	if err != nil {
		return err
	}
	size := mir.MemorySizeOf(instr.Ty)
	return b.Layout.MapValue(instr.Dest, baseOff+int64(byteOff), size)
}

func structFieldOffset(ty mir.Type, name string) (offset, size int, found bool) {
	for _, f := range ty.Fields {
		if f.Name == name {
			return offset, mir.MemorySizeOf(f.Type), true
		}
		offset += mir.MemorySizeOf(f.Type)
	}
	return 0, 0, false
}

// lowerInsert materializes a fresh copy of an aggregate with one
// sub-range overwritten: the result of InsertTuple/InsertField is a new
// immutable SSA value, so (unlike ArrayInsert) it cannot just mutate the
// source in place.
func (b *Builder) lowerInsert(dest mir.ValueID, source mir.Value, ty mir.Type, elemOffset, elemSize int, newVal mir.Value, inPlace *int64) error {
	if !source.IsOperand() {
		return errors.WithStack(&InvalidMirError{Message: "insert source must be an operand"})
	}
	srcOff, err := b.Layout.GetOffset(source.Operand)
	if err != nil {
		return err
	}
	size := mir.MemorySizeOf(ty)
	destOff, err := b.bindDest(dest, size, inPlace)
	if err != nil {
		return err
	}
	if err := b.copySlots(srcOff, destOff, size); err != nil {
		return err
	}
	target := destOff + int64(elemOffset)
	if newVal.IsLiteral() {
		return b.storeImmediateBySize(target, newVal.Literal, elemSize)
	}
	if !newVal.IsOperand() {
		return errors.WithStack(&InvalidMirError{Message: "insert value must be a literal or operand"})
	}
	valOff, err := b.Layout.GetOffset(newVal.Operand)
	if err != nil {
		return err
	}
	return b.copySlots(valOff, target, elemSize)
}

func (b *Builder) lowerInsertTuple(instr mir.Instruction) error {
	if !instr.Source.IsOperand() {
		return errors.WithStack(&InvalidMirError{Message: "insert-tuple source must be an operand"})
	}
	srcTy, ok := b.Fn.TypeOf(instr.Source.Operand)
	if !ok || srcTy.Kind != mir.KindTuple || instr.TupleIndex < 0 || instr.TupleIndex >= len(srcTy.Elements) {
		return errors.WithStack(&InvalidMirError{Message: "insert-tuple source has no recorded tuple type"})
	}
	elemOff := 0
	for i := 0; i < instr.TupleIndex; i++ {
		elemOff += mir.MemorySizeOf(srcTy.Elements[i])
	}
	elemSize := mir.MemorySizeOf(srcTy.Elements[instr.TupleIndex])
	return b.lowerInsert(instr.Dest, instr.Source, instr.Ty, elemOff, elemSize, instr.InsertVal, instr.InPlaceTarget)
}

func (b *Builder) lowerInsertField(instr mir.Instruction) error {
	if !instr.Source.IsOperand() {
		return errors.WithStack(&InvalidMirError{Message: "insert-field source must be an operand"})
	}
	srcTy, ok := b.Fn.TypeOf(instr.Source.Operand)
	if !ok || srcTy.Kind != mir.KindStruct {
		return errors.WithStack(&InvalidMirError{Message: "insert-field source has no recorded struct type"})
	}
	elemOff, elemSize, found := structFieldOffset(srcTy, instr.FieldName)
	if !found {
		return errors.WithStack(&InvalidMirError{Message: fmt.Sprintf("struct %q has no field %q", srcTy.StructName, instr.FieldName)})
	}
	return b.lowerInsert(instr.Dest, instr.Source, instr.Ty, elemOff, elemSize, instr.InsertVal, instr.InPlaceTarget)
}

// --- calls, returns, control flow (spec §4.7.1-3) ---------------------

// LowerCall emits the call sequence for callee calleeName, applying the
// argument-in-place optimization when every argument already sits
// contiguously at the slot the callee expects (spec §4.7.1).
func (b *Builder) LowerCall(calleeName string, args []mir.Value, sig mir.CallSignature, dests []mir.ValueID) error {
	m := 0
	for _, t := range sig.ParamTypes {
		m += mir.MemorySizeOf(t)
	}
	k := 0
	for _, t := range sig.ReturnTypes {
		k += mir.MemorySizeOf(t)
	}

	argsOffset, fires, err := b.tryArgsInPlace(args, sig.ParamTypes, m)
	if err != nil {
		return err
	}
	if !fires {
		argsOffset, err = b.lowerCallArgsStandard(args, sig.ParamTypes, m)
		if err != nil {
			return err
		}
	}

	if len(dests) > 0 {
		off := argsOffset + int64(m)
		for i, d := range dests {
			sz := mir.MemorySizeOf(sig.ReturnTypes[i])
			if err := b.Layout.MapValue(d, off, sz); err != nil {
				return err
			}
			off += int64(sz)
		}
		b.Layout.ReserveStack(k)
		b.Layout.RecordWrite(argsOffset+int64(m), k)
	}

	var frameOff int64
	if len(sig.ReturnTypes) == 0 {
		frameOff = argsOffset + int64(m)
	} else {
		frameOff = argsOffset + int64(m) + int64(k)
	}

	b.emitWithFixup(isa.OpCallAbsImm, []int64{frameOff, 0}, 1, calleeName, TargetAbsolute, "call "+calleeName)
	return nil
}

// tryArgsInPlace implements spec §4.7.1's argument-in-place optimization.
// A zero-argument call trivially qualifies: there is nothing to place.
func (b *Builder) tryArgsInPlace(args []mir.Value, paramTypes []mir.Type, m int) (offset int64, fires bool, err error) {
	if len(args) == 0 {
		return b.Layout.CurrentFrameUsage(), true, nil
	}
	for _, a := range args {
		if !a.IsOperand() {
			return 0, false, nil
		}
	}
	firstOffset, err := b.Layout.GetOffset(args[0].Operand)
	if err != nil {
		return 0, false, err
	}
	expected := firstOffset
	for i, a := range args {
		sz := mir.MemorySizeOf(paramTypes[i])
		if !b.Layout.IsContiguous(a.Operand, expected, sz) {
			return 0, false, nil
		}
		expected += int64(sz)
	}
	argsEnd := firstOffset + int64(m)
	ok := argsEnd == b.Layout.CurrentFrameUsage() ||
		(b.Layout.MaxWrittenOffset() >= 0 && argsEnd == b.Layout.LiveFrameUsage())
	if !ok {
		return 0, false, nil
	}
	return firstOffset, true, nil
}

// lowerCallArgsStandard implements spec §4.7.1's standard path: arguments
// are materialized fresh at the top of the current frame.
func (b *Builder) lowerCallArgsStandard(args []mir.Value, paramTypes []mir.Type, m int) (int64, error) {
	argsOffset := b.Layout.ReserveStack(m)
	offset := argsOffset
	for i, a := range args {
		sz := mir.MemorySizeOf(paramTypes[i])
		switch {
		case a.IsLiteral():
			if err := b.storeImmediateBySize(offset, a.Literal, sz); err != nil {
				return 0, err
			}
		case a.IsOperand() && b.Layout.IsContiguous(a.Operand, offset, sz):
			// already in place, nothing to emit
		case a.IsOperand():
			srcOff, err := b.Layout.GetOffset(a.Operand)
			if err != nil {
				return 0, err
			}
			if err := b.copySlots(srcOff, offset, sz); err != nil {
				return 0, err
			}
		default:
			return 0, errors.WithStack(&InvalidMirError{Message: "call argument must be a literal or operand"})
		}
		offset += int64(sz)
	}
	return argsOffset, nil
}

// ReturnValues implements spec §4.7.2: writes every return value into its
// designated fp-relative slot (skipping the copy when it is already
// there), then emits a single Ret.
func (b *Builder) ReturnValues(values []mir.Value, returnTypes []mir.Type) error {
	if len(values) != len(returnTypes) {
		return errors.WithStack(&InvalidMirError{Message: "return value count does not match the function's declared return types"})
	}
	k := 0
	for _, t := range returnTypes {
		k += mir.MemorySizeOf(t)
	}
	cumulative := 0
	for i, v := range values {
		sz := mir.MemorySizeOf(returnTypes[i])
		slot := -int64(k+2) + int64(cumulative)
		switch {
		case v.IsOperand() && b.Layout.IsContiguous(v.Operand, slot, sz):
			// already in the right place
		case v.IsLiteral():
			if err := b.storeImmediateBySize(slot, v.Literal, sz); err != nil {
				return err
			}
		case v.IsOperand():
			srcOff, err := b.Layout.GetOffset(v.Operand)
			if err != nil {
				return err
			}
			if err := b.copySlots(srcOff, slot, sz); err != nil {
				return err
			}
		default:
			return errors.WithStack(&InvalidMirError{Message: "return value must be a literal or operand"})
		}
		cumulative += sz
	}
	b.emit(isa.OpRet, nil, "")
	return nil
}

// Jump emits an unconditional jump to a symbolic label, patched to an
// absolute target pc during label resolution (spec §4.8 phase 3).
func (b *Builder) Jump(label string) {
	b.emitWithFixup(isa.OpJmpAbsImm, []int64{0}, 0, label, TargetAbsolute, "jmp "+label)
}

// Jnz emits a conditional jump to label when cond is non-zero, patched to
// a relative offset during label resolution (spec §4.7.3, §4.8 phase 3).
func (b *Builder) Jnz(cond mir.Value, label string) error {
	if !cond.IsOperand() {
		return errors.WithStack(&InvalidMirError{Message: "jnz condition must be an operand"})
	}
	condOff, err := b.Layout.GetOffset(cond.Operand)
	if err != nil {
		return err
	}
	b.JnzAtOffset(condOff, label)
	return nil
}

// JnzAtOffset emits a jnz testing the raw fp-offset off directly, for
// conditions synthesized by the orchestrator (e.g. a BranchCmp diff) that
// have no ValueID of their own.
func (b *Builder) JnzAtOffset(off int64, label string) {
	b.emitWithFixup(isa.OpJnzFpImm, []int64{off, 0}, 1, label, TargetRelative, "jnz "+label)
}

// BranchCmpDiffOffset computes left-op-right into a scratch slot for a
// FuseCmpBranch-fused BranchCmp terminator (spec §4.5.4, §4.7.3): the
// orchestrator then feeds the returned offset to JnzAtOffset: for Eq with
// the same inverted sense as an If terminator's condition (jump to else
// on a non-zero diff), for Neq with the opposite polarity. Only
// Eq/Neq are expressible — this instruction set has no U32 subtract
// opcode to compute a U32 diff, and no ordering-comparison opcode at all.
func (b *Builder) BranchCmpDiffOffset(op mir.BinaryOpKind, left, right mir.Value) (int64, error) {
	if op != mir.BEq && op != mir.BNeq {
		return 0, errors.WithStack(&UnsupportedInstructionError{Message: fmt.Sprintf("branch-fused comparison %d has no CASM encoding in this instruction set", op)})
	}
	lOff, err := b.materializeToScratch(left, mir.Felt())
	if err != nil {
		return 0, err
	}
	rOff, err := b.materializeToScratch(right, mir.Felt())
	if err != nil {
		return 0, err
	}
	destOff := b.Layout.ReserveStack(1)
	b.emit(isa.OpStoreSubFpFp, []int64{lOff, rOff, destOff}, "branch cmp diff")
	b.Layout.RecordWrite(destOff, 1)
	return destOff, nil
}
