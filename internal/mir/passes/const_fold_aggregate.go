package passes

import "github.com/kkrt-labs/cairo-m-sub002/internal/mir"

// ConstFoldAggregate folds aggregate operations whose argument is defined
// earlier in the same block by a matching aggregate constructor (spec
// §4.5.5): `ExtractTupleElement(MakeTuple(a, b), 1) -> Assign(b)`,
// `ExtractStructField(MakeStruct{x: a}, "x") -> Assign(a)`, and the
// InsertField/InsertTuple counterparts fold into a fresh constructor with
// one field replaced. A second sweep then removes MakeTuple/MakeStruct
// instructions left with no remaining uses.
type ConstFoldAggregate struct{}

func NewConstFoldAggregate() *ConstFoldAggregate { return &ConstFoldAggregate{} }

func (p *ConstFoldAggregate) Name() string { return "ConstFold" }

func (p *ConstFoldAggregate) Run(fn *mir.Function) bool {
	changed := false
	for _, b := range fn.Blocks {
		if p.foldBlock(b) {
			changed = true
		}
	}
	if p.eliminateDeadAggregates(fn) {
		changed = true
	}
	return changed
}

// foldBlock scans b for extract/insert instructions whose source aggregate
// was built by a MakeTuple/MakeStruct earlier in the same block, and
// rewrites them in place. Definitions are looked up within this single
// block only, matching the per-block scope of the originating pass.
func (p *ConstFoldAggregate) foldBlock(b *mir.BasicBlock) bool {
	changed := false
	defs := make(map[mir.ValueID]*mir.Instruction, len(b.Instructions))
	for i := range b.Instructions {
		instr := &b.Instructions[i]
		if dest, ok := instr.Destination(); ok {
			defs[dest] = instr
		}
	}

	for i := range b.Instructions {
		instr := &b.Instructions[i]
		switch instr.Kind {
		case mir.KExtractTupleElement:
			if !instr.Source.IsOperand() {
				continue
			}
			tupleDef, ok := defs[instr.Source.Operand]
			if !ok || tupleDef.Kind != mir.KMakeTuple {
				continue
			}
			if instr.TupleIndex < 0 || instr.TupleIndex >= len(tupleDef.TupleElems) {
				continue
			}
			dest, ty := instr.Dest, instr.Ty
			*instr = mir.Assign(dest, tupleDef.TupleElems[instr.TupleIndex], ty)
			changed = true

		case mir.KExtractStructField:
			if !instr.Source.IsOperand() {
				continue
			}
			structDef, ok := defs[instr.Source.Operand]
			if !ok || structDef.Kind != mir.KMakeStruct {
				continue
			}
			fieldVal, ok := findStructField(structDef.StructFields, instr.FieldName)
			if !ok {
				continue
			}
			dest, ty := instr.Dest, instr.Ty
			*instr = mir.Assign(dest, fieldVal, ty)
			changed = true

		case mir.KInsertField:
			if !instr.Source.IsOperand() {
				continue
			}
			structDef, ok := defs[instr.Source.Operand]
			if !ok || structDef.Kind != mir.KMakeStruct {
				continue
			}
			newFields := make([]mir.StructFieldValue, len(structDef.StructFields))
			copy(newFields, structDef.StructFields)
			for j := range newFields {
				if newFields[j].Name == instr.FieldName {
					newFields[j].Value = instr.InsertVal
					break
				}
			}
			dest, ty := instr.Dest, instr.Ty
			*instr = mir.MakeStruct(dest, structDef.StructName, newFields, ty)
			changed = true

		case mir.KInsertTuple:
			if !instr.Source.IsOperand() {
				continue
			}
			tupleDef, ok := defs[instr.Source.Operand]
			if !ok || tupleDef.Kind != mir.KMakeTuple {
				continue
			}
			if instr.TupleIndex < 0 || instr.TupleIndex >= len(tupleDef.TupleElems) {
				continue
			}
			newElems := make([]mir.Value, len(tupleDef.TupleElems))
			copy(newElems, tupleDef.TupleElems)
			newElems[instr.TupleIndex] = instr.InsertVal
			dest, ty := instr.Dest, instr.Ty
			*instr = mir.MakeTuple(dest, newElems, ty)
			changed = true
		}
	}
	return changed
}

func findStructField(fields []mir.StructFieldValue, name string) (mir.Value, bool) {
	for _, f := range fields {
		if f.Name == name {
			return f.Value, true
		}
	}
	return mir.Value{}, false
}

// eliminateDeadAggregates removes every MakeTuple/MakeStruct whose
// destination has no remaining uses anywhere in the function.
func (p *ConstFoldAggregate) eliminateDeadAggregates(fn *mir.Function) bool {
	changed := false
	useCounts := fn.GetValueUseCounts()

	for _, b := range fn.Blocks {
		kept := b.Instructions[:0]
		for _, instr := range b.Instructions {
			if (instr.Kind == mir.KMakeTuple || instr.Kind == mir.KMakeStruct) && useCounts[instr.Dest] == 0 {
				changed = true
				continue
			}
			kept = append(kept, instr)
		}
		b.Instructions = kept
	}
	return changed
}
