package passes

import "github.com/kkrt-labs/cairo-m-sub002/internal/mir"

// cpLattice is the three-point monotone lattice constant propagation
// computes per ValueID (spec §4.5.3): Unknown is bottom, NonConst is
// top, Const(lit) sits in between and only joins with an equal literal.
type cpLattice struct {
	kind cpLatticeKind
	lit  mir.Literal
}

type cpLatticeKind uint8

const (
	cpUnknown cpLatticeKind = iota
	cpConst
	cpNonConst
)

var cpUnknownValue = cpLattice{kind: cpUnknown}
var cpNonConstValue = cpLattice{kind: cpNonConst}

func cpConstValue(l mir.Literal) cpLattice { return cpLattice{kind: cpConst, lit: l} }

// join implements the standard monotone join: Unknown is absorbed by
// anything; NonConst absorbs everything; two equal Consts stay that
// Const, two differing Consts collapse to NonConst.
func (a cpLattice) join(b cpLattice) cpLattice {
	if a.kind == cpNonConst || b.kind == cpNonConst {
		return cpNonConstValue
	}
	if a.kind == cpUnknown {
		return b
	}
	if b.kind == cpUnknown {
		return a
	}
	if a.lit.Equal(b.lit) {
		return a
	}
	return cpNonConstValue
}

func (a cpLattice) equal(b cpLattice) bool {
	if a.kind != b.kind {
		return false
	}
	if a.kind == cpConst {
		return a.lit.Equal(b.lit)
	}
	return true
}

// ConstantPropagation runs a forward data-flow analysis over the SSA
// lattice {Unknown, Const(lit), NonConst} (spec §4.5.3) and, after
// convergence, rewrites every Operand use whose ValueID resolved to
// Const with the corresponding Literal.
type ConstantPropagation struct{}

func NewConstantPropagation() *ConstantPropagation { return &ConstantPropagation{} }

func (p *ConstantPropagation) Name() string { return "ConstantPropagation" }

func (p *ConstantPropagation) Run(fn *mir.Function) bool {
	state := make(map[mir.ValueID]cpLattice, len(fn.ValueTypes))
	for id := range fn.ValueTypes {
		state[id] = cpUnknownValue
	}
	for _, param := range fn.Params {
		state[param] = cpNonConstValue
	}

	changed := true
	for changed {
		changed = false
		for _, b := range fn.Blocks {
			for _, instr := range b.Instructions {
				dest, lat, ok := evaluateInstruction(instr, state)
				if !ok {
					continue
				}
				old := state[dest]
				next := joinConverge(old, lat)
				if !next.equal(old) {
					state[dest] = next
					changed = true
				}
			}
		}
	}

	return rewriteUses(fn, state)
}

// joinConverge is the monotone update rule driving the worklist to a
// fixed point: a later Unknown never regresses an already-known Const.
func joinConverge(old, next cpLattice) cpLattice {
	switch {
	case old.kind == cpUnknown:
		return next
	case old.kind == cpConst && next.kind == cpConst:
		if old.lit.Equal(next.lit) {
			return old
		}
		return cpNonConstValue
	case old.kind == cpConst && next.kind == cpUnknown:
		return old
	case old.kind == cpNonConst, next.kind == cpNonConst:
		return cpNonConstValue
	default:
		return next
	}
}

func resolve(v mir.Value, state map[mir.ValueID]cpLattice) cpLattice {
	switch v.Form {
	case mir.ValueFormLiteral:
		return cpConstValue(v.Literal)
	case mir.ValueFormOperand:
		if l, ok := state[v.Operand]; ok {
			return l
		}
		return cpUnknownValue
	default: // Error
		return cpNonConstValue
	}
}

func evaluateInstruction(instr mir.Instruction, state map[mir.ValueID]cpLattice) (mir.ValueID, cpLattice, bool) {
	dest, ok := instr.Destination()
	if !ok {
		return 0, cpLattice{}, false
	}

	switch instr.Kind {
	case mir.KAssign:
		return dest, resolve(instr.Source, state), true

	case mir.KUnaryOp:
		src := resolve(instr.Source, state)
		if src.kind == cpUnknown {
			return dest, cpUnknownValue, true
		}
		if src.kind == cpNonConst {
			return dest, cpNonConstValue, true
		}
		if result, ok := EvalUnaryOp(instr.UnOp, src.lit); ok {
			return dest, cpConstValue(result), true
		}
		return dest, cpNonConstValue, true

	case mir.KBinaryOp:
		left := resolve(instr.Left, state)
		right := resolve(instr.Right, state)
		if left.kind == cpConst && right.kind == cpConst {
			if result, ok := EvalBinaryOp(instr.BinOp, left.lit, right.lit); ok {
				return dest, cpConstValue(result), true
			}
			return dest, cpNonConstValue, true
		}
		if left.kind == cpNonConst || right.kind == cpNonConst {
			return dest, cpNonConstValue, true
		}
		return dest, cpUnknownValue, true

	case mir.KPhi:
		acc := cpUnknownValue
		for _, src := range instr.PhiSources {
			acc = acc.join(resolve(src.Value, state))
			if acc.kind == cpNonConst {
				break
			}
		}
		return dest, acc, true

	default:
		// Aggregate constructions, Call, Cast, Debug, Nop, AssertEq have no
		// Literal representation in this lattice (spec §4.5.3).
		return dest, cpNonConstValue, true
	}
}

// rewriteUses replaces every Operand use resolved to Const with its
// Literal. Terminator operands are deliberately left alone; no pass in
// this package folds a branch whose condition has become constant
// (FuseCmpBranch only fuses a compare into its branch).
func rewriteUses(fn *mir.Function, state map[mir.ValueID]cpLattice) bool {
	modified := false
	replace := func(v *mir.Value) {
		if v.Form != mir.ValueFormOperand {
			return
		}
		if l, ok := state[v.Operand]; ok && l.kind == cpConst {
			*v = mir.LiteralValue(l.lit)
			modified = true
		}
	}

	for _, b := range fn.Blocks {
		for i := range b.Instructions {
			instr := &b.Instructions[i]
			switch instr.Kind {
			case mir.KAssign, mir.KCast:
				replace(&instr.Source)
			case mir.KUnaryOp:
				replace(&instr.Source)
			case mir.KBinaryOp:
				replace(&instr.Left)
				replace(&instr.Right)
			case mir.KCall, mir.KVoidCall, mir.KDebug:
				for j := range instr.Args {
					replace(&instr.Args[j])
				}
			case mir.KPhi:
				for j := range instr.PhiSources {
					replace(&instr.PhiSources[j].Value)
				}
			case mir.KMakeTuple:
				for j := range instr.TupleElems {
					replace(&instr.TupleElems[j])
				}
			case mir.KExtractTupleElement:
				replace(&instr.Source)
			case mir.KInsertTuple:
				replace(&instr.Source)
				replace(&instr.InsertVal)
			case mir.KMakeStruct:
				for j := range instr.StructFields {
					replace(&instr.StructFields[j].Value)
				}
			case mir.KExtractStructField:
				replace(&instr.Source)
			case mir.KInsertField:
				replace(&instr.Source)
				replace(&instr.InsertVal)
			case mir.KMakeFixedArray:
				for j := range instr.ArrayElems {
					replace(&instr.ArrayElems[j])
				}
			case mir.KArrayIndex:
				replace(&instr.Base)
				replace(&instr.Offset)
			case mir.KArrayInsert:
				replace(&instr.Base)
				replace(&instr.Offset)
				replace(&instr.InsertVal)
			case mir.KAssertEq:
				replace(&instr.Left)
				replace(&instr.Right)
			}
		}
	}
	return modified
}
