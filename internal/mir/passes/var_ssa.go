package passes

import (
	"sort"

	"github.com/kkrt-labs/cairo-m-sub002/internal/mir"
)

// VarSsaPass promotes memory-spilled variables to SSA form (spec §4.5.7):
// a `StackAlloc` whose pointer is used only as the address of `Load`s and
// `Store`s (never passed to a call, never indexed, never stored as data)
// is a promotable variable. The pass inserts Phi nodes at the variable's
// dominance frontier, renames every Load to the value live at that point
// via a per-variable stack walked over the dominator tree, and elides the
// now-redundant Loads/Stores/StackAlloc.
type VarSsaPass struct{}

func NewVarSsaPass() *VarSsaPass { return &VarSsaPass{} }

func (p *VarSsaPass) Name() string { return "VarSsaPass" }

// promotableVar tracks one candidate variable: its pointer ValueID, the
// element type loaded/stored through it, and the blocks containing a
// Store (the Phi-insertion worklist seed).
type promotableVar struct {
	ptr              mir.ValueID
	elemTy           mir.Type
	assignmentBlocks map[mir.BasicBlockID]struct{}
}

func (p *VarSsaPass) Run(fn *mir.Function) bool {
	vars := identifyPromotableVariables(fn)
	if len(vars) == 0 {
		return false
	}

	domTree := mir.ComputeDominatorTree(fn)
	domFrontiers := mir.ComputeDominanceFrontiers(fn, domTree)

	phiDestFor := insertPhiNodes(fn, vars, domFrontiers)

	globalReplace := make(map[mir.ValueID]mir.Value)
	domChildren := dominatorChildren(domTree)
	renameDFS(fn.EntryBlock().ID, fn, vars, phiDestFor, domChildren, globalReplace,
		make(map[mir.ValueID][]mir.Value))

	reorderPhiSources(fn, phiDestFor)
	applyGlobalReplace(fn, globalReplace)
	eliminatePromotedMemoryOps(fn, vars)

	fn.RecomputeEdges()
	return true
}

// elemType returns the pointee type of a Pointer type, falling back to t
// itself if t is not a Pointer (defensive; StackAlloc always carries a
// Pointer result type).
func elemType(t mir.Type) mir.Type {
	if t.Kind == mir.KindPointer && t.Elem != nil {
		return *t.Elem
	}
	return t
}

// identifyPromotableVariables finds every StackAlloc whose pointer value
// is used exclusively as a Load or Store address (spec §4.5.7 step 1).
func identifyPromotableVariables(fn *mir.Function) []*promotableVar {
	vars := make(map[mir.ValueID]*promotableVar)
	escaping := make(map[mir.ValueID]bool)

	fn.AllInstructions(func(_ *mir.BasicBlock, _ int, instr *mir.Instruction) bool {
		if instr.Kind == mir.KStackAlloc {
			vars[instr.Dest] = &promotableVar{
				ptr:              instr.Dest,
				elemTy:           elemType(instr.Ty),
				assignmentBlocks: make(map[mir.BasicBlockID]struct{}),
			}
		}
		return true
	})

	markEscape := func(v mir.Value) {
		if v.IsOperand() {
			if _, tracked := vars[v.Operand]; tracked {
				escaping[v.Operand] = true
			}
		}
	}

	for _, b := range fn.Blocks {
		for i := range b.Instructions {
			instr := &b.Instructions[i]
			switch instr.Kind {
			case mir.KLoad:
				// Address-of-variable use is exactly what promotion expects.
			case mir.KStore:
				if v, ok := vars[instr.Address.Operand]; instr.Address.IsOperand() && ok {
					v.assignmentBlocks[b.ID] = struct{}{}
				} else {
					markEscape(instr.Address)
				}
				// The stored value itself escapes if it is a tracked
				// pointer being used as ordinary data rather than an
				// address.
				markEscape(instr.Value_)
			default:
				for _, used := range instr.UsedValues() {
					if _, tracked := vars[used]; tracked {
						escaping[used] = true
					}
				}
			}
		}
		if b.Terminator != nil {
			for _, used := range b.Terminator.UsedValues() {
				if _, tracked := vars[used]; tracked {
					escaping[used] = true
				}
			}
		}
	}

	result := make([]*promotableVar, 0, len(vars))
	for ptr, v := range vars {
		if escaping[ptr] {
			continue
		}
		result = append(result, v)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ptr < result[j].ptr })
	return result
}

// insertPhiNodes places an (initially sourceless) Phi at the iterated
// dominance frontier of every variable's assignment blocks (spec §4.5.7
// step 2), returning, per variable, the ValueID of the Phi inserted at
// each block it occupies.
func insertPhiNodes(fn *mir.Function, vars []*promotableVar, df mir.DominanceFrontiers) map[mir.ValueID]map[mir.BasicBlockID]mir.ValueID {
	phiDestFor := make(map[mir.ValueID]map[mir.BasicBlockID]mir.ValueID)

	for _, v := range vars {
		worklist := make([]mir.BasicBlockID, 0, len(v.assignmentBlocks))
		onWorklist := make(map[mir.BasicBlockID]bool)
		for b := range v.assignmentBlocks {
			worklist = append(worklist, b)
			onWorklist[b] = true
		}
		hasPhi := make(map[mir.BasicBlockID]bool)

		for len(worklist) > 0 {
			b := worklist[len(worklist)-1]
			worklist = worklist[:len(worklist)-1]

			for frontierBlock := range df[b] {
				if hasPhi[frontierBlock] {
					continue
				}
				hasPhi[frontierBlock] = true

				dest := fn.AllocateValue(v.elemTy)
				blk := fn.Block(frontierBlock)
				blk.Instructions = append([]mir.Instruction{mir.Phi(dest, v.elemTy, nil)}, blk.Instructions...)

				if phiDestFor[v.ptr] == nil {
					phiDestFor[v.ptr] = make(map[mir.BasicBlockID]mir.ValueID)
				}
				phiDestFor[v.ptr][frontierBlock] = dest

				if !onWorklist[frontierBlock] {
					worklist = append(worklist, frontierBlock)
					onWorklist[frontierBlock] = true
				}
			}
		}
	}

	return phiDestFor
}

func dominatorChildren(domTree mir.DominatorTree) map[mir.BasicBlockID][]mir.BasicBlockID {
	children := make(map[mir.BasicBlockID][]mir.BasicBlockID)
	for child, parent := range domTree {
		if child == parent {
			continue // entry maps to itself by convention
		}
		children[parent] = append(children[parent], child)
	}
	for k := range children {
		sort.Slice(children[k], func(i, j int) bool { return children[k][i] < children[k][j] })
	}
	return children
}

// renameDFS is the third step of spec §4.5.7: a dominator-tree walk that
// maintains a per-variable value stack, rewrites Loads into references to
// the stack top (recorded in globalReplace, applied after the walk
// completes), pushes Store values, and records each Phi's incoming value
// along every live CFG successor edge.
func renameDFS(
	blockID mir.BasicBlockID,
	fn *mir.Function,
	vars []*promotableVar,
	phiDestFor map[mir.ValueID]map[mir.BasicBlockID]mir.ValueID,
	domChildren map[mir.BasicBlockID][]mir.BasicBlockID,
	globalReplace map[mir.ValueID]mir.Value,
	stacks map[mir.ValueID][]mir.Value,
) {
	stackSizes := make(map[mir.ValueID]int, len(vars))
	for _, v := range vars {
		stackSizes[v.ptr] = len(stacks[v.ptr])
	}

	b := fn.Block(blockID)

	for _, v := range vars {
		if dest, ok := phiDestFor[v.ptr][blockID]; ok {
			stacks[v.ptr] = append(stacks[v.ptr], mir.OperandValue(dest))
		}
	}

	for i := range b.Instructions {
		instr := &b.Instructions[i]
		switch instr.Kind {
		case mir.KLoad:
			if !instr.Address.IsOperand() {
				continue
			}
			stack, ok := stacks[instr.Address.Operand]
			if !ok || len(stack) == 0 {
				continue
			}
			globalReplace[instr.Dest] = stack[len(stack)-1]
			*instr = mir.Nop()

		case mir.KStore:
			if !instr.Address.IsOperand() {
				continue
			}
			if _, tracked := stacks[instr.Address.Operand]; !tracked {
				continue
			}
			resolved := resolveValue(instr.Value_, globalReplace)
			stacks[instr.Address.Operand] = append(stacks[instr.Address.Operand], resolved)
			*instr = mir.Nop()
		}
	}

	if b.Terminator != nil {
		for _, succ := range b.Terminator.Successors() {
			for _, v := range vars {
				dest, ok := phiDestFor[v.ptr][succ]
				if !ok {
					continue
				}
				stack := stacks[v.ptr]
				if len(stack) == 0 {
					continue
				}
				appendPhiSource(fn.Block(succ), dest, mir.PhiSource{Block: blockID, Value: stack[len(stack)-1]})
			}
		}
	}

	for _, child := range domChildren[blockID] {
		renameDFS(child, fn, vars, phiDestFor, domChildren, globalReplace, stacks)
	}

	for _, v := range vars {
		stacks[v.ptr] = stacks[v.ptr][:stackSizes[v.ptr]]
	}
}

func appendPhiSource(b *mir.BasicBlock, dest mir.ValueID, src mir.PhiSource) {
	for i := range b.Instructions {
		instr := &b.Instructions[i]
		if instr.Kind == mir.KPhi && instr.Dest == dest {
			instr.PhiSources = append(instr.PhiSources, src)
			return
		}
	}
}

func resolveValue(v mir.Value, globalReplace map[mir.ValueID]mir.Value) mir.Value {
	if v.IsOperand() {
		if replacement, ok := globalReplace[v.Operand]; ok {
			return replacement
		}
	}
	return v
}

// reorderPhiSources sorts each inserted Phi's sources to match its
// block's predecessor enumeration (spec §3.3 invariant 5), since the DFS
// above appends them in dominator-tree visitation order rather than
// predecessor order.
func reorderPhiSources(fn *mir.Function, phiDestFor map[mir.ValueID]map[mir.BasicBlockID]mir.ValueID) {
	for _, byBlock := range phiDestFor {
		for blockID, dest := range byBlock {
			b := fn.Block(blockID)
			for i := range b.Instructions {
				instr := &b.Instructions[i]
				if instr.Kind != mir.KPhi || instr.Dest != dest {
					continue
				}
				preds := b.Preds()
				order := make(map[mir.BasicBlockID]int, len(preds))
				for idx, pred := range preds {
					order[pred] = idx
				}
				sort.SliceStable(instr.PhiSources, func(a, c int) bool {
					return order[instr.PhiSources[a].Block] < order[instr.PhiSources[c].Block]
				})
			}
		}
	}
}

// applyGlobalReplace rewrites every Operand use resolved during renameDFS
// (i.e. every reference to a since-Nop'd Load) with the value that was
// live at that Load (spec §4.5.7 step 3/4).
func applyGlobalReplace(fn *mir.Function, globalReplace map[mir.ValueID]mir.Value) {
	if len(globalReplace) == 0 {
		return
	}
	replace := func(v *mir.Value) {
		if !v.IsOperand() {
			return
		}
		if repl, ok := globalReplace[v.Operand]; ok {
			*v = repl
		}
	}

	for _, b := range fn.Blocks {
		for i := range b.Instructions {
			instr := &b.Instructions[i]
			switch instr.Kind {
			case mir.KAssign, mir.KCast, mir.KAddressOf:
				replace(&instr.Source)
			case mir.KUnaryOp:
				replace(&instr.Source)
			case mir.KBinaryOp:
				replace(&instr.Left)
				replace(&instr.Right)
			case mir.KLoad:
				replace(&instr.Address)
			case mir.KStore:
				replace(&instr.Address)
				replace(&instr.Value_)
			case mir.KGetElementPtr:
				replace(&instr.Base)
				replace(&instr.Offset)
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
		if b.Terminator != nil {
			switch b.Terminator.Kind {
			case mir.TIf:
				replace(&b.Terminator.Condition)
			case mir.TBranchCmp:
				replace(&b.Terminator.Left)
				replace(&b.Terminator.Right)
			case mir.TReturn:
				for j := range b.Terminator.Values {
					replace(&b.Terminator.Values[j])
				}
			}
		}
	}
}

// eliminatePromotedMemoryOps removes the (now-Nop) Loads/Stores created
// during renaming, plus each promoted variable's StackAlloc, which by
// construction has no remaining uses once every Load/Store is gone.
func eliminatePromotedMemoryOps(fn *mir.Function, vars []*promotableVar) {
	promoted := make(map[mir.ValueID]struct{}, len(vars))
	for _, v := range vars {
		promoted[v.ptr] = struct{}{}
	}

	for _, b := range fn.Blocks {
		kept := b.Instructions[:0]
		for _, instr := range b.Instructions {
			if instr.Kind == mir.KNop {
				continue
			}
			if instr.Kind == mir.KStackAlloc {
				if _, ok := promoted[instr.Dest]; ok {
					continue
				}
			}
			kept = append(kept, instr)
		}
		b.Instructions = kept
	}
}
