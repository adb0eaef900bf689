// Package codegen implements the code generator orchestrator (spec
// §4.8): three phases over a whole MirModule. It lays out each function
// independently, emits each one against a fresh builder.Builder with
// fall-through elision, then resolves every symbolic label produced
// during emission into a final absolute or relative operand in a single
// global pass — mirroring the teacher's own two-step "emit, then
// ResolveRelocations" compilation pipeline, generalized from one
// function's worth of native code to a whole module's worth of labels
// sharing one flat address space.
package codegen

import (
	"fmt"

	"github.com/pkg/errors"

	"github.com/kkrt-labs/cairo-m-sub002/internal/codegen/builder"
	"github.com/kkrt-labs/cairo-m-sub002/internal/isa"
	"github.com/kkrt-labs/cairo-m-sub002/internal/layout"
	"github.com/kkrt-labs/cairo-m-sub002/internal/mir"
)

// UnresolvedLabelError reports a Fixup whose target label never received
// a position during emission (spec §4.8 phase 3) — a compiler-internal
// bug (a call/jump to a function or block that doesn't exist in the
// module), not a condition a well-formed module can trigger.
type UnresolvedLabelError struct {
	Label string
}

func (e *UnresolvedLabelError) Error() string { return "codegen: unresolved label: " + e.Label }

// MissingTargetError reports a Call/VoidCall whose Callee FunctionID has
// no corresponding function in the module.
type MissingTargetError struct {
	FunctionID mir.FunctionID
}

func (e *MissingTargetError) Error() string {
	return fmt.Sprintf("codegen: call references missing function id %d", e.FunctionID)
}

// CompiledInstruction is one fully-resolved CASM instruction at its final
// absolute program-counter position (measured in QM31 cells).
type CompiledInstruction struct {
	PC      int
	Instr   isa.Instruction
	Comment string
}

// CompiledProgram is the flat, fully-linked instruction stream produced
// by Generate, ready for the runner (C9) to execute.
type CompiledProgram struct {
	Instructions []CompiledInstruction
	// EntryPCs maps every function's declared name to the pc of its
	// first instruction, for the caller to set up an entrypoint call.
	EntryPCs map[string]int
}

// functionEmission is one function's phase-2 output: a local instruction
// stream plus local label positions/fixups, carried into phase 3 once
// every function's instruction count is known and a global pc can be
// assigned.
type functionEmission struct {
	name         string
	instructions []builder.Emitted
	labels       map[string]int // label -> local index into instructions
	fixups       []builder.Fixup
}

// Generate runs the three phases of spec §4.8 over m, producing a fully
// linked CompiledProgram. Functions are laid out and emitted in module
// order; nothing about the result depends on that order beyond the pc
// assignment itself, matching the independence guarantee of spec §5.
func Generate(m *mir.Module) (*CompiledProgram, error) {
	emissions := make([]functionEmission, len(m.Functions))

	for i, fn := range m.Functions {
		l, err := layout.NewForFunction(fn)
		if err != nil {
			return nil, err
		}
		b := builder.New(l, fn)
		b.Label(fn.Name)

		if err := emitFunctionBody(b, m, fn); err != nil {
			return nil, errors.WithMessagef(err, "function %q", fn.Name)
		}

		emissions[i] = functionEmission{
			name:         fn.Name,
			instructions: b.Instructions,
			labels:       b.LabelPositions,
			fixups:       b.Fixups,
		}
	}

	globalLabels := make(map[string]int)
	starts := make([]int, len(emissions))
	pc := 0
	for i, em := range emissions {
		starts[i] = pc
		for label, localIdx := range em.labels {
			globalLabels[label] = pc + localPC(em.instructions, localIdx)
		}
		pc += totalQM31s(em.instructions)
	}

	var out []CompiledInstruction
	entryPCs := make(map[string]int, len(emissions))
	for i, em := range emissions {
		entryPCs[em.name] = starts[i]

		fixupsByIdx := make(map[int][]builder.Fixup, len(em.fixups))
		for _, fx := range em.fixups {
			fixupsByIdx[fx.InstrIdx] = append(fixupsByIdx[fx.InstrIdx], fx)
		}

		instrPC := starts[i]
		for idx, e := range em.instructions {
			for _, fx := range fixupsByIdx[idx] {
				target, ok := globalLabels[fx.TargetLabel]
				if !ok {
					return nil, errors.WithStack(&UnresolvedLabelError{Label: fx.TargetLabel})
				}
				switch fx.Kind {
				case builder.TargetAbsolute:
					e.Operands[fx.OperandIdx] = int64(target)
				case builder.TargetRelative:
					e.Operands[fx.OperandIdx] = int64(target - instrPC)
				}
			}
			instr, err := e.ToInstruction()
			if err != nil {
				return nil, err
			}
			out = append(out, CompiledInstruction{PC: instrPC, Instr: instr, Comment: e.Comment})
			instrPC += e.Op.SizeInQM31s()
		}
	}

	return &CompiledProgram{Instructions: out, EntryPCs: entryPCs}, nil
}

func localPC(instructions []builder.Emitted, idx int) int {
	pc := 0
	for i := 0; i < idx; i++ {
		pc += instructions[i].Op.SizeInQM31s()
	}
	return pc
}

func totalQM31s(instructions []builder.Emitted) int {
	n := 0
	for _, e := range instructions {
		n += e.Op.SizeInQM31s()
	}
	return n
}

// labelForBlock names a basic block's label uniquely across the whole
// module (block IDs alone collide across functions, since every
// function numbers its blocks from zero).
func labelForBlock(fnName string, id mir.BasicBlockID) string {
	return fmt.Sprintf("%s::block%d", fnName, id)
}

// isFallthrough reports whether target is the block immediately
// following blocks[idx] in textual (insertion) order, the condition
// under which spec §4.8 phase 2 elides an unconditional jump.
func isFallthrough(blocks []*mir.BasicBlock, idx int, target mir.BasicBlockID) bool {
	return idx+1 < len(blocks) && blocks[idx+1].ID == target
}

// emitFunctionBody lowers one function's basic blocks and terminators
// against b, in the order spec §4.8 phase 2 describes: a label per
// block, each instruction lowered via builder.LowerInstruction (Call and
// VoidCall routed through LowerCall instead, since only the module-level
// orchestrator can resolve a FunctionID to its callee's label), and the
// terminator lowered with fall-through elision.
func emitFunctionBody(b *builder.Builder, m *mir.Module, fn *mir.Function) error {
	blocks := fn.BasicBlocks()
	for idx, blk := range blocks {
		b.Label(labelForBlock(fn.Name, blk.ID))

		for i := range blk.Instructions {
			instr := blk.Instructions[i]
			if instr.Kind == mir.KCall || instr.Kind == mir.KVoidCall {
				callee, ok := m.Function(instr.Callee)
				if !ok {
					return errors.WithStack(&MissingTargetError{FunctionID: instr.Callee})
				}
				if err := b.LowerCall(callee.Name, instr.Args, instr.Signature, instr.Dests); err != nil {
					return err
				}
				continue
			}
			if err := b.LowerInstruction(instr); err != nil {
				return err
			}
		}

		term := blk.Terminator
		if term == nil {
			return errors.WithStack(&builder.InvalidMirError{Message: fmt.Sprintf("block %d has no terminator", blk.ID)})
		}

		switch term.Kind {
		case mir.TJump:
			if !isFallthrough(blocks, idx, term.Target) {
				b.Jump(labelForBlock(fn.Name, term.Target))
			}

		case mir.TIf:
			elseLabel := labelForBlock(fn.Name, term.ElseTarget)
			if err := b.Jnz(term.Condition, elseLabel); err != nil {
				return err
			}
			if !isFallthrough(blocks, idx, term.ThenTarget) {
				b.Jump(labelForBlock(fn.Name, term.ThenTarget))
			}

		case mir.TBranchCmp:
			diffOff, err := b.BranchCmpDiffOffset(term.CmpOp, term.Left, term.Right)
			if err != nil {
				return err
			}
			thenLabel := labelForBlock(fn.Name, term.ThenTarget)
			elseLabel := labelForBlock(fn.Name, term.ElseTarget)
			if term.CmpOp == mir.BNeq || term.CmpOp == mir.BU32Neq {
				// diff != 0 means not-equal, i.e. take ThenTarget: jump to
				// ThenTarget when the diff is non-zero, fall through (or
				// jump) to ElseTarget otherwise — the inverse polarity of
				// the Eq case below (BranchCmpDiffOffset itself rejects
				// any CmpOp other than Eq/Neq, so this is the only other
				// case reachable here).
				b.JnzAtOffset(diffOff, thenLabel)
				if !isFallthrough(blocks, idx, term.ElseTarget) {
					b.Jump(elseLabel)
				}
			} else {
				// diff == 0 means equal, i.e. take ThenTarget: jump to
				// ElseTarget when the diff is non-zero, fall through (or
				// jump) to ThenTarget otherwise.
				b.JnzAtOffset(diffOff, elseLabel)
				if !isFallthrough(blocks, idx, term.ThenTarget) {
					b.Jump(thenLabel)
				}
			}

		case mir.TReturn:
			if err := b.ReturnValues(term.Values, fn.ReturnType); err != nil {
				return err
			}

		case mir.TUnreachable:
			// No CASM representation: control never reaches here by
			// construction, so nothing is emitted.

		default:
			return errors.WithStack(&builder.InvalidMirError{Message: "unknown terminator kind"})
		}
	}
	return nil
}
