package passes

import "github.com/kkrt-labs/cairo-m-sub002/internal/mir"

// FuseCmpBranch recognizes a compare whose result feeds a single `If`
// terminator and fuses them into one `BranchCmp` terminator, deleting
// the now-redundant compare (spec §4.5.4). It additionally recognizes
// the zero-compare and boolean-not idioms and rewrites them to branch
// directly on the operand, swapping targets as needed.
type FuseCmpBranch struct{}

func NewFuseCmpBranch() *FuseCmpBranch { return &FuseCmpBranch{} }

func (p *FuseCmpBranch) Name() string { return "FuseCmpBranch" }

func isFusibleComparison(op mir.BinaryOpKind) bool {
	switch op {
	case mir.BEq, mir.BNeq, mir.BU32Eq, mir.BU32Neq:
		return true
	default:
		return false
	}
}

func (p *FuseCmpBranch) Run(fn *mir.Function) bool {
	modified := false
	useCounts := fn.GetValueUseCounts()

	for _, b := range fn.Blocks {
		term := b.Terminator
		if term == nil || term.Kind != mir.TIf || !term.Condition.IsOperand() {
			continue
		}
		condID := term.Condition.Operand
		if useCounts[condID] != 1 {
			continue
		}
		n := len(b.Instructions)
		if n == 0 {
			continue
		}
		last := &b.Instructions[n-1]
		dest, ok := last.Destination()
		if !ok || dest != condID {
			continue
		}

		thenTarget, elseTarget := term.ThenTarget, term.ElseTarget

		switch last.Kind {
		case mir.KBinaryOp:
			if !isFusibleComparison(last.BinOp) {
				continue
			}
			leftZero, rightZero := IsZero(last.Left), IsZero(last.Right)
			switch {
			case (last.BinOp == mir.BEq || last.BinOp == mir.BU32Eq) && leftZero && !rightZero:
				*term = mir.If(last.Right, elseTarget, thenTarget)
			case (last.BinOp == mir.BEq || last.BinOp == mir.BU32Eq) && !leftZero && rightZero:
				*term = mir.If(last.Left, elseTarget, thenTarget)
			case (last.BinOp == mir.BNeq || last.BinOp == mir.BU32Neq) && leftZero && !rightZero:
				*term = mir.If(last.Right, thenTarget, elseTarget)
			case (last.BinOp == mir.BNeq || last.BinOp == mir.BU32Neq) && !leftZero && rightZero:
				*term = mir.If(last.Left, thenTarget, elseTarget)
			default:
				*term = mir.BranchCmp(last.BinOp, last.Left, last.Right, thenTarget, elseTarget)
			}
			b.Instructions = b.Instructions[:n-1]
			modified = true

		case mir.KUnaryOp:
			if last.UnOp != mir.UNot {
				continue
			}
			*term = mir.If(last.Source, elseTarget, thenTarget)
			b.Instructions = b.Instructions[:n-1]
			modified = true
		}
	}

	if modified {
		fn.RecomputeEdges()
	}
	return modified
}
