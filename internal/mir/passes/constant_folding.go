package passes

import "github.com/kkrt-labs/cairo-m-sub002/internal/mir"

// ConstantFolding rewrites instructions whose operands are all Literal
// into a direct Assign of the computed result (spec §4.5.2), e.g.
// `3 + 4 -> 7`, `10 == 5 -> false`. Non-foldable cases (division by a
// zero literal, mixed operand/literal operands) are left unchanged.
type ConstantFolding struct{}

func NewConstantFolding() *ConstantFolding { return &ConstantFolding{} }

func (p *ConstantFolding) Name() string { return "ConstantFolding" }

func (p *ConstantFolding) Run(fn *mir.Function) bool {
	modified := false
	fn.AllInstructions(func(_ *mir.BasicBlock, _ int, instr *mir.Instruction) bool {
		if tryFoldInstruction(instr) {
			modified = true
		}
		return true
	})
	return modified
}

func tryFoldInstruction(instr *mir.Instruction) bool {
	switch instr.Kind {
	case mir.KBinaryOp:
		if !instr.Left.IsLiteral() || !instr.Right.IsLiteral() {
			return false
		}
		result, ok := EvalBinaryOp(instr.BinOp, instr.Left.Literal, instr.Right.Literal)
		if !ok {
			return false
		}
		dest := instr.Dest
		*instr = mir.Assign(dest, mir.LiteralValue(result), binaryResultType(instr.BinOp))
		return true

	case mir.KUnaryOp:
		if !instr.Source.IsLiteral() {
			return false
		}
		result, ok := EvalUnaryOp(instr.UnOp, instr.Source.Literal)
		if !ok {
			return false
		}
		dest := instr.Dest
		*instr = mir.Assign(dest, mir.LiteralValue(result), unaryResultType(instr.UnOp))
		return true
	}
	return false
}
