package passes

import "github.com/kkrt-labs/cairo-m-sub002/internal/mir"

// Pass is the uniform contract every MIR optimization pass implements
// (spec §4.5): Run mutates fn in place and reports whether it changed
// anything; Name is a stable identifier used for pass-manager logging.
// Passes may run in any order, and the pipeline is expected to reach a
// fixed point under repeated application.
type Pass interface {
	Run(fn *mir.Function) bool
	Name() string
}

// RunToFixedPoint repeatedly applies every pass in order until a full
// sweep leaves fn unchanged, matching the teacher's own iterate-passes-
// until-no-change pipeline driver idiom.
func RunToFixedPoint(fn *mir.Function, pipeline []Pass) {
	for {
		changed := false
		for _, p := range pipeline {
			if p.Run(fn) {
				changed = true
			}
		}
		if !changed {
			return
		}
	}
}

// binaryResultType returns the MIR type a folded BinaryOp result carries:
// Bool for comparisons and boolean logic, Felt/U32 arithmetic otherwise
// matching the operator's family.
func binaryResultType(op mir.BinaryOpKind) mir.Type {
	if op.IsComparison() || op == mir.BAnd || op == mir.BOr {
		return mir.Bool()
	}
	if op.IsU32Family() {
		return mir.U32()
	}
	return mir.Felt()
}

func unaryResultType(op mir.UnaryOpKind) mir.Type {
	if op == mir.UNot {
		return mir.Bool()
	}
	return mir.Felt()
}
