// Package passes implements the MIR optimization pipeline (spec §4.5,
// C5): a shared constant evaluator plus a sequence of independent passes
// that each conform to the Run(*mir.Function) bool contract. Passes may
// be applied in any order and the pipeline is expected to reach a fixed
// point under repeated application, mirroring the teacher's own
// iterate-to-fixed-point optimization passes (ssa pass manager style).
package passes

import (
	"github.com/kkrt-labs/cairo-m-sub002/internal/field"
	"github.com/kkrt-labs/cairo-m-sub002/internal/mir"
)

// EvalBinaryOp evaluates a binary operator on two literals at compile
// time. It returns ok=false when the operation cannot be folded: a type
// mismatch between op's family and the literal kinds, an ordering
// comparison on Felts (never defined, spec §3.3), or a division/modulo
// by a zero divisor (spec §4.5.1, invariant 8 — division by zero is
// never folded, for both Felt and U32).
func EvalBinaryOp(op mir.BinaryOpKind, left, right mir.Literal) (mir.Literal, bool) {
	if op.IsU32Family() {
		return evalU32BinaryOp(op, left, right)
	}
	return evalFeltBinaryOp(op, left, right)
}

func evalFeltBinaryOp(op mir.BinaryOpKind, left, right mir.Literal) (mir.Literal, bool) {
	switch op {
	case mir.BAdd, mir.BSub, mir.BMul, mir.BDiv:
		if left.Kind != mir.LiteralInteger || right.Kind != mir.LiteralInteger {
			return mir.Literal{}, false
		}
		a := field.NewM31(left.Integer)
		b := field.NewM31(right.Integer)
		switch op {
		case mir.BAdd:
			return mir.IntLiteral(a.Add(b).Uint32()), true
		case mir.BSub:
			return mir.IntLiteral(a.Sub(b).Uint32()), true
		case mir.BMul:
			return mir.IntLiteral(a.Mul(b).Uint32()), true
		case mir.BDiv:
			if b.IsZero() {
				return mir.Literal{}, false
			}
			return mir.IntLiteral(a.Div(b).Uint32()), true
		}
	case mir.BEq, mir.BNeq:
		if left.Kind != mir.LiteralInteger || right.Kind != mir.LiteralInteger {
			return mir.Literal{}, false
		}
		a := field.NewM31(left.Integer)
		b := field.NewM31(right.Integer)
		if op == mir.BEq {
			return mir.BoolLiteral(a.Equal(b)), true
		}
		return mir.BoolLiteral(!a.Equal(b)), true
	case mir.BAnd, mir.BOr:
		if left.Kind != mir.LiteralBoolean || right.Kind != mir.LiteralBoolean {
			return mir.Literal{}, false
		}
		if op == mir.BAnd {
			return mir.BoolLiteral(left.Boolean && right.Boolean), true
		}
		return mir.BoolLiteral(left.Boolean || right.Boolean), true
	}
	return mir.Literal{}, false
}

func evalU32BinaryOp(op mir.BinaryOpKind, left, right mir.Literal) (mir.Literal, bool) {
	if left.Kind != mir.LiteralInteger || right.Kind != mir.LiteralInteger {
		return mir.Literal{}, false
	}
	a, b := left.Integer, right.Integer
	switch op {
	case mir.BU32Add:
		return mir.IntLiteral(a + b), true
	case mir.BU32Sub:
		return mir.IntLiteral(a - b), true
	case mir.BU32Mul:
		return mir.IntLiteral(a * b), true
	case mir.BU32Div:
		if b == 0 {
			return mir.Literal{}, false
		}
		return mir.IntLiteral(a / b), true
	case mir.BU32Rem:
		if b == 0 {
			return mir.Literal{}, false
		}
		return mir.IntLiteral(a % b), true
	case mir.BU32Eq:
		return mir.BoolLiteral(a == b), true
	case mir.BU32Neq:
		return mir.BoolLiteral(a != b), true
	case mir.BU32Less:
		return mir.BoolLiteral(a < b), true
	case mir.BU32Greater:
		return mir.BoolLiteral(a > b), true
	case mir.BU32LessEqual:
		return mir.BoolLiteral(a <= b), true
	case mir.BU32GreaterEqual:
		return mir.BoolLiteral(a >= b), true
	case mir.BU32BitwiseAnd:
		return mir.IntLiteral(a & b), true
	case mir.BU32BitwiseOr:
		return mir.IntLiteral(a | b), true
	case mir.BU32BitwiseXor:
		return mir.IntLiteral(a ^ b), true
	}
	return mir.Literal{}, false
}

// EvalUnaryOp evaluates a unary operator on a literal at compile time.
func EvalUnaryOp(op mir.UnaryOpKind, operand mir.Literal) (mir.Literal, bool) {
	switch op {
	case mir.UNot:
		if operand.Kind != mir.LiteralBoolean {
			return mir.Literal{}, false
		}
		return mir.BoolLiteral(!operand.Boolean), true
	case mir.UNeg:
		if operand.Kind != mir.LiteralInteger {
			return mir.Literal{}, false
		}
		return mir.IntLiteral(field.NewM31(operand.Integer).Neg().Uint32()), true
	}
	return mir.Literal{}, false
}

// IsZero reports whether a Value is the compile-time zero of its
// (implied) type: the integer literal 0 or the boolean literal false.
func IsZero(v mir.Value) bool {
	if !v.IsLiteral() {
		return false
	}
	switch v.Literal.Kind {
	case mir.LiteralInteger:
		return v.Literal.Integer == 0
	case mir.LiteralBoolean:
		return !v.Literal.Boolean
	default:
		return false
	}
}

// IsOne reports whether a Value is the compile-time multiplicative
// identity: the integer literal 1 or the boolean literal true.
func IsOne(v mir.Value) bool {
	if !v.IsLiteral() {
		return false
	}
	switch v.Literal.Kind {
	case mir.LiteralInteger:
		return v.Literal.Integer == 1
	case mir.LiteralBoolean:
		return v.Literal.Boolean
	default:
		return false
	}
}

// IdentityValue returns the literal e such that `op(x, e) == x`, when
// one exists for op, to drive algebraic simplifications like `x+0 = x`.
func IdentityValue(op mir.BinaryOpKind) (mir.Literal, bool) {
	switch op {
	case mir.BAdd, mir.BSub, mir.BU32Add, mir.BU32Sub:
		return mir.IntLiteral(0), true
	case mir.BMul, mir.BDiv, mir.BU32Mul, mir.BU32Div:
		return mir.IntLiteral(1), true
	case mir.BAnd:
		return mir.BoolLiteral(true), true
	case mir.BOr:
		return mir.BoolLiteral(false), true
	default:
		return mir.Literal{}, false
	}
}

// AbsorbingValue returns the literal z such that `op(x, z) == z`
// regardless of x, when one exists for op, e.g. `x*0 = 0`.
func AbsorbingValue(op mir.BinaryOpKind) (mir.Literal, bool) {
	switch op {
	case mir.BMul, mir.BU32Mul:
		return mir.IntLiteral(0), true
	case mir.BAnd:
		return mir.BoolLiteral(false), true
	case mir.BOr:
		return mir.BoolLiteral(true), true
	default:
		return mir.Literal{}, false
	}
}
