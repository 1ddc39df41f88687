package provider

import (
	"math"
	"math/rand/v2"
)

// --------------------------------------------------------------------------
// Math Operations
// --------------------------------------------------------------------------

// MathOp names a numeric mutation applied by IProvider.Math.
type MathOp string

const (
	MathAdd      MathOp = "add"
	MathSubtract MathOp = "sub"
	MathMultiply MathOp = "multi"
	MathDivide   MathOp = "div"
	MathExponent MathOp = "exp"
	MathModulo   MathOp = "mod"
	MathRandom   MathOp = "rand"
)

// ParseMathOp resolves an operation name or one of its aliases into the
// canonical MathOp. The boolean is false for unknown names.
func ParseMathOp(s string) (MathOp, bool) {
	switch s {
	case "add", "addition", "+":
		return MathAdd, true
	case "sub", "subtract", "-":
		return MathSubtract, true
	case "multi", "multiply", "*":
		return MathMultiply, true
	case "div", "divide", "/":
		return MathDivide, true
	case "exp", "exponent", "^":
		return MathExponent, true
	case "mod", "modulo", "%":
		return MathModulo, true
	case "rand", "random":
		return MathRandom, true
	default:
		return "", false
	}
}

// Apply computes the result of the operation on base with the given
// operand. The boolean is false when the operation is unknown, in which
// case base is returned unchanged.
func (op MathOp) Apply(base, operand float64) (float64, bool) {
	switch op {
	case MathAdd:
		return base + operand, true
	case MathSubtract:
		return base - operand, true
	case MathMultiply:
		return base * operand, true
	case MathDivide:
		return base / operand, true
	case MathExponent:
		return math.Pow(base, operand), true
	case MathModulo:
		return math.Mod(base, operand), true
	case MathRandom:
		return math.Floor(rand.Float64() * math.Floor(operand)), true
	default:
		return base, false
	}
}
