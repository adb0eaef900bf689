package marshal

import (
	"fmt"

	"github.com/pkg/errors"

	"github.com/kkrt-labs/cairo-m-sub002/internal/field"
	"github.com/kkrt-labs/cairo-m-sub002/internal/mir"
	"github.com/kkrt-labs/cairo-m-sub002/internal/runner"
)

// memory is the subset of *runner.Memory this package depends on, kept
// narrow so marshal can be tested without spinning up a full VM.
type memory interface {
	Insert(addr field.M31, value field.QM31) error
	GetData(addr field.M31) (field.M31, error)
}

var _ memory = (*runner.Memory)(nil)

func slotSum(types []mir.Type) int {
	n := 0
	for _, t := range types {
		n += mir.MemorySizeOf(t)
	}
	return n
}

// MarshalArgs writes args into the callee's argument region of the frame
// rooted at fp, per the call ABI's fixed argument layout (spec §4.6,
// §4.10): `[fp-2-K-M, fp-2-K)` where M = Σ sizes(paramTypes), K = Σ
// sizes(returnTypes). A host that knows the entrypoint's parameter and
// return types uses it to seed the entrypoint frame before handing
// control to the runner (the CLI's `run` subcommand does not: it writes
// plain felt slots itself) — the in-CASM call-site optimizations of internal/codegen/
// builder (argument-in-place, direct-return) have no bearing here, since
// there is no caller frame for the entrypoint to inherit values from.
//
// FixedArray arguments are not supported: marshalling one in would
// require allocating and populating its backing storage ahead of the
// call, a heap-allocation concern this package leaves to the caller.
// Pointer-typed arguments are rejected as unsupported as well.
func MarshalArgs(mem memory, fp field.M31, paramTypes, returnTypes []mir.Type, args []Value) error {
	if len(args) != len(paramTypes) {
		return errors.WithStack(&InputMismatchError{Message: fmt.Sprintf("expected %d arguments, got %d", len(paramTypes), len(args))})
	}

	m := slotSum(paramTypes)
	k := slotSum(returnTypes)
	argsOffset := -(2 + k + m)

	addr := fp.Add(field.NewM31FromInt64(int64(argsOffset)))
	for i, ty := range paramTypes {
		next, err := writeValue(mem, addr, ty, args[i])
		if err != nil {
			return err
		}
		addr = next
	}
	return nil
}

// UnmarshalReturns reads the K return slots of the frame rooted at fp and
// reconstructs one Value per entry in returnTypes, in order (spec
// §4.10).
func UnmarshalReturns(mem memory, fp field.M31, paramTypes, returnTypes []mir.Type) ([]Value, error) {
	k := slotSum(returnTypes)
	retOffset := -(2 + k)

	addr := fp.Add(field.NewM31FromInt64(int64(retOffset)))
	out := make([]Value, len(returnTypes))
	for i, ty := range returnTypes {
		v, next, err := readValue(mem, addr, ty)
		if err != nil {
			return nil, err
		}
		out[i] = v
		addr = next
	}
	return out, nil
}

// writeValue writes v (expected to match ty) starting at addr and
// returns the address immediately past it.
func writeValue(mem memory, addr field.M31, ty mir.Type, v Value) (field.M31, error) {
	if v.Kind != ty.Kind {
		return addr, errors.WithStack(&InputMismatchError{Message: fmt.Sprintf("expected %s, got value of kind %d", ty, v.Kind)})
	}

	switch ty.Kind {
	case mir.KindFelt:
		if err := mem.Insert(addr, field.M31ToQM31(field.NewM31(v.Felt))); err != nil {
			return addr, err
		}
		return addr.Add(field.One()), nil

	case mir.KindBool:
		b := uint32(0)
		if v.Bool {
			b = 1
		}
		if err := mem.Insert(addr, field.M31ToQM31(field.NewM31(b))); err != nil {
			return addr, err
		}
		return addr.Add(field.One()), nil

	case mir.KindU32:
		lo := field.NewM31(v.U32 & 0xFFFF)
		hi := field.NewM31((v.U32 >> 16) & 0xFFFF)
		if err := mem.Insert(addr, field.M31ToQM31(lo)); err != nil {
			return addr, err
		}
		next := addr.Add(field.One())
		if err := mem.Insert(next, field.M31ToQM31(hi)); err != nil {
			return addr, err
		}
		return next.Add(field.One()), nil

	case mir.KindUnit:
		return addr, nil

	case mir.KindTuple:
		if len(v.Elements) != len(ty.Elements) {
			return addr, errors.WithStack(&InputMismatchError{Message: fmt.Sprintf("tuple arity mismatch: expected %d, got %d", len(ty.Elements), len(v.Elements))})
		}
		cur := addr
		for i, elemTy := range ty.Elements {
			next, err := writeValue(mem, cur, elemTy, v.Elements[i])
			if err != nil {
				return addr, err
			}
			cur = next
		}
		return cur, nil

	case mir.KindStruct:
		cur := addr
		for _, f := range ty.Fields {
			fv, ok := v.Fields[f.Name]
			if !ok {
				return addr, errors.WithStack(&InputMismatchError{Message: fmt.Sprintf("missing struct field %q", f.Name)})
			}
			next, err := writeValue(mem, cur, f.Type, fv)
			if err != nil {
				return addr, err
			}
			cur = next
		}
		return cur, nil

	default:
		return addr, errors.WithStack(&InputMismatchError{Message: fmt.Sprintf("unsupported argument type %s", ty)})
	}
}

// readValue reconstructs a Value of type ty starting at addr and returns
// the address immediately past it (immediately past the pointer slot
// itself for FixedArray, not past the array's backing storage, which may
// live anywhere in memory).
func readValue(mem memory, addr field.M31, ty mir.Type) (Value, field.M31, error) {
	switch ty.Kind {
	case mir.KindFelt:
		v, err := mem.GetData(addr)
		if err != nil {
			return Value{}, addr, err
		}
		return FeltValue(v.Uint32()), addr.Add(field.One()), nil

	case mir.KindBool:
		v, err := mem.GetData(addr)
		if err != nil {
			return Value{}, addr, err
		}
		return BoolValue(!v.IsZero()), addr.Add(field.One()), nil

	case mir.KindU32:
		lo, err := mem.GetData(addr)
		if err != nil {
			return Value{}, addr, err
		}
		next := addr.Add(field.One())
		hi, err := mem.GetData(next)
		if err != nil {
			return Value{}, addr, err
		}
		return U32Value(lo.Uint32() | hi.Uint32()<<16), next.Add(field.One()), nil

	case mir.KindUnit:
		return UnitValue(), addr, nil

	case mir.KindTuple:
		elems := make([]Value, len(ty.Elements))
		cur := addr
		for i, elemTy := range ty.Elements {
			v, next, err := readValue(mem, cur, elemTy)
			if err != nil {
				return Value{}, addr, err
			}
			elems[i] = v
			cur = next
		}
		return Value{Kind: mir.KindTuple, Elements: elems}, cur, nil

	case mir.KindStruct:
		fields := make(map[string]Value, len(ty.Fields))
		cur := addr
		for _, f := range ty.Fields {
			v, next, err := readValue(mem, cur, f.Type)
			if err != nil {
				return Value{}, addr, err
			}
			fields[f.Name] = v
			cur = next
		}
		return Value{Kind: mir.KindStruct, Fields: fields}, cur, nil

	case mir.KindFixedArray:
		ptr, err := mem.GetData(addr)
		if err != nil {
			return Value{}, addr, err
		}
		elems := make([]Value, ty.Length)
		cur := ptr
		for i := 0; i < ty.Length; i++ {
			v, next, err := readValue(mem, cur, *ty.Elem)
			if err != nil {
				return Value{}, addr, err
			}
			elems[i] = v
			cur = next
		}
		return Value{Kind: mir.KindFixedArray, Elements: elems}, addr.Add(field.One()), nil

	default:
		return Value{}, addr, errors.WithStack(&InputMismatchError{Message: fmt.Sprintf("unsupported return type %s", ty)})
	}
}
