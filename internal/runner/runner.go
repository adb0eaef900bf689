// Package runner implements the Cairo M virtual machine (spec §4.9): a
// fetch-decode-execute loop over the CASM instruction set (internal/isa),
// driven by three registers (pc, fp, clock) against a flat memory of QM31
// cells. It plays the same role as the teacher's own callEngine loop
// (stack/frame registers driving a switch over decoded opcodes), adapted
// from a stack machine to this project's frame-pointer-relative one.
package runner

import (
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/kkrt-labs/cairo-m-sub002/internal/field"
	"github.com/kkrt-labs/cairo-m-sub002/internal/isa"
)

// Runner holds the three VM registers and the memory they operate over.
type Runner struct {
	Memory *Memory
	PC     field.M31
	FP     field.M31
	Clock  uint64
}

// NewRunner returns a Runner over mem with pc, fp and clock all zeroed;
// callers set PC/FP explicitly (typically via PrepareEntrypoint) before
// stepping.
func NewRunner(mem *Memory) *Runner {
	return &Runner{Memory: mem}
}

// PrepareEntrypoint points pc at entryPC, fp at fp, and writes the
// sentinel call frame a real CallAbsImm would have pushed (spec §4.9):
// entrypoint execution completes when pc reaches haltPC.
func (r *Runner) PrepareEntrypoint(entryPC, fp, haltPC field.M31) error {
	if err := r.Memory.InsertEntrypointCall(haltPC, fp); err != nil {
		return err
	}
	r.PC = entryPC
	r.FP = fp
	return nil
}

// fetch reads one instruction at pc, consuming as many QM31 cells as its
// opcode declares. Every QM31 consumed, including continuation cells of
// a multi-slot opcode, gets its own trace entry (spec §9 design note):
// the runner has no notion of an atomic multi-cell fetch.
func (r *Runner) fetch(pc field.M31) (isa.Instruction, error) {
	first, err := r.Memory.GetInstruction(pc)
	if err != nil {
		return isa.Instruction{}, err
	}
	opVal := first.C0.Uint32()
	op := isa.Opcode(opVal)
	if !op.Valid() {
		return isa.Instruction{}, errors.WithStack(&isa.InvalidOpcodeError{Value: opVal})
	}
	n := op.SizeInQM31s()
	words := make([]field.QM31, 1, n)
	words[0] = first
	for i := 1; i < n; i++ {
		addr := pc.Add(field.NewM31(uint32(i)))
		w, err := r.Memory.GetInstruction(addr)
		if err != nil {
			return isa.Instruction{}, err
		}
		words = append(words, w)
	}
	return isa.FromQM31Slice(words)
}

// Step decodes and executes exactly one instruction, advancing pc, fp
// and clock as the opcode dictates. Returns the opcode executed, so a
// caller running to a halt pc can still tell Ret from JmpAbsImm etc.
func (r *Runner) Step() (isa.Opcode, error) {
	instr, err := r.fetch(r.PC)
	if err != nil {
		return 0, err
	}
	ops := instr.Operands()

	if log.IsLevelEnabled(log.TraceLevel) {
		log.Tracef("Step: pc=%d fp=%d clock=%d %v", r.PC.Uint32(), r.FP.Uint32(), r.Clock, instr)
	}

	advance := func() { r.PC = r.PC.Add(field.NewM31(uint32(instr.Op.SizeInQM31s()))) }

	switch instr.Op {
	case isa.OpStoreAddFpFp:
		if err := r.storeFpFp(ops, func(a, b field.M31) field.M31 { return a.Add(b) }); err != nil {
			return 0, err
		}
		advance()
	case isa.OpStoreAddFpImm:
		if err := r.storeFpImm(ops, func(a, imm field.M31) field.M31 { return a.Add(imm) }); err != nil {
			return 0, err
		}
		advance()
	case isa.OpStoreSubFpFp:
		if err := r.storeFpFp(ops, func(a, b field.M31) field.M31 { return a.Sub(b) }); err != nil {
			return 0, err
		}
		advance()
	case isa.OpStoreSubFpImm:
		if err := r.storeFpImm(ops, func(a, imm field.M31) field.M31 { return a.Sub(imm) }); err != nil {
			return 0, err
		}
		advance()
	case isa.OpStoreMulFpFp:
		if err := r.storeFpFp(ops, func(a, b field.M31) field.M31 { return a.Mul(b) }); err != nil {
			return 0, err
		}
		advance()
	case isa.OpStoreMulFpImm:
		if err := r.storeFpImm(ops, func(a, imm field.M31) field.M31 { return a.Mul(imm) }); err != nil {
			return 0, err
		}
		advance()
	case isa.OpStoreDivFpFp:
		if err := r.storeFpFp(ops, func(a, b field.M31) field.M31 { return a.Div(b) }); err != nil {
			return 0, err
		}
		advance()
	case isa.OpStoreDivFpImm:
		if err := r.storeFpImm(ops, func(a, imm field.M31) field.M31 { return a.Div(imm) }); err != nil {
			return 0, err
		}
		advance()
	case isa.OpStoreDoubleDerefFp:
		if err := r.storeDoubleDeref(ops); err != nil {
			return 0, err
		}
		advance()
	case isa.OpStoreImm:
		dst := r.FP.Add(ops[1])
		if err := r.Memory.Insert(dst, field.M31ToQM31(ops[0])); err != nil {
			return 0, err
		}
		advance()
	case isa.OpCallAbsImm:
		if err := r.execCall(ops, instr.Op.SizeInQM31s()); err != nil {
			return 0, err
		}
	case isa.OpRet:
		if err := r.execRet(); err != nil {
			return 0, err
		}
	case isa.OpJmpAbsImm:
		r.PC = ops[0]
	case isa.OpJmpRelImm:
		r.PC = r.PC.Add(ops[0])
	case isa.OpJnzFpImm:
		cond, err := r.Memory.GetData(r.FP.Add(ops[0]))
		if err != nil {
			return 0, err
		}
		if !cond.IsZero() {
			r.PC = r.PC.Add(ops[1])
		} else {
			advance()
		}
	case isa.OpU32StoreAddFpImm:
		if err := r.execU32StoreAddFpImm(ops); err != nil {
			return 0, err
		}
		advance()
	default:
		return 0, errors.Errorf("runner: opcode %s has no execution semantics", instr.Op)
	}

	r.Clock++
	return instr.Op, nil
}

// Run steps the machine until pc equals haltPC or maxSteps is exhausted
// (a runaway-program backstop; the spec itself places no bound on
// program length). Returns the number of steps executed.
func (r *Runner) Run(haltPC field.M31, maxSteps int) (int, error) {
	steps := 0
	for !r.PC.Equal(haltPC) {
		if steps >= maxSteps {
			return steps, errors.Errorf("runner: exceeded %d steps without reaching halt pc %d", maxSteps, haltPC.Uint32())
		}
		if _, err := r.Step(); err != nil {
			return steps, err
		}
		steps++
	}
	return steps, nil
}

func (r *Runner) storeFpFp(ops []field.M31, combine func(a, b field.M31) field.M31) error {
	a, err := r.Memory.GetData(r.FP.Add(ops[0]))
	if err != nil {
		return err
	}
	b, err := r.Memory.GetData(r.FP.Add(ops[1]))
	if err != nil {
		return err
	}
	dst := r.FP.Add(ops[2])
	return r.Memory.Insert(dst, field.M31ToQM31(combine(a, b)))
}

func (r *Runner) storeFpImm(ops []field.M31, combine func(a, imm field.M31) field.M31) error {
	a, err := r.Memory.GetData(r.FP.Add(ops[0]))
	if err != nil {
		return err
	}
	dst := r.FP.Add(ops[2])
	return r.Memory.Insert(dst, field.M31ToQM31(combine(a, ops[1])))
}

// storeDoubleDeref implements `[dst] = [[fp+base] + offset]`: the first
// read yields a pointer value (itself an address), the second is the
// data behind it.
func (r *Runner) storeDoubleDeref(ops []field.M31) error {
	ptr, err := r.Memory.GetData(r.FP.Add(ops[0]))
	if err != nil {
		return err
	}
	val, err := r.Memory.GetData(ptr.Add(ops[1]))
	if err != nil {
		return err
	}
	dst := r.FP.Add(ops[2])
	return r.Memory.Insert(dst, field.M31ToQM31(val))
}

// execCall allocates the callee's frame, saves the caller's fp and
// return address, and redirects pc to the callee's entry (spec §4.7.1).
func (r *Runner) execCall(ops []field.M31, selfSizeQM31s int) error {
	frameOff, target := ops[0], ops[1]
	newFP := r.FP.Add(frameOff)
	returnPC := r.PC.Add(field.NewM31(uint32(selfSizeQM31s)))

	if err := r.Memory.Insert(newFP.Sub(field.NewM31(2)), field.M31ToQM31(r.FP)); err != nil {
		return err
	}
	if err := r.Memory.Insert(newFP.Sub(field.One()), field.M31ToQM31(returnPC)); err != nil {
		return err
	}
	r.FP = newFP
	r.PC = target
	return nil
}

// execRet restores the caller's frame and redirects pc to the saved
// return address (spec §4.7.1).
func (r *Runner) execRet() error {
	callerFP, err := r.Memory.GetData(r.FP.Sub(field.NewM31(2)))
	if err != nil {
		return err
	}
	returnPC, err := r.Memory.GetData(r.FP.Sub(field.One()))
	if err != nil {
		return err
	}
	r.FP = callerFP
	r.PC = returnPC
	return nil
}

// execU32StoreAddFpImm performs wrapping 32-bit addition of the U32 value
// at fp+src_off (lo, hi limb pair) and the immediate (imm_hi, imm_lo),
// storing the wrapped result as a fresh lo/hi pair at fp+dst_off.
func (r *Runner) execU32StoreAddFpImm(ops []field.M31) error {
	srcOff, immHi, immLo, dstOff := ops[0], ops[1], ops[2], ops[3]

	lo, err := r.Memory.GetData(r.FP.Add(srcOff))
	if err != nil {
		return err
	}
	hi, err := r.Memory.GetData(r.FP.Add(srcOff).Add(field.One()))
	if err != nil {
		return err
	}
	value := lo.Uint32() | hi.Uint32()<<16
	immediate := immLo.Uint32() | immHi.Uint32()<<16
	sum := value + immediate // wraps mod 2^32 in Go's uint32 arithmetic

	dst := r.FP.Add(dstOff)
	if err := r.Memory.Insert(dst, field.M31ToQM31(field.NewM31(sum&0xFFFF))); err != nil {
		return err
	}
	return r.Memory.Insert(dst.Add(field.One()), field.M31ToQM31(field.NewM31((sum>>16)&0xFFFF)))
}
