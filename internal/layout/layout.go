// Package layout computes the fp-relative frame layout of a compiled
// function: where each MIR value lives in the Cairo-M stack ABI (spec
// §3.4, §4.6). It is grounded on the teacher's
// backend.FunctionABI.Init/setABIArgs — "walk param/return types, assign
// each a slot, track a high-water mark" — adapted from wazero's
// register-or-stack ABI to Cairo-M's pure fp-relative stack ABI: every
// argument and return value lives on the stack, there are no registers
// to prefer first.
package layout

import (
	"fmt"

	"github.com/pkg/errors"

	"github.com/kkrt-labs/cairo-m-sub002/internal/mir"
)

// LayoutError reports a missing or double binding of a ValueId to an
// offset (spec §7 LayoutError, shared by C6 and C8).
type LayoutError struct {
	Message string
}

func (e *LayoutError) Error() string { return "layout: " + e.Message }

// FunctionLayout maps every MIR value used by codegen to an fp-relative
// offset, per the Cairo-M ABI convention (spec §3.4):
//
//	[fp-2-K-M, fp-2-K)  arguments (M = sum of parameter sizes)
//	[fp-2-K, fp-2)       return slots (K = sum of return sizes)
//	[fp-2]               caller's fp
//	[fp-1]               return pc
//	[fp+0, ...)          locals, growing upward
type FunctionLayout struct {
	offsets map[mir.ValueID]int64
	sizes   map[mir.ValueID]int

	currentFrameUsage int64 // high-water of reserved (non-negative) offsets
	maxWrittenOffset  int64
	numReturnSlots    int
}

// New builds an empty layout with no argument/return bindings.
func New() *FunctionLayout {
	return &FunctionLayout{
		offsets: make(map[mir.ValueID]int64),
		sizes:   make(map[mir.ValueID]int),
	}
}

// NewForFunction builds a layout for fn with its parameters pre-bound to
// the argument area and num_return_slots set from fn's return types, per
// the ABI convention above. Locals are left unallocated; the caller
// (C7/C8) allocates them on demand via AllocateValue/ReserveStack as it
// lowers the function body.
func NewForFunction(fn *mir.Function) (*FunctionLayout, error) {
	l := New()

	paramSizes := make([]int, len(fn.Params))
	m := 0
	for i, p := range fn.Params {
		ty, ok := fn.TypeOf(p)
		if !ok {
			return nil, errors.WithStack(&LayoutError{Message: fmt.Sprintf("parameter v%d has no recorded type", p)})
		}
		sz := mir.MemorySizeOf(ty)
		paramSizes[i] = sz
		m += sz
	}

	k := 0
	for _, rt := range fn.ReturnType {
		k += mir.MemorySizeOf(rt)
	}
	l.numReturnSlots = k

	offset := -(int64(2 + k + m))
	for i, p := range fn.Params {
		if err := l.MapValue(p, offset, paramSizes[i]); err != nil {
			return nil, err
		}
		offset += int64(paramSizes[i])
	}

	return l, nil
}

// AllocateValue assigns v a fresh positive offset sized to size,
// advancing current_frame_usage past it.
func (l *FunctionLayout) AllocateValue(v mir.ValueID, size int) (int64, error) {
	if _, exists := l.offsets[v]; exists {
		return 0, errors.WithStack(&LayoutError{Message: fmt.Sprintf("v%d is already bound to an offset", v)})
	}
	off := l.currentFrameUsage
	l.offsets[v] = off
	l.sizes[v] = size
	l.currentFrameUsage += int64(size)
	return off, nil
}

// ReserveStack advances current_frame_usage by n slots without binding
// any ValueId, returning the offset at which the reserved region begins.
func (l *FunctionLayout) ReserveStack(n int) int64 {
	off := l.currentFrameUsage
	l.currentFrameUsage += int64(n)
	return off
}

// MapValue binds an already-computed offset/size to v — used to place
// Call destinations onto the return area of the call site's frame, and
// by NewForFunction to place parameters in the argument area.
func (l *FunctionLayout) MapValue(v mir.ValueID, offset int64, size int) error {
	if _, exists := l.offsets[v]; exists {
		return errors.WithStack(&LayoutError{Message: fmt.Sprintf("v%d is already bound to an offset", v)})
	}
	l.offsets[v] = offset
	l.sizes[v] = size
	return nil
}

// GetOffset retrieves v's bound offset.
func (l *FunctionLayout) GetOffset(v mir.ValueID) (int64, error) {
	off, ok := l.offsets[v]
	if !ok {
		return 0, errors.WithStack(&LayoutError{Message: fmt.Sprintf("v%d has no offset binding", v)})
	}
	return off, nil
}

// GetValueSize retrieves the memory size (in M31 slots) v was bound
// with.
func (l *FunctionLayout) GetValueSize(v mir.ValueID) (int, error) {
	sz, ok := l.sizes[v]
	if !ok {
		return 0, errors.WithStack(&LayoutError{Message: fmt.Sprintf("v%d has no offset binding", v)})
	}
	return sz, nil
}

// IsContiguous reports whether v is bound to exactly baseOff and
// occupies exactly size slots.
func (l *FunctionLayout) IsContiguous(v mir.ValueID, baseOff int64, size int) bool {
	off, ok := l.offsets[v]
	if !ok {
		return false
	}
	return off == baseOff && l.sizes[v] == size
}

// CurrentFrameUsage returns the high-water mark of reserved (allocated
// or stack-reserved) offsets.
func (l *FunctionLayout) CurrentFrameUsage() int64 { return l.currentFrameUsage }

// NumReturnSlots returns K, the total size of this function's return
// area.
func (l *FunctionLayout) NumReturnSlots() int { return l.numReturnSlots }

// MaxWrittenOffset returns the high-water mark of offsets actually
// written by emitted stores, as tracked via RecordWrite. It is distinct
// from CurrentFrameUsage, which tracks reservation rather than writes
// (spec §3.4).
func (l *FunctionLayout) MaxWrittenOffset() int64 { return l.maxWrittenOffset }

// RecordWrite updates the max_written_offset watermark to cover a write
// of size slots starting at offset. The C7 emitter calls this every
// time it emits an instruction that writes memory.
func (l *FunctionLayout) RecordWrite(offset int64, size int) {
	if size <= 0 {
		return
	}
	end := offset + int64(size) - 1
	if end > l.maxWrittenOffset {
		l.maxWrittenOffset = end
	}
}

// LiveFrameUsage is the high-water mark relevant to the argument-in-place
// optimization's second firing condition (spec §4.7.1 step 3): the
// larger of current_frame_usage and one past the last actually-written
// offset.
func (l *FunctionLayout) LiveFrameUsage() int64 {
	live := l.maxWrittenOffset + 1
	if l.currentFrameUsage > live {
		return l.currentFrameUsage
	}
	return live
}
