package runner

import "fmt"

// MaxMemorySizeBits bounds every valid memory address to [0, 1<<30): the
// runner's address space is 2^30 QM31 cells (spec §4.9).
const MaxMemorySizeBits = 30

// AddressOutOfBoundsError reports an address at or beyond 1<<MaxMemorySizeBits.
type AddressOutOfBoundsError struct {
	Addr uint32
	Max  uint32
}

func (e *AddressOutOfBoundsError) Error() string {
	return fmt.Sprintf("runner: address %d is out of bounds (max %d)", e.Addr, e.Max)
}

// UninitializedMemoryCellError reports an instruction fetch from a cell
// that was never written. Data reads (GetData) do not raise this: an
// unwritten data cell reads as zero, matching the memory model's
// vector-with-implicit-padding semantics.
type UninitializedMemoryCellError struct {
	Addr uint32
}

func (e *UninitializedMemoryCellError) Error() string {
	return fmt.Sprintf("runner: memory cell at address %d is not initialized", e.Addr)
}

// BaseFieldProjectionFailedError reports a data read whose stored QM31
// carries non-trivial extension components, so it cannot be read back as
// a plain felt.
type BaseFieldProjectionFailedError struct {
	Addr  uint32
	Value [4]uint32
}

func (e *BaseFieldProjectionFailedError) Error() string {
	return fmt.Sprintf("runner: cannot project value at address %d to base field: %v", e.Addr, e.Value)
}
