package runner

import (
	"encoding/binary"

	"github.com/pkg/errors"

	"github.com/kkrt-labs/cairo-m-sub002/internal/field"
)

// MemoryEntry records a single memory access for the execution trace.
type MemoryEntry struct {
	Addr  uint32
	Value field.QM31
}

// Memory is the runner's flat, sparse, read-write address space (spec
// §4.9): addressable by M31 field elements, storing QM31 values. A cell
// absent from the map behaves as though it had never been written.
type Memory struct {
	cells map[uint32]field.QM31
	Trace []MemoryEntry
}

// NewMemory returns an empty memory with no cells written and no trace.
func NewMemory() *Memory {
	return &Memory{cells: make(map[uint32]field.QM31)}
}

func validateAddress(addr uint32) error {
	const max = uint32(1) << MaxMemorySizeBits
	if addr >= max {
		return errors.WithStack(&AddressOutOfBoundsError{Addr: addr, Max: max})
	}
	return nil
}

// GetInstruction fetches the QM31 stored at addr for instruction decode.
// Unlike GetData, a cell that was never written is an error: an
// instruction fetch from uninitialized memory can never be a valid
// program, while a data read simply defaults to zero (mirroring the
// grounding source's own asymmetry between its instruction and data
// accessors).
func (m *Memory) GetInstruction(addr field.M31) (field.QM31, error) {
	a := addr.Uint32()
	if err := validateAddress(a); err != nil {
		return field.QM31{}, err
	}
	value, ok := m.cells[a]
	if !ok {
		return field.QM31{}, errors.WithStack(&UninitializedMemoryCellError{Addr: a})
	}
	m.Trace = append(m.Trace, MemoryEntry{Addr: a, Value: value})
	return value, nil
}

// GetData fetches the value at addr and projects it to a base field
// element. An address beyond anything ever written reads as zero,
// projecting trivially. Returns BaseFieldProjectionFailedError if the
// stored QM31 carries non-trivial extension components.
func (m *Memory) GetData(addr field.M31) (field.M31, error) {
	a := addr.Uint32()
	if err := validateAddress(a); err != nil {
		return field.M31{}, err
	}
	value := m.cells[a] // zero value if absent, matching the grounding source's unwrap_or_default
	proj, ok := value.BaseFieldProjection()
	if !ok {
		c := value.Components()
		return field.M31{}, errors.WithStack(&BaseFieldProjectionFailedError{
			Addr:  a,
			Value: [4]uint32{c[0].Uint32(), c[1].Uint32(), c[2].Uint32(), c[3].Uint32()},
		})
	}
	m.Trace = append(m.Trace, MemoryEntry{Addr: a, Value: value})
	return proj, nil
}

// Insert writes value at addr and appends one trace entry.
func (m *Memory) Insert(addr field.M31, value field.QM31) error {
	a := addr.Uint32()
	if err := validateAddress(a); err != nil {
		return err
	}
	m.cells[a] = value
	m.Trace = append(m.Trace, MemoryEntry{Addr: a, Value: value})
	return nil
}

// InsertNoTrace writes value at addr without logging a trace entry, for
// the entrypoint call-frame setup (spec §4.9).
func (m *Memory) InsertNoTrace(addr field.M31, value field.QM31) error {
	a := addr.Uint32()
	if err := validateAddress(a); err != nil {
		return err
	}
	m.cells[a] = value
	return nil
}

// InsertSlice writes values contiguously starting at start. Bounds are
// checked for the whole range before any write lands, so a would-be
// out-of-bounds write is all-or-nothing; one trace entry is appended per
// element, in order.
func (m *Memory) InsertSlice(start field.M31, values []field.QM31) error {
	if len(values) == 0 {
		return nil
	}
	startAddr := start.Uint32()
	lastAddr := startAddr + uint32(len(values)-1)
	if lastAddr < startAddr {
		return errors.WithStack(&AddressOutOfBoundsError{Addr: startAddr, Max: uint32(1) << MaxMemorySizeBits})
	}
	if err := validateAddress(lastAddr); err != nil {
		return err
	}
	for i, v := range values {
		m.cells[startAddr+uint32(i)] = v
	}
	for i, v := range values {
		m.Trace = append(m.Trace, MemoryEntry{Addr: startAddr + uint32(i), Value: v})
	}
	return nil
}

// InsertEntrypointCall sets up the call-stack frame a program entrypoint
// expects to find above it (spec §4.9): the caller's fp at fp-2 and the
// sentinel return pc at fp-1. No trace entries are added, since this
// frame was never pushed by a real CallAbsImm.
func (m *Memory) InsertEntrypointCall(finalPC, fp field.M31) error {
	fpMinusTwo := fp.Sub(field.NewM31(2))
	fpMinusOne := fp.Sub(field.One())
	if err := m.InsertNoTrace(fpMinusTwo, field.M31ToQM31(fp)); err != nil {
		return err
	}
	return m.InsertNoTrace(fpMinusOne, field.M31ToQM31(finalPC))
}

// SerializeTrace flattens the trace to 20-byte little-endian records, one
// per entry: addr, then the four QM31 components (spec §4.9/§4.10).
func (m *Memory) SerializeTrace() []byte {
	out := make([]byte, 0, len(m.Trace)*20)
	var buf [4]byte
	for _, entry := range m.Trace {
		binary.LittleEndian.PutUint32(buf[:], entry.Addr)
		out = append(out, buf[:]...)
		for _, c := range entry.Value.Components() {
			binary.LittleEndian.PutUint32(buf[:], c.Uint32())
			out = append(out, buf[:]...)
		}
	}
	return out
}
