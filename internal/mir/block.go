package mir

// BasicBlock is a straight-line sequence of Instructions followed by
// exactly one Terminator (spec §3.3 invariant 4). Predecessors are
// tracked explicitly so that Phi placement (C4/C5) and dominance
// analysis don't need to rediscover the CFG by scanning every block's
// terminator, mirroring the predecessor-tracking idiom in the teacher's
// ssa.basicBlock (see DESIGN.md, C3).
type BasicBlock struct {
	ID           BasicBlockID
	Instructions []Instruction
	Terminator   *Terminator

	preds []BasicBlockID
	// terminated is true once a Terminator has been set; further
	// AddInstruction calls are rejected, matching spec invariant 4.
	terminated bool
}

// NewBasicBlock creates an empty, unterminated block with the given ID.
func NewBasicBlock(id BasicBlockID) *BasicBlock {
	return &BasicBlock{ID: id}
}

// AddInstruction appends an instruction to the block. Panics if the
// block is already terminated — a structural bug in the caller, not a
// recoverable runtime condition.
func (b *BasicBlock) AddInstruction(instr Instruction) {
	if b.terminated {
		panic("mir: cannot add instruction after block is terminated")
	}
	b.Instructions = append(b.Instructions, instr)
}

// SetTerminator sets this block's terminator. Panics on a second call —
// spec invariant 4 requires exactly one terminator per block.
func (b *BasicBlock) SetTerminator(t Terminator) {
	if b.terminated {
		panic("mir: block already terminated")
	}
	term := t
	b.Terminator = &term
	b.terminated = true
}

// Terminated reports whether SetTerminator has been called.
func (b *BasicBlock) Terminated() bool { return b.terminated }

// Preds returns the IDs of blocks with an edge into this one, in the
// order they were recorded.
func (b *BasicBlock) Preds() []BasicBlockID { return b.preds }

func (b *BasicBlock) addPred(id BasicBlockID) {
	for _, p := range b.preds {
		if p == id {
			return
		}
	}
	b.preds = append(b.preds, id)
}
