package mir

// Function is a MIR function: its signature, basic blocks (first is
// entry), the type of every defined value, and the counter used to
// allocate fresh ValueIDs (spec §3.3).
type Function struct {
	Name       string
	Params     []ValueID
	ReturnType []Type

	Blocks []*BasicBlock

	ValueTypes map[ValueID]Type

	nextValueID ValueID
	nextBlockID BasicBlockID
}

// NewFunction creates an empty function with the given name and return
// types. The entry block is allocated automatically as block 0.
func NewFunction(name string, returnTypes []Type) *Function {
	f := &Function{
		Name:       name,
		ReturnType: returnTypes,
		ValueTypes: make(map[ValueID]Type),
	}
	f.AddBlock() // entry block, ID 0
	return f
}

// AddBlock allocates and appends a new, empty basic block.
func (f *Function) AddBlock() *BasicBlock {
	id := f.nextBlockID
	f.nextBlockID++
	blk := NewBasicBlock(id)
	f.Blocks = append(f.Blocks, blk)
	return blk
}

// EntryBlock returns the function's entry block (always block 0, the
// first element of Blocks).
func (f *Function) EntryBlock() *BasicBlock {
	return f.Blocks[0]
}

// Block looks up a block by ID.
func (f *Function) Block(id BasicBlockID) *BasicBlock {
	return f.Blocks[id]
}

// AllocateValue reserves a fresh ValueID of the given type and records
// its type in ValueTypes (spec §3.3 invariant 3).
func (f *Function) AllocateValue(ty Type) ValueID {
	id := f.nextValueID
	f.nextValueID++
	f.ValueTypes[id] = ty
	return id
}

// AddParam declares a function parameter: allocates its ValueID, records
// its type, and appends it to Params in declaration order.
func (f *Function) AddParam(ty Type) ValueID {
	id := f.AllocateValue(ty)
	f.Params = append(f.Params, id)
	return id
}

// TypeOf returns the type of a defined value; the second result is false
// if v was never allocated via AllocateValue/AddParam (spec §3.3
// invariant 3 would then be violated by the caller).
func (f *Function) TypeOf(v ValueID) (Type, bool) {
	t, ok := f.ValueTypes[v]
	return t, ok
}

// RecomputeEdges rebuilds every block's predecessor list from the
// current terminators. Passes that rewrite terminators or blocks
// (FuseCmpBranch, VarSsaPass) call this once they are done rather than
// incrementally maintaining predecessor lists.
func (f *Function) RecomputeEdges() {
	for _, b := range f.Blocks {
		b.preds = nil
	}
	for _, b := range f.Blocks {
		if b.Terminator == nil {
			continue
		}
		for _, succ := range b.Terminator.Successors() {
			f.Blocks[succ].addPred(b.ID)
		}
	}
}

// BasicBlocks returns the function's blocks in insertion order (spec
// §4.3: "basic_blocks() iteration in insertion order").
func (f *Function) BasicBlocks() []*BasicBlock { return f.Blocks }

// GetValueUseCounts returns, for every ValueID read anywhere in the
// function body (instructions and terminators), the number of distinct
// reads (spec §4.3).
func (f *Function) GetValueUseCounts() map[ValueID]int {
	counts := make(map[ValueID]int)
	for _, b := range f.Blocks {
		for _, instr := range b.Instructions {
			for _, v := range instr.UsedValues() {
				counts[v]++
			}
		}
		if b.Terminator != nil {
			for _, v := range b.Terminator.UsedValues() {
				counts[v]++
			}
		}
	}
	return counts
}

// AllInstructions iterates every instruction in the function body in
// block order, yielding the owning block alongside each instruction
// index. fn returning false stops iteration early.
func (f *Function) AllInstructions(visit func(b *BasicBlock, idx int, instr *Instruction) bool) {
	for _, b := range f.Blocks {
		for i := range b.Instructions {
			if !visit(b, i, &b.Instructions[i]) {
				return
			}
		}
	}
}
