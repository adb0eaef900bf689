package mir

// Module is an ordered collection of Functions indexed by FunctionID
// (spec §3.3). There is no shared mutable state across functions in the
// core — each function's layout and emission are independent (spec §5).
type Module struct {
	Functions []*Function
}

// NewModule creates an empty module.
func NewModule() *Module {
	return &Module{}
}

// AddFunction appends f to the module and returns its FunctionID.
func (m *Module) AddFunction(f *Function) FunctionID {
	id := FunctionID(len(m.Functions))
	m.Functions = append(m.Functions, f)
	return id
}

// Function looks up a function by ID.
func (m *Module) Function(id FunctionID) (*Function, bool) {
	if int(id) < 0 || int(id) >= len(m.Functions) {
		return nil, false
	}
	return m.Functions[id], true
}

// FunctionByName finds a function by its declared name, returning its ID
// for use as a Call's Callee.
func (m *Module) FunctionByName(name string) (FunctionID, bool) {
	for i, f := range m.Functions {
		if f.Name == name {
			return FunctionID(i), true
		}
	}
	return 0, false
}
