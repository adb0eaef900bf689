package main

import (
	"encoding/json"
	"os"

	"github.com/pkg/errors"

	"github.com/kkrt-labs/cairo-m-sub002/internal/mir"
)

// loadModule reads a MIR module from its JSON form (the struct fields
// mir.Module/Function/BasicBlock/Instruction already export, since there
// is no source-language frontend in scope for this CLI to drive). The
// unexported predecessor lists BasicBlock.preds drops on the way through
// JSON aren't needed back: RecomputeEdges derives them from the
// Terminators that did round-trip, the same way passes that rewrite
// terminators already refresh them (internal/mir/passes/fuse_cmp_branch.go).
func loadModule(path string) (*mir.Module, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "cairom: reading module %q", path)
	}
	var m mir.Module
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, errors.Wrapf(err, "cairom: decoding module %q", path)
	}
	for _, fn := range m.Functions {
		fn.RecomputeEdges()
	}
	return &m, nil
}
