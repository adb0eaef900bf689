package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/kkrt-labs/cairo-m-sub002/internal/codegen"
)

func newDisasmCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "disasm <program.json>",
		Short: "Print a compiled program's instructions as name [operands]",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			program, err := loadProgram(args[0])
			if err != nil {
				return err
			}

			w := cmd.OutOrStdout()
			for _, ci := range program.Instructions {
				ops := ci.Instr.Operands()
				operandVals := make([]uint32, len(ops))
				for i, o := range ops {
					operandVals[i] = o.Uint32()
				}
				line := fmt.Sprintf("%6d: %s %v", ci.PC, ci.Instr.Name(), operandVals)
				if ci.Comment != "" {
					line += " // " + ci.Comment
				}
				fmt.Fprintln(w, line)
			}
			return nil
		},
	}
}

func loadProgram(path string) (*codegen.CompiledProgram, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "cairom: reading compiled program %q", path)
	}
	var program codegen.CompiledProgram
	if err := json.Unmarshal(data, &program); err != nil {
		return nil, errors.Wrapf(err, "cairom: decoding compiled program %q", path)
	}
	return &program, nil
}
