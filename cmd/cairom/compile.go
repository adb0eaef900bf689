package main

import (
	"encoding/json"
	"os"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/kkrt-labs/cairo-m-sub002/internal/codegen"
)

func newCompileCmd() *cobra.Command {
	var out string

	cmd := &cobra.Command{
		Use:   "compile <module.json>",
		Short: "Compile a MIR module to a linked CASM program",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := loadModule(args[0])
			if err != nil {
				return err
			}

			program, err := codegen.Generate(m)
			if err != nil {
				return errors.Wrap(err, "cairom: generating code")
			}

			data, err := json.MarshalIndent(program, "", "  ")
			if err != nil {
				return errors.Wrap(err, "cairom: encoding compiled program")
			}

			if out == "" {
				_, err = cmd.OutOrStdout().Write(append(data, '\n'))
				return err
			}
			return os.WriteFile(out, data, 0o644)
		},
	}

	cmd.Flags().StringVarP(&out, "out", "o", "", "Write the compiled program to this path instead of stdout")
	return cmd
}
