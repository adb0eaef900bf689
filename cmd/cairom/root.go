package main

import (
	"github.com/spf13/cobra"
)

// newRootCmd assembles the compile/run/disasm subcommand tree. Kept
// separate from main so tests can Execute it against an in-memory
// buffer instead of os.Stdout/os.Stderr.
func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "cairom",
		Short:         "cairom compiles and runs Cairo M MIR modules",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(newCompileCmd())
	root.AddCommand(newRunCmd())
	root.AddCommand(newDisasmCmd())

	return root
}
