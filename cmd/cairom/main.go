// Command cairom is a thin CLI wrapper over the compiler pipeline (spec
// §6.4): compile a MIR module to CASM, run a compiled program against
// the VM, or disassemble one back to human-readable text. It carries no
// business logic of its own — everything it does is one call into
// internal/codegen, internal/runner, or internal/isa, in the dispatcher
// shape of the teacher's own cmd/wazero (a thin main that exits with
// whatever an internal doMain-style Execute returns), adapted from
// wazero's hand-rolled flag.FlagSet switch to cobra's Command tree,
// which is the CLI idiom the rest of the example pack standardizes on.
package main

import (
	"os"

	log "github.com/sirupsen/logrus"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		log.WithError(err).Error("cairom: command failed")
		os.Exit(1)
	}
}
