package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/kkrt-labs/cairo-m-sub002/internal/config"
	"github.com/kkrt-labs/cairo-m-sub002/internal/field"
	"github.com/kkrt-labs/cairo-m-sub002/internal/runner"
)

// frameBase is where the entrypoint's frame pointer is planted. It only
// needs to sit comfortably above the program's own instruction addresses
// and below the 2^30 address ceiling; this CLI drives one top-level call
// with no caller frame of its own to inherit a position from.
const frameBase = uint32(1) << 20

func newRunCmd() *cobra.Command {
	var entrypoint string
	var argsCSV string
	var numReturns int
	var maxSteps int
	var traceOut string

	cmd := &cobra.Command{
		Use:   "run <program.json>",
		Short: "Run a compiled program's entrypoint against the VM",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			program, err := loadProgram(args[0])
			if err != nil {
				return err
			}

			entryPC, ok := program.EntryPCs[entrypoint]
			if !ok {
				return errors.Errorf("cairom: entrypoint %q not found in compiled program", entrypoint)
			}

			argFelts, err := parseFelts(argsCSV)
			if err != nil {
				return err
			}

			cfg := config.NewRunConfig().
				WithEntrypoint(entrypoint).
				WithMaxSteps(maxSteps).
				WithTraceEnabled(traceOut != "")

			mem := runner.NewMemory()
			for _, ci := range program.Instructions {
				words := ci.Instr.ToQM31Vec()
				base := field.NewM31(uint32(ci.PC))
				for i, w := range words {
					if err := mem.InsertNoTrace(base.Add(field.NewM31(uint32(i))), w); err != nil {
						return errors.Wrap(err, "cairom: loading program into memory")
					}
				}
			}

			fp := field.NewM31(frameBase)
			m := len(argFelts)
			k := numReturns
			argsOffset := -(2 + k + m)
			addr := fp.Add(field.NewM31FromInt64(int64(argsOffset)))
			for _, v := range argFelts {
				if err := mem.Insert(addr, field.M31ToQM31(field.NewM31(v))); err != nil {
					return errors.Wrap(err, "cairom: writing argument")
				}
				addr = addr.Add(field.One())
			}

			haltPC := field.NewM31(uint32(1) << runner.MaxMemorySizeBits)
			r := runner.NewRunner(mem)
			if err := r.PrepareEntrypoint(field.NewM31(uint32(entryPC)), fp, haltPC); err != nil {
				return errors.Wrap(err, "cairom: preparing entrypoint frame")
			}

			steps, err := r.Run(haltPC, cfg.MaxSteps())
			if err != nil {
				return errors.Wrap(err, "cairom: running program")
			}

			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "halted after %d steps\n", steps)

			retBase := fp.Add(field.NewM31FromInt64(int64(-(2 + k))))
			for i := 0; i < k; i++ {
				v, err := mem.GetData(retBase.Add(field.NewM31(uint32(i))))
				if err != nil {
					return errors.Wrap(err, "cairom: reading return value")
				}
				fmt.Fprintf(w, "return[%d] = %d\n", i, v.Uint32())
			}

			if traceOut != "" {
				if err := writeTrace(traceOut, mem.SerializeTrace()); err != nil {
					return err
				}
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&entrypoint, "entrypoint", "main", "Function name to invoke")
	cmd.Flags().StringVar(&argsCSV, "args", "", "Comma-separated felt arguments, e.g. 1,2,3")
	cmd.Flags().IntVar(&numReturns, "returns", 0, "Number of felt-sized return slots to read back")
	cmd.Flags().IntVar(&maxSteps, "max-steps", 1_000_000, "Runaway backstop: maximum steps before giving up")
	cmd.Flags().StringVar(&traceOut, "trace-out", "", "Write the serialized memory trace to this path")

	return cmd
}

func parseFelts(csv string) ([]uint32, error) {
	if csv == "" {
		return nil, nil
	}
	parts := strings.Split(csv, ",")
	out := make([]uint32, len(parts))
	for i, p := range parts {
		n, err := strconv.ParseUint(strings.TrimSpace(p), 10, 32)
		if err != nil {
			return nil, errors.Wrapf(err, "cairom: parsing argument %q", p)
		}
		out[i] = uint32(n)
	}
	return out, nil
}
