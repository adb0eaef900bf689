package main

import (
	"os"

	"github.com/pkg/errors"
)

func writeTrace(path string, data []byte) error {
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return errors.Wrapf(err, "cairom: writing trace to %q", path)
	}
	return nil
}
