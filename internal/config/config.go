// Package config holds the fluent-option configuration struct shared by
// cmd/cairom's subcommands, modeled on the teacher's own RuntimeConfig
// (config.go): private fields, a base default value, and With* methods
// that return a cloned copy rather than mutating in place.
package config

// RunConfig controls how a compiled program is executed by the runner,
// with the default implementation as NewRunConfig.
type RunConfig struct {
	entrypoint   string
	maxSteps     int
	traceEnabled bool
}

// baseConfig helps avoid copy/pasting the wrong defaults.
var baseConfig = &RunConfig{
	entrypoint:   "main",
	maxSteps:     1_000_000,
	traceEnabled: false,
}

// NewRunConfig returns the default configuration: entrypoint "main", a
// 1,000,000-step runaway backstop, and tracing disabled.
func NewRunConfig() *RunConfig {
	ret := *baseConfig
	return &ret
}

func (c *RunConfig) clone() *RunConfig {
	ret := *c
	return &ret
}

// WithEntrypoint selects which compiled function the runner invokes.
func (c *RunConfig) WithEntrypoint(name string) *RunConfig {
	ret := c.clone()
	ret.entrypoint = name
	return ret
}

// WithMaxSteps caps how many instructions the runner executes before
// giving up (spec places no bound on program length; this is purely a
// runaway-program backstop, not a spec-mandated limit).
func (c *RunConfig) WithMaxSteps(n int) *RunConfig {
	ret := c.clone()
	ret.maxSteps = n
	return ret
}

// WithTraceEnabled records whether the caller wants the run's memory
// trace. The runner's Memory records its trace whatever this flag says;
// cmd/cairom's run writes the trace out based on its own --trace-out flag.
func (c *RunConfig) WithTraceEnabled(enabled bool) *RunConfig {
	ret := c.clone()
	ret.traceEnabled = enabled
	return ret
}

func (c *RunConfig) Entrypoint() string  { return c.entrypoint }
func (c *RunConfig) MaxSteps() int       { return c.maxSteps }
func (c *RunConfig) TraceEnabled() bool  { return c.traceEnabled }
