package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewRunConfigDefaults(t *testing.T) {
	c := NewRunConfig()
	assert.Equal(t, "main", c.Entrypoint())
	assert.Equal(t, 1_000_000, c.MaxSteps())
	assert.False(t, c.TraceEnabled())
}

func TestWithMethodsReturnClonesWithoutMutatingReceiver(t *testing.T) {
	base := NewRunConfig()

	derived := base.WithEntrypoint("compute").WithMaxSteps(10).WithTraceEnabled(true)

	assert.Equal(t, "main", base.Entrypoint())
	assert.Equal(t, 1_000_000, base.MaxSteps())
	assert.False(t, base.TraceEnabled())

	assert.Equal(t, "compute", derived.Entrypoint())
	assert.Equal(t, 10, derived.MaxSteps())
	assert.True(t, derived.TraceEnabled())
}

func TestNewRunConfigIsIndependentAcrossCalls(t *testing.T) {
	a := NewRunConfig().WithEntrypoint("a")
	b := NewRunConfig()

	assert.Equal(t, "a", a.Entrypoint())
	assert.Equal(t, "main", b.Entrypoint())
}
