package drawcull

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNextCapacity(t *testing.T) {
	tests := []struct {
		name                       string
		current, required, ceiling int
		want                       int
	}{
		{"doubling covers demand", 100, 150, 1000, 200},
		{"demand beyond doubling", 100, 257, 1000, 257},
		{"clamped at ceiling", 600, 700, 1000, 1000},
		{"already at ceiling", 1000, 5000, 1000, 1000},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, NextCapacity(tc.current, tc.required, tc.ceiling))
		})
	}
}

func TestGovernorObservePlan(t *testing.T) {
	g := NewCapacityGovernor(1000, nil)
	assert.Equal(t, GovernorStable, g.State())

	// No overflow, no growth.
	g.Observe(false, 50)
	next, grow := g.Plan(100)
	assert.False(t, grow)
	assert.Equal(t, 100, next)

	// Overflow with demand above one doubling.
	g.Observe(true, 257)
	assert.Equal(t, GovernorGrowthPending, g.State())
	next, grow = g.Plan(100)
	assert.True(t, grow)
	assert.Equal(t, 257, next)
	assert.Equal(t, GovernorStable, g.State())

	// Largest observed demand wins within one frame window.
	g.Observe(true, 300)
	g.Observe(true, 800)
	g.Observe(true, 500)
	next, grow = g.Plan(257)
	assert.True(t, grow)
	assert.Equal(t, 800, next)
}

func TestGovernorAtCeiling(t *testing.T) {
	g := NewCapacityGovernor(256, nil)
	g.Observe(true, 9999)
	next, grow := g.Plan(256)
	assert.False(t, grow)
	assert.Equal(t, 256, next)
	assert.Equal(t, GovernorStable, g.State())
}

func TestCheckStoreCapacity(t *testing.T) {
	assert.NoError(t, CheckStoreCapacity(100, 128, 1024))

	err := CheckStoreCapacity(2000, 128, 1024)
	assert.ErrorContains(t, err, "hard ceiling 1024")

	err = CheckStoreCapacity(200, 128, 1024)
	assert.ErrorContains(t, err, "capacity 128")
}
