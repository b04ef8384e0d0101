package drawcull

import "fmt"

// GovernorState is the two-state capacity control loop.
type GovernorState int

const (
	GovernorStable GovernorState = iota
	GovernorGrowthPending
)

// NextCapacity is the bounded-doubling rule:
// min(ceiling, max(2*current, required)).
// Doubling gives amortized O(1) growth; the floor at required means a single
// transient spike never over-allocates beyond one doubling step.
func NextCapacity(current, required, ceiling int) int {
	next := current * 2
	if required > next {
		next = required
	}
	if next > ceiling {
		next = ceiling
	}
	return next
}

// CheckStoreCapacity is the pre-dispatch admission test shared by both
// backends: a demand that cannot fit the configured limits fails with a
// reason naming the limit, and no dispatch is attempted.
func CheckStoreCapacity(objects, capacity, ceiling int) error {
	if objects > ceiling {
		return fmt.Errorf("capacity check: %d objects exceeds hard ceiling %d", objects, ceiling)
	}
	if objects > capacity {
		return fmt.Errorf("capacity check: %d objects exceeds command store capacity %d", objects, capacity)
	}
	return nil
}

// CapacityGovernor observes overflow/truncation signals during the frame and
// plans a reallocation for the gap between frames. It never mutates buffers
// mid-frame.
type CapacityGovernor struct {
	log      Logger
	state    GovernorState
	required int
	ceiling  int
}

func NewCapacityGovernor(ceiling int, log Logger) *CapacityGovernor {
	if log == nil {
		log = NewNopLogger()
	}
	return &CapacityGovernor{log: log, ceiling: ceiling}
}

func (g *CapacityGovernor) State() GovernorState { return g.state }

// Observe records a capacity rejection. attempted is the true (uncapped)
// demand this frame; the largest observed demand becomes the growth floor.
func (g *CapacityGovernor) Observe(overflowed bool, attempted int) {
	if !overflowed {
		return
	}
	g.state = GovernorGrowthPending
	if attempted > g.required {
		g.required = attempted
	}
}

// Plan returns the capacity for the next frame and whether growth is needed.
// Called after submission, before the next frame's Reset. The governor
// returns to Stable either way.
func (g *CapacityGovernor) Plan(current int) (int, bool) {
	if g.state != GovernorGrowthPending {
		return current, false
	}
	g.state = GovernorStable
	next := NextCapacity(current, g.required, g.ceiling)
	g.required = 0
	if next <= current {
		// Already at the ceiling; nothing more to give.
		g.log.Warnf("capacity overflow at hard ceiling %d, cannot grow", g.ceiling)
		return current, false
	}
	g.log.Warnf("capacity overflow observed, growing %d -> %d", current, next)
	return next, true
}
