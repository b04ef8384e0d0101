package drawcull

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFrameStatsTimeRoundtrip(t *testing.T) {
	var s FrameStats

	// Above 32 bits of microseconds to exercise the hi word.
	long := time.Duration(5_000_000_000) * time.Microsecond
	s.SetTime(StatCullTimeLo, long)
	assert.Equal(t, long, s.Time(StatCullTimeLo))
	assert.NotZero(t, s.Get(StatCullTimeHi))

	s.SetTime(StatSortTimeLo, 250*time.Microsecond)
	assert.Equal(t, 250*time.Microsecond, s.Time(StatSortTimeLo))
	assert.Zero(t, s.Get(StatSortTimeHi))
}

func TestStatsRecorderSwap(t *testing.T) {
	r := NewStatsRecorder()
	r.Current().Add(StatInputCount, 100)
	r.Current().Add(StatCulledCount, 40)

	// Until the frame completes, readers see the previous (zero) frame.
	before := r.Last()
	assert.Zero(t, before.Get(StatInputCount))

	r.BeginFrame()
	last := r.Last()
	assert.Equal(t, uint32(100), last.Get(StatInputCount))
	assert.Equal(t, uint32(40), last.Get(StatCulledCount))

	// The new current buffer starts from zero.
	assert.Zero(t, r.Current().Get(StatInputCount))

	r.Current().Add(StatInputCount, 7)
	r.BeginFrame()
	after := r.Last()
	assert.Equal(t, uint32(7), after.Get(StatInputCount))
}
