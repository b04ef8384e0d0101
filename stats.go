package drawcull

import (
	"sync"
	"time"
)

// StatIndex addresses a slot in the fixed-layout statistics block. The layout
// is shared with the GPU stats buffer, so the order here must match
// gpu/shaders.
type StatIndex int

const (
	StatInputCount StatIndex = iota
	StatCulledCount
	StatDrawCount
	StatRejectedFrustum
	StatRejectedDistance
	StatOcclusionAccepted
	StatOcclusionRejected
	StatOcclusionOverflow
	StatBVHBuilds
	StatBVHRefits
	StatBVHCulls
	StatBVHRays
	StatCullTimeLo
	StatCullTimeHi
	StatSortTimeLo
	StatSortTimeHi
	StatBuildTimeLo
	StatBuildTimeHi

	StatCount
)

// FrameStats is one frame's worth of counters. Allocated once, zeroed every
// Reset, only read back when diagnostics are on.
type FrameStats [StatCount]uint32

func (s *FrameStats) Add(idx StatIndex, n uint32) {
	s[idx] += n
}

func (s *FrameStats) Get(idx StatIndex) uint32 {
	return s[idx]
}

// SetTime stores a duration as a paired 32-bit lo/hi microsecond count at
// loIdx and loIdx+1.
func (s *FrameStats) SetTime(loIdx StatIndex, d time.Duration) {
	us := uint64(d.Microseconds())
	s[loIdx] = uint32(us)
	s[loIdx+1] = uint32(us >> 32)
}

// Time reconstructs a paired timing field.
func (s *FrameStats) Time(loIdx StatIndex) time.Duration {
	us := uint64(s[loIdx]) | uint64(s[loIdx+1])<<32
	return time.Duration(us) * time.Microsecond
}

func (s *FrameStats) Reset() {
	*s = FrameStats{}
}

// StatsRecorder double-buffers frame statistics. BeginFrame swaps then clears,
// so readers only ever observe the last completed frame, never the one being
// written.
type StatsRecorder struct {
	mu        sync.Mutex
	current   FrameStats
	completed FrameStats
}

func NewStatsRecorder() *StatsRecorder {
	return &StatsRecorder{}
}

// BeginFrame publishes the in-progress buffer as completed and zeroes the new
// current buffer. This is the Reset stage on the CPU side.
func (r *StatsRecorder) BeginFrame() {
	r.mu.Lock()
	r.completed = r.current
	r.current.Reset()
	r.mu.Unlock()
}

// Current returns the in-progress buffer. Single writer per stage; never
// handed to readers.
func (r *StatsRecorder) Current() *FrameStats {
	return &r.current
}

// Last returns a copy of the last completed frame's counters.
func (r *StatsRecorder) Last() FrameStats {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.completed
}
