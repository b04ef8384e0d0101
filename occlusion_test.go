package drawcull

import (
	"testing"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
)

func nearOccluderSampler() *HiZSampler {
	return &HiZSampler{
		Data:     []float32{2, 2, 2, 2},
		W:        2,
		H:        2,
		ViewProj: testViewProj(),
	}
}

func TestHiZSamplerOccluded(t *testing.T) {
	s := nearOccluderSampler()

	// Object well behind the uniform depth-2 occluder.
	assert.True(t, s.Occluded(mgl32.Vec3{0, 0, -10}, 1))

	// Object in front of the occluder.
	assert.False(t, s.Occluded(mgl32.Vec3{0, 0, -1.2}, 0.1))
}

func TestHiZSamplerConservativeCases(t *testing.T) {
	s := nearOccluderSampler()

	// Camera inside the sphere.
	assert.False(t, s.Occluded(mgl32.Vec3{0, 0, 0}, 5))

	// Straddling the near plane.
	assert.False(t, s.Occluded(mgl32.Vec3{0, 0, -1}, 2))

	// Footprint partially off-screen.
	assert.False(t, s.Occluded(mgl32.Vec3{-9.9, 0, -10}, 1))

	// No depth data at all.
	empty := &HiZSampler{ViewProj: testViewProj()}
	assert.False(t, empty.Occluded(mgl32.Vec3{0, 0, -10}, 1))
	var nilSampler *HiZSampler
	assert.False(t, nilSampler.Occluded(mgl32.Vec3{0, 0, -10}, 1))
}

func TestHiZSamplerFootprintMax(t *testing.T) {
	// One far texel inside the footprint must keep the object visible:
	// the test is against the farthest occluder the footprint touches.
	s := nearOccluderSampler()
	s.Data = []float32{2, 1e9, 2, 2}
	assert.False(t, s.Occluded(mgl32.Vec3{0, 0, -10}, 3))
}

func TestHiZSamplerNarrowFovFootprint(t *testing.T) {
	// Below 90 degrees the focal scale widens the screen footprint beyond
	// radius/w, so the far texel at the footprint's edge must be sampled and
	// keep the object visible.
	proj := mgl32.Perspective(mgl32.DegToRad(60), 1.0, 1.0, 100.0)
	view := mgl32.LookAtV(mgl32.Vec3{}, mgl32.Vec3{0, 0, -1}, mgl32.Vec3{0, 1, 0})

	s := &HiZSampler{
		W:        4,
		H:        4,
		ViewProj: proj.Mul4(view),
	}
	s.Data = make([]float32, 16)
	for i := range s.Data {
		s.Data[i] = 2
	}
	// The rightmost column holds no occluder.
	for y := 0; y < 4; y++ {
		s.Data[y*4+3] = 1e9
	}
	assert.False(t, s.Occluded(mgl32.Vec3{1, 0, -10}, 2))

	// With occluders across the whole footprint the rejection holds.
	for y := 0; y < 4; y++ {
		s.Data[y*4+3] = 2
	}
	assert.True(t, s.Occluded(mgl32.Vec3{1, 0, -10}, 2))
}

func TestHiZSamplerEpsilon(t *testing.T) {
	s := nearOccluderSampler()
	s.DepthEpsilon = 100

	// A generous epsilon biases borderline depths toward visible.
	assert.False(t, s.Occluded(mgl32.Vec3{0, 0, -10}, 1))
}

func TestOcclusionQueryHysteresis(t *testing.T) {
	q := NewOcclusionQuerySet(3, 0)

	// First sight is visible regardless of the result.
	assert.True(t, q.Resolve(0, 7, true, 1))
	assert.True(t, q.Resolve(0, 7, true, 2))
	// Third consecutive failure hides.
	assert.False(t, q.Resolve(0, 7, true, 3))
	assert.False(t, q.Resolve(0, 7, true, 4))

	// A single pass resets the streak.
	assert.True(t, q.Resolve(0, 7, false, 5))
	assert.True(t, q.Resolve(0, 7, true, 6))
}

func TestOcclusionQueryPerPassState(t *testing.T) {
	q := NewOcclusionQuerySet(1, 0)

	assert.True(t, q.Resolve(0, 7, true, 1), "first sight")
	assert.False(t, q.Resolve(0, 7, true, 2))

	// Same object in another pass has independent state.
	assert.True(t, q.Resolve(1, 7, true, 2))
}

func TestOcclusionQueryPrune(t *testing.T) {
	q := NewOcclusionQuerySet(2, 10)
	q.Resolve(0, 1, false, 1)
	q.Resolve(0, 2, false, 8)
	assert.Equal(t, 2, q.Len())

	q.Prune(15)
	assert.Equal(t, 1, q.Len(), "entry untouched for >10 frames is dropped")

	q.Prune(100)
	assert.Zero(t, q.Len())
}
