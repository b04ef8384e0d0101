package gpu

import (
	"encoding/binary"
	"math"
	"testing"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"

	"github.com/gpukit/drawcull"
)

func TestOcclusionParam(t *testing.T) {
	tests := []struct {
		name string
		mode drawcull.OcclusionMode
		live bool
		want uint32
	}{
		{"hi-z with live pyramid", drawcull.OcclusionHiZ, true, 1},
		{"hi-z on fallback binding", drawcull.OcclusionHiZ, false, 0},
		{"disabled", drawcull.OcclusionDisabled, true, 0},
		{"async query", drawcull.OcclusionAsyncQuery, true, 0},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, occlusionParam(tc.mode, tc.live))
		})
	}
}

func TestFarDepthTexelNeverOccludes(t *testing.T) {
	depth := math.Float32frombits(binary.LittleEndian.Uint32(farDepthTexel()))
	assert.Equal(t, float32(hizFarDepth), depth)

	// A pyramid filled with the fallback texel must never reject anything.
	proj := mgl32.Perspective(mgl32.DegToRad(60), 1.0, 1.0, 100.0)
	view := mgl32.LookAtV(mgl32.Vec3{}, mgl32.Vec3{0, 0, -1}, mgl32.Vec3{0, 1, 0})
	s := &drawcull.HiZSampler{
		Data:     []float32{depth},
		W:        1,
		H:        1,
		ViewProj: proj.Mul4(view),
	}
	assert.False(t, s.Occluded(mgl32.Vec3{0, 0, -50}, 1))
}
