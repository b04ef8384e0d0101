package drawcull

import (
	"testing"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDistanceMonotonic(t *testing.T) {
	distances := []float32{0, 0.5, 1, 10, 99.5, 1000, 1e9}

	for i := 1; i < len(distances); i++ {
		near := EncodeDistance(distances[i-1], SortNearToFar)
		far := EncodeDistance(distances[i], SortNearToFar)
		assert.Less(t, near, far, "near-to-far keys must ascend with distance")

		nearInv := EncodeDistance(distances[i-1], SortFarToNear)
		farInv := EncodeDistance(distances[i], SortFarToNear)
		assert.Greater(t, nearInv, farInv, "far-to-near keys must descend with distance")
	}
}

func TestEncodeDistanceClampsNegative(t *testing.T) {
	assert.Equal(t, EncodeDistance(0, SortNearToFar), EncodeDistance(-5, SortNearToFar))
}

func TestBuildSortKeysDistance(t *testing.T) {
	cmds := []RenderCommand{
		testCommand(mgl32.Vec3{0, 0, -30}),
		testCommand(mgl32.Vec3{0, 0, -10}),
		testCommand(mgl32.Vec3{0, 0, -20}),
	}
	visible := []uint32{0, 1, 2}

	recs := BuildSortKeys(cmds, visible, SortKeyParams{
		Domain:    SortDomainDistance,
		Direction: SortNearToFar,
	})
	require.Len(t, recs, 3)

	// Index is the position in the compacted visible list, not the slot.
	for i, r := range recs {
		assert.Equal(t, uint32(i), r.Index)
	}

	SortRecords(recs)
	order := []uint32{recs[0].Index, recs[1].Index, recs[2].Index}
	assert.Equal(t, []uint32{1, 2, 0}, order, "nearest first")
}

func TestBuildSortKeysMaterialState(t *testing.T) {
	a := testCommand(mgl32.Vec3{})
	a.ProgramID = 2
	a.MaterialID = 7
	a.MeshID = 3
	b := a
	b.ProgramID = 1

	recs := BuildSortKeys([]RenderCommand{a, b}, []uint32{0, 1}, SortKeyParams{
		Domain: SortDomainMaterialState,
	})

	// Program is the coarse discriminator in the high bits.
	assert.Greater(t, recs[0].Key, recs[1].Key)
	assert.Equal(t, uint32(2)<<24|uint32(7)<<12|uint32(3), recs[0].Key)
}
