package drawcull

import (
	"testing"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func parityScene() ([]RenderCommand, []uint32, IndirectResult) {
	cmds := make([]RenderCommand, 8)
	visible := make([]uint32, 8)
	for i := range cmds {
		cmds[i] = testCommand(mgl32.Vec3{float32(i), 0, -10})
		cmds[i].MeshID = uint32(i % 3)
		cmds[i].MaterialID = uint32(i % 2)
		visible[i] = uint32(i)
	}
	res, err := BuildIndirectCommands(cmds, visible, nil, testSubmeshes, 64, nil)
	if err != nil {
		panic(err)
	}
	return cmds, visible, res
}

func TestCompareSnapshotsEquivalent(t *testing.T) {
	cmds, visible, res := parityScene()

	a := TakeSnapshot("cpu", cmds, visible, res)
	b := TakeSnapshot("gpu", cmds, visible, res)

	// IDs differ per snapshot; the comparison ignores them.
	assert.NotEqual(t, a.ID, b.ID)

	verdict := CompareSnapshots(a, b)
	assert.True(t, verdict.Equivalent, verdict.Reason)
	assert.Empty(t, verdict.Reason)
}

func TestCompareSnapshotsVisibleMismatch(t *testing.T) {
	cmds, visible, res := parityScene()

	a := TakeSnapshot("cpu", cmds, visible, res)
	b := TakeSnapshot("gpu", cmds, visible[:6], res)

	verdict := CompareSnapshots(a, b)
	require.False(t, verdict.Equivalent)
	assert.Contains(t, verdict.Reason, "visible count mismatch")
	assert.Contains(t, verdict.Reason, "cpu=8")
	assert.Contains(t, verdict.Reason, "gpu=6")
}

func TestCompareSnapshotsDrawMismatch(t *testing.T) {
	cmds, visible, res := parityScene()

	a := TakeSnapshot("cpu", cmds, visible, res)
	short := res
	short.DrawCount--
	b := TakeSnapshot("gpu", cmds, visible, short)

	verdict := CompareSnapshots(a, b)
	require.False(t, verdict.Equivalent)
	assert.Contains(t, verdict.Reason, "draw count mismatch")
}

func TestCompareSnapshotsSignatureMismatch(t *testing.T) {
	cmds, visible, res := parityScene()
	a := TakeSnapshot("cpu", cmds, visible, res)

	altered := append([]RenderCommand(nil), cmds...)
	altered[3].MaterialID = 42
	b := TakeSnapshot("gpu", altered, visible, res)

	verdict := CompareSnapshots(a, b)
	require.False(t, verdict.Equivalent)
	assert.Contains(t, verdict.Reason, "material mismatch")
}

func TestTakeSnapshotEmpty(t *testing.T) {
	snap := TakeSnapshot("cpu", nil, nil, IndirectResult{})
	assert.Equal(t, uint32(0), snap.VisibleCount)
	assert.Empty(t, snap.Signatures)
	assert.True(t, CompareSnapshots(snap, TakeSnapshot("gpu", nil, nil, IndirectResult{})).Equivalent)
}
