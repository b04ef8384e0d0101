package drawcull

import (
	"testing"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestPipeline(t *testing.T, cfg PipelineConfig, storeCap int) *Pipeline {
	t.Helper()
	store := NewCommandStore(storeCap, cfg.CapacityCeiling, nil)
	return NewPipeline(cfg, store, nil)
}

func testFrameInput() FrameInput {
	return FrameInput{
		ViewProj:        testViewProj(),
		PassMask:        1,
		CameraLayerMask: 1,
		Sorted:          true,
		SubmeshTable:    testSubmeshes,
	}
}

func TestPipelineRunFrame(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxObjects = 64
	p := newTestPipeline(t, cfg, 64)

	// A line of objects in front of the camera plus one far behind it.
	depths := []float32{-30, -10, -50, -20}
	for _, z := range depths {
		_, err := p.Store().Add(testCommand(mgl32.Vec3{0, 0, z}))
		require.NoError(t, err)
	}
	_, err := p.Store().Add(testCommand(mgl32.Vec3{0, 0, 500}))
	require.NoError(t, err)

	out, err := p.RunFrame(testFrameInput())
	require.NoError(t, err)

	assert.Len(t, out.Visible, 4)
	assert.False(t, out.Overflow)
	require.Equal(t, uint32(4), out.Indirect.DrawCount)

	// Sorted near-to-far: walk the draws back to commands through the
	// visible list and check depth ordering.
	var prev float32 = -1
	for _, rec := range out.Indirect.Records {
		slot := out.Visible[rec.BaseInstance]
		d := p.Store().Commands()[slot].Sphere.Center.Len()
		assert.GreaterOrEqual(t, d, prev, "draws must be emitted nearest first")
		prev = d
	}

	stats := p.Stats()
	assert.Zero(t, stats.Get(StatInputCount), "stats publish one frame late")
	_, err = p.RunFrame(testFrameInput())
	require.NoError(t, err)
	stats = p.Stats()
	assert.Equal(t, uint32(5), stats.Get(StatInputCount))
	assert.Equal(t, uint32(1), stats.Get(StatCulledCount))
	assert.Equal(t, uint32(4), stats.Get(StatDrawCount))
}

func TestPipelineOverflowGrowsNextFrame(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxObjects = 4
	cfg.CapacityCeiling = 64
	p := newTestPipeline(t, cfg, 16)

	for i := 0; i < 10; i++ {
		_, err := p.Store().Add(testCommand(mgl32.Vec3{float32(i - 5), 0, -10}))
		require.NoError(t, err)
	}

	out, err := p.RunFrame(testFrameInput())
	require.NoError(t, err)
	assert.True(t, out.Overflow)
	assert.Len(t, out.Visible, 4)
	assert.Equal(t, GovernorGrowthPending, p.Governor().State())

	// Growth is applied in the inter-frame window, so the next frame fits.
	out, err = p.RunFrame(testFrameInput())
	require.NoError(t, err)
	assert.False(t, out.Overflow)
	assert.Len(t, out.Visible, 10)
}

func TestPipelineTruncation(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxObjects = 64
	cfg.MaxIndirectDraws = 3
	p := newTestPipeline(t, cfg, 64)

	for i := 0; i < 8; i++ {
		_, err := p.Store().Add(testCommand(mgl32.Vec3{float32(i - 4), 0, -10}))
		require.NoError(t, err)
	}

	out, err := p.RunFrame(testFrameInput())
	require.NoError(t, err)

	// Culling fits, the indirect buffer does not.
	assert.False(t, out.Overflow)
	assert.Len(t, out.Visible, 8)
	assert.True(t, out.Indirect.Truncated)
	assert.Equal(t, uint32(3), out.Indirect.DrawCount)
}

func TestPipelineResidencyRefusal(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxObjects = 8
	p := newTestPipeline(t, cfg, 8)

	cmd := testCommand(mgl32.Vec3{0, 0, -10})
	cmd.MaterialID = 9
	_, err := p.Store().Add(cmd)
	require.NoError(t, err)

	in := testFrameInput()
	in.Materials = MaterialSet{0: true}
	_, err = p.RunFrame(in)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "residency violation")
}

func TestPipelineCheckCapacity(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxObjects = 8
	cfg.CapacityCeiling = 16
	p := newTestPipeline(t, cfg, 8)

	assert.NoError(t, p.CheckCapacity(8))
	assert.Error(t, p.CheckCapacity(12))
	assert.ErrorContains(t, p.CheckCapacity(100), "hard ceiling")
}

func TestPipelineSnapshotParity(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxObjects = 32
	p := newTestPipeline(t, cfg, 32)
	q := newTestPipeline(t, cfg, 32)

	for i := 0; i < 12; i++ {
		cmd := testCommand(mgl32.Vec3{float32(i%4 - 2), 0, float32(-5 - i)})
		cmd.MeshID = uint32(i % 3)
		cmd.MaterialID = uint32(i % 2)
		_, err := p.Store().Add(cmd)
		require.NoError(t, err)
		_, err = q.Store().Add(cmd)
		require.NoError(t, err)
	}

	outP, err := p.RunFrame(testFrameInput())
	require.NoError(t, err)
	outQ, err := q.RunFrame(testFrameInput())
	require.NoError(t, err)

	verdict := CompareSnapshots(outP.Snapshot, outQ.Snapshot)
	assert.True(t, verdict.Equivalent, verdict.Reason)
}
