package gpu

import (
	"github.com/cogentcore/webgpu/wgpu"

	"github.com/gpukit/drawcull"
)

const workgroupSize = 64

func dispatchGroups(n uint32) uint32 {
	if n == 0 {
		return 1
	}
	return (n + workgroupSize - 1) / workgroupSize
}

// EncodeFrame records the whole stage chain into one encoder. Each stage is
// its own compute pass, which is the barrier that orders its writes before
// the next stage's reads.
func (m *BufferManager) EncodeFrame(encoder *wgpu.CommandEncoder, sorted bool) {
	m.rebuildBindGroups()
	m.writeRadixCapacity()

	// Reset: counters, stats, indirect instance counts.
	resetSpan := m.maxDraws
	if uint32(drawcull.StatCount) > resetSpan {
		resetSpan = uint32(drawcull.StatCount)
	}
	pass := encoder.BeginComputePass(nil)
	pass.SetPipeline(m.ResetPipeline)
	pass.SetBindGroup(0, m.ResetBG, nil)
	pass.DispatchWorkgroups(dispatchGroups(resetSpan), 1, 1)
	pass.End()

	// Cull: compact survivors into the visible list.
	pass = encoder.BeginComputePass(nil)
	pass.SetPipeline(m.CullPipeline)
	pass.SetBindGroup(0, m.CullBG, nil)
	pass.SetBindGroup(1, m.hizCullBG, nil)
	pass.DispatchWorkgroups(dispatchGroups(m.inputCount), 1, 1)
	pass.End()

	if sorted {
		// Sort-key build: one record per survivor.
		pass = encoder.BeginComputePass(nil)
		pass.SetPipeline(m.SortKeyPipeline)
		pass.SetBindGroup(0, m.SortKeyBG, nil)
		pass.DispatchWorkgroups(dispatchGroups(m.visibleCap), 1, 1)
		pass.End()

		m.encodeRadixSort(encoder)
	}

	// Indirect build: one native draw record per ordered survivor.
	pass = encoder.BeginComputePass(nil)
	pass.SetPipeline(m.IndirectPipeline)
	pass.SetBindGroup(0, m.IndirectBG, nil)
	pass.DispatchWorkgroups(dispatchGroups(m.visibleCap), 1, 1)
	pass.End()
}

// encodeRadixSort records the eight LSD passes. The workgroup counts are
// sized to the buffer capacity; the kernels clamp to the live survivor count
// the culling pass left in the counter block.
func (m *BufferManager) encodeRadixSort(encoder *wgpu.CommandEncoder) {
	for p := 0; p < radixPasses; p++ {
		bg := m.RadixBGs[p]

		pass := encoder.BeginComputePass(nil)
		pass.SetPipeline(m.ClearPipeline)
		pass.SetBindGroup(0, bg, nil)
		pass.DispatchWorkgroups(256/workgroupSize, 1, 1)
		pass.End()

		pass = encoder.BeginComputePass(nil)
		pass.SetPipeline(m.HistPipeline)
		pass.SetBindGroup(0, bg, nil)
		pass.DispatchWorkgroups(dispatchGroups(m.visibleCap), 1, 1)
		pass.End()

		pass = encoder.BeginComputePass(nil)
		pass.SetPipeline(m.ScanPipeline)
		pass.SetBindGroup(0, bg, nil)
		pass.DispatchWorkgroups(1, 1, 1)
		pass.End()

		pass = encoder.BeginComputePass(nil)
		pass.SetPipeline(m.ScatterPipeline)
		pass.SetBindGroup(0, bg, nil)
		pass.DispatchWorkgroups(1, 1, 1)
		pass.End()
	}
}
