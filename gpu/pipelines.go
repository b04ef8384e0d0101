package gpu

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/cogentcore/webgpu/wgpu"

	"github.com/gpukit/drawcull/gpu/shaders"
)

// farDepthTexel is the fallback pyramid content: a single far texel, so a
// cull pass bound to the fallback texture can never occlusion-reject.
func farDepthTexel() []byte {
	buf := make([]byte, 4)
	binary.LittleEndian.PutUint32(buf, math.Float32bits(hizFarDepth))
	return buf
}

func (m *BufferManager) createComputePipeline(label, src, entry string, layout *wgpu.PipelineLayout) *wgpu.ComputePipeline {
	module, err := m.Device.CreateShaderModule(&wgpu.ShaderModuleDescriptor{
		Label:          label,
		WGSLDescriptor: &wgpu.ShaderModuleWGSLDescriptor{Code: src},
	})
	if err != nil {
		panic(err)
	}
	defer module.Release()

	pipeline, err := m.Device.CreateComputePipeline(&wgpu.ComputePipelineDescriptor{
		Label:  label,
		Layout: layout,
		Compute: wgpu.ProgrammableStageDescriptor{
			Module:     module,
			EntryPoint: entry,
		},
	})
	if err != nil {
		panic(err)
	}
	return pipeline
}

func (m *BufferManager) createPipelines() {
	m.ResetPipeline = m.createComputePipeline("ResetPipeline", shaders.ResetWGSL, "main", nil)
	m.SortKeyPipeline = m.createComputePipeline("SortKeyPipeline", shaders.SortKeyWGSL, "main", nil)
	m.IndirectPipeline = m.createComputePipeline("IndirectPipeline", shaders.IndirectWGSL, "main", nil)
	m.createCullPipeline()
	m.createRadixPipelines()
}

// The cull pipeline binds the Hi-Z pyramid in group 1 even when occlusion is
// off, so the layout is explicit and a 1x1 dummy texture stands in.
func (m *BufferManager) createCullPipeline() {
	var err error
	storageRW := wgpu.BufferBindingLayout{Type: wgpu.BufferBindingTypeStorage}
	storageRO := wgpu.BufferBindingLayout{Type: wgpu.BufferBindingTypeReadOnlyStorage}

	bgl0, err := m.Device.CreateBindGroupLayout(&wgpu.BindGroupLayoutDescriptor{
		Label: "Cull BGL0",
		Entries: []wgpu.BindGroupLayoutEntry{
			{Binding: 0, Visibility: wgpu.ShaderStageCompute,
				Buffer: wgpu.BufferBindingLayout{Type: wgpu.BufferBindingTypeUniform}},
			{Binding: 1, Visibility: wgpu.ShaderStageCompute, Buffer: storageRO},
			{Binding: 2, Visibility: wgpu.ShaderStageCompute, Buffer: storageRW},
			{Binding: 3, Visibility: wgpu.ShaderStageCompute, Buffer: storageRW},
			{Binding: 4, Visibility: wgpu.ShaderStageCompute, Buffer: storageRW},
		},
	})
	if err != nil {
		panic(err)
	}

	m.hizCullBGL, err = m.Device.CreateBindGroupLayout(&wgpu.BindGroupLayoutDescriptor{
		Label: "Cull Hi-Z BGL",
		Entries: []wgpu.BindGroupLayoutEntry{
			{Binding: 0, Visibility: wgpu.ShaderStageCompute,
				Texture: wgpu.TextureBindingLayout{
					SampleType:    wgpu.TextureSampleTypeUnfilterableFloat,
					ViewDimension: wgpu.TextureViewDimension2D,
				}},
		},
	})
	if err != nil {
		panic(err)
	}

	layout, err := m.Device.CreatePipelineLayout(&wgpu.PipelineLayoutDescriptor{
		BindGroupLayouts: []*wgpu.BindGroupLayout{bgl0, m.hizCullBGL},
	})
	if err != nil {
		panic(err)
	}
	m.CullPipeline = m.createComputePipeline("CullPipeline", shaders.CullWGSL, "main", layout)

	m.dummyHiZ, err = m.Device.CreateTexture(&wgpu.TextureDescriptor{
		Label:         "Dummy Hi-Z",
		Size:          wgpu.Extent3D{Width: 1, Height: 1, DepthOrArrayLayers: 1},
		MipLevelCount: 1,
		SampleCount:   1,
		Dimension:     wgpu.TextureDimension2D,
		Format:        wgpu.TextureFormatR32Float,
		Usage:         wgpu.TextureUsageTextureBinding | wgpu.TextureUsageCopyDst,
	})
	if err != nil {
		panic(err)
	}
	// The fallback must read as far, never as a zero-depth occluder.
	m.Device.GetQueue().WriteTexture(
		m.dummyHiZ.AsImageCopy(),
		farDepthTexel(),
		&wgpu.TextureDataLayout{Offset: 0, BytesPerRow: 4, RowsPerImage: 1},
		&wgpu.Extent3D{Width: 1, Height: 1, DepthOrArrayLayers: 1},
	)
	view, err := m.dummyHiZ.CreateView(nil)
	if err != nil {
		panic(err)
	}
	m.dummyHiZBG, err = m.Device.CreateBindGroup(&wgpu.BindGroupDescriptor{
		Label:   "Dummy Hi-Z BG",
		Layout:  m.hizCullBGL,
		Entries: []wgpu.BindGroupEntry{{Binding: 0, TextureView: view}},
	})
	if err != nil {
		panic(err)
	}
	m.hizCullBG = m.dummyHiZBG
}

// The four radix entry points share one explicit layout so the per-pass bind
// groups work with all of them.
func (m *BufferManager) createRadixPipelines() {
	var err error
	storageRW := wgpu.BufferBindingLayout{Type: wgpu.BufferBindingTypeStorage}
	storageRO := wgpu.BufferBindingLayout{Type: wgpu.BufferBindingTypeReadOnlyStorage}

	m.radixBGL, err = m.Device.CreateBindGroupLayout(&wgpu.BindGroupLayoutDescriptor{
		Label: "Radix BGL",
		Entries: []wgpu.BindGroupLayoutEntry{
			{Binding: 0, Visibility: wgpu.ShaderStageCompute,
				Buffer: wgpu.BufferBindingLayout{Type: wgpu.BufferBindingTypeUniform}},
			{Binding: 1, Visibility: wgpu.ShaderStageCompute, Buffer: storageRO},
			{Binding: 2, Visibility: wgpu.ShaderStageCompute, Buffer: storageRW},
			{Binding: 3, Visibility: wgpu.ShaderStageCompute, Buffer: storageRW},
			{Binding: 4, Visibility: wgpu.ShaderStageCompute, Buffer: storageRO},
			{Binding: 5, Visibility: wgpu.ShaderStageCompute, Buffer: storageRO},
		},
	})
	if err != nil {
		panic(err)
	}

	layout, err := m.Device.CreatePipelineLayout(&wgpu.PipelineLayoutDescriptor{
		BindGroupLayouts: []*wgpu.BindGroupLayout{m.radixBGL},
	})
	if err != nil {
		panic(err)
	}

	m.ClearPipeline = m.createComputePipeline("RadixClearPipeline", shaders.RadixWGSL, "clear_main", layout)
	m.HistPipeline = m.createComputePipeline("RadixHistPipeline", shaders.RadixWGSL, "histogram_main", layout)
	m.ScanPipeline = m.createComputePipeline("RadixScanPipeline", shaders.RadixWGSL, "scan_main", layout)
	m.ScatterPipeline = m.createComputePipeline("RadixScatterPipeline", shaders.RadixWGSL, "scatter_main", layout)
}

// SetHiZBindGroup points the cull stage at the live depth pyramid; nil falls
// back to the far-filled fallback texture. The bind group is rebuilt only
// when the view actually changes, and the previous one is released.
func (m *BufferManager) SetHiZBindGroup(view *wgpu.TextureView) {
	if view == nil {
		if m.hizCullBG != nil && m.hizCullBG != m.dummyHiZBG {
			m.hizCullBG.Release()
		}
		m.hizCullBG = m.dummyHiZBG
		m.hizView = nil
		return
	}
	if view == m.hizView {
		return
	}
	bg, err := m.Device.CreateBindGroup(&wgpu.BindGroupDescriptor{
		Label:   "Cull Hi-Z BG",
		Layout:  m.hizCullBGL,
		Entries: []wgpu.BindGroupEntry{{Binding: 0, TextureView: view}},
	})
	if err != nil {
		panic(err)
	}
	if m.hizCullBG != nil && m.hizCullBG != m.dummyHiZBG {
		m.hizCullBG.Release()
	}
	m.hizCullBG = bg
	m.hizView = view
}

// HiZLive reports whether the cull stage is bound to a real pyramid rather
// than the fallback texture.
func (m *BufferManager) HiZLive() bool { return m.hizCullBG != m.dummyHiZBG }

// rebuildBindGroups recreates every cached bind group after a buffer grew.
func (m *BufferManager) rebuildBindGroups() {
	if !m.bindsStale {
		return
	}
	m.bindsStale = false

	mustBG := func(label string, layout *wgpu.BindGroupLayout, entries []wgpu.BindGroupEntry) *wgpu.BindGroup {
		bg, err := m.Device.CreateBindGroup(&wgpu.BindGroupDescriptor{
			Label:   label,
			Layout:  layout,
			Entries: entries,
		})
		if err != nil {
			panic(err)
		}
		return bg
	}

	m.ResetBG = mustBG("Reset BG", m.ResetPipeline.GetBindGroupLayout(0), []wgpu.BindGroupEntry{
		{Binding: 0, Buffer: m.ParamsBuf, Size: wgpu.WholeSize},
		{Binding: 1, Buffer: m.CountersBuf, Size: wgpu.WholeSize},
		{Binding: 2, Buffer: m.StatsBuf, Size: wgpu.WholeSize},
		{Binding: 3, Buffer: m.IndirectBuf, Size: wgpu.WholeSize},
	})

	m.CullBG = mustBG("Cull BG", m.CullPipeline.GetBindGroupLayout(0), []wgpu.BindGroupEntry{
		{Binding: 0, Buffer: m.ParamsBuf, Size: wgpu.WholeSize},
		{Binding: 1, Buffer: m.HotBuf, Size: wgpu.WholeSize},
		{Binding: 2, Buffer: m.VisibleBuf, Size: wgpu.WholeSize},
		{Binding: 3, Buffer: m.CountersBuf, Size: wgpu.WholeSize},
		{Binding: 4, Buffer: m.StatsBuf, Size: wgpu.WholeSize},
	})

	m.SortKeyBG = mustBG("SortKey BG", m.SortKeyPipeline.GetBindGroupLayout(0), []wgpu.BindGroupEntry{
		{Binding: 0, Buffer: m.ParamsBuf, Size: wgpu.WholeSize},
		{Binding: 1, Buffer: m.HotBuf, Size: wgpu.WholeSize},
		{Binding: 2, Buffer: m.VisibleBuf, Size: wgpu.WholeSize},
		{Binding: 3, Buffer: m.CountersBuf, Size: wgpu.WholeSize},
		{Binding: 4, Buffer: m.KeysBufA, Size: wgpu.WholeSize},
	})

	m.IndirectBG = mustBG("Indirect BG", m.IndirectPipeline.GetBindGroupLayout(0), []wgpu.BindGroupEntry{
		{Binding: 0, Buffer: m.ParamsBuf, Size: wgpu.WholeSize},
		{Binding: 1, Buffer: m.HotBuf, Size: wgpu.WholeSize},
		{Binding: 2, Buffer: m.VisibleBuf, Size: wgpu.WholeSize},
		{Binding: 3, Buffer: m.KeysBufA, Size: wgpu.WholeSize},
		{Binding: 4, Buffer: m.SubmeshBuf, Size: wgpu.WholeSize},
		{Binding: 5, Buffer: m.IndirectBuf, Size: wgpu.WholeSize},
		{Binding: 6, Buffer: m.CountersBuf, Size: wgpu.WholeSize},
		{Binding: 7, Buffer: m.StatsBuf, Size: wgpu.WholeSize},
	})

	// Ping-pong: even passes read A and write B, odd passes the reverse. An
	// even pass count lands the final order back in A, which is what the
	// sort-key and indirect bind groups reference.
	for p := 0; p < radixPasses; p++ {
		src, dst := m.KeysBufA, m.KeysBufB
		if p%2 == 1 {
			src, dst = m.KeysBufB, m.KeysBufA
		}
		m.RadixBGs[p] = mustBG(fmt.Sprintf("Radix BG pass %d", p), m.radixBGL, []wgpu.BindGroupEntry{
			{Binding: 0, Buffer: m.RadixPassBufs[p], Size: wgpu.WholeSize},
			{Binding: 1, Buffer: src, Size: wgpu.WholeSize},
			{Binding: 2, Buffer: dst, Size: wgpu.WholeSize},
			{Binding: 3, Buffer: m.HistogramBuf, Size: wgpu.WholeSize},
			{Binding: 4, Buffer: m.CountersBuf, Size: wgpu.WholeSize},
			{Binding: 5, Buffer: m.VisibleBuf, Size: wgpu.WholeSize},
		})
	}
}
