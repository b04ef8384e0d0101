package gpu

import (
	"encoding/binary"
	"fmt"
	"math"
	"sync"

	"github.com/cogentcore/webgpu/wgpu"
	"github.com/go-gl/mathgl/mgl32"

	"github.com/gpukit/drawcull"
	"github.com/gpukit/drawcull/gpu/shaders"
)

// hizFarDepth fills texels with no coverage so empty regions never occlude.
const hizFarDepth = 1.0e9

// DepthPyramid owns the hierarchical depth chain the cull stage samples and
// the coarse-mip readback that feeds the CPU backend's sampler for parity
// runs. Each mip holds the farthest view-space depth of the 2x2 quad below
// it.
type DepthPyramid struct {
	device *wgpu.Device

	Texture  *wgpu.Texture
	Views    []*wgpu.TextureView
	cullView *wgpu.TextureView
	pipeline *wgpu.ComputePipeline
	bgl      *wgpu.BindGroupLayout
	chainBGs []*wgpu.BindGroup

	// First-pass bind group, rebuilt only when the depth source changes.
	sourceView *wgpu.TextureView
	sourceBG   *wgpu.BindGroup

	readback      *wgpu.Buffer
	readbackLevel uint32
	readbackW     uint32
	readbackH     uint32

	stateMu sync.Mutex
	state   int

	lastData []float32
	lastW    uint32
	lastH    uint32

	epsilon float32
}

func NewDepthPyramid(device *wgpu.Device, epsilon float32) *DepthPyramid {
	p := &DepthPyramid{device: device, epsilon: epsilon}

	module, err := device.CreateShaderModule(&wgpu.ShaderModuleDescriptor{
		Label:          "HiZDownsample",
		WGSLDescriptor: &wgpu.ShaderModuleWGSLDescriptor{Code: shaders.HiZDownsampleWGSL},
	})
	if err != nil {
		panic(err)
	}
	defer module.Release()

	p.bgl, err = device.CreateBindGroupLayout(&wgpu.BindGroupLayoutDescriptor{
		Label: "HiZ BGL",
		Entries: []wgpu.BindGroupLayoutEntry{
			{
				Binding:    0,
				Visibility: wgpu.ShaderStageCompute,
				Texture: wgpu.TextureBindingLayout{
					SampleType:    wgpu.TextureSampleTypeUnfilterableFloat,
					ViewDimension: wgpu.TextureViewDimension2D,
				},
			},
			{
				Binding:    1,
				Visibility: wgpu.ShaderStageCompute,
				StorageTexture: wgpu.StorageTextureBindingLayout{
					Access:        wgpu.StorageTextureAccessWriteOnly,
					Format:        wgpu.TextureFormatR32Float,
					ViewDimension: wgpu.TextureViewDimension2D,
				},
			},
		},
	})
	if err != nil {
		panic(err)
	}

	layout, err := device.CreatePipelineLayout(&wgpu.PipelineLayoutDescriptor{
		BindGroupLayouts: []*wgpu.BindGroupLayout{p.bgl},
	})
	if err != nil {
		panic(err)
	}
	p.pipeline, err = device.CreateComputePipeline(&wgpu.ComputePipelineDescriptor{
		Label:  "HiZ Pipeline",
		Layout: layout,
		Compute: wgpu.ProgrammableStageDescriptor{
			Module:     module,
			EntryPoint: "main",
		},
	})
	if err != nil {
		panic(err)
	}
	return p
}

// Resize rebuilds the pyramid for a new depth source resolution. The chain
// starts at half the source size.
func (p *DepthPyramid) Resize(width, height uint32) {
	if p.Texture != nil {
		p.Texture.Release()
	}
	if p.readback != nil {
		p.readback.Release()
	}
	if p.cullView != nil {
		p.cullView.Release()
		p.cullView = nil
	}
	for _, v := range p.Views {
		v.Release()
	}
	p.Views = nil
	for _, bg := range p.chainBGs {
		if bg != nil {
			bg.Release()
		}
	}
	p.chainBGs = nil
	if p.sourceBG != nil {
		p.sourceBG.Release()
		p.sourceBG = nil
	}
	p.sourceView = nil

	w := width / 2
	h := height / 2
	if w < 1 {
		w = 1
	}
	if h < 1 {
		h = 1
	}

	mips := 0
	for dim := maxU32(w, h); dim > 0; dim >>= 1 {
		mips++
	}

	var err error
	p.Texture, err = p.device.CreateTexture(&wgpu.TextureDescriptor{
		Label:         "Hi-Z Pyramid",
		Size:          wgpu.Extent3D{Width: w, Height: h, DepthOrArrayLayers: 1},
		MipLevelCount: uint32(mips),
		SampleCount:   1,
		Dimension:     wgpu.TextureDimension2D,
		Format:        wgpu.TextureFormatR32Float,
		Usage:         wgpu.TextureUsageTextureBinding | wgpu.TextureUsageStorageBinding | wgpu.TextureUsageCopySrc,
	})
	if err != nil {
		panic(err)
	}

	p.cullView, err = p.Texture.CreateView(nil)
	if err != nil {
		panic(err)
	}

	p.Views = make([]*wgpu.TextureView, mips)
	for i := 0; i < mips; i++ {
		p.Views[i], err = p.Texture.CreateView(&wgpu.TextureViewDescriptor{
			Label:           fmt.Sprintf("Hi-Z Mip %d", i),
			Format:          wgpu.TextureFormatR32Float,
			Dimension:       wgpu.TextureViewDimension2D,
			BaseMipLevel:    uint32(i),
			MipLevelCount:   1,
			BaseArrayLayer:  0,
			ArrayLayerCount: 1,
		})
		if err != nil {
			panic(err)
		}
	}

	// Internal mip-to-mip bind groups never change, cache them. The first
	// pass binds the external depth source and is built per dispatch.
	p.chainBGs = make([]*wgpu.BindGroup, mips)
	for i := 0; i < mips-1; i++ {
		bg, err := p.device.CreateBindGroup(&wgpu.BindGroupDescriptor{
			Label:  fmt.Sprintf("HiZ chain %d", i+1),
			Layout: p.bgl,
			Entries: []wgpu.BindGroupEntry{
				{Binding: 0, TextureView: p.Views[i]},
				{Binding: 1, TextureView: p.Views[i+1]},
			},
		})
		if err != nil {
			panic(err)
		}
		p.chainBGs[i+1] = bg
	}

	// Readback targets a coarse mip around 64 texels wide; the CPU sampler
	// only needs enough resolution to bound footprints conservatively.
	level := uint32(0)
	currW, currH := w, h
	for int(level) < mips-1 && currW > 64 {
		level++
		currW >>= 1
		currH >>= 1
	}
	if currW < 1 {
		currW = 1
	}
	if currH < 1 {
		currH = 1
	}
	p.readbackLevel = level
	p.readbackW = currW
	p.readbackH = currH

	bytesPerRow := (currW*4 + 255) &^ uint32(255)
	p.readback, err = p.device.CreateBuffer(&wgpu.BufferDescriptor{
		Label: "Hi-Z Readback",
		Size:  uint64(bytesPerRow * currH),
		Usage: wgpu.BufferUsageCopyDst | wgpu.BufferUsageMapRead,
	})
	if err != nil {
		panic(err)
	}

	p.stateMu.Lock()
	p.state = readbackIdle
	p.stateMu.Unlock()
}

// CullView returns the full-chain view the cull stage binds. The view lives
// for the lifetime of the current pyramid texture.
func (p *DepthPyramid) CullView() (*wgpu.TextureView, error) {
	if p.cullView == nil {
		return nil, fmt.Errorf("depth pyramid not sized")
	}
	return p.cullView, nil
}

// Encode records the downsample chain from the given depth source and, when
// the readback buffer is idle, the copy of the coarse mip.
func (p *DepthPyramid) Encode(encoder *wgpu.CommandEncoder, sourceDepth *wgpu.TextureView) {
	if p.Texture == nil || sourceDepth == nil {
		return
	}

	pass := encoder.BeginComputePass(nil)
	pass.SetPipeline(p.pipeline)

	if p.sourceBG == nil || sourceDepth != p.sourceView {
		if p.sourceBG != nil {
			p.sourceBG.Release()
		}
		bg, err := p.device.CreateBindGroup(&wgpu.BindGroupDescriptor{
			Label:  "HiZ chain 0",
			Layout: p.bgl,
			Entries: []wgpu.BindGroupEntry{
				{Binding: 0, TextureView: sourceDepth},
				{Binding: 1, TextureView: p.Views[0]},
			},
		})
		if err != nil {
			panic(err)
		}
		p.sourceBG = bg
		p.sourceView = sourceDepth
	}

	w := p.Texture.GetWidth()
	h := p.Texture.GetHeight()
	pass.SetBindGroup(0, p.sourceBG, nil)
	pass.DispatchWorkgroups((w+7)/8, (h+7)/8, 1)

	for i := 0; i < len(p.Views)-1; i++ {
		w = maxU32(w>>1, 1)
		h = maxU32(h>>1, 1)
		pass.SetBindGroup(0, p.chainBGs[i+1], nil)
		pass.DispatchWorkgroups((w+7)/8, (h+7)/8, 1)
	}
	pass.End()

	p.stateMu.Lock()
	idle := p.state == readbackIdle
	if idle {
		p.state = readbackCopy
	}
	p.stateMu.Unlock()
	if !idle {
		return
	}

	bytesPerRow := (p.readbackW*4 + 255) &^ uint32(255)
	encoder.CopyTextureToBuffer(
		&wgpu.ImageCopyTexture{
			Texture:  p.Texture,
			MipLevel: p.readbackLevel,
			Origin:   wgpu.Origin3D{},
		},
		&wgpu.ImageCopyBuffer{
			Buffer: p.readback,
			Layout: wgpu.TextureDataLayout{
				BytesPerRow:  bytesPerRow,
				RowsPerImage: p.readbackH,
			},
		},
		&wgpu.Extent3D{Width: p.readbackW, Height: p.readbackH, DepthOrArrayLayers: 1},
	)
}

// Sampler advances the readback state machine and returns a sampler over the
// freshest coarse mip available. Before the first roundtrip completes, every
// texel reads as far so nothing is occluded.
func (p *DepthPyramid) Sampler(viewProj mgl32.Mat4, camPos mgl32.Vec3) *drawcull.HiZSampler {
	if p.readback == nil {
		return nil
	}

	p.stateMu.Lock()
	if p.state == readbackCopy {
		p.state = readbackMapping
		p.readback.MapAsync(wgpu.MapModeRead, 0, p.readback.GetSize(), func(status wgpu.BufferMapAsyncStatus) {
			p.stateMu.Lock()
			defer p.stateMu.Unlock()
			if status == wgpu.BufferMapAsyncStatusSuccess {
				p.state = readbackMapped
			} else {
				p.state = readbackIdle
			}
		})
	}

	if p.state == readbackMapped {
		size := p.readback.GetSize()
		data := p.readback.GetMappedRange(0, uint(size))

		w, h := p.readbackW, p.readbackH
		bytesPerRow := (w*4 + 255) &^ uint32(255)
		if len(p.lastData) != int(w*h) {
			p.lastData = make([]float32, w*h)
		}
		p.lastW = w
		p.lastH = h

		for y := uint32(0); y < h; y++ {
			row := y * bytesPerRow
			for x := uint32(0); x < w; x++ {
				bits := binary.LittleEndian.Uint32(data[row+x*4 : row+x*4+4])
				p.lastData[y*w+x] = math.Float32frombits(bits)
			}
		}

		p.readback.Unmap()
		p.state = readbackIdle
	}
	p.stateMu.Unlock()

	if len(p.lastData) == 0 {
		w, h := p.readbackW, p.readbackH
		p.lastData = make([]float32, w*h)
		for i := range p.lastData {
			p.lastData[i] = hizFarDepth
		}
		p.lastW = w
		p.lastH = h
	}

	return &drawcull.HiZSampler{
		Data:         p.lastData,
		W:            p.lastW,
		H:            p.lastH,
		ViewProj:     viewProj,
		CameraPos:    camPos,
		DepthEpsilon: p.epsilon,
	}
}

func maxU32(a, b uint32) uint32 {
	if a > b {
		return a
	}
	return b
}
