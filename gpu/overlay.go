package gpu

import (
	"encoding/binary"
	"fmt"
	"image"
	"image/draw"
	"math"

	"github.com/cogentcore/webgpu/wgpu"
	"golang.org/x/image/font"
	"golang.org/x/image/font/opentype"
	"golang.org/x/image/math/fixed"

	"github.com/gpukit/drawcull"
	"github.com/gpukit/drawcull/gpu/shaders"
)

const overlayAtlasSize = 512

type glyphInfo struct {
	uvMin [2]float32
	uvMax [2]float32
	size  [2]float32
	off   [2]float32
	adv   float32
}

// OverlayRenderer draws the diagnostics HUD: a glyph atlas rasterized once on
// the CPU, quads rebuilt per frame from the stats text. Only created under
// the diagnostics profile.
type OverlayRenderer struct {
	device *wgpu.Device

	face   font.Face
	glyphs map[rune]glyphInfo

	pipeline  *wgpu.RenderPipeline
	atlasBG   *wgpu.BindGroup
	vertexBuf *wgpu.Buffer
	vertexCap int
}

func NewOverlayRenderer(device *wgpu.Device, fontData []byte, fontSize float64,
	format wgpu.TextureFormat) (*OverlayRenderer, error) {

	f, err := opentype.Parse(fontData)
	if err != nil {
		return nil, fmt.Errorf("failed to parse font: %w", err)
	}
	face, err := opentype.NewFace(f, &opentype.FaceOptions{
		Size:    fontSize,
		DPI:     72,
		Hinting: font.HintingFull,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create face: %w", err)
	}

	o := &OverlayRenderer{
		device: device,
		face:   face,
		glyphs: make(map[rune]glyphInfo),
	}

	atlas := image.NewAlpha(image.Rect(0, 0, overlayAtlasSize, overlayAtlasSize))
	x, y := 2, 2
	rowHeight := 0
	for r := rune(32); r < 127; r++ {
		bounds, mask, _, adv, ok := face.Glyph(fixed.Point26_6{}, r)
		if !ok {
			continue
		}
		w := mask.Bounds().Dx()
		h := mask.Bounds().Dy()
		if x+w >= overlayAtlasSize {
			x = 2
			y += rowHeight + 4
			rowHeight = 0
		}
		if y+h >= overlayAtlasSize {
			break
		}
		draw.Draw(atlas, image.Rect(x, y, x+w, y+h), mask, mask.Bounds().Min, draw.Src)

		o.glyphs[r] = glyphInfo{
			uvMin: [2]float32{float32(x) / overlayAtlasSize, float32(y) / overlayAtlasSize},
			uvMax: [2]float32{float32(x+w) / overlayAtlasSize, float32(y+h) / overlayAtlasSize},
			size:  [2]float32{float32(w), float32(h)},
			off:   [2]float32{float32(bounds.Min.X), float32(bounds.Min.Y)},
			adv:   float32(adv) / 64.0,
		}

		x += w + 4
		if h > rowHeight {
			rowHeight = h
		}
	}

	if err := o.createGpuState(atlas, format); err != nil {
		return nil, err
	}
	return o, nil
}

func (o *OverlayRenderer) createGpuState(atlas *image.Alpha, format wgpu.TextureFormat) error {
	tex, err := o.device.CreateTexture(&wgpu.TextureDescriptor{
		Label:         "Overlay Atlas",
		Size:          wgpu.Extent3D{Width: overlayAtlasSize, Height: overlayAtlasSize, DepthOrArrayLayers: 1},
		MipLevelCount: 1,
		SampleCount:   1,
		Dimension:     wgpu.TextureDimension2D,
		Format:        wgpu.TextureFormatR8Unorm,
		Usage:         wgpu.TextureUsageTextureBinding | wgpu.TextureUsageCopyDst,
	})
	if err != nil {
		return err
	}
	o.device.GetQueue().WriteTexture(tex.AsImageCopy(), atlas.Pix,
		&wgpu.TextureDataLayout{
			BytesPerRow:  uint32(atlas.Stride),
			RowsPerImage: overlayAtlasSize,
		},
		&wgpu.Extent3D{Width: overlayAtlasSize, Height: overlayAtlasSize, DepthOrArrayLayers: 1})

	module, err := o.device.CreateShaderModule(&wgpu.ShaderModuleDescriptor{
		Label:          "Overlay",
		WGSLDescriptor: &wgpu.ShaderModuleWGSLDescriptor{Code: shaders.OverlayWGSL},
	})
	if err != nil {
		return err
	}
	defer module.Release()

	sampler, err := o.device.CreateSampler(&wgpu.SamplerDescriptor{
		Label:     "Overlay Sampler",
		MagFilter: wgpu.FilterModeLinear,
		MinFilter: wgpu.FilterModeLinear,
	})
	if err != nil {
		return err
	}

	blend := wgpu.BlendState{
		Color: wgpu.BlendComponent{
			SrcFactor: wgpu.BlendFactorSrcAlpha,
			DstFactor: wgpu.BlendFactorOneMinusSrcAlpha,
			Operation: wgpu.BlendOperationAdd,
		},
		Alpha: wgpu.BlendComponent{
			SrcFactor: wgpu.BlendFactorOne,
			DstFactor: wgpu.BlendFactorOneMinusSrcAlpha,
			Operation: wgpu.BlendOperationAdd,
		},
	}

	o.pipeline, err = o.device.CreateRenderPipeline(&wgpu.RenderPipelineDescriptor{
		Label: "Overlay Pipeline",
		Vertex: wgpu.VertexState{
			Module:     module,
			EntryPoint: "vs_main",
			Buffers: []wgpu.VertexBufferLayout{{
				ArrayStride: 32, // pos vec2 + uv vec2 + color vec4
				StepMode:    wgpu.VertexStepModeVertex,
				Attributes: []wgpu.VertexAttribute{
					{Format: wgpu.VertexFormatFloat32x2, Offset: 0, ShaderLocation: 0},
					{Format: wgpu.VertexFormatFloat32x2, Offset: 8, ShaderLocation: 1},
					{Format: wgpu.VertexFormatFloat32x4, Offset: 16, ShaderLocation: 2},
				},
			}},
		},
		Fragment: &wgpu.FragmentState{
			Module:     module,
			EntryPoint: "fs_main",
			Targets: []wgpu.ColorTargetState{{
				Format:    format,
				Blend:     &blend,
				WriteMask: wgpu.ColorWriteMaskAll,
			}},
		},
		Primitive: wgpu.PrimitiveState{
			Topology: wgpu.PrimitiveTopologyTriangleList,
		},
		Multisample: wgpu.MultisampleState{
			Count: 1,
			Mask:  0xFFFFFFFF,
		},
	})
	if err != nil {
		return err
	}

	view, err := tex.CreateView(nil)
	if err != nil {
		return err
	}
	o.atlasBG, err = o.device.CreateBindGroup(&wgpu.BindGroupDescriptor{
		Label:  "Overlay Atlas BG",
		Layout: o.pipeline.GetBindGroupLayout(0),
		Entries: []wgpu.BindGroupEntry{
			{Binding: 0, TextureView: view},
			{Binding: 1, Sampler: sampler},
		},
	})
	return err
}

// buildVertices lays one string out as screen-space quads and converts to
// NDC, origin at the given pixel position.
func (o *OverlayRenderer) buildVertices(text string, posX, posY, scale float32,
	color [4]float32, screenW, screenH int) []byte {

	sw := float32(screenW)
	sh := float32(screenH)
	metrics := o.face.Metrics()
	ascent := float32(metrics.Ascent.Ceil())
	lineHeight := float32(metrics.Height.Ceil())

	var out []byte
	vertex := func(x, y, u, v float32) {
		buf := make([]byte, 32)
		binary.LittleEndian.PutUint32(buf[0:], math.Float32bits(x))
		binary.LittleEndian.PutUint32(buf[4:], math.Float32bits(y))
		binary.LittleEndian.PutUint32(buf[8:], math.Float32bits(u))
		binary.LittleEndian.PutUint32(buf[12:], math.Float32bits(v))
		for i, c := range color {
			binary.LittleEndian.PutUint32(buf[16+i*4:], math.Float32bits(c))
		}
		out = append(out, buf...)
	}

	startX := posX
	px := startX
	py := posY + ascent*scale
	for _, r := range text {
		if r == '\n' {
			px = startX
			py += lineHeight * scale
			continue
		}
		g, ok := o.glyphs[r]
		if !ok {
			continue
		}

		x0 := (px+g.off[0]*scale)/sw*2.0 - 1.0
		y0 := 1.0 - (py+g.off[1]*scale)/sh*2.0
		x1 := (px+(g.off[0]+g.size[0])*scale)/sw*2.0 - 1.0
		y1 := 1.0 - (py+(g.off[1]+g.size[1])*scale)/sh*2.0

		vertex(x0, y0, g.uvMin[0], g.uvMin[1])
		vertex(x1, y0, g.uvMax[0], g.uvMin[1])
		vertex(x0, y1, g.uvMin[0], g.uvMax[1])

		vertex(x1, y0, g.uvMax[0], g.uvMin[1])
		vertex(x1, y1, g.uvMax[0], g.uvMax[1])
		vertex(x0, y1, g.uvMin[0], g.uvMax[1])

		px += g.adv * scale
	}
	return out
}

// FormatStats renders one frame's counters as the HUD text block.
func FormatStats(stats drawcull.FrameStats, state drawcull.VisibleState) string {
	return fmt.Sprintf(
		"in %d  culled %d  draws %d\nfrustum %d  distance %d  occluded %d\ncull %v  sort %v  build %v",
		stats.Get(drawcull.StatInputCount),
		stats.Get(drawcull.StatCulledCount),
		state.DrawCount,
		stats.Get(drawcull.StatRejectedFrustum),
		stats.Get(drawcull.StatRejectedDistance),
		stats.Get(drawcull.StatOcclusionRejected),
		stats.Time(drawcull.StatCullTimeLo),
		stats.Time(drawcull.StatSortTimeLo),
		stats.Time(drawcull.StatBuildTimeLo),
	)
}

// Draw renders the text block over the given target.
func (o *OverlayRenderer) Draw(encoder *wgpu.CommandEncoder, target *wgpu.TextureView,
	text string, screenW, screenH int) {

	data := o.buildVertices(text, 8, 8, 1.0, [4]float32{1, 1, 0.4, 1}, screenW, screenH)
	if len(data) == 0 {
		return
	}

	if o.vertexBuf == nil || o.vertexCap < len(data) {
		if o.vertexBuf != nil {
			o.vertexBuf.Release()
		}
		var err error
		o.vertexBuf, err = o.device.CreateBuffer(&wgpu.BufferDescriptor{
			Label: "Overlay Vertices",
			Size:  uint64(len(data) * 2),
			Usage: wgpu.BufferUsageVertex | wgpu.BufferUsageCopyDst,
		})
		if err != nil {
			panic(err)
		}
		o.vertexCap = len(data) * 2
	}
	o.device.GetQueue().WriteBuffer(o.vertexBuf, 0, data)

	pass := encoder.BeginRenderPass(&wgpu.RenderPassDescriptor{
		ColorAttachments: []wgpu.RenderPassColorAttachment{{
			View:    target,
			LoadOp:  wgpu.LoadOpLoad,
			StoreOp: wgpu.StoreOpStore,
		}},
	})
	pass.SetPipeline(o.pipeline)
	pass.SetBindGroup(0, o.atlasBG, nil)
	pass.SetVertexBuffer(0, o.vertexBuf, 0, uint64(len(data)))
	pass.Draw(uint32(len(data)/32), 1, 0, 0)
	pass.End()
}
