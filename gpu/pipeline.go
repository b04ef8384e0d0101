package gpu

import (
	"github.com/cogentcore/webgpu/wgpu"
	"github.com/go-gl/mathgl/mgl32"

	"github.com/gpukit/drawcull"
)

// Pipeline is the device-resident backend of the culling chain, the
// conformance peer of the CPU drawcull.Pipeline. Every stage contract is
// shared; only the execution substrate differs.
type Pipeline struct {
	cfg   drawcull.PipelineConfig
	log   drawcull.Logger
	store *drawcull.CommandStore
	gov   *drawcull.CapacityGovernor

	Manager  *BufferManager
	Pyramid  *DepthPyramid
	readback *Readback

	visibleCap int
	frame      uint64
}

// FrameInput is the per-pass view state for one encoded frame.
type FrameInput struct {
	ViewProj        mgl32.Mat4
	CameraPos       mgl32.Vec3
	PassMask        uint32
	CameraLayerMask uint32
	Direction       drawcull.SortDirection
	Sorted          bool

	// DepthView is last frame's depth, the Hi-Z source. Nil skips the
	// pyramid rebuild; until a pyramid has been bound at least once the
	// occlusion test stays off.
	DepthView *wgpu.TextureView

	SubmeshTable []drawcull.SubmeshRange
	Materials    drawcull.ResidencySet
}

func NewPipeline(device *wgpu.Device, cfg drawcull.PipelineConfig,
	store *drawcull.CommandStore, log drawcull.Logger) *Pipeline {

	if log == nil {
		log = drawcull.NewNopLogger()
	}
	p := &Pipeline{
		cfg:        cfg,
		log:        log,
		store:      store,
		gov:        drawcull.NewCapacityGovernor(cfg.CapacityCeiling, log),
		Manager:    NewBufferManager(device),
		visibleCap: cfg.MaxObjects,
	}
	if cfg.Occlusion == drawcull.OcclusionHiZ {
		p.Pyramid = NewDepthPyramid(device, cfg.HiZDepthEpsilon)
	}
	if cfg.Profile.AllowsReadback() {
		p.readback = NewReadback(device)
	}
	return p
}

func (p *Pipeline) Store() *drawcull.CommandStore        { return p.store }
func (p *Pipeline) Governor() *drawcull.CapacityGovernor { return p.gov }
func (p *Pipeline) FrameIndex() uint64                   { return p.frame }

// Resize sizes the Hi-Z pyramid for the current depth-target extent. A no-op
// outside Hi-Z mode.
func (p *Pipeline) Resize(width, height uint32) {
	if p.Pyramid != nil {
		p.Pyramid.Resize(width, height)
	}
}

// HiZSampler returns the CPU-side sampler over the read-back coarse mip, for
// feeding a reference pipeline in parity runs. Nil outside Hi-Z mode or
// before the first readback round trip.
func (p *Pipeline) HiZSampler(viewProj mgl32.Mat4, camPos mgl32.Vec3) *drawcull.HiZSampler {
	if p.Pyramid == nil {
		return nil
	}
	return p.Pyramid.Sampler(viewProj, camPos)
}

// occlusionParam gates the shader occlusion test on a live pyramid binding.
// With only the fallback texture bound the test stays off.
func occlusionParam(mode drawcull.OcclusionMode, liveHiZ bool) uint32 {
	if mode == drawcull.OcclusionHiZ && liveHiZ {
		return 1
	}
	return 0
}

// CheckCapacity is the pre-dispatch gate shared with the CPU backend.
func (p *Pipeline) CheckCapacity(objectCount int) error {
	return drawcull.CheckStoreCapacity(objectCount, p.store.Capacity(), p.cfg.CapacityCeiling)
}

// EncodeFrame uploads frame state and records the whole stage chain.
// Residency is validated before anything is encoded; a violation refuses the
// frame and leaves the encoder untouched.
func (p *Pipeline) EncodeFrame(encoder *wgpu.CommandEncoder, in FrameInput) error {
	// Governor window: between frames, before any upload.
	if next, grow := p.gov.Plan(p.visibleCap); grow {
		p.visibleCap = next
		p.store.Grow(next)
	}
	p.frame++

	cmds := p.store.Commands()
	if err := drawcull.ValidateAllResidency(cmds, in.Materials); err != nil {
		p.log.Errorf("refusing submission: %v", err)
		return err
	}

	if p.store.Dirty() {
		p.Manager.UploadCommands(p.store.HotBytes(), len(cmds), p.visibleCap, int(p.cfg.MaxIndirectDraws))
		p.store.ClearDirty()
	} else {
		p.Manager.UploadCommands(nil, len(cmds), p.visibleCap, int(p.cfg.MaxIndirectDraws))
	}
	p.Manager.UploadSubmeshes(in.SubmeshTable)

	sortMode := uint32(0)
	if p.cfg.Domain == drawcull.SortDomainMaterialState {
		sortMode |= sortModeDomainState
	}
	if in.Direction == drawcull.SortFarToNear {
		sortMode |= sortModeFarToNear
	}
	if in.Sorted {
		sortMode |= sortModeEnabled
	}

	// The pyramid is rebuilt and bound before the uniform is written so the
	// shader-side occlusion test only ever runs against a live pyramid.
	if p.Pyramid != nil && in.DepthView != nil {
		p.Pyramid.Encode(encoder, in.DepthView)
		if view, err := p.Pyramid.CullView(); err == nil {
			p.Manager.SetHiZBindGroup(view)
		}
	}
	occlusionMode := occlusionParam(p.cfg.Occlusion, p.Manager.HiZLive())

	maxDistSq := float32(0)
	if p.cfg.MaxRenderDistance > 0 {
		maxDistSq = p.cfg.MaxRenderDistance * p.cfg.MaxRenderDistance
	}

	frustum := drawcull.ExtractFrustum(in.ViewProj)
	p.Manager.WriteParams(FrameParams{
		ViewProj:        in.ViewProj,
		Planes:          frustum.Planes(),
		CameraPos:       in.CameraPos,
		InputCount:      uint32(len(cmds)),
		VisibleCapacity: uint32(p.visibleCap),
		MaxDraws:        uint32(p.cfg.MaxIndirectDraws),
		PassMask:        in.PassMask,
		DisabledFlags:   uint32(p.cfg.DisabledFlags),
		CameraLayerMask: in.CameraLayerMask,
		SortMode:        sortMode,
		OcclusionMode:   occlusionMode,
		MaxDistanceSq:   maxDistSq,
		HiZEpsilon:      p.cfg.HiZDepthEpsilon,
	})

	p.Manager.EncodeFrame(encoder, in.Sorted)

	if p.readback != nil {
		p.readback.Encode(encoder, p.Manager)
	}
	return nil
}

// Collect drains the latest completed readback and feeds the governor. Only
// meaningful under a profile that allows readback; otherwise the zero frame
// is returned and capacity never adapts from GPU counters.
func (p *Pipeline) Collect() ReadbackFrame {
	if p.readback == nil {
		return ReadbackFrame{}
	}
	frame := p.readback.Collect()
	if frame.Valid {
		// The visible counter keeps the true attempted count past capacity.
		attempted := int(frame.Stats.Get(drawcull.StatInputCount)) - int(frame.Stats.Get(drawcull.StatCulledCount))
		if attempted < len(frame.Visible) {
			attempted = len(frame.Visible)
		}
		p.gov.Observe(frame.State.Overflow != 0, attempted)
		if frame.State.Overflow != 0 {
			p.log.Warnf("culling buffer overflow: capacity %d", p.visibleCap)
		}
		if frame.Truncated {
			p.log.Warnf("indirect draw truncation: cap %d", p.cfg.MaxIndirectDraws)
		}
	}
	return frame
}

// Snapshot summarizes the latest read-back frame for cross-backend parity
// comparison.
func (p *Pipeline) Snapshot() drawcull.Snapshot {
	frame := p.Collect()
	res := drawcull.IndirectResult{
		Records:   frame.Indirect,
		DrawCount: frame.State.DrawCount,
		Truncated: frame.Truncated,
	}
	return drawcull.TakeSnapshot("gpu", p.store.Commands(), frame.Visible, res)
}
