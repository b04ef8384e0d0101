package drawcull

import (
	"time"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/gpukit/drawcull/bvh"
)

// Pipeline is the CPU reference implementation of the per-frame chain:
// Reset -> Cull -> Sort-Key Build -> Sort -> Indirect Build. It is the
// conformance peer of gpu.Pipeline and the backend used for the async
// occlusion path; both implement the same stage contracts.
type Pipeline struct {
	cfg     PipelineConfig
	log     Logger
	store   *CommandStore
	gov     *CapacityGovernor
	stats   *StatsRecorder
	queries *OcclusionQuerySet
	prof    *Profiler

	// visibleCap is the culling buffer capacity, grown independently of the
	// store by the governor.
	visibleCap int
	frame      uint64
}

// FrameInput is the per-pass view state handed in by the frame loop.
type FrameInput struct {
	ViewProj        mgl32.Mat4
	CameraPos       mgl32.Vec3
	PassMask        uint32
	CameraLayerMask uint32
	Direction       SortDirection

	// Sorted disables the sort stages when false (sorting is optional per
	// render pass).
	Sorted bool

	BVH *bvh.Tree
	HiZ *HiZSampler

	SubmeshTable []SubmeshRange
	Materials    ResidencySet
}

// FrameOutput carries every stage's product for submission and testing.
type FrameOutput struct {
	Visible  []uint32
	Keys     []SortKeyRecord
	Indirect IndirectResult
	Overflow bool
	Snapshot Snapshot
}

func NewPipeline(cfg PipelineConfig, store *CommandStore, log Logger) *Pipeline {
	if log == nil {
		log = NewNopLogger()
	}
	p := &Pipeline{
		cfg:        cfg,
		log:        log,
		store:      store,
		gov:        NewCapacityGovernor(cfg.CapacityCeiling, log),
		stats:      NewStatsRecorder(),
		visibleCap: cfg.MaxObjects,
	}
	if cfg.Occlusion == OcclusionAsyncQuery {
		p.queries = NewOcclusionQuerySet(cfg.OcclusionHideDelay, cfg.QueryMaxAge)
	}
	if cfg.Profile.Resolve() == ProfileDiagnostics {
		p.prof = NewProfiler()
	}
	return p
}

func (p *Pipeline) Store() *CommandStore        { return p.store }
func (p *Pipeline) Stats() FrameStats           { return p.stats.Last() }
func (p *Pipeline) Governor() *CapacityGovernor { return p.gov }
func (p *Pipeline) Profiler() *Profiler         { return p.prof }
func (p *Pipeline) FrameIndex() uint64          { return p.frame }

// CheckCapacity is the pre-dispatch gate shared with the GPU backend.
func (p *Pipeline) CheckCapacity(objectCount int) error {
	return CheckStoreCapacity(objectCount, p.store.Capacity(), p.cfg.CapacityCeiling)
}

// RunFrame executes one frame. Growth planned by the governor is applied
// first (between frames, never mid-frame), then the stage chain runs
// strictly in order, each stage consuming only the previous stage's output.
func (p *Pipeline) RunFrame(in FrameInput) (FrameOutput, error) {
	// Governor window: before Reset.
	if next, grow := p.gov.Plan(p.visibleCap); grow {
		p.visibleCap = next
		p.store.Grow(next)
	}

	// Reset stage.
	p.stats.BeginFrame()
	p.prof.Reset()
	stats := p.stats.Current()
	p.frame++

	cmds := p.store.Commands()
	out := FrameOutput{}

	// Culling stage.
	p.prof.BeginScope("cull")
	cullStart := time.Now()
	cull := CullCommands(cmds, CullParams{
		Frustum:         ExtractFrustum(in.ViewProj),
		CameraPos:       in.CameraPos,
		PassMask:        in.PassMask,
		DisabledFlags:   p.cfg.DisabledFlags,
		CameraLayerMask: in.CameraLayerMask,
		MaxDistance:     p.cfg.MaxRenderDistance,
		BVH:             in.BVH,
		HiZ:             in.HiZ,
		Queries:         p.queries,
		FrameIndex:      p.frame,
	}, p.visibleCap, stats)
	stats.SetTime(StatCullTimeLo, time.Since(cullStart))
	p.prof.EndScope("cull")
	p.prof.SetCount("visible", len(cull.Visible))
	out.Visible = cull.Visible
	out.Overflow = cull.Overflow
	if cull.Overflow {
		p.log.Warnf("culling buffer overflow: %d survivors, capacity %d", cull.Attempted, p.visibleCap)
	}

	// Sort-key build + sort stages.
	if in.Sorted {
		p.prof.BeginScope("sort")
		sortStart := time.Now()
		out.Keys = BuildSortKeys(cmds, cull.Visible, SortKeyParams{
			Domain:    p.cfg.Domain,
			Direction: in.Direction,
			CameraPos: in.CameraPos,
		})
		SortRecords(out.Keys)
		stats.SetTime(StatSortTimeLo, time.Since(sortStart))
		p.prof.EndScope("sort")
	}

	// Indirect-command build stage, gated by residency validation.
	if err := ValidateResidency(cmds, cull.Visible, in.Materials); err != nil {
		p.log.Errorf("refusing submission: %v", err)
		return FrameOutput{}, err
	}
	p.prof.BeginScope("indirect")
	buildStart := time.Now()
	indirect, err := BuildIndirectCommands(cmds, cull.Visible, out.Keys,
		in.SubmeshTable, p.cfg.MaxIndirectDraws, stats)
	if err != nil {
		p.log.Errorf("refusing submission: %v", err)
		return FrameOutput{}, err
	}
	stats.SetTime(StatBuildTimeLo, time.Since(buildStart))
	p.prof.EndScope("indirect")
	out.Indirect = indirect
	if indirect.Truncated {
		p.log.Warnf("indirect draw truncation: %d visible, cap %d", len(cull.Visible), p.cfg.MaxIndirectDraws)
	}

	// Post-submission bookkeeping: feed the governor, age the query state.
	p.gov.Observe(cull.Overflow, int(cull.Attempted))
	if p.queries != nil {
		p.queries.Prune(p.frame)
	}

	out.Snapshot = TakeSnapshot("cpu", cmds, cull.Visible, indirect)
	return out, nil
}
