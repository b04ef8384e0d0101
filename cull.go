package drawcull

import (
	"github.com/go-gl/mathgl/mgl32"

	"github.com/gpukit/drawcull/bvh"
)

// CullParams is everything the culling stage consumes for one pass.
type CullParams struct {
	Frustum         Frustum
	CameraPos       mgl32.Vec3
	PassMask        uint32 // bit of the current render pass
	DisabledFlags   CommandFlags
	CameraLayerMask uint32
	MaxDistance     float32 // 0 = unlimited

	// BVH, when non-nil and built over the same command array, replaces the
	// brute-force frustum/distance tests. Selecting it is a policy decision:
	// the accept set must be identical either way.
	BVH *bvh.Tree

	// HiZ enables the occlusion test. Queries, when also set, routes the
	// occlusion result through the async hysteresis state instead of
	// rejecting immediately.
	HiZ     *HiZSampler
	Queries *OcclusionQuerySet

	FrameIndex uint64
}

// CullResult is the compacted survivor list plus the counter triple.
type CullResult struct {
	// Visible holds slot indices into the command array, compacted in
	// encounter order.
	Visible          []uint32
	VisibleInstances uint32
	// Attempted is the true, uncapped survivor count: it keeps counting past
	// capacity so the governor knows the real demand.
	Attempted uint32
	Overflow  bool
}

// CullCommands runs the per-object visibility tests in ascending cost order
// and appends survivors to the compacted list, bounds-checked against
// capacity. This is the CPU peer of gpu/shaders/cull.wgsl; both must produce
// the same accept set.
func CullCommands(cmds []RenderCommand, p CullParams, capacity int, stats *FrameStats) CullResult {
	res := CullResult{}
	if len(cmds) == 0 {
		return res
	}
	if capacity > 0 {
		res.Visible = make([]uint32, 0, min(capacity, len(cmds)))
	}
	if stats != nil {
		stats.Add(StatInputCount, uint32(len(cmds)))
	}

	maxDistSq := p.MaxDistance * p.MaxDistance

	// The BVH path prefilters by frustum+distance; candidates then run the
	// exact same per-object tests as the brute-force path, so the accept set
	// cannot differ.
	var candidates []bool
	if p.BVH != nil {
		candidates = make([]bool, len(cmds))
		planes := p.Frustum.Planes()
		p.BVH.Cull(planes, p.CameraPos, p.MaxDistance, func(item int32) {
			if int(item) < len(candidates) {
				candidates[item] = true
			}
		})
		if stats != nil {
			stats.Add(StatBVHCulls, 1)
		}
	}

	rejected := uint32(0)
	for i := range cmds {
		cmd := &cmds[i]

		// (1) flag filter
		if cmd.Flags&p.DisabledFlags != 0 {
			rejected++
			continue
		}
		// (2) layer mask
		if cmd.LayerMask&p.CameraLayerMask == 0 {
			rejected++
			continue
		}
		// (3) render-pass filter; PassMaskAll always matches
		if cmd.PassMask != PassMaskAll && cmd.PassMask&p.PassMask == 0 {
			rejected++
			continue
		}

		if candidates != nil && !candidates[i] {
			// Pruned by the hierarchy; attribute to the frustum bucket.
			rejected++
			if stats != nil {
				stats.Add(StatRejectedFrustum, 1)
			}
			continue
		}

		// (4) squared distance, no sqrt
		if p.MaxDistance > 0 {
			d := cmd.Sphere.Center.Sub(p.CameraPos)
			if d.Dot(d) > maxDistSq {
				rejected++
				if stats != nil {
					stats.Add(StatRejectedDistance, 1)
				}
				continue
			}
		}

		// (5) frustum
		if !p.Frustum.ContainsSphere(cmd.Sphere.Center, cmd.Sphere.Radius) {
			rejected++
			if stats != nil {
				stats.Add(StatRejectedFrustum, 1)
			}
			continue
		}

		// (7) occlusion, biased toward keep-visible
		if p.HiZ != nil {
			occluded := p.HiZ.Occluded(cmd.Sphere.Center, cmd.Sphere.Radius)
			draw := !occluded
			if p.Queries != nil {
				draw = p.Queries.Resolve(p.PassMask, uint32(i), occluded, p.FrameIndex)
			}
			if !draw {
				rejected++
				if stats != nil {
					stats.Add(StatOcclusionRejected, 1)
				}
				continue
			}
			if stats != nil {
				stats.Add(StatOcclusionAccepted, 1)
			}
		}

		// Survivor: increment-then-check, mirroring the GPU's bounds-checked
		// atomic. Attempted keeps the true demand even past capacity.
		slot := res.Attempted
		res.Attempted++
		if int(slot) < capacity {
			res.Visible = append(res.Visible, uint32(i))
			res.VisibleInstances += cmd.InstanceCount
		} else {
			res.Overflow = true
		}
	}

	if stats != nil {
		stats.Add(StatCulledCount, rejected)
	}
	return res
}
