package drawcull

// OcclusionMode selects how (and whether) occlusion culling runs.
type OcclusionMode int

const (
	OcclusionDisabled OcclusionMode = iota
	// OcclusionHiZ tests bounding volumes against a hierarchical depth
	// pyramid on the GPU.
	OcclusionHiZ
	// OcclusionAsyncQuery is the CPU-side variant: queries resolve one or
	// more frames late through OcclusionQuerySet, trading latency for zero
	// stalls.
	OcclusionAsyncQuery
)

func (m OcclusionMode) String() string {
	switch m {
	case OcclusionDisabled:
		return "disabled"
	case OcclusionHiZ:
		return "hi-z"
	case OcclusionAsyncQuery:
		return "async-query"
	}
	return "unknown"
}

// SortDomain selects what the primary sort key encodes.
type SortDomain int

const (
	// SortDomainDistance orders by encoded camera distance: near-to-far for
	// opaque passes, far-to-near for transparents (see SortDirection).
	SortDomainDistance SortDomain = iota
	// SortDomainMaterialState groups by pipeline-state/material/mesh for
	// batching.
	SortDomainMaterialState
)

type SortDirection int

const (
	SortNearToFar SortDirection = iota
	SortFarToNear
)

// FeatureProfile gates CPU fallbacks, readbacks and safety nets.
type FeatureProfile int

const (
	ProfileAuto FeatureProfile = iota
	ProfileDevParity
	ProfileShippingFast
	ProfileDiagnostics
)

func (p FeatureProfile) String() string {
	switch p {
	case ProfileAuto:
		return "auto"
	case ProfileDevParity:
		return "dev-parity"
	case ProfileShippingFast:
		return "shipping-fast"
	case ProfileDiagnostics:
		return "diagnostics"
	}
	return "unknown"
}

// Resolve maps ProfileAuto onto a concrete profile from the build
// configuration (see config_profile_*.go). Concrete profiles resolve to
// themselves.
func (p FeatureProfile) Resolve() FeatureProfile {
	if p == ProfileAuto {
		return autoProfile
	}
	return p
}

// AllowsReadback reports whether CPU readback of GPU-written counters is
// permitted. Readback is the one operation that can stall the pipeline, so
// the shipping profile forbids it outright.
func (p FeatureProfile) AllowsReadback() bool {
	switch p.Resolve() {
	case ProfileDevParity, ProfileDiagnostics:
		return true
	}
	return false
}

// PipelineConfig is the environment-supplied configuration surface.
type PipelineConfig struct {
	// MaxObjects is the initial command-slot capacity of the scene store.
	MaxObjects int
	// CapacityCeiling is the hard ceiling for bounded-doubling growth.
	CapacityCeiling int
	// MaxIndirectDraws caps the indirect buffer; hitting it sets the
	// truncation flag.
	MaxIndirectDraws uint32

	Occlusion OcclusionMode
	Domain    SortDomain
	Profile   FeatureProfile

	// DisabledFlags rejects any command carrying one of these flags.
	DisabledFlags CommandFlags
	// MaxRenderDistance culls commands farther than this from the camera.
	// Zero means unlimited.
	MaxRenderDistance float32
	// HiZDepthEpsilon widens the Hi-Z depth comparison toward "keep visible".
	HiZDepthEpsilon float32

	// OcclusionHideDelay is the number of consecutive failed occlusion tests
	// before an object is actually hidden (temporal hysteresis).
	OcclusionHideDelay int
	// QueryMaxAge evicts per-object query state untouched for this many
	// frames.
	QueryMaxAge uint64
}

// DefaultConfig returns a config suitable for medium scenes.
func DefaultConfig() PipelineConfig {
	return PipelineConfig{
		MaxObjects:         4096,
		CapacityCeiling:    1 << 20,
		MaxIndirectDraws:   4096,
		Occlusion:          OcclusionDisabled,
		Domain:             SortDomainDistance,
		Profile:            ProfileAuto,
		MaxRenderDistance:  0,
		HiZDepthEpsilon:    0.05,
		OcclusionHideDelay: 3,
		QueryMaxAge:        120,
	}
}
