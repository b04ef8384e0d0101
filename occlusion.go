package drawcull

import (
	"github.com/go-gl/mathgl/mgl32"
)

// HiZSampler tests bounding spheres against a read-back coarse mip of the
// hierarchical depth pyramid. Depth values are view-space distances; texels
// with no coverage hold a large far value.
//
// Every uncertain case answers "not occluded": a false positive here is only
// a wasted draw, a false negative is a visibly missing object.
type HiZSampler struct {
	Data []float32 // row-major, W*H
	W, H uint32

	ViewProj  mgl32.Mat4
	CameraPos mgl32.Vec3

	// DepthEpsilon widens the comparison toward "keep visible".
	DepthEpsilon float32
}

// Occluded reports whether the sphere is hidden behind recorded occluders.
func (s *HiZSampler) Occluded(center mgl32.Vec3, radius float32) bool {
	if s == nil || len(s.Data) == 0 || s.W == 0 || s.H == 0 {
		return false
	}

	// Nearest possible depth of the sphere.
	toCenter := center.Sub(s.CameraPos)
	nearest := float32(toCenter.Len()) - radius
	if nearest <= 0 {
		// Camera inside the sphere.
		return false
	}

	// Project the center; spheres behind or straddling the near plane stay
	// visible.
	clip := s.ViewProj.Mul4x1(center.Vec4(1.0))
	if clip.W() <= radius {
		return false
	}
	ndc := clip.Vec3().Mul(1.0 / clip.W())

	// Conservative screen-space footprint of the radius. The view part of
	// ViewProj is a rotation, so each of the first two row lengths recovers
	// the projection focal term for its axis.
	fx := mgl32.Vec3{s.ViewProj.At(0, 0), s.ViewProj.At(0, 1), s.ViewProj.At(0, 2)}.Len()
	fy := mgl32.Vec3{s.ViewProj.At(1, 0), s.ViewProj.At(1, 1), s.ViewProj.At(1, 2)}.Len()
	ndcRadiusX := radius * fx / clip.W()
	ndcRadiusY := radius * fy / clip.W()

	minX := (ndc.X()-ndcRadiusX)*0.5 + 0.5
	maxX := (ndc.X()+ndcRadiusX)*0.5 + 0.5
	minY := 1.0 - ((ndc.Y()+ndcRadiusY)*0.5 + 0.5)
	maxY := 1.0 - ((ndc.Y()-ndcRadiusY)*0.5 + 0.5)

	// Partially off-screen footprints keep the object visible.
	if minX < 0 || minY < 0 || maxX > 1 || maxY > 1 {
		return false
	}

	x0 := uint32(minX * float32(s.W))
	x1 := uint32(maxX * float32(s.W))
	y0 := uint32(minY * float32(s.H))
	y1 := uint32(maxY * float32(s.H))
	if x1 >= s.W {
		x1 = s.W - 1
	}
	if y1 >= s.H {
		y1 = s.H - 1
	}

	// Farthest occluder depth over the covered texels. The object is hidden
	// only if its nearest point is farther than every occluder in the
	// footprint.
	farthest := float32(0)
	for y := y0; y <= y1; y++ {
		for x := x0; x <= x1; x++ {
			d := s.Data[y*s.W+x]
			if d > farthest {
				farthest = d
			}
		}
	}

	return nearest > farthest+s.DepthEpsilon
}

type queryKey struct {
	pass   uint32
	object uint32
}

type queryEntry struct {
	visible        bool
	occludedFrames int
	lastTouched    uint64
}

// OcclusionQuerySet holds per (pass, object) query state for the CPU-async
// occlusion path. Entries are created lazily on first query and aged out when
// untouched. Hysteresis: an object is only hidden after hideDelay consecutive
// failed tests, which suppresses popping when results arrive frames late.
type OcclusionQuerySet struct {
	entries   map[queryKey]*queryEntry
	hideDelay int
	maxAge    uint64
}

func NewOcclusionQuerySet(hideDelay int, maxAge uint64) *OcclusionQuerySet {
	if hideDelay < 1 {
		hideDelay = 1
	}
	return &OcclusionQuerySet{
		entries:   make(map[queryKey]*queryEntry),
		hideDelay: hideDelay,
		maxAge:    maxAge,
	}
}

func (q *OcclusionQuerySet) Len() int { return len(q.entries) }

// Resolve feeds one occlusion test result and returns whether the object
// should be drawn this frame. Never blocks; the result being one-to-several
// frames stale is expected.
func (q *OcclusionQuerySet) Resolve(pass, object uint32, occluded bool, frame uint64) bool {
	key := queryKey{pass: pass, object: object}
	e, ok := q.entries[key]
	if !ok {
		// First sight: assume visible.
		e = &queryEntry{visible: true}
		q.entries[key] = e
	}
	e.lastTouched = frame

	if !occluded {
		e.visible = true
		e.occludedFrames = 0
		return true
	}

	e.occludedFrames++
	if e.occludedFrames >= q.hideDelay {
		e.visible = false
	}
	return e.visible
}

// Prune drops entries untouched for longer than maxAge frames.
func (q *OcclusionQuerySet) Prune(frame uint64) {
	if q.maxAge == 0 {
		return
	}
	for key, e := range q.entries {
		if frame > e.lastTouched && frame-e.lastTouched > q.maxAge {
			delete(q.entries, key)
		}
	}
}
