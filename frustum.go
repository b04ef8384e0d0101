package drawcull

import (
	"math"

	"github.com/go-gl/mathgl/mgl32"
)

// Plane is Ax + By + Cz + D = 0 with the normal pointing INSIDE the frustum.
type Plane struct {
	Normal mgl32.Vec3
	Dist   float32
}

// Frustum is the 6 normalized planes in order:
// Left, Right, Bottom, Top, Near, Far.
type Frustum [6]Plane

// ExtractFrustum extracts the 6 planes from a view-projection matrix
// (Gribb/Hartmann row combinations, OpenGL-style -1..1 depth).
func ExtractFrustum(vp mgl32.Mat4) Frustum {
	rows := [6]mgl32.Vec4{
		{vp.At(3, 0) + vp.At(0, 0), vp.At(3, 1) + vp.At(0, 1), vp.At(3, 2) + vp.At(0, 2), vp.At(3, 3) + vp.At(0, 3)}, // left
		{vp.At(3, 0) - vp.At(0, 0), vp.At(3, 1) - vp.At(0, 1), vp.At(3, 2) - vp.At(0, 2), vp.At(3, 3) - vp.At(0, 3)}, // right
		{vp.At(3, 0) + vp.At(1, 0), vp.At(3, 1) + vp.At(1, 1), vp.At(3, 2) + vp.At(1, 2), vp.At(3, 3) + vp.At(1, 3)}, // bottom
		{vp.At(3, 0) - vp.At(1, 0), vp.At(3, 1) - vp.At(1, 1), vp.At(3, 2) - vp.At(1, 2), vp.At(3, 3) - vp.At(1, 3)}, // top
		{vp.At(3, 0) + vp.At(2, 0), vp.At(3, 1) + vp.At(2, 1), vp.At(3, 2) + vp.At(2, 2), vp.At(3, 3) + vp.At(2, 3)}, // near
		{vp.At(3, 0) - vp.At(2, 0), vp.At(3, 1) - vp.At(2, 1), vp.At(3, 2) - vp.At(2, 2), vp.At(3, 3) - vp.At(2, 3)}, // far
	}

	var f Frustum
	for i, r := range rows {
		n := mgl32.Vec3{r[0], r[1], r[2]}
		length := float32(math.Sqrt(float64(n.Dot(n))))
		if length > 0 {
			inv := 1.0 / length
			n = n.Mul(inv)
			f[i] = Plane{Normal: n, Dist: r[3] * inv}
		}
	}
	return f
}

// ContainsSphere is the conservative sphere test: a sphere is visible unless
// it is strictly outside some plane by more than its radius.
func (f Frustum) ContainsSphere(center mgl32.Vec3, radius float32) bool {
	for i := 0; i < 6; i++ {
		if f[i].Normal.Dot(center)+f[i].Dist < -radius {
			return false
		}
	}
	return true
}

// Planes returns the packed vec4 form (normal.xyz, dist) used by the BVH
// traversal and the GPU uniform upload.
func (f Frustum) Planes() [6]mgl32.Vec4 {
	var out [6]mgl32.Vec4
	for i, p := range f {
		out[i] = mgl32.Vec4{p.Normal.X(), p.Normal.Y(), p.Normal.Z(), p.Dist}
	}
	return out
}

// AABBInFrustum tests an axis-aligned box against the planes using the
// p-vertex (the corner furthest along each plane normal). If even that corner
// is behind a plane, the whole box is out.
func AABBInFrustum(aabb [2]mgl32.Vec3, planes [6]mgl32.Vec4) bool {
	for i := 0; i < 6; i++ {
		plane := planes[i]
		var p mgl32.Vec3
		if plane[0] > 0 {
			p[0] = aabb[1][0]
		} else {
			p[0] = aabb[0][0]
		}
		if plane[1] > 0 {
			p[1] = aabb[1][1]
		} else {
			p[1] = aabb[0][1]
		}
		if plane[2] > 0 {
			p[2] = aabb[1][2]
		} else {
			p[2] = aabb[0][2]
		}

		dist := plane[0]*p[0] + plane[1]*p[1] + plane[2]*p[2] + plane[3]
		if dist < 0 {
			return false
		}
	}
	return true
}
