package drawcull

import (
	"testing"

	"github.com/go-gl/mathgl/mgl32"
)

func testViewProj() mgl32.Mat4 {
	// Camera at origin looking down -Z. 90 deg FOV, aspect 1, near 1, far 100.
	proj := mgl32.Perspective(mgl32.DegToRad(90), 1.0, 1.0, 100.0)
	view := mgl32.LookAtV(
		mgl32.Vec3{0, 0, 0},
		mgl32.Vec3{0, 0, -1},
		mgl32.Vec3{0, 1, 0},
	)
	return proj.Mul4(view)
}

func TestFrustumSpheres(t *testing.T) {
	f := ExtractFrustum(testViewProj())

	tests := []struct {
		name    string
		center  mgl32.Vec3
		radius  float32
		visible bool
	}{
		{"center of view", mgl32.Vec3{0, 0, -10}, 5, true},
		{"behind camera", mgl32.Vec3{0, 0, 10}, 5, false},
		{"beyond far plane", mgl32.Vec3{0, 0, -200}, 5, false},
		{"straddling far plane", mgl32.Vec3{0, 0, -110}, 12, true},
		{"straddling near plane", mgl32.Vec3{0, 0, 0}, 2, true},
		{"far left", mgl32.Vec3{-50, 0, -10}, 5, false},
		{"touching left plane", mgl32.Vec3{-12, 0, -10}, 5, true},
		{"far above", mgl32.Vec3{0, 50, -10}, 5, false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := f.ContainsSphere(tc.center, tc.radius)
			if got != tc.visible {
				t.Errorf("ContainsSphere(%v, %v) = %v, want %v", tc.center, tc.radius, got, tc.visible)
			}
		})
	}
}

func TestFrustumPlanesNormalized(t *testing.T) {
	f := ExtractFrustum(testViewProj())
	for i, p := range f {
		l := p.Normal.Len()
		if l < 0.999 || l > 1.001 {
			t.Errorf("plane %d normal length %v, want 1", i, l)
		}
	}
}

func TestFrustumAABB(t *testing.T) {
	planes := ExtractFrustum(testViewProj()).Planes()

	tests := []struct {
		name     string
		min, max mgl32.Vec3
		visible  bool
	}{
		{"inside", mgl32.Vec3{-1, -1, -10}, mgl32.Vec3{1, 1, -5}, true},
		{"outside left", mgl32.Vec3{-20, -1, -10}, mgl32.Vec3{-15, 1, -5}, false},
		{"behind", mgl32.Vec3{-1, -1, 2}, mgl32.Vec3{1, 1, 5}, false},
		{"beyond far", mgl32.Vec3{-1, -1, -200}, mgl32.Vec3{1, 1, -150}, false},
		{"straddling left plane", mgl32.Vec3{-15, -1, -10}, mgl32.Vec3{-5, 1, -5}, true},
		{"enclosing the camera", mgl32.Vec3{-50, -50, -50}, mgl32.Vec3{50, 50, 50}, true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := AABBInFrustum([2]mgl32.Vec3{tc.min, tc.max}, planes)
			if got != tc.visible {
				t.Errorf("AABBInFrustum(%v, %v) = %v, want %v", tc.min, tc.max, got, tc.visible)
			}
		})
	}
}
