// Package bvh is a flat, index-addressed bounding volume hierarchy used to
// accelerate the culling stage. Nodes live in one arena slice; child links
// are plain int32 indices with NoChild as the sentinel. This is both the
// natural GPU representation (the same array uploads directly) and keeps
// ownership trivially acyclic.
package bvh

import (
	"encoding/binary"
	"math"

	"github.com/go-gl/mathgl/mgl32"
)

// NoChild marks a missing child/leaf reference.
const NoChild int32 = -1

// NodeSize is the GPU byte layout of one node.
const NodeSize = 64

// Matches WGSL BVHNode
// struct BVHNode {
//    aabb_min : vec4<f32>; (16)
//    aabb_max : vec4<f32>; (16)
//    left : i32; (4)
//    right : i32; (4)
//    leaf_first : i32; (4)
//    leaf_count : i32; (4)
//    padding : i32[2]; (8)
// }; -> 64 bytes

type Node struct {
	Min       mgl32.Vec3
	Max       mgl32.Vec3
	Left      int32
	Right     int32
	LeafFirst int32 // item index for leaves, NoChild for interior nodes
	LeafCount int32
}

func (n *Node) ToBytes() []byte {
	buf := make([]byte, NodeSize)

	binary.LittleEndian.PutUint32(buf[0:4], math.Float32bits(n.Min.X()))
	binary.LittleEndian.PutUint32(buf[4:8], math.Float32bits(n.Min.Y()))
	binary.LittleEndian.PutUint32(buf[8:12], math.Float32bits(n.Min.Z()))
	binary.LittleEndian.PutUint32(buf[12:16], 0)

	binary.LittleEndian.PutUint32(buf[16:20], math.Float32bits(n.Max.X()))
	binary.LittleEndian.PutUint32(buf[20:24], math.Float32bits(n.Max.Y()))
	binary.LittleEndian.PutUint32(buf[24:28], math.Float32bits(n.Max.Z()))
	binary.LittleEndian.PutUint32(buf[28:32], 0)

	binary.LittleEndian.PutUint32(buf[32:36], uint32(n.Left))
	binary.LittleEndian.PutUint32(buf[36:40], uint32(n.Right))
	binary.LittleEndian.PutUint32(buf[40:44], uint32(n.LeafFirst))
	binary.LittleEndian.PutUint32(buf[44:48], uint32(n.LeafCount))

	return buf
}

// Tree is a built hierarchy over item AABBs. Node 0 is the root.
type Tree struct {
	Nodes []Node
}

type buildItem struct {
	min      mgl32.Vec3
	max      mgl32.Vec3
	centroid mgl32.Vec3
	index    int32
}

// Build constructs a median-split tree over the given item AABBs.
// An empty input yields a single empty leaf so GPU traversal never sees a
// zero-length buffer.
func Build(aabbs [][2]mgl32.Vec3) *Tree {
	t := &Tree{}
	if len(aabbs) == 0 {
		t.Nodes = []Node{{Left: NoChild, Right: NoChild, LeafFirst: NoChild}}
		return t
	}

	items := make([]buildItem, len(aabbs))
	for i, bounds := range aabbs {
		items[i] = buildItem{
			min:      bounds[0],
			max:      bounds[1],
			centroid: bounds[0].Add(bounds[1]).Mul(0.5),
			index:    int32(i),
		}
	}

	t.recursiveBuild(items)
	return t
}

func (t *Tree) recursiveBuild(items []buildItem) int32 {
	idx := int32(len(t.Nodes))
	t.Nodes = append(t.Nodes, Node{Left: NoChild, Right: NoChild, LeafFirst: NoChild})

	minB := mgl32.Vec3{float32(math.Inf(1)), float32(math.Inf(1)), float32(math.Inf(1))}
	maxB := mgl32.Vec3{float32(math.Inf(-1)), float32(math.Inf(-1)), float32(math.Inf(-1))}
	for _, it := range items {
		minB = mgl32.Vec3{minf(minB.X(), it.min.X()), minf(minB.Y(), it.min.Y()), minf(minB.Z(), it.min.Z())}
		maxB = mgl32.Vec3{maxf(maxB.X(), it.max.X()), maxf(maxB.Y(), it.max.Y()), maxf(maxB.Z(), it.max.Z())}
	}
	t.Nodes[idx].Min = minB
	t.Nodes[idx].Max = maxB

	if len(items) == 1 {
		t.Nodes[idx].LeafFirst = items[0].index
		t.Nodes[idx].LeafCount = 1
		return idx
	}

	// Median split along the widest axis. mgl32.Vec3 is [3]float32, so
	// indexing by axis works.
	extent := maxB.Sub(minB)
	axis := 0
	if extent.Y() > extent.X() {
		axis = 1
	}
	if extent.Z() > extent[axis] {
		axis = 2
	}

	// Stable partition by centroid keeps the build deterministic.
	sortItemsByAxis(items, axis)

	mid := len(items) / 2
	left := t.recursiveBuild(items[:mid])
	right := t.recursiveBuild(items[mid:])
	t.Nodes[idx].Left = left
	t.Nodes[idx].Right = right
	return idx
}

func sortItemsByAxis(items []buildItem, axis int) {
	// Insertion sort: item counts per split are small and the stability
	// keeps equal centroids in input order.
	for i := 1; i < len(items); i++ {
		for j := i; j > 0 && items[j].centroid[axis] < items[j-1].centroid[axis]; j-- {
			items[j], items[j-1] = items[j-1], items[j]
		}
	}
}

// Refit updates node bounds from fresh item AABBs without re-splitting.
// Children always have larger indices than their parent, so one reverse
// sweep suffices.
func (t *Tree) Refit(aabbs [][2]mgl32.Vec3) {
	for i := len(t.Nodes) - 1; i >= 0; i-- {
		n := &t.Nodes[i]
		if n.LeafFirst != NoChild {
			if int(n.LeafFirst) < len(aabbs) {
				n.Min = aabbs[n.LeafFirst][0]
				n.Max = aabbs[n.LeafFirst][1]
			}
			continue
		}
		if n.Left == NoChild {
			continue
		}
		l, r := t.Nodes[n.Left], t.Nodes[n.Right]
		n.Min = mgl32.Vec3{minf(l.Min.X(), r.Min.X()), minf(l.Min.Y(), r.Min.Y()), minf(l.Min.Z(), r.Min.Z())}
		n.Max = mgl32.Vec3{maxf(l.Max.X(), r.Max.X()), maxf(l.Max.Y(), r.Max.Y()), maxf(l.Max.Z(), r.Max.Z())}
	}
}

// Cull walks the tree against the frustum planes and a max camera distance
// (0 = unlimited), invoking visit for every item whose subtree could not be
// rejected. Node tests are conservative: visit receives a superset of the
// exactly visible items, never misses one.
func (t *Tree) Cull(planes [6]mgl32.Vec4, camPos mgl32.Vec3, maxDistance float32, visit func(item int32)) {
	if len(t.Nodes) == 0 {
		return
	}
	maxDistSq := maxDistance * maxDistance

	stack := make([]int32, 0, 64)
	stack = append(stack, 0)
	for len(stack) > 0 {
		idx := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		n := &t.Nodes[idx]

		if n.LeafFirst == NoChild && n.Left == NoChild {
			// Empty tree sentinel.
			continue
		}
		if !aabbInFrustum(n.Min, n.Max, planes) {
			continue
		}
		if maxDistance > 0 && aabbDistSq(n.Min, n.Max, camPos) > maxDistSq {
			continue
		}

		if n.LeafFirst != NoChild {
			visit(n.LeafFirst)
			continue
		}
		stack = append(stack, n.Left, n.Right)
	}
}

// Bytes linearizes the node array in the 64-byte GPU layout.
func (t *Tree) Bytes() []byte {
	out := make([]byte, 0, len(t.Nodes)*NodeSize)
	for i := range t.Nodes {
		out = append(out, t.Nodes[i].ToBytes()...)
	}
	return out
}

func aabbInFrustum(minB, maxB mgl32.Vec3, planes [6]mgl32.Vec4) bool {
	for i := 0; i < 6; i++ {
		plane := planes[i]
		var p mgl32.Vec3
		if plane[0] > 0 {
			p[0] = maxB[0]
		} else {
			p[0] = minB[0]
		}
		if plane[1] > 0 {
			p[1] = maxB[1]
		} else {
			p[1] = minB[1]
		}
		if plane[2] > 0 {
			p[2] = maxB[2]
		} else {
			p[2] = minB[2]
		}
		if plane[0]*p[0]+plane[1]*p[1]+plane[2]*p[2]+plane[3] < 0 {
			return false
		}
	}
	return true
}

// aabbDistSq is the squared distance from p to the closest point of the box.
func aabbDistSq(minB, maxB, p mgl32.Vec3) float32 {
	var d float32
	for i := 0; i < 3; i++ {
		v := p[i]
		if v < minB[i] {
			d += (minB[i] - v) * (minB[i] - v)
		} else if v > maxB[i] {
			d += (v - maxB[i]) * (v - maxB[i])
		}
	}
	return d
}

func minf(a, b float32) float32 {
	if a < b {
		return a
	}
	return b
}

func maxf(a, b float32) float32 {
	if a > b {
		return a
	}
	return b
}
