package drawcull

import (
	"encoding/binary"
	"math"

	"github.com/go-gl/mathgl/mgl32"
)

// Buffer record sizes. These are cross-stage, cross-backend contracts and
// must match the WGSL struct layouts in gpu/shaders.
const (
	RenderCommandSize  = 192 // 48 x 4 bytes
	HotCommandSize     = 64  // 16 x 4 bytes
	ColdCommandSize    = 128 // 32 x 4 bytes
	SortKeyRecordSize  = 16  // 4 x 4 bytes
	IndirectRecordSize = 20  // 5 x 4 bytes
	CounterBlockSize   = 12  // draw count, instance count, overflow marker
)

type CommandFlags uint32

const (
	FlagTransparent CommandFlags = 1 << iota
	FlagCastShadow
	FlagSkinned
	FlagDynamic
	FlagDoubleSided
	FlagHidden
)

// PassMaskAll marks a command as drawable in every render pass.
const PassMaskAll uint32 = 0xFFFFFFFF

type BoundingSphere struct {
	Center mgl32.Vec3
	Radius float32
}

// RenderCommand is one drawable instance. The full record is what the scene
// owns; culling and sorting only ever touch the hot subset (see Hot) so that
// the wide matrices stay out of the bandwidth-critical stages. Hot and cold
// halves are correlated by slot index and reunited at indirect-build time.
type RenderCommand struct {
	World     mgl32.Mat4
	PrevWorld mgl32.Mat4 // previous frame, for motion vectors
	Sphere    BoundingSphere

	MeshID        uint32
	SubmeshID     uint32
	MaterialID    uint32
	InstanceCount uint32
	PassMask      uint32
	ProgramID     uint32

	RenderDistance float32
	LayerMask      uint32
	LODLevel       uint32
	Flags          CommandFlags
}

// Matches WGSL HotCommand
// struct HotCommand {
//    sphere : vec4<f32>;        (16)
//    mesh/submesh/material/instances : u32 x4; (16)
//    pass/program : u32 x2;     (8)
//    distance : f32;            (4)
//    layer/lod/flags : u32 x3;  (12)
//    reserved : u32 x2;         (8)
// }; -> 64 bytes

func putF32(buf []byte, off int, v float32) {
	binary.LittleEndian.PutUint32(buf[off:off+4], math.Float32bits(v))
}

func putU32(buf []byte, off int, v uint32) {
	binary.LittleEndian.PutUint32(buf[off:off+4], v)
}

// HotBytes packs the 64-byte hot record.
func (c *RenderCommand) HotBytes() []byte {
	buf := make([]byte, HotCommandSize)
	putF32(buf, 0, c.Sphere.Center.X())
	putF32(buf, 4, c.Sphere.Center.Y())
	putF32(buf, 8, c.Sphere.Center.Z())
	putF32(buf, 12, c.Sphere.Radius)

	putU32(buf, 16, c.MeshID)
	putU32(buf, 20, c.SubmeshID)
	putU32(buf, 24, c.MaterialID)
	putU32(buf, 28, c.InstanceCount)
	putU32(buf, 32, c.PassMask)
	putU32(buf, 36, c.ProgramID)

	putF32(buf, 40, c.RenderDistance)
	putU32(buf, 44, c.LayerMask)
	putU32(buf, 48, c.LODLevel)
	putU32(buf, 52, uint32(c.Flags))
	// 56..64 reserved
	return buf
}

// ColdBytes packs the 128-byte cold record: world + previous world matrix.
func (c *RenderCommand) ColdBytes() []byte {
	buf := make([]byte, ColdCommandSize)
	for i := 0; i < 16; i++ {
		putF32(buf, i*4, c.World[i])
	}
	for i := 0; i < 16; i++ {
		putF32(buf, 64+i*4, c.PrevWorld[i])
	}
	return buf
}

// Bytes packs the full 192-byte record (cold followed by hot).
func (c *RenderCommand) Bytes() []byte {
	buf := make([]byte, 0, RenderCommandSize)
	buf = append(buf, c.ColdBytes()...)
	buf = append(buf, c.HotBytes()...)
	return buf
}

// SortKeyRecord is what the sort stage actually reorders: a packed key plus
// enough identity to rebuild batches, and the back-reference into the
// compacted visible list. 16 bytes.
type SortKeyRecord struct {
	Key        uint32
	MaterialID uint32
	MeshID     uint32
	Index      uint32 // back-reference into the compacted command list
}

func (r *SortKeyRecord) ToBytes() []byte {
	buf := make([]byte, SortKeyRecordSize)
	putU32(buf, 0, r.Key)
	putU32(buf, 4, r.MaterialID)
	putU32(buf, 8, r.MeshID)
	putU32(buf, 12, r.Index)
	return buf
}

// DrawIndexedIndirect is the native indirect-draw record (20 bytes).
// BaseInstance is repurposed to carry the back-reference index so the vertex
// stage can fetch per-instance data without a second indirection buffer.
type DrawIndexedIndirect struct {
	IndexCount    uint32
	InstanceCount uint32
	FirstIndex    uint32
	BaseVertex    int32
	BaseInstance  uint32
}

func (d *DrawIndexedIndirect) ToBytes() []byte {
	buf := make([]byte, IndirectRecordSize)
	putU32(buf, 0, d.IndexCount)
	putU32(buf, 4, d.InstanceCount)
	putU32(buf, 8, d.FirstIndex)
	putU32(buf, 12, uint32(d.BaseVertex))
	putU32(buf, 16, d.BaseInstance)
	return buf
}

// SubmeshRange maps a submesh ID to its slice of the shared geometry atlas.
type SubmeshRange struct {
	IndexCount uint32
	FirstIndex uint32
	BaseVertex int32
}

// VisibleState is the per-pass atomically updated counter triple.
// Overflow is monotonic within a frame: set once, cleared only by Reset.
type VisibleState struct {
	DrawCount     uint32
	InstanceCount uint32
	Overflow      uint32
}
