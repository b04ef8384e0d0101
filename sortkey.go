package drawcull

import (
	"math"

	"github.com/go-gl/mathgl/mgl32"
)

// SortKeyParams selects the sort domain for the current pass.
type SortKeyParams struct {
	Domain    SortDomain
	Direction SortDirection
	CameraPos mgl32.Vec3
}

// EncodeDistance maps a non-negative distance to a key whose ascending
// numeric order matches the requested traversal order. Non-negative float
// bits are already monotonic; the far-to-near case complements them so one
// ascending sort routine serves both directions.
func EncodeDistance(d float32, dir SortDirection) uint32 {
	if d < 0 {
		d = 0
	}
	bits := math.Float32bits(d)
	if dir == SortFarToNear {
		bits = ^bits
	}
	return bits
}

// packStateKey builds the material-state key: pipeline/state bits are the
// coarse batching discriminator, material below, mesh in the low bits for
// locality within a material.
func packStateKey(cmd *RenderCommand) uint32 {
	return (cmd.ProgramID&0xFF)<<24 | (cmd.MaterialID&0xFFF)<<12 | (cmd.MeshID & 0xFFF)
}

// BuildSortKeys derives one fixed-width key record per surviving command.
// The records, not the commands, are what the sort stage moves around.
// visible holds slot indices into cmds; Index in the output is the position
// in the compacted visible list (the back-reference the indirect build
// resolves).
func BuildSortKeys(cmds []RenderCommand, visible []uint32, p SortKeyParams) []SortKeyRecord {
	recs := make([]SortKeyRecord, len(visible))
	for i, slot := range visible {
		cmd := &cmds[slot]

		var key uint32
		switch p.Domain {
		case SortDomainDistance:
			d := cmd.Sphere.Center.Sub(p.CameraPos)
			dist := float32(math.Sqrt(float64(d.Dot(d))))
			key = EncodeDistance(dist, p.Direction)
		case SortDomainMaterialState:
			key = packStateKey(cmd)
		}

		recs[i] = SortKeyRecord{
			Key:        key,
			MaterialID: cmd.MaterialID,
			MeshID:     cmd.MeshID,
			Index:      uint32(i),
		}
	}
	return recs
}
