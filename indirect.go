package drawcull

import (
	"fmt"
)

// ResidencySet answers whether a material is resident in the active material
// table. Implemented by the material atlas; a fixed set is enough for tests.
type ResidencySet interface {
	MaterialResident(materialID uint32) bool
}

// MaterialSet is a plain map-backed ResidencySet.
type MaterialSet map[uint32]bool

func (m MaterialSet) MaterialResident(id uint32) bool { return m[id] }

// IndirectResult is the emitted native command stream for one pass.
type IndirectResult struct {
	Records []DrawIndexedIndirect
	// DrawCount is the emitted record count, capped at MaxIndirectDraws.
	DrawCount     uint32
	InstanceCount uint32
	// Truncated: more visible objects existed than the indirect buffer can
	// hold. Distinct from culling overflow (candidates vs culling buffer).
	Truncated bool
}

// BuildIndirectCommands consumes the sorted records (or, for unsorted
// passes, the raw visible list via IdentityOrder) and emits one indirect
// draw per entry up to maxDraws. BaseInstance carries the back-reference.
//
// A submesh ID outside the atlas table is a contract violation: the caller
// must refuse to submit rather than hand the GPU an undefined range.
func BuildIndirectCommands(cmds []RenderCommand, visible []uint32, order []SortKeyRecord,
	table []SubmeshRange, maxDraws uint32, stats *FrameStats) (IndirectResult, error) {

	res := IndirectResult{}
	if len(visible) == 0 {
		return res, nil
	}
	res.Records = make([]DrawIndexedIndirect, 0, min(len(visible), int(maxDraws)))

	emit := func(backref uint32) error {
		slot := visible[backref]
		cmd := &cmds[slot]
		if int(cmd.SubmeshID) >= len(table) {
			return fmt.Errorf("indirect build: command %d references submesh %d outside atlas table (%d entries)",
				slot, cmd.SubmeshID, len(table))
		}

		if res.DrawCount >= maxDraws {
			res.Truncated = true
			return nil
		}

		sub := table[cmd.SubmeshID]
		res.Records = append(res.Records, DrawIndexedIndirect{
			IndexCount:    sub.IndexCount,
			InstanceCount: cmd.InstanceCount,
			FirstIndex:    sub.FirstIndex,
			BaseVertex:    sub.BaseVertex,
			BaseInstance:  backref,
		})
		res.DrawCount++
		res.InstanceCount += cmd.InstanceCount
		return nil
	}

	if order != nil {
		for i := range order {
			if err := emit(order[i].Index); err != nil {
				return IndirectResult{}, err
			}
		}
	} else {
		for i := range visible {
			if err := emit(uint32(i)); err != nil {
				return IndirectResult{}, err
			}
		}
	}

	if stats != nil {
		stats.Add(StatDrawCount, res.DrawCount)
	}
	return res, nil
}

// ValidateResidency checks every surviving command against the material
// table. Any miss is fatal-before-submission: submitting a draw whose
// material is not resident risks undefined GPU behavior.
func ValidateResidency(cmds []RenderCommand, visible []uint32, materials ResidencySet) error {
	if materials == nil {
		return nil
	}
	for _, slot := range visible {
		if !materials.MaterialResident(cmds[slot].MaterialID) {
			return fmt.Errorf("residency violation: command %d references non-resident material %d",
				slot, cmds[slot].MaterialID)
		}
	}
	return nil
}

// ValidateAllResidency is the pre-encode variant for the GPU backend: the
// visible set is not known until after dispatch, so every stored command must
// pass before the frame is encoded.
func ValidateAllResidency(cmds []RenderCommand, materials ResidencySet) error {
	if materials == nil {
		return nil
	}
	for i := range cmds {
		if !materials.MaterialResident(cmds[i].MaterialID) {
			return fmt.Errorf("residency violation: command %d references non-resident material %d",
				i, cmds[i].MaterialID)
		}
	}
	return nil
}

// IndirectBytes packs the record stream for upload or golden comparison.
func IndirectBytes(records []DrawIndexedIndirect) []byte {
	buf := make([]byte, 0, len(records)*IndirectRecordSize)
	for i := range records {
		buf = append(buf, records[i].ToBytes()...)
	}
	return buf
}
