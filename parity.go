package drawcull

import (
	"fmt"

	"github.com/google/uuid"
)

// CommandSignature is a cheap identity sample of one emitted draw, taken at
// fixed sample points for golden-scene comparisons.
type CommandSignature struct {
	MeshID     uint32
	MaterialID uint32
	PassMask   uint32
}

// Snapshot is an immutable result summary from one backend's frame. Snapshots
// are compared, never live state.
type Snapshot struct {
	ID           string
	Backend      string
	VisibleCount uint32
	DrawCount    uint32
	Signatures   []CommandSignature
}

// snapshotSampleCount bounds the signature sample size.
const snapshotSampleCount = 16

// TakeSnapshot samples the emitted records at a fixed stride so two backends
// sample the same draw indices.
func TakeSnapshot(backend string, cmds []RenderCommand, visible []uint32,
	res IndirectResult) Snapshot {

	snap := Snapshot{
		ID:           uuid.NewString(),
		Backend:      backend,
		VisibleCount: uint32(len(visible)),
		DrawCount:    res.DrawCount,
	}

	n := len(res.Records)
	if n == 0 {
		return snap
	}
	stride := n / snapshotSampleCount
	if stride < 1 {
		stride = 1
	}
	for i := 0; i < n; i += stride {
		backref := res.Records[i].BaseInstance
		if int(backref) >= len(visible) {
			continue
		}
		cmd := &cmds[visible[backref]]
		snap.Signatures = append(snap.Signatures, CommandSignature{
			MeshID:     cmd.MeshID,
			MaterialID: cmd.MaterialID,
			PassMask:   cmd.PassMask,
		})
	}
	return snap
}

// ParityResult is the structured verdict: pass, or fail with a specific
// reason naming the field and index that diverged.
type ParityResult struct {
	Equivalent bool
	Reason     string
}

// CompareSnapshots decides equivalence of two independently produced
// snapshots. It is a pure function: the acceptance gate for golden-scene
// regression runs across backends and view configurations.
func CompareSnapshots(a, b Snapshot) ParityResult {
	if a.VisibleCount != b.VisibleCount {
		return ParityResult{Reason: fmt.Sprintf(
			"visible count mismatch: %s=%d, %s=%d", a.Backend, a.VisibleCount, b.Backend, b.VisibleCount)}
	}
	if a.DrawCount != b.DrawCount {
		return ParityResult{Reason: fmt.Sprintf(
			"draw count mismatch: %s=%d, %s=%d", a.Backend, a.DrawCount, b.Backend, b.DrawCount)}
	}
	if len(a.Signatures) != len(b.Signatures) {
		return ParityResult{Reason: fmt.Sprintf(
			"signature sample count mismatch: %s=%d, %s=%d", a.Backend, len(a.Signatures), b.Backend, len(b.Signatures))}
	}
	for i := range a.Signatures {
		sa, sb := a.Signatures[i], b.Signatures[i]
		if sa.MeshID != sb.MeshID {
			return ParityResult{Reason: fmt.Sprintf("signature %d: mesh mismatch %d != %d", i, sa.MeshID, sb.MeshID)}
		}
		if sa.MaterialID != sb.MaterialID {
			return ParityResult{Reason: fmt.Sprintf("signature %d: material mismatch %d != %d", i, sa.MaterialID, sb.MaterialID)}
		}
		if sa.PassMask != sb.PassMask {
			return ParityResult{Reason: fmt.Sprintf("signature %d: pass mask mismatch %#x != %#x", i, sa.PassMask, sb.PassMask)}
		}
	}
	return ParityResult{Equivalent: true}
}
