package gpu

import (
	"encoding/binary"
	"sync"

	"github.com/cogentcore/webgpu/wgpu"

	"github.com/gpukit/drawcull"
)

// Readback states, same machine as the Hi-Z pyramid readback:
// idle -> copy queued -> mapping -> mapped -> idle.
const (
	readbackIdle = iota
	readbackCopy
	readbackMapping
	readbackMapped
)

// ReadbackFrame is one frame's results pulled off the device. The data is a
// few frames stale by construction; consumers that need exact counts gate on
// a profile that allows readback at all.
type ReadbackFrame struct {
	State    drawcull.VisibleState
	Stats    drawcull.FrameStats
	Visible  []uint32
	Indirect []drawcull.DrawIndexedIndirect

	// Truncated mirrors the counter the indirect stage sets at the draw cap.
	Truncated bool

	// Valid is false until the first roundtrip completes.
	Valid bool
}

// Readback drains counters, stats, the visible list and the indirect records
// through a single MapRead buffer without ever blocking the frame loop.
type Readback struct {
	device *wgpu.Device
	buf    *wgpu.Buffer

	stateMu sync.Mutex
	state   int

	visibleOff  uint64
	indirectOff uint64
	visibleCap  int
	maxDraws    int

	last ReadbackFrame
}

func NewReadback(device *wgpu.Device) *Readback {
	return &Readback{device: device}
}

func (r *Readback) ensure(visibleCap, maxDraws int) {
	countersBytes := uint64(counterSlots * 4)
	statsBytes := uint64(drawcull.StatCount * 4)
	r.visibleOff = countersBytes + statsBytes
	r.indirectOff = r.visibleOff + uint64(visibleCap*4)
	size := r.indirectOff + uint64(maxDraws*drawcull.IndirectRecordSize)

	if r.buf != nil && r.buf.GetSize() >= size {
		r.visibleCap = visibleCap
		r.maxDraws = maxDraws
		return
	}
	if r.buf != nil {
		r.buf.Release()
	}
	var err error
	r.buf, err = r.device.CreateBuffer(&wgpu.BufferDescriptor{
		Label: "Culling Readback",
		Size:  size,
		Usage: wgpu.BufferUsageCopyDst | wgpu.BufferUsageMapRead,
	})
	if err != nil {
		panic(err)
	}
	r.visibleCap = visibleCap
	r.maxDraws = maxDraws

	r.stateMu.Lock()
	r.state = readbackIdle
	r.stateMu.Unlock()
}

// Encode queues the copies for this frame's results. Skipped while an older
// roundtrip is still in flight.
func (r *Readback) Encode(encoder *wgpu.CommandEncoder, m *BufferManager) {
	r.ensure(int(m.visibleCap), int(m.maxDraws))

	r.stateMu.Lock()
	if r.state != readbackIdle {
		r.stateMu.Unlock()
		return
	}
	r.state = readbackCopy
	r.stateMu.Unlock()

	encoder.CopyBufferToBuffer(m.CountersBuf, 0, r.buf, 0, uint64(counterSlots*4))
	encoder.CopyBufferToBuffer(m.StatsBuf, 0, r.buf, uint64(counterSlots*4), uint64(drawcull.StatCount*4))
	encoder.CopyBufferToBuffer(m.VisibleBuf, 0, r.buf, r.visibleOff, uint64(r.visibleCap*4))
	encoder.CopyBufferToBuffer(m.IndirectBuf, 0, r.buf, r.indirectOff, uint64(r.maxDraws*drawcull.IndirectRecordSize))
}

// Collect advances the state machine and returns the freshest completed
// frame. The same frame is returned again until a newer roundtrip lands.
func (r *Readback) Collect() ReadbackFrame {
	if r.buf == nil {
		return r.last
	}

	r.stateMu.Lock()
	if r.state == readbackCopy {
		r.state = readbackMapping
		r.buf.MapAsync(wgpu.MapModeRead, 0, r.buf.GetSize(), func(status wgpu.BufferMapAsyncStatus) {
			r.stateMu.Lock()
			defer r.stateMu.Unlock()
			if status == wgpu.BufferMapAsyncStatusSuccess {
				r.state = readbackMapped
			} else {
				r.state = readbackIdle
			}
		})
	}

	if r.state == readbackMapped {
		data := r.buf.GetMappedRange(0, uint(r.buf.GetSize()))
		r.last = r.unpack(data)
		r.buf.Unmap()
		r.state = readbackIdle
	}
	r.stateMu.Unlock()

	return r.last
}

func (r *Readback) unpack(data []byte) ReadbackFrame {
	frame := ReadbackFrame{Valid: true}

	counters := make([]uint32, counterSlots)
	for i := range counters {
		counters[i] = binary.LittleEndian.Uint32(data[i*4:])
	}
	frame.State = drawcull.VisibleState{
		DrawCount:     counters[counterDraws],
		InstanceCount: counters[counterInstances],
		Overflow:      counters[counterOverflow],
	}
	frame.Truncated = counters[counterTruncated] != 0

	statsOff := counterSlots * 4
	for i := 0; i < int(drawcull.StatCount); i++ {
		frame.Stats[i] = binary.LittleEndian.Uint32(data[statsOff+i*4:])
	}

	// The visible counter keeps counting past capacity; the stored list is
	// clamped.
	visibleCount := int(counters[counterVisible])
	if visibleCount > r.visibleCap {
		visibleCount = r.visibleCap
	}
	frame.Visible = make([]uint32, visibleCount)
	for i := 0; i < visibleCount; i++ {
		frame.Visible[i] = binary.LittleEndian.Uint32(data[int(r.visibleOff)+i*4:])
	}

	drawCount := int(counters[counterDraws])
	if drawCount > r.maxDraws {
		drawCount = r.maxDraws
	}
	frame.Indirect = make([]drawcull.DrawIndexedIndirect, drawCount)
	for i := 0; i < drawCount; i++ {
		off := int(r.indirectOff) + i*drawcull.IndirectRecordSize
		frame.Indirect[i] = drawcull.DrawIndexedIndirect{
			IndexCount:    binary.LittleEndian.Uint32(data[off:]),
			InstanceCount: binary.LittleEndian.Uint32(data[off+4:]),
			FirstIndex:    binary.LittleEndian.Uint32(data[off+8:]),
			BaseVertex:    int32(binary.LittleEndian.Uint32(data[off+12:])),
			BaseInstance:  binary.LittleEndian.Uint32(data[off+16:]),
		}
	}
	return frame
}
