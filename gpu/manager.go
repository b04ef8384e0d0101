package gpu

import (
	"encoding/binary"
	"math"

	"github.com/cogentcore/webgpu/wgpu"
	"github.com/go-gl/mathgl/mgl32"

	"github.com/gpukit/drawcull"
)

const (
	// HeadroomCommands keeps room for scene growth so steady additions do not
	// recreate the command buffers every frame.
	HeadroomCommands = 256 * 1024
	HeadroomTables   = 16 * 1024

	// counterSlots is the length of the counter block: visible, instances,
	// overflow, draws, truncated, three reserved.
	counterSlots = 8

	counterVisible   = 0
	counterInstances = 1
	counterOverflow  = 2
	counterDraws     = 3
	counterTruncated = 4

	// paramsSize is the byte size of the Params uniform shared by the reset,
	// cull, sort-key and indirect stages.
	paramsSize = 224

	submeshRecordSize = 16

	radixPasses = 8
)

// Sort mode bits packed into Params.masks.z.
const (
	sortModeDomainState = 1 << 0
	sortModeFarToNear   = 1 << 1
	sortModeEnabled     = 1 << 2
)

// FrameParams is the CPU-side view of the per-frame uniform.
type FrameParams struct {
	ViewProj        mgl32.Mat4
	Planes          [6]mgl32.Vec4
	CameraPos       mgl32.Vec3
	InputCount      uint32
	VisibleCapacity uint32
	MaxDraws        uint32
	PassMask        uint32
	DisabledFlags   uint32
	CameraLayerMask uint32
	SortMode        uint32
	OcclusionMode   uint32
	MaxDistanceSq   float32
	HiZEpsilon      float32
}

// BufferManager owns every device buffer of the culling chain and the
// pipelines that run over them. Buffers grow, they never shrink.
type BufferManager struct {
	Device *wgpu.Device

	ParamsBuf    *wgpu.Buffer
	HotBuf       *wgpu.Buffer
	VisibleBuf   *wgpu.Buffer
	CountersBuf  *wgpu.Buffer
	StatsBuf     *wgpu.Buffer
	KeysBufA     *wgpu.Buffer
	KeysBufB     *wgpu.Buffer
	HistogramBuf *wgpu.Buffer
	SubmeshBuf   *wgpu.Buffer
	IndirectBuf  *wgpu.Buffer

	// One tiny uniform per radix pass; buffers cannot change between the
	// passes of a single encoder, so each pass gets its own.
	RadixPassBufs [radixPasses]*wgpu.Buffer

	ResetPipeline    *wgpu.ComputePipeline
	CullPipeline     *wgpu.ComputePipeline
	SortKeyPipeline  *wgpu.ComputePipeline
	ClearPipeline    *wgpu.ComputePipeline
	HistPipeline     *wgpu.ComputePipeline
	ScanPipeline     *wgpu.ComputePipeline
	ScatterPipeline  *wgpu.ComputePipeline
	IndirectPipeline *wgpu.ComputePipeline

	radixBGL    *wgpu.BindGroupLayout
	hizCullBGL  *wgpu.BindGroupLayout
	dummyHiZ    *wgpu.Texture
	dummyHiZBG  *wgpu.BindGroup
	hizCullBG   *wgpu.BindGroup
	hizView     *wgpu.TextureView
	ResetBG     *wgpu.BindGroup
	CullBG      *wgpu.BindGroup
	SortKeyBG   *wgpu.BindGroup
	IndirectBG  *wgpu.BindGroup
	RadixBGs    [radixPasses]*wgpu.BindGroup
	bindsStale  bool
	inputCount  uint32
	visibleCap  uint32
	maxDraws    uint32
	submeshRows uint32
}

func NewBufferManager(device *wgpu.Device) *BufferManager {
	m := &BufferManager{Device: device, bindsStale: true}
	m.createPipelines()
	m.createStaticBuffers()
	return m
}

func (m *BufferManager) ensureBuffer(name string, buf **wgpu.Buffer, data []byte, usage wgpu.BufferUsage, headroom int) bool {
	neededSize := uint64(len(data) + headroom)
	if neededSize%4 != 0 {
		neededSize += 4 - (neededSize % 4)
	}

	current := *buf
	if current == nil || current.GetSize() < neededSize {
		if current != nil {
			current.Release()
		}

		newBuf, err := m.Device.CreateBuffer(&wgpu.BufferDescriptor{
			Label: name,
			Size:  neededSize,
			Usage: usage | wgpu.BufferUsageCopyDst,
		})
		if err != nil {
			panic(err)
		}
		*buf = newBuf

		if len(data) > 0 {
			m.Device.GetQueue().WriteBuffer(*buf, 0, data)
		}
		m.bindsStale = true
		return true
	}
	if len(data) > 0 {
		m.Device.GetQueue().WriteBuffer(*buf, 0, data)
	}
	return false
}

func (m *BufferManager) createStaticBuffers() {
	var err error
	m.ParamsBuf, err = m.Device.CreateBuffer(&wgpu.BufferDescriptor{
		Label: "CullParamsUB",
		Size:  paramsSize,
		Usage: wgpu.BufferUsageUniform | wgpu.BufferUsageCopyDst,
	})
	if err != nil {
		panic(err)
	}

	m.CountersBuf, err = m.Device.CreateBuffer(&wgpu.BufferDescriptor{
		Label: "CountersBuf",
		Size:  counterSlots * 4,
		Usage: wgpu.BufferUsageStorage | wgpu.BufferUsageCopyDst | wgpu.BufferUsageCopySrc,
	})
	if err != nil {
		panic(err)
	}

	m.StatsBuf, err = m.Device.CreateBuffer(&wgpu.BufferDescriptor{
		Label: "StatsBuf",
		Size:  uint64(drawcull.StatCount) * 4,
		Usage: wgpu.BufferUsageStorage | wgpu.BufferUsageCopyDst | wgpu.BufferUsageCopySrc,
	})
	if err != nil {
		panic(err)
	}

	m.HistogramBuf, err = m.Device.CreateBuffer(&wgpu.BufferDescriptor{
		Label: "RadixHistogramBuf",
		Size:  256 * 4,
		Usage: wgpu.BufferUsageStorage | wgpu.BufferUsageCopyDst,
	})
	if err != nil {
		panic(err)
	}

	for p := 0; p < radixPasses; p++ {
		buf := make([]byte, 16)
		binary.LittleEndian.PutUint32(buf[0:4], uint32(p))
		m.RadixPassBufs[p], err = m.Device.CreateBuffer(&wgpu.BufferDescriptor{
			Label: "RadixPassUB",
			Size:  16,
			Usage: wgpu.BufferUsageUniform | wgpu.BufferUsageCopyDst,
		})
		if err != nil {
			panic(err)
		}
		m.Device.GetQueue().WriteBuffer(m.RadixPassBufs[p], 0, buf)
	}
}

// UploadCommands pushes the packed hot records and sizes every per-survivor
// buffer for the given capacities. A nil hot slice keeps the device copy and
// only resizes; growth recreates buffers and invalidates the cached bind
// groups.
func (m *BufferManager) UploadCommands(hot []byte, inputCount, visibleCap, maxDraws int) {
	m.inputCount = uint32(inputCount)
	m.visibleCap = uint32(visibleCap)
	m.maxDraws = uint32(maxDraws)

	hotBytes := inputCount * drawcull.HotCommandSize
	if hotBytes < drawcull.HotCommandSize {
		hotBytes = drawcull.HotCommandSize
	}
	m.ensureBuffer("HotCommandsBuf", &m.HotBuf, hot, wgpu.BufferUsageStorage, HeadroomCommands+hotBytes-len(hot))

	m.ensureBuffer("VisibleBuf", &m.VisibleBuf, nil, wgpu.BufferUsageStorage, visibleCap*4)

	keyBytes := visibleCap * drawcull.SortKeyRecordSize
	m.ensureBuffer("SortKeysBufA", &m.KeysBufA, nil, wgpu.BufferUsageStorage, keyBytes)
	m.ensureBuffer("SortKeysBufB", &m.KeysBufB, nil, wgpu.BufferUsageStorage, keyBytes)

	indirectBytes := maxDraws * drawcull.IndirectRecordSize
	m.ensureBuffer("IndirectBuf", &m.IndirectBuf,
		nil, wgpu.BufferUsageStorage|wgpu.BufferUsageIndirect|wgpu.BufferUsageCopySrc, indirectBytes)
}

// UploadSubmeshes packs the submesh table, 16 bytes per record to match the
// WGSL struct stride.
func (m *BufferManager) UploadSubmeshes(table []drawcull.SubmeshRange) {
	m.submeshRows = uint32(len(table))
	data := make([]byte, len(table)*submeshRecordSize)
	for i, s := range table {
		off := i * submeshRecordSize
		binary.LittleEndian.PutUint32(data[off:], s.IndexCount)
		binary.LittleEndian.PutUint32(data[off+4:], s.FirstIndex)
		binary.LittleEndian.PutUint32(data[off+8:], uint32(s.BaseVertex))
	}
	if len(data) == 0 {
		data = make([]byte, submeshRecordSize)
	}
	m.ensureBuffer("SubmeshTableBuf", &m.SubmeshBuf, data, wgpu.BufferUsageStorage, HeadroomTables)
}

// WriteParams uploads the per-frame uniform.
func (m *BufferManager) WriteParams(p FrameParams) {
	buf := make([]byte, paramsSize)

	for i := 0; i < 16; i++ {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(p.ViewProj[i]))
	}
	for i, plane := range p.Planes {
		off := 64 + i*16
		binary.LittleEndian.PutUint32(buf[off:], math.Float32bits(plane.X()))
		binary.LittleEndian.PutUint32(buf[off+4:], math.Float32bits(plane.Y()))
		binary.LittleEndian.PutUint32(buf[off+8:], math.Float32bits(plane.Z()))
		binary.LittleEndian.PutUint32(buf[off+12:], math.Float32bits(plane.W()))
	}
	binary.LittleEndian.PutUint32(buf[160:], math.Float32bits(p.CameraPos.X()))
	binary.LittleEndian.PutUint32(buf[164:], math.Float32bits(p.CameraPos.Y()))
	binary.LittleEndian.PutUint32(buf[168:], math.Float32bits(p.CameraPos.Z()))

	binary.LittleEndian.PutUint32(buf[176:], p.InputCount)
	binary.LittleEndian.PutUint32(buf[180:], p.VisibleCapacity)
	binary.LittleEndian.PutUint32(buf[184:], p.MaxDraws)
	binary.LittleEndian.PutUint32(buf[188:], p.PassMask)

	binary.LittleEndian.PutUint32(buf[192:], p.DisabledFlags)
	binary.LittleEndian.PutUint32(buf[196:], p.CameraLayerMask)
	binary.LittleEndian.PutUint32(buf[200:], p.SortMode)
	binary.LittleEndian.PutUint32(buf[204:], p.OcclusionMode)

	binary.LittleEndian.PutUint32(buf[208:], math.Float32bits(p.MaxDistanceSq))
	binary.LittleEndian.PutUint32(buf[212:], math.Float32bits(p.HiZEpsilon))

	m.Device.GetQueue().WriteBuffer(m.ParamsBuf, 0, buf)
}

// writeRadixCapacity refreshes the capacity clamp in every pass uniform.
func (m *BufferManager) writeRadixCapacity() {
	for p := 0; p < radixPasses; p++ {
		buf := make([]byte, 16)
		binary.LittleEndian.PutUint32(buf[0:4], uint32(p))
		binary.LittleEndian.PutUint32(buf[4:8], m.visibleCap)
		m.Device.GetQueue().WriteBuffer(m.RadixPassBufs[p], 0, buf)
	}
}
