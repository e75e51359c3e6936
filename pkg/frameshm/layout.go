package frameshm

import (
	"os"
	"strings"
	"unsafe"
)

const (
	headerMagicString = "FSH1"
	headerVersion     = 1

	// DefaultRingDepth is the ring depth used when CreateOptions.RingDepth
	// is left at zero.
	DefaultRingDepth = 3

	// MinRingDepth is the smallest ring depth Create accepts. N=1 is
	// invalid: publish would always target the one slot a reader might
	// currently hold under its read lock, so the writer could never make
	// progress without first kicking every reader off.
	MinRingDepth = 2
)

var headerMagic = [4]byte{'F', 'S', 'H', '1'}

// header is the fixed-size segment header. Its fields are laid out
// explicitly, in an order chosen so every multi-byte field falls on its
// natural alignment boundary, so the header's size and field offsets don't
// depend on compiler struct-packing decisions.
//
// Width, Height, Depth, RingDepth, OwnerPID and OwnerStartToken are written
// once at Create and read-only afterward (invariant 1). FrameCnt, IsAlive
// and ActiveReaders are only ever touched through sync/atomic. The two
// futex words are only touched by the masterMutex/masterCond wrapper types.
type header struct {
	Magic     [4]byte // 0x00
	Version   uint32  // 0x04
	Width     uint32  // 0x08
	Height    uint32  // 0x0C
	Depth     uint32  // 0x10
	RingDepth uint32  // 0x14
	OwnerPID  uint32  // 0x18
	_pad0     uint32  // 0x1C

	OwnerStartToken uint64 // 0x20

	FrameCnt uint64 // 0x28 (atomic)

	IsAlive       uint32 // 0x30 (atomic, 0 or 1)
	ActiveReaders uint32 // 0x34 (atomic)

	MasterMutexWord uint32 // 0x38 (futex word)
	MasterCondGen   uint32 // 0x3C (futex word)
}

// headerSize is 64 bytes: 0x40, itself 8-byte aligned so the slot
// descriptor array that immediately follows it (each one starting with a
// uint64) is also naturally aligned.
const headerSize = 0x40

// slotDescriptor is one ring slot's metadata. RingDepth of these sit
// contiguously right after the header.
type slotDescriptor struct {
	FrameUID        uint64 // 0x00 (frame_cnt value at publish commit; 0 = never written)
	AcquisitionTime uint64 // 0x08 (opaque, caller-supplied)
	LockWord        uint32 // 0x10 (slotLock word)
	_pad0           uint32 // 0x14
}

const slotDescriptorSize = 0x18 // 24 bytes

// segmentSize computes the exact mmap length for the given geometry:
// header + N slot descriptors + N*W*H*D pixel bytes.
func segmentSize(width, height, depth, ringDepth int) int64 {
	frameBytes := int64(width) * int64(height) * int64(depth)
	return int64(headerSize) +
		int64(ringDepth)*int64(slotDescriptorSize) +
		int64(ringDepth)*frameBytes
}

// mappedSegment is a typed view over the raw mmap'd bytes of one
// segment. It does not own the bytes - Handle.Close/Destroy unmap them.
type mappedSegment struct {
	data      []byte
	width     int
	height    int
	depth     int
	ringDepth int
}

func newMappedSegment(data []byte, width, height, depth, ringDepth int) *mappedSegment {
	return &mappedSegment{
		data:      data,
		width:     width,
		height:    height,
		depth:     depth,
		ringDepth: ringDepth,
	}
}

func (s *mappedSegment) hdr() *header {
	return peekHeader(s.data)
}

// peekHeader overlays a *header directly on raw mapped bytes, before a
// mappedSegment has been constructed (Open must read Width/Height/Depth
// out of the header before it knows the geometry needed to build one).
func peekHeader(data []byte) *header {
	return (*header)(unsafe.Pointer(&data[0]))
}

func (s *mappedSegment) slot(i int) *slotDescriptor {
	off := headerSize + i*slotDescriptorSize
	return (*slotDescriptor)(unsafe.Pointer(&s.data[off]))
}

func (s *mappedSegment) frameSize() int {
	return s.width * s.height * s.depth
}

func (s *mappedSegment) pixelAreaOffset() int {
	return headerSize + s.ringDepth*slotDescriptorSize
}

// pixels returns the byte slice backing slot i's pixel area. The slice
// aliases the mapped memory directly; callers must hold that slot's lock
// before reading or writing through it.
func (s *mappedSegment) pixels(i int) []byte {
	frameSize := s.frameSize()
	off := s.pixelAreaOffset() + i*frameSize
	return s.data[off : off+frameSize : off+frameSize]
}

func validateName(name string) error {
	if name == "" {
		return ErrInvalidName
	}
	if strings.Contains(name, archivedMarker) {
		return ErrInvalidName
	}
	for _, r := range name {
		if r == os.PathSeparator {
			return ErrInvalidName
		}
	}
	return nil
}
