package frameshm

// FrameRecord is a consumer-visible copy of one frame: dimensions, the
// frame_uid and acquisition time it was published with, and a heap pixel
// buffer. A FrameRecord is reused across repeated Read calls - its Pixels
// buffer only grows, never shrinks, and FrameUID starts at 0, meaning "no
// frame read yet".
type FrameRecord struct {
	Width, Height, Depth int
	FrameUID             uint64
	AcquisitionTime      uint64
	Pixels               []byte
}

// NewFrameRecord returns an empty frame record ready to pass to
// Handle.Read. Its pixel buffer is grown lazily on first read.
func NewFrameRecord() *FrameRecord {
	return &FrameRecord{}
}

// FreeFrameRecord drops the record's pixel buffer. Go's garbage collector
// reclaims the memory once rec is no longer referenced; this exists for
// callers that want to release a large buffer immediately rather than
// waiting on the record to go out of scope.
func FreeFrameRecord(rec *FrameRecord) {
	rec.Pixels = nil
}

func (rec *FrameRecord) growTo(width, height, depth int) {
	rec.Width, rec.Height, rec.Depth = width, height, depth
	need := width * height * depth
	if cap(rec.Pixels) < need {
		rec.Pixels = make([]byte, need)
	} else {
		rec.Pixels = rec.Pixels[:need]
	}
}
