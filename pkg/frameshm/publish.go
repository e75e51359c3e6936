package frameshm

import "sync/atomic"

// Publish installs a new frame into the ring:
//
//  1. validate dimensions and liveness
//  2. compute the target slot from frame_cnt+1, before incrementing it
//  3. take that slot's write lock (blocks behind any reader)
//  4. copy pixels
//  5. bump frame_cnt
//  6. write the slot's acquisition time and frame_uid
//  7. release the write lock, then broadcast under the master mutex
//
// The master mutex is only held for the broadcast, never across the pixel
// copy - broadcasting under the mutex (rather than after releasing it) is
// what keeps a waiting reader from missing the wakeup between its own
// check-and-wait.
func (h *Handle) Publish(width, height, depth int, acquisitionTime uint64, pixels []byte) error {
	seg := h.seg
	hdr := seg.hdr()

	if width != seg.width || height != seg.height || depth != seg.depth {
		return ErrFrameSizeMismatch
	}
	if len(pixels) != seg.frameSize() {
		return ErrFrameSizeMismatch
	}
	if !readIsAlive(hdr) {
		return ErrBlockNotActive
	}

	next := atomic.LoadUint64(&hdr.FrameCnt) + 1
	targetSlot := int(next % uint64(seg.ringDepth))

	lock := h.slotLock(targetSlot)
	lock.Lock()

	copy(seg.pixels(targetSlot), pixels)
	atomic.StoreUint64(&hdr.FrameCnt, next)

	desc := seg.slot(targetSlot)
	desc.AcquisitionTime = acquisitionTime
	desc.FrameUID = next

	lock.Unlock()

	h.mmu.Lock()
	h.mcond.Broadcast()
	h.mmu.Unlock()

	return nil
}

func (h *Handle) slotLock(i int) slotLock {
	return newSlotLock(&h.seg.slot(i).LockWord)
}
