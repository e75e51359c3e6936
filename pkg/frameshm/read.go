package frameshm

import "sync/atomic"

// Read implements the reader wait/wake core:
//
//  1. take the master mutex
//  2. grow rec's pixel buffer / dims under the mutex (no pixel I/O yet)
//  3. fail BLOCK_NOT_ACTIVE if the segment has been torn down
//  4. compute the target frame_uid: last+1, or the catch-up floor
//     newest-N+1 when the reader has fallen more than N publishes behind
//  5. if there's nothing newer than rec's last-seen frame: block on the
//     master condvar (non-blocking callers fail NO_NEW_FRAME instead)
//  6. try the target slot's read lock without blocking; on contention,
//     wait on the master condvar and retry
//  7. release the master mutex once the slot's read lock is held
//  8. copy frame_uid/acquisition_time, then pixels, out of the slot
//  9. release the slot's read lock
func (h *Handle) Read(rec *FrameRecord, blocking bool) error {
	seg := h.seg
	hdr := seg.hdr()

	h.mmu.Lock()
	rec.growTo(seg.width, seg.height, seg.depth)

	if !readIsAlive(hdr) {
		h.mmu.Unlock()
		return ErrBlockNotActive
	}

	var newest uint64
	for {
		newest = atomic.LoadUint64(&hdr.FrameCnt)
		if rec.FrameUID != newest {
			break
		}
		if !blocking {
			h.mmu.Unlock()
			return ErrNoNewFrame
		}
		h.mcond.Wait()
		if !readIsAlive(hdr) {
			h.mmu.Unlock()
			return ErrBlockNotActive
		}
	}

	ringDepth := uint64(seg.ringDepth)
	targetUID := rec.FrameUID + 1
	if newest >= ringDepth {
		if floor := newest - ringDepth + 1; floor > targetUID {
			targetUID = floor
		}
	}
	targetSlot := int(targetUID % ringDepth)

	for !h.tryAcquireSlotRead(targetSlot) {
		h.mcond.Wait()
		if !readIsAlive(hdr) {
			h.mmu.Unlock()
			return ErrBlockNotActive
		}
	}
	h.mmu.Unlock()

	desc := seg.slot(targetSlot)
	rec.FrameUID = desc.FrameUID
	rec.AcquisitionTime = desc.AcquisitionTime
	copy(rec.Pixels, seg.pixels(targetSlot))

	h.releaseSlotRead(targetSlot)
	return nil
}

// tryAcquireSlotRead and releaseSlotRead wrap slotLock's TryRLock/RUnlock
// with the header's ActiveReaders counter, which Stats exposes as a
// drain-progress signal in place of a pre-unmap sleep.
func (h *Handle) tryAcquireSlotRead(i int) bool {
	if !h.slotLock(i).TryRLock() {
		return false
	}
	atomic.AddUint32(&h.seg.hdr().ActiveReaders, 1)
	return true
}

func (h *Handle) releaseSlotRead(i int) {
	h.slotLock(i).RUnlock()
	atomic.AddUint32(&h.seg.hdr().ActiveReaders, ^uint32(0))
}
