package frameshm

import (
	"math"
	"sync/atomic"

	"github.com/lattice-io/frameshm/pkg/frameshm/futex"
)

// writeLocked marks the high bit of a slotLock word to indicate a writer
// holds the lock; the low 31 bits count concurrent readers.
const writeLocked uint32 = 1 << 31

// slotLock is a multi-reader/single-writer lock living inside the mapped
// segment: a single uint32 word, manipulated with atomics and parked/woken
// with futex.Wait/futex.Wake. It is the "process-shared" realization of a
// per-slot lock, since sync.RWMutex only works within one address space.
//
// slotLock is a plain value type; callers obtain one by pointing directly
// at the uint32 word inside the mapped bytes (see Handle.slotLock).
type slotLock struct {
	word *uint32
}

func newSlotLock(word *uint32) slotLock {
	return slotLock{word: word}
}

// Lock acquires the slot exclusively, blocking while any reader holds it.
func (l slotLock) Lock() {
	for {
		old := atomic.LoadUint32(l.word)
		if old == 0 && atomic.CompareAndSwapUint32(l.word, 0, writeLocked) {
			return
		}
		_ = futex.Wait(l.word, old)
	}
}

// Unlock releases a write lock and wakes any parked waiters.
func (l slotLock) Unlock() {
	atomic.StoreUint32(l.word, 0)
	_, _ = futex.Wake(l.word, math.MaxInt32)
}

// RLock acquires the slot for shared reading, blocking while a writer holds
// it.
func (l slotLock) RLock() {
	for {
		old := atomic.LoadUint32(l.word)
		if old&writeLocked != 0 {
			_ = futex.Wait(l.word, old)
			continue
		}
		if atomic.CompareAndSwapUint32(l.word, old, old+1) {
			return
		}
	}
}

// RUnlock releases a shared read lock.
func (l slotLock) RUnlock() {
	new := atomic.AddUint32(l.word, ^uint32(0)) // -1
	if new == 0 {
		_, _ = futex.Wake(l.word, math.MaxInt32)
	}
}

// TryRLock attempts to acquire the slot for shared reading without
// blocking. It reports whether the lock was acquired.
func (l slotLock) TryRLock() bool {
	old := atomic.LoadUint32(l.word)
	if old&writeLocked != 0 {
		return false
	}
	return atomic.CompareAndSwapUint32(l.word, old, old+1)
}
