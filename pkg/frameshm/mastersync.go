package frameshm

import (
	"math"
	"sync/atomic"

	"github.com/lattice-io/frameshm/pkg/frameshm/futex"
)

// masterMutex is a futex-based mutex living inside the mapped segment. It
// guards the header scalars (frame_cnt reads, is_alive) and gates access to
// masterCond; it is never held across a pixel copy.
//
// Word states: 0 unlocked, 1 locked/no waiters, 2 locked/has waiters. This
// is the classic three-state futex mutex: a contended unlock only needs to
// wake a waiter when the lock was held with the "has waiters" flag set.
type masterMutex struct {
	word *uint32
}

func newMasterMutex(word *uint32) masterMutex {
	return masterMutex{word: word}
}

func (m masterMutex) Lock() {
	if atomic.CompareAndSwapUint32(m.word, 0, 1) {
		return
	}
	for atomic.SwapUint32(m.word, 2) != 0 {
		_ = futex.Wait(m.word, 2)
	}
}

func (m masterMutex) Unlock() {
	if atomic.SwapUint32(m.word, 0) == 2 {
		_, _ = futex.Wake(m.word, 1)
	}
}

// masterCond is a futex-based condition variable paired with masterMutex.
// It stores a generation counter rather than a boolean: Wait captures the
// current generation before releasing the mutex, so a Broadcast that lands
// between the caller's predicate check and the futex.Wait call is never
// missed (the generation will already have moved by the time Wait samples
// it, so Wait returns immediately instead of parking).
type masterCond struct {
	gen *uint32
	mu  masterMutex
}

func newMasterCond(gen *uint32, mu masterMutex) masterCond {
	return masterCond{gen: gen, mu: mu}
}

// Wait releases mu, blocks until the next Broadcast, then reacquires mu.
// Callers must hold mu when calling Wait and must re-check their own
// condition in a loop after it returns, per standard condition-variable
// usage.
func (c masterCond) Wait() {
	g := atomic.LoadUint32(c.gen)
	c.mu.Unlock()
	_ = futex.Wait(c.gen, g)
	c.mu.Lock()
}

// Broadcast wakes every goroutine parked in Wait. Callers must hold mu
// when calling Broadcast, per the publication protocol's "broadcast under
// the master mutex" rule, which is what prevents a lost wakeup between a
// waiter's predicate check and its call to Wait.
func (c masterCond) Broadcast() {
	atomic.AddUint32(c.gen, 1)
	_, _ = futex.Wake(c.gen, math.MaxInt32)
}
