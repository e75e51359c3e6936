//go:build linux

// Package futex wraps the Linux futex(2) syscall for building
// process-shared synchronization primitives directly inside a memory-mapped
// region.
//
// Go's sync.Mutex and sync.Cond are only valid within a single address
// space; frameshm's segment header and slot descriptors live in memory
// shared across process boundaries, so the wait/wake primitive underneath
// must be a syscall that the kernel itself arbitrates. futex(2) is that
// primitive on Linux: it parks a thread on a 32-bit word's current value
// and wakes threads parked on that word, with no requirement that the
// waiters share anything beyond the mapping containing the word.
//
// This package is a thin, from-scratch wrapper kept deliberately small so
// its correctness is easy to audit.
package futex

import (
	"unsafe"

	"golang.org/x/sys/unix"
)

// Wait returns immediately if the value at addr does not equal expected;
// otherwise it blocks the calling goroutine until another thread calls Wake
// on addr. A change to the value without a Wake does not end the wait.
//
// Wait is also permitted to return spuriously (a "spurious wakeup"); as
// with sync.Cond, callers must re-check their own condition in a loop
// rather than trust that a single Wait return means their wait predicate
// became true.
func Wait(addr *uint32, expected uint32) error {
	_, _, errno := unix.Syscall6(
		unix.SYS_FUTEX,
		uintptr(unsafe.Pointer(addr)),
		uintptr(unix.FUTEX_WAIT),
		uintptr(expected),
		0, 0, 0,
	)
	switch errno {
	case 0, unix.EAGAIN, unix.EINTR:
		// EAGAIN: addr's value had already changed by the time the kernel
		// looked, equivalent to an immediate spurious wakeup.
		// EINTR: interrupted by a signal, caller loops and re-checks.
		return nil
	default:
		return errno
	}
}

// Wake wakes up to n goroutines blocked in Wait on addr, and returns how
// many were actually woken. Pass math.MaxInt32 to wake every waiter
// (used for broadcast-style condvars).
func Wake(addr *uint32, n int32) (int, error) {
	woken, _, errno := unix.Syscall6(
		unix.SYS_FUTEX,
		uintptr(unsafe.Pointer(addr)),
		uintptr(unix.FUTEX_WAKE),
		uintptr(n),
		0, 0, 0,
	)
	if errno != 0 {
		return 0, errno
	}
	return int(woken), nil
}
