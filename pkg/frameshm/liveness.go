package frameshm

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"

	"golang.org/x/sys/unix"
)

// ownerStartToken returns a best-effort token identifying the current
// process's start time, read from /proc/<pid>/stat's 22nd field (the
// process's start time in clock ticks since boot). It returns 0, false if
// the token can't be read (non-Linux, /proc unmounted, permission denied).
//
// PID reuse is a known liveness-check weakness: a recorded owner PID can
// come to name an unrelated, live process after the real owner exits. This
// token closes that gap - two processes with the same PID almost never
// share a start time, so pairing the two catches reuse that a bare
// kill(pid, 0) check would miss.
func ownerStartToken(pid int) (uint64, bool) {
	f, err := os.Open(fmt.Sprintf("/proc/%d/stat", pid))
	if err != nil {
		return 0, false
	}
	defer f.Close()

	// The comm field (2nd, parenthesized) can itself contain spaces and
	// closing parens, so split on the last ')' rather than whitespace.
	data, err := bufio.NewReader(f).ReadString('\n')
	if err != nil && data == "" {
		return 0, false
	}
	idx := strings.LastIndexByte(data, ')')
	if idx < 0 || idx+2 >= len(data) {
		return 0, false
	}
	fields := strings.Fields(data[idx+2:])
	// fields[0] is field 3 (state); start time is field 22, i.e. index 19
	// in this zero-based slice starting at field 3.
	const startTimeFieldIndex = 19
	if len(fields) <= startTimeFieldIndex {
		return 0, false
	}
	token, err := strconv.ParseUint(fields[startTimeFieldIndex], 10, 64)
	if err != nil {
		return 0, false
	}
	return token, true
}

// processAlive reports whether pid names a running process, using signal 0:
// delivering no signal but still performing the existence/permission
// checks kill(2) would for a real signal.
func processAlive(pid int) bool {
	err := unix.Kill(pid, 0)
	if err == nil {
		return true
	}
	// EPERM means the process exists but we can't signal it - still alive.
	return err == unix.EPERM
}

// IsPoisoned reports whether the segment's owner process has exited
// without calling Destroy: is_alive is still true, but the recorded owner
// PID (and, when available, its start-time token) no longer matches a live
// process. Detection is best-effort and can race with PID reuse.
func (h *Handle) IsPoisoned() (bool, error) {
	hdr := h.seg.hdr()
	if !readIsAlive(hdr) {
		return false, nil
	}
	pid := int(hdr.OwnerPID)
	if !processAlive(pid) {
		return true, nil
	}
	if hdr.OwnerStartToken == 0 {
		return false, nil
	}
	token, ok := ownerStartToken(pid)
	if !ok {
		// Can't read the token on this platform/process; fall back to the
		// PID-only check already performed above.
		return false, nil
	}
	return token != hdr.OwnerStartToken, nil
}
