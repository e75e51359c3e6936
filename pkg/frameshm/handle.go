package frameshm

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync/atomic"

	"golang.org/x/sys/unix"

	"github.com/lattice-io/frameshm/internal/frameshmlog"
)

// Handle is a per-process anchor to a segment: an anchor-file path and a
// mapped-segment pointer. A Handle is not unique - any number of handles,
// in any number of processes, may be open on the same segment at once -
// but exactly one of them is the "owner" (the one Create returned), and
// only the owner may gracefully Destroy. Publish does not check ownership:
// it accepts any handle, and concurrent Publish calls from more than one
// handle are not serialized against each other.
type Handle struct {
	name    string
	path    string
	isOwner bool

	seg   *mappedSegment
	mmu   masterMutex
	mcond masterCond

	log *frameshmlog.Logger
}

func anchorPath(dir, prefix, name string) string {
	if dir == "" {
		dir = DefaultDir
	}
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return filepath.Join(dir, prefix+name)
}

// Create creates a new named segment and returns the owning handle. The
// anchor file must not already exist.
func Create(opts CreateOptions) (*Handle, error) {
	log := frameshmlog.Default()

	if err := validateName(opts.Name); err != nil {
		log.Warn("create refused: invalid name", "name", opts.Name)
		return nil, err
	}
	if opts.Width <= 0 || opts.Height <= 0 || opts.Depth <= 0 {
		return nil, fmt.Errorf("%w: width/height/depth must be positive", ErrFrameSizeMismatch)
	}
	ringDepth := opts.RingDepth
	if ringDepth == 0 {
		ringDepth = DefaultRingDepth
	}
	if ringDepth < MinRingDepth {
		return nil, fmt.Errorf("%w: %d < %d", ErrInvalidRingDepth, ringDepth, MinRingDepth)
	}

	path := anchorPath(opts.Dir, opts.Prefix, opts.Name)

	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0o700)
	if err != nil {
		if os.IsExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrExists, path)
		}
		log.Error("create: open anchor file failed", "path", path, "err", err)
		return nil, err
	}
	defer f.Close()

	size := segmentSize(opts.Width, opts.Height, opts.Depth, ringDepth)
	if err := f.Truncate(size); err != nil {
		_ = os.Remove(path)
		log.Error("create: truncate failed", "path", path, "err", err)
		return nil, err
	}

	data, err := unix.Mmap(int(f.Fd()), 0, int(size), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		_ = os.Remove(path)
		log.Error("create: mmap failed", "path", path, "err", err)
		return nil, err
	}

	seg := newMappedSegment(data, opts.Width, opts.Height, opts.Depth, ringDepth)
	hdr := seg.hdr()
	hdr.Magic = headerMagic
	hdr.Version = headerVersion
	hdr.Width = uint32(opts.Width)
	hdr.Height = uint32(opts.Height)
	hdr.Depth = uint32(opts.Depth)
	hdr.RingDepth = uint32(ringDepth)
	hdr.OwnerPID = uint32(os.Getpid())
	if token, ok := ownerStartToken(os.Getpid()); ok {
		hdr.OwnerStartToken = token
	}
	atomic.StoreUint64(&hdr.FrameCnt, 0)
	atomic.StoreUint32(&hdr.IsAlive, 1)
	atomic.StoreUint32(&hdr.ActiveReaders, 0)
	atomic.StoreUint32(&hdr.MasterMutexWord, 0)
	atomic.StoreUint32(&hdr.MasterCondGen, 0)

	h := &Handle{
		name:    opts.Name,
		path:    path,
		isOwner: true,
		seg:     seg,
		log:     log,
	}
	h.mmu = newMasterMutex(&hdr.MasterMutexWord)
	h.mcond = newMasterCond(&hdr.MasterCondGen, h.mmu)
	return h, nil
}

// Open opens an existing segment by name as a non-owning handle.
func Open(name string, opts ...Option) (*Handle, error) {
	log := frameshmlog.Default()

	if err := validateName(name); err != nil {
		return nil, err
	}
	cfg := newOpenConfig(opts)
	path := anchorPath(cfg.dir, cfg.prefix, name)

	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrNotExist, path)
		}
		log.Error("open: opening anchor file failed", "path", path, "err", err)
		return nil, err
	}
	defer f.Close()

	size, err := f.Seek(0, io.SeekEnd)
	if err != nil {
		log.Error("open: seek failed", "path", path, "err", err)
		return nil, err
	}

	// rw, not ro: non-owners still acquire slot and master locks, which
	// mutate sync-primitive words living inside this mapping.
	data, err := unix.Mmap(int(f.Fd()), 0, int(size), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		log.Error("open: mmap failed", "path", path, "err", err)
		return nil, err
	}

	peek := peekHeader(data)
	if peek.Magic != headerMagic || peek.Version != headerVersion {
		_ = unix.Munmap(data)
		return nil, fmt.Errorf("%w: %s: bad header", ErrNotExist, path)
	}

	seg := newMappedSegment(data, int(peek.Width), int(peek.Height), int(peek.Depth), int(peek.RingDepth))

	h := &Handle{
		name:    name,
		path:    path,
		isOwner: false,
		seg:     seg,
		log:     log,
	}
	h.mmu = newMasterMutex(&seg.hdr().MasterMutexWord)
	h.mcond = newMasterCond(&seg.hdr().MasterCondGen, h.mmu)
	return h, nil
}

// Close releases this process's handle to the segment. It refuses to run
// on the owning handle - owners must call Destroy so the segment is torn
// down, not merely unmapped out from under its one writer.
func (h *Handle) Close() error {
	if h.isOwner {
		h.log.Warn("close refused: handle is the owner, call Destroy instead", "name", h.name)
		return ErrOwnerClose
	}
	return unix.Munmap(h.seg.data)
}

// Destroy tears down the segment. It may be called by the owning handle,
// or by any handle if the segment is poisoned (its owner has exited
// without calling Destroy); otherwise it is refused.
func (h *Handle) Destroy() error {
	if !h.isOwner {
		poisoned, err := h.IsPoisoned()
		if err != nil {
			return err
		}
		if !poisoned {
			h.log.Warn("destroy refused: not owner and segment is not poisoned", "name", h.name)
			return ErrNotPoisoned
		}
	}

	hdr := h.seg.hdr()
	atomic.StoreUint32(&hdr.IsAlive, 0)

	h.mmu.Lock()
	archived := h.path + archivedSuffix()
	if err := os.Rename(h.path, archived); err != nil && !os.IsNotExist(err) {
		h.log.Error("destroy: rename to archived path failed", "path", h.path, "err", err)
	}
	h.mcond.Broadcast()
	h.mmu.Unlock()

	if err := unix.Munmap(h.seg.data); err != nil {
		h.log.Error("destroy: munmap failed", "err", err)
	}
	if err := os.Remove(archived); err != nil && !os.IsNotExist(err) {
		h.log.Error("destroy: removing archived anchor failed", "path", archived, "err", err)
	}
	return nil
}

// Geometry returns the segment's fixed frame dimensions.
func (h *Handle) Geometry() (width, height, depth int) {
	return h.seg.width, h.seg.height, h.seg.depth
}

// OwnerPID returns the PID recorded by Create, for diagnostics (see
// IsPoisoned for the liveness check this PID feeds).
func (h *Handle) OwnerPID() int {
	return int(h.seg.hdr().OwnerPID)
}

// IsAlive reports whether the segment is still live, i.e. has not been torn
// down.
func (h *Handle) IsAlive() (bool, error) {
	return readIsAlive(h.seg.hdr()), nil
}

func readIsAlive(hdr *header) bool {
	return atomic.LoadUint32(&hdr.IsAlive) == 1
}

// Stats reports liveness/activity counters useful for operators and for
// observing teardown drain progress: ActiveReaders stands in for a timed
// pre-unmap sleep, letting a caller poll drain progress instead of
// guessing how long to wait.
type Stats struct {
	IsAlive       bool
	FrameCnt      uint64
	ActiveReaders uint32
}

func (h *Handle) Stats() Stats {
	hdr := h.seg.hdr()
	return Stats{
		IsAlive:       readIsAlive(hdr),
		FrameCnt:      atomic.LoadUint64(&hdr.FrameCnt),
		ActiveReaders: atomic.LoadUint32(&hdr.ActiveReaders),
	}
}

// IsAliveByName opens name, checks liveness, and closes it again.
func IsAliveByName(name string, opts ...Option) (bool, error) {
	h, err := Open(name, opts...)
	if err != nil {
		return false, err
	}
	defer h.Close()
	return h.IsAlive()
}

// IsPoisonedByName opens name, checks for poisoning, and closes it again.
func IsPoisonedByName(name string, opts ...Option) (bool, error) {
	h, err := Open(name, opts...)
	if err != nil {
		return false, err
	}
	defer h.Close()
	return h.IsPoisoned()
}

// DestroyByName opens name and destroys it; used by a consumer that
// detected poisoning via the by-name check and wants to clean up without
// holding a long-lived handle.
func DestroyByName(name string, opts ...Option) error {
	h, err := Open(name, opts...)
	if err != nil {
		return err
	}
	if err := h.Destroy(); err != nil {
		_ = h.Close()
		return err
	}
	return nil
}
