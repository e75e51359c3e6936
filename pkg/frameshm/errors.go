package frameshm

import "errors"

// Error classification.
//
// Callers MUST classify errors using errors.Is; implementations may wrap
// these with additional context.
var (
	// ErrFrameSizeMismatch is returned by Publish when the supplied
	// dimensions don't match the segment's fixed frame geometry.
	ErrFrameSizeMismatch = errors.New("frameshm: frame size mismatch")

	// ErrBlockNotActive is returned by Publish or Read once the segment has
	// been torn down (IsAlive is false).
	ErrBlockNotActive = errors.New("frameshm: block not active")

	// ErrNoNewFrame is returned by a non-blocking Read when no frame newer
	// than the caller's last-seen frame is available yet.
	ErrNoNewFrame = errors.New("frameshm: no new frame")

	// ErrExists is returned by Create when a segment with the given name
	// already has a live anchor file.
	ErrExists = errors.New("frameshm: segment already exists")

	// ErrNotExist is returned by Open when no anchor file exists for the
	// given name, or when the file there does not carry a frameshm header.
	ErrNotExist = errors.New("frameshm: segment does not exist")

	// ErrInvalidName is returned when name is empty, contains a path
	// separator, or contains the archived-anchor marker.
	ErrInvalidName = errors.New("frameshm: invalid name")

	// ErrInvalidRingDepth is returned by Create when RingDepth < 2.
	ErrInvalidRingDepth = errors.New("frameshm: invalid ring depth")

	// ErrOwnerClose is returned by Close when called on the owning handle;
	// owners must call Destroy instead.
	ErrOwnerClose = errors.New("frameshm: owner must call Destroy, not Close")

	// ErrNotPoisoned is returned by Destroy when called by a non-owner on a
	// segment whose owner process is still alive.
	ErrNotPoisoned = errors.New("frameshm: refusing to destroy: owner is alive")
)
