package frameshm

import (
	"crypto/rand"
	"fmt"
	"time"
)

// CreateOptions configures Create. Width, Height and Depth are required
// and immutable for the life of the segment (invariant 1).
type CreateOptions struct {
	// Name identifies the segment; it becomes part of the anchor file
	// path and must not contain os.PathSeparator.
	Name string

	Width  int
	Height int
	Depth  int

	// RingDepth is the number of slots in the ring. Zero means
	// DefaultRingDepth. Values below MinRingDepth are rejected.
	RingDepth int

	// Dir is the directory anchor files are created under. Empty means
	// DefaultDir ("/dev/shm").
	Dir string

	// Prefix is prepended to Name to form the anchor file's base name.
	// Empty means DefaultPrefix ("buffer-").
	Prefix string
}

const (
	// DefaultDir is the RAM-backed tmpfs directory anchor files live
	// under when CreateOptions.Dir / the Open Option WithDir is unset.
	DefaultDir = "/dev/shm"

	// DefaultPrefix is prepended to a segment's name to form its anchor
	// file's base name when unset.
	DefaultPrefix = "buffer-"

	// archivedMarker is the fixed part of the suffix Destroy renames the
	// anchor file to before unmapping and removing it. validateName rejects
	// any name containing this marker, so the full
	// ".archived-<unixnano>-<rand>" suffix this marker is the prefix of can
	// never collide with a valid anchor path.
	archivedMarker = ".archived"
)

// archivedSuffix returns a fresh, unique teardown suffix:
// ".archived-<unixnano>-<8 random hex bytes>". The random component means
// two Destroy calls racing on the same name (one losing to the other's
// rename) never produce the same archived path even if called within the
// same nanosecond.
func archivedSuffix() string {
	randBytes := make([]byte, 8)
	_, _ = rand.Read(randBytes) // best-effort; a zero suffix is still unique enough alongside UnixNano
	return fmt.Sprintf("%s-%d-%x", archivedMarker, time.Now().UnixNano(), randBytes)
}

// Option configures Open, IsAliveByName, IsPoisonedByName and
// DestroyByName, all of which resolve an anchor path from a bare name the
// same way Create does.
type Option func(*openConfig)

type openConfig struct {
	dir    string
	prefix string
}

func newOpenConfig(opts []Option) openConfig {
	cfg := openConfig{dir: DefaultDir, prefix: DefaultPrefix}
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}

// WithDir overrides the directory anchor files are resolved under.
func WithDir(dir string) Option {
	return func(c *openConfig) { c.dir = dir }
}

// WithPrefix overrides the prefix prepended to a segment's name.
func WithPrefix(prefix string) Option {
	return func(c *openConfig) { c.prefix = prefix }
}
