// Package frameshmcfg loads frameshmctl's config file: a JSON-with-comments
// document, parsed with hujson, carrying default segment geometry and
// anchor-path settings so frameshmctl create/open don't need every flag
// spelled out on every invocation.
package frameshmcfg

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/natefinch/atomic"
	"github.com/tailscale/hujson"

	"github.com/lattice-io/frameshm/internal/fs"
)

// Config holds frameshmctl's defaults.
type Config struct {
	Dir       string `json:"dir,omitempty"`
	Prefix    string `json:"prefix,omitempty"`
	RingDepth int    `json:"ring_depth,omitempty"` //nolint:tagliatelle
	Width     int    `json:"width,omitempty"`
	Height    int    `json:"height,omitempty"`
	Depth     int    `json:"depth,omitempty"`
}

// ConfigFileName is the config file's base name under its directory.
const ConfigFileName = "config.hujson"

// Default returns frameshmctl's built-in defaults, used when no config
// file is present.
func Default() Config {
	return Config{
		Dir:       "/dev/shm",
		Prefix:    "buffer-",
		RingDepth: 3,
	}
}

// Path returns the config file path: $XDG_CONFIG_HOME/frameshm/config.hujson,
// falling back to ~/.config/frameshm/config.hujson.
func Path() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "frameshm", ConfigFileName)
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "frameshm", ConfigFileName)
}

// Load reads and merges the config file at Path() over Default(). A
// missing file is not an error - Default() is returned as-is.
func Load() (Config, error) {
	cfg := Default()

	path := Path()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return Config{}, fmt.Errorf("reading %s: %w", path, err)
	}

	standardized, err := hujson.Standardize(data)
	if err != nil {
		return Config{}, fmt.Errorf("invalid JSONC in %s: %w", path, err)
	}

	var fileCfg Config
	if err := json.Unmarshal(standardized, &fileCfg); err != nil {
		return Config{}, fmt.Errorf("invalid JSON in %s: %w", path, err)
	}

	merge(&cfg, fileCfg)
	return cfg, nil
}

var locker = fs.NewLocker(fs.NewReal())

// Save atomically rewrites the config file at Path(), creating its parent
// directory if needed. The write is guarded by an exclusive lock on a
// sibling ".lock" file, so concurrent Save calls serialize their writes.
// The lock covers only the write: cfg is read by the caller before Save
// takes it, so two concurrent "frameshmctl config set" runs can each read
// the same old file and the later write drops the other's change. The
// write itself is temp-file-then-rename via natefinch/atomic, so a crash mid-write never
// leaves a truncated config.
func Save(cfg Config) error {
	path := Path()
	if path == "" {
		return fmt.Errorf("frameshmcfg: cannot determine config path (no home directory)")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}

	lk, err := locker.LockWithTimeout(path+".lock", 5*time.Second)
	if err != nil {
		return fmt.Errorf("locking %s: %w", path, err)
	}
	defer lk.Close()

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}
	return atomic.WriteFile(path, bytes.NewReader(data))
}

// StatusBreadcrumb is the last-observed liveness snapshot for one segment,
// written by "frameshmctl status" so operators can tell what the most
// recent check saw without re-running it (e.g. from a monitoring script
// that only cats the file).
type StatusBreadcrumb struct {
	Name          string `json:"name"`
	OwnerPID      int    `json:"owner_pid"`
	Alive         bool   `json:"alive"`
	Poisoned      bool   `json:"poisoned"`
	FrameCnt      uint64 `json:"frame_cnt"`
	ActiveReaders uint32 `json:"active_readers"`
}

func breadcrumbDir() string {
	path := Path()
	if path == "" {
		return ""
	}
	return filepath.Join(filepath.Dir(path), "status")
}

// WriteStatusBreadcrumb atomically records b under
// $XDG_CONFIG_HOME/frameshm/status/<name>.json, creating the directory if
// needed. A missing config directory (no home directory resolvable) is not
// an error - the breadcrumb is best-effort diagnostics, not load-bearing
// state.
func WriteStatusBreadcrumb(b StatusBreadcrumb) error {
	dir := breadcrumbDir()
	if dir == "" {
		return nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(b, "", "  ")
	if err != nil {
		return err
	}
	return atomic.WriteFile(filepath.Join(dir, b.Name+".json"), bytes.NewReader(data))
}

func merge(base *Config, overlay Config) {
	if overlay.Dir != "" {
		base.Dir = overlay.Dir
	}
	if overlay.Prefix != "" {
		base.Prefix = overlay.Prefix
	}
	if overlay.RingDepth != 0 {
		base.RingDepth = overlay.RingDepth
	}
	if overlay.Width != 0 {
		base.Width = overlay.Width
	}
	if overlay.Height != 0 {
		base.Height = overlay.Height
	}
	if overlay.Depth != 0 {
		base.Depth = overlay.Depth
	}
}
