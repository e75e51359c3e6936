package frameshmcfg_test

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/lattice-io/frameshm/internal/frameshmcfg"
)

func withXDGConfigHome(t *testing.T, dir string) {
	t.Helper()
	t.Setenv("XDG_CONFIG_HOME", dir)
}

func Test_Load_Returns_Defaults_When_No_File_Exists(t *testing.T) {
	withXDGConfigHome(t, t.TempDir())

	cfg, err := frameshmcfg.Load()
	require.NoError(t, err)
	require.Equal(t, frameshmcfg.Default(), cfg)
}

func Test_Save_Then_Load_Round_Trips_Configured_Fields(t *testing.T) {
	withXDGConfigHome(t, t.TempDir())

	cfg := frameshmcfg.Default()
	cfg.Dir = "/tmp/frames"
	cfg.Prefix = "test-"
	cfg.RingDepth = 5
	cfg.Width = 640
	cfg.Height = 480
	cfg.Depth = 3

	require.NoError(t, frameshmcfg.Save(cfg))
	require.FileExists(t, frameshmcfg.Path())

	loaded, err := frameshmcfg.Load()
	require.NoError(t, err)
	require.Equal(t, cfg, loaded)
}

func Test_Load_Merges_Partial_File_Over_Defaults(t *testing.T) {
	dir := t.TempDir()
	withXDGConfigHome(t, dir)

	path := filepath.Join(dir, "frameshm", frameshmcfg.ConfigFileName)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(`{
		// only override width, leave everything else at its default
		"width": 1920,
	}`), 0o644))

	cfg, err := frameshmcfg.Load()
	require.NoError(t, err)

	want := frameshmcfg.Default()
	want.Width = 1920
	require.Equal(t, want, cfg)
}

func Test_Load_Rejects_Invalid_JSON(t *testing.T) {
	dir := t.TempDir()
	withXDGConfigHome(t, dir)

	path := filepath.Join(dir, "frameshm", frameshmcfg.ConfigFileName)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(`{not json`), 0o644))

	_, err := frameshmcfg.Load()
	require.Error(t, err)
}

func Test_Save_Creates_Parent_Directory(t *testing.T) {
	withXDGConfigHome(t, filepath.Join(t.TempDir(), "nested", "does-not-exist-yet"))

	require.NoError(t, frameshmcfg.Save(frameshmcfg.Default()))
	require.FileExists(t, frameshmcfg.Path())
}

func Test_WriteStatusBreadcrumb_Writes_A_Readable_JSON_File(t *testing.T) {
	withXDGConfigHome(t, t.TempDir())

	b := frameshmcfg.StatusBreadcrumb{Name: "cam", OwnerPID: 123, Alive: true, FrameCnt: 7}
	require.NoError(t, frameshmcfg.WriteStatusBreadcrumb(b))

	path := filepath.Join(filepath.Dir(frameshmcfg.Path()), "status", "cam.json")
	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var got frameshmcfg.StatusBreadcrumb
	require.NoError(t, json.Unmarshal(data, &got))
	require.Equal(t, b, got)
}

func Test_Save_Serializes_Concurrent_Writers_Via_The_Config_Lock(t *testing.T) {
	withXDGConfigHome(t, t.TempDir())

	const writers = 8
	errs := make(chan error, writers)
	for i := range writers {
		go func(n int) {
			cfg := frameshmcfg.Default()
			cfg.RingDepth = n + 1
			errs <- frameshmcfg.Save(cfg)
		}(i)
	}
	for range writers {
		require.NoError(t, <-errs)
	}

	// Whichever writer went last, the file must be one complete, valid
	// write - never a torn mix of two concurrent writers' JSON.
	loaded, err := frameshmcfg.Load()
	require.NoError(t, err)
	require.GreaterOrEqual(t, loaded.RingDepth, 1)
	require.LessOrEqual(t, loaded.RingDepth, writers)
}
