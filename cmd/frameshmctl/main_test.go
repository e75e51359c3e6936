package main

import (
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/lattice-io/frameshm/internal/frameshmcfg"
)

func setXDGHome(t *testing.T) {
	t.Helper()
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
}

func Test_Run_With_No_Arguments_Returns_An_Error(t *testing.T) {
	setXDGHome(t)

	if err := run(nil); err == nil {
		t.Fatal("run(nil) should fail when no command is given")
	}
}

func Test_Run_With_Unknown_Command_Returns_An_Error(t *testing.T) {
	setXDGHome(t)

	if err := run([]string{"bogus"}); err == nil {
		t.Fatal("run with an unknown command should fail")
	}
}

func Test_Run_Help_Does_Not_Error(t *testing.T) {
	setXDGHome(t)

	if err := run([]string{"help"}); err != nil {
		t.Fatalf("run([\"help\"]) = %v, want nil", err)
	}
}

func Test_RunCreate_Requires_Name_Flag(t *testing.T) {
	setXDGHome(t)
	dir := t.TempDir()

	err := run([]string{"create", "--dir", dir, "--width", "2", "--height", "2", "--depth", "1"})
	if err == nil {
		t.Fatal("create without --name should fail")
	}
}

// "create" runs in this test binary's own process and never calls Destroy
// itself, so as far as IsPoisoned is concerned the segment's owner is this
// still-running process - a later "destroy" invocation (which always opens
// a fresh, non-owning handle) must therefore be refused, exactly as it would
// be for an operator who ran "frameshmctl destroy" against someone else's
// live segment.
func Test_Create_Publish_Status_Destroy_End_To_End(t *testing.T) {
	setXDGHome(t)
	dir := t.TempDir()

	if err := run([]string{
		"create", "--dir", dir, "--name", "cam",
		"--width", "2", "--height", "2", "--depth", "1",
	}); err != nil {
		t.Fatalf("create: %v", err)
	}

	pixelFile := filepath.Join(dir, "frame.raw")
	if err := os.WriteFile(pixelFile, []byte{1, 2, 3, 4}, 0o644); err != nil {
		t.Fatalf("writing pixel fixture: %v", err)
	}

	if err := run([]string{
		"publish", "--dir", dir, "--name", "cam",
		"--width", "2", "--height", "2", "--depth", "1",
		"--file", pixelFile, "--time", "42",
	}); err != nil {
		t.Fatalf("publish: %v", err)
	}

	if err := run([]string{"status", "--dir", dir, "--name", "cam"}); err != nil {
		t.Fatalf("status: %v", err)
	}

	if err := run([]string{"destroy", "--dir", dir, "--name", "cam"}); err == nil {
		t.Fatal("destroy of a live, non-poisoned segment should be refused")
	}
}

// This mirrors the operator recovery path: the process that ran "create"
// exits (simulating a crash, or just forgetting to clean up) without ever
// calling "destroy" itself. A later "destroy" from a different process
// finds the segment poisoned and is allowed to tear it down.
const createAndExitEnvKey = "FRAMESHMCTL_TEST_CREATE_AND_EXIT_DIR"

func Test_Destroy_Recovers_A_Segment_Whose_Creating_Process_Exited(t *testing.T) {
	if dir := os.Getenv(createAndExitEnvKey); dir != "" {
		if err := run([]string{
			"create", "--dir", dir, "--name", "cam",
			"--width", "2", "--height", "2", "--depth", "1",
		}); err != nil {
			os.Exit(1)
		}
		os.Exit(0)
	}

	setXDGHome(t)
	dir := t.TempDir()

	cmd := exec.Command(os.Args[0], "-test.run=^Test_Destroy_Recovers_A_Segment_Whose_Creating_Process_Exited$")
	cmd.Env = append(os.Environ(), createAndExitEnvKey+"="+dir)
	if out, err := cmd.CombinedOutput(); err != nil {
		t.Fatalf("helper process create failed: %v\n%s", err, out)
	}

	if err := run([]string{"destroy", "--dir", dir, "--name", "cam"}); err != nil {
		t.Fatalf("destroy of a poisoned segment should succeed: %v", err)
	}

	// A second destroy should fail: the anchor file is gone.
	if err := run([]string{"destroy", "--dir", dir, "--name", "cam"}); err == nil {
		t.Fatal("destroy on an already-destroyed segment should fail")
	}
}

func Test_RunConfig_Set_Then_Get_Round_Trips(t *testing.T) {
	setXDGHome(t)

	if err := run([]string{"config", "set", "ring_depth", "5"}); err != nil {
		t.Fatalf("config set: %v", err)
	}
	if err := run([]string{"config", "get"}); err != nil {
		t.Fatalf("config get: %v", err)
	}

	cfg, err := frameshmcfg.Load()
	if err != nil {
		t.Fatalf("loading saved config: %v", err)
	}
	if cfg.RingDepth != 5 {
		t.Fatalf("ring_depth=%d after config set, want 5", cfg.RingDepth)
	}
}

func Test_RunConfig_Set_Rejects_Unknown_Key(t *testing.T) {
	setXDGHome(t)

	err := run([]string{"config", "set", "bogus", "1"})
	if err == nil {
		t.Fatal("config set with an unknown key should fail")
	}
}

func Test_RunConfig_Set_Rejects_NonInteger_Value_For_Integer_Key(t *testing.T) {
	setXDGHome(t)

	err := run([]string{"config", "set", "width", "not-a-number"})
	if err == nil {
		t.Fatal("config set width with a non-integer value should fail")
	}
}
