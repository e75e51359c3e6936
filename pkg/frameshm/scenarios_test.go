package frameshm_test

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	"github.com/lattice-io/frameshm/pkg/frameshm"
)

func framePattern(frameUID uint64, n int) []byte {
	buf := make([]byte, n)
	for i := range buf {
		buf[i] = byte(frameUID) + byte(i)
	}
	return buf
}

// S1: a single publish followed by a single read returns exactly what was
// published.
func Test_S1_Single_Publish_Then_Read_Returns_The_Published_Frame(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	owner, err := frameshm.Create(frameshm.CreateOptions{Name: "cam", Width: 4, Height: 2, Depth: 1, Dir: dir})
	require.NoError(t, err)
	defer owner.Destroy()

	pixels := framePattern(1, 8)
	require.NoError(t, owner.Publish(4, 2, 1, 12345, pixels))

	reader, err := frameshm.Open("cam", frameshm.WithDir(dir))
	require.NoError(t, err)
	defer reader.Close()

	rec := frameshm.NewFrameRecord()
	require.NoError(t, reader.Read(rec, true))

	require.Equal(t, uint64(1), rec.FrameUID)
	require.Equal(t, uint64(12345), rec.AcquisitionTime)
	if diff := cmp.Diff(pixels, rec.Pixels); diff != "" {
		t.Fatalf("pixels mismatch (-want +got):\n%s", diff)
	}
}

// S2: a non-blocking Read on a reader already caught up to frame_cnt fails
// with ErrNoNewFrame instead of blocking.
func Test_S2_NonBlocking_Read_With_No_New_Frame_Returns_ErrNoNewFrame(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	owner, err := frameshm.Create(frameshm.CreateOptions{Name: "cam", Width: 2, Height: 2, Depth: 1, Dir: dir})
	require.NoError(t, err)
	defer owner.Destroy()

	reader, err := frameshm.Open("cam", frameshm.WithDir(dir))
	require.NoError(t, err)
	defer reader.Close()

	rec := frameshm.NewFrameRecord()
	err = reader.Read(rec, false)
	require.ErrorIs(t, err, frameshm.ErrNoNewFrame)
}

// S3: a reader that is more than N publishes behind catches up to
// newest-N+1 instead of replaying every missed frame, per the catch-up
// rule.
func Test_S3_Slow_Reader_Catches_Up_Instead_Of_Replaying_Every_Frame(t *testing.T) {
	t.Parallel()

	const ringDepth = 3
	dir := t.TempDir()
	owner, err := frameshm.Create(frameshm.CreateOptions{
		Name: "cam", Width: 2, Height: 2, Depth: 1, RingDepth: ringDepth, Dir: dir,
	})
	require.NoError(t, err)
	defer owner.Destroy()

	for i := uint64(1); i <= 10; i++ {
		require.NoError(t, owner.Publish(2, 2, 1, i, framePattern(i, 4)))
	}

	reader, err := frameshm.Open("cam", frameshm.WithDir(dir))
	require.NoError(t, err)
	defer reader.Close()

	rec := frameshm.NewFrameRecord()
	require.NoError(t, reader.Read(rec, true))

	// newest=10, ring depth 3: floor = 10-3+1 = 8.
	require.Equal(t, uint64(8), rec.FrameUID)
}

// S4: multiple concurrent readers each observe internally consistent
// frames - no reader ever sees pixels from one frame paired with another
// frame's frame_uid/acquisition_time.
func Test_S4_Concurrent_Readers_Each_See_Internally_Consistent_Frames(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	owner, err := frameshm.Create(frameshm.CreateOptions{
		Name: "cam", Width: 4, Height: 4, Depth: 1, RingDepth: 4, Dir: dir,
	})
	require.NoError(t, err)
	defer owner.Destroy()

	const numReaders = 6
	const numPublishes = 50

	var wg sync.WaitGroup
	errs := make(chan error, numReaders)

	wg.Add(numReaders)
	for range numReaders {
		go func() {
			defer wg.Done()
			reader, err := frameshm.Open("cam", frameshm.WithDir(dir))
			if err != nil {
				errs <- err
				return
			}
			defer reader.Close()

			rec := frameshm.NewFrameRecord()
			for {
				err := reader.Read(rec, true)
				if errors.Is(err, frameshm.ErrBlockNotActive) {
					return
				}
				if err != nil {
					errs <- err
					return
				}
				want := framePattern(rec.FrameUID, len(rec.Pixels))
				if !bytes.Equal(want, rec.Pixels) {
					errs <- fmt.Errorf("reader observed pixels that do not match frame_uid %d", rec.FrameUID)
					return
				}
				if rec.FrameUID == numPublishes {
					return
				}
			}
		}()
	}

	for i := uint64(1); i <= numPublishes; i++ {
		require.NoError(t, owner.Publish(4, 4, 1, i, framePattern(i, 16)))
		time.Sleep(time.Millisecond)
	}

	wg.Wait()
	close(errs)
	for err := range errs {
		t.Error(err)
	}
}

// S5: when the owner process exits without calling Destroy, the segment is
// poisoned - a consumer sees IsPoisoned()==true and may recover by calling
// Destroy itself. The owner is a re-exec'd copy of this test binary (the
// pack's own crash-simulation tests use the same os.Args[0] re-exec trick
// to exercise behavior that can only be observed from a second process),
// since a goroutine can't "crash" without also crashing the test runner.
func Test_S5_Owner_Crash_Poisons_The_Segment_And_A_Reader_Recovers_It(t *testing.T) {
	const envKey = "FRAMESHM_S5_HELPER_DIR"

	if dir := os.Getenv(envKey); dir != "" {
		_, err := frameshm.Create(frameshm.CreateOptions{Name: "cam", Width: 2, Height: 2, Depth: 1, Dir: dir})
		if err != nil {
			os.Exit(1)
		}
		// Exit without calling Destroy: simulates a crashed owner. The
		// segment's is_alive bit stays 1 and its anchor file stays behind.
		os.Exit(0)
	}

	dir := t.TempDir()
	cmd := exec.Command(os.Args[0], "-test.run=^Test_S5_Owner_Crash_Poisons_The_Segment_And_A_Reader_Recovers_It$")
	cmd.Env = append(os.Environ(), envKey+"="+dir)
	require.NoError(t, cmd.Run())

	poisoned, err := frameshm.IsPoisonedByName("cam", frameshm.WithDir(dir))
	require.NoError(t, err)
	require.True(t, poisoned)

	require.NoError(t, frameshm.DestroyByName("cam", frameshm.WithDir(dir)))
}

// S6: tearing down a segment wakes a reader that is blocked in Read waiting
// for the next frame, returning ErrBlockNotActive instead of hanging
// forever on a condvar that will never be broadcast to again.
func Test_S6_Destroy_Wakes_A_Reader_Blocked_In_Read(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	owner, err := frameshm.Create(frameshm.CreateOptions{Name: "cam", Width: 2, Height: 2, Depth: 1, Dir: dir})
	require.NoError(t, err)

	reader, err := frameshm.Open("cam", frameshm.WithDir(dir))
	require.NoError(t, err)
	defer reader.Close()

	readErr := make(chan error, 1)
	go func() {
		rec := frameshm.NewFrameRecord()
		readErr <- reader.Read(rec, true)
	}()

	// Give the reader a chance to actually block on the master condvar
	// before tearing the segment down.
	time.Sleep(50 * time.Millisecond)

	require.NoError(t, owner.Destroy())

	select {
	case err := <-readErr:
		require.ErrorIs(t, err, frameshm.ErrBlockNotActive)
	case <-time.After(2 * time.Second):
		t.Fatal("Read never returned after Destroy tore down the segment")
	}
}

// Invariant 8: Publish rejects dimensions that don't match the segment's
// fixed geometry.
func Test_Invariant8_Publish_Rejects_Dimension_Mismatch(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	owner, err := frameshm.Create(frameshm.CreateOptions{Name: "cam", Width: 4, Height: 4, Depth: 1, Dir: dir})
	require.NoError(t, err)
	defer owner.Destroy()

	err = owner.Publish(4, 4, 2, 1, framePattern(1, 32))
	require.ErrorIs(t, err, frameshm.ErrFrameSizeMismatch)

	err = owner.Publish(4, 4, 1, 1, framePattern(1, 8))
	require.ErrorIs(t, err, frameshm.ErrFrameSizeMismatch)
}

// Publish against a torn-down segment fails instead of silently writing
// into freed/archived memory.
func Test_Publish_After_Destroy_Fails_With_ErrBlockNotActive(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	owner, err := frameshm.Create(frameshm.CreateOptions{Name: "cam", Width: 2, Height: 2, Depth: 1, Dir: dir})
	require.NoError(t, err)

	reader, err := frameshm.Open("cam", frameshm.WithDir(dir))
	require.NoError(t, err)
	defer reader.Close()

	require.NoError(t, owner.Destroy())

	err = reader.Publish(2, 2, 1, 1, framePattern(1, 4))
	require.ErrorIs(t, err, frameshm.ErrBlockNotActive)
}
