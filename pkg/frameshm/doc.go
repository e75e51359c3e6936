// Package frameshm provides a single-producer, multiple-consumer
// shared-memory ring buffer for fixed-size image frames.
//
// One process creates a named segment sized for a fixed width, height and
// pixel depth. It publishes frames into the segment; any number of other
// processes open the segment by name and read frames out of it without a
// kernel pipe copy. Slow readers drop frames rather than block the
// producer.
//
// # Basic Usage
//
//	h, err := frameshm.Create(frameshm.CreateOptions{
//	    Name: "cam0", Width: 1920, Height: 1080, Depth: 3,
//	})
//	if err != nil {
//	    // handle error
//	}
//	defer h.Destroy()
//
//	err = h.Publish(1920, 1080, 3, acquisitionTimeNs, pixels)
//
// A consumer in another process:
//
//	h, err := frameshm.Open("cam0")
//	if err != nil {
//	    // handle error
//	}
//	defer h.Close()
//
//	rec := frameshm.NewFrameRecord()
//	err = h.Read(rec, true) // blocks for the next new frame
//
// # Concurrency
//
// frameshm uses a single-writer, multi-reader model:
//   - Publish does not check which handle it is called on; any handle,
//     owning or not, can publish. Concurrent Publish calls from more than
//     one handle are not serialized against each other.
//   - Read is safe to call concurrently from any number of handles, in any
//     number of processes.
//   - A FrameRecord is not safe for concurrent use by more than one caller.
//
// # Error Handling
//
// [ErrFrameSizeMismatch] and [ErrInvalidName] indicate a precondition
// violation by the caller; nothing is mutated. [ErrBlockNotActive] means
// the segment has been torn down. [ErrNoNewFrame] is normal control flow
// for a non-blocking Read with nothing new to report. Use [Handle.IsPoisoned]
// to detect an owner that exited without calling Destroy.
package frameshm
