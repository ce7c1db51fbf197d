// Package lifecycle ties the release of a foreign handle to the lifetime of
// the Go value that owns it.
//
// Every owner gets exactly one Ref. The handle is released on the owning
// apartment thread either when the owner disposes it explicitly or, as a
// best-effort safety net, after the owner becomes unreachable and its
// cleanup delivers the Ref to the release queue. The released flag is only
// flipped on the apartment thread, so whichever path runs first wins and
// the other is a no-op.
package lifecycle

import (
	"runtime"
	"sync/atomic"

	comruntime "github.com/wippyai/com-runtime"
	"github.com/wippyai/com-runtime/apartment"
	"github.com/wippyai/com-runtime/resource"
)

// Ref tracks one foreign reference. It must not point back at its owner,
// otherwise the owner can never become unreachable.
type Ref struct {
	free     func(comruntime.Handle)
	thread   *apartment.Thread
	cleanup  runtime.Cleanup
	handle   comruntime.Handle
	id       resource.ID
	released atomic.Bool
}

// Track registers owner's reference to h with th's live set and arranges
// for h to be released if owner is collected without being disposed. The
// caller must already hold the reference.
func Track[T any](owner *T, th *apartment.Thread, prim comruntime.Primitive, h comruntime.Handle) (*Ref, error) {
	return TrackFunc(owner, th, h, prim.Release)
}

// TrackFunc is Track with a custom release. free runs at most once, on th,
// and must not refer to owner.
func TrackFunc[T any](owner *T, th *apartment.Thread, h comruntime.Handle, free func(comruntime.Handle)) (*Ref, error) {
	r := &Ref{free: free, thread: th, handle: h}
	id, err := th.Track(r)
	if err != nil {
		return nil, err
	}
	r.id = id
	r.cleanup = runtime.AddCleanup(owner, enqueue, r)
	return r, nil
}

func enqueue(r *Ref) {
	r.thread.EnqueueRelease(r)
}

// Handle returns the tracked handle.
func (r *Ref) Handle() comruntime.Handle {
	return r.handle
}

// Thread returns the apartment that owns the handle.
func (r *Ref) Thread() *apartment.Thread {
	return r.thread
}

// Released reports whether the handle has been released.
func (r *Ref) Released() bool {
	return r.released.Load()
}

// Release releases the handle once. It must run on the owning apartment
// thread; later calls are no-ops.
func (r *Ref) Release() {
	if !r.released.CompareAndSwap(false, true) {
		return
	}
	r.free(r.handle)
	r.thread.Untrack(r.id)
}

// Stop cancels the cleanup registration after an explicit release.
func (r *Ref) Stop() {
	r.cleanup.Stop()
}
