// Package apartment runs foreign calls on dedicated, OS-thread-locked
// workers.
//
// A Thread owns a FIFO task queue and a release queue. Submit blocks until
// the task has run on the worker; at most one task runs at a time, so every
// foreign handle bound to the thread is only ever touched by that worker.
// A Submit from the worker itself runs inline, which lets event callbacks
// call back into objects of the same apartment.
//
// Releases are queued without blocking (they usually come from cleanup
// callbacks) and are drained before every task and before the worker may
// go idle.
//
// # Lifetime
//
// Objects bound to a thread are tracked in its live set. A thread with an
// IdleTimeout exits once it has had no live objects, tasks or releases for
// that long, and its Manager recreates it on the next Get. Close stops new
// objects from being tracked, waits for the live set to drain and
// force-releases whatever remains when the context expires.
package apartment
