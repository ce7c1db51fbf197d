package apartment

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	comruntime "github.com/wippyai/com-runtime"
	"github.com/wippyai/com-runtime/errors"
	"github.com/wippyai/com-runtime/resource"
)

// Task is one unit of work run on an apartment thread.
type Task func() (any, error)

// Releaser is a pending release delivered to the release queue. Release
// runs on the apartment thread and must be idempotent.
type Releaser interface {
	Release()
}

// Config configures a Thread.
type Config struct {
	// Initializer prepares the locked OS thread before the first task and
	// tears it down after the last one.
	Initializer comruntime.Initializer
	Name        string
	// IdleTimeout, when positive, lets an idle thread exit.
	IdleTimeout time.Duration
}

type state int32

const (
	stateRunning state = iota
	stateClosing
	stateStopped
)

type call struct {
	fn   Task
	res  any
	err  error
	done chan struct{}
}

var callPool = sync.Pool{
	New: func() any {
		return &call{done: make(chan struct{}, 1)}
	},
}

// Thread is a single apartment worker.
type Thread struct {
	cfg      Config
	live     *resource.Table
	wake     chan struct{}
	done     chan struct{}
	retire   func(*Thread) bool
	tasks    []*call
	releases []Releaser
	lastUse  time.Time
	gid      atomic.Uint64
	executed atomic.Uint64
	released atomic.Uint64
	mu       sync.Mutex
	id       uuid.UUID
	state    state
	force    bool
}

// NewThread starts a worker and waits until it is ready. It fails if the
// configured Initializer fails.
func NewThread(cfg Config) (*Thread, error) {
	return newThread(cfg, nil)
}

func newThread(cfg Config, retire func(*Thread) bool) (*Thread, error) {
	t := &Thread{
		cfg:     cfg,
		id:      uuid.New(),
		live:    resource.NewTable(),
		wake:    make(chan struct{}, 1),
		done:    make(chan struct{}),
		retire:  retire,
		lastUse: time.Now(),
	}
	if t.cfg.Name == "" {
		t.cfg.Name = t.id.String()
	}
	onDrop := resource.ObserverFunc(func(e resource.Event) {
		if e.Type == resource.EventDropped {
			t.signal()
		}
	})
	t.live.Subscribe(&onDrop)

	ready := make(chan error, 1)
	go t.run(ready)
	if err := <-ready; err != nil {
		return nil, errors.New(errors.PhaseApartment, errors.KindExecution).
			Detail("initialize apartment %q", t.cfg.Name).
			Cause(err).
			Build()
	}
	return t, nil
}

// Name returns the apartment name.
func (t *Thread) Name() string {
	return t.cfg.Name
}

// ID returns the unique id of this worker instance.
func (t *Thread) ID() uuid.UUID {
	return t.id
}

// Done is closed when the worker has exited.
func (t *Thread) Done() <-chan struct{} {
	return t.done
}

// IsCurrent reports whether the caller runs on this thread's worker.
func (t *Thread) IsCurrent() bool {
	id := t.gid.Load()
	return id != 0 && id == goroutineID()
}

// CheckAccess fails with a wrong-apartment error unless the caller runs on
// this thread's worker.
func (t *Thread) CheckAccess() error {
	if !t.IsCurrent() {
		return errors.WrongApartment(t.cfg.Name)
	}
	return nil
}

// Submit runs fn on the worker and returns its result. Calls from the worker
// itself run inline. ctx is only consulted before the task is queued; once
// queued, Submit waits for the task to finish.
func (t *Thread) Submit(ctx context.Context, fn Task) (any, error) {
	if t.IsCurrent() {
		return t.execute(fn)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	c := callPool.Get().(*call)
	c.fn = fn

	t.mu.Lock()
	if t.state == stateStopped {
		t.mu.Unlock()
		c.fn = nil
		callPool.Put(c)
		return nil, errors.Closed(fmt.Sprintf("apartment %q", t.cfg.Name))
	}
	t.tasks = append(t.tasks, c)
	t.lastUse = time.Now()
	t.mu.Unlock()
	t.signal()

	<-c.done
	res, err := c.res, c.err
	c.fn, c.res, c.err = nil, nil, nil
	callPool.Put(c)
	return res, err
}

// EnqueueRelease queues r to be released on the worker. It never blocks
// and may be called from any goroutine, including cleanup callbacks. When
// the worker has already stopped, r is dropped: its handle was released
// when the thread shut down.
func (t *Thread) EnqueueRelease(r Releaser) {
	t.mu.Lock()
	if t.state == stateStopped {
		t.mu.Unlock()
		return
	}
	t.releases = append(t.releases, r)
	t.mu.Unlock()
	t.signal()
}

// Track adds v to the live set. It fails once the thread is closing.
func (t *Thread) Track(v Releaser) (resource.ID, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state != stateRunning {
		return 0, errors.Closed(fmt.Sprintf("apartment %q", t.cfg.Name))
	}
	t.lastUse = time.Now()
	return t.live.Insert(resource.KindObject, v)
}

// Untrack removes an entry from the live set.
func (t *Thread) Untrack(id resource.ID) {
	t.live.Remove(id)
}

// Live returns the number of tracked objects.
func (t *Thread) Live() int {
	return t.live.Len()
}

// Stats reports how many tasks and releases the worker has executed.
func (t *Thread) Stats() (tasks, releases uint64) {
	return t.executed.Load(), t.released.Load()
}

// Close stops tracking new objects and waits until every live object has
// been released. When ctx expires first, the remaining objects are
// released forcibly and an error reports how many there were.
func (t *Thread) Close(ctx context.Context) error {
	if t.IsCurrent() {
		return errors.New(errors.PhaseApartment, errors.KindInvalidInput).
			Detail("apartment %q cannot close itself", t.cfg.Name).
			Build()
	}

	t.mu.Lock()
	if t.state == stateRunning {
		t.state = stateClosing
	}
	t.mu.Unlock()
	t.signal()

	select {
	case <-t.done:
		return nil
	case <-ctx.Done():
	}

	left := t.live.Len()
	t.mu.Lock()
	t.force = true
	t.mu.Unlock()
	t.signal()
	<-t.done

	if left == 0 {
		return nil
	}
	return errors.New(errors.PhaseApartment, errors.KindClosed).
		Detail("apartment %q force-released %d live object(s)", t.cfg.Name, left).
		Cause(ctx.Err()).
		Build()
}

func (t *Thread) signal() {
	select {
	case t.wake <- struct{}{}:
	default:
	}
}

func (t *Thread) run(ready chan<- error) {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()
	defer close(t.done)

	t.gid.Store(goroutineID())
	defer t.gid.Store(0)

	if init := t.cfg.Initializer; init != nil {
		if err := init.InitializeThread(); err != nil {
			t.mu.Lock()
			t.state = stateStopped
			t.mu.Unlock()
			ready <- err
			return
		}
		defer init.UninitializeThread()
	}
	ready <- nil

	log := Logger().With(zap.String("apartment", t.cfg.Name))
	log.Debug("apartment started")

	var idle *time.Timer
	defer func() {
		if idle != nil {
			idle.Stop()
		}
	}()

	for {
		t.drainReleases()

		t.mu.Lock()
		if len(t.tasks) > 0 {
			c := t.tasks[0]
			t.tasks[0] = nil
			t.tasks = t.tasks[1:]
			t.mu.Unlock()

			c.res, c.err = t.execute(c.fn)
			c.done <- struct{}{}
			t.touch()
			continue
		}
		if len(t.releases) > 0 {
			t.mu.Unlock()
			continue
		}
		if t.state == stateClosing && (t.force || t.live.Len() == 0) {
			if t.live.Len() > 0 {
				t.mu.Unlock()
				t.forceRelease(log)
				t.mu.Lock()
			}
			t.stop()
			t.mu.Unlock()
			log.Debug("apartment closed")
			return
		}
		idleFor := time.Duration(0)
		if t.cfg.IdleTimeout > 0 && t.state == stateRunning && t.live.Len() == 0 {
			idleFor = t.cfg.IdleTimeout - time.Since(t.lastUse)
			if idleFor <= 0 {
				if t.retireLocked() {
					t.mu.Unlock()
					log.Debug("apartment exited after idle timeout")
					return
				}
				idleFor = t.cfg.IdleTimeout
			}
		}
		t.mu.Unlock()

		var idleC <-chan time.Time
		if idleFor > 0 {
			if idle == nil {
				idle = time.NewTimer(idleFor)
			} else {
				idle.Reset(idleFor)
			}
			idleC = idle.C
		}
		select {
		case <-t.wake:
		case <-idleC:
		}
		if idle != nil {
			idle.Stop()
		}
	}
}

// retireLocked stops an idle thread. The caller holds t.mu.
func (t *Thread) retireLocked() bool {
	if t.retire != nil {
		// The manager takes its own lock before t.mu.
		t.mu.Unlock()
		ok := t.retire(t)
		t.mu.Lock()
		return ok
	}
	if len(t.tasks) > 0 || len(t.releases) > 0 || t.live.Len() > 0 {
		return false
	}
	t.stop()
	return true
}

// tryRetire is called by the manager with its lock held.
func (t *Thread) tryRetire() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state != stateRunning || len(t.tasks) > 0 || len(t.releases) > 0 || t.live.Len() > 0 {
		return false
	}
	if time.Since(t.lastUse) < t.cfg.IdleTimeout {
		return false
	}
	t.stop()
	return true
}

// touch marks the thread as in use so an idle exit is postponed.
func (t *Thread) touch() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.lastUse = time.Now()
	return t.state == stateRunning
}

// stop marks the thread stopped and fails tasks that are still queued.
// The caller holds t.mu.
func (t *Thread) stop() {
	t.state = stateStopped
	for _, c := range t.tasks {
		c.err = errors.Closed(fmt.Sprintf("apartment %q", t.cfg.Name))
		c.done <- struct{}{}
	}
	t.tasks = nil
	t.releases = nil
	_ = t.live.Close()
}

func (t *Thread) drainReleases() {
	for {
		t.mu.Lock()
		pending := t.releases
		t.releases = nil
		t.mu.Unlock()
		if len(pending) == 0 {
			return
		}
		for _, r := range pending {
			t.releaseOne(r)
		}
		t.touch()
	}
}

func (t *Thread) releaseOne(r Releaser) {
	defer func() {
		if p := recover(); p != nil {
			Logger().Error("release panicked",
				zap.String("apartment", t.cfg.Name),
				zap.Any("panic", p))
		}
	}()
	r.Release()
	t.released.Add(1)
}

func (t *Thread) forceRelease(log *zap.Logger) {
	var pending []Releaser
	t.live.Each(func(_ resource.ID, _ resource.Kind, v any) bool {
		if r, ok := v.(Releaser); ok {
			pending = append(pending, r)
		}
		return true
	})
	for _, r := range pending {
		log.Warn("force-releasing live object on close")
		t.releaseOne(r)
	}
}

func (t *Thread) execute(fn Task) (res any, err error) {
	defer func() {
		if p := recover(); p != nil {
			res = nil
			err = errors.Execution(fmt.Errorf("panic: %v", p))
		}
	}()
	t.executed.Add(1)
	return fn()
}
