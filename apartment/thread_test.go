package apartment

import (
	"context"
	stderrors "errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wippyai/com-runtime/errors"
	"github.com/wippyai/com-runtime/resource"
)

func newTestThread(t *testing.T, cfg Config) *Thread {
	t.Helper()
	th, err := NewThread(cfg)
	require.NoError(t, err)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = th.Close(ctx)
	})
	return th
}

type countingReleaser struct {
	n      atomic.Int32
	th     *Thread
	id     resource.ID
	onCall func()
}

func (r *countingReleaser) Release() {
	if r.onCall != nil {
		r.onCall()
	}
	if r.n.Add(1) == 1 && r.th != nil {
		r.th.Untrack(r.id)
	}
}

func TestSubmit_RunsOnWorker(t *testing.T) {
	th := newTestThread(t, Config{Name: "sta"})
	assert.False(t, th.IsCurrent())
	assert.True(t, stderrors.Is(th.CheckAccess(), errors.ErrWrongApartment))

	res, err := th.Submit(context.Background(), func() (any, error) {
		if err := th.CheckAccess(); err != nil {
			return nil, err
		}
		return th.IsCurrent(), nil
	})
	require.NoError(t, err)
	assert.Equal(t, true, res)
}

func TestSubmit_Serialized(t *testing.T) {
	th := newTestThread(t, Config{})

	var inFlight, maxInFlight atomic.Int32
	var wg sync.WaitGroup
	for g := 0; g < 16; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				_, err := th.Submit(context.Background(), func() (any, error) {
					n := inFlight.Add(1)
					for {
						m := maxInFlight.Load()
						if n <= m || maxInFlight.CompareAndSwap(m, n) {
							break
						}
					}
					time.Sleep(time.Microsecond)
					inFlight.Add(-1)
					return nil, nil
				})
				assert.NoError(t, err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), maxInFlight.Load())
	tasks, _ := th.Stats()
	assert.Equal(t, uint64(16*50), tasks)
}

func TestSubmit_FIFO(t *testing.T) {
	th := newTestThread(t, Config{})

	gate := make(chan struct{})
	started := make(chan struct{})
	go func() {
		_, _ = th.Submit(context.Background(), func() (any, error) {
			close(started)
			<-gate
			return nil, nil
		})
	}()
	<-started

	var mu sync.Mutex
	var order []int
	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, _ = th.Submit(context.Background(), func() (any, error) {
				mu.Lock()
				order = append(order, i)
				mu.Unlock()
				return nil, nil
			})
		}(i)
		// wait until the task is queued before submitting the next one
		require.Eventually(t, func() bool {
			th.mu.Lock()
			defer th.mu.Unlock()
			return len(th.tasks) == i+1
		}, time.Second, time.Millisecond)
	}
	close(gate)
	wg.Wait()

	assert.Equal(t, []int{0, 1, 2, 3, 4}, order)
}

func TestSubmit_Reentrant(t *testing.T) {
	th := newTestThread(t, Config{})

	res, err := th.Submit(context.Background(), func() (any, error) {
		return th.Submit(context.Background(), func() (any, error) {
			return "inner", nil
		})
	})
	require.NoError(t, err)
	assert.Equal(t, "inner", res)
}

func TestSubmit_PanicBecomesExecutionError(t *testing.T) {
	th := newTestThread(t, Config{})

	_, err := th.Submit(context.Background(), func() (any, error) {
		panic("boom")
	})
	require.Error(t, err)
	assert.True(t, stderrors.Is(err, errors.ErrExecution))
	assert.Contains(t, err.Error(), "boom")

	// the worker survives
	res, err := th.Submit(context.Background(), func() (any, error) { return 1, nil })
	require.NoError(t, err)
	assert.Equal(t, 1, res)
}

func TestSubmit_ErrorPassesThrough(t *testing.T) {
	th := newTestThread(t, Config{})
	want := errors.ForeignCall("IFoo", "Bar", errors.HRESULT(errors.StatusFail))

	_, err := th.Submit(context.Background(), func() (any, error) { return nil, want })
	assert.Same(t, want, err)
}

func TestSubmit_CanceledBeforeQueue(t *testing.T) {
	th := newTestThread(t, Config{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	ran := false
	_, err := th.Submit(ctx, func() (any, error) {
		ran = true
		return nil, nil
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, ran)
}

func TestEnqueueRelease_DrainedBeforeNextTask(t *testing.T) {
	th := newTestThread(t, Config{})

	var onWorker atomic.Bool
	r := &countingReleaser{}
	r.onCall = func() { onWorker.Store(th.IsCurrent()) }
	th.EnqueueRelease(r)

	_, err := th.Submit(context.Background(), func() (any, error) {
		assert.Equal(t, int32(1), r.n.Load(), "release must run before the task")
		return nil, nil
	})
	require.NoError(t, err)
	assert.True(t, onWorker.Load())
	_, releases := th.Stats()
	assert.Equal(t, uint64(1), releases)
}

func TestClose_WaitsForLiveSet(t *testing.T) {
	th, err := NewThread(Config{Name: "closing"})
	require.NoError(t, err)

	r := &countingReleaser{th: th}
	r.id, err = th.Track(r)
	require.NoError(t, err)
	assert.Equal(t, 1, th.Live())

	closed := make(chan error, 1)
	go func() { closed <- th.Close(context.Background()) }()

	// closing rejects new objects but still runs tasks
	require.Eventually(t, func() bool {
		th.mu.Lock()
		defer th.mu.Unlock()
		return th.state == stateClosing
	}, time.Second, time.Millisecond)
	_, err = th.Track(&countingReleaser{})
	require.Error(t, err)
	_, err = th.Submit(context.Background(), func() (any, error) { return nil, nil })
	require.NoError(t, err)

	select {
	case <-closed:
		t.Fatal("Close returned with a live object")
	case <-time.After(20 * time.Millisecond):
	}

	th.EnqueueRelease(r)
	require.NoError(t, <-closed)
	assert.Equal(t, int32(1), r.n.Load())

	_, err = th.Submit(context.Background(), func() (any, error) { return nil, nil })
	assert.True(t, stderrors.Is(err, errors.ErrClosed))
}

func TestClose_ForceReleasesOnTimeout(t *testing.T) {
	th, err := NewThread(Config{})
	require.NoError(t, err)

	r := &countingReleaser{th: th}
	r.id, _ = th.Track(r)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	err = th.Close(ctx)
	require.Error(t, err)
	assert.True(t, stderrors.Is(err, errors.ErrClosed))
	assert.Equal(t, int32(1), r.n.Load())

	// late releases after stop are dropped
	th.EnqueueRelease(r)
	assert.Equal(t, int32(1), r.n.Load())
}

func TestClose_FromWorkerFails(t *testing.T) {
	th := newTestThread(t, Config{})
	_, err := th.Submit(context.Background(), func() (any, error) {
		return nil, th.Close(context.Background())
	})
	assert.Error(t, err)
}

type failingInit struct{}

func (failingInit) InitializeThread() error { return stderrors.New("no apartments today") }
func (failingInit) UninitializeThread()     {}

type recordingInit struct {
	init, uninit atomic.Int32
}

func (r *recordingInit) InitializeThread() error { r.init.Add(1); return nil }
func (r *recordingInit) UninitializeThread()     { r.uninit.Add(1) }

func TestThread_Initializer(t *testing.T) {
	_, err := NewThread(Config{Initializer: failingInit{}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no apartments today")

	rec := &recordingInit{}
	th, err := NewThread(Config{Initializer: rec})
	require.NoError(t, err)
	assert.Equal(t, int32(1), rec.init.Load())
	require.NoError(t, th.Close(context.Background()))
	assert.Equal(t, int32(1), rec.uninit.Load())
}

func TestThread_IdleExit(t *testing.T) {
	th, err := NewThread(Config{IdleTimeout: 20 * time.Millisecond})
	require.NoError(t, err)

	select {
	case <-th.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("idle thread did not exit")
	}
	_, err = th.Submit(context.Background(), func() (any, error) { return nil, nil })
	assert.True(t, stderrors.Is(err, errors.ErrClosed))
}

func TestThread_NoIdleExitWithLiveObjects(t *testing.T) {
	th := newTestThread(t, Config{IdleTimeout: 10 * time.Millisecond})
	r := &countingReleaser{th: th}
	r.id, _ = th.Track(r)

	select {
	case <-th.Done():
		t.Fatal("thread exited with a live object")
	case <-time.After(50 * time.Millisecond):
	}

	th.EnqueueRelease(r)
	select {
	case <-th.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("thread did not exit after its last object was released")
	}
}
