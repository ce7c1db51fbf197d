package lifecycle

import (
	"context"
	"runtime"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	comruntime "github.com/wippyai/com-runtime"
	"github.com/wippyai/com-runtime/apartment"
	"github.com/wippyai/com-runtime/errors"
)

// releaseCounter is a minimal primitive that only counts releases.
type releaseCounter struct {
	mu       sync.Mutex
	released map[comruntime.Handle]int
	offApt   int
	th       *apartment.Thread
}

func (p *releaseCounter) Release(h comruntime.Handle) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.released == nil {
		p.released = map[comruntime.Handle]int{}
	}
	p.released[h]++
	if p.th != nil && !p.th.IsCurrent() {
		p.offApt++
	}
}

func (p *releaseCounter) count(h comruntime.Handle) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.released[h]
}

func (p *releaseCounter) Invoke(comruntime.Handle, int, []any, []comruntime.Code, int, bool, comruntime.Code) (any, error) {
	return nil, nil
}

func (p *releaseCounter) Dispatch(comruntime.Handle, int32, comruntime.InvokeKind, []any, []comruntime.Code, comruntime.Code) (any, error) {
	return nil, nil
}

func (p *releaseCounter) QueryInterface(comruntime.Handle, comruntime.IID) (comruntime.Handle, error) {
	return 0, nil
}

func (p *releaseCounter) AddRef(comruntime.Handle) {}

func (p *releaseCounter) ExtendedError(comruntime.Handle, comruntime.IID) (*errors.ErrorInfo, error) {
	return nil, nil
}

func (p *releaseCounter) Advise(comruntime.Handle, comruntime.Sink, comruntime.IID) (comruntime.Handle, error) {
	return 0, nil
}

func (p *releaseCounter) Unadvise(comruntime.Handle) error { return nil }

type owner struct {
	ref *Ref
	pad [64]byte
}

func setup(t *testing.T) (*apartment.Thread, *releaseCounter) {
	t.Helper()
	th, err := apartment.NewThread(apartment.Config{Name: "lifecycle"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = th.Close(context.Background()) })
	return th, &releaseCounter{th: th}
}

func TestRef_ExplicitReleaseOnce(t *testing.T) {
	th, prim := setup(t)
	o := &owner{}
	ref, err := Track(o, th, prim, 0x10)
	require.NoError(t, err)
	o.ref = ref
	assert.Equal(t, 1, th.Live())

	for i := 0; i < 5; i++ {
		_, err := th.Submit(context.Background(), func() (any, error) {
			ref.Release()
			return nil, nil
		})
		require.NoError(t, err)
	}
	ref.Stop()

	assert.True(t, ref.Released())
	assert.Equal(t, 1, prim.count(0x10))
	assert.Equal(t, 0, prim.offApt)
	assert.Equal(t, 0, th.Live())
	runtime.KeepAlive(o)
}

func TestRef_ReleasedWhenUnreachable(t *testing.T) {
	th, prim := setup(t)

	func() {
		o := &owner{}
		_, err := Track(o, th, prim, 0x20)
		require.NoError(t, err)
	}()

	require.Eventually(t, func() bool {
		runtime.GC()
		return prim.count(0x20) == 1
	}, 5*time.Second, 10*time.Millisecond)

	// nothing fires twice
	runtime.GC()
	time.Sleep(10 * time.Millisecond)
	assert.Equal(t, 1, prim.count(0x20))
	assert.Equal(t, 0, th.Live())
	assert.Equal(t, 0, prim.offApt)
}

func TestRef_ExplicitThenCollected(t *testing.T) {
	th, prim := setup(t)

	func() {
		o := &owner{}
		ref, err := Track(o, th, prim, 0x30)
		require.NoError(t, err)
		_, err = th.Submit(context.Background(), func() (any, error) {
			ref.Release()
			return nil, nil
		})
		require.NoError(t, err)
		// Stop is deliberately skipped: the flag alone must prevent a second release
	}()

	for i := 0; i < 5; i++ {
		runtime.GC()
		_, _ = th.Submit(context.Background(), func() (any, error) { return nil, nil })
	}
	assert.Equal(t, 1, prim.count(0x30))
}

func TestTrack_ClosedThread(t *testing.T) {
	th, prim := setup(t)
	require.NoError(t, th.Close(context.Background()))

	_, err := Track(&owner{}, th, prim, 0x40)
	assert.Error(t, err)
}

func TestTrackFunc_CollectedRunsCustomRelease(t *testing.T) {
	th, prim := setup(t)
	var (
		mu    sync.Mutex
		freed []comruntime.Handle
		onApt = true
	)

	func() {
		_, err := TrackFunc(&owner{}, th, 0x50, func(h comruntime.Handle) {
			mu.Lock()
			defer mu.Unlock()
			freed = append(freed, h)
			onApt = onApt && th.IsCurrent()
		})
		require.NoError(t, err)
	}()

	require.Eventually(t, func() bool {
		runtime.GC()
		_, _ = th.Submit(context.Background(), func() (any, error) { return nil, nil })
		mu.Lock()
		defer mu.Unlock()
		return len(freed) == 1
	}, 5*time.Second, 10*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []comruntime.Handle{0x50}, freed)
	assert.True(t, onApt)
	assert.Equal(t, 0, prim.count(0x50), "the primitive release is replaced")
	assert.Equal(t, 0, th.Live())
}
