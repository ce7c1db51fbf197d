package testbed_test

import (
	"context"
	"runtime"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	comruntime "github.com/wippyai/com-runtime"
	"github.com/wippyai/com-runtime/descriptor"
	"github.com/wippyai/com-runtime/errors"
	"github.com/wippyai/com-runtime/proxy"
	comrt "github.com/wippyai/com-runtime/runtime"
	"github.com/wippyai/com-runtime/testbed"
)

const decls = `
interfaces:
  - name: IApplication
    parent: IDispatch
    iid: 9a1c0f3e-6d2b-4e8a-b7c1-2f5e9d0a6b01
    methods:
      - name: Caption
        vtid: 7
        return: {code: string, index: 0}
      - name: Books
        vtid: 8
        return: {code: object, index: 0, interface: IBooks}
      - name: Book
        vtid: 8
        default_chain: [IBooks]
  - name: IBooks
    parent: IDispatch
    iid: 9a1c0f3e-6d2b-4e8a-b7c1-2f5e9d0a6b02
    methods:
      - name: Item
        vtid: 7
        default: true
        params: [int32]
        return: {code: string, index: 1}
      - name: Count
        dispid: 2
        invoke: propget
        return: {code: int32}
  - name: DAppEvents
    parent: IDispatch
    iid: 9a1c0f3e-6d2b-4e8a-b7c1-2f5e9d0a6b03
    methods:
      - name: Quit
        dispid: 1
`

var iidEvents = uuid.MustParse("9a1c0f3e-6d2b-4e8a-b7c1-2f5e9d0a6b03")

type env struct {
	rt    *comrt.Runtime
	world *testbed.World
}

func setup(t *testing.T, cfg comrt.Config) *env {
	t.Helper()
	ifaces, err := descriptor.LoadYAML(strings.NewReader(decls))
	require.NoError(t, err)

	world := testbed.NewWorld()
	if cfg.Apartment.ShutdownTimeout == 0 {
		cfg.Apartment.ShutdownTimeout = 200 * time.Millisecond
	}
	rt, err := comrt.New(world, cfg)
	require.NoError(t, err)
	require.NoError(t, rt.Register(ifaces...))
	require.NoError(t, rt.Registry().Validate())
	t.Cleanup(func() { _ = rt.Close(context.Background()) })
	return &env{rt: rt, world: world}
}

// books returns a collection whose Item(n) yields "book-n".
func (e *env) books() *testbed.Object {
	return e.world.NewObject("books").
		On(7, func(c *testbed.Call) (any, error) {
			n := c.Args[0].(int32)
			return "book-" + string(rune('0'+n)), nil
		}).
		OnDispatch(2, func(*testbed.Call) (any, error) { return int32(3), nil })
}

func (e *env) app(books *testbed.Object) *testbed.Object {
	return e.world.NewObject("app").
		On(7, func(*testbed.Call) (any, error) { return "Calc", nil }).
		On(8, func(*testbed.Call) (any, error) {
			e.world.AddRef(books.Handle)
			return books.Handle, nil
		})
}

func TestEndToEndCalls(t *testing.T) {
	e := setup(t, comrt.Config{})
	th, err := e.rt.Apartment("")
	require.NoError(t, err)
	e.world.SetAffinity(th.IsCurrent)

	books := e.books()
	app, err := e.rt.Wrap("", e.app(books).Handle, "IApplication")
	require.NoError(t, err)

	caption, err := app.Call(context.Background(), "Caption")
	require.NoError(t, err)
	assert.Equal(t, "Calc", caption)

	res, err := app.Call(context.Background(), "Books")
	require.NoError(t, err)
	coll := res.(*proxy.Object)
	count, err := coll.Call(context.Background(), "Count")
	require.NoError(t, err)
	assert.Equal(t, int32(3), count)
	require.NoError(t, coll.Dispose())

	require.NoError(t, app.Dispose())
	assert.Empty(t, e.world.Violations())
}

func TestDefaultChainReleasesIntermediates(t *testing.T) {
	e := setup(t, comrt.Config{})
	books := e.books()
	app, err := e.rt.Wrap("", e.app(books).Handle, "IApplication")
	require.NoError(t, err)
	defer app.Dispose()

	for n := 1; n <= 3; n++ {
		res, err := app.Call(context.Background(), "Book", n)
		require.NoError(t, err)
		assert.Equal(t, "book-"+string(rune('0'+n)), res)
	}
	assert.Equal(t, 1, books.Refs(), "each hop reference is released")
	assert.Equal(t, 3, books.Released())
}

func TestCallsAcrossProxiesAreSerialized(t *testing.T) {
	e := setup(t, comrt.Config{})
	var objs []*proxy.Object
	for range 4 {
		obj := e.world.NewObject("app").On(7, func(*testbed.Call) (any, error) {
			time.Sleep(50 * time.Microsecond)
			return "x", nil
		})
		p, err := e.rt.Wrap("", obj.Handle, "IApplication")
		require.NoError(t, err)
		objs = append(objs, p)
	}

	var wg sync.WaitGroup
	for _, p := range objs {
		for range 3 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for range 20 {
					_, err := p.Call(context.Background(), "Caption")
					assert.NoError(t, err)
				}
			}()
		}
	}
	wg.Wait()
	assert.Equal(t, 1, e.world.MaxInFlight())

	for _, p := range objs {
		require.NoError(t, p.Dispose())
	}
	assert.Empty(t, e.world.Leaked())
}

func TestDisposeAndCollectReleaseOnce(t *testing.T) {
	e := setup(t, comrt.Config{})
	disposed := e.world.NewObject("disposed")
	collected := e.world.NewObject("collected")

	p, err := e.rt.Wrap("", disposed.Handle, "IApplication")
	require.NoError(t, err)
	require.NoError(t, p.Dispose())
	require.NoError(t, p.Dispose())

	func() {
		_, err := e.rt.Wrap("", collected.Handle, "IApplication")
		require.NoError(t, err)
	}()
	assert.Eventually(t, func() bool {
		runtime.GC()
		return collected.Released() == 1
	}, 5*time.Second, 10*time.Millisecond)

	runtime.GC()
	assert.Equal(t, 1, disposed.Released())
	assert.Equal(t, 1, collected.Released())
	assert.Empty(t, e.world.Violations())

	_, err = p.Call(context.Background(), "Caption")
	assert.ErrorIs(t, err, errors.ErrDisposed)
}

func TestIsNeverFails(t *testing.T) {
	e := setup(t, comrt.Config{})
	obj := e.world.NewObject("app", uuid.MustParse("9a1c0f3e-6d2b-4e8a-b7c1-2f5e9d0a6b01"))
	p, err := e.rt.Wrap("", obj.Handle, "IApplication")
	require.NoError(t, err)

	assert.True(t, p.Is("IApplication"))
	assert.False(t, p.Is("IBooks"))
	assert.False(t, p.Is("no such interface"))
	require.NoError(t, p.Dispose())
	assert.False(t, p.Is("IApplication"))
	assert.NotPanics(t, func() { p.Supports(comruntime.IIDDispatch) })
}

type quitListener struct{ quits int }

func (l *quitListener) Quit() { l.quits++ }

func TestEventsUnknownDispID(t *testing.T) {
	e := setup(t, comrt.Config{})
	obj := e.world.NewObject("app")
	cp := obj.ConnectionPoint(iidEvents)
	p, err := e.rt.Wrap("", obj.Handle, "IApplication")
	require.NoError(t, err)
	defer p.Dispose()

	l := &quitListener{}
	sub, err := p.Advise(context.Background(), "DAppEvents", l)
	require.NoError(t, err)

	require.NoError(t, cp.Fire(1))
	err = cp.Fire(99)
	assert.ErrorIs(t, err, errors.ErrUnknownMember)
	assert.Equal(t, 1, l.quits)

	require.NoError(t, sub.Close())
	assert.Equal(t, 0, cp.Sinks())
}

func TestIdleApartmentIsRecreated(t *testing.T) {
	e := setup(t, comrt.Config{Apartment: comrt.ApartmentConfig{IdleTimeout: 20 * time.Millisecond}})
	obj := e.world.NewObject("app")
	p, err := e.rt.Wrap("idle", obj.Handle, "IApplication")
	require.NoError(t, err)
	first := p.Thread()

	require.NoError(t, p.Dispose())
	select {
	case <-first.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("idle apartment did not exit")
	}

	second, err := e.rt.Apartment("idle")
	require.NoError(t, err)
	assert.NotEqual(t, first.ID(), second.ID())
	assert.Equal(t, 1, obj.Released())
}

func TestCloseReleasesLiveObjects(t *testing.T) {
	e := setup(t, comrt.Config{})
	obj := e.world.NewObject("app")
	p, err := e.rt.Wrap("", obj.Handle, "IApplication")
	require.NoError(t, err)

	err = e.rt.Close(context.Background())
	assert.Error(t, err)
	assert.Equal(t, 0, obj.Refs())
	assert.NoError(t, p.Dispose(), "dispose after shutdown is a no-op")
	assert.Equal(t, 1, obj.Released())
}
