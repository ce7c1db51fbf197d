// Package proxy implements the client-side object proxy.
//
// An Object owns one reference to a foreign object and is bound to the
// apartment thread that created it. Every call is marshaled to that thread
// and blocks until it completes. Objects are safe for concurrent use.
package proxy

import (
	"context"
	stderrors "errors"
	"fmt"
	"sync/atomic"

	"go.uber.org/zap"

	comruntime "github.com/wippyai/com-runtime"
	"github.com/wippyai/com-runtime/apartment"
	"github.com/wippyai/com-runtime/descriptor"
	"github.com/wippyai/com-runtime/errors"
	"github.com/wippyai/com-runtime/event"
	"github.com/wippyai/com-runtime/internal/invoke"
	"github.com/wippyai/com-runtime/lifecycle"
)

// Env is shared by every proxy of one runtime.
type Env struct {
	Prim     comruntime.Primitive
	Registry *descriptor.Registry
	// Events receives sinks created by Advise. Advise fails when nil.
	Events *event.Dispatcher
}

// call is the reusable in-flight slot of an Object.
type call struct {
	d    *descriptor.Descriptor
	args []any
	run  apartment.Task
}

// Object is a proxy for one foreign object.
type Object struct {
	env      *Env
	iface    *descriptor.Interface
	thread   *apartment.Thread
	ref      *lifecycle.Ref
	cache    *descriptor.Cache
	slot     atomic.Pointer[call]
	name     atomic.Pointer[string]
	identity atomic.Uintptr
	handle   comruntime.Handle
	disposed atomic.Bool
}

// New wraps h as an object of iface owned by th. The proxy takes over one
// reference on h; when New fails the caller still owns it.
func New(env *Env, th *apartment.Thread, h comruntime.Handle, iface *descriptor.Interface) (*Object, error) {
	if h == 0 {
		return nil, errors.InvalidInput(errors.PhaseLifecycle, "cannot wrap a null handle")
	}
	if iface == nil {
		i, err := env.Registry.Lookup(descriptor.Unknown)
		if err != nil {
			return nil, err
		}
		iface = i
	}
	o := &Object{
		env:    env,
		iface:  iface,
		thread: th,
		cache:  descriptor.NewCache(env.Registry),
		handle: h,
	}
	ref, err := lifecycle.Track(o, th, env.Prim, h)
	if err != nil {
		return nil, err
	}
	o.ref = ref
	return o, nil
}

// Interface returns the interface the proxy was created for.
func (o *Object) Interface() *descriptor.Interface {
	return o.iface
}

// Thread returns the owning apartment.
func (o *Object) Thread() *apartment.Thread {
	return o.thread
}

// NativeHandle returns the wrapped handle so the proxy can be passed as an
// object argument.
func (o *Object) NativeHandle() comruntime.Handle {
	return o.handle
}

// SetName sets the name used by String.
func (o *Object) SetName(name string) {
	o.name.Store(&name)
}

func (o *Object) String() string {
	if n := o.name.Load(); n != nil {
		return *n
	}
	return fmt.Sprintf("%s@%#x", o.iface.Name, uintptr(o.handle))
}

// IsDisposed reports whether Dispose has been called.
func (o *Object) IsDisposed() bool {
	return o.disposed.Load()
}

// Call invokes method with args on the owning apartment and returns the
// converted result. Object results are returned as new proxies on the same
// apartment.
func (o *Object) Call(ctx context.Context, method string, args ...any) (any, error) {
	if o.disposed.Load() {
		return nil, errors.Disposed(o.String())
	}
	decl, ord, err := o.env.Registry.FindMethod(o.iface, method)
	if err != nil {
		return nil, err
	}
	d, err := o.cache.Get(decl, ord)
	if err != nil {
		return nil, err
	}

	c := o.slot.Swap(nil)
	if c == nil {
		c = &call{}
		c.run = func() (any, error) { return o.invoke(c.d, c.args) }
	}
	c.d, c.args = d, args
	res, err := o.thread.Submit(ctx, c.run)
	c.d, c.args = nil, nil
	o.slot.CompareAndSwap(nil, c)
	return res, err
}

func (o *Object) invokeEnv() invoke.Env {
	return invoke.Env{
		Prim:   o.env.Prim,
		Table:  o.env.Registry.Table(),
		Thread: o.thread,
	}
}

func (o *Object) invoke(d *descriptor.Descriptor, args []any) (any, error) {
	if o.ref.Released() {
		return nil, errors.Disposed(o.String())
	}
	res, err := invoke.Call(o.invokeEnv(), o.handle, d, args)
	if err != nil {
		return nil, err
	}
	if obj, ok := res.(*invoke.Object); ok {
		return o.adopt(obj.Handle, obj.Interface)
	}
	return res, nil
}

// adopt wraps an owned handle into a proxy on o's apartment. It runs on the
// apartment thread and releases h when wrapping fails.
func (o *Object) adopt(h comruntime.Handle, iface *descriptor.Interface) (*Object, error) {
	p, err := New(o.env, o.thread, h, iface)
	if err != nil {
		o.env.Prim.Release(h)
		Logger().Warn("wrap object result failed",
			zap.Stringer("object", o),
			zap.Error(err))
		return nil, err
	}
	return p, nil
}

// Dispose releases the foreign reference. It is idempotent and returns once
// the release has run on the apartment. Calls already submitted still
// complete; later calls fail with a disposed error.
func (o *Object) Dispose() error {
	if !o.disposed.CompareAndSwap(false, true) {
		return nil
	}
	_, err := o.thread.Submit(context.Background(), func() (any, error) {
		o.ref.Release()
		return nil, nil
	})
	o.ref.Stop()
	o.cache.Invalidate()
	if stderrors.Is(err, errors.ErrClosed) {
		// the apartment released its live set when it stopped
		return nil
	}
	return err
}

// Is reports whether the object implements the interface named name. It
// never fails: any error, including a disposed proxy, reports false.
func (o *Object) Is(name string) bool {
	iface, err := o.env.Registry.Lookup(name)
	if err != nil {
		return false
	}
	return o.Supports(iface.IID)
}

// Supports reports whether the object implements iid. Like Is it never
// fails.
func (o *Object) Supports(iid comruntime.IID) bool {
	if o.disposed.Load() {
		return false
	}
	res, err := o.thread.Submit(context.Background(), func() (any, error) {
		if o.ref.Released() {
			return false, nil
		}
		h, err := o.env.Prim.QueryInterface(o.handle, iid)
		if err != nil || h == 0 {
			return false, nil
		}
		o.env.Prim.Release(h)
		return true, nil
	})
	ok, _ := res.(bool)
	return err == nil && ok
}

// QueryInterface returns a new proxy for the interface named name, or nil
// when the object does not implement it.
func (o *Object) QueryInterface(ctx context.Context, name string) (*Object, error) {
	if o.disposed.Load() {
		return nil, errors.Disposed(o.String())
	}
	iface, err := o.env.Registry.Lookup(name)
	if err != nil {
		return nil, err
	}
	res, err := o.thread.Submit(ctx, func() (any, error) {
		if o.ref.Released() {
			return nil, errors.Disposed(o.String())
		}
		h, err := o.env.Prim.QueryInterface(o.handle, iface.IID)
		if err != nil {
			return nil, errors.ForeignCall(o.iface.Name, "QueryInterface", err)
		}
		if h == 0 {
			return nil, nil
		}
		return o.adopt(h, iface)
	})
	if err != nil || res == nil {
		return nil, err
	}
	p, _ := res.(*Object)
	return p, nil
}

// Identity returns the object's root interface handle, which is the same
// for every proxy of one foreign object. It is computed once.
func (o *Object) Identity(ctx context.Context) (comruntime.Handle, error) {
	if id := o.identity.Load(); id != 0 {
		return comruntime.Handle(id), nil
	}
	if o.disposed.Load() {
		return 0, errors.Disposed(o.String())
	}
	res, err := o.thread.Submit(ctx, func() (any, error) {
		if o.ref.Released() {
			return nil, errors.Disposed(o.String())
		}
		h, err := o.env.Prim.QueryInterface(o.handle, comruntime.IIDUnknown)
		if err != nil {
			return nil, errors.ForeignCall(o.iface.Name, "QueryInterface", err)
		}
		if h == 0 {
			return nil, errors.ForeignCall(o.iface.Name, "QueryInterface", errors.HRESULT(errors.StatusNoInterface))
		}
		o.env.Prim.Release(h)
		return h, nil
	})
	if err != nil {
		return 0, err
	}
	h := res.(comruntime.Handle)
	o.identity.CompareAndSwap(0, uintptr(h))
	return comruntime.Handle(o.identity.Load()), nil
}

// Equal reports whether o and other wrap the same foreign object.
func (o *Object) Equal(other *Object) bool {
	if o == other {
		return true
	}
	if o == nil || other == nil {
		return false
	}
	a, err := o.Identity(context.Background())
	if err != nil {
		return false
	}
	b, err := other.Identity(context.Background())
	if err != nil {
		return false
	}
	return a == b
}
