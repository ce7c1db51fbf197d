package proxy

import (
	"context"
	stderrors "errors"

	"go.uber.org/zap"

	comruntime "github.com/wippyai/com-runtime"
	"github.com/wippyai/com-runtime/descriptor"
	"github.com/wippyai/com-runtime/errors"
	"github.com/wippyai/com-runtime/event"
	"github.com/wippyai/com-runtime/internal/invoke"
	"github.com/wippyai/com-runtime/lifecycle"
	"github.com/wippyai/com-runtime/resource"
)

// connection is an advised connection point. free undoes the advise and
// runs on the apartment thread, either from Subscription.Close or after the
// subscription becomes unreachable.
type connection struct {
	prim   comruntime.Primitive
	events *event.Dispatcher
	err    error
	point  comruntime.Handle
	cookie comruntime.Handle
	sink   resource.ID
}

func (c *connection) free(point comruntime.Handle) {
	if err := c.prim.Unadvise(c.cookie); err != nil {
		c.err = errors.ForeignCall(descriptor.ConnectionPoint, "Unadvise", err)
		Logger().Warn("unadvise failed",
			zap.Uint64("cookie", uint64(c.cookie)),
			zap.Error(err))
	}
	c.prim.Release(point)
	c.events.Remove(c.sink)
}

// Advise connects listener to the object's events of the interface named
// eventIface. The listener's methods are matched to the events by name.
func (o *Object) Advise(ctx context.Context, eventIface string, listener any) (*event.Subscription, error) {
	if o.disposed.Load() {
		return nil, errors.Disposed(o.String())
	}
	if o.env.Events == nil {
		return nil, errors.InvalidInput(errors.PhaseDispatch, "events are not enabled")
	}
	iface, err := o.env.Registry.Lookup(eventIface)
	if err != nil {
		return nil, err
	}
	container, err := o.env.Registry.Lookup(descriptor.ConnectionPointContainer)
	if err != nil {
		return nil, err
	}
	ord, _ := container.Method("FindConnectionPoint")
	find, err := o.cache.Get(container, ord)
	if err != nil {
		return nil, err
	}

	sink, err := o.env.Events.NewSink(iface, listener)
	if err != nil {
		return nil, err
	}

	prim := o.env.Prim
	res, err := o.thread.Submit(ctx, func() (any, error) {
		if o.ref.Released() {
			return nil, errors.Disposed(o.String())
		}
		cpc, err := prim.QueryInterface(o.handle, comruntime.IIDConnectionPointContainer)
		if err == nil && cpc == 0 {
			err = errors.HRESULT(errors.StatusNoInterface)
		}
		if err != nil {
			return nil, errors.ForeignCall(o.iface.Name, "Advise", err)
		}
		defer prim.Release(cpc)

		out, err := invoke.Call(o.invokeEnv(), cpc, find, []any{iface.IID})
		if err != nil {
			return nil, err
		}
		cp, _ := out.(*invoke.Object)
		if cp == nil {
			return nil, errors.ForeignCall(descriptor.ConnectionPointContainer, "FindConnectionPoint",
				errors.HRESULT(errors.StatusNoInterface))
		}
		cookie, err := prim.Advise(cp.Handle, sink, iface.IID)
		if err != nil {
			prim.Release(cp.Handle)
			return nil, errors.ForeignCall(descriptor.ConnectionPoint, "Advise", err)
		}
		return &connection{prim: prim, events: o.env.Events, point: cp.Handle, cookie: cookie, sink: sink.ID()}, nil
	})
	if err != nil {
		o.env.Events.Remove(sink.ID())
		return nil, err
	}
	conn := res.(*connection)

	var ref *lifecycle.Ref
	th := o.thread
	sub := event.NewSubscription(sink, func() error {
		_, err := th.Submit(context.Background(), func() (any, error) {
			if ref.Released() {
				return nil, nil
			}
			ref.Release()
			return nil, conn.err
		})
		ref.Stop()
		if stderrors.Is(err, errors.ErrClosed) {
			// the apartment undid the advise when it stopped
			conn.events.Remove(conn.sink)
			return nil
		}
		return err
	})

	// tracked like any proxy so a closing apartment or a dropped
	// subscription disconnects the sink
	ref, err = lifecycle.TrackFunc(sub, th, conn.point, conn.free)
	if err != nil {
		_, _ = th.Submit(context.Background(), func() (any, error) {
			conn.free(conn.point)
			return nil, nil
		})
		conn.events.Remove(conn.sink)
		return nil, err
	}
	Logger().Debug("advised",
		zap.Stringer("object", o),
		zap.String("events", iface.Name),
		zap.Stringer("subscription", sub.ID()))
	return sub, nil
}
