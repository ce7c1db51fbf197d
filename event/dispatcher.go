package event

import (
	"fmt"
	"reflect"
	"sync"

	"go.uber.org/zap"

	comruntime "github.com/wippyai/com-runtime"
	"github.com/wippyai/com-runtime/descriptor"
	"github.com/wippyai/com-runtime/errors"
	"github.com/wippyai/com-runtime/resource"
)

var handleType = reflect.TypeFor[comruntime.Handle]()

// ObjectWrapper turns an object handle received as an event argument into
// the value a listener expects, typically a proxy. The wrapper receives
// the handle borrowed; it must AddRef if it keeps it.
type ObjectWrapper func(h comruntime.Handle, target reflect.Type) (any, error)

type descKey struct {
	t     reflect.Type
	iface string
}

// Dispatcher owns the live sinks of a runtime and routes callbacks to them
// by sink id.
type Dispatcher struct {
	reg   *descriptor.Registry
	sinks *resource.Table
	descs map[descKey]*SinkDescriptor
	wrap  ObjectWrapper
	mu    sync.RWMutex
}

// NewDispatcher creates a dispatcher resolving event interfaces in reg.
func NewDispatcher(reg *descriptor.Registry) *Dispatcher {
	return &Dispatcher{
		reg:   reg,
		sinks: resource.NewTable(),
		descs: make(map[descKey]*SinkDescriptor),
	}
}

// SetObjectWrapper installs the conversion used for object arguments whose
// listener parameter is not a bare handle.
func (d *Dispatcher) SetObjectWrapper(fn ObjectWrapper) {
	d.mu.Lock()
	d.wrap = fn
	d.mu.Unlock()
}

// Describe returns the cached sink descriptor for listener type t on
// iface, building it on first use.
func (d *Dispatcher) Describe(t reflect.Type, iface *descriptor.Interface) (*SinkDescriptor, error) {
	key := descKey{t: t, iface: iface.Name}

	d.mu.RLock()
	sd, ok := d.descs[key]
	d.mu.RUnlock()
	if ok {
		return sd, nil
	}

	sd, err := describe(d.reg, t, iface)
	if err != nil {
		return nil, err
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if existing, ok := d.descs[key]; ok {
		return existing, nil
	}
	d.descs[key] = sd
	return sd, nil
}

// NewSink registers listener as a sink for iface. The sink stays live
// until Remove.
func (d *Dispatcher) NewSink(iface *descriptor.Interface, listener any) (*Sink, error) {
	if listener == nil {
		return nil, errors.InvalidInput(errors.PhaseDispatch, "nil listener")
	}
	sd, err := d.Describe(reflect.TypeOf(listener), iface)
	if err != nil {
		return nil, err
	}
	s := &Sink{
		d:        d,
		desc:     sd,
		listener: reflect.ValueOf(listener),
	}
	id, err := d.sinks.Insert(resource.KindSink, s)
	if err != nil {
		return nil, errors.Wrap(errors.PhaseDispatch, errors.KindClosed, err, "register sink")
	}
	s.id = id
	return s, nil
}

// Remove unregisters the sink with id. Callbacks delivered afterwards fail
// with an unknown member error.
func (d *Dispatcher) Remove(id resource.ID) bool {
	_, ok := d.sinks.Remove(id)
	return ok
}

// Len returns the number of live sinks.
func (d *Dispatcher) Len() int {
	return d.sinks.Len()
}

// Close drops every sink.
func (d *Dispatcher) Close() error {
	return d.sinks.Close()
}

// Dispatch delivers a callback to the sink with id.
func (d *Dispatcher) Dispatch(id resource.ID, dispID int32, args []any) (any, error) {
	v, ok := d.sinks.GetKind(id, resource.KindSink)
	if !ok {
		return nil, errors.New(errors.PhaseDispatch, errors.KindUnknownMember).
			Status(errors.StatusMemberNotFound).
			Detail("sink %d is not registered", uint64(id)).
			Build()
	}
	return v.(*Sink).dispatch(dispID, args)
}

func (d *Dispatcher) wrapper() ObjectWrapper {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.wrap
}

// Sink is a listener registered with a Dispatcher. It implements
// comruntime.Sink.
type Sink struct {
	d        *Dispatcher
	desc     *SinkDescriptor
	listener reflect.Value
	id       resource.ID
}

// ID returns the sink's id within its dispatcher.
func (s *Sink) ID() resource.ID {
	return s.id
}

// Descriptor returns the sink's event mapping.
func (s *Sink) Descriptor() *SinkDescriptor {
	return s.desc
}

// Invoke implements comruntime.Sink.
func (s *Sink) Invoke(dispID int32, _ comruntime.InvokeKind, args []any) (any, error) {
	return s.d.Dispatch(s.id, dispID, args)
}

// DispIDsOfNames implements comruntime.Sink.
func (s *Sink) DispIDsOfNames(names []string) []int32 {
	return s.desc.DispIDsOfNames(names)
}

func (s *Sink) dispatch(dispID int32, args []any) (any, error) {
	m, ok := s.desc.Method(dispID)
	if !ok {
		return nil, errors.UnknownMember(dispID)
	}
	if len(args) != m.Arity {
		err := errors.ArgumentCount(m.Name, m.Arity, len(args))
		err.Interface = s.desc.Interface.Name
		return nil, err
	}
	if !m.Handled {
		return nil, nil
	}

	in := make([]reflect.Value, 0, len(args)+1)
	in = append(in, s.listener)
	for i, w := range args {
		v, err := s.convert(w, m.Params[i])
		if err != nil {
			return nil, errors.New(errors.PhaseDispatch, errors.KindTypeMismatch).
				At(s.desc.Interface.Name, m.Name).
				Detail("argument %d", i).
				Cause(err).
				Build()
		}
		if v == nil {
			in = append(in, reflect.Zero(m.Params[i]))
		} else {
			in = append(in, reflect.ValueOf(v))
		}
	}

	out, err := s.call(m, in)
	if err != nil {
		Logger().Warn("event listener failed",
			zap.String("interface", s.desc.Interface.Name),
			zap.String("event", m.Name),
			zap.Int32("dispid", dispID),
			zap.Error(err))
		return nil, errors.New(errors.PhaseDispatch, errors.KindExecution).
			At(s.desc.Interface.Name, m.Name).
			Status(errors.StatusOf(err)).
			Cause(err).
			Build()
	}
	return out, nil
}

func (s *Sink) convert(w any, t reflect.Type) (any, error) {
	if h, ok := w.(comruntime.Handle); ok && t != handleType {
		if wrap := s.d.wrapper(); wrap != nil {
			return wrap(h, t)
		}
	}
	if w != nil && reflect.TypeOf(w).AssignableTo(t) && t.Kind() != reflect.Interface {
		return w, nil
	}
	return s.d.reg.Table().ConvertTo(w, t)
}

func (s *Sink) call(m *SinkMethod, in []reflect.Value) (res any, err error) {
	defer func() {
		if r := recover(); r != nil {
			if e, ok := r.(error); ok {
				err = e
			} else {
				err = fmt.Errorf("panic: %v", r)
			}
		}
	}()

	out := m.Func.Func.Call(in)
	if m.ReturnsE {
		if e, _ := out[len(out)-1].Interface().(error); e != nil {
			return nil, e
		}
	}
	if m.Result == nil {
		return nil, nil
	}
	return s.d.reg.Table().ForType(m.Result).ToWire(out[0].Interface())
}

var _ comruntime.Sink = (*Sink)(nil)
