// Package event delivers foreign event callbacks to Go listeners.
//
// A listener is any Go value. Its exported methods are matched by name to
// the methods of an event interface that carry a dispatch id. The mapping
// is computed once per (listener type, interface) and cached.
//
// Listener methods may return nothing, a value, an error, or a value and an
// error. A returned error (or a panic) is logged and reported back to the
// foreign caller.
package event

import (
	"reflect"
	"sort"

	comruntime "github.com/wippyai/com-runtime"
	"github.com/wippyai/com-runtime/descriptor"
	"github.com/wippyai/com-runtime/errors"
)

var errorType = reflect.TypeFor[error]()

// SinkMethod describes one event of a sink.
type SinkMethod struct {
	// Func is the listener method. It is only set when Handled.
	Func   reflect.Method
	Params []reflect.Type
	Name   string
	// Arity is the declared parameter count, set whether or not the event
	// is handled.
	Arity  int
	DispID int32
	// Result is the type of the non-error return value, if any.
	Result   reflect.Type
	Handled  bool
	ReturnsE bool
}

// SinkDescriptor maps dispatch ids and names to listener methods for one
// listener type and event interface.
type SinkDescriptor struct {
	Type      reflect.Type
	Interface *descriptor.Interface
	byID      map[int32]*SinkMethod
	byName    map[string]int32
}

// Method returns the event with dispatch id, if declared.
func (d *SinkDescriptor) Method(dispID int32) (*SinkMethod, bool) {
	m, ok := d.byID[dispID]
	return m, ok
}

// DispIDsOfNames maps event names to dispatch ids. Unknown names map to
// comruntime.DispIDUnknown.
func (d *SinkDescriptor) DispIDsOfNames(names []string) []int32 {
	out := make([]int32, len(names))
	for i, n := range names {
		id, ok := d.byName[n]
		if !ok {
			id = comruntime.DispIDUnknown
		}
		out[i] = id
	}
	return out
}

// Events returns the declared events sorted by dispatch id.
func (d *SinkDescriptor) Events() []*SinkMethod {
	out := make([]*SinkMethod, 0, len(d.byID))
	for _, m := range d.byID {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DispID < out[j].DispID })
	return out
}

func describe(reg *descriptor.Registry, t reflect.Type, iface *descriptor.Interface) (*SinkDescriptor, error) {
	chain, err := reg.Ancestry(iface)
	if err != nil {
		return nil, err
	}
	d := &SinkDescriptor{
		Type:      t,
		Interface: iface,
		byID:      make(map[int32]*SinkMethod),
		byName:    make(map[string]int32),
	}

	for _, decl := range chain {
		if decl.Name == descriptor.Dispatch || decl.Name == descriptor.Unknown {
			break
		}
		for _, m := range decl.Methods {
			if m.DispID == nil {
				continue
			}
			id := *m.DispID
			if _, dup := d.byID[id]; dup {
				continue
			}
			sm := &SinkMethod{Name: m.Name, DispID: id, Arity: len(m.Params)}
			if fn, ok := t.MethodByName(m.Name); ok {
				if err := bind(sm, fn, len(m.Params)); err != nil {
					return nil, errors.New(errors.PhaseDispatch, errors.KindInvalidInput).
						At(iface.Name, m.Name).
						Detail("listener %s: %v", t, err).
						Build()
				}
			}
			d.byID[id] = sm
			d.byName[m.Name] = id
		}
	}
	if len(d.byID) == 0 {
		return nil, errors.New(errors.PhaseDispatch, errors.KindInvalidInput).
			At(iface.Name, "").
			Detail("event interface declares no dispatch ids").
			Build()
	}
	return d, nil
}

func bind(sm *SinkMethod, fn reflect.Method, declared int) error {
	ft := fn.Type
	// the receiver is the first input
	params := make([]reflect.Type, 0, ft.NumIn()-1)
	for i := 1; i < ft.NumIn(); i++ {
		params = append(params, ft.In(i))
	}
	if ft.IsVariadic() {
		return errors.InvalidInput(errors.PhaseDispatch, "variadic listener methods are not supported")
	}
	if len(params) != declared {
		return errors.ArgumentCount(sm.Name, declared, len(params))
	}

	switch ft.NumOut() {
	case 0:
	case 1:
		if ft.Out(0) == errorType {
			sm.ReturnsE = true
		} else {
			sm.Result = ft.Out(0)
		}
	case 2:
		if ft.Out(1) != errorType {
			return errors.InvalidInput(errors.PhaseDispatch, "second result must be error")
		}
		sm.Result = ft.Out(0)
		sm.ReturnsE = true
	default:
		return errors.InvalidInput(errors.PhaseDispatch, "too many results")
	}

	sm.Func = fn
	sm.Params = params
	sm.Handled = true
	return nil
}
