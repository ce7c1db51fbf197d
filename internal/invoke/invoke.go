// Package invoke executes method descriptors against foreign handles.
//
// Every function here must run on the apartment thread that owns the
// handle; Call fails fast with a wrong-apartment error otherwise.
package invoke

import (
	"go.uber.org/zap"

	comruntime "github.com/wippyai/com-runtime"
	"github.com/wippyai/com-runtime/apartment"
	"github.com/wippyai/com-runtime/descriptor"
	"github.com/wippyai/com-runtime/errors"
	"github.com/wippyai/com-runtime/wire"
)

// Env is what an invocation needs besides the descriptor.
type Env struct {
	Prim   comruntime.Primitive
	Table  *wire.Table
	Thread *apartment.Thread
}

// Object is an object-typed result. The caller owns the reference.
type Object struct {
	Interface *descriptor.Interface
	Handle    comruntime.Handle
}

// Call invokes d on h with client arguments args.
func Call(env Env, h comruntime.Handle, d *descriptor.Descriptor, args []any) (any, error) {
	if err := env.Thread.CheckAccess(); err != nil {
		return nil, err
	}
	if d.Kind == descriptor.KindChained {
		return chain(env, h, d, args)
	}
	return direct(env, h, d, args)
}

// chain walks the default-property hops and calls the final descriptor on
// the last object. The starting handle gets its own reference so the
// caller's is never consumed; every handle held is released exactly once.
func chain(env Env, h comruntime.Handle, d *descriptor.Descriptor, args []any) (any, error) {
	env.Prim.AddRef(h)
	cur := h
	defer func() {
		env.Prim.Release(cur)
	}()

	for n, slot := range d.Hops {
		iface := d.HopInterfaces[n]
		w, err := env.Prim.Invoke(cur, slot, nil, nil, 0, false, wire.CodeObject)
		if err != nil {
			return nil, foreignError(env, cur, iface, d.Method.Name, err)
		}
		next, ok := w.(comruntime.Handle)
		if !ok || next == 0 {
			return nil, errors.New(errors.PhaseInvoke, errors.KindForeignCall).
				At(iface.Name, d.Method.Name).
				Status(statusPointer).
				Detail("default property hop %d returned no object", n).
				Build()
		}
		env.Prim.Release(cur)
		cur = next
	}
	return direct(env, cur, d.Last, args)
}

// statusPointer is E_POINTER.
const statusPointer int32 = -2147467261

func direct(env Env, h comruntime.Handle, d *descriptor.Descriptor, args []any) (res any, err error) {
	full, err := arrange(d, args)
	if err != nil {
		return nil, err
	}

	wargs := make([]any, len(d.Params))
	converted := 0
	defer func() {
		if rerr := finish(d, full, wargs[:converted]); rerr != nil && err == nil {
			res, err = nil, rerr
		}
	}()

	for i, conv := range d.Params {
		w, cerr := conv.ToWire(full[i])
		if cerr != nil {
			return nil, errors.New(errors.PhaseMarshal, kindOf(cerr)).
				At(d.Interface.Name, d.Method.Name).
				Detail("argument %d", i).
				Cause(cerr).
				Build()
		}
		wargs[i] = w
		converted++
	}

	codes := d.Codes()
	var out any
	switch d.Kind {
	case descriptor.KindVTable:
		out, err = env.Prim.Invoke(h, d.Slot, wargs, codes, d.ReturnIndex, d.ReturnInOut, d.ReturnCode())
	case descriptor.KindDispatch:
		out, err = env.Prim.Dispatch(h, d.DispID, d.InvokeKind, wargs, codes, d.ReturnCode())
	default:
		return nil, errors.MissingDescriptor(d.Interface.Name, d.Method.Name, "not directly invocable")
	}
	if err != nil {
		return nil, foreignError(env, h, d.Interface, d.Method.Name, err)
	}
	return result(d, out)
}

// arrange maps client arguments onto the full parameter list, filling
// omitted trailing or unmapped parameters from the declared defaults.
func arrange(d *descriptor.Descriptor, args []any) ([]any, error) {
	n := len(d.Params)
	full := make([]any, n)
	given := make([]bool, n)

	if d.ArgMap != nil {
		if len(args) != len(d.ArgMap) {
			return nil, argCount(d, len(d.ArgMap), len(args))
		}
		for i, a := range args {
			full[d.ArgMap[i]] = a
			given[d.ArgMap[i]] = true
		}
	} else {
		if len(args) > n {
			return nil, argCount(d, n, len(args))
		}
		copy(full, args)
		for i := range args {
			given[i] = true
		}
	}

	for i := range full {
		if given[i] {
			continue
		}
		if i < len(d.Defaults) && d.Defaults[i] != nil {
			full[i] = d.Defaults[i]
			continue
		}
		return nil, argCount(d, n, len(args))
	}
	return full, nil
}

// finish refreshes by-reference holders from their wire cells and cleans
// up every other converted argument. It runs on every exit path.
func finish(d *descriptor.Descriptor, args, wargs []any) error {
	var first error
	for i, w := range wargs {
		conv := d.Params[i]
		if ref, ok := args[i].(wire.Ref); ok && conv.IsByRef() {
			v, err := conv.FromWire(ref.Type(), w)
			if err == nil {
				err = ref.Set(v)
			}
			if err != nil && first == nil {
				first = errors.New(errors.PhaseUnmarshal, kindOf(err)).
					At(d.Interface.Name, d.Method.Name).
					Detail("refresh by-reference argument %d", i).
					Cause(err).
					Build()
			}
			continue
		}
		conv.Cleanup(w)
	}
	return first
}

func result(d *descriptor.Descriptor, out any) (any, error) {
	if d.Return == nil {
		return nil, nil
	}
	base := d.Return.Base()
	if (base.Code == wire.CodeObject || base.Code == wire.CodeDispatch) && d.ReturnType == nil {
		h, _ := out.(comruntime.Handle)
		if cell, ok := out.(*wire.Cell); ok {
			h, _ = cell.V.(comruntime.Handle)
		}
		if h == 0 {
			return nil, nil
		}
		return &Object{Handle: h, Interface: d.ResultInterface}, nil
	}

	v, err := d.Return.FromWire(d.ReturnType, out)
	d.Return.Cleanup(out)
	if err != nil {
		return nil, errors.New(errors.PhaseUnmarshal, kindOf(err)).
			At(d.Interface.Name, d.Method.Name).
			Detail("return value").
			Cause(err).
			Build()
	}
	return v, nil
}

// foreignError wraps a primitive failure and attaches extended error detail
// when the object provides it. Failing to fetch the detail is not an error.
func foreignError(env Env, h comruntime.Handle, iface *descriptor.Interface, method string, cause error) error {
	e := errors.ForeignCall(iface.Name, method, cause)
	info, err := env.Prim.ExtendedError(h, iface.IID)
	switch {
	case err != nil:
		Logger().Debug("extended error lookup failed",
			zap.String("interface", iface.Name),
			zap.String("method", method),
			zap.Error(err))
	case info != nil:
		e.Info = info
	}
	return e
}

func argCount(d *descriptor.Descriptor, expected, found int) error {
	return errors.New(errors.PhaseMarshal, errors.KindArgumentCount).
		At(d.Interface.Name, d.Method.Name).
		Detail("expected %d argument(s) but found %d", expected, found).
		Build()
}

func kindOf(err error) errors.Kind {
	if e, ok := err.(*errors.Error); ok {
		return e.Kind
	}
	return errors.KindInvalidInput
}
