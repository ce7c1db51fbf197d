package descriptor

import (
	"fmt"
	"reflect"
	"strings"

	comruntime "github.com/wippyai/com-runtime"
	"github.com/wippyai/com-runtime/errors"
	"github.com/wippyai/com-runtime/wire"
)

// Kind is the invocation strategy of a Descriptor.
type Kind uint8

const (
	KindVTable Kind = iota + 1
	KindChained
	KindDispatch
)

func (k Kind) String() string {
	switch k {
	case KindVTable:
		return "vtable"
	case KindChained:
		return "chained"
	case KindDispatch:
		return "dispatch"
	}
	return "unknown"
}

// Descriptor is the immutable, executable description of one method.
type Descriptor struct {
	// Interface declares the method. Its IID selects extended error info.
	Interface *Interface
	Method    *Method
	// ResultInterface is the declared interface of an object result.
	ResultInterface *Interface
	Return          *wire.Conversion // nil for no return value
	ReturnType      reflect.Type
	// Last is the terminal descriptor of a chain.
	Last     *Descriptor
	Params   []*wire.Conversion
	Defaults []any
	// Hops are the vtable slots walked by a chain, in order. HopInterfaces
	// holds the interface each hop is invoked on.
	Hops          []int
	HopInterfaces []*Interface
	// ArgMap remaps facade arguments onto Params.
	ArgMap      []int
	ReturnIndex int
	Slot        int
	DispID      int32
	InvokeKind  comruntime.InvokeKind
	Kind        Kind
	ReturnInOut bool
}

// Codes returns the per-argument conversion codes passed to the primitive.
func (d *Descriptor) Codes() []wire.Code {
	codes := make([]wire.Code, len(d.Params))
	for i, p := range d.Params {
		codes[i] = p.Code
	}
	return codes
}

// ReturnCode returns the return conversion code, or CodeDefault for none.
func (d *Descriptor) ReturnCode() wire.Code {
	if d.Return == nil {
		return wire.CodeDefault
	}
	return d.Return.Code
}

// ArgSize returns the size in bytes of the argument frame, including an
// out-only return slot.
func (d *Descriptor) ArgSize() int {
	if d.Kind == KindChained {
		return d.Last.ArgSize()
	}
	size := 0
	for _, p := range d.Params {
		size += p.Size
	}
	if d.Return != nil && !d.ReturnInOut {
		size += d.Return.ByRef().Size
	}
	return size
}

func (d *Descriptor) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s.%s ", d.Interface.Name, d.Method.Name)
	switch d.Kind {
	case KindVTable:
		fmt.Fprintf(&b, "vtable[%d]", d.Slot)
	case KindDispatch:
		fmt.Fprintf(&b, "dispid(%d)", d.DispID)
	case KindChained:
		fmt.Fprintf(&b, "chain%v -> %s", d.Hops, d.Last)
		return b.String()
	}
	b.WriteByte('(')
	for i, p := range d.Params {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(p.Name)
	}
	b.WriteByte(')')
	if d.Return != nil {
		fmt.Fprintf(&b, " %s@%d", d.Return.Name, d.ReturnIndex)
		if d.ReturnInOut {
			b.WriteString(" inout")
		}
	}
	return b.String()
}

// Resolve builds the descriptor for the method at ordinal on i.
func (r *Registry) Resolve(i *Interface, ordinal int) (*Descriptor, error) {
	if ordinal < 0 || ordinal >= len(i.Methods) {
		return nil, errors.New(errors.PhaseResolve, errors.KindNotFound).
			At(i.Name, "").
			Detail("method ordinal %d out of range", ordinal).
			Build()
	}
	m := i.Methods[ordinal]
	if m.Restricted {
		return nil, errors.New(errors.PhaseResolve, errors.KindInvalidInput).
			At(i.Name, m.Name).
			Detail("restricted method").
			Build()
	}

	switch {
	case m.UseDefaults != nil:
		return r.facade(i, m)
	case len(m.DefaultChain) > 0:
		return r.chained(i, m)
	case m.VTID != nil:
		return r.direct(i, m, KindVTable)
	case m.DispID != nil:
		return r.direct(i, m, KindDispatch)
	}
	return nil, errors.MissingDescriptor(i.Name, m.Name, "neither vtable slot nor dispatch id declared")
}

func (r *Registry) direct(i *Interface, m *Method, kind Kind) (*Descriptor, error) {
	d := &Descriptor{
		Kind:        kind,
		Interface:   i,
		Method:      m,
		Params:      make([]*wire.Conversion, len(m.Params)),
		Defaults:    m.Defaults,
		ReturnIndex: -1,
		InvokeKind:  m.Invoke,
	}
	if kind == KindVTable {
		d.Slot = *m.VTID
	} else {
		d.DispID = *m.DispID
		if d.InvokeKind == 0 {
			d.InvokeKind = comruntime.InvokeMethod
		}
	}
	if len(m.Defaults) > len(m.Params) {
		return nil, errors.New(errors.PhaseResolve, errors.KindInvalidInput).
			At(i.Name, m.Name).
			Detail("%d defaults for %d parameters", len(m.Defaults), len(m.Params)).
			Build()
	}

	for n, code := range m.Params {
		c, err := r.table.Lookup(code)
		if err != nil {
			return nil, errors.New(errors.PhaseResolve, errors.KindInvalidInput).
				At(i.Name, m.Name).
				Detail("parameter %d", n).
				Cause(err).
				Build()
		}
		d.Params[n] = c
	}

	if ret := m.Return; ret != nil && ret.Code != wire.CodeDefault {
		c, err := r.table.Lookup(ret.Code)
		if err != nil {
			return nil, errors.New(errors.PhaseResolve, errors.KindInvalidInput).
				At(i.Name, m.Name).
				Detail("return value").
				Cause(err).
				Build()
		}
		d.Return = c
		d.ReturnType = ret.Type
		d.ReturnInOut = ret.InOut
		d.ReturnIndex = ret.Index
		if d.ReturnIndex < 0 {
			d.ReturnIndex = len(m.Params)
		}
		if ret.InOut && d.ReturnIndex >= len(m.Params) {
			return nil, errors.New(errors.PhaseResolve, errors.KindInvalidInput).
				At(i.Name, m.Name).
				Detail("in/out return index %d is not a parameter", d.ReturnIndex).
				Build()
		}
		if ret.Interface != "" {
			ri, err := r.Lookup(ret.Interface)
			if err != nil {
				return nil, errors.New(errors.PhaseResolve, errors.KindNotFound).
					At(i.Name, m.Name).
					Detail("result interface %q is not registered", ret.Interface).
					Build()
			}
			d.ResultInterface = ri
		}
	}
	return d, nil
}

func (r *Registry) chained(i *Interface, m *Method) (*Descriptor, error) {
	if m.VTID == nil {
		return nil, errors.MissingDescriptor(i.Name, m.Name, "default property chain needs a vtable slot")
	}

	hops := make([]int, 0, len(m.DefaultChain))
	hops = append(hops, *m.VTID)
	hopIfaces := []*Interface{i}
	var lastIface *Interface
	var last *Method
	for n, name := range m.DefaultChain {
		next, err := r.Lookup(name)
		if err != nil {
			return nil, errors.New(errors.PhaseResolve, errors.KindNotFound).
				At(i.Name, m.Name).
				Detail("chain interface %q is not registered", name).
				Build()
		}
		dm := next.DefaultMethod()
		if dm == nil {
			return nil, errors.MissingDescriptor(next.Name, "", "chain target has no default method")
		}
		if n < len(m.DefaultChain)-1 {
			if dm.VTID == nil {
				return nil, errors.MissingDescriptor(next.Name, dm.Name, "intermediate default method needs a vtable slot")
			}
			hops = append(hops, *dm.VTID)
			hopIfaces = append(hopIfaces, next)
		}
		lastIface, last = next, dm
	}

	var final *Descriptor
	var err error
	switch {
	case last.VTID != nil:
		final, err = r.direct(lastIface, last, KindVTable)
	case last.DispID != nil:
		final, err = r.direct(lastIface, last, KindDispatch)
	default:
		err = errors.MissingDescriptor(lastIface.Name, last.Name, "neither vtable slot nor dispatch id declared")
	}
	if err != nil {
		return nil, err
	}

	return &Descriptor{
		Kind:          KindChained,
		Interface:     i,
		Method:        m,
		Hops:          hops,
		HopInterfaces: hopIfaces,
		Last:          final,
		ReturnIndex:   -1,
	}, nil
}

func (r *Registry) facade(i *Interface, m *Method) (*Descriptor, error) {
	ti, ord, err := r.FindMethod(i, m.UseDefaults.Target)
	if err != nil {
		return nil, errors.New(errors.PhaseResolve, errors.KindNotFound).
			At(i.Name, m.Name).
			Detail("facade target %q", m.UseDefaults.Target).
			Cause(err).
			Build()
	}
	target := ti.Methods[ord]
	if target.UseDefaults != nil {
		return nil, errors.New(errors.PhaseResolve, errors.KindInvalidInput).
			At(i.Name, m.Name).
			Detail("facade target %q is itself a facade", target.Name).
			Build()
	}
	td, err := r.Resolve(ti, ord)
	if err != nil {
		return nil, err
	}
	if td.Kind == KindChained {
		return nil, errors.New(errors.PhaseResolve, errors.KindInvalidInput).
			At(i.Name, m.Name).
			Detail("facade target %q is a default property chain", target.Name).
			Build()
	}

	seen := make(map[int]bool, len(m.UseDefaults.Mapping))
	for _, p := range m.UseDefaults.Mapping {
		if p < 0 || p >= len(td.Params) || seen[p] {
			return nil, errors.New(errors.PhaseResolve, errors.KindInvalidInput).
				At(i.Name, m.Name).
				Detail("invalid argument mapping %v for %d parameters", m.UseDefaults.Mapping, len(td.Params)).
				Build()
		}
		seen[p] = true
	}

	d := *td
	d.Method = m
	d.ArgMap = m.UseDefaults.Mapping
	if m.Return != nil && m.Return.Type != nil {
		d.ReturnType = m.Return.Type
	}
	return &d, nil
}
