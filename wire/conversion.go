package wire

import (
	"fmt"
	"reflect"

	"github.com/wippyai/com-runtime/errors"
)

// Conversion maps one Go value type to and from its wire representation.
type Conversion struct {
	toWire   func(v any) (any, error)
	fromWire func(t reflect.Type, w any) (any, error)
	cleanup  func(w any)
	byRef    *Conversion
	base     *Conversion
	Name     string
	Size     int
	Code     Code
	Variable bool
}

// ToWire converts a Go value into its wire form.
func (c *Conversion) ToWire(v any) (any, error) {
	return c.toWire(v)
}

// FromWire converts a wire value into a Go value of type t. A nil t yields
// the conversion's natural Go type.
func (c *Conversion) FromWire(t reflect.Type, w any) (any, error) {
	return c.fromWire(t, w)
}

// Cleanup releases temporary resources held by a wire value produced by
// ToWire. It is safe to call on any wire value, including nil.
func (c *Conversion) Cleanup(w any) {
	if c.cleanup != nil && w != nil {
		c.cleanup(w)
	}
}

// ByRef returns the by-reference variant, or nil if there is none.
func (c *Conversion) ByRef() *Conversion {
	return c.byRef
}

// IsByRef reports whether c is a by-reference conversion.
func (c *Conversion) IsByRef() bool {
	return c.base != nil
}

// Base returns the by-value conversion of a by-reference one, and c itself
// otherwise.
func (c *Conversion) Base() *Conversion {
	if c.base != nil {
		return c.base
	}
	return c
}

func (c *Conversion) String() string {
	return c.Name
}

// Cell is the wire form of a by-reference value. The primitive may replace V.
type Cell struct {
	V any
}

// Ref is a by-reference holder whose value is refreshed after a call.
type Ref interface {
	Get() any
	Set(v any) error
	Type() reflect.Type
}

// Holder is the generic Ref implementation.
type Holder[T any] struct {
	Value T
}

// NewHolder returns a holder with an initial value.
func NewHolder[T any](v T) *Holder[T] {
	return &Holder[T]{Value: v}
}

func (h *Holder[T]) Get() any {
	return h.Value
}

func (h *Holder[T]) Set(v any) error {
	if v == nil {
		var zero T
		h.Value = zero
		return nil
	}
	t, ok := v.(T)
	if !ok {
		return errors.TypeMismatch(errors.PhaseUnmarshal, fmt.Sprintf("%T", v), reflect.TypeFor[T]().String())
	}
	h.Value = t
	return nil
}

func (h *Holder[T]) Type() reflect.Type {
	return reflect.TypeFor[T]()
}

func newByRef(base *Conversion) *Conversion {
	ref := &Conversion{
		Name: base.Name + "*",
		Code: base.Code | CodeByRef,
		Size: ptrSize,
		base: base,
		toWire: func(v any) (any, error) {
			if r, ok := v.(Ref); ok {
				v = r.Get()
			}
			w, err := base.ToWire(v)
			if err != nil {
				return nil, err
			}
			return &Cell{V: w}, nil
		},
		fromWire: func(t reflect.Type, w any) (any, error) {
			if cell, ok := w.(*Cell); ok {
				w = cell.V
			}
			return base.FromWire(t, w)
		},
		cleanup: func(w any) {
			if cell, ok := w.(*Cell); ok {
				base.Cleanup(cell.V)
				return
			}
			base.Cleanup(w)
		},
	}
	base.byRef = ref
	return ref
}
