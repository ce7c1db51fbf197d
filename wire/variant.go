package wire

import (
	"fmt"
	"reflect"

	"github.com/wippyai/com-runtime/errors"
)

// statusParamNotFound is DISP_E_PARAMNOTFOUND, the marker of an omitted
// optional argument.
const statusParamNotFound int32 = -2147352572

type missing struct{}

func (missing) String() string { return "<missing>" }

// Missing stands in for an omitted optional argument.
var Missing any = missing{}

// Variant is the self-describing wire value. Value holds the wire form for
// Type.
type Variant struct {
	Value any
	conv  *Conversion
	Type  VarType
	owned bool
}

// NewVariant wraps an existing wire value. The variant does not take
// ownership of it.
func NewVariant(vt VarType, w any) *Variant {
	return &Variant{Type: vt, Value: w}
}

// IsMissing reports whether v marks an omitted optional argument.
func (v *Variant) IsMissing() bool {
	if v == nil || v.Type != VTError {
		return false
	}
	n, ok := v.Value.(int32)
	return ok && n == statusParamNotFound
}

func (v *Variant) String() string {
	if v == nil {
		return "<nil variant>"
	}
	if v.IsMissing() {
		return "<missing>"
	}
	switch w := v.Value.(type) {
	case *BSTR:
		return fmt.Sprintf("variant(%d:%q)", v.Type, w.String())
	default:
		return fmt.Sprintf("variant(%d:%v)", v.Type, w)
	}
}

// ToVariant converts a Go value into an owned Variant. Release it with the
// variant conversion's Cleanup.
func (t *Table) ToVariant(v any) (*Variant, error) {
	switch x := v.(type) {
	case nil:
		return &Variant{Type: VTEmpty}, nil
	case missing:
		return &Variant{Type: VTError, Value: statusParamNotFound}, nil
	case *Variant:
		return x, nil
	}

	conv := t.ForType(reflect.TypeOf(v))
	vt, ok := codeVarTypes[conv.Code]
	if !ok {
		return nil, errors.TypeMismatch(errors.PhaseMarshal, typeName(v), "variant")
	}
	w, err := conv.ToWire(v)
	if err != nil {
		return nil, err
	}
	return &Variant{Type: vt, Value: w, conv: conv, owned: true}, nil
}

func (t *Table) fromVariant(rt reflect.Type, v *Variant) (any, error) {
	if rt == variantType {
		return v, nil
	}
	switch v.Type {
	case VTEmpty, VTNull:
		return assign(rt, nil, "variant")
	}
	if v.IsMissing() {
		return assign(rt, Missing, "variant")
	}

	code, ok := varTypeCodes[v.Type]
	if !ok {
		return nil, errors.New(errors.PhaseUnmarshal, errors.KindTypeMismatch).
			Detail("unsupported variant type %d", v.Type).
			Build()
	}
	if rt != nil && code == CodeInt32 && t.isEnum(rt) {
		code = CodeEnum
	}
	conv, err := t.Lookup(code)
	if err != nil {
		return nil, err
	}
	return conv.FromWire(rt, v.Value)
}

func (t *Table) variantConversion() *Conversion {
	return &Conversion{
		Name: "variant",
		Code: CodeVariant,
		Size: 24,
		toWire: func(v any) (any, error) {
			return t.ToVariant(v)
		},
		fromWire: func(rt reflect.Type, w any) (any, error) {
			if v, ok := w.(*Variant); ok {
				return t.fromVariant(rt, v)
			}
			return assign(rt, w, "variant")
		},
		cleanup: func(w any) {
			if v, ok := w.(*Variant); ok && v.owned && v.conv != nil {
				v.conv.Cleanup(v.Value)
				v.Value = nil
				v.owned = false
			}
		},
	}
}
