package wire

import (
	"fmt"
	"math"
	"reflect"

	"github.com/wippyai/com-runtime/errors"
)

const ptrSize = 4 << (^uintptr(0) >> 63)

func asInt64(v any) (int64, bool) {
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return rv.Int(), true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		u := rv.Uint()
		if u > math.MaxInt64 {
			return 0, false
		}
		return int64(u), true
	}
	return 0, false
}

func asUint64(v any) (uint64, bool) {
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		n := rv.Int()
		if n < 0 {
			return 0, false
		}
		return uint64(n), true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return rv.Uint(), true
	}
	return 0, false
}

func asFloat64(v any) (float64, bool) {
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Float32, reflect.Float64:
		return rv.Float(), true
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return float64(rv.Int()), true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return float64(rv.Uint()), true
	}
	return 0, false
}

func typeName(v any) string {
	if v == nil {
		return "nil"
	}
	return fmt.Sprintf("%T", v)
}

// assign converts a natural Go value into type t. A nil or interface t
// returns the natural value unchanged.
func assign(t reflect.Type, natural any, wireName string) (any, error) {
	if t == nil || t.Kind() == reflect.Interface {
		return natural, nil
	}
	if natural == nil {
		return reflect.Zero(t).Interface(), nil
	}
	nv := reflect.ValueOf(natural)
	if nv.Type() == t {
		return natural, nil
	}

	out := reflect.New(t).Elem()
	switch t.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		n, ok := asInt64(natural)
		if !ok {
			return nil, errors.TypeMismatch(errors.PhaseUnmarshal, t.String(), wireName)
		}
		if out.OverflowInt(n) {
			return nil, errors.Overflow(errors.PhaseUnmarshal, natural, t.String())
		}
		out.SetInt(n)
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		u, ok := asUint64(natural)
		if !ok {
			return nil, errors.Overflow(errors.PhaseUnmarshal, natural, t.String())
		}
		if out.OverflowUint(u) {
			return nil, errors.Overflow(errors.PhaseUnmarshal, natural, t.String())
		}
		out.SetUint(u)
	case reflect.Float32, reflect.Float64:
		f, ok := asFloat64(natural)
		if !ok {
			return nil, errors.TypeMismatch(errors.PhaseUnmarshal, t.String(), wireName)
		}
		out.SetFloat(f)
	case reflect.Bool:
		b, ok := natural.(bool)
		if !ok {
			return nil, errors.TypeMismatch(errors.PhaseUnmarshal, t.String(), wireName)
		}
		out.SetBool(b)
	case reflect.String:
		s, ok := natural.(string)
		if !ok {
			return nil, errors.TypeMismatch(errors.PhaseUnmarshal, t.String(), wireName)
		}
		out.SetString(s)
	default:
		if nv.Type().ConvertibleTo(t) {
			return nv.Convert(t).Interface(), nil
		}
		return nil, errors.TypeMismatch(errors.PhaseUnmarshal, t.String(), wireName)
	}
	return out.Interface(), nil
}

func signedConversion(code Code, name string, size int, min, max int64, mk func(int64) any) *Conversion {
	return &Conversion{
		Name: name,
		Code: code,
		Size: size,
		toWire: func(v any) (any, error) {
			n, ok := asInt64(v)
			if !ok {
				if _, isUint := asUint64(v); isUint {
					return nil, errors.Overflow(errors.PhaseMarshal, v, name)
				}
				return nil, errors.TypeMismatch(errors.PhaseMarshal, typeName(v), name)
			}
			if n < min || n > max {
				return nil, errors.Overflow(errors.PhaseMarshal, v, name)
			}
			return mk(n), nil
		},
		fromWire: func(t reflect.Type, w any) (any, error) {
			n, ok := asInt64(w)
			if !ok {
				return nil, errors.TypeMismatch(errors.PhaseUnmarshal, typeName(w), name)
			}
			if n < min || n > max {
				return nil, errors.Overflow(errors.PhaseUnmarshal, w, name)
			}
			return assign(t, mk(n), name)
		},
	}
}

func unsignedConversion(code Code, name string, size int, max uint64, mk func(uint64) any) *Conversion {
	return &Conversion{
		Name: name,
		Code: code,
		Size: size,
		toWire: func(v any) (any, error) {
			u, ok := asUint64(v)
			if !ok {
				if _, isInt := asInt64(v); isInt {
					return nil, errors.Overflow(errors.PhaseMarshal, v, name)
				}
				return nil, errors.TypeMismatch(errors.PhaseMarshal, typeName(v), name)
			}
			if u > max {
				return nil, errors.Overflow(errors.PhaseMarshal, v, name)
			}
			return mk(u), nil
		},
		fromWire: func(t reflect.Type, w any) (any, error) {
			u, ok := asUint64(w)
			if !ok {
				if _, isInt := asInt64(w); isInt {
					return nil, errors.Overflow(errors.PhaseUnmarshal, w, name)
				}
				return nil, errors.TypeMismatch(errors.PhaseUnmarshal, typeName(w), name)
			}
			if u > max {
				return nil, errors.Overflow(errors.PhaseUnmarshal, w, name)
			}
			return assign(t, mk(u), name)
		},
	}
}
