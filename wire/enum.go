package wire

import (
	"reflect"

	"github.com/wippyai/com-runtime/errors"
)

// Enum is implemented by Go enum types whose wire value differs from their
// underlying integer.
type Enum interface {
	EnumValue() int32
}

// enumDict maps wire values to the constants of one sparse enum type.
// Enum types that are not registered are continuous: the wire value is the
// Go value.
type enumDict struct {
	t       reflect.Type
	byValue map[int32]any
}

// RegisterEnum records the constants of one enum type. Wire values outside
// the registered set are rejected when converting back to Go.
func (t *Table) RegisterEnum(constants ...any) error {
	if len(constants) == 0 {
		return errors.InvalidInput(errors.PhaseConfig, "enum registration needs at least one constant")
	}
	rt := reflect.TypeOf(constants[0])
	dict := &enumDict{t: rt, byValue: make(map[int32]any, len(constants))}
	for _, c := range constants {
		if reflect.TypeOf(c) != rt {
			return errors.InvalidInput(errors.PhaseConfig, "enum constants must share one type")
		}
		v, err := enumValue(c)
		if err != nil {
			return err
		}
		dict.byValue[v] = c
	}

	t.mu.Lock()
	t.enums[rt] = dict
	t.mu.Unlock()
	return nil
}

func (t *Table) isEnum(rt reflect.Type) bool {
	if rt.Implements(enumType) {
		return true
	}
	t.mu.RLock()
	_, ok := t.enums[rt]
	t.mu.RUnlock()
	return ok
}

func enumValue(v any) (int32, error) {
	if e, ok := v.(Enum); ok {
		return e.EnumValue(), nil
	}
	n, ok := asInt64(v)
	if !ok {
		return 0, errors.TypeMismatch(errors.PhaseMarshal, typeName(v), "enum")
	}
	if n < -1<<31 || n > 1<<31-1 {
		return 0, errors.Overflow(errors.PhaseMarshal, v, "enum")
	}
	return int32(n), nil
}

func (t *Table) enumConversion() *Conversion {
	return &Conversion{
		Name: "enum",
		Code: CodeEnum,
		Size: 4,
		toWire: func(v any) (any, error) {
			return enumValue(v)
		},
		fromWire: func(rt reflect.Type, w any) (any, error) {
			n, ok := asInt64(w)
			if !ok {
				return nil, errors.TypeMismatch(errors.PhaseUnmarshal, typeName(w), "enum")
			}
			if n < -1<<31 || n > 1<<31-1 {
				return nil, errors.Overflow(errors.PhaseUnmarshal, w, "enum")
			}
			if rt == nil || rt.Kind() == reflect.Interface {
				return int32(n), nil
			}
			t.mu.RLock()
			dict := t.enums[rt]
			t.mu.RUnlock()
			if dict == nil {
				return assign(rt, int32(n), "enum")
			}
			c, ok := dict.byValue[int32(n)]
			if !ok {
				return nil, errors.InvalidEnum(errors.PhaseUnmarshal, n, rt.String())
			}
			return c, nil
		},
	}
}
