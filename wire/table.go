package wire

import (
	"math"
	"reflect"
	"sync"
	"time"

	"github.com/google/uuid"

	comruntime "github.com/wippyai/com-runtime"
	"github.com/wippyai/com-runtime/errors"
)

// HandleOwner is implemented by Go values that wrap a foreign handle, such
// as object proxies.
type HandleOwner interface {
	NativeHandle() comruntime.Handle
}

var (
	handleType      = reflect.TypeFor[comruntime.Handle]()
	handleOwnerType = reflect.TypeFor[HandleOwner]()
	hresultType     = reflect.TypeFor[errors.HRESULT]()
	timeType        = reflect.TypeFor[time.Time]()
	uuidType        = reflect.TypeFor[uuid.UUID]()
	variantType     = reflect.TypeFor[*Variant]()
	enumType        = reflect.TypeFor[Enum]()
	refType         = reflect.TypeFor[Ref]()
)

// Table holds the conversions known to the runtime, indexed by code.
// It is safe for concurrent use.
type Table struct {
	byCode map[Code]*Conversion
	enums  map[reflect.Type]*enumDict
	mu     sync.RWMutex
}

// NewTable creates a table with the built-in conversions.
func NewTable() *Table {
	t := &Table{
		byCode: make(map[Code]*Conversion, 32),
		enums:  make(map[reflect.Type]*enumDict),
	}
	for _, c := range t.builtins() {
		t.Register(c)
	}
	return t
}

// Register adds or replaces a conversion and creates its by-reference
// variant.
func (t *Table) Register(c *Conversion) {
	newByRef(c)
	t.mu.Lock()
	t.byCode[c.Code] = c
	t.mu.Unlock()
}

// Lookup returns the conversion for code, following CodeByRef.
func (t *Table) Lookup(code Code) (*Conversion, error) {
	t.mu.RLock()
	c := t.byCode[code&^CodeByRef]
	t.mu.RUnlock()
	if c == nil {
		return nil, errors.New(errors.PhaseResolve, errors.KindNotFound).
			Detail("no conversion for code %s (%d)", CodeName(code), code).
			Build()
	}
	if code&CodeByRef != 0 {
		return c.ByRef(), nil
	}
	return c, nil
}

// MustLookup is Lookup for codes known to be registered.
func (t *Table) MustLookup(code Code) *Conversion {
	c, err := t.Lookup(code)
	if err != nil {
		panic(err)
	}
	return c
}

// ForType returns the default conversion for a Go type. Types without a
// dedicated conversion travel as variants.
func (t *Table) ForType(rt reflect.Type) *Conversion {
	if rt == nil {
		return t.MustLookup(CodeVariant)
	}
	switch {
	case rt == handleType || (rt.Kind() != reflect.Interface && rt.Implements(handleOwnerType)):
		return t.MustLookup(CodeObject)
	case rt == hresultType:
		return t.MustLookup(CodeHRESULT)
	case rt == timeType:
		return t.MustLookup(CodeDate)
	case rt == uuidType:
		return t.MustLookup(CodeGUID)
	case rt == variantType:
		return t.MustLookup(CodeVariant)
	case rt.Kind() != reflect.Interface && rt.Implements(refType):
		inner := reflect.Zero(rt).Interface().(Ref).Type()
		return t.ForType(inner).ByRef()
	case rt.Kind() != reflect.Interface && t.isEnum(rt):
		return t.MustLookup(CodeEnum)
	}

	switch rt.Kind() {
	case reflect.Bool:
		return t.MustLookup(CodeBool)
	case reflect.Int8:
		return t.MustLookup(CodeInt8)
	case reflect.Int16:
		return t.MustLookup(CodeInt16)
	case reflect.Int32, reflect.Int:
		return t.MustLookup(CodeInt32)
	case reflect.Int64:
		return t.MustLookup(CodeInt64)
	case reflect.Uint8:
		return t.MustLookup(CodeUInt8)
	case reflect.Uint16:
		return t.MustLookup(CodeUInt16)
	case reflect.Uint32, reflect.Uint:
		return t.MustLookup(CodeUInt32)
	case reflect.Uint64:
		return t.MustLookup(CodeUInt64)
	case reflect.Float32:
		return t.MustLookup(CodeFloat)
	case reflect.Float64:
		return t.MustLookup(CodeDouble)
	case reflect.String:
		return t.MustLookup(CodeString)
	}
	return t.MustLookup(CodeVariant)
}

// ConvertTo converts a wire value into Go type rt using the variant tag when
// present and the default conversion for rt otherwise.
func (t *Table) ConvertTo(w any, rt reflect.Type) (any, error) {
	if v, ok := w.(*Variant); ok {
		return t.fromVariant(rt, v)
	}
	conv := t.ForType(rt)
	if conv.IsByRef() {
		conv = conv.Base()
	}
	return conv.FromWire(rt, w)
}

func (t *Table) builtins() []*Conversion {
	return []*Conversion{
		boolConversion(),
		signedConversion(CodeInt8, "int8", 1, math.MinInt8, math.MaxInt8, func(n int64) any { return int8(n) }),
		unsignedConversion(CodeUInt8, "uint8", 1, math.MaxUint8, func(n uint64) any { return uint8(n) }),
		signedConversion(CodeInt16, "int16", 2, math.MinInt16, math.MaxInt16, func(n int64) any { return int16(n) }),
		unsignedConversion(CodeUInt16, "uint16", 2, math.MaxUint16, func(n uint64) any { return uint16(n) }),
		signedConversion(CodeInt32, "int32", 4, math.MinInt32, math.MaxInt32, func(n int64) any { return int32(n) }),
		unsignedConversion(CodeUInt32, "uint32", 4, math.MaxUint32, func(n uint64) any { return uint32(n) }),
		signedConversion(CodeInt64, "int64", 8, math.MinInt64, math.MaxInt64, func(n int64) any { return n }),
		unsignedConversion(CodeUInt64, "uint64", 8, math.MaxUint64, func(n uint64) any { return n }),
		signedConversion(CodeHRESULT, "hresult", 4, math.MinInt32, math.MaxInt32, func(n int64) any { return int32(n) }),
		floatConversion(CodeFloat, "float", 4),
		floatConversion(CodeDouble, "double", 8),
		stringConversion(),
		dateConversion(),
		guidConversion(),
		objectConversion(CodeObject, "object"),
		objectConversion(CodeDispatch, "dispatch"),
		t.variantConversion(),
		t.enumConversion(),
	}
}

func boolConversion() *Conversion {
	return &Conversion{
		Name: "bool",
		Code: CodeBool,
		Size: 2,
		toWire: func(v any) (any, error) {
			rv := reflect.ValueOf(v)
			if rv.Kind() != reflect.Bool {
				return nil, errors.TypeMismatch(errors.PhaseMarshal, typeName(v), "bool")
			}
			if rv.Bool() {
				return int16(-1), nil
			}
			return int16(0), nil
		},
		fromWire: func(t reflect.Type, w any) (any, error) {
			var b bool
			if x, ok := w.(bool); ok {
				b = x
			} else if n, ok := asInt64(w); ok {
				b = n != 0
			} else {
				return nil, errors.TypeMismatch(errors.PhaseUnmarshal, typeName(w), "bool")
			}
			return assign(t, b, "bool")
		},
	}
}

func floatConversion(code Code, name string, size int) *Conversion {
	return &Conversion{
		Name: name,
		Code: code,
		Size: size,
		toWire: func(v any) (any, error) {
			f, ok := asFloat64(v)
			if !ok {
				return nil, errors.TypeMismatch(errors.PhaseMarshal, typeName(v), name)
			}
			if size == 4 {
				if math.Abs(f) > math.MaxFloat32 && !math.IsInf(f, 0) {
					return nil, errors.Overflow(errors.PhaseMarshal, v, name)
				}
				return float32(f), nil
			}
			return f, nil
		},
		fromWire: func(t reflect.Type, w any) (any, error) {
			f, ok := asFloat64(w)
			if !ok {
				return nil, errors.TypeMismatch(errors.PhaseUnmarshal, typeName(w), name)
			}
			if size == 4 {
				return assign(t, float32(f), name)
			}
			return assign(t, f, name)
		},
	}
}

func stringConversion() *Conversion {
	return &Conversion{
		Name:     "string",
		Code:     CodeString,
		Size:     ptrSize,
		Variable: true,
		toWire: func(v any) (any, error) {
			if v == nil {
				return (*BSTR)(nil), nil
			}
			rv := reflect.ValueOf(v)
			if rv.Kind() != reflect.String {
				return nil, errors.TypeMismatch(errors.PhaseMarshal, typeName(v), "string")
			}
			return NewBSTR(rv.String())
		},
		fromWire: func(t reflect.Type, w any) (any, error) {
			switch s := w.(type) {
			case nil:
				return assign(t, "", "string")
			case *BSTR:
				return assign(t, s.String(), "string")
			case string:
				return assign(t, s, "string")
			}
			return nil, errors.TypeMismatch(errors.PhaseUnmarshal, typeName(w), "string")
		},
		cleanup: func(w any) {
			if b, ok := w.(*BSTR); ok {
				b.Free()
			}
		},
	}
}

// oleEpoch is day zero of the OLE automation date.
var oleEpoch = time.Date(1899, 12, 30, 0, 0, 0, 0, time.UTC)

const secondsPerDay = 86400

// ToOLEDate converts a time to fractional days since the OLE epoch.
func ToOLEDate(t time.Time) float64 {
	secs := t.Unix() - oleEpoch.Unix()
	return (float64(secs) + float64(t.Nanosecond())/1e9) / secondsPerDay
}

// FromOLEDate converts fractional days since the OLE epoch to a UTC time,
// rounded to the millisecond.
func FromOLEDate(d float64) time.Time {
	ms := int64(math.Round(d * secondsPerDay * 1000))
	return time.UnixMilli(oleEpoch.UnixMilli() + ms).UTC()
}

func dateConversion() *Conversion {
	return &Conversion{
		Name: "date",
		Code: CodeDate,
		Size: 8,
		toWire: func(v any) (any, error) {
			t, ok := v.(time.Time)
			if !ok {
				return nil, errors.TypeMismatch(errors.PhaseMarshal, typeName(v), "date")
			}
			return ToOLEDate(t), nil
		},
		fromWire: func(t reflect.Type, w any) (any, error) {
			if tm, ok := w.(time.Time); ok {
				return assign(t, tm, "date")
			}
			d, ok := asFloat64(w)
			if !ok {
				return nil, errors.TypeMismatch(errors.PhaseUnmarshal, typeName(w), "date")
			}
			return assign(t, FromOLEDate(d), "date")
		},
	}
}

func guidConversion() *Conversion {
	return &Conversion{
		Name: "guid",
		Code: CodeGUID,
		Size: 16,
		toWire: func(v any) (any, error) {
			switch g := v.(type) {
			case uuid.UUID:
				return g, nil
			case [16]byte:
				return uuid.UUID(g), nil
			case string:
				id, err := uuid.Parse(g)
				if err != nil {
					return nil, errors.Wrap(errors.PhaseMarshal, errors.KindTypeMismatch, err, "parse guid")
				}
				return id, nil
			}
			return nil, errors.TypeMismatch(errors.PhaseMarshal, typeName(v), "guid")
		},
		fromWire: func(t reflect.Type, w any) (any, error) {
			var id uuid.UUID
			switch g := w.(type) {
			case uuid.UUID:
				id = g
			case [16]byte:
				id = g
			default:
				return nil, errors.TypeMismatch(errors.PhaseUnmarshal, typeName(w), "guid")
			}
			if t != nil && t.Kind() == reflect.String {
				return assign(t, id.String(), "guid")
			}
			return assign(t, id, "guid")
		},
	}
}

func objectConversion(code Code, name string) *Conversion {
	return &Conversion{
		Name: name,
		Code: code,
		Size: ptrSize,
		toWire: func(v any) (any, error) {
			switch h := v.(type) {
			case nil:
				return comruntime.Handle(0), nil
			case comruntime.Handle:
				return h, nil
			case HandleOwner:
				return h.NativeHandle(), nil
			}
			return nil, errors.TypeMismatch(errors.PhaseMarshal, typeName(v), name)
		},
		fromWire: func(t reflect.Type, w any) (any, error) {
			switch h := w.(type) {
			case nil:
				return assign(t, comruntime.Handle(0), name)
			case comruntime.Handle:
				return assign(t, h, name)
			case uintptr:
				return assign(t, comruntime.Handle(h), name)
			}
			return nil, errors.TypeMismatch(errors.PhaseUnmarshal, typeName(w), name)
		},
	}
}
