package descriptor

import (
	"reflect"

	comruntime "github.com/wippyai/com-runtime"
	"github.com/wippyai/com-runtime/wire"
)

// ReservedSlots is the number of vtable slots taken by the root
// reference-counting methods.
const ReservedSlots = 3

// Interface declares one foreign interface.
type Interface struct {
	Name    string
	Parent  string // empty for the root interface
	Methods []*Method
	IID     comruntime.IID
}

// Return declares a method's return value.
type Return struct {
	// Type is the Go type the result converts to. Nil means the
	// conversion's natural type.
	Type reflect.Type
	// Interface names the declared interface of an object result.
	Interface string
	// Index is the position of the return value among the wire arguments.
	// A negative index places it after the last parameter.
	Index int
	Code  wire.Code
	// InOut marks a return value that is also passed in at Index.
	InOut bool
}

// UseDefaults declares a facade method that forwards to Target with a
// subset of its arguments. Mapping[i] is the Target parameter receiving
// facade argument i; other Target parameters take their defaults.
type UseDefaults struct {
	Target  string
	Mapping []int
}

// Method declares one method of an interface.
type Method struct {
	VTID   *int
	DispID *int32
	Return *Return
	// Defaults holds per-parameter default values. A nil entry is a
	// required parameter, wire.Missing an omittable one.
	Defaults    []any
	UseDefaults *UseDefaults
	// DefaultChain lists the interfaces whose default methods are walked
	// before the final call.
	DefaultChain []string
	Name         string
	Params       []wire.Code
	Invoke       comruntime.InvokeKind
	// IsDefault marks the interface's default member.
	IsDefault  bool
	Restricted bool
}

// Slot returns a pointer to n, for building declarations.
func Slot(n int) *int {
	return &n
}

// DispID returns a pointer to id, for building declarations.
func DispID(id int32) *int32 {
	return &id
}

// IsFacade reports whether m forwards to other calls instead of making a
// wire call of its own.
func (m *Method) IsFacade() bool {
	return m.UseDefaults != nil || len(m.DefaultChain) > 0
}

// Method returns the ordinal and declaration of the method named name
// declared directly on i.
func (i *Interface) Method(name string) (int, *Method) {
	for ord, m := range i.Methods {
		if m.Name == name {
			return ord, m
		}
	}
	return -1, nil
}

// DefaultMethod returns the method marked IsDefault, if any.
func (i *Interface) DefaultMethod() *Method {
	for _, m := range i.Methods {
		if m.IsDefault {
			return m
		}
	}
	return nil
}
