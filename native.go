package comruntime

import (
	"github.com/google/uuid"

	"github.com/wippyai/com-runtime/errors"
)

// Handle is an opaque pointer to a reference-counted foreign object.
// Handle 0 is reserved and always invalid.
type Handle uintptr

// IID identifies a foreign interface.
type IID = uuid.UUID

// Code selects the conversion the primitive applies to one wire value.
type Code uint8

// InvokeKind selects the late-bound invocation flavor.
type InvokeKind uint8

const (
	InvokeMethod InvokeKind = 1 << iota
	InvokePropertyGet
	InvokePropertyPut
	InvokePropertyPutRef
)

// Root interfaces every foreign object model implementation provides.
var (
	IIDUnknown                  = uuid.MustParse("00000000-0000-0000-c000-000000000046")
	IIDDispatch                 = uuid.MustParse("00020400-0000-0000-c000-000000000046")
	IIDConnectionPointContainer = uuid.MustParse("b196b284-bab4-101a-b69c-00aa00341d07")
	IIDConnectionPoint          = uuid.MustParse("b196b286-bab4-101a-b69c-00aa00341d07")
	IIDErrorInfo                = uuid.MustParse("1cf2b120-547d-101b-8e65-08002b2bd119")
)

// Primitive is the raw foreign call layer. Implementations are assumed
// correct; the runtime only guarantees that every call on a handle happens
// on the apartment that owns it.
type Primitive interface {
	// Invoke calls the method at vtable slot on h. A failure is reported
	// as an error carrying a status code (see errors.StatusOf).
	Invoke(h Handle, slot int, args []any, codes []Code, retIndex int, retInOut bool, retCode Code) (any, error)

	// Dispatch performs a late-bound call by dispatch id.
	Dispatch(h Handle, dispID int32, kind InvokeKind, args []any, codes []Code, retCode Code) (any, error)

	// QueryInterface returns an AddRef'd handle for iid, or 0 when h does
	// not implement it.
	QueryInterface(h Handle, iid IID) (Handle, error)

	AddRef(h Handle)
	Release(h Handle)

	// ExtendedError returns the detail the object attached to its last
	// failure on the interface iid, or nil when there is none.
	ExtendedError(h Handle, iid IID) (*errors.ErrorInfo, error)

	// Advise connects sink to the connection point cp and returns a cookie
	// handle for Unadvise.
	Advise(cp Handle, sink Sink, iid IID) (Handle, error)
	Unadvise(cookie Handle) error
}

// Sink receives late-bound callbacks from a foreign event source.
type Sink interface {
	// Invoke delivers one callback. args are wire values.
	Invoke(dispID int32, kind InvokeKind, args []any) (any, error)

	// DispIDsOfNames maps member names to dispatch ids. Unknown names map
	// to DispIDUnknown.
	DispIDsOfNames(names []string) []int32
}

// DispIDUnknown is returned by Sink.DispIDsOfNames for unknown names.
const DispIDUnknown int32 = -1

// Initializer is optionally implemented by a Primitive that must prepare
// each apartment thread before use (and tear it down after).
type Initializer interface {
	InitializeThread() error
	UninitializeThread()
}
