package errors

import (
	stderrors "errors"
	"fmt"
	"sort"
	"strings"
)

// Phase indicates where in processing the error occurred
type Phase string

const (
	PhaseResolve   Phase = "resolve"   // descriptor resolution
	PhaseMarshal   Phase = "marshal"   // Go to wire
	PhaseUnmarshal Phase = "unmarshal" // wire to Go
	PhaseInvoke    Phase = "invoke"    // foreign call
	PhaseApartment Phase = "apartment" // task marshaling
	PhaseLifecycle Phase = "lifecycle" // dispose and release
	PhaseDispatch  Phase = "dispatch"  // inbound event callbacks
	PhaseConfig    Phase = "config"    // configuration and declaration loading
)

// Kind categorizes the error
type Kind string

const (
	KindForeignCall       Kind = "foreign_call"
	KindDisposed          Kind = "disposed"
	KindMissingDescriptor Kind = "missing_descriptor"
	KindUnknownMember     Kind = "unknown_member"
	KindArgumentCount     Kind = "argument_count"
	KindExecution         Kind = "execution"
	KindWrongApartment    Kind = "wrong_apartment"
	KindTypeMismatch      Kind = "type_mismatch"
	KindOverflow          Kind = "overflow"
	KindInvalidEnum       Kind = "invalid_enum"
	KindInvalidInput      Kind = "invalid_input"
	KindNotFound          Kind = "not_found"
	KindClosed            Kind = "closed"
)

// Status codes used by the runtime itself. Values follow the foreign
// object model's HRESULT encoding.
const (
	StatusOK             int32 = 0
	StatusFail           int32 = -2147467259 // E_FAIL 0x80004005
	StatusNoInterface    int32 = -2147467262 // E_NOINTERFACE 0x80004002
	StatusMemberNotFound int32 = -2147352573 // DISP_E_MEMBERNOTFOUND 0x80020003
	StatusUnknownName    int32 = -2147352570 // DISP_E_UNKNOWNNAME 0x80020006
	StatusBadParamCount  int32 = -2147352562 // DISP_E_BADPARAMCOUNT 0x8002000E
)

// Kind-only sentinels for errors.Is. They match any phase.
var (
	ErrForeignCall       = &Error{Kind: KindForeignCall}
	ErrDisposed          = &Error{Kind: KindDisposed}
	ErrMissingDescriptor = &Error{Kind: KindMissingDescriptor}
	ErrUnknownMember     = &Error{Kind: KindUnknownMember}
	ErrArgumentCount     = &Error{Kind: KindArgumentCount}
	ErrExecution         = &Error{Kind: KindExecution}
	ErrWrongApartment    = &Error{Kind: KindWrongApartment}
	ErrClosed            = &Error{Kind: KindClosed}
)

// ErrorInfo is the extended error detail a foreign object may attach to a
// failed call. Every field is optional.
type ErrorInfo struct {
	HelpContext *int32
	GUID        string
	Source      string
	Description string
	HelpFile    string
}

func (i *ErrorInfo) String() string {
	if i == nil || i.Description == "" {
		return "(no description)"
	}
	return i.Description
}

// Error is the structured error type used throughout the runtime
type Error struct {
	Value     any
	Cause     error
	Info      *ErrorInfo
	Phase     Phase
	Kind      Kind
	Interface string
	Method    string
	Detail    string
	Status    int32
}

// Error implements the error interface
func (e *Error) Error() string {
	var b strings.Builder

	b.WriteByte('[')
	b.WriteString(string(e.Phase))
	b.WriteString("] ")
	b.WriteString(string(e.Kind))

	if e.Interface != "" || e.Method != "" {
		b.WriteString(" at ")
		if e.Interface != "" {
			b.WriteString(e.Interface)
			if e.Method != "" {
				b.WriteByte('.')
			}
		}
		b.WriteString(e.Method)
	}

	if e.Status != StatusOK {
		fmt.Fprintf(&b, " (status 0x%08X)", uint32(e.Status))
	}

	if e.Detail != "" {
		b.WriteString(": ")
		b.WriteString(e.Detail)
	}

	if e.Info != nil && e.Info.Description != "" {
		b.WriteString(" - ")
		b.WriteString(e.Info.Description)
	}

	if e.Cause != nil {
		b.WriteString(" (caused by: ")
		b.WriteString(e.Cause.Error())
		b.WriteByte(')')
	}

	return b.String()
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target matches this error. A target without a phase
// matches on kind alone.
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		if t.Phase != "" && e.Phase != t.Phase {
			return false
		}
		return e.Kind == t.Kind
	}
	return false
}

// Builder provides structured error construction
type Builder struct {
	err Error
}

// New creates a new error builder
func New(phase Phase, kind Kind) *Builder {
	return &Builder{
		err: Error{
			Phase: phase,
			Kind:  kind,
		},
	}
}

// At sets the interface and method names
func (b *Builder) At(iface, method string) *Builder {
	b.err.Interface = iface
	b.err.Method = method
	return b
}

// Status sets the foreign status code
func (b *Builder) Status(code int32) *Builder {
	b.err.Status = code
	return b
}

// Info attaches extended error detail
func (b *Builder) Info(info *ErrorInfo) *Builder {
	b.err.Info = info
	return b
}

// Value sets the offending value
func (b *Builder) Value(v any) *Builder {
	b.err.Value = v
	return b
}

// Cause sets the underlying error
func (b *Builder) Cause(err error) *Builder {
	b.err.Cause = err
	return b
}

// Detail sets the human-readable detail message
func (b *Builder) Detail(msg string, args ...any) *Builder {
	if len(args) > 0 {
		b.err.Detail = fmt.Sprintf(msg, args...)
	} else {
		b.err.Detail = msg
	}
	return b
}

// Build returns the constructed error
func (b *Builder) Build() *Error {
	return &b.err
}

// StatusCarrier is implemented by errors produced by a foreign call primitive.
type StatusCarrier interface {
	Status() int32
}

// StatusOf returns the foreign status code carried by err. Errors without a
// status map to StatusFail; nil maps to StatusOK.
func StatusOf(err error) int32 {
	if err == nil {
		return StatusOK
	}
	var e *Error
	if stderrors.As(err, &e) && e.Status != StatusOK {
		return e.Status
	}
	var sc StatusCarrier
	if stderrors.As(err, &sc) {
		return sc.Status()
	}
	return StatusFail
}

// HRESULT is a bare status code returned by a primitive.
type HRESULT int32

func (h HRESULT) Error() string {
	return fmt.Sprintf("foreign call failed with status 0x%08X", uint32(h))
}

// Status implements StatusCarrier.
func (h HRESULT) Status() int32 {
	return int32(h)
}

// Convenience constructors for the runtime's error taxonomy

// ForeignCall wraps a failed foreign call. The status is taken from cause.
func ForeignCall(iface, method string, cause error) *Error {
	return &Error{
		Phase:     PhaseInvoke,
		Kind:      KindForeignCall,
		Interface: iface,
		Method:    method,
		Status:    StatusOf(cause),
		Cause:     cause,
	}
}

// Disposed creates an error for an operation on a disposed object
func Disposed(what string) *Error {
	return &Error{
		Phase:  PhaseLifecycle,
		Kind:   KindDisposed,
		Detail: fmt.Sprintf("%s is already disposed", what),
	}
}

// MissingDescriptor creates an error for a method without a vtable slot or dispatch id
func MissingDescriptor(iface, method, detail string) *Error {
	return &Error{
		Phase:     PhaseResolve,
		Kind:      KindMissingDescriptor,
		Interface: iface,
		Method:    method,
		Detail:    detail,
	}
}

// UnknownMember creates an event dispatch error for an undefined dispatch id
func UnknownMember(dispID int32) *Error {
	return &Error{
		Phase:  PhaseDispatch,
		Kind:   KindUnknownMember,
		Status: StatusMemberNotFound,
		Detail: fmt.Sprintf("undefined dispatch id %d", dispID),
		Value:  dispID,
	}
}

// ArgumentCount creates an argument count mismatch error
func ArgumentCount(method string, expected, found int) *Error {
	return &Error{
		Phase:  PhaseDispatch,
		Kind:   KindArgumentCount,
		Method: method,
		Status: StatusBadParamCount,
		Detail: fmt.Sprintf("argument length mismatch: expected %d but found %d", expected, found),
	}
}

// Execution wraps an unexpected failure inside a marshaled task
func Execution(cause error) *Error {
	return &Error{
		Phase:  PhaseApartment,
		Kind:   KindExecution,
		Detail: "task failed",
		Cause:  cause,
	}
}

// WrongApartment creates an error for access from outside the owning apartment
func WrongApartment(apartment string) *Error {
	return &Error{
		Phase:  PhaseApartment,
		Kind:   KindWrongApartment,
		Detail: fmt.Sprintf("handle is owned by apartment %q and must be accessed from it", apartment),
	}
}

// Closed creates an error for use of a closed apartment or runtime
func Closed(what string) *Error {
	return &Error{
		Phase:  PhaseApartment,
		Kind:   KindClosed,
		Detail: fmt.Sprintf("%s is closed", what),
	}
}

// TypeMismatch creates a conversion type mismatch error
func TypeMismatch(phase Phase, goType, wireType string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindTypeMismatch,
		Detail: fmt.Sprintf("cannot convert Go type %s to/from wire type %s", goType, wireType),
	}
}

// Overflow creates an overflow error
func Overflow(phase Phase, value any, targetType string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindOverflow,
		Detail: fmt.Sprintf("value %v overflows %s", value, targetType),
		Value:  value,
	}
}

// InvalidEnum creates an invalid enum value error
func InvalidEnum(phase Phase, value any, enumType string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindInvalidEnum,
		Detail: fmt.Sprintf("%s has no constant of the value %v", enumType, value),
		Value:  value,
	}
}

// InvalidInput creates an invalid input error
func InvalidInput(phase Phase, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindInvalidInput,
		Detail: detail,
	}
}

// NotFound creates a not-found error
func NotFound(phase Phase, what, name string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindNotFound,
		Detail: fmt.Sprintf("%s %q not found", what, name),
	}
}

// Wrap wraps an existing error with additional context
func Wrap(phase Phase, kind Kind, cause error, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   kind,
		Detail: detail,
		Cause:  cause,
	}
}

// MissingDescriptorsError is returned when validating an interface set finds
// methods that cannot be resolved.
type MissingDescriptorsError struct {
	Methods []*Error
}

func (e *MissingDescriptorsError) Error() string {
	if len(e.Methods) == 0 {
		return "[resolve] missing_descriptor: no methods specified"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%d method(s) cannot be resolved:\n", len(e.Methods))

	// Group by interface for cleaner output
	byIface := make(map[string][]string)
	for _, m := range e.Methods {
		line := m.Method
		if m.Detail != "" {
			line += " (" + m.Detail + ")"
		}
		byIface[m.Interface] = append(byIface[m.Interface], line)
	}
	names := make([]string, 0, len(byIface))
	for name := range byIface {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		b.WriteString("\n  ")
		b.WriteString(name)
		b.WriteString(":\n")
		for _, m := range byIface[name] {
			b.WriteString("    - ")
			b.WriteString(m)
			b.WriteByte('\n')
		}
	}

	return strings.TrimSuffix(b.String(), "\n")
}

// Is reports whether target matches this error type
func (e *MissingDescriptorsError) Is(target error) bool {
	if _, ok := target.(*MissingDescriptorsError); ok {
		return true
	}
	return target == ErrMissingDescriptor
}
