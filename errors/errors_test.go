package errors

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestError_Error(t *testing.T) {
	tests := []struct {
		name     string
		err      *Error
		contains []string
	}{
		{
			name: "full error",
			err: &Error{
				Phase:     PhaseInvoke,
				Kind:      KindForeignCall,
				Interface: "IWidget",
				Method:    "Resize",
				Status:    StatusFail,
				Detail:    "refused",
				Info:      &ErrorInfo{Description: "size too large"},
			},
			contains: []string{"[invoke]", "foreign_call", "IWidget.Resize", "0x80004005", "refused", "size too large"},
		},
		{
			name: "minimal error",
			err: &Error{
				Phase: PhaseResolve,
				Kind:  KindMissingDescriptor,
			},
			contains: []string{"[resolve]", "missing_descriptor"},
		},
		{
			name: "error with cause",
			err: &Error{
				Phase:  PhaseApartment,
				Kind:   KindExecution,
				Detail: "task failed",
				Cause:  errors.New("underlying error"),
			},
			contains: []string{"[apartment]", "execution", "task failed", "caused by", "underlying error"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg := tt.err.Error()
			for _, s := range tt.contains {
				assert.Contains(t, msg, s)
			}
		})
	}
}

func TestError_Unwrap(t *testing.T) {
	cause := errors.New("root cause")
	err := Execution(cause)

	assert.ErrorIs(t, err, cause)
	assert.Same(t, cause, errors.Unwrap(err))
}

func TestError_Is(t *testing.T) {
	err := Disposed("IWidget:10")

	assert.True(t, errors.Is(err, ErrDisposed))
	assert.True(t, errors.Is(err, &Error{Phase: PhaseLifecycle, Kind: KindDisposed}))
	assert.False(t, errors.Is(err, &Error{Phase: PhaseInvoke, Kind: KindDisposed}))
	assert.False(t, errors.Is(err, ErrForeignCall))

	wrapped := fmt.Errorf("outer: %w", err)
	assert.True(t, errors.Is(wrapped, ErrDisposed))
}

func TestBuilder(t *testing.T) {
	info := &ErrorInfo{Source: "Widget.Server", Description: "bad size"}
	err := New(PhaseInvoke, KindForeignCall).
		At("IWidget", "Resize").
		Status(StatusNoInterface).
		Info(info).
		Value(42).
		Detail("resize to %d", 42).
		Build()

	assert.Equal(t, "IWidget", err.Interface)
	assert.Equal(t, "Resize", err.Method)
	assert.Equal(t, StatusNoInterface, err.Status)
	assert.Same(t, info, err.Info)
	assert.Equal(t, 42, err.Value)
	assert.Equal(t, "resize to 42", err.Detail)
}

func TestStatusOf(t *testing.T) {
	assert.Equal(t, StatusOK, StatusOf(nil))
	assert.Equal(t, StatusFail, StatusOf(errors.New("plain")))
	assert.Equal(t, int32(-5), StatusOf(HRESULT(-5)))
	assert.Equal(t, int32(-5), StatusOf(fmt.Errorf("wrapped: %w", HRESULT(-5))))
	assert.Equal(t, StatusMemberNotFound, StatusOf(UnknownMember(3)))
}

func TestForeignCall(t *testing.T) {
	err := ForeignCall("IWidget", "Resize", HRESULT(StatusNoInterface))

	assert.Equal(t, StatusNoInterface, err.Status)
	assert.True(t, errors.Is(err, ErrForeignCall))

	var h HRESULT
	require.True(t, errors.As(err, &h))
	assert.Equal(t, HRESULT(StatusNoInterface), h)
}

func TestDispatchErrors(t *testing.T) {
	unknown := UnknownMember(5)
	assert.Equal(t, StatusMemberNotFound, unknown.Status)
	assert.Contains(t, unknown.Error(), "undefined dispatch id 5")

	count := ArgumentCount("Clicked", 2, 3)
	assert.Equal(t, StatusBadParamCount, count.Status)
	assert.Contains(t, count.Error(), "expected 2 but found 3")
	assert.True(t, errors.Is(count, ErrArgumentCount))
}

func TestMissingDescriptorsError(t *testing.T) {
	err := &MissingDescriptorsError{Methods: []*Error{
		MissingDescriptor("IWidget", "Resize", "no vtable slot or dispatch id"),
		MissingDescriptor("IAlpha", "Frob", ""),
		MissingDescriptor("IWidget", "Move", ""),
	}}

	msg := err.Error()
	assert.Contains(t, msg, "3 method(s) cannot be resolved")
	assert.Contains(t, msg, "IWidget:")
	assert.Contains(t, msg, "- Resize (no vtable slot or dispatch id)")
	assert.Less(t, strings.Index(msg, "IAlpha"), strings.Index(msg, "IWidget"))

	assert.True(t, errors.Is(err, ErrMissingDescriptor))
	assert.True(t, errors.Is(err, &MissingDescriptorsError{}))

	empty := &MissingDescriptorsError{}
	assert.Contains(t, empty.Error(), "no methods specified")
}

func TestErrorInfo_String(t *testing.T) {
	var nilInfo *ErrorInfo
	assert.Equal(t, "(no description)", nilInfo.String())
	assert.Equal(t, "boom", (&ErrorInfo{Description: "boom"}).String())
}
