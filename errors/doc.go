// Package errors provides structured error types for the com-runtime library.
//
// Errors are categorized by Phase (where the error occurred) and Kind (error category).
// The Error type carries the interface and method names, the foreign status code,
// optional extended error detail reported by the foreign object, and a cause chain.
//
// Use the Builder for structured error construction:
//
//	err := errors.New(errors.PhaseInvoke, errors.KindForeignCall).
//		At("IWidget", "Resize").
//		Status(errors.StatusFail).
//		Detail("object refused the new size").
//		Build()
//
// Or use convenience constructors for the runtime taxonomy:
//
//	err := errors.ForeignCall("IWidget", "Resize", cause)
//	err := errors.Disposed("IWidget:1f40")
//	err := errors.UnknownMember(5)
//
// Kind-only sentinels match any phase:
//
//	if errors.Is(err, errors.ErrDisposed) { ... }
//
// All errors implement the standard error interface and support errors.Is/As.
package errors
