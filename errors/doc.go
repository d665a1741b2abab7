// Package errors provides structured error types for the facesdk library.
//
// Errors are categorized by Phase (where the error occurred) and Kind (error category).
// Faults raised by the native engine additionally carry the engine's numeric
// code and the entry point that raised them.
//
// Use the Builder for structured error construction:
//
//	err := errors.New(errors.PhaseEncode, errors.KindUnsupportedLiteral).
//		Path("image", "shape").
//		Detail("Go type %s has no context representation", "chan int").
//		Build()
//
// Or use convenience constructors for common patterns:
//
//	err := errors.Native("TDVContext_getByIndex", 0x6ba98764, "index out of range")
//	err := errors.OutOfBounds(errors.PhaseBridge, path, 10, 5)
//
// Sentinels match by Kind, so callers can test categories with errors.Is:
//
//	if errors.Is(err, facesdkerrors.ErrIndexOutOfRange) { ... }
package errors
