package errors

import (
	"fmt"
	"strings"
)

// Phase indicates where in processing the error occurred
type Phase string

const (
	PhaseLoad    Phase = "load"    // native library loading
	PhaseBridge  Phase = "bridge"  // native entry point calls
	PhaseEncode  Phase = "encode"  // Go literal to context
	PhaseDecode  Phase = "decode"  // context to Go literal
	PhaseProcess Phase = "process" // processing block construction and invocation
	PhaseSession Phase = "session" // service lifecycle
	PhaseFetch   Phase = "fetch"   // model artifact retrieval
)

// Kind categorizes the error
type Kind string

const (
	KindLibraryLoad        Kind = "library_load"
	KindNativeFault        Kind = "native_fault"
	KindTypeMismatch       Kind = "type_mismatch"
	KindKeyTypeMismatch    Kind = "key_type_mismatch"
	KindOutOfBounds        Kind = "out_of_bounds"
	KindUnsupportedLiteral Kind = "unsupported_literal"
	KindMissingArtifact    Kind = "missing_artifact"
	KindInvalidInput       Kind = "invalid_input"
	KindStaleReference     Kind = "stale_reference"
	KindClosed             Kind = "closed"
	KindUnsupported        Kind = "unsupported"
	KindNotFound           Kind = "not_found"
)

// Sentinels for errors.Is. They match any phase.
var (
	ErrLibraryLoad        = &Error{Kind: KindLibraryLoad}
	ErrNativeFault        = &Error{Kind: KindNativeFault}
	ErrTypeMismatch       = &Error{Kind: KindTypeMismatch}
	ErrKeyTypeMismatch    = &Error{Kind: KindKeyTypeMismatch}
	ErrIndexOutOfRange    = &Error{Kind: KindOutOfBounds}
	ErrUnsupportedLiteral = &Error{Kind: KindUnsupportedLiteral}
	ErrMissingArtifact    = &Error{Kind: KindMissingArtifact}
	ErrInvalidInput       = &Error{Kind: KindInvalidInput}
	ErrStaleReference     = &Error{Kind: KindStaleReference}
	ErrClosed             = &Error{Kind: KindClosed}
	ErrUnsupported        = &Error{Kind: KindUnsupported}
	ErrNotFound           = &Error{Kind: KindNotFound}
)

// Error is the structured error type used throughout the SDK.
//
// Faults raised by the native engine carry the engine's numeric Code and the
// entry point name in Op.
type Error struct {
	Value  any
	Cause  error
	Phase  Phase
	Kind   Kind
	Op     string
	Detail string
	Path   []string
	Code   uint32
}

// Error implements the error interface
func (e *Error) Error() string {
	var b strings.Builder

	b.WriteByte('[')
	b.WriteString(string(e.Phase))
	b.WriteString("] ")
	b.WriteString(string(e.Kind))

	if len(e.Path) > 0 {
		b.WriteString(" at ")
		b.WriteString(strings.Join(e.Path, "."))
	}

	if e.Op != "" {
		b.WriteString(": ")
		b.WriteString(e.Op)
	}

	if e.Code != 0 {
		fmt.Fprintf(&b, " (code 0x%08x)", e.Code)
	}

	if e.Detail != "" {
		b.WriteString(": ")
		b.WriteString(e.Detail)
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

// Is reports whether target matches this error.
// Kind must match; Phase and Code are compared only when the target sets them.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if e.Kind != t.Kind {
		return false
	}
	if t.Phase != "" && e.Phase != t.Phase {
		return false
	}
	return t.Code == 0 || e.Code == t.Code
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

// Path sets the field path
func (b *Builder) Path(path ...string) *Builder {
	b.err.Path = path
	return b
}

// Op sets the native entry point or operation name
func (b *Builder) Op(op string) *Builder {
	b.err.Op = op
	return b
}

// Code sets the native error code
func (b *Builder) Code(code uint32) *Builder {
	b.err.Code = code
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

// Native creates a fault reported by the native engine through its exception slot.
func Native(op string, code uint32, message string) *Error {
	return &Error{
		Phase:  PhaseBridge,
		Kind:   KindNativeFault,
		Op:     op,
		Code:   code,
		Detail: message,
	}
}

// LibraryLoad creates a library loading error
func LibraryLoad(path string, cause error) *Error {
	return &Error{
		Phase:  PhaseLoad,
		Kind:   KindLibraryLoad,
		Detail: fmt.Sprintf("load native library %q", path),
		Value:  path,
		Cause:  cause,
	}
}

// TypeMismatch creates a type mismatch error
func TypeMismatch(phase Phase, path []string, want, got string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindTypeMismatch,
		Path:   path,
		Detail: fmt.Sprintf("expected %s, got %s", want, got),
	}
}

// KeyTypeMismatch creates an error for keyed access on a non-object value
func KeyTypeMismatch(phase Phase, path []string, got string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindKeyTypeMismatch,
		Path:   path,
		Detail: fmt.Sprintf("keyed access on %s value", got),
	}
}

// OutOfBounds creates an out of bounds error
func OutOfBounds(phase Phase, path []string, index, length int) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindOutOfBounds,
		Path:   path,
		Detail: fmt.Sprintf("index %d out of bounds (length %d)", index, length),
		Value:  index,
	}
}

// UnsupportedLiteral creates an error for a Go value with no context representation
func UnsupportedLiteral(path []string, goType string) *Error {
	return &Error{
		Phase:  PhaseEncode,
		Kind:   KindUnsupportedLiteral,
		Path:   path,
		Detail: fmt.Sprintf("Go type %s has no context representation", goType),
	}
}

// MissingArtifact creates an error for model files that are absent and could not be fetched
func MissingArtifact(unitType string, files []string) *Error {
	return &Error{
		Phase:  PhaseFetch,
		Kind:   KindMissingArtifact,
		Detail: fmt.Sprintf("unit %s: missing %s", unitType, strings.Join(files, ", ")),
		Value:  files,
	}
}

// StaleReference creates an error for use of a weak reference past its validity
func StaleReference(detail string) *Error {
	return &Error{
		Phase:  PhaseBridge,
		Kind:   KindStaleReference,
		Detail: detail,
	}
}

// Closed creates an error for use of a released object
func Closed(phase Phase, what string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindClosed,
		Detail: fmt.Sprintf("%s is closed", what),
	}
}

// Unsupported creates an unsupported operation error
func Unsupported(phase Phase, what string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindUnsupported,
		Detail: what,
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

// InvalidInput creates an invalid input error
func InvalidInput(phase Phase, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindInvalidInput,
		Detail: detail,
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

// CodeOf returns the native error code carried by err, or 0.
func CodeOf(err error) uint32 {
	for err != nil {
		if e, ok := err.(*Error); ok && e.Code != 0 {
			return e.Code
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return 0
		}
		err = u.Unwrap()
	}
	return 0
}
