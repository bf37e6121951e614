package errors

import (
	"fmt"
	"strings"
)

// Phase indicates where in the load pipeline the error occurred
type Phase string

const (
	PhaseResolve     Phase = "resolve"     // artifact URL resolution
	PhaseFetch       Phase = "fetch"       // artifact download
	PhaseCache       Phase = "cache"       // cache reads and writes
	PhaseInspect     Phase = "inspect"     // binary preflight checks
	PhaseCompile     Phase = "compile"     // wazero compilation
	PhaseInstantiate Phase = "instantiate" // module instantiation
	PhaseCall        Phase = "call"        // exported function calls
	PhaseLoad        Phase = "load"        // load orchestration
)

// Kind categorizes the error
type Kind string

const (
	KindUnreachable     Kind = "unreachable"
	KindNotFound        Kind = "not_found"
	KindInvalidArtifact Kind = "invalid_artifact"
	KindUnsupported     Kind = "unsupported"
	KindInstantiation   Kind = "instantiation"
	KindOutOfBounds     Kind = "out_of_bounds"
	KindAllocation      Kind = "allocation"
	KindNotInitialized  Kind = "not_initialized"
	KindInvalidInput    Kind = "invalid_input"
)

// Error is the structured error type used throughout the library
type Error struct {
	Cause  error
	Phase  Phase
	Kind   Kind
	URL    string
	Detail string
}

// Error implements the error interface
func (e *Error) Error() string {
	var b strings.Builder

	b.WriteByte('[')
	b.WriteString(string(e.Phase))
	b.WriteString("] ")
	b.WriteString(string(e.Kind))

	if e.URL != "" {
		b.WriteString(" at ")
		b.WriteString(e.URL)
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

// Is reports whether target matches this error
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Phase == t.Phase && e.Kind == t.Kind
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

// URL sets the artifact URL the error refers to
func (b *Builder) URL(u string) *Builder {
	b.err.URL = u
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

// Convenience constructors for common error patterns

// Fetch creates a download failure error
func Fetch(url string, cause error) *Error {
	return &Error{
		Phase:  PhaseFetch,
		Kind:   KindUnreachable,
		URL:    url,
		Detail: "download artifact",
		Cause:  cause,
	}
}

// NotFoundAt creates an artifact-missing error for a URL
func NotFoundAt(url string, cause error) *Error {
	return &Error{
		Phase:  PhaseFetch,
		Kind:   KindNotFound,
		URL:    url,
		Detail: "artifact not published at this URL",
		Cause:  cause,
	}
}

// InvalidArtifact creates a malformed-binary error
func InvalidArtifact(url, detail string) *Error {
	return &Error{
		Phase:  PhaseInspect,
		Kind:   KindInvalidArtifact,
		URL:    url,
		Detail: detail,
	}
}

// Unsupported creates an unsupported-binary error
func Unsupported(url, what string) *Error {
	return &Error{
		Phase:  PhaseInspect,
		Kind:   KindUnsupported,
		URL:    url,
		Detail: what,
	}
}

// Compile creates a compilation error
func Compile(url string, cause error) *Error {
	return &Error{
		Phase:  PhaseCompile,
		Kind:   KindInvalidArtifact,
		URL:    url,
		Detail: "compile artifact",
		Cause:  cause,
	}
}

// Instantiation creates an instantiation error
func Instantiation(url string, cause error) *Error {
	return &Error{
		Phase:  PhaseInstantiate,
		Kind:   KindInstantiation,
		URL:    url,
		Detail: "instantiate artifact",
		Cause:  cause,
	}
}

// ExportNotFound creates a missing-export error
func ExportNotFound(name string) *Error {
	return &Error{
		Phase:  PhaseCall,
		Kind:   KindNotFound,
		Detail: fmt.Sprintf("export %q not found", name),
	}
}

// NotInitialized creates a not-initialized error for a closed or missing component
func NotInitialized(phase Phase, component string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindNotInitialized,
		Detail: fmt.Sprintf("%s not initialized", component),
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

// OutOfBounds creates a linear memory bounds error
func OutOfBounds(offset, length, size uint32) *Error {
	return &Error{
		Phase:  PhaseCall,
		Kind:   KindOutOfBounds,
		Detail: fmt.Sprintf("memory access [%d, %d) exceeds size %d", offset, uint64(offset)+uint64(length), size),
	}
}

// AllocationFailed creates a guest allocation failure error
func AllocationFailed(size uint32) *Error {
	return &Error{
		Phase:  PhaseCall,
		Kind:   KindAllocation,
		Detail: fmt.Sprintf("failed to allocate %d bytes in guest memory", size),
	}
}

// TerminalError is reported to failure observers once every artifact source
// has been exhausted. The loader goes quiet after raising it: queued callbacks
// stay queued until a caller sets a new URL and retriggers the load.
type TerminalError struct {
	Cause     error
	Attempted []string
}

// NewTerminal creates a terminal load failure from the attempted URLs
func NewTerminal(attempted []string, cause error) *TerminalError {
	return &TerminalError{
		Attempted: append([]string(nil), attempted...),
		Cause:     cause,
	}
}

func (e *TerminalError) Error() string {
	var b strings.Builder

	b.WriteString("could not load runtime wasm")
	if len(e.Attempted) > 0 {
		b.WriteString(" from ")
		b.WriteString(strings.Join(e.Attempted, " or "))
	}
	b.WriteString(": set a reachable URL with SetWasmURL and call LoadRuntime to retry")

	if e.Cause != nil {
		b.WriteString(" (caused by: ")
		b.WriteString(e.Cause.Error())
		b.WriteByte(')')
	}

	return b.String()
}

// Unwrap returns the error from the final attempt
func (e *TerminalError) Unwrap() error {
	return e.Cause
}

// Is reports whether target matches this error type
func (e *TerminalError) Is(target error) bool {
	_, ok := target.(*TerminalError)
	return ok
}
