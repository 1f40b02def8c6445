// Package cacheerr defines the closed set of error kinds produced by the
// CacheSight analysis pipeline. Every component-level error returned to a
// caller carries one of these kinds instead of a free-form sentinel.
package cacheerr

import "fmt"

// Kind is a closed enumeration of the pipeline's error categories.
type Kind int

const (
	// InvalidInput covers nil pointers, empty required arrays, and malformed configuration.
	InvalidInput Kind = iota
	// ExtractorFailed means the AST backend reported a fatal diagnostic for one translation unit.
	ExtractorFailed
	// UnsupportedTopology means the cache topology snapshot has fewer than one level.
	UnsupportedTopology
	// Cancelled means a cooperative stop flag fired during simulation or classification.
	Cancelled
	// Internal marks an invariant violation; it must be logged at critical level by the caller.
	Internal
)

func (k Kind) String() string {
	switch k {
	case InvalidInput:
		return "InvalidInput"
	case ExtractorFailed:
		return "ExtractorFailed"
	case UnsupportedTopology:
		return "UnsupportedTopology"
	case Cancelled:
		return "Cancelled"
	case Internal:
		return "Internal"
	default:
		return "Unknown"
	}
}

// Error is the concrete error type carried across component boundaries.
type Error struct {
	Kind    Kind
	Message string
	Diag    string // compiler diagnostic text, set only for ExtractorFailed
	cause   error
}

func (e *Error) Error() string {
	if e.Diag != "" {
		return fmt.Sprintf("%s: %s (diag: %s)", e.Kind, e.Message, e.Diag)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

// New builds an Error of the given kind with a message.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Newf builds an Error of the given kind with a formatted message.
func Newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches kind and message context to an underlying error, preserving
// it for errors.Unwrap/errors.Is/As chains.
func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, cause: cause}
}

// ExtractorDiag builds an ExtractorFailed error carrying the compiler diagnostic.
func ExtractorDiag(message, diag string) *Error {
	return &Error{Kind: ExtractorFailed, Message: message, Diag: diag}
}

// Is reports whether err is a *Error of the given kind.
func Is(err error, kind Kind) bool {
	ce, ok := err.(*Error)
	if !ok {
		return false
	}
	return ce.Kind == kind
}
