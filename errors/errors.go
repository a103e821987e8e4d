package errors

import (
	stderrors "errors"
	"fmt"
)

// Sentinel errors for the taxonomy. Wrap these (never return them bare from
// a backend) so errors.Is works across wrapping layers.
var (
	// ErrNotFound indicates the requested path does not exist.
	ErrNotFound = stderrors.New("storage: not found")

	// ErrPermissionDenied indicates the backend refused access.
	ErrPermissionDenied = stderrors.New("storage: permission denied")

	// ErrAlreadyExists indicates a destination path already exists.
	ErrAlreadyExists = stderrors.New("storage: already exists")

	// ErrIsSameFile indicates a transfer whose destination lies inside
	// (or equals) its own source.
	ErrIsSameFile = stderrors.New("storage: source and destination are the same file")

	// ErrConfig indicates invalid or missing configuration.
	ErrConfig = stderrors.New("config: invalid configuration")

	// ErrUnsupportedKind indicates a source kind this build cannot
	// construct a connection for.
	ErrUnsupportedKind = stderrors.New("config: unsupported source kind")

	// ErrSourceNotFound indicates no source is configured under the
	// requested id.
	ErrSourceNotFound = stderrors.New("registry: source not found")

	// ErrIO indicates a local filesystem failure while ingesting
	// external paths.
	ErrIO = stderrors.New("io: local filesystem error")

	// ErrUnexpected covers backend failures with no better class.
	ErrUnexpected = stderrors.New("storage: unexpected error")
)

// Error wraps an underlying failure with the operation that produced it and,
// when applicable, the offending path. It is the uniform wrapper every
// storage backend and the registry return.
type Error struct {
	// Op is the failing operation, e.g. "s3.list" or "registry.add".
	Op string

	// Path is the root-relative (or local, for ingestion) path involved.
	Path string

	// Err is the underlying error, terminating in a taxonomy sentinel.
	Err error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error for error chaining support.
func (e *Error) Unwrap() error { return e.Err }

// WithPath adds path context to the error.
func (e *Error) WithPath(path string) *Error {
	e.Path = path
	return e
}

// WithMessage prefixes the underlying error with a custom message.
func (e *Error) WithMessage(message string) *Error {
	e.Err = fmt.Errorf("%s: %w", message, e.Err)
	return e
}

// New creates an Error for the given operation and underlying error.
func New(op string, err error) *Error {
	return &Error{Op: op, Err: err}
}

// NewPath creates an Error carrying path context.
func NewPath(op, path string, err error) *Error {
	return &Error{Op: op, Path: path, Err: err}
}

// CodeOf derives the taxonomy code for an error. Unclassified errors map to
// CodeUnknown; nil maps to the empty code.
func CodeOf(err error) ErrorCode {
	switch {
	case err == nil:
		return ""
	case stderrors.Is(err, ErrNotFound), stderrors.Is(err, ErrSourceNotFound):
		return CodeNotFound
	case stderrors.Is(err, ErrPermissionDenied):
		return CodePermissionDenied
	case stderrors.Is(err, ErrAlreadyExists):
		return CodeAlreadyExists
	case stderrors.Is(err, ErrConfig), stderrors.Is(err, ErrUnsupportedKind):
		return CodeConfig
	case stderrors.Is(err, ErrIO):
		return CodeIO
	default:
		return CodeUnknown
	}
}

// IsNotFound reports whether err classifies as CodeNotFound.
func IsNotFound(err error) bool {
	return stderrors.Is(err, ErrNotFound) || stderrors.Is(err, ErrSourceNotFound)
}

// IsAlreadyExists reports whether err classifies as CodeAlreadyExists.
func IsAlreadyExists(err error) bool {
	return stderrors.Is(err, ErrAlreadyExists)
}

// IsConfig reports whether err classifies as CodeConfig.
func IsConfig(err error) bool {
	return stderrors.Is(err, ErrConfig) || stderrors.Is(err, ErrUnsupportedKind)
}

// Wire is the structured {code, message} pair surfaced to callers of the
// command boundary.
type Wire struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
}

// ToWire flattens an error into its caller-visible form.
func ToWire(err error) Wire {
	if err == nil {
		return Wire{}
	}
	return Wire{Code: CodeOf(err), Message: err.Error()}
}

// Is and As re-exports so callers don't need to import both this package
// and the standard library one.

// Is reports whether any error in err's chain matches target.
func Is(err, target error) bool { return stderrors.Is(err, target) }

// As finds the first error in err's chain that matches target.
func As(err error, target any) bool { return stderrors.As(err, target) }
