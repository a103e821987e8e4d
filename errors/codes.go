// Package errors provides the closed error taxonomy shared by every storage
// backend and by the registry. Backend- and OS-native failures are wrapped
// into this taxonomy at the boundary where they occur, so callers can branch
// on a code instead of matching message strings.
package errors

// ErrorCode classifies an error for callers. Codes are string-based for
// debuggability and natural JSON serialization.
type ErrorCode string

const (
	// CodeNotFound indicates the requested path or source does not exist.
	CodeNotFound ErrorCode = "NOT_FOUND"

	// CodePermissionDenied indicates the backend refused access.
	CodePermissionDenied ErrorCode = "PERMISSION_DENIED"

	// CodeAlreadyExists indicates a destination path already exists.
	CodeAlreadyExists ErrorCode = "ALREADY_EXISTS"

	// CodeConfig indicates bad or missing configuration, an unsupported
	// source kind, or an invalid enum string at the command boundary.
	CodeConfig ErrorCode = "CONFIG_ERROR"

	// CodeIO indicates a local filesystem failure during ingestion of
	// external paths.
	CodeIO ErrorCode = "IO_ERROR"

	// CodeUnknown covers backend-reported failures not otherwise
	// classified, including unique-name exhaustion. Unknown errors are
	// non-retryable.
	CodeUnknown ErrorCode = "UNKNOWN"
)
