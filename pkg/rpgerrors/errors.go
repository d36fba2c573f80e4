// Package rpgerrors defines the error taxonomy shared by every rpg
// component, so that callers can recover the original Rust source's error
// kinds via errors.As instead of matching on strings.
package rpgerrors

import "fmt"

// Kind discriminates the broad class of failure a component reported.
type Kind string

const (
	Io                   Kind = "io"
	Serialization        Kind = "serialization"
	NetworkError         Kind = "network"
	Timeout              Kind = "timeout"
	InvalidURL           Kind = "invalid_url"
	NotFound             Kind = "not_found"
	ChecksumMismatch     Kind = "checksum_mismatch"
	AllSourcesFailed     Kind = "all_sources_failed"
	SignatureVerification Kind = "signature_verification"
	PackageNotFound      Kind = "package_not_found"
	VersionNotFound      Kind = "version_not_found"
	InvalidVersion       Kind = "invalid_version"
	TransactionFailed    Kind = "transaction_failed"
	RollbackFailed       Kind = "rollback_failed"
	Layout               Kind = "layout"
	PermissionDenied     Kind = "permission_denied"
	Other                Kind = "other"
)

// Error is the concrete error type every rpg component returns.
type Error struct {
	Kind Kind
	Msg  string
	Err  error // wrapped cause, if any
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Msg, e.Err)
	}
	return e.Msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is lets errors.Is(err, rpgerrors.OfKind(...)) read naturally: it matches
// any other *Error with the same Kind, whatever its message.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

// New builds an *Error of the given kind with a formatted message.
func New(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

// Wrap builds an *Error of the given kind around an underlying cause.
func Wrap(kind Kind, err error, format string, args ...any) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...), Err: err}
}

// OfKind is a small helper for errors.Is comparisons, e.g.
// errors.Is(err, rpgerrors.OfKind(rpgerrors.NotFound)).
func OfKind(kind Kind) *Error {
	return &Error{Kind: kind}
}

// ChecksumMismatchError carries the expected and actual digests of a
// failed download, per the Fetcher's ChecksumMismatch{expected, actual}
// failure shape.
type ChecksumMismatchError struct {
	Expected string
	Actual   string
}

func (e *ChecksumMismatchError) Error() string {
	return fmt.Sprintf("checksum mismatch: expected=%s actual=%s", e.Expected, e.Actual)
}

func NewChecksumMismatch(expected, actual string) *Error {
	return &Error{
		Kind: ChecksumMismatch,
		Msg:  fmt.Sprintf("checksum mismatch: expected=%s actual=%s", expected, actual),
		Err:  &ChecksumMismatchError{Expected: expected, Actual: actual},
	}
}
