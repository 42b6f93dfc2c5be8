// Package geoerrors defines the typed error taxonomy shared across the
// extraction pipeline: configuration errors, unsupported identifiers,
// provider/network failures, and extraction/transform failures.
package geoerrors

import "fmt"

// Kind classifies an Error into one of the taxonomy buckets.
type Kind string

const (
	KindConfig                 Kind = "config_error"
	KindUnsupportedIdentifier  Kind = "unsupported_identifier"
	KindProviderAPI            Kind = "provider_api_error"
	KindAccessDenied           Kind = "access_denied"
	KindTransientNetwork       Kind = "transient_network_error"
	KindDownload               Kind = "download_error"
	KindExtraction             Kind = "extraction_failure"
	KindCRSTransform           Kind = "crs_transform_error"
)

// Error is the common error type returned by the public API and CLI.
// It carries enough context (provider, path) to produce the
// provider-named / path-named messages spec.md §7 requires without
// every call site having to format its own string.
type Error struct {
	Kind     Kind
	Message  string
	Provider string
	Path     string
	Err      error
}

func (e *Error) Error() string {
	msg := string(e.Kind) + ": " + e.Message
	if e.Provider != "" {
		msg += fmt.Sprintf(" (provider: %s)", e.Provider)
	}
	if e.Path != "" {
		msg += fmt.Sprintf(" (path: %s)", e.Path)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is reports whether target is an *Error with the same Kind, so callers
// can do errors.Is(err, geoerrors.New(KindConfig, "")) style checks, but
// more commonly they should compare e.Kind after an errors.As.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

func Wrap(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

func (e *Error) WithProvider(name string) *Error {
	e.Provider = name
	return e
}

func (e *Error) WithPath(path string) *Error {
	e.Path = path
	return e
}

// Common sentinel instances mirroring spec.md §6's named error classes.
var (
	ErrConfig                = New(KindConfig, "invalid configuration")
	ErrUnsupportedIdentifier = New(KindUnsupportedIdentifier, "no provider recognizes this identifier")
	ErrTransientNetwork      = New(KindTransientNetwork, "network retries exhausted")
	ErrExtractionFailure     = New(KindExtraction, "extraction failed")
	ErrCRSTransform          = New(KindCRSTransform, "CRS transform failed")
)
