package ingest

import (
	"errors"
	"fmt"
)

// Kind classifies pipeline failures so the HTTP layer can map them to a
// status code without string matching.
type Kind int

const (
	// Input rejection: client errors, surfaced before side effects.
	KindInvalidSourceFormat Kind = iota + 1
	KindInvalidURLFormat
	KindSSRFBlocked
	KindDNSFailure
	KindMalformedURL
	KindMissingCoordinateColumns
	KindNoKMLInArchive
	KindNoShapefileInArchive
	KindEmptyDataset
	KindMissingCRS

	// Server errors.
	KindTileBuildFailed
	KindToolFailed
)

func (k Kind) String() string {
	switch k {
	case KindInvalidSourceFormat:
		return "invalid_source_format"
	case KindInvalidURLFormat:
		return "invalid_url_format"
	case KindSSRFBlocked:
		return "ssrf_blocked"
	case KindDNSFailure:
		return "dns_failure"
	case KindMalformedURL:
		return "malformed_url"
	case KindMissingCoordinateColumns:
		return "missing_coordinate_columns"
	case KindNoKMLInArchive:
		return "no_kml_in_archive"
	case KindNoShapefileInArchive:
		return "no_shapefile_in_archive"
	case KindEmptyDataset:
		return "empty_dataset"
	case KindMissingCRS:
		return "missing_crs"
	case KindTileBuildFailed:
		return "tile_build_failed"
	case KindToolFailed:
		return "tool_failed"
	default:
		return "unknown"
	}
}

// ClientError reports whether the failure is the caller's fault.
func (k Kind) ClientError() bool {
	return k >= KindInvalidSourceFormat && k <= KindMissingCRS
}

// Error is a pipeline failure tagged with its Kind.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// Errf builds a tagged error with a formatted message.
func Errf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap tags an underlying error with a Kind and context message.
func Wrap(kind Kind, cause error, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Cause: cause}
}

// KindOf extracts the Kind from err, or KindToolFailed when err carries
// no tag.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindToolFailed
}
