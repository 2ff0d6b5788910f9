package fetcher

import "fmt"

// FetchErrorKind classifies per-source fetch failures. Every kind is
// recoverable: the source simply contributes stale or zero entries for the
// cycle, the process never dies over a bad upstream.
type FetchErrorKind int

const (
	ErrTimeout     FetchErrorKind = iota // per-source deadline exceeded
	ErrUnreachable                       // transport failure or non-404 HTTP error
	ErrNotFound                          // HTTP 404 or missing file
	ErrTooLarge                          // response exceeded the configured size cap
)

// String returns the kind's stable label, also used as a metrics label value.
func (k FetchErrorKind) String() string {
	switch k {
	case ErrTimeout:
		return "timeout"
	case ErrUnreachable:
		return "unreachable"
	case ErrNotFound:
		return "not_found"
	case ErrTooLarge:
		return "too_large"
	default:
		return "unknown"
	}
}

// FetchError is the typed failure returned by Fetch. It wraps the underlying
// cause so callers can still errors.Is/As into transport details.
type FetchError struct {
	Kind   FetchErrorKind
	Source string // source name, for logs and statuses
	Err    error  // underlying cause, may be nil
}

func (e *FetchError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("fetch %s: %s: %v", e.Source, e.Kind, e.Err)
	}
	return fmt.Sprintf("fetch %s: %s", e.Source, e.Kind)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}
