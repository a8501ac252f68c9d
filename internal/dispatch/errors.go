package dispatch

import "errors"

// Kind classifies a dispatch error for transport mapping.
type Kind int

const (
	// KindNotFound means a referenced tier, station, incident or
	// requirement does not exist.
	KindNotFound Kind = iota + 1
	// KindInvalidRequest covers malformed input and business-rule
	// violations, always with a human-readable reason.
	KindInvalidRequest
	// KindUnauthorized covers bad or missing credentials and role-scope
	// violations.
	KindUnauthorized
)

// Error is the taxonomy carrier returned by engine operations.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Msg + ": " + e.Err.Error()
	}
	return e.Msg
}

func (e *Error) Unwrap() error { return e.Err }

// NotFound builds a KindNotFound error.
func NotFound(msg string) error {
	return &Error{Kind: KindNotFound, Msg: msg}
}

// InvalidRequest builds a KindInvalidRequest error.
func InvalidRequest(msg string) error {
	return &Error{Kind: KindInvalidRequest, Msg: msg}
}

// Unauthorized builds a KindUnauthorized error.
func Unauthorized(msg string) error {
	return &Error{Kind: KindUnauthorized, Msg: msg}
}

// KindOf extracts the taxonomy kind from err, or 0 when err carries none.
func KindOf(err error) Kind {
	var de *Error
	if errors.As(err, &de) {
		return de.Kind
	}
	return 0
}
