// Package errs provides shared sentinel errors; the idcmp, wire and
// actionlog packages return them.
package errs

import "errors"

var (
	ErrClosed            = errors.New("logux: store closed")
	ErrAddressDuplicated = errors.New("logux: address already in use")
	ErrAddressUnknown    = errors.New("logux: address unknown")
	ErrNotFound          = errors.New("logux: entry not found")
	ErrBadMessage        = errors.New("logux: malformed wire message")
	ErrMissingType       = errors.New("logux: action.type is required")
	ErrBadReason         = errors.New("logux: reasons must be non-empty strings")
)
