package node

import "fmt"

// Domain error kinds recognized on the wire (spec §7). Any other
// string is treated as an application-supplied kind raised by an
// auth/connect listener.
const (
	KindWrongFormat      = "wrong-format"
	KindUnknownMessage   = "unknown-message"
	KindWrongProtocol    = "wrong-protocol"
	KindWrongSubprotocol = "wrong-subprotocol"
	KindWrongCredentials = "wrong-credentials"
	KindTimeout          = "timeout"
	KindBruteforce       = "bruteforce"
)

// informational kinds are never thrown locally by default; they are
// only reported through the error-subscription surface (spec §4.4.7,
// §7).
var informational = map[string]bool{
	KindTimeout:          true,
	KindWrongProtocol:    true,
	KindWrongSubprotocol: true,
}

// DomainError is a categorized protocol error, either generated
// locally (Received false) or delivered by the peer (Received true).
type DomainError struct {
	Kind     string
	Options  any
	Received bool
}

func (e *DomainError) Error() string {
	if e.Received {
		return fmt.Sprintf("node: peer reported %q", e.Kind)
	}
	return fmt.Sprintf("node: %s", e.Kind)
}

// Informational reports whether this kind is excluded from the
// throw-unless-subscribed rule of spec §4.4.7.
func (e *DomainError) Informational() bool { return informational[e.Kind] }

var errBadWirePayload = fmt.Errorf("node: malformed sync action/meta payload")
