package smtpclient

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/net/idna"

	"blitiri.com.ar/go/smtpclient/internal/envelope"
	"blitiri.com.ar/go/smtpclient/internal/normalize"
)

// ErrInvalidEnvelope indicates an Envelope with no recipients, or an
// Address that is not a well-formed user@domain or user@[literal].
var ErrInvalidEnvelope = errors.New("smtpclient: invalid envelope")

// Address is one SMTP mailbox: a local part and a domain, the latter
// possibly an address literal per RFC 5321 §4.1.2 ("[1.2.3.4]" or
// "[IPv6:...]") rather than a domain name.
type Address struct {
	Local  string
	Domain string
}

// ParseAddress splits raw into its local part and domain. It does not
// validate either half beyond requiring a non-empty domain after the
// first '@'; SMTP local parts are opaque to everyone but the destination
// server.
func ParseAddress(raw string) (Address, error) {
	user, domain := envelope.Split(raw)
	if domain == "" {
		return Address{}, fmt.Errorf("%w: %q has no domain part", ErrInvalidEnvelope, raw)
	}
	return Address{Local: user, Domain: domain}, nil
}

// String renders the address in user@domain form, the way it appears on
// the wire inside MAIL FROM/RCPT TO angle brackets.
func (a Address) String() string {
	return a.Local + "@" + a.Domain
}

// IsLiteral reports whether Domain is an RFC 5321 §4.1.2 address literal
// ("[...]") rather than a domain name.
func (a Address) IsLiteral() bool {
	return strings.HasPrefix(a.Domain, "[") && strings.HasSuffix(a.Domain, "]")
}

// IsASCII reports whether both halves of the address are 7-bit clean. A
// false result means the address can only be sent if the peer advertises
// SMTPUTF8 (RFC 6531).
func (a Address) IsASCII() bool {
	return isASCII(a.Local) && isASCII(a.Domain)
}

// ASCIIDomain returns the domain in ASCII-compatible (IDNA) form. Address
// literals pass through unchanged, since they have no Unicode form to
// begin with.
func (a Address) ASCIIDomain() (string, error) {
	if a.IsLiteral() {
		return a.Domain, nil
	}
	return idna.ToASCII(a.Domain)
}

// Normalized applies PRECIS case-mapping to the local part, for callers
// that need to compare or deduplicate recipients across an address book
// rather than put the result on the wire: the local part otherwise
// stays opaque to everyone but the destination server, per RFC 5321,
// and MAIL/RCPT always send the address as given, not this form.
func (a Address) Normalized() (Address, error) {
	local, err := normalize.User(a.Local)
	if err != nil {
		return a, err
	}
	return Address{Local: local, Domain: a.Domain}, nil
}

func isASCII(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] > 127 {
			return false
		}
	}
	return true
}

// Envelope is the addressing half of a message: who it's from (nil means
// the null/bounce sender "<>") and who it's going to.
type Envelope struct {
	From *Address
	To   []Address
}

// Validate checks that the envelope has at least one recipient and that
// every address has a non-empty domain. A null sender is always valid.
func (e Envelope) Validate() error {
	if len(e.To) == 0 {
		return fmt.Errorf("%w: no recipients", ErrInvalidEnvelope)
	}
	if e.From != nil && e.From.Domain == "" {
		return fmt.Errorf("%w: sender %q has no domain", ErrInvalidEnvelope, e.From.Local)
	}
	for _, to := range e.To {
		if to.Domain == "" {
			return fmt.Errorf("%w: recipient %q has no domain", ErrInvalidEnvelope, to.Local)
		}
	}
	return nil
}

// Resettable is implemented by a MessageBody that can be read more than
// once, such as a bytes.Reader-backed body. Transport never calls Reset:
// each Send reads its body once, and rewinding a body before sending it
// again is up to the caller.
type Resettable interface {
	Reset() error
}

// Sizer is implemented by a MessageBody that knows its own length ahead
// of time (e.g. a *bytes.Reader), letting Send advertise MAIL FROM
// SIZE= when the peer supports it instead of omitting the parameter.
type Sizer interface {
	Len() int
}

// SendableEmail pairs an Envelope with the message content to stream
// during DATA. MessageBody is consumed once by Read, unless it also
// implements Resettable.
type SendableEmail struct {
	Envelope
	MessageBody io.Reader

	// EightBitMIME hints that MessageBody contains 8-bit content, so
	// Send can advertise BODY=8BITMIME when the peer supports it.
	// Composing a MIME-correct body is the caller's responsibility;
	// this library does not inspect message content.
	EightBitMIME bool
}
