package smtpclient

import "fmt"

// ConnectionError wraps a failure to establish or maintain the underlying
// Stream: dial failures, a dropped connection, an I/O error mid-session.
type ConnectionError struct {
	Op  string // "dial", or the step that failed: "greeting", "EHLO", "MAIL", ...
	Err error
}

func (e *ConnectionError) Error() string { return fmt.Sprintf("smtpclient: %s: %v", e.Op, e.Err) }
func (e *ConnectionError) Unwrap() error { return e.Err }

// TimeoutError indicates a per-operation deadline (set via the Send
// context) elapsed before the peer replied.
type TimeoutError struct {
	Op  string
	Err error
}

func (e *TimeoutError) Error() string { return fmt.Sprintf("smtpclient: %s timed out: %v", e.Op, e.Err) }
func (e *TimeoutError) Unwrap() error { return e.Err }

// ProtocolError indicates the peer said something that doesn't parse as a
// valid SMTP reply, or the session reached a state the protocol doesn't
// allow (a malformed line, a reply with the wrong three-digit code for
// the line it terminates, and so on).
type ProtocolError struct {
	Err error
}

func (e *ProtocolError) Error() string { return fmt.Sprintf("smtpclient: protocol error: %v", e.Err) }
func (e *ProtocolError) Unwrap() error { return e.Err }

// PermanentError wraps a 5xx reply: retrying the same command against the
// same peer will not help.
type PermanentError struct {
	Code int
	Text string
}

func (e *PermanentError) Error() string {
	return fmt.Sprintf("smtpclient: permanent failure (%d): %s", e.Code, e.Text)
}

// TransientError wraps a 4xx reply: the command may succeed later, or
// against a different MX.
type TransientError struct {
	Code int
	Text string
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("smtpclient: transient failure (%d): %s", e.Code, e.Text)
}

// MessageTooLargeError indicates the message exceeded the peer's
// advertised SIZE limit, either caught before DATA (from the MAIL FROM
// SIZE= parameter being rejected) or mid-stream (from internal/data).
type MessageTooLargeError struct {
	Limit     int64
	Attempted int64
}

func (e *MessageTooLargeError) Error() string {
	return fmt.Sprintf("smtpclient: message exceeds SIZE limit of %d bytes", e.Limit)
}

// TLSRequiredError indicates the configured TLSPolicy required STARTTLS
// but the peer did not advertise it, or the handshake failed and the
// policy forbids falling back to plaintext.
type TLSRequiredError struct {
	Err error
}

func (e *TLSRequiredError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("smtpclient: TLS required but unavailable: %v", e.Err)
	}
	return "smtpclient: TLS required but peer does not support STARTTLS"
}
func (e *TLSRequiredError) Unwrap() error { return e.Err }

// AuthUnsupportedError indicates Credentials were supplied but none of
// the caller's preferred mechanisms are in the peer's AUTH capability
// line.
type AuthUnsupportedError struct {
	Preference []string
	Supported  []string
}

func (e *AuthUnsupportedError) Error() string {
	return fmt.Sprintf("smtpclient: no supported AUTH mechanism (want one of %v, peer offers %v)",
		e.Preference, e.Supported)
}

// InvalidEnvelopeError wraps an ErrInvalidEnvelope error describing what
// is wrong with the envelope, for callers that want the structured type
// without string-matching Error().
type InvalidEnvelopeError struct {
	Err error
}

func (e *InvalidEnvelopeError) Error() string { return fmt.Sprintf("smtpclient: %v", e.Err) }
func (e *InvalidEnvelopeError) Unwrap() error { return e.Err }
