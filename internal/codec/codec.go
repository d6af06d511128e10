// Package codec serializes SMTP commands to wire bytes.
//
// It emits one command per call, as a single CRLF-terminated line (or, for
// the DATA terminator, the literal "CRLF . CRLF" sequence). It never reads
// from the wire and never interprets a peer's capabilities beyond being
// told, by the caller, which parameters are safe to use.
package codec

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidArgument is returned when a domain or address contains a
// control character the protocol forbids on the command line. The codec
// does not parse addresses; it only rejects what would corrupt framing.
var ErrInvalidArgument = errors.New("codec: invalid control character in argument")

func checkClean(s string) error {
	for _, r := range s {
		if r < 0x20 || r == 0x7f {
			return ErrInvalidArgument
		}
	}
	return nil
}

// EHLO formats the EHLO command.
func EHLO(domain string) ([]byte, error) {
	if err := checkClean(domain); err != nil {
		return nil, err
	}
	return line("EHLO %s", domain), nil
}

// HELO formats the HELO command, used as an ESMTP fallback.
func HELO(domain string) ([]byte, error) {
	if err := checkClean(domain); err != nil {
		return nil, err
	}
	return line("HELO %s", domain), nil
}

// StartTLS formats the STARTTLS command.
func StartTLS() []byte {
	return line("STARTTLS")
}

// Auth formats the AUTH command, with an optional initial response already
// base64-encoded by the authenticator.
func Auth(mechanism, initialResponse string) []byte {
	if initialResponse == "" {
		return line("AUTH %s", mechanism)
	}
	return line("AUTH %s %s", mechanism, initialResponse)
}

// AuthContinuation formats a base64 response to a 334 continuation
// challenge (or "*" to cancel the exchange, per RFC 4954 §4).
func AuthContinuation(response string) []byte {
	if response == "" {
		response = "*"
	}
	return line("%s", response)
}

// MailParams carries the optional MAIL FROM parameters. Unknown-to-peer
// parameters must never be set by the caller; the codec does not consult
// the extension set itself, it trusts the caller already did.
type MailParams struct {
	Size       int64 // 0 means omit SIZE=
	Body       string // "", "7BIT", "8BITMIME", or "BINARYMIME"
	SMTPUTF8   bool
	Ret        string // "", "FULL", or "HDRS"
	Envid      string
}

// MailFrom formats the MAIL FROM command. addr is the bare mailbox, without
// angle brackets; the empty string represents the null sender "<>".
func MailFrom(addr string, p MailParams) ([]byte, error) {
	if err := checkClean(addr); err != nil {
		return nil, err
	}

	var b strings.Builder
	fmt.Fprintf(&b, "MAIL FROM:<%s>", addr)
	if p.Size > 0 {
		fmt.Fprintf(&b, " SIZE=%d", p.Size)
	}
	if p.Body != "" {
		fmt.Fprintf(&b, " BODY=%s", p.Body)
	}
	if p.SMTPUTF8 {
		b.WriteString(" SMTPUTF8")
	}
	if p.Ret != "" {
		fmt.Fprintf(&b, " RET=%s", p.Ret)
	}
	if p.Envid != "" {
		fmt.Fprintf(&b, " ENVID=%s", p.Envid)
	}
	return line("%s", b.String()), nil
}

// RcptParams carries the optional RCPT TO parameters.
type RcptParams struct {
	Notify string // "", or a comma-separated NOTIFY list
	Orcpt  string
}

// RcptTo formats the RCPT TO command.
func RcptTo(addr string, p RcptParams) ([]byte, error) {
	if err := checkClean(addr); err != nil {
		return nil, err
	}

	var b strings.Builder
	fmt.Fprintf(&b, "RCPT TO:<%s>", addr)
	if p.Notify != "" {
		fmt.Fprintf(&b, " NOTIFY=%s", p.Notify)
	}
	if p.Orcpt != "" {
		fmt.Fprintf(&b, " ORCPT=%s", p.Orcpt)
	}
	return line("%s", b.String()), nil
}

// Data formats the DATA command, which asks the peer for a 354
// go-ahead before the message content is streamed.
func Data() []byte { return line("DATA") }

// DataTerminator is the literal end-of-DATA marker: CRLF, a single dot,
// CRLF, for use right after content that does not itself end in CRLF.
// The DATA writer in internal/data does not use it: it ends the content
// with CRLF itself and then writes only the dot line.
func DataTerminator() []byte { return []byte("\r\n.\r\n") }

// Rset formats the RSET command.
func Rset() []byte { return line("RSET") }

// Noop formats the NOOP command.
func Noop() []byte { return line("NOOP") }

// Quit formats the QUIT command.
func Quit() []byte { return line("QUIT") }

// Vrfy formats the VRFY command.
func Vrfy(addr string) ([]byte, error) {
	if err := checkClean(addr); err != nil {
		return nil, err
	}
	return line("VRFY %s", addr), nil
}

func line(format string, args ...interface{}) []byte {
	s := fmt.Sprintf(format, args...)
	return []byte(s + "\r\n")
}
