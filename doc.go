// Package smtpclient implements the client side of RFC 5321 SMTP, plus the
// extensions in common use: PIPELINING, SIZE, 8BITMIME, SMTPUTF8, STARTTLS
// and AUTH (RFC 4954). CHUNKING, BINARYMIME and DSN are recognized in a
// peer's EHLO reply but not used: messages always go through DATA, and no
// DSN parameters are sent.
//
// A Transport owns one connection at a time, driven through
// internal/session's state machine. DNS resolution, dialing and the TLS
// handshake itself are left to the caller via the Stream interface: this
// package only speaks the protocol once bytes can flow. cmd/smtp-send is a
// concrete, complete client built on top of it.
package smtpclient
