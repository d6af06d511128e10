package smtpclient

import (
	"context"
	"crypto/tls"
)

// Stream is the byte-stream capability a Transport is driven over. It is
// deliberately narrow: dialing, DNS/MX resolution, and deciding *when* to
// call UpgradeToTLS are the caller's concern (the spec's "external
// collaborators"), not this library's. internal/netstream's TCPStream,
// used by cmd/smtp-send, is a complete implementation over net.Dial plus
// crypto/tls.
//
// A Stream is used by exactly one Transport at a time and is not safe
// for concurrent use.
type Stream interface {
	Read(p []byte) (n int, err error)
	Write(p []byte) (n int, err error)

	// UpgradeToTLS switches the stream to TLS in place, as
	// tls.Client(conn, config) followed by Handshake does for a
	// net.Conn. serverName is passed through as the TLS ServerName.
	// Implementations that can't upgrade (e.g. an in-memory test pipe
	// with no real handshake to perform) may no-op, but Dialer
	// implementations used against real peers must perform a genuine
	// handshake.
	UpgradeToTLS(serverName string) error
}

// TLSStater is optionally implemented by a Stream to expose the
// negotiated TLS connection state after a successful UpgradeToTLS, so
// the caller can classify it with ClassifyConnection. A Stream that
// doesn't implement it (or hasn't upgraded yet) reports ok=false, and
// the resulting Outcome.SecLevel stays Plain.
type TLSStater interface {
	ConnectionState() (state tls.ConnectionState, ok bool)
}

// StreamDialer produces a fresh Stream connected to one mail exchanger.
// Connect calls it once, and again if an Opportunistic TLS
// handshake fails and the connection needs to be redialed plaintext.
type StreamDialer interface {
	Dial(ctx context.Context) (Stream, error)
}

// StreamDialerFunc adapts a plain function to a StreamDialer.
type StreamDialerFunc func(ctx context.Context) (Stream, error)

// Dial calls f.
func (f StreamDialerFunc) Dial(ctx context.Context) (Stream, error) { return f(ctx) }
