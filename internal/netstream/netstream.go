// Package netstream provides a net.Conn-backed implementation of
// smtpclient.Stream for the command-line tools, so smtp-send and
// smtp-diag don't each reinvent the TLS-upgrade-in-place dance.
package netstream

import (
	"crypto/tls"
	"net"
)

// TCPStream adapts a net.Conn into a smtpclient.Stream. Certificate
// verification is deliberately skipped here: Transport classifies the
// resulting connection itself via smtpclient.ClassifyConnection, so an
// untrusted certificate downgrades SecLevel instead of failing the
// handshake outright.
type TCPStream struct {
	net.Conn
}

// New wraps an already-connected net.Conn.
func New(conn net.Conn) *TCPStream {
	return &TCPStream{Conn: conn}
}

// UpgradeToTLS switches the stream to TLS in place.
func (s *TCPStream) UpgradeToTLS(serverName string) error {
	tlsConn := tls.Client(s.Conn, &tls.Config{
		ServerName:         serverName,
		InsecureSkipVerify: true,
	})
	if err := tlsConn.Handshake(); err != nil {
		return err
	}
	s.Conn = tlsConn
	return nil
}

// ConnectionState implements smtpclient.TLSStater.
func (s *TCPStream) ConnectionState() (tls.ConnectionState, bool) {
	tlsConn, ok := s.Conn.(*tls.Conn)
	if !ok {
		return tls.ConnectionState{}, false
	}
	return tlsConn.ConnectionState(), true
}
