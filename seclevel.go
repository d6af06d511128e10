package smtpclient

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"

	"blitiri.com.ar/go/smtpclient/internal/tlsconst"
)

// SecLevel classifies how trustworthy a connection's transport security
// turned out to be, mirroring the three-way distinction the teacher's
// domain-information database ratchets domains through: plaintext, TLS
// with a certificate that didn't verify, and TLS with one that did.
// Self-signed and expired certificates are common enough in the wild
// that treating them the same as no TLS at all (or refusing to talk to
// such peers) would be too strict for an Opportunistic policy, but a
// caller that cares still needs to be able to tell the difference.
type SecLevel int

const (
	// Plain means the session never negotiated TLS at all.
	Plain SecLevel = iota
	// TLSInsecure means TLS was negotiated but the peer certificate did
	// not verify against the configured (or system) root store.
	TLSInsecure
	// TLSSecure means TLS was negotiated and the peer certificate
	// verified.
	TLSSecure
)

func (l SecLevel) String() string {
	switch l {
	case Plain:
		return "plain"
	case TLSInsecure:
		return "tls-insecure"
	case TLSSecure:
		return "tls-secure"
	default:
		return "unknown"
	}
}

// ClassifyConnection inspects a completed TLS handshake and returns
// TLSSecure or TLSInsecure depending on whether the peer certificate
// verifies. roots is the trust store to verify against; nil means the
// system default.
//
// This follows the same logic crypto/tls applies internally
// (https://pkg.go.dev/crypto/tls#example-Config-VerifyConnection).
// Connect calls it on the state a TLSStater reports after UpgradeToTLS,
// so a Stream that handshakes with InsecureSkipVerify yields the
// classification instead of an outright handshake failure on an
// unverifiable cert.
func ClassifyConnection(cs tls.ConnectionState, roots *x509.CertPool) SecLevel {
	if len(cs.PeerCertificates) == 0 {
		return TLSInsecure
	}

	opts := x509.VerifyOptions{
		DNSName:       cs.ServerName,
		Intermediates: x509.NewCertPool(),
		Roots:         roots,
	}
	for _, cert := range cs.PeerCertificates[1:] {
		opts.Intermediates.AddCert(cert)
	}

	if _, err := cs.PeerCertificates[0].Verify(opts); err != nil {
		return TLSInsecure
	}
	return TLSSecure
}

// TLSDescription renders a completed handshake's negotiated version and
// cipher suite for logs and diagnostics, e.g. "TLS-1.3 with
// TLS_AES_128_GCM_SHA256".
func TLSDescription(cs tls.ConnectionState) string {
	return fmt.Sprintf("%s with %s", tlsconst.VersionName(cs.Version), tlsconst.CipherSuiteName(cs.CipherSuite))
}
