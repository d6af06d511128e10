package smtpclient

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"math/big"
	"testing"
	"time"
)

func selfSignedCert(t *testing.T, dnsName string) (*x509.Certificate, *x509.CertPool) {
	t.Helper()

	priv, err := rsa.GenerateKey(rand.Reader, 1024)
	if err != nil {
		t.Fatal(err)
	}
	tmpl := &x509.Certificate{
		SerialNumber:          big.NewInt(1),
		Subject:               pkix.Name{Organization: []string{"test"}},
		DNSNames:              []string{dnsName},
		NotBefore:             time.Now().Add(-time.Hour),
		NotAfter:              time.Now().Add(time.Hour),
		KeyUsage:              x509.KeyUsageKeyEncipherment | x509.KeyUsageDigitalSignature | x509.KeyUsageCertSign,
		BasicConstraintsValid: true,
		IsCA:                  true,
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &priv.PublicKey, priv)
	if err != nil {
		t.Fatal(err)
	}
	cert, err := x509.ParseCertificate(der)
	if err != nil {
		t.Fatal(err)
	}

	pool := x509.NewCertPool()
	pool.AddCert(cert)
	return cert, pool
}

func TestClassifyConnectionTrustedCert(t *testing.T) {
	cert, pool := selfSignedCert(t, "mx.example.com")
	cs := tls.ConnectionState{
		ServerName:       "mx.example.com",
		PeerCertificates: []*x509.Certificate{cert},
	}
	if got := ClassifyConnection(cs, pool); got != TLSSecure {
		t.Errorf("ClassifyConnection = %v, want TLSSecure", got)
	}
}

func TestClassifyConnectionUntrustedCert(t *testing.T) {
	cert, _ := selfSignedCert(t, "mx.example.com")
	cs := tls.ConnectionState{
		ServerName:       "mx.example.com",
		PeerCertificates: []*x509.Certificate{cert},
	}
	// No roots supplied that trust this cert.
	if got := ClassifyConnection(cs, x509.NewCertPool()); got != TLSInsecure {
		t.Errorf("ClassifyConnection = %v, want TLSInsecure", got)
	}
}

func TestClassifyConnectionHostnameMismatch(t *testing.T) {
	cert, pool := selfSignedCert(t, "mx.example.com")
	cs := tls.ConnectionState{
		ServerName:       "mx.other.com",
		PeerCertificates: []*x509.Certificate{cert},
	}
	if got := ClassifyConnection(cs, pool); got != TLSInsecure {
		t.Errorf("ClassifyConnection = %v, want TLSInsecure", got)
	}
}

func TestClassifyConnectionNoCertificates(t *testing.T) {
	if got := ClassifyConnection(tls.ConnectionState{}, nil); got != TLSInsecure {
		t.Errorf("ClassifyConnection = %v, want TLSInsecure", got)
	}
}

func TestTLSDescription(t *testing.T) {
	cs := tls.ConnectionState{
		Version:     tls.VersionTLS12,
		CipherSuite: tls.TLS_ECDHE_RSA_WITH_AES_128_GCM_SHA256,
	}
	got := TLSDescription(cs)
	if got != "TLS-1.2 with TLS_ECDHE_RSA_WITH_AES_128_GCM_SHA256" {
		t.Errorf("TLSDescription = %q", got)
	}
}

func TestSecLevelString(t *testing.T) {
	cases := map[SecLevel]string{
		Plain:       "plain",
		TLSInsecure: "tls-insecure",
		TLSSecure:   "tls-secure",
		SecLevel(99): "unknown",
	}
	for level, want := range cases {
		if got := level.String(); got != want {
			t.Errorf("SecLevel(%d).String() = %q, want %q", level, got, want)
		}
	}
}
