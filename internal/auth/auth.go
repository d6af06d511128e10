// Package auth implements the client side of the SASL mechanisms SMTP
// submission servers commonly support: PLAIN, LOGIN, CRAM-MD5 and
// XOAUTH2.
//
// This is the client-side counterpart of the teacher's server-side
// internal/auth package: where that package decodes a PLAIN response
// (DecodeResponse) to verify a local user, this one encodes the
// equivalent responses to authenticate against a remote peer. The wire
// shape (base64, NUL-separated fields per RFC 4954 §4.1) is the same.
package auth

import (
	"crypto/hmac"
	"crypto/md5"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
)

// ErrUnexpectedChallenge is returned when the server's 334 continuation
// does not look like what the mechanism expects. The mechanism's caller
// is expected to reply "*" to cancel the exchange, per RFC 4954 §4.
var ErrUnexpectedChallenge = errors.New("auth: unexpected server challenge")

// Credentials holds the opaque username/password/token tuple used to
// authenticate. Zero, once no longer needed, clears the secret fields in
// place.
type Credentials struct {
	Identity string // optional authorization identity, usually empty
	Username string
	Password string
	Token    string // OAuth2 bearer token, used by XOAUTH2 only
}

// Zero overwrites the secret fields of c. Go strings are immutable, so
// this only helps when the caller constructed Credentials from mutable
// byte slices and converted just before use; it is still worth doing
// because it shortens the window the secret spends reachable from a
// live reference.
func (c *Credentials) Zero() {
	c.Password = ""
	c.Token = ""
}

// Mechanism drives one SASL round-trip. Step is called once per server
// challenge and returns the base64 response to send.
type Mechanism interface {
	Name() string

	// InitialResponse returns the (possibly empty) response to send
	// alongside the AUTH command itself. ok is false if the mechanism
	// has no initial response and must wait for the server's first
	// challenge instead.
	InitialResponse() (response string, ok bool)

	// Step processes one base64-encoded server challenge and returns the
	// base64-encoded client response.
	Step(challenge string) (response string, err error)
}

// Plain implements RFC 4954 PLAIN: a single initial response of
// base64("\0user\0pass").
type Plain struct{ Creds Credentials }

func (Plain) Name() string { return "PLAIN" }

func (p Plain) InitialResponse() (string, bool) {
	raw := fmt.Sprintf("%s\x00%s\x00%s", p.Creds.Identity, p.Creds.Username, p.Creds.Password)
	return base64.StdEncoding.EncodeToString([]byte(raw)), true
}

func (Plain) Step(string) (string, error) {
	return "", ErrUnexpectedChallenge
}

// Login implements the (non-standard, but near-universal) LOGIN
// mechanism: the server prompts "Username:" then "Password:" (each
// base64-encoded), and the client answers each in turn.
type Login struct {
	Creds Credentials
	step  int
}

func (*Login) Name() string { return "LOGIN" }

func (*Login) InitialResponse() (string, bool) { return "", false }

func (l *Login) Step(challenge string) (string, error) {
	// Real servers vary in exactly what they send ("Username:",
	// "User Name", etc); we don't validate the prompt text, only the
	// sequence: first challenge answered with the username, second with
	// the password. Decoding isn't required but confirms the server is
	// at least sending valid base64.
	if _, err := base64.StdEncoding.DecodeString(challenge); err != nil {
		return "", ErrUnexpectedChallenge
	}

	switch l.step {
	case 0:
		l.step++
		return base64.StdEncoding.EncodeToString([]byte(l.Creds.Username)), nil
	case 1:
		l.step++
		return base64.StdEncoding.EncodeToString([]byte(l.Creds.Password)), nil
	default:
		return "", ErrUnexpectedChallenge
	}
}

// CramMD5 implements RFC 2195: the server sends a base64 nonce, and the
// client replies with base64("user " + hex(HMAC-MD5(nonce, password))).
type CramMD5 struct{ Creds Credentials }

func (CramMD5) Name() string { return "CRAM-MD5" }

func (CramMD5) InitialResponse() (string, bool) { return "", false }

func (c CramMD5) Step(challenge string) (string, error) {
	nonce, err := base64.StdEncoding.DecodeString(challenge)
	if err != nil {
		return "", ErrUnexpectedChallenge
	}

	mac := hmac.New(md5.New, []byte(c.Creds.Password))
	mac.Write(nonce)
	digest := hex.EncodeToString(mac.Sum(nil))

	raw := c.Creds.Username + " " + digest
	return base64.StdEncoding.EncodeToString([]byte(raw)), nil
}

// XOAuth2 implements Google's XOAUTH2 mechanism: a single initial
// response of base64("user=<u>\x01auth=Bearer <t>\x01\x01").
type XOAuth2 struct{ Creds Credentials }

func (XOAuth2) Name() string { return "XOAUTH2" }

func (x XOAuth2) InitialResponse() (string, bool) {
	raw := fmt.Sprintf("user=%s\x01auth=Bearer %s\x01\x01", x.Creds.Username, x.Creds.Token)
	return base64.StdEncoding.EncodeToString([]byte(raw)), true
}

func (XOAuth2) Step(string) (string, error) {
	return "", ErrUnexpectedChallenge
}

// DefaultPreference is the default mechanism selection order: strongest
// (or least likely to leak the password in the clear) first.
var DefaultPreference = []string{"XOAUTH2", "CRAM-MD5", "PLAIN", "LOGIN"}

// Select picks the first mechanism from preference that the peer
// advertises (per the supported callback), and constructs it with
// creds. It returns nil if none match.
func Select(preference []string, supported func(name string) bool, creds Credentials) Mechanism {
	for _, name := range preference {
		if !supported(name) {
			continue
		}
		switch name {
		case "XOAUTH2":
			return XOAuth2{Creds: creds}
		case "CRAM-MD5":
			return CramMD5{Creds: creds}
		case "PLAIN":
			return Plain{Creds: creds}
		case "LOGIN":
			return &Login{Creds: creds}
		}
	}
	return nil
}
