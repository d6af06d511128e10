package smtpclient

import (
	"context"
	"crypto/x509"
	"fmt"

	"blitiri.com.ar/go/smtpclient/internal/auth"
	"blitiri.com.ar/go/smtpclient/internal/session"
	"blitiri.com.ar/go/smtpclient/internal/trace"
)

// Transport owns one connection at a time and drives it through the SMTP
// command sequence on behalf of the caller. It is built by Connect and
// is not safe for concurrent use: a second Send cannot begin until the
// previous one returns.
type Transport struct {
	helloName      string
	tlsPolicy      TLSPolicy
	credentials    *Credentials
	authPreference []string
	sink           EventSink
	certRoots      *x509.CertPool
	mtaSTS         *MTASTSPolicy

	addr   string
	stream Stream
	sess   *session.Session
	inUse  bool

	secLevel SecLevel
}

// Option configures a Transport at Connect time.
type Option func(*Transport)

// WithHelloName sets the domain sent in EHLO/HELO. Defaults to
// "localhost" if unset, which is valid but not very informative; real
// callers should set this to their own MX or submission hostname.
func WithHelloName(name string) Option {
	return func(t *Transport) { t.helloName = name }
}

// WithTLSPolicy sets how strictly STARTTLS is enforced. Default:
// Opportunistic.
func WithTLSPolicy(p TLSPolicy) Option {
	return func(t *Transport) { t.tlsPolicy = p }
}

// WithCredentials enables AUTH using creds, selecting the strongest
// mechanism the peer advertises from preference (nil uses
// AuthPreference).
func WithCredentials(creds Credentials, preference []string) Option {
	return func(t *Transport) {
		c := creds
		t.credentials = &c
		if preference != nil {
			t.authPreference = preference
		}
	}
}

// WithEventSink sets where structured delivery events are reported.
// Default: NopEventSink.
func WithEventSink(sink EventSink) Option {
	return func(t *Transport) { t.sink = sink }
}

// WithCertRoots sets the trust store ClassifyConnection verifies the
// peer certificate against. Default: nil, meaning the system roots.
func WithCertRoots(roots *x509.CertPool) Option {
	return func(t *Transport) { t.certRoots = roots }
}

// Connect dials addr via dialer, greets the peer, negotiates EHLO,
// STARTTLS (per the configured TLSPolicy) and AUTH (if Credentials were
// supplied), and returns a Transport ready for Send. addr is used only
// for logging/events, as the TLS ServerName, and for the check against
// a policy set with WithMTASTSPolicy; the dialer decides what it
// actually connects to.
func Connect(ctx context.Context, dialer StreamDialer, addr string, opts ...Option) (*Transport, error) {
	t := &Transport{
		helloName:      "localhost",
		tlsPolicy:      Opportunistic,
		authPreference: AuthPreference,
		sink:           NopEventSink{},
	}
	for _, o := range opts {
		o(t)
	}
	return t.dialAndNegotiate(ctx, dialer, addr, false)
}

func (t *Transport) dialAndNegotiate(ctx context.Context, dialer StreamDialer, addr string, retriedWithoutTLS bool) (*Transport, error) {
	tr := trace.New("smtpclient.Connect", addr)
	defer tr.Finish()

	if err := t.checkMTASTS(addr); err != nil {
		return nil, tr.Error(err)
	}

	stream, err := dialer.Dial(ctx)
	t.sink.OnDial(addr, err)
	if err != nil {
		return nil, tr.Error(&ConnectionError{Op: "dial", Err: err})
	}

	sess := session.New(stream)

	greet, err := sess.ReadGreeting(ctx)
	if err != nil {
		return nil, tr.Error(classifyIOErr("greeting", err))
	}
	if !greet.IsPositive() {
		return nil, tr.Error(&ConnectionError{Op: "greeting", Err: classifyReply(greet)})
	}

	ehlo, err := sess.EHLO(ctx, t.helloName)
	if err != nil {
		return nil, tr.Error(classifyIOErr("EHLO", err))
	}
	if !ehlo.IsPositive() {
		helo, err := sess.HELO(ctx, t.helloName)
		if err != nil {
			return nil, tr.Error(classifyIOErr("HELO", err))
		}
		if !helo.IsPositive() {
			return nil, tr.Error(&ConnectionError{Op: "HELO", Err: classifyReply(helo)})
		}
	}

	secLevel := Plain
	wantTLS := t.tlsPolicy != None && !retriedWithoutTLS
	startTLSOffered := sess.Ext != nil && sess.Ext.StartTLS

	switch {
	case wantTLS && startTLSOffered:
		str, err := sess.StartTLS(ctx)
		if err != nil {
			return nil, tr.Error(classifyIOErr("STARTTLS", err))
		}
		if str.Code != 220 {
			t.sink.OnTLS(addr, true, false, false, nil)
			if t.tlsPolicy == Required {
				return nil, tr.Error(&TLSRequiredError{Err: classifyReply(str)})
			}
			tr.Debugf("STARTTLS refused (%d), continuing in plaintext", str.Code)
			break
		}

		upErr := sess.UpgradeToTLS(addr)
		if upErr == nil {
			secLevel = t.classifySecLevel(stream)
		}
		t.sink.OnTLS(addr, true, upErr == nil, secLevel == TLSSecure, upErr)

		if upErr != nil {
			if t.tlsPolicy == Required {
				return nil, tr.Error(&TLSRequiredError{Err: upErr})
			}
			// Opportunistic: the handshake itself failed (not just an
			// untrusted cert) — redial cleartext rather than limp along
			// on a half-upgraded stream.
			tr.Errorf("TLS handshake failed, retrying without TLS: %v", upErr)
			if closer, ok := stream.(interface{ Close() error }); ok {
				closer.Close()
			}
			return t.dialAndNegotiate(ctx, dialer, addr, true)
		}

		ehlo2, err := sess.EHLO(ctx, t.helloName)
		if err != nil {
			return nil, tr.Error(classifyIOErr("EHLO (post-STARTTLS)", err))
		}
		if !ehlo2.IsPositive() {
			return nil, tr.Error(&ConnectionError{Op: "EHLO (post-STARTTLS)", Err: classifyReply(ehlo2)})
		}

	case t.tlsPolicy == Required:
		t.sink.OnTLS(addr, false, false, false, nil)
		return nil, tr.Error(&TLSRequiredError{})

	default:
		t.sink.OnTLS(addr, false, false, false, nil)
	}

	if t.credentials != nil {
		if sess.Ext == nil {
			return nil, tr.Error(&AuthUnsupportedError{Preference: t.authPreference})
		}
		mech := auth.Select(t.authPreference, sess.Ext.SupportsAuth, *t.credentials)
		if mech == nil {
			return nil, tr.Error(&AuthUnsupportedError{Preference: t.authPreference, Supported: sess.Ext.Auth})
		}

		authReply, err := sess.Authenticate(ctx, mech)
		if err != nil {
			t.sink.OnAuth(addr, mech.Name(), false, err)
			return nil, tr.Error(classifyIOErr("AUTH", err))
		}
		ok := authReply.Code == 235
		t.sink.OnAuth(addr, mech.Name(), ok, nil)
		if !ok {
			return nil, tr.Error(classifyReply(authReply))
		}
	} else {
		if err := sess.MarkReady(); err != nil {
			return nil, tr.Error(classifyIOErr("ready", err))
		}
	}

	t.stream = stream
	t.sess = sess
	t.addr = addr
	t.secLevel = secLevel
	return t, nil
}

// SecLevel reports the transport security level negotiated during
// Connect: Plain if STARTTLS was never used.
func (t *Transport) SecLevel() SecLevel { return t.secLevel }

func (t *Transport) classifySecLevel(stream Stream) SecLevel {
	stater, ok := stream.(TLSStater)
	if !ok {
		return Plain
	}
	cs, ok := stater.ConnectionState()
	if !ok {
		return Plain
	}
	return ClassifyConnection(cs, t.certRoots)
}

// Send delivers one envelope and message over the connection, returning
// the per-recipient Outcome. A partial RCPT refusal is not an error: it
// is recorded in Outcome.Refused as long as at least one recipient was
// accepted. If every recipient is refused, Send returns a
// *PermanentError or *TransientError instead (per the last refusal) and
// no Outcome.
func (t *Transport) Send(ctx context.Context, email SendableEmail) (*Outcome, error) {
	if t.inUse {
		return nil, fmt.Errorf("smtpclient: Send called while a previous Send is still in progress")
	}
	if err := email.Validate(); err != nil {
		return nil, &InvalidEnvelopeError{Err: err}
	}

	t.inUse = true
	defer func() { t.inUse = false }()

	tr := trace.New("smtpclient.Send", t.addr)
	defer tr.Finish()

	pipelined := t.sess.Ext != nil && t.sess.Ext.Pipelining

	mailParams := t.mailParams(email)
	fromAddr := ""
	if email.From != nil {
		fromAddr = email.From.String()
	}

	if pipelined {
		return t.sendPipelined(ctx, tr, fromAddr, email, mailParams)
	}
	return t.sendSequential(ctx, tr, fromAddr, email, mailParams)
}

// Reset sends RSET, returning the session to Ready so the Transport can
// be reused for another envelope.
func (t *Transport) Reset(ctx context.Context) error {
	r, err := t.sess.Reset(ctx)
	if err != nil {
		return classifyIOErr("RSET", err)
	}
	if !r.IsPositive() {
		return classifyReply(r)
	}
	return nil
}

// Close sends QUIT best-effort and releases the stream. The Transport
// must not be used again afterward.
func (t *Transport) Close(ctx context.Context) error {
	_, err := t.sess.Quit(ctx)
	if closer, ok := t.stream.(interface{ Close() error }); ok {
		closeErr := closer.Close()
		if err == nil {
			err = closeErr
		}
	}
	return err
}
