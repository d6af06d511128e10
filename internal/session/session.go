// Package session drives one SMTP connection through the command
// sequence Greeting → EHLO → [STARTTLS → EHLO] → [AUTH] → MAIL → RCPT* →
// DATA → QUIT, pairing each command with its reply via the codec and
// reply packages. It knows the shape of the dialog; it does not decide
// policy (which TLS mode to use, which auth mechanism to prefer, how
// many times to retry) — that's the root Transport's job.
package session

import (
	"bufio"
	"context"
	"errors"
	"time"

	"blitiri.com.ar/go/smtpclient/internal/auth"
	"blitiri.com.ar/go/smtpclient/internal/codec"
	"blitiri.com.ar/go/smtpclient/internal/data"
	"blitiri.com.ar/go/smtpclient/internal/ext"
	"blitiri.com.ar/go/smtpclient/internal/reply"
)

// State is one point in the session's lifecycle. Illegal transitions (as
// enforced by the transition table below) are programming errors: they
// indicate the caller drove the session out of the sequence the protocol
// allows.
type State int

const (
	Connecting State = iota
	Greeted
	Ehlo
	StartTLS
	Authenticating
	Ready
	Mail
	Rcpt
	Data
	DataBody
	Quit
	Closed
)

func (s State) String() string {
	switch s {
	case Connecting:
		return "Connecting"
	case Greeted:
		return "Greeted"
	case Ehlo:
		return "Ehlo"
	case StartTLS:
		return "StartTls"
	case Authenticating:
		return "Authenticating"
	case Ready:
		return "Ready"
	case Mail:
		return "Mail"
	case Rcpt:
		return "Rcpt"
	case Data:
		return "Data"
	case DataBody:
		return "DataBody"
	case Quit:
		return "Quit"
	case Closed:
		return "Closed"
	default:
		return "Unknown"
	}
}

// ErrIllegalTransition is returned (and should never happen outside of a
// bug in the calling code) when an operation is attempted from a state
// that doesn't allow it.
var ErrIllegalTransition = errors.New("session: illegal state transition")

// ErrPoisoned is returned by every operation once the session has
// suffered a Connection, Timeout or ProtocolViolation-class error: per
// the recovery rules, such a session must be closed, never reused.
var ErrPoisoned = errors.New("session: poisoned by a previous fatal error")

// Stream is the polymorphic byte-stream capability the session is driven
// over. Its method set intentionally matches the root package's Stream
// interface so any value satisfying one satisfies the other.
type Stream interface {
	Read(p []byte) (n int, err error)
	Write(p []byte) (n int, err error)
	UpgradeToTLS(serverName string) error
}

// Deadliner is implemented by streams that can bound the next I/O call,
// such as a net.Conn. It's optional: a Stream that doesn't implement it
// just forgoes per-operation deadlines, relying on ctx cancellation (if
// any) alone.
type Deadliner interface {
	SetDeadline(t time.Time) error
}

// Session holds the mutable state of one SMTP dialog.
type Session struct {
	stream Stream
	br     *bufio.Reader
	bw     *bufio.Writer
	replies *reply.Reader

	state    State
	poisoned bool

	// Ext is the capability set from the most recent EHLO. It is
	// replaced wholesale, never merged, on every (re-)EHLO.
	Ext *ext.Set
}

// New wraps stream for driving through the SMTP command sequence.
func New(stream Stream) *Session {
	br := bufio.NewReader(stream)
	bw := bufio.NewWriter(stream)
	return &Session{
		stream:  stream,
		br:      br,
		bw:      bw,
		replies: reply.NewReader(br),
		state:   Connecting,
	}
}

// State returns the session's current state.
func (s *Session) State() State { return s.state }

// Poison marks the session unusable; every subsequent call fails fast
// with ErrPoisoned. It's idempotent.
func (s *Session) Poison() { s.poisoned = true }

func (s *Session) checkAlive(ctx context.Context) error {
	if s.poisoned {
		return ErrPoisoned
	}
	if err := ctx.Err(); err != nil {
		s.poisoned = true
		return err
	}
	return nil
}

func (s *Session) setDeadline(ctx context.Context) {
	d, ok := ctx.Deadline()
	if !ok {
		return
	}
	if dl, ok := s.stream.(Deadliner); ok {
		dl.SetDeadline(d)
	}
}

// write sends raw command bytes without flushing. Used by the pipelined
// path, where several commands are written before a single Flush.
func (s *Session) write(b []byte) error {
	_, err := s.bw.Write(b)
	return err
}

// Flush pushes any buffered, unflushed command bytes onto the wire. It
// must be called before reading the reply to a command written via the
// pipelined Write* methods.
func (s *Session) Flush() error {
	return s.bw.Flush()
}

// ReadReply reads and returns the next complete reply. Replies arrive in
// the same order their commands were sent (SMTP has no tags), so callers
// pipelining multiple commands just call ReadReply once per outstanding
// command, in the order those commands were written.
func (s *Session) ReadReply(ctx context.Context) (*reply.Reply, error) {
	if err := s.checkAlive(ctx); err != nil {
		return nil, err
	}
	s.setDeadline(ctx)

	r, err := s.replies.ReadReply()
	if err != nil {
		s.poisoned = true
		return nil, err
	}
	return r, nil
}

func (s *Session) writeAndRead(ctx context.Context, cmd []byte) (*reply.Reply, error) {
	if err := s.checkAlive(ctx); err != nil {
		return nil, err
	}
	s.setDeadline(ctx)

	if err := s.write(cmd); err != nil {
		s.poisoned = true
		return nil, err
	}
	if err := s.bw.Flush(); err != nil {
		s.poisoned = true
		return nil, err
	}
	return s.ReadReply(ctx)
}

func (s *Session) transition(allowed []State, to State) error {
	for _, a := range allowed {
		if s.state == a {
			s.state = to
			return nil
		}
	}
	s.poisoned = true
	return ErrIllegalTransition
}

// ReadGreeting waits for the server's initial 220 greeting.
func (s *Session) ReadGreeting(ctx context.Context) (*reply.Reply, error) {
	if err := s.transition([]State{Connecting}, Connecting); err != nil {
		return nil, err
	}
	r, err := s.ReadReply(ctx)
	if err != nil {
		return nil, err
	}
	if r.Code/100 != 2 {
		s.poisoned = true
		return r, nil
	}
	s.state = Greeted
	return r, nil
}

// EHLO sends EHLO and, on a positive reply, parses the capability lines
// into s.Ext. On a negative reply, s.Ext is left untouched and the state
// is not advanced, so the caller can fall back to HELO.
func (s *Session) EHLO(ctx context.Context, domain string) (*reply.Reply, error) {
	if err := s.checkAlive(ctx); err != nil {
		return nil, err
	}
	if s.state != Greeted && s.state != Ehlo {
		s.poisoned = true
		return nil, ErrIllegalTransition
	}

	cmd, err := codec.EHLO(domain)
	if err != nil {
		return nil, err
	}
	r, err := s.writeAndRead(ctx, cmd)
	if err != nil {
		return nil, err
	}
	if r.IsPositive() {
		// The first line of an EHLO reply is the greeting text, not a
		// capability; RFC 5321 §4.1.1.1.
		var capLines []string
		if len(r.Lines) > 1 {
			capLines = r.Lines[1:]
		}
		s.Ext = ext.Parse(capLines)
		s.state = Ehlo
	}
	return r, nil
}

// HELO sends the legacy HELO fallback. It never populates an extension
// set: a HELO session has none.
func (s *Session) HELO(ctx context.Context, domain string) (*reply.Reply, error) {
	if err := s.checkAlive(ctx); err != nil {
		return nil, err
	}
	if s.state != Greeted {
		s.poisoned = true
		return nil, ErrIllegalTransition
	}

	cmd, err := codec.HELO(domain)
	if err != nil {
		return nil, err
	}
	r, err := s.writeAndRead(ctx, cmd)
	if err != nil {
		return nil, err
	}
	if r.IsPositive() {
		s.Ext = ext.Parse(nil)
		s.state = Ehlo
	}
	return r, nil
}

// StartTLS sends the STARTTLS command. The caller is expected to call
// UpgradeToTLS next if the reply is 220.
func (s *Session) StartTLS(ctx context.Context) (*reply.Reply, error) {
	if err := s.checkAlive(ctx); err != nil {
		return nil, err
	}
	if s.state != Ehlo {
		s.poisoned = true
		return nil, ErrIllegalTransition
	}
	return s.writeAndRead(ctx, codec.StartTLS())
}

// UpgradeToTLS invokes the stream's TLS upgrade hook and discards any
// stale buffered bytes, so the reply reader starts clean on the new
// (encrypted) connection.
func (s *Session) UpgradeToTLS(serverName string) error {
	if err := s.stream.UpgradeToTLS(serverName); err != nil {
		s.poisoned = true
		return err
	}
	s.br.Reset(s.stream)
	s.bw.Reset(s.stream)
	s.replies = reply.NewReader(s.br)
	s.Ext = nil
	return nil
}

// BeginAuth sends AUTH <mechanism> [initial-response].
func (s *Session) BeginAuth(ctx context.Context, mechanism, initial string) (*reply.Reply, error) {
	if err := s.checkAlive(ctx); err != nil {
		return nil, err
	}
	if s.state != Ehlo {
		s.poisoned = true
		return nil, ErrIllegalTransition
	}
	s.state = Authenticating
	return s.writeAndRead(ctx, codec.Auth(mechanism, initial))
}

// ContinueAuth sends one base64 (or "*" to cancel) response to a 334
// continuation challenge.
func (s *Session) ContinueAuth(ctx context.Context, response string) (*reply.Reply, error) {
	if err := s.checkAlive(ctx); err != nil {
		return nil, err
	}
	if s.state != Authenticating {
		s.poisoned = true
		return nil, ErrIllegalTransition
	}
	return s.writeAndRead(ctx, codec.AuthContinuation(response))
}

// MarkReady transitions directly from Ehlo to Ready for connections that
// skip authentication entirely (no Credentials configured).
func (s *Session) MarkReady() error {
	return s.transition([]State{Ehlo}, Ready)
}

// FinishAuth records the outcome of an AUTH exchange: 235 moves to
// Ready, anything else falls back to Ehlo (a failed AUTH does not end
// the session — the caller may retry EHLO, try another mechanism, or
// proceed without auth if policy allows).
func (s *Session) FinishAuth(success bool) {
	if success {
		s.state = Ready
	} else {
		s.state = Ehlo
	}
}

// Authenticate runs a full SASL round-trip for mech, using ContinueAuth
// for every 334 continuation until the server issues a final reply.
func (s *Session) Authenticate(ctx context.Context, mech auth.Mechanism) (*reply.Reply, error) {
	var r *reply.Reply
	var err error

	if initial, ok := mech.InitialResponse(); ok {
		r, err = s.BeginAuth(ctx, mech.Name(), initial)
	} else {
		r, err = s.BeginAuth(ctx, mech.Name(), "")
	}
	if err != nil {
		return nil, err
	}

	for r.Code == 334 {
		resp, stepErr := mech.Step(r.Text())
		if stepErr != nil {
			// The mechanism didn't recognize the challenge; cancel per
			// RFC 4954 §4 and surface the mechanism's error once the
			// server acknowledges the cancellation.
			cancelReply, cancelErr := s.ContinueAuth(ctx, "*")
			if cancelErr != nil {
				return nil, cancelErr
			}
			s.FinishAuth(false)
			return cancelReply, stepErr
		}

		r, err = s.ContinueAuth(ctx, resp)
		if err != nil {
			return nil, err
		}
	}

	s.FinishAuth(r.Code == 235)
	return r, nil
}

// ensureState returns nil if the session is in one of the allowed
// states, and ErrIllegalTransition otherwise.
func (s *Session) ensureState(allowed ...State) error {
	for _, a := range allowed {
		if s.state == a {
			return nil
		}
	}
	s.poisoned = true
	return ErrIllegalTransition
}

// WriteMail writes the MAIL FROM command without reading its reply,
// for use in a pipelined batch. Call Flush and then ReadReply once all
// queued commands have been written.
func (s *Session) WriteMail(addr string, p codec.MailParams) error {
	if err := s.ensureState(Ready); err != nil {
		return err
	}
	cmd, err := codec.MailFrom(addr, p)
	if err != nil {
		return err
	}
	s.state = Mail
	return s.write(cmd)
}

// Mail sends MAIL FROM synchronously.
func (s *Session) Mail(ctx context.Context, addr string, p codec.MailParams) (*reply.Reply, error) {
	if err := s.checkAlive(ctx); err != nil {
		return nil, err
	}
	if err := s.WriteMail(addr, p); err != nil {
		return nil, err
	}
	if err := s.Flush(); err != nil {
		s.poisoned = true
		return nil, err
	}
	return s.ReadReply(ctx)
}

// WriteRcpt writes one RCPT TO command without reading its reply.
func (s *Session) WriteRcpt(addr string, p codec.RcptParams) error {
	if err := s.ensureState(Mail, Rcpt); err != nil {
		return err
	}
	cmd, err := codec.RcptTo(addr, p)
	if err != nil {
		return err
	}
	s.state = Rcpt
	return s.write(cmd)
}

// Rcpt sends one RCPT TO synchronously.
func (s *Session) Rcpt(ctx context.Context, addr string, p codec.RcptParams) (*reply.Reply, error) {
	if err := s.checkAlive(ctx); err != nil {
		return nil, err
	}
	if err := s.WriteRcpt(addr, p); err != nil {
		return nil, err
	}
	if err := s.Flush(); err != nil {
		s.poisoned = true
		return nil, err
	}
	return s.ReadReply(ctx)
}

// WriteDataCmd writes the DATA command without reading its reply.
func (s *Session) WriteDataCmd() error {
	if err := s.ensureState(Rcpt); err != nil {
		return err
	}
	s.state = Data
	return s.write(codec.Data())
}

// BeginData sends DATA synchronously, expecting the 354 go-ahead.
func (s *Session) BeginData(ctx context.Context) (*reply.Reply, error) {
	if err := s.checkAlive(ctx); err != nil {
		return nil, err
	}
	if err := s.WriteDataCmd(); err != nil {
		return nil, err
	}
	if err := s.Flush(); err != nil {
		s.poisoned = true
		return nil, err
	}
	r, err := s.ReadReply(ctx)
	if err != nil {
		return nil, err
	}
	if r.Code == 354 {
		s.state = DataBody
	}
	return r, nil
}

// ForceDataBody marks the state DataBody directly. It's for the
// pipelined path, where the DATA command's 354 reply is read through
// the raw ReadReply queue rather than through BeginData, so the normal
// reply-code-triggered transition never runs.
func (s *Session) ForceDataBody() { s.state = DataBody }

// DataWriter returns a dot-stuffing, CRLF-normalizing writer over the
// session's wire, bounded by limit bytes (0 = unlimited). The session
// must be in DataBody state.
func (s *Session) DataWriter(limit int64) (*data.Writer, error) {
	if s.state != DataBody {
		s.poisoned = true
		return nil, ErrIllegalTransition
	}
	return data.NewWriter(s.bw, limit), nil
}

// EndData flushes the terminator and reads the single final reply for
// the message. This is always synchronous: pipelining never spans the
// end-of-DATA boundary.
func (s *Session) EndData(ctx context.Context) (*reply.Reply, error) {
	if err := s.checkAlive(ctx); err != nil {
		return nil, err
	}
	if s.state != DataBody {
		s.poisoned = true
		return nil, ErrIllegalTransition
	}
	if err := s.bw.Flush(); err != nil {
		s.poisoned = true
		return nil, err
	}
	r, err := s.ReadReply(ctx)
	if err != nil {
		return nil, err
	}
	s.state = Ready
	return r, nil
}

// AbortData is used when the DATA writer itself failed (e.g.
// MessageTooLarge) before the terminator was sent: the caller never
// gets to call EndData, so the state needs to be walked back manually
// before a Reset.
func (s *Session) AbortData() {
	if s.state == DataBody || s.state == Data {
		s.state = Rcpt
	}
}

// Reset sends RSET and, on a positive reply, returns the session to
// Ready so it can be reused for another envelope.
func (s *Session) Reset(ctx context.Context) (*reply.Reply, error) {
	if err := s.checkAlive(ctx); err != nil {
		return nil, err
	}
	r, err := s.writeAndRead(ctx, codec.Rset())
	if err != nil {
		return nil, err
	}
	if r.IsPositive() {
		s.state = Ready
	}
	return r, nil
}

// Quit sends QUIT best-effort and marks the session Closed regardless
// of the outcome: closing the underlying stream without a clean QUIT is
// always permissible on error paths.
func (s *Session) Quit(ctx context.Context) (*reply.Reply, error) {
	defer func() { s.state = Closed }()

	if s.poisoned {
		return nil, ErrPoisoned
	}
	return s.writeAndRead(ctx, codec.Quit())
}
