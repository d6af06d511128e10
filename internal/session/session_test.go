package session

import (
	"bufio"
	"context"
	"net"
	"strings"
	"testing"
	"time"

	"blitiri.com.ar/go/smtpclient/internal/codec"
	"blitiri.com.ar/go/smtpclient/internal/ext"
)

// fakeStream adapts a net.Conn (one end of a net.Pipe) to the Stream
// interface. UpgradeToTLS is a no-op recorder: these tests exercise the
// command/reply dialog, not the real TLS handshake.
type fakeStream struct {
	net.Conn
	upgraded     bool
	upgradedName string
}

func (f *fakeStream) UpgradeToTLS(serverName string) error {
	f.upgraded = true
	f.upgradedName = serverName
	return nil
}

// scriptedServer reads lines off conn and, for each, writes back the
// corresponding canned reply from script (matched in order, ignoring
// the exact command text). It stops once script is exhausted or conn
// closes.
func scriptedServer(t *testing.T, conn net.Conn, script []string) {
	t.Helper()
	go func() {
		defer conn.Close()
		r := bufio.NewReader(conn)
		for _, reply := range script {
			if _, err := r.ReadString('\n'); err != nil {
				return
			}
			if _, err := conn.Write([]byte(reply)); err != nil {
				return
			}
		}
	}()
}

func newTestSession(t *testing.T, script []string) (*Session, func()) {
	t.Helper()
	client, server := net.Pipe()
	scriptedServer(t, server, script)
	s := New(&fakeStream{Conn: client})
	return s, func() { client.Close() }
}

func ctx(t *testing.T) context.Context {
	t.Helper()
	c, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return c
}

func TestEHLOPopulatesExtensions(t *testing.T) {
	s, closeFn := newTestSession(t, []string{
		"250-mx.example.com\r\n250-PIPELINING\r\n250-SIZE 10000000\r\n250 STARTTLS\r\n",
	})
	defer closeFn()

	s.state = Greeted
	r, err := s.EHLO(ctx(t), "client.example.com")
	if err != nil {
		t.Fatal(err)
	}
	if !r.IsPositive() {
		t.Fatalf("got %v, want positive", r)
	}
	if s.State() != Ehlo {
		t.Errorf("state = %v, want Ehlo", s.State())
	}
	if !s.Ext.StartTLS {
		t.Error("expected StartTLS capability")
	}
	if !s.Ext.Pipelining {
		t.Error("expected Pipelining capability")
	}
	if limit, ok := s.Ext.SizeLimit(); !ok || limit != 10000000 {
		t.Errorf("SizeLimit = %d,%v, want 10000000,true", limit, ok)
	}
}

func TestEHLOFailureLeavesStateForHELOFallback(t *testing.T) {
	s, closeFn := newTestSession(t, []string{
		"500 command not recognized\r\n",
	})
	defer closeFn()

	s.state = Greeted
	r, err := s.EHLO(ctx(t), "client.example.com")
	if err != nil {
		t.Fatal(err)
	}
	if r.IsPositive() {
		t.Fatal("expected a negative reply")
	}
	if s.State() != Greeted {
		t.Errorf("state = %v, want Greeted (unchanged)", s.State())
	}
}

func TestStartTLSUpgradesAndResetsExtensions(t *testing.T) {
	s, closeFn := newTestSession(t, []string{
		"220 2.0.0 Ready to start TLS\r\n",
	})
	defer closeFn()

	s.state = Ehlo
	s.Ext = &ext.Set{StartTLS: true}
	r, err := s.StartTLS(ctx(t))
	if err != nil {
		t.Fatal(err)
	}
	if r.Code != 220 {
		t.Fatalf("code = %d, want 220", r.Code)
	}
	if err := s.UpgradeToTLS("mx.example.com"); err != nil {
		t.Fatal(err)
	}
	fs := s.stream.(*fakeStream)
	if !fs.upgraded || fs.upgradedName != "mx.example.com" {
		t.Errorf("stream was not upgraded with the expected server name")
	}
	if s.Ext != nil {
		t.Errorf("Ext = %+v after upgrade, want nil until the next EHLO", s.Ext)
	}
}

func TestMailRcptDataFullCycle(t *testing.T) {
	s, closeFn := newTestSession(t, []string{
		"250 2.1.0 Ok\r\n",                // MAIL FROM
		"250 2.1.5 Ok\r\n",                // RCPT TO
		"354 End data with <CR><LF>.<CR><LF>\r\n", // DATA
		"250 2.0.0 Ok: queued as 12345\r\n", // end-of-DATA
	})
	defer closeFn()

	s.state = Ready
	if _, err := s.Mail(ctx(t), "sender@example.com", codec.MailParams{}); err != nil {
		t.Fatal(err)
	}
	if s.State() != Mail {
		t.Errorf("state = %v, want Mail", s.State())
	}

	if _, err := s.Rcpt(ctx(t), "rcpt@example.com", codec.RcptParams{}); err != nil {
		t.Fatal(err)
	}
	if s.State() != Rcpt {
		t.Errorf("state = %v, want Rcpt", s.State())
	}

	dr, err := s.BeginData(ctx(t))
	if err != nil {
		t.Fatal(err)
	}
	if dr.Code != 354 {
		t.Fatalf("code = %d, want 354", dr.Code)
	}
	if s.State() != DataBody {
		t.Errorf("state = %v, want DataBody", s.State())
	}

	w, err := s.DataWriter(0)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := w.Write([]byte("Subject: hi\r\n\r\nbody\r\n")); err != nil {
		t.Fatal(err)
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}

	final, err := s.EndData(ctx(t))
	if err != nil {
		t.Fatal(err)
	}
	if final.Code != 250 {
		t.Errorf("final code = %d, want 250", final.Code)
	}
	if s.State() != Ready {
		t.Errorf("state = %v, want Ready", s.State())
	}
}

func TestPipelinedMailRcptData(t *testing.T) {
	s, closeFn := newTestSession(t, []string{
		"250 2.1.0 Ok\r\n",
		"250 2.1.5 Ok\r\n",
		"250 2.1.5 Ok\r\n",
		"354 Go ahead\r\n",
	})
	defer closeFn()

	s.state = Ready
	if err := s.WriteMail("sender@example.com", codec.MailParams{}); err != nil {
		t.Fatal(err)
	}
	if err := s.WriteRcpt("a@example.com", codec.RcptParams{}); err != nil {
		t.Fatal(err)
	}
	if err := s.WriteRcpt("b@example.com", codec.RcptParams{}); err != nil {
		t.Fatal(err)
	}
	if err := s.WriteDataCmd(); err != nil {
		t.Fatal(err)
	}
	if err := s.Flush(); err != nil {
		t.Fatal(err)
	}

	mailReply, err := s.ReadReply(ctx(t))
	if err != nil || mailReply.Code != 250 {
		t.Fatalf("mail reply: %v, %v", mailReply, err)
	}
	rcpt1, err := s.ReadReply(ctx(t))
	if err != nil || rcpt1.Code != 250 {
		t.Fatalf("rcpt1 reply: %v, %v", rcpt1, err)
	}
	rcpt2, err := s.ReadReply(ctx(t))
	if err != nil || rcpt2.Code != 250 {
		t.Fatalf("rcpt2 reply: %v, %v", rcpt2, err)
	}
	dataReply, err := s.ReadReply(ctx(t))
	if err != nil || dataReply.Code != 354 {
		t.Fatalf("data reply: %v, %v", dataReply, err)
	}
	if s.State() != Data {
		t.Errorf("state = %v, want Data (BeginData's 354 transition happens via BeginData, not raw WriteDataCmd)", s.State())
	}
}

func TestAuthenticateLoginSequence(t *testing.T) {
	s, closeFn := newTestSession(t, []string{
		"334 VXNlcm5hbWU6\r\n", // "Username:"
		"334 UGFzc3dvcmQ6\r\n", // "Password:"
		"235 2.7.0 Authentication succeeded\r\n",
	})
	defer closeFn()

	s.state = Ehlo
	mech := &loginStub{}
	r, err := s.Authenticate(ctx(t), mech)
	if err != nil {
		t.Fatal(err)
	}
	if r.Code != 235 {
		t.Fatalf("code = %d, want 235", r.Code)
	}
	if s.State() != Ready {
		t.Errorf("state = %v, want Ready", s.State())
	}
}

// loginStub mimics auth.Login's shape without importing the auth package,
// keeping this test focused on the session's continuation loop.
type loginStub struct{ step int }

func (*loginStub) Name() string                     { return "LOGIN" }
func (*loginStub) InitialResponse() (string, bool)   { return "", false }
func (l *loginStub) Step(challenge string) (string, error) {
	l.step++
	if l.step == 1 {
		return "dXNlcg==", nil // "user"
	}
	return "cGFzcw==", nil // "pass"
}

func TestIllegalTransitionIsRejected(t *testing.T) {
	s, closeFn := newTestSession(t, nil)
	defer closeFn()

	s.state = Connecting
	if _, err := s.Mail(ctx(t), "a@b.com", codec.MailParams{}); err != ErrIllegalTransition {
		t.Errorf("got %v, want ErrIllegalTransition", err)
	}
	if !s.poisoned {
		t.Error("session should be poisoned after an illegal transition")
	}
}

func TestPoisonedSessionRejectsFurtherOperations(t *testing.T) {
	s, closeFn := newTestSession(t, nil)
	defer closeFn()

	s.Poison()
	if _, err := s.Reset(ctx(t)); err != ErrPoisoned {
		t.Errorf("got %v, want ErrPoisoned", err)
	}
}

func TestReadGreetingRejectsNegativeCode(t *testing.T) {
	// The greeting is sent unprompted, so scriptedServer (which waits for
	// a command before each reply) cannot drive this exchange.
	client, server := net.Pipe()
	defer client.Close()
	go func() {
		defer server.Close()
		server.Write([]byte("554 no service here\r\n"))
	}()
	s := New(&fakeStream{Conn: client})

	r, err := s.ReadGreeting(ctx(t))
	if err != nil {
		t.Fatal(err)
	}
	if r.Code != 554 {
		t.Fatalf("code = %d, want 554", r.Code)
	}
	if !s.poisoned {
		t.Error("a negative greeting should poison the session")
	}
}

func TestStateStringsAreReadable(t *testing.T) {
	for state, want := range map[State]string{
		Connecting: "Connecting",
		Ready:      "Ready",
		DataBody:   "DataBody",
		Closed:     "Closed",
	} {
		if got := state.String(); got != want {
			t.Errorf("State(%d).String() = %q, want %q", state, got, want)
		}
	}
}

// sanity check that the pipeline test above actually wrote one
// command per line, since scriptedServer reads by line.
func TestWriteMailProducesOneLine(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	s := New(&fakeStream{Conn: client})
	s.state = Ready

	go func() {
		s.WriteMail("a@b.com", codec.MailParams{})
		s.Flush()
	}()

	r := bufio.NewReader(server)
	line, err := r.ReadString('\n')
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(line, "MAIL FROM:") {
		t.Errorf("got %q, want MAIL FROM prefix", line)
	}
}
