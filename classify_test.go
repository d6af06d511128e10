package smtpclient

import (
	"context"
	"errors"
	"net"
	"testing"

	"blitiri.com.ar/go/smtpclient/internal/reply"
)

type fakeNetError struct{ timeout bool }

func (e *fakeNetError) Error() string   { return "fake net error" }
func (e *fakeNetError) Timeout() bool   { return e.timeout }
func (e *fakeNetError) Temporary() bool { return false }

func TestClassifyIOErrDeadlineExceeded(t *testing.T) {
	err := classifyIOErr("MAIL", context.DeadlineExceeded)
	var te *TimeoutError
	if !errors.As(err, &te) {
		t.Fatalf("got %v, want *TimeoutError", err)
	}
	if te.Op != "MAIL" {
		t.Errorf("Op = %q", te.Op)
	}
}

func TestClassifyIOErrProtocolSentinels(t *testing.T) {
	for _, sentinel := range []error{
		reply.ErrLineTooLong, reply.ErrReplyTooLarge, reply.ErrCodeMismatch,
		reply.ErrMalformedLine, reply.ErrMalformedCode,
	} {
		err := classifyIOErr("read", sentinel)
		var pe *ProtocolError
		if !errors.As(err, &pe) {
			t.Errorf("classifyIOErr(%v) = %v, want *ProtocolError", sentinel, err)
		}
	}
}

func TestClassifyIOErrNetTimeout(t *testing.T) {
	err := classifyIOErr("write", &fakeNetError{timeout: true})
	var te *TimeoutError
	if !errors.As(err, &te) {
		t.Fatalf("got %v, want *TimeoutError", err)
	}
}

func TestClassifyIOErrGenericConnection(t *testing.T) {
	err := classifyIOErr("write", errors.New("connection reset"))
	var ce *ConnectionError
	if !errors.As(err, &ce) {
		t.Fatalf("got %v, want *ConnectionError", err)
	}
}

func TestClassifyIOErrNil(t *testing.T) {
	if err := classifyIOErr("noop", nil); err != nil {
		t.Errorf("classifyIOErr(nil) = %v, want nil", err)
	}
}

func TestClassifyReplyPermanentVsTransient(t *testing.T) {
	perm := &reply.Reply{Code: 550, Lines: []string{"550 no such user"}}
	if err := classifyReply(perm); err == nil {
		t.Fatal("expected error")
	} else {
		var pe *PermanentError
		if !errors.As(err, &pe) || pe.Code != 550 {
			t.Errorf("got %v, want *PermanentError(550)", err)
		}
	}

	trans := &reply.Reply{Code: 450, Lines: []string{"450 try again later"}}
	if err := classifyReply(trans); err == nil {
		t.Fatal("expected error")
	} else {
		var te *TransientError
		if !errors.As(err, &te) || te.Code != 450 {
			t.Errorf("got %v, want *TransientError(450)", err)
		}
	}
}

// ensure net.Error is satisfied structurally for the test above.
var _ net.Error = (*fakeNetError)(nil)
