package smtpclient

import (
	"context"
	"errors"
	"net"

	"blitiri.com.ar/go/smtpclient/internal/reply"
	"blitiri.com.ar/go/smtpclient/internal/session"
)

// classifyIOErr turns an error surfaced by the session layer into one of
// the taxonomy types. Timeout and connection errors record which command
// was outstanding; a ProtocolError does not.
func classifyIOErr(op string, err error) error {
	if err == nil {
		return nil
	}

	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return &TimeoutError{Op: op, Err: err}
	case errors.Is(err, reply.ErrLineTooLong),
		errors.Is(err, reply.ErrReplyTooLarge),
		errors.Is(err, reply.ErrCodeMismatch),
		errors.Is(err, reply.ErrMalformedLine),
		errors.Is(err, reply.ErrMalformedCode),
		errors.Is(err, session.ErrIllegalTransition):
		return &ProtocolError{Err: err}
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return &TimeoutError{Op: op, Err: err}
	}

	return &ConnectionError{Op: op, Err: err}
}

// classifyReply turns a final, non-2xx SMTP reply into a PermanentError
// or TransientError.
func classifyReply(r *reply.Reply) error {
	if r.IsPermanent() {
		return &PermanentError{Code: r.Code, Text: r.Text()}
	}
	return &TransientError{Code: r.Code, Text: r.Text()}
}
