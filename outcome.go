package smtpclient

import "blitiri.com.ar/go/smtpclient/internal/reply"

// RecipientResult is one recipient's RCPT TO reply.
type RecipientResult struct {
	Address Address
	Reply   *reply.Reply
}

// Outcome is the result of one Transport.Send: which recipients were
// accepted, which were refused (with the reply that refused them), and
// the server's final reply to the message itself. Accepted and Refused
// together cover every recipient in the envelope, in the envelope's
// original order.
type Outcome struct {
	Accepted   []RecipientResult
	Refused    []RecipientResult
	FinalReply *reply.Reply

	// SecLevel is the transport security level the send was carried
	// over: Plain if STARTTLS was never negotiated.
	SecLevel SecLevel
}

// AllRefused reports whether every recipient was refused, in which case
// no message content is sent (with PIPELINING the DATA command itself
// has already been written by then).
func (o Outcome) AllRefused() bool {
	return len(o.Accepted) == 0
}
