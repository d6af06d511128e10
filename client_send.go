package smtpclient

import (
	"context"
	"errors"
	"fmt"
	"io"

	"blitiri.com.ar/go/smtpclient/internal/codec"
	"blitiri.com.ar/go/smtpclient/internal/data"
	"blitiri.com.ar/go/smtpclient/internal/reply"
	"blitiri.com.ar/go/smtpclient/internal/trace"
)

// mailParams derives the MAIL FROM parameters to send, consulting the
// peer's advertised extensions so unsupported parameters are never
// emitted.
func (t *Transport) mailParams(email SendableEmail) codec.MailParams {
	p := codec.MailParams{}
	ext := t.sess.Ext

	if sizer, ok := email.MessageBody.(Sizer); ok {
		if _, advertised := ext.SizeLimit(); advertised {
			p.Size = int64(sizer.Len())
		}
	}
	if email.EightBitMIME && ext.EightBitMIME {
		p.Body = "8BITMIME"
	}
	if needsSMTPUTF8(email.Envelope) && ext.SMTPUTF8 {
		p.SMTPUTF8 = true
	}
	return p
}

func needsSMTPUTF8(e Envelope) bool {
	if e.From != nil && !e.From.IsASCII() {
		return true
	}
	for _, to := range e.To {
		if !to.IsASCII() {
			return true
		}
	}
	return false
}

// prepareAddress returns the address string to put on the wire: as-is
// if it's ASCII or the peer supports SMTPUTF8, otherwise with its
// domain converted to IDNA ASCII. A non-ASCII local part with no
// SMTPUTF8 support cannot be prepared at all.
func prepareAddress(addr Address, peerSupportsUTF8 bool) (string, bool, error) {
	if addr.IsASCII() || peerSupportsUTF8 {
		return addr.String(), !addr.IsASCII(), nil
	}

	if !isASCII(addr.Local) {
		return "", true, fmt.Errorf("%w: local part of %q is not ASCII and peer does not support SMTPUTF8",
			ErrInvalidEnvelope, addr)
	}

	asciiDomain, err := addr.ASCIIDomain()
	if err != nil {
		return "", true, fmt.Errorf("%w: domain of %q is not IDNA-safe: %v", ErrInvalidEnvelope, addr, err)
	}
	return addr.Local + "@" + asciiDomain, false, nil
}

func (t *Transport) sendSequential(ctx context.Context, tr *trace.Trace, fromAddr string, email SendableEmail, mp codec.MailParams) (*Outcome, error) {
	mailR, err := t.sess.Mail(ctx, fromAddr, mp)
	if err != nil {
		return nil, tr.Error(classifyIOErr("MAIL", err))
	}
	if !mailR.IsPositive() {
		return nil, tr.Error(t.mailFailure(mailR, mp))
	}

	outcome := &Outcome{SecLevel: t.secLevel}
	for _, to := range email.To {
		addrStr, _, err := prepareAddress(to, t.sess.Ext.SMTPUTF8)
		if err != nil {
			t.sess.Reset(ctx)
			return nil, tr.Error(&InvalidEnvelopeError{Err: err})
		}
		r, err := t.sess.Rcpt(ctx, addrStr, codec.RcptParams{})
		if err != nil {
			return nil, tr.Error(classifyIOErr("RCPT", err))
		}
		result := RecipientResult{Address: to, Reply: r}
		if r.IsPositive() {
			outcome.Accepted = append(outcome.Accepted, result)
		} else {
			outcome.Refused = append(outcome.Refused, result)
		}
	}

	return t.finishAfterRcpt(ctx, tr, fromAddr, email, outcome)
}

func (t *Transport) sendPipelined(ctx context.Context, tr *trace.Trace, fromAddr string, email SendableEmail, mp codec.MailParams) (*Outcome, error) {
	if err := t.sess.WriteMail(fromAddr, mp); err != nil {
		return nil, tr.Error(classifyIOErr("MAIL", err))
	}

	for _, to := range email.To {
		addrStr, _, err := prepareAddress(to, t.sess.Ext.SMTPUTF8)
		if err != nil {
			return nil, tr.Error(&InvalidEnvelopeError{Err: err})
		}
		if err := t.sess.WriteRcpt(addrStr, codec.RcptParams{}); err != nil {
			return nil, tr.Error(classifyIOErr("RCPT", err))
		}
	}
	if err := t.sess.WriteDataCmd(); err != nil {
		return nil, tr.Error(classifyIOErr("DATA", err))
	}
	if err := t.sess.Flush(); err != nil {
		return nil, tr.Error(classifyIOErr("flush", err))
	}

	mailR, err := t.sess.ReadReply(ctx)
	if err != nil {
		return nil, tr.Error(classifyIOErr("MAIL", err))
	}
	if !mailR.IsPositive() {
		// The peer still has a RCPT-per-recipient plus a DATA reply in
		// flight; drain them before reporting MAIL's failure; the
		// transaction never had a chance to start so there is nothing
		// salvageable in the drained replies themselves.
		t.drainReplies(ctx, len(email.To)+1)
		return nil, tr.Error(t.mailFailure(mailR, mp))
	}

	outcome := &Outcome{SecLevel: t.secLevel}
	for _, to := range email.To {
		r, err := t.sess.ReadReply(ctx)
		if err != nil {
			return nil, tr.Error(classifyIOErr("RCPT", err))
		}
		result := RecipientResult{Address: to, Reply: r}
		if r.IsPositive() {
			outcome.Accepted = append(outcome.Accepted, result)
		} else {
			outcome.Refused = append(outcome.Refused, result)
		}
	}

	dataR, err := t.sess.ReadReply(ctx)
	if err != nil {
		return nil, tr.Error(classifyIOErr("DATA", err))
	}
	// BeginData normally performs this transition from the synchronous
	// path; here the write/flush/read already happened, so apply it by
	// hand via the session's state once we know which way this goes.
	if dataR.Code == 354 {
		t.sess.ForceDataBody()
	} else {
		t.sess.AbortData()
	}

	return t.finishAfterRcptAndData(ctx, tr, fromAddr, email, outcome, dataR)
}

func (t *Transport) finishAfterRcpt(ctx context.Context, tr *trace.Trace, fromAddr string, email SendableEmail, outcome *Outcome) (*Outcome, error) {
	if outcome.AllRefused() {
		t.sess.Reset(ctx)
		last := outcome.Refused[len(outcome.Refused)-1]
		return nil, tr.Error(classifyReply(last.Reply))
	}

	dataR, err := t.sess.BeginData(ctx)
	if err != nil {
		return nil, tr.Error(classifyIOErr("DATA", err))
	}
	return t.finishAfterRcptAndData(ctx, tr, fromAddr, email, outcome, dataR)
}

func (t *Transport) finishAfterRcptAndData(ctx context.Context, tr *trace.Trace, fromAddr string, email SendableEmail, outcome *Outcome, dataR *reply.Reply) (*Outcome, error) {
	if outcome.AllRefused() {
		t.sess.Reset(ctx)
		last := outcome.Refused[len(outcome.Refused)-1]
		return nil, tr.Error(classifyReply(last.Reply))
	}

	if dataR.Code != 354 {
		t.sess.Reset(ctx)
		return nil, tr.Error(classifyReply(dataR))
	}

	limit, _ := t.sess.Ext.SizeLimit()
	w, err := t.sess.DataWriter(limit)
	if err != nil {
		return nil, tr.Error(classifyIOErr("DATA body", err))
	}

	if _, err := io.Copy(w, email.MessageBody); err != nil {
		t.sess.AbortData()
		t.sess.Reset(ctx)
		if errors.Is(err, data.ErrMessageTooLarge) {
			return nil, tr.Error(&MessageTooLargeError{Limit: limit})
		}
		return nil, tr.Error(classifyIOErr("DATA body", err))
	}
	if err := w.Close(); err != nil {
		t.sess.AbortData()
		t.sess.Reset(ctx)
		if errors.Is(err, data.ErrMessageTooLarge) {
			return nil, tr.Error(&MessageTooLargeError{Limit: limit})
		}
		return nil, tr.Error(classifyIOErr("DATA terminator", err))
	}

	finalReply, err := t.sess.EndData(ctx)
	if err != nil {
		return nil, tr.Error(classifyIOErr("end-of-DATA", err))
	}
	outcome.FinalReply = finalReply

	var attemptErr error
	if !finalReply.IsPositive() {
		attemptErr = classifyReply(finalReply)
	}
	for _, acc := range outcome.Accepted {
		t.sink.OnSendAttempt(t.addr, fromAddr, acc.Address.String(), attemptErr, 0)
	}
	for _, ref := range outcome.Refused {
		t.sink.OnSendAttempt(t.addr, fromAddr, ref.Address.String(), classifyReply(ref.Reply), 0)
	}

	return outcome, nil
}

func (t *Transport) mailFailure(r *reply.Reply, mp codec.MailParams) error {
	if r.Code == 552 {
		limit, _ := t.sess.Ext.SizeLimit()
		return &MessageTooLargeError{Limit: limit, Attempted: mp.Size}
	}
	return classifyReply(r)
}

// drainReplies reads and discards up to n replies, stopping at the
// first error (the stream is likely broken past that point anyway).
func (t *Transport) drainReplies(ctx context.Context, n int) {
	for i := 0; i < n; i++ {
		if _, err := t.sess.ReadReply(ctx); err != nil {
			return
		}
	}
}
