// Package data streams message bytes during the SMTP DATA phase, applying
// dot-stuffing and CRLF normalization on the way out and tracking the
// running size against an optional ceiling advertised by the peer's SIZE
// extension.
//
// It mirrors, in reverse, the byte-at-a-time state machine the teacher
// uses server-side to undo dot-stuffing on read (see smtpsrv/dotreader.go
// in the original tree): here we stuff on write instead of unstuff on
// read, but the "remember whether we just saw CRLF" trick is the same.
package data

import (
	"bufio"
	"errors"
)

// ErrMessageTooLarge is returned by Write once the running total exceeds
// the limit passed to NewWriter. No terminator is written in that case;
// the caller is expected to RSET and abandon the message.
var ErrMessageTooLarge = errors.New("data: message exceeds advertised SIZE limit")

// Writer wraps a *bufio.Writer during the DataBody state. Callers should
// write the raw message body to it (any reasonable line-ending
// convention is accepted) and call Close to emit the end-of-DATA
// terminator.
type Writer struct {
	w     *bufio.Writer
	limit int64 // 0 means unlimited
	n     int64

	sol  bool // at start of line (for dot-stuffing)
	skipLF bool // just emitted a normalized CRLF for a CR; swallow a following raw LF
}

// NewWriter returns a Writer that streams through w, aborting with
// ErrMessageTooLarge once more than limit bytes have been written to w.
// The count is of bytes as sent, after CRLF normalization and
// dot-stuffing, so it can exceed the caller's content length. limit <= 0
// means no limit.
func NewWriter(w *bufio.Writer, limit int64) *Writer {
	return &Writer{w: w, limit: limit, sol: true}
}

// Write streams p, dot-stuffing any line that begins with '.' and
// normalizing lone CR or LF into CRLF. Existing CRLF pairs pass through
// unchanged, so 8-bit and binary content within a line is preserved.
func (dw *Writer) Write(p []byte) (int, error) {
	written := 0
	for _, b := range p {
		switch {
		case b == '\r':
			// Always emit a normalized CRLF immediately; if the very next
			// byte turns out to be the LF of an existing CRLF pair, it is
			// swallowed below instead of being normalized again. Using a
			// field (not a look-ahead into p) means this survives a CRLF
			// pair split across two Write calls.
			if err := dw.emit('\r'); err != nil {
				return written, err
			}
			if err := dw.emit('\n'); err != nil {
				return written, err
			}
			dw.sol = true
			dw.skipLF = true
		case b == '\n':
			if dw.skipLF {
				dw.skipLF = false
				written++
				continue
			}
			// A lone LF, not preceded by CR: normalize to CRLF.
			if err := dw.emit('\r'); err != nil {
				return written, err
			}
			if err := dw.emit('\n'); err != nil {
				return written, err
			}
			dw.sol = true
		default:
			dw.skipLF = false
			if b == '.' && dw.sol {
				if err := dw.emit('.'); err != nil {
					return written, err
				}
			}
			if err := dw.emit(b); err != nil {
				return written, err
			}
			dw.sol = false
		}

		written++
	}
	return written, nil
}

// emit writes a single wire byte, applying the size ceiling before the
// bufio.Writer ever sees it.
func (dw *Writer) emit(b byte) error {
	dw.n++
	if dw.limit > 0 && dw.n > dw.limit {
		return ErrMessageTooLarge
	}
	return dw.w.WriteByte(b)
}

// Close emits the end-of-DATA terminator: a CRLF if the content did not
// already end in one, followed by ".\r\n". It does not flush the
// underlying bufio.Writer; callers still own that.
//
// The terminator itself is protocol framing, not message content, so it
// is not subject to the SIZE ceiling: a message exactly SIZE bytes long
// must still be able to close out its DATA phase.
func (dw *Writer) Close() error {
	if !dw.sol {
		if _, err := dw.w.WriteString("\r\n"); err != nil {
			return err
		}
	}
	_, err := dw.w.WriteString(".\r\n")
	return err
}

// BytesWritten returns the number of wire bytes emitted so far (after CRLF
// normalization and dot-stuffing, excluding the terminator).
func (dw *Writer) BytesWritten() int64 { return dw.n }
