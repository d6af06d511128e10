// Package trace wraps golang.org/x/net/trace with structured logging,
// giving each Connect or Send call a single live-inspectable record of
// the SMTP dialog it ran: the errors encountered along the way and the
// debug notes its caller adds.
package trace

import (
	"fmt"
	"net/http"
	"strconv"

	"blitiri.com.ar/go/log"

	nettrace "golang.org/x/net/trace"
)

func init() {
	// golang.org/x/net/trace has its own authorization which by default only
	// allows localhost. This can be confusing and limiting in environments
	// which access the monitoring server remotely.
	nettrace.AuthRequest = func(req *http.Request) (any, sensitive bool) {
		return true, true
	}
}

// A Trace represents one Connect or Send call against a single MX.
type Trace struct {
	family string
	title  string
	t      nettrace.Trace
}

// New starts a trace for one Connect or Send call. family is the
// operation ("smtpclient.Connect", "smtpclient.Send"); title is the
// address being dialed.
func New(family, title string) *Trace {
	t := &Trace{family, title, nettrace.New(family, title)}

	// An SMTP dialog (greeting, EHLO, STARTTLS, EHLO again, AUTH, MAIL,
	// one RCPT per recipient, DATA) can easily exceed the default of
	// 10 events; 30 comfortably covers a pipelined send to a handful
	// of recipients.
	t.t.SetMaxEvents(30)
	return t
}

// Debugf adds this message to the trace's log, with a debugging level.
func (t *Trace) Debugf(format string, a ...interface{}) {
	t.t.LazyPrintf(format, a...)

	log.Log(log.Debug, 1, "%s %s: %s",
		t.family, t.title, quote(fmt.Sprintf(format, a...)))
}

// Errorf formats a message, records it as the trace's error, and
// returns it as an error, so a caller can write `return tr.Errorf(...)`.
func (t *Trace) Errorf(format string, a ...interface{}) error {
	// Note we can't just call t.Error here, as it breaks caller logging.
	err := fmt.Errorf(format, a...)
	t.t.SetError()
	t.t.LazyPrintf("error: %v", err)

	log.Log(log.Info, 1, "%s %s: error: %s", t.family, t.title,
		quote(err.Error()))
	return err
}

// Error marks the trace as having seen an error, and also logs it to the
// trace's log.
func (t *Trace) Error(err error) error {
	t.t.SetError()
	t.t.LazyPrintf("error: %v", err)

	log.Log(log.Info, 1, "%s %s: error: %s", t.family, t.title,
		quote(err.Error()))

	return err
}

// Finish the trace. It should not be changed after this is called.
func (t *Trace) Finish() {
	t.t.Finish()
}

func quote(s string) string {
	qs := strconv.Quote(s)
	return qs[1 : len(qs)-1]
}
