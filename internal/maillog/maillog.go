// Package maillog implements a log specifically for outbound mail
// delivery, and provides an implementation of the EventSink interface
// the root package exposes.
package maillog

import (
	"fmt"
	"io"
	"io/ioutil"
	"log/syslog"
	"sync"
	"time"

	"blitiri.com.ar/go/log"
)

// A writer that prepends timing information.
type timedWriter struct {
	w io.Writer
}

// Write the given buffer, prepending timing information.
func (t timedWriter) Write(b []byte) (int, error) {
	fmt.Fprintf(t.w, "%s  ", time.Now().Format("2006-01-02 15:04:05.000000"))
	return t.w.Write(b)
}

// Logger writes one line per event to a backend writer (a file, or
// syslog), and implements EventSink: its method set matches the root
// package's EventSink interface exactly, so a *Logger can be passed
// directly to smtpclient.WithEventSink without this package importing
// the root one.
type Logger struct {
	w    io.Writer
	once sync.Once
}

// New creates a new Logger which will write messages to the given writer.
func New(w io.Writer) *Logger {
	return &Logger{w: timedWriter{w}}
}

// NewSyslog creates a new Logger which will write messages to syslog.
func NewSyslog() (*Logger, error) {
	w, err := syslog.New(syslog.LOG_INFO|syslog.LOG_MAIL, "smtpclient")
	if err != nil {
		return nil, err
	}
	return &Logger{w: w}, nil
}

func (l *Logger) printf(format string, args ...interface{}) {
	_, err := fmt.Fprintf(l.w, format, args...)
	if err != nil {
		l.once.Do(func() {
			log.Errorf("failed to write to maillog: %v", err)
			log.Errorf("(will not report this again)")
		})
	}
}

// OnDial logs a connection attempt to one mail exchanger.
func (l *Logger) OnDial(addr string, err error) {
	if err != nil {
		l.printf("%s dial failed: %v\n", addr, err)
	} else {
		l.printf("%s connected\n", addr)
	}
}

// OnTLS logs the outcome of a STARTTLS attempt.
func (l *Logger) OnTLS(addr string, attempted, ok, secure bool, err error) {
	switch {
	case !attempted:
		l.printf("%s plaintext (STARTTLS not attempted)\n", addr)
	case err != nil:
		l.printf("%s STARTTLS failed: %v\n", addr, err)
	case !ok:
		l.printf("%s STARTTLS rejected by peer\n", addr)
	case secure:
		l.printf("%s TLS established (verified)\n", addr)
	default:
		l.printf("%s TLS established (unverified certificate)\n", addr)
	}
}

// OnAuth logs the outcome of an AUTH exchange.
func (l *Logger) OnAuth(addr, mechanism string, ok bool, err error) {
	if mechanism == "" {
		return
	}
	if ok {
		l.printf("%s auth succeeded using %s\n", addr, mechanism)
	} else {
		l.printf("%s auth failed using %s: %v\n", addr, mechanism, err)
	}
}

// OnSendAttempt logs the per-recipient outcome of one delivery attempt.
func (l *Logger) OnSendAttempt(addr, from, to string, err error, duration time.Duration) {
	if err == nil {
		l.printf("%s from=%s to=%s sent (%v)\n", addr, from, to, duration)
	} else {
		l.printf("%s from=%s to=%s failed (%v): %v\n", addr, from, to, duration, err)
	}
}

// Default is a Logger that discards everything (mirroring the teacher's
// own maillog.Default).
var Default = New(ioutil.Discard)
