package smtpclient

import "time"

// EventSink receives structured notifications about what a Transport did,
// independent of the logging/tracing wired in internal/trace. It is the
// library's equivalent of the teacher's maillog: a narrow, typed audit
// trail meant to be cheap to implement (a no-op default) and easy to
// fan out to a file, syslog, or a metrics counter.
//
// Implementations must not block the Send they're reporting on for long;
// Transport calls these synchronously, in line, the same way the teacher
// calls maillog functions directly from the course of delivery.
type EventSink interface {
	// OnDial reports a connection attempt to one mail exchanger.
	OnDial(addr string, err error)

	// OnTLS reports the outcome of a STARTTLS attempt. ok is false if
	// STARTTLS was not attempted (not advertised, or policy is None).
	// secure reports whether the peer certificate verified; it is only
	// meaningful when ok is true.
	OnTLS(addr string, attempted, ok, secure bool, err error)

	// OnAuth reports the outcome of an AUTH exchange. It is called only
	// once a mechanism has been selected, so mechanism is never empty;
	// nothing is reported when no Credentials were configured or none
	// of the preferred mechanisms were supported.
	OnAuth(addr, mechanism string, ok bool, err error)

	// OnSendAttempt reports the per-recipient outcome of one envelope
	// delivery attempt: err is nil on success, *PermanentError or
	// *TransientError (or a connection/timeout error) otherwise.
	OnSendAttempt(addr, from, to string, err error, duration time.Duration)
}

// NopEventSink discards every event. It's the default when a Transport
// is constructed without WithEventSink.
type NopEventSink struct{}

func (NopEventSink) OnDial(string, error)                                  {}
func (NopEventSink) OnTLS(string, bool, bool, bool, error)                 {}
func (NopEventSink) OnAuth(string, string, bool, error)                    {}
func (NopEventSink) OnSendAttempt(string, string, string, error, time.Duration) {}
