// smtp-send delivers one message read from stdin to a list of
// recipients over a single SMTP connection.
package main

import (
	"bytes"
	"context"
	"crypto/x509"
	"encoding/pem"
	"flag"
	"fmt"
	"io"
	"net"
	"os"
	"time"

	"golang.org/x/crypto/ssh/terminal"

	"blitiri.com.ar/go/smtpclient"
	"blitiri.com.ar/go/smtpclient/internal/maillog"
	"blitiri.com.ar/go/smtpclient/internal/netstream"
)

var (
	addr = flag.String("addr", "", "host:port of the SMTP server")
	helo = flag.String("helo", "localhost", "domain to present in EHLO/HELO")

	user = flag.String("user", "", "username for AUTH (prompts for a password if set)")
	from = flag.String("from", "", "envelope MAIL FROM address (defaults to -user)")

	tlsPolicyFlag = flag.String("tls", "opportunistic", "opportunistic, required, or none")
	serverCert    = flag.String("server_cert", "",
		"path to a PEM certificate to trust instead of the system root store")

	timeout = flag.Duration("timeout", 30*time.Second, "deadline for the whole SMTP dialog")

	logPath = flag.String("maillog", "", "append delivery events to this file instead of stderr")
)

func main() {
	flag.Parse()
	if *addr == "" || flag.NArg() == 0 {
		fmt.Fprintln(os.Stderr, "usage: smtp-send -addr host:port [flags] recipient...")
		os.Exit(2)
	}

	rawMsg, err := io.ReadAll(os.Stdin)
	must(err)

	policy, err := parseTLSPolicy(*tlsPolicyFlag)
	must(err)

	opts := []smtpclient.Option{
		smtpclient.WithHelloName(*helo),
		smtpclient.WithTLSPolicy(policy),
		smtpclient.WithEventSink(eventSink()),
	}
	if *serverCert != "" {
		opts = append(opts, smtpclient.WithCertRoots(loadCertPool(*serverCert)))
	}
	if *user != "" {
		creds := smtpclient.Credentials{Username: *user, Password: promptPassword()}
		opts = append(opts, smtpclient.WithCredentials(creds, nil))
	}

	fromAddr := *from
	if fromAddr == "" {
		fromAddr = *user
	}
	fromParsed, err := smtpclient.ParseAddress(fromAddr)
	must(err)

	to := make([]smtpclient.Address, len(flag.Args()))
	for i, raw := range flag.Args() {
		to[i], err = smtpclient.ParseAddress(raw)
		must(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	tr, err := smtpclient.Connect(ctx, smtpclient.StreamDialerFunc(dialTCP(*addr)), *addr, opts...)
	must(err)
	defer tr.Close(ctx)

	outcome, err := tr.Send(ctx, smtpclient.SendableEmail{
		Envelope:    smtpclient.Envelope{From: &fromParsed, To: to},
		MessageBody: bytes.NewReader(rawMsg),
	})
	must(err)

	for _, r := range outcome.Accepted {
		fmt.Printf("accepted: %s\n", r.Address)
	}
	for _, r := range outcome.Refused {
		fmt.Printf("refused: %s (%d %s)\n", r.Address, r.Reply.Code, r.Reply.Text())
	}
	if outcome.AllRefused() {
		os.Exit(1)
	}
}

func parseTLSPolicy(s string) (smtpclient.TLSPolicy, error) {
	switch s {
	case "opportunistic", "":
		return smtpclient.Opportunistic, nil
	case "required":
		return smtpclient.Required, nil
	case "none":
		return smtpclient.None, nil
	default:
		return 0, fmt.Errorf("unknown -tls value %q", s)
	}
}

func promptPassword() string {
	fmt.Fprintf(os.Stderr, "Password for %s: ", *user)
	pw, err := terminal.ReadPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(os.Stderr)
	must(err)
	return string(pw)
}

func loadCertPool(path string) *x509.CertPool {
	data, err := os.ReadFile(path)
	must(err)
	block, _ := pem.Decode(data)
	cert, err := x509.ParseCertificate(block.Bytes)
	must(err)

	pool := x509.NewCertPool()
	pool.AddCert(cert)
	return pool
}

// eventSink returns the maillog-backed sink when -maillog is set, so a
// long-lived caller can keep an append-only record of every delivery
// without scraping stderr; otherwise it falls back to stderrSink.
func eventSink() smtpclient.EventSink {
	if *logPath == "" {
		return stderrSink{}
	}
	f, err := os.OpenFile(*logPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0640)
	must(err)
	return maillog.New(f)
}

// stderrSink reports Transport events to stderr, for -v-style visibility
// into what the connection actually did.
type stderrSink struct{}

func (stderrSink) OnDial(addr string, err error) {
	if err != nil {
		fmt.Fprintf(os.Stderr, "dial %s: %v\n", addr, err)
	}
}

func (stderrSink) OnTLS(addr string, attempted, ok, secure bool, err error) {
	switch {
	case !attempted:
		fmt.Fprintf(os.Stderr, "%s: plaintext\n", addr)
	case !ok:
		fmt.Fprintf(os.Stderr, "%s: STARTTLS failed: %v\n", addr, err)
	case secure:
		fmt.Fprintf(os.Stderr, "%s: TLS established, certificate verified\n", addr)
	default:
		fmt.Fprintf(os.Stderr, "%s: TLS established, certificate NOT verified\n", addr)
	}
}

func (stderrSink) OnAuth(addr, mechanism string, ok bool, err error) {
	if mechanism == "" {
		return
	}
	if ok {
		fmt.Fprintf(os.Stderr, "%s: authenticated via %s\n", addr, mechanism)
	} else {
		fmt.Fprintf(os.Stderr, "%s: %s authentication failed: %v\n", addr, mechanism, err)
	}
}

func (stderrSink) OnSendAttempt(addr, from, to string, err error, d time.Duration) {}

func dialTCP(addr string) func(ctx context.Context) (smtpclient.Stream, error) {
	return func(ctx context.Context) (smtpclient.Stream, error) {
		var d net.Dialer
		conn, err := d.DialContext(ctx, "tcp", addr)
		if err != nil {
			return nil, err
		}
		return netstream.New(conn), nil
	}
}

func must(err error) {
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
