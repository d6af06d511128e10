// smtp-diag checks a domain's outbound-mail posture: its MTA-STS policy,
// SPF records for its MXs, and whether each MX actually offers a
// verifiable STARTTLS certificate. It is a diagnostic companion to
// smtp-send, not something Transport uses internally.
package main

import (
	"context"
	"flag"
	"log"
	"net"
	"time"

	"golang.org/x/net/idna"

	spf "blitiri.com.ar/go/spf"
	"blitiri.com.ar/go/smtpclient"
	"blitiri.com.ar/go/smtpclient/internal/netstream"
)

var (
	port = flag.String("port", "25", "port to use for connecting to the MXs")
)

func main() {
	flag.Parse()

	domain := flag.Arg(0)
	if domain == "" {
		log.Fatal("usage: smtp-diag <domain>")
	}
	domain, err := idna.ToASCII(domain)
	if err != nil {
		log.Fatalf("IDNA conversion failed: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	log.Printf("=== MTA-STS policy for %s", domain)
	policy, err := smtpclient.FetchMTASTSPolicy(ctx, domain)
	if err != nil {
		log.Printf("not available: %v", err)
	} else {
		log.Printf("mode=%s mxs=%v max_age=%s", policy.Mode, policy.MXs, policy.MaxAge)
	}

	mxs, err := net.LookupMX(domain)
	if err != nil {
		log.Fatalf("MX lookup: %v", err)
	}
	if len(mxs) == 0 {
		log.Fatal("MX lookup returned no results")
	}

	for _, mx := range mxs {
		log.Printf("=== %2d %s", mx.Pref, mx.Host)

		if policy != nil {
			if policy.MXIsAllowed(mx.Host) {
				log.Printf("allowed by MTA-STS policy")
			} else {
				log.Printf("NOT allowed by MTA-STS policy")
			}
		}

		ips, err := net.LookupIP(mx.Host)
		if err != nil {
			log.Printf("IP lookup failed: %v", err)
			continue
		}
		for _, ip := range ips {
			result, err := spf.CheckHost(ip, domain)
			if result != spf.Pass {
				log.Printf("SPF %s for %s: %s (%v)", result, ip, domain, err)
			}
		}

		checkTLS(ctx, mx.Host)
	}
}

// checkTLS runs the real STARTTLS dialog against host (EHLO, STARTTLS,
// EHLO again) rather than an implicit-TLS handshake, since that's what
// an MX on port 25 actually speaks.
func checkTLS(ctx context.Context, host string) {
	mxAddr := net.JoinHostPort(host, *port)
	dialer := smtpclient.StreamDialerFunc(func(ctx context.Context) (smtpclient.Stream, error) {
		var d net.Dialer
		conn, err := d.DialContext(ctx, "tcp", mxAddr)
		if err != nil {
			return nil, err
		}
		return netstream.New(conn), nil
	})

	tr, err := smtpclient.Connect(ctx, dialer, host, smtpclient.WithTLSPolicy(smtpclient.Required))
	if err != nil {
		log.Printf("STARTTLS check failed: %v", err)
		return
	}
	defer tr.Close(ctx)

	log.Printf("TLS OK: %s", tr.SecLevel())
}
