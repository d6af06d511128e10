package smtpclient

import (
	"context"
	"fmt"

	"blitiri.com.ar/go/smtpclient/internal/sts"
)

// MTASTSPolicy is a fetched and validated MTA-STS policy for a recipient
// domain, in the JSON policy format internal/sts parses (the
// draft-ietf-uta-mta-sts-02 format, not RFC 8461's final text format).
// Callers resolve it once per domain (it is cacheable
// for Policy.MaxAge) and pass it to WithMTASTSPolicy so Connect can
// enforce it.
type MTASTSPolicy = sts.Policy

// FetchMTASTSPolicy retrieves and validates domain's MTA-STS policy over
// HTTPS. It performs network I/O and should be called once per domain,
// not once per connection; cache the result for Policy.MaxAge.
func FetchMTASTSPolicy(ctx context.Context, domain string) (*MTASTSPolicy, error) {
	return sts.Fetch(ctx, domain)
}

// WithMTASTSPolicy enforces an MTA-STS policy previously obtained from
// FetchMTASTSPolicy: the MX addr passed to Connect must match one of the
// policy's mx patterns, and if the policy's mode is "enforce", TLSPolicy
// is raised to Required regardless of what WithTLSPolicy set.
func WithMTASTSPolicy(policy *MTASTSPolicy) Option {
	return func(t *Transport) {
		t.mtaSTS = policy
	}
}

// checkMTASTS validates addr against the configured policy, if any.
func (t *Transport) checkMTASTS(addr string) error {
	if t.mtaSTS == nil {
		return nil
	}
	if !t.mtaSTS.MXIsAllowed(addr) {
		return fmt.Errorf("smtpclient: MX %q is not allowed by the domain's MTA-STS policy", addr)
	}
	if t.mtaSTS.Mode == sts.Enforce {
		t.tlsPolicy = Required
	}
	return nil
}
