package smtpclient

// TLSPolicy controls whether and how a Transport insists on STARTTLS.
type TLSPolicy int

const (
	// Opportunistic uses STARTTLS when the peer advertises it, and
	// falls back to a fresh plaintext connection if the handshake
	// itself fails (not if the peer simply doesn't advertise STARTTLS
	// at all — that case proceeds in plaintext directly). This mirrors
	// the teacher's default outbound delivery behavior: TLS when
	// possible, never let TLS brittleness block mail.
	Opportunistic TLSPolicy = iota

	// Required insists on a successful STARTTLS handshake. A peer that
	// doesn't advertise STARTTLS, refuses it, or fails the handshake makes
	// Connect return a *TLSRequiredError. No plaintext fallback.
	Required

	// None never attempts STARTTLS, even if advertised.
	None
)

func (p TLSPolicy) String() string {
	switch p {
	case Opportunistic:
		return "opportunistic"
	case Required:
		return "required"
	case None:
		return "none"
	default:
		return "unknown"
	}
}
