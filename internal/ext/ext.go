// Package ext holds a typed record of the ESMTP capabilities a peer
// advertised in its EHLO response. It is a flags-plus-parameter-slots
// struct rather than a generic map, so the type documents exactly what
// capabilities the session understands — unknown tokens are retained
// verbatim so diagnostic logs can round-trip them, but they don't get
// first-class fields.
package ext

import (
	"strconv"
	"strings"
)

// Set is populated once per EHLO (or STARTTLS+EHLO) and replaced wholesale
// afterwards; it is never merged across negotiations.
type Set struct {
	Size         *int64
	EightBitMIME bool
	SMTPUTF8     bool
	StartTLS     bool
	Auth         []string
	Pipelining   bool
	Chunking     bool
	BinaryMIME   bool
	DSN          bool
	Help         bool

	// Unknown holds capability lines this package doesn't model
	// explicitly, keyed by the first token, verbatim parameters as the
	// remaining tokens.
	Unknown map[string][]string
}

// Parse builds a Set from the capability lines of an EHLO reply (the
// greeting line itself must already have been removed by the caller).
func Parse(lines []string) *Set {
	s := &Set{Unknown: map[string][]string{}}

	for _, l := range lines {
		fields := strings.Fields(l)
		if len(fields) == 0 {
			continue
		}

		keyword := strings.ToUpper(fields[0])
		args := fields[1:]

		switch keyword {
		case "SIZE":
			if len(args) == 1 {
				if n, err := strconv.ParseInt(args[0], 10, 64); err == nil {
					s.Size = &n
					continue
				}
			}
			// SIZE with no (or a malformed) argument still means the
			// extension is present, just without an advertised limit.
			var zero int64
			s.Size = &zero
		case "8BITMIME":
			s.EightBitMIME = true
		case "SMTPUTF8":
			s.SMTPUTF8 = true
		case "STARTTLS":
			s.StartTLS = true
		case "AUTH":
			s.Auth = append(s.Auth, args...)
		case "PIPELINING":
			s.Pipelining = true
		case "CHUNKING":
			s.Chunking = true
		case "BINARYMIME":
			s.BinaryMIME = true
		case "DSN":
			s.DSN = true
		case "HELP":
			s.Help = true
		default:
			s.Unknown[fields[0]] = args
		}
	}

	return s
}

// SupportsAuth reports whether the peer advertised the given mechanism.
func (s *Set) SupportsAuth(mechanism string) bool {
	if s == nil {
		return false
	}
	for _, m := range s.Auth {
		if strings.EqualFold(m, mechanism) {
			return true
		}
	}
	return false
}

// SizeLimit returns the advertised SIZE limit and whether one was given.
// A SIZE extension present with no parameter (or "SIZE 0") means the peer
// imposes no specific limit it wants to advertise.
func (s *Set) SizeLimit() (int64, bool) {
	if s == nil || s.Size == nil || *s.Size == 0 {
		return 0, false
	}
	return *s.Size, true
}
