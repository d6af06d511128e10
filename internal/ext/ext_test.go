package ext

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestParseTypical(t *testing.T) {
	got := Parse([]string{
		"PIPELINING",
		"SIZE 10485760",
		"8BITMIME",
		"AUTH PLAIN LOGIN",
		"STARTTLS",
		"X-FOO bar baz",
	})

	size := int64(10485760)
	want := &Set{
		Size:         &size,
		EightBitMIME: true,
		StartTLS:     true,
		Auth:         []string{"PLAIN", "LOGIN"},
		Pipelining:   true,
		Unknown:      map[string][]string{"X-FOO": {"bar", "baz"}},
	}

	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("mismatch (-want +got):\n%s", diff)
	}
}

func TestEmptyCapabilityLinesYieldEmptySet(t *testing.T) {
	got := Parse(nil)
	if got.StartTLS || got.Pipelining || len(got.Auth) != 0 {
		t.Errorf("expected empty set, got %+v", got)
	}
}

func TestSupportsAuthCaseInsensitive(t *testing.T) {
	s := Parse([]string{"AUTH PLAIN LOGIN"})
	if !s.SupportsAuth("plain") {
		t.Error("expected case-insensitive match for plain")
	}
	if s.SupportsAuth("CRAM-MD5") {
		t.Error("did not expect CRAM-MD5 support")
	}
}

func TestSizeLimit(t *testing.T) {
	s := Parse([]string{"SIZE 42"})
	n, ok := s.SizeLimit()
	if !ok || n != 42 {
		t.Errorf("got (%d, %v), want (42, true)", n, ok)
	}

	s2 := Parse([]string{"SIZE"})
	if _, ok := s2.SizeLimit(); ok {
		t.Error("SIZE with no parameter should not report a limit")
	}
}
