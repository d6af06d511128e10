package codec

import (
	"strings"
	"testing"
)

func TestEHLO(t *testing.T) {
	got, err := EHLO("client.example")
	if err != nil {
		t.Fatal(err)
	}
	if want := "EHLO client.example\r\n"; string(got) != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestEHLORejectsControlChars(t *testing.T) {
	_, err := EHLO("client\r.example")
	if err != ErrInvalidArgument {
		t.Errorf("got %v, want ErrInvalidArgument", err)
	}
}

func TestMailFromParams(t *testing.T) {
	got, err := MailFrom("a@x", MailParams{
		Size: 1024, Body: "8BITMIME", SMTPUTF8: true,
	})
	if err != nil {
		t.Fatal(err)
	}
	want := "MAIL FROM:<a@x> SIZE=1024 BODY=8BITMIME SMTPUTF8\r\n"
	if string(got) != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestMailFromNullSender(t *testing.T) {
	got, err := MailFrom("", MailParams{})
	if err != nil {
		t.Fatal(err)
	}
	if want := "MAIL FROM:<>\r\n"; string(got) != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestRcptTo(t *testing.T) {
	got, err := RcptTo("b@y", RcptParams{})
	if err != nil {
		t.Fatal(err)
	}
	if want := "RCPT TO:<b@y>\r\n"; string(got) != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestDataTerminator(t *testing.T) {
	if got := string(DataTerminator()); got != "\r\n.\r\n" {
		t.Errorf("got %q", got)
	}
}

func TestAuthWithInitialResponse(t *testing.T) {
	got := Auth("PLAIN", "AHVzZXIAcGFzcw==")
	if want := "AUTH PLAIN AHVzZXIAcGFzcw==\r\n"; string(got) != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestAllCommandsEndInCRLF(t *testing.T) {
	cmds := [][]byte{
		HELOBytes(t), StartTLS(), Data(), Rset(), Noop(), Quit(),
	}
	for _, c := range cmds {
		if !strings.HasSuffix(string(c), "\r\n") {
			t.Errorf("command %q does not end in CRLF", c)
		}
	}
}

func HELOBytes(t *testing.T) []byte {
	t.Helper()
	b, err := HELO("client.example")
	if err != nil {
		t.Fatal(err)
	}
	return b
}
