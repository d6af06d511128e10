package auth

import (
	"crypto/hmac"
	"crypto/md5"
	"encoding/base64"
	"encoding/hex"
	"testing"
)

func TestPlainInitialResponse(t *testing.T) {
	p := Plain{Creds: Credentials{Username: "user", Password: "pass"}}
	resp, ok := p.InitialResponse()
	if !ok {
		t.Fatal("expected an initial response")
	}

	decoded, err := base64.StdEncoding.DecodeString(resp)
	if err != nil {
		t.Fatal(err)
	}
	if want := "\x00user\x00pass"; string(decoded) != want {
		t.Errorf("got %q, want %q", decoded, want)
	}
}

func TestLoginSequence(t *testing.T) {
	l := &Login{Creds: Credentials{Username: "user", Password: "pass"}}
	if _, ok := l.InitialResponse(); ok {
		t.Fatal("LOGIN should have no initial response")
	}

	userChallenge := base64.StdEncoding.EncodeToString([]byte("Username:"))
	resp1, err := l.Step(userChallenge)
	if err != nil {
		t.Fatal(err)
	}
	got1, _ := base64.StdEncoding.DecodeString(resp1)
	if string(got1) != "user" {
		t.Errorf("got %q, want %q", got1, "user")
	}

	passChallenge := base64.StdEncoding.EncodeToString([]byte("Password:"))
	resp2, err := l.Step(passChallenge)
	if err != nil {
		t.Fatal(err)
	}
	got2, _ := base64.StdEncoding.DecodeString(resp2)
	if string(got2) != "pass" {
		t.Errorf("got %q, want %q", got2, "pass")
	}

	if _, err := l.Step(passChallenge); err != ErrUnexpectedChallenge {
		t.Errorf("third challenge should fail, got %v", err)
	}
}

func TestCramMD5(t *testing.T) {
	c := CramMD5{Creds: Credentials{Username: "user", Password: "pass"}}
	nonce := "<1896.697170952@postoffice.example>"
	challenge := base64.StdEncoding.EncodeToString([]byte(nonce))

	resp, err := c.Step(challenge)
	if err != nil {
		t.Fatal(err)
	}
	decoded, err := base64.StdEncoding.DecodeString(resp)
	if err != nil {
		t.Fatal(err)
	}

	mac := hmac.New(md5.New, []byte("pass"))
	mac.Write([]byte(nonce))
	want := "user " + hex.EncodeToString(mac.Sum(nil))
	if string(decoded) != want {
		t.Errorf("got %q, want %q", decoded, want)
	}
}

func TestCramMD5RejectsBadBase64(t *testing.T) {
	c := CramMD5{Creds: Credentials{Username: "u", Password: "p"}}
	if _, err := c.Step("not base64!!"); err != ErrUnexpectedChallenge {
		t.Errorf("got %v, want ErrUnexpectedChallenge", err)
	}
}

func TestXOAuth2InitialResponse(t *testing.T) {
	x := XOAuth2{Creds: Credentials{Username: "user@example.com", Token: "tok"}}
	resp, ok := x.InitialResponse()
	if !ok {
		t.Fatal("expected an initial response")
	}
	decoded, _ := base64.StdEncoding.DecodeString(resp)
	want := "user=user@example.com\x01auth=Bearer tok\x01\x01"
	if string(decoded) != want {
		t.Errorf("got %q, want %q", decoded, want)
	}
}

func TestSelectPrefersStrongestSupported(t *testing.T) {
	supported := func(name string) bool {
		return name == "PLAIN" || name == "LOGIN"
	}
	m := Select(DefaultPreference, supported, Credentials{Username: "u", Password: "p"})
	if m == nil || m.Name() != "PLAIN" {
		t.Errorf("got %v, want PLAIN", m)
	}
}

func TestSelectNoneSupported(t *testing.T) {
	m := Select(DefaultPreference, func(string) bool { return false }, Credentials{})
	if m != nil {
		t.Errorf("got %v, want nil", m)
	}
}

func TestZeroClearsSecrets(t *testing.T) {
	c := Credentials{Username: "u", Password: "p", Token: "t"}
	c.Zero()
	if c.Password != "" || c.Token != "" {
		t.Errorf("Zero did not clear secrets: %+v", c)
	}
	if c.Username != "u" {
		t.Errorf("Zero should not clear the username")
	}
}
