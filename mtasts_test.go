package smtpclient

import (
	"strings"
	"testing"

	"blitiri.com.ar/go/smtpclient/internal/sts"
)

func TestCheckMTASTSAllowsMatchingMX(t *testing.T) {
	tr := &Transport{mtaSTS: &sts.Policy{Mode: sts.Report, MXs: []string{"mx.example.com"}}}
	if err := tr.checkMTASTS("mx.example.com"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tr.tlsPolicy == Required {
		t.Error("report mode should not force Required")
	}
}

func TestCheckMTASTSRejectsUnlistedMX(t *testing.T) {
	tr := &Transport{mtaSTS: &sts.Policy{Mode: sts.Enforce, MXs: []string{"mx.example.com"}}}
	err := tr.checkMTASTS("evil.example.net")
	if err == nil || !strings.Contains(err.Error(), "MTA-STS") {
		t.Fatalf("got %v, want an MTA-STS rejection", err)
	}
}

func TestCheckMTASTSEnforceRaisesTLSPolicy(t *testing.T) {
	tr := &Transport{tlsPolicy: Opportunistic, mtaSTS: &sts.Policy{Mode: sts.Enforce, MXs: []string{"mx.example.com"}}}
	if err := tr.checkMTASTS("mx.example.com"); err != nil {
		t.Fatal(err)
	}
	if tr.tlsPolicy != Required {
		t.Errorf("tlsPolicy = %v, want Required", tr.tlsPolicy)
	}
}

func TestCheckMTASTSNoPolicyIsNoop(t *testing.T) {
	tr := &Transport{tlsPolicy: Opportunistic}
	if err := tr.checkMTASTS("anything.example.com"); err != nil {
		t.Fatal(err)
	}
}
