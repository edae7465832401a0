package netacl

import "testing"

func TestParseEmptySpecMatchesNothing(t *testing.T) {
	l := Parse("")
	if l.Allowed("1.2.3.4") {
		t.Fatalf("empty spec should not allow any address")
	}
}

func TestParseWildcardMatchesEverything(t *testing.T) {
	l := Parse("*")
	if !l.Allowed("1.2.3.4") {
		t.Fatalf("wildcard spec should allow any address")
	}
	if !l.Allowed("::1") {
		t.Fatalf("wildcard spec should allow IPv6 too")
	}
}

func TestParseCIDRList(t *testing.T) {
	l := Parse("10.0.0.0/8, 192.168.1.0/24")

	if !l.Allowed("10.1.2.3") {
		t.Fatalf("expected 10.1.2.3 to be allowed by 10.0.0.0/8")
	}
	if !l.Allowed("192.168.1.42") {
		t.Fatalf("expected 192.168.1.42 to be allowed by 192.168.1.0/24")
	}
	if l.Allowed("8.8.8.8") {
		t.Fatalf("expected 8.8.8.8 to be rejected")
	}
}

func TestParseSkipsInvalidEntries(t *testing.T) {
	l := Parse("not-a-range, 10.0.0.0/8")
	if !l.Allowed("10.5.5.5") {
		t.Fatalf("valid entry after an invalid one should still be parsed")
	}
}

func TestAllowedOnNilList(t *testing.T) {
	var l *List
	if l.Allowed("1.2.3.4") {
		t.Fatalf("nil list should never allow")
	}
}

func TestAllowedRejectsUnparseableIP(t *testing.T) {
	l := Parse("10.0.0.0/8")
	if l.Allowed("not-an-ip") {
		t.Fatalf("unparseable address should be rejected")
	}
}
