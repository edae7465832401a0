package rtmperr

import (
	"errors"
	"testing"
)

func TestNewErrorString(t *testing.T) {
	err := New(Handshake, "unsupported version")
	want := "handshake: unsupported version"
	if err.Error() != want {
		t.Fatalf("Error() = %q, want %q", err.Error(), want)
	}
}

func TestWrapIncludesUnderlyingError(t *testing.T) {
	cause := errors.New("eof")
	err := Wrap(Io, "read byte", cause)

	want := "io: read byte: eof"
	if err.Error() != want {
		t.Fatalf("Error() = %q, want %q", err.Error(), want)
	}
	if !errors.Is(err, cause) {
		t.Fatalf("expected errors.Is to unwrap to the original cause")
	}
}

func TestIsKind(t *testing.T) {
	err := New(Policy, "duplicate publisher")
	if !IsKind(err, Policy) {
		t.Fatalf("expected IsKind(err, Policy) to be true")
	}
	if IsKind(err, Protocol) {
		t.Fatalf("expected IsKind(err, Protocol) to be false")
	}
	if IsKind(errors.New("plain error"), Policy) {
		t.Fatalf("expected IsKind on a non-*Error to be false")
	}
}

func TestKindStringNames(t *testing.T) {
	cases := map[Kind]string{
		Io:        "io",
		Handshake: "handshake",
		Protocol:  "protocol",
		Amf:       "amf",
		Policy:    "policy",
		Timeout:   "timeout",
	}
	for kind, want := range cases {
		if got := kind.String(); got != want {
			t.Fatalf("Kind(%d).String() = %q, want %q", kind, got, want)
		}
	}
}
