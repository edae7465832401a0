package amf3

import (
	"bytes"
	"testing"
)

// byteStream is the minimal Stream implementation used by these tests;
// the amf0 decoding stream is the real implementation in production.
type byteStream struct {
	buf []byte
	pos int
}

func (s *byteStream) Read(n int) []byte {
	b := s.buf[s.pos : s.pos+n]
	s.pos += n
	return b
}

func TestEncodeDecodeInteger(t *testing.T) {
	v := Value{Type: TypeInteger, Int: 12345}
	buf := EncodeOne(v)

	got := ReadValue(&byteStream{buf: buf})
	if got.Int != 12345 {
		t.Fatalf("got %d, want 12345", got.Int)
	}
}

func TestEncodeDecodeDouble(t *testing.T) {
	v := Value{Type: TypeDouble, Float: 3.14159}
	buf := EncodeOne(v)

	got := ReadValue(&byteStream{buf: buf})
	if got.Float != 3.14159 {
		t.Fatalf("got %v, want 3.14159", got.Float)
	}
}

func TestEncodeDecodeString(t *testing.T) {
	v := Value{Type: TypeString, Str: "onStatus"}
	buf := EncodeOne(v)

	got := ReadValue(&byteStream{buf: buf})
	if got.Str != "onStatus" {
		t.Fatalf("got %q, want %q", got.Str, "onStatus")
	}
}

func TestEncodeDecodeByteArray(t *testing.T) {
	v := Value{Type: TypeByteArray, Bytes: []byte{0x01, 0x02, 0x03, 0xff}}
	buf := EncodeOne(v)

	got := ReadValue(&byteStream{buf: buf})
	if !bytes.Equal(got.Bytes, v.Bytes) {
		t.Fatalf("got %v, want %v", got.Bytes, v.Bytes)
	}
}

func TestEncodeUI29Boundaries(t *testing.T) {
	cases := []struct {
		in   uint32
		want int // expected encoded byte length
	}{
		{0, 1},
		{0x7f, 1},
		{0x80, 2},
		{0x3fff, 2},
		{0x4000, 3},
		{0x1fffff, 3},
		{0x200000, 4},
	}
	for _, c := range cases {
		got := encodeUI29(c.in)
		if len(got) != c.want {
			t.Fatalf("encodeUI29(%#x): got length %d, want %d", c.in, len(got), c.want)
		}
	}
}

func TestDecodeUI29RoundTrip(t *testing.T) {
	for _, n := range []uint32{0, 1, 0x7f, 0x80, 0x3fff, 0x4000, 0x1fffff, 0x200000, 0xfffffff} {
		encoded := encodeUI29(n)
		got := decodeUI29(&byteStream{buf: encoded})
		if got != n {
			t.Fatalf("decodeUI29(encodeUI29(%#x)) = %#x", n, got)
		}
	}
}

func TestReadValueBoolMarkers(t *testing.T) {
	// TypeTrue/TypeFalse carry no payload; only the marker byte matters.
	got := ReadValue(&byteStream{buf: []byte{TypeTrue}})
	if !got.GetBool() {
		t.Fatalf("expected GetBool() true for TypeTrue marker")
	}
	got = ReadValue(&byteStream{buf: []byte{TypeFalse}})
	if got.GetBool() {
		t.Fatalf("expected GetBool() false for TypeFalse marker")
	}
}
