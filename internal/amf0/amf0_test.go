package amf0

import "testing"

func TestEncodeDecodeNumber(t *testing.T) {
	v := Number(42.5)
	buf := EncodeOne(v)
	s := NewDecodingStream(buf)
	got := s.ReadOne()
	if got.GetDouble() != 42.5 {
		t.Fatalf("got %v, want 42.5", got.GetDouble())
	}
}

func TestEncodeDecodeString(t *testing.T) {
	v := String("live/stream-key")
	buf := EncodeOne(v)
	s := NewDecodingStream(buf)
	got := s.ReadOne()
	if got.GetString() != "live/stream-key" {
		t.Fatalf("got %q", got.GetString())
	}
}

func TestEncodeDecodeBool(t *testing.T) {
	for _, b := range []bool{true, false} {
		buf := EncodeOne(Bool(b))
		got := NewDecodingStream(buf).ReadOne()
		if got.GetBool() != b {
			t.Fatalf("got %v, want %v", got.GetBool(), b)
		}
	}
}

func TestEncodeDecodeObject(t *testing.T) {
	obj := NewObject()
	obj.Set("app", String("live"))
	obj.Set("objectEncoding", Number(0))

	buf := EncodeOne(NewObjectValue(obj))
	got := NewDecodingStream(buf).ReadOne()

	decoded := got.GetObject()
	if decoded.Get("app").GetString() != "live" {
		t.Fatalf("app = %q", decoded.Get("app").GetString())
	}
	if decoded.Get("objectEncoding").GetDouble() != 0 {
		t.Fatalf("objectEncoding = %v", decoded.Get("objectEncoding").GetDouble())
	}
}

func TestObjectPreservesInsertionOrder(t *testing.T) {
	obj := NewObject()
	obj.Set("z", Number(1))
	obj.Set("a", Number(2))
	obj.Set("m", Number(3))

	keys := obj.Keys()
	want := []string{"z", "a", "m"}
	for i, k := range want {
		if keys[i] != k {
			t.Fatalf("keys[%d] = %q, want %q", i, keys[i], k)
		}
	}
}

func TestGetPropertyOnMissingKeyIsUndefined(t *testing.T) {
	obj := NewObject()
	v := obj.Get("missing")
	if !v.IsUndefined() {
		t.Fatalf("expected undefined for missing key")
	}
}

func TestNullAndUndefined(t *testing.T) {
	if !Null().IsNull() {
		t.Fatalf("Null() should report IsNull")
	}
	if !Undefined().IsUndefined() {
		t.Fatalf("Undefined() should report IsUndefined")
	}
}
