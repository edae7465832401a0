package chunk

import (
	"bufio"
	"bytes"
	"testing"
)

func roundTrip(t *testing.T, msg *Message) *Message {
	t.Helper()

	w := NewWriter()
	w.ChunkSize = 128
	encoded := w.Encode(msg)

	r := NewReader(bufio.NewReader(bytes.NewReader(encoded)), nil)
	r.ChunkSize = 128

	got, _, err := r.ReadMessage()
	if err != nil {
		t.Fatalf("ReadMessage: %v", err)
	}
	return got
}

func TestWriterReaderRoundTripSmallMessage(t *testing.T) {
	msg := &Message{Type: TypeInvoke, StreamID: 1, Timestamp: 0, Payload: []byte("hello")}
	got := roundTrip(t, msg)

	if got.Type != msg.Type || got.StreamID != msg.StreamID {
		t.Fatalf("got %+v, want %+v", got, msg)
	}
	if !bytes.Equal(got.Payload, msg.Payload) {
		t.Fatalf("payload mismatch: got %q, want %q", got.Payload, msg.Payload)
	}
}

func TestWriterReaderRoundTripSpansMultipleChunks(t *testing.T) {
	payload := bytes.Repeat([]byte{0xab}, 300) // > ChunkSize(128), forces 3 chunks
	msg := &Message{Type: TypeVideo, StreamID: 5, Timestamp: 40, Payload: payload}
	got := roundTrip(t, msg)

	if !bytes.Equal(got.Payload, payload) {
		t.Fatalf("payload length mismatch: got %d bytes, want %d", len(got.Payload), len(payload))
	}
	if got.Timestamp != 40 {
		t.Fatalf("timestamp = %d, want 40", got.Timestamp)
	}
}

func TestWriterReaderRoundTripAccumulatesIncreasingTimestamps(t *testing.T) {
	w := NewWriter()
	w.ChunkSize = 4096

	msgs := []*Message{
		{Type: TypeVideo, StreamID: 5, Timestamp: 40, Payload: []byte{1}},
		{Type: TypeVideo, StreamID: 5, Timestamp: 80, Payload: []byte{1}},
		{Type: TypeVideo, StreamID: 5, Timestamp: 130, Payload: []byte{1}},
	}

	var buf bytes.Buffer
	for _, m := range msgs {
		buf.Write(w.Encode(m))
	}

	r := NewReader(bufio.NewReader(&buf), nil)
	r.ChunkSize = 4096

	for _, want := range msgs {
		got, _, err := r.ReadMessage()
		if err != nil {
			t.Fatalf("ReadMessage: %v", err)
		}
		if got.Timestamp != want.Timestamp {
			t.Fatalf("Timestamp = %d, want %d (fmt-1/2 delta must be written, not absolute)", got.Timestamp, want.Timestamp)
		}
	}
}

func TestWriterLanesDoNotShareHeaderCacheAcrossContentClasses(t *testing.T) {
	w := NewWriter()
	w.ChunkSize = 4096

	audio := &Message{Type: TypeAudio, StreamID: 1, Timestamp: 0, Payload: []byte{1}}
	video := &Message{Type: TypeVideo, StreamID: 1, Timestamp: 0, Payload: []byte{2}}

	encodedAudio := w.Encode(audio)
	encodedVideo := w.Encode(video)

	// Both are first-seen on their own lane, so both must use a full
	// fmt-0 header (basic header low bits = csid, fmt bits = 00) rather
	// than the second one being compressed to fmt-3 as if it were a
	// continuation of the first lane's stream.
	if encodedAudio[0]>>6 != 0 {
		t.Fatalf("first audio message should use fmt 0, got fmt %d", encodedAudio[0]>>6)
	}
	if encodedVideo[0]>>6 != 0 {
		t.Fatalf("first video message on a distinct lane should use fmt 0, got fmt %d", encodedVideo[0]>>6)
	}
}

func TestMessageLength(t *testing.T) {
	m := &Message{Payload: []byte{1, 2, 3}}
	if m.Length() != 3 {
		t.Fatalf("Length() = %d, want 3", m.Length())
	}
}

func TestIsProtocolControl(t *testing.T) {
	if !IsProtocolControl(TypeSetChunkSize) {
		t.Fatalf("SET_CHUNK_SIZE should be protocol control")
	}
	if IsProtocolControl(TypeAudio) {
		t.Fatalf("AUDIO should not be protocol control")
	}
}
