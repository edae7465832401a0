package registry

import (
	"testing"

	"github.com/nodewire-systems/rtmp-relay/internal/rtmp/chunk"
)

type fakePlayer struct {
	id           uint64
	playStreamID uint32
	delivered    []*chunk.Message
	disconnected bool
}

func (p *fakePlayer) ID() uint64            { return p.id }
func (p *fakePlayer) PlayStreamID() uint32  { return p.playStreamID }
func (p *fakePlayer) Deliver(m *chunk.Message) { p.delivered = append(p.delivered, m) }
func (p *fakePlayer) Disconnect()           { p.disconnected = true }

func TestRegisterPublisherRejectsDuplicate(t *testing.T) {
	r := New()
	pub := &fakePlayer{id: 1}

	if err := r.RegisterPublisher("live", PublisherRecord{SessionID: 1}, pub); err != nil {
		t.Fatalf("first RegisterPublisher: %v", err)
	}
	if err := r.RegisterPublisher("live", PublisherRecord{SessionID: 2}, &fakePlayer{id: 2}); err == nil {
		t.Fatalf("expected duplicate publisher to be rejected")
	}
}

func TestAttachPlayerReturnsCurrentPublisher(t *testing.T) {
	r := New()
	pub := &fakePlayer{id: 1}

	if _, ok := r.AttachPlayer("live", &fakePlayer{id: 2}); ok {
		t.Fatalf("expected no publisher before one registers")
	}

	if err := r.RegisterPublisher("live", PublisherRecord{SessionID: 1, StreamPath: "live/key"}, pub); err != nil {
		t.Fatalf("RegisterPublisher: %v", err)
	}

	rec, ok := r.AttachPlayer("live", &fakePlayer{id: 3})
	if !ok {
		t.Fatalf("expected a publisher record once one is registered")
	}
	if rec.StreamPath != "live/key" {
		t.Fatalf("StreamPath = %q, want live/key", rec.StreamPath)
	}
}

func TestRemovePublisherClearsSlotButKeepsPlayers(t *testing.T) {
	r := New()
	pub := &fakePlayer{id: 1}
	r.RegisterPublisher("live", PublisherRecord{SessionID: 1}, pub)
	r.AttachPlayer("live", &fakePlayer{id: 2})

	r.RemovePublisher("live")

	if _, ok := r.Publisher("live"); ok {
		t.Fatalf("expected no publisher after RemovePublisher")
	}
	if len(r.Players("live")) != 1 {
		t.Fatalf("expected attached players to survive RemovePublisher")
	}
}

func TestDetachPlayerRemovesFromSet(t *testing.T) {
	r := New()
	p := &fakePlayer{id: 5}
	r.AttachPlayer("live", p)
	r.DetachPlayer("live", 5)

	if len(r.Players("live")) != 0 {
		t.Fatalf("expected player set to be empty after DetachPlayer")
	}
}

func TestFanoutSubstitutesPerPlayerStreamID(t *testing.T) {
	r := New()
	p1 := &fakePlayer{id: 1, playStreamID: 11}
	p2 := &fakePlayer{id: 2, playStreamID: 22}
	r.AttachPlayer("live", p1)
	r.AttachPlayer("live", p2)

	r.Fanout("live", chunk.Message{Type: chunk.TypeVideo, StreamID: 999, Payload: []byte{1}})

	if len(p1.delivered) != 1 || p1.delivered[0].StreamID != 11 {
		t.Fatalf("p1 delivered = %+v, want StreamID 11", p1.delivered)
	}
	if len(p2.delivered) != 1 || p2.delivered[0].StreamID != 22 {
		t.Fatalf("p2 delivered = %+v, want StreamID 22", p2.delivered)
	}
}

func TestKillPublisherDisconnectsHandle(t *testing.T) {
	r := New()
	pub := &fakePlayer{id: 1}
	r.RegisterPublisher("live", PublisherRecord{SessionID: 1}, pub)

	if !r.KillPublisher("live") {
		t.Fatalf("expected KillPublisher to find a publisher")
	}
	if !pub.disconnected {
		t.Fatalf("expected publisher handle to be disconnected")
	}
	if r.KillPublisher("nosuchapp") {
		t.Fatalf("expected KillPublisher on unknown app to report false")
	}
}

func TestKillPublisherWithStreamPathRequiresMatch(t *testing.T) {
	r := New()
	pub := &fakePlayer{id: 1}
	r.RegisterPublisher("live", PublisherRecord{SessionID: 1}, pub)
	r.SetExternalStreamID("live", "ext-123")

	if r.KillPublisherWithStreamPath("live", "wrong-id") {
		t.Fatalf("expected mismatched external stream id to be rejected")
	}
	if pub.disconnected {
		t.Fatalf("publisher should not be disconnected on mismatch")
	}

	if !r.KillPublisherWithStreamPath("live", "ext-123") {
		t.Fatalf("expected matching external stream id to disconnect the publisher")
	}
	if !pub.disconnected {
		t.Fatalf("expected publisher to be disconnected")
	}
}
