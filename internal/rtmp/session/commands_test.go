package session

import (
	"bufio"
	"io"
	"net"
	"testing"

	"github.com/nodewire-systems/rtmp-relay/internal/amf0"
	"github.com/nodewire-systems/rtmp-relay/internal/rtmp/command"
	"github.com/nodewire-systems/rtmp-relay/internal/rtmp/registry"
)

func TestValidStreamIDRejectsEmpty(t *testing.T) {
	s := &Session{}
	if s.validStreamID("") {
		t.Fatalf("empty stream id should be invalid")
	}
}

func TestValidStreamIDRejectsOverLength(t *testing.T) {
	s := &Session{cfg: Config{StreamIDMaxLen: 4}}
	if s.validStreamID("toolong") {
		t.Fatalf("stream id over the configured max length should be invalid")
	}
	if !s.validStreamID("ok") {
		t.Fatalf("stream id under the configured max length should be valid")
	}
}

func TestValidStreamIDNoLimitWhenMaxLenZero(t *testing.T) {
	s := &Session{cfg: Config{StreamIDMaxLen: 0}}
	if !s.validStreamID("a-very-long-stream-key-indeed") {
		t.Fatalf("a zero max length should mean no limit")
	}
}

// TestHandlePlayDisconnectsWhenNoPublisher exercises §4.5's mandated
// behavior: a play for an app with no publisher disconnects the
// session rather than leaving it parked indefinitely.
func TestHandlePlayDisconnectsWhenNoPublisher(t *testing.T) {
	serverConn, clientConn := net.Pipe()
	t.Cleanup(func() {
		serverConn.Close()
		clientConn.Close()
	})

	reg := registry.New()
	s := New(1, "1.2.3.4", serverConn, reg, Config{})
	s.app = "live"
	s.isConnected = true

	drained := make(chan struct{})
	go func() {
		io.Copy(io.Discard, bufio.NewReader(clientConn))
		close(drained)
	}()

	cmd := &command.Command{Args: []*amf0.Value{amf0.String("missing-stream")}}
	s.handlePlay(cmd, 1)

	select {
	case <-s.closed:
	default:
		t.Fatalf("expected session to be disconnected when no publisher exists")
	}

	if players := reg.Players("live"); len(players) != 0 {
		t.Fatalf("expected the player to be detached, got %d still attached", len(players))
	}

	serverConn.Close()
	<-drained
}
