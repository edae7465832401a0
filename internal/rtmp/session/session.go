// Package session implements the per-connection RTMP state machine:
// handshake, the command RPC dialect (connect/createStream/publish/
// play/...), and the media relay path that feeds and drains the
// registry's fan-out.
package session

import (
	"container/list"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/nodewire-systems/rtmp-relay/internal/logger"
	"github.com/nodewire-systems/rtmp-relay/internal/rtmp/chunk"
	"github.com/nodewire-systems/rtmp-relay/internal/rtmp/command"
	"github.com/nodewire-systems/rtmp-relay/internal/rtmp/handshake"
	"github.com/nodewire-systems/rtmp-relay/internal/rtmp/registry"
	"github.com/nodewire-systems/rtmp-relay/internal/rtmperr"
)

// HandshakeTimeout bounds the three-way handshake exchange.
const HandshakeTimeout = 5 * time.Second

// DefaultInChunkSize is the inbound chunk size assumed before the peer
// sends SET_CHUNK_SIZE.
const DefaultInChunkSize = 128

// MaxChunkSize is the largest chunk size a peer may request; a larger
// value is a protocol violation.
const MaxChunkSize = 10485760

// DefaultWindowAckSize is sent to every peer right after connect.
const DefaultWindowAckSize = 5000000

// outboundQueueDepth bounds the per-player fan-out queue. A player that
// cannot keep up is disconnected rather than allowed to stall the
// publisher's relay goroutine (spec's bounded-queue-then-disconnect
// back-pressure policy).
const outboundQueueDepth = 256

// gopCachePacketOverhead approximates per-packet bookkeeping cost so the
// GOP cache byte budget accounts for more than just payload bytes.
const gopCachePacketOverhead = 65

// DefaultGOPCacheLimit bounds the publisher's retained GOP, in bytes.
const DefaultGOPCacheLimit = 64 * 1024 * 1024

// Config carries the handful of server-wide knobs a session needs that
// do not belong to the registry.
type Config struct {
	OutChunkSize  uint32
	StreamIDMaxLen int
	GOPCacheLimit  int64
	CanPlay        func(ip string) bool

	// OnPublishStart, if set, is invoked once a publisher has been
	// registered; it may contact an external control plane (HTTP
	// callback, websocket coordinator) and returns an external stream
	// id to record (empty/false rejects nothing — this is a
	// notification hook, not a publish gate, per the core's Non-goals).
	OnPublishStart func(sessionID uint64, ip, app, key string) (externalStreamID string, ok bool)
	// OnPublishStop, if set, is invoked as a publisher tears down.
	OnPublishStop func(sessionID uint64, ip, app, key, externalStreamID string)
}

type bitrateWindow struct {
	intervalMs int64
	lastUpdate int64
	bytes      uint64
}

// Session tracks one accepted RTMP connection end to end.
type Session struct {
	cfg      Config
	reg      *registry.Registry
	conn     net.Conn
	reader   *chunk.Reader
	writer   *chunk.Writer

	id uint64
	ip string

	writeMu sync.Mutex

	publishMu sync.Mutex

	objectEncoding uint32
	connectTimeMs  int64

	app            string
	key            string
	streamPath     string
	tcURL          string
	swfURL         string
	flashVer       string

	streams         uint32
	playStreamID    uint32
	publishStreamID uint32

	receiveAudio bool
	receiveVideo bool

	isConnected  bool
	isPublishing bool
	isPlaying    bool
	isIdling     bool
	isPaused     bool

	externalStreamID string

	metaData    []byte
	audioCodec  uint32
	videoCodec  uint32
	aacHeader   []byte
	avcHeader   []byte
	clock       int64

	gopCache        *list.List
	gopCacheSize    int64
	gopCacheDisabled bool
	gopPlayNo        bool
	gopPlayClear     bool

	// inLastAck is the reader.BytesRead value as of the last ACK sent,
	// so the read loop can tell when another window's worth of bytes
	// (DefaultWindowAckSize) has arrived.
	inLastAck uint32

	bitrate bitrateWindow

	outbox chan *chunk.Message
	closed chan struct{}
	once   sync.Once
}

// New wires a freshly accepted connection into a Session. The caller
// must invoke Run to perform the handshake and pump the read loop.
func New(id uint64, ip string, conn net.Conn, reg *registry.Registry, cfg Config) *Session {
	if cfg.OutChunkSize == 0 {
		cfg.OutChunkSize = 4096
	}
	if cfg.GOPCacheLimit == 0 {
		cfg.GOPCacheLimit = DefaultGOPCacheLimit
	}
	w := chunk.NewWriter()
	w.ChunkSize = cfg.OutChunkSize

	return &Session{
		cfg:          cfg,
		reg:          reg,
		conn:         conn,
		writer:       w,
		id:           id,
		ip:           ip,
		receiveAudio: true,
		receiveVideo: true,
		gopCache:     list.New(),
		outbox:       make(chan *chunk.Message, outboundQueueDepth),
		closed:       make(chan struct{}),
	}
}

// ID implements registry.Player.
func (s *Session) ID() uint64 { return s.id }

// PlayStreamID implements registry.Player.
func (s *Session) PlayStreamID() uint32 { return s.playStreamID }

// Deliver implements registry.Player: enqueues msg without blocking the
// publisher's fan-out goroutine, disconnecting the player if its queue
// is saturated. Audio/video frames are dropped (not queued) for a
// player that is not actively playing, paused, or has turned that
// track off via receiveAudio/receiveVideo; data messages (metadata)
// always go through.
func (s *Session) Deliver(msg *chunk.Message) {
	switch msg.Type {
	case chunk.TypeAudio:
		if !s.isPlaying || s.isPaused || !s.receiveAudio {
			return
		}
	case chunk.TypeVideo:
		if !s.isPlaying || s.isPaused || !s.receiveVideo {
			return
		}
	}
	select {
	case s.outbox <- msg:
	default:
		logger.DebugSession(s.id, s.ip, "outbound queue overflow, disconnecting player")
		s.Disconnect()
	}
}

// Disconnect implements registry.Player and is also the general-purpose
// teardown entry point used on protocol errors.
func (s *Session) Disconnect() {
	s.once.Do(func() {
		close(s.closed)
		s.conn.Close()
	})
}

func (s *Session) send(msg *chunk.Message) {
	b := s.writer.Encode(msg)
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if _, err := s.conn.Write(b); err != nil {
		s.Disconnect()
	}
}

// Run performs the handshake and then pumps reads until the connection
// closes or a protocol error occurs. It is meant to be the entire body
// of the goroutine the server spawns per accepted connection.
func (s *Session) Run() {
	defer s.onClose()
	defer s.Disconnect()

	r, err := handshake.Perform(s.conn, HandshakeTimeout)
	if err != nil {
		logger.DebugSession(s.id, s.ip, "handshake failed: "+err.Error())
		return
	}

	s.reader = chunk.NewReader(r, s.conn.SetReadDeadline)
	s.reader.ChunkSize = DefaultInChunkSize

	go s.pumpOutbox()

	for {
		msg, csid, err := s.reader.ReadMessage()
		if err != nil {
			if !rtmperr.IsKind(err, rtmperr.Io) && !rtmperr.IsKind(err, rtmperr.Timeout) {
				logger.DebugSession(s.id, s.ip, "read error: "+err.Error())
			}
			return
		}
		if err := s.handleMessage(msg, csid); err != nil {
			logger.DebugSession(s.id, s.ip, "handle error: "+err.Error())
			return
		}
		s.maybeAck()
		s.reader.Expire()
	}
}

// maybeAck emits an acknowledgement once another DefaultWindowAckSize
// bytes of inbound traffic have arrived since the last one, per the
// window-acknowledgement contract advertised at connect.
func (s *Session) maybeAck() {
	for s.reader.BytesRead-s.inLastAck >= DefaultWindowAckSize {
		s.inLastAck += DefaultWindowAckSize
		s.sendACK(s.reader.BytesRead)
	}
}

func (s *Session) pumpOutbox() {
	for {
		select {
		case <-s.closed:
			return
		case msg := <-s.outbox:
			s.send(msg)
		}
	}
}

func (s *Session) handleMessage(msg *chunk.Message, csid uint32) error {
	switch msg.Type {
	case chunk.TypeSetChunkSize:
		if len(msg.Payload) < 4 {
			return rtmperr.New(rtmperr.Protocol, "short SET_CHUNK_SIZE payload")
		}
		size := be32(msg.Payload)
		if size > MaxChunkSize {
			return rtmperr.New(rtmperr.Protocol, "chunk size exceeds maximum")
		}
		s.reader.ChunkSize = size
	case chunk.TypeAbort:
		if len(msg.Payload) >= 4 {
			s.reader.Abort(be32(msg.Payload))
		}
	case chunk.TypeAck:
		// No internal effect; accepted.
	case chunk.TypeWindowAckSize:
		// Peer-reported window; nothing further to track server-side.
	case chunk.TypeSetPeerBandwidth:
		// Accepted; server does not self-throttle on peer bandwidth.
	case chunk.TypeAudio:
		s.handleAudio(msg)
	case chunk.TypeVideo:
		s.handleVideo(msg)
	case chunk.TypeFlexMessage, chunk.TypeInvoke:
		return s.handleInvoke(msg)
	case chunk.TypeData, chunk.TypeFlexStream:
		s.handleData(msg)
	default:
		logger.DebugSession(s.id, s.ip, "unhandled message type")
	}
	return nil
}

func (s *Session) handleInvoke(msg *chunk.Message) error {
	payload := msg.Payload
	isFlex := msg.Type == chunk.TypeFlexMessage
	if isFlex {
		if len(payload) == 0 {
			return rtmperr.New(rtmperr.Amf, "empty flex message")
		}
	}

	cmd := command.Decode(payload, isFlex)
	logger.DebugSession(s.id, s.ip, "invoke: "+cmd.ToString())

	switch cmd.Name {
	case "connect":
		return s.handleConnect(cmd)
	case "createStream":
		s.handleCreateStream(cmd)
	case "publish":
		s.handlePublish(cmd, msg.StreamID)
	case "play":
		s.handlePlay(cmd, msg.StreamID)
	case "pause":
		s.handlePause(cmd)
	case "deleteStream":
		s.deleteStream(uint32(cmd.Arg(0).GetInteger()))
	case "closeStream":
		s.deleteStream(msg.StreamID)
	case "receiveAudio":
		s.receiveAudio = cmd.Arg(0).GetBool()
	case "receiveVideo":
		s.receiveVideo = cmd.Arg(0).GetBool()
	case "releaseStream", "FCPublish", "FCUnpublish", "getStreamLength":
		// Acknowledged by being accepted silently.
	default:
		logger.DebugSession(s.id, s.ip, "ignored command: "+cmd.Name)
	}
	return nil
}

func (s *Session) onClose() {
	if s.playStreamID > 0 {
		s.deleteStream(s.playStreamID)
	}
	if s.publishStreamID > 0 {
		s.deleteStream(s.publishStreamID)
	}
	s.isConnected = false
}

func (s *Session) deleteStream(streamID uint32) {
	if streamID == 0 {
		return
	}
	if streamID == s.playStreamID {
		logger.DebugSession(s.id, s.ip, "close play stream")
		s.reg.DetachPlayer(s.app, s.id)
		s.playStreamID = 0
		s.isPlaying = false
		s.isIdling = false
	}
	if streamID == s.publishStreamID {
		logger.DebugSession(s.id, s.ip, "close publish stream")
		if s.isPublishing {
			s.endPublish()
		}
		s.publishStreamID = 0
	}
}

// streamPathOf builds the GLOSSARY's "/{app}/{key}" path.
func streamPathOf(app, key string) string {
	return "/" + app + "/" + key
}

// stripQuery implements §6's "stream keys are the first play/publish
// argument with any query string stripped".
func stripQuery(s string) string {
	return strings.SplitN(s, "?", 2)[0]
}

func nowMillis() int64 {
	return time.Now().UnixMilli()
}

func parsePlayParams(raw string) map[string]string {
	out := make(map[string]string)
	for _, kv := range strings.Split(raw, "&") {
		parts := strings.SplitN(kv, "=", 2)
		if len(parts) == 2 {
			out[parts[0]] = parts[1]
		}
	}
	return out
}
