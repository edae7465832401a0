// Package chunk implements the RTMP chunk-stream framing codec: inbound
// assembly of chunks into whole messages, and outbound splitting of
// messages into chunks with adaptive header-format compression.
package chunk

// Message types, as carried in the message header's type byte.
const (
	TypeSetChunkSize     = 1
	TypeAbort            = 2
	TypeAck              = 3
	TypeEvent            = 4
	TypeWindowAckSize    = 5
	TypeSetPeerBandwidth = 6
	TypeAudio            = 8
	TypeVideo            = 9
	TypeFlexStream       = 15
	TypeData             = 18
	TypeFlexObject       = 16
	TypeSharedObject     = 19
	TypeFlexMessage      = 17
	TypeInvoke           = 20
	TypeMetadata         = 22
)

// Protocol-control CSID — all control messages ride this fixed lane.
const ProtocolControlCSID = 2

// Message is the protocol-level unit the chunk codec produces on
// decode and consumes on encode.
type Message struct {
	Type      uint32
	StreamID  uint32
	Timestamp int64
	Payload   []byte
}

func (m *Message) Length() uint32 {
	return uint32(len(m.Payload))
}

// IsProtocolControl reports whether this message type is below the
// media types and therefore always rides the protocol-control CSID.
func IsProtocolControl(msgType uint32) bool {
	return msgType < TypeAudio
}
