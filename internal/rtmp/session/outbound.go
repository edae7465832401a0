package session

import (
	"encoding/binary"

	"github.com/nodewire-systems/rtmp-relay/internal/amf0"
	"github.com/nodewire-systems/rtmp-relay/internal/logger"
	"github.com/nodewire-systems/rtmp-relay/internal/rtmp/chunk"
	"github.com/nodewire-systems/rtmp-relay/internal/rtmp/command"
)

// User Control (type 4) event subtypes used here.
const (
	eventStreamBegin = 0
	eventStreamEOF   = 1
	eventPingRequest = 6
)

func be32(b []byte) uint32 {
	return binary.BigEndian.Uint32(b)
}

func (s *Session) control(msgType uint32, payload []byte) {
	s.send(&chunk.Message{Type: msgType, StreamID: 0, Timestamp: 0, Payload: payload})
}

func (s *Session) sendACK(size uint32) {
	b := make([]byte, 4)
	binary.BigEndian.PutUint32(b, size)
	s.control(chunk.TypeAck, b)
}

func (s *Session) sendWindowACK(size uint32) {
	b := make([]byte, 4)
	binary.BigEndian.PutUint32(b, size)
	s.control(chunk.TypeWindowAckSize, b)
}

func (s *Session) setPeerBandwidth(size uint32, limitType byte) {
	b := make([]byte, 5)
	binary.BigEndian.PutUint32(b[0:4], size)
	b[4] = limitType
	s.control(chunk.TypeSetPeerBandwidth, b)
}

func (s *Session) setChunkSize(size uint32) {
	b := make([]byte, 4)
	binary.BigEndian.PutUint32(b, size)
	s.control(chunk.TypeSetChunkSize, b)
}

func (s *Session) sendStreamStatus(event uint16, streamID uint32) {
	b := make([]byte, 6)
	binary.BigEndian.PutUint16(b[0:2], event)
	binary.BigEndian.PutUint32(b[2:6], streamID)
	s.control(chunk.TypeEvent, b)
}

// SendPing sends a User Control ping request, used by the server's
// periodic sweep over live sessions.
func (s *Session) SendPing() {
	s.sendPingRequest()
}

func (s *Session) sendPingRequest() {
	if !s.isConnected {
		return
	}
	ts := uint32(nowMillis() - s.connectTimeMs)
	b := make([]byte, 6)
	binary.BigEndian.PutUint16(b[0:2], eventPingRequest)
	binary.BigEndian.PutUint32(b[2:6], ts)
	s.send(&chunk.Message{Type: chunk.TypeEvent, StreamID: 0, Timestamp: int64(ts), Payload: b})
}

func (s *Session) sendInvoke(streamID uint32, cmd *command.Command) {
	logger.DebugSession(s.id, s.ip, "sending invoke: "+cmd.ToString())
	s.send(&chunk.Message{Type: chunk.TypeInvoke, StreamID: streamID, Payload: cmd.Encode(false)})
}

func (s *Session) sendDataMessage(streamID uint32, d *command.Data) {
	s.send(&chunk.Message{Type: chunk.TypeData, StreamID: streamID, Payload: d.Encode()})
}

func (s *Session) sendStatus(streamID uint32, level, code, description string) {
	info := amf0.NewObject()
	info.Set("level", amf0.String(level))
	info.Set("code", amf0.String(code))
	if description != "" {
		info.Set("description", amf0.String(description))
	}
	info.Set("details", amf0.Null())

	cmd := &command.Command{
		Name:          "onStatus",
		TransactionID: 0,
		CmdObj:        amf0.Null(),
		Args:          []*amf0.Value{amf0.NewObjectValue(info)},
	}
	s.sendInvoke(streamID, cmd)
}

func (s *Session) sendSampleAccess(streamID uint32) {
	d := &command.Data{
		Tag:    "|RtmpSampleAccess",
		Values: []*amf0.Value{amf0.Bool(false), amf0.Bool(false)},
	}
	s.sendDataMessage(streamID, d)
}

func (s *Session) respondConnect(transID float64, hasObjectEncoding bool) {
	cmdObj := amf0.NewObject()
	cmdObj.Set("fmsVer", amf0.String("MasterStream/8,2"))
	cmdObj.Set("capabilities", amf0.Number(31))

	info := amf0.NewObject()
	info.Set("level", amf0.String("status"))
	info.Set("code", amf0.String("NetConnection.Connect.Success"))
	info.Set("description", amf0.String("Connection succeeded."))
	if hasObjectEncoding {
		info.Set("objectEncoding", amf0.Number(float64(s.objectEncoding)))
	} else {
		info.Set("objectEncoding", amf0.Undefined())
	}

	cmd := &command.Command{
		Name:          "_result",
		TransactionID: transID,
		CmdObj:        amf0.NewObjectValue(cmdObj),
		Args:          []*amf0.Value{amf0.NewObjectValue(info)},
	}
	s.sendInvoke(0, cmd)
}

func (s *Session) respondCreateStream(transID float64) {
	s.streams++
	cmd := &command.Command{
		Name:          "_result",
		TransactionID: transID,
		CmdObj:        amf0.Null(),
		Args:          []*amf0.Value{amf0.Number(float64(s.streams))},
	}
	s.sendInvoke(0, cmd)
}

func (s *Session) respondPlay() {
	s.sendStreamStatus(eventStreamBegin, s.playStreamID)
	s.sendStatus(s.playStreamID, "status", "NetStream.Play.Reset", "Playing and resetting stream.")
	s.sendStatus(s.playStreamID, "status", "NetStream.Play.Start", "Started playing stream.")
	s.sendSampleAccess(0)
}

func (s *Session) sendMetadata(metaData []byte, timestamp int64) {
	if len(metaData) == 0 {
		return
	}
	s.send(&chunk.Message{Type: chunk.TypeData, StreamID: s.playStreamID, Timestamp: timestamp, Payload: metaData})
}

// audioCodecNeedsHeaderReplay reports whether audioCodec carries an
// explicit sequence header a decoder must see before coded frames —
// AAC(10) and E-AC-3(13).
func audioCodecNeedsHeaderReplay(audioCodec uint32) bool {
	return audioCodec == 10 || audioCodec == 13
}

// videoCodecNeedsHeaderReplay reports the same for video — AVC(7),
// HEVC(12), and enhanced-RTMP AV1 (rewritten to codec id 13 in the
// legacy-compatible byte, see handleVideo).
func videoCodecNeedsHeaderReplay(videoCodec uint32) bool {
	return videoCodec == 7 || videoCodec == 12 || videoCodec == 13
}

func (s *Session) sendAudioCodecHeader(audioCodec uint32, header []byte, timestamp int64) {
	if !audioCodecNeedsHeaderReplay(audioCodec) || len(header) == 0 {
		return
	}
	s.send(&chunk.Message{Type: chunk.TypeAudio, StreamID: s.playStreamID, Timestamp: timestamp, Payload: header})
}

func (s *Session) sendVideoCodecHeader(videoCodec uint32, header []byte, timestamp int64) {
	if !videoCodecNeedsHeaderReplay(videoCodec) || len(header) == 0 {
		return
	}
	s.send(&chunk.Message{Type: chunk.TypeVideo, StreamID: s.playStreamID, Timestamp: timestamp, Payload: header})
}

// sendCached replays one GOP-cached message, rewriting only the message
// stream id to this player's own.
func (s *Session) sendCached(msg *chunk.Message) {
	out := *msg
	out.StreamID = s.playStreamID
	s.send(&out)
}
