package chunk

import (
	"encoding/binary"
	"sync"
)

const (
	fmtFull      = 0 // 11 bytes: timestamp(3) + length(3) + type(1) + stream id(4, LE)
	fmtMessage   = 1 // 7 bytes: delta(3) + length(3) + type(1)
	fmtTime      = 2 // 3 bytes: delta(3)
	fmtSeparator = 3 // 0 bytes
)

const extendedTimestampSentinel = 0xffffff

// cachedHeader is the last header written on one outbound lane (see
// Writer), used to pick the smallest format that preserves semantics
// (spec §4.3).
type cachedHeader struct {
	csid      uint32
	msgType   uint32
	length    uint32
	timestamp int64
	written   bool
}

// Writer splits outbound Messages into chunks, choosing FULL/MESSAGE/
// TIME/SEPARATOR headers via a per-lane cache rather than letting
// callers pick the format. A lane is a (message stream id, content
// class) pair: audio, video and command/data traffic on the same
// message stream still ride separate chunk streams, mirroring the
// fixed audio/video/data/invoke channels of the reference server, so
// one content type's SEPARATOR runs never get reinterpreted against
// another's cached header.
type Writer struct {
	mu        sync.Mutex
	ChunkSize uint32
	nextCSID  uint32
	headers   map[uint64]*cachedHeader // keyed by lane
}

func NewWriter() *Writer {
	return &Writer{
		ChunkSize: 4096,
		nextCSID:  3,
		headers:   make(map[uint64]*cachedHeader),
	}
}

// lane classes. Values are arbitrary but stable within one process.
const (
	laneAudio = 1
	laneVideo = 2
	laneData  = 3
	laneCmd   = 4
	laneOther = 5
)

func laneClass(msgType uint32) uint64 {
	switch msgType {
	case TypeAudio:
		return laneAudio
	case TypeVideo:
		return laneVideo
	case TypeData, TypeFlexStream:
		return laneData
	case TypeInvoke, TypeFlexMessage:
		return laneCmd
	default:
		return laneOther
	}
}

func lane(streamID uint32, msgType uint32) uint64 {
	return uint64(streamID)<<8 | laneClass(msgType)
}

func (w *Writer) csidFor(l uint64, msgType uint32) uint32 {
	if IsProtocolControl(msgType) {
		return ProtocolControlCSID
	}
	h, ok := w.headers[l]
	if ok {
		return h.csid
	}
	csid := w.nextCSID
	w.nextCSID++
	return csid
}

func basicHeader(fmtID uint32, csid uint32) []byte {
	switch {
	case csid >= 64+256:
		return []byte{byte(fmtID<<6) | 1, byte((csid - 64) & 0xff), byte((csid - 64) >> 8 & 0xff)}
	case csid >= 64:
		return []byte{byte(fmtID << 6), byte((csid - 64) & 0xff)}
	default:
		return []byte{byte(fmtID<<6) | byte(csid)}
	}
}

// messageHeader builds the message-header portion of a chunk header.
// timestampField carries whatever quantity the Reader will treat this
// header's timestamp bytes as: the absolute timestamp for fmt 0, or the
// delta since the lane's last written timestamp for fmt 1/2 — the
// caller (Encode) is responsible for picking the right one.
func messageHeader(fmtID uint32, msgType uint32, length uint32, timestampField int64, streamID uint32) []byte {
	var out []byte

	if fmtID <= fmtTime {
		ts := uint32(timestampField)
		if timestampField >= extendedTimestampSentinel {
			ts = extendedTimestampSentinel
		}
		out = append(out, byte(ts>>16), byte(ts>>8), byte(ts))
	}

	if fmtID <= fmtMessage {
		out = append(out, byte(length>>16), byte(length>>8), byte(length), byte(msgType))
	}

	if fmtID == fmtFull {
		sidBuf := make([]byte, 4)
		binary.LittleEndian.PutUint32(sidBuf, streamID)
		out = append(out, sidBuf...)
	}

	return out
}

// Encode serializes msg into a sequence of chunks, choosing the
// smallest header format the cached state permits and updating that
// cache for the next call on the same lane.
func (w *Writer) Encode(msg *Message) []byte {
	w.mu.Lock()
	defer w.mu.Unlock()

	l := lane(msg.StreamID, msg.Type)
	csid := w.csidFor(l, msg.Type)
	cached, exists := w.headers[l]
	if !exists {
		cached = &cachedHeader{csid: csid}
		w.headers[l] = cached
	}

	fmtID := chooseFormat(cached, msg)

	// The Reader accumulates fmt 1/2's timestamp field onto its running
	// clock as a delta; only fmt 0 carries an absolute timestamp.
	tsField := msg.Timestamp
	if fmtID != fmtFull {
		tsField = msg.Timestamp - cached.timestamp
	}

	useExtended := tsField >= extendedTimestampSentinel

	bh := basicHeader(fmtID, csid)
	bh3 := basicHeader(fmtSeparator, csid)
	mh := messageHeader(fmtID, msg.Type, msg.Length(), tsField, msg.StreamID)

	cached.csid = csid
	cached.msgType = msg.Type
	cached.length = msg.Length()
	cached.timestamp = msg.Timestamp
	cached.written = true

	out := make([]byte, 0, len(bh)+len(mh)+4+len(msg.Payload)+len(msg.Payload)/int(w.ChunkSize)*8)
	out = append(out, bh...)
	out = append(out, mh...)
	if useExtended {
		ext := make([]byte, 4)
		binary.BigEndian.PutUint32(ext, uint32(tsField))
		out = append(out, ext...)
	}

	payload := msg.Payload
	for len(payload) > 0 {
		n := len(payload)
		if n > int(w.ChunkSize) {
			n = int(w.ChunkSize)
		}
		out = append(out, payload[:n]...)
		payload = payload[n:]
		if len(payload) > 0 {
			out = append(out, bh3...)
			if useExtended {
				ext := make([]byte, 4)
				binary.BigEndian.PutUint32(ext, uint32(tsField))
				out = append(out, ext...)
			}
		}
	}

	return out
}

// chooseFormat picks the smallest header format that preserves
// semantics, per spec §4.3: FULL if the stream id is new or the
// timestamp did not advance, MESSAGE if length/type changed, TIME if
// only the timestamp advanced, SEPARATOR never chosen here (only used
// for continuation chunks within Encode itself).
func chooseFormat(cached *cachedHeader, msg *Message) uint32 {
	if !cached.written {
		return fmtFull
	}
	if msg.Timestamp <= cached.timestamp {
		return fmtFull
	}
	if msg.Length() != cached.length || msg.Type != cached.msgType {
		return fmtMessage
	}
	return fmtTime
}
