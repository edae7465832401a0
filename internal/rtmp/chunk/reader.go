package chunk

import (
	"bufio"
	"encoding/binary"
	"io"
	"time"

	"github.com/nodewire-systems/rtmp-relay/internal/rtmperr"
)

// StalenessTimeout bounds how long a reassembly slot may sit idle
// before its payload buffer is dropped to bound memory.
const StalenessTimeout = 120 * time.Second

// slot is the per-CSID reassembly state: the in-progress message header
// fields plus an accumulating payload buffer.
type slot struct {
	fmt        uint32
	streamID   uint32
	msgType    uint32
	length     uint32
	timestamp  int64
	clock      int64
	payload    []byte
	bytesRead  uint32
	lastActive time.Time
}

// Reader assembles inbound chunks into Messages for one connection.
type Reader struct {
	r    *bufio.Reader
	slots map[uint32]*slot

	ChunkSize uint32 // inbound chunk size, default 128

	// BytesRead accumulates every header and payload byte read, for
	// the acknowledgement window (in_ack_size in the data model).
	BytesRead uint32

	readTimeout time.Duration
	setDeadline func(time.Time) error
}

func NewReader(r *bufio.Reader, setDeadline func(time.Time) error) *Reader {
	return &Reader{
		r:           r,
		slots:       make(map[uint32]*slot),
		ChunkSize:   128,
		setDeadline: setDeadline,
	}
}

// SetReadTimeout applies a read deadline before every byte read if
// timeout > 0; steady-state reads typically pass 0 (no deadline, relying
// on short-read detection instead, per the concurrency model).
func (rd *Reader) SetReadTimeout(d time.Duration) {
	rd.readTimeout = d
}

func (rd *Reader) deadline() error {
	if rd.readTimeout <= 0 || rd.setDeadline == nil {
		return nil
	}
	return rd.setDeadline(time.Now().Add(rd.readTimeout))
}

func (rd *Reader) readByte() (byte, error) {
	if err := rd.deadline(); err != nil {
		return 0, rtmperr.Wrap(rtmperr.Io, "set read deadline", err)
	}
	b, err := rd.r.ReadByte()
	if err != nil {
		return 0, rtmperr.Wrap(rtmperr.Io, "read byte", err)
	}
	rd.BytesRead++
	return b, nil
}

func (rd *Reader) readFull(buf []byte) error {
	if len(buf) == 0 {
		return nil
	}
	if err := rd.deadline(); err != nil {
		return rtmperr.Wrap(rtmperr.Io, "set read deadline", err)
	}
	if _, err := io.ReadFull(rd.r, buf); err != nil {
		return rtmperr.Wrap(rtmperr.Io, "read bytes", err)
	}
	rd.BytesRead += uint32(len(buf))
	return nil
}

var messageHeaderSize = []int{11, 7, 3, 0}

func (rd *Reader) getOrCreateSlot(csid uint32) *slot {
	s, ok := rd.slots[csid]
	if !ok {
		s = &slot{lastActive: time.Now()}
		rd.slots[csid] = s
	}
	return s
}

// Abort clears the named CSID's reassembly slot, per the ABORT control
// message's effect.
func (rd *Reader) Abort(csid uint32) {
	delete(rd.slots, csid)
}

// Expire zeroes payload buffers on slots that have not advanced within
// the staleness threshold, bounding memory for abandoned chunk streams.
func (rd *Reader) Expire() {
	now := time.Now()
	for _, s := range rd.slots {
		if now.Sub(s.lastActive) > StalenessTimeout {
			s.payload = nil
			s.bytesRead = 0
		}
	}
}

// ReadMessage blocks until one full Message has been assembled from the
// wire, returning it along with the CSID it arrived on (needed by some
// control-message handlers, e.g. ABORT targets another CSID's slot).
func (rd *Reader) ReadMessage() (*Message, uint32, error) {
	for {
		msg, csid, complete, err := rd.readOneChunk()
		if err != nil {
			return nil, 0, err
		}
		if complete {
			return msg, csid, nil
		}
	}
}

func (rd *Reader) readOneChunk() (*Message, uint32, bool, error) {
	startByte, err := rd.readByte()
	if err != nil {
		return nil, 0, false, err
	}

	var basicBytes int
	switch startByte & 0x3f {
	case 0:
		basicBytes = 2
	case 1:
		basicBytes = 3
	default:
		basicBytes = 1
	}

	header := []byte{startByte}
	for i := 1; i < basicBytes; i++ {
		b, err := rd.readByte()
		if err != nil {
			return nil, 0, false, err
		}
		header = append(header, b)
	}

	fmtID := uint32(header[0] >> 6)
	var csid uint32
	switch basicBytes {
	case 2:
		csid = 64 + uint32(header[1])
	case 3:
		csid = 64 + uint32(header[1]) + uint32(header[2])*256
	default:
		csid = uint32(header[0] & 0x3f)
	}

	headerSize := messageHeaderSize[fmtID]
	var rest []byte
	if headerSize > 0 {
		rest = make([]byte, headerSize)
		if err := rd.readFull(rest); err != nil {
			return nil, 0, false, err
		}
	}

	s := rd.getOrCreateSlot(csid)
	s.lastActive = time.Now()
	s.fmt = fmtID

	offset := 0

	if fmtID <= 2 {
		s.timestamp = int64(rest[offset])<<16 | int64(rest[offset+1])<<8 | int64(rest[offset+2])
		offset += 3
	}

	if fmtID <= 1 {
		s.length = uint32(rest[offset])<<16 | uint32(rest[offset+1])<<8 | uint32(rest[offset+2])
		s.msgType = uint32(rest[offset+3])
		offset += 4
	}

	if fmtID == 0 {
		s.streamID = binary.LittleEndian.Uint32(rest[offset : offset+4])
	}

	if s.msgType > TypeMetadata {
		return nil, 0, false, rtmperr.New(rtmperr.Protocol, "unknown message type")
	}

	extendedTimestamp := s.timestamp
	if s.timestamp == 0xffffff {
		ext := make([]byte, 4)
		if err := rd.readFull(ext); err != nil {
			return nil, 0, false, err
		}
		extendedTimestamp = int64(binary.BigEndian.Uint32(ext))
	}

	if s.bytesRead == 0 {
		if fmtID == 0 {
			s.clock = extendedTimestamp
		} else {
			s.clock += extendedTimestamp
		}
	}

	if s.length == 0 {
		s.payload = nil
		s.bytesRead = 0
		return nil, csid, false, nil
	}

	toRead := rd.ChunkSize - (s.bytesRead % rd.ChunkSize)
	if remaining := s.length - s.bytesRead; toRead > remaining {
		toRead = remaining
	}

	if toRead > 0 {
		buf := make([]byte, toRead)
		if err := rd.readFull(buf); err != nil {
			return nil, 0, false, err
		}
		s.payload = append(s.payload, buf...)
		s.bytesRead += toRead
	}

	if s.bytesRead < s.length {
		return nil, csid, false, nil
	}

	msg := &Message{
		Type:      s.msgType,
		StreamID:  s.streamID,
		Timestamp: s.clock,
		Payload:   s.payload,
	}

	s.payload = nil
	s.bytesRead = 0

	return msg, csid, true, nil
}
