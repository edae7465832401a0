package session

import (
	"container/list"
	"crypto/subtle"
	"fmt"

	"github.com/nodewire-systems/rtmp-relay/internal/codecbits"
	"github.com/nodewire-systems/rtmp-relay/internal/logger"
	"github.com/nodewire-systems/rtmp-relay/internal/rtmp/chunk"
	"github.com/nodewire-systems/rtmp-relay/internal/rtmp/command"
)

// logAudioCodecInfo and logVideoCodecInfo are best-effort, non-blocking
// diagnostics: a parse failure is swallowed and never affects relay.
func (s *Session) logAudioCodecInfo(codec uint32, header []byte) {
	switch codec {
	case 10:
		if cfg, ok := codecbits.ParseAACSequenceHeader(header); ok {
			logger.DebugSession(s.id, s.ip, fmt.Sprintf("audio: AAC %s %dHz %dch", codecbits.AACProfileName(cfg.ObjectType), cfg.SampleRate, cfg.Channels))
		}
	}
}

func (s *Session) logVideoCodecInfo(codec uint32, header []byte) {
	switch codec {
	case 7:
		if cfg, ok := codecbits.ParseAVCSequenceHeader(header); ok {
			logger.DebugSession(s.id, s.ip, fmt.Sprintf("video: H264 %s L%.1f %dx%d", codecbits.AVCProfileName(cfg.Profile), cfg.Level, cfg.Width, cfg.Height))
		}
	case 12:
		if cfg, ok := codecbits.ParseHEVCSequenceHeader(header); ok {
			logger.DebugSession(s.id, s.ip, fmt.Sprintf("video: HEVC %s L%d", codecbits.HEVCProfileName(cfg.ProfileIDC), cfg.LevelIDC))
		}
	}
}

// audioSampleRateOverride implements §4.6's sample-rate table: most
// codecs encode their own rate, but these override to a fixed rate.
func audioSampleRateOverride(codec uint32) (uint32, bool) {
	switch codec {
	case 4:
		return 16000, true
	case 5, 7, 8, 14:
		return 8000, true
	case 11:
		return 16000, true
	default:
		return 0, false
	}
}

func (s *Session) handleAudio(msg *chunk.Message) {
	s.publishMu.Lock()
	defer s.publishMu.Unlock()

	if !s.isPublishing || len(msg.Payload) == 0 {
		return
	}
	s.clock = msg.Timestamp

	soundFormat := uint32(msg.Payload[0]>>4) & 0x0f
	if s.audioCodec == 0 {
		s.audioCodec = soundFormat
		audioSampleRateOverride(soundFormat) // observed, not otherwise tracked without a parsed session-metadata sink
	}

	isHeader := (soundFormat == 10 || soundFormat == 13) && len(msg.Payload) > 1 && msg.Payload[1] == 0
	if isHeader {
		s.aacHeader = msg.Payload
		s.logAudioCodecInfo(soundFormat, msg.Payload)
	}

	out := &chunk.Message{Type: chunk.TypeAudio, StreamID: s.publishStreamID, Timestamp: msg.Timestamp, Payload: msg.Payload}
	s.cacheAndFanout(out, isHeader)
}

func (s *Session) handleVideo(msg *chunk.Message) {
	s.publishMu.Lock()
	defer s.publishMu.Unlock()

	if !s.isPublishing || len(msg.Payload) == 0 {
		return
	}
	s.clock = msg.Timestamp

	payload := msg.Payload
	isEnhanced := payload[0]&0x80 != 0

	var frameType, codecID byte
	if isEnhanced {
		if len(payload) < 5 {
			return
		}
		frameType = (payload[0] >> 4) & 0x07
		fourCC := string(payload[1:5])
		switch fourCC {
		case "hvc1":
			codecID = 12
		case "av01":
			codecID = 13
		case "vp09":
			codecID = 9
		}
		// Rewrite to the legacy-compatible shape in place so downstream
		// cache/replay code only ever deals with one byte layout.
		rewritten := make([]byte, len(payload)-3)
		rewritten[0] = (frameType << 4) | codecID
		copy(rewritten[1:], payload[5:])
		payload = rewritten
	} else {
		frameType = (payload[0] >> 4) & 0x0f
		codecID = payload[0] & 0x0f
	}

	isHeader := (codecID == 7 || codecID == 12) && frameType == 1 && len(payload) > 1 && payload[1] == 0

	if isHeader {
		s.avcHeader = payload
		s.gopCache = list.New()
		s.gopCacheSize = 0
		s.logVideoCodecInfo(uint32(codecID), payload)
	}

	if s.videoCodec == 0 {
		s.videoCodec = uint32(codecID)
	}

	out := &chunk.Message{Type: chunk.TypeVideo, StreamID: s.publishStreamID, Timestamp: msg.Timestamp, Payload: payload}
	s.cacheAndFanout(out, isHeader)
}

// cacheAndFanout appends a non-header media message to the GOP cache
// (bounded by cfg.GOPCacheLimit) and relays it to every attached
// player through the registry, one copy per player; each player's
// Deliver applies its own receiveAudio/receiveVideo/pause gating.
func (s *Session) cacheAndFanout(msg *chunk.Message, isHeader bool) {
	if !isHeader && !s.gopCacheDisabled {
		s.gopCache.PushBack(msg)
		s.gopCacheSize += int64(msg.Length()) + gopCachePacketOverhead

		for s.gopCacheSize > s.cfg.GOPCacheLimit {
			front := s.gopCache.Front()
			if front == nil {
				break
			}
			if m, ok := front.Value.(*chunk.Message); ok {
				s.gopCacheSize -= int64(m.Length())
			}
			s.gopCache.Remove(front)
			s.gopCacheSize -= gopCachePacketOverhead
		}
	}

	s.reg.Fanout(s.app, *msg)
}

func (s *Session) handleData(msg *chunk.Message) {
	payload := msg.Payload
	if msg.Type == chunk.TypeFlexStream {
		if len(payload) == 0 {
			return
		}
		payload = payload[1:]
	}
	data := command.DecodeData(payload)
	logger.DebugSession(s.id, s.ip, "data: "+data.ToString())

	if data.Tag == "@setDataFrame" {
		if meta := command.BuildMetadataPayload(data); meta != nil {
			s.setMetaData(meta)
		}
	}
}

func (s *Session) setMetaData(metaData []byte) {
	s.publishMu.Lock()
	defer s.publishMu.Unlock()

	if !s.isPublishing {
		return
	}
	s.metaData = metaData

	s.reg.Fanout(s.app, chunk.Message{Type: chunk.TypeData, StreamID: s.publishStreamID, Payload: metaData})
}

// endPublish clears the publisher slot and idles every attached player,
// per §5's teardown contract: players are notified and detached from
// live delivery but not forcibly disconnected.
func (s *Session) endPublish() {
	s.publishMu.Lock()
	defer s.publishMu.Unlock()

	if !s.isPublishing {
		return
	}

	logger.Request(s.id, s.ip, "PUBLISH END '"+s.app+"'")

	if s.cfg.OnPublishStop != nil {
		s.cfg.OnPublishStop(s.id, s.ip, s.app, s.key, s.externalStreamID)
	}

	s.sendStatus(s.publishStreamID, "status", "NetStream.Unpublish.Success", s.streamPath+" is now unpublished.")

	for _, p := range s.reg.Players(s.app) {
		if ps, ok := p.(*Session); ok {
			ps.isIdling = true
			ps.isPlaying = false
			logger.Request(ps.id, ps.ip, "PLAY IDLE '"+ps.app+"'")
			ps.sendStatus(ps.playStreamID, "status", "NetStream.Play.UnpublishNotify", "stream is now unpublished.")
			ps.sendStreamStatus(eventStreamEOF, ps.playStreamID)
		}
	}

	s.reg.RemovePublisher(s.app)
	s.gopCache = list.New()
	s.gopCacheSize = 0
	s.isPublishing = false
}

// startNewPlayer replays the latched onMetaData, audio, and video
// sequence headers (in that order) and then the current GOP cache to a
// player that just attached to this publisher — the mandated
// sequence-header replay from the design notes.
func (s *Session) startNewPlayer(player *Session) {
	s.publishMu.Lock()
	defer s.publishMu.Unlock()

	s.startNewPlayerLocked(player)
}

// resumePlayer re-sends sequence headers (but not the GOP cache) to a
// player coming back from pause, at the publisher's current clock.
func (s *Session) resumePlayer(player *Session) {
	s.publishMu.Lock()
	defer s.publishMu.Unlock()

	player.sendAudioCodecHeader(s.audioCodec, s.aacHeader, s.clock)
	player.sendVideoCodecHeader(s.videoCodec, s.avcHeader, s.clock)
}

// startIdlePlayers wakes every idle player attached to this app
// (players go idle when the app's previous publisher ends, see
// endPublish; a play with no publisher is disconnected). Only idle
// players whose requested key matches this publisher's key, compared in constant time, are started;
// a mismatch disconnects the player rather than silently dropping it.
func (s *Session) startIdlePlayers() {
	s.publishMu.Lock()
	defer s.publishMu.Unlock()

	for _, p := range s.reg.Players(s.app) {
		ps, ok := p.(*Session)
		if !ok || !ps.isIdling {
			continue
		}
		if subtle.ConstantTimeCompare([]byte(s.key), []byte(ps.key)) == 1 {
			logger.Request(ps.id, ps.ip, "PLAY START '"+ps.app+"'")
			s.startNewPlayerLocked(ps)
		} else {
			logger.Request(ps.id, ps.ip, "Error: Invalid streaming key provided")
			ps.sendStatus(s.publishStreamID, "error", "NetStream.Play.BadName", "Invalid stream key provided")
			ps.Disconnect()
		}
	}
}

// startNewPlayerLocked is startNewPlayer's body without re-acquiring
// publishMu, for callers (startIdlePlayers) that already hold it.
func (s *Session) startNewPlayerLocked(player *Session) {
	player.sendMetadata(s.metaData, 0)
	player.sendAudioCodecHeader(s.audioCodec, s.aacHeader, 0)
	player.sendVideoCodecHeader(s.videoCodec, s.avcHeader, 0)

	if !player.gopPlayNo && s.gopCache.Len() > 0 {
		for e := s.gopCache.Front(); e != nil; e = e.Next() {
			if m, ok := e.Value.(*chunk.Message); ok {
				player.sendCached(m)
			}
		}
	}

	player.isPlaying = true
	player.isIdling = false

	if player.gopPlayClear {
		s.gopCache = list.New()
		s.gopCacheSize = 0
		s.gopCacheDisabled = true
	}
}
