package session

import (
	"strconv"
	"strings"

	"github.com/nodewire-systems/rtmp-relay/internal/logger"
	"github.com/nodewire-systems/rtmp-relay/internal/rtmp/command"
	"github.com/nodewire-systems/rtmp-relay/internal/rtmp/registry"
	"github.com/nodewire-systems/rtmp-relay/internal/rtmperr"
)

var errInvalidApp = rtmperr.New(rtmperr.Policy, "empty or oversize app name")

// validStreamID rejects empty names and names over the configured
// maximum length — the only authentication this server performs
// (rejecting empty stream keys), per the purpose statement's
// Non-goals.
func (s *Session) validStreamID(v string) bool {
	if v == "" {
		return false
	}
	if s.cfg.StreamIDMaxLen > 0 && len(v) > s.cfg.StreamIDMaxLen {
		return false
	}
	return true
}

func (s *Session) handleConnect(cmd *command.Command) error {
	s.app = cmd.CmdObj.GetProperty("app").GetString()
	s.tcURL = cmd.CmdObj.GetProperty("tcUrl").GetString()
	s.swfURL = cmd.CmdObj.GetProperty("swfUrl").GetString()
	s.flashVer = cmd.CmdObj.GetProperty("flashVer").GetString()

	if !s.validStreamID(s.app) {
		logger.Request(s.id, s.ip, "INVALID APP '"+s.app+"'")
		return errInvalidApp
	}

	objectEncoding := cmd.CmdObj.GetProperty("objectEncoding")
	s.objectEncoding = uint32(objectEncoding.GetInteger())
	s.connectTimeMs = nowMillis()
	s.bitrate = bitrateWindow{intervalMs: 1000, lastUpdate: s.connectTimeMs}
	s.isConnected = true

	logger.Request(s.id, s.ip, "CONNECT '"+s.app+"'")

	s.sendWindowACK(DefaultWindowAckSize)
	s.setPeerBandwidth(DefaultWindowAckSize, 2)
	s.setChunkSize(s.cfg.OutChunkSize)
	s.respondConnect(cmd.TransactionID, !objectEncoding.IsUndefined())

	return nil
}

func (s *Session) handleCreateStream(cmd *command.Command) {
	s.respondCreateStream(cmd.TransactionID)
}

func (s *Session) handlePublish(cmd *command.Command, msgStreamID uint32) {
	key := stripQuery(cmd.Arg(0).GetString())
	s.key = key
	s.streamPath = streamPathOf(s.app, s.key)

	if s.key == "" || !s.isConnected {
		return
	}
	if !s.validStreamID(s.key) {
		s.sendStatus(s.publishStreamID, "error", "NetStream.Publish.BadName", "Invalid stream key provided")
		return
	}

	s.publishStreamID = msgStreamID

	if s.isPublishing {
		s.sendStatus(s.publishStreamID, "error", "NetStream.Publish.BadConnection", "Connection already publishing")
		return
	}

	logger.Request(s.id, s.ip, "PUBLISH ("+strconv.Itoa(int(s.publishStreamID))+") '"+s.app+"'")

	rec := registry.PublisherRecord{SessionID: s.id, StreamPath: s.streamPath, PublishStreamID: s.publishStreamID}
	if err := s.reg.RegisterPublisher(s.app, rec, s); err != nil {
		s.sendStatus(s.publishStreamID, "error", "NetStream.Publish.BadName", "Stream already publishing")
		s.Disconnect()
		return
	}

	s.isPublishing = true

	if s.cfg.OnPublishStart != nil {
		if extID, ok := s.cfg.OnPublishStart(s.id, s.ip, s.app, s.key); ok {
			s.externalStreamID = extID
			s.reg.SetExternalStreamID(s.app, extID)
		}
	}

	s.sendStatus(s.publishStreamID, "status", "NetStream.Publish.Start", s.streamPath+" is now published.")
	s.startIdlePlayers()
}

func (s *Session) handlePlay(cmd *command.Command, msgStreamID uint32) {
	raw := cmd.Arg(0).GetString()
	parts := strings.SplitN(raw, "?", 2)
	s.key = parts[0]
	if len(parts) > 1 {
		params := parsePlayParams(parts[1])
		s.gopPlayNo = params["cache"] == "no"
		s.gopPlayClear = params["cache"] == "clear"
	}

	if s.key == "" || !s.isConnected {
		return
	}

	s.playStreamID = msgStreamID

	if s.isIdling || s.isPlaying {
		s.sendStatus(s.playStreamID, "error", "NetStream.Play.BadConnection", "Connection already playing")
		return
	}

	if s.cfg.CanPlay != nil && !s.cfg.CanPlay(s.ip) {
		s.sendStatus(s.playStreamID, "error", "NetStream.Play.BadName", "Your net address is not whitelisted for playing")
		s.Disconnect()
		return
	}

	logger.Request(s.id, s.ip, "PLAY ("+strconv.Itoa(int(s.playStreamID))+") '"+s.app+"'")

	s.respondPlay()

	_, hasPublisher := s.reg.AttachPlayer(s.app, s)
	if !hasPublisher {
		s.reg.DetachPlayer(s.app, s.id)
		s.sendStatus(s.playStreamID, "error", "NetStream.Play.StreamNotFound", "No publisher for "+s.app)
		logger.Request(s.id, s.ip, "PLAY REJECTED (no publisher) '"+s.app+"'")
		s.Disconnect()
		return
	}

	if handle, ok := s.reg.PublisherHandle(s.app); ok {
		if pub, ok := handle.(*Session); ok {
			pub.startNewPlayer(s)
		}
	}

	logger.Request(s.id, s.ip, "PLAY START '"+s.app+"'")
}

func (s *Session) handlePause(cmd *command.Command) {
	if !s.isPlaying {
		return
	}

	s.isPaused = cmd.Arg(0).GetBool()

	if s.isPaused {
		s.sendStreamStatus(eventStreamEOF, s.playStreamID)
		s.sendStatus(s.playStreamID, "status", "NetStream.Pause.Notify", "Paused live")
		logger.Request(s.id, s.ip, "PAUSE '"+s.app+"'")
	} else {
		s.sendStreamStatus(eventStreamBegin, s.playStreamID)
		if handle, ok := s.reg.PublisherHandle(s.app); ok {
			if pub, ok := handle.(*Session); ok {
				logger.Request(s.id, s.ip, "RESUME '"+s.app+"'")
				pub.resumePlayer(s)
			}
		} else {
			logger.Request(s.id, s.ip, "PLAY IDLE '"+s.app+"'")
		}
		s.sendStatus(s.playStreamID, "status", "NetStream.Unpause.Notify", "Unpaused live")
	}
}

