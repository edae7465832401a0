// Package server runs the RTMP accept loop: one goroutine per accepted
// connection, a per-IP concurrent-connection cap (with an exemption
// list), a periodic ping sweep over live sessions, and an optional TLS
// listener alongside the plain TCP one. Grounded in the teacher's
// RTMPServer (rtmp_server.go).
package server

import (
	"net"
	"sync"
	"time"

	"github.com/nodewire-systems/rtmp-relay/internal/logger"
	"github.com/nodewire-systems/rtmp-relay/internal/netacl"
	"github.com/nodewire-systems/rtmp-relay/internal/rtmp/registry"
	"github.com/nodewire-systems/rtmp-relay/internal/rtmp/session"
)

// PingInterval is how often every live session gets a ping request,
// matching the teacher's RTMP_PING_TIME sweep.
const PingInterval = 60 * time.Second

// Config carries everything the accept loop needs beyond the listeners
// themselves.
type Config struct {
	SessionConfig session.Config

	MaxIPConnections int
	IPExempt         *netacl.List
}

// Server owns the live session table and the per-IP connection count
// used for the concurrent-connection cap.
type Server struct {
	cfg Config
	reg *registry.Registry

	mu       sync.Mutex
	sessions map[uint64]*session.Session
	ipCount  map[string]int
	nextID   uint64

	closed chan struct{}
	once   sync.Once
}

// New constructs a Server sharing reg as its publisher/player registry.
func New(reg *registry.Registry, cfg Config) *Server {
	if cfg.MaxIPConnections == 0 {
		cfg.MaxIPConnections = 8
	}
	return &Server{
		cfg:      cfg,
		reg:      reg,
		sessions: make(map[uint64]*session.Session),
		ipCount:  make(map[string]int),
		closed:   make(chan struct{}),
	}
}

func (s *Server) nextSessionID() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	return s.nextID
}

func (s *Server) addIP(ip string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ipCount[ip] >= s.cfg.MaxIPConnections {
		return false
	}
	s.ipCount[ip]++
	return true
}

func (s *Server) removeIP(ip string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ipCount[ip] <= 1 {
		delete(s.ipCount, ip)
	} else {
		s.ipCount[ip]--
	}
}

func (s *Server) addSession(sess *session.Session, id uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[id] = sess
}

func (s *Server) removeSession(id uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, id)
}

// Serve accepts connections from listener until it errors or Close is
// called, spawning one goroutine per accepted connection. Call Serve
// once per listener (plain TCP, TLS) from its own goroutine.
func (s *Server) Serve(listener net.Listener) error {
	defer listener.Close()
	for {
		c, err := listener.Accept()
		if err != nil {
			select {
			case <-s.closed:
				return nil
			default:
			}
			logger.Error(err)
			return err
		}

		id := s.nextSessionID()
		ip := remoteIP(c)

		if !s.cfg.IPExempt.Allowed(ip) {
			if !s.addIP(ip) {
				c.Close()
				logger.Request(id, ip, "Connection rejected: too many concurrent connections")
				continue
			}
		}

		logger.DebugSession(id, ip, "connection accepted")
		go s.handleConnection(id, ip, c)
	}
}

func remoteIP(c net.Conn) string {
	if addr, ok := c.RemoteAddr().(*net.TCPAddr); ok {
		return addr.IP.String()
	}
	return c.RemoteAddr().String()
}

func (s *Server) handleConnection(id uint64, ip string, c net.Conn) {
	sess := session.New(id, ip, c, s.reg, s.cfg.SessionConfig)
	s.addSession(sess, id)

	defer func() {
		if r := recover(); r != nil {
			logger.Request(id, ip, "connection crashed: "+recoverMessage(r))
		}
		c.Close()
		s.removeSession(id)
		if !s.cfg.IPExempt.Allowed(ip) {
			s.removeIP(ip)
		}
		logger.DebugSession(id, ip, "connection closed")
	}()

	sess.Run()
}

func recoverMessage(r any) string {
	switch v := r.(type) {
	case string:
		return v
	case error:
		return v.Error()
	default:
		return "unknown panic"
	}
}

// PingSweep sends a ping request to every live session once per
// PingInterval until Close is called. Run it in its own goroutine.
func (s *Server) PingSweep() {
	ticker := time.NewTicker(PingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-s.closed:
			return
		case <-ticker.C:
			s.mu.Lock()
			sessions := make([]*session.Session, 0, len(s.sessions))
			for _, sess := range s.sessions {
				sessions = append(sessions, sess)
			}
			s.mu.Unlock()
			for _, sess := range sessions {
				sess.SendPing()
			}
		}
	}
}

// Close signals every Serve/PingSweep goroutine to stop accepting new
// work. It does not forcibly close already-accepted connections.
func (s *Server) Close() {
	s.once.Do(func() { close(s.closed) })
}

// SessionCount reports the number of currently tracked sessions, handy
// for a health endpoint or shutdown log line.
func (s *Server) SessionCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}
