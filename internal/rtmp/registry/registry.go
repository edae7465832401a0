// Package registry is the single process-wide owner of publisher-to-
// player routing edges: app name -> publisher record, and app name ->
// attached players. It consolidates what the reference implementation
// kept as two separate global maps (LiveUsers/PlayerUsers) into one
// type with a small, serialized mutation API, per the design notes on
// cyclic references and global mutable state.
package registry

import (
	"sync"

	"github.com/nodewire-systems/rtmp-relay/internal/rtmp/chunk"
	"github.com/nodewire-systems/rtmp-relay/internal/rtmperr"
)

// PublisherRecord identifies the session currently publishing an app.
type PublisherRecord struct {
	SessionID       uint64
	StreamPath      string
	PublishStreamID uint32
	// ExternalStreamID is the identifier an external callback/coordinator
	// assigned to this publish (control.Callback.Start's return value);
	// empty when no control plane is configured. The administrative
	// close-stream command matches against this, not PublishStreamID.
	ExternalStreamID string
}

// Player is the minimal surface the registry needs from a player
// session: the registry never holds a strong handle to a full session
// type, only this interface, so publisher and player sessions never
// reference each other directly — only through the registry.
type Player interface {
	ID() uint64
	PlayStreamID() uint32
	// Deliver enqueues msg for this player's own chunk writer. It must
	// not block the caller (the publisher's fan-out goroutine); a
	// bounded queue and a disconnect-on-overflow policy is expected.
	Deliver(msg *chunk.Message)
	Disconnect()
}

type appEntry struct {
	publisher       *PublisherRecord
	publisherHandle Player
	players         map[uint64]Player
}

// Registry is safe for concurrent use.
type Registry struct {
	mu   sync.RWMutex
	apps map[string]*appEntry
}

func New() *Registry {
	return &Registry{apps: make(map[string]*appEntry)}
}

func (r *Registry) entry(app string) *appEntry {
	e, ok := r.apps[app]
	if !ok {
		e = &appEntry{players: make(map[uint64]Player)}
		r.apps[app] = e
	}
	return e
}

// RegisterPublisher claims the publisher slot for app. At most one
// publisher per app is allowed; a second attempt is rejected. handle is
// kept alongside the record so a newly attached player can be handed
// the publisher's currently latched sequence headers and GOP cache
// (see AttachPlayer / PublisherHandle).
func (r *Registry) RegisterPublisher(app string, rec PublisherRecord, handle Player) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	e := r.entry(app)
	if e.publisher != nil {
		return rtmperr.New(rtmperr.Policy, "duplicate publisher for app "+app)
	}
	recCopy := rec
	e.publisher = &recCopy
	e.publisherHandle = handle
	return nil
}

// PublisherHandle returns the Player handle the current publisher
// registered with, if any.
func (r *Registry) PublisherHandle(app string) (Player, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.apps[app]
	if !ok || e.publisherHandle == nil {
		return nil, false
	}
	return e.publisherHandle, true
}

// Publisher returns the current publisher record for app, if any.
func (r *Registry) Publisher(app string) (PublisherRecord, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.apps[app]
	if !ok || e.publisher == nil {
		return PublisherRecord{}, false
	}
	return *e.publisher, true
}

// RemovePublisher clears the publisher slot. Attached players are left
// in place (they are idled, not forcibly dropped) per the lifecycle
// rules; it is the caller's job to notify and idle them before or
// after calling this.
func (r *Registry) RemovePublisher(app string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.apps[app]
	if !ok {
		return
	}
	e.publisher = nil
	e.publisherHandle = nil
}

// AttachPlayer adds p to app's player set as a single visible step and
// returns the publisher record present at that instant (or false if
// there is none yet), so the caller can replay sequence headers
// consistently with what "attached" means.
func (r *Registry) AttachPlayer(app string, p Player) (PublisherRecord, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e := r.entry(app)
	e.players[p.ID()] = p

	if e.publisher == nil {
		return PublisherRecord{}, false
	}
	return *e.publisher, true
}

// DetachPlayer removes a player from app's player set.
func (r *Registry) DetachPlayer(app string, playerID uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.apps[app]
	if !ok {
		return
	}
	delete(e.players, playerID)
}

// Players returns a snapshot of the players currently attached to app.
func (r *Registry) Players(app string) []Player {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.apps[app]
	if !ok {
		return nil
	}
	out := make([]Player, 0, len(e.players))
	for _, p := range e.players {
		out = append(out, p)
	}
	return out
}

// KillPublisher disconnects the current publisher for app, if any. Used
// by the administrative control plane (STREAM-KILL, Redis kill-session)
// to terminate a publisher from outside its own session goroutine.
func (r *Registry) KillPublisher(app string) bool {
	r.mu.RLock()
	e, ok := r.apps[app]
	r.mu.RUnlock()
	if !ok || e.publisherHandle == nil {
		return false
	}
	e.publisherHandle.Disconnect()
	return true
}

// KillPublisherWithStreamPath disconnects the current publisher for app
// only if its ExternalStreamID matches streamID, the same guard the
// teacher's STREAM-KILL/close-stream handlers apply before killing.
func (r *Registry) KillPublisherWithStreamPath(app, streamID string) bool {
	r.mu.RLock()
	e, ok := r.apps[app]
	r.mu.RUnlock()
	if !ok || e.publisher == nil || e.publisherHandle == nil {
		return false
	}
	if e.publisher.ExternalStreamID != streamID {
		return false
	}
	e.publisherHandle.Disconnect()
	return true
}

// SetExternalStreamID records the external coordinator's stream id for
// app's current publisher, called once a control.Callback.Start/
// Connection.NotifyPublishStart response is known.
func (r *Registry) SetExternalStreamID(app, streamID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.apps[app]
	if !ok || e.publisher == nil {
		return
	}
	e.publisher.ExternalStreamID = streamID
}

// Fanout delivers msg to every player currently attached to app, with
// the player's stream id substituted for msg.StreamID. Delivery is
// per-player non-blocking (see Player.Deliver); one slow player can
// never stall relay to the rest.
func (r *Registry) Fanout(app string, msg chunk.Message) {
	for _, p := range r.Players(app) {
		out := msg
		out.StreamID = p.PlayStreamID()
		p.Deliver(&out)
	}
}
