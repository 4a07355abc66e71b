package ws

import "sync"

// PresenceTracker maps an identity to its set of live session ids and
// derives online/offline transitions. It holds no persisted state and
// resets empty on process restart.
type PresenceTracker struct {
	mu       sync.Mutex
	sessions map[string]map[string]struct{}
}

func NewPresenceTracker() *PresenceTracker {
	return &PresenceTracker{
		sessions: make(map[string]map[string]struct{}),
	}
}

// OpenSession records a session under the identity. becameOnline is true
// iff the identity had no live sessions before this call.
func (p *PresenceTracker) OpenSession(userID, sessionID string) (becameOnline bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	set, ok := p.sessions[userID]
	if !ok {
		set = make(map[string]struct{})
		p.sessions[userID] = set
	}
	becameOnline = len(set) == 0
	set[sessionID] = struct{}{}
	return becameOnline
}

// CloseSession removes a session. becameOffline is true iff no live
// sessions remain for the identity (or none were known).
func (p *PresenceTracker) CloseSession(userID, sessionID string) (becameOffline bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	set, ok := p.sessions[userID]
	if !ok {
		return true
	}
	delete(set, sessionID)
	if len(set) == 0 {
		delete(p.sessions, userID)
		return true
	}
	return false
}

// SessionCount returns the number of live sessions for the identity.
func (p *PresenceTracker) SessionCount(userID string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.sessions[userID])
}
