package relay

import "sync"

// Session is the player identity and state created by a successful
// handshake. It is owned by its Connection; the registry only references it.
type Session struct {
	connID   uint32
	username string

	mu          sync.RWMutex
	characterID uint32
	playerData  []byte
}

// NewSession creates the session of the player on connection connID.
func NewSession(connID uint32, username string, characterID uint32) *Session {
	return &Session{
		connID:      connID,
		username:    username,
		characterID: characterID,
	}
}

// ConnectionID returns the id of the owning connection.
func (s *Session) ConnectionID() uint32 {
	return s.connID
}

// Username returns the name the player joined with.
func (s *Session) Username() string {
	return s.username
}

// CharacterID returns the selected character.
func (s *Session) CharacterID() uint32 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.characterID
}

// SetCharacterID changes the selected character.
func (s *Session) SetCharacterID(id uint32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.characterID = id
}

// PlayerData returns a copy of the last raw player state, or nil if none
// was received yet.
func (s *Session) PlayerData() []byte {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.playerData == nil {
		return nil
	}
	out := make([]byte, len(s.playerData))
	copy(out, s.playerData)
	return out
}

// SetPlayerData replaces the raw player state with a copy of data.
func (s *Session) SetPlayerData(data []byte) {
	buf := make([]byte, len(data))
	copy(buf, data)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.playerData = buf
}
