package bthost

import "github.com/google/uuid"

// PeerID is a process-local opaque identifier for a cached peer. IDs are
// random and unique within one cache instance; they carry no meaning
// across restarts.
type PeerID string

func NewPeerID() PeerID {
	return PeerID(uuid.NewString())
}

func (id PeerID) String() string {
	return string(id)
}
