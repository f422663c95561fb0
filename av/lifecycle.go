package av

import (
	"sort"

	"github.com/opd-ai/roomcall/config"
	"github.com/sirupsen/logrus"
)

// PeerManager keeps the set of peer playback contexts equal to the
// joined participants, excluding the local identity.
type PeerManager struct {
	self  string
	peers map[string]*Peer
	snap  config.Snapshot
	sink  AudioSink

	// onRemove runs after a peer has been closed.
	onRemove func(*Peer)
}

// NewPeerManager creates an empty manager for the local identity self.
func NewPeerManager(self string, snap config.Snapshot, sink AudioSink) *PeerManager {
	return &PeerManager{
		self:  self,
		peers: make(map[string]*Peer),
		snap:  snap,
		sink:  sink,
	}
}

// Add creates a playback context for id. It returns false when id is the
// local identity or already present.
func (m *PeerManager) Add(id string) (*Peer, bool) {
	if id == "" || id == m.self {
		return nil, false
	}
	if p, ok := m.peers[id]; ok {
		return p, false
	}

	p := newPeer(id, m.snap)
	m.peers[id] = p
	logrus.WithFields(logrus.Fields{
		"function": "PeerManager.Add",
		"peer":     id,
		"peers":    len(m.peers),
	}).Info("Peer added")
	return p, true
}

// Remove closes and forgets id. It returns false when id was not present.
func (m *PeerManager) Remove(id string) bool {
	p, ok := m.peers[id]
	if !ok {
		return false
	}
	delete(m.peers, id)
	p.close(m.sink)

	logrus.WithFields(logrus.Fields{
		"function": "PeerManager.Remove",
		"peer":     id,
		"peers":    len(m.peers),
	}).Info("Peer removed")

	if m.onRemove != nil {
		m.onRemove(p)
	}
	return true
}

// Reconcile adds missing peers from joined and removes peers not in it.
func (m *PeerManager) Reconcile(joined []string) (added, removed []string) {
	want := make(map[string]struct{}, len(joined))
	for _, id := range joined {
		if id == "" || id == m.self {
			continue
		}
		want[id] = struct{}{}
	}

	for _, id := range m.IDs() {
		if _, ok := want[id]; !ok && m.Remove(id) {
			removed = append(removed, id)
		}
	}
	for _, id := range sortedKeys(want) {
		if _, ok := m.Add(id); ok {
			added = append(added, id)
		}
	}
	return added, removed
}

// Get returns the playback context for id.
func (m *PeerManager) Get(id string) (*Peer, bool) {
	p, ok := m.peers[id]
	return p, ok
}

// IDs returns the peer identities in sorted order.
func (m *PeerManager) IDs() []string {
	ids := make([]string, 0, len(m.peers))
	for id := range m.peers {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Len returns the number of peers.
func (m *PeerManager) Len() int { return len(m.peers) }

// ApplyConfig updates every peer and the template for new ones.
func (m *PeerManager) ApplyConfig(snap config.Snapshot) {
	m.snap = snap
	for _, p := range m.peers {
		p.applyConfig(snap)
	}
}

// Clear removes every peer.
func (m *PeerManager) Clear() {
	for _, id := range m.IDs() {
		m.Remove(id)
	}
}

func sortedKeys(set map[string]struct{}) []string {
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
