// Package distribution decides which peers take part in a test and in which role.
package distribution

import (
	"strings"

	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"

	"github.com/maestro-performance/maestro-go/pkg/notes"
)

// PeerSet is the set of peers selected for one phase, keyed by name@host.
type PeerSet struct {
	peers map[string]notes.PeerInfo
}

func NewPeerSet(peers ...notes.PeerInfo) *PeerSet {
	s := &PeerSet{peers: make(map[string]notes.PeerInfo, len(peers))}
	for _, p := range peers {
		s.Add(p)
	}
	return s
}

// Add inserts p, replacing any peer with the same key.
func (s *PeerSet) Add(p notes.PeerInfo) {
	s.peers[p.Key()] = p
}

func (s *PeerSet) Remove(key string) {
	delete(s.peers, key)
}

func (s *PeerSet) Get(key string) (notes.PeerInfo, bool) {
	p, ok := s.peers[key]
	return p, ok
}

func (s *PeerSet) Len() int {
	return len(s.peers)
}

// Peers returns the peers ordered by key.
func (s *PeerSet) Peers() []notes.PeerInfo {
	peers := maps.Values(s.peers)
	slices.SortFunc(peers, func(a, b notes.PeerInfo) bool { return a.Key() < b.Key() })
	return peers
}

// WithRole returns the peers having one of roles, ordered by key.
func (s *PeerSet) WithRole(roles ...notes.Role) []notes.PeerInfo {
	var ret []notes.PeerInfo
	for _, p := range s.Peers() {
		if slices.Contains(roles, p.Role) {
			ret = append(ret, p)
		}
	}
	return ret
}

// Count returns the number of peers having role.
func (s *PeerSet) Count(role notes.Role) int {
	return len(s.WithRole(role))
}

// Workers is the number of senders and receivers.
func (s *PeerSet) Workers() int {
	return len(s.WithRole(notes.RoleSender, notes.RoleReceiver))
}

// Keys returns the keys of the set, for use with collector.FromPeers.
func (s *PeerSet) Keys() map[string]struct{} {
	keys := make(map[string]struct{}, len(s.peers))
	for k := range s.peers {
		keys[k] = struct{}{}
	}
	return keys
}

func (s *PeerSet) String() string {
	var parts []string
	for _, p := range s.Peers() {
		parts = append(parts, p.String())
	}
	return "[" + strings.Join(parts, ", ") + "]"
}
