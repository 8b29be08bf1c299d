package distribution

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/maestro-performance/maestro-go/internal/client"
	"github.com/maestro-performance/maestro-go/internal/common/maestroerrors"
	"github.com/maestro-performance/maestro-go/pkg/notes"
	"github.com/maestro-performance/maestro-go/pkg/topics"
)

// Strategy computes the PeerSet of a phase. Reset undoes whatever the strategy changed on the peers.
type Strategy interface {
	Name() string
	PeerSet(ctx context.Context) (*PeerSet, error)
	Reset(ctx context.Context) error
}

// testRoles are the roles that take part in a test.
var testRoles = []notes.Role{notes.RoleSender, notes.RoleReceiver, notes.RoleInspector, notes.RoleAgent}

func isTestRole(r notes.Role) bool {
	for _, tr := range testRoles {
		if r == tr {
			return true
		}
	}
	return false
}

func notEnoughPeers(strategy string) error {
	return errors.WithStack(&maestroerrors.ErrNotFound{
		Type:    "peer",
		Value:   "sender or receiver",
		Message: "there are not enough peers to run the test with the " + strategy + " strategy",
	})
}

// StaticStrategy uses a fixed list of peers, typically taken from the configuration.
type StaticStrategy struct {
	peers []notes.PeerInfo
}

func NewStaticStrategy(peers []notes.PeerInfo) *StaticStrategy {
	return &StaticStrategy{peers: peers}
}

func (s *StaticStrategy) Name() string { return "static" }

func (s *StaticStrategy) PeerSet(context.Context) (*PeerSet, error) {
	set := NewPeerSet(s.peers...)
	if set.Workers() == 0 {
		return nil, notEnoughPeers(s.Name())
	}
	return set, nil
}

func (s *StaticStrategy) Reset(context.Context) error { return nil }

// Discover pings every peer and returns those answering within window.
func Discover(ctx context.Context, m *client.Maestro, window time.Duration) (*PeerSet, error) {
	req, err := m.Ping(topics.AllDaemons)
	if err != nil {
		return nil, err
	}
	replies, err := m.AwaitRepliesWithTimeout(ctx, window, math.MaxInt32, req)
	if err != nil && ctx.Err() != nil {
		return nil, ctx.Err()
	}
	set := NewPeerSet()
	for _, r := range replies {
		if pong, ok := r.(*notes.PingResponse); ok {
			log.Debugf("Discovered %s, ping took %dms", pong.Peer, pong.Elapsed)
			set.Add(pong.Peer)
		}
	}
	return set, nil
}

// DiscoveryStrategy uses every peer that answers a ping and already has a test role.
type DiscoveryStrategy struct {
	maestro *client.Maestro
	window  time.Duration
}

func NewDiscoveryStrategy(m *client.Maestro, window time.Duration) *DiscoveryStrategy {
	return &DiscoveryStrategy{maestro: m, window: window}
}

func (s *DiscoveryStrategy) Name() string { return "discovery" }

func (s *DiscoveryStrategy) PeerSet(ctx context.Context) (*PeerSet, error) {
	found, err := Discover(ctx, s.maestro, s.window)
	if err != nil {
		return nil, err
	}
	set := NewPeerSet()
	for _, p := range found.Peers() {
		if isTestRole(p.Role) {
			set.Add(p)
		}
	}
	if set.Workers() == 0 {
		return nil, notEnoughPeers(s.Name())
	}
	log.Infof("Discovered peers %s", set)
	return set, nil
}

func (s *DiscoveryStrategy) Reset(context.Context) error { return nil }

// BalancedStrategy turns generic workers into receivers and senders, alternately and starting with a receiver.
// Inspectors and agents found along the way are used as they are. The assignment is kept across phases
// until Reset.
type BalancedStrategy struct {
	maestro      *client.Maestro
	window       time.Duration
	replyTimeout time.Duration

	mu       sync.Mutex
	assigned *PeerSet
}

func NewBalancedStrategy(m *client.Maestro, window, replyTimeout time.Duration) *BalancedStrategy {
	return &BalancedStrategy{maestro: m, window: window, replyTimeout: replyTimeout}
}

func (s *BalancedStrategy) Name() string { return "balanced" }

func (s *BalancedStrategy) PeerSet(ctx context.Context) (*PeerSet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.assigned != nil {
		return s.assigned, nil
	}

	found, err := Discover(ctx, s.maestro, s.window)
	if err != nil {
		return nil, err
	}
	set := NewPeerSet()
	var requests []notes.Note
	// Workers asked to take a role so far. They are returned to the generic role if the assignment fails.
	var sent []notes.PeerInfo
	counter := 0
	for _, p := range found.Peers() {
		switch p.Role {
		case notes.RoleInspector, notes.RoleAgent:
			set.Add(p)
			continue
		case notes.RoleOther:
		default:
			continue
		}
		role := notes.RoleReceiver
		if counter%2 == 1 {
			role = notes.RoleSender
		}
		counter++
		log.Infof("Assigning node %s as %s", p.Key(), role)
		req, err := s.maestro.RoleAssign(p, role)
		if err != nil {
			s.unassign(sent)
			return nil, err
		}
		requests = append(requests, req)
		assigned := notes.PeerInfo{Role: role, Name: p.Name, Host: p.Host}
		sent = append(sent, assigned)
		set.Add(assigned)
	}
	if set.Workers() == 0 {
		s.unassign(sent)
		return nil, notEnoughPeers(s.Name())
	}

	replies, err := s.maestro.AwaitRepliesWithTimeout(ctx, s.replyTimeout, len(requests), requests...)
	if err != nil {
		log.Warnf("Only %d of %d peers acknowledged their role assignment", len(replies), len(requests))
	}
	if err := client.CheckReplies(replies); err != nil {
		s.unassign(sent)
		return nil, errors.WithMessage(err, "role assignment failed")
	}
	s.assigned = set
	return set, nil
}

// Reset returns every assigned worker to the generic worker role.
func (s *BalancedStrategy) Reset(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.assigned == nil {
		return nil
	}
	err := s.unassign(s.assigned.WithRole(notes.RoleSender, notes.RoleReceiver))
	s.assigned = nil
	return err
}

// unassign asks every peer in peers to return to the generic worker role and returns the first failure.
func (s *BalancedStrategy) unassign(peers []notes.PeerInfo) error {
	var firstErr error
	for _, p := range peers {
		log.Infof("Unassigning node %s as %s", p.Key(), p.Role)
		if _, err := s.maestro.RoleUnassign(p); err != nil {
			log.WithError(err).Warnf("Failed to unassign node %s", p.Key())
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}
