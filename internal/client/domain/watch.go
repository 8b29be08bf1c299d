package domain

import (
	"fmt"
	"sort"
	"strings"

	"github.com/maestro-performance/maestro-go/pkg/notes"
)

type PeerStatus string

const (
	Pending      PeerStatus = "Pending"
	Succeeded    PeerStatus = "Succeeded"
	Failed       PeerStatus = "Failed"
	Disconnected PeerStatus = "Disconnected"
	Errored      PeerStatus = "Errored"
)

var statesToIncludeInSummary = []PeerStatus{
	Pending,
	Succeeded,
	Failed,
	Disconnected,
	Errored,
}

// IsFailure is true for every final status except Succeeded.
func (s PeerStatus) IsFailure() bool {
	return s == Failed || s == Disconnected || s == Errored
}

type PeerOutcome struct {
	Peer    notes.PeerInfo
	Status  PeerStatus
	Message string
}

// WatchContext keeps track of the outcome reported by each peer while processing a stream of notes.
// The first outcome reported by a peer wins; later ones are ignored.
// It is not threadsafe and is expected to only ever be used in a single goroutine.
type WatchContext struct {
	expected     map[string]notes.PeerInfo
	state        map[string]*PeerOutcome
	stateSummary map[PeerStatus]int
}

// NewWatchContext tracks the given peers, which start out Pending. Notes from other peers are ignored, unless
// no peers were given, in which case every peer is tracked from its first note.
func NewWatchContext(peers ...notes.PeerInfo) *WatchContext {
	c := &WatchContext{
		expected:     make(map[string]notes.PeerInfo, len(peers)),
		state:        make(map[string]*PeerOutcome, len(peers)),
		stateSummary: make(map[PeerStatus]int, len(statesToIncludeInSummary)),
	}
	for _, p := range peers {
		if _, exists := c.expected[p.Key()]; exists {
			continue
		}
		c.expected[p.Key()] = p
		c.state[p.Key()] = &PeerOutcome{Peer: p, Status: Pending}
		c.stateSummary[Pending]++
	}
	return c
}

// ProcessNote records the outcome carried by note, if any, and reports whether the state changed.
func (c *WatchContext) ProcessNote(note notes.Note) bool {
	o, ok := note.(notes.Originator)
	if !ok {
		return false
	}
	status, message := outcomeOf(note)
	if status == "" {
		return false
	}

	peer := o.OriginInfo().Peer
	key := peer.Key()
	info, exists := c.state[key]
	if !exists {
		if len(c.expected) > 0 {
			return false
		}
		info = &PeerOutcome{Peer: peer}
		c.state[key] = info
	}
	if info.Status != "" && info.Status != Pending {
		return false
	}

	c.updateStateSummary(info.Status, status)
	info.Status = status
	info.Message = message
	return true
}

func outcomeOf(note notes.Note) (PeerStatus, string) {
	switch n := note.(type) {
	case *notes.TestSuccessfulNotification:
		return Succeeded, n.Message
	case *notes.TestFailedNotification:
		return Failed, n.Message
	case *notes.AbnormalDisconnectNotification:
		return Disconnected, n.Message
	case *notes.InternalErrorResponse:
		return Errored, n.Message
	case *notes.ProtocolErrorResponse:
		return Errored, "protocol error"
	}
	return "", ""
}

func (c *WatchContext) updateStateSummary(oldStatus PeerStatus, newStatus PeerStatus) {
	if oldStatus != "" {
		c.stateSummary[oldStatus]--
	}
	c.stateSummary[newStatus]++
}

func (c *WatchContext) GetOutcome(key string) (PeerOutcome, bool) {
	info, ok := c.state[key]
	if !ok {
		return PeerOutcome{}, false
	}
	return *info, true
}

func (c *WatchContext) GetNumberOfPeers() int {
	return len(c.state)
}

// CountSucceeded counts the peers accepted by filter that reported success.
func (c *WatchContext) CountSucceeded(filter func(notes.PeerInfo) bool) int {
	count := 0
	for _, info := range c.state {
		if info.Status == Succeeded && (filter == nil || filter(info.Peer)) {
			count++
		}
	}
	return count
}

func (c *WatchContext) HasFailures() bool {
	return c.stateSummary[Failed]+c.stateSummary[Disconnected]+c.stateSummary[Errored] > 0
}

// Failures returns the failed peers ordered by key.
func (c *WatchContext) Failures() []PeerOutcome {
	var failures []PeerOutcome
	for _, info := range c.state {
		if info.Status.IsFailure() {
			failures = append(failures, *info)
		}
	}
	sort.Slice(failures, func(i, j int) bool { return failures[i].Peer.Key() < failures[j].Peer.Key() })
	return failures
}

func (c *WatchContext) GetCurrentStateSummary() string {
	first := true
	var summary strings.Builder
	for _, state := range statesToIncludeInSummary {
		if c.stateSummary[state] == 0 {
			continue
		}
		if !first {
			summary.WriteString(", ")
		}
		first = false
		fmt.Fprintf(&summary, "%s: %3d", state, c.stateSummary[state])
	}
	return summary.String()
}
