package collector

import (
	"github.com/maestro-performance/maestro-go/pkg/notes"
)

// Predicate selects notes.
type Predicate func(notes.Note) bool

func Any(notes.Note) bool { return true }

// ByCommand accepts notes carrying one of the given commands.
func ByCommand(commands ...notes.Command) Predicate {
	return func(n notes.Note) bool {
		c := n.NoteHeader().Command
		for _, cmd := range commands {
			if c == cmd {
				return true
			}
		}
		return false
	}
}

func ByType(t notes.NoteType) Predicate {
	return func(n notes.Note) bool { return n.NoteHeader().Type == t }
}

// CorrelatedWith accepts responses to any of the given requests.
func CorrelatedWith(requests ...notes.Note) Predicate {
	ids := make(map[notes.MessageCorrelation]struct{}, len(requests))
	for _, r := range requests {
		ids[r.NoteHeader().Correlation] = struct{}{}
	}
	return func(n notes.Note) bool {
		corr := n.NoteHeader().Correlation
		if corr.IsZero() {
			return false
		}
		_, ok := ids[corr]
		return ok
	}
}

// FromPeers accepts notes whose origin is one of keys, as returned by PeerInfo.Key.
func FromPeers(keys map[string]struct{}) Predicate {
	return func(n notes.Note) bool {
		o, ok := n.(notes.Originator)
		if !ok {
			return false
		}
		_, ok = keys[o.OriginInfo().Peer.Key()]
		return ok
	}
}

func And(preds ...Predicate) Predicate {
	return func(n notes.Note) bool {
		for _, p := range preds {
			if !p(n) {
				return false
			}
		}
		return true
	}
}

func Or(preds ...Predicate) Predicate {
	return func(n notes.Note) bool {
		for _, p := range preds {
			if p(n) {
				return true
			}
		}
		return false
	}
}
