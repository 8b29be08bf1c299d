package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/maestro-performance/maestro-go/pkg/notes"
)

var (
	sender1   = notes.PeerInfo{Role: notes.RoleSender, Name: "sender", Host: "h1"}
	sender2   = notes.PeerInfo{Role: notes.RoleSender, Name: "sender", Host: "h2"}
	receiver1 = notes.PeerInfo{Role: notes.RoleReceiver, Name: "receiver", Host: "h3"}
	stranger  = notes.PeerInfo{Role: notes.RoleSender, Name: "sender", Host: "elsewhere"}
)

func origin(p notes.PeerInfo) notes.Origin {
	return notes.Origin{ID: p.Host, Peer: p}
}

func success(p notes.PeerInfo) notes.Note {
	return notes.NewTestSuccessfulNotification(origin(p), notes.Test{}, "done")
}

func failure(p notes.PeerInfo) notes.Note {
	return notes.NewTestFailedNotification(origin(p), notes.Test{}, "latency over limit")
}

func TestWatchContext_OrderIndependent(t *testing.T) {
	arrivals := [][]notes.Note{
		{success(sender1), failure(sender2), success(receiver1)},
		{failure(sender2), success(receiver1), success(sender1)},
		{success(receiver1), success(sender1), failure(sender2)},
	}
	for _, order := range arrivals {
		c := NewWatchContext(sender1, sender2, receiver1)
		for _, n := range order {
			c.ProcessNote(n)
		}
		assert.True(t, c.HasFailures())
		assert.Equal(t, 2, c.CountSucceeded(nil))
		assert.Equal(t, 1, c.CountSucceeded(func(p notes.PeerInfo) bool { return p.Role == notes.RoleSender }))
		failures := c.Failures()
		if assert.Len(t, failures, 1) {
			assert.Equal(t, sender2, failures[0].Peer)
			assert.Equal(t, "latency over limit", failures[0].Message)
		}
	}
}

func TestWatchContext_FirstOutcomeWins(t *testing.T) {
	c := NewWatchContext(sender1)
	assert.True(t, c.ProcessNote(success(sender1)))
	assert.False(t, c.ProcessNote(success(sender1)))
	assert.False(t, c.ProcessNote(failure(sender1)))

	outcome, ok := c.GetOutcome(sender1.Key())
	assert.True(t, ok)
	assert.Equal(t, Succeeded, outcome.Status)
	assert.False(t, c.HasFailures())
	assert.Equal(t, "Succeeded:   1", c.GetCurrentStateSummary())
}

func TestWatchContext_IgnoresPeersOutsideTheSet(t *testing.T) {
	c := NewWatchContext(sender1)
	assert.False(t, c.ProcessNote(failure(stranger)))
	assert.False(t, c.HasFailures())
	assert.Equal(t, 1, c.GetNumberOfPeers())
	assert.Equal(t, "Pending:   1", c.GetCurrentStateSummary())
}

func TestWatchContext_TracksAnyPeerWhenNoneExpected(t *testing.T) {
	c := NewWatchContext()
	assert.True(t, c.ProcessNote(success(stranger)))
	assert.True(t, c.ProcessNote(notes.NewAbnormalDisconnectNotification(origin(sender1), "connection lost")))
	assert.True(t, c.ProcessNote(notes.NewInternalErrorResponse(origin(receiver1), "boom")))
	assert.False(t, c.ProcessNote(notes.NewOkResponse(origin(sender2))))
	assert.False(t, c.ProcessNote(notes.NewStopSenderRequest()))

	assert.Equal(t, 3, c.GetNumberOfPeers())
	assert.Equal(t, "Succeeded:   1, Disconnected:   1, Errored:   1", c.GetCurrentStateSummary())
}
