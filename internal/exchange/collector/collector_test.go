package collector

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maestro-performance/maestro-go/pkg/notes"
)

var (
	sender   = notes.Origin{ID: "s1", Peer: notes.PeerInfo{Role: notes.RoleSender, Name: "sender", Host: "h1"}}
	receiver = notes.Origin{ID: "r1", Peer: notes.PeerInfo{Role: notes.RoleReceiver, Name: "receiver", Host: "h2"}}
)

func success(o notes.Origin) notes.Note {
	return notes.NewTestSuccessfulNotification(o, notes.Test{}, "ok")
}

func TestCollectMatching_PreservesRemainderOrder(t *testing.T) {
	c := New()
	ok1 := notes.NewOkResponse(sender)
	s1 := success(sender)
	ok2 := notes.NewOkResponse(receiver)
	s2 := success(receiver)
	for _, n := range []notes.Note{ok1, s1, ok2, s2} {
		c.NoteArrived("/mpt/maestro", n)
	}

	matched := c.CollectMatching(ByCommand(notes.CmdNotifySuccess))
	assert.Equal(t, []notes.Note{s1, s2}, matched)
	assert.Equal(t, []notes.Note{ok1, ok2}, c.Peek())
	assert.Equal(t, 2, c.Len())

	assert.Equal(t, []notes.Note{ok1, ok2}, c.Collect())
	assert.Equal(t, 0, c.Len())
}

func TestClear(t *testing.T) {
	c := New()
	c.NoteArrived("/mpt/maestro", notes.NewOkResponse(sender))
	c.Clear()
	assert.Empty(t, c.Collect())
}

func TestCallbacks(t *testing.T) {
	c := New()
	var order []string
	removeFirst := c.AddCallback(func(notes.Note) bool {
		order = append(order, "first")
		return true
	})
	c.AddCallback(func(n notes.Note) bool {
		order = append(order, "second")
		return n.NoteHeader().Command != notes.CmdPing
	})

	c.NoteArrived("/mpt/maestro", notes.NewOkResponse(sender))
	c.NoteArrived("/mpt/maestro", notes.NewPingResponse(sender, notes.NewPingRequest(time.Now()), time.Now()))
	assert.Equal(t, []string{"first", "second", "first", "second"}, order)
	assert.Equal(t, 1, c.Len())

	removeFirst()
	order = nil
	c.NoteArrived("/mpt/maestro", notes.NewOkResponse(sender))
	assert.Equal(t, []string{"second"}, order)
}

func TestWaitFor_ReturnsOnceEnoughArrived(t *testing.T) {
	c := New()
	c.NoteArrived("/mpt/notifications", success(sender))

	go func() {
		time.Sleep(10 * time.Millisecond)
		c.NoteArrived("/mpt/maestro", notes.NewOkResponse(sender))
		c.NoteArrived("/mpt/notifications", success(receiver))
	}()

	got, err := c.WaitFor(context.Background(), ByCommand(notes.CmdNotifySuccess), 2)
	require.NoError(t, err)
	assert.Len(t, got, 2)
	assert.Equal(t, 1, c.Len())
}

func TestWaitFor_Deadline(t *testing.T) {
	c := New()
	c.NoteArrived("/mpt/notifications", success(sender))
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	got, err := c.WaitFor(ctx, ByCommand(notes.CmdNotifySuccess), 2)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Len(t, got, 1)
}

func TestExpect(t *testing.T) {
	c := New()
	f := c.Expect(context.Background(), ByType(notes.NotificationType), 1)
	select {
	case <-f.Done():
		t.Fatal("future completed before any note arrived")
	case <-time.After(10 * time.Millisecond):
	}

	c.NoteArrived("/mpt/notifications", success(sender))
	got, err := f.Get()
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

func TestMonitor_CoalescesWakeups(t *testing.T) {
	c := New()
	wake, release := c.Monitor(ByCommand(notes.CmdOk))
	defer release()

	c.NoteArrived("/mpt/maestro", notes.NewOkResponse(sender))
	c.NoteArrived("/mpt/maestro", notes.NewOkResponse(receiver))
	c.NoteArrived("/mpt/notifications", success(sender))

	assert.Len(t, wake, 1)
	<-wake
	assert.Len(t, wake, 0)
}

func TestCollectWait(t *testing.T) {
	c := New()
	go func() {
		time.Sleep(5 * time.Millisecond)
		c.NoteArrived("/mpt/notifications", success(sender))
	}()
	got := c.CollectWait(5*time.Millisecond, 100, 1, ByCommand(notes.CmdNotifySuccess))
	assert.Len(t, got, 1)

	got = c.CollectWait(time.Millisecond, 3, 1, ByCommand(notes.CmdNotifySuccess))
	assert.Empty(t, got)
}

func TestConcurrentProducerAndConsumer_NothingLostOrDuplicated(t *testing.T) {
	const total = 1000
	c := New()
	produced := make([]notes.Note, total)
	for i := range produced {
		produced[i] = notes.NewOkResponse(sender)
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for _, n := range produced {
			c.NoteArrived("/mpt/maestro", n)
		}
	}()

	seen := map[notes.Note]int{}
	var consumed int
	for consumed < total {
		for _, n := range c.CollectMatching(Any) {
			seen[n]++
			consumed++
		}
	}
	wg.Wait()

	assert.Len(t, seen, total)
	for _, count := range seen {
		assert.Equal(t, 1, count)
	}
}

func TestPredicates(t *testing.T) {
	req := notes.NewPingRequest(time.Now())
	resp := notes.NewPingResponse(sender, req, time.Now())
	other := notes.NewPingResponse(receiver, notes.NewPingRequest(time.Now()), time.Now())

	tests := map[string]struct {
		pred Predicate
		note notes.Note
		want bool
	}{
		"correlated":           {pred: CorrelatedWith(req), note: resp, want: true},
		"not correlated":       {pred: CorrelatedWith(req), note: other, want: false},
		"from peer":            {pred: FromPeers(map[string]struct{}{"sender@h1": {}}), note: resp, want: true},
		"from other peer":      {pred: FromPeers(map[string]struct{}{"sender@h1": {}}), note: other, want: false},
		"request has no peer":  {pred: FromPeers(map[string]struct{}{"sender@h1": {}}), note: req, want: false},
		"and":                  {pred: And(ByCommand(notes.CmdPing), ByType(notes.ResponseType)), note: resp, want: true},
		"and fails":            {pred: And(ByCommand(notes.CmdPing), ByType(notes.ResponseType)), note: req, want: false},
		"or":                   {pred: Or(ByCommand(notes.CmdOk), ByType(notes.RequestType)), note: req, want: true},
		"by command, multiple": {pred: ByCommand(notes.CmdOk, notes.CmdPing), note: other, want: true},
	}
	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, tc.want, tc.pred(tc.note))
		})
	}
}
