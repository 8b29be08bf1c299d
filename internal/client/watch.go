package client

import (
	"context"

	"github.com/maestro-performance/maestro-go/internal/client/domain"
	"github.com/maestro-performance/maestro-go/internal/exchange/collector"
	"github.com/maestro-performance/maestro-go/pkg/notes"
)

// Outcomes selects the notes that can settle the outcome of a test on a peer.
var Outcomes = collector.ByCommand(
	notes.CmdNotifySuccess,
	notes.CmdNotifyFail,
	notes.CmdAbnormalDisconnect,
	notes.CmdInternalError,
	notes.CmdProtocolError,
)

// Watch consumes outcome notes from c, tracking them in a WatchContext for peers (or for every peer when none
// are given), and calls onUpdate for each one that changed the state. It returns the context when onUpdate
// returns true, or together with ctx.Err() once ctx ends.
func Watch(ctx context.Context, c *collector.Collector, peers []notes.PeerInfo, onUpdate func(*domain.WatchContext, notes.Note) bool) (*domain.WatchContext, error) {
	state := domain.NewWatchContext(peers...)
	wake, release := c.Monitor(Outcomes)
	defer release()

	for {
		for _, note := range c.CollectMatching(Outcomes) {
			if !state.ProcessNote(note) {
				continue
			}
			if onUpdate(state, note) {
				return state, nil
			}
		}
		select {
		case <-wake:
		case <-ctx.Done():
			return state, ctx.Err()
		}
	}
}
