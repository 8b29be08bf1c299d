package maestroctl

import (
	"context"
	"encoding/json"
	"fmt"
	"reflect"
	"time"

	"github.com/pkg/errors"

	"github.com/maestro-performance/maestro-go/internal/client"
	"github.com/maestro-performance/maestro-go/internal/client/domain"
	"github.com/maestro-performance/maestro-go/pkg/notes"
)

// Watch prints the test outcomes reported by the peers. When exitAfter is positive it returns once that many
// peers reported an outcome.
func (a *App) Watch(ctx context.Context, raw bool, exitAfter int) error {
	m, err := a.dial(ctx)
	if err != nil {
		return err
	}
	defer m.Close()

	fmt.Fprintf(a.Out, "Watching test outcomes on %s\n", a.Params.BrokerConnectionDetails.BrokerURL)
	state, err := client.Watch(ctx, m.Collector(), nil, func(state *domain.WatchContext, note notes.Note) bool {
		if raw {
			data, err := json.Marshal(note)
			if err != nil {
				fmt.Fprintf(a.Out, "error formatting note %s: %s\n", note.NoteHeader(), err)
			} else {
				fmt.Fprintf(a.Out, "%s %s\n", reflect.TypeOf(note), string(data))
			}
		} else {
			a.printSummary(state, note)
		}
		return exitAfter > 0 && state.GetNumberOfPeers() >= exitAfter
	})
	if err != nil && ctx.Err() != nil {
		// Interrupted by the user.
		return nil
	}
	if state != nil && state.HasFailures() {
		return errors.Errorf("%d peers failed", len(state.Failures()))
	}
	return err
}

func (a *App) printSummary(state *domain.WatchContext, note notes.Note) {
	summary := fmt.Sprintf("%s | ", time.Now().Format(time.Stamp))
	summary += state.GetCurrentStateSummary()
	summary += fmt.Sprintf(" | %s", note.NoteHeader().Command)
	if o, ok := note.(notes.Originator); ok {
		peer := o.OriginInfo().Peer
		if outcome, ok := state.GetOutcome(peer.Key()); ok && outcome.Message != "" {
			summary += fmt.Sprintf(" from %s: %s", peer, outcome.Message)
		} else {
			summary += fmt.Sprintf(" from %s", peer)
		}
	}
	fmt.Fprintf(a.Out, "%s\n", summary)
}
