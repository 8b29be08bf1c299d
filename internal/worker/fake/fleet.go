package fake

import (
	"context"

	"github.com/hashicorp/go-multierror"

	"github.com/maestro-performance/maestro-go/internal/common/maestrocontext"
	"github.com/maestro-performance/maestro-go/internal/exchange/transport"
	"github.com/maestro-performance/maestro-go/pkg/notes"
)

// Fleet is a group of simulated workers sharing a broker.
type Fleet struct {
	Workers []*Worker
}

// StartFleet connects one worker with its default behaviour per peer.
// Workers connect concurrently.
func StartFleet(ctx context.Context, brokerURL string, peers []notes.PeerInfo, opts ...transport.Option) (*Fleet, error) {
	f := &Fleet{Workers: make([]*Worker, 0, len(peers))}
	g, gctx := maestrocontext.ErrGroup(maestrocontext.FromContext(ctx))
	for _, p := range peers {
		w := NewWorker(p, DefaultBehaviour(p.Role))
		f.Workers = append(f.Workers, w)
		g.Go(func() error {
			return w.Connect(gctx, brokerURL, opts...)
		})
	}
	if err := g.Wait(); err != nil {
		f.Disconnect()
		return nil, err
	}
	return f, nil
}

func (f *Fleet) Add(ctx context.Context, brokerURL string, w *Worker, opts ...transport.Option) error {
	if err := w.Connect(ctx, brokerURL, opts...); err != nil {
		return err
	}
	f.Workers = append(f.Workers, w)
	return nil
}

// Find returns the worker currently known as key, if any.
func (f *Fleet) Find(key string) *Worker {
	for _, w := range f.Workers {
		if w.Info().Key() == key {
			return w
		}
	}
	return nil
}

func (f *Fleet) Disconnect() {
	for _, w := range f.Workers {
		w.Disconnect()
	}
}

// Count sums the requests with command seen by every worker.
func (f *Fleet) Count(command notes.Command) int {
	total := 0
	for _, w := range f.Workers {
		total += w.Count(command)
	}
	return total
}

// Peers lists the current identity of every worker.
func (f *Fleet) Peers() []notes.PeerInfo {
	peers := make([]notes.PeerInfo, 0, len(f.Workers))
	for _, w := range f.Workers {
		peers = append(peers, w.Info())
	}
	return peers
}

// CheckSettings returns an error for every worker whose last value of option is not want.
func (f *Fleet) CheckSettings(option notes.SetOption, want string) error {
	var result *multierror.Error
	for _, w := range f.Workers {
		if got, _ := w.Setting(option); got != want {
			result = multierror.Append(result, &settingMismatch{peer: w.Info(), option: option, got: got, want: want})
		}
	}
	return result.ErrorOrNil()
}

type settingMismatch struct {
	peer      notes.PeerInfo
	option    notes.SetOption
	got, want string
}

func (e *settingMismatch) Error() string {
	return e.peer.Key() + ": " + e.option.String() + " is " + e.got + ", expected " + e.want
}
