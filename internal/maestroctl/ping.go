package maestroctl

import (
	"context"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/maestro-performance/maestro-go/internal/coordinator/distribution"
)

// Ping lists the peers answering a broadcast ping within window.
func (a *App) Ping(ctx context.Context, window time.Duration) error {
	m, err := a.dial(ctx)
	if err != nil {
		return err
	}
	defer m.Close()

	peers, err := distribution.Discover(ctx, m, window)
	if err != nil {
		return err
	}
	if peers.Len() == 0 {
		fmt.Fprintf(a.Out, "No peer answered within %s\n", window)
		return nil
	}
	w := tabwriter.NewWriter(a.Out, 1, 1, 2, ' ', 0)
	fmt.Fprintf(w, "ROLE\tNAME\tHOST\n")
	for _, p := range peers.Peers() {
		fmt.Fprintf(w, "%s\t%s\t%s\n", p.Role, p.Name, p.Host)
	}
	return w.Flush()
}
