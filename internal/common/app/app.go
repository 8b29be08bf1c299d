package app

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/maestro-performance/maestro-go/internal/common/maestrocontext"
)

// CreateContextWithShutdown returns a context that will report done when a SIGINT or SIGTERM is received.
// A second signal is not intercepted, so it terminates the process as usual.
func CreateContextWithShutdown() *maestrocontext.Context {
	ctx, cancel := maestrocontext.WithCancel(maestrocontext.Background())
	c := make(chan os.Signal, 1)
	signal.Notify(c, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		defer signal.Stop(c)
		select {
		case sig := <-c:
			ctx.Log.Infof("Received %s, stopping", sig)
			cancel()
		case <-ctx.Done():
		}
	}()
	return ctx
}
