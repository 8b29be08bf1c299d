package main

import (
	"os"

	"github.com/maestro-performance/maestro-go/cmd/maestro/cmd"
	"github.com/maestro-performance/maestro-go/internal/common/logging"
	"github.com/maestro-performance/maestro-go/internal/common/maestroerrors"
)

func main() {
	logging.ConfigureCommandLineLogging()
	root := cmd.RootCmd()
	if err := root.Execute(); err != nil {
		os.Exit(maestroerrors.ExitCode(err))
	}
}
