package cliconfig

import (
	"os"

	"github.com/rs/zerolog"

	logAdapter "github.com/bft-labs/satlink/internal/adapters/log"
)

// Logger returns the console logger used by the CLI.
func Logger(level string) zerolog.Logger {
	return logAdapter.NewConsoleLogger(os.Stderr, level)
}
