package monitor

import (
	"io"

	"github.com/rs/zerolog"
)

// noopLogger returns a logger that discards everything, for tests that need
// to call internals taking a zerolog.Logger without asserting on log output.
func noopLogger() zerolog.Logger {
	return zerolog.New(io.Discard)
}
