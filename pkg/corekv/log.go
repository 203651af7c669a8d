package corekv

import "log"

// Logger is the minimal sink the core writes diagnostic lines to. It is
// satisfied by *log.Logger, matching the plain log.Fatalf/log.Printf style
// the teacher's cmd/kvserver uses rather than pulling in a structured
// logging framework for a thin connection library.
type Logger interface {
	Printf(format string, v ...any)
}

func defaultLogger() Logger {
	return log.Default()
}
