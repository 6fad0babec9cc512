package main

import (
	stdlog "log"
	"os"

	"github.com/rs/zerolog"
	"golang.org/x/term"
)

var (
	stdout = stdlog.New(os.Stdout, "", 0)
	stderr = stdlog.New(os.Stderr, "", stdlog.Ltime|stdlog.Lmicroseconds)
)

func newLogger(verbose bool) zerolog.Logger {
	w := zerolog.ConsoleWriter{
		Out:        os.Stderr,
		TimeFormat: "15:04:05.000",
		NoColor:    !term.IsTerminal(int(os.Stderr.Fd())),
	}
	level := zerolog.InfoLevel
	if verbose {
		level = zerolog.DebugLevel
	}
	return zerolog.New(w).Level(level).With().Timestamp().Logger()
}
