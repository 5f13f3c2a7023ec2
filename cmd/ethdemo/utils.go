package main

import (
	"fmt"
	"io"
	"os"

	"github.com/ethereum/go-ethereum/log"
	"github.com/mattn/go-isatty"
)

// fatal prints err with its stack trace and exits.
func fatal(err error) {
	fmt.Fprintf(os.Stderr, "Fatal: %+v\n", err)
	os.Exit(1)
}

// initLogger returns the application logger at the given legacy verbosity
// and keeps go-ethereum's own output at warn.
func initLogger(w io.Writer, verbosity int) log.Logger {
	color := useColor(w)

	appHandler := log.NewGlogHandler(log.NewTerminalHandler(w, color))
	appHandler.Verbosity(log.FromLegacyLevel(verbosity))

	ethHandler := log.NewGlogHandler(log.NewTerminalHandler(w, color))
	ethHandler.Verbosity(log.LevelWarn)
	log.SetDefault(log.NewLogger(ethHandler))

	return log.NewLogger(appHandler)
}

func useColor(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok || os.Getenv("TERM") == "dumb" {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}
