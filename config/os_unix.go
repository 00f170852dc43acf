//go:build !windows

package config

import (
	"os"

	"golang.org/x/term"
)

// EnableColorOutput reports whether stream is a terminal and colors were not
// turned off.
func EnableColorOutput(stream *os.File) bool {
	return colorAllowed() && os.Getenv("TERM") != "dumb" && term.IsTerminal(int(stream.Fd()))
}
