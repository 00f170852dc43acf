//go:build windows

package config

import (
	"os"

	"golang.org/x/sys/windows"
	"golang.org/x/term"
)

// EnableColorOutput reports whether stream is a console able to process VT100
// sequences, switching such processing on when necessary.
func EnableColorOutput(stream *os.File) bool {
	if !colorAllowed() || !term.IsTerminal(int(stream.Fd())) {
		return false
	}
	// earlier consoles do not understand escape sequences at all
	if windows.RtlGetVersion().MajorVersion < 10 {
		return false
	}

	h := windows.Handle(stream.Fd())
	var mode uint32
	if err := windows.GetConsoleMode(h, &mode); err != nil {
		return false
	}
	if mode&windows.ENABLE_VIRTUAL_TERMINAL_PROCESSING != 0 {
		return true
	}
	return windows.SetConsoleMode(h, mode|windows.ENABLE_VIRTUAL_TERMINAL_PROCESSING) == nil
}
