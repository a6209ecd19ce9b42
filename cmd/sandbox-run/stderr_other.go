//go:build !windows

package main

import (
	"io"
	"os"
)

// coloredStderr returns the bare stderr stream; ANSI terminals elsewhere
// don't need the Windows console shim.
func coloredStderr() io.Writer {
	return os.Stderr
}
