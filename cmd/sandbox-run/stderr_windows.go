//go:build windows

package main

import (
	"io"

	"github.com/mattn/go-colorable"
)

// coloredStderr returns a Windows-console-aware writer so ANSI-formatted
// log entries render correctly in cmd.exe and legacy conhost windows.
func coloredStderr() io.Writer {
	return colorable.NewColorableStderr()
}
