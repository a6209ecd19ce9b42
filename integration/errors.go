//go:build linux

package integration

import "errors"

var (
	errNoStreams    = errors.New("integration: child did not expose the expected fd 0/1 streams")
	errBadHandshake = errors.New("integration: child did not complete the '0'/'1'/'2' handshake")
)
