//go:build linux

package sandbox

import (
	"sync"

	"golang.org/x/sys/unix"
)

// posixSupervisor tracks a launched POSIX child's liveness: mutex-guarded
// terminated/exit-code state with idempotent terminate and a non-blocking
// reap, mirroring ProcessState in the original.
type posixSupervisor struct {
	mu         sync.Mutex
	pid        int
	terminated bool
	exitCode   int
	haveCode   bool
}

func newPosixSupervisor(pid int) *posixSupervisor {
	return &posixSupervisor{pid: pid}
}

// terminate sends SIGKILL if the process hasn't already been reaped, then
// blocks for the reap so ExitStatus can report a code immediately
// afterwards. Idempotent: a second call is a no-op.
func (s *posixSupervisor) terminate() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.terminated {
		return nil
	}
	s.terminated = true

	if s.haveCode {
		return nil
	}

	_ = unix.Kill(s.pid, unix.SIGKILL)

	var ws unix.WaitStatus
	_, err := unix.Wait4(s.pid, &ws, 0, nil)
	if err != nil {
		return processErr("wait for terminated child", err)
	}
	s.exitCode = encodeWaitStatus(ws)
	s.haveCode = true
	return nil
}

// exitStatus performs a non-blocking reap (WNOHANG) the first time it
// observes the child has exited, then caches the result.
func (s *posixSupervisor) exitStatus() (int, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.haveCode {
		return s.exitCode, true
	}

	var ws unix.WaitStatus
	pid, err := unix.Wait4(s.pid, &ws, unix.WNOHANG, nil)
	if err != nil || pid == 0 {
		return 0, false
	}
	s.exitCode = encodeWaitStatus(ws)
	s.haveCode = true
	return s.exitCode, true
}

// encodeWaitStatus maps a wait(2) status to a single integer exit code: a
// normal exit reports its own code; a signal death is reported as 128+signal,
// the conventional shell/container encoding, so a forced SIGKILL on
// handler-return (an early handler return forces termination) still
// yields an ordinary result rather than a supervisor error.
func encodeWaitStatus(ws unix.WaitStatus) int {
	switch {
	case ws.Exited():
		return ws.ExitStatus()
	case ws.Signaled():
		return 128 + int(ws.Signal())
	default:
		return -1
	}
}
