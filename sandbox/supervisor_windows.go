//go:build windows

package sandbox

import (
	"sync"

	"golang.org/x/sys/windows"
)

// jobSupervisor tracks and enforces the liveness of a job-object-confined
// Windows child, mirroring ProcessState in the original: terminate kills
// the whole job (covering any sub-processes the sandboxed program spawned)
// and is idempotent; exitStatus performs GetExitCodeProcess and caches once
// the process is no longer STILL_ACTIVE.
type jobSupervisor struct {
	mu         sync.Mutex
	info       *jailProcessInfo
	terminated bool
	exitCode   int
	haveCode   bool
}

// terminateExitCode is the synthetic exit code reported when the
// supervisor itself kills the job (handler returned before the process
// exited on its own) — TerminateJobObject lets the caller choose this
// value, so a fixed non-zero sentinel is used rather than trying to infer
// one, mirroring the original's `terminate(255)`.
const terminateExitCode = 255

// stillActive is STILL_ACTIVE / STATUS_PENDING (0x103), the sentinel
// GetExitCodeProcess returns while the process hasn't exited yet.
const stillActive = 259

func newJobSupervisor(info *jailProcessInfo) *jobSupervisor {
	return &jobSupervisor{info: info}
}

func (s *jobSupervisor) terminate() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.terminated {
		return nil
	}
	s.terminated = true
	if err := windows.TerminateJobObject(s.info.job, terminateExitCode); err != nil {
		return processErr("TerminateJobObject", err)
	}
	// Termination is asynchronous; wait so exitStatus sees the final code.
	if _, err := windows.WaitForSingleObject(s.info.process, windows.INFINITE); err != nil {
		return processErr("wait for terminated child", err)
	}
	return nil
}

func (s *jobSupervisor) exitStatus() (int, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.haveCode {
		return s.exitCode, true
	}
	var code uint32
	if err := windows.GetExitCodeProcess(s.info.process, &code); err != nil {
		return 0, false
	}
	if code == stillActive {
		return 0, false
	}
	s.exitCode = int(int32(code))
	s.haveCode = true
	return s.exitCode, true
}

func (s *jobSupervisor) close() {
	windows.CloseHandle(s.info.thread)
	windows.CloseHandle(s.info.process)
	windows.CloseHandle(s.info.job)
}
