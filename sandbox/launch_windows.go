//go:build windows

package sandbox

import (
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sys/windows"
)

// sandboxedArgv0 is the fixed, opaque argv[0]-equivalent command name used
// to build the quoted command line; CreateProcessAsUserW takes
// the real executable path separately as its application-name argument, so
// this placeholder only ever appears inside the quoted command line text
// handed to the child's own argv parsing.
const sandboxedArgv0 = "sandboxed"

// launch is the Windows Launcher. Unlike Linux, Windows has no
// fork/exec split at all, so there is no re-exec trampoline here:
// CreateProcessAsUserW creates the child suspended with the restricted
// token, AppContainer capabilities and handle allow-list already applied,
// and launchRestricted then assigns it to the job object before resuming
// its primary thread, all using data this function assembles directly.
func launch(env LaunchEnv, handler Handler) (int, error) {
	cmdPath := env.Cmd
	if filepath.Base(cmdPath) == cmdPath {
		if p, lerr := exec.LookPath(cmdPath); lerr == nil {
			cmdPath = p
		}
	}
	execPath, err := filepath.Abs(cmdPath)
	if err != nil {
		return 0, ioErr("resolve executable path", err)
	}
	if statErr := windowsStat(execPath); statErr != nil {
		return 0, ioErr("executable not found", statErr)
	}

	cwd, err := filepath.Abs(env.Cwd)
	if err != nil {
		return 0, ioErr("resolve working directory", err)
	}

	cmdLine, err := quoteArguments(sandboxedArgv0, env.Args)
	if err != nil {
		return 0, err
	}

	fds, err := buildWindowsFdWiring(env.FDs)
	if err != nil {
		return 0, err
	}

	containerID := uuid.New().String()
	container, err := newAppContainerProfile(
		"sandboxexec-"+containerID,
		"sandboxexec "+containerID,
		"Ephemeral AppContainer for a single sandboxexec launch",
	)
	if err != nil {
		closeAllChildHandles(fds)
		return 0, err
	}

	envMap := make(map[string]string, len(env.Env)+7)
	for k, v := range env.Env {
		envMap[k] = v
	}
	if fds.handleEnvBlock != "" {
		envMap[sandboxHandlesEnv] = fds.handleEnvBlock
	}
	// AppContainer requires these; override whatever the caller supplied.
	for k, v := range container.forcedEnv() {
		for existing := range envMap {
			if strings.EqualFold(existing, k) {
				delete(envMap, existing)
			}
		}
		envMap[k] = v
	}
	envBlock, err := encodeEnvBlock(envMap)
	if err != nil {
		return 0, err
	}

	var stdin, stdout, stderr windows.Handle
	var haveStdin, haveStdout, haveStderr bool
	if fds.stdin != nil && fds.stdin.hasChild {
		stdin, haveStdin = fds.stdin.childHandle, true
	}
	if fds.stdout != nil && fds.stdout.hasChild {
		stdout, haveStdout = fds.stdout.childHandle, true
	}
	if fds.stderr != nil && fds.stderr.hasChild {
		stderr, haveStderr = fds.stderr.childHandle, true
	}

	info, err := launchRestricted(execPath, cmdLine, cwd, envBlock, stdin, stdout, stderr, haveStdin, haveStdout, haveStderr, fds.allowedHandles, container)
	if err != nil {
		closeAllChildHandles(fds)
		return 0, err
	}
	defaultLogger.Debug("spawned confined child", logrus.Fields{
		"process_handle": info.process,
	})

	// The parent's references to every handle now living in the child must
	// be dropped; only the parent-side ends of pipes remain relevant.
	for _, f := range fds.others {
		if f.hasChild {
			windows.CloseHandle(f.childHandle)
			f.hasChild = false
		}
	}
	for _, f := range []*winFd{fds.stdin, fds.stdout, fds.stderr} {
		if f != nil && f.hasChild {
			windows.CloseHandle(f.childHandle)
			f.hasChild = false
		}
	}

	supervisor := newJobSupervisor(info)
	child := &windowsChild{fds: fds, supervisor: supervisor}

	handlerErr := handler.Handle(child)

	_ = supervisor.terminate()
	code, haveCode := supervisor.exitStatus()
	supervisor.close()
	defaultLogger.Debug("reaped child", logrus.Fields{"exit_code": code, "reaped": haveCode})
	if !haveCode {
		if handlerErr != nil {
			return 0, handlerErr
		}
		return 0, processErr("could not determine child exit status", nil)
	}

	if handlerErr != nil {
		return code, handlerErr
	}
	return code, nil
}

func closeAllChildHandles(fds *windowsFdSet) {
	for _, f := range fds.others {
		f.close()
	}
	for _, f := range []*winFd{fds.stdin, fds.stdout, fds.stderr} {
		if f != nil {
			f.close()
		}
	}
}

func windowsStat(path string) error {
	p, err := windows.UTF16PtrFromString(path)
	if err != nil {
		return err
	}
	h, err := windows.CreateFile(p, windows.GENERIC_READ, windows.FILE_SHARE_READ, nil,
		windows.OPEN_EXISTING, windows.FILE_ATTRIBUTE_NORMAL, 0)
	if err != nil {
		return err
	}
	windows.CloseHandle(h)
	return nil
}
