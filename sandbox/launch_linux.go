//go:build linux

package sandbox

import (
	"encoding/json"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/sirupsen/logrus"
)

// launch is the Linux Launcher. Because the Go runtime gives no hook
// between fork and exec for user code to run in (no async-signal-safe
// window the way a raw fork() would have), everything that the original
// does in the forked child — chdir, fd wiring, Landlock commit, descriptor
// closure, exec — instead runs in a freshly re-exec'd stage-2 process (see
// trampoline_linux.go, and the realization note in SPEC_FULL.md). launch's
// job is everything that CAN run in the parent: dependency discovery, pipe
// creation, and assembling the config the stage-2 process will read.
func launch(env LaunchEnv, handler Handler) (int, error) {
	execPath, err := resolveExecutable(env.Cmd)
	if err != nil {
		return 0, err
	}

	deps := findBinDependencies(execPath)
	allowList, err := extractDependencies(deps)
	if err != nil {
		return 0, err
	}
	defaultLogger.Debug("resolved dependency allow-list", logrus.Fields{
		"exec_path": execPath,
		"count":     len(allowList),
	})

	selfExe, err := os.Executable()
	if err != nil {
		return 0, ioErr("resolve own executable path", err)
	}

	// ExtraFiles slot 0 is the config pipe, landing on fd 3 in the child;
	// wiring entries start at fd 4.
	wiring, err := buildPipeWiring(env.FDs, 4)
	if err != nil {
		return 0, err
	}

	cfgR, cfgW, err := os.Pipe()
	if err != nil {
		return 0, ioErr("create config pipe", err)
	}

	// The stage-2 process starts in "/", so a relative Cwd is made absolute
	// against the caller's own working directory here.
	cwd, err := filepath.Abs(env.Cwd)
	if err != nil {
		cfgR.Close()
		cfgW.Close()
		return 0, ioErr("resolve working directory", err)
	}

	cfg := trampolineConfig{
		Cwd:              cwd,
		ExecPath:         execPath,
		Argv:             env.Args,
		Envp:             env.EnvSlice(false),
		AllowedReadPaths: allowList,
		FDMap:            wiring.fdMap,
	}
	data, err := json.Marshal(cfg)
	if err != nil {
		cfgR.Close()
		cfgW.Close()
		return 0, jailSetupErr("encode trampoline config", err)
	}

	writeErrCh := make(chan error, 1)
	go func() {
		_, werr := cfgW.Write(data)
		cfgW.Close()
		writeErrCh <- werr
	}()

	cmd := exec.Command(selfExe)
	cmd.Args = []string{trampolineArgv0}
	cmd.Env = []string{trampolineCfgFDEnv + "=3"}
	cmd.ExtraFiles = append([]*os.File{cfgR}, wiring.childFiles...)
	cmd.Dir = "/"

	startErr := cmd.Start()

	// The parent's copies of everything now living in the child must be
	// dropped, whether or not Start succeeded.
	cfgR.Close()
	wiring.closeChildEndsInParent()

	if startErr != nil {
		for _, s := range wiring.parent {
			_ = s.file.Close()
		}
		return 0, processErr("start sandboxed process", startErr)
	}

	if werr := <-writeErrCh; werr != nil {
		// The trampoline may already be running; let it fail on its own
		// (short read / bad JSON) rather than racing a kill here.
		_ = werr
	}

	defaultLogger.Debug("spawned stage-2 trampoline", logrus.Fields{"pid": cmd.Process.Pid})

	supervisor := newPosixSupervisor(cmd.Process.Pid)
	streams := make(map[uint32]*parentStream, len(wiring.parent))
	for fd, s := range wiring.parent {
		streams[fd] = s
	}
	child := &linuxChild{pid: cmd.Process.Pid, streams: streams, supervisor: supervisor}

	handlerErr := handler.Handle(child)

	_ = supervisor.terminate()
	code, haveCode := supervisor.exitStatus()
	defaultLogger.Debug("reaped child", logrus.Fields{"pid": cmd.Process.Pid, "exit_code": code, "reaped": haveCode})
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
