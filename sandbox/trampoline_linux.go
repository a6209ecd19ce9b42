//go:build linux

package sandbox

import (
	"encoding/json"
	"io"
	"os"

	"golang.org/x/sys/unix"
)

// trampolineCfgFDEnv is set (to "3") only on the re-exec'd stage-2 process;
// its presence is how Init distinguishes "I am the trampoline" from an
// ordinary invocation of the host binary. It carries no security meaning —
// it's plumbing, not a boundary — so it is not validated beyond "was it
// set".
const trampolineCfgFDEnv = "__SANDBOXEXEC_TRAMPOLINE_CFG_FD"

// trampolineArgv0 replaces the real executable name in the stage-2
// process's argv[0], the same "don't leak more than necessary into ps"
// rationale as the fixed "sandboxed" argv[0] used for the final exec.
const trampolineArgv0 = "sandboxexec-stage2"

// trampolineConfig is everything the parent precomputed before the spawn
// barrier and the stage-2 process needs after re-exec: the real command to
// run, its final argv/envp/cwd, the fd wiring table, and the confinement
// allow-list. It crosses the exec boundary over a pipe rather than argv or
// env, so it never appears in `ps` output.
type trampolineConfig struct {
	Cwd              string       `json:"cwd"`
	ExecPath         string       `json:"exec_path"`
	Argv             []string     `json:"argv"`
	Envp             []string     `json:"envp"`
	AllowedReadPaths []string     `json:"allowed_read_paths"`
	FDMap            []fdMapEntry `json:"fd_map"`
}

// Init must be called as the very first statement of a host program's
// main(), before any other setup. On an ordinary invocation it returns
// immediately and does nothing; on the re-exec'd stage-2 invocation it runs
// the confinement pipeline to completion and never returns — the process
// either becomes the sandboxed target via exec, or exits with one of the
// fixed status codes below. This mirrors the reexec-style dispatch idiom
// used when a single Go binary must act as its own launch helper (see
// DESIGN.md).
func Init() {
	fdStr := os.Getenv(trampolineCfgFDEnv)
	if fdStr == "" {
		return
	}
	runTrampoline(fdStr)
	// unreachable
	os.Exit(exitStatusTrampolineBug)
}

// Exit status codes on the stage-2 side: 253 covers chdir/descriptor-setup
// failure after the spawn barrier, 254 covers a reached-but-failed exec,
// 255 covers a failed confinement commit. Config decode failure and the
// unreachable post-Exec fallback are both descriptor/setup-class failures
// and share 253.
const (
	exitStatusChdirFailed   = 253
	exitStatusDupFailed     = 253
	exitStatusConfigFailed  = 253
	exitStatusTrampolineBug = 253
	exitStatusExecFailed    = 254
	exitStatusJailFailed    = 255
)

func runTrampoline(fdStr string) {
	n := 0
	for _, c := range fdStr {
		if c < '0' || c > '9' {
			os.Exit(exitStatusConfigFailed)
		}
		n = n*10 + int(c-'0')
	}

	cfgFile := os.NewFile(uintptr(n), "sandboxexec-cfg")
	data, err := io.ReadAll(cfgFile)
	if err != nil {
		os.Exit(exitStatusConfigFailed)
	}
	var cfg trampolineConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		os.Exit(exitStatusConfigFailed)
	}

	if err := unix.Chdir(cfg.Cwd); err != nil {
		os.Exit(exitStatusChdirFailed)
	}

	if err := applyFDMap(cfg.FDMap); err != nil {
		os.Exit(exitStatusDupFailed)
	}

	jail, err := newLandlockJail(cfg.AllowedReadPaths)
	if err != nil {
		os.Exit(exitStatusJailFailed)
	}
	if ok := jail.restrict(); !ok {
		os.Exit(exitStatusJailFailed)
	}

	keep := make(map[int]struct{}, len(cfg.FDMap))
	for _, m := range cfg.FDMap {
		keep[int(m.TargetFD)] = struct{}{}
	}
	closeOpenFDsExcept(keep)

	argv0 := sandboxedArgv0
	fullArgv := append([]string{argv0}, cfg.Argv...)
	_ = unix.Exec(cfg.ExecPath, fullArgv, cfg.Envp)

	// unix.Exec only returns on failure.
	os.Exit(exitStatusExecFailed)
}

// sandboxedArgv0 is the fixed, opaque argv[0] presented to the sandboxed
// target, so the real invocation path the launcher resolved is not handed
// to the child as its own idea of its name.
const sandboxedArgv0 = "sandboxed"

// applyFDMap duplicates each raw child-side fd onto its logical target,
// routing through a high, scratch fd range first so that a target number
// colliding with another entry's still-pending source fd doesn't clobber
// it mid-loop.
func applyFDMap(fdMap []fdMapEntry) error {
	const scratchBase = 500
	for i, m := range fdMap {
		if err := unix.Dup2(m.ChildFD, scratchBase+i); err != nil {
			return err
		}
	}
	for i, m := range fdMap {
		if err := unix.Dup2(scratchBase+i, int(m.TargetFD)); err != nil {
			return err
		}
	}
	return nil
}

// closeOpenFDsExcept closes every fd below the process's soft RLIMIT_NOFILE
// except those in keep, without consulting /proc/self/fd: the confined
// process may not be able to read procfs, and by this point it mustn't be
// able to either way. This is safe only because the process is
// moments from exec: no further Go code relies on the runtime's own
// internal descriptors (netpoller, etc.) surviving the sweep.
func closeOpenFDsExcept(keep map[int]struct{}) {
	var rlim unix.Rlimit
	max := 1024
	if err := unix.Getrlimit(unix.RLIMIT_NOFILE, &rlim); err == nil && rlim.Cur > 0 {
		max = int(rlim.Cur)
	}
	for fd := 0; fd < max; fd++ {
		if _, ok := keep[fd]; ok {
			continue
		}
		unix.Close(fd)
	}
}
