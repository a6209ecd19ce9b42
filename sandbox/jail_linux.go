//go:build linux

package sandbox

import (
	"unsafe"

	"golang.org/x/sys/unix"
)

// Landlock is vendored here as raw syscalls rather than through a wrapper
// library: golang.org/x/sys/unix does not expose the landlock_* syscalls on
// every supported toolchain version, and this mirrors the same
// raw-syscall-over-constants technique used for BPF/seccomp plumbing
// elsewhere in the pack (see DESIGN.md).
const (
	sysLandlockCreateRuleset = 444
	sysLandlockAddRule       = 445
	sysLandlockRestrictSelf  = 446

	landlockRuleTypePathBeneath = 1

	landlockCreateRulesetVersion = 1 << 0

	// Access rights, ABI v1 (file) and ABI v4 (net). A "hard requirement"
	// per the original's CompatLevel::HardRequirement is everything in
	// AccessFs::from_all(ABI::V1); network rights are best-effort (ABI v4+)
	// and simply omitted on kernels that reject them.
	accessFSExecute     = 1 << 0
	accessFSWriteFile   = 1 << 1
	accessFSReadFile    = 1 << 2
	accessFSReadDir     = 1 << 3
	accessFSRemoveDir   = 1 << 4
	accessFSRemoveFile  = 1 << 5
	accessFSMakeChar    = 1 << 6
	accessFSMakeDir     = 1 << 7
	accessFSMakeReg     = 1 << 8
	accessFSMakeSock    = 1 << 9
	accessFSMakeFifo    = 1 << 10
	accessFSMakeBlock   = 1 << 11
	accessFSMakeSym     = 1 << 12
	accessFSRefer       = 1 << 13
	accessFSTruncate    = 1 << 14
	accessNetBindTCP    = 1 << 0
	accessNetConnectTCP = 1 << 1
)

// accessFSAllABIv1 is every filesystem access right defined as of Landlock
// ABI v1 — the hard-requirement "deny everything" baseline.
const accessFSAllABIv1 = accessFSExecute | accessFSWriteFile | accessFSReadFile |
	accessFSReadDir | accessFSRemoveDir | accessFSRemoveFile | accessFSMakeChar |
	accessFSMakeDir | accessFSMakeReg | accessFSMakeSock | accessFSMakeFifo |
	accessFSMakeBlock | accessFSMakeSym

const accessFSReadOnly = accessFSReadFile | accessFSReadDir

const accessNetAllABIv4 = accessNetBindTCP | accessNetConnectTCP

type landlockRulesetAttr struct {
	handledAccessFS uint64
}

type landlockPathBeneathAttr struct {
	allowedAccess uint64
	parentFD      int32
}

// landlockJail is an "armed but not yet applied" confinement profile,
// matching LandlockJail in the original: ruleset creation and rule
// insertion happen in newLandlockJail, leaving only the single irrevocable
// restrict_self call. Both steps run in the stage-2 trampoline process
// (runTrampoline), right before restrict; the parent does not build the
// ruleset, it only passes the allow-list to the stage-2 process.
type landlockJail struct {
	rulesetFD int
}

// newLandlockJail builds the ruleset and walks the allow-list, adding a
// path-beneath rule per entry. Ruleset creation itself requires a
// syscall but allocates no state the child needs beyond the returned FD.
func newLandlockJail(allowedReadPaths []string) (*landlockJail, error) {
	attr := landlockRulesetAttr{
		handledAccessFS: accessFSAllABIv1,
	}
	// Network handling is best-effort (ABI >= 4): try with it, fall back
	// without if the kernel rejects the larger attribute.
	fd, _, errno := unix.Syscall(sysLandlockCreateRuleset,
		uintptr(unsafe.Pointer(&landlockRulesetAttrWithNet{landlockRulesetAttr: attr, accessNet: accessNetAllABIv4})),
		unsafe.Sizeof(landlockRulesetAttrWithNet{}), 0)
	if errno != 0 {
		fd, _, errno = unix.Syscall(sysLandlockCreateRuleset,
			uintptr(unsafe.Pointer(&attr)), unsafe.Sizeof(attr), 0)
	}
	if errno != 0 {
		return nil, jailSetupErr("landlock_create_ruleset failed", errno)
	}
	rulesetFD := int(fd)

	for _, path := range allowedReadPaths {
		if err := addPathBeneathRule(rulesetFD, path, accessFSReadOnly|accessFSExecute); err != nil {
			unix.Close(rulesetFD)
			return nil, err
		}
	}

	return &landlockJail{rulesetFD: rulesetFD}, nil
}

// landlockRulesetAttrWithNet is the ABI v4+ variant of the ruleset
// attribute structure, which adds the network-access bitmask after the
// filesystem one.
type landlockRulesetAttrWithNet struct {
	landlockRulesetAttr
	accessNet uint64
}

func addPathBeneathRule(rulesetFD int, path string, access uint64) error {
	parentFD, err := unix.Open(path, unix.O_PATH|unix.O_CLOEXEC, 0)
	if err != nil {
		return jailSetupErr("open allow-list path for landlock rule: "+path, err)
	}
	defer unix.Close(parentFD)

	// The kernel rejects directory-only rights (ReadDir) on a rule whose
	// path is not a directory.
	var st unix.Stat_t
	if err := unix.Fstat(parentFD, &st); err == nil && st.Mode&unix.S_IFMT != unix.S_IFDIR {
		access &^= accessFSReadDir
	}

	rule := landlockPathBeneathAttr{
		allowedAccess: access,
		parentFD:      int32(parentFD),
	}
	_, _, errno := unix.Syscall6(sysLandlockAddRule, uintptr(rulesetFD),
		landlockRuleTypePathBeneath, uintptr(unsafe.Pointer(&rule)), 0, 0, 0)
	if errno != 0 {
		return jailSetupErr("landlock_add_rule failed for "+path, errno)
	}
	return nil
}

// restrict commits the ruleset. This consumes the jail (by raw FD number,
// since Go has no linear-type enforcement) and must run in the forked
// child's address space — here, the stage-2 trampoline — immediately
// before descriptor closure and exec. On failure the caller must exit with
// a fixed status code; this function never returns an error to log,
// because no I/O channel can be trusted once this has been attempted.
func (j *landlockJail) restrict() bool {
	// landlock_restrict_self requires no_new_privs (or CAP_SYS_ADMIN).
	if err := unix.Prctl(unix.PR_SET_NO_NEW_PRIVS, 1, 0, 0, 0); err != nil {
		return false
	}
	_, _, errno := unix.Syscall(sysLandlockRestrictSelf, uintptr(j.rulesetFD), 0, 0)
	return errno == 0
}

// fd returns the ruleset's underlying file descriptor. This must not be
// closed by the generic close-sweep until after restrict() commits.
func (j *landlockJail) fd() int { return j.rulesetFD }

func (j *landlockJail) close() {
	if j.rulesetFD >= 0 {
		unix.Close(j.rulesetFD)
		j.rulesetFD = -1
	}
}
