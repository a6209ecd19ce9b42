//go:build windows

package sandbox

import (
	"runtime"
	"unicode/utf16"
	"unsafe"

	"golang.org/x/sys/windows"
)

// The attribute-list and restricted-token APIs are declared here by hand
// rather than through golang.org/x/sys/windows's higher-level wrappers,
// the same rationale as the raw Landlock syscalls on Linux (DESIGN.md):
// CreateRestrictedToken, the ProcThreadAttributeList family, and
// CreateProcessAsUserW aren't uniformly exposed across the toolchain
// versions this module might build against, so they're resolved directly
// off advapi32.dll/kernel32.dll.
var (
	modadvapi32 = windows.NewLazySystemDLL("advapi32.dll")
	modkernel32 = windows.NewLazySystemDLL("kernel32.dll")

	procCreateRestrictedToken             = modadvapi32.NewProc("CreateRestrictedToken")
	procInitializeProcThreadAttributeList = modkernel32.NewProc("InitializeProcThreadAttributeList")
	procUpdateProcThreadAttribute         = modkernel32.NewProc("UpdateProcThreadAttribute")
	procDeleteProcThreadAttributeList     = modkernel32.NewProc("DeleteProcThreadAttributeList")
	procCreateProcessAsUserW              = modadvapi32.NewProc("CreateProcessAsUserW")
)

const disableMaxPrivilege = 0x1

const procThreadAttributeHandleList = 0x00020002

// jailProcessInfo holds what newWindowsChild needs to monitor and terminate
// the launched process: the process/thread handles from
// CreateProcessAsUser, and the job object everything was assigned to so a
// single TerminateJobObject kills the whole tree even if the sandboxed
// program manages to spawn children of its own.
type jailProcessInfo struct {
	process windows.Handle
	thread  windows.Handle
	job     windows.Handle
}

// launchRestricted mirrors launch_restricted in the original almost call
// for call: build a DISABLE_MAX_PRIVILEGE restricted token (with the
// curated well-known SIDs disabled) from the current process's own token,
// build an attribute list carrying both the explicit handle allow-list
// (the actual inheritance gate — the bInheritHandles argument to
// CreateProcessAsUserW just permits inheritance to happen at all) and the
// AppContainer security capabilities, start suspended, assign to a
// KILL_ON_JOB_CLOSE job with ActiveProcessLimit=1, then resume.
func launchRestricted(exePath, cmdLine, cwd, envBlock string, stdin, stdout, stderr windows.Handle, haveStdin, haveStdout, haveStderr bool, allowedHandles []windows.Handle, container *appContainer) (*jailProcessInfo, error) {
	var procToken windows.Token
	if err := windows.OpenProcessToken(windows.CurrentProcess(), windows.TOKEN_ALL_ACCESS, &procToken); err != nil {
		return nil, jailSetupErr("OpenProcessToken", err)
	}
	defer procToken.Close()

	restricted, err := createRestrictedToken(procToken)
	if err != nil {
		return nil, err
	}
	defer windows.CloseHandle(restricted)

	attrList, attrBufs, err := buildAttributeList(allowedHandles, container)
	if err != nil {
		return nil, err
	}
	defer freeProcThreadAttributeList(attrList)
	_ = attrBufs

	exePathPtr, err := windows.UTF16PtrFromString(exePath)
	if err != nil {
		return nil, jailSetupErr("encode executable path", err)
	}
	cmdLineUTF16, err := windows.UTF16FromString(cmdLine)
	if err != nil {
		return nil, jailSetupErr("encode command line", err)
	}
	cwdPtr, err := windows.UTF16PtrFromString(cwd)
	if err != nil {
		return nil, jailSetupErr("encode working directory", err)
	}
	envUTF16 := stringToUTF16Block(envBlock)

	var si windowsStartupInfoEx
	si.StartupInfo.Cb = uint32(unsafe.Sizeof(si))
	si.AttributeList = attrList
	if haveStdin || haveStdout || haveStderr {
		si.StartupInfo.Flags |= windows.STARTF_USESTDHANDLES
		si.StartupInfo.StdInput = stdin
		si.StartupInfo.StdOutput = stdout
		si.StartupInfo.StdErr = stderr
	}

	var pi windows.ProcessInformation
	const createSuspended = 0x00000004
	const extendedStartupInfoPresent = 0x00080000
	const createUnicodeEnvironment = 0x00000400
	flags := uint32(createSuspended | extendedStartupInfoPresent | createUnicodeEnvironment)

	ret, _, callErr := procCreateProcessAsUserW.Call(
		uintptr(restricted),
		uintptr(unsafe.Pointer(exePathPtr)),
		uintptr(unsafe.Pointer(&cmdLineUTF16[0])),
		0, 0,
		uintptr(boolToInt(true)),
		uintptr(flags),
		uintptr(unsafe.Pointer(&envUTF16[0])),
		uintptr(unsafe.Pointer(cwdPtr)),
		uintptr(unsafe.Pointer(&si)),
		uintptr(unsafe.Pointer(&pi)),
	)
	if ret == 0 {
		return nil, jailSetupErr("CreateProcessAsUserW", callErr)
	}

	job, err := windows.CreateJobObject(nil, nil)
	if err != nil {
		windows.CloseHandle(pi.Thread)
		windows.CloseHandle(pi.Process)
		return nil, jailSetupErr("CreateJobObject", err)
	}

	var info windows.JOBOBJECT_EXTENDED_LIMIT_INFORMATION
	info.BasicLimitInformation.LimitFlags = windows.JOB_OBJECT_LIMIT_KILL_ON_JOB_CLOSE | windows.JOB_OBJECT_LIMIT_ACTIVE_PROCESS
	info.BasicLimitInformation.ActiveProcessLimit = 1
	if _, err := windows.SetInformationJobObject(job, windows.JobObjectExtendedLimitInformation,
		uintptr(unsafe.Pointer(&info)), uint32(unsafe.Sizeof(info))); err != nil {
		windows.CloseHandle(pi.Thread)
		windows.CloseHandle(pi.Process)
		windows.CloseHandle(job)
		return nil, jailSetupErr("SetInformationJobObject", err)
	}

	if err := windows.AssignProcessToJobObject(job, pi.Process); err != nil {
		windows.CloseHandle(pi.Thread)
		windows.CloseHandle(pi.Process)
		windows.CloseHandle(job)
		return nil, jailSetupErr("AssignProcessToJobObject", err)
	}

	windows.ResumeThread(pi.Thread)

	return &jailProcessInfo{process: pi.Process, thread: pi.Thread, job: job}, nil
}

// createRestrictedToken builds a DISABLE_MAX_PRIVILEGE token from base with
// the curated disabledWellKnownSIDs list disabled in it. Each SID is
// materialised via CreateWellKnownSid; a SID that can't be constructed on
// this system (e.g. absent on a given Windows edition) is skipped rather
// than failing the whole launch.
func createRestrictedToken(base windows.Token) (windows.Handle, error) {
	var disable []windows.SIDAndAttributes
	var bufs [][]byte // keep SID backing storage alive across the syscall
	for _, t := range disabledWellKnownSIDs {
		buf := make([]byte, 256)
		size := uint32(len(buf))
		sid := (*windows.SID)(unsafe.Pointer(&buf[0]))
		if err := windows.CreateWellKnownSid(t, nil, sid, &size); err != nil {
			continue
		}
		bufs = append(bufs, buf)
		disable = append(disable, windows.SIDAndAttributes{Sid: sid})
	}

	var disablePtr uintptr
	if len(disable) > 0 {
		disablePtr = uintptr(unsafe.Pointer(&disable[0]))
	}

	var restricted windows.Handle
	ret, _, callErr := procCreateRestrictedToken.Call(
		uintptr(base), disableMaxPrivilege,
		uintptr(len(disable)), disablePtr,
		0, 0, // DeletePrivilegeCount, PrivilegesToDelete
		0, 0, // RestrictedSidCount, SidsToRestrict
		uintptr(unsafe.Pointer(&restricted)),
	)
	runtime.KeepAlive(bufs)
	runtime.KeepAlive(disable)
	if ret == 0 {
		return 0, jailSetupErr("CreateRestrictedToken", callErr)
	}
	return restricted, nil
}

// windowsStartupInfoEx mirrors STARTUPINFOEXW: windows.StartupInfo followed
// by the attribute-list pointer. x/sys/windows defines StartupInfo but not
// the EX variant, so it's laid out here in the same field order the Win32
// struct uses.
type windowsStartupInfoEx struct {
	StartupInfo   windows.StartupInfo
	AttributeList uintptr
}

// securityCapabilities mirrors SECURITY_CAPABILITIES: the AppContainer SID
// plus a (here always empty, "zero capabilities") capability-SID list, used
// as the payload for the PROC_THREAD_ATTRIBUTE_SECURITY_CAPABILITIES
// attribute.
type securityCapabilities struct {
	appContainerSid *windows.SID
	capabilities    uintptr
	capabilityCount uint32
	reserved        uint32
}

const procThreadAttributeSecurityCapabilities = 0x00020009

// buildAttributeList assembles the PROC_THREAD_ATTRIBUTE_LIST passed via
// STARTUPINFOEX: the handle allow-list (at least one handle is required,
// since Windows rejects a zero-length handle attribute) and, if container
// is non-nil, the AppContainer security capabilities. Returns the backing
// buffers too so the caller can keep them alive until the attribute list
// itself is freed.
func buildAttributeList(handles []windows.Handle, container *appContainer) (uintptr, [][]byte, error) {
	if len(handles) == 0 {
		return 0, nil, jailSetupErr("windows process creation requires at least one allow-listed handle", nil)
	}

	attrCount := uintptr(1)
	if container != nil {
		attrCount = 2
	}

	var size uintptr
	procInitializeProcThreadAttributeList.Call(0, attrCount, 0, uintptr(unsafe.Pointer(&size)))
	buf := make([]byte, size)
	attrList := uintptr(unsafe.Pointer(&buf[0]))
	ret, _, callErr := procInitializeProcThreadAttributeList.Call(attrList, attrCount, 0, uintptr(unsafe.Pointer(&size)))
	if ret == 0 {
		return 0, nil, jailSetupErr("InitializeProcThreadAttributeList", callErr)
	}
	bufs := [][]byte{buf}

	cbSize := uintptr(len(handles)) * unsafe.Sizeof(handles[0])
	ret, _, callErr = procUpdateProcThreadAttribute.Call(
		attrList, 0, procThreadAttributeHandleList,
		uintptr(unsafe.Pointer(&handles[0])), cbSize, 0, 0,
	)
	if ret == 0 {
		freeProcThreadAttributeList(attrList)
		return 0, nil, jailSetupErr("UpdateProcThreadAttribute(HANDLE_LIST)", callErr)
	}

	if container != nil {
		sc := &securityCapabilities{appContainerSid: container.sid}
		scBuf := (*[unsafe.Sizeof(securityCapabilities{})]byte)(unsafe.Pointer(sc))[:]
		bufs = append(bufs, scBuf)
		ret, _, callErr = procUpdateProcThreadAttribute.Call(
			attrList, 0, procThreadAttributeSecurityCapabilities,
			uintptr(unsafe.Pointer(sc)), unsafe.Sizeof(*sc), 0, 0,
		)
		if ret == 0 {
			freeProcThreadAttributeList(attrList)
			return 0, nil, jailSetupErr("UpdateProcThreadAttribute(SECURITY_CAPABILITIES)", callErr)
		}
	}

	return attrList, bufs, nil
}

func freeProcThreadAttributeList(attrList uintptr) {
	if attrList != 0 {
		procDeleteProcThreadAttributeList.Call(attrList)
	}
}

// stringToUTF16Block encodes an already-NUL-delimited environment block
// (built by encodeEnvBlock) to UTF-16. It cannot use
// windows.UTF16FromString, which rejects embedded NUL bytes by design —
// this block relies on them as entry separators.
func stringToUTF16Block(s string) []uint16 {
	if s == "" {
		return []uint16{0, 0}
	}
	return utf16.Encode([]rune(s))
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
