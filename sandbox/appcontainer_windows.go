//go:build windows

package sandbox

import (
	"fmt"

	"golang.org/x/sys/windows"
)

// userenv.dll hosts the AppContainer profile APIs; like the advapi32 and
// kernel32 procs in jail_windows.go, these aren't wrapped by
// golang.org/x/sys/windows, so they're resolved by name.
var (
	moduserenv = windows.NewLazySystemDLL("userenv.dll")

	procCreateAppContainerProfile = moduserenv.NewProc("CreateAppContainerProfile")
	procDeleteAppContainerProfile = moduserenv.NewProc("DeleteAppContainerProfile")
	procGetAppContainerFolderPath = moduserenv.NewProc("GetAppContainerFolderPath")
)

// appContainer is a created AppContainer profile: a SID scoped to this one
// launch, plus the profile's private folder (used to redirect
// LOCALAPPDATA/TEMP/TMP via the forced-environment-variable list below).
type appContainer struct {
	sid           *windows.SID
	profileFolder string
}

// disabledWellKnownSIDs are the powerful well-known group SIDs stripped
// from the restricted token: Administrators, Power Users, and the
// Backup/Account/Print/Network-Config/Remote-Desktop operator groups.
var disabledWellKnownSIDs = []windows.WELL_KNOWN_SID_TYPE{
	windows.WinBuiltinAdministratorsSid,
	windows.WinBuiltinPowerUsersSid,
	windows.WinBuiltinBackupOperatorsSid,
	windows.WinBuiltinAccountOperatorsSid,
	windows.WinBuiltinPrintOperatorsSid,
	windows.WinBuiltinNetworkConfigurationOperatorsSid,
	windows.WinBuiltinRemoteDesktopUsersSid,
}

// newAppContainerProfile creates a fresh AppContainer identified by
// displayName, appending an incrementing numeric suffix on a name
// collision until creation succeeds. Profiles are cheap and reusable, and
// intentionally left behind across launches.
func newAppContainerProfile(baseName, displayName, description string) (*appContainer, error) {
	var lastErr error
	for attempt := 0; attempt < 1000; attempt++ {
		name := baseName
		disp := displayName
		if attempt > 0 {
			name = fmt.Sprintf("%s-%d", baseName, attempt)
			disp = fmt.Sprintf("%s (%d)", displayName, attempt)
		}

		namePtr, err := windows.UTF16PtrFromString(name)
		if err != nil {
			return nil, jailSetupErr("encode AppContainer name", err)
		}
		dispPtr, err := windows.UTF16PtrFromString(disp)
		if err != nil {
			return nil, jailSetupErr("encode AppContainer display name", err)
		}
		descPtr, err := windows.UTF16PtrFromString(description)
		if err != nil {
			return nil, jailSetupErr("encode AppContainer description", err)
		}

		var sidPtr uintptr
		ret, _, callErr := procCreateAppContainerProfile.Call(
			uintptr(unsafePointerOf(namePtr)),
			uintptr(unsafePointerOf(dispPtr)),
			uintptr(unsafePointerOf(descPtr)),
			0, 0,
			uintptr(unsafePointerOf(&sidPtr)),
		)
		if ret == 0 {
			sid := (*windows.SID)(ptrFromUintptr(sidPtr))
			folder, ferr := appContainerFolderPath(sid)
			if ferr != nil {
				windows.FreeSid(sid)
				return nil, ferr
			}
			return &appContainer{sid: sid, profileFolder: folder}, nil
		}
		lastErr = callErr
		if callErr != windows.ERROR_ALREADY_EXISTS {
			return nil, jailSetupErr("CreateAppContainerProfile", callErr)
		}
		// Name collision: loop and retry with the next numeric suffix.
	}
	return nil, jailSetupErr("CreateAppContainerProfile: exhausted name suffixes", lastErr)
}

func appContainerFolderPath(sid *windows.SID) (string, error) {
	sidStr, err := windows.ConvertSidToStringSid(sid)
	if err != nil {
		return "", jailSetupErr("render AppContainer SID", err)
	}
	sidPtr, err := windows.UTF16PtrFromString(sidStr)
	if err != nil {
		return "", jailSetupErr("encode AppContainer SID", err)
	}
	var pathPtr uintptr
	ret, _, callErr := procGetAppContainerFolderPath.Call(
		uintptr(unsafePointerOf(sidPtr)),
		uintptr(unsafePointerOf(&pathPtr)),
	)
	if ret != 0 {
		return "", jailSetupErr("GetAppContainerFolderPath", callErr)
	}
	defer windows.CoTaskMemFree(ptrFromUintptr(pathPtr))
	return utf16PtrToString(pathPtr), nil
}

// close deletes the AppContainer profile. This is intentionally NOT
// called by a normal launch (profiles persist and are reused); it exists
// for callers/tests that want an isolated, single-use profile.
func (a *appContainer) close() {
	if a.sid == nil {
		return
	}
	if sidStr, err := windows.ConvertSidToStringSid(a.sid); err == nil {
		if namePtr, perr := windows.UTF16PtrFromString(sidStr); perr == nil {
			procDeleteAppContainerProfile.Call(uintptr(unsafePointerOf(namePtr)))
		}
	}
	windows.FreeSid(a.sid)
	a.sid = nil
}

// forcedEnv returns the environment variables AppContainer requires to be
// set, overriding any caller-supplied values: SystemRoot/WINDIR, a minimal
// Path derived from the system root, and LOCALAPPDATA/TEMP/TMP pointed
// into the AppContainer's own profile folder.
func (a *appContainer) forcedEnv() map[string]string {
	sysRoot := windowsSystemRoot()
	return map[string]string{
		"SystemRoot":   sysRoot,
		"WINDIR":       sysRoot,
		"Path":         sysRoot + `\system32;` + sysRoot,
		"LOCALAPPDATA": a.profileFolder,
		"TEMP":         a.profileFolder,
		"TMP":          a.profileFolder,
	}
}

func windowsSystemRoot() string {
	if v := windowsGetenv("SystemRoot"); v != "" {
		return v
	}
	return `C:\Windows`
}
