//go:build windows

package sandbox

import (
	"fmt"
	"io"
	"os"
	"strings"
	"unsafe"

	"golang.org/x/sys/windows"
)

// sandboxHandlesEnv is the environment variable the child can consult to
// find any non-std handles passed to it, in "FD:0xHANDLE;" entries — Windows
// has no fd-number convention beyond 0/1/2, so anything else has to be
// delivered out of band.
const sandboxHandlesEnv = "SANDBOX_HANDLES"

type streamDirection int

const (
	dirToChild streamDirection = iota
	dirFromChild
)

// winFd is one piped or pass-through handle: parentHandle is kept (and
// closed) by the parent, childHandle is the one made inheritable and
// listed in the attribute list's handle allow-list.
type winFd struct {
	fd            uint32
	dir           streamDirection
	parentHandle  windows.Handle
	hasParent     bool
	childHandle   windows.Handle
	hasChild      bool
}

// newWinPipe creates a fresh, initially non-inheritable pipe and marks only
// the child-bound end as inheritable, matching WinFd::new in the original:
// flipping inheritance on both ends of a shared pipe object is avoided
// because it would let handle inheritance leak into unrelated children if
// multiple sandboxes run concurrently.
func newWinPipe(fd uint32, dir streamDirection) (*winFd, error) {
	sa := &windows.SecurityAttributes{
		Length:        uint32(unsafe.Sizeof(windows.SecurityAttributes{})),
		InheritHandle: 0,
	}
	var r, w windows.Handle
	if err := windows.CreatePipe(&r, &w, sa, 0); err != nil {
		return nil, jailSetupErr("CreatePipe", err)
	}

	switch dir {
	case dirToChild:
		if err := allowInherit(r); err != nil {
			return nil, err
		}
		return &winFd{fd: fd, dir: dir, parentHandle: w, hasParent: true, childHandle: r, hasChild: true}, nil
	default:
		if err := allowInherit(w); err != nil {
			return nil, err
		}
		return &winFd{fd: fd, dir: dir, parentHandle: r, hasParent: true, childHandle: w, hasChild: true}, nil
	}
}

// newWinStdPassthrough duplicates the parent's own std handle for
// KeepInChild semantics, marking only the duplicate inheritable so the
// original standard handle's inheritability is untouched.
func newWinStdPassthrough(fd uint32) (*winFd, error) {
	var stdHandle uint32
	var dir streamDirection
	switch fd {
	case 0:
		stdHandle, dir = windows.STD_INPUT_HANDLE, dirToChild
	case 1:
		stdHandle, dir = windows.STD_OUTPUT_HANDLE, dirFromChild
	case 2:
		stdHandle, dir = windows.STD_ERROR_HANDLE, dirFromChild
	default:
		return nil, jailSetupErr("windows cannot pass through arbitrary handles", nil)
	}
	parent, err := windows.GetStdHandle(stdHandle)
	if err != nil || parent == 0 || parent == windows.InvalidHandle {
		return nil, jailSetupErr("GetStdHandle", err)
	}
	var child windows.Handle
	proc := windows.CurrentProcess()
	if err := windows.DuplicateHandle(proc, parent, proc, &child, 0, true, windows.DUPLICATE_SAME_ACCESS); err != nil {
		return nil, jailSetupErr("DuplicateHandle for passthrough", err)
	}
	return &winFd{fd: fd, dir: dir, hasParent: false, childHandle: child, hasChild: true}, nil
}

func allowInherit(h windows.Handle) error {
	if err := windows.SetHandleInformation(h, windows.HANDLE_FLAG_INHERIT, windows.HANDLE_FLAG_INHERIT); err != nil {
		return jailSetupErr("SetHandleInformation (allow inherit)", err)
	}
	return nil
}

// envVal renders "FD:0xHEX;" for the SANDBOX_HANDLES block.
func (w *winFd) envVal() string {
	if !w.hasChild {
		return ""
	}
	return fmt.Sprintf("%d:0x%x;", w.fd, uint64(w.childHandle))
}

func (w *winFd) close() {
	if w.hasParent {
		windows.CloseHandle(w.parentHandle)
		w.hasParent = false
	}
	if w.hasChild {
		windows.CloseHandle(w.childHandle)
		w.hasChild = false
	}
}

// asReader/asWriter take the parent-side handle, the same one-shot "take"
// semantics as Child.TakeStreamFromChild/ToChild.
func (w *winFd) asReader() io.Reader {
	if !w.hasParent || w.dir != dirFromChild {
		return nil
	}
	f := os.NewFile(uintptr(w.parentHandle), fmt.Sprintf("fd%d", w.fd))
	w.hasParent = false
	return f
}

func (w *winFd) asWriter() io.WriteCloser {
	if !w.hasParent || w.dir != dirToChild {
		return nil
	}
	f := os.NewFile(uintptr(w.parentHandle), fmt.Sprintf("fd%d", w.fd))
	w.hasParent = false
	return f
}

// windowsFdSet is everything buildWindowsFdWiring assembles from an FDSet:
// std handles are routed through STARTUPINFOEX, everything else through the
// SANDBOX_HANDLES environment variable, and all of it lands in the same
// attribute-list handle allow-list.
type windowsFdSet struct {
	stdin, stdout, stderr *winFd
	others                map[uint32]*winFd
	allowedHandles        []windows.Handle
	handleEnvBlock        string
}

func buildWindowsFdWiring(fds FDSet) (*windowsFdSet, error) {
	var stdin, stdout, stderr *winFd
	others := map[uint32]*winFd{}

	for _, entry := range fds.Entries() {
		switch entry.FD {
		case 0:
			f, err := stdFd(0, entry.Mode, dirToChild)
			if err != nil {
				return nil, err
			}
			stdin = f
		case 1:
			f, err := stdFd(1, entry.Mode, dirFromChild)
			if err != nil {
				return nil, err
			}
			stdout = f
		case 2:
			f, err := stdFd(2, entry.Mode, dirFromChild)
			if err != nil {
				return nil, err
			}
			stderr = f
		default:
			switch entry.Mode {
			case FDNull:
			case FDKeepInChild:
				return nil, jailSetupErr("windows cannot pass through arbitrary handles", nil)
			case FDToChild:
				f, err := newWinPipe(entry.FD, dirToChild)
				if err != nil {
					return nil, err
				}
				others[entry.FD] = f
			case FDFromChild:
				f, err := newWinPipe(entry.FD, dirFromChild)
				if err != nil {
					return nil, err
				}
				others[entry.FD] = f
			}
		}
	}

	set := &windowsFdSet{stdin: stdin, stdout: stdout, stderr: stderr, others: others}
	var envParts []string
	for _, f := range others {
		if f.hasChild {
			set.allowedHandles = append(set.allowedHandles, f.childHandle)
		}
		if v := f.envVal(); v != "" {
			envParts = append(envParts, v)
		}
	}
	for _, f := range []*winFd{stdin, stdout, stderr} {
		if f != nil && f.hasChild {
			set.allowedHandles = append(set.allowedHandles, f.childHandle)
		}
	}
	set.handleEnvBlock = strings.Join(envParts, "")
	return set, nil
}

func stdFd(fd uint32, mode FDMode, dir streamDirection) (*winFd, error) {
	switch mode {
	case FDNull:
		return nil, nil
	case FDKeepInChild:
		return newWinStdPassthrough(fd)
	case FDToChild:
		if dir != dirToChild {
			return nil, jailSetupErr(fmt.Sprintf("fd %d marked as write-to-child but is output-only", fd), nil)
		}
		return newWinPipe(fd, dir)
	case FDFromChild:
		if dir != dirFromChild {
			return nil, jailSetupErr(fmt.Sprintf("fd %d marked as read-from-child but is input-only", fd), nil)
		}
		return newWinPipe(fd, dir)
	}
	return nil, nil
}

// windowsChild implements Child for a job-object-confined Windows process.
type windowsChild struct {
	fds        *windowsFdSet
	supervisor *jobSupervisor
}

var _ Child = (*windowsChild)(nil)

func (c *windowsChild) Terminate() error {
	return c.supervisor.terminate()
}

func (c *windowsChild) TakeStreamFromChild(fd uint32) io.Reader {
	switch fd {
	case 0:
		return nil // stdin is a parent writer, not a reader.
	case 1:
		if c.fds.stdout == nil {
			return nil
		}
		return c.fds.stdout.asReader()
	case 2:
		if c.fds.stderr == nil {
			return nil
		}
		return c.fds.stderr.asReader()
	default:
		f, ok := c.fds.others[fd]
		if !ok {
			return nil
		}
		return f.asReader()
	}
}

func (c *windowsChild) TakeStreamToChild(fd uint32) io.WriteCloser {
	switch fd {
	case 0:
		if c.fds.stdin == nil {
			return nil
		}
		return c.fds.stdin.asWriter()
	case 1, 2:
		return nil // stdout/stderr are parent readers, not writers.
	default:
		f, ok := c.fds.others[fd]
		if !ok {
			return nil
		}
		return f.asWriter()
	}
}

func (c *windowsChild) ExitStatus() (int, bool) {
	return c.supervisor.exitStatus()
}
