//go:build linux

package sandbox

import (
	"io"
	"os"

	"golang.org/x/sys/unix"
)

// pipeWiring is everything the Launcher needs both in the parent (the
// per-logical-fd stream map handed to the handler) and in the trampoline
// (the raw fd -> target fd dup2 table), built entirely before the spawn
// barrier so nothing needs to allocate past it.
type pipeWiring struct {
	// childFiles are passed as exec.Cmd ExtraFiles, in order; fdMap[i]
	// describes where childFiles[i] lands once duplicated in the
	// trampoline's fd table.
	childFiles []*os.File
	fdMap      []fdMapEntry

	// parent holds the parent-side stream for every non-Null entry, keyed
	// by logical fd.
	parent map[uint32]*parentStream
}

type parentStream struct {
	mode FDMode
	file *os.File
}

// fdMapEntry is serialized into the trampoline config: ChildFD is the raw
// fd number the child side will see once ExtraFiles is wired by exec.Cmd
// (3 + config-fd-slot + index), TargetFD is the logical fd it must be
// duplicated onto.
type fdMapEntry struct {
	ChildFD  int    `json:"child_fd"`
	TargetFD uint32 `json:"target_fd"`
}

// buildPipeWiring creates one pipe per ToChild/FromChild entry and wires
// KeepInChild entries to the parent's own live descriptor at that number.
// extraFileBase is the fd number the first entry in childFiles will land on
// inside the child (i.e. where exec.Cmd's ExtraFiles begin, after any
// config fd).
func buildPipeWiring(fds FDSet, extraFileBase int) (*pipeWiring, error) {
	w := &pipeWiring{parent: make(map[uint32]*parentStream)}

	for _, entry := range fds.Entries() {
		switch entry.Mode {
		case FDNull:
			continue
		case FDToChild:
			r, wr, err := os.Pipe()
			if err != nil {
				return nil, ioErr("create pipe", err)
			}
			w.childFiles = append(w.childFiles, r)
			w.fdMap = append(w.fdMap, fdMapEntry{ChildFD: extraFileBase + len(w.childFiles) - 1, TargetFD: entry.FD})
			w.parent[entry.FD] = &parentStream{mode: FDToChild, file: wr}
		case FDFromChild:
			r, wr, err := os.Pipe()
			if err != nil {
				return nil, ioErr("create pipe", err)
			}
			w.childFiles = append(w.childFiles, wr)
			w.fdMap = append(w.fdMap, fdMapEntry{ChildFD: extraFileBase + len(w.childFiles) - 1, TargetFD: entry.FD})
			w.parent[entry.FD] = &parentStream{mode: FDFromChild, file: r}
		case FDKeepInChild:
			// Duplicate rather than wrap the parent's live fd directly: the
			// child-ends cleanup below closes every entry in childFiles once
			// the child has its own copy, and that must never be the
			// parent's only handle onto its own fd (e.g. its real stderr).
			dupFD, err := unix.Dup(int(entry.FD))
			if err != nil {
				return nil, jailSetupErr("dup keep-in-child fd", err)
			}
			f := os.NewFile(uintptr(dupFD), "kept-fd")
			if f == nil {
				return nil, jailSetupErr("invalid keep-in-child fd", nil)
			}
			w.childFiles = append(w.childFiles, f)
			w.fdMap = append(w.fdMap, fdMapEntry{ChildFD: extraFileBase + len(w.childFiles) - 1, TargetFD: entry.FD})
			// No parent-side stream: KeepInChild is pass-through only.
		}
	}
	return w, nil
}

// closeChildEndsInParent drops the parent's references to the pipe ends
// that now live in the child: the opposite end in the parent is dropped
// immediately after the child starts, here right after Start().
func (w *pipeWiring) closeChildEndsInParent() {
	for _, f := range w.childFiles {
		_ = f.Close()
	}
}

// linuxChild implements Child for a POSIX sandboxed process.
type linuxChild struct {
	pid        int
	streams    map[uint32]*parentStream
	supervisor *posixSupervisor
}

var _ Child = (*linuxChild)(nil)

func (c *linuxChild) Terminate() error {
	return c.supervisor.terminate()
}

func (c *linuxChild) TakeStreamFromChild(fd uint32) io.Reader {
	s, ok := c.streams[fd]
	if !ok || s.mode != FDFromChild || s.file == nil {
		return nil
	}
	f := s.file
	s.file = nil
	return f
}

func (c *linuxChild) TakeStreamToChild(fd uint32) io.WriteCloser {
	s, ok := c.streams[fd]
	if !ok || s.mode != FDToChild || s.file == nil {
		return nil
	}
	f := s.file
	s.file = nil
	return f
}

func (c *linuxChild) ExitStatus() (int, bool) {
	return c.supervisor.exitStatus()
}
