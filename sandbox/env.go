// Package sandbox launches a native executable under the strongest
// OS-level confinement available: no filesystem writes, no filesystem
// reads outside a discovered allow-list, no network access, no signalling
// of other processes, and tightly controlled standard/auxiliary I/O.
package sandbox

import (
	"fmt"
	"sort"
	"strings"
)

// FDMode describes how a logical file descriptor is handled across the
// parent/child boundary.
type FDMode int

const (
	// FDNull means the logical FD is not present in the child at all.
	FDNull FDMode = iota
	// FDToChild means data flows from the parent to the child; the parent
	// keeps a writer, the child receives a reader duplicated onto the FD.
	FDToChild
	// FDFromChild means data flows from the child to the parent; the parent
	// keeps a reader, the child receives a writer duplicated onto the FD.
	FDFromChild
	// FDKeepInChild preserves the parent's own descriptor at that number in
	// the child without redirection. POSIX only; meaningless on Windows
	// beyond descriptors 0/1/2.
	FDKeepInChild
)

func (m FDMode) String() string {
	switch m {
	case FDNull:
		return "null"
	case FDToChild:
		return "to-child"
	case FDFromChild:
		return "from-child"
	case FDKeepInChild:
		return "keep-in-child"
	default:
		return "unknown"
	}
}

// FD is a single logical file descriptor request.
type FD struct {
	FD   uint32
	Mode FDMode
}

// FDSet is an ordered, deduplicated collection of FD requests. The zero
// value is an empty set.
type FDSet struct {
	fds []FD
}

// StdFDSet returns the conventional stdin/stdout/stderr wiring: stdin flows
// to the child, stdout and stderr flow back to the parent.
func StdFDSet() FDSet {
	return NewFDSet([]FD{
		{FD: 0, Mode: FDToChild},
		{FD: 1, Mode: FDFromChild},
		{FD: 2, Mode: FDFromChild},
	})
}

// NewFDSet builds an FDSet from an explicit list. It panics if the same
// logical FD appears twice — this is a programmer error, not a runtime
// condition.
func NewFDSet(fds []FD) FDSet {
	seen := make(map[uint32]struct{}, len(fds))
	cp := make([]FD, len(fds))
	copy(cp, fds)
	for _, f := range cp {
		if _, ok := seen[f.FD]; ok {
			panic(fmt.Sprintf("sandbox: duplicate logical fd %d in FDSet", f.FD))
		}
		seen[f.FD] = struct{}{}
	}
	return FDSet{fds: cp}
}

// Entries returns the FD requests in a stable order (by logical FD number).
func (s FDSet) Entries() []FD {
	out := make([]FD, len(s.fds))
	copy(out, s.fds)
	sort.Slice(out, func(i, j int) bool { return out[i].FD < out[j].FD })
	return out
}

// Len reports the number of FD requests in the set.
func (s FDSet) Len() int { return len(s.fds) }

// LaunchEnv is the immutable launch request: constructed by the caller,
// consumed by exactly one call to SandboxChild.
type LaunchEnv struct {
	// Cmd is the command to run, resolved against PATH if it has no
	// directory separator.
	Cmd string
	// Args is the ordered argument sequence (argv[1:] — argv[0] is fixed
	// by the Launcher, never leaked from Cmd).
	Args []string
	// Cwd is the working directory the child chdir()s into before
	// confinement commits.
	Cwd string
	// Env is the environment mapping. Keys must be unique; on Windows,
	// uniqueness is case-insensitive.
	Env map[string]string
	// FDs describes the auxiliary file descriptor wiring.
	FDs FDSet
}

// EnvSlice renders Env as sorted "KEY=VALUE" entries, sorted
// case-insensitively when caseInsensitiveSort is set. The Linux launcher
// uses it (case-sensitive) to build the target's envp; the Windows
// environment block encoder does its own sorting.
func (e LaunchEnv) EnvSlice(caseInsensitiveSort bool) []string {
	keys := make([]string, 0, len(e.Env))
	for k := range e.Env {
		keys = append(keys, k)
	}
	if caseInsensitiveSort {
		sort.Slice(keys, func(i, j int) bool {
			return strings.ToLower(keys[i]) < strings.ToLower(keys[j])
		})
	} else {
		sort.Strings(keys)
	}
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		out = append(out, k+"="+e.Env[k])
	}
	return out
}
