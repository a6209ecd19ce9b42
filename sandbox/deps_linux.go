//go:build linux

package sandbox

import (
	"debug/elf"
	"os"
	"os/exec"
	"path/filepath"
)

// dependency mirrors the original `Dependency` record: a declared path, an
// optional resolved path, and whether it is required.
type dependency struct {
	declared string
	resolved string // empty if unresolved
	required bool
}

func (d dependency) exists() bool { return d.resolved != "" }

// invalid reports a required-but-unresolved dependency — fatal for the
// launch.
func (d dependency) invalid() bool { return d.required && d.resolved == "" }

// bestPath returns the resolved path, falling back to the declared path.
func (d dependency) bestPath() string {
	if d.resolved != "" {
		return d.resolved
	}
	return d.declared
}

// resolveExecutable resolves cmd against PATH, the way `which::which` does
// in the original, and the way exec.LookPath does in Go.
func resolveExecutable(cmd string) (string, error) {
	if filepath.IsAbs(cmd) || filepath.Dir(cmd) != "." {
		if _, err := os.Stat(cmd); err != nil {
			return "", ioErr("executable not found", err)
		}
		abs, err := filepath.Abs(cmd)
		if err != nil {
			return "", ioErr("resolve absolute path", err)
		}
		return abs, nil
	}
	p, err := exec.LookPath(cmd)
	if err != nil {
		return "", ioErr("executable not found on PATH", err)
	}
	return p, nil
}

// findBinDependencies discovers the executable and every shared library it
// (transitively) declares, the way `find_bin_dependencies` does in the
// original. Libraries are discovered only through DT_NEEDED entries of the
// executable and of each resolved library, so every library found is marked
// required; libraries loaded without a DT_NEEDED entry (e.g. via dlopen) are
// not discovered and no dependency is ever marked optional. Dependency-graph
// analysis errors degrade gracefully to an executable-only list.
func findBinDependencies(execPath string) []dependency {
	execDep := dependency{declared: execPath, resolved: execPath, required: true}
	ret := []dependency{execDep}

	visited := map[string]struct{}{execPath: {}}
	required := map[string]struct{}{}

	queue := []string{execPath}
	libPaths := map[string]string{} // declared name -> resolved path, for ones we've found
	allDeclared := []string{}

	searchPaths := ldSearchPaths()

	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]

		f, err := elf.Open(cur)
		if err != nil {
			// Degrade gracefully: not an ELF we can introspect, or
			// unreadable. Keep what we have so far.
			continue
		}
		needed, nerr := f.DynString(elf.DT_NEEDED)
		f.Close()
		if nerr != nil {
			continue
		}
		for _, name := range needed {
			required[name] = struct{}{}
			if _, seen := libPaths[name]; seen {
				continue
			}
			resolved := searchLibrary(name, searchPaths)
			libPaths[name] = resolved
			allDeclared = append(allDeclared, name)
			if resolved != "" {
				if _, already := visited[resolved]; !already {
					visited[resolved] = struct{}{}
					queue = append(queue, resolved)
				}
			}
		}
	}

	dedup := map[string]struct{}{execPath: {}}
	for _, name := range allDeclared {
		resolved := libPaths[name]
		_, req := required[name]
		dep := dependency{declared: name, resolved: resolved, required: req}
		key := dep.bestPath()
		if _, dup := dedup[key]; dup {
			continue
		}
		dedup[key] = struct{}{}
		ret = append(ret, dep)
	}
	return ret
}

// ldSearchPaths returns a minimal, conventional dynamic-linker search path.
// A production resolver would also parse /etc/ld.so.cache; this walks the
// well-known directories, which covers the overwhelming majority of real
// binaries and degrades gracefully when it doesn't.
func ldSearchPaths() []string {
	paths := []string{
		"/lib", "/lib64", "/usr/lib", "/usr/lib64",
		"/lib/x86_64-linux-gnu", "/usr/lib/x86_64-linux-gnu",
		"/lib/aarch64-linux-gnu", "/usr/lib/aarch64-linux-gnu",
	}
	if ldPath := os.Getenv("LD_LIBRARY_PATH"); ldPath != "" {
		paths = append(filepath.SplitList(ldPath), paths...)
	}
	return paths
}

func searchLibrary(name string, searchPaths []string) string {
	if filepath.IsAbs(name) {
		if _, err := os.Stat(name); err == nil {
			return name
		}
		return ""
	}
	for _, dir := range searchPaths {
		candidate := filepath.Join(dir, name)
		if _, err := os.Stat(candidate); err == nil {
			return candidate
		}
	}
	return ""
}

// ResolveReadAllowList resolves cmd against PATH, walks its shared-library
// dependency closure, and returns the paths a launch of cmd would grant
// read+execute access to under confinement. It performs the same
// discovery launch does, exposed standalone so a caller can inspect the
// allow-list without actually starting the child.
func ResolveReadAllowList(cmd string) ([]string, error) {
	execPath, err := resolveExecutable(cmd)
	if err != nil {
		return nil, err
	}
	return extractDependencies(findBinDependencies(execPath))
}

// extractDependencies validates the dependency list and returns the read
// allow-list: required-but-unresolved is fatal; optional-unresolved is
// silently dropped; resolved paths (required or not) are kept.
func extractDependencies(deps []dependency) ([]string, error) {
	var missing []string
	var ret []string
	for _, d := range deps {
		switch {
		case d.invalid():
			missing = append(missing, d.bestPath())
		case d.exists():
			ret = append(ret, d.bestPath())
		default:
			// optional and unresolved: silently dropped.
		}
	}
	if len(missing) > 0 {
		msg := "missing library dependencies: "
		for i, m := range missing {
			if i > 0 {
				msg += ", "
			}
			msg += m
		}
		return nil, jailSetupErr(msg, nil)
	}
	return ret, nil
}
