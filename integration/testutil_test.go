//go:build linux

package integration

import (
	"os"
	"os/exec"
	"path/filepath"
	"testing"
)

// builtExecutables caches the temp-dir paths of the examples/violators
// binaries built once per test run, the way the original's util::find_exec
// assumes a pre-built test binary directory; here TestMain builds them
// itself so `go test ./integration/...` is self-contained.
var builtExecutables map[string]string

func TestMain(m *testing.M) {
	dir, err := os.MkdirTemp("", "sandboxexec-violators-")
	if err != nil {
		panic(err)
	}

	builtExecutables = map[string]string{}
	for _, name := range []string{"noop", "fileread", "execself", "tcpip", "sysinfo"} {
		out := filepath.Join(dir, name)
		cmd := exec.Command("go", "build", "-o", out, "github.com/sandboxexec/sandboxexec/examples/violators/"+name)
		cmd.Stdout = os.Stderr
		cmd.Stderr = os.Stderr
		if err := cmd.Run(); err != nil {
			panic("building " + name + ": " + err.Error())
		}
		builtExecutables[name] = out
	}

	code := m.Run()
	os.RemoveAll(dir)
	os.Exit(code)
}

func findExec(t *testing.T, name string) string {
	t.Helper()
	path, ok := builtExecutables[name]
	if !ok {
		t.Fatalf("no built executable registered for %q", name)
	}
	return path
}
