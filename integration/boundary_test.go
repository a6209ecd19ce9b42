//go:build linux

package integration

import (
	"fmt"
	"net"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sandboxexec/sandboxexec/sandbox"
)

func assertExpected(t *testing.T, state *executionState, code int, runErr error, exp expected) {
	t.Helper()
	handleStart, sentInit, readStart, readEnd, observedExit := state.snapshot()
	assert.Equal(t, exp.handleStart, handleStart, "handle started")
	assert.Equal(t, exp.sentInit, sentInit, "sent init byte")
	assert.Equal(t, exp.readStart, readStart, "read '1' from child")
	assert.Equal(t, exp.readEnd, readEnd, "read '2' from child")

	wantZero := false
	for _, c := range exp.exitCodes {
		if c == 0 {
			wantZero = true
		}
	}
	if wantZero {
		require.NoError(t, runErr)
	} else {
		assert.Contains(t, exp.exitCodes, code, "sandbox_child return code")
	}
	if observedExit != nil {
		assert.Contains(t, exp.exitCodes, *observedExit, "observed child exit code")
	}
}

// TestNoop exercises the ordinary confined I/O path end to end: stdin/stdout
// piped, stderr passed straight through via FDKeepInChild.
func TestNoop(t *testing.T) {
	handler, state := newTestHandler()
	env := sandbox.LaunchEnv{
		Cmd: findExec(t, "noop"),
		Cwd: ".",
		Env: map[string]string{},
		FDs: sandbox.NewFDSet([]sandbox.FD{
			{FD: 0, Mode: sandbox.FDToChild},
			{FD: 1, Mode: sandbox.FDFromChild},
			{FD: 2, Mode: sandbox.FDKeepInChild},
		}),
	}
	code, err := sandbox.SandboxChild(env, handler)
	assertExpected(t, state, code, err, succeeds())
}

// TestFileRead verifies a read outside the dependency allow-list is
// blocked.
func TestFileRead(t *testing.T) {
	tmp, err := os.CreateTemp("", "sandboxexec-fileread-")
	require.NoError(t, err)
	defer os.Remove(tmp.Name())
	_, err = tmp.WriteString("contents\n")
	require.NoError(t, err)
	require.NoError(t, tmp.Close())

	handler, state := newTestHandler()
	env := sandbox.LaunchEnv{
		Cmd:  findExec(t, "fileread"),
		Args: []string{tmp.Name()},
		Cwd:  ".",
		Env:  map[string]string{},
		FDs:  sandbox.StdFDSet(),
	}
	code, err := sandbox.SandboxChild(env, handler)
	assertExpected(t, state, code, err, blocked())
}

// TestExecSelf verifies re-executing the confined binary itself is blocked.
func TestExecSelf(t *testing.T) {
	handler, state := newTestHandler()
	env := sandbox.LaunchEnv{
		Cmd:  findExec(t, "execself"),
		Cwd:  ".",
		Env:  map[string]string{},
		FDs:  sandbox.StdFDSet(),
	}
	code, err := sandbox.SandboxChild(env, handler)
	assertExpected(t, state, code, err, blocked())
}

// TestSysinfo verifies machine-id reads, /proc crawling, and network
// interface enumeration are all blocked.
func TestSysinfo(t *testing.T) {
	handler, state := newTestHandler()
	env := sandbox.LaunchEnv{
		Cmd:  findExec(t, "sysinfo"),
		Cwd:  ".",
		Env:  map[string]string{},
		FDs:  sandbox.StdFDSet(),
	}
	code, err := sandbox.SandboxChild(env, handler)
	assertExpected(t, state, code, err, blocked())
}

// TestTCPIP verifies outbound TCP connect is blocked: a listener on
// localhost records zero accepted connections while the child's connect
// attempt is denied by Landlock's network rights.
func TestTCPIP(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	connCount := 0
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			connCount++
			conn.Close()
		}
	}()

	handler, state := newTestHandler()
	env := sandbox.LaunchEnv{
		Cmd:  findExec(t, "tcpip"),
		Args: []string{ln.Addr().String()},
		Cwd:  ".",
		Env:  map[string]string{},
		FDs:  sandbox.StdFDSet(),
	}
	code, err := sandbox.SandboxChild(env, handler)
	ln.Close()
	<-done

	assertExpected(t, state, code, err, blocked())
	assert.Equal(t, 0, connCount, fmt.Sprintf("child connected to local TCP server at %s", ln.Addr()))
}

// TestHandlerEarlyReturn verifies that when the handler returns before
// reading the child's second byte, the Launcher still force-terminates and
// reaps it.
func TestHandlerEarlyReturn(t *testing.T) {
	early := sandbox.HandlerFunc(func(child sandbox.Child) error {
		out := child.TakeStreamToChild(0)
		in := child.TakeStreamFromChild(1)
		require.NotNil(t, out)
		require.NotNil(t, in)

		if _, err := out.Write([]byte{'0'}); err != nil {
			return err
		}
		_ = out.Close()

		var buf [1]byte
		if _, err := in.Read(buf[:]); err != nil || buf[0] != '1' {
			return errBadHandshake
		}
		return nil
	})

	env := sandbox.LaunchEnv{
		Cmd: findExec(t, "noop"),
		Cwd: ".",
		Env: map[string]string{},
		FDs: sandbox.StdFDSet(),
	}
	code, err := sandbox.SandboxChild(env, early)
	require.NoError(t, err)
	assert.Equal(t, 128+9, code, "terminated child should report a SIGKILL-coded exit")
}
