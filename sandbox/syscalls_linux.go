//go:build linux

package sandbox

// LinuxSyscallAllowList documents the syscalls a sandboxed process is
// expected to need for ordinary dynamic-linking, libc startup, and basic
// thread setup, even if it never spawns a thread itself. This package does
// not install a seccomp filter from it — Landlock alone is the confinement
// mechanism applied — but a caller wiring its own seccomp-bpf layer
// on top (e.g. via a filter library) can use this as the starting
// allow-list, the same set the original profile struck after finding that
// a strict minimal list broke ordinary ELF loading.
var LinuxSyscallAllowList = []string{
	"read", "write", "readv", "writev", "close",
	"pread64", "pwrite64",
	"access", "faccessat", "faccessat2",
	"fcntl", "lseek",
	"exit", "exit_group",
	"brk", "mmap", "mprotect", "mremap", "munmap", "madvise",
	"rt_sigaction", "rt_sigprocmask", "rt_sigreturn", "sigaltstack",
	"arch_prctl",
	"set_tid_address", "set_robust_list", "futex", "rseq",
	"getpid", "gettid", "getrandom",
	"fstat", "fstatat", "newfstatat",
	"prlimit64", "poll",

	// Relies on fd inheritance and the pre-exec descriptor sweep to keep
	// this from being a broad escape hatch.
	"ioctl",

	"execve",

	// Lazy-loaded libraries need limited open/openat; Landlock's
	// path-beneath rules are what keep this from reaching outside the
	// allow-list, not this list itself.
	"open", "openat", "openat2",
}
