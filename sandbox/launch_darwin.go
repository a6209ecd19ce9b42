//go:build darwin

package sandbox

// macOS has no supported confinement profile: there is no Landlock
// equivalent wired up here, and the Seatbelt sandbox profile language
// Apple ships is deprecated and intentionally out of scope. launch always
// reports JailNotSupported rather than silently running the child
// unconfined.
func launch(env LaunchEnv, handler Handler) (int, error) {
	return 0, jailNotSupportedErr("sandboxed launch is not supported on darwin")
}
