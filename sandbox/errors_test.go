package sandbox

import (
	"errors"
	"testing"
)

func TestErrorUnwrap(t *testing.T) {
	cause := errors.New("underlying")
	err := ioErr("read failed", cause)
	if !errors.Is(err, cause) {
		t.Fatal("expected errors.Is to find the wrapped cause")
	}
}

func TestErrorMessageWithAndWithoutCause(t *testing.T) {
	withCause := processErr("reap failed", errors.New("ESRCH"))
	if got := withCause.Error(); got == "" {
		t.Fatal("expected non-empty message")
	}

	bare := jailNotSupportedErr("no landlock on this kernel")
	if bare.Unwrap() != nil {
		t.Fatal("expected nil Unwrap for a causeless error")
	}
}

func TestErrorKindString(t *testing.T) {
	cases := map[ErrorKind]string{
		KindIO:               "io",
		KindProcessError:     "process_error",
		KindJailSetup:        "jail_setup",
		KindJailNotSupported: "jail_not_supported",
		ErrorKind(99):        "unknown",
	}
	for kind, want := range cases {
		if got := kind.String(); got != want {
			t.Errorf("ErrorKind(%d).String() = %q, want %q", kind, got, want)
		}
	}
}

func TestJailSetupErrKind(t *testing.T) {
	err := jailSetupErr("bad rule", nil)
	if err.Kind != KindJailSetup {
		t.Fatalf("got kind %v, want KindJailSetup", err.Kind)
	}
}
