package sandbox

import (
	"reflect"
	"testing"
)

func TestNewFDSetPanicsOnDuplicate(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic on duplicate logical fd")
		}
	}()
	NewFDSet([]FD{
		{FD: 0, Mode: FDToChild},
		{FD: 0, Mode: FDFromChild},
	})
}

func TestStdFDSetEntriesOrdered(t *testing.T) {
	entries := StdFDSet().Entries()
	want := []FD{
		{FD: 0, Mode: FDToChild},
		{FD: 1, Mode: FDFromChild},
		{FD: 2, Mode: FDFromChild},
	}
	if !reflect.DeepEqual(entries, want) {
		t.Fatalf("got %+v, want %+v", entries, want)
	}
}

func TestFDSetEntriesDoesNotAliasInternalSlice(t *testing.T) {
	set := NewFDSet([]FD{{FD: 5, Mode: FDKeepInChild}})
	entries := set.Entries()
	entries[0].FD = 99
	if set.Entries()[0].FD != 5 {
		t.Fatal("Entries() must return a defensive copy")
	}
}

func TestEnvSliceSortedCaseSensitive(t *testing.T) {
	env := LaunchEnv{Env: map[string]string{"b": "2", "A": "1", "a": "0"}}
	got := env.EnvSlice(false)
	want := []string{"A=1", "a=0", "b=2"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %v, want %v", got, want)
	}
}

func TestEnvSliceSortedCaseInsensitive(t *testing.T) {
	env := LaunchEnv{Env: map[string]string{"Path": "x", "APPDATA": "y", "zeta": "z"}}
	got := env.EnvSlice(true)
	want := []string{"APPDATA=y", "Path=x", "zeta=z"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %v, want %v", got, want)
	}
}

func TestFDModeString(t *testing.T) {
	cases := map[FDMode]string{
		FDNull:        "null",
		FDToChild:     "to-child",
		FDFromChild:   "from-child",
		FDKeepInChild: "keep-in-child",
		FDMode(99):    "unknown",
	}
	for mode, want := range cases {
		if got := mode.String(); got != want {
			t.Errorf("FDMode(%d).String() = %q, want %q", mode, got, want)
		}
	}
}
