// Copyright 2017, Kerby Shedden and the Muscato contributors.

package daemon

import (
	"os"
	"path/filepath"
	"testing"
)

func TestStateString(t *testing.T) {
	cases := map[State]string{
		Init:     "INIT",
		Detached: "DETACHED",
		Running:  "RUNNING",
		Stopping: "STOPPING",
		Stopped:  "STOPPED",
		State(99): "UNKNOWN",
	}
	for s, want := range cases {
		if got := s.String(); got != want {
			t.Fatalf("State(%d).String() = %q, want %q", s, got, want)
		}
	}
}

func TestStateBox(t *testing.T) {
	var b stateBox
	if b.get() != Init {
		t.Fatalf("zero-value stateBox = %v, want Init", b.get())
	}
	b.set(Running)
	if b.get() != Running {
		t.Fatalf("stateBox after set = %v, want Running", b.get())
	}
}

func TestDaemonNewIsInit(t *testing.T) {
	d := New(nil, nil)
	if d.State() != Init {
		t.Fatalf("new Daemon state = %v, want Init", d.State())
	}
	d.MarkDetached()
	if d.State() != Detached {
		t.Fatalf("Daemon state after MarkDetached = %v, want Detached", d.State())
	}
}

func TestLockAcquireWritePIDRelease(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bigsi.lock")

	l, err := Acquire(path)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if err := l.WritePID(12345); err != nil {
		t.Fatalf("WritePID: %v", err)
	}

	pid, err := ReadPID(path)
	if err != nil {
		t.Fatalf("ReadPID: %v", err)
	}
	if pid != 12345 {
		t.Fatalf("ReadPID = %d, want 12345", pid)
	}

	if err := l.Release(); err != nil {
		t.Fatalf("Release: %v", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatalf("expected lock file to be removed after Release")
	}
}

func TestLockAcquireTwiceFails(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bigsi.lock")

	l1, err := Acquire(path)
	if err != nil {
		t.Fatalf("first Acquire: %v", err)
	}
	defer l1.Release()

	if _, err := Acquire(path); err == nil {
		t.Fatalf("expected second Acquire to fail while the first holds the lock")
	}
}

func TestIsDetachedChild(t *testing.T) {
	if IsDetachedChild() {
		t.Fatalf("test process should not report itself as an already-detached child")
	}
}
