// Copyright 2017, Kerby Shedden and the Muscato contributors.

package daemon

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"syscall"

	"golang.org/x/sys/unix"
)

// Lock is the PID-file handshake: an exclusive advisory lock plus the
// holder's pid as content, replacing the config file's previous role
// as the live running-flag carrier (spec.md §9's Q3/"future revision"
// note, and the design note on the PID-file handshake). The config
// Record itself stays static configuration only.
type Lock struct {
	file *os.File
	path string
}

// Acquire opens (creating if necessary) the lock file at path and
// takes a non-blocking exclusive flock on it. It fails if another
// process already holds the lock, i.e. a daemon is already running.
func Acquire(path string) (*Lock, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0644)
	if err != nil {
		return nil, fmt.Errorf("daemon: open lock file %s: %w", path, err)
	}
	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		f.Close()
		return nil, fmt.Errorf("daemon: lock file %s held by another process: %w", path, err)
	}
	return &Lock{file: f, path: path}, nil
}

// WritePID truncates the lock file and writes pid as its content.
func (l *Lock) WritePID(pid int) error {
	if err := l.file.Truncate(0); err != nil {
		return fmt.Errorf("daemon: truncate lock file: %w", err)
	}
	if _, err := l.file.WriteAt([]byte(strconv.Itoa(pid)), 0); err != nil {
		return fmt.Errorf("daemon: write pid to lock file: %w", err)
	}
	return nil
}

// Release unlocks, closes, and removes the lock file.
func (l *Lock) Release() error {
	if err := unix.Flock(int(l.file.Fd()), unix.LOCK_UN); err != nil {
		l.file.Close()
		return fmt.Errorf("daemon: unlock: %w", err)
	}
	if err := l.file.Close(); err != nil {
		return fmt.Errorf("daemon: close lock file: %w", err)
	}
	if err := os.Remove(l.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("daemon: remove lock file: %w", err)
	}
	return nil
}

// ReadPID reads the pid recorded in the lock file at path, without
// acquiring the lock itself. CLI subcommands (stop, info) use this to
// locate a running daemon.
func ReadPID(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("daemon: read lock file %s: %w", path, err)
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0, fmt.Errorf("daemon: parse pid from %s: %w", path, err)
	}
	return pid, nil
}

// Signal sends sig to pid, grounded on muscato's own unix package use
// for low-level POSIX calls (there: Mkfifo; here: Kill), used by the
// CLI's stop subcommand to request termination.
func Signal(pid int, sig syscall.Signal) error {
	if err := unix.Kill(pid, sig); err != nil {
		return fmt.Errorf("daemon: kill pid %d: %w", pid, err)
	}
	return nil
}
